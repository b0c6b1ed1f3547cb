package fulltext

import "testing"

func TestAnalyzeLowercaseAndTokenize(t *testing.T) {
	toks := Analyze("The Quick Brown Fox", Params{Lowercase: true})
	want := []string{"the", "quick", "brown", "fox"}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %+v", len(want), len(toks), toks)
	}
	for i, w := range want {
		if toks[i].Text != w {
			t.Fatalf("token %d: expected %q, got %q", i, w, toks[i].Text)
		}
		if toks[i].Position != i {
			t.Fatalf("token %d: expected position %d, got %d", i, i, toks[i].Position)
		}
	}
}

func TestAnalyzeStopwordsPreservePositionGaps(t *testing.T) {
	toks := Analyze("the cat and the dog", Params{Lowercase: true, StopwordsLang: "en"})
	if len(toks) != 2 {
		t.Fatalf("expected 2 surviving tokens, got %d: %+v", len(toks), toks)
	}
	if toks[0].Text != "cat" || toks[0].Position != 1 {
		t.Fatalf("unexpected first token: %+v", toks[0])
	}
	if toks[1].Text != "dog" || toks[1].Position != 4 {
		t.Fatalf("unexpected second token: %+v", toks[1])
	}
}

func TestAnalyzeStemmerCollapsesVariants(t *testing.T) {
	toks := Analyze("running runs ponies", Params{Lowercase: true, Stemmer: "en"})
	texts := make([]string, len(toks))
	for i, t := range toks {
		texts[i] = t.Text
	}
	if texts[0] != "runn" {
		t.Fatalf("expected 'running' stemmed to 'runn', got %q", texts[0])
	}
	if texts[2] != "pony" {
		t.Fatalf("expected 'ponies' stemmed to 'pony', got %q", texts[2])
	}
}

func TestAnalyzeUnicodeText(t *testing.T) {
	toks := Analyze("café déjà-vu", Params{Lowercase: true})
	if len(toks) != 3 {
		t.Fatalf("expected 3 tokens (café, déjà, vu), got %d: %+v", len(toks), toks)
	}
}

func TestStandardAnalyzerRegisteredWithCapability(t *testing.T) {
	a := StandardAnalyzer{}
	if a.Name() != AnalyzerName {
		t.Fatalf("unexpected analyzer name: %s", a.Name())
	}
	toks := a.Analyze("The Cats Sat")
	if len(toks) == 0 {
		t.Fatalf("expected non-empty token list")
	}
}
