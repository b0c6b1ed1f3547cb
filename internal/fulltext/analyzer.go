// Package fulltext implements the analyzer pipeline and BM25 scoring
// described in spec §4.3: lowercase, Unicode tokenization, optional
// stopword filtering and optional language-specific stemming, followed by
// a BM25 scorer consumed by the secondary index engine. Grounded on
// amanmcp's hybrid search engine shape (tokenize → score → rank) and on
// golang.org/x/text for Unicode-aware case folding, a teacher-pack
// dependency (the teacher's own `internal/parser/mysql` lexer is
// byte-oriented ASCII SQL, so the Unicode-safe case folding is adopted
// from x/text instead).
package fulltext

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/makr-code/themis/internal/capability"
)

func init() {
	capability.RegisterFulltextAnalyzer(AnalyzerName, func() capability.FulltextAnalyzer { return StandardAnalyzer{} })
}

// Token is one analyzed term with its 0-based position within the field,
// used for BM25 term-frequency accounting and phrase-adjacency matching.
type Token struct {
	Text     string
	Position int
}

// Params mirrors core.FulltextParams without importing core, so this
// package stays usable standalone; secidx adapts core.FulltextParams into
// this shape.
type Params struct {
	Lowercase     bool
	StopwordsLang string
	Stemmer       string
}

var caseFolder = cases.Fold()

// Analyze runs the full pipeline over text and returns the surviving
// token stream with positions preserved from the raw tokenization (so a
// stopword removed from the middle of a phrase does not collapse the gap
// between its neighbors, per the phrase-adjacency contract in spec §4.3).
func Analyze(text string, p Params) []Token {
	raw := tokenize(text)
	out := make([]Token, 0, len(raw))
	var stop map[string]struct{}
	if p.StopwordsLang != "" {
		stop = stopwordSets[p.StopwordsLang]
	}
	for _, tok := range raw {
		t := tok.Text
		if p.Lowercase {
			t = caseFolder.String(t)
		}
		if stop != nil {
			if _, isStop := stop[t]; isStop {
				continue
			}
		}
		if p.Stemmer != "" {
			t = stem(t, p.Stemmer)
		}
		out = append(out, Token{Text: t, Position: tok.Position})
	}
	return out
}

// tokenize splits on Unicode letter/number run boundaries, assigning each
// run a sequential position.
func tokenize(text string) []Token {
	var out []Token
	var b strings.Builder
	pos := 0
	flush := func() {
		if b.Len() == 0 {
			return
		}
		out = append(out, Token{Text: b.String(), Position: pos})
		b.Reset()
		pos++
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

// stopwordSets holds a minimal per-language stopword list; "en" is the
// only language the query engine is required to support out of the box.
var stopwordSets = map[string]map[string]struct{}{
	"en": setOf(
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "he", "in", "is", "it", "its", "of", "on", "that", "the",
		"to", "was", "were", "will", "with", "this", "but", "or", "not",
	),
}

func setOf(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// stem applies a minimal suffix-stripping reduction for the named
// language. This is intentionally simplified — not a full Porter stemmer —
// good enough to collapse common English plural/verb-tense variants for
// the query engine's recall needs without pulling in a stemming library
// the example pack does not carry.
func stem(word, lang string) string {
	if lang != "en" {
		return word
	}
	switch {
	case len(word) > 4 && strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case len(word) > 4 && strings.HasSuffix(word, "ing"):
		return word[:len(word)-3]
	case len(word) > 3 && strings.HasSuffix(word, "ed"):
		return word[:len(word)-2]
	case len(word) > 3 && strings.HasSuffix(word, "es"):
		return word[:len(word)-2]
	case len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss"):
		return word[:len(word)-1]
	default:
		return word
	}
}

// AnalyzerName identifies this package's pipeline when registered into
// internal/capability's FulltextAnalyzer registry.
const AnalyzerName = "standard"

// StandardAnalyzer adapts Analyze to the capability.FulltextAnalyzer
// interface (text in, flat token list out) using English defaults, for
// callers that only need tokenization without position-aware scoring.
type StandardAnalyzer struct{}

func (StandardAnalyzer) Name() string { return AnalyzerName }

func (StandardAnalyzer) Analyze(text string) []string {
	tokens := Analyze(text, Params{Lowercase: true, StopwordsLang: "en", Stemmer: "en"})
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}
