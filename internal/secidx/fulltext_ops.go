package secidx

import (
	"context"
	"encoding/binary"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/fulltext"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/themiserr"
)

// persistedAggregate is the on-disk shape of the `ftagg:` record: a
// running document count and running total token length, from which
// avg_doc_len is derived on read. Storing the running total (rather than
// the average directly) keeps incremental maintenance exact across many
// puts.
type persistedAggregate struct {
	DocCount int64
	TotalLen int64
}

func (a persistedAggregate) toFulltext() fulltext.Aggregate {
	if a.DocCount == 0 {
		return fulltext.Aggregate{}
	}
	return fulltext.Aggregate{DocCount: int(a.DocCount), AvgDocLen: float64(a.TotalLen) / float64(a.DocCount)}
}

func encodePersistedAggregate(a persistedAggregate) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(a.DocCount))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(a.TotalLen))
	return buf
}

func decodePersistedAggregate(b []byte) (persistedAggregate, error) {
	if len(b) != 16 {
		return persistedAggregate{}, themiserr.New(themiserr.KindStore, "malformed fulltext aggregate record")
	}
	return persistedAggregate{
		DocCount: int64(binary.LittleEndian.Uint64(b[0:8])),
		TotalLen: int64(binary.LittleEndian.Uint64(b[8:16])),
	}, nil
}

func (e *Engine) readAggregate(ctx context.Context, table, column string) (persistedAggregate, error) {
	key := keyschema.FulltextAggKey(table, column)
	val, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return persistedAggregate{}, themiserr.Wrap(themiserr.KindStore, err, "read fulltext aggregate")
	}
	if !ok {
		return persistedAggregate{}, nil
	}
	return decodePersistedAggregate(val)
}

func (e *Engine) writeAggregate(batch kv.Batch, table, column string, agg persistedAggregate) {
	batch.Put(keyschema.FulltextAggKey(table, column), encodePersistedAggregate(agg))
}

// encodePosting encodes (tf, docLen) for one `ftidx:` entry.
func encodePosting(p fulltext.Posting) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(p.TF))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(p.DocLen))
	return buf
}

func decodePosting(b []byte) (fulltext.Posting, error) {
	if len(b) != 16 {
		return fulltext.Posting{}, themiserr.New(themiserr.KindStore, "malformed fulltext posting record")
	}
	return fulltext.Posting{
		TF:     int(binary.LittleEndian.Uint64(b[0:8])),
		DocLen: int(binary.LittleEndian.Uint64(b[8:16])),
	}, nil
}

// tokenStats is one term's (count, positions) within a tokenized field.
type tokenStats struct {
	TF        int
	Positions []int
}

func tokenizeField(v core.Value, params core.FulltextParams) (map[string]tokenStats, int) {
	text := v.String()
	if v.Kind != core.KindString || v.IsNull() {
		return nil, 0
	}
	toks := fulltext.Analyze(text, fulltext.Params{
		Lowercase: params.Lowercase, StopwordsLang: params.StopwordsLang, Stemmer: params.Stemmer,
	})
	stats := map[string]tokenStats{}
	for _, t := range toks {
		s := stats[t.Text]
		s.TF++
		s.Positions = append(s.Positions, t.Position)
		stats[t.Text] = s
	}
	return stats, len(toks)
}

// docFreq counts distinct documents carrying token, by scanning its
// posting prefix. This is a straightforward reference-engine
// implementation; a production engine would track per-token doc
// frequency incrementally, left as a known scaling limitation.
func (e *Engine) docFreq(ctx context.Context, table, column, token string) (int, error) {
	count := 0
	err := e.store.ScanPrefix(ctx, keyschema.FulltextTokenPrefix(table, column, token), func(_, _ []byte) bool {
		count++
		return true
	})
	if err != nil {
		return 0, themiserr.Wrap(themiserr.KindStore, err, "docFreq scan")
	}
	return count, nil
}
