package secidx

import (
	"context"
	"sort"

	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/fulltext"
	"github.com/makr-code/themis/internal/keyschema"
	"github.com/makr-code/themis/internal/themiserr"
)

// ScanKeysEqual returns every pk whose (table, column) equals v, via
// whichever equality-shaped index (Equality or Sparse) is registered. limit
// <= 0 means unbounded.
func (e *Engine) ScanKeysEqual(ctx context.Context, table, column string, v core.Value, limit int) ([][]byte, error) {
	prefix, err := e.equalityShapedPrefix(table, column, v)
	if err != nil {
		return nil, err
	}
	var out [][]byte
	scanErr := e.store.ScanPrefix(ctx, prefix, func(key, _ []byte) bool {
		pk, ok := lastKeyComponent(key, prefix)
		if ok {
			out = append(out, pk)
		}
		return limit <= 0 || len(out) < limit
	})
	if scanErr != nil {
		return nil, themiserr.Wrap(themiserr.KindStore, scanErr, "scan_keys_equal %s.%s", table, column)
	}
	return out, nil
}

// EstimateCountEqual counts matches for (table, column) == v, stopping
// early (capped=true) once maxProbe entries have been seen.
func (e *Engine) EstimateCountEqual(ctx context.Context, table, column string, v core.Value, maxProbe int) (int, bool, error) {
	prefix, err := e.equalityShapedPrefix(table, column, v)
	if err != nil {
		return 0, false, err
	}
	count := 0
	capped := false
	scanErr := e.store.ScanPrefix(ctx, prefix, func(_, _ []byte) bool {
		count++
		if maxProbe > 0 && count >= maxProbe {
			capped = true
			return false
		}
		return true
	})
	if scanErr != nil {
		return 0, false, themiserr.Wrap(themiserr.KindStore, scanErr, "estimate_count_equal %s.%s", table, column)
	}
	return count, capped, nil
}

func (e *Engine) equalityShapedPrefix(table, column string, v core.Value) ([]byte, error) {
	switch {
	case e.catalog.Has(table, column, core.IndexEquality):
		return keyschema.EqualityPrefix(table, column, v), nil
	case e.catalog.Has(table, column, core.IndexSparse):
		return keyschema.SparsePrefix(table, column, v), nil
	default:
		return nil, themiserr.New(themiserr.KindNotFound, "no equality or sparse index on %s.%s", table, column)
	}
}

// RangeAnchor resumes a range scan strictly after (or before, when
// reversed) a previously returned (value, pk) cursor position.
type RangeAnchor struct {
	Value core.Value
	PK    []byte
}

// ScanKeysRange returns every pk whose (table, column) falls in
// [lower, upper] (boundaries individually inclusive/exclusive as
// requested), in ascending order unless reversed.
func (e *Engine) ScanKeysRange(ctx context.Context, table, column string, lower, upper core.Value, includeLower, includeUpper bool, limit int, reversed bool) ([][]byte, error) {
	return e.ScanKeysRangeAnchored(ctx, table, column, lower, upper, includeLower, includeUpper, nil, limit, reversed)
}

// ScanKeysRangeAnchored is ScanKeysRange with an optional cursor anchor for
// paging: when anchor is non-nil, results resume strictly past it in the
// scan direction instead of from the range boundary.
func (e *Engine) ScanKeysRangeAnchored(ctx context.Context, table, column string, lower, upper core.Value, includeLower, includeUpper bool, anchor *RangeAnchor, limit int, reversed bool) ([][]byte, error) {
	if !e.catalog.Has(table, column, core.IndexRange) {
		return nil, themiserr.New(themiserr.KindNotFound, "no range index on %s.%s", table, column)
	}

	lo := keyschema.RangeValuePrefix(table, column, lower)
	if !includeLower {
		lo = exclusiveUpperBound(lo)
	}
	hi := exclusiveUpperBound(keyschema.RangeValuePrefix(table, column, upper))
	if !includeUpper {
		hi = keyschema.RangeValuePrefix(table, column, upper)
	}

	if anchor != nil {
		anchorKey := keyschema.RangeKey(table, column, anchor.Value, anchor.PK)
		if reversed {
			hi = anchorKey
		} else {
			lo = append(append([]byte{}, anchorKey...), 0x00)
		}
	}

	var out [][]byte
	err := e.store.ScanRange(ctx, lo, hi, reversed, func(key, _ []byte) bool {
		pk, ok := rangeKeyPK(key)
		if ok {
			out = append(out, pk)
		}
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindStore, err, "scan_keys_range %s.%s", table, column)
	}
	return out, nil
}

// ScanKeysColumnOrdered returns every pk of a range-indexed column in its
// natural encoded order (ascending unless reversed), with no value bound —
// used by the execution engine's range-aware path when ORDER BY names a
// range-indexed column that carries no FILTER of its own.
func (e *Engine) ScanKeysColumnOrdered(ctx context.Context, table, column string, reversed bool, limit int) ([][]byte, error) {
	if !e.catalog.Has(table, column, core.IndexRange) {
		return nil, themiserr.New(themiserr.KindNotFound, "no range index on %s.%s", table, column)
	}
	prefix := keyschema.RangeColumnPrefix(table, column)
	lo, hi := prefix, exclusiveUpperBound(prefix)
	var out [][]byte
	err := e.store.ScanRange(ctx, lo, hi, reversed, func(key, _ []byte) bool {
		pk, ok := rangeKeyPK(key)
		if ok {
			out = append(out, pk)
		}
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, themiserr.Wrap(themiserr.KindStore, err, "scan_keys_column_ordered %s.%s", table, column)
	}
	return out, nil
}

// exclusiveUpperBound returns the smallest byte string greater than every
// string having prefix as a prefix, used to turn an inclusive value-prefix
// bound into the exclusive upper bound ScanRange expects (or vice versa).
func exclusiveUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return append(prefix, 0xFF)
}

func lastKeyComponent(key, prefix []byte) ([]byte, bool) {
	if len(key) <= len(prefix) {
		return nil, false
	}
	body, err := keyschema.SplitKey(string(key[len(prefix):]))
	if err != nil || len(body) == 0 {
		return nil, false
	}
	return []byte(body[len(body)-1]), true
}

func rangeKeyPK(key []byte) ([]byte, bool) {
	body, err := keyschema.TrimPrefix(key, keyschema.PrefixRange)
	if err != nil {
		return nil, false
	}
	parts, err := keyschema.SplitKey(body)
	if err != nil || len(parts) == 0 {
		return nil, false
	}
	return []byte(parts[len(parts)-1]), true
}

// ScanFulltext returns pks whose (table, column) text matches every
// whitespace-separated token of query (AND semantics, per spec §4.5).
func (e *Engine) ScanFulltext(ctx context.Context, table, column, query string, limit int) ([][]byte, error) {
	scored, err := e.ScanFulltextWithScores(ctx, table, column, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(scored))
	for i, s := range scored {
		out[i] = s.PK
	}
	return out, nil
}

// ScoredPK pairs a matching primary key with its BM25 relevance score.
type ScoredPK struct {
	PK    []byte
	Score float64
}

// ScanFulltextWithScores answers a multi-token fulltext query with AND
// semantics across tokens, ranked by summed BM25 score descending.
func (e *Engine) ScanFulltextWithScores(ctx context.Context, table, column, query string, limit int) ([]ScoredPK, error) {
	desc, ok := e.catalog.Get(table, column, core.IndexFulltext)
	if !ok {
		return nil, themiserr.New(themiserr.KindNotFound, "no fulltext index on %s.%s", table, column)
	}
	queryTokens := fulltext.Analyze(query, fulltext.Params{
		Lowercase: desc.Analyzer.Lowercase, StopwordsLang: desc.Analyzer.StopwordsLang, Stemmer: desc.Analyzer.Stemmer,
	})
	if len(queryTokens) == 0 {
		return nil, nil
	}

	agg, err := e.readAggregate(ctx, table, column)
	if err != nil {
		return nil, err
	}
	ftAgg := agg.toFulltext()
	k1, b := desc.Analyzer.BM25K1, desc.Analyzer.BM25B
	if k1 == 0 {
		k1 = fulltext.DefaultK1
	}
	if b == 0 {
		b = fulltext.DefaultB
	}

	type hit struct {
		posting fulltext.Posting
		seen    int
	}
	scores := map[string]float64{}
	hits := map[string]*hit{}
	var pkBytes = map[string][]byte{}

	for _, qt := range queryTokens {
		docFreq, err := e.docFreq(ctx, table, column, qt.Text)
		if err != nil {
			return nil, err
		}
		tokenPrefix := keyschema.FulltextTokenPrefix(table, column, qt.Text)
		err = e.store.ScanPrefix(ctx, tokenPrefix, func(key, value []byte) bool {
			pk, ok := lastKeyComponent(key, tokenPrefix)
			if !ok {
				return true
			}
			posting, decErr := decodePosting(value)
			if decErr != nil {
				return true
			}
			k := string(pk)
			pkBytes[k] = pk
			h, exists := hits[k]
			if !exists {
				h = &hit{}
				hits[k] = h
			}
			h.seen++
			scores[k] += fulltext.BM25(posting, docFreq, ftAgg, k1, b)
			return true
		})
		if err != nil {
			return nil, themiserr.Wrap(themiserr.KindStore, err, "scan_fulltext %s.%s", table, column)
		}
	}

	var out []ScoredPK
	for k, h := range hits {
		if h.seen < len(queryTokens) {
			continue // AND semantics: every query token must match
		}
		out = append(out, ScoredPK{PK: pkBytes[k], Score: scores[k]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return string(out[i].PK) < string(out[j].PK)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
