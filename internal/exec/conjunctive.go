package exec

import (
	"context"
	"strings"

	"github.com/makr-code/themis/internal/aql"
	"github.com/makr-code/themis/internal/aql/translate"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/themiserr"
	"golang.org/x/sync/errgroup"
)

// runConjunctive executes plan shape 1: resolve candidate pks via
// executeAndKeys, materialize, post-filter/order/paginate/distinct, and
// project through Return, per spec §4.10.
func (e *Engine) runConjunctive(ctx context.Context, q *translate.ConjunctiveQuery) (*Result, error) {
	pks, err := e.executeAndKeys(ctx, q)
	if err != nil {
		return nil, err
	}
	return e.materializeAndProject(ctx, q.Table, q.ForVar, pks, q.OrderBy, q.PostFilter, q.Limit, q.Offset, q.Distinct, q.Return)
}

// executeAndKeys implements the three-branch algorithm of spec §4.10.
func (e *Engine) executeAndKeys(ctx context.Context, q *translate.ConjunctiveQuery) ([][]byte, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	if q.Fulltext != nil {
		return e.executeFulltextPath(ctx, q)
	}
	if len(q.Range) > 0 || q.OrderBy != nil {
		pks, err := e.rangeAwarePathKeys(ctx, q)
		if themiserr.KindOf(err) == themiserr.KindNotFound {
			return e.fullScanKeys(ctx, q)
		}
		return pks, err
	}
	if len(q.Eq) == 0 {
		return e.fullScanKeys(ctx, q)
	}
	return e.executeEqualityPath(ctx, q)
}

// executeFulltextPath runs the fulltext scan, then (if other predicates
// accompany it) intersects against the range-aware path's membership set,
// preserving BM25 rank order for the un-intersected remainder.
func (e *Engine) executeFulltextPath(ctx context.Context, q *translate.ConjunctiveQuery) ([][]byte, error) {
	scored, err := e.secidx.ScanFulltextWithScores(ctx, q.Table, q.Fulltext.Column, q.Fulltext.Query, q.Fulltext.Limit)
	if themiserr.KindOf(err) == themiserr.KindNotFound {
		return e.fullScanKeys(ctx, q)
	}
	if err != nil {
		return nil, err
	}

	if len(q.Eq) == 0 && len(q.Range) == 0 {
		out := make([][]byte, len(scored))
		for i, s := range scored {
			out[i] = s.PK
		}
		return out, nil
	}

	rest := *q
	rest.Fulltext = nil
	rest.OrderBy = nil
	membership, err := e.rangeAwarePathKeys(ctx, &rest)
	if themiserr.KindOf(err) == themiserr.KindNotFound {
		return e.fullScanKeys(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	memberSet := toPKSet(membership)

	out := make([][]byte, 0, len(scored))
	for _, s := range scored {
		if memberSet[string(s.PK)] {
			out = append(out, s.PK)
		}
	}
	return out, nil
}

// executeEqualityPath launches one task per equality predicate (spec
// §4.10's "launch one task per equality predicate"), intersecting the
// sorted results smallest-first; a missing index on any predicate falls
// back to a full scan of the whole conjunct.
func (e *Engine) executeEqualityPath(ctx context.Context, q *translate.ConjunctiveQuery) ([][]byte, error) {
	type eqResult struct {
		pks          [][]byte
		missingIndex bool
	}
	results := make([]eqResult, len(q.Eq))
	g, gctx := errgroup.WithContext(ctx)
	for i, eq := range q.Eq {
		i, eq := i, eq
		g.Go(func() error {
			pks, err := e.secidx.ScanKeysEqual(gctx, q.Table, eq.Column, eq.Value, 0)
			if themiserr.KindOf(err) == themiserr.KindNotFound {
				results[i] = eqResult{missingIndex: true}
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = eqResult{pks: sortPKs(pks)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.missingIndex {
			return e.fullScanKeys(ctx, q)
		}
	}
	lists := make([][][]byte, len(results))
	for i, r := range results {
		lists[i] = r.pks
	}
	return intersectSortedPKs(lists), nil
}

// rangeAwarePathKeys implements spec §4.10's range-aware path: intersect
// equality and range predicate pk lists into a membership set, then (if an
// OrderBy is present) drive output order from a column-ordered scan over
// the OrderBy column, filtered by that membership set.
func (e *Engine) rangeAwarePathKeys(ctx context.Context, q *translate.ConjunctiveQuery) ([][]byte, error) {
	var lists [][][]byte
	for _, eq := range q.Eq {
		pks, err := e.secidx.ScanKeysEqual(ctx, q.Table, eq.Column, eq.Value, 0)
		if err != nil {
			return nil, err
		}
		lists = append(lists, sortPKs(pks))
	}
	for _, rp := range q.Range {
		lower, upper := rp.Lower, rp.Upper
		includeLower, includeUpper := rp.LowerIncl, rp.UpperIncl
		if !rp.HasLower {
			lower = core.I64(0)
			includeLower = true
		}
		if !rp.HasUpper {
			upper = core.I64(0)
			includeUpper = true
		}
		pks, err := e.scanRangeOpenBounds(ctx, q.Table, rp, lower, upper, includeLower, includeUpper)
		if err != nil {
			return nil, err
		}
		lists = append(lists, sortPKs(pks))
	}

	hasMembership := len(lists) > 0
	var membership [][]byte
	if hasMembership {
		membership = intersectSortedPKs(lists)
	}

	if q.OrderBy == nil {
		if !hasMembership {
			return nil, themiserr.New(themiserr.KindNotFound, "no predicate to drive an unindexed scan")
		}
		return membership, nil
	}

	if !e.catalog.Has(q.Table, q.OrderBy.Column, core.IndexRange) {
		return nil, themiserr.New(themiserr.KindNotFound, "no range index on %s.%s to drive ORDER BY", q.Table, q.OrderBy.Column)
	}
	ordered, err := e.secidx.ScanKeysColumnOrdered(ctx, q.Table, q.OrderBy.Column, q.OrderBy.Descending, 0)
	if err != nil {
		return nil, err
	}
	if hasMembership {
		memberSet := toPKSet(membership)
		filtered := ordered[:0:0]
		for _, pk := range ordered {
			if memberSet[string(pk)] {
				filtered = append(filtered, pk)
			}
		}
		ordered = filtered
	}
	return ordered, nil
}

// scanRangeOpenBounds handles a one-sided range predicate (HasLower or
// HasUpper false) by falling back to ScanKeysColumnOrdered when the
// missing bound would otherwise need a sentinel value.
func (e *Engine) scanRangeOpenBounds(ctx context.Context, table string, rp translate.RangePredicate, lower, upper core.Value, includeLower, includeUpper bool) ([][]byte, error) {
	if rp.HasLower && rp.HasUpper {
		return e.secidx.ScanKeysRange(ctx, table, rp.Column, lower, upper, includeLower, includeUpper, 0, false)
	}
	all, err := e.secidx.ScanKeysColumnOrdered(ctx, table, rp.Column, false, 0)
	if err != nil {
		return nil, err
	}
	if !rp.HasLower && !rp.HasUpper {
		return all, nil
	}
	var out [][]byte
	for _, pk := range all {
		ent, ok, err := e.secidx.Get(ctx, table, pk)
		if err != nil || !ok {
			continue
		}
		v, ok := ent.GetPath(strings.Split(rp.Column, "."))
		if !ok {
			continue
		}
		if rp.HasLower {
			cmp, ok := rangeCompare(v, rp.Lower)
			if !ok || cmp < 0 || (cmp == 0 && !rp.LowerIncl) {
				continue
			}
		}
		if rp.HasUpper {
			cmp, ok := rangeCompare(v, rp.Upper)
			if !ok || cmp > 0 || (cmp == 0 && !rp.UpperIncl) {
				continue
			}
		}
		out = append(out, pk)
	}
	return out, nil
}

// fullScanKeys is spec §4.10's full-scan fallback: scan the table prefix
// and evaluate every predicate in memory.
func (e *Engine) fullScanKeys(ctx context.Context, q *translate.ConjunctiveQuery) ([][]byte, error) {
	var out [][]byte
	var scanErr error
	err := e.secidx.ScanTableEntities(ctx, q.Table, func(ent *core.Entity) bool {
		if checkCancel(ctx) != nil {
			return false
		}
		if entityMatchesConjunct(ent, q) {
			out = append(out, ent.PK)
		}
		return true
	})
	if scanErr != nil {
		return nil, scanErr
	}
	if err != nil {
		return nil, err
	}
	if q.OrderBy != nil {
		entities, merr := e.materializeEntities(ctx, q.Table, out)
		if merr != nil {
			return nil, merr
		}
		sortEntitiesByColumn(entities, q.OrderBy.Column, q.OrderBy.Descending)
		out = make([][]byte, len(entities))
		for i, ent := range entities {
			out[i] = ent.PK
		}
	}
	return out, nil
}

func entityMatchesConjunct(ent *core.Entity, q *translate.ConjunctiveQuery) bool {
	for _, eq := range q.Eq {
		v, ok := ent.GetPath(strings.Split(eq.Column, "."))
		if !ok || !v.Equal(eq.Value) {
			return false
		}
	}
	for _, rp := range q.Range {
		v, ok := ent.GetPath(strings.Split(rp.Column, "."))
		if !ok {
			return false
		}
		if rp.HasLower {
			cmp, ok := rangeCompare(v, rp.Lower)
			if !ok || cmp < 0 || (cmp == 0 && !rp.LowerIncl) {
				return false
			}
		}
		if rp.HasUpper {
			cmp, ok := rangeCompare(v, rp.Upper)
			if !ok || cmp > 0 || (cmp == 0 && !rp.UpperIncl) {
				return false
			}
		}
	}
	if q.Fulltext != nil {
		v, ok := ent.GetPath(strings.Split(q.Fulltext.Column, "."))
		if !ok || v.Kind != core.KindString {
			return false
		}
		text := strings.ToLower(v.Str)
		for _, token := range strings.Fields(strings.ToLower(q.Fulltext.Query)) {
			if !strings.Contains(text, token) {
				return false
			}
		}
	}
	return true
}

// rangeCompare three-way-compares two values the way the full-scan
// fallback does: numerically if both parse as numbers, lexicographically
// otherwise (spec §4.10). ok is false if a is null (a missing/null field
// never satisfies a range bound).
func rangeCompare(a, b core.Value) (int, bool) {
	if a.IsNull() {
		return 0, false
	}
	if af, aok := a.AsFloat64(); aok {
		if bf, bok := b.AsFloat64(); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return strings.Compare(a.String(), b.String()), true
}

func sortEntitiesByColumn(entities []*core.Entity, column string, descending bool) {
	path := strings.Split(column, ".")
	less := func(i, j int) bool {
		vi, _ := entities[i].GetPath(path)
		vj, _ := entities[j].GetPath(path)
		cmp, ok := rangeCompare(vi, vj)
		if !ok {
			return false
		}
		if descending {
			return cmp > 0
		}
		return cmp < 0
	}
	insertionSortEntities(entities, less)
}

// insertionSortEntities is a small stable sort; entity lists produced by
// one plan are not large enough to warrant sort.Slice's overhead analysis,
// and a named helper keeps the call sites above readable.
func insertionSortEntities(entities []*core.Entity, less func(i, j int) bool) {
	for i := 1; i < len(entities); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			entities[j], entities[j-1] = entities[j-1], entities[j]
		}
	}
}

func toPKSet(pks [][]byte) map[string]bool {
	set := make(map[string]bool, len(pks))
	for _, pk := range pks {
		set[string(pk)] = true
	}
	return set
}

func paginate(pks [][]byte, offset, limit int) [][]byte {
	if offset > 0 {
		if offset >= len(pks) {
			return nil
		}
		pks = pks[offset:]
	}
	if limit > 0 && limit < len(pks) {
		pks = pks[:limit]
	}
	return pks
}

// materializeAndProject is the shared tail of every plan that resolves to
// a pk list: load entities, apply PostFilter/OrderBy/pagination/DISTINCT,
// then evaluate Return into the final Row stream.
func (e *Engine) materializeAndProject(ctx context.Context, table, forVar string, pks [][]byte, orderBy *translate.OrderBy, postFilter aql.Expr, limit, offset int, distinct bool, ret aql.Expr) (*Result, error) {
	entities, err := e.materializeEntities(ctx, table, pks)
	if err != nil {
		return nil, err
	}

	if postFilter != nil {
		filtered := entities[:0:0]
		for _, ent := range entities {
			if err := checkCancel(ctx); err != nil {
				return nil, err
			}
			env := Env{forVar: entityToValue(ent)}
			v, err := e.Eval(ctx, postFilter, env)
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				filtered = append(filtered, ent)
			}
		}
		entities = filtered
	}

	if orderBy != nil {
		sortEntitiesByColumn(entities, orderBy.Column, orderBy.Descending)
	}

	if offset > 0 {
		if offset >= len(entities) {
			entities = nil
		} else {
			entities = entities[offset:]
		}
	}
	if limit > 0 && limit < len(entities) {
		entities = entities[:limit]
	}

	rows := make([]Row, 0, len(entities))
	for _, ent := range entities {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		env := Env{forVar: entityToValue(ent)}
		v, err := e.Eval(ctx, ret, env)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{Value: v})
	}
	if distinct {
		rows = dedupeRows(rows)
	}
	return &Result{Rows: rows}, nil
}

func dedupeRows(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		dup := false
		for _, seen := range out {
			if seen.Value.Equal(r.Value) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
	}
	return out
}
