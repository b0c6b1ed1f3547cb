package exec

import (
	"context"
	"strings"

	"github.com/makr-code/themis/internal/aql"
	"github.com/makr-code/themis/internal/aql/translate"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/themiserr"
)

// runJoin executes plan shape 3: a nested-loop join over every FOR
// binding, LET bindings, FILTERs, an optional COLLECT/AGGREGATE, and a
// final RETURN, per spec §4.10's JOIN/LET/COLLECT paragraph.
func (e *Engine) runJoin(ctx context.Context, q *translate.JoinQuery) (*Result, error) {
	tables := make([][]*core.Entity, len(q.Fors))
	for i, f := range q.Fors {
		table, err := forTableName(f.Source)
		if err != nil {
			return nil, err
		}
		var entities []*core.Entity
		if err := e.secidx.ScanTableEntities(ctx, table, func(ent *core.Entity) bool {
			entities = append(entities, ent)
			return true
		}); err != nil {
			return nil, err
		}
		tables[i] = entities
	}

	var envs []Env
	var walkErr error
	var walk func(idx int, env Env) bool
	walk = func(idx int, env Env) bool {
		if walkErr = checkCancel(ctx); walkErr != nil {
			return false
		}
		if idx == len(q.Fors) {
			full := env
			for _, let := range q.Lets {
				v, err := e.Eval(ctx, let.Expr, full)
				if err != nil {
					walkErr = err
					return false
				}
				full = cloneEnv(full)
				full[let.Var] = v
			}
			for _, filt := range q.Filters {
				v, err := e.Eval(ctx, filt, full)
				if err != nil {
					walkErr = err
					return false
				}
				if !truthy(v) {
					return true
				}
			}
			envs = append(envs, full)
			return true
		}
		f := q.Fors[idx]
		for _, ent := range tables[idx] {
			next := cloneEnv(env)
			next[f.Var] = entityToValue(ent)
			if !walk(idx+1, next) {
				return false
			}
		}
		return true
	}
	walk(0, Env{})
	if walkErr != nil {
		return nil, walkErr
	}

	var rows []Row
	if q.Collect != nil {
		var err error
		rows, err = e.runCollect(ctx, q.Collect, envs, q.Return)
		if err != nil {
			return nil, err
		}
	} else {
		rows = make([]Row, 0, len(envs))
		for _, env := range envs {
			v, err := e.Eval(ctx, q.Return, env)
			if err != nil {
				return nil, err
			}
			rows = append(rows, Row{Value: v})
		}
	}
	if q.Distinct {
		rows = dedupeRows(rows)
	}
	return &Result{Rows: rows}, nil
}

func forTableName(e aql.Expr) (string, error) {
	switch n := e.(type) {
	case *aql.Ident:
		return n.Name, nil
	case *aql.Literal:
		if n.Kind == aql.LitString {
			return n.Str, nil
		}
	}
	return "", themiserr.New(themiserr.KindTranslate, "FOR source must be a collection name")
}

func cloneEnv(env Env) Env {
	next := make(Env, len(env)+1)
	for k, v := range env {
		next[k] = v
	}
	return next
}

// runCollect groups envs by the COLLECT key expressions, computes each
// AGGREGATE binding over the group's members, and evaluates ret once per
// group.
func (e *Engine) runCollect(ctx context.Context, c *aql.CollectClause, envs []Env, ret aql.Expr) ([]Row, error) {
	type group struct {
		keyVals []core.Value
		members []Env
	}
	var order []string
	groups := map[string]*group{}

	for _, env := range envs {
		keyVals := make([]core.Value, len(c.Keys))
		var keyParts []string
		for i, k := range c.Keys {
			v, err := e.Eval(ctx, k.Expr, env)
			if err != nil {
				return nil, err
			}
			keyVals[i] = v
			keyParts = append(keyParts, v.String())
		}
		gk := strings.Join(keyParts, "\x1f")
		g, ok := groups[gk]
		if !ok {
			g = &group{keyVals: keyVals}
			groups[gk] = g
			order = append(order, gk)
		}
		g.members = append(g.members, env)
	}

	rows := make([]Row, 0, len(order))
	for _, gk := range order {
		g := groups[gk]
		groupEnv := Env{}
		for i, k := range c.Keys {
			groupEnv[k.Var] = g.keyVals[i]
		}
		for _, agg := range c.Aggregates {
			v, err := e.evalAggregate(ctx, agg, g.members)
			if err != nil {
				return nil, err
			}
			groupEnv[agg.Var] = v
		}
		v, err := e.Eval(ctx, ret, groupEnv)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{Value: v})
	}
	return rows, nil
}

func (e *Engine) evalAggregate(ctx context.Context, agg aql.AggregateBinding, members []Env) (core.Value, error) {
	switch strings.ToUpper(agg.Func) {
	case "COUNT":
		return core.I64(int64(len(members))), nil
	case "SUM", "AVG":
		var sum float64
		var n int
		for _, env := range members {
			v, err := e.Eval(ctx, agg.Expr, env)
			if err != nil {
				return core.Null(), err
			}
			if f, ok := v.AsFloat64(); ok {
				sum += f
				n++
			}
		}
		if strings.ToUpper(agg.Func) == "AVG" {
			if n == 0 {
				return core.Null(), nil
			}
			return core.F64(sum / float64(n)), nil
		}
		return core.F64(sum), nil
	case "MIN", "MAX":
		var best core.Value
		has := false
		for _, env := range members {
			v, err := e.Eval(ctx, agg.Expr, env)
			if err != nil {
				return core.Null(), err
			}
			if v.IsNull() {
				continue
			}
			if !has {
				best, has = v, true
				continue
			}
			cmp, ok := rangeCompare(v, best)
			if !ok {
				continue
			}
			if (strings.ToUpper(agg.Func) == "MIN" && cmp < 0) || (strings.ToUpper(agg.Func) == "MAX" && cmp > 0) {
				best = v
			}
		}
		if !has {
			return core.Null(), nil
		}
		return best, nil
	case "COLLECT_INTO_ARRAY":
		arr := make([]any, 0, len(members))
		for _, env := range members {
			v, err := e.Eval(ctx, agg.Expr, env)
			if err != nil {
				return core.Null(), err
			}
			arr = append(arr, valueToGo(v))
		}
		return core.JSONValue(arr), nil
	default:
		return core.Null(), themiserr.New(themiserr.KindTranslate, "unknown aggregate function %q", agg.Func)
	}
}
