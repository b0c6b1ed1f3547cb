package exec

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/makr-code/themis/internal/aql"
	"github.com/makr-code/themis/internal/capability"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/geometry"
	"github.com/makr-code/themis/internal/themiserr"
	"go.uber.org/zap"
)

// Env binds FOR/LET variable names to values for one row's expression
// evaluation, per spec §4.10 "variable-to-JSON-value binding environment".
type Env map[string]core.Value

// entityToValue lifts an Entity's field map into a single core.Value a FOR
// variable binds to, so FieldAccess can descend into it uniformly with
// nested JSON fields.
func entityToValue(e *core.Entity) core.Value {
	m := make(map[string]any, len(e.FieldNames()))
	for _, name := range e.FieldNames() {
		v, _ := e.Get(name)
		m[name] = valueToGo(v)
	}
	return core.JSONValue(m)
}

// valueToGo lowers a core.Value to a plain Go value suitable for JSON
// nesting and for FieldAccess/IndexAccess traversal.
func valueToGo(v core.Value) any {
	switch v.Kind {
	case core.KindNull:
		return nil
	case core.KindBool:
		return v.Bool
	case core.KindI64:
		return v.I64
	case core.KindF64:
		return v.F64
	case core.KindString:
		return v.Str
	case core.KindBytes:
		return v.Bytes
	case core.KindVector:
		return v.Vector
	case core.KindJSON:
		return v.JSON
	default:
		return nil
	}
}

// goToValue lifts a plain Go value (as produced by valueToGo or decoded
// from nested JSON) back into a core.Value.
func goToValue(v any) core.Value {
	switch t := v.(type) {
	case nil:
		return core.Null()
	case core.Value:
		return t
	case []byte:
		return core.Bytes(t)
	case []float32:
		return core.Vector(t)
	default:
		return core.FromGo(v)
	}
}

// Eval evaluates expr against env, per spec §4.10's expression evaluator:
// undefined variables are null, arithmetic on null propagates null, and
// division by zero is a recoverable error logged as a warning (the
// expression yields null, not an aborted query).
func (e *Engine) Eval(ctx context.Context, expr aql.Expr, env Env) (core.Value, error) {
	if err := checkCancel(ctx); err != nil {
		return core.Null(), err
	}
	switch n := expr.(type) {
	case *aql.Ident:
		if v, ok := env[n.Name]; ok {
			return v, nil
		}
		return core.Null(), nil
	case *aql.Literal:
		return literalToValue(n), nil
	case *aql.FieldAccess:
		base, err := e.Eval(ctx, n.Base, env)
		if err != nil {
			return core.Null(), err
		}
		return fieldOf(base, n.Field), nil
	case *aql.IndexAccess:
		base, err := e.Eval(ctx, n.Base, env)
		if err != nil {
			return core.Null(), err
		}
		idx, err := e.Eval(ctx, n.Index, env)
		if err != nil {
			return core.Null(), err
		}
		return indexOf(base, idx), nil
	case *aql.ArrayLiteral:
		out := make([]any, len(n.Elements))
		for i, el := range n.Elements {
			v, err := e.Eval(ctx, el, env)
			if err != nil {
				return core.Null(), err
			}
			out[i] = valueToGo(v)
		}
		return core.JSONValue(out), nil
	case *aql.ObjectLiteral:
		out := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			v, err := e.Eval(ctx, f.Value, env)
			if err != nil {
				return core.Null(), err
			}
			out[f.Key] = valueToGo(v)
		}
		return core.JSONValue(out), nil
	case *aql.UnaryExpr:
		return e.evalUnary(ctx, n, env)
	case *aql.BinaryExpr:
		return e.evalBinary(ctx, n, env)
	case *aql.CallExpr:
		return e.evalCall(ctx, n, env)
	default:
		return core.Null(), themiserr.New(themiserr.KindTranslate, "expression evaluator: unsupported node %T", expr)
	}
}

func literalToValue(lit *aql.Literal) core.Value {
	switch lit.Kind {
	case aql.LitString:
		return core.Str(lit.Str)
	case aql.LitBool:
		return core.Bool(lit.Bool)
	case aql.LitNumber:
		if lit.IsInt {
			return core.I64(lit.Int)
		}
		return core.F64(lit.Num)
	default:
		return core.Null()
	}
}

func fieldOf(base core.Value, field string) core.Value {
	if base.Kind != core.KindJSON {
		return core.Null()
	}
	m, ok := base.JSON.(map[string]any)
	if !ok {
		return core.Null()
	}
	raw, ok := m[field]
	if !ok {
		return core.Null()
	}
	return goToValue(raw)
}

func indexOf(base, idx core.Value) core.Value {
	if base.Kind != core.KindJSON {
		return core.Null()
	}
	switch arr := base.JSON.(type) {
	case []any:
		i, ok := idx.AsFloat64()
		if !ok {
			return core.Null()
		}
		n := int(i)
		if n < 0 || n >= len(arr) {
			return core.Null()
		}
		return goToValue(arr[n])
	case map[string]any:
		raw, ok := arr[idx.String()]
		if !ok {
			return core.Null()
		}
		return goToValue(raw)
	default:
		return core.Null()
	}
}

func (e *Engine) evalUnary(ctx context.Context, n *aql.UnaryExpr, env Env) (core.Value, error) {
	v, err := e.Eval(ctx, n.Expr, env)
	if err != nil {
		return core.Null(), err
	}
	switch n.Op {
	case "NOT":
		return core.Bool(!truthy(v)), nil
	case "-":
		if v.IsNull() {
			return core.Null(), nil
		}
		f, ok := v.AsFloat64()
		if !ok {
			return core.Null(), nil
		}
		return core.F64(-f), nil
	default:
		return core.Null(), themiserr.New(themiserr.KindTranslate, "unsupported unary operator %q", n.Op)
	}
}

func truthy(v core.Value) bool {
	switch v.Kind {
	case core.KindNull:
		return false
	case core.KindBool:
		return v.Bool
	case core.KindString:
		return v.Str != ""
	default:
		f, ok := v.AsFloat64()
		return !ok || f != 0
	}
}

func (e *Engine) evalBinary(ctx context.Context, n *aql.BinaryExpr, env Env) (core.Value, error) {
	switch n.Op {
	case "AND":
		l, err := e.Eval(ctx, n.Left, env)
		if err != nil {
			return core.Null(), err
		}
		if !truthy(l) {
			return core.Bool(false), nil
		}
		r, err := e.Eval(ctx, n.Right, env)
		if err != nil {
			return core.Null(), err
		}
		return core.Bool(truthy(r)), nil
	case "OR":
		l, err := e.Eval(ctx, n.Left, env)
		if err != nil {
			return core.Null(), err
		}
		if truthy(l) {
			return core.Bool(true), nil
		}
		r, err := e.Eval(ctx, n.Right, env)
		if err != nil {
			return core.Null(), err
		}
		return core.Bool(truthy(r)), nil
	case "XOR":
		l, err := e.Eval(ctx, n.Left, env)
		if err != nil {
			return core.Null(), err
		}
		r, err := e.Eval(ctx, n.Right, env)
		if err != nil {
			return core.Null(), err
		}
		return core.Bool(truthy(l) != truthy(r)), nil
	}

	l, err := e.Eval(ctx, n.Left, env)
	if err != nil {
		return core.Null(), err
	}
	r, err := e.Eval(ctx, n.Right, env)
	if err != nil {
		return core.Null(), err
	}

	switch n.Op {
	case "==":
		return core.Bool(l.Equal(r)), nil
	case "!=":
		return core.Bool(!l.Equal(r)), nil
	case "<", "<=", ">", ">=":
		return compareValues(l, r, n.Op), nil
	case "IN":
		return core.Bool(memberOf(l, r)), nil
	case "+", "-", "*", "/", "%":
		return e.arithmetic(n.Op, l, r)
	default:
		return core.Null(), themiserr.New(themiserr.KindTranslate, "unsupported binary operator %q", n.Op)
	}
}

func compareValues(l, r core.Value, op string) core.Value {
	if l.IsNull() || r.IsNull() {
		return core.Null()
	}
	var cmp int
	if lf, lok := l.AsFloat64(); lok {
		if rf, rok := r.AsFloat64(); rok {
			switch {
			case lf < rf:
				cmp = -1
			case lf > rf:
				cmp = 1
			}
		} else {
			return core.Null()
		}
	} else {
		cmp = strings.Compare(l.String(), r.String())
	}
	switch op {
	case "<":
		return core.Bool(cmp < 0)
	case "<=":
		return core.Bool(cmp <= 0)
	case ">":
		return core.Bool(cmp > 0)
	default:
		return core.Bool(cmp >= 0)
	}
}

func memberOf(needle, haystack core.Value) bool {
	if haystack.Kind != core.KindJSON {
		return false
	}
	arr, ok := haystack.JSON.([]any)
	if !ok {
		return false
	}
	for _, item := range arr {
		if goToValue(item).Equal(needle) {
			return true
		}
	}
	return false
}

// arithmetic applies +, -, *, /, % with null propagation and a logged
// recoverable division-by-zero, per spec §4.10.
func (e *Engine) arithmetic(op string, l, r core.Value) (core.Value, error) {
	if l.Kind == core.KindString && r.Kind == core.KindString && op == "+" {
		return core.Str(l.Str + r.Str), nil
	}
	if l.IsNull() || r.IsNull() {
		return core.Null(), nil
	}
	lf, lok := l.AsFloat64()
	rf, rok := r.AsFloat64()
	if !lok || !rok {
		return core.Null(), nil
	}
	switch op {
	case "+":
		return core.F64(lf + rf), nil
	case "-":
		return core.F64(lf - rf), nil
	case "*":
		return core.F64(lf * rf), nil
	case "/":
		if rf == 0 {
			e.log.Warn("division by zero", zap.Float64("numerator", lf))
			return core.Null(), nil
		}
		return core.F64(lf / rf), nil
	case "%":
		if rf == 0 {
			e.log.Warn("modulo by zero", zap.Float64("numerator", lf))
			return core.Null(), nil
		}
		return core.F64(math.Mod(lf, rf)), nil
	default:
		return core.Null(), nil
	}
}

func (e *Engine) evalCall(ctx context.Context, n *aql.CallExpr, env Env) (core.Value, error) {
	args := make([]core.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := e.Eval(ctx, a, env)
		if err != nil {
			return core.Null(), err
		}
		args[i] = v
	}
	switch n.Name {
	case "LENGTH":
		return builtinLength(args)
	case "CONCAT":
		return builtinConcat(args), nil
	case "SUBSTRING":
		return builtinSubstring(args)
	case "UPPER":
		return builtinCase(args, strings.ToUpper)
	case "LOWER":
		return builtinCase(args, strings.ToLower)
	case "ABS":
		return builtinUnaryMath(args, math.Abs)
	case "CEIL":
		return builtinUnaryMath(args, math.Ceil)
	case "FLOOR":
		return builtinUnaryMath(args, math.Floor)
	case "ROUND":
		return builtinUnaryMath(args, math.Round)
	case "MIN":
		return builtinMinMax(args, true)
	case "MAX":
		return builtinMinMax(args, false)
	case "ST_Point", "ST_GeomFromText", "ST_GeomFromGeoJSON", "ST_AsText", "ST_AsGeoJSON",
		"ST_Distance", "ST_3DDistance", "ST_Intersects", "ST_Within", "ST_Contains", "ST_DWithin",
		"ST_HasZ", "ST_Z", "ST_ZMin", "ST_ZMax", "ST_ZBetween", "ST_Force2D", "ST_Buffer", "ST_Union":
		return e.evalSpatialCall(n.Name, args)
	default:
		return core.Null(), themiserr.New(themiserr.KindTranslate, "unknown function %q", n.Name)
	}
}

func builtinLength(args []core.Value) (core.Value, error) {
	if len(args) != 1 {
		return core.Null(), themiserr.New(themiserr.KindTranslate, "LENGTH takes 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case core.KindString:
		return core.I64(int64(len(v.Str))), nil
	case core.KindVector:
		return core.I64(int64(len(v.Vector))), nil
	case core.KindJSON:
		if arr, ok := v.JSON.([]any); ok {
			return core.I64(int64(len(arr))), nil
		}
		if m, ok := v.JSON.(map[string]any); ok {
			return core.I64(int64(len(m))), nil
		}
		return core.Null(), nil
	default:
		return core.Null(), nil
	}
}

func builtinConcat(args []core.Value) core.Value {
	var b strings.Builder
	for _, a := range args {
		if a.IsNull() {
			continue
		}
		b.WriteString(a.String())
	}
	return core.Str(b.String())
}

func builtinSubstring(args []core.Value) (core.Value, error) {
	if len(args) < 2 {
		return core.Null(), themiserr.New(themiserr.KindTranslate, "SUBSTRING takes at least 2 arguments")
	}
	if args[0].Kind != core.KindString {
		return core.Null(), nil
	}
	s := args[0].Str
	start, ok := args[1].AsFloat64()
	if !ok {
		return core.Null(), nil
	}
	startIdx := clampIndex(int(start), len(s))
	length := len(s) - startIdx
	if len(args) >= 3 {
		if l, ok := args[2].AsFloat64(); ok {
			length = int(l)
		}
	}
	endIdx := clampIndex(startIdx+length, len(s))
	if endIdx < startIdx {
		endIdx = startIdx
	}
	return core.Str(s[startIdx:endIdx]), nil
}

func clampIndex(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

func builtinCase(args []core.Value, f func(string) string) (core.Value, error) {
	if len(args) != 1 || args[0].Kind != core.KindString {
		return core.Null(), nil
	}
	return core.Str(f(args[0].Str)), nil
}

func builtinUnaryMath(args []core.Value, f func(float64) float64) (core.Value, error) {
	if len(args) != 1 {
		return core.Null(), themiserr.New(themiserr.KindTranslate, "expected 1 argument")
	}
	n, ok := args[0].AsFloat64()
	if !ok {
		return core.Null(), nil
	}
	return core.F64(f(n)), nil
}

func builtinMinMax(args []core.Value, wantMin bool) (core.Value, error) {
	var best float64
	found := false
	for _, a := range args {
		n, ok := a.AsFloat64()
		if !ok {
			continue
		}
		if !found || (wantMin && n < best) || (!wantMin && n > best) {
			best = n
			found = true
		}
	}
	if !found {
		return core.Null(), nil
	}
	return core.F64(best), nil
}

// asGeometry decodes a geometry-valued core.Value: geometries are carried
// internally as EWKB bytes so every spatial function shares one on-the-wire
// representation regardless of how the geometry was constructed.
func asGeometry(v core.Value) (geometry.Geometry, bool) {
	if v.Kind != core.KindBytes {
		return geometry.Geometry{}, false
	}
	g, err := geometry.ParseEWKB(v.Bytes)
	if err != nil {
		return geometry.Geometry{}, false
	}
	return g, true
}

func geometryValue(g geometry.Geometry) core.Value {
	b, err := geometry.AsEWKB(g)
	if err != nil {
		return core.Null()
	}
	return core.Bytes(b)
}

func (e *Engine) evalSpatialCall(name string, args []core.Value) (core.Value, error) {
	switch name {
	case "ST_Point":
		if len(args) < 2 {
			return core.Null(), nil
		}
		x, xok := args[0].AsFloat64()
		y, yok := args[1].AsFloat64()
		if !xok || !yok {
			return core.Null(), nil
		}
		if len(args) >= 3 {
			z, zok := args[2].AsFloat64()
			if zok {
				return geometryValue(geometry.NewPoint(x, y, z, true)), nil
			}
		}
		return geometryValue(geometry.NewPoint(x, y, 0, false)), nil
	case "ST_GeomFromText":
		if len(args) != 1 || args[0].Kind != core.KindString {
			return core.Null(), nil
		}
		g, err := geometry.ParseWKT(args[0].Str)
		if err != nil {
			return core.Null(), nil
		}
		return geometryValue(g), nil
	case "ST_GeomFromGeoJSON":
		if len(args) != 1 || args[0].Kind != core.KindString {
			return core.Null(), nil
		}
		g, err := geometry.ParseGeoJSON([]byte(args[0].Str))
		if err != nil {
			return core.Null(), nil
		}
		return geometryValue(g), nil
	case "ST_AsText":
		g, ok := geomArg(args, 0)
		if !ok {
			return core.Null(), nil
		}
		s, err := geometry.AsWKT(g)
		if err != nil {
			return core.Null(), nil
		}
		return core.Str(s), nil
	case "ST_AsGeoJSON":
		g, ok := geomArg(args, 0)
		if !ok {
			return core.Null(), nil
		}
		b, err := geometry.AsGeoJSON(g)
		if err != nil {
			return core.Null(), nil
		}
		return core.Str(string(b)), nil
	case "ST_Distance":
		return e.stDistance(args, false)
	case "ST_3DDistance":
		return e.stDistance(args, true)
	case "ST_Intersects":
		return e.stPredicate(args, func(b geometry.ExactGeometryBackend, a, c geometry.Geometry) bool { return b.Intersects(a, c) })
	case "ST_Within":
		return e.stPredicate(args, func(b geometry.ExactGeometryBackend, a, c geometry.Geometry) bool { return b.Within(a, c) })
	case "ST_Contains":
		return e.stPredicate(args, func(b geometry.ExactGeometryBackend, a, c geometry.Geometry) bool { return b.Contains(a, c) })
	case "ST_DWithin":
		if len(args) != 3 {
			return core.Null(), nil
		}
		meters, ok := args[2].AsFloat64()
		if !ok {
			return core.Null(), nil
		}
		d, err := e.stDistance(args[:2], false)
		if err != nil || d.IsNull() {
			return core.Null(), nil
		}
		return core.Bool(d.F64 <= meters), nil
	case "ST_HasZ":
		g, ok := geomArg(args, 0)
		if !ok {
			return core.Null(), nil
		}
		sc, err := geometry.ComputeSidecar(g)
		if err != nil {
			return core.Null(), nil
		}
		return core.Bool(sc.MBR.HasZ), nil
	case "ST_Z":
		g, ok := geomArg(args, 0)
		if !ok {
			return core.Null(), nil
		}
		sc, err := geometry.ComputeSidecar(g)
		if err != nil {
			return core.Null(), nil
		}
		return core.F64(sc.CentroidZ), nil
	case "ST_ZMin":
		g, ok := geomArg(args, 0)
		if !ok {
			return core.Null(), nil
		}
		mbr, err := geometry.ComputeMBR(g)
		if err != nil {
			return core.Null(), nil
		}
		return core.F64(mbr.MinZ), nil
	case "ST_ZMax":
		g, ok := geomArg(args, 0)
		if !ok {
			return core.Null(), nil
		}
		mbr, err := geometry.ComputeMBR(g)
		if err != nil {
			return core.Null(), nil
		}
		return core.F64(mbr.MaxZ), nil
	case "ST_ZBetween":
		if len(args) != 3 {
			return core.Null(), nil
		}
		g, ok := geomArg(args, 0)
		if !ok {
			return core.Null(), nil
		}
		zmin, zminOK := args[1].AsFloat64()
		zmax, zmaxOK := args[2].AsFloat64()
		if !zminOK || !zmaxOK {
			return core.Null(), nil
		}
		mbr, err := geometry.ComputeMBR(g)
		if err != nil || !mbr.HasZ {
			return core.Bool(false), nil
		}
		return core.Bool(mbr.MinZ >= zmin && mbr.MaxZ <= zmax), nil
	case "ST_Force2D":
		g, ok := geomArg(args, 0)
		if !ok {
			return core.Null(), nil
		}
		return geometryValue(force2D(g)), nil
	case "ST_Buffer":
		if len(args) != 2 {
			return core.Null(), nil
		}
		g, ok := geomArg(args, 0)
		if !ok {
			return core.Null(), nil
		}
		meters, mok := args[1].AsFloat64()
		if !mok {
			return core.Null(), nil
		}
		sc, err := geometry.ComputeSidecar(g)
		if err != nil {
			return core.Null(), nil
		}
		dLon, dLat := geometry.DegreeDeltaForMeters(meters, sc.CentroidY)
		box := geometry.MBR{MinX: sc.MBR.MinX - dLon, MaxX: sc.MBR.MaxX + dLon, MinY: sc.MBR.MinY - dLat, MaxY: sc.MBR.MaxY + dLat}
		return geometryValue(boxPolygon(box)), nil
	case "ST_Union":
		a, aok := geomArg(args, 0)
		b, bok := geomArg(args, 1)
		if !aok || !bok {
			return core.Null(), nil
		}
		ambr, err := geometry.ComputeMBR(a)
		if err != nil {
			return core.Null(), nil
		}
		bmbr, err := geometry.ComputeMBR(b)
		if err != nil {
			return core.Null(), nil
		}
		return geometryValue(boxPolygon(ambr.Union(bmbr))), nil
	default:
		return core.Null(), themiserr.New(themiserr.KindTranslate, "unknown spatial function %q", name)
	}
}

func geomArg(args []core.Value, i int) (geometry.Geometry, bool) {
	if i >= len(args) {
		return geometry.Geometry{}, false
	}
	return asGeometry(args[i])
}

func (e *Engine) stDistance(args []core.Value, include3D bool) (core.Value, error) {
	a, aok := geomArg(args, 0)
	b, bok := geomArg(args, 1)
	if !aok || !bok {
		return core.Null(), nil
	}
	sa, err := geometry.ComputeSidecar(a)
	if err != nil {
		return core.Null(), nil
	}
	sb, err := geometry.ComputeSidecar(b)
	if err != nil {
		return core.Null(), nil
	}
	meters := geometry.HaversineMeters(sa.CentroidX, sa.CentroidY, sb.CentroidX, sb.CentroidY)
	if include3D && sa.MBR.HasZ && sb.MBR.HasZ {
		dz := sa.CentroidZ - sb.CentroidZ
		meters = math.Sqrt(meters*meters + dz*dz)
	}
	return core.F64(meters), nil
}

func (e *Engine) stPredicate(args []core.Value, f func(geometry.ExactGeometryBackend, geometry.Geometry, geometry.Geometry) bool) (core.Value, error) {
	a, aok := geomArg(args, 0)
	b, bok := geomArg(args, 1)
	if !aok || !bok {
		return core.Null(), nil
	}
	backend, err := capability.GetGeometryBackend(e.geometryBackend)
	if err != nil {
		return core.Null(), err
	}
	return core.Bool(f(backend, a, b)), nil
}

func force2D(g geometry.Geometry) geometry.Geometry {
	strip := func(c geometry.Coord) geometry.Coord { return geometry.Coord{X: c.X, Y: c.Y} }
	out := g
	out.Coords = mapCoords(g.Coords, strip)
	if g.Polygons != nil {
		out.Polygons = make([][]geometry.Coord, len(g.Polygons))
		for i, ring := range g.Polygons {
			out.Polygons[i] = mapCoords(ring, strip)
		}
	}
	if g.Items != nil {
		out.Items = make([]geometry.Geometry, len(g.Items))
		for i, item := range g.Items {
			out.Items[i] = force2D(item)
		}
	}
	return out
}

func mapCoords(in []geometry.Coord, f func(geometry.Coord) geometry.Coord) []geometry.Coord {
	if in == nil {
		return nil
	}
	out := make([]geometry.Coord, len(in))
	for i, c := range in {
		out[i] = f(c)
	}
	return out
}

// boxPolygon builds a closed rectangular ring from an MBR, used by
// ST_Buffer and ST_Union which return a bbox per spec §4.10.
func boxPolygon(m geometry.MBR) geometry.Geometry {
	ring := []geometry.Coord{
		{X: m.MinX, Y: m.MinY}, {X: m.MaxX, Y: m.MinY}, {X: m.MaxX, Y: m.MaxY}, {X: m.MinX, Y: m.MaxY}, {X: m.MinX, Y: m.MinY},
	}
	return geometry.Geometry{Kind: geometry.KindPolygon, SRID: geometry.WGS84, Polygons: [][]geometry.Coord{ring}}
}

// sortValues sorts core.Values ascending by the same numeric-or-lexical
// comparator the full-scan fallback and range-aware path use.
func sortValues(vs []core.Value) {
	sort.SliceStable(vs, func(i, j int) bool {
		return compareValues(vs[i], vs[j], "<").Bool
	})
}
