package aql

import (
	"strconv"
	"strings"

	"github.com/makr-code/themis/internal/themiserr"
)

// Parser consumes a token stream and produces a Query AST. It is a
// hand-written recursive-descent parser, one method per grammar
// construct, mirroring the per-construct file convention the rest of
// the pack's schema parsers use (one function per DDL clause) — here
// applied to AQL's clause and expression grammar instead.
type Parser struct {
	toks []Token
	pos  int
}

// Parse tokenizes and parses src into a Query.
func Parse(src string) (*Query, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		t := p.cur()
		return nil, themiserr.AtPosition(themiserr.KindParse, t.Line, t.Column, "unexpected trailing token %q", t.Text)
	}
	return q, nil
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) atEOF() bool { return p.cur().Kind == TokEOF }

func (p *Parser) advance() Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) posOf(t Token) Pos { return Pos{Line: t.Line, Column: t.Column} }

func (p *Parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.Kind == TokKeyword && t.Text == kw
}

func (p *Parser) isPunct(s string) bool {
	t := p.cur()
	return t.Kind == TokPunct && t.Text == s
}

func (p *Parser) expectKeyword(kw string) (Token, error) {
	if !p.isKeyword(kw) {
		t := p.cur()
		return Token{}, themiserr.AtPosition(themiserr.KindParse, t.Line, t.Column, "expected %q, found %q", kw, t.Text)
	}
	return p.advance(), nil
}

func (p *Parser) expectPunct(s string) (Token, error) {
	if !p.isPunct(s) {
		t := p.cur()
		return Token{}, themiserr.AtPosition(themiserr.KindParse, t.Line, t.Column, "expected %q, found %q", s, t.Text)
	}
	return p.advance(), nil
}

func (p *Parser) expectIdent() (Token, error) {
	t := p.cur()
	if t.Kind != TokIdent {
		return Token{}, themiserr.AtPosition(themiserr.KindParse, t.Line, t.Column, "expected identifier, found %q", t.Text)
	}
	return p.advance(), nil
}

func (p *Parser) parseQuery() (*Query, error) {
	start := p.cur()
	var ctes []CTE
	for p.isKeyword("WITH") {
		cte, err := p.parseCTE()
		if err != nil {
			return nil, err
		}
		ctes = append(ctes, cte)
		if p.isPunct(",") {
			p.advance()
		}
	}
	chain, err := p.parseClauseChain()
	if err != nil {
		return nil, err
	}
	return &Query{Pos: p.posOf(start), CTEs: ctes, Clause: chain}, nil
}

func (p *Parser) parseCTE() (CTE, error) {
	start, err := p.expectKeyword("WITH")
	if err != nil {
		return CTE{}, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return CTE{}, err
	}
	asTok, err := p.expectIdent() // "AS" lexes as a plain identifier, not a reserved keyword
	if err != nil {
		return CTE{}, err
	}
	if !strings.EqualFold(asTok.Text, "AS") {
		return CTE{}, themiserr.AtPosition(themiserr.KindParse, asTok.Line, asTok.Column, "expected AS, found %q", asTok.Text)
	}
	if _, err := p.expectPunct("("); err != nil {
		return CTE{}, err
	}
	chain, err := p.parseClauseChain()
	if err != nil {
		return CTE{}, err
	}
	if _, err := p.expectPunct(")"); err != nil {
		return CTE{}, err
	}
	return CTE{Pos: p.posOf(start), Name: name.Text, Query: chain}, nil
}

func (p *Parser) parseClauseChain() (*ClauseChain, error) {
	start := p.cur()
	var clauses []Clause
	for {
		switch {
		case p.isKeyword("FOR"):
			c, err := p.parseForClause()
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c)
		case p.isKeyword("FILTER"):
			c, err := p.parseFilterClause()
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c)
		case p.isKeyword("LET"):
			c, err := p.parseLetClause()
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c)
		case p.isKeyword("SORT"):
			c, err := p.parseSortClause()
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c)
		case p.isKeyword("LIMIT"):
			c, err := p.parseLimitClause()
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c)
		case p.isKeyword("COLLECT"):
			c, err := p.parseCollectClause()
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c)
		case p.isKeyword("RETURN"):
			c, err := p.parseReturnClause()
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, c)
			return &ClauseChain{Pos: p.posOf(start), Clauses: clauses}, nil
		default:
			t := p.cur()
			return nil, themiserr.AtPosition(themiserr.KindParse, t.Line, t.Column, "expected a clause keyword, found %q", t.Text)
		}
	}
}

func (p *Parser) parseForClause() (*ForClause, error) {
	start, err := p.expectKeyword("FOR")
	if err != nil {
		return nil, err
	}
	v, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var edgeVar, pathVar string
	if p.isPunct(",") {
		p.advance()
		e, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		edgeVar = e.Text
		if p.isPunct(",") {
			p.advance()
			pv, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			pathVar = pv.Text
		}
	}

	if _, err := p.expectKeyword("IN"); err != nil {
		return nil, err
	}

	// Graph traversal form: `min..max {OUTBOUND|INBOUND|ANY} start GRAPH name`.
	if edgeVar != "" || p.cur().Kind == TokNumber {
		return p.parseGraphTraversal(start, v.Text, edgeVar, pathVar)
	}

	src, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ForClause{Pos: p.posOf(start), Var: v.Text, Source: src}, nil
}

func (p *Parser) parseGraphTraversal(start Token, vertexVar, edgeVar, pathVar string) (*ForClause, error) {
	minTok := p.cur()
	if minTok.Kind != TokNumber {
		return nil, themiserr.AtPosition(themiserr.KindParse, minTok.Line, minTok.Column, "expected traversal depth, found %q", minTok.Text)
	}
	p.advance()
	minDepth, err := strconv.Atoi(minTok.Text)
	if err != nil {
		return nil, themiserr.AtPosition(themiserr.KindParse, minTok.Line, minTok.Column, "invalid traversal min depth %q", minTok.Text)
	}
	if _, err := p.expectPunct(".."); err != nil {
		return nil, err
	}
	maxTok := p.cur()
	if maxTok.Kind != TokNumber {
		return nil, themiserr.AtPosition(themiserr.KindParse, maxTok.Line, maxTok.Column, "expected traversal depth, found %q", maxTok.Text)
	}
	p.advance()
	maxDepth, err := strconv.Atoi(maxTok.Text)
	if err != nil {
		return nil, themiserr.AtPosition(themiserr.KindParse, maxTok.Line, maxTok.Column, "invalid traversal max depth %q", maxTok.Text)
	}

	dirTok := p.cur()
	if dirTok.Kind != TokKeyword || (dirTok.Text != "OUTBOUND" && dirTok.Text != "INBOUND" && dirTok.Text != "ANY") {
		return nil, themiserr.AtPosition(themiserr.KindParse, dirTok.Line, dirTok.Column, "expected OUTBOUND|INBOUND|ANY, found %q", dirTok.Text)
	}
	p.advance()

	startExpr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	if _, err := p.expectKeyword("GRAPH"); err != nil {
		return nil, err
	}
	graphNameTok := p.cur()
	var graphName string
	switch graphNameTok.Kind {
	case TokIdent, TokString:
		graphName = graphNameTok.Text
		p.advance()
	default:
		return nil, themiserr.AtPosition(themiserr.KindParse, graphNameTok.Line, graphNameTok.Column, "expected graph name, found %q", graphNameTok.Text)
	}

	gt := &GraphTraversal{
		VertexVar: vertexVar,
		EdgeVar:   edgeVar,
		PathVar:   pathVar,
		MinDepth:  minDepth,
		MaxDepth:  maxDepth,
		Direction: dirTok.Text,
		Start:     startExpr,
		GraphName: graphName,
	}

	if p.isKeyword("SHORTEST_PATH") {
		p.advance()
		if _, err := p.expectKeyword("TO"); err != nil {
			return nil, err
		}
		end, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		gt.ShortestPath = true
		gt.EndVertex = end
	}

	return &ForClause{Pos: p.posOf(start), Var: vertexVar, Graph: gt}, nil
}

func (p *Parser) parseFilterClause() (*FilterClause, error) {
	start, err := p.expectKeyword("FILTER")
	if err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &FilterClause{Pos: p.posOf(start), Expr: e}, nil
}

func (p *Parser) parseLetClause() (*LetClause, error) {
	start, err := p.expectKeyword("LET")
	if err != nil {
		return nil, err
	}
	v, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("="); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &LetClause{Pos: p.posOf(start), Var: v.Text, Expr: e}, nil
}

func (p *Parser) parseSortClause() (*SortClause, error) {
	start, err := p.expectKeyword("SORT")
	if err != nil {
		return nil, err
	}
	var keys []SortKey
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		desc := false
		if p.isKeyword("ASC") {
			p.advance()
		} else if p.isKeyword("DESC") {
			p.advance()
			desc = true
		}
		keys = append(keys, SortKey{Expr: e, Descending: desc})
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return &SortClause{Pos: p.posOf(start), Keys: keys}, nil
}

func (p *Parser) parseLimitClause() (*LimitClause, error) {
	start, err := p.expectKeyword("LIMIT")
	if err != nil {
		return nil, err
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.isPunct(",") {
		p.advance()
		count, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &LimitClause{Pos: p.posOf(start), Offset: first, Count: count}, nil
	}
	return &LimitClause{Pos: p.posOf(start), Count: first}, nil
}

func (p *Parser) parseCollectClause() (*CollectClause, error) {
	start, err := p.expectKeyword("COLLECT")
	if err != nil {
		return nil, err
	}
	var keys []LetClause
	for {
		if p.isKeyword("AGGREGATE") {
			break
		}
		v, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct("="); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		keys = append(keys, LetClause{Var: v.Text, Expr: e})
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	var aggs []AggregateBinding
	if p.isKeyword("AGGREGATE") {
		p.advance()
		for {
			v, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct("="); err != nil {
				return nil, err
			}
			fn, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct("("); err != nil {
				return nil, err
			}
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			aggs = append(aggs, AggregateBinding{Var: v.Text, Func: fn.Text, Expr: arg})
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	return &CollectClause{Pos: p.posOf(start), Keys: keys, Aggregates: aggs}, nil
}

func (p *Parser) parseReturnClause() (*ReturnClause, error) {
	start, err := p.expectKeyword("RETURN")
	if err != nil {
		return nil, err
	}
	distinct := false
	if p.isKeyword("DISTINCT") {
		p.advance()
		distinct = true
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ReturnClause{Pos: p.posOf(start), Distinct: distinct, Expr: e}, nil
}
