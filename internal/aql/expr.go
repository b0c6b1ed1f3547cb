package aql

import (
	"strconv"
	"strings"

	"github.com/makr-code/themis/internal/themiserr"
)

// Precedence, low to high: OR/XOR < AND < NOT < comparison/IN < additive <
// multiplicative < unary < postfix (call/field/index).
func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") || p.isKeyword("XOR") {
		op := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: p.posOf(op), Op: op.Text, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		op := p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: p.posOf(op), Op: op.Text, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.isKeyword("NOT") {
		op := p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Pos: p.posOf(op), Op: "NOT", Expr: operand}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("IN") {
		op := p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Pos: p.posOf(op), Op: "IN", Left: left, Right: right}, nil
	}
	if p.cur().Kind == TokPunct && comparisonOps[p.cur().Text] {
		op := p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Pos: p.posOf(op), Op: op.Text, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: p.posOf(op), Op: op.Text, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*") || p.isPunct("/") || p.isPunct("%") {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Pos: p.posOf(op), Op: op.Text, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.isPunct("-") {
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Pos: p.posOf(op), Op: "-", Expr: operand}, nil
	}
	if p.isKeyword("NOT") {
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Pos: p.posOf(op), Op: "NOT", Expr: operand}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("."):
			dot := p.advance()
			field, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			base = &FieldAccess{Pos: p.posOf(dot), Base: base, Field: field.Text}
		case p.isPunct("["):
			br := p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			base = &IndexAccess{Pos: p.posOf(br), Base: base, Index: idx}
		default:
			return base, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	t := p.cur()
	switch {
	case t.Kind == TokNumber:
		p.advance()
		return parseNumberLiteral(t)
	case t.Kind == TokString:
		p.advance()
		return &Literal{Pos: p.posOf(t), Kind: LitString, Str: t.Text}, nil
	case t.Kind == TokKeyword && t.Text == "TRUE":
		p.advance()
		return &Literal{Pos: p.posOf(t), Kind: LitBool, Bool: true}, nil
	case t.Kind == TokKeyword && t.Text == "FALSE":
		p.advance()
		return &Literal{Pos: p.posOf(t), Kind: LitBool, Bool: false}, nil
	case t.Kind == TokKeyword && t.Text == "NULL":
		p.advance()
		return &Literal{Pos: p.posOf(t), Kind: LitNull}, nil
	case t.Kind == TokPunct && t.Text == "(":
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	case t.Kind == TokPunct && t.Text == "[":
		return p.parseArrayLiteral()
	case t.Kind == TokPunct && t.Text == "{":
		return p.parseObjectLiteral()
	case t.Kind == TokIdent:
		p.advance()
		if p.isPunct("(") {
			return p.parseCallTail(t)
		}
		return &Ident{Pos: p.posOf(t), Name: t.Text}, nil
	default:
		return nil, themiserr.AtPosition(themiserr.KindParse, t.Line, t.Column, "unexpected token %q in expression", t.Text)
	}
}

func parseNumberLiteral(t Token) (*Literal, error) {
	if !strings.ContainsAny(t.Text, ".eE") {
		if i, err := strconv.ParseInt(t.Text, 10, 64); err == nil {
			return &Literal{Kind: LitNumber, IsInt: true, Int: i, Num: float64(i)}, nil
		}
	}
	f, err := strconv.ParseFloat(t.Text, 64)
	if err != nil {
		return nil, themiserr.AtPosition(themiserr.KindParse, t.Line, t.Column, "invalid numeric literal %q", t.Text)
	}
	return &Literal{Kind: LitNumber, Num: f}, nil
}

func (p *Parser) parseCallTail(name Token) (Expr, error) {
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []Expr
	if !p.isPunct(")") {
		for {
			a, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &CallExpr{Pos: p.posOf(name), Name: name.Text, Args: args}, nil
}

func (p *Parser) parseArrayLiteral() (Expr, error) {
	start, err := p.expectPunct("[")
	if err != nil {
		return nil, err
	}
	var elems []Expr
	if !p.isPunct("]") {
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return &ArrayLiteral{Pos: p.posOf(start), Elements: elems}, nil
}

func (p *Parser) parseObjectLiteral() (Expr, error) {
	start, err := p.expectPunct("{")
	if err != nil {
		return nil, err
	}
	var fields []ObjectField
	if !p.isPunct("}") {
		for {
			keyTok := p.cur()
			var key string
			switch keyTok.Kind {
			case TokIdent, TokKeyword:
				key = keyTok.Text
				p.advance()
			case TokString:
				key = keyTok.Text
				p.advance()
			default:
				return nil, themiserr.AtPosition(themiserr.KindParse, keyTok.Line, keyTok.Column, "expected object key, found %q", keyTok.Text)
			}
			if _, err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fields = append(fields, ObjectField{Key: key, Value: val})
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return &ObjectLiteral{Pos: p.posOf(start), Fields: fields}, nil
}
