// Package parser implements a hand-written Pratt parser that turns a Strata
// token stream into a Module AST (§4.2 of the spec).
package parser

import (
	"fmt"

	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/lexer"
	"github.com/strata-lang/strata/internal/token"
)

// ErrKind classifies a parse-time error per §7's Parse taxonomy.
type ErrKind int

const (
	ErrExpected ErrKind = iota
	ErrUnexpectedTopLevel
	ErrAssignTargetNotVariable
	ErrNestingDepthExceeded
	ErrLexer
)

// Error is the parser's diagnostic type; it implements diag.Diagnostic.
type Error struct {
	KindTag ErrKind
	Msg     string
	SpanV   ast.Span
}

func (e *Error) Error() string  { return e.Msg }
func (e *Error) Span() ast.Span { return e.SpanV }
func (e *Error) Kind() string {
	switch e.KindTag {
	case ErrExpected:
		return "Expected"
	case ErrUnexpectedTopLevel:
		return "UnexpectedTopLevel"
	case ErrAssignTargetNotVariable:
		return "AssignTargetNotVariable"
	case ErrNestingDepthExceeded:
		return "NestingDepthExceeded"
	case ErrLexer:
		return "LexerError"
	default:
		return "ParseError"
	}
}

// maxNestingDepth bounds recursion across block/paren/unary/else-if nesting.
const maxNestingDepth = 512

// Parser holds one token of lookahead over a Lexer. prevEnd tracks the end
// offset of the last consumed token, so node spans cover exactly the tokens
// consumed.
type Parser struct {
	lex     *lexer.Lexer
	cur     token.Token
	prevEnd int
	depth   int
}

// Parse tokenizes and parses src into a Module.
func Parse(src string) (*ast.Module, error) {
	p := &Parser{lex: lexer.New(src)}
	p.cur = p.lex.Next()
	return p.parseModule()
}

func (p *Parser) bump() {
	p.prevEnd = p.cur.Span.End
	p.cur = p.lex.Next()
}

func (p *Parser) at(k token.Kind) bool { return p.cur.Kind == k }

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if p.cur.Kind == token.Error {
		return token.Token{}, &Error{KindTag: ErrLexer, Msg: p.cur.Text, SpanV: p.cur.Span}
	}
	if p.cur.Kind != k {
		return token.Token{}, &Error{
			KindTag: ErrExpected,
			Msg:     fmt.Sprintf("expected %s, found %s", k, p.cur.Kind),
			SpanV:   p.cur.Span,
		}
	}
	t := p.cur
	p.bump()
	return t, nil
}

func (p *Parser) enter() error {
	p.depth++
	if p.depth > maxNestingDepth {
		return &Error{KindTag: ErrNestingDepthExceeded, Msg: "nesting depth exceeded", SpanV: p.cur.Span}
	}
	return nil
}

func (p *Parser) exit() { p.depth-- }

// ======= module / items =======

func (p *Parser) parseModule() (*ast.Module, error) {
	start := p.cur.Span.Start
	var items []ast.Item
	for !p.at(token.EOF) {
		if p.cur.Kind == token.Error {
			return nil, &Error{KindTag: ErrLexer, Msg: p.cur.Text, SpanV: p.cur.Span}
		}
		item, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &ast.Module{Items: items, Span: ast.Span{Start: start, End: p.cur.Span.End}}, nil
}

func (p *Parser) parseItem() (ast.Item, error) {
	switch p.cur.Kind {
	case token.KwLet:
		return p.parseLetItem()
	case token.KwFn:
		return p.parseFnDecl()
	case token.KwExtern:
		return p.parseExternFn()
	case token.KwStruct:
		return p.parseStruct()
	case token.KwEnum:
		return p.parseEnum()
	default:
		return nil, &Error{
			KindTag: ErrUnexpectedTopLevel,
			Msg:     fmt.Sprintf("unexpected token at top level: %s", p.cur.Kind),
			SpanV:   p.cur.Span,
		}
	}
}

func (p *Parser) parseIdentName() (string, ast.Span, error) {
	if p.cur.Kind == token.Error {
		return "", ast.Span{}, &Error{KindTag: ErrLexer, Msg: p.cur.Text, SpanV: p.cur.Span}
	}
	if p.cur.Kind != token.Ident {
		return "", ast.Span{}, &Error{
			KindTag: ErrExpected,
			Msg:     fmt.Sprintf("expected identifier, found %s", p.cur.Kind),
			SpanV:   p.cur.Span,
		}
	}
	name := p.cur.Text
	span := p.cur.Span
	p.bump()
	return name, span, nil
}

func (p *Parser) parseLetItem() (*ast.Let, error) {
	start := p.cur.Span.Start
	if _, err := p.expect(token.KwLet); err != nil {
		return nil, err
	}
	mut := false
	if p.at(token.KwMut) {
		mut = true
		p.bump()
	}
	name, _, err := p.parseIdentName()
	if err != nil {
		return nil, err
	}
	var ty ast.TypeExpr
	if p.at(token.Colon) {
		p.bump()
		ty, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.Assign); err != nil {
		return nil, err
	}
	value, err := p.parseExprBP(0)
	if err != nil {
		return nil, err
	}
	end, err := p.expect(token.Semicolon)
	if err != nil {
		return nil, err
	}
	return &ast.Let{Name: name, Mut: mut, Type: ty, Value: value, Span: ast.Span{Start: start, End: end.Span.End}}, nil
}

func (p *Parser) parseTypeParams() ([]string, error) {
	if !p.at(token.Lt) {
		return nil, nil
	}
	p.bump()
	var names []string
	for {
		name, _, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if p.at(token.Comma) {
			p.bump()
			continue
		}
		break
	}
	if _, err := p.expect(token.Gt); err != nil {
		return nil, err
	}
	return names, nil
}

func (p *Parser) parseParams() ([]ast.Param, error) {
	var params []ast.Param
	if p.at(token.RParen) {
		return params, nil
	}
	for {
		start := p.cur.Span.Start
		name, _, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		var ty ast.TypeExpr
		if p.at(token.Colon) {
			p.bump()
			ty, err = p.parseType()
			if err != nil {
				return nil, err
			}
		}
		params = append(params, ast.Param{Name: name, Type: ty, Span: ast.Span{Start: start, End: p.prevEnd}})
		if p.at(token.Comma) {
			p.bump()
			continue
		}
		break
	}
	return params, nil
}

func (p *Parser) parseEffectSet() (*ast.EffectSet, error) {
	// Caller has already consumed '&'.
	start := p.cur.Span.Start
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var names []string
	if !p.at(token.RBrace) {
		for {
			name, _, err := p.parseIdentName()
			if err != nil {
				return nil, err
			}
			names = append(names, name)
			if p.at(token.Comma) {
				p.bump()
				continue
			}
			break
		}
	}
	end, err := p.expect(token.RBrace)
	if err != nil {
		return nil, err
	}
	return &ast.EffectSet{Names: names, Span: ast.Span{Start: start, End: end.Span.End}}, nil
}

func (p *Parser) parseOptionalEffects() (*ast.EffectSet, error) {
	if !p.at(token.Amp) {
		return nil, nil
	}
	p.bump()
	return p.parseEffectSet()
}

func (p *Parser) parseFnDecl() (*ast.Fn, error) {
	start := p.cur.Span.Start
	if _, err := p.expect(token.KwFn); err != nil {
		return nil, err
	}
	name, _, err := p.parseIdentName()
	if err != nil {
		return nil, err
	}
	typeParams, err := p.parseTypeParams()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	var retTy ast.TypeExpr
	if p.at(token.Arrow) {
		p.bump()
		retTy, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}
	effects, err := p.parseOptionalEffects()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.Fn{
		Name: name, TypeParams: typeParams, Params: params, RetType: retTy,
		Effects: effects, Body: body, Span: ast.Span{Start: start, End: body.Span.End},
	}, nil
}

func (p *Parser) parseExternFn() (*ast.ExternFn, error) {
	start := p.cur.Span.Start
	if _, err := p.expect(token.KwExtern); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KwFn); err != nil {
		return nil, err
	}
	name, _, err := p.parseIdentName()
	if err != nil {
		return nil, err
	}
	typeParams, err := p.parseTypeParams()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	var retTy ast.TypeExpr
	if p.at(token.Arrow) {
		p.bump()
		retTy, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}
	effects, err := p.parseOptionalEffects()
	if err != nil {
		return nil, err
	}
	end, err := p.expect(token.Semicolon)
	if err != nil {
		return nil, err
	}
	return &ast.ExternFn{
		Name: name, TypeParams: typeParams, Params: params, RetType: retTy,
		Effects: effects, Span: ast.Span{Start: start, End: end.Span.End},
	}, nil
}

func (p *Parser) parseStruct() (*ast.Struct, error) {
	start := p.cur.Span.Start
	if _, err := p.expect(token.KwStruct); err != nil {
		return nil, err
	}
	name, _, err := p.parseIdentName()
	if err != nil {
		return nil, err
	}
	typeParams, err := p.parseTypeParams()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var fields []ast.FieldDecl
	for !p.at(token.RBrace) {
		fstart := p.cur.Span.Start
		fname, _, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		fty, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.FieldDecl{Name: fname, Type: fty, Span: ast.Span{Start: fstart, End: p.prevEnd}})
		if p.at(token.Comma) {
			p.bump()
			continue
		}
		break
	}
	end, err := p.expect(token.RBrace)
	if err != nil {
		return nil, err
	}
	return &ast.Struct{Name: name, TypeParams: typeParams, Fields: fields, Span: ast.Span{Start: start, End: end.Span.End}}, nil
}

func (p *Parser) parseEnum() (*ast.Enum, error) {
	start := p.cur.Span.Start
	if _, err := p.expect(token.KwEnum); err != nil {
		return nil, err
	}
	name, _, err := p.parseIdentName()
	if err != nil {
		return nil, err
	}
	typeParams, err := p.parseTypeParams()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var variants []ast.VariantDecl
	for !p.at(token.RBrace) {
		vstart := p.cur.Span.Start
		vname, _, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		var fields []ast.TypeExpr
		if p.at(token.LParen) {
			p.bump()
			if !p.at(token.RParen) {
				for {
					fty, err := p.parseType()
					if err != nil {
						return nil, err
					}
					fields = append(fields, fty)
					if p.at(token.Comma) {
						p.bump()
						continue
					}
					break
				}
			}
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
		}
		variants = append(variants, ast.VariantDecl{Name: vname, Fields: fields, Span: ast.Span{Start: vstart, End: p.prevEnd}})
		if p.at(token.Comma) {
			p.bump()
			continue
		}
		break
	}
	end, err := p.expect(token.RBrace)
	if err != nil {
		return nil, err
	}
	return &ast.Enum{Name: name, TypeParams: typeParams, Variants: variants, Span: ast.Span{Start: start, End: end.Span.End}}, nil
}

// ======= types =======

func (p *Parser) parseType() (ast.TypeExpr, error) {
	start := p.cur.Span.Start

	if p.at(token.Amp) {
		p.bump()
		inner, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &ast.RefType{Inner: inner, Span: ast.Span{Start: start, End: p.prevEnd}}, nil
	}

	if p.at(token.LParen) {
		p.bump()
		var elems []ast.TypeExpr
		if !p.at(token.RParen) {
			for {
				t, err := p.parseType()
				if err != nil {
					return nil, err
				}
				elems = append(elems, t)
				if p.at(token.Comma) {
					p.bump()
					continue
				}
				break
			}
		}
		end, err := p.expect(token.RParen)
		if err != nil {
			return nil, err
		}
		return &ast.TupleType{Elems: elems, Span: ast.Span{Start: start, End: end.Span.End}}, nil
	}

	if p.at(token.KwFn) {
		p.bump()
		if _, err := p.expect(token.LParen); err != nil {
			return nil, err
		}
		var params []ast.TypeExpr
		if !p.at(token.RParen) {
			for {
				t, err := p.parseType()
				if err != nil {
					return nil, err
				}
				params = append(params, t)
				if p.at(token.Comma) {
					p.bump()
					continue
				}
				break
			}
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Arrow); err != nil {
			return nil, err
		}
		ret, err := p.parseType()
		if err != nil {
			return nil, err
		}
		effects, err := p.parseOptionalEffects()
		if err != nil {
			return nil, err
		}
		return &ast.ArrowType{Params: params, Ret: ret, Effects: effects, Span: ast.Span{Start: start, End: p.prevEnd}}, nil
	}

	segs, err := p.parseTypePath()
	if err != nil {
		return nil, err
	}
	if p.at(token.Lt) {
		p.bump()
		var args []ast.TypeExpr
		for {
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			args = append(args, t)
			if p.at(token.Comma) {
				p.bump()
				continue
			}
			break
		}
		end, err := p.expect(token.Gt)
		if err != nil {
			return nil, err
		}
		return &ast.GenericType{Segments: segs, Args: args, Span: ast.Span{Start: start, End: end.Span.End}}, nil
	}
	return &ast.PathType{Segments: segs, Span: ast.Span{Start: start, End: p.prevEnd}}, nil
}

func (p *Parser) parseTypePath() ([]string, error) {
	name, _, err := p.parseIdentName()
	if err != nil {
		return nil, err
	}
	segs := []string{name}
	for p.at(token.ColonColon) {
		p.bump()
		n, _, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		segs = append(segs, n)
	}
	return segs, nil
}

// ======= blocks and statements =======

func (p *Parser) parseBlock() (*ast.Block, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.exit()

	start := p.cur.Span.Start
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	var tail ast.Expr
	for !p.at(token.RBrace) {
		if p.cur.Kind == token.Error {
			return nil, &Error{KindTag: ErrLexer, Msg: p.cur.Text, SpanV: p.cur.Span}
		}
		switch p.cur.Kind {
		case token.KwLet:
			s, err := p.parseLetStmt()
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, s)
			continue
		case token.KwReturn:
			s, err := p.parseReturnStmt()
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, s)
			continue
		}

		exprStart := p.cur.Span.Start
		expr, err := p.parseExprBP(0)
		if err != nil {
			return nil, err
		}

		switch {
		case p.at(token.Assign):
			target, ok := expr.(*ast.VarExpr)
			if !ok {
				return nil, &Error{KindTag: ErrAssignTargetNotVariable, Msg: "assignment target must be a variable", SpanV: expr.ExprSpan()}
			}
			p.bump()
			value, err := p.parseExprBP(0)
			if err != nil {
				return nil, err
			}
			end, err := p.expect(token.Semicolon)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, &ast.AssignStmt{Target: target, Value: value, Span: ast.Span{Start: exprStart, End: end.Span.End}})
		case p.at(token.Semicolon):
			p.bump()
			stmts = append(stmts, &ast.ExprStmt{Expr: expr, Span: ast.Span{Start: exprStart, End: p.prevEnd}})
		case p.at(token.RBrace):
			tail = expr
		default:
			return nil, &Error{
				KindTag: ErrExpected,
				Msg:     fmt.Sprintf("expected ';', '=', or '}' after expression, found %s", p.cur.Kind),
				SpanV:   p.cur.Span,
			}
		}
		if tail != nil {
			break
		}
	}
	end, err := p.expect(token.RBrace)
	if err != nil {
		return nil, err
	}
	return &ast.Block{Stmts: stmts, Tail: tail, Span: ast.Span{Start: start, End: end.Span.End}}, nil
}

func (p *Parser) parseLetStmt() (ast.Stmt, error) {
	start := p.cur.Span.Start
	if _, err := p.expect(token.KwLet); err != nil {
		return nil, err
	}
	mut := false
	if p.at(token.KwMut) {
		mut = true
		p.bump()
	}
	pat, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	var ty ast.TypeExpr
	if p.at(token.Colon) {
		p.bump()
		ty, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.Assign); err != nil {
		return nil, err
	}
	value, err := p.parseExprBP(0)
	if err != nil {
		return nil, err
	}
	end, err := p.expect(token.Semicolon)
	if err != nil {
		return nil, err
	}
	return &ast.LetStmt{Mut: mut, Pat: pat, Type: ty, Value: value, Span: ast.Span{Start: start, End: end.Span.End}}, nil
}

func (p *Parser) parseReturnStmt() (ast.Stmt, error) {
	start := p.cur.Span.Start
	if _, err := p.expect(token.KwReturn); err != nil {
		return nil, err
	}
	var value ast.Expr
	if !p.at(token.Semicolon) {
		v, err := p.parseExprBP(0)
		if err != nil {
			return nil, err
		}
		value = v
	}
	end, err := p.expect(token.Semicolon)
	if err != nil {
		return nil, err
	}
	return &ast.ReturnStmt{Value: value, Span: ast.Span{Start: start, End: end.Span.End}}, nil
}

func (p *Parser) parseIf() (ast.Expr, error) {
	start := p.cur.Span.Start
	if _, err := p.expect(token.KwIf); err != nil {
		return nil, err
	}
	cond, err := p.parseExprBP(0)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var elseExpr ast.Expr
	if p.at(token.KwElse) {
		p.bump()
		if err := p.enter(); err != nil {
			return nil, err
		}
		if p.at(token.KwIf) {
			nested, err := p.parseIf()
			p.exit()
			if err != nil {
				return nil, err
			}
			elseExpr = nested
		} else {
			blk, err := p.parseBlock()
			p.exit()
			if err != nil {
				return nil, err
			}
			elseExpr = &ast.BlockExpr{Block: blk, Span: blk.Span}
		}
	}
	return &ast.IfExpr{Cond: cond, Then: then, Else: elseExpr, Span: ast.Span{Start: start, End: p.prevEnd}}, nil
}

func (p *Parser) parseWhile() (ast.Expr, error) {
	start := p.cur.Span.Start
	if _, err := p.expect(token.KwWhile); err != nil {
		return nil, err
	}
	cond, err := p.parseExprBP(0)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.WhileExpr{Cond: cond, Body: body, Span: ast.Span{Start: start, End: body.Span.End}}, nil
}

func (p *Parser) parseMatch() (ast.Expr, error) {
	start := p.cur.Span.Start
	if _, err := p.expect(token.KwMatch); err != nil {
		return nil, err
	}
	scrutinee, err := p.parseExprBP(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var arms []ast.MatchArm
	for !p.at(token.RBrace) {
		astart := p.cur.Span.Start
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.FatArrow); err != nil {
			return nil, err
		}
		body, err := p.parseExprBP(0)
		if err != nil {
			return nil, err
		}
		arms = append(arms, ast.MatchArm{Pat: pat, Body: body, Span: ast.Span{Start: astart, End: p.prevEnd}})
		if p.at(token.Comma) {
			p.bump()
			continue
		}
		break
	}
	end, err := p.expect(token.RBrace)
	if err != nil {
		return nil, err
	}
	return &ast.MatchExpr{Scrutinee: scrutinee, Arms: arms, Span: ast.Span{Start: start, End: end.Span.End}}, nil
}

// ======= patterns =======

func (p *Parser) parsePattern() (ast.Pat, error) {
	start := p.cur.Span.Start

	switch p.cur.Kind {
	case token.Ident:
		if p.cur.Text == "_" {
			end := p.cur.Span.End
			p.bump()
			return &ast.WildcardPat{Span: ast.Span{Start: start, End: end}}, nil
		}
		segs, err := p.parseTypePath()
		if err != nil {
			return nil, err
		}
		switch {
		case p.at(token.LParen):
			p.bump()
			var sub []ast.Pat
			if !p.at(token.RParen) {
				for {
					sp, err := p.parsePattern()
					if err != nil {
						return nil, err
					}
					sub = append(sub, sp)
					if p.at(token.Comma) {
						p.bump()
						continue
					}
					break
				}
			}
			end, err := p.expect(token.RParen)
			if err != nil {
				return nil, err
			}
			return &ast.VariantPat{Path: segs, Sub: sub, Span: ast.Span{Start: start, End: end.Span.End}}, nil
		case p.at(token.LBrace):
			p.bump()
			var fields []ast.FieldPat
			for !p.at(token.RBrace) {
				fstart := p.cur.Span.Start
				fname, _, err := p.parseIdentName()
				if err != nil {
					return nil, err
				}
				var fpat ast.Pat
				if p.at(token.Colon) {
					p.bump()
					fpat, err = p.parsePattern()
					if err != nil {
						return nil, err
					}
				} else {
					fpat = &ast.IdentPat{Name: fname, Span: ast.Span{Start: fstart, End: p.prevEnd}}
				}
				fields = append(fields, ast.FieldPat{Name: fname, Pat: fpat, Span: ast.Span{Start: fstart, End: p.prevEnd}})
				if p.at(token.Comma) {
					p.bump()
					continue
				}
				break
			}
			end, err := p.expect(token.RBrace)
			if err != nil {
				return nil, err
			}
			return &ast.StructPat{Path: segs, Fields: fields, Span: ast.Span{Start: start, End: end.Span.End}}, nil
		case len(segs) > 1:
			return &ast.VariantPat{Path: segs, Span: ast.Span{Start: start, End: p.prevEnd}}, nil
		default:
			return &ast.IdentPat{Name: segs[0], Span: ast.Span{Start: start, End: p.prevEnd}}, nil
		}
	case token.Int:
		v := p.cur.IntVal
		p.bump()
		return &ast.LitPat{Kind: ast.LitInt, Int: v, Span: ast.Span{Start: start, End: p.prevEnd}}, nil
	case token.Float:
		v := p.cur.FltVal
		p.bump()
		return &ast.LitPat{Kind: ast.LitFloat, Float: v, Span: ast.Span{Start: start, End: p.prevEnd}}, nil
	case token.String:
		v := p.cur.StrVal
		p.bump()
		return &ast.LitPat{Kind: ast.LitString, String: v, Span: ast.Span{Start: start, End: p.prevEnd}}, nil
	case token.KwTrue:
		p.bump()
		return &ast.LitPat{Kind: ast.LitBool, Bool: true, Span: ast.Span{Start: start, End: p.prevEnd}}, nil
	case token.KwFalse:
		p.bump()
		return &ast.LitPat{Kind: ast.LitBool, Bool: false, Span: ast.Span{Start: start, End: p.prevEnd}}, nil
	case token.LParen:
		p.bump()
		var elems []ast.Pat
		if !p.at(token.RParen) {
			for {
				sp, err := p.parsePattern()
				if err != nil {
					return nil, err
				}
				elems = append(elems, sp)
				if p.at(token.Comma) {
					p.bump()
					continue
				}
				break
			}
		}
		end, err := p.expect(token.RParen)
		if err != nil {
			return nil, err
		}
		if len(elems) == 1 {
			return elems[0], nil
		}
		return &ast.TuplePat{Elems: elems, Span: ast.Span{Start: start, End: end.Span.End}}, nil
	default:
		if p.cur.Kind == token.Error {
			return nil, &Error{KindTag: ErrLexer, Msg: p.cur.Text, SpanV: p.cur.Span}
		}
		return nil, &Error{KindTag: ErrExpected, Msg: fmt.Sprintf("expected pattern, found %s", p.cur.Kind), SpanV: p.cur.Span}
	}
}

// ======= expressions (Pratt parser) =======
//
// Precedence low -> high: || (1,2) && (3,4) == != (5,6) < <= > >= (7,8)
// + - (10,11) * / (20,21); prefix ! - binds at rbp=100; call application
// is postfix and binds tighter than everything.

func (p *Parser) parseExprBP(minBP int) (ast.Expr, error) {
	lhs, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		var op ast.BinOp
		var lbp, rbp int
		isCall := false
		switch p.cur.Kind {
		case token.OrOr:
			op, lbp, rbp = ast.BinOr, 1, 2
		case token.AndAnd:
			op, lbp, rbp = ast.BinAnd, 3, 4
		case token.EqEq:
			op, lbp, rbp = ast.BinEq, 5, 6
		case token.BangEq:
			op, lbp, rbp = ast.BinNe, 5, 6
		case token.Lt:
			op, lbp, rbp = ast.BinLt, 7, 8
		case token.Le:
			op, lbp, rbp = ast.BinLe, 7, 8
		case token.Gt:
			op, lbp, rbp = ast.BinGt, 7, 8
		case token.Ge:
			op, lbp, rbp = ast.BinGe, 7, 8
		case token.Plus:
			op, lbp, rbp = ast.BinAdd, 10, 11
		case token.Minus:
			op, lbp, rbp = ast.BinSub, 10, 11
		case token.Star:
			op, lbp, rbp = ast.BinMul, 20, 21
		case token.Slash:
			op, lbp, rbp = ast.BinDiv, 20, 21
		case token.LParen:
			isCall = true
		default:
			return lhs, nil
		}

		if isCall {
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			lhs = &ast.CallExpr{Callee: lhs, Args: args, Span: ast.Span{Start: lhs.ExprSpan().Start, End: p.prevEnd}}
			continue
		}

		if lbp < minBP {
			return lhs, nil
		}
		p.bump()
		rhs, err := p.parseExprBP(rbp)
		if err != nil {
			return nil, err
		}
		lhs = &ast.BinaryExpr{Op: op, Lhs: lhs, Rhs: rhs, Span: ast.Span{Start: lhs.ExprSpan().Start, End: rhs.ExprSpan().End}}
	}
}

func (p *Parser) parsePrefix() (ast.Expr, error) {
	start := p.cur.Span
	switch p.cur.Kind {
	case token.Bang:
		p.bump()
		if err := p.enter(); err != nil {
			return nil, err
		}
		inner, err := p.parseExprBP(100)
		p.exit()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.UnNot, Operand: inner, Span: ast.Span{Start: start.Start, End: inner.ExprSpan().End}}, nil
	case token.Minus:
		p.bump()
		if err := p.enter(); err != nil {
			return nil, err
		}
		inner, err := p.parseExprBP(100)
		p.exit()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.UnNeg, Operand: inner, Span: ast.Span{Start: start.Start, End: inner.ExprSpan().End}}, nil
	case token.Amp:
		p.bump()
		inner, err := p.parseExprBP(100)
		if err != nil {
			return nil, err
		}
		return &ast.BorrowExpr{Inner: inner, Span: ast.Span{Start: start.Start, End: inner.ExprSpan().End}}, nil
	case token.Int:
		v := p.cur.IntVal
		p.bump()
		return &ast.LitExpr{Kind: ast.LitInt, Int: v, Span: start}, nil
	case token.Float:
		v := p.cur.FltVal
		p.bump()
		return &ast.LitExpr{Kind: ast.LitFloat, Float: v, Span: start}, nil
	case token.String:
		v := p.cur.StrVal
		p.bump()
		return &ast.LitExpr{Kind: ast.LitString, String: v, Span: start}, nil
	case token.KwTrue:
		p.bump()
		return &ast.LitExpr{Kind: ast.LitBool, Bool: true, Span: start}, nil
	case token.KwFalse:
		p.bump()
		return &ast.LitExpr{Kind: ast.LitBool, Bool: false, Span: start}, nil
	case token.KwNil:
		p.bump()
		return &ast.LitExpr{Kind: ast.LitNil, Span: start}, nil
	case token.Ident:
		return p.parsePathOrStructExpr()
	case token.LParen:
		return p.parseParenOrTuple(start)
	case token.LBrace:
		blk, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &ast.BlockExpr{Block: blk, Span: blk.Span}, nil
	case token.KwIf:
		return p.parseIf()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwMatch:
		return p.parseMatch()
	case token.Error:
		return nil, &Error{KindTag: ErrLexer, Msg: p.cur.Text, SpanV: p.cur.Span}
	default:
		return nil, &Error{KindTag: ErrExpected, Msg: fmt.Sprintf("unexpected token in expression: %s", p.cur.Kind), SpanV: p.cur.Span}
	}
}

func (p *Parser) parsePathOrStructExpr() (ast.Expr, error) {
	start := p.cur.Span.Start
	segs, err := p.parseTypePath()
	if err != nil {
		return nil, err
	}
	// Struct expressions require a qualified path; a bare `name {` is a
	// variable followed by a block (so `if x { .. }` stays unambiguous).
	if p.at(token.LBrace) && len(segs) > 1 {
		p.bump()
		var fields []ast.FieldInit
		for !p.at(token.RBrace) {
			fstart := p.cur.Span.Start
			fname, _, err := p.parseIdentName()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.Colon); err != nil {
				return nil, err
			}
			fval, err := p.parseExprBP(0)
			if err != nil {
				return nil, err
			}
			fields = append(fields, ast.FieldInit{Name: fname, Value: fval, Span: ast.Span{Start: fstart, End: fval.ExprSpan().End}})
			if p.at(token.Comma) {
				p.bump()
				continue
			}
			break
		}
		end, err := p.expect(token.RBrace)
		if err != nil {
			return nil, err
		}
		return &ast.StructExpr{Path: segs, Fields: fields, Span: ast.Span{Start: start, End: end.Span.End}}, nil
	}
	end := p.prevEnd
	if len(segs) == 1 {
		return &ast.VarExpr{Name: segs[0], Span: ast.Span{Start: start, End: end}}, nil
	}
	return &ast.PathExpr{Segments: segs, Span: ast.Span{Start: start, End: end}}, nil
}

func (p *Parser) parseParenOrTuple(start ast.Span) (ast.Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.exit()
	p.bump() // '('
	if p.at(token.RParen) {
		end, err := p.expect(token.RParen)
		if err != nil {
			return nil, err
		}
		return &ast.TupleExpr{Span: ast.Span{Start: start.Start, End: end.Span.End}}, nil
	}
	first, err := p.parseExprBP(0)
	if err != nil {
		return nil, err
	}
	if p.at(token.Comma) {
		elems := []ast.Expr{first}
		for p.at(token.Comma) {
			p.bump()
			if p.at(token.RParen) {
				break
			}
			e, err := p.parseExprBP(0)
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		end, err := p.expect(token.RParen)
		if err != nil {
			return nil, err
		}
		return &ast.TupleExpr{Elems: elems, Span: ast.Span{Start: start.Start, End: end.Span.End}}, nil
	}
	end, err := p.expect(token.RParen)
	if err != nil {
		return nil, err
	}
	return &ast.ParenExpr{Inner: first, Span: ast.Span{Start: start.Start, End: end.Span.End}}, nil
}

func (p *Parser) parseCallArgs() ([]ast.Expr, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var args []ast.Expr
	if !p.at(token.RParen) {
		for {
			a, err := p.parseExprBP(0)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.at(token.Comma) {
				p.bump()
				continue
			}
			break
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	return args, nil
}
