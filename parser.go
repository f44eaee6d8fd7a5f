package hemlock

import "fmt"

// precedence levels, lowest to highest.
type precedence int

const (
	precNone precedence = iota
	precAssignment
	precNullCoalesce
	precLogicalOr
	precLogicalAnd
	precEquality
	precComparison
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
	precPrimary
)

var tokenPrecedence = map[TokenKind]precedence{
	TokOrOr:             precLogicalOr,
	TokAndAnd:           precLogicalAnd,
	TokQuestionQuestion: precNullCoalesce,
	TokEq:               precEquality,
	TokNeq:              precEquality,
	TokLt:               precComparison,
	TokLte:              precComparison,
	TokGt:               precComparison,
	TokGte:              precComparison,
	TokPipe:             precBitOr,
	TokCaret:            precBitXor,
	TokAmp:              precBitAnd,
	TokShl:              precShift,
	TokShr:              precShift,
	TokPlus:             precAdditive,
	TokMinus:            precAdditive,
	TokStar:             precMultiplicative,
	TokSlash:            precMultiplicative,
	TokPercent:          precMultiplicative,
}

var assignOps = map[TokenKind]bool{
	TokAssign: true, TokPlusAssign: true, TokMinusAssign: true, TokStarAssign: true,
	TokSlashAssign: true, TokPercentAssign: true, TokAmpAssign: true, TokPipeAssign: true,
	TokCaretAssign: true, TokShlAssign: true, TokShrAssign: true,
}

// Parser is a recursive-descent, Pratt-style parser over a Lexer's
// token stream. It recovers from a bad production by synchronizing to
// the next statement boundary so a single Parse call can surface
// multiple diagnostics.
type Parser struct {
	lex        *Lexer
	file       string
	cur        Token
	prev       Token
	errors     []ParseError
	inFunction bool // tracks whether `self` rewriting applies
	noBraceLit bool // suppresses TypeName{...} parsing in if/while/for/switch heads
}

// parseExprNoBrace parses an expression with typed object-literal
// parsing suppressed, so `if x { ... }` treats the `{` as the
// statement's block rather than attempting to parse `x` as a nominal
// object literal.
func (p *Parser) parseExprNoBrace(prec precedence) (Expr, error) {
	saved := p.noBraceLit
	p.noBraceLit = true
	defer func() { p.noBraceLit = saved }()
	return p.parseExpr(prec)
}

func NewParser(src []byte, file string) *Parser {
	p := &Parser{lex: NewLexer(src, file), file: file}
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.prev = p.cur
	for {
		p.cur = p.lex.Next()
		if p.cur.Kind != TokError {
			break
		}
		p.errors = append(p.errors, ParseError{Message: p.cur.Message, Span: p.cur.Span})
	}
}

func (p *Parser) check(k TokenKind) bool { return p.cur.Kind == k }

func (p *Parser) match(k TokenKind) bool {
	if p.check(k) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(k TokenKind, context string) (Token, error) {
	if p.check(k) {
		t := p.cur
		p.advance()
		return t, nil
	}
	err := ParseError{
		Message: fmt.Sprintf("expected %s in %s, found %s", k, context, p.cur.Kind),
		Span:    p.cur.Span,
		Token:   p.cur.Text,
	}
	p.errors = append(p.errors, err)
	return p.cur, err
}

// synchronize discards tokens until a likely statement boundary, so
// parsing can continue after a production fails.
func (p *Parser) synchronize() {
	for !p.check(TokEOF) {
		if p.prev.Kind == TokSemicolon || p.prev.Kind == TokRBrace {
			return
		}
		switch p.cur.Kind {
		case TokLet, TokConst, TokFn, TokIf, TokWhile, TokFor, TokReturn,
			TokTry, TokThrow, TokImport, TokExport, TokDefine:
			return
		}
		p.advance()
	}
}

// Parse parses the whole input as a Module's top-level statement
// sequence, collecting (rather than halting on) the first error.
func (p *Parser) Parse() (*Module, []ParseError) {
	var stmts []Stmt
	for !p.check(TokEOF) {
		stmt, err := p.parseTopLevel()
		if err != nil {
			p.synchronize()
			continue
		}
		stmts = append(stmts, stmt)
	}
	return &Module{File: p.file, Stmts: stmts}, p.errors
}

func (p *Parser) parseTopLevel() (Stmt, error) {
	switch p.cur.Kind {
	case TokImport:
		return p.parseImport()
	case TokExport:
		return p.parseExport()
	case TokExtern:
		return p.parseExtern()
	default:
		return p.parseStmt()
	}
}

func (p *Parser) parseStmt() (Stmt, error) {
	switch p.cur.Kind {
	case TokLet, TokConst:
		return p.parseLet(false)
	case TokFn:
		return p.parseFn(false)
	case TokDefine:
		return p.parseDefine()
	case TokIf:
		return p.parseIf()
	case TokWhile:
		return p.parseWhile()
	case TokFor:
		return p.parseForIn()
	case TokBreak:
		sp := p.cur.Span
		p.advance()
		p.match(TokSemicolon)
		return &BreakStmt{Sp: sp}, nil
	case TokContinue:
		sp := p.cur.Span
		p.advance()
		p.match(TokSemicolon)
		return &ContinueStmt{Sp: sp}, nil
	case TokReturn:
		return p.parseReturn()
	case TokTry:
		return p.parseTry()
	case TokThrow:
		return p.parseThrow()
	case TokDefer:
		return p.parseDefer()
	case TokSwitch:
		return p.parseSwitch()
	case TokLBrace:
		return p.parseBlock()
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseLet(exported bool) (Stmt, error) {
	start := p.cur.Span
	isConst := p.check(TokConst)
	p.advance() // `let` or `const`
	name, err := p.expect(TokIdent, "let/const binding")
	if err != nil {
		return nil, err
	}
	typ := TagUnknown
	if p.match(TokColon) {
		typ, err = p.parseTypeTag()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokAssign, "let/const binding"); err != nil {
		return nil, err
	}
	value, err := p.parseExpr(precAssignment)
	if err != nil {
		return nil, err
	}
	p.match(TokSemicolon)
	return &LetStmt{
		Sp: NewSpan(start.Start, p.prev.Span.End), Name: name.Text, Type: typ,
		IsConst: isConst, Value: value, Exported: exported,
	}, nil
}

func (p *Parser) parseTypeTag() (TypeTag, error) {
	t, err := p.expect(TokTypeName, "type annotation")
	if err != nil {
		return TagUnknown, err
	}
	tag, ok := TypeTagByName(t.Text)
	if !ok {
		return TagUnknown, ParseError{Message: "unknown type " + t.Text, Span: t.Span}
	}
	return tag, nil
}

func (p *Parser) parseParams() ([]Param, error) {
	if _, err := p.expect(TokLParen, "parameter list"); err != nil {
		return nil, err
	}
	var params []Param
	for !p.check(TokRParen) && !p.check(TokEOF) {
		name, err := p.expect(TokIdent, "parameter")
		if err != nil {
			return nil, err
		}
		typ := TagUnknown
		if p.match(TokColon) {
			typ, err = p.parseTypeTag()
			if err != nil {
				return nil, err
			}
		}
		params = append(params, Param{Name: name.Text, Type: typ})
		if !p.match(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRParen, "parameter list"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseFn(exported bool) (Stmt, error) {
	start := p.cur.Span
	isAsync := p.match(TokAsync)
	if _, err := p.expect(TokFn, "function declaration"); err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent, "function declaration")
	if err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	retType := TagUnknown
	if p.match(TokColon) {
		retType, err = p.parseTypeTag()
		if err != nil {
			return nil, err
		}
	}
	wasInFn := p.inFunction
	p.inFunction = true
	body, err := p.parseBlock()
	p.inFunction = wasInFn
	if err != nil {
		return nil, err
	}
	return &FnStmt{
		Sp: NewSpan(start.Start, p.prev.Span.End), Name: name.Text, Params: params,
		RetType: retType, IsAsync: isAsync, Body: body, Exported: exported,
	}, nil
}

func (p *Parser) parseDefine() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `define`
	switch p.cur.Kind {
	case TokObject:
		return p.parseDefineObject(start)
	case TokEnum:
		return p.parseDefineEnum(start)
	default:
		return nil, p.errUnexpected("object or enum after define")
	}
}

func (p *Parser) errUnexpected(context string) error {
	err := ParseError{Message: "unexpected " + p.cur.Kind.String() + " in " + context, Span: p.cur.Span, Token: p.cur.Text}
	p.errors = append(p.errors, err)
	return err
}

func (p *Parser) parseDefineObject(start Span) (Stmt, error) {
	p.advance() // `object`
	name, err := p.expect(TokIdent, "define object")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace, "define object body"); err != nil {
		return nil, err
	}
	var fields []ObjectField
	var methods []*FnStmt
	for !p.check(TokRBrace) && !p.check(TokEOF) {
		if p.check(TokFn) {
			m, err := p.parseFn(false)
			if err != nil {
				return nil, err
			}
			methods = append(methods, m.(*FnStmt))
			continue
		}
		fname, err := p.expect(TokIdent, "object field")
		if err != nil {
			return nil, err
		}
		optional := p.match(TokQuestion)
		typ := TagUnknown
		if p.match(TokColon) {
			typ, err = p.parseTypeTag()
			if err != nil {
				return nil, err
			}
		}
		var def Expr
		if p.match(TokAssign) {
			def, err = p.parseExpr(precAssignment)
			if err != nil {
				return nil, err
			}
			optional = true
		}
		fields = append(fields, ObjectField{Name: fname.Text, Type: typ, Optional: optional, Default: def})
		p.match(TokComma)
		p.match(TokSemicolon)
	}
	if _, err := p.expect(TokRBrace, "define object body"); err != nil {
		return nil, err
	}
	return &DefineObjectStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Name: name.Text, Fields: fields, Methods: methods}, nil
}

func (p *Parser) parseDefineEnum(start Span) (Stmt, error) {
	p.advance() // `enum`
	name, err := p.expect(TokIdent, "define enum")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace, "define enum body"); err != nil {
		return nil, err
	}
	var members []EnumMember
	for !p.check(TokRBrace) && !p.check(TokEOF) {
		mname, err := p.expect(TokIdent, "enum member")
		if err != nil {
			return nil, err
		}
		var value Expr
		if p.match(TokAssign) {
			value, err = p.parseExpr(precAssignment)
			if err != nil {
				return nil, err
			}
		}
		members = append(members, EnumMember{Name: mname.Text, Value: value})
		if !p.match(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRBrace, "define enum body"); err != nil {
		return nil, err
	}
	return &DefineEnumStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Name: name.Text, Members: members}, nil
}

func (p *Parser) parseBlock() (*BlockStmt, error) {
	start, err := p.expect(TokLBrace, "block")
	if err != nil {
		return nil, err
	}
	var stmts []Stmt
	for !p.check(TokRBrace) && !p.check(TokEOF) {
		s, err := p.parseStmt()
		if err != nil {
			p.synchronize()
			continue
		}
		stmts = append(stmts, s)
	}
	if _, err := p.expect(TokRBrace, "block"); err != nil {
		return nil, err
	}
	return &BlockStmt{Sp: NewSpan(start.Span.Start, p.prev.Span.End), Stmts: stmts}, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `if`
	cond, err := p.parseExprNoBrace(precAssignment)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Cond: cond, Then: then}
	if p.match(TokElse) {
		if p.check(TokIf) {
			elseIf, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			stmt.ElseIf = elseIf.(*IfStmt)
		} else {
			elseBlock, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			stmt.Else = elseBlock
		}
		stmt.Sp = NewSpan(start.Start, p.prev.Span.End)
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `while`
	cond, err := p.parseExprNoBrace(precAssignment)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Cond: cond, Body: body}, nil
}

func (p *Parser) parseForIn() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `for`
	name, err := p.expect(TokIdent, "for-in loop")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokIn, "for-in loop"); err != nil {
		return nil, err
	}
	iter, err := p.parseExprNoBrace(precAssignment)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ForInStmt{Sp: NewSpan(start.Start, p.prev.Span.End), VarName: name.Text, Iter: iter, Body: body}, nil
}

func (p *Parser) parseReturn() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `return`
	var value Expr
	if !p.check(TokSemicolon) && !p.check(TokRBrace) {
		var err error
		value, err = p.parseExpr(precAssignment)
		if err != nil {
			return nil, err
		}
	}
	p.match(TokSemicolon)
	return &ReturnStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Value: value}, nil
}

func (p *Parser) parseTry() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `try`
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &TryStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Body: body}
	if p.match(TokCatch) {
		catchStart := p.prev.Span
		if _, err := p.expect(TokLParen, "catch clause"); err != nil {
			return nil, err
		}
		name, err := p.expect(TokIdent, "catch clause")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "catch clause"); err != nil {
			return nil, err
		}
		cbody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Catch = &CatchClause{Sp: NewSpan(catchStart.Start, p.prev.Span.End), VarName: name.Text, Body: cbody}
	}
	if p.match(TokFinally) {
		fbody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Finally = fbody
	}
	if stmt.Catch == nil && stmt.Finally == nil {
		e := ParseError{Message: "try must have at least one of catch/finally", Span: stmt.Sp}
		p.errors = append(p.errors, e)
		return nil, e
	}
	stmt.Sp = NewSpan(start.Start, p.prev.Span.End)
	return stmt, nil
}

func (p *Parser) parseThrow() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `throw`
	value, err := p.parseExpr(precAssignment)
	if err != nil {
		return nil, err
	}
	p.match(TokSemicolon)
	return &ThrowStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Value: value}, nil
}

func (p *Parser) parseDefer() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `defer`
	call, err := p.parseExpr(precAssignment)
	if err != nil {
		return nil, err
	}
	if _, ok := call.(*CallExpr); !ok {
		e := ParseError{Message: "defer requires a call expression", Span: call.Span()}
		p.errors = append(p.errors, e)
		return nil, e
	}
	p.match(TokSemicolon)
	return &DeferStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Call: call}, nil
}

func (p *Parser) parseSwitch() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `switch`
	subject, err := p.parseExprNoBrace(precAssignment)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace, "switch body"); err != nil {
		return nil, err
	}
	var cases []SwitchCase
	for !p.check(TokRBrace) && !p.check(TokEOF) {
		var values []Expr
		if p.match(TokCase) {
			for {
				v, err := p.parseExpr(precAssignment)
				if err != nil {
					return nil, err
				}
				values = append(values, v)
				if !p.match(TokComma) {
					break
				}
			}
		} else if _, err := p.expect(TokDefault, "switch case"); err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "switch case"); err != nil {
			return nil, err
		}
		var body []Stmt
		for !p.check(TokCase) && !p.check(TokDefault) && !p.check(TokRBrace) && !p.check(TokEOF) {
			s, err := p.parseStmt()
			if err != nil {
				p.synchronize()
				continue
			}
			body = append(body, s)
		}
		cases = append(cases, SwitchCase{Values: values, Body: body})
	}
	if _, err := p.expect(TokRBrace, "switch body"); err != nil {
		return nil, err
	}
	return &SwitchStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Subject: subject, Cases: cases}, nil
}

func (p *Parser) parseExprStmt() (Stmt, error) {
	start := p.cur.Span
	expr, err := p.parseExpr(precAssignment)
	if err != nil {
		return nil, err
	}
	p.match(TokSemicolon)
	sp := NewSpan(start.Start, p.prev.Span.End)
	if a, ok := expr.(*AssignExpr); ok {
		return &AssignStmt{Sp: sp, Target: a.Target, Op: a.Op, Value: a.Value}, nil
	}
	return &ExprStmt{Sp: sp, Expr: expr}, nil
}

func (p *Parser) parseImport() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `import`
	if p.check(TokString) {
		path := p.cur.Text
		p.advance()
		p.match(TokSemicolon)
		return &ImportStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Kind: ImportSideEffect, Path: path}, nil
	}
	if p.match(TokStar) {
		if _, err := p.expect(TokAs, "namespace import"); err != nil {
			return nil, err
		}
		alias, err := p.expect(TokIdent, "namespace import")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokFrom, "namespace import"); err != nil {
			return nil, err
		}
		path, err := p.expect(TokString, "namespace import")
		if err != nil {
			return nil, err
		}
		p.match(TokSemicolon)
		return &ImportStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Kind: ImportNamespace, Path: path.Text, Alias: alias.Text}, nil
	}
	names, err := p.parseImportNames()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokFrom, "named import"); err != nil {
		return nil, err
	}
	path, err := p.expect(TokString, "named import")
	if err != nil {
		return nil, err
	}
	p.match(TokSemicolon)
	return &ImportStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Kind: ImportNamed, Path: path.Text, Names: names}, nil
}

func (p *Parser) parseImportNames() ([]ImportSpec, error) {
	if _, err := p.expect(TokLBrace, "import names"); err != nil {
		return nil, err
	}
	var names []ImportSpec
	for !p.check(TokRBrace) && !p.check(TokEOF) {
		name, err := p.expect(TokIdent, "import name")
		if err != nil {
			return nil, err
		}
		alias := name.Text
		if p.match(TokAs) {
			a, err := p.expect(TokIdent, "import alias")
			if err != nil {
				return nil, err
			}
			alias = a.Text
		}
		names = append(names, ImportSpec{Name: name.Text, Alias: alias})
		if !p.match(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRBrace, "import names"); err != nil {
		return nil, err
	}
	return names, nil
}

func (p *Parser) parseExport() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `export`
	switch p.cur.Kind {
	case TokLet, TokConst:
		decl, err := p.parseLet(true)
		if err != nil {
			return nil, err
		}
		return &ExportStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Kind: ExportDecl, Decl: decl}, nil
	case TokFn:
		decl, err := p.parseFn(true)
		if err != nil {
			return nil, err
		}
		return &ExportStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Kind: ExportDecl, Decl: decl}, nil
	case TokLBrace:
		names, err := p.parseImportNames()
		if err != nil {
			return nil, err
		}
		if p.match(TokFrom) {
			path, err := p.expect(TokString, "re-export")
			if err != nil {
				return nil, err
			}
			p.match(TokSemicolon)
			return &ExportStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Kind: ExportFrom, Names: names, Path: path.Text}, nil
		}
		p.match(TokSemicolon)
		return &ExportStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Kind: ExportNames, Names: names}, nil
	default:
		return nil, p.errUnexpected("export")
	}
}

func (p *Parser) parseExtern() (Stmt, error) {
	start := p.cur.Span
	p.advance() // `extern`
	if _, err := p.expect(TokFn, "extern declaration"); err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent, "extern declaration")
	if err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	retType := TagUnknown
	if p.match(TokColon) {
		retType, err = p.parseTypeTag()
		if err != nil {
			return nil, err
		}
	}
	library := ""
	if p.match(TokFrom) {
		lib, err := p.expect(TokString, "extern library clause")
		if err != nil {
			return nil, err
		}
		library = lib.Text
	}
	p.match(TokSemicolon)
	return &ExternStmt{Sp: NewSpan(start.Start, p.prev.Span.End), Name: name.Text, Params: params, RetType: retType, Library: library}, nil
}

// ---- Expressions (Pratt) ----

func (p *Parser) parseExpr(minPrec precedence) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		if assignOps[p.cur.Kind] && minPrec <= precAssignment {
			op := p.cur.Kind
			p.advance()
			right, err := p.parseExpr(precAssignment)
			if err != nil {
				return nil, err
			}
			left = &AssignExpr{Sp: NewSpan(left.Span().Start, right.Span().End), Target: left, Op: op, Value: right}
			continue
		}
		if p.check(TokQuestionQuestion) && minPrec <= precNullCoalesce {
			p.advance()
			right, err := p.parseExpr(precNullCoalesce + 1)
			if err != nil {
				return nil, err
			}
			left = &NullCoalesceExpr{Sp: NewSpan(left.Span().Start, right.Span().End), Left: left, Right: right}
			continue
		}
		if p.cur.Kind == TokAndAnd || p.cur.Kind == TokOrOr {
			prec := tokenPrecedence[p.cur.Kind]
			if prec < minPrec {
				break
			}
			op := p.cur.Kind
			p.advance()
			right, err := p.parseExpr(prec + 1)
			if err != nil {
				return nil, err
			}
			left = &LogicalExpr{Sp: NewSpan(left.Span().Start, right.Span().End), Op: op, Left: left, Right: right}
			continue
		}
		prec, ok := tokenPrecedence[p.cur.Kind]
		if !ok || prec < minPrec {
			break
		}
		op := p.cur.Kind
		p.advance()
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Sp: NewSpan(left.Span().Start, right.Span().End), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	switch p.cur.Kind {
	case TokBang, TokMinus, TokTilde:
		op := p.cur.Kind
		start := p.cur.Span
		p.advance()
		value, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Sp: NewSpan(start.Start, value.Span().End), Op: op, Value: value}, nil
	case TokAwait:
		start := p.cur.Span
		p.advance()
		value, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &AwaitExpr{Sp: NewSpan(start.Start, value.Span().End), Value: value}, nil
	case TokRef:
		start := p.cur.Span
		p.advance()
		value, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &RefExpr{Sp: NewSpan(start.Start, value.Span().End), Value: value}, nil
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Kind {
		case TokLParen:
			p.advance()
			var args []Expr
			for !p.check(TokRParen) && !p.check(TokEOF) {
				a, err := p.parseExpr(precAssignment)
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if !p.match(TokComma) {
					break
				}
			}
			end, err := p.expect(TokRParen, "call arguments")
			if err != nil {
				return nil, err
			}
			expr = &CallExpr{Sp: NewSpan(expr.Span().Start, end.Span.End), Callee: expr, Args: args}
		case TokLBracket:
			p.advance()
			idx, err := p.parseExpr(precAssignment)
			if err != nil {
				return nil, err
			}
			end, err := p.expect(TokRBracket, "index expression")
			if err != nil {
				return nil, err
			}
			expr = &IndexExpr{Sp: NewSpan(expr.Span().Start, end.Span.End), Recv: expr, Index: idx}
		case TokDot:
			p.advance()
			name, err := p.expect(TokIdent, "property access")
			if err != nil {
				return nil, err
			}
			expr = &PropertyExpr{Sp: NewSpan(expr.Span().Start, name.Span.End), Recv: expr, Name: name.Text}
		case TokQuestionDot:
			p.advance()
			name, err := p.expect(TokIdent, "optional property access")
			if err != nil {
				return nil, err
			}
			expr = &OptPropertyExpr{Sp: NewSpan(expr.Span().Start, name.Span.End), Recv: expr, Name: name.Text}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.cur
	switch tok.Kind {
	case TokInt:
		p.advance()
		return &IntLit{Sp: tok.Span, Val: tok.IntVal}, nil
	case TokFloat:
		p.advance()
		return &FloatLit{Sp: tok.Span, Val: tok.FltVal}, nil
	case TokString:
		p.advance()
		return &StringLit{Sp: tok.Span, Val: tok.Text}, nil
	case TokRune:
		p.advance()
		return &RuneLit{Sp: tok.Span, Val: tok.RuneVal}, nil
	case TokTrue:
		p.advance()
		return &BoolLit{Sp: tok.Span, Val: true}, nil
	case TokFalse:
		p.advance()
		return &BoolLit{Sp: tok.Span, Val: false}, nil
	case TokNull:
		p.advance()
		return &NullLit{Sp: tok.Span}, nil
	case TokSelf:
		p.advance()
		return &SelfExpr{Sp: tok.Span}, nil
	case TokIdent:
		p.advance()
		if !p.noBraceLit && p.check(TokLBrace) {
			return p.parseObjectLit(tok.Text)
		}
		return &IdentExpr{Sp: tok.Span, Name: tok.Text, SelfRewrite: p.inFunction && tok.Text == "self"}, nil
	case TokLParen:
		p.advance()
		expr, err := p.parseExpr(precAssignment)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "parenthesized expression"); err != nil {
			return nil, err
		}
		return expr, nil
	case TokLBracket:
		return p.parseArrayLit()
	case TokLBrace:
		return p.parseObjectLit("")
	case TokFn, TokAsync:
		return p.parseFnExpr()
	default:
		return nil, p.errUnexpected("expression")
	}
}

func (p *Parser) parseArrayLit() (Expr, error) {
	start := p.cur.Span
	p.advance() // `[`
	var elems []Expr
	for !p.check(TokRBracket) && !p.check(TokEOF) {
		e, err := p.parseExpr(precAssignment)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if !p.match(TokComma) {
			break
		}
	}
	end, err := p.expect(TokRBracket, "array literal")
	if err != nil {
		return nil, err
	}
	return &ArrayLit{Sp: NewSpan(start.Start, end.Span.End), Elems: elems}, nil
}

func (p *Parser) parseObjectLit(typeName string) (Expr, error) {
	start := p.cur.Span
	p.advance() // `{`
	var fields []ObjectFieldLit
	for !p.check(TokRBrace) && !p.check(TokEOF) {
		name, err := p.expect(TokIdent, "object literal field")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "object literal field"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr(precAssignment)
		if err != nil {
			return nil, err
		}
		fields = append(fields, ObjectFieldLit{Name: name.Text, Value: value})
		if !p.match(TokComma) {
			break
		}
	}
	end, err := p.expect(TokRBrace, "object literal")
	if err != nil {
		return nil, err
	}
	return &ObjectLit{Sp: NewSpan(start.Start, end.Span.End), TypeName: typeName, Fields: fields}, nil
}

func (p *Parser) parseFnExpr() (Expr, error) {
	start := p.cur.Span
	isAsync := p.match(TokAsync)
	if _, err := p.expect(TokFn, "function expression"); err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	retType := TagUnknown
	if p.match(TokColon) {
		retType, err = p.parseTypeTag()
		if err != nil {
			return nil, err
		}
	}
	wasInFn := p.inFunction
	p.inFunction = true
	body, err := p.parseBlock()
	p.inFunction = wasInFn
	if err != nil {
		return nil, err
	}
	return &FnExpr{Sp: NewSpan(start.Start, p.prev.Span.End), Params: params, RetType: retType, IsAsync: isAsync, Body: body}, nil
}
