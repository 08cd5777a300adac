package compiler

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Precedence-climbing parser for the PHP subset
// ---------------------------------------------------------------------------

// Parser parses PHP source into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	prevEnd   Position
	errors    []*CompileError
	name      string
	primed    bool
}

// bailout unwinds the parser after the first error.
type bailout struct{}

// NewParser creates a new parser for the given input.
func NewParser(name, input string) *Parser {
	return newParser(name, NewLexer(input))
}

func newParser(name string, l *Lexer) *Parser {
	return &Parser{lexer: l, name: name}
}

// prime reads two tokens to fill curToken and peekToken. It runs inside
// the entry points so that a lexical error on the first token is
// recovered like any other.
func (p *Parser) prime() {
	if p.primed {
		return
	}
	p.primed = true
	p.nextToken()
	p.nextToken()
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.prevEnd = p.curToken.Pos
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
	if p.curToken.Type == TokenError {
		p.errorAt(p.curToken.Pos, "%s", p.curToken.Literal)
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect consumes the current token if it matches, otherwise fails.
func (p *Parser) expect(t TokenType) Token {
	tok := p.curToken
	if tok.Type != t {
		p.errorf("syntax error, unexpected %s, expecting %s", describe(tok), t)
	}
	p.nextToken()
	return tok
}

func describe(t Token) string {
	switch t.Type {
	case TokenEOF:
		return "end of file"
	case TokenVariable:
		return "'$" + t.Literal + "'"
	case TokenIdentifier, TokenInteger, TokenFloat:
		return "'" + t.Literal + "'"
	case TokenString, TokenTemplate:
		return "string"
	}
	return "'" + t.Type.String() + "'"
}

// errorf records a parse error at the current token and abandons the
// parse.
func (p *Parser) errorf(format string, args ...any) {
	p.errorAt(p.curToken.Pos, format, args...)
}

func (p *Parser) errorAt(pos Position, format string, args ...any) {
	p.errors = append(p.errors, newCompileError(p.name, pos, format, args...))
	panic(bailout{})
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []*CompileError {
	return p.errors
}

func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.prevEnd}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses a whole file.
func (p *Parser) ParseProgram() (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			prog, err = nil, p.errors[0]
		}
	}()
	p.prime()
	prog = &Program{Name: p.name}
	for !p.curTokenIs(TokenEOF) {
		if s := p.parseStatement(); s != nil {
			prog.Stmts = append(prog.Stmts, s)
		}
	}
	return prog, nil
}

// ParseExpression parses a single expression that must span the input.
func (p *Parser) ParseExpression() (expr Expr, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			expr, err = nil, p.errors[0]
		}
	}()
	p.prime()
	expr = p.parseExpr(precLowest)
	if !p.curTokenIs(TokenEOF) {
		p.errorf("syntax error, unexpected %s", describe(p.curToken))
	}
	return expr, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Stmt {
	start := p.curToken.Pos
	switch p.curToken.Type {
	case TokenInlineHTML:
		text := p.curToken.Literal
		p.nextToken()
		return &InlineHTML{SpanVal: p.span(start), Text: text}
	case TokenSemicolon:
		p.nextToken()
		return nil
	case TokenLBrace:
		return p.parseBlock()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		p.nextToken()
		cond := p.parseParenExpr()
		body := p.parseStatementOrEmpty()
		return &WhileStmt{SpanVal: p.span(start), Cond: cond, Body: body}
	case TokenDo:
		p.nextToken()
		body := p.parseStatementOrEmpty()
		p.expect(TokenWhile)
		cond := p.parseParenExpr()
		p.endStatement()
		return &DoWhileStmt{SpanVal: p.span(start), Body: body, Cond: cond}
	case TokenFor:
		return p.parseFor()
	case TokenForeach:
		return p.parseForeach()
	case TokenBreak, TokenContinue:
		isBreak := p.curTokenIs(TokenBreak)
		keyword := strings.ToLower(p.curToken.Literal)
		p.nextToken()
		depth := 1
		if p.curTokenIs(TokenInteger) {
			n, err := strconv.Atoi(p.curToken.Literal)
			if err != nil || n < 1 {
				p.errorf("'%s' operator accepts only positive numbers", keyword)
			}
			depth = n
			p.nextToken()
		}
		p.endStatement()
		if isBreak {
			return &BreakStmt{SpanVal: p.span(start), Depth: depth}
		}
		return &ContinueStmt{SpanVal: p.span(start), Depth: depth}
	case TokenReturn:
		p.nextToken()
		var value Expr
		if !p.curTokenIs(TokenSemicolon) && !p.curTokenIs(TokenEOF) {
			value = p.parseExpr(precLowest)
		}
		p.endStatement()
		return &ReturnStmt{SpanVal: p.span(start), Value: value}
	case TokenEcho:
		p.nextToken()
		args := p.parseExprList()
		p.endStatement()
		return &EchoStmt{SpanVal: p.span(start), Args: args}
	case TokenFunction:
		if p.peekTokenIs(TokenIdentifier) || p.peekTokenIs(TokenAmp) {
			return p.parseFunction()
		}
		p.errorf("closures are not supported")
	case TokenGlobal:
		p.nextToken()
		var names []string
		for {
			names = append(names, p.expect(TokenVariable).Literal)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		p.endStatement()
		return &GlobalStmt{SpanVal: p.span(start), Names: names}
	case TokenStatic:
		return p.parseStatic()
	case TokenUnset:
		p.nextToken()
		p.expect(TokenLParen)
		var targets []Expr
		for !p.curTokenIs(TokenRParen) {
			targets = append(targets, p.parseExpr(precLowest))
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		p.expect(TokenRParen)
		p.endStatement()
		return &UnsetStmt{SpanVal: p.span(start), Targets: targets}
	case TokenClass:
		p.errorf("classes are not supported")
	}
	expr := p.parseExpr(precLowest)
	p.endStatement()
	return &ExprStmt{SpanVal: p.span(start), Expr: expr}
}

// endStatement consumes a statement terminator. A close tag counts as
// one, and so does the end of the file.
func (p *Parser) endStatement() {
	switch p.curToken.Type {
	case TokenSemicolon:
		p.nextToken()
	case TokenEOF, TokenInlineHTML:
	default:
		p.errorf("syntax error, unexpected %s, expecting ';'", describe(p.curToken))
	}
}

func (p *Parser) parseBlock() *Block {
	start := p.expect(TokenLBrace).Pos
	var stmts []Stmt
	for !p.curTokenIs(TokenRBrace) {
		if p.curTokenIs(TokenEOF) {
			p.errorf("syntax error, unexpected end of file")
		}
		if s := p.parseStatement(); s != nil {
			stmts = append(stmts, s)
		}
	}
	p.nextToken()
	return &Block{SpanVal: p.span(start), Stmts: stmts}
}

// parseStatementOrEmpty parses a loop or branch body, where a lone ';' is
// an empty body.
func (p *Parser) parseStatementOrEmpty() Stmt {
	start := p.curToken.Pos
	if s := p.parseStatement(); s != nil {
		return s
	}
	return &Block{SpanVal: p.span(start)}
}

func (p *Parser) parseParenExpr() Expr {
	p.expect(TokenLParen)
	e := p.parseExpr(precLowest)
	p.expect(TokenRParen)
	return e
}

func (p *Parser) parseIf() Stmt {
	start := p.expect(TokenIf).Pos
	n := &IfStmt{Cond: p.parseParenExpr()}
	n.Then = p.parseStatementOrEmpty()
	for {
		switch {
		case p.curTokenIs(TokenElseif):
			p.nextToken()
			cond := p.parseParenExpr()
			n.ElseIfs = append(n.ElseIfs, ElseIf{Cond: cond, Body: p.parseStatementOrEmpty()})
			continue
		case p.curTokenIs(TokenElse) && p.peekTokenIs(TokenIf):
			p.nextToken()
			p.nextToken()
			cond := p.parseParenExpr()
			n.ElseIfs = append(n.ElseIfs, ElseIf{Cond: cond, Body: p.parseStatementOrEmpty()})
			continue
		case p.curTokenIs(TokenElse):
			p.nextToken()
			n.Else = p.parseStatementOrEmpty()
		}
		break
	}
	n.SpanVal = p.span(start)
	return n
}

func (p *Parser) parseFor() Stmt {
	start := p.expect(TokenFor).Pos
	p.expect(TokenLParen)
	n := &ForStmt{}
	n.Init = p.parseOptionalExprList(TokenSemicolon)
	p.expect(TokenSemicolon)
	n.Cond = p.parseOptionalExprList(TokenSemicolon)
	p.expect(TokenSemicolon)
	n.Step = p.parseOptionalExprList(TokenRParen)
	p.expect(TokenRParen)
	n.Body = p.parseStatementOrEmpty()
	n.SpanVal = p.span(start)
	return n
}

func (p *Parser) parseOptionalExprList(end TokenType) []Expr {
	if p.curTokenIs(end) {
		return nil
	}
	return p.parseExprList()
}

func (p *Parser) parseExprList() []Expr {
	list := []Expr{p.parseExpr(precLowest)}
	for p.curTokenIs(TokenComma) {
		p.nextToken()
		list = append(list, p.parseExpr(precLowest))
	}
	return list
}

func (p *Parser) parseForeach() Stmt {
	start := p.expect(TokenForeach).Pos
	p.expect(TokenLParen)
	n := &ForeachStmt{Expr: p.parseExpr(precLowest)}
	p.expect(TokenAs)
	byRef, target := p.parseForeachTarget()
	if p.curTokenIs(TokenArrow) {
		if byRef {
			p.errorf("key element cannot be a reference")
		}
		p.nextToken()
		n.Key = target
		byRef, target = p.parseForeachTarget()
	}
	n.Value, n.ByRef = target, byRef
	p.expect(TokenRParen)
	n.Body = p.parseStatementOrEmpty()
	n.SpanVal = p.span(start)
	return n
}

func (p *Parser) parseForeachTarget() (bool, Expr) {
	byRef := false
	if p.curTokenIs(TokenAmp) {
		byRef = true
		p.nextToken()
	}
	if p.curTokenIs(TokenList) {
		return byRef, p.parseList()
	}
	return byRef, p.parsePostfix(false)
}

func (p *Parser) parseFunction() Stmt {
	start := p.expect(TokenFunction).Pos
	n := &FunctionDecl{}
	if p.curTokenIs(TokenAmp) {
		n.ReturnByRef = true
		p.nextToken()
	}
	n.Name = p.expect(TokenIdentifier).Literal
	p.expect(TokenLParen)
	seen := make(map[string]bool)
	for !p.curTokenIs(TokenRParen) {
		var param ParamDecl
		if p.curTokenIs(TokenAmp) {
			param.ByRef = true
			p.nextToken()
		}
		tok := p.expect(TokenVariable)
		param.Name = tok.Literal
		if seen[param.Name] {
			p.errorAt(tok.Pos, "Redefinition of parameter $%s", param.Name)
		}
		seen[param.Name] = true
		if p.curTokenIs(TokenAssign) {
			p.nextToken()
			param.Default = p.parseExpr(precTernary)
		}
		n.Params = append(n.Params, param)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRParen)
	n.Body = p.parseBlock().Stmts
	n.SpanVal = p.span(start)
	return n
}

func (p *Parser) parseStatic() Stmt {
	start := p.expect(TokenStatic).Pos
	n := &StaticStmt{}
	for {
		v := StaticVar{Name: p.expect(TokenVariable).Literal}
		if p.curTokenIs(TokenAssign) {
			p.nextToken()
			v.Init = p.parseExpr(precTernary)
		}
		n.Vars = append(n.Vars, v)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.endStatement()
	n.SpanVal = p.span(start)
	return n
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Binding powers, lowest first.
const (
	precLowest = iota
	precOr
	precXor
	precAnd
	precAssign
	precTernary
	precCoalesce
	precOrOr
	precAndAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precCompare
	precShift
	precAdditive
	precMultiplicative
	precUnary
)

var binaryPrec = map[TokenType]int{
	TokenOr:           precOr,
	TokenXor:          precXor,
	TokenAnd:          precAnd,
	TokenQuestion:     precTernary,
	TokenCoalesce:     precCoalesce,
	TokenOrOr:         precOrOr,
	TokenAndAnd:       precAndAnd,
	TokenPipe:         precBitOr,
	TokenCaret:        precBitXor,
	TokenAmp:          precBitAnd,
	TokenEq:           precEquality,
	TokenNe:           precEquality,
	TokenIdentical:    precEquality,
	TokenNotIdentical: precEquality,
	TokenLt:           precCompare,
	TokenLe:           precCompare,
	TokenGt:           precCompare,
	TokenGe:           precCompare,
	TokenShl:          precShift,
	TokenShr:          precShift,
	TokenPlus:         precAdditive,
	TokenMinus:        precAdditive,
	TokenDot:          precAdditive,
	TokenStar:         precMultiplicative,
	TokenSlash:        precMultiplicative,
	TokenPercent:      precMultiplicative,
}

// compoundOps maps compound assignment tokens to their binary operator.
var compoundOps = map[TokenType]TokenType{
	TokenPlusAssign:     TokenPlus,
	TokenMinusAssign:    TokenMinus,
	TokenMulAssign:      TokenStar,
	TokenDivAssign:      TokenSlash,
	TokenModAssign:      TokenPercent,
	TokenConcatAssign:   TokenDot,
	TokenAndAssign:      TokenAmp,
	TokenOrAssign:       TokenPipe,
	TokenXorAssign:      TokenCaret,
	TokenShlAssign:      TokenShl,
	TokenShrAssign:      TokenShr,
	TokenCoalesceAssign: TokenCoalesce,
}

// parseExpr parses operators binding tighter than min.
func (p *Parser) parseExpr(min int) Expr {
	left := p.parseUnary()
	for {
		op := p.curToken.Type
		prec, ok := binaryPrec[op]
		if !ok || prec <= min {
			return left
		}
		start := left.Span().Start
		p.nextToken()
		switch op {
		case TokenQuestion:
			t := &Ternary{Cond: left}
			if p.curTokenIs(TokenColon) {
				p.nextToken()
			} else {
				t.Then = p.parseExpr(precAssign - 1)
				p.expect(TokenColon)
			}
			t.Else = p.parseExpr(precTernary)
			t.SpanVal = p.span(start)
			left = t
		case TokenCoalesce:
			// Right associative.
			right := p.parseExpr(prec - 1)
			left = &BinaryOp{SpanVal: p.span(start), Op: op, Left: left, Right: right}
		default:
			right := p.parseExpr(prec)
			left = &BinaryOp{SpanVal: p.span(start), Op: op, Left: left, Right: right}
		}
	}
}

func (p *Parser) parseUnary() Expr {
	start := p.curToken.Pos
	switch p.curToken.Type {
	case TokenBang, TokenMinus, TokenPlus, TokenTilde, TokenAt:
		op := p.curToken.Type
		p.nextToken()
		operand := p.parseUnary()
		return &UnaryOp{SpanVal: p.span(start), Op: op, Operand: operand}
	case TokenCast:
		typ := p.curToken.Literal
		p.nextToken()
		operand := p.parseUnary()
		return &Cast{SpanVal: p.span(start), Type: typ, Operand: operand}
	case TokenInc, TokenDec:
		inc := p.curTokenIs(TokenInc)
		p.nextToken()
		target := p.parsePostfix(false)
		if !isTarget(target) {
			p.errorAt(start, "syntax error, cannot increment or decrement this expression")
		}
		return &IncDec{SpanVal: p.span(start), Target: target, Inc: inc, Prefix: true}
	case TokenPrint:
		p.nextToken()
		arg := p.parseExpr(precAssign - 1)
		return &Print{SpanVal: p.span(start), Arg: arg}
	}
	return p.parsePostfix(true)
}

// isTarget reports whether e can be written to.
func isTarget(e Expr) bool {
	switch e.(type) {
	case *Variable, *VarVar, *Index:
		return true
	}
	return false
}

// parsePostfix parses a primary expression with its index and call
// suffixes. With assign set, a following assignment operator is consumed.
func (p *Parser) parsePostfix(assign bool) Expr {
	start := p.curToken.Pos
	e := p.parsePrimary()
	for {
		switch p.curToken.Type {
		case TokenLBracket:
			p.nextToken()
			var key Expr
			if !p.curTokenIs(TokenRBracket) {
				key = p.parseExpr(precLowest)
			}
			p.expect(TokenRBracket)
			e = &Index{SpanVal: p.span(start), Base: e, Key: key}
			continue
		case TokenLParen:
			switch e.(type) {
			case *Variable, *VarVar, *Index:
				args := p.parseArgs()
				e = &Call{SpanVal: p.span(start), Callee: e, Args: args}
				continue
			}
		}
		break
	}

	if p.curTokenIs(TokenInc) || p.curTokenIs(TokenDec) {
		if isTarget(e) {
			inc := p.curTokenIs(TokenInc)
			p.nextToken()
			return &IncDec{SpanVal: p.span(start), Target: e, Inc: inc}
		}
	}
	if !assign {
		return e
	}

	if arr, ok := e.(*ArrayLiteral); ok && p.curTokenIs(TokenAssign) {
		e = p.arrayToList(arr)
	}
	switch p.curToken.Type {
	case TokenAssign:
		if !isTarget(e) {
			if _, ok := e.(*ListExpr); !ok {
				p.errorf("syntax error, unexpected '='")
			}
		}
		p.nextToken()
		if p.curTokenIs(TokenAmp) {
			p.nextToken()
			src := p.parseUnary()
			return &RefAssign{SpanVal: p.span(start), Target: e, Source: src}
		}
		value := p.parseExpr(precAssign - 1)
		return &Assign{SpanVal: p.span(start), Target: e, Value: value}
	default:
		op, ok := compoundOps[p.curToken.Type]
		if !ok {
			break
		}
		if !isTarget(e) {
			p.errorf("syntax error, unexpected '%s'", p.curToken.Literal)
		}
		p.nextToken()
		value := p.parseExpr(precAssign - 1)
		return &CompoundAssign{SpanVal: p.span(start), Op: op, Target: e, Value: value}
	}
	if _, ok := e.(*ListExpr); ok {
		p.errorf("syntax error, list() must be assigned to")
	}
	return e
}

func (p *Parser) parseArgs() []Expr {
	p.expect(TokenLParen)
	var args []Expr
	for !p.curTokenIs(TokenRParen) {
		args = append(args, p.parseExpr(precLowest))
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRParen)
	return args
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	start := tok.Pos
	switch tok.Type {
	case TokenVariable:
		p.nextToken()
		return &Variable{SpanVal: p.span(start), Name: tok.Literal}
	case TokenDollar:
		return p.parseVarVar()
	case TokenInteger:
		p.nextToken()
		return p.intLiteral(tok)
	case TokenFloat:
		p.nextToken()
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil && !isRangeErr(err) {
			p.errorAt(start, "invalid number %s", tok.Literal)
		}
		return &FloatLiteral{SpanVal: p.span(start), Value: f}
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: p.span(start), Value: tok.Literal}
	case TokenTemplate:
		p.nextToken()
		return p.interpolation(tok)
	case TokenIdentifier:
		p.nextToken()
		if p.curTokenIs(TokenLParen) {
			args := p.parseArgs()
			return &Call{SpanVal: p.span(start), Name: tok.Literal, Args: args}
		}
		return &ConstFetch{SpanVal: p.span(start), Name: tok.Literal}
	case TokenArray:
		p.nextToken()
		p.expect(TokenLParen)
		items := p.parseArrayItems(TokenRParen)
		return &ArrayLiteral{SpanVal: p.span(start), Items: items}
	case TokenLBracket:
		p.nextToken()
		items := p.parseArrayItems(TokenRBracket)
		return &ArrayLiteral{SpanVal: p.span(start), Items: items}
	case TokenList:
		return p.parseList()
	case TokenIsset:
		p.nextToken()
		args := p.parseArgs()
		if len(args) == 0 {
			p.errorAt(start, "syntax error, isset() needs at least one argument")
		}
		return &Isset{SpanVal: p.span(start), Args: args}
	case TokenEmpty:
		p.nextToken()
		p.expect(TokenLParen)
		arg := p.parseExpr(precLowest)
		p.expect(TokenRParen)
		return &Empty{SpanVal: p.span(start), Arg: arg}
	case TokenLParen:
		p.nextToken()
		e := p.parseExpr(precLowest)
		p.expect(TokenRParen)
		return e
	case TokenFunction:
		p.errorf("closures are not supported")
	case TokenClass:
		p.errorf("classes are not supported")
	}
	p.errorf("syntax error, unexpected %s", describe(tok))
	return nil
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// intLiteral converts an integer token. Literals too large for an int
// become floats.
func (p *Parser) intLiteral(tok Token) Expr {
	s := tok.Literal
	base := 10
	digits := s
	switch {
	case len(s) > 2 && (s[1] == 'x' || s[1] == 'X'):
		base, digits = 16, s[2:]
	case len(s) > 2 && (s[1] == 'b' || s[1] == 'B'):
		base, digits = 2, s[2:]
	case len(s) > 1 && s[0] == '0':
		base, digits = 8, s[1:]
		if strings.ContainsAny(digits, "89") {
			p.errorAt(tok.Pos, "Invalid numeric literal")
		}
	}
	sp := Span{Start: tok.Pos, End: tok.Pos}
	n, err := strconv.ParseInt(digits, base, 64)
	if err == nil {
		return &IntLiteral{SpanVal: sp, Value: n}
	}
	f := 0.0
	for _, c := range digits {
		f = f*float64(base) + float64(hexValue(byte(c)))
	}
	if math.IsInf(f, 0) {
		f = math.Inf(1)
	}
	return &FloatLiteral{SpanVal: sp, Value: f}
}

// interpolation parses the embedded expressions of a template string.
func (p *Parser) interpolation(tok Token) Expr {
	n := &Interpolation{SpanVal: Span{Start: tok.Pos, End: tok.Pos}}
	for _, part := range tok.Parts {
		if part.Expr == "" {
			n.Parts = append(n.Parts, &StringLiteral{SpanVal: n.SpanVal, Value: part.Text})
			continue
		}
		pos := part.Pos
		if pos.Line == 0 {
			pos = tok.Pos
		}
		sub := newParser(p.name, newCodeLexer(part.Expr, pos))
		e, err := sub.ParseExpression()
		if err != nil {
			p.errors = append(p.errors, err.(*CompileError))
			panic(bailout{})
		}
		n.Parts = append(n.Parts, e)
	}
	return n
}

// parseVarVar parses $$name, $${expr} and ${expr}.
func (p *Parser) parseVarVar() Expr {
	start := p.expect(TokenDollar).Pos
	var name Expr
	switch p.curToken.Type {
	case TokenVariable:
		tok := p.curToken
		p.nextToken()
		name = &Variable{SpanVal: p.span(tok.Pos), Name: tok.Literal}
	case TokenDollar:
		name = p.parseVarVar()
	case TokenLBrace:
		p.nextToken()
		name = p.parseExpr(precLowest)
		p.expect(TokenRBrace)
	default:
		p.errorf("syntax error, unexpected %s, expecting variable", describe(p.curToken))
	}
	return &VarVar{SpanVal: p.span(start), Name: name}
}

// parseArrayItems parses entries up to end. Empty entries are kept with a
// nil value so that [$a, , $b] = ... can become a list.
func (p *Parser) parseArrayItems(end TokenType) []ArrayItem {
	var items []ArrayItem
	for !p.curTokenIs(end) {
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			items = append(items, ArrayItem{})
			continue
		}
		var item ArrayItem
		if p.curTokenIs(TokenAmp) {
			p.nextToken()
			item.ByRef = true
			item.Value = p.parsePostfix(false)
		} else {
			item.Value = p.parseExpr(precLowest)
			if p.curTokenIs(TokenArrow) {
				p.nextToken()
				item.Key = item.Value
				if p.curTokenIs(TokenAmp) {
					p.nextToken()
					item.ByRef = true
					item.Value = p.parsePostfix(false)
				} else {
					item.Value = p.parseExpr(precLowest)
				}
			}
		}
		items = append(items, item)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(end)
	return items
}

// arrayToList reinterprets a short array literal as a destructuring
// target.
func (p *Parser) arrayToList(arr *ArrayLiteral) *ListExpr {
	l := &ListExpr{SpanVal: arr.SpanVal}
	for _, item := range arr.Items {
		if item.ByRef {
			p.errorAt(arr.SpanVal.Start, "Cannot assign reference to non referenceable value")
		}
		target := item.Value
		if nested, ok := target.(*ArrayLiteral); ok {
			target = p.arrayToList(nested)
		}
		if target != nil && !isTarget(target) {
			if _, ok := target.(*ListExpr); !ok {
				p.errorAt(arr.SpanVal.Start, "Assignments can only happen to writable values")
			}
		}
		l.Items = append(l.Items, ListItem{Key: item.Key, Target: target})
	}
	return l
}

func (p *Parser) parseList() *ListExpr {
	start := p.expect(TokenList).Pos
	p.expect(TokenLParen)
	l := &ListExpr{}
	for !p.curTokenIs(TokenRParen) {
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			l.Items = append(l.Items, ListItem{})
			continue
		}
		var item ListItem
		if p.curTokenIs(TokenList) {
			item.Target = p.parseList()
		} else {
			item.Target = p.parsePostfix(false)
			if p.curTokenIs(TokenArrow) {
				p.nextToken()
				item.Key = item.Target
				if p.curTokenIs(TokenList) {
					item.Target = p.parseList()
				} else {
					item.Target = p.parsePostfix(false)
				}
			}
		}
		if _, ok := item.Target.(*ListExpr); !ok && !isTarget(item.Target) {
			p.errorf("Assignments can only happen to writable values")
		}
		l.Items = append(l.Items, item)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	p.expect(TokenRParen)
	l.SpanVal = p.span(start)
	return l
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Parse parses a source file. name identifies the file in errors.
func Parse(name, src string) (*Program, error) {
	prog, err := NewParser(name, src).ParseProgram()
	if err != nil {
		return nil, err
	}
	prog.Source = src
	return prog, nil
}
