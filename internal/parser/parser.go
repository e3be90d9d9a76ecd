// Package parser implements the recursive-descent grammar of spec.md §4.2:
//
//	Program  ::= FuncDef+
//	FuncDef  ::= TYPE_INT ident {TYPE_INT ident}* '57' Op '{'
//	Op       ::= If | While | Block | (VarDef | Assign | Print | Return) '57'
//	Block    ::= '57' Op+ '{'
//	If       ::= '57?' Or '57' Op
//	While    ::= '57!' Or '57' Op
//	VarDef   ::= TYPE_INT ident '==' Or
//	Assign   ::= ident '==' Or
//	Print    ::= '.' (Or | string)
//	Return   ::= Or
//	Or       ::= And {or And}*
//	And      ::= Cmp {and Cmp}*
//	Cmp      ::= AddSub {(< | <= | > | >= | = | !=) AddSub}*
//	AddSub   ::= MulDiv {(glyph-'+' | glyph-'-') MulDiv}*
//	MulDiv   ::= Pow {(glyph-'*' | glyph-'/') Pow}*
//	Pow      ::= Unary {'^' Unary}*
//	Unary    ::= '-'? Call
//	Call     ::= builtin '(' Or ')' | ident '{' Or* '57' | ident | number | '(' Or ')' | '{'
//
// A bare '{' in primary-expression position means READ (spec.md §4.2's
// Builtin production: "'{' means READ") — it reads one float from stdin
// via the stdlib's IN_FLOAT routine. This reuses the same glyph Block and
// FuncDef use as a closing marker; the two never collide because this
// production only fires where an expression is expected, never at
// statement-sequence level.
//
// A trailing '57' token closes every simple statement; If/While/Block
// close on their own ('57' Op or a literal '{') and never get a second
// one. This mirrors the original SyntaxParser.cpp's GetOp dispatch, where
// only the bare-statement branches call ConsumeToken(FIFTY_SEVEN) after
// parsing, never the control-flow branches.
//
// '{' is a closing marker, not an opener — the language inverts it the
// same way it inverts the arithmetic glyphs (spec.md §9), so FuncDef and
// Block both end on a TokLBrace rather than a TokRBrace. TokRBrace is
// never produced by the grammar; it is accepted as a token but unused.
package parser

import (
	"github.com/xyproto/c57/internal/ast"
	cerrors "github.com/xyproto/c57/internal/errors"
	"github.com/xyproto/c57/internal/lexer"
	"github.com/xyproto/c57/internal/names"
)

var builtinOps = map[lexer.TokenKind]ast.Operation{
	lexer.TokSqrt: ast.OpSqrt,
	lexer.TokSin:  ast.OpSin,
	lexer.TokCos:  ast.OpCos,
	lexer.TokTan:  ast.OpTan,
	lexer.TokCot:  ast.OpCot,
}

// Parser consumes a token stream and builds an *ast.Node tree, interning
// every identifier and string it sees into a single shared Table so the
// resulting AST's NameIndex fields are all valid against that one Table.
type Parser struct {
	file   string
	toks   []lexer.Token
	pos    int
	global *names.Table
	local  *names.Table // frame table of the function currently being parsed; nil at top level
}

// New returns a Parser over toks (as produced by lexer.Tokenize), reporting
// diagnostics against file.
func New(file string, toks []lexer.Token) *Parser {
	return &Parser{file: file, toks: toks, global: names.New()}
}

// ParseProgram parses a complete source file and returns the function-chain
// root plus the shared name table the returned tree's indices are valid
// against.
func ParseProgram(file string, toks []lexer.Token) (*ast.Node, *names.Table, error) {
	p := New(file, toks)
	root, err := p.parseProgram()
	if err != nil {
		return nil, nil, err
	}
	return root, p.global, nil
}

func (p *Parser) cur() lexer.Token {
	return p.toks[p.pos]
}

func (p *Parser) at(k lexer.TokenKind) bool {
	return p.cur().Kind == k
}

func (p *Parser) atOffset(n int, k lexer.TokenKind) bool {
	idx := p.pos + n
	if idx >= len(p.toks) {
		return false
	}
	return p.toks[idx].Kind == k
}

func (p *Parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) loc() cerrors.Location {
	t := p.cur()
	return cerrors.Location{File: p.file, Line: t.Line, Column: t.Column}
}

func (p *Parser) expect(k lexer.TokenKind) (lexer.Token, error) {
	if !p.at(k) {
		return lexer.Token{}, cerrors.Syntax(p.loc(), "expected %s, found %s", k, p.cur().Kind)
	}
	return p.advance(), nil
}

// parseProgram parses FuncDef+ until the token stream is exhausted.
func (p *Parser) parseProgram() (*ast.Node, error) {
	if p.at(lexer.TokEOF) {
		return nil, cerrors.Syntax(p.loc(), "empty program: at least one function definition is required")
	}
	var head, tail *ast.Node
	for !p.at(lexer.TokEOF) {
		fn, err := p.parseFuncDef()
		if err != nil {
			return nil, err
		}
		link := ast.NewOp(ast.OpNewFunc, fn, nil)
		if head == nil {
			head = link
		} else {
			tail.Right = link
		}
		tail = link
	}
	return head, nil
}

// parseFuncDef parses one "TYPE_INT ident {TYPE_INT ident}* '57' Op '{'".
// The function's parameters are declared into a fresh local frame table so
// VarDef/Assign/identifier-use resolve against it while parsing the body,
// and are also threaded into the returned tree as a right-leaning COMMA
// chain (the same shape a call's argument list uses) so that internal/lower
// can rebuild an equivalent frame table purely from the AST — the local
// table built here is only good for the lifetime of this parse; the
// frontend/backend split re-parses the printed AST in a separate process
// with a fresh, unrelated names.Table, so the parameter order has to
// survive as tree shape, not as a side effect on this Parser's tables.
func (p *Parser) parseFuncDef() (*ast.Node, error) {
	if _, err := p.expect(lexer.TokTypeInt); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(lexer.TokIdent)
	if err != nil {
		return nil, err
	}
	funcIdx := p.global.Intern(nameTok.Text)

	local := names.New()
	prevLocal := p.local
	p.local = local
	defer func() { p.local = prevLocal }()

	var paramHead, paramTail *ast.Node
	for p.at(lexer.TokTypeInt) {
		p.advance()
		paramTok, err := p.expect(lexer.TokIdent)
		if err != nil {
			return nil, err
		}
		paramIdx := p.global.Intern(paramTok.Text)
		local.Declare(paramTok.Text)
		link := ast.NewOp(ast.OpComma, ast.NewName(paramIdx), nil)
		if paramHead == nil {
			paramHead = link
		} else {
			paramTail.Right = link
		}
		paramTail = link
	}

	if _, err := p.expect(lexer.TokBlockEnd); err != nil {
		return nil, err
	}
	body, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	// A Block body already consumed its own closing '{' as part of its
	// own production; any other body shape (a bare statement, If, or
	// While) leaves the function's terminating '{' for us to consume.
	if !isBlock(body) {
		if _, err := p.expect(lexer.TokLBrace); err != nil {
			return nil, err
		}
	}

	header := ast.NewOp(ast.OpComma, ast.NewName(funcIdx), paramHead)
	return ast.NewOp(ast.OpFunc, header, body), nil
}

func isBlock(n *ast.Node) bool {
	return n != nil && n.Kind == ast.KindOperation && n.Op == ast.OpLineEnd
}

// parseOp parses a single statement-or-control-structure per the Op
// production.
func (p *Parser) parseOp() (*ast.Node, error) {
	switch {
	case p.at(lexer.TokIf):
		return p.parseIf()
	case p.at(lexer.TokWhile):
		return p.parseWhile()
	case p.at(lexer.TokBlockEnd):
		return p.parseBlock()
	case p.at(lexer.TokDot):
		n, err := p.parsePrint()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokBlockEnd); err != nil {
			return nil, err
		}
		return n, nil
	case p.at(lexer.TokTypeInt):
		n, err := p.parseVarDef()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokBlockEnd); err != nil {
			return nil, err
		}
		return n, nil
	case p.at(lexer.TokIdent) && p.atOffset(1, lexer.TokAssignDecl):
		n, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokBlockEnd); err != nil {
			return nil, err
		}
		return n, nil
	default:
		n, err := p.parseReturn()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokBlockEnd); err != nil {
			return nil, err
		}
		return n, nil
	}
}

// parseBlock parses "'57' Op+ '{'", building a right-leaning LINE_END
// chain: each node's Left is one statement, Right is either the next
// LINE_END node or nil for the last statement. Block owns its closing
// '{' outright, per the grammar's own production — a statement sequence
// is done as soon as the lookahead is '{', and that token is consumed
// here rather than left for the caller.
func (p *Parser) parseBlock() (*ast.Node, error) {
	if _, err := p.expect(lexer.TokBlockEnd); err != nil {
		return nil, err
	}
	var head, tail *ast.Node
	for {
		stmt, err := p.parseOp()
		if err != nil {
			return nil, err
		}
		link := ast.NewOp(ast.OpLineEnd, stmt, nil)
		if head == nil {
			head = link
		} else {
			tail.Right = link
		}
		tail = link
		if p.at(lexer.TokLBrace) {
			p.advance()
			break
		}
	}
	return head, nil
}

func (p *Parser) parseIf() (*ast.Node, error) {
	p.advance() // '57?'
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokBlockEnd); err != nil {
		return nil, err
	}
	body, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	return ast.NewOp(ast.OpIf, cond, body), nil
}

func (p *Parser) parseWhile() (*ast.Node, error) {
	p.advance() // '57!'
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokBlockEnd); err != nil {
		return nil, err
	}
	body, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	return ast.NewOp(ast.OpWhile, cond, body), nil
}

// parseVarDef declares a new local in the active frame table and parses
// its initializer.
func (p *Parser) parseVarDef() (*ast.Node, error) {
	p.advance() // TYPE_INT
	nameTok, err := p.expect(lexer.TokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokAssignDecl); err != nil {
		return nil, err
	}
	value, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	idx := p.global.Intern(nameTok.Text)
	if p.local != nil {
		p.local.Declare(nameTok.Text)
	}
	return ast.NewOp(ast.OpTypeInt, ast.NewName(idx), value), nil
}

// parseAssign reassigns an already-declared local.
func (p *Parser) parseAssign() (*ast.Node, error) {
	nameTok, err := p.expect(lexer.TokIdent)
	if err != nil {
		return nil, err
	}
	if p.local == nil || !p.declaredLocally(nameTok.Text) {
		return nil, cerrors.Semantic(cerrors.Location{File: p.file, Line: nameTok.Line, Column: nameTok.Column},
			"assignment to undeclared identifier %q", nameTok.Text)
	}
	if _, err := p.expect(lexer.TokAssignDecl); err != nil {
		return nil, err
	}
	value, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	idx := p.global.Intern(nameTok.Text)
	return ast.NewOp(ast.OpAssign, ast.NewName(idx), value), nil
}

func (p *Parser) declaredLocally(text string) bool {
	if p.local == nil {
		return false
	}
	_, ok := p.local.Lookup(text)
	return ok
}

// parsePrint parses "'.' (Or | string)". A bare string literal prints
// verbatim; anything else is evaluated and printed as a number.
func (p *Parser) parsePrint() (*ast.Node, error) {
	p.advance() // '.'
	if p.at(lexer.TokString) {
		tok := p.advance()
		idx := p.global.Intern(tok.Text)
		return ast.NewOp(ast.OpPrint, ast.NewStringLiteral(idx), nil), nil
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	return ast.NewOp(ast.OpPrint, expr, nil), nil
}

func (p *Parser) parseReturn() (*ast.Node, error) {
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	return ast.NewOp(ast.OpReturn, expr, nil), nil
}

func (p *Parser) parseOr() (*ast.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.NewOp(ast.OpOr, left, right)
	}
	return left, nil
}

func (p *Parser) parseAnd() (*ast.Node, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokAnd) {
		p.advance()
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = ast.NewOp(ast.OpAnd, left, right)
	}
	return left, nil
}

var cmpOps = map[lexer.TokenKind]ast.Operation{
	lexer.TokLess:      ast.OpLess,
	lexer.TokLessEq:    ast.OpLessEq,
	lexer.TokGreater:   ast.OpGreater,
	lexer.TokGreaterEq: ast.OpGreaterEq,
	lexer.TokEq:        ast.OpEq,
	lexer.TokNotEq:     ast.OpNotEq,
}

func (p *Parser) parseCmp() (*ast.Node, error) {
	left, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := cmpOps[p.cur().Kind]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseAddSub()
		if err != nil {
			return nil, err
		}
		left = ast.NewOp(op, left, right)
	}
}

func (p *Parser) parseAddSub() (*ast.Node, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokOpAdd) || p.at(lexer.TokOpSub) {
		op := ast.OpAdd
		if p.at(lexer.TokOpSub) {
			op = ast.OpSub
		}
		p.advance()
		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		left = ast.NewOp(op, left, right)
	}
	return left, nil
}

func (p *Parser) parseMulDiv() (*ast.Node, error) {
	left, err := p.parsePow()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokOpMul) || p.at(lexer.TokOpDiv) {
		op := ast.OpMul
		if p.at(lexer.TokOpDiv) {
			op = ast.OpDiv
		}
		p.advance()
		right, err := p.parsePow()
		if err != nil {
			return nil, err
		}
		left = ast.NewOp(op, left, right)
	}
	return left, nil
}

func (p *Parser) parsePow() (*ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.TokPow) {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.NewOp(ast.OpPow, left, right)
	}
	return left, nil
}

// parseUnary handles a leading glyph-'-' (TokOpAdd) as numeric negation.
// The same token drives binary ADD one level up; here, with no left
// operand yet parsed, it can only be a prefix sign.
func (p *Parser) parseUnary() (*ast.Node, error) {
	if p.at(lexer.TokOpAdd) {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewOp(ast.OpUnarySub, operand, nil), nil
	}
	return p.parseCall()
}

func (p *Parser) parseCall() (*ast.Node, error) {
	tok := p.cur()

	if op, ok := builtinOps[tok.Kind]; ok {
		p.advance()
		if _, err := p.expect(lexer.TokLParen); err != nil {
			return nil, err
		}
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokRParen); err != nil {
			return nil, err
		}
		return ast.NewOp(op, arg, nil), nil
	}

	switch tok.Kind {
	case lexer.TokNumber:
		p.advance()
		return ast.NewNumber(tok.Number), nil
	case lexer.TokLBrace:
		// A bare '{' in primary-expression position means READ: the
		// grammar reuses the block-closing glyph for stdin input,
		// distinguished unambiguously here since this production only
		// runs where an expression is expected.
		p.advance()
		return ast.NewOp(ast.OpRead, nil, nil), nil
	case lexer.TokLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case lexer.TokIdent:
		p.advance()
		if p.at(lexer.TokLBrace) {
			return p.parseFuncCall(tok)
		}
		if !p.declaredLocally(tok.Text) {
			return nil, cerrors.Semantic(cerrors.Location{File: p.file, Line: tok.Line, Column: tok.Column},
				"use of undeclared identifier %q", tok.Text)
		}
		return ast.NewName(p.global.Intern(tok.Text)), nil
	}

	return nil, cerrors.Syntax(p.loc(), "unexpected token %s in expression", tok.Kind)
}

// parseFuncCall parses the Pascal-style argument list "'{' Or* '57'" —
// a user call is delimited the same way a function/statement block is
// (UserCall -> Name '{' (Or)* '57', matching GetMadeFuncCall in the
// original's SyntaxParser.cpp), reserving real parentheses for the
// built-in transcendental calls parsed in parseCall. No comma
// separates arguments, matching the caller's own left-to-right push
// order. Arguments are threaded into a right-leaning COMMA chain, the
// same shape LINE_END uses for statement sequences.
func (p *Parser) parseFuncCall(nameTok lexer.Token) (*ast.Node, error) {
	if _, err := p.expect(lexer.TokLBrace); err != nil {
		return nil, err
	}
	var head, tail *ast.Node
	for !p.at(lexer.TokBlockEnd) {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		link := ast.NewOp(ast.OpComma, arg, nil)
		if head == nil {
			head = link
		} else {
			tail.Right = link
		}
		tail = link
	}
	if _, err := p.expect(lexer.TokBlockEnd); err != nil {
		return nil, err
	}
	idx := p.global.Intern(nameTok.Text)
	return ast.NewOp(ast.OpFuncCall, ast.NewName(idx), head), nil
}
