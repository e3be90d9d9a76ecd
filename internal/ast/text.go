// text.go implements the textual prefix AST format of spec.md §6, used
// between the frontend and backend programs:
//
//	node  ::= "nil" | "(" value node node ")"
//	value ::= integer | identifier | '"' string '"' | operation-keyword
package ast

import (
	"fmt"
	"strconv"
	"strings"

	cerrors "github.com/xyproto/c57/internal/errors"
	"github.com/xyproto/c57/internal/names"
)

// Print renders n in prefix format, resolving Name/StringLiteral indices
// to their text via tbl.
func Print(n *Node, tbl *names.Table) string {
	var sb strings.Builder
	writeNode(&sb, n, tbl)
	return sb.String()
}

func writeNode(sb *strings.Builder, n *Node, tbl *names.Table) {
	if n == nil {
		sb.WriteString("nil")
		return
	}
	sb.WriteByte('(')
	switch n.Kind {
	case KindNumber:
		fmt.Fprintf(sb, "%d", n.Number)
	case KindName:
		sb.WriteString(tbl.Get(n.NameIndex).Text)
	case KindStringLiteral:
		fmt.Fprintf(sb, "%q", tbl.Get(n.NameIndex).Text)
	case KindOperation:
		sb.WriteString(n.Op.String())
	}
	sb.WriteByte(' ')
	writeNode(sb, n.Left, tbl)
	sb.WriteByte(' ')
	writeNode(sb, n.Right, tbl)
	sb.WriteByte(')')
}

// Parse reads the prefix format produced by Print, interning any
// identifier or string-literal text it encounters into a fresh Table (the
// one returned alongside the tree).
func Parse(text string) (*Node, *names.Table, error) {
	p := &textParser{src: text, tbl: names.New()}
	p.skipSpace()
	n, err := p.parseNode()
	if err != nil {
		return nil, nil, err
	}
	return n, p.tbl, nil
}

type textParser struct {
	src string
	pos int
	tbl *names.Table
}

func (p *textParser) loc() cerrors.Location {
	return cerrors.Location{File: "<ast>", Line: 1, Column: p.pos + 1}
}

func (p *textParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\n' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *textParser) parseNode() (*Node, error) {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], "nil") {
		p.pos += 3
		return nil, nil
	}
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return nil, cerrors.Syntax(p.loc(), "expected '(' or 'nil'")
	}
	p.pos++ // '('

	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	left, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	right, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != ')' {
		return nil, cerrors.Syntax(p.loc(), "expected ')'")
	}
	p.pos++ // ')'

	value.Left = left
	value.Right = right
	return value, nil
}

// parseValue parses the head token of a "(" value node node ")" form and
// returns a Node whose Left/Right are left zero-valued for the caller to
// fill in.
func (p *textParser) parseValue() (*Node, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, cerrors.Syntax(p.loc(), "unexpected end of input")
	}

	if p.src[p.pos] == '"' {
		s, err := p.parseQuoted()
		if err != nil {
			return nil, err
		}
		return NewStringLiteral(p.tbl.Intern(s)), nil
	}

	start := p.pos
	for p.pos < len(p.src) && !isValueTerminator(p.src[p.pos]) {
		p.pos++
	}
	tok := p.src[start:p.pos]
	if tok == "" {
		return nil, cerrors.Syntax(p.loc(), "empty value token")
	}

	if op, ok := OperationByName(tok); ok {
		return NewOp(op, nil, nil), nil
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return NewNumber(n), nil
	}
	return NewName(p.tbl.Intern(tok)), nil
}

func isValueTerminator(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '(' || c == ')'
}

func (p *textParser) parseQuoted() (string, error) {
	if p.src[p.pos] != '"' {
		return "", cerrors.Syntax(p.loc(), "expected opening quote")
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '"' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return "", cerrors.Syntax(p.loc(), "unterminated string in AST text")
	}
	s := p.src[start:p.pos]
	p.pos++ // closing quote
	return s, nil
}

// EqualNamed reports whether a (interned into ta) and b (interned into tb)
// are structurally identical, comparing Name/StringLiteral leaves by their
// resolved text rather than by table index — the two trees need not have
// been interned in the same order.
func EqualNamed(a *Node, ta *names.Table, b *Node, tb *names.Table) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNumber:
		if a.Number != b.Number {
			return false
		}
	case KindName, KindStringLiteral:
		if ta.Get(a.NameIndex).Text != tb.Get(b.NameIndex).Text {
			return false
		}
	case KindOperation:
		if a.Op != b.Op {
			return false
		}
	}
	return EqualNamed(a.Left, ta, b.Left, tb) && EqualNamed(a.Right, ta, b.Right, tb)
}
