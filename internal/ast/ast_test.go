package ast

import (
	"testing"

	"github.com/xyproto/c57/internal/names"
)

func buildSample() (*Node, *names.Table) {
	tbl := names.New()
	x := tbl.Declare("x")
	hello := tbl.Intern("Hi there")
	tree := NewOp(OpAssign,
		NewName(x),
		NewOp(OpAdd, NewNumber(2), NewNumber(3)),
	)
	printNode := NewOp(OpPrint, NewStringLiteral(hello), nil)
	_ = printNode
	return tree, tbl
}

func TestRoundTripPrefixFormat(t *testing.T) {
	tree, tbl := buildSample()
	text := Print(tree, tbl)

	got, gotTbl, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !EqualNamed(tree, tbl, got, gotTbl) {
		t.Fatalf("round trip mismatch: printed %q, reparsed as %q", text, Print(got, gotTbl))
	}
}

func TestRoundTripNilChildren(t *testing.T) {
	tree := NewOp(OpReturn, NewNumber(57), nil)
	tbl := names.New()
	text := Print(tree, tbl)
	if text != "(RETURN (57 nil nil) nil)" {
		t.Fatalf("unexpected rendering: %s", text)
	}
	got, gotTbl, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !EqualNamed(tree, tbl, got, gotTbl) {
		t.Fatalf("round trip mismatch for nil-child node")
	}
}

func TestRoundTripStringLiteral(t *testing.T) {
	tbl := names.New()
	idx := tbl.Intern("Hi")
	tree := NewOp(OpPrint, NewStringLiteral(idx), nil)
	text := Print(tree, tbl)
	got, gotTbl, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !EqualNamed(tree, tbl, got, gotTbl) {
		t.Fatalf("round trip mismatch: %s", text)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"(ADD nil",
		"ADD nil nil)",
		"()",
	}
	for _, c := range cases {
		if _, _, err := Parse(c); err == nil {
			t.Errorf("expected error parsing %q", c)
		}
	}
}
