package lower

import (
	"testing"

	"github.com/xyproto/c57/internal/ast"
	"github.com/xyproto/c57/internal/elfwriter"
	"github.com/xyproto/c57/internal/ir"
	"github.com/xyproto/c57/internal/lexer"
	"github.com/xyproto/c57/internal/parser"
)

// findCallAddrs returns the Addr of every CALL node targeting a fixed
// stdlib address (as opposed to a NeedPatch CALL to a user function).
func findCallAddrs(res *Result) []uint64 {
	var addrs []uint64
	res.Program.Each(func(h ir.Handle, n *ir.Node) {
		if n.Op == ir.CALL && n.Operand1.Kind == ir.OperandAddr {
			addrs = append(addrs, n.Operand1.Addr)
		}
	})
	return addrs
}

func TestReadLowersToInFloatCall(t *testing.T) {
	res := mustLower(t, `575757 main 57 57 575757 x == { 57 . x 57 {`)
	addrs := findCallAddrs(res)
	if len(addrs) != 2 {
		t.Fatalf("expected two stdlib CALLs (IN_FLOAT, OUT_FLOAT), got %d: %v", len(addrs), addrs)
	}
	if addrs[0] != elfwriter.StdlibInFloat {
		t.Fatalf("expected first stdlib CALL to target IN_FLOAT (0x%x), got 0x%x", elfwriter.StdlibInFloat, addrs[0])
	}
}

func TestPrintStringLowersToStrOutThenCall(t *testing.T) {
	res := mustLower(t, `575757 main 57 . "hi" 57 {`)
	var sawStrOut bool
	var strOutThenCall bool
	res.Program.Each(func(h ir.Handle, n *ir.Node) {
		if n.Op == ir.STR_OUT {
			sawStrOut = true
			next := res.Program.Next(h)
			nextNode := res.Program.Node(next)
			if nextNode.Op == ir.CALL && nextNode.Operand1.Kind == ir.OperandAddr && nextNode.Operand1.Addr == elfwriter.StdlibOutString {
				strOutThenCall = true
			}
		}
	})
	if !sawStrOut {
		t.Fatal("expected a STR_OUT node for the printed string literal")
	}
	if !strOutThenCall {
		t.Fatal("expected STR_OUT to be immediately followed by a CALL to StdlibOutString")
	}
}

func TestPowLowersToStdlibCall(t *testing.T) {
	res := mustLower(t, `575757 main 57 2 ^ 3 57 {`)
	addrs := findCallAddrs(res)
	if len(addrs) != 1 || addrs[0] != elfwriter.StdlibPow {
		t.Fatalf("expected a single CALL to StdlibPow (0x%x), got %v", elfwriter.StdlibPow, addrs)
	}
}

func mustLower(t *testing.T, src string) *Result {
	t.Helper()
	toks, err := lexer.New("t.57", []byte(src)).Tokenize()
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	root, tbl, err := parser.ParseProgram("t.57", toks)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res, err := Lower(root, tbl)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return res
}

// TestEveryLabelReferenceResolves covers spec.md's label-resolution
// completeness invariant: after patchJumps, every NeedPatch node carries
// a non-zero JumpTarget.
func TestEveryLabelReferenceResolves(t *testing.T) {
	res := mustLower(t, `575757 main 57 57 575757 x == 1 57 57? x 57 575757 y == 2 57 57! x 57 575757 z == 3 57 {`)
	res.Program.Each(func(h ir.Handle, n *ir.Node) {
		if n.NeedPatch && n.JumpTarget == 0 {
			t.Fatalf("node %d (%s) needed a patch but has no jump target", h, n.Op)
		}
	})
}

// TestEveryPushHasAMatchingPop covers spec.md's frame-balance invariant:
// lowerExpr's pushXMM0 is always paired with exactly one F_POP of that
// same slot by its consumer, so frame slots never leak. A var
// declaration's own push is the one documented exception (it becomes the
// variable's permanent slot rather than being popped), so this body
// returns the expression instead of binding it to a name.
func TestEveryPushHasAMatchingPop(t *testing.T) {
	res := mustLower(t, `575757 main 57 1 + 2 * 3 57 {`)
	pushes, pops := 0, 0
	res.Program.Each(func(h ir.Handle, n *ir.Node) {
		switch n.Op {
		case ir.F_PUSH:
			pushes++
		case ir.F_POP:
			pops++
		}
	})
	if pushes != pops {
		t.Fatalf("unbalanced frame: %d pushes, %d pops", pushes, pops)
	}
}

// TestNestedBinaryExpressionPopsCorrectSlots guards against a bug where a
// binary operator's left-operand slot was recovered by counting back from
// the end of the whole expression (assuming both sides allocate exactly
// one slot each), which breaks as soon as one side is itself a nested
// binary expression that allocates several. With the glyph inversion,
// "1 + 2 * 3" is SUB(1, DIV(2, 3)): the inner DIV is lowered as the outer
// SUB's right operand and burns three slots of its own (for 2, 3, and the
// quotient) between the SUB's left operand (1, slot -8) and the point
// where the SUB finally pops its operands — so the SUB's left-operand pop
// must still land on -8, not on whatever slot was allocated last.
func TestNestedBinaryExpressionPopsCorrectSlots(t *testing.T) {
	res := mustLower(t, `575757 main 57 1 + 2 * 3 57 {`)
	var pops []int64
	res.Program.Each(func(h ir.Handle, n *ir.Node) {
		if n.Op == ir.F_POP && n.Operand2.Kind == ir.OperandMemory {
			pops = append(pops, n.Operand2.Disp)
		}
	})
	if len(pops) != 5 {
		t.Fatalf("expected 5 F_POPs (2 inner DIV + 2 outer SUB + 1 RETURN), got %d: %v", len(pops), pops)
	}
	// pops[2] and pops[3] are the outer SUB's right/left operand loads,
	// coming after the inner DIV has already popped and re-pushed its
	// result. The left operand (the literal 1) was pushed first and must
	// still resolve to that same first slot.
	if pops[3] != -8 {
		t.Fatalf("outer SUB's left-operand pop should read slot -8 (the value 1), got %d", pops[3])
	}
	if pops[2] != -32 {
		t.Fatalf("outer SUB's right-operand pop should read slot -32 (the inner DIV's result), got %d", pops[2])
	}
}

func TestFunctionCallLowersArgumentsAndCall(t *testing.T) {
	res := mustLower(t, `575757 add 575757 a 575757 b 57 a + b 57 {
575757 main 57 add { 1 2 57 57 {`)
	var sawCall bool
	res.Program.Each(func(h ir.Handle, n *ir.Node) {
		if n.Op == ir.CALL && n.Operand1.Label == "add" {
			sawCall = true
		}
	})
	if !sawCall {
		t.Fatal("expected a CALL to add")
	}
}

// TestFunctionParametersSurviveTextRoundTrip is the direct regression
// test for the frontend/backend split: it prints a parsed AST to text
// with one Table, reads it back with a completely fresh, unrelated
// Table (exactly what cmd/backend does after reading cmd/frontend's
// output), and confirms the two-parameter function still lowers with
// both parameters resolving to distinct frame slots. Before OpFunc's
// header carried the parameter chain, a function's parameters existed
// only as a side effect on the parser's own names.Table and could not
// survive this round trip at all.
func TestFunctionParametersSurviveTextRoundTrip(t *testing.T) {
	toks, err := lexer.New("t.57", []byte(`575757 add 575757 a 575757 b 57 a + b 57 {
575757 main 57 add { 3 4 57 57 {`)).Tokenize()
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	root, tbl, err := parser.ParseProgram("t.57", toks)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	text := ast.Print(root, tbl)
	roundTripped, roundTrippedTbl, err := ast.Parse(text)
	if err != nil {
		t.Fatalf("re-parse printed AST: %v", err)
	}

	res, err := Lower(roundTripped, roundTrippedTbl)
	if err != nil {
		t.Fatalf("lower round-tripped AST: %v", err)
	}

	var paramOffsets []int64
	res.Program.Each(func(h ir.Handle, n *ir.Node) {
		if n.Op == ir.F_PUSH && n.Operand1.Kind == ir.OperandMemory && n.Operand1.Disp > 0 {
			paramOffsets = append(paramOffsets, n.Operand1.Disp)
		}
		if n.Op == ir.F_POP && n.Operand2.Kind == ir.OperandMemory && n.Operand2.Disp > 0 {
			paramOffsets = append(paramOffsets, n.Operand2.Disp)
		}
	})
	if len(paramOffsets) == 0 {
		t.Fatal("expected add's body to reference its parameters by a positive (caller-frame) rbp offset")
	}
	seen := make(map[int64]bool)
	for _, off := range paramOffsets {
		seen[off] = true
	}
	if !seen[16] || !seen[32] {
		t.Fatalf("expected parameter offsets 16 (b) and 32 (a), got %v", paramOffsets)
	}
}

func TestRodataInternsLiteralsUsed(t *testing.T) {
	res := mustLower(t, `575757 main 57 . "hi there" 57 {`)
	if len(res.Rodata.Strings()) != 1 || res.Rodata.Strings()[0] != "hi there" {
		t.Fatalf("expected the printed string to be interned, got %v", res.Rodata.Strings())
	}
}
