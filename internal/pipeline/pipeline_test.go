package pipeline

import (
	"testing"

	"github.com/xyproto/c57/internal/elfwriter"
	"github.com/xyproto/c57/internal/ir"
	"github.com/xyproto/c57/internal/lexer"
	"github.com/xyproto/c57/internal/lower"
	"github.com/xyproto/c57/internal/parser"
)

func mustLower(t *testing.T, src string) *lower.Result {
	t.Helper()
	toks, err := lexer.New("t.57", []byte(src)).Tokenize()
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	root, tbl, err := parser.ParseProgram("t.57", toks)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res, err := lower.Lower(root, tbl)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return res
}

func TestAdvanceToEnforcesLinearOrder(t *testing.T) {
	p := NewAt(StageLower)
	p.AdvanceTo(StageLayoutPass1)
	if p.CurrentStage() != StageLayoutPass1 {
		t.Fatalf("expected StageLayoutPass1, got %v", p.CurrentStage())
	}
}

func TestAdvanceToOutOfOrderPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-order stage transition")
		}
	}()
	p := NewAt(StageLower)
	p.AdvanceTo(StageELFWrite) // skips layout/rodata entirely
}

func TestValidateStagePanicsOnMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when validating the wrong stage")
		}
	}()
	p := NewAt(StageLower)
	p.ValidateStage(StageELFWrite, "write ELF")
}

// TestRunProducesCodeMatchingPass1Sizing guards spec.md §8 invariant 3:
// since every jump/call/rodata-load is a fixed-width rel32/disp32 form,
// pass 2's encoded length must exactly equal what pass 1 sized, for
// every node, not just in total.
func TestRunProducesCodeMatchingPass1Sizing(t *testing.T) {
	res := mustLower(t, `575757 main 57 . "hi" 57 {`)
	p := NewAt(StageLower)
	layout, err := Run(p, res.Program, res.Rodata)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.CurrentStage() != StageLayoutPass2 {
		t.Fatalf("expected pipeline left at StageLayoutPass2, got %v", p.CurrentStage())
	}

	var wantLen int
	res.Program.Each(func(h ir.Handle, n *ir.Node) {
		wantLen += int(n.AddrEnd - n.AddrBegin)
	})
	if len(layout.Code) != wantLen {
		t.Fatalf("pass 2 produced %d bytes, pass 1 sized %d", len(layout.Code), wantLen)
	}
}

// TestRunResolvesCallToStdlibAddress confirms a CALL targeting a fixed
// stdlib address (rather than a user-code label) lands exactly on that
// address once its rel32 is added to the address of the instruction
// following the CALL.
func TestRunResolvesCallToStdlibAddress(t *testing.T) {
	res := mustLower(t, `575757 main 57 . "hi" 57 {`)
	p := NewAt(StageLower)
	layout, err := Run(p, res.Program, res.Rodata)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var callNode *ir.Node
	res.Program.Each(func(h ir.Handle, n *ir.Node) {
		if callNode == nil && n.Op == ir.CALL && n.Operand1.Kind == ir.OperandAddr && n.Operand1.Addr == elfwriter.StdlibOutString {
			callNode = n
		}
	})
	if callNode == nil {
		t.Fatal("expected a CALL to StdlibOutString")
	}
	off := int(callNode.AddrBegin - elfwriter.ProgramVirtAddr)
	rel := int32(layout.Code[off+1]) | int32(layout.Code[off+2])<<8 | int32(layout.Code[off+3])<<16 | int32(layout.Code[off+4])<<24
	target := int64(callNode.AddrEnd) + int64(rel)
	if uint64(target) != elfwriter.StdlibOutString {
		t.Fatalf("CALL resolves to 0x%x, want 0x%x", target, elfwriter.StdlibOutString)
	}
}
