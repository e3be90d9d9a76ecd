// Package pipeline implements the compilation-stage guard and the
// two-pass address-resolution layout of spec.md §4.6/§5, grounded on the
// teacher's compilation_pipeline.go: an explicit Stage enum with
// AdvanceTo/ValidateStage enforcing the phase ordering at runtime instead
// of leaving it as a comment on the caller.
package pipeline

import (
	"fmt"
	"os"

	"github.com/xyproto/c57/internal/elfwriter"
	cerrors "github.com/xyproto/c57/internal/errors"
	"github.com/xyproto/c57/internal/ir"
	"github.com/xyproto/c57/internal/rodata"
	"github.com/xyproto/c57/internal/x86"
)

// VerboseMode gates stage-transition tracing to stderr, mirroring the
// teacher's package-level flag of the same name (set once from each
// cmd/'s -v flag before the pipeline runs).
var VerboseMode bool

// Stage is one step of the backend pipeline. Stages only ever advance
// forward by exactly one; AdvanceTo panics on any other transition,
// exactly as the teacher's CompilationPipeline does, since an
// out-of-order stage call is a compiler bug, not a recoverable error.
type Stage int

const (
	StageLex Stage = iota
	StageParse
	StageLower
	StageLayoutPass1
	StageRodataAssign
	StageLayoutPass2
	StageELFWrite
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageLex:
		return "Lexing"
	case StageParse:
		return "Parsing"
	case StageLower:
		return "Lowering"
	case StageLayoutPass1:
		return "Layout Pass 1 (sizing)"
	case StageRodataAssign:
		return "Rodata Address Assignment"
	case StageLayoutPass2:
		return "Layout Pass 2 (encoding)"
	case StageELFWrite:
		return "ELF Write"
	case StageComplete:
		return "Complete"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

var validNext = map[Stage]Stage{
	StageLex:          StageParse,
	StageParse:        StageLower,
	StageLower:        StageLayoutPass1,
	StageLayoutPass1:  StageRodataAssign,
	StageRodataAssign: StageLayoutPass2,
	StageLayoutPass2:  StageELFWrite,
	StageELFWrite:     StageComplete,
}

// Pipeline tracks the current stage of one compilation and the history of
// stages visited, for diagnostics if a transition is ever attempted out
// of order.
type Pipeline struct {
	current Stage
	history []Stage
}

// New returns a Pipeline positioned at StageLex.
func New() *Pipeline {
	return NewAt(StageLex)
}

// NewAt returns a Pipeline already positioned at stage, for a process
// that only performs the tail of the overall pipeline — cmd/backend
// starts at StageParse, since the AST it reads was already lexed and
// parsed by a separate cmd/frontend invocation and has no lex/parse
// stages of its own to guard.
func NewAt(stage Stage) *Pipeline {
	return &Pipeline{current: stage, history: []Stage{stage}}
}

// CurrentStage returns the stage the pipeline is presently in.
func (p *Pipeline) CurrentStage() Stage { return p.current }

// AdvanceTo moves the pipeline to stage, which must be the one and only
// valid successor of the current stage. An invalid transition is a
// compiler bug: it panics with the stage history, the same way the
// teacher's pipeline does, rather than returning an error a caller might
// paper over.
func (p *Pipeline) AdvanceTo(stage Stage) {
	if validNext[p.current] != stage {
		fmt.Fprintf(os.Stderr, "ERROR: invalid stage transition: %s -> %s\n", p.current, stage)
		fmt.Fprintf(os.Stderr, "stage history:\n")
		for i, s := range p.history {
			fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, s)
		}
		panic(fmt.Sprintf("pipeline: invalid stage transition: %s -> %s", p.current, stage))
	}
	p.current = stage
	p.history = append(p.history, stage)
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "pipeline: advanced to %s\n", stage)
	}
}

// ValidateStage panics if the pipeline is not currently in expected,
// naming operation in the panic message — used by callers that perform a
// stage's work in several steps and want every step to assert its
// precondition.
func (p *Pipeline) ValidateStage(expected Stage, operation string) {
	if p.current != expected {
		fmt.Fprintf(os.Stderr, "ERROR: attempted %q at wrong stage\n", operation)
		fmt.Fprintf(os.Stderr, "  expected: %s\n  actual:   %s\n", expected, p.current)
		panic(fmt.Sprintf("pipeline: invalid operation %q at stage %s", operation, p.current))
	}
}

// Checkpoint emits a verbose-only trace line, used to mark progress
// inside a long stage (e.g. after rodata assignment, before pass 2
// begins) without it being a Stage of its own.
func (p *Pipeline) Checkpoint(name string) {
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "pipeline: checkpoint %s at stage %s\n", name, p.current)
	}
}

// Layout is the result of running the two-pass address resolution: the
// final encoded user-program code and the final rodata segment bytes,
// ready for elfwriter.Write alongside the stdlib blob.
type Layout struct {
	Code   []byte
	Rodata []byte
}

// Run executes layout pass 1, rodata address assignment, and layout pass
// 2 in order, advancing p through each stage. prog is the IR list
// internal/lower produced; rodataTbl is its companion interned-literal
// table.
//
// Pass 1 walks prog purely to size every instruction (x86.InstructionSize
// never depends on an unresolved displacement, since every jump, call,
// and rodata load uses a fixed-width rel32/disp32 form — spec.md §8
// invariant 3), recording AddrBegin/AddrEnd on each node. Rodata is then
// laid out from the fixed start of its own segment (elfwriter.RodataVirtAddr,
// below the program), and only once both are known can pass 2 compute the
// actual rel32/disp32 values pass 1 could not.
func Run(p *Pipeline, prog *ir.List, rodataTbl *rodata.Table) (*Layout, error) {
	p.AdvanceTo(StageLayoutPass1)
	addr := uint64(elfwriter.ProgramVirtAddr)
	var sizeErr error
	prog.Each(func(h ir.Handle, n *ir.Node) {
		if sizeErr != nil {
			return
		}
		sz, err := x86.InstructionSize(n)
		if err != nil {
			sizeErr = cerrors.Internal("pipeline: sizing node %s: %v", n.Op, err)
			return
		}
		n.AddrBegin = addr
		addr += uint64(sz)
		n.AddrEnd = addr
	})
	if sizeErr != nil {
		return nil, sizeErr
	}

	p.AdvanceTo(StageRodataAssign)
	rodataSize := rodataTbl.AssignAddresses(elfwriter.RodataVirtAddr)
	p.Checkpoint(fmt.Sprintf("rodata: %d bytes", rodataSize))

	p.AdvanceTo(StageLayoutPass2)
	enc := x86.New()
	var encErr error
	prog.Each(func(h ir.Handle, n *ir.Node) {
		if encErr != nil {
			return
		}
		disp, err := resolveDisp(prog, rodataTbl, n)
		if err != nil {
			encErr = err
			return
		}
		if err := x86.Encode(enc, n, disp); err != nil {
			encErr = cerrors.Internal("pipeline: encoding node %s: %v", n.Op, err)
			return
		}
	})
	if encErr != nil {
		return nil, encErr
	}
	if uint64(enc.Len())+uint64(elfwriter.ProgramVirtAddr) != addr {
		return nil, cerrors.Internal("pipeline: pass 2 produced %d bytes, pass 1 sized %d", enc.Len(), addr-uint64(elfwriter.ProgramVirtAddr))
	}

	return &Layout{Code: enc.Bytes(), Rodata: rodataTbl.Bytes()}, nil
}

// resolveDisp computes the rel32/disp32 value x86.Encode needs for n,
// or 0 for nodes that carry none. CALL/JMP/Jcc resolve either through
// JumpTarget (a user-code label, patched by internal/lower) or, for CALLs
// into the stdlib, through the node's own fixed Addr operand; HLT is
// encoded as a CALL to elfwriter.StdlibHalt. F_MOV and
// STR_OUT resolve through the rodata table instead, since their operand
// names a literal, not code.
func resolveDisp(prog *ir.List, rodataTbl *rodata.Table, n *ir.Node) (int32, error) {
	switch n.Op {
	case ir.JMP, ir.JE, ir.JNE, ir.JL, ir.JLE, ir.JG, ir.JGE:
		target := prog.Node(n.JumpTarget)
		return rel32(target.AddrBegin, n.AddrEnd)
	case ir.CALL:
		if n.Operand1.Kind == ir.OperandAddr {
			return rel32(n.Operand1.Addr, n.AddrEnd)
		}
		target := prog.Node(n.JumpTarget)
		return rel32(target.AddrBegin, n.AddrEnd)
	case ir.F_MOV:
		if n.Operand2.Kind != ir.OperandLabel {
			return 0, nil
		}
		addr, ok := rodataTbl.Address(n.Operand2.Label)
		if !ok {
			return 0, cerrors.Internal("pipeline: F_MOV references unknown rodata label %q", n.Operand2.Label)
		}
		return rel32(addr, n.AddrEnd)
	case ir.STR_OUT:
		addr, ok := rodataTbl.Address(n.Operand2.Label)
		if !ok {
			return 0, cerrors.Internal("pipeline: STR_OUT references unknown rodata label %q", n.Operand2.Label)
		}
		return rel32(addr, n.AddrEnd)
	case ir.HLT:
		return rel32(elfwriter.StdlibHalt, n.AddrEnd)
	default:
		return 0, nil
	}
}

// rel32 computes target's displacement relative to the end of the
// instruction it's referenced from, which is how both RIP-relative
// rodata loads and x86 near jumps/calls compute their effective address.
func rel32(target, instrEnd uint64) (int32, error) {
	d := int64(target) - int64(instrEnd)
	if d < -(1<<31) || d >= (1<<31) {
		return 0, cerrors.Internal("pipeline: displacement %d out of rel32 range", d)
	}
	return int32(d), nil
}
