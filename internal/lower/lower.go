// Package lower implements the AST→IR lowering of spec.md §4.3: it walks
// the tagged-variant tree internal/ast produces and emits the linked IR
// list internal/ir defines, using XMM0/XMM1 as the two-slot evaluation
// stage the original IRBuild.cpp's BuildALUOp recurses through (build
// left, push; build right, push; pop right into XMM1, pop left into
// XMM0; apply; push result) and a dedicated frame slot per intermediate
// value instead of a reused hardware stack, since there is no x86
// instruction that pushes an XMM register directly.
//
// Per spec.md's explicit non-goal of optimizing register/stack
// allocation, frame slots are assigned monotonically and never reused
// within a function — correctness over compactness.
package lower

import (
	"fmt"

	"github.com/xyproto/c57/internal/ast"
	"github.com/xyproto/c57/internal/elfwriter"
	cerrors "github.com/xyproto/c57/internal/errors"
	"github.com/xyproto/c57/internal/ir"
	"github.com/xyproto/c57/internal/names"
	"github.com/xyproto/c57/internal/rodata"
)

// Result is everything the encoder and ELF writer need: the IR program
// and the rodata it references.
type Result struct {
	Program *ir.List
	Rodata  *rodata.Table
}

// Lower builds a full IR program from root (the OpNewFunc chain returned
// by internal/parser) and tbl (the shared name table root's indices are
// valid against).
func Lower(root *ast.Node, tbl *names.Table) (*Result, error) {
	ctx := &context{
		prog:   ir.NewList(),
		names:  tbl,
		rodata: rodata.New(),
		labels: make(map[string]int),
	}

	// Pascal-convention entry prelude: fall straight into main.
	ctx.prog.PushBack(ir.Node{Op: ir.CALL, NeedPatch: true, Operand1: ir.Lbl("main")})
	ctx.prog.PushBack(ir.Node{Op: ir.HLT})

	for n := root; n != nil; n = n.Right {
		if n.Op != ast.OpNewFunc {
			return nil, cerrors.Internal("lower: expected OpNewFunc at program top level, got %s", n.Op)
		}
		if err := ctx.lowerFunc(n.Left); err != nil {
			return nil, err
		}
	}

	if err := ctx.patchJumps(); err != nil {
		return nil, err
	}

	return &Result{Program: ctx.prog, Rodata: ctx.rodata}, nil
}

type context struct {
	prog       *ir.List
	names      *names.Table
	rodata     *rodata.Table
	local      *names.Table
	frameSize  int64
	labelSeq   int
	labels     map[string]int // label name -> handle, for PatchJumps
	activeFunc string         // epilogue label of the function currently being lowered
}

func (c *context) label(prefix string) string {
	c.labelSeq++
	return fmt.Sprintf("%s_%d", prefix, c.labelSeq)
}

// nextSlot allocates a fresh, never-reused frame slot below the current
// locals, returning its RBP-relative offset.
func (c *context) nextSlot() int64 {
	c.frameSize += 8
	return -c.frameSize
}

func (c *context) emit(n ir.Node) ir.Handle {
	h := c.prog.PushBack(n)
	if n.Label != "" {
		c.labels[n.Label] = int(h)
	}
	return h
}

func (c *context) emitLabeled(label string, n ir.Node) ir.Handle {
	n.Label = label
	return c.emit(n)
}

// lowerFunc lowers one OpFunc node. Left is the function's header — a
// COMMA node whose Left is the function's Name and whose Right is a
// right-leaning COMMA chain of parameter Names, the same shape a call's
// own argument list uses — and Right is the body.
//
// The local frame table is rebuilt fresh from that header on every call
// rather than read from any table the parser built for itself: the
// frontend and backend run as separate processes around the textual AST
// interchange format, each with its own names.Table, so parameter order
// has to survive as tree shape, not as a side-channel pointer.
func (c *context) lowerFunc(fn *ast.Node) error {
	if fn.Kind != ast.KindOperation || fn.Op != ast.OpFunc {
		return cerrors.Internal("lower: expected OpFunc, got %v", fn)
	}
	header := fn.Left
	if header == nil || header.Kind != ast.KindOperation || header.Op != ast.OpComma || header.Left == nil {
		return cerrors.Internal("lower: malformed function header %v", header)
	}
	nameEntry := c.names.Get(header.Left.NameIndex)

	local := names.New()
	paramCount := 0
	for p := header.Right; p != nil; p = p.Right {
		local.Declare(c.names.Get(p.Left.NameIndex).Text)
		paramCount++
	}

	prevLocal, prevFrame, prevActive := c.local, c.frameSize, c.activeFunc
	c.local = local
	c.frameSize = 0
	// The function's Return statements jump to this label so cleanup
	// happens once on every path out, regardless of how many Returns the
	// body contains.
	c.activeFunc = c.label("EPILOGUE_" + nameEntry.Text)
	defer func() { c.local, c.frameSize, c.activeFunc = prevLocal, prevFrame, prevActive }()

	c.assignParamOffsets(local, paramCount)

	c.emitLabeled(nameEntry.Text, ir.Node{Op: ir.PUSH, Operand1: ir.Reg(ir.RBP)})
	c.emit(ir.Node{Op: ir.MOV, Operand1: ir.Reg(ir.RBP), Operand2: ir.Reg(ir.RSP)})
	frameAdjust := c.emit(ir.Node{Op: ir.SUB, Operand1: ir.Reg(ir.RSP), Operand2: ir.Imm(0)})

	if err := c.lowerOp(fn.Right); err != nil {
		return err
	}

	c.emitLabeled(c.activeFunc, ir.Node{Op: ir.MOV, Operand1: ir.Reg(ir.RSP), Operand2: ir.Reg(ir.RBP)})
	c.emit(ir.Node{Op: ir.POP, Operand1: ir.Reg(ir.RBP)})
	// RET imm16 cleans up only what the caller itself pushed — the
	// parameter block — never the callee's own locals, which live below
	// rbp in this frame and are already released by the mov/pop above.
	// imm16 = num_params * XMM_REG_BYTE_SIZE per spec.md §4.3.
	c.emit(ir.Node{Op: ir.RET, Operand1: ir.Imm(int64(paramStride * paramCount))})

	c.prog.Node(frameAdjust).Operand2 = ir.Imm(c.frameSize)
	return nil
}

// paramStride is XMM_REG_BYTE_SIZE (spec.md §4.3): every pushed
// parameter slot occupies a full 16 bytes, not the 8-byte width of a
// general-purpose register. Expression values, by contrast, live in the
// 8-byte frame slots nextSlot hands out.
const paramStride = 16

// assignParamOffsets implements the Pascal calling convention: the
// caller pushes parameters left to right, so the last parameter pushed
// sits nearest the return address. Parameter i therefore lives at
// rbp + 2*RXX_REG_BYTE_SIZE + paramStride*(n-1-i).
func (c *context) assignParamOffsets(local *names.Table, n int) {
	for i := 0; i < n; i++ {
		offset := int64(16 + paramStride*(n-1-i))
		local.SetFrame(i, offset, ir.RBP)
	}
}

// resolveVar finds the frame slot for a referenced identifier: a
// parameter or a local already declared earlier in this function.
func (c *context) resolveVar(idx int) (ir.Operand, error) {
	entry := c.names.Get(idx)
	localIdx, ok := c.local.Lookup(entry.Text)
	if !ok {
		return ir.Operand{}, cerrors.Semantic(cerrors.Location{}, "use of undeclared identifier %q during lowering", entry.Text)
	}
	slot := c.local.Get(localIdx)
	return ir.Mem(slot.Base, slot.Offset), nil
}

// lowerOp lowers one statement-or-control-structure, matching the
// Op/Block shapes internal/parser builds.
func (c *context) lowerOp(n *ast.Node) error {
	if n == nil {
		return nil
	}
	switch n.Op {
	case ast.OpLineEnd:
		if err := c.lowerOp(n.Left); err != nil {
			return err
		}
		return c.lowerOp(n.Right)
	case ast.OpIf:
		return c.lowerIf(n)
	case ast.OpWhile:
		return c.lowerWhile(n)
	case ast.OpTypeInt:
		return c.lowerVarDef(n)
	case ast.OpAssign:
		return c.lowerAssign(n)
	case ast.OpPrint:
		return c.lowerPrint(n)
	case ast.OpReturn:
		return c.lowerReturn(n)
	default:
		return cerrors.Internal("lower: unexpected statement node %v", n.Op)
	}
}

// lowerVarDef declares a new local whose permanent storage IS the slot
// lowerExpr already computed the initializer into — no extra move, since
// pushXMM0 already stored the value there. The local table is declared
// into directly here, since it is rebuilt fresh per function from the
// AST header rather than pre-populated by a same-process parser.
func (c *context) lowerVarDef(n *ast.Node) error {
	if err := c.lowerExpr(n.Right); err != nil {
		return err
	}
	slot := c.lastSlot()
	idx := c.local.Declare(c.names.Get(n.Left.NameIndex).Text)
	c.local.SetFrame(idx, slot, ir.RBP)
	return nil
}

// lowerAssign copies the freshly computed RHS value, still sitting in its
// own slot, into the already-declared destination variable's slot: load
// into XMM0 (F_POP, register destination), then store (F_PUSH, memory
// destination).
func (c *context) lowerAssign(n *ast.Node) error {
	if err := c.lowerExpr(n.Right); err != nil {
		return err
	}
	dst, err := c.resolveVar(n.Left.NameIndex)
	if err != nil {
		return err
	}
	srcSlot := c.lastSlot()
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Mem(ir.RBP, srcSlot)})
	c.emit(ir.Node{Op: ir.F_PUSH, Operand1: dst, Operand2: ir.Reg(ir.XMM0)})
	return nil
}

// lowerPrint loads the value to print into the register the stdlib
// routine expects (RAX for a string address, XMM0 for a float) and CALLs
// straight into the fixed stdlib entry point — these aren't Pascal-style
// user calls, so there is no argument-frame shuffle, just a register
// handoff.
func (c *context) lowerPrint(n *ast.Node) error {
	if n.Left.Kind == ast.KindStringLiteral {
		text := c.names.Get(n.Left.NameIndex).Text
		label := c.rodata.InternString(text)
		c.emit(ir.Node{Op: ir.STR_OUT, Operand1: ir.Reg(ir.RAX), Operand2: ir.Lbl(label)})
		c.emit(ir.Node{Op: ir.CALL, Operand1: ir.Addr(elfwriter.StdlibOutString)})
		return nil
	}
	if err := c.lowerExpr(n.Left); err != nil {
		return err
	}
	slot := c.lastSlot()
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Mem(ir.RBP, slot)})
	c.emit(ir.Node{Op: ir.CALL, Operand1: ir.Addr(elfwriter.StdlibOutFloat)})
	return nil
}

func (c *context) lowerReturn(n *ast.Node) error {
	if err := c.lowerExpr(n.Left); err != nil {
		return err
	}
	slot := c.lastSlot()
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Mem(ir.RBP, slot)})
	c.emit(ir.Node{Op: ir.JMP, NeedPatch: true, Operand1: ir.Lbl(c.activeFunc)})
	return nil
}

func (c *context) lowerIf(n *ast.Node) error {
	if err := c.lowerCondition(n.Left); err != nil {
		return err
	}
	elseLabel := c.label("IF_END")
	c.emit(ir.Node{Op: ir.JE, NeedPatch: true, Operand1: ir.Lbl(elseLabel)})
	if err := c.lowerOp(n.Right); err != nil {
		return err
	}
	c.emitLabeled(elseLabel, ir.Node{Op: ir.NOP})
	return nil
}

func (c *context) lowerWhile(n *ast.Node) error {
	startLabel := c.label("WHILE_START")
	endLabel := c.label("WHILE_END")
	c.emitLabeled(startLabel, ir.Node{Op: ir.NOP})
	if err := c.lowerCondition(n.Left); err != nil {
		return err
	}
	c.emit(ir.Node{Op: ir.JE, NeedPatch: true, Operand1: ir.Lbl(endLabel)})
	if err := c.lowerOp(n.Right); err != nil {
		return err
	}
	c.emit(ir.Node{Op: ir.JMP, NeedPatch: true, Operand1: ir.Lbl(startLabel)})
	c.emitLabeled(endLabel, ir.Node{Op: ir.NOP})
	return nil
}

// lowerCondition evaluates n and leaves a COMISD-testable state: compare
// the result against 0.0 so JE is "false" and its fallthrough is "true",
// matching C's zero/non-zero truthiness.
func (c *context) lowerCondition(n *ast.Node) error {
	if err := c.lowerExpr(n); err != nil {
		return err
	}
	slot := c.lastSlot()
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Mem(ir.RBP, slot)})
	zeroLabel := c.rodata.InternDouble(0)
	c.emit(ir.Node{Op: ir.F_MOV, Operand1: ir.Reg(ir.XMM1), Operand2: ir.Lbl(zeroLabel)})
	c.emit(ir.Node{Op: ir.F_CMP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Reg(ir.XMM1)})
	return nil
}

// lowerExpr lowers an expression, leaving its value pushed onto a fresh
// frame slot (mirroring F_PUSH/F_POP's dedicated-slot semantics — see the
// package doc). Every caller immediately F_POPs what lowerExpr leaves.
func (c *context) lowerExpr(n *ast.Node) error {
	switch n.Kind {
	case ast.KindNumber:
		label := c.rodata.InternDouble(float64(n.Number))
		c.emit(ir.Node{Op: ir.F_MOV, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Lbl(label)})
		return c.pushXMM0()
	case ast.KindName:
		src, err := c.resolveVar(n.NameIndex)
		if err != nil {
			return err
		}
		c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: src})
		return c.pushXMM0()
	case ast.KindStringLiteral:
		return cerrors.Semantic(cerrors.Location{}, "string literal used outside of a print statement")
	case ast.KindOperation:
		return c.lowerOpExpr(n)
	default:
		return cerrors.Internal("lower: unknown node kind %v", n.Kind)
	}
}

func (c *context) pushXMM0() error {
	slot := c.nextSlot()
	c.emit(ir.Node{Op: ir.F_PUSH, Operand1: ir.Mem(ir.RBP, slot), Operand2: ir.Reg(ir.XMM0)})
	return nil
}

var binOpcode = map[ast.Operation]ir.Opcode{
	ast.OpAdd: ir.F_ADD, ast.OpSub: ir.F_SUB, ast.OpMul: ir.F_MUL, ast.OpDiv: ir.F_DIV,
	ast.OpAnd: ir.F_AND, ast.OpOr: ir.F_OR,
}

// unaryStdlibAddr maps the four transcendentals to their stdlib routine
// address. Only SQRT has a native SSE2 instruction (SQRTSD); the rest get
// a CALL, same as the original's x64 backend would have needed had it
// implemented them.
var unaryStdlibAddr = map[ast.Operation]uint64{
	ast.OpSin: elfwriter.StdlibSin, ast.OpCos: elfwriter.StdlibCos,
	ast.OpTan: elfwriter.StdlibTan, ast.OpCot: elfwriter.StdlibCot,
}

var cmpJump = map[ast.Operation]ir.Opcode{
	ast.OpLess: ir.JL, ast.OpLessEq: ir.JLE, ast.OpGreater: ir.JG, ast.OpGreaterEq: ir.JGE,
	ast.OpEq: ir.JE, ast.OpNotEq: ir.JNE,
}

// lowerOpExpr lowers an Operation-tagged expression node: binary
// arithmetic, unary transcendentals, comparisons (materialized to 1.0 or
// 0.0), unary negation, POW, function calls, and READ.
func (c *context) lowerOpExpr(n *ast.Node) error {
	switch n.Op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpAnd, ast.OpOr:
		return c.lowerBinArith(n, binOpcode[n.Op])
	case ast.OpSqrt:
		return c.lowerSqrt(n)
	case ast.OpSin, ast.OpCos, ast.OpTan, ast.OpCot:
		return c.lowerUnaryStdlibCall(n, unaryStdlibAddr[n.Op])
	case ast.OpUnarySub:
		return c.lowerUnarySub(n)
	case ast.OpPow:
		return c.lowerPow(n)
	case ast.OpLess, ast.OpLessEq, ast.OpGreater, ast.OpGreaterEq, ast.OpEq, ast.OpNotEq:
		return c.lowerCompare(n)
	case ast.OpFuncCall:
		return c.lowerCall(n)
	case ast.OpRead:
		return c.lowerRead(n)
	default:
		return cerrors.Internal("lower: unexpected expression operation %v", n.Op)
	}
}

// lowerBinArith follows BuildALUOp's recursion: lower left then right
// (each leaving its value in its own slot), pop right into XMM1 then
// left into XMM0, apply, push the result.
//
// The left operand's slot is captured right after it is lowered, before
// the right operand runs: a nested right-hand expression (e.g. the "2 *
// 3" in "1 + 2 * 3") allocates slots of its own, so the left slot is
// not necessarily the one immediately preceding the right slot.
func (c *context) lowerBinArith(n *ast.Node, op ir.Opcode) error {
	if err := c.lowerExpr(n.Left); err != nil {
		return err
	}
	leftSlot := c.lastSlot()
	if err := c.lowerExpr(n.Right); err != nil {
		return err
	}
	rightSlot := c.lastSlot()
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM1), Operand2: ir.Mem(ir.RBP, rightSlot)})
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Mem(ir.RBP, leftSlot)})
	c.emit(ir.Node{Op: op, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Reg(ir.XMM1)})
	return c.pushXMM0()
}

// lastSlot returns the most recently allocated frame slot, the one
// lowerExpr's pushXMM0 last wrote its result into.
func (c *context) lastSlot() int64 { return -c.frameSize }

func (c *context) lowerSqrt(n *ast.Node) error {
	if err := c.lowerExpr(n.Left); err != nil {
		return err
	}
	slot := c.lastSlot()
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Mem(ir.RBP, slot)})
	c.emit(ir.Node{Op: ir.F_SQRT, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Reg(ir.XMM0)})
	return c.pushXMM0()
}

// lowerUnaryStdlibCall loads the operand into XMM0 (the convention every
// unary stdlib routine uses) and CALLs its fixed address; the routine
// returns its result in XMM0 too.
func (c *context) lowerUnaryStdlibCall(n *ast.Node, addr uint64) error {
	if err := c.lowerExpr(n.Left); err != nil {
		return err
	}
	slot := c.lastSlot()
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Mem(ir.RBP, slot)})
	c.emit(ir.Node{Op: ir.CALL, Operand1: ir.Addr(addr)})
	return c.pushXMM0()
}

func (c *context) lowerUnarySub(n *ast.Node) error {
	if err := c.lowerExpr(n.Left); err != nil {
		return err
	}
	slot := c.lastSlot()
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Mem(ir.RBP, slot)})
	zeroLabel := c.rodata.InternDouble(0)
	c.emit(ir.Node{Op: ir.F_MOV, Operand1: ir.Reg(ir.XMM1), Operand2: ir.Lbl(zeroLabel)})
	c.emit(ir.Node{Op: ir.F_SUB, Operand1: ir.Reg(ir.XMM1), Operand2: ir.Reg(ir.XMM0)})
	c.emit(ir.Node{Op: ir.F_MOV, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Reg(ir.XMM1)})
	return c.pushXMM0()
}

// lowerPow evaluates base and exponent the same way any binary operator
// does, then CALLs the stdlib POW routine instead of a native opcode —
// x86-64 has no scalar-double exponentiation instruction, and the
// original's own x64 backend never lowered POW at all.
func (c *context) lowerPow(n *ast.Node) error {
	if err := c.lowerExpr(n.Left); err != nil {
		return err
	}
	baseSlot := c.lastSlot()
	if err := c.lowerExpr(n.Right); err != nil {
		return err
	}
	expSlot := c.lastSlot()
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM1), Operand2: ir.Mem(ir.RBP, expSlot)})
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Mem(ir.RBP, baseSlot)})
	c.emit(ir.Node{Op: ir.CALL, Operand1: ir.Addr(elfwriter.StdlibPow)})
	return c.pushXMM0()
}

// lowerRead CALLs the stdlib routine that reads one float from stdin into
// XMM0, then pushes that value the same way any other expression result
// is pushed.
func (c *context) lowerRead(n *ast.Node) error {
	c.emit(ir.Node{Op: ir.CALL, Operand1: ir.Addr(elfwriter.StdlibInFloat)})
	return c.pushXMM0()
}

// lowerCompare materializes a boolean as 1.0/0.0 so comparisons compose
// with AND/OR and can themselves be stored, printed, or returned.
func (c *context) lowerCompare(n *ast.Node) error {
	if err := c.lowerExpr(n.Left); err != nil {
		return err
	}
	leftSlot := c.lastSlot()
	if err := c.lowerExpr(n.Right); err != nil {
		return err
	}
	rightSlot := c.lastSlot()
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM1), Operand2: ir.Mem(ir.RBP, rightSlot)})
	c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Mem(ir.RBP, leftSlot)})
	c.emit(ir.Node{Op: ir.F_CMP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Reg(ir.XMM1)})

	falseLabel := c.label("CMP_FALSE")
	doneLabel := c.label("CMP_DONE")
	oneLabel := c.rodata.InternDouble(1)
	zeroLabel := c.rodata.InternDouble(0)

	jump, ok := cmpJump[n.Op]
	if !ok {
		return cerrors.Internal("lower: unexpected comparison operation %v", n.Op)
	}
	// Jcc jumps to the "true" path; invert by jumping to false on the
	// complementary condition instead, so both arms fall through to one
	// shared join point.
	c.emit(ir.Node{Op: invertJump(jump), NeedPatch: true, Operand1: ir.Lbl(falseLabel)})
	c.emit(ir.Node{Op: ir.F_MOV, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Lbl(oneLabel)})
	c.emit(ir.Node{Op: ir.JMP, NeedPatch: true, Operand1: ir.Lbl(doneLabel)})
	c.emitLabeled(falseLabel, ir.Node{Op: ir.F_MOV, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Lbl(zeroLabel)})
	c.emitLabeled(doneLabel, ir.Node{Op: ir.NOP})
	return c.pushXMM0()
}

func invertJump(j ir.Opcode) ir.Opcode {
	switch j {
	case ir.JL:
		return ir.JGE
	case ir.JLE:
		return ir.JG
	case ir.JG:
		return ir.JLE
	case ir.JGE:
		return ir.JL
	case ir.JE:
		return ir.JNE
	case ir.JNE:
		return ir.JE
	default:
		return j
	}
}

// lowerCall evaluates each argument into its own frame slot, copies them
// left-to-right into a freshly reserved block just below the current
// stack top, then CALLs the callee. The callee's RET imm16 (sized to its
// own parameter count) pops both the return address and the argument
// block on the way out, so the caller does no cleanup of its own — pure
// Pascal convention, matching spec.md §4.3. The callee leaves its result
// in XMM0 immediately before that RET, so it's available to the caller
// the instant CALL returns.
func (c *context) lowerCall(n *ast.Node) error {
	var args []*ast.Node
	for a := n.Right; a != nil; a = a.Right {
		args = append(args, a.Left)
	}
	argSlots := make([]int64, len(args))
	for i, arg := range args {
		if err := c.lowerExpr(arg); err != nil {
			return err
		}
		argSlots[i] = c.lastSlot()
	}

	count := len(args)
	if count > 0 {
		c.emit(ir.Node{Op: ir.SUB, Operand1: ir.Reg(ir.RSP), Operand2: ir.Imm(int64(paramStride * count))})
		for i := 0; i < count; i++ {
			dstDisp := int64(paramStride * (count - 1 - i))
			c.emit(ir.Node{Op: ir.F_POP, Operand1: ir.Reg(ir.XMM0), Operand2: ir.Mem(ir.RBP, argSlots[i])})
			c.emit(ir.Node{Op: ir.F_PUSH, Operand1: ir.Mem(ir.RSP, dstDisp), Operand2: ir.Reg(ir.XMM0)})
		}
	}

	calleeName := c.names.Get(n.Left.NameIndex).Text
	c.emit(ir.Node{Op: ir.CALL, NeedPatch: true, Operand1: ir.Lbl(calleeName)})
	return c.pushXMM0()
}

// patchJumps resolves every NeedPatch node's JumpTarget to its label's
// own defining node, mirroring the original IRBuild.cpp's PatchJumps: a
// single sweep over the whole program after every function has been
// emitted, so forward references (if/while bodies, CALL to a function
// defined later in the source) all resolve. The labeled node itself is
// always the correct target — for if/while it is an inert NOP marker, so
// landing on it rather than past it changes nothing observable, and for
// a function's entry label it is the real PUSH RBP prologue instruction,
// which a CALL must not skip.
func (c *context) patchJumps() error {
	var unresolved []string
	c.prog.Each(func(h ir.Handle, node *ir.Node) {
		if !node.NeedPatch {
			return
		}
		target, ok := c.labels[node.Operand1.Label]
		if !ok {
			unresolved = append(unresolved, node.Operand1.Label)
			return
		}
		node.JumpTarget = ir.Handle(target)
	})
	if len(unresolved) > 0 {
		return cerrors.Semantic(cerrors.Location{}, "unresolved label(s): %v", unresolved)
	}
	return nil
}
