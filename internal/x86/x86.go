// Package x86 implements the x86-64 encoder of spec.md §4.5: Encode
// switches on the IR opcode and calls one small emitter per instruction
// shape, each writing its prefix bytes, opcode bytes, and the fields the
// operands fill in (REX, ModR/M.reg, ModR/M.rm, SIB, a RIP-relative
// disp32, a rel32, an imm32, or an imm16).
// Every jump/call uses a rel32 displacement and every rodata load uses a
// RIP-relative disp32, so an instruction's encoded length never depends on
// the actual displacement value — only on its shape. That is what makes
// the two-pass layout of internal/pipeline converge: sizes computed in
// pass 1 are exactly the sizes re-emitted in pass 2 (spec.md §8 invariant
// 3), grounded on the REX/ModR/M computation in the teacher's mov.go and
// the opcode table in the teacher's jmp.go.
package x86

import (
	"encoding/binary"
	"fmt"

	"github.com/xyproto/c57/internal/ir"
)

// Cond is an x86 condition code for Jcc, independent of ir.Opcode so the
// encoder doesn't need to know about IR.
type Cond int

const (
	CondE  Cond = iota // JE/JZ
	CondNE             // JNE/JNZ
	CondL              // JL
	CondLE             // JLE
	CondG              // JG
	CondGE             // JGE
	CondB              // JB (unsigned <)
	CondBE             // JBE (unsigned <=)
	CondA              // JA (unsigned >)
	CondAE             // JAE (unsigned >=)
)

var jccOpcode = map[Cond]byte{
	CondE: 0x84, CondNE: 0x85,
	CondL: 0x8C, CondLE: 0x8E, CondG: 0x8F, CondGE: 0x8D,
	CondB: 0x82, CondBE: 0x86, CondA: 0x87, CondAE: 0x83,
}

// reg8 returns the encoding's low 3 bits plus whether bit 3 requires a
// REX extension bit (R8-R15, XMM8-XMM15).
func reg8(r ir.Register) (low byte, ext bool) {
	if r.IsXMM() {
		n := int(r - ir.XMM0)
		return byte(n & 7), n >= 8
	}
	n := int(r-ir.R8) + 8
	if r < ir.R8 {
		n = [...]int{ir.RAX: 0, ir.RBX: 3, ir.RCX: 1, ir.RDX: 2, ir.RSI: 6, ir.RDI: 7, ir.RBP: 5, ir.RSP: 4}[r]
	}
	return byte(n & 7), n >= 8
}

func modrm(mod, regField, rm byte) byte {
	return (mod << 6) | ((regField & 7) << 3) | (rm & 7)
}

func rex(w bool, r, x, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

// Encoder accumulates encoded bytes for one code segment. It is reset and
// re-run once per layout pass (spec.md §4.6); it never reads a node's
// address fields, only writes AddrBegin/AddrEnd via the caller, so reuse
// between passes is safe.
type Encoder struct {
	buf []byte
}

// New returns an empty Encoder.
func New() *Encoder { return &Encoder{} }

// Len returns the number of bytes emitted so far — the running address
// relative to this Encoder's start.
func (e *Encoder) Len() int { return len(e.buf) }

// Bytes returns the encoded instruction stream.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) emit(b ...byte) { e.buf = append(e.buf, b...) }

func (e *Encoder) emit32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	e.emit(b[:]...)
}

func (e *Encoder) emit64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.emit(b[:]...)
}

func (e *Encoder) emit16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.emit(b[:]...)
}

// PushReg emits PUSH r64.
func (e *Encoder) PushReg(r ir.Register) {
	low, ext := reg8(r)
	if ext {
		e.emit(rex(false, false, false, true))
	}
	e.emit(0x50 + low)
}

// PopReg emits POP r64.
func (e *Encoder) PopReg(r ir.Register) {
	low, ext := reg8(r)
	if ext {
		e.emit(rex(false, false, false, true))
	}
	e.emit(0x58 + low)
}

// MovRegImm64 emits MOV r64, imm64 (opcode 0xB8+r, REX.W always set since
// the IR never needs a 32-bit general-purpose register).
func (e *Encoder) MovRegImm64(dst ir.Register, imm int64) {
	low, ext := reg8(dst)
	e.emit(rex(true, false, false, ext))
	e.emit(0xB8 + low)
	e.emit64(uint64(imm))
}

// MovRegReg emits MOV dst, src for two general-purpose registers.
func (e *Encoder) MovRegReg(dst, src ir.Register) {
	dLow, dExt := reg8(dst)
	sLow, sExt := reg8(src)
	e.emit(rex(true, sExt, false, dExt))
	e.emit(0x89)
	e.emit(modrm(3, sLow, dLow))
}

// MovMemReg emits MOV [base+disp32], src.
func (e *Encoder) MovMemReg(base ir.Register, disp int32, src ir.Register) {
	bLow, bExt := reg8(base)
	sLow, sExt := reg8(src)
	e.emit(rex(true, sExt, false, bExt))
	e.emit(0x89)
	e.emit(modrm(2, sLow, bLow))
	if bLow == 4 { // RSP/R12 needs a SIB byte
		e.emit(0x24)
	}
	e.emit32(disp)
}

// MovRegMem emits MOV dst, [base+disp32].
func (e *Encoder) MovRegMem(dst ir.Register, base ir.Register, disp int32) {
	dLow, dExt := reg8(dst)
	bLow, bExt := reg8(base)
	e.emit(rex(true, dExt, false, bExt))
	e.emit(0x8B)
	e.emit(modrm(2, dLow, bLow))
	if bLow == 4 {
		e.emit(0x24)
	}
	e.emit32(disp)
}

// AddRegImm32/SubRegImm32 adjust RSP for frame allocation/cleanup.
func (e *Encoder) addSubRegImm32(opcodeExt byte, dst ir.Register, imm int32) {
	low, ext := reg8(dst)
	e.emit(rex(true, false, false, ext))
	e.emit(0x81)
	e.emit(modrm(3, opcodeExt, low))
	e.emit32(imm)
}

func (e *Encoder) AddRegImm32(dst ir.Register, imm int32) { e.addSubRegImm32(0, dst, imm) }
func (e *Encoder) SubRegImm32(dst ir.Register, imm int32) { e.addSubRegImm32(5, dst, imm) }

// ripForm encodes the shared "reg, [rip+disp32]" shape used by both
// LEA and MOVSD-from-rodata, since rip is only known in layout and must
// be patched between the two encoding passes.
func (e *Encoder) ripForm(prefix []byte, opcode []byte, regField byte, disp int32) {
	e.emit(prefix...)
	e.emit(opcode...)
	e.emit(modrm(0, regField, 5)) // mod=00, rm=101 selects RIP-relative
	e.emit32(disp)
}

// LeaRIP emits LEA dst, [rip+disp32] for a general-purpose destination —
// used to materialize a string's rodata address for STR_OUT.
func (e *Encoder) LeaRIP(dst ir.Register, disp int32) {
	low, ext := reg8(dst)
	e.ripForm([]byte{rex(true, ext, false, false)}, []byte{0x8D}, low, disp)
}

// MovsdLoadRIP emits MOVSD dst, [rip+disp32] to load a double literal
// from rodata into an XMM register.
func (e *Encoder) MovsdLoadRIP(dst ir.Register, disp int32) {
	low, ext := reg8(dst)
	prefix := []byte{0xF2}
	if ext {
		prefix = append(prefix, rex(false, true, false, false))
	}
	e.ripForm(prefix, []byte{0x0F, 0x10}, low, disp)
}

// movsdMem emits MOVSD between an XMM register and [base+disp32]:
// opcode 0x10 loads the register, 0x11 stores it.
func (e *Encoder) movsdMem(opcode byte, xmm, base ir.Register, disp int32) {
	xLow, xExt := reg8(xmm)
	bLow, bExt := reg8(base)
	e.emit(0xF2)
	if xExt || bExt {
		e.emit(rex(false, xExt, false, bExt))
	}
	e.emit(0x0F, opcode, modrm(2, xLow, bLow))
	if bLow == 4 { // RSP/R12 needs a SIB byte
		e.emit(0x24)
	}
	e.emit32(disp)
}

// xmmBinOp encodes the shared two-operand SSE2 scalar-double shape:
// a mandatory prefix (F2 or 66), 0F, opcodeByte, ModR/M(dst, src).
func (e *Encoder) xmmBinOp(prefix byte, opcodeByte byte, dst, src ir.Register) {
	dLow, dExt := reg8(dst)
	sLow, sExt := reg8(src)
	if prefix != 0 {
		e.emit(prefix)
	}
	if dExt || sExt {
		e.emit(rex(false, dExt, false, sExt))
	}
	e.emit(0x0F, opcodeByte)
	e.emit(modrm(3, dLow, sLow))
}

func (e *Encoder) AddsdRegReg(dst, src ir.Register)  { e.xmmBinOp(0xF2, 0x58, dst, src) }
func (e *Encoder) SubsdRegReg(dst, src ir.Register)  { e.xmmBinOp(0xF2, 0x5C, dst, src) }
func (e *Encoder) MulsdRegReg(dst, src ir.Register)  { e.xmmBinOp(0xF2, 0x59, dst, src) }
func (e *Encoder) DivsdRegReg(dst, src ir.Register)  { e.xmmBinOp(0xF2, 0x5E, dst, src) }
func (e *Encoder) SqrtsdRegReg(dst, src ir.Register) { e.xmmBinOp(0xF2, 0x51, dst, src) }
func (e *Encoder) ComisdRegReg(dst, src ir.Register) { e.xmmBinOp(0x66, 0x2F, dst, src) }
func (e *Encoder) PxorRegReg(dst, src ir.Register)   { e.xmmBinOp(0x66, 0xEF, dst, src) }
func (e *Encoder) AndpdRegReg(dst, src ir.Register)  { e.xmmBinOp(0x66, 0x54, dst, src) }
func (e *Encoder) OrpdRegReg(dst, src ir.Register)   { e.xmmBinOp(0x66, 0x56, dst, src) }
func (e *Encoder) MovsdRegReg(dst, src ir.Register)  { e.xmmBinOp(0xF2, 0x10, dst, src) }

// JmpRel32 emits JMP rel32. rel is relative to the end of this
// instruction and is resolved by the caller from JumpTarget addresses.
func (e *Encoder) JmpRel32(rel int32) {
	e.emit(0xE9)
	e.emit32(rel)
}

// JccRel32 emits a near conditional jump for cond.
func (e *Encoder) JccRel32(cond Cond, rel int32) {
	e.emit(0x0F, jccOpcode[cond])
	e.emit32(rel)
}

// CallRel32 emits CALL rel32.
func (e *Encoder) CallRel32(rel int32) {
	e.emit(0xE8)
	e.emit32(rel)
}

// RetImm16 emits RET imm16, the Pascal-convention callee-cleans-up
// return used for every function per spec.md §4.3.
func (e *Encoder) RetImm16(n uint16) {
	e.emit(0xC2)
	e.emit16(n)
}

// Ret emits a bare RET. Encode never uses it: every IR RET carries an
// imm16 and goes through RetImm16.
func (e *Encoder) Ret() { e.emit(0xC3) }

// Nop emits a single-byte NOP — the encoding of every IR NOP, which the
// lowering stage uses as the inert if/while/comparison label marker.
func (e *Encoder) Nop() { e.emit(0x90) }

// Hlt emits HLT.
func (e *Encoder) Hlt() { e.emit(0xF4) }

// Syscall emits SYSCALL, used by the embedded stdlib's own code and
// reachable from user code only indirectly via CALL.
func (e *Encoder) Syscall() { e.emit(0x0F, 0x05) }

// InstructionSize returns the byte length Encode would produce for n
// without actually emitting it — used by pass 1 of the two-pass layout to
// compute addresses before rodata/jump targets are resolved. Since every
// jump and rodata access uses a fixed-width rel32/disp32 form, this is
// identical for both passes; calling Encode twice with the real operands
// filled in for pass 2 is simpler than mirroring opcode logic here.
func InstructionSize(n *ir.Node) (int, error) {
	e := New()
	if err := Encode(e, n, 0); err != nil {
		return 0, err
	}
	return e.Len(), nil
}

// Encode appends the machine code for n to e. disp is the resolved
// RIP-relative or rel32 displacement for nodes that need one — callers
// pass 0 during pass 1 (size-only) and the real value during pass 2.
func Encode(e *Encoder, n *ir.Node, disp int32) error {
	switch n.Op {
	case ir.NOP:
		e.Nop()
	case ir.PUSH:
		e.PushReg(n.Operand1.Reg)
	case ir.POP:
		e.PopReg(n.Operand1.Reg)
	case ir.MOV:
		switch {
		case n.Operand2.Kind == ir.OperandImmediate:
			e.MovRegImm64(n.Operand1.Reg, n.Operand2.Imm)
		case n.Operand2.Kind == ir.OperandMemory:
			e.MovRegMem(n.Operand1.Reg, n.Operand2.Base, int32(n.Operand2.Disp))
		case n.Operand1.Kind == ir.OperandMemory:
			e.MovMemReg(n.Operand1.Base, int32(n.Operand1.Disp), n.Operand2.Reg)
		default:
			e.MovRegReg(n.Operand1.Reg, n.Operand2.Reg)
		}
	case ir.ADD:
		e.AddRegImm32(n.Operand1.Reg, int32(n.Operand2.Imm))
	case ir.SUB:
		e.SubRegImm32(n.Operand1.Reg, int32(n.Operand2.Imm))
	case ir.F_PUSH:
		e.movsdMem(0x11, n.Operand2.Reg, n.Operand1.Base, int32(n.Operand1.Disp))
	case ir.F_POP:
		e.movsdMem(0x10, n.Operand1.Reg, n.Operand2.Base, int32(n.Operand2.Disp))
	case ir.F_MOV:
		if n.Operand2.Kind == ir.OperandLabel {
			e.MovsdLoadRIP(n.Operand1.Reg, disp)
		} else {
			e.MovsdRegReg(n.Operand1.Reg, n.Operand2.Reg)
		}
	case ir.F_ADD:
		e.AddsdRegReg(n.Operand1.Reg, n.Operand2.Reg)
	case ir.F_SUB:
		e.SubsdRegReg(n.Operand1.Reg, n.Operand2.Reg)
	case ir.F_MUL:
		e.MulsdRegReg(n.Operand1.Reg, n.Operand2.Reg)
	case ir.F_DIV:
		e.DivsdRegReg(n.Operand1.Reg, n.Operand2.Reg)
	case ir.F_XOR:
		e.PxorRegReg(n.Operand1.Reg, n.Operand2.Reg)
	case ir.F_AND:
		e.AndpdRegReg(n.Operand1.Reg, n.Operand2.Reg)
	case ir.F_OR:
		e.OrpdRegReg(n.Operand1.Reg, n.Operand2.Reg)
	case ir.F_SQRT:
		e.SqrtsdRegReg(n.Operand1.Reg, n.Operand2.Reg)
	case ir.F_CMP:
		e.ComisdRegReg(n.Operand1.Reg, n.Operand2.Reg)
	case ir.JMP:
		e.JmpRel32(disp)
	case ir.JE:
		e.JccRel32(CondE, disp)
	case ir.JNE:
		e.JccRel32(CondNE, disp)
	// Every comparison in the IR is an F_CMP (COMISD), which sets flags
	// the way an unsigned integer compare would (CF/ZF/PF, no SF/OF) —
	// so JL/JLE/JG/JGE here map to the CF-based JB/JBE/JA/JAE opcodes,
	// not the SF/OF-based signed Jcc family. There is no integer
	// comparison in this language, so that mapping is unconditional.
	case ir.JL:
		e.JccRel32(CondB, disp)
	case ir.JLE:
		e.JccRel32(CondBE, disp)
	case ir.JG:
		e.JccRel32(CondA, disp)
	case ir.JGE:
		e.JccRel32(CondAE, disp)
	case ir.CALL:
		e.CallRel32(disp)
	case ir.RET:
		e.RetImm16(uint16(n.Operand1.Imm))
	case ir.STR_OUT:
		e.LeaRIP(n.Operand1.Reg, disp)
	case ir.HLT:
		// A CALL into the stdlib's halt routine; the caller resolves disp
		// against elfwriter.StdlibHalt.
		e.CallRel32(disp)
	case ir.F_SIN, ir.F_COS, ir.F_TAN, ir.F_COT, ir.F_POW, ir.F_OUT, ir.F_IN:
		// Lowered to stdlib CALLs by internal/lower; the encoder never
		// sees these opcodes directly.
		return fmt.Errorf("x86: opcode %s must be lowered to a CALL before encoding", n.Op)
	default:
		return fmt.Errorf("x86: unhandled opcode %s", n.Op)
	}
	return nil
}
