// Package ir implements the linear intermediate representation of spec.md
// §3/§6: a doubly linked list of abstract x86-like instructions operating
// over named virtual registers, with symbolic labels that get back-patched
// to concrete node handles once the whole function body has been emitted.
//
// Per spec.md §9's "circular doubly linked IR list with cross pointers"
// design note, the list is arena-backed: nodes live in one slice owned by
// the List, and Next/Prev/JumpTarget are indices (Handle) into that slice
// rather than pointers. This removes the pointer cycle a literal port of
// the C++ original would have, without changing the algorithm.
package ir

import "fmt"

// Opcode is the IR instruction set of spec.md §6.
type Opcode int

const (
	NOP Opcode = iota
	PUSH
	POP
	MOV
	ADD
	SUB
	F_ADD
	F_SUB
	F_MUL
	F_DIV
	F_XOR
	F_AND
	F_OR
	F_POW
	F_SQRT
	F_SIN
	F_COS
	F_TAN
	F_COT
	F_PUSH
	F_POP
	F_MOV
	F_CMP
	JMP
	JE
	JNE
	JL
	JLE
	JG
	JGE
	CALL
	RET
	F_OUT
	F_IN
	STR_OUT
	HLT
)

var opcodeNames = map[Opcode]string{
	NOP: "NOP", PUSH: "PUSH", POP: "POP", MOV: "MOV", ADD: "ADD", SUB: "SUB",
	F_ADD: "F_ADD", F_SUB: "F_SUB", F_MUL: "F_MUL", F_DIV: "F_DIV",
	F_XOR: "F_XOR", F_AND: "F_AND", F_OR: "F_OR", F_POW: "F_POW",
	F_SQRT: "F_SQRT", F_SIN: "F_SIN", F_COS: "F_COS", F_TAN: "F_TAN", F_COT: "F_COT",
	F_PUSH: "F_PUSH", F_POP: "F_POP", F_MOV: "F_MOV", F_CMP: "F_CMP",
	JMP: "JMP", JE: "JE", JNE: "JNE", JL: "JL", JLE: "JLE", JG: "JG", JGE: "JGE",
	CALL: "CALL", RET: "RET", F_OUT: "F_OUT", F_IN: "F_IN", STR_OUT: "STR_OUT", HLT: "HLT",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}

// Register names the IR register set of spec.md §6.
type Register int

const (
	NO_REG Register = iota
	RAX
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	XMM0
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15
)

var registerNames = [...]string{
	"NO_REG", "RAX", "RBX", "RCX", "RDX", "RSI", "RDI", "RBP", "RSP",
	"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
	"XMM0", "XMM1", "XMM2", "XMM3", "XMM4", "XMM5", "XMM6", "XMM7",
	"XMM8", "XMM9", "XMM10", "XMM11", "XMM12", "XMM13", "XMM14", "XMM15",
}

func (r Register) String() string {
	if int(r) >= 0 && int(r) < len(registerNames) {
		return registerNames[r]
	}
	return fmt.Sprintf("Register(%d)", int(r))
}

// IsXMM reports whether r is one of the sixteen XMM scratch/argument
// registers.
func (r Register) IsXMM() bool {
	return r >= XMM0 && r <= XMM15
}

// OperandKind tags the variant carried by an Operand.
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandImmediate
	OperandRegister
	OperandMemory
	OperandLabel
	OperandString
	OperandAddr
)

// Operand is the tagged union of spec.md §3: an immediate, a register, a
// [base+disp] memory reference, a symbolic label name, an owned string
// (STR_OUT does not use it: it carries its literal as a rodata Label), or
// a fixed absolute address (used by CALLs into the embedded stdlib blob,
// whose entry points are known constants rather than labels resolved from
// this program's own IR).
type Operand struct {
	Kind  OperandKind
	Imm   int64
	Reg   Register
	Base  Register
	Disp  int64
	Label string
	Text  string
	Addr  uint64
}

func Imm(v int64) Operand                { return Operand{Kind: OperandImmediate, Imm: v} }
func Reg(r Register) Operand             { return Operand{Kind: OperandRegister, Reg: r} }
func Mem(base Register, disp int64) Operand {
	return Operand{Kind: OperandMemory, Base: base, Disp: disp}
}
func Lbl(name string) Operand    { return Operand{Kind: OperandLabel, Label: name} }
func Str(s string) Operand       { return Operand{Kind: OperandString, Text: s} }
func None() Operand              { return Operand{Kind: OperandNone} }
func Addr(a uint64) Operand      { return Operand{Kind: OperandAddr, Addr: a} }

func (o Operand) String() string {
	switch o.Kind {
	case OperandImmediate:
		return fmt.Sprintf("%d", o.Imm)
	case OperandRegister:
		return o.Reg.String()
	case OperandMemory:
		if o.Disp >= 0 {
			return fmt.Sprintf("[%s+%d]", o.Base, o.Disp)
		}
		return fmt.Sprintf("[%s%d]", o.Base, o.Disp)
	case OperandLabel:
		return o.Label
	case OperandString:
		return fmt.Sprintf("%q", o.Text)
	case OperandAddr:
		return fmt.Sprintf("0x%x", o.Addr)
	default:
		return "<none>"
	}
}

// Handle is an index into a List's node arena. The zero Handle (index 0)
// is never a valid node handle — List reserves slot 0 as its sentinel, so
// a Handle of 0 doubles as "no handle" (e.g. an unresolved JumpTarget).
type Handle int

const noHandle Handle = 0

// Node is one IR instruction: an opcode, up to two operands, an optional
// label marking this position, and the cross-links a List threads through
// its arena. NeedPatch/JumpTarget implement spec.md's back-patch
// machinery; AddrBegin/AddrEnd are populated per layout pass (see
// internal/pipeline).
type Node struct {
	Op         Opcode
	Label      string // non-empty when this node marks a label position
	NumOperand int
	Operand1   Operand
	Operand2   Operand
	NeedPatch  bool
	JumpTarget Handle

	AddrBegin uint64
	AddrEnd   uint64

	next, prev Handle
}

// List is a circular doubly linked list of Nodes, backed by a single
// arena slice so handles remain stable across growth. Slot 0 is a
// sentinel: Head/Tail/PushBack/iteration are all O(1).
type List struct {
	arena []Node
}

// NewList returns an empty List, already containing its sentinel node.
func NewList() *List {
	l := &List{arena: make([]Node, 1)}
	l.arena[0].next = noHandle
	l.arena[0].prev = noHandle
	return l
}

// Sentinel returns the handle of the list's sentinel node. It carries no
// instruction; Head() and Tail() are relative to it.
func (l *List) Sentinel() Handle { return noHandle }

// Head returns the first real node, or the sentinel if the list is empty.
func (l *List) Head() Handle { return l.arena[noHandle].next }

// Tail returns the last real node, or the sentinel if the list is empty.
func (l *List) Tail() Handle { return l.arena[noHandle].prev }

// Next returns the node after h, wrapping to the sentinel at the end.
func (l *List) Next(h Handle) Handle { return l.arena[h].next }

// Prev returns the node before h, wrapping to the sentinel at the start.
func (l *List) Prev(h Handle) Handle { return l.arena[h].prev }

// Node returns a pointer to the Node at h for in-place mutation (setting
// AddrBegin/AddrEnd/JumpTarget during layout).
func (l *List) Node(h Handle) *Node { return &l.arena[h] }

// PushBack appends n to the end of the list and returns its handle.
func (l *List) PushBack(n Node) Handle {
	h := Handle(len(l.arena))
	n.next = noHandle
	tail := l.arena[noHandle].prev
	n.prev = tail
	l.arena = append(l.arena, n)
	l.arena[tail].next = h
	l.arena[noHandle].prev = h
	return h
}

// Len returns the number of real (non-sentinel) nodes.
func (l *List) Len() int {
	return len(l.arena) - 1
}

// Each calls fn for every real node in list order.
func (l *List) Each(fn func(h Handle, n *Node)) {
	for h := l.Head(); h != l.Sentinel(); h = l.Next(h) {
		fn(h, l.Node(h))
	}
}
