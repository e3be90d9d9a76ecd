// Package listing renders an IR program to a NASM-style text listing when
// backend is run with -S (spec.md §6 Flags, SPEC_FULL.md §4.11). It
// operates on the IR exactly as it stands after layout pass 1: addresses
// are known, but jump/call/rodata operands are still symbolic label
// names rather than resolved rel32/disp32 values, mirroring the
// original's PrintEntry/PrintOperation/PrintLabel debug dump
// (x64Translate.cpp) reborn as Go text templates — small enough that
// bringing in a third-party templating library over the standard
// text/template would buy nothing (see DESIGN.md).
package listing

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/xyproto/c57/internal/ir"
)

var headerTmpl = template.Must(template.New("header").Parse(
	`; c57 listing
; {{.Count}} instruction(s), program base 0x{{printf "%x" .Base}}
;
`))

var lineTmpl = template.Must(template.New("line").Parse(
	"{{printf \"%08x\" .Addr}}  {{printf \"%-16s\" .Label}}{{printf \"%-8s\" .Mnemonic}}{{.Operands}}\n",
))

type headerData struct {
	Count int
	Base  uint64
}

type lineData struct {
	Addr     uint64
	Label    string
	Mnemonic string
	Operands string
}

// Write renders prog to w. base is the program's virtual load address
// (elfwriter.ProgramVirtAddr in practice), used only for the header
// banner since each node already carries its own AddrBegin from layout
// pass 1.
func Write(w io.Writer, prog *ir.List, base uint64) error {
	if err := headerTmpl.Execute(w, headerData{Count: prog.Len(), Base: base}); err != nil {
		return err
	}
	var execErr error
	prog.Each(func(h ir.Handle, n *ir.Node) {
		if execErr != nil {
			return
		}
		label := ""
		if n.Label != "" {
			label = n.Label + ":"
		}
		execErr = lineTmpl.Execute(w, lineData{
			Addr:     n.AddrBegin,
			Label:    label,
			Mnemonic: strings.ToLower(n.Op.String()),
			Operands: operandList(n),
		})
	})
	return execErr
}

func operandList(n *ir.Node) string {
	var parts []string
	if n.Operand1.Kind != ir.OperandNone {
		parts = append(parts, formatOperand(n.Operand1))
	}
	if n.Operand2.Kind != ir.OperandNone {
		parts = append(parts, formatOperand(n.Operand2))
	}
	return strings.Join(parts, ", ")
}

// formatOperand renders one operand in NASM-ish syntax: lowercase
// registers, "[base+disp]" memory, bare immediates and labels, quoted
// strings, and a hex literal for a fixed stdlib address — matching
// ir.Operand.String() except for register/memory casing, which NASM
// convention lowercases.
func formatOperand(o ir.Operand) string {
	switch o.Kind {
	case ir.OperandRegister:
		return strings.ToLower(o.Reg.String())
	case ir.OperandMemory:
		base := strings.ToLower(o.Base.String())
		if o.Disp >= 0 {
			return fmt.Sprintf("[%s+%d]", base, o.Disp)
		}
		return fmt.Sprintf("[%s%d]", base, o.Disp)
	default:
		return o.String()
	}
}
