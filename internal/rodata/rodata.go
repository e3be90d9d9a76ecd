// Package rodata implements the read-only data interner of spec.md §4.4:
// every floating-point immediate and every string literal used in a
// program is deduplicated into a single table, each entry addressed by a
// label that the x86-64 encoder load-via-RIP-relative-addressing resolves
// once final rodata addresses are known (spec.md §4.6's two-pass layout).
package rodata

import (
	"fmt"
	"math"
)

// Table deduplicates doubles and strings into stable, label-addressed
// entries. The zero value is not usable; use New.
type Table struct {
	doubles      []float64
	doubleLabel  map[float64]string
	strings      []string
	stringLabel  map[string]string
	doubleAddrs  map[string]uint64
	stringAddrs  map[string]uint64
}

// New returns an empty Table.
func New() *Table {
	return &Table{
		doubleLabel: make(map[float64]string),
		stringLabel: make(map[string]string),
		doubleAddrs: make(map[string]uint64),
		stringAddrs: make(map[string]uint64),
	}
}

// InternDouble records v (already converted from the source integer
// literal to its IEEE-754 double representation by the lowering stage)
// and returns its label. Repeated values share one entry and one label.
func (t *Table) InternDouble(v float64) string {
	if label, ok := t.doubleLabel[v]; ok {
		return label
	}
	label := doubleLabelFor(v)
	t.doubleLabel[v] = label
	t.doubles = append(t.doubles, v)
	return label
}

// InternString records s and returns its label.
func (t *Table) InternString(s string) string {
	if label, ok := t.stringLabel[s]; ok {
		return label
	}
	label := fmt.Sprintf("STR_%d", len(t.strings))
	t.stringLabel[s] = label
	t.strings = append(t.strings, s)
	return label
}

// doubleLabelFor names a double literal XMM_VALUE_<n> for non-negative
// values and XMM_VALUE__<n> (double underscore) for negative ones, since
// the label alphabet excludes '-'.
func doubleLabelFor(v float64) string {
	if v < 0 || math.Signbit(v) {
		return fmt.Sprintf("XMM_VALUE__%d", int64(math.Abs(v)))
	}
	return fmt.Sprintf("XMM_VALUE_%d", int64(v))
}

// Doubles returns the interned doubles in insertion order.
func (t *Table) Doubles() []float64 { return t.doubles }

// Strings returns the interned strings in insertion order.
func (t *Table) Strings() []string { return t.strings }

// LabelForDouble returns the label assigned to v, if interned.
func (t *Table) LabelForDouble(v float64) (string, bool) {
	l, ok := t.doubleLabel[v]
	return l, ok
}

// LabelForString returns the label assigned to s, if interned.
func (t *Table) LabelForString(s string) (string, bool) {
	l, ok := t.stringLabel[s]
	return l, ok
}

// AssignAddresses lays the interned doubles (8 bytes each, aligned) out
// first, then the strings (NUL-terminated), starting at base — called
// once between the two layout passes of spec.md §4.6 when all rodata
// usage is known. It returns the total size of the region.
func (t *Table) AssignAddresses(base uint64) uint64 {
	addr := base
	for _, v := range t.doubles {
		label := t.doubleLabel[v]
		t.doubleAddrs[label] = addr
		addr += 8
	}
	for _, s := range t.strings {
		label := t.stringLabel[s]
		t.stringAddrs[label] = addr
		addr += uint64(len(s)) + 1
	}
	return addr - base
}

// Address returns the assigned address of label, which must already have
// been produced by AssignAddresses.
func (t *Table) Address(label string) (uint64, bool) {
	if a, ok := t.doubleAddrs[label]; ok {
		return a, true
	}
	a, ok := t.stringAddrs[label]
	return a, ok
}

// Bytes renders the final rodata segment contents, in the same order
// AssignAddresses laid them out in.
func (t *Table) Bytes() []byte {
	var out []byte
	for _, v := range t.doubles {
		out = append(out, doubleBytes(v)...)
	}
	for _, s := range t.strings {
		out = append(out, []byte(s)...)
		out = append(out, 0)
	}
	return out
}

func doubleBytes(v float64) []byte {
	bits := math.Float64bits(v)
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (8 * i))
	}
	return b
}
