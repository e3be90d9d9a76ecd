// Package names implements the interned-identifier data model of spec.md
// §3: a global append-only name table shared by every lexeme (identifiers
// and string literals alike), plus a per-function local table of
// parameters and locals. A Name's Table index is stable for its entire
// lifetime, so the AST carries indices rather than strings.
package names

import "github.com/xyproto/c57/internal/ir"

// Name is an interned identifier or literal. Text is owned by the Table
// that created it. Offset/Base are meaningful only for parameter/local
// entries in a function's own Table, set once lowering decides where the
// name lives; a function's own entry in the global Table never has these
// set, since internal/lower rebuilds each function's local Table directly
// from its AST header and body rather than keeping one attached here —
// the frontend/backend split re-parses the printed AST in a separate
// process with a fresh names.Table, so nothing can survive as a pointer
// between the two Tables anyway.
type Name struct {
	Text   string
	Offset int64 // frame offset relative to RBP; 0 until assigned by lowering
	Base   ir.Register
}

// Table is an append-only, index-addressed collection of Names. The zero
// value is not usable; use New.
type Table struct {
	entries []Name
	byText  map[string]int
}

// New returns an empty Table.
func New() *Table {
	return &Table{byText: make(map[string]int)}
}

// Intern returns the index of text, inserting a new Name if this is the
// first occurrence. Used both for declarations and first-seen string
// literals; declaration-specific fields (Offset, Base) are set afterward
// by the caller via SetFrame.
func (t *Table) Intern(text string) int {
	if idx, ok := t.byText[text]; ok {
		return idx
	}
	idx := len(t.entries)
	t.entries = append(t.entries, Name{Text: text})
	t.byText[text] = idx
	return idx
}

// Lookup returns the index of an already-declared identifier. The second
// return is false if text has never been interned — a semantic error at
// the call site (use of an undeclared name).
func (t *Table) Lookup(text string) (int, bool) {
	idx, ok := t.byText[text]
	return idx, ok
}

// Declare interns text at a declaration site. It behaves exactly like
// Intern: an already-present text returns its existing index, matching the
// source language's append-only table. No duplicate-declaration check is
// made here or by the parser; a repeated declaration reuses the entry.
func (t *Table) Declare(text string) int {
	return t.Intern(text)
}

// SetFrame records the frame offset and base register for the name at idx
// — called once lowering has decided where a parameter or local lives.
func (t *Table) SetFrame(idx int, offset int64, base ir.Register) {
	t.entries[idx].Offset = offset
	t.entries[idx].Base = base
}

// Get returns the Name at idx. idx must have come from Intern/Lookup/Declare
// on this Table.
func (t *Table) Get(idx int) Name {
	return t.entries[idx]
}

// Len returns the number of interned entries.
func (t *Table) Len() int {
	return len(t.entries)
}
