package rodata

import "testing"

func TestInternDoubleDeduplicates(t *testing.T) {
	tbl := New()
	a := tbl.InternDouble(57)
	b := tbl.InternDouble(57)
	if a != b {
		t.Fatalf("expected same label, got %q and %q", a, b)
	}
	if len(tbl.Doubles()) != 1 {
		t.Fatalf("expected 1 interned double, got %d", len(tbl.Doubles()))
	}
}

func TestInternDoubleNegativeLabel(t *testing.T) {
	tbl := New()
	label := tbl.InternDouble(-5)
	if label != "XMM_VALUE__5" {
		t.Fatalf("got %q", label)
	}
}

func TestInternStringDeduplicates(t *testing.T) {
	tbl := New()
	a := tbl.InternString("hi")
	b := tbl.InternString("hi")
	c := tbl.InternString("bye")
	if a != b {
		t.Fatalf("expected same label for repeated string")
	}
	if a == c {
		t.Fatalf("expected distinct labels for distinct strings")
	}
}

func TestAssignAddressesInjective(t *testing.T) {
	tbl := New()
	tbl.InternDouble(1)
	tbl.InternDouble(-2)
	tbl.InternString("hello")
	tbl.InternString("world!")
	size := tbl.AssignAddresses(0x2000)

	seen := make(map[uint64]bool)
	for _, v := range tbl.Doubles() {
		label, _ := tbl.LabelForDouble(v)
		addr, ok := tbl.Address(label)
		if !ok {
			t.Fatalf("missing address for %q", label)
		}
		if seen[addr] {
			t.Fatalf("duplicate address %x for %q", addr, label)
		}
		seen[addr] = true
	}
	for _, s := range tbl.Strings() {
		label, _ := tbl.LabelForString(s)
		addr, ok := tbl.Address(label)
		if !ok {
			t.Fatalf("missing address for %q", label)
		}
		if seen[addr] {
			t.Fatalf("duplicate address %x for %q", addr, label)
		}
		seen[addr] = true
	}
	if int(size) != len(tbl.Bytes()) {
		t.Fatalf("AssignAddresses size %d does not match Bytes() length %d", size, len(tbl.Bytes()))
	}
}
