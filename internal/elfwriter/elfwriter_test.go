package elfwriter

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWriteProducesValidElfHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, []byte{0x90}, []byte{0x01, 0x02}, []byte{0xF4}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.Bytes()
	if !bytes.Equal(out[0:4], []byte{0x7F, 'E', 'L', 'F'}) {
		t.Fatalf("bad magic: %x", out[0:4])
	}
	if out[4] != 2 {
		t.Fatalf("expected ELFCLASS64, got %d", out[4])
	}
	entry := binary.LittleEndian.Uint64(out[24:32])
	if entry != ProgramVirtAddr {
		t.Fatalf("entry point = 0x%x, want 0x%x", entry, ProgramVirtAddr)
	}
	phnum := binary.LittleEndian.Uint16(out[56:58])
	if phnum != 3 {
		t.Fatalf("expected 3 program headers, got %d", phnum)
	}
}

func TestSegmentsLandAtFixedOffsets(t *testing.T) {
	var buf bytes.Buffer
	stdlib := []byte{0x01}
	rodata := []byte{0x02, 0x03}
	program := []byte{0x04, 0x05, 0x06}
	if err := Write(&buf, stdlib, rodata, program); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.Bytes()
	if out[StdlibFileOffset] != stdlib[0] {
		t.Fatalf("stdlib byte not at its fixed offset")
	}
	if out[RodataFileOffset] != rodata[0] || out[RodataFileOffset+1] != rodata[1] {
		t.Fatalf("rodata bytes not at their fixed offset")
	}
	if out[ProgramFileOffset] != program[0] {
		t.Fatalf("program byte not at its fixed offset")
	}
}
