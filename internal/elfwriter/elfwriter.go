// Package elfwriter emits the fixed-layout static ELF64 executable of
// spec.md §4.6: three PT_LOAD segments — a prebuilt stdlib code blob, a
// rodata segment, and the user program's own code — at addresses and
// file offsets fixed at compile time rather than computed, grounded on
// the original x64Elf.cpp's ElfHeader/ProgramCodePheader/StdLibPheader/
// RodataPheader constants and the teacher's own elf.go header-writing
// style.
package elfwriter

import (
	"encoding/binary"
	"io"

	cerrors "github.com/xyproto/c57/internal/errors"
)

const (
	// StdlibFileOffset is where the embedded stdlib code blob starts in
	// the output file and in virtual memory (mapped 1:1 for this segment).
	StdlibFileOffset = 0x1000
	StdlibVirtAddr   = 0x401000

	// RodataFileOffset is where interned doubles and strings start.
	RodataFileOffset = 0x2000
	RodataVirtAddr   = 0x402000

	// ProgramFileOffset is where the user program's own code starts, and
	// is also the entry point: control transfers here first.
	ProgramFileOffset = 0x3000
	ProgramVirtAddr   = 0x403000
)

// Well-known stdlib entry points, fixed by the prebuilt blob's own
// layout (spec.md §4.6): the lowering stage CALLs these directly rather
// than resolving symbols at link time, since there is no linker.
//
// SIN/COS/TAN/COT/POW are this implementation's own extension of the
// stdlib beyond plain I/O and halt: the original compiler's x64 backend
// left F_SIN/F_COS/F_TAN/F_COT as unimplemented TODOs and never lowered
// POW to x64 at all (x64Operations.h), since none of the five has a
// native SSE2 scalar-double instruction. Routing them through the
// stdlib, the same way IN_FLOAT/OUT_FLOAT already are, keeps the x86
// encoder limited to instructions that actually exist and keeps every
// unresolved-address CALL target in one place.
const (
	StdlibInFloat   = 0x401000
	StdlibOutString = 0x40110A
	StdlibOutFloat  = 0x401153
	StdlibSin       = 0x401193
	StdlibCos       = 0x4011D3
	StdlibTan       = 0x401213
	StdlibCot       = 0x401253
	StdlibPow       = 0x401293
	StdlibHalt      = 0x4012C3
)

// Segment is one PT_LOAD payload to place at a fixed file offset and
// virtual address.
type Segment struct {
	FileOffset uint64
	VirtAddr   uint64
	Data       []byte
	Executable bool
	Writable   bool
}

const ehdrSize = 64
const phdrSize = 56

// Write assembles the final ELF64 file from the three fixed segments and
// writes it to w. The entry point is always ProgramVirtAddr, per spec.md
// §4.6: the user's own code is the first thing that runs, and it falls
// into the stdlib's and its own CALLs as ordinary function calls.
func Write(w io.Writer, stdlib, rodata, program []byte) error {
	segments := []Segment{
		{FileOffset: StdlibFileOffset, VirtAddr: StdlibVirtAddr, Data: stdlib, Executable: true},
		{FileOffset: RodataFileOffset, VirtAddr: RodataVirtAddr, Data: rodata, Writable: false},
		{FileOffset: ProgramFileOffset, VirtAddr: ProgramVirtAddr, Data: program, Executable: true},
	}

	var buf []byte
	buf = appendEhdr(buf, ProgramVirtAddr, len(segments))
	phdrOff := len(buf)
	for range segments {
		buf = append(buf, make([]byte, phdrSize)...)
	}
	for i, seg := range segments {
		for uint64(len(buf)) < seg.FileOffset {
			buf = append(buf, 0)
		}
		if uint64(len(buf)) != seg.FileOffset {
			return cerrors.Internal("elfwriter: segment %d overlaps the previous one at file offset 0x%x", i, len(buf))
		}
		buf = append(buf, seg.Data...)
		writePhdr(buf[phdrOff+i*phdrSize:phdrOff+(i+1)*phdrSize], seg)
	}

	_, err := w.Write(buf)
	return err
}

func appendEhdr(buf []byte, entry uint64, phnum int) []byte {
	e := make([]byte, ehdrSize)
	copy(e[0:4], []byte{0x7F, 'E', 'L', 'F'})
	e[4] = 2 // ELFCLASS64
	e[5] = 1 // ELFDATA2LSB
	e[6] = 1 // EV_CURRENT
	e[7] = 0 // ELFOSABI_SYSV
	binary.LittleEndian.PutUint16(e[16:18], 2) // ET_EXEC
	binary.LittleEndian.PutUint16(e[18:20], 0x3E) // EM_X86_64
	binary.LittleEndian.PutUint32(e[20:24], 1)    // EV_CURRENT
	binary.LittleEndian.PutUint64(e[24:32], entry)
	binary.LittleEndian.PutUint64(e[32:40], ehdrSize) // e_phoff
	binary.LittleEndian.PutUint64(e[40:48], 0)        // e_shoff
	binary.LittleEndian.PutUint32(e[48:52], 0)        // e_flags
	binary.LittleEndian.PutUint16(e[52:54], ehdrSize)
	binary.LittleEndian.PutUint16(e[54:56], phdrSize)
	binary.LittleEndian.PutUint16(e[56:58], uint16(phnum))
	binary.LittleEndian.PutUint16(e[58:60], 0) // e_shentsize
	binary.LittleEndian.PutUint16(e[60:62], 0) // e_shnum
	binary.LittleEndian.PutUint16(e[62:64], 0) // e_shstrndx
	return append(buf, e...)
}

const (
	pfX = 1
	pfW = 2
	pfR = 4
)

func writePhdr(dst []byte, seg Segment) {
	flags := uint32(pfR)
	if seg.Writable {
		flags |= pfW
	}
	if seg.Executable {
		flags |= pfX
	}
	binary.LittleEndian.PutUint32(dst[0:4], 1) // PT_LOAD
	binary.LittleEndian.PutUint32(dst[4:8], flags)
	binary.LittleEndian.PutUint64(dst[8:16], seg.FileOffset)
	binary.LittleEndian.PutUint64(dst[16:24], seg.VirtAddr)
	binary.LittleEndian.PutUint64(dst[24:32], seg.VirtAddr) // p_paddr, unused
	binary.LittleEndian.PutUint64(dst[32:40], uint64(len(seg.Data)))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(len(seg.Data)))
	binary.LittleEndian.PutUint64(dst[48:56], 0x1000) // p_align
}
