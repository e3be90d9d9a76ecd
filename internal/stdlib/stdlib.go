// Package stdlib loads the prebuilt standard-library code blob that
// every c57 program's CALLs to IN_FLOAT/OUT_STRING/OUT_FLOAT/HLT resolve
// against (spec.md §4.6): a small, separately assembled ELF64 object
// whose own code segment is copied byte-for-byte into the final
// executable's first PT_LOAD at a fixed address. Since there is no
// linker involved, "loading" it means reading the relevant bytes out of
// its own ELF container once at backend start-up.
//
// The blob is read via golang.org/x/sys/unix.Mmap rather than a plain
// os.ReadFile, mirroring the teacher's own use of golang.org/x/sys/unix
// for zero-copy, syscall-level file access (filewatcher_unix.go's
// inotify loop) — here for read-only sharing of a file that is typically
// reused, unmodified, across every invocation of the backend.
package stdlib

import (
	"encoding/binary"
	"os"

	cerrors "github.com/xyproto/c57/internal/errors"
	"golang.org/x/sys/unix"
)

// Blob is the mmap'd contents of the stdlib ELF object, plus its parsed
// PT_LOAD code segment — the only part the backend ever needs.
type Blob struct {
	data []byte
	Code []byte
}

// Load mmaps path and extracts its single executable PT_LOAD segment's
// bytes. Close must be called to release the mapping.
func Load(path string) (*Blob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cerrors.IO("opening stdlib blob %s: %v", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, cerrors.IO("stat stdlib blob %s: %v", path, err)
	}
	if info.Size() == 0 {
		return nil, cerrors.IO("stdlib blob %s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, cerrors.IO("mmap stdlib blob %s: %v", path, err)
	}

	code, err := extractCodeSegment(data)
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}
	return &Blob{data: data, Code: code}, nil
}

// Close unmaps the blob's backing memory.
func (b *Blob) Close() error {
	if b.data == nil {
		return nil
	}
	err := unix.Munmap(b.data)
	b.data = nil
	return err
}

// extractCodeSegment walks the ELF64 program header table of data and
// returns the bytes of its first executable PT_LOAD segment.
func extractCodeSegment(data []byte) ([]byte, error) {
	const ehdrSize = 64
	if len(data) < ehdrSize || data[0] != 0x7F || string(data[1:4]) != "ELF" {
		return nil, cerrors.IO("stdlib blob is not a valid ELF64 file")
	}
	if data[4] != 2 {
		return nil, cerrors.IO("stdlib blob is not ELFCLASS64")
	}

	phoff := binary.LittleEndian.Uint64(data[32:40])
	phentsize := binary.LittleEndian.Uint16(data[54:56])
	phnum := binary.LittleEndian.Uint16(data[56:58])

	for i := uint16(0); i < phnum; i++ {
		base := phoff + uint64(i)*uint64(phentsize)
		if base+56 > uint64(len(data)) {
			return nil, cerrors.IO("stdlib blob program header %d out of bounds", i)
		}
		ph := data[base : base+56]
		ptype := binary.LittleEndian.Uint32(ph[0:4])
		flags := binary.LittleEndian.Uint32(ph[4:8])
		const ptLoad = 1
		const pfX = 1
		if ptype != ptLoad || flags&pfX == 0 {
			continue
		}
		off := binary.LittleEndian.Uint64(ph[8:16])
		filesz := binary.LittleEndian.Uint64(ph[32:40])
		if off+filesz > uint64(len(data)) {
			return nil, cerrors.IO("stdlib blob executable segment out of bounds")
		}
		return data[off : off+filesz], nil
	}
	return nil, cerrors.IO("stdlib blob has no executable PT_LOAD segment")
}
