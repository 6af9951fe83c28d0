// Package fileheader implements the on-disk file header (i-node): a
// fixed-size record mapping logical byte offsets to physical sectors via
// direct and single-indirect pointers (spec.md §4.2, C2). Layout and the
// Allocate/Deallocate algorithms are grounded on
// original_source/code/filesys/filehdr.{h,cc}; the fixed-record byte
// packing follows the teacher's own preference for explicit serializers
// over reflection (design note in spec.md §9).
package fileheader

import (
	"encoding/binary"

	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/disk"
)

// FileHeader is the in-memory form of one sector's worth of i-node.
type FileHeader struct {
	NumBytes     int32
	NumSectors   int32
	Type         int32
	Created      int32
	LastAccess   int32
	LastModified int32
	DataSectors  [config.NumEntries]int32
}

// New creates an empty header of the given type (config.Regular or config.Directory).
func New(fileType int32) *FileHeader {
	return &FileHeader{Type: fileType}
}

// IsDirectory reports whether this header describes a directory file.
func (h *FileHeader) IsDirectory() bool { return h.Type == config.Directory }

// IsRegular reports whether this header describes a regular file.
func (h *FileHeader) IsRegular() bool { return h.Type == config.Regular }

// FileLength returns the file's logical length in bytes.
func (h *FileHeader) FileLength() int { return int(h.NumBytes) }

// AdvanceLength grows the logical length by delta without allocating any
// sectors; the caller must have already reserved the space with Allocate.
func (h *FileHeader) AdvanceLength(delta int) { h.NumBytes += int32(delta) }

// NumIndirectBlocks reports how many single-indirect blocks are currently
// allocated, per the invariant in spec.md §3:
// ceil((num_sectors - DIRECT_ENTRIES) / ENTRIES_PER_SECTOR), or 0.
func (h *FileHeader) NumIndirectBlocks() int {
	n := int(h.NumSectors)
	if n <= config.DirectEntries {
		return 0
	}
	return divRoundUp(n-config.DirectEntries, config.EntriesPerSector)
}

func divRoundUp(n, d int) int {
	return (n + d - 1) / d
}

// Encode packs the header into exactly config.SectorSize bytes, by
// explicit field offset rather than reflection-based marshaling.
func (h *FileHeader) Encode() []byte {
	buf := make([]byte, config.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.NumBytes))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.NumSectors))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.Type))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.Created))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.LastAccess))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(h.LastModified))
	off := 24
	for _, s := range h.DataSectors {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(s))
		off += 4
	}
	return buf
}

// Decode unpacks a header from a config.SectorSize-byte sector image.
func Decode(buf []byte) *FileHeader {
	h := &FileHeader{}
	h.NumBytes = int32(binary.LittleEndian.Uint32(buf[0:4]))
	h.NumSectors = int32(binary.LittleEndian.Uint32(buf[4:8]))
	h.Type = int32(binary.LittleEndian.Uint32(buf[8:12]))
	h.Created = int32(binary.LittleEndian.Uint32(buf[12:16]))
	h.LastAccess = int32(binary.LittleEndian.Uint32(buf[16:20]))
	h.LastModified = int32(binary.LittleEndian.Uint32(buf[20:24]))
	off := 24
	for i := range h.DataSectors {
		h.DataSectors[i] = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	return h
}

// Fetch reads the header from disk sector, one sector of I/O exactly.
func (h *FileHeader) Fetch(d disk.Disk, sector int) error {
	buf := make([]byte, config.SectorSize)
	if err := disk.SyncRead(d, sector, buf); err != nil {
		return err
	}
	*h = *Decode(buf)
	return nil
}

// WriteBack persists the header to disk sector, one sector of I/O exactly.
func (h *FileHeader) WriteBack(d disk.Disk, sector int) error {
	return disk.SyncWrite(d, sector, h.Encode())
}
