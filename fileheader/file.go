package fileheader

import (
	"github.com/jnwhiteh/nachosfs/bitmap"
	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/disk"
)

// File is a header bound to a disk, an indirect-block cache and the
// filesystem's shared free map, exposing byte-range I/O the way NACHOS's
// OpenFile does. It is the SectorFile both bitmap.Fetch/WriteBack and
// directory.FetchFrom/WriteBack are written against, so the bitmap and
// directory files are read and written through the exact same code path an
// ordinary regular file uses (spec.md §3: "Both the bitmap and the
// directory are represented as normal files").
type File struct {
	Header  *FileHeader
	Sector  int // the sector this header itself lives in
	disk    disk.Disk
	cache   *IndirectCache
	freeMap *bitmap.Bitmap // shared with the owning FileSystem; nil disables growth
}

// NewFile wraps header (already fetched or freshly allocated) for I/O.
func NewFile(header *FileHeader, sector int, d disk.Disk, cache *IndirectCache, freeMap *bitmap.Bitmap) *File {
	return &File{Header: header, Sector: sector, disk: d, cache: cache, freeMap: freeMap}
}

// Length returns the file's current logical length.
func (f *File) Length() int { return f.Header.FileLength() }

// ReadAt reads len(buf) bytes starting at offset, sector at a time.
func (f *File) ReadAt(buf []byte, offset int) (int, error) {
	n := len(buf)
	if offset+n > f.Header.FileLength() {
		n = f.Header.FileLength() - offset
	}
	if n <= 0 {
		return 0, nil
	}
	read := 0
	for read < n {
		pos := offset + read
		sector, err := f.Header.ByteToSector(f.disk, f.cache, pos)
		if err != nil {
			return read, err
		}
		sectorBuf := make([]byte, config.SectorSize)
		if err := disk.SyncRead(f.disk, sector, sectorBuf); err != nil {
			return read, err
		}
		within := pos % config.SectorSize
		chunk := config.SectorSize - within
		if chunk > n-read {
			chunk = n - read
		}
		copy(buf[read:read+chunk], sectorBuf[within:within+chunk])
		read += chunk
	}
	return read, nil
}

// WriteAt writes len(buf) bytes starting at offset, growing the header's
// physical allocation first if offset+len(buf) exceeds the currently
// allocated capacity -- the mechanism behind a directory file's lazy
// growth on write-back (spec.md §1 Non-goals).
func (f *File) WriteAt(buf []byte, offset int) (int, error) {
	n := len(buf)
	end := offset + n
	capacity := int(f.Header.NumSectors) * config.SectorSize
	if end > capacity {
		if f.freeMap == nil {
			return 0, disk.ErrOutOfRange
		}
		ok, err := f.Header.Allocate(f.disk, f.cache, f.freeMap, end-capacity)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, disk.ErrOutOfRange
		}
	}

	written := 0
	for written < n {
		pos := offset + written
		sector, err := f.Header.ByteToSector(f.disk, f.cache, pos)
		if err != nil {
			return written, err
		}
		within := pos % config.SectorSize
		chunk := config.SectorSize - within
		if chunk > n-written {
			chunk = n - written
		}
		sectorBuf := make([]byte, config.SectorSize)
		// Partial-sector writes must preserve the untouched bytes.
		if within != 0 || chunk != config.SectorSize {
			if err := disk.SyncRead(f.disk, sector, sectorBuf); err != nil {
				return written, err
			}
		}
		copy(sectorBuf[within:within+chunk], buf[written:written+chunk])
		if err := disk.SyncWrite(f.disk, sector, sectorBuf); err != nil {
			return written, err
		}
		written += chunk
	}

	if end > f.Header.FileLength() {
		f.Header.AdvanceLength(end - f.Header.FileLength())
	}
	return written, nil
}
