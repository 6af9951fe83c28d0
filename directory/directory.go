// Package directory implements the hierarchical directory of file-name to
// header-sector mappings (spec.md §4.3, C3): an in-memory table of
// fixed-record entries with variable-length, 4-byte-padded names, backed by
// a regular file. Grounded directly on
// original_source/code/filesys/directory.cc for FetchFrom/WriteBack/
// FindIndex/Add/Remove, and on filesys.cc's Recurse/Splite for path
// resolution -- turned from fatal ASSERTs into typed errors per spec.md
// §4.3's explicit recommendation.
package directory

import (
	"encoding/binary"
	"errors"

	"github.com/jnwhiteh/nachosfs/fileheader"
)

// entryRecordSize is the fixed portion of one on-disk directory entry:
// inUse, sector, nameSize, totalSize, each a 4-byte word.
const entryRecordSize = 16

// ErrNotFound is returned when a name (or an intermediate path component)
// cannot be resolved.
var ErrNotFound = errors.New("directory: not found")

// ErrExists is returned by Add when name is already present.
var ErrExists = errors.New("directory: already exists")

// ErrDirectoryFull is returned by Add when no free slot remains in the
// (non-extensible, per spec.md §1 Non-goals) entry table.
var ErrDirectoryFull = errors.New("directory: no free entry")

// ErrNotADirectory is returned when a path component that must resolve to
// a directory resolves to a regular file instead.
var ErrNotADirectory = errors.New("directory: not a directory")

type entry struct {
	inUse     bool
	sector    int32
	nameSize  int32
	totalSize int32
}

// Directory is the in-memory table backing one directory file.
type Directory struct {
	table []entry
	names []string
}

// New creates an empty directory with room for size entries.
func New(size int) *Directory {
	return &Directory{table: make([]entry, size), names: make([]string, size)}
}

// Find returns the header sector of name's entry, or -1 if absent.
func (dir *Directory) Find(name string) int {
	i := dir.findIndex(name)
	if i == -1 {
		return -1
	}
	return int(dir.table[i].sector)
}

func (dir *Directory) findIndex(name string) int {
	for i, e := range dir.table {
		if e.inUse && dir.names[i] == name {
			return i
		}
	}
	return -1
}

// Add inserts name -> sector into the first free slot. It fails if name is
// already present or the table has no free slot.
func (dir *Directory) Add(name string, sector int) error {
	if dir.findIndex(name) != -1 {
		return ErrExists
	}
	for i, e := range dir.table {
		if e.inUse {
			continue
		}
		paddedSize := ((len(name) + 3) / 4) * 4
		if paddedSize == 0 {
			paddedSize = 4
		}
		dir.table[i] = entry{
			inUse:     true,
			sector:    int32(sector),
			nameSize:  int32(paddedSize),
			totalSize: int32(entryRecordSize + paddedSize),
		}
		dir.names[i] = name
		return nil
	}
	return ErrDirectoryFull
}

// Remove frees name's slot. The caller is responsible for writing the
// directory back afterwards.
func (dir *Directory) Remove(name string) bool {
	i := dir.findIndex(name)
	if i == -1 {
		return false
	}
	dir.table[i] = entry{}
	dir.names[i] = ""
	return true
}

// List returns the names of every in-use entry.
func (dir *Directory) List() []string {
	var out []string
	for i, e := range dir.table {
		if e.inUse {
			out = append(out, dir.names[i])
		}
	}
	return out
}

// FetchFrom reads the whole directory file into memory, replacing the
// table's current contents.
func (dir *Directory) FetchFrom(file *fileheader.File) error {
	for i := range dir.table {
		dir.table[i] = entry{}
		dir.names[i] = ""
	}

	size := file.Length()
	if size == 0 {
		return nil
	}
	buf := make([]byte, size)
	if _, err := file.ReadAt(buf, 0); err != nil {
		return err
	}

	pos := 0
	for cur := 0; cur < len(dir.table) && pos < size; cur++ {
		if pos+entryRecordSize > size {
			break
		}
		rec := decodeEntry(buf[pos : pos+entryRecordSize])
		if rec.inUse {
			nameBytes := buf[pos+entryRecordSize : pos+entryRecordSize+int(rec.nameSize)]
			end := indexZero(nameBytes)
			dir.table[cur] = rec
			dir.names[cur] = string(nameBytes[:end])
		}
		pos += int(rec.totalSize)
	}
	return nil
}

// WriteBack serializes every in-use entry back to file, clearing the
// header's num_bytes first (original_source/directory.cc's WriteBack does
// the same) so that bytes not rewritten here are truncated from the
// logical view -- this is what lets the directory file "shrink" as entries
// are removed even though its physical allocation never does.
func (dir *Directory) WriteBack(file *fileheader.File) error {
	var buf []byte
	for i, e := range dir.table {
		if !e.inUse {
			continue
		}
		buf = append(buf, encodeEntry(e)...)
		nameBuf := make([]byte, e.nameSize)
		copy(nameBuf, dir.names[i])
		buf = append(buf, nameBuf...)
	}
	file.Header.NumBytes = 0
	if len(buf) == 0 {
		return nil
	}
	_, err := file.WriteAt(buf, 0)
	return err
}

func encodeEntry(e entry) []byte {
	buf := make([]byte, entryRecordSize)
	inUse := int32(0)
	if e.inUse {
		inUse = 1
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(inUse))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.sector))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(e.nameSize))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(e.totalSize))
	return buf
}

func decodeEntry(buf []byte) entry {
	return entry{
		inUse:     binary.LittleEndian.Uint32(buf[0:4]) != 0,
		sector:    int32(binary.LittleEndian.Uint32(buf[4:8])),
		nameSize:  int32(binary.LittleEndian.Uint32(buf[8:12])),
		totalSize: int32(binary.LittleEndian.Uint32(buf[12:16])),
	}
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}

// TableSize returns the fixed number of entry slots.
func (dir *Directory) TableSize() int { return len(dir.table) }
