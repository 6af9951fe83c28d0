// Package filesys implements the file-system facade (spec.md §4.4, C4):
// Create/Open/Remove/List/Cat/Close against a hierarchical directory tree,
// backed by an open-file table with per-name locking, refcounting and
// deferred delete. Grounded on original_source/code/filesys/filesys.cc for
// the exact all-or-nothing operation sequencing, and on the teacher's
// fs/filp.go for the refcounted open-handle shape.
package filesys

import (
	"errors"

	"github.com/jnwhiteh/nachosfs/bitmap"
	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/directory"
	"github.com/jnwhiteh/nachosfs/disk"
	"github.com/jnwhiteh/nachosfs/fileheader"
	"github.com/jnwhiteh/nachosfs/ksync"
)

// ErrExists is returned by Create when the leaf name is already present.
var ErrExists = errors.New("filesys: already exists")

// ErrNoSpace is returned when the bitmap or the parent directory table has
// no free slot to satisfy a Create.
var ErrNoSpace = errors.New("filesys: no space")

// ErrNotFound is returned by Open/Remove when the path does not resolve to
// an existing entry.
var ErrNotFound = errors.New("filesys: not found")

// ErrTooManyOpen is returned by Open when the process-wide open-file table
// has no free slot left for a name that isn't already open.
var ErrTooManyOpen = errors.New("filesys: too many open files")

// ErrBadHandle is returned by Close when given a handle that does not name
// a currently open slot.
var ErrBadHandle = errors.New("filesys: bad handle")

// FileSystem binds the free bitmap, the root directory and the process-wide
// open-file table into one value, per spec.md §9's instruction to avoid
// ambient singletons: every operation is a method taking no global state.
type FileSystem struct {
	disk    disk.Disk
	cache   *fileheader.IndirectCache
	mu      *ksync.Lock
	freeMap *bitmap.Bitmap
	table   openFileTable
}

// Open returns a *FileSystem bound to an already-formatted disk, reading
// the free map and being ready to walk the root directory on demand. Use
// Format to initialize a fresh disk first.
func Open(d disk.Disk) (*FileSystem, error) {
	cache, err := fileheader.NewIndirectCache()
	if err != nil {
		return nil, err
	}
	fm, err := fetchFreeMap(d, cache)
	if err != nil {
		return nil, err
	}
	fs := &FileSystem{disk: d, cache: cache, freeMap: fm, mu: ksync.NewLock("filesys")}
	fs.table.init()
	return fs, nil
}

// fetchFreeMap reads the bitmap file's header and its full contents.
// *fileheader.File already satisfies bitmap.SectorFile directly.
func fetchFreeMap(d disk.Disk, cache *fileheader.IndirectCache) (*bitmap.Bitmap, error) {
	h := &fileheader.FileHeader{}
	if err := h.Fetch(d, config.FreeMapSector); err != nil {
		return nil, err
	}
	file := fileheader.NewFile(h, config.FreeMapSector, d, cache, nil)
	return bitmap.Fetch(file, config.NumSectors)
}

func (fs *FileSystem) writeFreeMap() error {
	h := &fileheader.FileHeader{}
	if err := h.Fetch(fs.disk, config.FreeMapSector); err != nil {
		return err
	}
	file := fileheader.NewFile(h, config.FreeMapSector, fs.disk, fs.cache, nil)
	if err := bitmap.WriteBack(fs.freeMap, file); err != nil {
		return err
	}
	return file.Header.WriteBack(fs.disk, config.FreeMapSector)
}

// Create walks path to locate the parent directory, verifies the leaf is
// absent, and atomically reserves a header sector, a directory slot and
// initialSize bytes of data for a new file of the given type. Any failure
// aborts leaving no visible on-disk change: nothing is written back before
// every step has succeeded, the in-memory directory copy is discarded, and
// on a shortage of sectors or directory slots the header sector already
// taken from the shared in-memory free map is cleared again.
func (fs *FileSystem) Create(path string, initialSize int, fileType int32) error {
	fs.mu.Acquire()
	defer fs.mu.Release()

	parentDir, parentFile, leaf, err := directory.Walk(fs.disk, fs.cache, fs.freeMap, config.DirectorySector, path)
	if err != nil {
		return err
	}
	if leaf == "" {
		return ErrExists
	}
	if parentDir.Find(leaf) != -1 {
		return ErrExists
	}

	headerSector := fs.freeMap.Find()
	if headerSector == bitmap.NoBit {
		return ErrNoSpace
	}

	if err := parentDir.Add(leaf, headerSector); err != nil {
		fs.freeMap.Clear(headerSector)
		return ErrNoSpace
	}

	header := fileheader.New(fileType)
	file := fileheader.NewFile(header, headerSector, fs.disk, fs.cache, fs.freeMap)
	if initialSize > 0 {
		ok, err := header.Allocate(fs.disk, fs.cache, fs.freeMap, initialSize)
		if err != nil {
			return err
		}
		if !ok {
			fs.freeMap.Clear(headerSector)
			parentDir.Remove(leaf)
			return ErrNoSpace
		}
		header.AdvanceLength(initialSize)
	}

	if err := file.Header.WriteBack(fs.disk, headerSector); err != nil {
		return err
	}
	if err := parentDir.WriteBack(parentFile); err != nil {
		return err
	}
	if err := parentFile.Header.WriteBack(fs.disk, parentFile.Sector); err != nil {
		return err
	}
	return fs.writeFreeMap()
}

// Open resolves path to a header sector and registers/refcounts it in the
// process-wide open-file table, allocating a fresh slot the first time any
// path leads to that sector.
func (fs *FileSystem) Open(path string) (*OpenFile, error) {
	fs.mu.Acquire()
	sector, err := fs.resolve(path)
	fs.mu.Release()
	if err != nil {
		return nil, err
	}

	slot, err := fs.table.acquire(sector, path)
	if err != nil {
		return nil, err
	}

	header := &fileheader.FileHeader{}
	if err := header.Fetch(fs.disk, sector); err != nil {
		fs.table.release(fs, slot)
		return nil, err
	}
	file := fileheader.NewFile(header, sector, fs.disk, fs.cache, fs.freeMap)
	return &OpenFile{fs: fs, slot: slot, file: file}, nil
}

func (fs *FileSystem) resolve(path string) (int, error) {
	parentDir, _, leaf, err := directory.Walk(fs.disk, fs.cache, fs.freeMap, config.DirectorySector, path)
	if err != nil {
		return -1, err
	}
	if leaf == "" {
		return config.DirectorySector, nil
	}
	sector := parentDir.Find(leaf)
	if sector == -1 {
		return -1, ErrNotFound
	}
	return sector, nil
}

// Remove unlinks path. If the file is currently open, the removal is
// deferred: the open-file-table slot is marked should_delete and Remove
// returns (false, nil); the actual unlink happens when the last Close
// observes the flag. If the file is not open, removal is immediate.
func (fs *FileSystem) Remove(path string) (bool, error) {
	fs.mu.Acquire()
	defer fs.mu.Release()

	parentDir, parentFile, leaf, err := directory.Walk(fs.disk, fs.cache, fs.freeMap, config.DirectorySector, path)
	if err != nil {
		return false, err
	}
	sector := parentDir.Find(leaf)
	if sector == -1 {
		return false, ErrNotFound
	}

	if fs.table.markShouldDelete(sector) {
		return false, nil
	}

	return true, fs.removeLocked(parentDir, parentFile, leaf, sector)
}

// removeLocked performs the unconditional unlink; callers must already
// hold fs.mu and have verified the file is not currently open.
func (fs *FileSystem) removeLocked(parentDir *directory.Directory, parentFile *fileheader.File, leaf string, sector int) error {
	header := &fileheader.FileHeader{}
	if err := header.Fetch(fs.disk, sector); err != nil {
		return err
	}
	if err := header.Deallocate(fs.disk, fs.cache, fs.freeMap); err != nil {
		return err
	}
	if err := fs.freeMap.Clear(sector); err != nil {
		return err
	}
	parentDir.Remove(leaf)
	if err := parentDir.WriteBack(parentFile); err != nil {
		return err
	}
	if err := parentFile.Header.WriteBack(fs.disk, parentFile.Sector); err != nil {
		return err
	}
	return fs.writeFreeMap()
}

// List returns the names in the directory at path (or the root if path is
// empty).
func (fs *FileSystem) List(path string) ([]string, error) {
	fs.mu.Acquire()
	defer fs.mu.Release()

	sector, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	dir, _, err := directory.Load(fs.disk, fs.cache, fs.freeMap, sector)
	if err != nil {
		return nil, err
	}
	return dir.List(), nil
}

// Cat reads the entire contents of the regular file at path.
func (fs *FileSystem) Cat(path string) ([]byte, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, file.Length())
	if _, err := file.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// FreeSectors returns the bitmap's current count of free sectors, the
// quantity spec.md §8's bitmap-accounting property is stated in terms of.
func (fs *FileSystem) FreeSectors() int {
	fs.mu.Acquire()
	defer fs.mu.Release()
	return fs.freeMap.NumClear()
}

// Close releases handle's slot in the open-file table, performing the
// deferred unlink if this was the last reference and should_delete was
// set.
func (fs *FileSystem) Close(handle *OpenFile) error {
	return fs.table.release(fs, handle.slot)
}

// unlinkDeferred performs the delayed unlink for a slot whose refcount just
// dropped to zero with should_delete set. It is the counterpart of
// removeLocked for names resolved lazily at the time of the deferred
// delete rather than at the time Remove was called.
func (fs *FileSystem) unlinkDeferred(path string, sector int) error {
	fs.mu.Acquire()
	defer fs.mu.Release()

	parentDir, parentFile, leaf, err := directory.Walk(fs.disk, fs.cache, fs.freeMap, config.DirectorySector, path)
	if err != nil {
		return err
	}
	if parentDir.Find(leaf) != sector {
		return nil
	}
	return fs.removeLocked(parentDir, parentFile, leaf, sector)
}
