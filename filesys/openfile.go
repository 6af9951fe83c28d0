package filesys

import (
	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/fileheader"
	"github.com/jnwhiteh/nachosfs/ksync"
)

// slot mirrors spec.md §3's open-file-table entry:
// {valid, name, lock, refcount, should_delete}. The per-name lock
// serializes concurrent Read/Write calls against the same open name
// (spec.md §4.4).
type slot struct {
	valid        bool
	sector       int
	path         string
	refcount     int
	shouldDelete bool
	lock         *ksync.Lock
}

// openFileTable is the process-wide array of config.MaxOpenedFiles slots.
// Its own mutex guards only slot bookkeeping (acquire/release/
// markShouldDelete); it is independent of FileSystem.mu, which guards
// directory and bitmap mutation, so that a deferred unlink triggered from
// release can acquire FileSystem.mu without risking deadlock against a
// caller already holding it.
type openFileTable struct {
	mu      *ksync.Lock
	entries [config.MaxOpenedFiles]slot
}

func (t *openFileTable) init() {
	t.mu = ksync.NewLock("open-file-table")
	for i := range t.entries {
		t.entries[i].lock = ksync.NewLock("open-file")
	}
}

// acquire registers sector as open under path, incrementing its refcount if
// it is already open, or allocating a free slot for it otherwise.
func (t *openFileTable) acquire(sector int, path string) (int, error) {
	t.mu.Acquire()
	defer t.mu.Release()

	for i := range t.entries {
		if t.entries[i].valid && t.entries[i].sector == sector {
			t.entries[i].refcount++
			return i, nil
		}
	}
	for i := range t.entries {
		if !t.entries[i].valid {
			t.entries[i] = slot{valid: true, sector: sector, path: path, refcount: 1, lock: t.entries[i].lock}
			return i, nil
		}
	}
	return -1, ErrTooManyOpen
}

// markShouldDelete flags sector for deferred deletion if it is currently
// open, reporting whether it was open.
func (t *openFileTable) markShouldDelete(sector int) bool {
	t.mu.Acquire()
	defer t.mu.Release()
	for i := range t.entries {
		if t.entries[i].valid && t.entries[i].sector == sector {
			t.entries[i].shouldDelete = true
			return true
		}
	}
	return false
}

// release decrements idx's refcount, freeing the slot and performing the
// deferred unlink (spec.md §3: "should_delete ⇒ unlinked as soon as
// refcount drops to 0") if this was the last reference.
func (t *openFileTable) release(fs *FileSystem, idx int) error {
	t.mu.Acquire()
	e := t.entries[idx]
	if !e.valid {
		t.mu.Release()
		return ErrBadHandle
	}
	e.refcount--
	if e.refcount > 0 {
		t.entries[idx].refcount = e.refcount
		t.mu.Release()
		return nil
	}
	t.entries[idx] = slot{lock: e.lock}
	t.mu.Release()

	if e.shouldDelete {
		return fs.unlinkDeferred(e.path, e.sector)
	}
	return nil
}

// OpenFile is a handle returned by FileSystem.Open, bound to a slot in the
// process-wide open-file table and to the header it names. pos is the
// handle's own read/write cursor, advanced by Read/Write the way a Unix
// file descriptor's does -- distinct from ReadAt/WriteAt's explicit
// offsets, which every other handle sharing this open name is unaffected
// by.
type OpenFile struct {
	fs   *FileSystem
	slot int
	file *fileheader.File
	pos  int
}

// Read reads up to len(buf) bytes starting at this handle's current cursor
// and advances the cursor by the number of bytes actually read -- the fd
// semantics the Read syscall (spec.md §4.5) needs, since that syscall
// carries no explicit offset.
func (of *OpenFile) Read(buf []byte) (int, error) {
	n, err := of.ReadAt(buf, of.pos)
	of.pos += n
	return n, err
}

// Write writes buf starting at this handle's current cursor and advances
// the cursor by the number of bytes written.
func (of *OpenFile) Write(buf []byte) (int, error) {
	n, err := of.WriteAt(buf, of.pos)
	of.pos += n
	return n, err
}

// Length returns the file's current logical length.
func (of *OpenFile) Length() int { return of.file.Length() }

// ReadAt reads under the slot's per-name lock, serializing against
// concurrent Read/Write on the same open name (spec.md §4.4, §5).
func (of *OpenFile) ReadAt(buf []byte, offset int) (int, error) {
	l := of.fs.table.entries[of.slot].lock
	l.Acquire()
	defer l.Release()
	return of.file.ReadAt(buf, offset)
}

// WriteAt writes under the slot's per-name lock.
func (of *OpenFile) WriteAt(buf []byte, offset int) (int, error) {
	l := of.fs.table.entries[of.slot].lock
	l.Acquire()
	defer l.Release()
	n, err := of.file.WriteAt(buf, offset)
	if err != nil {
		return n, err
	}
	return n, of.file.Header.WriteBack(of.fs.disk, of.file.Sector)
}

// Close releases this handle back to the file system.
func (of *OpenFile) Close() error {
	return of.fs.Close(of)
}
