package filesys

import (
	"log"

	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/directory"
	"github.com/jnwhiteh/nachosfs/fileheader"
)

// Debug dumps the bitmap's free count, the root directory's entries and
// every regular file's header underneath it. Grounded on
// original_source/code/filesys/filesys.cc's Print, dropped from spec.md's
// operation list but not excluded by any Non-goal.
func (fs *FileSystem) Debug() {
	fs.mu.Acquire()
	defer fs.mu.Release()

	log.Printf("filesys: %d/%d sectors free", fs.freeMap.NumClear(), fs.freeMap.NumBits())
	fs.debugDirectory(config.DirectorySector)
}

func (fs *FileSystem) debugDirectory(sector int) {
	dir, _, err := directory.Load(fs.disk, fs.cache, fs.freeMap, sector)
	if err != nil {
		log.Printf("filesys: could not load directory @%d: %v", sector, err)
		return
	}
	directory.Dump(sector, dir)

	for _, name := range dir.List() {
		child := dir.Find(name)
		h := &fileheader.FileHeader{}
		if err := h.Fetch(fs.disk, child); err != nil {
			continue
		}
		fileheader.Dump(child, h)
		if h.IsDirectory() {
			fs.debugDirectory(child)
		}
	}
}
