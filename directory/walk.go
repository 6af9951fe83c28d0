package directory

import (
	"strings"

	"github.com/jnwhiteh/nachosfs/bitmap"
	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/disk"
	"github.com/jnwhiteh/nachosfs/fileheader"
)

// Load fetches the header at sector, wraps it as a file and reads its
// directory table. It fails with ErrNotADirectory if the header does not
// describe a directory.
func Load(d disk.Disk, cache *fileheader.IndirectCache, freeMap *bitmap.Bitmap, sector int) (*Directory, *fileheader.File, error) {
	h := &fileheader.FileHeader{}
	if err := h.Fetch(d, sector); err != nil {
		return nil, nil, err
	}
	if !h.IsDirectory() {
		return nil, nil, ErrNotADirectory
	}
	file := fileheader.NewFile(h, sector, d, cache, freeMap)
	dir := New(config.NumDirEntries)
	if err := dir.FetchFrom(file); err != nil {
		return nil, nil, err
	}
	return dir, file, nil
}

// Walk resolves every path component but the last, descending directory
// headers starting at rootSector, and returns the loaded directory holding
// the final component together with its own backing file and the leaf
// name still to be looked up in it. It is the Go analogue of filesys.cc's
// Recurse/Splite path splitting, with every fatal ASSERT there replaced by
// a returned error per spec.md §4.3.
//
// An empty path, or a path of only slashes, resolves to the root directory
// itself with an empty leaf name.
func Walk(d disk.Disk, cache *fileheader.IndirectCache, freeMap *bitmap.Bitmap, rootSector int, path string) (parentDir *Directory, parentFile *fileheader.File, leaf string, err error) {
	parts := splitPath(path)
	sector := rootSector

	dir, file, err := Load(d, cache, freeMap, sector)
	if err != nil {
		return nil, nil, "", err
	}
	if len(parts) == 0 {
		return dir, file, "", nil
	}

	for _, part := range parts[:len(parts)-1] {
		next := dir.Find(part)
		if next == -1 {
			return nil, nil, "", ErrNotFound
		}
		dir, file, err = Load(d, cache, freeMap, next)
		if err != nil {
			return nil, nil, "", err
		}
	}
	return dir, file, parts[len(parts)-1], nil
}

func splitPath(path string) []string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
