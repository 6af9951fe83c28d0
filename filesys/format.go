package filesys

import (
	"github.com/jnwhiteh/nachosfs/bitmap"
	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/directory"
	"github.com/jnwhiteh/nachosfs/disk"
	"github.com/jnwhiteh/nachosfs/fileheader"
)

// Format initializes a fresh disk with the bitmap and root-directory
// headers at their well-known sectors, grounded on
// original_source/code/filesys/filesys.cc's constructor (format branch):
// mark the bitmap's own header sector and the root directory's header
// sector allocated, grow each of those two files to hold their own
// content, and write everything back before any FileSystem.Open call ever
// runs against this disk. The root directory's data sectors are reserved
// here, so adding entries to it within that room takes no sector from the
// free map.
func Format(d disk.Disk) error {
	// Room for NumDirEntries entries: a 16-byte record plus a name of up
	// to 12 bytes each.
	const rootDirectoryBytes = config.NumDirEntries * (16 + 12)

	cache, err := fileheader.NewIndirectCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	freeMap := bitmap.New(config.NumSectors)
	if err := freeMap.Mark(config.FreeMapSector); err != nil {
		return err
	}
	if err := freeMap.Mark(config.DirectorySector); err != nil {
		return err
	}

	freeMapHeader := fileheader.New(config.Regular)
	freeMapFile := fileheader.NewFile(freeMapHeader, config.FreeMapSector, d, cache, freeMap)
	mapBytes := (config.NumSectors + 7) / 8
	ok, err := freeMapHeader.Allocate(d, cache, freeMap, mapBytes)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSpace
	}
	freeMapHeader.AdvanceLength(mapBytes)

	rootHeader := fileheader.New(config.Directory)
	rootFile := fileheader.NewFile(rootHeader, config.DirectorySector, d, cache, freeMap)
	ok, err = rootHeader.Allocate(d, cache, freeMap, rootDirectoryBytes)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSpace
	}

	rootDir := directory.New(config.NumDirEntries)
	if err := rootDir.WriteBack(rootFile); err != nil {
		return err
	}

	if err := bitmap.WriteBack(freeMap, freeMapFile); err != nil {
		return err
	}
	if err := freeMapHeader.WriteBack(d, config.FreeMapSector); err != nil {
		return err
	}
	return rootHeader.WriteBack(d, config.DirectorySector)
}
