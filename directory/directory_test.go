package directory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/nachosfs/bitmap"
	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/directory"
	"github.com/jnwhiteh/nachosfs/disk"
	"github.com/jnwhiteh/nachosfs/fileheader"
)

func newBackedFile(t *testing.T, d disk.Disk, cache *fileheader.IndirectCache, freeMap *bitmap.Bitmap, headerSector int) *fileheader.File {
	t.Helper()
	h := fileheader.New(config.Directory)
	require.NoError(t, freeMap.Mark(headerSector))
	require.NoError(t, h.WriteBack(d, headerSector))
	return fileheader.NewFile(h, headerSector, d, cache, freeMap)
}

func TestAddFindRemove(t *testing.T) {
	dir := directory.New(config.NumDirEntries)

	require.NoError(t, dir.Add("foo", 5))
	assert.Equal(t, 5, dir.Find("foo"))
	assert.Equal(t, -1, dir.Find("bar"))

	assert.ErrorIs(t, dir.Add("foo", 9), directory.ErrExists)

	assert.True(t, dir.Remove("foo"))
	assert.Equal(t, -1, dir.Find("foo"))
	assert.False(t, dir.Remove("foo"))
}

func TestAddDirectoryFull(t *testing.T) {
	dir := directory.New(2)
	require.NoError(t, dir.Add("a", 1))
	require.NoError(t, dir.Add("b", 2))
	assert.ErrorIs(t, dir.Add("c", 3), directory.ErrDirectoryFull)
}

func TestWriteBackFetchFromRoundTrip(t *testing.T) {
	d := disk.NewMemDisk()
	defer d.Close()
	cache, err := fileheader.NewIndirectCache()
	require.NoError(t, err)
	defer cache.Close()
	freeMap := bitmap.New(config.NumSectors)

	file := newBackedFile(t, d, cache, freeMap, 10)

	dir := directory.New(config.NumDirEntries)
	require.NoError(t, dir.Add("alpha", 20))
	require.NoError(t, dir.Add("beta", 21))
	require.NoError(t, dir.WriteBack(file))

	reloaded := directory.New(config.NumDirEntries)
	require.NoError(t, reloaded.FetchFrom(file))

	assert.Equal(t, 20, reloaded.Find("alpha"))
	assert.Equal(t, 21, reloaded.Find("beta"))
	assert.ElementsMatch(t, []string{"alpha", "beta"}, reloaded.List())
}

func TestWriteBackShrinksOnRemove(t *testing.T) {
	d := disk.NewMemDisk()
	defer d.Close()
	cache, err := fileheader.NewIndirectCache()
	require.NoError(t, err)
	defer cache.Close()
	freeMap := bitmap.New(config.NumSectors)

	file := newBackedFile(t, d, cache, freeMap, 10)

	dir := directory.New(config.NumDirEntries)
	require.NoError(t, dir.Add("alpha", 20))
	require.NoError(t, dir.Add("beta", 21))
	require.NoError(t, dir.WriteBack(file))
	firstLen := file.Length()

	dir.Remove("beta")
	require.NoError(t, dir.WriteBack(file))

	assert.Less(t, file.Length(), firstLen)

	reloaded := directory.New(config.NumDirEntries)
	require.NoError(t, reloaded.FetchFrom(file))
	assert.Equal(t, []string{"alpha"}, reloaded.List())
}

func TestWalkRoot(t *testing.T) {
	d := disk.NewMemDisk()
	defer d.Close()
	cache, err := fileheader.NewIndirectCache()
	require.NoError(t, err)
	defer cache.Close()
	freeMap := bitmap.New(config.NumSectors)

	rootFile := newBackedFile(t, d, cache, freeMap, config.DirectorySector)
	rootDir := directory.New(config.NumDirEntries)
	require.NoError(t, rootDir.WriteBack(rootFile))

	parent, _, leaf, err := directory.Walk(d, cache, freeMap, config.DirectorySector, "readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "readme.txt", leaf)
	assert.Equal(t, -1, parent.Find(leaf))
}

func TestWalkNested(t *testing.T) {
	d := disk.NewMemDisk()
	defer d.Close()
	cache, err := fileheader.NewIndirectCache()
	require.NoError(t, err)
	defer cache.Close()
	freeMap := bitmap.New(config.NumSectors)

	const subSector = 30

	rootFile := newBackedFile(t, d, cache, freeMap, config.DirectorySector)
	rootDir := directory.New(config.NumDirEntries)
	require.NoError(t, rootDir.Add("sub", subSector))
	require.NoError(t, rootDir.WriteBack(rootFile))
	require.NoError(t, rootFile.Header.WriteBack(d, config.DirectorySector))

	subFile := newBackedFile(t, d, cache, freeMap, subSector)
	subDir := directory.New(config.NumDirEntries)
	require.NoError(t, subDir.Add("leaf.txt", 40))
	require.NoError(t, subDir.WriteBack(subFile))
	require.NoError(t, subFile.Header.WriteBack(d, subSector))

	parent, _, leaf, err := directory.Walk(d, cache, freeMap, config.DirectorySector, "sub/leaf.txt")
	require.NoError(t, err)
	assert.Equal(t, "leaf.txt", leaf)
	assert.Equal(t, 40, parent.Find(leaf))
}

func TestWalkMissingComponent(t *testing.T) {
	d := disk.NewMemDisk()
	defer d.Close()
	cache, err := fileheader.NewIndirectCache()
	require.NoError(t, err)
	defer cache.Close()
	freeMap := bitmap.New(config.NumSectors)

	rootFile := newBackedFile(t, d, cache, freeMap, config.DirectorySector)
	rootDir := directory.New(config.NumDirEntries)
	require.NoError(t, rootDir.WriteBack(rootFile))

	_, _, _, err = directory.Walk(d, cache, freeMap, config.DirectorySector, "missing/leaf.txt")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestWalkThroughRegularFile(t *testing.T) {
	d := disk.NewMemDisk()
	defer d.Close()
	cache, err := fileheader.NewIndirectCache()
	require.NoError(t, err)
	defer cache.Close()
	freeMap := bitmap.New(config.NumSectors)

	const fileSector = 31

	rootFile := newBackedFile(t, d, cache, freeMap, config.DirectorySector)
	rootDir := directory.New(config.NumDirEntries)
	require.NoError(t, rootDir.Add("notadir", fileSector))
	require.NoError(t, rootDir.WriteBack(rootFile))
	require.NoError(t, rootFile.Header.WriteBack(d, config.DirectorySector))

	regular := fileheader.New(config.Regular)
	require.NoError(t, regular.WriteBack(d, fileSector))

	_, _, _, err = directory.Walk(d, cache, freeMap, config.DirectorySector, "notadir/leaf.txt")
	assert.ErrorIs(t, err, directory.ErrNotADirectory)
}
