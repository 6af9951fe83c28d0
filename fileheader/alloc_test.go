package fileheader_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/nachosfs/bitmap"
	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/disk"
	"github.com/jnwhiteh/nachosfs/fileheader"
)

func newFile(t *testing.T) (*fileheader.File, disk.Disk) {
	t.Helper()
	d := disk.NewMemDisk()
	cache, err := fileheader.NewIndirectCache()
	require.NoError(t, err)
	freeMap := bitmap.New(config.NumSectors)
	header := fileheader.New(config.Regular)
	return fileheader.NewFile(header, 0, d, cache, freeMap), d
}

// TestWriteAtCrossesIndirectionBoundary exercises spec.md §8's
// indirection-boundary property: a file that outgrows its DirectEntries
// direct pointers spills into exactly one single-indirect block, and every
// byte -- direct and indirect alike -- reads back unchanged through ReadAt.
func TestWriteAtCrossesIndirectionBoundary(t *testing.T) {
	f, d := newFile(t)
	defer d.Close()

	size := config.DirectEntries*config.SectorSize + 64
	pattern := make([]byte, size)
	for i := range pattern {
		pattern[i] = byte(i)
	}

	n, err := f.WriteAt(pattern, 0)
	require.NoError(t, err)
	assert.Equal(t, size, n)
	assert.Equal(t, 1, f.Header.NumIndirectBlocks())

	got := make([]byte, size)
	n, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, size, n)
	assert.True(t, bytes.Equal(pattern, got))
}

// TestNumIndirectBlocksBoundaries checks the exact indirect-block counts
// spec.md §8 calls out at the boundary: no indirection at exactly
// DirectEntries sectors' worth of data, and a second indirect block only
// once the first one's EntriesPerSector capacity is exceeded by even a
// single byte.
func TestNumIndirectBlocksBoundaries(t *testing.T) {
	f, d := newFile(t)
	defer d.Close()

	_, err := f.WriteAt(make([]byte, config.DirectEntries*config.SectorSize), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Header.NumIndirectBlocks())

	f2, d2 := newFile(t)
	defer d2.Close()

	size := config.DirectEntries*config.SectorSize + config.EntriesPerSector*config.SectorSize + 1
	_, err = f2.WriteAt(make([]byte, size), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, f2.Header.NumIndirectBlocks())
}
