package fileheader

import (
	"encoding/binary"

	"github.com/jnwhiteh/nachosfs/bitmap"
	"github.com/jnwhiteh/nachosfs/config"
	"github.com/jnwhiteh/nachosfs/disk"
)

func encodeIndirect(entries []int32) []byte {
	buf := make([]byte, config.SectorSize)
	off := 0
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(e))
		off += 4
	}
	return buf
}

func decodeIndirect(buf []byte) []int32 {
	entries := make([]int32, config.EntriesPerSector)
	off := 0
	for i := range entries {
		entries[i] = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	return entries
}

func (h *FileHeader) readIndirect(d disk.Disk, cache *IndirectCache, sector int32) ([]int32, error) {
	if entries, ok := cache.Get(sector); ok {
		return entries, nil
	}
	buf := make([]byte, config.SectorSize)
	if err := disk.SyncRead(d, int(sector), buf); err != nil {
		return nil, err
	}
	entries := decodeIndirect(buf)
	cache.Set(sector, entries)
	return entries, nil
}

func (h *FileHeader) writeIndirect(d disk.Disk, cache *IndirectCache, sector int32, entries []int32) error {
	cache.Invalidate(sector)
	if err := disk.SyncWrite(d, int(sector), encodeIndirect(entries)); err != nil {
		return err
	}
	cache.Set(sector, entries)
	return nil
}

// Allocate extends the header by enough sectors to cover requestedBytes
// more of file content, per spec.md §4.2. It computes the total sector
// need directly from the resulting num_sectors (the corrected pre-check
// spec.md §4.2 and §9(a) call for, rather than the original NACHOS
// source's under-counting arithmetic) and performs no allocation at all if
// the free map cannot satisfy that need.
func (h *FileHeader) Allocate(d disk.Disk, cache *IndirectCache, freeMap *bitmap.Bitmap, requestedBytes int) (bool, error) {
	if requestedBytes == 0 {
		return true, nil
	}
	if int(h.NumBytes)+requestedBytes > config.MaxFileSize {
		return false, nil
	}

	numSectors := int(h.NumSectors)
	usedDirect := numSectors
	if usedDirect > config.DirectEntries {
		usedDirect = config.DirectEntries
	}
	usedIndirectBlocks := 0
	usedEntryInLast := 0
	if numSectors > config.DirectEntries {
		usedIndirectBlocks = divRoundUp(numSectors-config.DirectEntries, config.EntriesPerSector)
		usedEntryInLast = numSectors - config.DirectEntries - (usedIndirectBlocks-1)*config.EntriesPerSector
	}

	rawSectorsNeeded := divRoundUp(requestedBytes, config.SectorSize)
	newNumSectors := numSectors + rawSectorsNeeded

	newIndirectBlocks := 0
	if newNumSectors > config.DirectEntries {
		newIndirectBlocks = divRoundUp(newNumSectors-config.DirectEntries, config.EntriesPerSector)
	}
	indirectSectorsNeeded := newIndirectBlocks - usedIndirectBlocks

	totalSectorsNeeded := rawSectorsNeeded + indirectSectorsNeeded
	if totalSectorsNeeded > freeMap.NumClear() {
		return false, nil
	}

	remaining := rawSectorsNeeded

	// Fill any unused direct entries first -- these only exist while no
	// indirect block has been allocated yet, by the invariant in spec.md §3.
	if usedIndirectBlocks == 0 {
		for i := usedDirect; remaining > 0 && i < config.DirectEntries; i++ {
			h.DataSectors[i] = int32(freeMap.Find())
			remaining--
		}
	}

	// Top off the last partial indirect block before starting new ones.
	if remaining > 0 && usedIndirectBlocks > 0 {
		lastIdx := config.DirectEntries + usedIndirectBlocks - 1
		entries, err := h.readIndirect(d, cache, h.DataSectors[lastIdx])
		if err != nil {
			return false, err
		}
		for i := usedEntryInLast; remaining > 0 && i < config.EntriesPerSector; i++ {
			entries[i] = int32(freeMap.Find())
			remaining--
		}
		if err := h.writeIndirect(d, cache, h.DataSectors[lastIdx], entries); err != nil {
			return false, err
		}
	}

	// Allocate brand new, fully-populated indirect blocks for whatever remains.
	for i := config.DirectEntries + usedIndirectBlocks; remaining > 0 && i < config.NumEntries; i++ {
		blockSector := int32(freeMap.Find())
		h.DataSectors[i] = blockSector
		entries := make([]int32, config.EntriesPerSector)
		for j := 0; remaining > 0 && j < config.EntriesPerSector; j++ {
			entries[j] = int32(freeMap.Find())
			remaining--
		}
		if err := h.writeIndirect(d, cache, blockSector, entries); err != nil {
			return false, err
		}
	}

	h.NumSectors += int32(rawSectorsNeeded)
	return true, nil
}

// Deallocate clears every data sector and every allocated indirect sector,
// leaving the header with no live sector references. It does not clear the
// sector the header itself occupies -- per spec.md §9(b), that is the
// facade's responsibility alone.
func (h *FileHeader) Deallocate(d disk.Disk, cache *IndirectCache, freeMap *bitmap.Bitmap) error {
	numSectors := int(h.NumSectors)
	usedDirect := numSectors
	if usedDirect > config.DirectEntries {
		usedDirect = config.DirectEntries
	}
	for i := 0; i < usedDirect; i++ {
		if err := freeMap.Clear(int(h.DataSectors[i])); err != nil {
			return err
		}
	}

	if numSectors <= config.DirectEntries {
		return nil
	}
	usedIndirectBlocks := divRoundUp(numSectors-config.DirectEntries, config.EntriesPerSector)
	remaining := numSectors - config.DirectEntries
	for k := 0; k < usedIndirectBlocks; k++ {
		blockSector := h.DataSectors[config.DirectEntries+k]
		entries, err := h.readIndirect(d, cache, blockSector)
		if err != nil {
			return err
		}
		used := config.EntriesPerSector
		if remaining < used {
			used = remaining
		}
		for j := 0; j < used; j++ {
			if err := freeMap.Clear(int(entries[j])); err != nil {
				return err
			}
		}
		remaining -= used
		cache.Invalidate(blockSector)
		if err := freeMap.Clear(int(blockSector)); err != nil {
			return err
		}
	}
	return nil
}

// ByteToSector returns the physical sector containing logical offset,
// reading the appropriate indirect block on demand for offsets beyond the
// direct entries.
func (h *FileHeader) ByteToSector(d disk.Disk, cache *IndirectCache, offset int) (int, error) {
	which := offset / config.SectorSize
	if which < config.DirectEntries {
		return int(h.DataSectors[which]), nil
	}
	k := which - config.DirectEntries
	blockIndex := k / config.EntriesPerSector
	entryOffset := k % config.EntriesPerSector
	blockSector := h.DataSectors[config.DirectEntries+blockIndex]
	entries, err := h.readIndirect(d, cache, blockSector)
	if err != nil {
		return 0, err
	}
	return int(entries[entryOffset]), nil
}
