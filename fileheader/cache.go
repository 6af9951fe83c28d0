package fileheader

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/jnwhiteh/nachosfs/config"
)

// IndirectCache is a bounded cache of decoded single-indirect blocks, keyed
// by the sector holding the block. spec.md §4.2 explicitly allows caching
// "the most recently read indirect block" as long as the cache never
// serves a stale entry across a write that could change the mapping;
// Invalidate is called from every code path that rewrites an indirect
// block's sector. Grounded on ShubhamNegi4-DaemonDB's declared (in that
// repo, unused) ristretto dependency -- this is the one component in the
// whole repository for which the spec explicitly names caching as a legal
// strategy, so it is where that library gets its home.
type IndirectCache struct {
	cache *ristretto.Cache[int64, []int32]
}

// NewIndirectCache creates a cache sized for a handful of concurrently hot
// indirect blocks -- this kernel has no more than IndirectEntries (8) of
// them live per open file at once.
func NewIndirectCache() (*IndirectCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[int64, []int32]{
		NumCounters: 1000,
		MaxCost:     int64(64 * config.EntriesPerSector * 4),
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &IndirectCache{cache: c}, nil
}

// Get returns the cached entries for the indirect block at sector, if present.
func (c *IndirectCache) Get(sector int32) ([]int32, bool) {
	if c == nil {
		return nil, false
	}
	return c.cache.Get(int64(sector))
}

// Set caches the decoded entries for the indirect block at sector.
func (c *IndirectCache) Set(sector int32, entries []int32) {
	if c == nil {
		return
	}
	cp := make([]int32, len(entries))
	copy(cp, entries)
	c.cache.SetWithTTL(int64(sector), cp, int64(len(cp)*4), 0)
	c.cache.Wait()
}

// Invalidate drops any cached entries for sector, required before that
// sector is rewritten with a different mapping.
func (c *IndirectCache) Invalidate(sector int32) {
	if c == nil {
		return
	}
	c.cache.Del(int64(sector))
	c.cache.Wait()
}

// Close releases the cache's background goroutines.
func (c *IndirectCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
