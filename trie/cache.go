package trie

import (
	"encoding/hex"

	"github.com/triekit/triekit/types"
)

// hexKey formats a hash as the lower-case hex string used to key the node
// store and proof bundles.
func hexKey(h types.Hash) string {
	return hex.EncodeToString(h[:])
}

// CachedHash is one cache entry: a node's 32-byte hash plus a dirty flag.
// Each entry moves fresh -> dirty -> fresh: MarkDirty flags the hash stale
// after the node's content changes, and UpdateHash replaces it.
type CachedHash struct {
	Hash  types.Hash
	Dirty bool
}

// NodeCache caches node hashes keyed by a node identifier, so the
// optimized engine computes each node's hash at most once per content
// revision. It also owns a scratch region for the transient hex strings
// built during store lookups, reclaimable in bulk.
type NodeCache struct {
	entries map[uint64]CachedHash
	arena   []byte
}

// arenaRetainCap bounds how much scratch backing survives a reset.
const arenaRetainCap = 1 << 16

// NewNodeCache returns an empty cache.
func NewNodeCache() *NodeCache {
	return &NodeCache{entries: make(map[uint64]CachedHash)}
}

// CacheHash inserts the hash for id if no entry exists yet. The first
// writer wins; overwriting requires MarkDirty followed by UpdateHash.
func (c *NodeCache) CacheHash(id uint64, h types.Hash) {
	if _, ok := c.entries[id]; ok {
		return
	}
	c.entries[id] = CachedHash{Hash: h}
}

// MarkDirty flags the entry for id as stale. Get returns nothing for a
// dirty entry until UpdateHash replaces it. Unknown ids are ignored.
func (c *NodeCache) MarkDirty(id uint64) {
	entry, ok := c.entries[id]
	if !ok {
		return
	}
	entry.Dirty = true
	c.entries[id] = entry
}

// UpdateHash stores the new hash for id and clears the dirty flag,
// inserting if absent.
func (c *NodeCache) UpdateHash(id uint64, h types.Hash) {
	c.entries[id] = CachedHash{Hash: h}
}

// Get returns the cached hash for id. Dirty entries report absent.
func (c *NodeCache) Get(id uint64) (types.Hash, bool) {
	entry, ok := c.entries[id]
	if !ok || entry.Dirty {
		return types.Hash{}, false
	}
	return entry.Hash, true
}

// Clear drops every cached entry and the scratch arena. Used on full trie
// reset.
func (c *NodeCache) Clear() {
	c.entries = make(map[uint64]CachedHash)
	c.arena = nil
}

// HexKey formats h as a hex store key using the scratch arena. The arena
// grows until ResetHexArena reclaims it; callers must not trigger a reset
// while keys from the current operation are still in use.
func (c *NodeCache) HexKey(h types.Hash) string {
	off := len(c.arena)
	need := types.HashLength * 2
	for cap(c.arena) < off+need {
		c.arena = append(c.arena[:cap(c.arena)], 0)
	}
	c.arena = c.arena[:off+need]
	hex.Encode(c.arena[off:], h[:])
	return string(c.arena[off:])
}

// ResetHexArena reclaims the scratch region in bulk. The backing array is
// kept for reuse unless it has grown past arenaRetainCap.
func (c *NodeCache) ResetHexArena() {
	if cap(c.arena) > arenaRetainCap {
		c.arena = nil
		return
	}
	c.arena = c.arena[:0]
}
