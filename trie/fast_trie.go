package trie

import (
	"github.com/triekit/triekit/types"
)

// arenaResetInterval is the operation cadence at which the hex scratch
// arena is reclaimed. Resets happen at operation start, never while hex
// keys from the current operation are live.
const arenaResetInterval = 128

// FastTrie is the optimized trie engine. It is functionally identical to
// Trie for any operation sequence (same root hash, same Get results) but
// reuses a single growable nibble buffer across calls, routes every hash
// computation through a NodeCache, and periodically resets the cache's
// scratch arena.
type FastTrie struct {
	store  map[string]node
	root   *types.Hash
	cache  *NodeCache
	nibBuf []byte
	nextID uint64
	ops    uint64
}

// NewFastTrie creates an empty optimized trie.
func NewFastTrie() *FastTrie {
	return &FastTrie{
		store: make(map[string]node),
		cache: NewNodeCache(),
	}
}

// RootHash returns the 32-byte root commitment. ok is false while the trie
// is empty.
func (t *FastTrie) RootHash() (types.Hash, bool) {
	if t.root == nil {
		return types.Hash{}, false
	}
	return *t.root, true
}

// Reset drops every node, the hash cache and the scratch buffers.
func (t *FastTrie) Reset() {
	t.store = make(map[string]node)
	t.root = nil
	t.cache.Clear()
	t.nibBuf = nil
	t.ops = 0
}

// Iterator returns a fresh iterator positioned before the first key.
func (t *FastTrie) Iterator() *Iterator {
	return newIterator(t)
}

// Prove collects the nodes on key's descent path into a proof bundle and
// returns it together with the root hash the bundle verifies against.
func (t *FastTrie) Prove(key []byte) (*ProofNodes, types.Hash, error) {
	return prove(t, key)
}

// Insert stores value under key. Semantics match Trie.Insert.
func (t *FastTrie) Insert(key, value []byte) error {
	path := t.keyPath(key)
	val := rawValue(value)

	if t.root == nil {
		leaf := &leafNode{nibbles: cloneNibbles(path), value: val}
		h, err := t.storeNode(leaf)
		if err != nil {
			return err
		}
		t.root = &h
		return nil
	}
	root, err := t.nodeByHash(*t.root)
	if err != nil {
		return err
	}
	newRoot, err := t.update(root, path, val)
	if err != nil {
		return err
	}
	h, err := t.storeNode(newRoot)
	if err != nil {
		return err
	}
	t.root = &h
	return nil
}

// Get returns the value stored under key, or nil if absent. Semantics
// match Trie.Get.
func (t *FastTrie) Get(key []byte) ([]byte, error) {
	if t.root == nil {
		return nil, nil
	}
	path := t.keyPath(key)
	root, err := t.nodeByHash(*t.root)
	if err != nil {
		return nil, err
	}
	return lookup(t, root, path)
}

// Delete removes key from the trie. Semantics match Trie.Delete.
func (t *FastTrie) Delete(key []byte) error {
	if t.root == nil {
		return nil
	}
	path := t.keyPath(key)
	root, err := t.nodeByHash(*t.root)
	if err != nil {
		return err
	}
	newRoot, found, err := t.remove(root, path)
	if err != nil || !found {
		return err
	}
	if _, gone := newRoot.(emptyNode); gone {
		t.root = nil
		return nil
	}
	h, err := t.storeNode(newRoot)
	if err != nil {
		return err
	}
	t.root = &h
	return nil
}

// keyPath converts key to nibbles in the reused buffer. The returned slice
// is only valid until the next engine operation; node constructors copy
// out of it.
func (t *FastTrie) keyPath(key []byte) []byte {
	t.ops++
	if t.ops%arenaResetInterval == 0 {
		t.cache.ResetHexArena()
	}
	t.nibBuf = appendNibbles(t.nibBuf[:0], key)
	return t.nibBuf
}

func (t *FastTrie) update(n node, path []byte, val hashValue) (node, error) {
	switch n := n.(type) {
	case emptyNode:
		return &leafNode{nibbles: cloneNibbles(path), value: val}, nil

	case *leafNode:
		common := prefixLen(path, n.nibbles)
		if common == len(path) && common == len(n.nibbles) {
			return &leafNode{nibbles: cloneNibbles(path), value: val}, nil
		}
		branch := &branchNode{}
		if err := t.branchOut(branch, n.nibbles[common:], n.value); err != nil {
			return nil, err
		}
		if err := t.branchOut(branch, path[common:], val); err != nil {
			return nil, err
		}
		return t.wrapPrefix(path[:common], branch)

	case *extensionNode:
		common := prefixLen(path, n.nibbles)
		if common == len(n.nibbles) {
			child, err := t.resolveNode(n.next)
			if err != nil {
				return nil, err
			}
			newChild, err := t.update(child, path[common:], val)
			if err != nil {
				return nil, err
			}
			h, err := t.storeNode(newChild)
			if err != nil {
				return nil, err
			}
			return &extensionNode{nibbles: cloneNibbles(n.nibbles), next: hashRef(h)}, nil
		}
		branch := &branchNode{}
		rest := n.nibbles[common+1:]
		if len(rest) == 0 {
			branch.setChild(int(n.nibbles[common]), n.next)
		} else {
			sub := &extensionNode{nibbles: cloneNibbles(rest), next: n.next}
			h, err := t.storeNode(sub)
			if err != nil {
				return nil, err
			}
			branch.setChild(int(n.nibbles[common]), hashRef(h))
		}
		if err := t.branchOut(branch, path[common:], val); err != nil {
			return nil, err
		}
		return t.wrapPrefix(path[:common], branch)

	case *branchNode:
		cp := n.copy()
		if len(path) == 0 {
			v := val
			cp.value = &v
			return cp, nil
		}
		idx := int(path[0])
		var child node = emptyNode{}
		if cell := n.children[idx]; cell != nil {
			resolved, err := t.resolveNode(*cell)
			if err != nil {
				return nil, err
			}
			child = resolved
		}
		newChild, err := t.update(child, path[1:], val)
		if err != nil {
			return nil, err
		}
		h, err := t.storeNode(newChild)
		if err != nil {
			return nil, err
		}
		cp.setChild(idx, hashRef(h))
		return cp, nil

	default:
		return nil, ErrInvalidNode
	}
}

func (t *FastTrie) branchOut(branch *branchNode, rest []byte, val hashValue) error {
	if len(rest) == 0 {
		v := val
		branch.value = &v
		return nil
	}
	leaf := &leafNode{nibbles: cloneNibbles(rest[1:]), value: val}
	h, err := t.storeNode(leaf)
	if err != nil {
		return err
	}
	branch.setChild(int(rest[0]), hashRef(h))
	return nil
}

func (t *FastTrie) wrapPrefix(prefix []byte, branch *branchNode) (node, error) {
	if len(prefix) == 0 {
		return branch, nil
	}
	h, err := t.storeNode(branch)
	if err != nil {
		return nil, err
	}
	return &extensionNode{nibbles: cloneNibbles(prefix), next: hashRef(h)}, nil
}

func (t *FastTrie) remove(n node, path []byte) (node, bool, error) {
	switch n := n.(type) {
	case emptyNode:
		return n, false, nil

	case *leafNode:
		if len(path) == len(n.nibbles) && prefixLen(path, n.nibbles) == len(path) {
			return emptyNode{}, true, nil
		}
		return n, false, nil

	case *extensionNode:
		if !hasNibblePrefix(path, n.nibbles) {
			return n, false, nil
		}
		child, err := t.resolveNode(n.next)
		if err != nil {
			return nil, false, err
		}
		newChild, found, err := t.remove(child, path[len(n.nibbles):])
		if err != nil || !found {
			return n, found, err
		}
		merged, err := t.mergeExtension(n.nibbles, newChild)
		if err != nil {
			return nil, false, err
		}
		return merged, true, nil

	case *branchNode:
		if len(path) == 0 {
			if n.value == nil {
				return n, false, nil
			}
			cp := n.copy()
			cp.value = nil
			collapsed, err := t.collapseBranch(cp)
			if err != nil {
				return nil, false, err
			}
			return collapsed, true, nil
		}
		idx := int(path[0])
		cell := n.children[idx]
		if cell == nil {
			return n, false, nil
		}
		child, err := t.resolveNode(*cell)
		if err != nil {
			return nil, false, err
		}
		newChild, found, err := t.remove(child, path[1:])
		if err != nil || !found {
			return n, found, err
		}
		cp := n.copy()
		if _, gone := newChild.(emptyNode); gone {
			cp.clearChild(idx)
		} else {
			h, err := t.storeNode(newChild)
			if err != nil {
				return nil, false, err
			}
			cp.setChild(idx, hashRef(h))
		}
		collapsed, err := t.collapseBranch(cp)
		if err != nil {
			return nil, false, err
		}
		return collapsed, true, nil

	default:
		return nil, false, ErrInvalidNode
	}
}

func (t *FastTrie) mergeExtension(prefix []byte, child node) (node, error) {
	switch child := child.(type) {
	case emptyNode:
		return emptyNode{}, nil
	case *leafNode:
		return &leafNode{
			nibbles: concatNibbles(prefix, child.nibbles),
			value:   child.value,
		}, nil
	case *extensionNode:
		return &extensionNode{
			nibbles: concatNibbles(prefix, child.nibbles),
			next:    child.next,
		}, nil
	case *branchNode:
		h, err := t.storeNode(child)
		if err != nil {
			return nil, err
		}
		return &extensionNode{nibbles: cloneNibbles(prefix), next: hashRef(h)}, nil
	default:
		return nil, ErrInvalidNode
	}
}

func (t *FastTrie) collapseBranch(n *branchNode) (node, error) {
	count := n.childCount()
	switch {
	case count == 0 && n.value == nil:
		return emptyNode{}, nil
	case count == 0:
		return &leafNode{value: *n.value}, nil
	case count == 1 && n.value == nil:
		idx := 0
		for n.children[idx] == nil {
			idx++
		}
		child, err := t.resolveNode(*n.children[idx])
		if err != nil {
			return nil, err
		}
		return t.mergeExtension([]byte{byte(idx)}, child)
	default:
		return n, nil
	}
}

// storeNode hashes n through the NodeCache and stores it keyed by the hex
// of its hash. Fresh nodes are assigned a cache identity and hashed once;
// a node whose identity already has a fresh cache entry reuses it. Cache
// identities are per node object, never shared: branch copies start with
// no identity (see branchNode.copy), so a cached hash only ever describes
// the exact object it was computed for.
func (t *FastTrie) storeNode(n node) (types.Hash, error) {
	id := nodeID(n)
	fresh := id == 0
	if fresh {
		t.nextID++
		id = t.nextID
		setNodeID(n, id)
	} else if h, ok := t.cache.Get(id); ok {
		t.store[t.cache.HexKey(h)] = n
		return h, nil
	}
	h, err := nodeHash(n)
	if err != nil {
		return types.Hash{}, err
	}
	if fresh {
		t.cache.CacheHash(id, h)
	} else {
		t.cache.UpdateHash(id, h)
	}
	t.store[t.cache.HexKey(h)] = n
	return h, nil
}

func (t *FastTrie) nodeByHash(h types.Hash) (node, error) {
	n, ok := t.store[t.cache.HexKey(h)]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

func (t *FastTrie) resolveNode(v hashValue) (node, error) {
	if v.isRef {
		return t.nodeByHash(v.ref)
	}
	return decodeNode(v.raw)
}

func (t *FastTrie) rootNode() (node, types.Hash, bool, error) {
	if t.root == nil {
		return nil, types.Hash{}, false, nil
	}
	n, err := t.nodeByHash(*t.root)
	if err != nil {
		return nil, types.Hash{}, false, err
	}
	return n, *t.root, true, nil
}
