// Package trie implements a Merkle Patricia Trie: an authenticated
// key/value structure whose single 32-byte root hash commits to the entire
// data set, with membership and non-membership proofs against that root.
//
// Nodes reference each other by content hash, not by pointer. The engine
// owns a store mapping hex-encoded hashes to nodes; every mutation rebuilds
// the traversed path bottom-up with fresh nodes and the store grows
// monotonically (no garbage collection of superseded nodes).
//
// Engines are not safe for concurrent use, and mutation must not be
// interleaved with iteration over the same engine.
package trie

import (
	"github.com/triekit/triekit/types"
)

// nodeSource is the read-only view of an engine that the proof and
// iterator components borrow.
type nodeSource interface {
	// resolveNode dereferences a hashValue into a node, by store lookup
	// for hash references or by decoding for inline payloads.
	resolveNode(v hashValue) (node, error)
	// rootNode returns the current root node and hash; ok is false for
	// an empty trie.
	rootNode() (n node, h types.Hash, ok bool, err error)
}

// Trie is the baseline in-memory Merkle Patricia Trie engine.
type Trie struct {
	store map[string]node
	root  *types.Hash
}

// New creates an empty trie.
func New() *Trie {
	return &Trie{store: make(map[string]node)}
}

// RootHash returns the 32-byte root commitment. ok is false while the trie
// is empty.
func (t *Trie) RootHash() (types.Hash, bool) {
	if t.root == nil {
		return types.Hash{}, false
	}
	return *t.root, true
}

// Reset drops every node and empties the trie.
func (t *Trie) Reset() {
	t.store = make(map[string]node)
	t.root = nil
}

// Insert stores value under key, rebuilding the path from the affected
// leaf up to a new root. Inserting under an existing key replaces its
// value. Empty keys are legal and live at the empty nibble path.
func (t *Trie) Insert(key, value []byte) error {
	path := keyToNibbles(key)
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

// Get returns the value stored under key, or nil if the key is absent.
// ErrNodeNotFound signals store corruption, not a normal miss.
func (t *Trie) Get(key []byte) ([]byte, error) {
	if t.root == nil {
		return nil, nil
	}
	root, err := t.nodeByHash(*t.root)
	if err != nil {
		return nil, err
	}
	return lookup(t, root, keyToNibbles(key))
}

// Delete removes key from the trie. Deleting an absent key is a no-op.
// When the last key is removed the root hash becomes nil.
func (t *Trie) Delete(key []byte) error {
	if t.root == nil {
		return nil
	}
	root, err := t.nodeByHash(*t.root)
	if err != nil {
		return err
	}
	newRoot, found, err := t.remove(root, keyToNibbles(key))
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

// Iterator returns a fresh iterator positioned before the first key.
func (t *Trie) Iterator() *Iterator {
	return newIterator(t)
}

// Prove collects the nodes on key's descent path into a proof bundle and
// returns it together with the root hash the bundle verifies against.
func (t *Trie) Prove(key []byte) (*ProofNodes, types.Hash, error) {
	return prove(t, key)
}

// update recursively rebuilds the subtree rooted at n so that path maps to
// val, returning the replacement node. Every produced interior node is
// stored by the caller or via storeNode inside the split helpers.
func (t *Trie) update(n node, path []byte, val hashValue) (node, error) {
	switch n := n.(type) {
	case emptyNode:
		return &leafNode{nibbles: cloneNibbles(path), value: val}, nil

	case *leafNode:
		common := prefixLen(path, n.nibbles)
		if common == len(path) && common == len(n.nibbles) {
			// Exact match: replace the value.
			return &leafNode{nibbles: cloneNibbles(path), value: val}, nil
		}
		// Diverging paths: split into a branch under a shared prefix.
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
			// The extension prefix fully matches: descend and re-wrap.
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
		// Diverging: split the extension at the mismatch.
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

// branchOut attaches the (possibly empty) remaining path to a branch under
// construction: an exhausted path becomes the branch's terminal value, one
// or more nibbles become a child leaf at the first nibble.
func (t *Trie) branchOut(branch *branchNode, rest []byte, val hashValue) error {
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

// wrapPrefix wraps a branch in an extension over the shared prefix, or
// returns the branch unwrapped when the prefix is empty.
func (t *Trie) wrapPrefix(prefix []byte, branch *branchNode) (node, error) {
	if len(prefix) == 0 {
		return branch, nil
	}
	h, err := t.storeNode(branch)
	if err != nil {
		return nil, err
	}
	return &extensionNode{nibbles: cloneNibbles(prefix), next: hashRef(h)}, nil
}

// remove deletes path from the subtree rooted at n. It returns the
// replacement node (emptyNode when the subtree vanishes) and whether the
// key was present at all.
func (t *Trie) remove(n node, path []byte) (node, bool, error) {
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

// mergeExtension re-attaches an extension's prefix to the node its subtree
// collapsed into after a delete.
func (t *Trie) mergeExtension(prefix []byte, child node) (node, error) {
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

// collapseBranch applies the post-delete reduction rules: a branch with no
// children and no value vanishes, one with only a value becomes a leaf at
// the empty path, and one with a single remaining child merges with it.
func (t *Trie) collapseBranch(n *branchNode) (node, error) {
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

// lookup descends from n along path without mutation, returning the stored
// value or nil when the path dead-ends.
func lookup(src nodeSource, n node, path []byte) ([]byte, error) {
	switch n := n.(type) {
	case emptyNode:
		return nil, nil

	case *leafNode:
		if len(path) == len(n.nibbles) && prefixLen(path, n.nibbles) == len(path) {
			return resolveValue(src, n.value)
		}
		return nil, nil

	case *extensionNode:
		if !hasNibblePrefix(path, n.nibbles) {
			return nil, nil
		}
		child, err := src.resolveNode(n.next)
		if err != nil {
			return nil, err
		}
		return lookup(src, child, path[len(n.nibbles):])

	case *branchNode:
		if len(path) == 0 {
			if n.value == nil {
				return nil, nil
			}
			return resolveValue(src, *n.value)
		}
		cell := n.children[path[0]]
		if cell == nil {
			return nil, nil
		}
		child, err := src.resolveNode(*cell)
		if err != nil {
			return nil, err
		}
		return lookup(src, child, path[1:])

	default:
		return nil, ErrInvalidNode
	}
}

// resolveValue extracts the bytes behind a value cell. A hash reference is
// dereferenced by one store lookup and must land on an empty-path leaf.
func resolveValue(src nodeSource, v hashValue) ([]byte, error) {
	if !v.isRef {
		cp := make([]byte, len(v.raw))
		copy(cp, v.raw)
		return cp, nil
	}
	n, err := src.resolveNode(v)
	if err != nil {
		return nil, err
	}
	leaf, ok := n.(*leafNode)
	if !ok || len(leaf.nibbles) != 0 || leaf.value.isRef {
		return nil, ErrInvalidNode
	}
	cp := make([]byte, len(leaf.value.raw))
	copy(cp, leaf.value.raw)
	return cp, nil
}

// storeNode encodes and hashes n, stores it keyed by the hex of its hash
// and returns the hash.
func (t *Trie) storeNode(n node) (types.Hash, error) {
	h, err := nodeHash(n)
	if err != nil {
		return types.Hash{}, err
	}
	t.store[hexKey(h)] = n
	return h, nil
}

// nodeByHash fetches a node from the store. A missing entry is a
// data-integrity violation.
func (t *Trie) nodeByHash(h types.Hash) (node, error) {
	n, ok := t.store[hexKey(h)]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

func (t *Trie) resolveNode(v hashValue) (node, error) {
	if v.isRef {
		return t.nodeByHash(v.ref)
	}
	return decodeNode(v.raw)
}

func (t *Trie) rootNode() (node, types.Hash, bool, error) {
	if t.root == nil {
		return nil, types.Hash{}, false, nil
	}
	n, err := t.nodeByHash(*t.root)
	if err != nil {
		return nil, types.Hash{}, false, err
	}
	return n, *t.root, true, nil
}

// concatNibbles joins two nibble slices into a fresh slice.
func concatNibbles(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
