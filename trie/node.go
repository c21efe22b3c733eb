package trie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/triekit/triekit/crypto"
	"github.com/triekit/triekit/types"
)

// hashValue is the reference cell stored inside nodes: either an inline
// raw payload that has not been hashed, or the 32-byte hash of a node kept
// in the store. The caller decides which form to construct; raw payloads
// are never auto-promoted to hash references, whatever their size.
type hashValue struct {
	raw   []byte
	ref   types.Hash
	isRef bool
}

// rawValue returns a hashValue owning a copy of b.
func rawValue(b []byte) hashValue {
	cp := make([]byte, len(b))
	copy(cp, b)
	return hashValue{raw: cp}
}

// hashRef returns a hashValue referencing a stored node by hash.
func hashRef(h types.Hash) hashValue {
	return hashValue{ref: h, isRef: true}
}

// encoded returns the bytes this value contributes to its parent node's
// RLP list: the raw payload itself, or the 32 hash bytes.
func (v hashValue) encoded() []byte {
	if v.isRef {
		return v.ref[:]
	}
	return v.raw
}

// commitment returns the 32-byte commitment of the value. A hash reference
// is its own commitment; a raw payload is RLP-encoded and Keccak-256
// hashed.
func (v hashValue) commitment() (types.Hash, error) {
	if v.isRef {
		return v.ref, nil
	}
	enc, err := rlp.EncodeToBytes(v.raw)
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: %v", ErrCorruptedNode, err)
	}
	return crypto.Keccak256Hash(enc), nil
}

// node is one of the four trie node variants: emptyNode, *branchNode,
// *extensionNode or *leafNode.
type node interface {
	encode() ([]byte, error)
}

// emptyNode represents "no node". It encodes to the RLP empty string.
type emptyNode struct{}

// branchNode has up to 16 children indexed by nibble plus an optional
// terminal value for a key ending exactly here. The mask mirrors child
// presence: bit i is set iff children[i] != nil.
type branchNode struct {
	children [16]*hashValue
	mask     uint16
	value    *hashValue
	id       uint64
}

// extensionNode compresses a shared, non-empty path segment. next always
// references a branch node, directly or via hash.
type extensionNode struct {
	nibbles []byte
	next    hashValue
	id      uint64
}

// leafNode terminates a path, holding the remaining key suffix and the
// value.
type leafNode struct {
	nibbles []byte
	value   hashValue
	id      uint64
}

func (n *branchNode) setChild(i int, v hashValue) {
	n.children[i] = &v
	n.mask |= 1 << uint(i)
}

func (n *branchNode) clearChild(i int) {
	n.children[i] = nil
	n.mask &^= 1 << uint(i)
}

// childCount returns the number of occupied child slots.
func (n *branchNode) childCount() int {
	count := 0
	for m := n.mask; m != 0; m >>= 1 {
		count += int(m & 1)
	}
	return count
}

// isEmpty reports whether the branch has no children and no value. Such a
// branch collapses to emptyNode and must never be stored.
func (n *branchNode) isEmpty() bool {
	return n.mask == 0 && n.value == nil
}

// copy returns a shallow copy sharing the child cells. The copy carries no
// cache identity: its content is about to diverge from the original's, and
// the original's cached hash must stay valid for every position that still
// references the original.
func (n *branchNode) copy() *branchNode {
	cp := *n
	cp.id = 0
	return &cp
}

func (n emptyNode) encode() ([]byte, error) {
	return rlp.EncodeToBytes([]byte(nil))
}

// encode serializes the branch as a 17-item RLP list: 16 child slots
// followed by the terminal value, absent entries as empty strings.
func (n *branchNode) encode() ([]byte, error) {
	items := make([][]byte, 17)
	for i, child := range n.children {
		if child != nil {
			items[i] = child.encoded()
		}
	}
	if n.value != nil {
		items[16] = n.value.encoded()
	}
	return encodeList(items)
}

// encode serializes the extension as the 2-item list
// [hexPrefix(nibbles, extension), next].
func (n *extensionNode) encode() ([]byte, error) {
	return encodeList([][]byte{encodePath(n.nibbles, false), n.next.encoded()})
}

// encode serializes the leaf as the 2-item list
// [hexPrefix(nibbles, leaf), value].
func (n *leafNode) encode() ([]byte, error) {
	return encodeList([][]byte{encodePath(n.nibbles, true), n.value.encoded()})
}

func encodeList(items [][]byte) ([]byte, error) {
	enc, err := rlp.EncodeToBytes(items)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedNode, err)
	}
	return enc, nil
}

// nodeHash returns the Keccak-256 commitment of a node's canonical
// encoding. Deterministic and side-effect free: structurally identical
// nodes always hash identically.
func nodeHash(n node) (types.Hash, error) {
	enc, err := n.encode()
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// decodeNode decodes canonical node bytes back into a node. It is the
// inverse of encode for the shapes proof verification replays; malformed
// RLP or wrong list arity fails with ErrCorruptedNode.
func decodeNode(data []byte) (node, error) {
	var items [][]byte
	if err := rlp.DecodeBytes(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedNode, err)
	}
	switch len(items) {
	case 2:
		nibbles, isLeaf, err := decodePath(items[0])
		if err != nil {
			return nil, fmt.Errorf("%w: bad path", ErrCorruptedNode)
		}
		if isLeaf {
			return &leafNode{nibbles: nibbles, value: rawValue(items[1])}, nil
		}
		if len(items[1]) != types.HashLength {
			return nil, fmt.Errorf("%w: extension target is not a hash", ErrCorruptedNode)
		}
		return &extensionNode{nibbles: nibbles, next: hashRef(types.BytesToHash(items[1]))}, nil
	case 17:
		n := &branchNode{}
		for i := 0; i < 16; i++ {
			if len(items[i]) == 0 {
				continue
			}
			if len(items[i]) == types.HashLength {
				n.setChild(i, hashRef(types.BytesToHash(items[i])))
			} else {
				n.setChild(i, rawValue(items[i]))
			}
		}
		if len(items[16]) != 0 {
			v := rawValue(items[16])
			n.value = &v
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: %d-element list", ErrCorruptedNode, len(items))
	}
}

// nodeID returns the cache identity assigned to a node, or zero.
func nodeID(n node) uint64 {
	switch n := n.(type) {
	case *branchNode:
		return n.id
	case *extensionNode:
		return n.id
	case *leafNode:
		return n.id
	default:
		return 0
	}
}

// setNodeID assigns a cache identity. emptyNode carries none.
func setNodeID(n node, id uint64) {
	switch n := n.(type) {
	case *branchNode:
		n.id = id
	case *extensionNode:
		n.id = id
	case *leafNode:
		n.id = id
	}
}
