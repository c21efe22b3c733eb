package trie

import (
	"bytes"

	"github.com/triekit/triekit/crypto"
	"github.com/triekit/triekit/types"
)

// ProofNodes is a proof bundle: encoded nodes keyed by the hex of their
// hash, forming a closed sub-graph sufficient to verify one key's presence
// or absence against a stated root.
type ProofNodes struct {
	nodes map[string][]byte
}

// NewProofNodes returns an empty bundle.
func NewProofNodes() *ProofNodes {
	return &ProofNodes{nodes: make(map[string][]byte)}
}

// AddNode records encoded node bytes under their hash. The insert is
// idempotent; the first writer wins.
func (pn *ProofNodes) AddNode(h types.Hash, encoded []byte) {
	k := hexKey(h)
	if _, ok := pn.nodes[k]; ok {
		return
	}
	cp := make([]byte, len(encoded))
	copy(cp, encoded)
	pn.nodes[k] = cp
}

// Len returns the number of nodes in the bundle.
func (pn *ProofNodes) Len() int {
	return len(pn.nodes)
}

// ProofRetainer collects exactly the nodes visited while resolving one
// key: a node qualifies iff its path prefix lies on the key's nibble path.
type ProofRetainer struct {
	path []byte
}

// NewProofRetainer precomputes the nibble path of the target key.
func NewProofRetainer(key []byte) *ProofRetainer {
	return &ProofRetainer{path: keyToNibbles(key)}
}

// Collect adds n to the bundle iff pathPrefix is a prefix of the target
// key's nibble path, and reports whether it was collected.
func (pr *ProofRetainer) Collect(n node, pathPrefix []byte, pn *ProofNodes) (bool, error) {
	if !hasNibblePrefix(pr.path, pathPrefix) {
		return false, nil
	}
	enc, err := n.encode()
	if err != nil {
		return false, err
	}
	pn.AddNode(crypto.Keccak256Hash(enc), enc)
	return true, nil
}

// prove walks key's descent path from the root, retaining every visited
// node. The walk stops at the terminal node, at a divergence or at an
// absent branch slot; the collected bundle proves presence or absence
// either way.
func prove(src nodeSource, key []byte) (*ProofNodes, types.Hash, error) {
	pn := NewProofNodes()
	retainer := NewProofRetainer(key)

	n, rootHash, ok, err := src.rootNode()
	if err != nil {
		return nil, types.Hash{}, err
	}
	if !ok {
		return pn, types.Hash{}, nil
	}

	path := keyToNibbles(key)
	var prefix []byte
	for {
		if _, err := retainer.Collect(n, prefix, pn); err != nil {
			return nil, types.Hash{}, err
		}
		switch cur := n.(type) {
		case *leafNode, emptyNode:
			return pn, rootHash, nil

		case *extensionNode:
			if !hasNibblePrefix(path, cur.nibbles) {
				return pn, rootHash, nil
			}
			child, err := src.resolveNode(cur.next)
			if err != nil {
				return nil, types.Hash{}, err
			}
			prefix = concatNibbles(prefix, cur.nibbles)
			path = path[len(cur.nibbles):]
			n = child

		case *branchNode:
			if len(path) == 0 {
				return pn, rootHash, nil
			}
			cell := cur.children[path[0]]
			if cell == nil {
				return pn, rootHash, nil
			}
			child, err := src.resolveNode(*cell)
			if err != nil {
				return nil, types.Hash{}, err
			}
			prefix = concatNibbles(prefix, path[:1])
			path = path[1:]
			n = child

		default:
			return nil, types.Hash{}, ErrInvalidNode
		}
	}
}

// Verify replays key's nibble path through the bundle against rootHash.
// The boolean answers the logical question "does the trie committed to by
// rootHash map key to expected" (expected == nil claims absence). Errors
// are reserved for structural integrity violations: a missing or tampered
// root (ErrInvalidRootHash), nodes absent from the bundle (ErrMissingNode),
// nodes whose bytes do not match their reference (ErrInvalidProof) and
// undecodable nodes (ErrCorruptedNode). A definitively absent key with
// expected == nil verifies true with no error.
func (pn *ProofNodes) Verify(rootHash types.Hash, key []byte, expected []byte) (bool, error) {
	enc, ok := pn.nodes[hexKey(rootHash)]
	if !ok {
		return false, ErrInvalidRootHash
	}
	if crypto.Keccak256Hash(enc) != rootHash {
		return false, ErrInvalidRootHash
	}
	return pn.verifyNode(enc, keyToNibbles(key), expected)
}

func (pn *ProofNodes) verifyNode(enc []byte, path []byte, expected []byte) (bool, error) {
	n, err := decodeNode(enc)
	if err != nil {
		return false, err
	}
	switch n := n.(type) {
	case *leafNode:
		if len(path) != len(n.nibbles) || prefixLen(path, n.nibbles) != len(path) {
			// The path diverges here: the key is provably absent.
			return expected == nil, nil
		}
		if expected == nil {
			return false, nil
		}
		return bytes.Equal(n.value.raw, expected), nil

	case *extensionNode:
		if !hasNibblePrefix(path, n.nibbles) {
			return expected == nil, nil
		}
		return pn.descend(n.next.ref, path[len(n.nibbles):], expected)

	case *branchNode:
		if len(path) == 0 {
			if n.value == nil {
				return expected == nil, nil
			}
			if expected == nil {
				return false, nil
			}
			return bytes.Equal(n.value.raw, expected), nil
		}
		cell := n.children[path[0]]
		if cell == nil {
			return expected == nil, nil
		}
		if !cell.isRef {
			return false, ErrCorruptedNode
		}
		return pn.descend(cell.ref, path[1:], expected)

	default:
		return false, ErrCorruptedNode
	}
}

// descend resolves a child reference inside the bundle, checking both
// presence and content integrity before recursing.
func (pn *ProofNodes) descend(ref types.Hash, path []byte, expected []byte) (bool, error) {
	enc, ok := pn.nodes[hexKey(ref)]
	if !ok {
		return false, ErrMissingNode
	}
	if crypto.Keccak256Hash(enc) != ref {
		return false, ErrInvalidProof
	}
	return pn.verifyNode(enc, path, expected)
}
