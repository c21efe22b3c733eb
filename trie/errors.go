package trie

import "errors"

// Errors returned by the trie core. All failures surface as one of these
// sentinels (possibly wrapped with context); none are retried internally.
var (
	// ErrInvalidKey is returned when a nibble sequence cannot be packed
	// back into bytes (odd nibble count).
	ErrInvalidKey = errors.New("trie: invalid key")

	// ErrInvalidPath is returned when a hex-prefix encoded path is
	// malformed (empty input or bad flag nibble).
	ErrInvalidPath = errors.New("trie: invalid path")

	// ErrNodeNotFound is returned when a referenced node hash is absent
	// from the store. This is a data-integrity violation, never a normal
	// "key absent" result.
	ErrNodeNotFound = errors.New("trie: node not found")

	// ErrInvalidNode is returned when a resolved node does not have the
	// shape the referencing node requires.
	ErrInvalidNode = errors.New("trie: invalid node")

	// ErrCorruptedNode is returned when encoded node bytes do not decode
	// to a well-formed node (bad RLP, wrong list arity).
	ErrCorruptedNode = errors.New("trie: corrupted node")

	// ErrInvalidProof is returned when a proof node's content does not
	// match the hash it is referenced by.
	ErrInvalidProof = errors.New("trie: invalid proof")

	// ErrMissingNode is returned when proof verification needs a node
	// that is not present in the proof bundle.
	ErrMissingNode = errors.New("trie: missing proof node")

	// ErrInvalidRootHash is returned when the proof bundle has no node
	// for the claimed root hash, or the node stored under it does not
	// hash to it.
	ErrInvalidRootHash = errors.New("trie: invalid root hash")
)
