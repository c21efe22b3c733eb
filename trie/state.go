package trie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/triekit/triekit/crypto"
	"github.com/triekit/triekit/types"
)

// StateTrie is the secure account trie layered on the engine: keys are the
// Keccak-256 hashes of addresses and values are RLP-encoded StateAccount
// objects, the [nonce, balance, storageRoot, codeHash] list shape used by
// eth_getProof (EIP-1186) responses.
type StateTrie struct {
	trie *Trie
}

// AccountProofData is the proof material for a single account: the node
// bundle on the hashed-address path plus the decoded account fields.
type AccountProofData struct {
	Address    types.Address
	AccountRLP []byte // nil when the account does not exist
	Proof      *ProofNodes
	StateRoot  types.Hash
}

// NewStateTrie creates an empty state trie.
func NewStateTrie() *StateTrie {
	return &StateTrie{trie: New()}
}

// Root returns the state root. ok is false while no account exists.
func (s *StateTrie) Root() (types.Hash, bool) {
	return s.trie.RootHash()
}

// UpdateAccount writes the account under the hashed address.
func (s *StateTrie) UpdateAccount(addr types.Address, acc *types.StateAccount) error {
	data, err := rlp.EncodeToBytes(acc)
	if err != nil {
		return fmt.Errorf("%w: account encode: %v", ErrInvalidNode, err)
	}
	return s.trie.Insert(crypto.Keccak256(addr[:]), data)
}

// GetAccount reads the account stored under the hashed address, or nil
// when the account does not exist.
func (s *StateTrie) GetAccount(addr types.Address) (*types.StateAccount, error) {
	data, err := s.trie.Get(crypto.Keccak256(addr[:]))
	if err != nil || data == nil {
		return nil, err
	}
	acc := new(types.StateAccount)
	if err := rlp.DecodeBytes(data, acc); err != nil {
		return nil, fmt.Errorf("%w: account decode: %v", ErrCorruptedNode, err)
	}
	return acc, nil
}

// DeleteAccount removes the account under the hashed address.
func (s *StateTrie) DeleteAccount(addr types.Address) error {
	return s.trie.Delete(crypto.Keccak256(addr[:]))
}

// ProveAccount builds the Merkle proof for addr against the current state
// root. The proof covers absent accounts too (AccountRLP stays nil).
func (s *StateTrie) ProveAccount(addr types.Address) (*AccountProofData, error) {
	key := crypto.Keccak256(addr[:])
	pn, root, err := s.trie.Prove(key)
	if err != nil {
		return nil, err
	}
	data, err := s.trie.Get(key)
	if err != nil {
		return nil, err
	}
	return &AccountProofData{
		Address:    addr,
		AccountRLP: data,
		Proof:      pn,
		StateRoot:  root,
	}, nil
}

// VerifyAccountProof checks an account proof against a state root. With
// acc == nil it verifies the account's absence. Structural errors follow
// ProofNodes.Verify semantics.
func VerifyAccountProof(root types.Hash, addr types.Address, acc *types.StateAccount, proof *ProofNodes) (bool, error) {
	var expected []byte
	if acc != nil {
		data, err := rlp.EncodeToBytes(acc)
		if err != nil {
			return false, fmt.Errorf("%w: account encode: %v", ErrInvalidNode, err)
		}
		expected = data
	}
	return proof.Verify(root, crypto.Keccak256(addr[:]), expected)
}
