package types

import (
	"github.com/holiman/uint256"
)

// StateAccount is the account object stored under a hashed address in the
// state trie. It is RLP-encoded as the four-field list
// [nonce, balance, storageRoot, codeHash].
type StateAccount struct {
	Nonce    uint64
	Balance  *uint256.Int
	Root     Hash // root of the account's storage trie
	CodeHash Hash
}

// NewEmptyStateAccount returns an account with zero nonce and balance and
// empty storage/code commitments.
func NewEmptyStateAccount() *StateAccount {
	return &StateAccount{
		Balance:  new(uint256.Int),
		CodeHash: EmptyCodeHash,
	}
}

// Copy returns a deep copy of the account.
func (acc *StateAccount) Copy() *StateAccount {
	var balance *uint256.Int
	if acc.Balance != nil {
		balance = new(uint256.Int).Set(acc.Balance)
	}
	return &StateAccount{
		Nonce:    acc.Nonce,
		Balance:  balance,
		Root:     acc.Root,
		CodeHash: acc.CodeHash,
	}
}

// EmptyCodeHash is Keccak256 of the empty byte string, the code hash of an
// account with no code.
var EmptyCodeHash = HexToHash("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
