// Package crypto defines the abstract Crypto capability (§1): token
// generation and the hash used to derive a transactionID. The spec
// pins the exact algorithm (§6: ripemd160(sha256(token))), so the
// interface has exactly one conforming implementation in this module
// — idhash — but stays an interface per §1 so a node can be wired
// against a different Capability (e.g. an HSM-backed one) without
// touching callers.
package crypto

import "github.com/amikopay/amiko/idhash"

// Capability is the hashing/randomness boundary a node is wired
// against.
type Capability interface {
	// NewToken draws a fresh random preimage.
	NewToken() (idhash.Token, error)

	// Hash derives a transactionID from a token.
	Hash(t idhash.Token) idhash.TransactionID

	// Verify reports whether t hashes to txID.
	Verify(t idhash.Token, txID idhash.TransactionID) bool
}

// Default is the reference Capability implementation, backed directly
// by package idhash's ripemd160(sha256(token)) formula — the only
// formula §6 allows, so there is nothing left to abstract away beyond
// satisfying the interface.
type Default struct{}

func (Default) NewToken() (idhash.Token, error) { return idhash.NewToken() }

func (Default) Hash(t idhash.Token) idhash.TransactionID { return idhash.Hash(t) }

func (Default) Verify(t idhash.Token, txID idhash.TransactionID) bool {
	return idhash.Verify(t, txID)
}
