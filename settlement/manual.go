package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
)

// ManualBackend is a Backend whose balance is moved by an operator
// calling Credit/Debit directly rather than by watching a real chain
// or wallet RPC. No wallet integration ships in this module (§1's
// Non-goals put fraud proofs and on-chain enforcement out of scope);
// ManualBackend is cmd/amikod's default until a real one is wired in,
// and is adequate for a node whose channels are funded and settled out
// of band.
type ManualBackend struct {
	mu      sync.Mutex
	balance btcutil.Amount
	history []Transaction
}

// NewManualBackend constructs a ManualBackend starting at the given
// balance.
func NewManualBackend(initial btcutil.Amount) *ManualBackend {
	return &ManualBackend{balance: initial}
}

// GetBalance reports the operator-maintained balance.
func (b *ManualBackend) GetBalance(ctx context.Context) (btcutil.Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

// GetNewAddress returns a placeholder identifier for a deposit
// destination: a random 20-byte handle, not a real chain address,
// since no wallet backs this implementation.
func (b *ManualBackend) GetNewAddress(ctx context.Context) (string, error) {
	var h [20]byte
	if _, err := rand.Read(h[:]); err != nil {
		return "", fmt.Errorf("settlement: generating address handle: %w", err)
	}
	return hex.EncodeToString(h[:]), nil
}

// SendRawTransaction records rawTx in the transaction history without
// broadcasting anything, since ManualBackend has no chain connection.
func (b *ManualBackend) SendRawTransaction(ctx context.Context, rawTx []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append([]Transaction{{
		TxID:          fmt.Sprintf("manual-%d", len(b.history)),
		Confirmations: 1,
	}}, b.history...)
	return nil
}

// ListTransactions returns the recorded history, most recent first.
func (b *ManualBackend) ListTransactions(ctx context.Context) ([]Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Transaction, len(b.history))
	copy(out, b.history)
	return out, nil
}

// Credit adds amount to the balance, standing in for an operator
// observing a confirmed on-chain deposit.
func (b *ManualBackend) Credit(amount btcutil.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance += amount
}

// Debit subtracts amount from the balance, failing if it would go
// negative.
func (b *ManualBackend) Debit(amount btcutil.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if amount > b.balance {
		return fmt.Errorf("settlement: insufficient balance: have %s, need %s", b.balance, amount)
	}
	b.balance -= amount
	return nil
}
