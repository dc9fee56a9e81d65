// Package settlement defines the abstract boundary to whatever moves
// real funds on a node's behalf (§1): opening/depositing/withdrawing
// channel capacity and reporting balances. Per §1's Non-goals, fraud
// proofs and unilateral on-chain enforcement are out of scope; the only
// implementation in this module is ManualBackend (manual.go), an
// operator-driven in-memory ledger that watches no chain.
//
// Grounded on chainntfs/chainntfs.go's style: a small, general
// interface specified against several possible concrete backends
// (btcd websockets, Bitcoin Core ZeroMQ, Electrum, ...) rather than
// committing to one.
package settlement

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
)

// Backend is the capability a Node uses to move funds and query
// liveness. Concrete implementations (an on-chain wallet, a
// third-party custodial API, a test double) satisfy this interface;
// this package provides ManualBackend.
type Backend interface {
	// GetBalance reports the backend's total available balance,
	// independent of any particular channel — used by the node event
	// loop's watchdog tick to probe liveness (§4.7).
	GetBalance(ctx context.Context) (btcutil.Amount, error)

	// GetNewAddress returns a fresh address capable of receiving a
	// deposit into a channel being opened.
	GetNewAddress(ctx context.Context) (string, error)

	// SendRawTransaction broadcasts a pre-built transaction, such as
	// the funding flow underlying a deposit or withdraw API call.
	SendRawTransaction(ctx context.Context, rawTx []byte) error

	// ListTransactions returns the backend's transaction history,
	// most recent first, used to detect confirmed deposits.
	ListTransactions(ctx context.Context) ([]Transaction, error)
}

// Transaction is a minimal view of a backend-reported transaction: its
// identity, net effect on balance, and confirmation depth.
type Transaction struct {
	TxID          string
	Amount        btcutil.Amount
	Confirmations uint32
}
