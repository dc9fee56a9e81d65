package channel

import (
	"fmt"

	"github.com/amikopay/amiko/idhash"
	"github.com/amikopay/amiko/tcd"
	"github.com/btcsuite/btcd/btcutil"
)

// TCDBacked wraps a Channel of VariantTCDBacked, attaching a
// tcd.Document to every transaction as it moves into the locked state.
// On-chain enforcement of a Document is out of scope (§1); this
// package only keeps the document around long enough to hand it to
// whatever SettlementBackend call would broadcast it, and to satisfy
// the wire-compatibility requirement in §6.
type TCDBacked struct {
	*Channel

	documents map[idhash.TransactionID]*tcd.Document
}

// NewTCDBacked constructs a TCD-backed Channel.
func NewTCDBacked(amountLocal, amountRemote btcutil.Amount) *TCDBacked {
	return &TCDBacked{
		Channel:   New(VariantTCDBacked, amountLocal, amountRemote),
		documents: make(map[idhash.TransactionID]*tcd.Document),
	}
}

// LockOutgoingWithDocument locks txID exactly like Channel.LockOutgoing,
// additionally attaching doc so it can be retrieved (and eventually
// handed to a SettlementBackend) for as long as the transaction stays
// locked.
func (t *TCDBacked) LockOutgoingWithDocument(txID idhash.TransactionID, doc *tcd.Document) error {
	if doc == nil {
		return fmt.Errorf("channel: tcd-backed channel requires a document to lock outgoing")
	}
	if err := t.Channel.LockOutgoing(txID); err != nil {
		return err
	}
	t.documents[txID] = doc
	return nil
}

// LockIncomingWithDocument is the symmetric counterpart for the
// incoming direction.
func (t *TCDBacked) LockIncomingWithDocument(txID idhash.TransactionID, doc *tcd.Document) error {
	if doc == nil {
		return fmt.Errorf("channel: tcd-backed channel requires a document to lock incoming")
	}
	if err := t.Channel.LockIncoming(txID); err != nil {
		return err
	}
	t.documents[txID] = doc
	return nil
}

// Document returns the TCD attached to txID, if it is currently locked.
func (t *TCDBacked) Document(txID idhash.TransactionID) (*tcd.Document, bool) {
	d, ok := t.documents[txID]
	return d, ok
}

// forget drops a resolved transaction's document; called by
// CommitOutgoing/CommitIncoming/Rollback overrides below once the
// underlying Channel has processed the state change.
func (t *TCDBacked) forget(txID idhash.TransactionID) {
	delete(t.documents, txID)
}

// CommitOutgoing overrides Channel.CommitOutgoing to also release the
// attached document.
func (t *TCDBacked) CommitOutgoing(txID idhash.TransactionID) error {
	if err := t.Channel.CommitOutgoing(txID); err != nil {
		return err
	}
	t.forget(txID)
	return nil
}

// CommitIncoming overrides Channel.CommitIncoming to also release the
// attached document.
func (t *TCDBacked) CommitIncoming(txID idhash.TransactionID) error {
	if err := t.Channel.CommitIncoming(txID); err != nil {
		return err
	}
	t.forget(txID)
	return nil
}

// Rollback overrides Channel.Rollback to also release any attached
// document.
func (t *TCDBacked) Rollback(txID idhash.TransactionID) error {
	if err := t.Channel.Rollback(txID); err != nil {
		return err
	}
	t.forget(txID)
	return nil
}
