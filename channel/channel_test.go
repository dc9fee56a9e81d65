package channel

import (
	"testing"
	"time"

	"github.com/amikopay/amiko/idhash"
	"github.com/amikopay/amiko/tcd"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func txID(b byte) idhash.TransactionID {
	var id idhash.TransactionID
	id[0] = b
	return id
}

func TestReserveLockCommitOutgoing(t *testing.T) {
	c := New(VariantPlain, 1000, 0)
	id := txID(1)

	require.NoError(t, c.ReserveOutgoing(id, 123))
	require.NoError(t, c.CheckInvariants())

	require.NoError(t, c.LockOutgoing(id))
	require.NoError(t, c.CheckInvariants())

	require.NoError(t, c.CommitOutgoing(id))
	local, remote := c.Balances()
	require.Equal(t, btcutil.Amount(877), local)
	require.Equal(t, btcutil.Amount(123), remote)
	require.NoError(t, c.CheckInvariants())
}

func TestReserveInsufficientCapacity(t *testing.T) {
	c := New(VariantPlain, 1000, 0)
	err := c.ReserveOutgoing(txID(1), 2000)
	require.ErrorIs(t, err, ErrInsufficientCapacity)

	local, remote := c.Balances()
	require.Equal(t, btcutil.Amount(1000), local)
	require.Equal(t, btcutil.Amount(0), remote)
}

func TestLockWithoutReserveFails(t *testing.T) {
	c := New(VariantPlain, 1000, 0)
	err := c.LockOutgoing(txID(1))
	require.ErrorIs(t, err, ErrNotReserved)
}

func TestRollbackFromReserved(t *testing.T) {
	c := New(VariantPlain, 1000, 0)
	id := txID(1)
	require.NoError(t, c.ReserveOutgoing(id, 500))
	require.NoError(t, c.Rollback(id))

	local, remote := c.Balances()
	require.Equal(t, btcutil.Amount(1000), local)
	require.Equal(t, btcutil.Amount(0), remote)

	// Released, so a fresh reservation for the same ID is allowed again.
	require.NoError(t, c.ReserveOutgoing(id, 500))
}

func TestTransactionIDTrackedOnce(t *testing.T) {
	c := New(VariantPlain, 1000, 0)
	id := txID(1)
	require.NoError(t, c.ReserveOutgoing(id, 100))
	err := c.ReserveOutgoing(id, 100)
	require.ErrorIs(t, err, ErrAlreadyTracked)
}

func TestConservationAcrossCommit(t *testing.T) {
	c := New(VariantPlain, 700, 300)
	sumBefore, _ := c.Balances()
	local, remote := c.Balances()
	sumBefore = local + remote

	id := txID(1)
	require.NoError(t, c.ReserveOutgoing(id, 50))
	require.NoError(t, c.LockOutgoing(id))
	require.NoError(t, c.CommitOutgoing(id))

	local, remote = c.Balances()
	require.Equal(t, sumBefore, local+remote)
}

func TestTCDBackedRequiresDocumentToLock(t *testing.T) {
	tc := NewTCDBacked(1000, 0)
	id := txID(1)
	require.NoError(t, tc.ReserveOutgoing(id, 100))

	err := tc.LockOutgoingWithDocument(id, nil)
	require.Error(t, err)
}

func TestTCDBackedDocumentReleasedOnCommit(t *testing.T) {
	tc := NewTCDBacked(1000, 0)
	id := txID(1)
	require.NoError(t, tc.ReserveOutgoing(id, 100))

	doc := &tcd.Document{
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Hour),
		Amount:    btcutil.Amount(100),
	}
	require.NoError(t, tc.LockOutgoingWithDocument(id, doc))

	got, ok := tc.Document(id)
	require.True(t, ok)
	require.Equal(t, doc, got)

	require.NoError(t, tc.CommitOutgoing(id))
	_, ok = tc.Document(id)
	require.False(t, ok)
}
