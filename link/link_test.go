package link

import (
	"testing"

	"github.com/amikopay/amiko/channel"
	"github.com/amikopay/amiko/idhash"
	"github.com/stretchr/testify/require"
)

func txID(b byte) idhash.TransactionID {
	var id idhash.TransactionID
	id[0] = b
	return id
}

func TestReserveLockCommitOnPlainChannel(t *testing.T) {
	l := New("alice-bob", "alice", "bob")
	l.AddChannel(channel.New(channel.VariantPlain, 1000, 0))

	id := txID(1)
	ch, err := l.Reserve(id, 100, Outgoing, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, ch)
	require.True(t, l.HasOpenTransaction(id))

	require.NoError(t, l.Lock(id))
	require.NoError(t, l.Commit(id))
	require.False(t, l.HasOpenTransaction(id))

	local, remote := ch.Balances()
	require.Equal(t, int64(900), int64(local))
	require.Equal(t, int64(100), int64(remote))
}

func TestReserveFailsWithoutCapacity(t *testing.T) {
	l := New("alice-bob", "alice", "bob")
	l.AddChannel(channel.New(channel.VariantPlain, 100, 0))

	_, err := l.Reserve(txID(1), 1000, Outgoing, nil, nil)
	require.ErrorIs(t, err, ErrNoCapacity)
}

func TestReserveOnTCDBackedRequiresTimeWindow(t *testing.T) {
	l := New("alice-bob", "alice", "bob")
	l.AddChannel(channel.NewTCDBacked(1000, 0))

	_, err := l.Reserve(txID(1), 100, Outgoing, nil, nil)
	require.ErrorIs(t, err, ErrProtocolViolation)

	yes := true
	_, err = l.Reserve(txID(1), 100, Outgoing, &yes, &yes)
	require.NoError(t, err)
}

func TestRollbackReleasesReservation(t *testing.T) {
	l := New("alice-bob", "alice", "bob")
	l.AddChannel(channel.New(channel.VariantPlain, 1000, 0))

	id := txID(1)
	_, err := l.Reserve(id, 100, Outgoing, nil, nil)
	require.NoError(t, err)

	require.NoError(t, l.Rollback(id))
	require.False(t, l.HasOpenTransaction(id))

	// Capacity is released, so the same transactionID can reserve again.
	_, err = l.Reserve(id, 100, Outgoing, nil, nil)
	require.NoError(t, err)
}

func TestOperationsOnUnknownTransactionFail(t *testing.T) {
	l := New("alice-bob", "alice", "bob")
	l.AddChannel(channel.New(channel.VariantPlain, 1000, 0))

	require.ErrorIs(t, l.Lock(txID(9)), ErrLinkNotFound)
	require.ErrorIs(t, l.Commit(txID(9)), ErrLinkNotFound)
	require.ErrorIs(t, l.Rollback(txID(9)), ErrLinkNotFound)
}

func TestSecondChannelUsedWhenFirstLacksCapacity(t *testing.T) {
	l := New("alice-bob", "alice", "bob")
	l.AddChannel(channel.New(channel.VariantPlain, 10, 0))
	second := channel.New(channel.VariantPlain, 1000, 0)
	l.AddChannel(second)

	id := txID(1)
	ch, err := l.Reserve(id, 500, Outgoing, nil, nil)
	require.NoError(t, err)
	require.Same(t, second, ch)
}
