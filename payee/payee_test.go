package payee

import (
	"testing"

	"github.com/amikopay/amiko/crypto"
	"github.com/amikopay/amiko/idhash"
	"github.com/stretchr/testify/require"
)

func TestHappyPathToCommit(t *testing.T) {
	p, err := New(crypto.Default{}, 100, "a coffee", []string{"mp-1"})
	require.NoError(t, err)
	require.Equal(t, StateInitial, p.State())

	receipt := p.Receipt()
	require.Equal(t, p.TransactionID(), receipt.TransactionID)

	require.NoError(t, p.Confirm())
	require.Equal(t, StateConfirmed, p.State())

	have, err := p.ReceiveRoute()
	require.NoError(t, err)
	require.Equal(t, idhash.TransactionID{}, have.TransactionID)
	require.NotEqual(t, p.TransactionID(), have.TransactionID)
	require.Equal(t, StateHasRoute, p.State())

	require.NoError(t, p.Lock())
	require.Equal(t, StateLocked, p.State())

	commit, err := p.Commit()
	require.NoError(t, err)
	require.True(t, idhash.Verify(commit.Token, p.TransactionID()))
	require.Equal(t, StateCommitted, p.State())
	require.True(t, p.Done())
}

func TestOutOfOrderTransitionsFail(t *testing.T) {
	p, err := New(crypto.Default{}, 100, "x", nil)
	require.NoError(t, err)

	_, err = p.ReceiveRoute()
	require.ErrorIs(t, err, ErrWrongState)
	require.Equal(t, StateCancelled, p.State())

	p, err = New(crypto.Default{}, 100, "x", nil)
	require.NoError(t, err)
	require.NoError(t, p.Confirm())
	require.ErrorIs(t, p.Confirm(), ErrWrongState)
	require.Equal(t, StateCancelled, p.State())
}

func TestCancelFromNonTerminalStates(t *testing.T) {
	p, err := New(crypto.Default{}, 50, "x", nil)
	require.NoError(t, err)
	require.NoError(t, p.Cancel())
	require.True(t, p.Done())
	require.ErrorIs(t, p.Cancel(), ErrWrongState)
}

func TestCancelAfterCommitFails(t *testing.T) {
	p, err := New(crypto.Default{}, 50, "x", nil)
	require.NoError(t, err)
	require.NoError(t, p.Confirm())
	_, err = p.ReceiveRoute()
	require.NoError(t, err)
	require.NoError(t, p.Lock())
	_, err = p.Commit()
	require.NoError(t, err)

	require.ErrorIs(t, p.Cancel(), ErrWrongState)
}
