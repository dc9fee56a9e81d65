package payer

import (
	"testing"

	"github.com/amikopay/amiko/crypto"
	"github.com/amikopay/amiko/idhash"
	"github.com/amikopay/amiko/lnwire"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func sampleReceipt(amount int64) (*lnwire.Receipt, idhash.Token) {
	token, _ := idhash.NewToken()
	txID := idhash.Hash(token)
	return &lnwire.Receipt{
		Amount:        btcutil.Amount(amount),
		ReceiptText:   "a coffee",
		TransactionID: txID,
	}, token
}

func TestHappyPathToCommit(t *testing.T) {
	reqID, _ := idhash.NewRequestID()
	p := New(crypto.Default{}, "payee.example", 9999, reqID, btcutil.Amount(100))

	receipt, token := sampleReceipt(100)
	require.NoError(t, p.ReceiveReceipt(receipt, btcutil.Amount(100)))
	require.Equal(t, StateHasReceipt, p.State())

	confirm, err := p.Confirm()
	require.NoError(t, err)
	require.Equal(t, reqID, *confirm.ID)
	require.Equal(t, StateConfirmed, p.State())

	require.NoError(t, p.ReceivePayerRoute())
	require.Equal(t, StateHasPayerRoute, p.State())
	require.False(t, p.HasBothRoutes())

	require.NoError(t, p.ReceivePayeeRoute())
	require.True(t, p.HasBothRoutes())

	lock, err := p.Lock()
	require.NoError(t, err)
	require.Equal(t, p.TransactionID, lock.TransactionID)
	require.Equal(t, StateLocked, p.State())

	require.NoError(t, p.ReceiveCommit(token))
	require.Equal(t, StateReceivedCommit, p.State())

	settle, err := p.Commit()
	require.NoError(t, err)
	require.Equal(t, token, settle.Token)
	require.Equal(t, StateCommitted, p.State())
	require.True(t, p.Done())
}

func TestRoutesCanArriveInEitherOrder(t *testing.T) {
	reqID, _ := idhash.NewRequestID()
	p := New(crypto.Default{}, "payee.example", 9999, reqID, btcutil.Amount(10))
	receipt, _ := sampleReceipt(10)
	require.NoError(t, p.ReceiveReceipt(receipt, btcutil.Amount(10)))
	_, err := p.Confirm()
	require.NoError(t, err)

	require.NoError(t, p.ReceivePayeeRoute())
	require.Equal(t, StateHasPayeeRoute, p.State())
	require.NoError(t, p.ReceivePayerRoute())
	require.True(t, p.HasBothRoutes())
}

func TestReceiptAmountMismatchRejected(t *testing.T) {
	reqID, _ := idhash.NewRequestID()
	p := New(crypto.Default{}, "payee.example", 9999, reqID, btcutil.Amount(100))
	receipt, _ := sampleReceipt(50)
	err := p.ReceiveReceipt(receipt, btcutil.Amount(100))
	require.Error(t, err)
}

func TestCannotCancelAfterCommitTokenReceived(t *testing.T) {
	reqID, _ := idhash.NewRequestID()
	p := New(crypto.Default{}, "payee.example", 9999, reqID, btcutil.Amount(10))
	receipt, token := sampleReceipt(10)
	require.NoError(t, p.ReceiveReceipt(receipt, btcutil.Amount(10)))
	_, err := p.Confirm()
	require.NoError(t, err)
	require.NoError(t, p.ReceivePayerRoute())
	require.NoError(t, p.ReceivePayeeRoute())
	_, err = p.Lock()
	require.NoError(t, err)
	require.NoError(t, p.ReceiveCommit(token))

	err = p.Cancel()
	require.Error(t, err)
}

func TestCancelAllowedBeforeToken(t *testing.T) {
	reqID, _ := idhash.NewRequestID()
	p := New(crypto.Default{}, "payee.example", 9999, reqID, btcutil.Amount(10))
	require.NoError(t, p.Cancel())
	require.True(t, p.Done())
}

func TestInvalidTokenRejected(t *testing.T) {
	reqID, _ := idhash.NewRequestID()
	p := New(crypto.Default{}, "payee.example", 9999, reqID, btcutil.Amount(10))
	receipt, _ := sampleReceipt(10)
	require.NoError(t, p.ReceiveReceipt(receipt, btcutil.Amount(10)))
	_, err := p.Confirm()
	require.NoError(t, err)
	require.NoError(t, p.ReceivePayerRoute())
	require.NoError(t, p.ReceivePayeeRoute())
	_, err = p.Lock()
	require.NoError(t, err)

	wrongToken, _ := idhash.NewToken()
	err = p.ReceiveCommit(wrongToken)
	require.Error(t, err)
	require.Equal(t, StateCancelled, p.State())
}
