package lnwire

import (
	"bytes"
	"testing"
	"time"

	"github.com/amikopay/amiko/idhash"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, msg Message) Message {
	var buf bytes.Buffer
	_, err := WriteMessage(&buf, msg)
	require.NoError(t, err)

	out, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, msg.MsgType(), out.MsgType())
	return out
}

func TestMakeRouteRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second).UTC()
	payerID := PayerLocalID
	m := &MakeRoute{
		TransactionID:  idhash.TransactionID{1, 2, 3},
		Amount:         btcutil.Amount(123),
		Direction:      Outgoing,
		MeetingPointID: "mp-4",
		PayerID:        &payerID,
		StartTime:      &now,
		EndTime:        &now,
	}

	out := roundTrip(t, m).(*MakeRoute)
	require.Equal(t, m.TransactionID, out.TransactionID)
	require.Equal(t, m.Amount, out.Amount)
	require.Equal(t, m.MeetingPointID, out.MeetingPointID)
	require.Equal(t, *m.PayerID, *out.PayerID)
	require.Nil(t, out.PayeeID)
	require.True(t, m.StartTime.Equal(*out.StartTime))
}

func TestCommitRoundTrip(t *testing.T) {
	token, err := idhash.NewToken()
	require.NoError(t, err)

	m := &Commit{Token: token}
	out := roundTrip(t, m).(*Commit)
	require.Equal(t, token, out.Token)
}

func TestUnknownMessageType(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x42})
	_, err := ReadMessage(&buf)
	require.Error(t, err)
}

func TestHavePayeeRouteZeroedOnForward(t *testing.T) {
	// The PayeeLink intentionally forwards a zeroed TransactionID; this
	// test only pins the wire shape, the zeroing behaviour itself is
	// exercised in package payee.
	m := &HavePayeeRoute{TransactionID: idhash.TransactionID{}}
	out := roundTrip(t, m).(*HavePayeeRoute)
	require.Equal(t, idhash.TransactionID{}, out.TransactionID)
}
