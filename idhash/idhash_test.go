package idhash

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashVerify(t *testing.T) {
	token, err := NewToken()
	require.NoError(t, err)

	txID := Hash(token)
	require.True(t, Verify(token, txID))

	other, err := NewToken()
	require.NoError(t, err)
	require.False(t, Verify(other, txID))
}

func TestTransactionIDRoundTrip(t *testing.T) {
	token, err := NewToken()
	require.NoError(t, err)
	txID := Hash(token)

	s := txID.String()
	parsed, err := ParseTransactionID(s)
	require.NoError(t, err)
	require.Equal(t, txID, parsed)
}

func TestTransactionIDJSON(t *testing.T) {
	token, err := NewToken()
	require.NoError(t, err)
	txID := Hash(token)

	data, err := json.Marshal(txID)
	require.NoError(t, err)

	var out TransactionID
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, txID, out)
}

func TestParseRequestIDWrongLength(t *testing.T) {
	_, err := ParseRequestID("abcd")
	require.Error(t, err)
}
