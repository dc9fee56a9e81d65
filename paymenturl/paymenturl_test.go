package paymenturl

import (
	"testing"

	"github.com/amikopay/amiko/idhash"
	"github.com/stretchr/testify/require"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	id, err := idhash.NewRequestID()
	require.NoError(t, err)

	u := Encode("payee.example.com", 4242, id)
	host, port, gotID, err := Parse(u)
	require.NoError(t, err)
	require.Equal(t, "payee.example.com", host)
	require.Equal(t, 4242, port)
	require.Equal(t, id, gotID)
}

func TestParseRejectsWrongScheme(t *testing.T) {
	_, _, _, err := Parse("https://payee.example.com:4242/abc")
	require.ErrorIs(t, err, ErrWrongScheme)
}

func TestParseRejectsMissingPort(t *testing.T) {
	_, _, _, err := Parse("amikopay://payee.example.com/abc")
	require.Error(t, err)
}

func TestParseRejectsMalformedRequestID(t *testing.T) {
	_, _, _, err := Parse("amikopay://payee.example.com:4242/not-hex")
	require.Error(t, err)
}
