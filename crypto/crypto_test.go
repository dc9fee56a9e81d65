package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCapabilityRoundTrips(t *testing.T) {
	var c Capability = Default{}

	token, err := c.NewToken()
	require.NoError(t, err)

	txID := c.Hash(token)
	require.True(t, c.Verify(token, txID))

	other, err := c.NewToken()
	require.NoError(t, err)
	require.False(t, c.Verify(other, txID))
}
