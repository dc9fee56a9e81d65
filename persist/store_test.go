package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amikopay/amiko/idhash"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func samplePath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "state.json")
}

func TestOpenFreshReturnsEmptyState(t *testing.T) {
	store := NewStore(samplePath(t))
	state, err := store.Open()
	require.NoError(t, err)
	require.Equal(t, currentSchemaVersion, state.SchemaVersion)
	require.Empty(t, state.Node.Links)
}

func TestSaveThenOpenRoundTrips(t *testing.T) {
	path := samplePath(t)
	store := NewStore(path)

	state := &State{
		Node: NodeState{
			Links: []LinkRecord{{
				Name:     "alice-bob",
				LocalID:  "alice",
				RemoteID: "bob",
				Channels: []ChannelRecord{{
					Variant:      "plain",
					AmountLocal:  btcutil.Amount(1000),
					AmountRemote: btcutil.Amount(0),
				}},
			}},
		},
	}
	require.NoError(t, store.Save(state))

	// No leftover temp files after a clean save.
	require.False(t, fileExists(path+".new"))
	require.False(t, fileExists(path+".old"))

	loaded, err := store.Open()
	require.NoError(t, err)
	require.Len(t, loaded.Node.Links, 1)
	require.Equal(t, "alice-bob", loaded.Node.Links[0].Name)
	require.Equal(t, btcutil.Amount(1000), loaded.Node.Links[0].Channels[0].AmountLocal)
}

func TestOpenAdoptsOldFileWhenPrimaryMissing(t *testing.T) {
	path := samplePath(t)
	store := NewStore(path)

	state := &State{Node: NodeState{Links: []LinkRecord{{Name: "recovered"}}}}
	require.NoError(t, store.Save(state))

	// Simulate a crash between "rename old->.old" and "rename new->path":
	// the primary file never reappeared, only .old is left.
	require.NoError(t, os.Rename(path, path+".old"))
	require.False(t, fileExists(path))

	loaded, err := store.Open()
	require.NoError(t, err)
	require.Len(t, loaded.Node.Links, 1)
	require.Equal(t, "recovered", loaded.Node.Links[0].Name)
	require.False(t, fileExists(path+".old"))
}

func TestOpenDiscardsStaleOldFileWhenPrimaryPresent(t *testing.T) {
	path := samplePath(t)
	store := NewStore(path)

	require.NoError(t, store.Save(&State{Node: NodeState{Links: []LinkRecord{{Name: "current"}}}}))
	// Leave behind a stray .old from a save that never reached the final
	// cleanup step.
	require.NoError(t, os.WriteFile(path+".old", []byte(`{"schemaVersion":0}`), 0600))

	loaded, err := store.Open()
	require.NoError(t, err)
	require.Equal(t, "current", loaded.Node.Links[0].Name)
	require.False(t, fileExists(path+".old"))
}

func TestOpenRejectsFutureSchemaVersion(t *testing.T) {
	path := samplePath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"schemaVersion":999,"Node":{}}`), 0600))

	store := NewStore(path)
	_, err := store.Open()
	require.ErrorIs(t, err, ErrFutureVersion)
}

func TestSavePreservesTransactionIDKeyedMaps(t *testing.T) {
	path := samplePath(t)
	store := NewStore(path)

	id := idhash.TransactionID{7, 7, 7}
	state := &State{
		Node: NodeState{
			Links: []LinkRecord{{
				Name: "alice-bob",
				Channels: []ChannelRecord{{
					Variant:     "plain",
					AmountLocal: btcutil.Amount(500),
					OutgoingLocked: map[idhash.TransactionID]btcutil.Amount{
						id: btcutil.Amount(50),
					},
				}},
			}},
		},
	}
	require.NoError(t, store.Save(state))

	loaded, err := store.Open()
	require.NoError(t, err)
	got := loaded.Node.Links[0].Channels[0].OutgoingLocked[id]
	require.Equal(t, btcutil.Amount(50), got)
}
