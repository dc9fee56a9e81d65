package meetingpoint

import (
	"testing"
	"time"

	"github.com/amikopay/amiko/idhash"
	"github.com/stretchr/testify/require"
)

func txID(b byte) idhash.TransactionID {
	var id idhash.TransactionID
	id[0] = b
	return id
}

func TestPayerThenPayeeMatches(t *testing.T) {
	mp := New("mp-1")
	now := time.Now()
	id := txID(1)

	match, err := mp.HandlePayerRoute(id, 100, nil, nil, "link-to-payer", now)
	require.NoError(t, err)
	require.Nil(t, match)
	require.True(t, mp.Pending(id))

	match, err = mp.HandlePayeeRoute(id, 100, nil, nil, "link-to-payee", now)
	require.NoError(t, err)
	require.NotNil(t, match)
	require.Equal(t, "link-to-payer", match.PayerReplyVia)
	require.Equal(t, "link-to-payee", match.PayeeReplyVia)
	require.False(t, mp.Pending(id))
}

func TestPayeeThenPayerMatches(t *testing.T) {
	mp := New("mp-1")
	now := time.Now()
	id := txID(2)

	_, err := mp.HandlePayeeRoute(id, 50, nil, nil, "payee-side", now)
	require.NoError(t, err)

	match, err := mp.HandlePayerRoute(id, 50, nil, nil, "payer-side", now)
	require.NoError(t, err)
	require.NotNil(t, match)
	require.Equal(t, "payer-side", match.PayerReplyVia)
	require.Equal(t, "payee-side", match.PayeeReplyVia)
}

func TestAmountMismatchFails(t *testing.T) {
	mp := New("mp-1")
	now := time.Now()
	id := txID(3)

	_, err := mp.HandlePayerRoute(id, 100, nil, nil, "payer-side", now)
	require.NoError(t, err)

	_, err = mp.HandlePayeeRoute(id, 200, nil, nil, "payee-side", now)
	require.Error(t, err)
}

func TestNonOverlappingWindowsFail(t *testing.T) {
	mp := New("mp-1")
	now := time.Now()
	id := txID(4)

	earlyStart := now
	earlyEnd := now.Add(time.Minute)
	lateStart := now.Add(time.Hour)
	lateEnd := now.Add(2 * time.Hour)

	_, err := mp.HandlePayerRoute(id, 10, &earlyStart, &earlyEnd, "payer-side", now)
	require.NoError(t, err)

	_, err = mp.HandlePayeeRoute(id, 10, &lateStart, &lateEnd, "payee-side", now)
	require.Error(t, err)
}

func TestExpireBeforeReturnsTimedOutRoutes(t *testing.T) {
	mp := New("mp-1")
	now := time.Now()
	past := now.Add(-time.Minute)
	id := txID(5)

	_, err := mp.HandlePayerRoute(id, 10, nil, &past, "payer-side", now.Add(-time.Hour))
	require.NoError(t, err)

	expired := mp.ExpireBefore(now)
	require.Contains(t, expired, id)

	mp.Forget(id)
	require.False(t, mp.Pending(id))
}

func TestUnboundedWindowNeverExpiresOnItsOwn(t *testing.T) {
	mp := New("mp-1")
	id := txID(6)
	_, err := mp.HandlePayerRoute(id, 10, nil, nil, "payer-side", time.Now())
	require.NoError(t, err)

	expired := mp.ExpireBefore(time.Now().Add(24 * time.Hour))
	require.Empty(t, expired)
}
