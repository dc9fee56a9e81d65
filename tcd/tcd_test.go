package tcd

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func sampleDoc() *Document {
	d := &Document{
		StartTime: time.Unix(1000, 0).UTC(),
		EndTime:   time.Unix(2000, 0).UTC(),
		Amount:    btcutil.Amount(123),
	}
	for i := range d.TokenHash {
		d.TokenHash[i] = byte(i)
	}
	for i := range d.CommitAddress {
		d.CommitAddress[i] = byte(i + 1)
	}
	for i := range d.RollbackAddress {
		d.RollbackAddress[i] = byte(i + 2)
	}
	return d
}

func TestDocumentRoundTrip(t *testing.T) {
	d := sampleDoc()

	raw, err := EncodeList([]*Document{d})
	require.NoError(t, err)
	require.Len(t, raw, DocumentSize)

	docs, err := DecodeList(raw)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, d, docs[0])
}

func TestDecodeListMultipleDocuments(t *testing.T) {
	d1, d2 := sampleDoc(), sampleDoc()
	d2.Amount = 456

	raw, err := EncodeList([]*Document{d1, d2})
	require.NoError(t, err)

	docs, err := DecodeList(raw)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, d1.Amount, docs[0].Amount)
	require.Equal(t, d2.Amount, docs[1].Amount)
}

func TestDecodeListBadLength(t *testing.T) {
	_, err := DecodeList(make([]byte, DocumentSize+1))
	require.Error(t, err)
}
