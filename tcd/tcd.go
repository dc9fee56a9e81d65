// Package tcd implements the Transaction Conditions Document: the
// 84-byte on-wire description of an HTLC-equivalent commitment that a
// TCD-backed channel attaches to a locked transaction, per §6 of the
// specification. On-chain enforcement of a Document is delegated to a
// SettlementBackend outside this module; tcd only (de)serializes the
// fixed-field layout.
package tcd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// DocumentSize is the fixed wire length of a single Document: three
// uint64 fields plus three 20-byte hashes.
const DocumentSize = 8 + 8 + 8 + 20 + 20 + 20

// HashSize is the width of the tokenHash/commitAddress/rollbackAddress
// fields.
const HashSize = 20

// Document is the 84-byte, big-endian Transaction Conditions Document:
//
//	uint64 startTime | uint64 endTime | uint64 amount |
//	20 bytes tokenHash | 20 bytes commitAddress | 20 bytes rollbackAddress
type Document struct {
	StartTime       time.Time
	EndTime         time.Time
	Amount          btcutil.Amount
	TokenHash       [HashSize]byte
	CommitAddress   [HashSize]byte
	RollbackAddress [HashSize]byte
}

// Encode serializes a single Document in the fixed 84-byte layout.
func (d *Document) Encode(w *bytes.Buffer) error {
	var buf [DocumentSize]byte

	binary.BigEndian.PutUint64(buf[0:8], uint64(d.StartTime.Unix()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(d.EndTime.Unix()))
	binary.BigEndian.PutUint64(buf[16:24], uint64(d.Amount))
	copy(buf[24:44], d.TokenHash[:])
	copy(buf[44:64], d.CommitAddress[:])
	copy(buf[64:84], d.RollbackAddress[:])

	_, err := w.Write(buf[:])
	return err
}

// Decode reads a single 84-byte Document from r.
func Decode(r *bytes.Reader) (*Document, error) {
	var buf [DocumentSize]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("tcd: decode document: %w", err)
	}

	d := &Document{
		StartTime: time.Unix(int64(binary.BigEndian.Uint64(buf[0:8])), 0).UTC(),
		EndTime:   time.Unix(int64(binary.BigEndian.Uint64(buf[8:16])), 0).UTC(),
		Amount:    btcutil.Amount(binary.BigEndian.Uint64(buf[16:24])),
	}
	copy(d.TokenHash[:], buf[24:44])
	copy(d.CommitAddress[:], buf[44:64])
	copy(d.RollbackAddress[:], buf[64:84])

	return d, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// EncodeList concatenates a list of Documents, as is done when several
// hops of a route each attach their own commitment.
func EncodeList(docs []*Document) ([]byte, error) {
	var buf bytes.Buffer
	for i, d := range docs {
		if err := d.Encode(&buf); err != nil {
			return nil, fmt.Errorf("tcd: encode document %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeList deserializes a concatenation of Documents. Per §6, the
// input length must be a multiple of DocumentSize or deserialization
// fails outright — no partial list is ever returned.
func DecodeList(raw []byte) ([]*Document, error) {
	if len(raw)%DocumentSize != 0 {
		return nil, fmt.Errorf(
			"tcd: document list length %d is not a multiple of %d",
			len(raw), DocumentSize)
	}

	r := bytes.NewReader(raw)
	count := len(raw) / DocumentSize
	docs := make([]*Document, 0, count)
	for i := 0; i < count; i++ {
		d, err := Decode(r)
		if err != nil {
			return nil, fmt.Errorf("tcd: decode document %d of %d: %w",
				i, count, err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}
