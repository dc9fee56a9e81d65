package lnwire

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/amikopay/amiko/idhash"
	"github.com/btcsuite/btcd/btcutil"
)

// PayerLocalID is the well-known local identifier a PayerLink uses when
// addressing itself in inter-link messages, per §6.
const PayerLocalID = "__payer__"

// PayeeLocalID is PayerLocalID's counterpart, used by a PayeeLink to
// address itself when originating the payee side of a MakeRoute flood.
const PayeeLocalID = "__payee__"

// Direction indicates which side of a channel a MakeRoute reservation
// travels, mirroring the reserveOutgoing/reserveIncoming split on
// Channel.
type Direction uint8

const (
	// Outgoing reserves against the local side's amountLocal.
	Outgoing Direction = iota
	// Incoming reserves against the remote side's amountRemote.
	Incoming
)

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeString(w io.Writer, s string) error {
	if len(s) > 0xffff {
		return fmt.Errorf("lnwire: string too long to encode (%d bytes)", len(s))
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeStringSlice(w io.Writer, ss []string) error {
	if err := writeUint8(w, uint8(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStringSlice(r io.Reader) ([]string, error) {
	n, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// writeOptionalString writes a presence byte followed by the string
// when present. Used for the "None" fields the spec calls out
// explicitly (Confirm.ID, Cancel.ID, MakeRoute.PayerID/PayeeID).
func writeOptionalString(w io.Writer, s *string) error {
	if s == nil {
		return writeUint8(w, 0)
	}
	if err := writeUint8(w, 1); err != nil {
		return err
	}
	return writeString(w, *s)
}

func readOptionalString(r io.Reader) (*string, error) {
	present, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	s, err := readString(r)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func writeOptionalTime(w io.Writer, t *time.Time) error {
	if t == nil {
		return writeUint8(w, 0)
	}
	if err := writeUint8(w, 1); err != nil {
		return err
	}
	return writeUint64(w, uint64(t.Unix()))
}

func readOptionalTime(r io.Reader) (*time.Time, error) {
	present, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	secs, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	t := time.Unix(int64(secs), 0).UTC()
	return &t, nil
}

func writeOptionalTransactionID(w io.Writer, id *idhash.TransactionID) error {
	if id == nil {
		return writeUint8(w, 0)
	}
	if err := writeUint8(w, 1); err != nil {
		return err
	}
	_, err := w.Write(id[:])
	return err
}

func readOptionalTransactionID(r io.Reader) (*idhash.TransactionID, error) {
	present, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	var id idhash.TransactionID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return nil, err
	}
	return &id, nil
}

func writeTransactionID(w io.Writer, id idhash.TransactionID) error {
	_, err := w.Write(id[:])
	return err
}

func readTransactionID(r io.Reader) (idhash.TransactionID, error) {
	var id idhash.TransactionID
	_, err := io.ReadFull(r, id[:])
	return id, err
}

func writeToken(w io.Writer, t idhash.Token) error {
	_, err := w.Write(t[:])
	return err
}

func readToken(r io.Reader) (idhash.Token, error) {
	var t idhash.Token
	_, err := io.ReadFull(r, t[:])
	return t, err
}

func writeOptionalRequestID(w io.Writer, id *idhash.RequestID) error {
	if id == nil {
		return writeUint8(w, 0)
	}
	if err := writeUint8(w, 1); err != nil {
		return err
	}
	_, err := w.Write(id[:])
	return err
}

func readOptionalRequestID(r io.Reader) (*idhash.RequestID, error) {
	present, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	var id idhash.RequestID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return nil, err
	}
	return &id, nil
}

func writeRequestID(w io.Writer, id idhash.RequestID) error {
	_, err := w.Write(id[:])
	return err
}

func readRequestID(r io.Reader) (idhash.RequestID, error) {
	var id idhash.RequestID
	_, err := io.ReadFull(r, id[:])
	return id, err
}

func writeAmount(w io.Writer, a btcutil.Amount) error {
	return writeUint64(w, uint64(a))
}

func readAmount(r io.Reader) (btcutil.Amount, error) {
	v, err := readUint64(r)
	return btcutil.Amount(v), err
}
