package lnwire

import (
	"io"
	"time"

	"github.com/amikopay/amiko/idhash"
	"github.com/btcsuite/btcd/btcutil"
)

// Pay opens the payer-to-payee request for a given requestID, per the
// first leg of the §6 sequence:
//
//	Pay(ID) -> Receipt(...) -> {Confirm(...) | Cancel(...)}
type Pay struct {
	ID idhash.RequestID
}

func (m *Pay) MsgType() MessageType { return MsgPay }

func (m *Pay) Encode(w io.Writer) error {
	return writeRequestID(w, m.ID)
}

func (m *Pay) Decode(r io.Reader) error {
	id, err := readRequestID(r)
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// Receipt is the payee's reply to Pay: the amount and receipt text to
// display, the transactionID the payee has already committed to (it's
// derived from the token at PayeeLink construction time), and the
// meeting points the payee is willing to route through.
type Receipt struct {
	Amount        btcutil.Amount
	ReceiptText   string
	TransactionID idhash.TransactionID
	MeetingPoints []string
}

func (m *Receipt) MsgType() MessageType { return MsgReceipt }

func (m *Receipt) Encode(w io.Writer) error {
	if err := writeAmount(w, m.Amount); err != nil {
		return err
	}
	if err := writeString(w, m.ReceiptText); err != nil {
		return err
	}
	if err := writeTransactionID(w, m.TransactionID); err != nil {
		return err
	}
	return writeStringSlice(w, m.MeetingPoints)
}

func (m *Receipt) Decode(r io.Reader) error {
	var err error
	if m.Amount, err = readAmount(r); err != nil {
		return err
	}
	if m.ReceiptText, err = readString(r); err != nil {
		return err
	}
	if m.TransactionID, err = readTransactionID(r); err != nil {
		return err
	}
	m.MeetingPoints, err = readStringSlice(r)
	return err
}

// Confirm is sent by the payer to the payee once the user has approved
// the payment. payer.Confirm sets ID to the payment's requestID and
// leaves MeetingPointID empty; the payee's node looks its PayeeLink up
// by ID and rejects a Confirm whose ID is nil. Confirm is not sent
// between Link hops.
type Confirm struct {
	ID              *idhash.RequestID
	MeetingPointID  string
}

func (m *Confirm) MsgType() MessageType { return MsgConfirm }

func (m *Confirm) Encode(w io.Writer) error {
	if err := writeOptionalRequestID(w, m.ID); err != nil {
		return err
	}
	return writeString(w, m.MeetingPointID)
}

func (m *Confirm) Decode(r io.Reader) error {
	var err error
	if m.ID, err = readOptionalRequestID(r); err != nil {
		return err
	}
	m.MeetingPointID, err = readString(r)
	return err
}

// Cancel aborts a payment. On the payer<->payee transport it carries
// ID (possibly None, mirroring Confirm); between links it carries the
// TransactionID of the reservation being torn down.
type Cancel struct {
	ID            *idhash.RequestID
	TransactionID *idhash.TransactionID
}

func (m *Cancel) MsgType() MessageType { return MsgCancel }

func (m *Cancel) Encode(w io.Writer) error {
	if err := writeOptionalRequestID(w, m.ID); err != nil {
		return err
	}
	return writeOptionalTransactionID(w, m.TransactionID)
}

func (m *Cancel) Decode(r io.Reader) error {
	var err error
	if m.ID, err = readOptionalRequestID(r); err != nil {
		return err
	}
	m.TransactionID, err = readOptionalTransactionID(r)
	return err
}

// MakeRoute floods toward a MeetingPoint, reserving amount on every
// channel it crosses. PayerID/PayeeID identify which side originated
// this branch of the flood (PayerID is lnwire.PayerLocalID on the
// payer's own first hop, None thereafter; symmetrically for PayeeID).
// StartTime/EndTime are mandatory once the message is routed across a
// TCD-backed channel and optional otherwise — see the Open Question
// resolution in SPEC_FULL.md §9.
type MakeRoute struct {
	TransactionID  idhash.TransactionID
	Amount         btcutil.Amount
	Direction      Direction
	MeetingPointID string
	PayerID        *string
	PayeeID        *string
	StartTime      *time.Time
	EndTime        *time.Time
}

func (m *MakeRoute) MsgType() MessageType { return MsgMakeRoute }

func (m *MakeRoute) Encode(w io.Writer) error {
	if err := writeTransactionID(w, m.TransactionID); err != nil {
		return err
	}
	if err := writeAmount(w, m.Amount); err != nil {
		return err
	}
	if err := writeUint8(w, uint8(m.Direction)); err != nil {
		return err
	}
	if err := writeString(w, m.MeetingPointID); err != nil {
		return err
	}
	if err := writeOptionalString(w, m.PayerID); err != nil {
		return err
	}
	if err := writeOptionalString(w, m.PayeeID); err != nil {
		return err
	}
	if err := writeOptionalTime(w, m.StartTime); err != nil {
		return err
	}
	return writeOptionalTime(w, m.EndTime)
}

func (m *MakeRoute) Decode(r io.Reader) error {
	var err error
	if m.TransactionID, err = readTransactionID(r); err != nil {
		return err
	}
	if m.Amount, err = readAmount(r); err != nil {
		return err
	}
	dir, err := readUint8(r)
	if err != nil {
		return err
	}
	m.Direction = Direction(dir)
	if m.MeetingPointID, err = readString(r); err != nil {
		return err
	}
	if m.PayerID, err = readOptionalString(r); err != nil {
		return err
	}
	if m.PayeeID, err = readOptionalString(r); err != nil {
		return err
	}
	if m.StartTime, err = readOptionalTime(r); err != nil {
		return err
	}
	m.EndTime, err = readOptionalTime(r)
	return err
}

// HavePayerRoute is sent by a MeetingPoint back along the payer path
// once a matching payee route has also arrived.
type HavePayerRoute struct {
	TransactionID idhash.TransactionID
}

func (m *HavePayerRoute) MsgType() MessageType { return MsgHavePayerRoute }

func (m *HavePayerRoute) Encode(w io.Writer) error {
	return writeTransactionID(w, m.TransactionID)
}

func (m *HavePayerRoute) Decode(r io.Reader) error {
	id, err := readTransactionID(r)
	if err != nil {
		return err
	}
	m.TransactionID = id
	return nil
}

// HavePayeeRoute is sent by a MeetingPoint back along the payee path,
// and is subsequently re-sent by a PayeeLink on toward the payer. Per
// the Open Question resolution, the PayeeLink's re-send intentionally
// zeroes TransactionID — preserved wire behaviour, not a bug.
type HavePayeeRoute struct {
	TransactionID idhash.TransactionID
}

func (m *HavePayeeRoute) MsgType() MessageType { return MsgHavePayeeRoute }

func (m *HavePayeeRoute) Encode(w io.Writer) error {
	return writeTransactionID(w, m.TransactionID)
}

func (m *HavePayeeRoute) Decode(r io.Reader) error {
	id, err := readTransactionID(r)
	if err != nil {
		return err
	}
	m.TransactionID = id
	return nil
}

// Lock converts a channel's reservation into a lock, propagating along
// the payer-side path.
type Lock struct {
	TransactionID idhash.TransactionID
}

func (m *Lock) MsgType() MessageType { return MsgLock }

func (m *Lock) Encode(w io.Writer) error {
	return writeTransactionID(w, m.TransactionID)
}

func (m *Lock) Decode(r io.Reader) error {
	id, err := readTransactionID(r)
	if err != nil {
		return err
	}
	m.TransactionID = id
	return nil
}

// Commit reveals the preimage token, unlocking channels into committed
// balance transfers as it propagates back toward the payer.
type Commit struct {
	Token idhash.Token
}

func (m *Commit) MsgType() MessageType { return MsgCommit }

func (m *Commit) Encode(w io.Writer) error {
	return writeToken(w, m.Token)
}

func (m *Commit) Decode(r io.Reader) error {
	t, err := readToken(r)
	if err != nil {
		return err
	}
	m.Token = t
	return nil
}

// SettleCommit follows Commit on the same path and drives each side to
// its committed terminal state.
type SettleCommit struct {
	Token idhash.Token
}

func (m *SettleCommit) MsgType() MessageType { return MsgSettleCommit }

func (m *SettleCommit) Encode(w io.Writer) error {
	return writeToken(w, m.Token)
}

func (m *SettleCommit) Decode(r io.Reader) error {
	t, err := readToken(r)
	if err != nil {
		return err
	}
	m.Token = t
	return nil
}

// Timeout is addressed internally from the node's timer min-heap to a
// named target (a PayerLink, keyed by lnwire.PayerLocalID, or a
// MeetingPoint, keyed by its ID) watching a particular state. It never
// crosses the wire, but Encode/Decode exist so it satisfies Message and
// can sit in the same dispatch table.
type Timeout struct {
	Target string
	State  string
}

func (m *Timeout) MsgType() MessageType { return MsgTimeout }

func (m *Timeout) Encode(w io.Writer) error {
	if err := writeString(w, m.Target); err != nil {
		return err
	}
	return writeString(w, m.State)
}

func (m *Timeout) Decode(r io.Reader) error {
	var err error
	if m.Target, err = readString(r); err != nil {
		return err
	}
	m.State, err = readString(r)
	return err
}
