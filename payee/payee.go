// Package payee implements PayeeLink (§4.5): the payee side of a
// single payment request, from receipt creation through to commit or
// cancellation.
//
// Grounded on breez-lightninglib/invoices/invoiceregistry.go's
// request->settle state-machine shape (an entity keyed by a hash,
// tracked through a small number of named states, settled by
// revealing a preimage) — generalized here from a shared registry
// keyed by payment hash to a single PayeeLink per outstanding request,
// keyed by requestID and owning its own token.
package payee

import (
	"fmt"

	"github.com/amikopay/amiko/crypto"
	"github.com/amikopay/amiko/idhash"
	"github.com/amikopay/amiko/lnwire"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/go-errors/errors"
)

// State is the lifecycle stage of a PayeeLink.
type State uint8

const (
	// StateInitial: a Receipt has been handed to the payer but nothing
	// further has happened yet.
	StateInitial State = iota
	// StateConfirmed: the payer's Confirm has arrived; a route is being
	// flooded toward a MeetingPoint.
	StateConfirmed
	// StateHasRoute: a HavePayeeRoute has arrived and this PayeeLink has
	// forwarded it on toward the payer.
	StateHasRoute
	// StateLocked: the inbound channel reservation has been locked.
	StateLocked
	// StateCommitted: the token has been revealed and the channel
	// reservation committed. Terminal.
	StateCommitted
	// StateCancelled: the request was abandoned before commit. Terminal.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateConfirmed:
		return "confirmed"
	case StateHasRoute:
		return "hasRoute"
	case StateLocked:
		return "locked"
	case StateCommitted:
		return "committed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseState is String's inverse, used when restoring a persisted
// Snapshot. An unrecognised string comes back as StateInitial.
func ParseState(s string) State {
	switch s {
	case "confirmed":
		return StateConfirmed
	case "hasRoute":
		return StateHasRoute
	case "locked":
		return StateLocked
	case "committed":
		return StateCommitted
	case "cancelled":
		return StateCancelled
	default:
		return StateInitial
	}
}

// ErrWrongState is returned when a transition is attempted from a
// State that does not allow it.
var ErrWrongState = errors.New("payee: operation not valid in current state")

// PayeeLink tracks one outstanding payment request from the payee's
// side. It owns the secret token — transactionID is derived from it
// at construction time and handed out in the Receipt, but the token
// itself is only revealed to Commit.
type PayeeLink struct {
	RequestID     idhash.RequestID
	Amount        btcutil.Amount
	ReceiptText   string
	MeetingPoints []string

	token         idhash.Token
	transactionID idhash.TransactionID
	state         State
}

// New constructs a PayeeLink for a fresh request, drawing a random
// token through cr and deriving its transactionID immediately so the
// Receipt can be built right away.
func New(cr crypto.Capability, amount btcutil.Amount, receiptText string, meetingPoints []string) (*PayeeLink, error) {
	reqID, err := idhash.NewRequestID()
	if err != nil {
		return nil, fmt.Errorf("payee: generate requestID: %w", err)
	}
	token, err := cr.NewToken()
	if err != nil {
		return nil, fmt.Errorf("payee: generate token: %w", err)
	}

	return &PayeeLink{
		RequestID:     reqID,
		Amount:        amount,
		ReceiptText:   receiptText,
		MeetingPoints: meetingPoints,
		token:         token,
		transactionID: cr.Hash(token),
		state:         StateInitial,
	}, nil
}

// State reports the PayeeLink's current lifecycle stage.
func (p *PayeeLink) State() State { return p.state }

// TransactionID is the identity this PayeeLink's eventual payment will
// be routed and locked under.
func (p *PayeeLink) TransactionID() idhash.TransactionID { return p.transactionID }

// Receipt builds the wire Receipt reply to the payer's Pay.
func (p *PayeeLink) Receipt() *lnwire.Receipt {
	return &lnwire.Receipt{
		Amount:        p.Amount,
		ReceiptText:   p.ReceiptText,
		TransactionID: p.transactionID,
		MeetingPoints: p.MeetingPoints,
	}
}

// Confirm records the payer's approval, advancing StateInitial ->
// StateConfirmed. It is the signal to begin flooding the payee-side
// MakeRoute toward the meeting points listed in the Receipt.
func (p *PayeeLink) Confirm() error {
	if p.state != StateInitial {
		p.state = StateCancelled
		return ErrWrongState
	}
	p.state = StateConfirmed
	return nil
}

// ReceiveRoute records that a MeetingPoint matched this PayeeLink's
// flooded route, advancing StateConfirmed -> StateHasRoute, and
// returns the HavePayeeRoute to forward on toward the payer.
//
// Per the Open Question resolution in SPEC_FULL.md §9, the forwarded
// message's TransactionID is intentionally the zero value rather than
// p.transactionID — preserved wire behaviour from the original
// protocol, not a bug to silently fix.
func (p *PayeeLink) ReceiveRoute() (*lnwire.HavePayeeRoute, error) {
	if p.state != StateConfirmed {
		p.state = StateCancelled
		return nil, ErrWrongState
	}
	p.state = StateHasRoute
	return &lnwire.HavePayeeRoute{TransactionID: idhash.TransactionID{}}, nil
}

// Lock records that the inbound channel reservation has been locked,
// advancing StateHasRoute -> StateLocked.
func (p *PayeeLink) Lock() error {
	if p.state != StateHasRoute {
		p.state = StateCancelled
		return ErrWrongState
	}
	p.state = StateLocked
	return nil
}

// Commit reveals the token and returns the Commit message to send
// back along the route, advancing StateLocked -> StateCommitted.
func (p *PayeeLink) Commit() (*lnwire.Commit, error) {
	if p.state != StateLocked {
		p.state = StateCancelled
		return nil, ErrWrongState
	}
	p.state = StateCommitted
	return &lnwire.Commit{Token: p.token}, nil
}

// Cancel abandons the request. Valid from any non-terminal state.
func (p *PayeeLink) Cancel() error {
	switch p.state {
	case StateCommitted, StateCancelled:
		return ErrWrongState
	}
	p.state = StateCancelled
	return nil
}

// Done reports whether the PayeeLink has reached a terminal state.
func (p *PayeeLink) Done() bool {
	return p.state == StateCommitted || p.state == StateCancelled
}

// Snapshot is the persisted shape of a PayeeLink, including the token
// (unlike Receipt, which never reveals it).
type Snapshot struct {
	RequestID     idhash.RequestID
	Amount        btcutil.Amount
	ReceiptText   string
	MeetingPoints []string
	Token         idhash.Token
	TransactionID idhash.TransactionID
	State         State
}

// Snapshot captures p's full state for persistence across a restart.
func (p *PayeeLink) Snapshot() Snapshot {
	return Snapshot{
		RequestID:     p.RequestID,
		Amount:        p.Amount,
		ReceiptText:   p.ReceiptText,
		MeetingPoints: p.MeetingPoints,
		Token:         p.token,
		TransactionID: p.transactionID,
		State:         p.state,
	}
}

// Restore rebuilds a PayeeLink from a persisted Snapshot, used by
// node.Restore to rehydrate outstanding requests across a restart.
func Restore(s Snapshot) *PayeeLink {
	return &PayeeLink{
		RequestID:     s.RequestID,
		Amount:        s.Amount,
		ReceiptText:   s.ReceiptText,
		MeetingPoints: s.MeetingPoints,
		token:         s.Token,
		transactionID: s.TransactionID,
		state:         s.State,
	}
}
