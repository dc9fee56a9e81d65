// Package payer implements PayerLink (§4.6): the payer side of a
// single outgoing payment, from receipt through to commit, including
// the asymmetric-commit property and the grace-period auto-finalise
// rule on Timeout(receivedCommit).
//
// Grounded on routing.missionControl's shape: a small struct tracking
// the state of one in-flight attempt, with no mutex of its own,
// consulted and advanced by the single caller driving payment sends
// (node's event loop) — generalized
// here from a decaying shared view across many attempts to one
// PayerLink per attempt.
package payer

import (
	"fmt"

	"github.com/amikopay/amiko/crypto"
	"github.com/amikopay/amiko/idhash"
	"github.com/amikopay/amiko/lnwire"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/go-errors/errors"
)

// State is the lifecycle stage of a PayerLink.
type State uint8

const (
	// StateInitial: Pay has been sent, awaiting Receipt.
	StateInitial State = iota
	// StateHasReceipt: Receipt has arrived; awaiting user confirmation.
	StateHasReceipt
	// StateConfirmed: the user approved the payment; Confirm has been
	// sent and a route is being flooded.
	StateConfirmed
	// StateHasPayerRoute: this side's own MeetingPoint match arrived.
	StateHasPayerRoute
	// StateHasPayeeRoute: the payee's matching route arrived too (order
	// of these two is not guaranteed — see HasBothRoutes).
	StateHasPayeeRoute
	// StateLocked: the outgoing channel reservation has been locked.
	StateLocked
	// StateReceivedCommit: the upstream Commit (with the token) arrived
	// but this PayerLink has not yet relayed its own commit onward —
	// the asymmetric-commit window described in §4.6. A Timeout fired
	// while in this state auto-finalises per the grace-period rule.
	StateReceivedCommit
	// StateCommitted: fully committed. Terminal.
	StateCommitted
	// StateCancelled: abandoned before commit. Terminal.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateHasReceipt:
		return "hasReceipt"
	case StateConfirmed:
		return "confirmed"
	case StateHasPayerRoute:
		return "hasPayerRoute"
	case StateHasPayeeRoute:
		return "hasPayeeRoute"
	case StateLocked:
		return "locked"
	case StateReceivedCommit:
		return "receivedCommit"
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
	case "hasReceipt":
		return StateHasReceipt
	case "confirmed":
		return StateConfirmed
	case "hasPayerRoute":
		return StateHasPayerRoute
	case "hasPayeeRoute":
		return StateHasPayeeRoute
	case "locked":
		return StateLocked
	case "receivedCommit":
		return StateReceivedCommit
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
var ErrWrongState = errors.New("payer: operation not valid in current state")

// PayerLink tracks a single outgoing payment attempt.
type PayerLink struct {
	PayeeHost string
	PayeePort int
	RequestID idhash.RequestID

	Amount        btcutil.Amount
	ReceiptText   string
	TransactionID idhash.TransactionID
	MeetingPoints []string

	crypto crypto.Capability
	state  State

	hasPayerRoute bool
	hasPayeeRoute bool

	token    idhash.Token
	hasToken bool
}

// New constructs a PayerLink for a fresh payment attempt, addressed to
// a payee's host/port and request ID (decoded from a payment URL by
// package paymenturl). cr verifies the token later revealed by Commit.
func New(cr crypto.Capability, host string, port int, requestID idhash.RequestID, amount btcutil.Amount) *PayerLink {
	return &PayerLink{
		PayeeHost: host,
		PayeePort: port,
		RequestID: requestID,
		Amount:    amount,
		crypto:    cr,
		state:     StateInitial,
	}
}

// State reports the PayerLink's current lifecycle stage.
func (p *PayerLink) State() State { return p.state }

// Pay builds the wire Pay message that opens the attempt.
func (p *PayerLink) Pay() *lnwire.Pay {
	return &lnwire.Pay{ID: p.RequestID}
}

// ReceiveReceipt records the payee's Receipt, advancing StateInitial
// -> StateHasReceipt. The amount on the Receipt must match what the
// caller expected to pay; a mismatch is reported as an error so the
// caller can refuse to prompt the user to confirm the wrong amount.
func (p *PayerLink) ReceiveReceipt(r *lnwire.Receipt, expected btcutil.Amount) error {
	if p.state != StateInitial {
		return ErrWrongState
	}
	if r.Amount != expected {
		return fmt.Errorf("payer: receipt amount %s does not match expected %s",
			r.Amount, expected)
	}
	p.Amount = r.Amount
	p.ReceiptText = r.ReceiptText
	p.TransactionID = r.TransactionID
	p.MeetingPoints = r.MeetingPoints
	p.state = StateHasReceipt
	return nil
}

// Confirm records the user's approval, advancing StateHasReceipt ->
// StateConfirmed, and returns the Confirm message to send to the
// payee.
func (p *PayerLink) Confirm() (*lnwire.Confirm, error) {
	if p.state != StateHasReceipt {
		return nil, ErrWrongState
	}
	p.state = StateConfirmed
	return &lnwire.Confirm{ID: &p.RequestID}, nil
}

// HasBothRoutes reports whether both the payer-side and payee-side
// matching routes have arrived, at which point a Lock can be sent.
// The two routes may arrive in either order; §4.6 imposes no ordering
// requirement between them.
func (p *PayerLink) HasBothRoutes() bool {
	return p.hasPayerRoute && p.hasPayeeRoute
}

// ReceivePayerRoute records this side's own MeetingPoint match.
func (p *PayerLink) ReceivePayerRoute() error {
	if p.state != StateConfirmed && p.state != StateHasPayeeRoute {
		return ErrWrongState
	}
	p.hasPayerRoute = true
	if p.state == StateConfirmed {
		p.state = StateHasPayerRoute
	}
	return nil
}

// ReceivePayeeRoute records the payee's matching route, relayed back
// via the meeting point.
func (p *PayerLink) ReceivePayeeRoute() error {
	if p.state != StateConfirmed && p.state != StateHasPayerRoute {
		return ErrWrongState
	}
	p.hasPayeeRoute = true
	if p.state == StateConfirmed {
		p.state = StateHasPayeeRoute
	}
	return nil
}

// Lock sends the outgoing channel's Lock once both routes have
// arrived, advancing to StateLocked.
func (p *PayerLink) Lock() (*lnwire.Lock, error) {
	if !p.HasBothRoutes() {
		return nil, ErrWrongState
	}
	switch p.state {
	case StateHasPayerRoute, StateHasPayeeRoute:
	default:
		return nil, ErrWrongState
	}
	p.state = StateLocked
	return &lnwire.Lock{TransactionID: p.TransactionID}, nil
}

// ReceiveCommit records the upstream Commit's token, advancing
// StateLocked -> StateReceivedCommit. The token is checked against
// TransactionID before it is accepted.
//
// Per §4.6 this is the start of the asymmetric-commit window: the
// token is now known and the channel crossing into this PayerLink can
// be committed locally, but this PayerLink has not yet relayed its own
// Commit back to the payer-side Link — that only happens once
// SettleCommit confirms the far side has moved too, or the grace
// period in Timeout elapses.
func (p *PayerLink) ReceiveCommit(token idhash.Token) error {
	if p.state != StateLocked {
		p.state = StateCancelled
		return ErrWrongState
	}
	if !p.crypto.Verify(token, p.TransactionID) {
		p.state = StateCancelled
		return fmt.Errorf("payer: token does not hash to transactionID %s", p.TransactionID)
	}
	p.token = token
	p.hasToken = true
	p.state = StateReceivedCommit
	return nil
}

// Commit finalises the attempt, advancing StateReceivedCommit ->
// StateCommitted, and returns the SettleCommit to relay onward. It is
// called either on receipt of the far side's own SettleCommit, or by
// the node's timer after the grace period named in Timeout(state=
// "receivedCommit") elapses without one arriving — §4.6's rule that a
// payer never leaves funds in limbo indefinitely once it already holds
// the token.
func (p *PayerLink) Commit() (*lnwire.SettleCommit, error) {
	if p.state != StateReceivedCommit {
		return nil, ErrWrongState
	}
	if !p.hasToken {
		return nil, fmt.Errorf("payer: commit requested without a token")
	}
	p.state = StateCommitted
	return &lnwire.SettleCommit{Token: p.token}, nil
}

// Cancel abandons the attempt. Not valid once a token has been
// received: per the asymmetric-commit rule, a PayerLink that already
// knows the preimage must eventually commit, never roll back.
func (p *PayerLink) Cancel() error {
	if p.hasToken {
		return fmt.Errorf("payer: cannot cancel once a commit token has been received")
	}
	switch p.state {
	case StateCommitted, StateCancelled:
		return ErrWrongState
	}
	p.state = StateCancelled
	return nil
}

// Done reports whether the PayerLink has reached a terminal state.
func (p *PayerLink) Done() bool {
	return p.state == StateCommitted || p.state == StateCancelled
}

// Snapshot is the persisted shape of a PayerLink.
type Snapshot struct {
	PayeeHost     string
	PayeePort     int
	RequestID     idhash.RequestID
	Amount        btcutil.Amount
	ReceiptText   string
	TransactionID idhash.TransactionID
	MeetingPoints []string
	State         State
	HasPayerRoute bool
	HasPayeeRoute bool
	Token         idhash.Token
	HasToken      bool
}

// Snapshot captures p's full state for persistence across a restart.
func (p *PayerLink) Snapshot() Snapshot {
	return Snapshot{
		PayeeHost:     p.PayeeHost,
		PayeePort:     p.PayeePort,
		RequestID:     p.RequestID,
		Amount:        p.Amount,
		ReceiptText:   p.ReceiptText,
		TransactionID: p.TransactionID,
		MeetingPoints: p.MeetingPoints,
		State:         p.state,
		HasPayerRoute: p.hasPayerRoute,
		HasPayeeRoute: p.hasPayeeRoute,
		Token:         p.token,
		HasToken:      p.hasToken,
	}
}

// Restore rebuilds a PayerLink from a persisted Snapshot. cr verifies
// any token later revealed by Commit, same as New.
func Restore(cr crypto.Capability, s Snapshot) *PayerLink {
	return &PayerLink{
		PayeeHost:     s.PayeeHost,
		PayeePort:     s.PayeePort,
		RequestID:     s.RequestID,
		Amount:        s.Amount,
		ReceiptText:   s.ReceiptText,
		TransactionID: s.TransactionID,
		MeetingPoints: s.MeetingPoints,
		crypto:        cr,
		state:         s.State,
		hasPayerRoute: s.HasPayerRoute,
		hasPayeeRoute: s.HasPayeeRoute,
		token:         s.Token,
		hasToken:      s.HasToken,
	}
}
