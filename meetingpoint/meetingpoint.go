// Package meetingpoint implements the rendezvous component of §4.4: a
// MeetingPoint matches a payer's and a payee's independently flooded
// routes for the same transactionID and amount, and drives a forced
// Cancel if no match arrives before the requested time window closes.
//
// Grounded on contractcourt/htlc_timeout_resolver.go's shape: a
// resolver keyed by a globally-unique identifier, carrying a
// "resolved" boolean and a height (there: block height; here: wall
// clock) past which it forces its own resolution.
package meetingpoint

import (
	"fmt"
	"time"

	"github.com/amikopay/amiko/idhash"
	"github.com/btcsuite/btcd/btcutil"
)

// pendingRoute is one side's (payer's or payee's) flooded route,
// waiting to be matched against the other side.
type pendingRoute struct {
	amount    btcutil.Amount
	startTime *time.Time
	endTime   *time.Time
	replyVia  string
	arrivedAt time.Time
}

// Match is the result of successfully pairing a payer-side and
// payee-side route: the two Link-local identifiers each Have*Route
// reply must be forwarded back along.
type Match struct {
	TransactionID  idhash.TransactionID
	PayerReplyVia  string
	PayeeReplyVia  string
	Amount         btcutil.Amount
	StartTime      *time.Time
	EndTime        *time.Time
}

// MeetingPoint is identified by an ID chosen by whoever creates it
// (§4.4); it holds no channel state of its own, only bookkeeping for
// in-flight route floods.
type MeetingPoint struct {
	ID string

	pendingPayer map[idhash.TransactionID]pendingRoute
	pendingPayee map[idhash.TransactionID]pendingRoute
}

// New creates an empty MeetingPoint identified by id.
func New(id string) *MeetingPoint {
	return &MeetingPoint{
		ID:           id,
		pendingPayer: make(map[idhash.TransactionID]pendingRoute),
		pendingPayee: make(map[idhash.TransactionID]pendingRoute),
	}
}

// windowsOverlap reports whether the payer's and payee's requested
// [startTime,endTime] windows have a non-empty intersection. A nil
// bound on either side is treated as unbounded, matching the Plain-
// channel case where startTime/endTime are optional (§9).
func windowsOverlap(aStart, aEnd, bStart, bEnd *time.Time) bool {
	if aStart != nil && bEnd != nil && aStart.After(*bEnd) {
		return false
	}
	if bStart != nil && aEnd != nil && bStart.After(*aEnd) {
		return false
	}
	return true
}

// HandlePayerRoute records a payer-side MakeRoute flood for
// transactionID, and returns a Match immediately if a payee-side route
// for the same transactionID is already pending. The amount and time
// windows must agree with the pending payee route, if any; a mismatch
// is reported as an error rather than silently dropped so the caller
// can Cancel both sides.
func (m *MeetingPoint) HandlePayerRoute(
	txID idhash.TransactionID,
	amount btcutil.Amount,
	startTime, endTime *time.Time,
	replyVia string,
	now time.Time,
) (*Match, error) {
	if payee, ok := m.pendingPayee[txID]; ok {
		return m.match(txID, amount, startTime, endTime, replyVia, payee.replyVia, payee)
	}
	m.pendingPayer[txID] = pendingRoute{
		amount:    amount,
		startTime: startTime,
		endTime:   endTime,
		replyVia:  replyVia,
		arrivedAt: now,
	}
	return nil, nil
}

// HandlePayeeRoute is the symmetric counterpart for a payee-side
// MakeRoute flood.
func (m *MeetingPoint) HandlePayeeRoute(
	txID idhash.TransactionID,
	amount btcutil.Amount,
	startTime, endTime *time.Time,
	replyVia string,
	now time.Time,
) (*Match, error) {
	if payer, ok := m.pendingPayer[txID]; ok {
		return m.match(txID, amount, startTime, endTime, payer.replyVia, replyVia, payer)
	}
	m.pendingPayee[txID] = pendingRoute{
		amount:    amount,
		startTime: startTime,
		endTime:   endTime,
		replyVia:  replyVia,
		arrivedAt: now,
	}
	return nil, nil
}

func (m *MeetingPoint) match(
	txID idhash.TransactionID,
	amount btcutil.Amount,
	startTime, endTime *time.Time,
	payerReplyVia, payeeReplyVia string,
	other pendingRoute,
) (*Match, error) {
	if amount != other.amount {
		return nil, fmt.Errorf(
			"meetingpoint: amount mismatch for %s: %s vs %s",
			txID, amount, other.amount)
	}
	if !windowsOverlap(startTime, endTime, other.startTime, other.endTime) {
		return nil, fmt.Errorf(
			"meetingpoint: non-overlapping time windows for %s", txID)
	}

	delete(m.pendingPayer, txID)
	delete(m.pendingPayee, txID)

	return &Match{
		TransactionID: txID,
		PayerReplyVia: payerReplyVia,
		PayeeReplyVia: payeeReplyVia,
		Amount:        amount,
		StartTime:     startTime,
		EndTime:       endTime,
	}, nil
}

// ExpireBefore returns the transactionIDs of pending routes (on either
// side) whose endTime has passed as of now, for the caller to Cancel.
// A route with a nil endTime never expires on its own; it is only
// ever resolved by a matching route on the other side.
func (m *MeetingPoint) ExpireBefore(now time.Time) []idhash.TransactionID {
	var expired []idhash.TransactionID
	for txID, r := range m.pendingPayer {
		if r.endTime != nil && now.After(*r.endTime) {
			expired = append(expired, txID)
		}
	}
	for txID, r := range m.pendingPayee {
		if r.endTime != nil && now.After(*r.endTime) {
			expired = append(expired, txID)
		}
	}
	return expired
}

// Forget removes any pending route for txID on either side, called
// once a Cancel has been issued for it.
func (m *MeetingPoint) Forget(txID idhash.TransactionID) {
	delete(m.pendingPayer, txID)
	delete(m.pendingPayee, txID)
}

// Pending reports whether txID currently has an outstanding route on
// either side.
func (m *MeetingPoint) Pending(txID idhash.TransactionID) bool {
	if _, ok := m.pendingPayer[txID]; ok {
		return true
	}
	_, ok := m.pendingPayee[txID]
	return ok
}

// PendingSnapshot is the persisted shape of one side's pending route,
// keyed by transactionID by the caller.
type PendingSnapshot struct {
	TransactionID idhash.TransactionID
	Amount        btcutil.Amount
	StartTime     *time.Time
	EndTime       *time.Time
	ReplyVia      string
	ArrivedAt     time.Time
}

// Snapshot returns every pending payer-side and payee-side route this
// MeetingPoint is still waiting to match, for persistence across a
// restart.
func (m *MeetingPoint) Snapshot() (payer, payee []PendingSnapshot) {
	for txID, r := range m.pendingPayer {
		payer = append(payer, PendingSnapshot{
			TransactionID: txID,
			Amount:        r.amount,
			StartTime:     r.startTime,
			EndTime:       r.endTime,
			ReplyVia:      r.replyVia,
			ArrivedAt:     r.arrivedAt,
		})
	}
	for txID, r := range m.pendingPayee {
		payee = append(payee, PendingSnapshot{
			TransactionID: txID,
			Amount:        r.amount,
			StartTime:     r.startTime,
			EndTime:       r.endTime,
			ReplyVia:      r.replyVia,
			ArrivedAt:     r.arrivedAt,
		})
	}
	return payer, payee
}

// Restore rebuilds a MeetingPoint identified by id from its persisted
// pending routes.
func Restore(id string, payer, payee []PendingSnapshot) *MeetingPoint {
	mp := New(id)
	for _, r := range payer {
		mp.pendingPayer[r.TransactionID] = pendingRoute{
			amount:    r.Amount,
			startTime: r.StartTime,
			endTime:   r.EndTime,
			replyVia:  r.ReplyVia,
			arrivedAt: r.ArrivedAt,
		}
	}
	for _, r := range payee {
		mp.pendingPayee[r.TransactionID] = pendingRoute{
			amount:    r.Amount,
			startTime: r.StartTime,
			endTime:   r.EndTime,
			replyVia:  r.ReplyVia,
			arrivedAt: r.ArrivedAt,
		}
	}
	return mp
}
