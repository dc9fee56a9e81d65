// Package link implements a Link (§4.3): the bilateral relationship
// between a node and one neighbor, carrying one or more Channels and
// forwarding routed payment messages across them.
//
// Grounded on htlcswitch/switch.go's packet-forwarding plumbing,
// generalized from one switch fanning packets out over many
// ChannelLinks to one Link fanning MakeRoute/Lock/Commit traffic out
// over the Channels it owns.
package link

import (
	"fmt"
	"sync"

	"github.com/amikopay/amiko/channel"
	"github.com/amikopay/amiko/idhash"
	"github.com/amikopay/amiko/lnwire"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/go-errors/errors"
)

// ErrLinkNotFound mirrors htlcswitch.ErrChannelLinkNotFound: returned
// when an operation names a transactionID this Link has no open
// reservation for.
var ErrLinkNotFound = errors.New("link: transaction not found")

// ErrNoCapacity is returned when no Channel on this Link can carry the
// requested amount.
var ErrNoCapacity = errors.New("link: no channel has sufficient capacity")

// ErrProtocolViolation mirrors §7's ProtocolViolation error kind: a
// TCD-backed channel was asked to route a MakeRoute with a missing
// startTime/endTime bound.
var ErrProtocolViolation = errors.New("link: protocol violation")

// Direction describes which side of the Link's neighbor relationship
// originated a payment, matching lnwire.Direction at the channel
// boundary.
type Direction = lnwire.Direction

const (
	Outgoing = lnwire.Outgoing
	Incoming = lnwire.Incoming
)

// reservation records which Channel on this Link currently holds the
// flight for a transactionID, so Lock/Commit/Rollback know which
// Channel to apply the state transition to without re-running channel
// selection.
type reservation struct {
	ch        channel.Ledger
	direction Direction
}

// Link is the local endpoint of a bilateral relationship with one
// neighbor: localID/remoteID name the two node identities, channels is
// the ordered list of Channels open between them (almost always one,
// but the data model allows several), and openTransactions tracks
// in-flight reservations by transactionID for Lock/Commit/Rollback
// dispatch.
type Link struct {
	mu sync.Mutex

	Name     string
	LocalID  string
	RemoteID string

	channels         []channel.Ledger
	openTransactions map[idhash.TransactionID]reservation
}

// New constructs an empty Link to remoteID, identified locally as
// name, with no Channels yet open.
func New(name, localID, remoteID string) *Link {
	return &Link{
		Name:             name,
		LocalID:          localID,
		RemoteID:         remoteID,
		openTransactions: make(map[idhash.TransactionID]reservation),
	}
}

// AddChannel opens a new Channel on this Link.
func (l *Link) AddChannel(ch channel.Ledger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.channels = append(l.channels, ch)
}

// Channels returns the Link's Channels in open order.
func (l *Link) Channels() []channel.Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]channel.Ledger, len(l.channels))
	copy(out, l.channels)
	return out
}

// selectChannel picks the first Channel with enough capacity in dir.
// §4.3 specifies no preference order beyond "has the capacity" — this
// is the deterministic flood-and-reserve rule: first Channel that can
// take the amount wins, same as htlcswitch picking the first
// ChannelLink returned by getLocalLink with sufficient bandwidth.
func (l *Link) selectChannel(dir Direction, amount btcutil.Amount) channel.Ledger {
	for _, ch := range l.channels {
		local, remote := ch.Balances()
		var available btcutil.Amount
		if dir == Outgoing {
			available = local
		} else {
			available = remote
		}
		if available >= amount {
			return ch
		}
	}
	return nil
}

// Reserve attempts to reserve amount on some Channel of this Link in
// the given direction for txID, validating the TCD-backed mandatory
// time-window rule from §9 along the way. A nil tcdBacked flag check
// is performed by inspecting the selected Channel's Variant.
func (l *Link) Reserve(
	txID idhash.TransactionID,
	amount btcutil.Amount,
	dir Direction,
	startTime, endTime *bool,
) (channel.Ledger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.openTransactions[txID]; exists {
		return nil, fmt.Errorf("link: %w: %s already open", channel.ErrAlreadyTracked, txID)
	}

	ch := l.selectChannel(dir, amount)
	if ch == nil {
		return nil, ErrNoCapacity
	}

	if ch.Variant() == channel.VariantTCDBacked {
		if startTime == nil || endTime == nil {
			return nil, ErrProtocolViolation
		}
	}

	var err error
	if dir == Outgoing {
		err = ch.ReserveOutgoing(txID, amount)
	} else {
		err = ch.ReserveIncoming(txID, amount)
	}
	if err != nil {
		return nil, err
	}

	l.openTransactions[txID] = reservation{ch: ch, direction: dir}
	log.Debugf("link %s: reserved %v %v for %s", l.Name, amount, dir, txID)
	return ch, nil
}

// Lock converts an open reservation into a lock.
func (l *Link) Lock(txID idhash.TransactionID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.openTransactions[txID]
	if !ok {
		return ErrLinkNotFound
	}
	if r.direction == Outgoing {
		return r.ch.LockOutgoing(txID)
	}
	return r.ch.LockIncoming(txID)
}

// Commit reveals a preimage and moves the locked transaction to
// committed, releasing it from openTransactions.
func (l *Link) Commit(txID idhash.TransactionID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.openTransactions[txID]
	if !ok {
		return ErrLinkNotFound
	}

	var err error
	if r.direction == Outgoing {
		err = r.ch.CommitOutgoing(txID)
	} else {
		err = r.ch.CommitIncoming(txID)
	}
	if err != nil {
		return err
	}
	delete(l.openTransactions, txID)
	return nil
}

// Rollback releases a reservation or lock without committing it.
func (l *Link) Rollback(txID idhash.TransactionID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.openTransactions[txID]
	if !ok {
		return ErrLinkNotFound
	}
	if err := r.ch.Rollback(txID); err != nil {
		return err
	}
	delete(l.openTransactions, txID)
	return nil
}

// Channel returns the Channel currently holding txID's reservation, if
// any, without re-running selection. Package node does not call it;
// Lock locks through the Channel's LockOutgoing/LockIncoming, which
// attach no TCD document.
func (l *Link) Channel(txID idhash.TransactionID) (channel.Ledger, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.openTransactions[txID]
	if !ok {
		return nil, false
	}
	return r.ch, true
}

// HasOpenTransaction reports whether txID already has a reservation on
// this Link — the loop-prevention check of §4.3: "purely transactionID
// presence", checked by the node across all of its Links before
// forwarding a MakeRoute onward.
func (l *Link) HasOpenTransaction(txID idhash.TransactionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.openTransactions[txID]
	return ok
}
