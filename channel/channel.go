// Package channel implements the bilateral credit ledger described in
// §4.2 of the spec: a Channel holds amountLocal/amountRemote plus four
// transactionID-keyed maps tracking funds moving through the
// reserve -> lock -> commit|rollback pipeline. Two wire-compatible
// variants exist — Plain and TCD-backed — selected at construction
// time and persisted as a tagged variant per §3.
//
// Grounded on lnwallet.LightningChannel's AddHTLC/ReceiveHTLC/
// SettleHTLC/FailHTLC state machine (backend-engineer1-land's
// lnwallet/channel.go), generalized from a single HTLC-add operation
// to the spec's explicit four-phase reserve/lock/commit/rollback.
package channel

import (
	"fmt"
	"sync"

	"github.com/amikopay/amiko/idhash"
	"github.com/btcsuite/btcd/btcutil"
)

// Variant tags which concrete implementation backs a Channel, for the
// tagged-variant persistence scheme in package persist.
type Variant string

const (
	// VariantPlain is the Plain channel: reserve/lock/commit/rollback
	// with no attached on-chain enforcement document.
	VariantPlain Variant = "plain"

	// VariantTCDBacked additionally attaches a tcd.Document to every
	// locked transaction.
	VariantTCDBacked Variant = "tcd"
)

// State is the lifecycle stage of the channel itself (distinct from
// the per-transaction reserved/locked/committed states tracked in the
// maps below).
type State uint8

const (
	StateInitial State = iota
	StateDepositing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateDepositing:
		return "depositing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ErrInsufficientCapacity is returned when a reservation would exceed
// the channel's available balance on the requested side.
var ErrInsufficientCapacity = fmt.Errorf("channel: insufficient capacity")

// ErrNotReserved is returned by lockOutgoing/lockIncoming when the
// transactionID named isn't present in the corresponding reserved map.
var ErrNotReserved = fmt.Errorf("channel: transaction not reserved")

// ErrNotLocked is returned by commit/rollback-from-locked operations
// when the transactionID isn't present in the corresponding locked map.
var ErrNotLocked = fmt.Errorf("channel: transaction not locked")

// ErrAlreadyTracked is returned when a transactionID is reserved twice;
// per §3 a transactionID may appear in at most one of the four maps at
// any time.
var ErrAlreadyTracked = fmt.Errorf("channel: transaction already tracked on this channel")

// Ledger is the common surface both channel variants expose to package
// link: balance queries plus the four-phase reserve/lock/commit/
// rollback pipeline. *Channel satisfies it directly; *TCDBacked
// satisfies it by embedding *Channel and overriding the commit and
// rollback methods to also release its attached tcd.Document.
type Ledger interface {
	Variant() Variant
	State() State
	Balances() (local, remote btcutil.Amount)
	ReserveOutgoing(txID idhash.TransactionID, amount btcutil.Amount) error
	ReserveIncoming(txID idhash.TransactionID, amount btcutil.Amount) error
	LockOutgoing(txID idhash.TransactionID) error
	LockIncoming(txID idhash.TransactionID) error
	CommitOutgoing(txID idhash.TransactionID) error
	CommitIncoming(txID idhash.TransactionID) error
	Rollback(txID idhash.TransactionID) error
	CheckInvariants() error
}

// Channel is a bilateral credit ledger between the owning Link and one
// neighbor channel. All mutating methods are safe for concurrent use,
// though in practice every call arrives from the single node event
// loop goroutine (§5) and the lock mainly documents the invariant
// rather than arbitrating real contention.
type Channel struct {
	mu sync.Mutex

	variant Variant
	state   State

	amountLocal  btcutil.Amount
	amountRemote btcutil.Amount

	outgoingReserved map[idhash.TransactionID]btcutil.Amount
	outgoingLocked   map[idhash.TransactionID]btcutil.Amount
	incomingReserved map[idhash.TransactionID]btcutil.Amount
	incomingLocked   map[idhash.TransactionID]btcutil.Amount
}

// New constructs a Channel in StateReady with the given starting
// balances. Real deployments transition initial -> depositing -> ready
// as the funding transaction confirms; that transition is driven by
// the SettlementBackend adapter and is out of scope here (§1), so
// tests and the in-process two-node scenarios construct channels
// directly in StateReady.
func New(variant Variant, amountLocal, amountRemote btcutil.Amount) *Channel {
	return &Channel{
		variant:          variant,
		state:            StateReady,
		amountLocal:      amountLocal,
		amountRemote:     amountRemote,
		outgoingReserved: make(map[idhash.TransactionID]btcutil.Amount),
		outgoingLocked:   make(map[idhash.TransactionID]btcutil.Amount),
		incomingReserved: make(map[idhash.TransactionID]btcutil.Amount),
		incomingLocked:   make(map[idhash.TransactionID]btcutil.Amount),
	}
}

// Variant reports which tagged variant backs this Channel.
func (c *Channel) Variant() Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.variant
}

// State reports the channel's own lifecycle stage.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState advances the channel's lifecycle stage. Exposed for the
// SettlementBackend-driven funding flow, which lives outside this
// package.
func (c *Channel) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Balances returns the current amountLocal/amountRemote snapshot.
func (c *Channel) Balances() (local, remote btcutil.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.amountLocal, c.amountRemote
}

func (c *Channel) outgoingCommitted() btcutil.Amount {
	var sum btcutil.Amount
	for _, a := range c.outgoingReserved {
		sum += a
	}
	for _, a := range c.outgoingLocked {
		sum += a
	}
	return sum
}

func (c *Channel) incomingCommitted() btcutil.Amount {
	var sum btcutil.Amount
	for _, a := range c.incomingReserved {
		sum += a
	}
	for _, a := range c.incomingLocked {
		sum += a
	}
	return sum
}

func (c *Channel) tracked(txID idhash.TransactionID) bool {
	if _, ok := c.outgoingReserved[txID]; ok {
		return true
	}
	if _, ok := c.outgoingLocked[txID]; ok {
		return true
	}
	if _, ok := c.incomingReserved[txID]; ok {
		return true
	}
	if _, ok := c.incomingLocked[txID]; ok {
		return true
	}
	return false
}

// ReserveOutgoing tentatively earmarks amount against amountLocal for
// txID. Fails with ErrInsufficientCapacity if the remaining headroom
// (amountLocal minus everything already reserved or locked outgoing)
// is less than amount.
func (c *Channel) ReserveOutgoing(txID idhash.TransactionID, amount btcutil.Amount) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tracked(txID) {
		return ErrAlreadyTracked
	}
	if amount > c.amountLocal-c.outgoingCommitted() {
		return ErrInsufficientCapacity
	}
	c.outgoingReserved[txID] = amount
	return nil
}

// ReserveIncoming is the symmetric counterpart of ReserveOutgoing
// against amountRemote.
func (c *Channel) ReserveIncoming(txID idhash.TransactionID, amount btcutil.Amount) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tracked(txID) {
		return ErrAlreadyTracked
	}
	if amount > c.amountRemote-c.incomingCommitted() {
		return ErrInsufficientCapacity
	}
	c.incomingReserved[txID] = amount
	return nil
}

// LockOutgoing moves txID from outgoingReserved to outgoingLocked.
func (c *Channel) LockOutgoing(txID idhash.TransactionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	amount, ok := c.outgoingReserved[txID]
	if !ok {
		return ErrNotReserved
	}
	delete(c.outgoingReserved, txID)
	c.outgoingLocked[txID] = amount
	return nil
}

// LockIncoming is the symmetric counterpart of LockOutgoing.
func (c *Channel) LockIncoming(txID idhash.TransactionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	amount, ok := c.incomingReserved[txID]
	if !ok {
		return ErrNotReserved
	}
	delete(c.incomingReserved, txID)
	c.incomingLocked[txID] = amount
	return nil
}

// CommitOutgoing removes txID from outgoingLocked, moving its amount
// from amountLocal to amountRemote — the local side pays out.
func (c *Channel) CommitOutgoing(txID idhash.TransactionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	amount, ok := c.outgoingLocked[txID]
	if !ok {
		return ErrNotLocked
	}
	delete(c.outgoingLocked, txID)
	c.amountLocal -= amount
	c.amountRemote += amount
	log.Debugf("channel: committed %v outgoing for %s", amount, txID)
	return nil
}

// CommitIncoming is the mirror of CommitOutgoing: the remote side paid
// us, so amountRemote shrinks and amountLocal grows.
func (c *Channel) CommitIncoming(txID idhash.TransactionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	amount, ok := c.incomingLocked[txID]
	if !ok {
		return ErrNotLocked
	}
	delete(c.incomingLocked, txID)
	c.amountRemote -= amount
	c.amountLocal += amount
	return nil
}

// Rollback drops txID from whichever of the four maps currently holds
// it. A reserved entry simply vanishes (the earmark is released); a
// locked entry is also just dropped here with no balance change — per
// §4.2, mirror reversal for a locked entry only applies "when commit
// is impossible", which package link handles explicitly by choosing
// between propagating Commit (replay, see §4.6 asymmetric commit) and
// calling Rollback before any amount has moved.
func (c *Channel) Rollback(txID idhash.TransactionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.outgoingReserved[txID]; ok {
		delete(c.outgoingReserved, txID)
		return nil
	}
	if _, ok := c.outgoingLocked[txID]; ok {
		delete(c.outgoingLocked, txID)
		return nil
	}
	if _, ok := c.incomingReserved[txID]; ok {
		delete(c.incomingReserved, txID)
		return nil
	}
	if _, ok := c.incomingLocked[txID]; ok {
		delete(c.incomingLocked, txID)
		return nil
	}
	return fmt.Errorf("channel: rollback: transaction %s not tracked", txID)
}

// CheckInvariants re-derives the §8 per-channel invariants. Tests call
// this at event-loop boundaries; it never mutates state.
func (c *Channel) CheckInvariants() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.amountLocal < 0 {
		return fmt.Errorf("channel: amountLocal went negative: %v", c.amountLocal)
	}
	if c.amountRemote < 0 {
		return fmt.Errorf("channel: amountRemote went negative: %v", c.amountRemote)
	}
	if c.outgoingCommitted() > c.amountLocal {
		return fmt.Errorf("channel: outgoing reserved+locked %v exceeds amountLocal %v",
			c.outgoingCommitted(), c.amountLocal)
	}
	if c.incomingCommitted() > c.amountRemote {
		return fmt.Errorf("channel: incoming reserved+locked %v exceeds amountRemote %v",
			c.incomingCommitted(), c.amountRemote)
	}
	return nil
}

// Snapshot is a read-only copy of a Channel's persisted fields, used
// by package persist to serialize the tagged variant and by the
// metrics package to publish balance gauges without holding the lock.
type Snapshot struct {
	Variant          Variant
	State            State
	AmountLocal      btcutil.Amount
	AmountRemote     btcutil.Amount
	OutgoingReserved map[idhash.TransactionID]btcutil.Amount
	OutgoingLocked   map[idhash.TransactionID]btcutil.Amount
	IncomingReserved map[idhash.TransactionID]btcutil.Amount
	IncomingLocked   map[idhash.TransactionID]btcutil.Amount
}

// Snapshot takes a consistent, independent copy of the channel's state.
func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := func(m map[idhash.TransactionID]btcutil.Amount) map[idhash.TransactionID]btcutil.Amount {
		out := make(map[idhash.TransactionID]btcutil.Amount, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}

	return Snapshot{
		Variant:          c.variant,
		State:            c.state,
		AmountLocal:      c.amountLocal,
		AmountRemote:     c.amountRemote,
		OutgoingReserved: cp(c.outgoingReserved),
		OutgoingLocked:   cp(c.outgoingLocked),
		IncomingReserved: cp(c.incomingReserved),
		IncomingLocked:   cp(c.incomingLocked),
	}
}

// Restore rebuilds a Channel from a persisted Snapshot, used by
// package persist on load.
func Restore(s Snapshot) *Channel {
	c := &Channel{
		variant:          s.Variant,
		state:            s.State,
		amountLocal:      s.AmountLocal,
		amountRemote:     s.AmountRemote,
		outgoingReserved: s.OutgoingReserved,
		outgoingLocked:   s.OutgoingLocked,
		incomingReserved: s.IncomingReserved,
		incomingLocked:   s.IncomingLocked,
	}
	if c.outgoingReserved == nil {
		c.outgoingReserved = make(map[idhash.TransactionID]btcutil.Amount)
	}
	if c.outgoingLocked == nil {
		c.outgoingLocked = make(map[idhash.TransactionID]btcutil.Amount)
	}
	if c.incomingReserved == nil {
		c.incomingReserved = make(map[idhash.TransactionID]btcutil.Amount)
	}
	if c.incomingLocked == nil {
		c.incomingLocked = make(map[idhash.TransactionID]btcutil.Amount)
	}
	return c
}
