// Package node implements the Node event loop (§4.7): the single
// goroutine that owns every Link, MeetingPoint, PayeeLink and
// PayerLink belonging to one participant, serializing all access to
// them behind a command mailbox so the rest of this module's types
// never need their own locking.
//
// Grounded on peer.go's single message-dispatch loop (the
// readHandler/queueHandler split generalizes here to one goroutine
// selecting over inbound link traffic, API commands, and timers) and
// server.go's top-level wiring of long-lived components.
package node

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/amikopay/amiko/channel"
	"github.com/amikopay/amiko/crypto"
	"github.com/amikopay/amiko/idhash"
	"github.com/amikopay/amiko/link"
	"github.com/amikopay/amiko/lnwire"
	"github.com/amikopay/amiko/meetingpoint"
	"github.com/amikopay/amiko/metrics"
	"github.com/amikopay/amiko/payee"
	"github.com/amikopay/amiko/payer"
	"github.com/amikopay/amiko/persist"
	"github.com/amikopay/amiko/settlement"
	"github.com/amikopay/amiko/transport"
	"github.com/davecgh/go-spew/spew"
	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/clock"
)

// Error kinds per §7. ProtocolViolation and RouteUnavailable already
// have more specific counterparts in package link; these are the
// node-level sentinels surfaced to callers of the public API.
var (
	ErrAlreadyInProgress = errors.New("node: a payer payment is already in progress")
	ErrUnknownRequest     = errors.New("node: unknown requestID")
	ErrUnknownLink        = errors.New("node: unknown link")
	ErrPersistenceFailure = errors.New("node: persistence failure")
)

// inboundMsg is one message arriving from a neighbor or counterparty,
// tagged with the name of the Link or payer/payee session it arrived
// on.
type inboundMsg struct {
	source string
	msg    lnwire.Message
	err    error
}

// command is one closure dispatched through the mailbox from a
// foreign goroutine (a public API method) to the loop goroutine. done
// is the completion latch: the loop sends exactly one result on it
// before moving to the next iteration.
type command struct {
	run  func(n *Node) (interface{}, error)
	done chan cmdResult
}

type cmdResult struct {
	value interface{}
	err   error
}

// counterpartySession is the payer<->payee leg of a payment, carried
// over a Transport obtained directly (not via a Link), tagged by
// requestID.
type counterpartySession struct {
	transport transport.Transport
}

// Node is one participant in the network: its Links to neighbors, its
// MeetingPoints, and its in-flight PayeeLinks/PayerLink.
type Node struct {
	ID string

	store    *persist.Store
	clock    clock.Clock
	crypto   crypto.Capability
	backend  settlement.Backend
	metrics  *metrics.Registry

	links         map[string]*link.Link
	transports    map[string]transport.Transport
	meetingPoints map[string]*meetingpoint.MeetingPoint
	payeeLinks    map[idhash.RequestID]*payee.PayeeLink
	payerLink     *payer.PayerLink
	payerLinkReqID idhash.RequestID

	sessions map[string]*counterpartySession

	// txRoutes remembers, for a transactionID currently in flight, how
	// it entered this node (arrivedVia: a Link name, or "" if it
	// originated locally from this node's own PayerLink/PayeeLink) and,
	// for MakeRoute/Lock's forward direction, which Link it was
	// forwarded onward to. Absent once the transaction commits, rolls
	// back, or is cancelled.
	txRoutes map[idhash.TransactionID]txRoute

	timers timerHeap

	commands chan command
	inbound  chan inboundMsg

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// txRole distinguishes the four positions a node can occupy for a
// given transactionID in the routed flood-and-match protocol.
type txRole uint8

const (
	roleIntermediate txRole = iota
	roleMeetingPoint
	rolePayerOrigin
	rolePayeeOrigin
)

// txRoute is the minimal per-transaction bookkeeping the loop needs to
// keep MakeRoute/Lock flowing forward (payer towards payee) and
// Have*Route/Commit/SettleCommit/Cancel flowing backward (towards
// wherever this transactionID arrived from) without re-deriving the
// path on every message.
type txRoute struct {
	role           txRole
	arrivedVia     string // link name, or "" if originated locally
	forwardTo      string // link name this was forwarded onward to, if any
	meetingPointID string
	isPayerSide    bool // true if this is the payer-side half of the flood
}

// String names a txRole for persistence; parseTxRole is its inverse.
func (r txRole) String() string {
	switch r {
	case roleIntermediate:
		return "intermediate"
	case roleMeetingPoint:
		return "meetingPoint"
	case rolePayerOrigin:
		return "payerOrigin"
	case rolePayeeOrigin:
		return "payeeOrigin"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

func parseTxRole(s string) txRole {
	switch s {
	case "meetingPoint":
		return roleMeetingPoint
	case "payerOrigin":
		return rolePayerOrigin
	case "payeeOrigin":
		return rolePayeeOrigin
	default:
		return roleIntermediate
	}
}

// New constructs an idle Node. Call Start to begin its event loop.
func New(
	id string,
	store *persist.Store,
	clk clock.Clock,
	cr crypto.Capability,
	backend settlement.Backend,
	reg *metrics.Registry,
) *Node {
	return &Node{
		ID:            id,
		store:         store,
		clock:         clk,
		crypto:        cr,
		backend:       backend,
		metrics:       reg,
		links:         make(map[string]*link.Link),
		transports:    make(map[string]transport.Transport),
		meetingPoints: make(map[string]*meetingpoint.MeetingPoint),
		payeeLinks:    make(map[idhash.RequestID]*payee.PayeeLink),
		sessions:      make(map[string]*counterpartySession),
		txRoutes:      make(map[idhash.TransactionID]txRoute),
		commands:      make(chan command),
		inbound:       make(chan inboundMsg, 64),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
}

// dispatch sends run to the loop goroutine and blocks for its result.
// Every public API method is a thin wrapper around dispatch — the
// single-slot mailbox with completion latch named in §4.7, here
// rendered as a channel round-trip rather than a raw mutex+condvar
// pair, matching the "signal completion over a channel" idiom peer.go
// uses for its own outgoing-message completion callback.
func (n *Node) dispatch(run func(n *Node) (interface{}, error)) (interface{}, error) {
	cmd := command{run: run, done: make(chan cmdResult, 1)}
	select {
	case n.commands <- cmd:
	case <-n.stopCh:
		return nil, fmt.Errorf("node: stopped")
	}
	select {
	case res := <-cmd.done:
		return res.value, res.err
	case <-n.stoppedCh:
		return nil, fmt.Errorf("node: stopped")
	}
}

// Start launches the event loop goroutine and the settlement backend
// liveness watchdog.
func (n *Node) Start() {
	go n.run()
	n.startWatchdog()
}

// run is the single event loop goroutine: it owns every mutable field
// on Node and every Link/MeetingPoint/PayeeLink/PayerLink transitively
// reachable from it. Each iteration does exactly one of: execute a
// pending API command, dispatch one inbound message, or fire the
// earliest due timer — then loops. Transport sends happen inline on
// this goroutine (TCPTransport.Send writes straight to its connection,
// so a slow neighbor stalls the loop); Transport receives happen in the
// per-source goroutines that feed n.inbound. On stop, a PayerLink still
// in StateReceivedCommit is finalised the same way its grace-period
// Timeout would finalise it before the loop exits.
func (n *Node) run() {
	defer close(n.stoppedCh)

	for {
		delay, hasTimer := n.nextFireDelay()
		var timerCh <-chan time.Time
		if hasTimer {
			timerCh = n.clock.TickAfter(delay)
		}

		select {
		case cmd := <-n.commands:
			value, err := cmd.run(n)
			cmd.done <- cmdResult{value: value, err: err}

		case im := <-n.inbound:
			if im.err != nil {
				log.Errorf("node %s: session %s closed: %v", n.ID, im.source, im.err)
				continue
			}
			if err := n.handleMessage(im.source, im.msg); err != nil {
				log.Errorf("node %s: handling message from %s: %v", n.ID, im.source, err)
				if stderrors.Is(err, link.ErrProtocolViolation) {
					log.Debugf("node %s: offending message from %s:\n%s", n.ID, im.source, spew.Sdump(im.msg))
				}
			}

		case <-timerCh:
			for _, due := range n.popDue() {
				if err := n.handleTimeout(due.msg); err != nil {
					log.Errorf("node %s: handling timeout for %s: %v", n.ID, due.msg.Target, err)
				}
			}

		case <-n.stopCh:
			if n.payerLink != nil && n.payerLink.State() == payer.StateReceivedCommit {
				if err := n.handleTimeout(lnwire.Timeout{Target: lnwire.PayerLocalID, State: "receivedCommit"}); err != nil {
					log.Errorf("node %s: finalising payment on stop: %v", n.ID, err)
				}
			}
			return
		}
	}
}

// Stop signals the loop to exit and waits for it to do so. Per §5,
// this drains any payment sitting in the receivedCommit state before
// returning: a node holding a commit token must finalise it, never
// exit mid-flight.
func (n *Node) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
	<-n.stoppedCh
}

// AddLink registers a new Link to a neighbor, and starts the
// goroutine that feeds its Transport's inbound traffic into the event
// loop.
func (n *Node) AddLink(l *link.Link, tr transport.Transport) {
	n.links[l.Name] = l
	n.transports[l.Name] = tr
	go n.pump(l.Name, tr)
}

// Link returns a registered Link by name for direct, non-dispatched
// access. Like AddLink, it is only safe to call before Start or from
// within the loop goroutine itself — cmd/amikod uses it right after
// Restore to reattach a freshly dialed Transport to each Link Restore
// rebuilt from disk, before the loop is running.
func (n *Node) Link(name string) (*link.Link, bool) {
	l, ok := n.links[name]
	return l, ok
}

// sendLink delivers msg to the neighbor on the named Link.
func (n *Node) sendLink(linkName string, msg lnwire.Message) error {
	tr, ok := n.transports[linkName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLink, linkName)
	}
	return tr.Send(context.Background(), msg)
}

// sendSession delivers msg over the direct payer<->payee Transport
// tagged by source (a requestID string).
func (n *Node) sendSession(source string, msg lnwire.Message) error {
	s, ok := n.sessions[source]
	if !ok {
		return fmt.Errorf("node: unknown session %s", source)
	}
	return s.transport.Send(context.Background(), msg)
}

// pump is the per-source receive goroutine: the only place this
// package performs a blocking Transport.Receive call, keeping the loop
// goroutine itself free of network I/O.
func (n *Node) pump(source string, tr transport.Transport) {
	for {
		msg, err := tr.Receive(context.Background())
		select {
		case n.inbound <- inboundMsg{source: source, msg: msg, err: err}:
		case <-n.stopCh:
			return
		}
		if err != nil {
			return
		}
	}
}

// AddMeetingPoint registers a MeetingPoint this node hosts.
func (n *Node) AddMeetingPoint(mp *meetingpoint.MeetingPoint) {
	n.meetingPoints[mp.ID] = mp
}

// persistNow saves the current state via the Store, surfacing the
// one fatal §7 error kind: PersistenceFailure.
func (n *Node) persistNow() error {
	state, err := n.snapshot()
	if err != nil {
		return err
	}
	if err := n.store.Save(state); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return nil
}

// snapshot serializes the current in-memory state into a persist.State
// ready to be saved.
func (n *Node) snapshot() (*persist.State, error) {
	var links []persist.LinkRecord
	for _, l := range n.links {
		var chans []persist.ChannelRecord
		for _, ch := range l.Channels() {
			s := channelSnapshot(ch)
			chans = append(chans, s)
		}
		remoteURL := ""
		if tr, ok := n.transports[l.Name]; ok {
			remoteURL = transportRemoteURL(tr)
		}
		links = append(links, persist.LinkRecord{
			Name:      l.Name,
			LocalID:   l.LocalID,
			RemoteID:  l.RemoteID,
			RemoteURL: remoteURL,
			Channels:  chans,
		})
	}

	var meetingPoints []persist.MeetingPointRecord
	for _, mp := range n.meetingPoints {
		payer, payee := mp.Snapshot()
		meetingPoints = append(meetingPoints, persist.MeetingPointRecord{
			ID:           mp.ID,
			PendingPayer: pendingRouteMap(payer),
			PendingPayee: pendingRouteMap(payee),
		})
	}

	var payeeLinks []persist.PayeeLinkRecord
	for _, pl := range n.payeeLinks {
		s := pl.Snapshot()
		payeeLinks = append(payeeLinks, persist.PayeeLinkRecord{
			RequestID:     s.RequestID,
			State:         s.State.String(),
			Amount:        s.Amount,
			ReceiptText:   s.ReceiptText,
			Token:         s.Token,
			TransactionID: s.TransactionID,
			MeetingPoints: s.MeetingPoints,
		})
	}

	var payerLink *persist.PayerLinkRecord
	if n.payerLink != nil {
		s := n.payerLink.Snapshot()
		payerLink = &persist.PayerLinkRecord{
			PayeeHost:     s.PayeeHost,
			PayeePort:     s.PayeePort,
			PayeeLinkID:   s.RequestID,
			State:         s.State.String(),
			Amount:        s.Amount,
			ReceiptText:   s.ReceiptText,
			TransactionID: s.TransactionID,
			MeetingPoints: s.MeetingPoints,
			HasPayerRoute: s.HasPayerRoute,
			HasPayeeRoute: s.HasPayeeRoute,
			HasToken:      s.HasToken,
			Token:         s.Token,
		}
	}

	var transactions []persist.TransactionRecord
	for txID, route := range n.txRoutes {
		transactions = append(transactions, persist.TransactionRecord{
			TransactionID:  txID,
			Role:           route.role.String(),
			ArrivedVia:     route.arrivedVia,
			ForwardTo:      route.forwardTo,
			MeetingPointID: route.meetingPointID,
			IsPayerSide:    route.isPayerSide,
		})
	}

	var timeouts []persist.TimeoutRecord
	for _, e := range n.timers {
		timeouts = append(timeouts, persist.TimeoutRecord{
			At:     e.at,
			Target: e.msg.Target,
			State:  e.msg.State,
		})
	}

	return &persist.State{
		Node: persist.NodeState{
			Links:         links,
			MeetingPoints: meetingPoints,
			PayeeLinks:    payeeLinks,
			PayerLink:     payerLink,
			Transactions:  transactions,
		},
		TimeoutMessages: timeouts,
	}, nil
}

// pendingRouteMap converts a meetingpoint.PendingSnapshot slice into
// the map persist.MeetingPointRecord keys by transactionID.
func pendingRouteMap(snaps []meetingpoint.PendingSnapshot) map[idhash.TransactionID]persist.RouteContext {
	if len(snaps) == 0 {
		return nil
	}
	out := make(map[idhash.TransactionID]persist.RouteContext, len(snaps))
	for _, s := range snaps {
		out[s.TransactionID] = persist.RouteContext{
			Amount:     s.Amount,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			ReplyViaID: s.ReplyVia,
			ArrivedAt:  s.ArrivedAt,
		}
	}
	return out
}

// transportRemoteURL reports the dial address a reconnect should use
// for tr, if it exposes one.
func transportRemoteURL(tr transport.Transport) string {
	type remoteURLer interface {
		RemoteURL() string
	}
	if u, ok := tr.(remoteURLer); ok {
		return u.RemoteURL()
	}
	return ""
}

// channelSnapshot converts a channel.Ledger's Snapshot into its
// persisted record shape. Only *channel.Channel exposes Snapshot
// directly; TCDBacked is unwrapped via its embedded *Channel.
func channelSnapshot(ch channel.Ledger) persist.ChannelRecord {
	type snapshotter interface {
		Snapshot() channel.Snapshot
	}
	s, ok := ch.(snapshotter)
	if !ok {
		return persist.ChannelRecord{Variant: string(ch.Variant())}
	}
	snap := s.Snapshot()
	return persist.ChannelRecord{
		Variant:          string(snap.Variant),
		State:            uint8(snap.State),
		AmountLocal:      snap.AmountLocal,
		AmountRemote:     snap.AmountRemote,
		OutgoingReserved: snap.OutgoingReserved,
		OutgoingLocked:   snap.OutgoingLocked,
		IncomingReserved: snap.IncomingReserved,
		IncomingLocked:   snap.IncomingLocked,
	}
}
