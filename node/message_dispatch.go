package node

import (
	"fmt"
	"time"

	"github.com/amikopay/amiko/idhash"
	"github.com/amikopay/amiko/link"
	"github.com/amikopay/amiko/lnwire"
	"github.com/amikopay/amiko/meetingpoint"
	"github.com/amikopay/amiko/payee"
	"github.com/btcsuite/btcd/btcutil"
)

// gracePeriod is how long a PayerLink sitting in StateReceivedCommit
// waits for the downstream SettleCommit before auto-finalising, per
// §4.6's rule that a node holding a commit token must never leave
// funds in limbo indefinitely.
const gracePeriod = 30 * time.Second

// handleMessage dispatches one inbound message, tagged with the Link
// name or session key it arrived on, to the appropriate component.
func (n *Node) handleMessage(source string, msg lnwire.Message) error {
	switch m := msg.(type) {
	case *lnwire.Pay:
		return n.handlePay(source, m)
	case *lnwire.Receipt:
		return n.handleReceipt(source, m)
	case *lnwire.Confirm:
		return n.handleConfirm(source, m)
	case *lnwire.MakeRoute:
		return n.handleMakeRoute(source, m)
	case *lnwire.HavePayerRoute:
		return n.handleHavePayerRoute(source, m)
	case *lnwire.HavePayeeRoute:
		return n.handleHavePayeeRoute(source, m)
	case *lnwire.Lock:
		return n.handleLock(source, m)
	case *lnwire.Commit:
		return n.handleCommit(source, m)
	case *lnwire.SettleCommit:
		return n.handleSettleCommit(source, m)
	case *lnwire.Cancel:
		return n.handleCancel(source, m)
	default:
		return fmt.Errorf("node: unhandled message type %T", msg)
	}
}

// handlePay is the payee side accepting an inbound payment session: m.ID
// must already name a PayeeLink created earlier via Request.
func (n *Node) handlePay(source string, m *lnwire.Pay) error {
	pl, ok := n.payeeLinks[m.ID]
	if !ok {
		return fmt.Errorf("node: %w: %s", ErrUnknownRequest, m.ID)
	}
	return n.sendSession(source, pl.Receipt())
}

// handleReceipt is the payer side receiving the payee's Receipt.
func (n *Node) handleReceipt(source string, m *lnwire.Receipt) error {
	if n.payerLink == nil {
		return fmt.Errorf("node: receipt received with no payment in progress")
	}
	return n.payerLink.ReceiveReceipt(m, n.payerLink.Amount)
}

// handleConfirm is the payee side receiving the payer's approval. It
// advances the PayeeLink and originates the payee-side MakeRoute
// through originateFlood, over the meeting points the Receipt offered.
func (n *Node) handleConfirm(source string, m *lnwire.Confirm) error {
	if m.ID == nil {
		return fmt.Errorf("node: confirm: missing requestID")
	}
	pl, ok := n.payeeLinks[*m.ID]
	if !ok {
		return fmt.Errorf("node: %w: %s", ErrUnknownRequest, *m.ID)
	}
	if err := pl.Confirm(); err != nil {
		return err
	}
	return n.originateFlood(pl.TransactionID(), pl.Amount, pl.MeetingPoints, false)
}

// originateFlood tries the candidate meeting points in order on behalf
// of this node's own PayerLink/PayeeLink and stops at the first one it
// reaches: a locally hosted meeting point is matched directly,
// otherwise one MakeRoute goes out over the Link selectForwardLink
// picks. Later meeting points in the list are not tried once one
// succeeds.
// isPayerSide selects which half of the flood (and which channel
// direction) this origination represents.
func (n *Node) originateFlood(
	txID idhash.TransactionID,
	amount btcutil.Amount,
	meetingPoints []string,
	isPayerSide bool,
) error {
	dir := link.Incoming
	if isPayerSide {
		dir = link.Outgoing
	}

	for _, mpID := range meetingPoints {
		if mp, hosted := n.meetingPoints[mpID]; hosted {
			if err := n.matchAtMeetingPoint(mp, "", isPayerSide, txID, amount, nil, nil); err != nil {
				continue
			}
			return nil
		}

		next := n.selectForwardLink("", amount, dir)
		if next == "" {
			continue
		}
		l := n.links[next]
		if _, err := l.Reserve(txID, amount, dir, nil, nil); err != nil {
			continue
		}
		n.txRoutes[txID] = txRoute{
			role:           rolePayerOriginFor(isPayerSide),
			forwardTo:      next,
			meetingPointID: mpID,
			isPayerSide:    isPayerSide,
		}
		route := &lnwire.MakeRoute{
			TransactionID:  txID,
			Amount:         amount,
			Direction:      directionOf(isPayerSide),
			MeetingPointID: mpID,
		}
		if isPayerSide {
			self := lnwire.PayerLocalID
			route.PayerID = &self
		} else {
			self := lnwire.PayeeLocalID
			route.PayeeID = &self
		}
		if err := n.sendLink(next, route); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("node: %w: no link can reach a meeting point for %s", ErrUnknownLink, txID)
}

func rolePayerOriginFor(isPayerSide bool) txRole {
	if isPayerSide {
		return rolePayerOrigin
	}
	return rolePayeeOrigin
}

func directionOf(isPayerSide bool) lnwire.Direction {
	if isPayerSide {
		return lnwire.Outgoing
	}
	return lnwire.Incoming
}

// selectForwardLink picks one Link other than exclude that has any
// channel whose balance in dir covers amount. Links are visited in Go
// map order, so which of several qualifying Links is picked is not
// defined, and the MakeRoute is forwarded over that one Link only.
func (n *Node) selectForwardLink(exclude string, amount btcutil.Amount, dir link.Direction) string {
	for name, l := range n.links {
		if name == exclude {
			continue
		}
		for _, ch := range l.Channels() {
			local, remote := ch.Balances()
			available := remote
			if dir == link.Outgoing {
				available = local
			}
			if available >= amount {
				return name
			}
		}
	}
	return ""
}

// handleMakeRoute is the routing hop of the protocol: either this node
// hosts the named MeetingPoint, in which case it tries to match the
// flood against the opposite side already pending there, or it is an
// intermediate hop that reserves capacity and forwards the flood on.
func (n *Node) handleMakeRoute(source string, m *lnwire.MakeRoute) error {
	isPayerSide := m.Direction == lnwire.Outgoing
	dir := link.Incoming
	if isPayerSide {
		dir = link.Outgoing
	}

	if source != "" {
		l, ok := n.links[source]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownLink, source)
		}
		// The arrival link moves balance the opposite way from the
		// forward link: this node is on the receiving end of whatever
		// the neighbor upstream is paying, not the paying end.
		arrivalDir := link.Incoming
		if dir == link.Incoming {
			arrivalDir = link.Outgoing
		}
		if _, err := l.Reserve(m.TransactionID, m.Amount, arrivalDir, optBool(m.StartTime), optBool(m.EndTime)); err != nil {
			return err
		}
	}

	if mp, hosted := n.meetingPoints[m.MeetingPointID]; hosted {
		return n.handleMakeRouteAtMeetingPoint(mp, source, isPayerSide, m)
	}

	next := n.selectForwardLink(source, m.Amount, dir)
	if next == "" {
		return fmt.Errorf("node: no route available toward meeting point %s", m.MeetingPointID)
	}
	l := n.links[next]
	if _, err := l.Reserve(m.TransactionID, m.Amount, dir, optBool(m.StartTime), optBool(m.EndTime)); err != nil {
		return err
	}

	n.txRoutes[m.TransactionID] = txRoute{
		role:           roleIntermediate,
		arrivedVia:     source,
		forwardTo:      next,
		meetingPointID: m.MeetingPointID,
		isPayerSide:    isPayerSide,
	}

	forwarded := *m
	forwarded.PayerID = nil
	forwarded.PayeeID = nil
	return n.sendLink(next, &forwarded)
}

func (n *Node) handleMakeRouteAtMeetingPoint(mp *meetingpoint.MeetingPoint, source string, isPayerSide bool, m *lnwire.MakeRoute) error {
	err := n.matchAtMeetingPoint(mp, source, isPayerSide, m.TransactionID, m.Amount, m.StartTime, m.EndTime)
	if err != nil {
		if l, ok := n.links[source]; ok {
			_ = l.Rollback(m.TransactionID)
		}
		if source != "" {
			_ = n.sendLink(source, &lnwire.Cancel{TransactionID: &m.TransactionID})
		}
	}
	return err
}

// matchAtMeetingPoint records one side's route flood at mp and, once
// both sides have arrived, delivers the match: a HavePayerRoute/
// HavePayeeRoute sent back along whichever Link each side arrived via,
// or — when source is "" because this node originated that side of
// the flood itself (it is co-located with the meeting point it's
// flooding toward) — applied directly to the local PayerLink/
// PayeeLink instead of being sent anywhere.
//
// Returns nil both when a match completes and when the route is still
// pending (no error — mp.HandlePayerRoute/HandlePayeeRoute only errors
// on a genuine amount/window mismatch between the two sides). A route
// left pending with an endTime gets a Timeout scheduled for mp at that
// time, which handleTimeout turns into a cancel if no match came.
func (n *Node) matchAtMeetingPoint(
	mp *meetingpoint.MeetingPoint,
	source string,
	isPayerSide bool,
	txID idhash.TransactionID,
	amount btcutil.Amount,
	startTime, endTime *time.Time,
) error {
	now := n.clock.Now()
	var match *meetingpoint.Match
	var err error
	if isPayerSide {
		match, err = mp.HandlePayerRoute(txID, amount, startTime, endTime, source, now)
	} else {
		match, err = mp.HandlePayeeRoute(txID, amount, startTime, endTime, source, now)
	}
	if err != nil {
		return err
	}
	if match == nil {
		if endTime != nil {
			n.schedule(*endTime, lnwire.Timeout{Target: mp.ID, State: "routeExpiry"})
		}
		return nil
	}

	// A side whose replyVia is "" was matched locally, with no Link to
	// send its Have*Route reply over (§4.4's zero-hop case: this node
	// both hosts mp and originated that side of the flood itself). When
	// only one side is local, this route's remaining hops behave
	// exactly like a payer-origin or payee-origin route — reusing those
	// roles here, rather than roleMeetingPoint, keeps handleLock/
	// handleCommit/handleSettleCommit's existing per-role branches from
	// ever indexing n.links with an empty name.
	role := roleMeetingPoint
	arrivedVia := match.PayerReplyVia
	forwardTo := match.PayeeReplyVia
	switch {
	case match.PayerReplyVia == "" && match.PayeeReplyVia != "":
		role = rolePayerOrigin
		arrivedVia = ""
		forwardTo = match.PayeeReplyVia
	case match.PayeeReplyVia == "" && match.PayerReplyVia != "":
		role = rolePayeeOrigin
		arrivedVia = ""
		forwardTo = match.PayerReplyVia
	}

	n.txRoutes[txID] = txRoute{
		role:           role,
		arrivedVia:     arrivedVia,
		forwardTo:      forwardTo,
		meetingPointID: mp.ID,
	}

	if match.PayerReplyVia == "" {
		if err := n.payerLink.ReceivePayerRoute(); err != nil {
			return err
		}
		if err := n.maybeLockPayer(); err != nil {
			return err
		}
	} else if err := n.sendLink(match.PayerReplyVia, &lnwire.HavePayerRoute{TransactionID: txID}); err != nil {
		return err
	}

	if match.PayeeReplyVia == "" {
		pl := n.payeeLinkByTransaction(txID)
		if pl == nil {
			return fmt.Errorf("node: havePayeeRoute for unknown payee transaction %s", txID)
		}
		reply, err := pl.ReceiveRoute()
		if err != nil {
			return err
		}
		return n.sendSession(pl.RequestID.String(), reply)
	}
	return n.sendLink(match.PayeeReplyVia, &lnwire.HavePayeeRoute{TransactionID: txID})
}

// backward forwards msg one hop further toward wherever txID's flood
// arrived from. Callers have already handled the case where this node
// is itself the route's origin before reaching here.
func (n *Node) backward(txID idhash.TransactionID, msg lnwire.Message) error {
	route, ok := n.txRoutes[txID]
	if !ok {
		return fmt.Errorf("node: %w: %s", ErrUnknownRequest, txID)
	}
	if route.arrivedVia == "" {
		return fmt.Errorf("node: %s has no backward link to forward on", txID)
	}
	return n.sendLink(route.arrivedVia, msg)
}

// handleHavePayerRoute arrives at an intermediate hop (forward it back
// toward wherever the payer-side flood arrived from) or at the
// payer's own origin node (apply it to the PayerLink).
func (n *Node) handleHavePayerRoute(source string, m *lnwire.HavePayerRoute) error {
	route, ok := n.txRoutes[m.TransactionID]
	if !ok {
		return fmt.Errorf("node: %w: %s", ErrUnknownRequest, m.TransactionID)
	}
	if route.role == rolePayerOrigin {
		if n.payerLink == nil || n.payerLink.TransactionID != m.TransactionID {
			return fmt.Errorf("node: havePayerRoute for unknown payer transaction %s", m.TransactionID)
		}
		if err := n.payerLink.ReceivePayerRoute(); err != nil {
			return err
		}
		return n.maybeLockPayer()
	}
	return n.backward(m.TransactionID, m)
}

// maybeLockPayer sends the outgoing Lock once the payer's own PayerLink
// has both its payer-side and payee-side route matches in hand. The
// two can arrive in either order (§4.6), so both call sites funnel
// through here.
func (n *Node) maybeLockPayer() error {
	if n.payerLink == nil || !n.payerLink.HasBothRoutes() {
		return nil
	}
	lockMsg, err := n.payerLink.Lock()
	if err != nil {
		return err
	}
	route, ok := n.txRoutes[n.payerLink.TransactionID]
	if !ok {
		return fmt.Errorf("node: %w: %s", ErrUnknownRequest, n.payerLink.TransactionID)
	}
	if l, ok := n.links[route.forwardTo]; ok {
		if err := l.Lock(n.payerLink.TransactionID); err != nil {
			return err
		}
	}
	return n.sendLink(route.forwardTo, lockMsg)
}

// handleHavePayeeRoute is the symmetric counterpart, terminating at
// the payee's own PayeeLink, which re-sends its own HavePayeeRoute
// (TransactionID zeroed, per the preserved wire quirk) toward the
// payer over its session.
func (n *Node) handleHavePayeeRoute(source string, m *lnwire.HavePayeeRoute) error {
	// The payee's own reply to its meeting-point match carries a
	// zeroed TransactionID (ReceiveRoute's documented wire quirk) and
	// arrives over the payer<->payee session rather than a Link, so it
	// cannot be matched through txRoutes: it is recognised by source
	// instead, matching this node's own in-progress PayerLink session.
	if n.payerLink != nil && source == n.payerLinkReqID.String() {
		if err := n.payerLink.ReceivePayeeRoute(); err != nil {
			return err
		}
		return n.maybeLockPayer()
	}

	route, ok := n.txRoutes[m.TransactionID]
	if !ok {
		return fmt.Errorf("node: %w: %s", ErrUnknownRequest, m.TransactionID)
	}
	if route.role == rolePayeeOrigin {
		pl := n.payeeLinkByTransaction(m.TransactionID)
		if pl == nil {
			return fmt.Errorf("node: havePayeeRoute for unknown payee transaction %s", m.TransactionID)
		}
		reply, err := pl.ReceiveRoute()
		if err != nil {
			return err
		}
		return n.sendSession(pl.RequestID.String(), reply)
	}
	return n.backward(m.TransactionID, m)
}

// payeeLinkByTransaction finds the PayeeLink whose derived
// transactionID matches txID, used once the meeting point reply
// arrives carrying only the transactionID.
func (n *Node) payeeLinkByTransaction(txID idhash.TransactionID) *payee.PayeeLink {
	for _, pl := range n.payeeLinks {
		if pl.TransactionID() == txID {
			return pl
		}
	}
	return nil
}

func optBool(t *time.Time) *bool {
	if t == nil {
		return nil
	}
	v := true
	return &v
}

// handleLock propagates a Lock forward along the path: an
// intermediate or meeting-point hop locks the reservations on both
// the link it arrived via and the link it forwards to, then forwards
// the message onward; at the payee's own origin it terminates,
// advancing the PayeeLink and immediately originating the Commit that
// starts the backward leg, followed by the SettleCommit that lets each
// hop perform its deferred channel commit (§4.5 has no separate payee
// confirmation step once locked).
func (n *Node) handleLock(source string, m *lnwire.Lock) error {
	route, ok := n.txRoutes[m.TransactionID]
	if !ok {
		return fmt.Errorf("node: %w: %s", ErrUnknownRequest, m.TransactionID)
	}

	switch route.role {
	case rolePayeeOrigin:
		pl := n.payeeLinkByTransaction(m.TransactionID)
		if pl == nil {
			return fmt.Errorf("node: lock for unknown payee transaction %s", m.TransactionID)
		}
		if l, ok := n.links[route.forwardTo]; ok {
			if err := l.Lock(m.TransactionID); err != nil {
				return err
			}
		}
		if err := pl.Lock(); err != nil {
			return err
		}
		commitMsg, err := pl.Commit()
		if err != nil {
			return err
		}
		if l, ok := n.links[route.forwardTo]; ok {
			if err := l.Commit(m.TransactionID); err != nil {
				return err
			}
		}
		if err := n.sendLink(route.forwardTo, commitMsg); err != nil {
			return err
		}
		return n.sendLink(route.forwardTo, &lnwire.SettleCommit{Token: commitMsg.Token})

	case rolePayerOrigin:
		return fmt.Errorf("node: unexpected inbound lock at payer origin")

	default:
		if l, ok := n.links[route.arrivedVia]; ok {
			if err := l.Lock(m.TransactionID); err != nil {
				return err
			}
		}
		if l, ok := n.links[route.forwardTo]; ok {
			if err := l.Lock(m.TransactionID); err != nil {
				return err
			}
		}
		if route.forwardTo == "" {
			return nil
		}
		return n.sendLink(route.forwardTo, m)
	}
}

// handleCommit propagates the revealed token backward (payee towards
// payer), fast: an intermediate or meeting-point hop only relays the
// token onward, deferring the actual balance-moving channel commit to
// SettleCommit. It terminates at the payer's own origin, which starts
// the asymmetric-commit grace period (§4.6).
func (n *Node) handleCommit(source string, m *lnwire.Commit) error {
	txID := n.crypto.Hash(m.Token)
	route, ok := n.txRoutes[txID]
	if !ok {
		return fmt.Errorf("node: %w: %s", ErrUnknownRequest, txID)
	}

	switch route.role {
	case rolePayerOrigin:
		if n.payerLink == nil || n.payerLink.TransactionID != txID {
			return fmt.Errorf("node: commit for unknown payer transaction %s", txID)
		}
		if err := n.payerLink.ReceiveCommit(m.Token); err != nil {
			return err
		}
		n.schedule(n.clock.Now().Add(gracePeriod), lnwire.Timeout{
			Target: lnwire.PayerLocalID,
			State:  "receivedCommit",
		})
		return nil

	case rolePayeeOrigin:
		return fmt.Errorf("node: unexpected inbound commit at payee origin")

	default:
		return n.sendLink(route.arrivedVia, m)
	}
}

// handleSettleCommit performs the deferred per-channel commit and
// continues propagating backward. At the payer's own origin it
// cancels the grace-period timer and finalises the PayerLink.
func (n *Node) handleSettleCommit(source string, m *lnwire.SettleCommit) error {
	txID := n.crypto.Hash(m.Token)
	route, ok := n.txRoutes[txID]
	if !ok {
		return fmt.Errorf("node: %w: %s", ErrUnknownRequest, txID)
	}

	switch route.role {
	case rolePayerOrigin:
		n.cancelTimers(lnwire.PayerLocalID)
		if l, ok := n.links[route.forwardTo]; ok {
			if err := l.Commit(txID); err != nil {
				return err
			}
		}
		if _, err := n.payerLink.Commit(); err != nil {
			return err
		}
		if n.metrics != nil {
			n.metrics.PaymentsCommitted.Inc()
		}
		return nil

	case rolePayeeOrigin:
		return fmt.Errorf("node: unexpected inbound settleCommit at payee origin")

	default:
		if l, ok := n.links[route.arrivedVia]; ok {
			if err := l.Commit(txID); err != nil {
				return err
			}
		}
		if l, ok := n.links[route.forwardTo]; ok {
			if err := l.Commit(txID); err != nil {
				return err
			}
		}
		delete(n.txRoutes, txID)
		if route.arrivedVia == "" {
			return nil
		}
		return n.sendLink(route.arrivedVia, m)
	}
}

// handleCancel aborts either a payer<->payee session (ID set) or a
// routed reservation (TransactionID set).
func (n *Node) handleCancel(source string, m *lnwire.Cancel) error {
	if m.ID != nil {
		if pl, ok := n.payeeLinks[*m.ID]; ok {
			return pl.Cancel()
		}
		if n.payerLink != nil && n.payerLink.RequestID == *m.ID {
			return n.payerLink.Cancel()
		}
		return fmt.Errorf("node: %w: %s", ErrUnknownRequest, *m.ID)
	}
	if m.TransactionID == nil {
		return fmt.Errorf("node: cancel: neither ID nor TransactionID set")
	}
	n.cancelRoute(*m.TransactionID, fmt.Errorf("node: cancel received from %s", source))
	return nil
}

// cancelRoute unwinds every reservation recorded for txID, forwards
// the abort to both neighbors of this hop (if any), releases it from
// whichever MeetingPoint is tracking it, and finalises the local
// PayerLink/PayeeLink if this node is the route's origin. It returns
// cause unchanged so call sites can both unwind and propagate the
// triggering error in one step.
func (n *Node) cancelRoute(txID idhash.TransactionID, cause error) error {
	route, ok := n.txRoutes[txID]
	if !ok {
		return cause
	}
	delete(n.txRoutes, txID)

	for _, linkName := range []string{route.arrivedVia, route.forwardTo} {
		if linkName == "" {
			continue
		}
		l, ok := n.links[linkName]
		if !ok {
			continue
		}
		_ = l.Rollback(txID)
		_ = n.sendLink(linkName, &lnwire.Cancel{TransactionID: &txID})
	}

	switch route.role {
	case rolePayerOrigin:
		if n.payerLink != nil {
			_ = n.payerLink.Cancel()
		}
	case rolePayeeOrigin:
		if pl := n.payeeLinkByTransaction(txID); pl != nil {
			_ = pl.Cancel()
		}
	}

	if mp, ok := n.meetingPoints[route.meetingPointID]; ok {
		mp.Forget(txID)
	}
	if n.metrics != nil {
		n.metrics.PaymentsCancelled.Inc()
	}
	return cause
}

// handleTimeout fires a scheduled watchdog: either the payer's own
// commit grace period (§4.6) or a meeting point's route expiry (§4.4).
func (n *Node) handleTimeout(m lnwire.Timeout) error {
	switch m.State {
	case "receivedCommit":
		if m.Target != lnwire.PayerLocalID || n.payerLink == nil {
			return nil
		}
		if route, ok := n.txRoutes[n.payerLink.TransactionID]; ok {
			if l, ok := n.links[route.forwardTo]; ok {
				if err := l.Commit(n.payerLink.TransactionID); err != nil {
					return err
				}
			}
		}
		if _, err := n.payerLink.Commit(); err != nil {
			return err
		}
		if n.metrics != nil {
			n.metrics.PaymentsCommitted.Inc()
		}
		return nil

	default:
		mp, ok := n.meetingPoints[m.Target]
		if !ok {
			return nil
		}
		now := n.clock.Now()
		for _, txID := range mp.ExpireBefore(now) {
			n.cancelRoute(txID, fmt.Errorf("node: route %s expired at meeting point %s", txID, mp.ID))
		}
		return nil
	}
}
