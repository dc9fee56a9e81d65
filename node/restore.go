package node

import (
	"fmt"

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
	"github.com/lightningnetwork/lnd/clock"
)

// Restore loads a Node's persisted state via store and rebuilds every
// Link's Channels, MeetingPoint, PayeeLink, in-flight PayerLink, per-
// transaction routing record and pending Timeout from it, mirroring
// snapshot's shape in reverse. It does not reconnect any Link's
// Transport: LinkRecord.RemoteURL is returned alongside the Node so
// cmd/amikod can dial each neighbor itself and finish wiring with
// AddLink, the same two-step "construct, then connect" split Start
// already imposes on a freshly created Node.
//
// A TCD-backed channel's tcd.Document attached to a transaction locked
// at crash time is not recreated (see restoreChannel); that
// transaction's eventual Commit/Rollback proceeds without one.
func Restore(
	id string,
	store *persist.Store,
	clk clock.Clock,
	cr crypto.Capability,
	backend settlement.Backend,
	reg *metrics.Registry,
) (n *Node, remotes []persist.LinkRecord, err error) {
	state, err := store.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("node: restoring %s: %w", id, err)
	}

	n = New(id, store, clk, cr, backend, reg)

	for _, lr := range state.Node.Links {
		l := link.New(lr.Name, lr.LocalID, lr.RemoteID)
		for _, chr := range lr.Channels {
			l.AddChannel(restoreChannel(chr))
		}
		n.links[lr.Name] = l
	}

	for _, mpr := range state.Node.MeetingPoints {
		n.meetingPoints[mpr.ID] = meetingpoint.Restore(
			mpr.ID,
			pendingSnapshots(mpr.PendingPayer),
			pendingSnapshots(mpr.PendingPayee),
		)
	}

	for _, plr := range state.Node.PayeeLinks {
		n.payeeLinks[plr.RequestID] = payee.Restore(payee.Snapshot{
			RequestID:     plr.RequestID,
			Amount:        plr.Amount,
			ReceiptText:   plr.ReceiptText,
			MeetingPoints: plr.MeetingPoints,
			Token:         plr.Token,
			TransactionID: plr.TransactionID,
			State:         payee.ParseState(plr.State),
		})
	}

	if plr := state.Node.PayerLink; plr != nil {
		n.payerLink = payer.Restore(cr, payer.Snapshot{
			PayeeHost:     plr.PayeeHost,
			PayeePort:     plr.PayeePort,
			RequestID:     plr.PayeeLinkID,
			Amount:        plr.Amount,
			ReceiptText:   plr.ReceiptText,
			TransactionID: plr.TransactionID,
			MeetingPoints: plr.MeetingPoints,
			State:         payer.ParseState(plr.State),
			HasPayerRoute: plr.HasPayerRoute,
			HasPayeeRoute: plr.HasPayeeRoute,
			Token:         plr.Token,
			HasToken:      plr.HasToken,
		})
		n.payerLinkReqID = plr.PayeeLinkID
	}

	for _, tr := range state.Node.Transactions {
		n.txRoutes[tr.TransactionID] = txRoute{
			role:           parseTxRole(tr.Role),
			arrivedVia:     tr.ArrivedVia,
			forwardTo:      tr.ForwardTo,
			meetingPointID: tr.MeetingPointID,
			isPayerSide:    tr.IsPayerSide,
		}
	}

	for _, to := range state.TimeoutMessages {
		n.schedule(to.At, lnwire.Timeout{Target: to.Target, State: to.State})
	}

	return n, state.Node.Links, nil
}

// pendingSnapshots converts a persisted RouteContext map back into the
// meetingpoint.PendingSnapshot slice Restore expects.
func pendingSnapshots(m map[idhash.TransactionID]persist.RouteContext) []meetingpoint.PendingSnapshot {
	if len(m) == 0 {
		return nil
	}
	out := make([]meetingpoint.PendingSnapshot, 0, len(m))
	for txID, rc := range m {
		out = append(out, meetingpoint.PendingSnapshot{
			TransactionID: txID,
			Amount:        rc.Amount,
			StartTime:     rc.StartTime,
			EndTime:       rc.EndTime,
			ReplyVia:      rc.ReplyViaID,
			ArrivedAt:     rc.ArrivedAt,
		})
	}
	return out
}

// restoreChannel rebuilds a channel.Ledger from its persisted record.
// TCD-backed channels come back as a plain *channel.Channel tagged
// VariantTCDBacked rather than a *channel.TCDBacked: any tcd.Document
// attached to a transaction locked at crash time is not recreated, so
// that transaction's eventual Commit/Rollback proceeds without one.
func restoreChannel(r persist.ChannelRecord) channel.Ledger {
	return channel.Restore(channel.Snapshot{
		Variant:          channel.Variant(r.Variant),
		State:            channel.State(r.State),
		AmountLocal:      r.AmountLocal,
		AmountRemote:     r.AmountRemote,
		OutgoingReserved: r.OutgoingReserved,
		OutgoingLocked:   r.OutgoingLocked,
		IncomingReserved: r.IncomingReserved,
		IncomingLocked:   r.IncomingLocked,
	})
}
