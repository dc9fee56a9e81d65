package node

import (
	"context"
	"fmt"

	"github.com/amikopay/amiko/channel"
	"github.com/amikopay/amiko/idhash"
	"github.com/amikopay/amiko/link"
	"github.com/amikopay/amiko/payee"
	"github.com/amikopay/amiko/payer"
	"github.com/amikopay/amiko/paymenturl"
	"github.com/amikopay/amiko/transport"
	"github.com/btcsuite/btcd/btcutil"
)

// Public API methods are all thin wrappers around dispatch: each
// builds a closure that runs on the loop goroutine, reads or mutates
// Node state there, and returns a plain value back across the
// command's completion channel. This is the only way callers outside
// package node may touch a Node.

// Request creates a new outstanding payment request (the payee side of
// a transaction), returning the amikopay:// URL to hand to the payer
// out of band.
func (n *Node) Request(amount btcutil.Amount, receiptText string, meetingPoints []string, host string, port int) (string, error) {
	v, err := n.dispatch(func(n *Node) (interface{}, error) {
		pl, err := payee.New(n.crypto, amount, receiptText, meetingPoints)
		if err != nil {
			return nil, err
		}
		n.payeeLinks[pl.RequestID] = pl
		return pl.RequestID, nil
	})
	if err != nil {
		return "", err
	}
	reqID := v.(idhash.RequestID)
	return paymenturl.Encode(host, port, reqID), nil
}

// Pay begins an outgoing payment against a URL produced by Request,
// opening a direct Transport to the payee and sending the initial Pay
// message. amount is what the caller expects to pay; ReceiveReceipt
// later refuses a Receipt naming a different amount.
func (n *Node) Pay(ctx context.Context, url string, amount btcutil.Amount, dialer transport.Dialer) error {
	host, port, reqID, err := paymenturl.Parse(url)
	if err != nil {
		return err
	}
	tr, err := dialer.Dial(ctx, fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return err
	}

	_, err = n.dispatch(func(n *Node) (interface{}, error) {
		if n.payerLink != nil && !n.payerLink.Done() {
			return nil, ErrAlreadyInProgress
		}
		pl := payer.New(n.crypto, host, port, reqID, amount)
		n.payerLink = pl
		n.payerLinkReqID = reqID
		n.sessions[reqID.String()] = &counterpartySession{transport: tr}
		go n.pump(reqID.String(), tr)
		return nil, n.sendSession(reqID.String(), pl.Pay())
	})
	if err != nil {
		tr.Close()
		return err
	}
	return nil
}

// ConfirmPayment is the user's approval of a Receipt already received
// for the in-progress PayerLink: it sends Confirm to the payee and, in
// parallel, begins flooding this side's own MakeRoute toward the same
// meeting points the Receipt offered (§4.6 — the payer and payee sides
// of the route flood independently and may match in either order).
func (n *Node) ConfirmPayment() error {
	_, err := n.dispatch(func(n *Node) (interface{}, error) {
		if n.payerLink == nil {
			return nil, fmt.Errorf("node: no payment in progress")
		}
		confirm, err := n.payerLink.Confirm()
		if err != nil {
			return nil, err
		}
		if err := n.sendSession(n.payerLinkReqID.String(), confirm); err != nil {
			return nil, err
		}
		return nil, n.originateFlood(n.payerLink.TransactionID, n.payerLink.Amount, n.payerLink.MeetingPoints, true)
	})
	return err
}

// CancelPayment abandons the in-progress outgoing payment, if any.
func (n *Node) CancelPayment() error {
	_, err := n.dispatch(func(n *Node) (interface{}, error) {
		if n.payerLink == nil {
			return nil, fmt.Errorf("node: no payment in progress")
		}
		txID := n.payerLink.TransactionID
		if route, ok := n.txRoutes[txID]; ok && route.role == rolePayerOrigin {
			// A flood may already have reserved capacity on one or more
			// links; cancelRoute unwinds those reservations and notifies
			// neighbors in addition to finalising the PayerLink itself.
			n.cancelRoute(txID, nil)
			return nil, nil
		}
		return nil, n.payerLink.Cancel()
	})
	return err
}

// RequestStatus reports the lifecycle state of a request this node is
// the payee for.
func (n *Node) RequestStatus(id idhash.RequestID) (payee.State, error) {
	v, err := n.dispatch(func(n *Node) (interface{}, error) {
		pl, ok := n.payeeLinks[id]
		if !ok {
			return nil, fmt.Errorf("node: %w: %s", ErrUnknownRequest, id)
		}
		return pl.State(), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(payee.State), nil
}

// PaymentStatus reports the lifecycle state of the in-progress or most
// recently completed outgoing payment.
func (n *Node) PaymentStatus() (payer.State, error) {
	v, err := n.dispatch(func(n *Node) (interface{}, error) {
		if n.payerLink == nil {
			return nil, fmt.Errorf("node: no payment in progress")
		}
		return n.payerLink.State(), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(payer.State), nil
}

// GetBalance reports the settlement backend's total available balance.
func (n *Node) GetBalance(ctx context.Context) (btcutil.Amount, error) {
	v, err := n.dispatch(func(n *Node) (interface{}, error) {
		return n.backend.GetBalance(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(btcutil.Amount), nil
}

// LinkBalance is one Link's name paired with the local/remote balance
// summed across its Channels, returned by List.
type LinkBalance struct {
	Name   string
	Local  btcutil.Amount
	Remote btcutil.Amount
}

// List reports every Link's balances, used to render the CLI's
// channel-list view.
func (n *Node) List() ([]LinkBalance, error) {
	v, err := n.dispatch(func(n *Node) (interface{}, error) {
		out := make([]LinkBalance, 0, len(n.links))
		for name, l := range n.links {
			var lb LinkBalance
			lb.Name = name
			for _, ch := range l.Channels() {
				local, remote := ch.Balances()
				lb.Local += local
				lb.Remote += remote
			}
			out = append(out, lb)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]LinkBalance), nil
}

// MakeLink registers a new Link to a neighbor over tr, with one
// initial Channel already open between them — the in-process
// equivalent of the teacher's channel-open RPC, simplified per this
// module's Non-goals to a pre-funded pairing rather than a full
// on-chain funding flow. Callers build ch via channel.New or
// channel.NewTCDBacked depending on which variant the neighbor
// relationship requires.
func (n *Node) MakeLink(name, localID, remoteID string, ch channel.Ledger, tr transport.Transport) error {
	_, err := n.dispatch(func(n *Node) (interface{}, error) {
		if _, exists := n.links[name]; exists {
			return nil, fmt.Errorf("node: link %s already exists", name)
		}
		l := link.New(name, localID, remoteID)
		l.AddChannel(ch)
		n.AddLink(l, tr)
		return nil, nil
	})
	return err
}

// Deposit forwards a deposit request to the settlement backend,
// returning the address the caller should send funds to.
func (n *Node) Deposit(ctx context.Context) (string, error) {
	v, err := n.dispatch(func(n *Node) (interface{}, error) {
		return n.backend.GetNewAddress(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Withdraw broadcasts a caller-built withdrawal transaction through the
// settlement backend.
func (n *Node) Withdraw(ctx context.Context, rawTx []byte) error {
	_, err := n.dispatch(func(n *Node) (interface{}, error) {
		return nil, n.backend.SendRawTransaction(ctx, rawTx)
	})
	return err
}

// Persist triggers an out-of-band snapshot save, independent of
// whatever periodic save policy cmd/amikod wires up.
func (n *Node) Persist() error {
	_, err := n.dispatch(func(n *Node) (interface{}, error) {
		return nil, n.persistNow()
	})
	return err
}
