package node

import (
	"context"

	"github.com/amikopay/amiko/lnwire"
	"github.com/amikopay/amiko/transport"
	"github.com/google/uuid"
)

// Accept registers a freshly accepted inbound Transport whose first
// message is expected to be a Pay naming one of this node's own
// outstanding requests. This is the payee-side counterpart to Pay's
// own outbound Dial: a listener (cmd/amikod's network server, or a
// test double wiring two in-process Nodes together) hands off each
// newly accepted connection here rather than routing it through a
// Link, since the payer<->payee leg of a payment never has a Link of
// its own.
//
// The handshake read happens off the loop goroutine, matching pump's
// existing blocking-receive pattern; only the session bookkeeping and
// message dispatch run on the loop via dispatch.
func (n *Node) Accept(tr transport.Transport) {
	go n.acceptOne(tr)
}

func (n *Node) acceptOne(tr transport.Transport) {
	// connID only identifies this accept attempt in the log, before a
	// requestID is known to key it by; it never reaches the wire or
	// any persisted state.
	connID := uuid.NewString()

	msg, err := tr.Receive(context.Background())
	if err != nil {
		log.Debugf("node %s: accept %s: handshake read failed: %v", n.ID, connID, err)
		tr.Close()
		return
	}
	pay, ok := msg.(*lnwire.Pay)
	if !ok {
		log.Errorf("node %s: accept %s: expected Pay, got %T", n.ID, connID, msg)
		tr.Close()
		return
	}

	source := pay.ID.String()
	_, err = n.dispatch(func(n *Node) (interface{}, error) {
		n.sessions[source] = &counterpartySession{transport: tr}
		return nil, n.handlePay(source, pay)
	})
	if err != nil {
		log.Errorf("node %s: accept %s: %v", n.ID, source, err)
	}

	n.pump(source, tr)
}
