// Package transport defines the abstract boundary a node uses to
// reach its neighbors (§1). NAT traversal, connection management and
// wire encryption are out of scope; Transport only specifies what a
// Link needs from the network to deliver and receive messages.
//
// Grounded on chainntfs/chainntfs.go's style: a capability interface,
// alongside one plain-TCP implementation (TCPTransport/TCPDialer in
// tcp.go).
package transport

import (
	"context"

	"github.com/amikopay/amiko/lnwire"
)

// Transport is the capability a Link uses to exchange messages with
// one neighbor. Concrete implementations (a TCP/TLS connection, a
// test double looping two in-process nodes together) satisfy this
// interface; this package provides TCPTransport, a plain TCP one.
type Transport interface {
	// Send delivers msg to the neighbor this Transport is bound to.
	Send(ctx context.Context, msg lnwire.Message) error

	// Receive blocks until the next message from the neighbor arrives,
	// or ctx is done.
	Receive(ctx context.Context) (lnwire.Message, error)

	// Close releases any resources held by this Transport.
	Close() error
}

// Dialer creates a Transport to a named remote endpoint, such as the
// host:port encoded in a PayerLink's payment URL.
type Dialer interface {
	Dial(ctx context.Context, remoteURL string) (Transport, error)
}
