// Package persist implements the serializable-state scheme of §4.1: a
// typed tree of persistent records with tagged-variant load/save,
// saved with an atomic-rename protocol that survives a crash at any
// rename boundary. Grounded on channeldb/db.go's Open/versioned-
// migration idiom, adapted from a bbolt-backed key/value store to the
// plain JSON file the spec mandates in §6 (see DESIGN.md for why
// bbolt/kvdb is not used here).
package persist

import (
	"time"

	"github.com/amikopay/amiko/idhash"
	"github.com/btcsuite/btcd/btcutil"
)

// currentSchemaVersion is bumped whenever a field is added or a migration is
// required to read an older file. It has no relation to the channel
// Variant tag below — this versions the *file shape*, not a component.
const currentSchemaVersion = 0

// State is the root of the persisted JSON document: a "Node" tree plus
// the pending timer heap, per §6's "Persisted state file" wire
// contract.
type State struct {
	SchemaVersion   int             `json:"schemaVersion"`
	Node            NodeState       `json:"Node"`
	TimeoutMessages []TimeoutRecord `json:"TimeoutMessages"`
}

// NodeState is the ordered list of Links, the set of MeetingPoints,
// the set of active PayeeLinks keyed by requestID, the at-most-one
// active PayerLink, and the set of in-flight Transactions, per §3.
type NodeState struct {
	Links         []LinkRecord          `json:"links"`
	MeetingPoints []MeetingPointRecord  `json:"meetingPoints"`
	PayeeLinks    []PayeeLinkRecord     `json:"payeeLinks"`
	PayerLink     *PayerLinkRecord      `json:"payerLink,omitempty"`
	Transactions  []TransactionRecord   `json:"transactions"`
}

// LinkRecord is the persisted shape of a Link (§3): name, both
// endpoint identifiers, the remote URL the Transport reconnects to,
// the ordered Channels, and the set of transactionIDs this Link
// currently has open.
type LinkRecord struct {
	Name             string                      `json:"name"`
	LocalID          string                      `json:"localID"`
	RemoteID         string                      `json:"remoteID"`
	RemoteURL        string                      `json:"remoteURL"`
	Channels         []ChannelRecord             `json:"channels"`
	OpenTransactions []idhash.TransactionID      `json:"openTransactions"`
}

// ChannelRecord is the tagged-variant persisted shape of a Channel.
// Variant discriminates Plain from TCD-backed; Documents is only
// meaningful for the TCD-backed variant, and node's snapshot leaves it
// empty for every channel, so no document is saved or restored — this
// is the tagged-union load/save scheme §4.1 calls for, implemented as
// a discriminator field rather than a polymorphic envelope, which is
// the idiomatic Go rendition of the same idea.
type ChannelRecord struct {
	Variant          string                                 `json:"variant"`
	State            uint8                                  `json:"state"`
	AmountLocal      btcutil.Amount                         `json:"amountLocal"`
	AmountRemote     btcutil.Amount                         `json:"amountRemote"`
	OutgoingReserved map[idhash.TransactionID]btcutil.Amount `json:"outgoingReserved"`
	OutgoingLocked   map[idhash.TransactionID]btcutil.Amount `json:"outgoingLocked"`
	IncomingReserved map[idhash.TransactionID]btcutil.Amount `json:"incomingReserved"`
	IncomingLocked   map[idhash.TransactionID]btcutil.Amount `json:"incomingLocked"`
	Documents        []TCDRecord                            `json:"documents,omitempty"`
}

// TCDRecord is the persisted shape of a tcd.Document attached to a
// locked transaction on a TCD-backed channel.
type TCDRecord struct {
	TransactionID   idhash.TransactionID `json:"transactionID"`
	StartTime       time.Time            `json:"startTime"`
	EndTime         time.Time            `json:"endTime"`
	Amount          btcutil.Amount       `json:"amount"`
	TokenHash       [20]byte             `json:"tokenHash"`
	CommitAddress   [20]byte             `json:"commitAddress"`
	RollbackAddress [20]byte             `json:"rollbackAddress"`
}

// MeetingPointRecord is the persisted shape of a MeetingPoint: its ID
// and the two pending-route maps keyed by transactionID.
type MeetingPointRecord struct {
	ID           string                       `json:"id"`
	PendingPayer map[idhash.TransactionID]RouteContext `json:"pendingPayer"`
	PendingPayee map[idhash.TransactionID]RouteContext `json:"pendingPayee"`
}

// RouteContext is the minimal bookkeeping a MeetingPoint keeps per
// pending route: the amount and validity window it needs to match
// against the other side, plus which Link/localID the eventual
// Have*Route reply should be forwarded back along.
type RouteContext struct {
	Amount      btcutil.Amount `json:"amount"`
	StartTime   *time.Time     `json:"startTime,omitempty"`
	EndTime     *time.Time     `json:"endTime,omitempty"`
	ReplyViaID  string         `json:"replyViaID"`
	ArrivedAt   time.Time      `json:"arrivedAt"`
}

// PayeeLinkRecord is the persisted shape of a PayeeLink (§3).
type PayeeLinkRecord struct {
	RequestID     idhash.RequestID     `json:"requestID"`
	State         string               `json:"state"`
	Amount        btcutil.Amount       `json:"amount"`
	ReceiptText   string               `json:"receiptText"`
	Token         idhash.Token         `json:"token"`
	TransactionID idhash.TransactionID `json:"transactionID"`
	MeetingPoints []string             `json:"meetingPoints"`
}

// PayerLinkRecord is the persisted shape of a PayerLink (§3). Token is
// the zero value until Commit is received.
type PayerLinkRecord struct {
	PayeeHost     string               `json:"payeeHost"`
	PayeePort     int                  `json:"payeePort"`
	PayeeLinkID   idhash.RequestID     `json:"payeeLinkID"`
	State         string               `json:"state"`
	Amount        btcutil.Amount       `json:"amount"`
	ReceiptText   string               `json:"receiptText"`
	TransactionID idhash.TransactionID `json:"transactionID"`
	MeetingPoints []string             `json:"meetingPoints"`
	HasPayerRoute bool                 `json:"hasPayerRoute"`
	HasPayeeRoute bool                 `json:"hasPayeeRoute"`
	HasToken      bool                 `json:"hasToken"`
	Token         idhash.Token         `json:"token"`
}

// TransactionRecord is the persisted shape of one node's per-hop
// bookkeeping for an in-flight transactionID (§3, §4.7's txRoute): the
// role this node plays in it, the Link it arrived via and the one it
// was forwarded onward to (either may be empty — a route originated or
// terminates locally), and which MeetingPoint it is routed through.
type TransactionRecord struct {
	TransactionID  idhash.TransactionID `json:"transactionID"`
	Role           string               `json:"role"`
	ArrivedVia     string               `json:"arrivedVia"`
	ForwardTo      string               `json:"forwardTo"`
	MeetingPointID string               `json:"meetingPointID"`
	IsPayerSide    bool                 `json:"isPayerSide"`
}

// TimeoutRecord is a persisted pending entry of the node's timer heap:
// an absolute fire time plus the lnwire.Timeout it will deliver.
type TimeoutRecord struct {
	At     time.Time `json:"at"`
	Target string    `json:"target"`
	State  string    `json:"state"`
}
