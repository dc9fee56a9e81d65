// Package idhash derives and (de)serializes the fixed-width identifiers
// used throughout the payment protocol: the secret token, the
// transaction identity derived from it, and the non-secret request
// correlator handed out by a payee link.
package idhash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/ripemd160"
)

const (
	// TokenSize is the width in bytes of a payment preimage.
	TokenSize = 32

	// TransactionIDSize is the width in bytes of a transactionID:
	// ripemd160(sha256(token)).
	TransactionIDSize = ripemd160.Size

	// RequestIDSize is the width in bytes of a requestID.
	RequestIDSize = 8
)

// Token is the secret 32-byte preimage whose hash is a transactionID.
type Token [TokenSize]byte

// TransactionID is RIPEMD160(SHA256(token)), the payment's identity on
// the wire. It never reveals the token.
type TransactionID [TransactionIDSize]byte

// RequestID is the non-secret correlator embedded in a payment URL.
type RequestID [RequestIDSize]byte

// NewToken draws a cryptographically random token.
func NewToken() (Token, error) {
	var t Token
	if _, err := rand.Read(t[:]); err != nil {
		return Token{}, fmt.Errorf("idhash: generate token: %w", err)
	}
	return t, nil
}

// NewRequestID draws a cryptographically random requestID.
func NewRequestID() (RequestID, error) {
	var id RequestID
	if _, err := rand.Read(id[:]); err != nil {
		return RequestID{}, fmt.Errorf("idhash: generate requestID: %w", err)
	}
	return id, nil
}

// Hash computes the transactionID for a token: ripemd160(sha256(token)).
// This is the one concrete algorithm §6 of the spec pins down; everything
// else about hashing stays behind the Crypto capability.
func Hash(t Token) TransactionID {
	shaSum := sha256.Sum256(t[:])

	h := ripemd160.New()
	h.Write(shaSum[:])

	var txID TransactionID
	copy(txID[:], h.Sum(nil))
	return txID
}

// Verify reports whether token hashes to txID.
func Verify(t Token, txID TransactionID) bool {
	return Hash(t) == txID
}

func (id RequestID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseRequestID decodes the 16-hex-char form used in payment URLs.
func ParseRequestID(s string) (RequestID, error) {
	var id RequestID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("idhash: decode requestID: %w", err)
	}
	if len(b) != RequestIDSize {
		return id, fmt.Errorf("idhash: requestID must be %d bytes, got %d",
			RequestIDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (txID TransactionID) String() string {
	return hex.EncodeToString(txID[:])
}

// ParseTransactionID decodes a hex-encoded transactionID, as found in
// log lines and the persisted state file.
func ParseTransactionID(s string) (TransactionID, error) {
	var txID TransactionID
	b, err := hex.DecodeString(s)
	if err != nil {
		return txID, fmt.Errorf("idhash: decode transactionID: %w", err)
	}
	if len(b) != TransactionIDSize {
		return txID, fmt.Errorf("idhash: transactionID must be %d bytes, got %d",
			TransactionIDSize, len(b))
	}
	copy(txID[:], b)
	return txID, nil
}

func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

// MarshalJSON encodes as a hex string, matching the style of
// chainhash.Hash's JSON form in the btcsuite ecosystem.
func (txID TransactionID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + txID.String() + `"`), nil
}

// UnmarshalJSON decodes a hex string produced by MarshalJSON.
func (txID *TransactionID) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return err
	}
	parsed, err := ParseTransactionID(s)
	if err != nil {
		return err
	}
	*txID = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler so a TransactionID can
// be used as a JSON object key (encoding/json only consults
// MarshalJSON for values, not map keys).
func (txID TransactionID) MarshalText() ([]byte, error) {
	return []byte(txID.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, the map-key
// counterpart to MarshalText.
func (txID *TransactionID) UnmarshalText(data []byte) error {
	parsed, err := ParseTransactionID(string(data))
	if err != nil {
		return err
	}
	*txID = parsed
	return nil
}

// MarshalJSON encodes as a hex string.
func (t Token) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON decodes a hex string produced by MarshalJSON.
func (t *Token) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("idhash: decode token: %w", err)
	}
	if len(b) != TokenSize {
		return fmt.Errorf("idhash: token must be %d bytes, got %d", TokenSize, len(b))
	}
	copy(t[:], b)
	return nil
}

// MarshalJSON encodes as a hex string.
func (id RequestID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON decodes a hex string produced by MarshalJSON.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return err
	}
	parsed, err := ParseRequestID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler, letting a RequestID
// be used as a JSON object key.
func (id RequestID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, the map-key
// counterpart to MarshalText.
func (id *RequestID) UnmarshalText(data []byte) error {
	parsed, err := ParseRequestID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func unquote(data []byte) (string, error) {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return "", fmt.Errorf("idhash: expected JSON string, got %q", data)
	}
	return string(data[1 : len(data)-1]), nil
}
