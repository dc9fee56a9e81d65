// Package paymenturl encodes and decodes the amikopay:// payment
// descriptor (§6): a URL a payee hands to a payer out of band,
// naming the host/port to reach the payee's Transport and the
// requestID of the specific PayeeLink to pay.
//
// Grounded on zpay32/invoice.go's encode/decode-a-payment-descriptor
// shape, simplified from bech32 to a plain URL since §6 specifies a
// URL, not a bech32 string.
package paymenturl

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/amikopay/amiko/idhash"
	"github.com/go-errors/errors"
)

// Scheme is the URL scheme identifying an amikopay payment URL.
const Scheme = "amikopay"

// ErrWrongScheme is returned by Parse when the URL's scheme isn't
// "amikopay".
var ErrWrongScheme = errors.New("paymenturl: wrong scheme")

// Encode renders "amikopay://host:port/requestID" for host, port and
// requestID.
func Encode(host string, port int, requestID idhash.RequestID) string {
	return fmt.Sprintf("%s://%s:%d/%s", Scheme, host, port, requestID.String())
}

// Parse decodes a URL produced by Encode, returning its host, port and
// requestID.
func Parse(raw string) (host string, port int, requestID idhash.RequestID, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, requestID, fmt.Errorf("paymenturl: %w", err)
	}
	if u.Scheme != Scheme {
		return "", 0, requestID, fmt.Errorf("paymenturl: %w: got %q", ErrWrongScheme, u.Scheme)
	}

	host = u.Hostname()
	if host == "" {
		return "", 0, requestID, fmt.Errorf("paymenturl: missing host in %q", raw)
	}

	portStr := u.Port()
	if portStr == "" {
		return "", 0, requestID, fmt.Errorf("paymenturl: missing port in %q", raw)
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, requestID, fmt.Errorf("paymenturl: invalid port %q: %w", portStr, err)
	}

	idStr := strings.TrimPrefix(u.Path, "/")
	requestID, err = idhash.ParseRequestID(idStr)
	if err != nil {
		return "", 0, requestID, fmt.Errorf("paymenturl: %w", err)
	}

	return host, port, requestID, nil
}
