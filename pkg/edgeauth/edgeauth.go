// edgewall/pkg/edgeauth/edgeauth.go

// Package edgeauth signs requests routed to origin backends so the
// origin can prove traffic passed through the rule engine. Wire format:
// "timestamp,pop,hex(HMAC-SHA256(secret, timestamp+\",\"+pop))".
package edgeauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HeaderName is the forward-request header the signature travels in.
const HeaderName = "Edge-Auth"

// DefaultTolerance is the replay window the origin-side guard applies.
// Reference deployments disagreed between 2s and 5s; 5s is the default
// and it stays configurable.
const DefaultTolerance = 5 * time.Second

var (
	ErrMalformedHeader = errors.New("malformed edge-auth header")
	ErrBadSignature    = errors.New("edge-auth signature mismatch")
	ErrStaleTimestamp  = errors.New("edge-auth timestamp outside tolerance")
)

// Sign produces the header value for the given unix timestamp and POP id.
func Sign(timestamp uint64, pop string, secret []byte) string {
	data := fmt.Sprintf("%d,%s", timestamp, pop)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))
	return data + "," + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a header value against the shared secret, using a
// constant-time comparison, and rejects timestamps outside tolerance.
func Verify(header string, secret []byte, now time.Time, tolerance time.Duration) error {
	parts := strings.SplitN(header, ",", 3)
	if len(parts) != 3 {
		return ErrMalformedHeader
	}

	ts, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	data := parts[0] + "," + parts[1]
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(parts[2])) {
		return ErrBadSignature
	}

	skew := now.Unix() - int64(ts)
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > tolerance {
		return ErrStaleTimestamp
	}
	return nil
}

// Signer stamps outbound requests. Now is swappable for tests.
type Signer struct {
	Secret []byte
	POP    string
	Now    func() time.Time
}

func NewSigner(secret []byte, pop string) *Signer {
	return &Signer{Secret: secret, POP: pop, Now: time.Now}
}

// Header returns a fresh header value for the current time.
func (s *Signer) Header() string {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	return Sign(uint64(now().Unix()), s.POP, s.Secret)
}
