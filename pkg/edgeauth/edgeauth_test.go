package edgeauth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

// TestSignVerifyRoundTrip verifies a freshly signed header validates.
func TestSignVerifyRoundTrip(t *testing.T) {
	now := time.Unix(1717243200, 0)
	header := Sign(uint64(now.Unix()), "IAD", secret)

	parts := strings.Split(header, ",")
	require.Len(t, parts, 3)
	assert.Equal(t, "1717243200", parts[0])
	assert.Equal(t, "IAD", parts[1])
	assert.Len(t, parts[2], 64, "hex sha256")

	assert.NoError(t, Verify(header, secret, now, DefaultTolerance))
}

// TestVerifyRejectsTampering covers signature, payload, and secret
// mismatches.
func TestVerifyRejectsTampering(t *testing.T) {
	now := time.Unix(1717243200, 0)
	header := Sign(uint64(now.Unix()), "IAD", secret)

	// Flip the POP after signing.
	tampered := strings.Replace(header, "IAD", "LHR", 1)
	assert.ErrorIs(t, Verify(tampered, secret, now, DefaultTolerance), ErrBadSignature)

	// Wrong shared secret.
	assert.ErrorIs(t, Verify(header, []byte("wrong-secret"), now, DefaultTolerance), ErrBadSignature)

	// Corrupted signature bytes.
	corrupt := header[:len(header)-4] + "0000"
	assert.ErrorIs(t, Verify(corrupt, secret, now, DefaultTolerance), ErrBadSignature)
}

// TestVerifyTolerance checks the replay window on both sides.
func TestVerifyTolerance(t *testing.T) {
	now := time.Unix(1717243200, 0)
	header := Sign(uint64(now.Unix()), "IAD", secret)

	assert.NoError(t, Verify(header, secret, now.Add(5*time.Second), DefaultTolerance))
	assert.ErrorIs(t, Verify(header, secret, now.Add(6*time.Second), DefaultTolerance), ErrStaleTimestamp)

	// Clock skew in the other direction counts the same way.
	assert.NoError(t, Verify(header, secret, now.Add(-5*time.Second), DefaultTolerance))
	assert.ErrorIs(t, Verify(header, secret, now.Add(-6*time.Second), DefaultTolerance), ErrStaleTimestamp)

	// A tighter deployment-specific tolerance applies as given.
	assert.ErrorIs(t, Verify(header, secret, now.Add(3*time.Second), 2*time.Second), ErrStaleTimestamp)
}

// TestVerifyMalformed covers headers that fail to parse at all.
func TestVerifyMalformed(t *testing.T) {
	now := time.Now()
	for _, header := range []string{
		"",
		"1717243200",
		"1717243200,IAD",
		"notanumber,IAD,deadbeef",
	} {
		assert.ErrorIs(t, Verify(header, secret, now, DefaultTolerance), ErrMalformedHeader, "header %q", header)
	}
}

// TestSigner verifies the stamping helper uses its injected clock.
func TestSigner(t *testing.T) {
	fixed := time.Unix(1717243200, 0)
	s := NewSigner(secret, "IAD")
	s.Now = func() time.Time { return fixed }

	header := s.Header()
	assert.Equal(t, Sign(1717243200, "IAD", secret), header)
	assert.NoError(t, Verify(header, secret, fixed, DefaultTolerance))
}
