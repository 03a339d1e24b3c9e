// Package signing implements the outbound signature scheme (v1): HMAC-SHA-256
// over "timestamp.body", hex-encoded and prefixed "v1=".
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/hookrelay/engine/internal/webhookerr"
)

const (
	// Prefix is prepended to every v1 signature value.
	Prefix = "v1="

	// DefaultTolerance is the default allowed clock skew for verification.
	DefaultTolerance = 300 * time.Second
)

// Signer builds and verifies v1 signatures.
type Signer struct {
	tolerance time.Duration
}

// New returns a Signer with the given verification tolerance. A
// non-positive tolerance falls back to DefaultTolerance.
func New(tolerance time.Duration) *Signer {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Signer{tolerance: tolerance}
}

// Sign computes the v1 signature over the exact bytes that will be sent on
// the wire. timestamp must be the unix-seconds string used in the request's
// timestamp header — the same string is required at verification time.
func (s *Signer) Sign(body []byte, timestamp string, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the expected signature and compares it against the
// candidate in constant time, after checking the timestamp is within
// tolerance. It returns a *webhookerr.Error describing the first problem
// found, or nil if the signature is valid.
func (s *Signer) Verify(body []byte, signature, timestamp, secret string) error {
	hexSig, ok := strings.CutPrefix(signature, Prefix)
	if !ok || hexSig == "" {
		return webhookerr.New(webhookerr.MalformedSignature, "signature missing v1= prefix")
	}

	tsUnix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return webhookerr.New(webhookerr.MalformedSignature, "timestamp is not a unix-seconds integer")
	}

	if !withinTolerance(tsUnix, s.tolerance) {
		return webhookerr.New(webhookerr.StaleTimestamp, "timestamp outside verification tolerance")
	}

	expected := strings.TrimPrefix(s.Sign(body, timestamp, secret), Prefix)
	if !ConstantTimeEqual(hexSig, expected) {
		return webhookerr.New(webhookerr.BadSignature, "signature does not match")
	}
	return nil
}

func withinTolerance(tsUnix int64, tolerance time.Duration) bool {
	delta := time.Now().Unix() - tsUnix
	if delta < 0 {
		delta = -delta
	}
	return delta <= int64(tolerance.Seconds())
}

// ConstantTimeEqual compares two strings in time independent of where they
// first differ. Unequal lengths are rejected without a per-byte compare,
// which is the one short-circuit the spec allows.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
