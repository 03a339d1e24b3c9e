// Package inbound verifies webhooks arriving from well-known third parties
// before they reach user-supplied handlers. Every verifier is a pure,
// side-effect-free function: it never panics on malformed input, returning
// false instead.
package inbound

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/hookrelay/engine/internal/signing"
)

// VerifyNative checks this system's own v1 signature scheme: a single
// signature header value "v1=<hex>" and a separate unix-seconds timestamp
// header value, both required by the wire format in spec §4.A/§6. It is a
// thin wrapper over signing.Signer so inbound and outbound verification
// never drift apart.
func VerifyNative(body []byte, signatureHeader, timestampHeader, secret string, tolerance time.Duration) bool {
	return signing.New(tolerance).Verify(body, signatureHeader, timestampHeader, secret) == nil
}

// VerifyStripeStyle checks scheme S: a single header holding comma-separated
// "k=v" elements, e.g. "t=1700000000,v1=abc123,v1=def456". The timestamp is
// the "t" element; any element whose key starts with "v1" is a candidate
// signature. True if the body verifies against any one of them.
func VerifyStripeStyle(body []byte, header, secret string, tolerance time.Duration) bool {
	var timestamp string
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := kv[0], kv[1]
		switch {
		case key == "t":
			timestamp = val
		case strings.HasPrefix(key, "v1"):
			candidates = append(candidates, val)
		}
	}

	if timestamp == "" || len(candidates) == 0 {
		return false
	}
	if !freshTimestamp(timestamp, tolerance) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if constantTimeEqual(candidate, expected) {
			return true
		}
	}
	return false
}

// VerifyGitHubStyle checks scheme G: a single header "sha256=<hex>" covering
// the raw body with no timestamp component.
func VerifyGitHubStyle(body []byte, header, secret string) bool {
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok || hexSig == "" {
		return false
	}
	return hmacHexEqual(hexSig, secret, nil, body)
}

// VerifySlackStyle checks scheme L: a signature header "v0=<hex>" and a
// separate timestamp header, where the signed base string is
// "v0:<timestamp>:<body>".
func VerifySlackStyle(body []byte, signatureHeader, timestampHeader, secret string, tolerance time.Duration) bool {
	hexSig, ok := strings.CutPrefix(signatureHeader, "v0=")
	if !ok || hexSig == "" {
		return false
	}
	if !freshTimestamp(timestampHeader, tolerance) {
		return false
	}

	base := "v0:" + timestampHeader + ":"
	return hmacHexEqual(hexSig, secret, []byte(base), body)
}

func freshTimestamp(value string, tolerance time.Duration) bool {
	ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return false
	}
	delta := time.Now().Unix() - ts
	if delta < 0 {
		delta = -delta
	}
	return delta <= int64(tolerance.Seconds())
}

// hmacHexEqual computes HMAC-SHA-256 over prefix||body and compares it to
// hexSig in constant time.
func hmacHexEqual(hexSig, secret string, prefix, body []byte) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	if len(prefix) > 0 {
		mac.Write(prefix)
	}
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return constantTimeEqual(hexSig, expected)
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
