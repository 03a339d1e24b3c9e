// Package idgen generates opaque, high-entropy identifiers and secrets the
// same way the rest of this codebase does: crypto/rand plus hex encoding,
// never a predictable counter.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// New returns a random identifier of the form "<prefix>_<32 hex chars>".
func New(prefix string) string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("idgen: reading random bytes: %v", err))
	}
	return prefix + "_" + hex.EncodeToString(b[:])
}

// Secret returns a high-entropy shared secret prefixed "whsec_", as
// described in the endpoint data model: generated by the system, never
// accepted from clients.
func Secret() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("idgen: reading random bytes: %v", err))
	}
	return "whsec_" + hex.EncodeToString(b[:])
}
