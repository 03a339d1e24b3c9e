package domain

import (
	"encoding/json"
	"time"
)

// Event is an immutable application-level occurrence. Deliveries embed it by
// value, so an Event is never persisted independently of its deliveries.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// wireBody is the exact shape signed and sent over the wire for a delivery
// attempt. Field order and names are part of the signature surface.
type wireBody struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// CanonicalBody produces the stable, compact JSON encoding of the event that
// the Signer signs and the HTTP client sends. Callers must use the returned
// bytes verbatim for both signing and transport.
func (e Event) CanonicalBody() ([]byte, error) {
	return json.Marshal(wireBody{
		ID:        e.ID,
		Type:      e.Type,
		Data:      e.Data,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	})
}
