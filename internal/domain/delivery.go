package domain

import "time"

// Status is the lifecycle state of a Delivery.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRetrying  Status = "retrying"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Response captures the outcome of the most recent HTTP attempt.
type Response struct {
	StatusCode int                 `json:"status_code"`
	Body       string              `json:"body"`
	Headers    map[string][]string `json:"headers,omitempty"`
}

// Delivery is the record of all attempts to push one Event to one Endpoint.
type Delivery struct {
	ID            string     `json:"id"`
	EndpointID    string     `json:"endpoint_id"`
	EventID       string     `json:"event_id"`
	Event         Event      `json:"event"`
	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	Response      *Response  `json:"response,omitempty"`
	Error         string     `json:"error,omitempty"`
	DurationMs    int64      `json:"duration_ms,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Terminal reports whether the delivery has reached a final state that no
// longer accepts automatic attempts.
func (d *Delivery) Terminal() bool {
	return d.Status == StatusDelivered || d.Status == StatusFailed
}

// IdempotencyKey identifies one event-to-endpoint delivery lineage, stable
// across retries, so a subscriber can dedupe repeated attempts.
func (d *Delivery) IdempotencyKey() string {
	return d.EndpointID + ":" + d.EventID
}

// Clone returns a deep copy so callers can mutate the result without
// disturbing store-internal state.
func (d *Delivery) Clone() *Delivery {
	if d == nil {
		return nil
	}
	cp := *d
	if d.LastAttemptAt != nil {
		t := *d.LastAttemptAt
		cp.LastAttemptAt = &t
	}
	if d.NextRetryAt != nil {
		t := *d.NextRetryAt
		cp.NextRetryAt = &t
	}
	if d.Response != nil {
		r := *d.Response
		if d.Response.Headers != nil {
			r.Headers = make(map[string][]string, len(d.Response.Headers))
			for k, v := range d.Response.Headers {
				vv := make([]string, len(v))
				copy(vv, v)
				r.Headers[k] = vv
			}
		}
		cp.Response = &r
	}
	if d.Event.Data != nil {
		data := make([]byte, len(d.Event.Data))
		copy(data, d.Event.Data)
		cp.Event.Data = data
	}
	return &cp
}
