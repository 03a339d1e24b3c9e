package domain

import "time"

// RetryConfig controls how many times a failed delivery is retried and how
// the delay between attempts grows.
type RetryConfig struct {
	MaxRetries        int           `json:"max_retries"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the system-wide default retry policy: 5 retries,
// 1s initial delay, 1h cap, doubling each attempt.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        5,
		InitialDelay:      time.Second,
		MaxDelay:          time.Hour,
		BackoffMultiplier: 2,
	}
}

// Endpoint is a registered webhook subscriber.
type Endpoint struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Secret      string            `json:"secret,omitempty"`
	Events      map[string]bool   `json:"events"`
	Active      bool              `json:"active"`
	Headers     map[string]string `json:"headers,omitempty"`
	RetryConfig *RetryConfig      `json:"retry_config,omitempty"`
	Description string            `json:"description,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// MatchesEvent reports whether this endpoint should receive an event of the
// given type: either it subscribes to "*" or to the exact, case-sensitive
// type string.
func (e *Endpoint) MatchesEvent(eventType string) bool {
	if e.Events["*"] {
		return true
	}
	return e.Events[eventType]
}

// EffectiveRetryConfig returns the endpoint's retry override if set, else
// fallback (typically the operator-configured system default).
func (e *Endpoint) EffectiveRetryConfig(fallback RetryConfig) RetryConfig {
	if e.RetryConfig != nil {
		return *e.RetryConfig
	}
	return fallback
}

// Clone returns a deep copy so callers can mutate the result without
// disturbing store-internal state.
func (e *Endpoint) Clone() *Endpoint {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Events != nil {
		cp.Events = make(map[string]bool, len(e.Events))
		for k, v := range e.Events {
			cp.Events[k] = v
		}
	}
	if e.Headers != nil {
		cp.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			cp.Headers[k] = v
		}
	}
	if e.RetryConfig != nil {
		rc := *e.RetryConfig
		cp.RetryConfig = &rc
	}
	return &cp
}

// EventSet builds the Events map from a slice of event type strings.
func EventSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

// EventSlice returns the endpoint's subscribed event types as a sorted-free
// slice, for JSON responses that prefer arrays over maps.
func (e *Endpoint) EventSlice() []string {
	out := make([]string, 0, len(e.Events))
	for t := range e.Events {
		out = append(out, t)
	}
	return out
}
