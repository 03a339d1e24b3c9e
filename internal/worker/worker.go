// Package worker executes individual delivery attempts: sign, POST, classify
// the outcome, and either finalize the delivery or hand it back to the
// Scheduler for another try.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hookrelay/engine/internal/domain"
	"github.com/hookrelay/engine/internal/live"
	"github.com/hookrelay/engine/internal/resilience"
	"github.com/hookrelay/engine/internal/scheduler"
	"github.com/hookrelay/engine/internal/signing"
	"github.com/hookrelay/engine/internal/store"
	"github.com/hookrelay/engine/internal/webhookerr"
)

// maxResponseBodyBytes caps how much of an endpoint's response body is kept
// alongside the delivery record.
const maxResponseBodyBytes = 4 * 1024

var reservedHeaders = map[string]bool{
	"content-type": true,
	"user-agent":   true,
}

// Config controls the HTTP and signing behavior shared by every attempt.
type Config struct {
	SignatureHeader    string
	TimestampHeader    string
	DeliveryIDHeader   string
	UserAgent          string
	Timeout            time.Duration
	MaxPayloadSize     int64
	AllowRedirects     bool
	SignatureTolerance time.Duration
	DefaultRetryConfig domain.RetryConfig
}

// DefaultConfig returns the system defaults used when the operator doesn't
// override them.
func DefaultConfig() Config {
	return Config{
		SignatureHeader:    "X-Webhook-Signature",
		TimestampHeader:    "X-Webhook-Timestamp",
		DeliveryIDHeader:   "X-Webhook-Delivery-Id",
		UserAgent:          "Webhook-Service/1.0",
		Timeout:            30 * time.Second,
		MaxPayloadSize:     1024 * 1024,
		AllowRedirects:     false,
		SignatureTolerance: signing.DefaultTolerance,
		DefaultRetryConfig: domain.DefaultRetryConfig(),
	}
}

// Worker is the Handler the Scheduler invokes per delivery id; it implements
// the full attempt lifecycle described by the engine's state machine.
type Worker struct {
	store     store.Store
	scheduler scheduler.Scheduler
	signer    *signing.Signer
	http      *http.Client
	cfg       Config
	logger    *slog.Logger
	hub       *live.Hub

	breaker   *resilience.CircuitBreaker
	limiter   *resilience.RateLimiter
	rateLimit int
}

// New creates a Worker. SetHub may be called afterward to wire live
// broadcasting; a nil hub is a no-op.
func New(st store.Store, sch scheduler.Scheduler, cfg Config, logger *slog.Logger) *Worker {
	client := &http.Client{Timeout: cfg.Timeout}
	if !cfg.AllowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Worker{
		store:     st,
		scheduler: sch,
		signer:    signing.New(cfg.SignatureTolerance),
		http:      client,
		cfg:       cfg,
		logger:    logger,
	}
}

// SetHub wires a live hub for broadcasting delivery state transitions. Must
// be called before Start-ing the scheduler if live updates are wanted.
func (w *Worker) SetHub(hub *live.Hub) {
	w.hub = hub
}

// SetCircuitBreaker wires a per-endpoint circuit breaker. A nil breaker (the
// default) disables the check entirely.
func (w *Worker) SetCircuitBreaker(cb *resilience.CircuitBreaker) {
	w.breaker = cb
}

// SetRateLimiter wires a per-endpoint rate limiter, capping attempts to
// perSecond requests per endpoint. perSecond <= 0 disables the limiter.
func (w *Worker) SetRateLimiter(rl *resilience.RateLimiter, perSecond int) {
	w.limiter = rl
	w.rateLimit = perSecond
}

// Handler returns this Worker's Attempt method as a scheduler.Handler.
func (w *Worker) Handler() scheduler.Handler {
	return w.Attempt
}

// Attempt executes a single delivery attempt for deliveryID: load state,
// build and sign the request, execute it, classify the result, and either
// finalize or reschedule.
func (w *Worker) Attempt(ctx context.Context, deliveryID string) error {
	delivery, err := w.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return fmt.Errorf("loading delivery %s: %w", deliveryID, err)
	}
	if delivery == nil || delivery.Terminal() {
		return nil
	}

	endpoint, err := w.store.GetEndpoint(ctx, delivery.EndpointID)
	if err != nil {
		return fmt.Errorf("loading endpoint %s: %w", delivery.EndpointID, err)
	}
	if endpoint == nil || !endpoint.Active {
		return w.finalize(ctx, delivery, nil, 0, webhookerr.New(webhookerr.EndpointGone, "endpoint missing or inactive"))
	}

	if w.breaker != nil {
		if state, allowed := w.breaker.AllowRequest(ctx, endpoint.ID); !allowed {
			return w.handleOutcome(ctx, delivery, endpoint, nil, 0, webhookerr.New(webhookerr.CircuitOpen, fmt.Sprintf("circuit breaker is %s for endpoint %s", state, endpoint.ID)))
		}
	}
	if w.limiter != nil && w.rateLimit > 0 {
		if !w.limiter.Allow(ctx, endpoint.ID, w.rateLimit) {
			return w.handleOutcome(ctx, delivery, endpoint, nil, 0, webhookerr.New(webhookerr.RateLimited, fmt.Sprintf("rate limit exceeded for endpoint %s", endpoint.ID)))
		}
	}

	body, err := delivery.Event.CanonicalBody()
	if err != nil {
		return w.finalize(ctx, delivery, nil, 0, webhookerr.Wrap(webhookerr.HTTPClientError, "encoding event body", err))
	}
	if w.cfg.MaxPayloadSize > 0 && int64(len(body)) > w.cfg.MaxPayloadSize {
		return w.finalize(ctx, delivery, nil, 0, webhookerr.New(webhookerr.PayloadTooLarge, fmt.Sprintf("payload %d bytes exceeds limit %d", len(body), w.cfg.MaxPayloadSize)))
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := w.signer.Sign(body, timestamp, endpoint.Secret)

	req, err := w.buildRequest(ctx, endpoint, delivery, body, signature, timestamp)
	if err != nil {
		return w.finalize(ctx, delivery, nil, 0, webhookerr.Wrap(webhookerr.HTTPClientError, "building request", err))
	}

	now := time.Now().UTC()
	delivery.Attempts++
	delivery.LastAttemptAt = &now
	delivery.Status = domain.StatusPending
	delivery.NextRetryAt = nil
	if err := w.store.UpdateDelivery(ctx, delivery); err != nil {
		return fmt.Errorf("recording attempt start for %s: %w", deliveryID, err)
	}

	start := time.Now()
	resp, doErr := w.http.Do(req)
	duration := time.Since(start)

	if doErr != nil {
		if w.breaker != nil {
			w.breaker.RecordFailure(ctx, endpoint.ID)
		}
		return w.handleOutcome(ctx, delivery, endpoint, nil, duration, classifyTransportError(doErr))
	}
	defer resp.Body.Close()

	respSnapshot, classifyErr := classifyResponse(resp)
	if w.breaker != nil {
		if classifyErr == nil {
			w.breaker.RecordSuccess(ctx, endpoint.ID)
		} else {
			w.breaker.RecordFailure(ctx, endpoint.ID)
		}
	}
	return w.handleOutcome(ctx, delivery, endpoint, respSnapshot, duration, classifyErr)
}

func (w *Worker) buildRequest(ctx context.Context, ep *domain.Endpoint, d *domain.Delivery, body []byte, signature, timestamp string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(w.cfg.SignatureHeader, signature)
	req.Header.Set(w.cfg.TimestampHeader, timestamp)
	req.Header.Set(w.cfg.DeliveryIDHeader, d.ID)
	req.Header.Set("User-Agent", w.cfg.UserAgent)

	for k, v := range ep.Headers {
		if reservedHeaders[strings.ToLower(k)] || strings.EqualFold(k, w.cfg.SignatureHeader) ||
			strings.EqualFold(k, w.cfg.TimestampHeader) || strings.EqualFold(k, w.cfg.DeliveryIDHeader) {
			continue
		}
		req.Header.Set(k, v)
	}

	return req, nil
}

// handleOutcome applies the classified result to the delivery: success
// finalizes as delivered, a retryable failure either reschedules or
// exhausts into failed, and a non-retryable failure finalizes immediately.
func (w *Worker) handleOutcome(ctx context.Context, d *domain.Delivery, ep *domain.Endpoint, resp *domain.Response, duration time.Duration, classifyErr error) error {
	d.DurationMs = duration.Milliseconds()
	d.Response = resp

	if classifyErr == nil {
		return w.finalize(ctx, d, resp, duration, nil)
	}

	var wErr *webhookerr.Error
	if !errors.As(classifyErr, &wErr) {
		wErr = webhookerr.Wrap(webhookerr.NetworkError, "unclassified delivery error", classifyErr)
	}

	if !wErr.Kind.Retryable() {
		return w.finalize(ctx, d, resp, duration, wErr)
	}

	retryCfg := ep.EffectiveRetryConfig(w.cfg.DefaultRetryConfig)
	if d.Attempts > retryCfg.MaxRetries {
		return w.finalize(ctx, d, resp, duration, wErr)
	}

	delay := backoffDelay(retryCfg, d.Attempts)
	next := time.Now().UTC().Add(delay)
	d.Status = domain.StatusRetrying
	d.Error = wErr.Error()
	d.NextRetryAt = &next

	if err := w.store.UpdateDelivery(ctx, d); err != nil {
		return fmt.Errorf("recording retry schedule for %s: %w", d.ID, err)
	}

	w.broadcast(d, "retrying", wErr.Error())

	if err := w.scheduler.EnqueueAfter(ctx, d.ID, delay); err != nil {
		return fmt.Errorf("scheduling retry for %s: %w", d.ID, err)
	}
	return nil
}

// finalize transitions a delivery to a terminal state (delivered or failed).
func (w *Worker) finalize(ctx context.Context, d *domain.Delivery, resp *domain.Response, duration time.Duration, classifyErr error) error {
	d.Response = resp
	if duration > 0 {
		d.DurationMs = duration.Milliseconds()
	}
	d.NextRetryAt = nil

	if classifyErr == nil {
		d.Status = domain.StatusDelivered
		d.Error = ""
		if err := w.store.UpdateDelivery(ctx, d); err != nil {
			return fmt.Errorf("recording delivered state for %s: %w", d.ID, err)
		}
		w.broadcast(d, "delivered", "")
		return nil
	}

	d.Status = domain.StatusFailed
	d.Error = classifyErr.Error()
	if err := w.store.UpdateDelivery(ctx, d); err != nil {
		return fmt.Errorf("recording failed state for %s: %w", d.ID, err)
	}
	w.broadcast(d, "failed", d.Error)
	return nil
}

func (w *Worker) broadcast(d *domain.Delivery, eventType, errMsg string) {
	if w.hub == nil {
		return
	}
	var statusCode *int
	if d.Response != nil {
		sc := d.Response.StatusCode
		statusCode = &sc
	}
	w.hub.Broadcast(live.DeliveryEvent{
		Type:       eventType,
		DeliveryID: d.ID,
		EndpointID: d.EndpointID,
		EventID:    d.EventID,
		EventType:  d.Event.Type,
		Attempt:    d.Attempts,
		StatusCode: statusCode,
		DurationMs: d.DurationMs,
		Error:      errMsg,
		Timestamp:  time.Now().UTC(),
	})
}

// RetryDelivery forces an immediate retry of a delivery that is not already
// delivered, resetting its attempt counter. It reports false with no error
// when the delivery is already in a successful terminal state (a no-op,
// not a failure).
func (w *Worker) RetryDelivery(ctx context.Context, deliveryID string) (bool, error) {
	d, err := w.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return false, fmt.Errorf("loading delivery %s: %w", deliveryID, err)
	}
	if d == nil {
		return false, store.ErrNotFound
	}
	if d.Status == domain.StatusDelivered {
		return false, nil
	}

	d.Attempts = 0
	d.Status = domain.StatusPending
	d.Error = ""
	d.NextRetryAt = nil
	if err := w.store.UpdateDelivery(ctx, d); err != nil {
		return false, fmt.Errorf("resetting delivery %s for retry: %w", deliveryID, err)
	}

	if err := w.scheduler.Enqueue(ctx, deliveryID); err != nil {
		return false, fmt.Errorf("re-enqueueing delivery %s: %w", deliveryID, err)
	}
	return true, nil
}

// backoffDelay computes min(initialDelay * multiplier^(attempts-1), maxDelay).
func backoffDelay(cfg domain.RetryConfig, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempts-1))
	if delay > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(delay)
}

func classifyResponse(resp *http.Response) (*domain.Response, error) {
	limited := io.LimitReader(resp.Body, maxResponseBodyBytes)
	raw, _ := io.ReadAll(limited)

	snapshot := &domain.Response{
		StatusCode: resp.StatusCode,
		Body:       string(raw),
		Headers:    map[string][]string(resp.Header),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return snapshot, nil
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return snapshot, webhookerr.New(webhookerr.UnexpectedRedirect, fmt.Sprintf("unexpected redirect: %d", resp.StatusCode))
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return snapshot, webhookerr.New(webhookerr.HTTPServerError, fmt.Sprintf("retryable client status: %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return snapshot, webhookerr.New(webhookerr.HTTPClientError, fmt.Sprintf("client error status: %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return snapshot, webhookerr.New(webhookerr.HTTPServerError, fmt.Sprintf("server error status: %d", resp.StatusCode))
	default:
		return snapshot, nil
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return webhookerr.Wrap(webhookerr.Timeout, "request timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return webhookerr.Wrap(webhookerr.Timeout, "request timed out", err)
	}
	return webhookerr.Wrap(webhookerr.NetworkError, "network error", err)
}
