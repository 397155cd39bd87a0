// Package chatclient submits interview turns to the chat endpoint and governs
// resubmission after generation failures.
package chatclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/team-mirai/mirai-gikai-sub000/interview"
)

// maxAutoRetries is the number of silent resubmissions before a failure is
// shown to the respondent.
const maxAutoRetries = 1

var ErrNothingToRetry = errors.New("no failed request to retry")

// Params is one logical chat request
type Params struct {
	BillID  string
	Text    string
	IsRetry bool
}

// Delta is a partial assistant text received while a turn streams
type Delta struct {
	Chunk string `json:"chunk"`
	Text  string `json:"text"`
}

// Turn is the result of a completed chat turn
type Turn struct {
	SessionID        string                    `json:"session_id"`
	Message          *interview.DecodedMessage `json:"message,omitempty"`
	Stage            interview.Stage           `json:"stage"`
	Progress         *interview.ProgressState  `json:"progress"`
	RemainingMinutes *int                      `json:"remaining_minutes"`
	TimeUp           bool                      `json:"time_up"`
	NoOp             bool                      `json:"no_op,omitempty"`
}

// Transport sends one request and reports streamed deltas to onDelta
type Transport interface {
	Send(ctx context.Context, p Params, onDelta func(Delta)) (*Turn, error)
}

// RetryableError is returned once automatic retries are exhausted. The
// request can be resubmitted with Controller.Retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "request failed, try again: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// CanRetry is always true; the type itself marks the failure as retryable.
func (e *RetryableError) CanRetry() bool {
	return true
}

// Controller allows one request in flight at a time and remembers the last
// failed request for a manual retry.
type Controller struct {
	transport Transport
	onDelta   func(Delta)

	mu       sync.Mutex
	failures int
	memo     *Params
}

// NewController creates a controller. onDelta may be nil.
func NewController(transport Transport, onDelta func(Delta)) *Controller {
	if onDelta == nil {
		onDelta = func(Delta) {}
	}
	return &Controller{transport: transport, onDelta: onDelta}
}

// Submit sends p, silently resubmitting it once as a retry when generation
// fails. A second consecutive failure returns a *RetryableError.
func (c *Controller) Submit(ctx context.Context, p Params) (*Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = 0
	c.memo = nil
	return c.send(ctx, p, maxAutoRetries)
}

// Retry resubmits the memoized request of the last failure, marked as a retry
func (c *Controller) Retry(ctx context.Context) (*Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.memo == nil {
		return nil, ErrNothingToRetry
	}
	p := *c.memo
	p.IsRetry = true
	return c.send(ctx, p, 0)
}

// CanRetry reports whether a failed request is waiting for a manual retry
func (c *Controller) CanRetry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memo != nil
}

func (c *Controller) send(ctx context.Context, p Params, autoRetries int) (*Turn, error) {
	for {
		turn, err := c.transport.Send(ctx, p, c.onDelta)
		if err == nil {
			c.failures = 0
			c.memo = nil
			return turn, nil
		}

		if !IsRetryable(err) || ctx.Err() != nil {
			c.failures = 0
			c.memo = nil
			return nil, err
		}

		c.failures++
		memo := p
		memo.IsRetry = false
		c.memo = &memo

		if autoRetries <= 0 {
			slog.Warn("Chat request failed", "bill_id", p.BillID, "failures", c.failures, "error", err)
			return nil, &RetryableError{Err: err}
		}
		autoRetries--
		p.IsRetry = true
		slog.Info("Retrying chat request", "bill_id", p.BillID, "error", err)
	}
}
