package middleware

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/plugin"
	"github.com/R3E-Network/bankline/pkg/logger"
)

// RetryScope selects how attempt budgets are keyed.
type RetryScope string

const (
	// RetryScopeCall gives every logical call its own budget.
	RetryScopeCall RetryScope = "call"
	// RetryScopeRequest shares a budget between calls with the same method,
	// URL and body hash.
	RetryScopeRequest RetryScope = "request"
)

// RetryPolicy configures retry behaviour.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Scope      RetryScope
}

// DefaultRetryPolicy returns 3 retries, 1s base delay doubling up to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2.0,
		MaxDelay:   10 * time.Second,
		Scope:      RetryScopeCall,
	}
}

// Delay returns min(MaxDelay, BaseDelay * Multiplier^attempt).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retry resubmits calls that fail with a retryable error under exponential backoff.
type Retry struct {
	policy RetryPolicy
	sleep  SleepFunc
	log    *logger.Logger

	mu       sync.Mutex
	attempts map[string]int
}

var (
	_ plugin.Plugin          = (*Retry)(nil)
	_ plugin.FailureObserver = (*Retry)(nil)
	_ plugin.Finisher        = (*Retry)(nil)
)

// RetryOption customises a Retry unit.
type RetryOption func(*Retry)

// WithSleep replaces the backoff sleep.
func WithSleep(fn SleepFunc) RetryOption {
	return func(r *Retry) { r.sleep = fn }
}

// WithRetryLogger sets the logger.
func WithRetryLogger(log *logger.Logger) RetryOption {
	return func(r *Retry) { r.log = log }
}

func NewRetry(policy RetryPolicy, opts ...RetryOption) *Retry {
	if policy.Multiplier <= 0 {
		policy.Multiplier = 1
	}
	if policy.Scope == "" {
		policy.Scope = RetryScopeCall
	}
	r := &Retry{
		policy:   policy,
		sleep:    sleepContext,
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.NewDefault("retry")
	}
	return r
}

func (r *Retry) ID() string { return IDRetry }

// Policy returns the configured policy.
func (r *Retry) Policy() RetryPolicy { return r.policy }

func (r *Retry) Prepare(context.Context, *plugin.Call) error { return nil }

// Observe retries 5xx responses while budget remains. Other responses reset
// the budget and pass through.
func (r *Retry) Observe(ctx context.Context, call *plugin.Call, resp *httputil.Response) error {
	if resp.StatusCode >= 500 {
		return r.retry(ctx, call, apperrors.HTTPError(resp.StatusCode, resp.Body))
	}
	r.reset(call)
	return nil
}

// ObserveFailure retries retryable transport failures while budget remains.
func (r *Retry) ObserveFailure(ctx context.Context, call *plugin.Call, err error) error {
	if !apperrors.IsRetryable(err) {
		r.reset(call)
		return nil
	}
	return r.retry(ctx, call, err)
}

// Finish clears the call's budget.
func (r *Retry) Finish(call *plugin.Call, _ error) {
	r.reset(call)
}

func (r *Retry) retry(ctx context.Context, call *plugin.Call, cause error) error {
	key := r.key(call)

	r.mu.Lock()
	attempt := r.attempts[key]
	if attempt >= r.policy.MaxRetries {
		delete(r.attempts, key)
		r.mu.Unlock()
		return nil
	}
	if err := ctx.Err(); err != nil {
		delete(r.attempts, key)
		r.mu.Unlock()
		return err
	}
	r.attempts[key] = attempt + 1
	r.mu.Unlock()

	delay := r.policy.Delay(attempt)
	r.log.WithError(cause).WithFields(map[string]interface{}{
		"call_id":  call.ID,
		"attempt":  attempt + 1,
		"max":      r.policy.MaxRetries,
		"delay_ms": delay.Milliseconds(),
	}).Info("retrying request")

	if err := r.sleep(ctx, delay); err != nil {
		r.reset(call)
		return err
	}
	return plugin.ErrRetry
}

func (r *Retry) reset(call *plugin.Call) {
	key := r.key(call)
	r.mu.Lock()
	delete(r.attempts, key)
	r.mu.Unlock()
}

// pending reports the number of keys holding budget state.
func (r *Retry) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

// key falls back to the call id when no request was built, which happens
// when the context is done before the first attempt.
func (r *Retry) key(call *plugin.Call) string {
	if r.policy.Scope == RetryScopeRequest && call.Request != nil {
		return call.Request.Method + " " + call.Request.URL.String() + "#" +
			strconv.FormatUint(xxhash.Sum64(call.Request.Body), 16)
	}
	return call.ID
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
