package middleware

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/plugin"
	"github.com/R3E-Network/bankline/pkg/logger"
)

// callClock remembers when the current attempt of each call was sent.
type callClock struct {
	mu     sync.Mutex
	starts map[string]time.Time
}

func newCallClock() *callClock {
	return &callClock{starts: make(map[string]time.Time)}
}

func (c *callClock) start(id string) {
	c.mu.Lock()
	c.starts[id] = time.Now()
	c.mu.Unlock()
}

func (c *callClock) elapsed(id string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.starts[id]; ok {
		return time.Since(t)
	}
	return 0
}

func (c *callClock) forget(id string) {
	c.mu.Lock()
	delete(c.starts, id)
	c.mu.Unlock()
}

// Logging is read-only instrumentation of both phases.
type Logging struct {
	log   *logger.Logger
	clock *callClock
}

var (
	_ plugin.Plugin          = (*Logging)(nil)
	_ plugin.FailureObserver = (*Logging)(nil)
	_ plugin.Finisher        = (*Logging)(nil)
)

func NewLogging(log *logger.Logger) *Logging {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &Logging{log: log, clock: newCallClock()}
}

func (l *Logging) ID() string { return IDLogging }

func (l *Logging) Prepare(ctx context.Context, call *plugin.Call) error {
	l.clock.start(call.ID)
	l.log.WithContext(ctx).WithFields(map[string]interface{}{
		"call_id": call.ID,
		"method":  call.Request.Method,
		"url":     call.Request.URL.Redacted(),
		"attempt": call.Attempt,
	}).Debug("http request")
	return nil
}

func (l *Logging) Observe(ctx context.Context, call *plugin.Call, resp *httputil.Response) error {
	entry := l.log.WithContext(ctx).WithFields(map[string]interface{}{
		"call_id":     call.ID,
		"method":      call.Request.Method,
		"url":         call.Request.URL.Redacted(),
		"status":      resp.StatusCode,
		"attempt":     call.Attempt,
		"bytes":       len(resp.Body),
		"from_cache":  resp.FromCache,
		"duration_ms": l.clock.elapsed(call.ID).Milliseconds(),
	})
	if resp.StatusCode >= 500 {
		entry.Warn("http response")
	} else {
		entry.Debug("http response")
	}
	return nil
}

func (l *Logging) ObserveFailure(ctx context.Context, call *plugin.Call, err error) error {
	l.log.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
		"call_id":     call.ID,
		"method":      call.Request.Method,
		"url":         call.Request.URL.Redacted(),
		"attempt":     call.Attempt,
		"kind":        string(apperrors.KindOf(err)),
		"duration_ms": l.clock.elapsed(call.ID).Milliseconds(),
	}).Warn("http transport failure")
	return nil
}

func (l *Logging) Finish(call *plugin.Call, err error) {
	l.clock.forget(call.ID)
	if err == nil {
		return
	}
	entry := l.log.WithError(err).WithFields(map[string]interface{}{
		"call_id":  call.ID,
		"kind":     string(apperrors.KindOf(err)),
		"attempts": call.Attempt + 1,
	})
	if apperrors.KindOf(err) == apperrors.KindDecoding {
		entry.Error("http call failed")
		return
	}
	entry.Info("http call failed")
}
