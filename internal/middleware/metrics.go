package middleware

import (
	"context"

	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/metrics"
	"github.com/R3E-Network/bankline/internal/plugin"
)

// Metrics records exchanges into Prometheus collectors.
type Metrics struct {
	m     *metrics.Metrics
	clock *callClock
}

var (
	_ plugin.Plugin          = (*Metrics)(nil)
	_ plugin.FailureObserver = (*Metrics)(nil)
	_ plugin.Finisher        = (*Metrics)(nil)
)

func NewMetrics(m *metrics.Metrics) *Metrics {
	return &Metrics{m: m, clock: newCallClock()}
}

func (mw *Metrics) ID() string { return IDMetrics }

func (mw *Metrics) Prepare(_ context.Context, call *plugin.Call) error {
	mw.clock.start(call.ID)
	return nil
}

func (mw *Metrics) Observe(_ context.Context, call *plugin.Call, resp *httputil.Response) error {
	if resp.FromCache {
		mw.m.RecordCacheHit()
	}
	mw.m.RecordRequest(call.Request.Method, resp.StatusCode, mw.clock.elapsed(call.ID))
	return nil
}

func (mw *Metrics) ObserveFailure(_ context.Context, _ *plugin.Call, err error) error {
	mw.m.RecordTransportError(string(apperrors.KindOf(err)))
	return nil
}

func (mw *Metrics) Finish(call *plugin.Call, _ error) {
	mw.clock.forget(call.ID)
	for i := 0; i < call.Attempt; i++ {
		mw.m.RecordRetry(call.Request.Method)
	}
}
