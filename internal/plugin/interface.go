// Package plugin defines the two-phase middleware contract of the request
// pipeline. Every unit prepares the outgoing request and observes the
// completed response; the executor runs units in registration order.
package plugin

import (
	"context"
	"errors"

	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/request"
)

// ErrRetry is returned from Observe or ObserveFailure to ask the executor to
// resubmit the whole prepare, send, observe cycle.
var ErrRetry = errors.New("plugin: retry requested")

// Call is the per-call pipeline context: the mutable outgoing request plus
// the attempt counter. It is owned by the executor for one logical call,
// including retries.
type Call struct {
	// ID is unique per logical call and stays constant across retries.
	ID         string
	Descriptor request.Descriptor
	Request    *httputil.Request
	// Attempt is zero for the first send.
	Attempt int
}

// Plugin is a middleware unit. Units must not assume a position in the chain.
type Plugin interface {
	// ID is stable per unit kind and used for chain deduplication.
	ID() string
	// Prepare may mutate call.Request. A non-nil error aborts the call before
	// any transport send.
	Prepare(ctx context.Context, call *Call) error
	// Observe inspects a completed response. It may convert it into a typed
	// failure or return ErrRetry.
	Observe(ctx context.Context, call *Call, resp *httputil.Response) error
}

// FailureObserver is implemented by units that react to transport failures,
// for which Observe is not called.
type FailureObserver interface {
	ObserveFailure(ctx context.Context, call *Call, err error) error
}

// Responder is implemented by units that can satisfy a call without a
// transport send.
type Responder interface {
	Respond(ctx context.Context, call *Call) (*httputil.Response, bool)
}

// Finisher is implemented by units holding per-call state. Finish runs once
// when the logical call ends, with its final error.
type Finisher interface {
	Finish(call *Call, err error)
}

// Info describes a registered unit for diagnostics.
type Info struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}
