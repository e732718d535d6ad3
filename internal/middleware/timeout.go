package middleware

import (
	"context"

	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/plugin"
)

// Timeout copies the descriptor timeout onto the transport request.
type Timeout struct{}

var _ plugin.Plugin = Timeout{}

func NewTimeout() Timeout { return Timeout{} }

func (Timeout) ID() string { return IDTimeout }

func (Timeout) Prepare(_ context.Context, call *plugin.Call) error {
	call.Request.Timeout = call.Descriptor.Timeout()
	return nil
}

func (Timeout) Observe(context.Context, *plugin.Call, *httputil.Response) error { return nil }
