package middleware

import (
	"context"

	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/plugin"
)

// Probe reports whether the device currently has connectivity.
type Probe interface {
	IsConnected() bool
}

// Connectivity fails calls fast when the probe reports no connectivity.
type Connectivity struct {
	probe Probe
}

var _ plugin.Plugin = (*Connectivity)(nil)

func NewConnectivity(probe Probe) *Connectivity {
	return &Connectivity{probe: probe}
}

func (c *Connectivity) ID() string { return IDConnectivity }

func (c *Connectivity) Prepare(_ context.Context, _ *plugin.Call) error {
	if c.probe != nil && !c.probe.IsConnected() {
		return apperrors.Offline()
	}
	return nil
}

func (c *Connectivity) Observe(context.Context, *plugin.Call, *httputil.Response) error {
	return nil
}
