// Package middleware provides the concrete units of the request pipeline.
package middleware

import (
	"context"
	"net/http"

	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/plugin"
)

// Unit identifiers, used for chain deduplication and configuration.
const (
	IDAuth         = "auth"
	IDConnectivity = "connectivity"
	IDTimeout      = "timeout"
	IDLogging      = "logging"
	IDCache        = "cache"
	IDRetry        = "retry"
	IDMetrics      = "metrics"
)

// TokenProvider returns the current bearer token, if any. It must have no
// side effects.
type TokenProvider interface {
	CurrentToken() (string, bool)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func() (string, bool)

func (f TokenProviderFunc) CurrentToken() (string, bool) { return f() }

// Auth attaches bearer tokens and converts 401 responses.
type Auth struct {
	tokens         TokenProvider
	onUnauthorized func()
}

var _ plugin.Plugin = (*Auth)(nil)

// NewAuth creates the auth unit. onUnauthorized, if set, runs on every 401.
func NewAuth(tokens TokenProvider, onUnauthorized func()) *Auth {
	return &Auth{tokens: tokens, onUnauthorized: onUnauthorized}
}

func (a *Auth) ID() string { return IDAuth }

// Prepare sets Authorization when the call requires auth and a token exists.
// A missing token is not an error; public endpoints go out anonymously.
func (a *Auth) Prepare(_ context.Context, call *plugin.Call) error {
	if a.tokens == nil || !call.Descriptor.RequiresAuth() {
		return nil
	}
	if token, ok := a.tokens.CurrentToken(); ok && token != "" {
		call.Request.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// Observe maps 401 to unauthorized.
func (a *Auth) Observe(_ context.Context, _ *plugin.Call, resp *httputil.Response) error {
	if resp.StatusCode != http.StatusUnauthorized {
		return nil
	}
	if a.onUnauthorized != nil {
		a.onUnauthorized()
	}
	return apperrors.Unauthorized(resp.Body)
}
