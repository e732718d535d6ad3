package middleware

import (
	"github.com/R3E-Network/bankline/internal/metrics"
	"github.com/R3E-Network/bankline/internal/plugin"
	"github.com/R3E-Network/bankline/pkg/logger"
)

// Options selects and configures the default units.
type Options struct {
	Probe          Probe
	Tokens         TokenProvider
	OnUnauthorized func()
	Log            *logger.Logger
	Metrics        *metrics.Metrics

	// Cache is nil to disable response caching.
	Cache *Cache
	Retry RetryPolicy
	// DisableRetry leaves the retry unit out of the chain.
	DisableRetry bool
}

// DefaultChain builds the standard chain: connectivity, logging, auth,
// timeout, cache, metrics, retry. extra units are appended afterwards; units
// whose ID is already present are dropped.
func DefaultChain(opts Options, extra ...plugin.Plugin) *plugin.Chain {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("http")
	}

	units := []plugin.Plugin{
		NewConnectivity(opts.Probe),
		NewLogging(log),
		NewAuth(opts.Tokens, opts.OnUnauthorized),
		NewTimeout(),
	}
	if opts.Cache != nil {
		units = append(units, opts.Cache)
	}
	units = append(units, NewMetrics(opts.Metrics))
	if !opts.DisableRetry {
		policy := opts.Retry
		if policy.MaxRetries == 0 && policy.BaseDelay == 0 {
			policy = DefaultRetryPolicy()
		}
		units = append(units, NewRetry(policy, WithRetryLogger(log.Named("retry"))))
	}
	units = append(units, extra...)
	return plugin.NewChain(log, units...)
}
