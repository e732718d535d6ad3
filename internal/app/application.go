// Package app is the composition root: it turns a config.Config into a wired
// bank client with its background services.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/R3E-Network/bankline/internal/app/system"
	"github.com/R3E-Network/bankline/internal/bankapi"
	"github.com/R3E-Network/bankline/internal/config"
	"github.com/R3E-Network/bankline/internal/connectivity"
	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/metrics"
	"github.com/R3E-Network/bankline/internal/middleware"
	"github.com/R3E-Network/bankline/internal/pipeline"
	"github.com/R3E-Network/bankline/internal/repository"
	"github.com/R3E-Network/bankline/internal/session"
	"github.com/R3E-Network/bankline/internal/storage"
	"github.com/R3E-Network/bankline/internal/syncer"
	"github.com/R3E-Network/bankline/pkg/logger"
)

// Option customises New.
type Option func(*options)

type options struct {
	log       *logger.Logger
	transport httputil.Transport
	cache     storage.Cache
	registry  *prometheus.Registry
}

// WithLogger sets the root logger.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithTransport replaces the HTTP transport.
func WithTransport(t httputil.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithCache supplies the entity cache instead of opening the configured backend.
func WithCache(c storage.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// Application holds the wired components.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	closers []func() error

	Config        *config.Config
	Registry      *prometheus.Registry
	Metrics       *metrics.Metrics
	Cache         storage.Cache
	ResponseCache *middleware.Cache
	Executor      *pipeline.Executor
	Client        *bankapi.Client
	Repository    *repository.Reconciler
	Monitor       *connectivity.Monitor
	Session       *session.Manager
	Syncer        *syncer.Syncer
}

// New builds the application. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.New("app", logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	log := o.log

	a := &Application{
		manager:  system.NewManager(),
		log:      log,
		Config:   cfg,
		Registry: o.registry,
		Metrics:  metrics.New(o.registry),
	}

	a.Cache = o.cache
	if a.Cache == nil {
		cache, closer, err := openCache(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("configure storage: %w", err)
		}
		a.Cache = cache
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	transport := o.transport
	if transport == nil {
		transport = httputil.NewHTTPTransport(httputil.HTTPTransportConfig{
			Client: &http.Client{Timeout: cfg.API.Timeout},
		})
	}

	a.Session = session.New(session.Config{
		Token: cfg.API.Token,
		Cache: a.Cache,
		Log:   log.Named("session"),
	})

	check, err := connectivity.HTTPCheck(transport, cfg.CheckURL(), 0)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Monitor = connectivity.New(connectivity.Config{
		Check:    check,
		Interval: cfg.Connectivity.Interval,
		Initial:  true,
		Log:      log.Named("connectivity"),
	})

	if cfg.Cache.Enabled {
		a.ResponseCache, err = middleware.NewCache(middleware.CacheConfig{
			MaxCostBytes: cfg.Cache.MaxBytes,
			TTL:          cfg.Cache.TTL,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() error { a.ResponseCache.Close(); return nil })
	}

	a.Executor, err = pipeline.New(pipeline.Config{
		BaseURL:   cfg.API.BaseURL,
		Transport: transport,
		Chain: middleware.DefaultChain(middleware.Options{
			Probe:          a.Monitor,
			Tokens:         a.Session,
			OnUnauthorized: a.Session.Expire,
			Log:            log.Named("http"),
			Metrics:        a.Metrics,
			Cache:          a.ResponseCache,
			Retry:          retryPolicy(cfg.Retry),
			DisableRetry:   cfg.Retry.MaxRetries == 0,
		}),
		Log: log.Named("pipeline"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Client = bankapi.NewClient(a.Executor)

	a.Repository, err = repository.New(repository.Config{
		Cache:       a.Cache,
		Remote:      a.Client,
		Log:         log.Named("repository"),
		Metrics:     a.Metrics,
		MaxAttempts: cfg.Sync.MaxAttempts,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Syncer, err = syncer.New(syncer.Config{
		Target:   a.Repository,
		Schedule: cfg.Sync.Schedule,
		Notifier: a.Monitor,
		Log:      log.Named("syncer"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	services := []system.Service{a.Session, a.Monitor, a.Syncer}
	if cfg.Metrics.Addr != "" {
		services = append(services, newMetricsServer(cfg.Metrics.Addr, a.MetricsHandler(), log.Named("metrics")))
	}
	for _, svc := range services {
		if err := a.manager.Register(svc); err != nil {
			a.Close()
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}
	return a, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Close releases storage connections and the response cache.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close resource")
		}
	}
	a.closers = nil
}

// MetricsHandler serves the application's Prometheus registry.
func (a *Application) MetricsHandler() http.Handler {
	return metrics.Handler(a.Registry)
}

func retryPolicy(cfg config.RetryConfig) middleware.RetryPolicy {
	return middleware.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		Multiplier: cfg.Multiplier,
		MaxDelay:   cfg.MaxDelay,
		Scope:      middleware.RetryScope(strings.ToLower(cfg.Scope)),
	}
}
