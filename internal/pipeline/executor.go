// Package pipeline executes request descriptors through the middleware chain
// and the transport, and decodes the final response.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/internal/plugin"
	"github.com/R3E-Network/bankline/internal/request"
	"github.com/R3E-Network/bankline/pkg/logger"
)

// Doer executes a descriptor and decodes the result into out.
type Doer interface {
	Execute(ctx context.Context, d request.Descriptor, out any) error
	Upload(ctx context.Context, d request.Descriptor, data []byte, contentType string, out any) error
}

// Config configures an Executor.
type Config struct {
	BaseURL   string
	Transport httputil.Transport
	Chain     *plugin.Chain
	Log       *logger.Logger
}

// Executor runs prepare, send and observe for every logical call.
type Executor struct {
	baseURL   string
	transport httputil.Transport
	chain     *plugin.Chain
	log       *logger.Logger
}

var _ Doer = (*Executor)(nil)

// New creates an executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("pipeline: transport is required")
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("pipeline")
	}
	chain := cfg.Chain
	if chain == nil {
		chain = plugin.NewChain(log)
	}
	return &Executor{
		baseURL:   cfg.BaseURL,
		transport: cfg.Transport,
		chain:     chain,
		log:       log,
	}, nil
}

// Chain returns the executor's middleware chain.
func (e *Executor) Chain() *plugin.Chain { return e.chain }

// Execute runs d and decodes a 2xx body into out. out may be nil.
func (e *Executor) Execute(ctx context.Context, d request.Descriptor, out any) error {
	_, err := e.Do(ctx, d, out)
	return err
}

// Upload posts raw bytes with contentType in place of the descriptor body,
// then runs the same pipeline.
func (e *Executor) Upload(ctx context.Context, d request.Descriptor, data []byte, contentType string, out any) error {
	d = d.WithMethod(request.POST).
		WithHeader("Content-Type", contentType).
		WithBody(request.Encoded(data, contentType))
	_, err := e.Do(ctx, d, out)
	return err
}

// Do is Execute returning the final response as well.
func (e *Executor) Do(ctx context.Context, d request.Descriptor, out any) (*httputil.Response, error) {
	base, err := d.Build(e.baseURL)
	if err != nil {
		return nil, err
	}

	call := &plugin.Call{ID: uuid.NewString(), Descriptor: d}
	resp, err := e.run(ctx, call, base)
	if err == nil {
		err = decode(resp, d, out)
		if apperrors.KindOf(err) == apperrors.KindDecoding {
			e.log.WithError(err).WithFields(map[string]interface{}{
				"call_id": call.ID,
				"method":  base.Method,
				"path":    d.Path(),
			}).Error("response decoding failed")
		}
	}

	for _, f := range e.chain.Finishers() {
		f.Finish(call, err)
	}
	if err != nil {
		return resp, err
	}
	return resp, nil
}

func (e *Executor) run(ctx context.Context, call *plugin.Call, base *httputil.Request) (*httputil.Response, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		call.Request = base.Clone()

		for _, p := range e.chain.Plugins() {
			if err := p.Prepare(ctx, call); err != nil {
				return nil, err
			}
		}

		resp, ok := e.respond(ctx, call)
		if !ok {
			var err error
			resp, err = e.transport.Send(ctx, call.Request)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				err = httputil.Classify(ctx, err)
				retry, ferr := e.observeFailure(ctx, call, err)
				if ferr != nil {
					return nil, ferr
				}
				if retry {
					call.Attempt++
					continue
				}
				return nil, err
			}
		}

		retry, err := e.observe(ctx, call, resp)
		if err != nil {
			return resp, err
		}
		if retry {
			call.Attempt++
			continue
		}
		return resp, nil
	}
}

func (e *Executor) respond(ctx context.Context, call *plugin.Call) (*httputil.Response, bool) {
	for _, r := range e.chain.Responders() {
		if resp, ok := r.Respond(ctx, call); ok {
			return resp, true
		}
	}
	return nil, false
}

func (e *Executor) observe(ctx context.Context, call *plugin.Call, resp *httputil.Response) (bool, error) {
	for _, p := range e.chain.Plugins() {
		if err := p.Observe(ctx, call, resp); err != nil {
			if errors.Is(err, plugin.ErrRetry) {
				return true, nil
			}
			return false, err
		}
	}
	return false, nil
}

func (e *Executor) observeFailure(ctx context.Context, call *plugin.Call, cause error) (bool, error) {
	for _, fo := range e.chain.FailureObservers() {
		if err := fo.ObserveFailure(ctx, call, cause); err != nil {
			if errors.Is(err, plugin.ErrRetry) {
				return true, nil
			}
			return false, err
		}
	}
	return false, nil
}

// Fetch executes d and decodes the body into a new T.
func Fetch[T any](ctx context.Context, doer Doer, d request.Descriptor) (T, error) {
	var out T
	err := doer.Execute(ctx, d, &out)
	return out, err
}
