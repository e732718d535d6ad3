// Package httputil is the transport boundary of the request pipeline: a
// transport-level request/response pair and an HTTP implementation that maps
// network failures into typed errors.
package httputil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	apperrors "github.com/R3E-Network/bankline/internal/errors"
)

const defaultMaxBodySize = 8 << 20 // 8MiB

// CachePolicy tells the transport layer how a request may use cached responses.
type CachePolicy string

const (
	CachePolicyDefault             CachePolicy = "default"
	CachePolicyReloadIgnoringCache CachePolicy = "reload_ignoring_cache"
	CachePolicyReturnCacheElseLoad CachePolicy = "return_cache_else_load"
)

// Request is a fully built transport request.
type Request struct {
	Method      string
	URL         *url.URL
	Header      http.Header
	Body        []byte
	Timeout     time.Duration
	CachePolicy CachePolicy
}

// Clone returns a deep copy so retries never observe mutations of an earlier attempt.
func (r *Request) Clone() *Request {
	cp := *r
	if r.URL != nil {
		u := *r.URL
		cp.URL = &u
	}
	cp.Header = r.Header.Clone()
	if cp.Header == nil {
		cp.Header = make(http.Header)
	}
	if r.Body != nil {
		cp.Body = append([]byte(nil), r.Body...)
	}
	return &cp
}

// CacheKey identifies the request for response caching: method plus exact URL.
func (r *Request) CacheKey() string {
	return r.Method + " " + r.URL.String()
}

// Response is a completed transport exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FromCache  bool
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport sends a request and returns the raw response. Failures are typed
// as connection, timeout or no-internet errors; caller cancellation is
// returned as the context error.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport sends requests with net/http.
type HTTPTransport struct {
	client       *http.Client
	maxBodyBytes int64
}

// HTTPTransportConfig configures the HTTP transport.
type HTTPTransportConfig struct {
	Client       *http.Client
	MaxBodyBytes int64
}

// NewHTTPTransport creates a transport. Per-request timeouts come from
// Request.Timeout; the client's own timeout is left unset.
func NewHTTPTransport(cfg HTTPTransportConfig) *HTTPTransport {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		}
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}
	return &HTTPTransport{client: client, maxBodyBytes: maxBody}
}

// Send executes req.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, apperrors.InvalidURL(req.URL.String(), err)
	}
	httpReq.Header = req.Header.Clone()
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}
	if req.CachePolicy == CachePolicyReloadIgnoringCache {
		httpReq.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, Classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := ReadAllStrict(resp.Body, t.maxBodyBytes)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, apperrors.InvalidResponse(err.Error())
		}
		return nil, Classify(ctx, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Classify maps a transport failure to a typed error. Caller cancellation is
// passed through untouched.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) && errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	if typed := apperrors.Get(err); typed != nil {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Timeout(err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return apperrors.NoInternetConnection(err)
	}
	if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETDOWN) {
		return apperrors.NoInternetConnection(err)
	}

	return apperrors.Connection(fmt.Errorf("send request: %w", err))
}
