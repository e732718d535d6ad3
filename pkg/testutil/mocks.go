// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/bankline/internal/httputil"
)

// MockTransport is a scripted httputil.Transport that records every send.
type MockTransport struct {
	mu       sync.Mutex
	handler  func(req *httputil.Request, n int) (*httputil.Response, error)
	requests []*httputil.Request
	times    []time.Time
}

// NewMockTransport creates a transport answering with handler. n is the
// zero-based index of the send.
func NewMockTransport(handler func(req *httputil.Request, n int) (*httputil.Response, error)) *MockTransport {
	return &MockTransport{handler: handler}
}

// StaticTransport always answers with the given status and body.
func StaticTransport(status int, body string) *MockTransport {
	return NewMockTransport(func(*httputil.Request, int) (*httputil.Response, error) {
		return Response(status, body), nil
	})
}

// FailingTransport always fails with err.
func FailingTransport(err error) *MockTransport {
	return NewMockTransport(func(*httputil.Request, int) (*httputil.Response, error) {
		return nil, err
	})
}

// Send implements httputil.Transport.
func (m *MockTransport) Send(ctx context.Context, req *httputil.Request) (*httputil.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	n := len(m.requests)
	m.requests = append(m.requests, req.Clone())
	m.times = append(m.times, time.Now())
	handler := m.handler
	m.mu.Unlock()

	return handler(req, n)
}

// SetHandler swaps the handler, e.g. to simulate the network coming back.
func (m *MockTransport) SetHandler(handler func(req *httputil.Request, n int) (*httputil.Response, error)) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// Calls returns the number of sends.
func (m *MockTransport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns copies of the sent requests.
func (m *MockTransport) Requests() []*httputil.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*httputil.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Times returns the send timestamps.
func (m *MockTransport) Times() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.times))
	copy(out, m.times)
	return out
}

// Response builds a JSON response.
func Response(status int, body string) *httputil.Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &httputil.Response{StatusCode: status, Header: h, Body: []byte(body)}
}

// JSONResponse marshals v into a response body.
func JSONResponse(status int, v any) *httputil.Response {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Response(status, string(data))
}

// StaticProbe is a connectivity probe with a settable state.
type StaticProbe struct {
	connected atomic.Bool
}

// NewStaticProbe creates a probe reporting connected.
func NewStaticProbe(connected bool) *StaticProbe {
	p := &StaticProbe{}
	p.connected.Store(connected)
	return p
}

func (p *StaticProbe) IsConnected() bool { return p.connected.Load() }

func (p *StaticProbe) Set(connected bool) { p.connected.Store(connected) }

// StaticTokens is a token provider returning a fixed token.
type StaticTokens struct {
	mu    sync.RWMutex
	token string
}

func NewStaticTokens(token string) *StaticTokens {
	return &StaticTokens{token: token}
}

func (s *StaticTokens) CurrentToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *StaticTokens) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// FixedClock returns a clock function always reporting t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
