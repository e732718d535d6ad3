// Package errors defines the closed failure taxonomy surfaced by the request
// pipeline and the repository layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind identifies a failure class.
type Kind string

const (
	KindInvalidURL           Kind = "invalid_url"
	KindInvalidResponse      Kind = "invalid_response"
	KindHTTP                 Kind = "http_error"
	KindDecoding             Kind = "decoding_error"
	KindConnection           Kind = "connection_error"
	KindTimeout              Kind = "timeout"
	KindUnauthorized         Kind = "unauthorized"
	KindOffline              Kind = "offline"
	KindNoInternetConnection Kind = "no_internet_connection"
	KindNoData               Kind = "no_data"
	KindServer               Kind = "server_error"
	KindUnknown              Kind = "unknown"

	// KindNotFound is a local invariant violation raised by the repository
	// layer, never by the network.
	KindNotFound Kind = "not_found"
)

// Error is the typed failure carried through the pipeline.
type Error struct {
	Kind       Kind
	StatusCode int
	Body       []byte
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can compare against the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// WithMessage returns a copy of e with msg attached.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// Retryable reports whether the failure may be re-attempted under backoff:
// 5xx statuses and transport connection, timeout and no-internet failures.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindConnection, KindTimeout, KindNoInternetConnection, KindOffline:
		return true
	case KindHTTP, KindServer:
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// Connectivity reports whether the failure means the network is unreachable.
// Only these failures fall back to cached data.
func (e *Error) Connectivity() bool {
	return e.Kind == KindOffline || e.Kind == KindNoInternetConnection
}

// ServerMessage extracts a human readable message from the response body, if
// the server sent one as "message", "error.message" or a plain "error" string.
func (e *Error) ServerMessage() string {
	if len(e.Body) == 0 || !gjson.ValidBytes(e.Body) {
		return ""
	}
	for _, path := range []string{"message", "error.message", "error_description", "error"} {
		if r := gjson.GetBytes(e.Body, path); r.Exists() && r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrOffline              = &Error{Kind: KindOffline}
	ErrNoInternetConnection = &Error{Kind: KindNoInternetConnection}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrDecoding             = &Error{Kind: KindDecoding}
)

func InvalidURL(raw string, err error) *Error {
	return &Error{Kind: KindInvalidURL, Message: raw, Err: err}
}

func InvalidResponse(msg string) *Error {
	return &Error{Kind: KindInvalidResponse, Message: msg}
}

func HTTPError(status int, body []byte) *Error {
	return &Error{Kind: KindHTTP, StatusCode: status, Body: body}
}

func ServerError(status int, body []byte) *Error {
	return &Error{Kind: KindServer, StatusCode: status, Body: body}
}

func Decoding(err error) *Error {
	return &Error{Kind: KindDecoding, Err: err}
}

func Connection(err error) *Error {
	return &Error{Kind: KindConnection, Err: err}
}

func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Err: err}
}

func Unauthorized(body []byte) *Error {
	return &Error{Kind: KindUnauthorized, StatusCode: http.StatusUnauthorized, Body: body}
}

func Offline() *Error {
	return &Error{Kind: KindOffline}
}

func NoInternetConnection(err error) *Error {
	return &Error{Kind: KindNoInternetConnection, Err: err}
}

func NoData() *Error {
	return &Error{Kind: KindNoData}
}

func Unknown(err error) *Error {
	return &Error{Kind: KindUnknown, Err: err}
}

// NotFound reports a missing cache entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Get extracts a typed error from err, unwrapping as needed. It returns nil if
// err carries none.
func Get(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// KindOf returns the kind of err, KindUnknown for untyped errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e := Get(err); e != nil {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a typed, retryable failure.
func IsRetryable(err error) bool {
	e := Get(err)
	return e != nil && e.Retryable()
}

// IsConnectivity reports whether err is a typed connectivity failure.
func IsConnectivity(err error) bool {
	e := Get(err)
	return e != nil && e.Connectivity()
}
