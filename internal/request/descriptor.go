// Package request describes HTTP calls declaratively. A Descriptor is an
// immutable value; derivation methods return modified copies.
package request

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/internal/httputil"
)

// DefaultTimeout applies when a descriptor does not set one.
const DefaultTimeout = 30 * time.Second

// Method is an HTTP verb supported by descriptors.
type Method string

const (
	GET    Method = http.MethodGet
	POST   Method = http.MethodPost
	PUT    Method = http.MethodPut
	PATCH  Method = http.MethodPatch
	DELETE Method = http.MethodDelete
)

// Descriptor declares one HTTP call.
type Descriptor struct {
	path         string
	method       Method
	headers      map[string]string
	query        map[string]string
	body         Body
	requiresAuth bool
	cachePolicy  httputil.CachePolicy
	timeout      time.Duration
	envelope     string
}

// New creates a descriptor with defaults: auth required, protocol-default
// cache policy, 30s timeout, no body.
func New(method Method, path string) Descriptor {
	return Descriptor{
		path:         path,
		method:       method,
		requiresAuth: true,
		cachePolicy:  httputil.CachePolicyDefault,
		timeout:      DefaultTimeout,
		body:         NoBody(),
	}
}

func Get(path string) Descriptor    { return New(GET, path) }
func Post(path string) Descriptor   { return New(POST, path) }
func Put(path string) Descriptor    { return New(PUT, path) }
func Patch(path string) Descriptor  { return New(PATCH, path) }
func Delete(path string) Descriptor { return New(DELETE, path) }

func (d Descriptor) Path() string                      { return d.path }
func (d Descriptor) Method() Method                    { return d.method }
func (d Descriptor) Body() Body                        { return d.body }
func (d Descriptor) RequiresAuth() bool                { return d.requiresAuth }
func (d Descriptor) CachePolicy() httputil.CachePolicy { return d.cachePolicy }
func (d Descriptor) Timeout() time.Duration            { return d.timeout }
func (d Descriptor) Envelope() string                  { return d.envelope }

// Headers returns a copy of the declared headers.
func (d Descriptor) Headers() map[string]string { return copyMap(d.headers) }

// Query returns a copy of the declared query parameters.
func (d Descriptor) Query() map[string]string { return copyMap(d.query) }

// WithHeader returns a copy with header key set to value.
func (d Descriptor) WithHeader(key, value string) Descriptor {
	d.headers = copyMap(d.headers)
	if d.headers == nil {
		d.headers = make(map[string]string)
	}
	d.headers[key] = value
	return d
}

// WithQuery returns a copy with query parameter key set to value.
func (d Descriptor) WithQuery(key, value string) Descriptor {
	d.query = copyMap(d.query)
	if d.query == nil {
		d.query = make(map[string]string)
	}
	d.query[key] = value
	return d
}

// WithBody returns a copy carrying body.
func (d Descriptor) WithBody(body Body) Descriptor {
	d.body = body
	return d
}

// WithMethod returns a copy using method.
func (d Descriptor) WithMethod(method Method) Descriptor {
	d.method = method
	return d
}

// WithAuth returns a copy with the auth requirement set.
func (d Descriptor) WithAuth(required bool) Descriptor {
	d.requiresAuth = required
	return d
}

// WithCachePolicy returns a copy using policy.
func (d Descriptor) WithCachePolicy(policy httputil.CachePolicy) Descriptor {
	d.cachePolicy = policy
	return d
}

// WithTimeout returns a copy using timeout. Non-positive values restore the default.
func (d Descriptor) WithTimeout(timeout time.Duration) Descriptor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d.timeout = timeout
	return d
}

// WithEnvelope returns a copy that decodes the payload found at the given
// JSON path (e.g. "data") instead of the whole body.
func (d Descriptor) WithEnvelope(path string) Descriptor {
	d.envelope = path
	return d
}

// Build compiles the descriptor against baseURL into a transport request.
func (d Descriptor) Build(baseURL string) (*httputil.Request, error) {
	raw := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(d.path, "/")
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperrors.InvalidURL(raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.InvalidURL(raw, nil)
	}

	if len(d.query) > 0 {
		q := u.Query()
		for _, k := range sortedKeys(d.query) {
			q.Set(k, d.query[k])
		}
		u.RawQuery = q.Encode()
	}

	header := make(http.Header, len(d.headers)+1)
	for k, v := range d.headers {
		header.Set(k, v)
	}

	payload, contentType, err := d.body.encode()
	if err != nil {
		return nil, apperrors.Decoding(err).WithMessage("encode request body")
	}
	if contentType != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", contentType)
	}
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}

	method := d.method
	if method == "" {
		method = GET
	}
	timeout := d.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	policy := d.cachePolicy
	if policy == "" {
		policy = httputil.CachePolicyDefault
	}

	return &httputil.Request{
		Method:      string(method),
		URL:         u,
		Header:      header,
		Body:        payload,
		Timeout:     timeout,
		CachePolicy: policy,
	}, nil
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BodyKind tags the Body union.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyJSON
	BodyEncoded
)

// Body is exactly one of: no body, a JSON-encodable value, or pre-encoded bytes.
type Body struct {
	kind        BodyKind
	value       any
	data        []byte
	contentType string
}

// NoBody is the empty body.
func NoBody() Body { return Body{kind: BodyNone} }

// JSON wraps a value that is serialised with encoding/json at build time.
func JSON(v any) Body { return Body{kind: BodyJSON, value: v} }

// Encoded wraps raw bytes sent as-is with contentType.
func Encoded(data []byte, contentType string) Body {
	return Body{kind: BodyEncoded, data: append([]byte(nil), data...), contentType: contentType}
}

// Kind reports which variant b holds.
func (b Body) Kind() BodyKind { return b.kind }

func (b Body) encode() ([]byte, string, error) {
	switch b.kind {
	case BodyJSON:
		data, err := json.Marshal(b.value)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	case BodyEncoded:
		return append([]byte(nil), b.data...), b.contentType, nil
	default:
		return nil, "", nil
	}
}
