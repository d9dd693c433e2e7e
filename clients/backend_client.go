package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/yashrajoria/graphql-gateway/errors"
	"github.com/yashrajoria/graphql-gateway/logger"
)

// maxErrorBody bounds how much of a failed response is read looking for a
// structured message.
const maxErrorBody = 64 << 10

// Observer is told about every finished backend call.
type Observer interface {
	ObserveBackendCall(backend, method string, status int, duration time.Duration, err error)
}

// BackendClient performs single outbound calls with one shared timeout and
// maps every outcome onto the gateway error kinds. It never retries.
type BackendClient struct {
	client    *http.Client
	timeout   time.Duration
	observers []Observer
}

type Option func(*BackendClient)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *BackendClient) { b.client = c }
}

// WithObserver registers o for every call.
func WithObserver(o Observer) Option {
	return func(b *BackendClient) {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
}

func NewBackendClient(timeout time.Duration, opts ...Option) *BackendClient {
	b := &BackendClient{
		client:  &http.Client{},
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Call describes one outbound request. Body is JSON encoded when non-nil.
type Call struct {
	Method  string
	URL     string
	Headers http.Header
	Body    interface{}
}

// Do sends call and returns the body of a 2xx response. The call is detached
// from ctx cancellation and bounded by the client timeout instead.
func (b *BackendClient) Do(ctx context.Context, call Call) ([]byte, error) {
	var body io.Reader
	if call.Body != nil {
		encoded, err := json.Marshal(call.Body)
		if err != nil {
			return nil, apperrors.Unknown(fmt.Errorf("encode request body: %w", err))
		}
		body = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return nil, apperrors.Unknown(fmt.Errorf("build request: %w", err))
	}
	for k, v := range call.Headers {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		appErr := apperrors.Network(err)
		b.observe(req, 0, time.Since(start), appErr)
		logger.Warn(ctx, "backend call failed",
			zap.String("method", call.Method),
			zap.String("url", call.URL),
			zap.Error(err),
		)
		return nil, appErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		appErr := apperrors.Api(resp.StatusCode, errorMessage(raw))
		b.observe(req, resp.StatusCode, time.Since(start), appErr)
		logger.Debug(ctx, "backend call rejected",
			zap.String("method", call.Method),
			zap.String("url", call.URL),
			zap.Int("status", resp.StatusCode),
		)
		return nil, appErr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		appErr := apperrors.Network(fmt.Errorf("read response: %w", err))
		b.observe(req, resp.StatusCode, time.Since(start), appErr)
		return nil, appErr
	}
	b.observe(req, resp.StatusCode, time.Since(start), nil)
	logger.Debug(ctx, "backend call",
		zap.String("method", call.Method),
		zap.String("url", call.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	return raw, nil
}

func (b *BackendClient) observe(req *http.Request, status int, d time.Duration, err error) {
	for _, o := range b.observers {
		o.ObserveBackendCall(req.URL.Host, req.Method, status, d, err)
	}
}

// errorMessage pulls the message out of a structured error body, nil when
// the body is not a JSON object carrying one.
func errorMessage(raw []byte) *string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	for _, key := range []string{"description", "message", "error"} {
		var msg string
		if v, ok := body[key]; ok && json.Unmarshal(v, &msg) == nil && msg != "" {
			return &msg
		}
	}
	return nil
}

// Decode unmarshals a successful response body into T. An empty body decodes
// as JSON null.
func Decode[T any](raw []byte) (T, error) {
	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, apperrors.Parse("unexpected backend response", err)
	}
	return out, nil
}

// Fetch is Do followed by Decode.
func Fetch[T any](ctx context.Context, b *BackendClient, call Call) (T, error) {
	raw, err := b.Do(ctx, call)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](raw)
}

// Join appends escaped path segments and query to a base URL.
func Join(base string, query url.Values, segments ...string) string {
	u := base
	for _, s := range segments {
		u += "/" + url.PathEscape(s)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// IsStatus reports whether err is an Api error with the given backend status.
func IsStatus(err error, status int) bool {
	var appErr *apperrors.Error
	return errors.As(err, &appErr) && appErr.Kind == apperrors.KindApi && appErr.Status == status
}
