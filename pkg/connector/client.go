package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aussiebroadwan/signinbot/pkg/connector/credentials"
)

// tracerName is the instrumentation scope for every connector span.
const tracerName = "github.com/aussiebroadwan/signinbot/pkg/connector"

// Options configures a connector client surface.
type Options struct {
	// Credential supplies bearer tokens. The surface borrows it for each call
	// and never closes or mutates it. Nil disables authentication, which is
	// how the local emulator is reached.
	Credential credentials.TokenCredential

	// Scope is the OAuth scope requested from Credential.
	Scope string

	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// client is the authenticated RPC core shared by every surface. Each call is
// wrapped in a span named "{name}.{operation}".
type client struct {
	name       string
	baseURL    string
	credential credentials.TokenCredential
	scope      string
	httpClient *http.Client
	tracer     trace.Tracer
}

func newClient(name, baseURL string, opts Options) *client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &client{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		credential: opts.Credential,
		scope:      opts.Scope,
		httpClient: httpClient,
		tracer:     tp.Tracer(tracerName),
	}
}

// start opens the diagnostic scope for an operation. The returned func must be
// deferred with the operation's final error; it marks the span failed when the
// error is non-nil and ends it exactly once.
func (c *client) start(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := c.tracer.Start(ctx, c.name+"."+operation, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// ============================================================================
// Argument validation
// ============================================================================

type argument struct {
	name    string
	present bool
}

func str(name, v string) argument { return argument{name: name, present: v != ""} }

func ptr[T any](name string, v *T) argument { return argument{name: name, present: v != nil} }

// require returns an ArgumentError naming the first missing argument.
func (c *client) require(operation string, args ...argument) error {
	for _, a := range args {
		if !a.present {
			return &ArgumentError{Operation: c.name + "." + operation, Param: a.name}
		}
	}
	return nil
}

// ============================================================================
// Request execution
// ============================================================================

// request describes one outbound call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
}

// response is a fully read backend answer.
type response struct {
	status int
	body   []byte
}

func (r response) ok() bool { return r.status >= 200 && r.status < 300 }

// open sends the request and returns the raw response. Callers own the body.
func (c *client) open(ctx context.Context, r request) (*http.Response, error) {
	u := c.baseURL + r.path
	if q := encodeQuery(r.query); q != "" {
		u += "?" + q
	}

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json, text/plain")

	if c.credential != nil {
		tok, err := c.credential.Token(ctx, c.scope)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("http.request.method", r.method),
		attribute.String("url.path", r.path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

// send performs the request and reads the whole body. Only transport errors
// are returned; status handling is left to the caller.
func (c *client) send(ctx context.Context, r request) (response, error) {
	resp, err := c.open(ctx, r)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("failed to read response body: %w", err)
	}
	return response{status: resp.StatusCode, body: raw}, nil
}

// do performs the request and decodes a 2xx JSON body into out. A nil out
// discards the body. Non-2xx answers become a RequestFailedError.
func (c *client) do(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return newRequestFailedError(resp.status, resp.body)
	}
	return decodeJSON(resp.body, out)
}

// doText performs the request and returns a 2xx body as text.
func (c *client) doText(ctx context.Context, r request) (string, error) {
	resp, err := c.send(ctx, r)
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", newRequestFailedError(resp.status, resp.body)
	}
	return string(resp.body), nil
}

func decodeJSON(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// encodeQuery drops empty values so optional parameters are omitted.
func encodeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	clean := url.Values{}
	for k, vs := range q {
		for _, v := range vs {
			if v != "" {
				clean.Add(k, v)
			}
		}
	}
	return clean.Encode()
}

// pathf builds a path, escaping each argument as a single segment.
func pathf(format string, segments ...string) string {
	escaped := make([]any, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return fmt.Sprintf(format, escaped...)
}
