package jsonrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	endpointPath     = "jsonrpc"
	defaultUserAgent = "jsonrpc-client/1.0"
	tracerName       = "github.com/cinience/record/internal/jsonrpc"
)

// StatusError is a transport error for a non-2xx HTTP answer.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("POST %s: unexpected HTTP status %s", e.URL, e.Status)
}

// Client posts call envelopes to a single /jsonrpc endpoint. It keeps no
// state between calls.
type Client struct {
	endpoint   string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *log.Logger
	tracer     trace.Tracer
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every Call, including reading the response body.
// Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger enables request logging. A nil logger keeps the client silent.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimit spaces calls to at most perSecond, allowing bursts of
// burst calls. perSecond <= 0 leaves calls unthrottled.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewClient resolves the endpoint against baseURL the way a browser
// resolves the relative link "jsonrpc".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	endpoint, err := ResolveEndpoint(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		endpoint:   endpoint,
		userAgent:  defaultUserAgent,
		httpClient: http.DefaultClient,
		tracer:     otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func ResolveEndpoint(baseURL string) (string, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("url %q must be absolute (scheme://host)", baseURL)
	}
	return base.ResolveReference(&url.URL{Path: endpointPath}).String(), nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func (c *Client) logf(format string, v ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, v...)
}

// Send posts one envelope carrying {service, method, args} and returns the
// raw response. The caller owns the body; the client timeout keeps running
// until it is closed. Transport failures are returned unchanged; a non-2xx
// status becomes a *StatusError.
func (c *Client) Send(ctx context.Context, service, method string, args []any) (*http.Response, error) {
	ctx, cancel := c.withTimeout(ctx)
	resp, err := c.send(ctx, newCallRequest(service, method, args))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// Call is Send followed by Unwrap, bounded by the client timeout.
func (c *Client) Call(ctx context.Context, service, method string, args []any) (Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit %s.%s: %w", service, method, err)
		}
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := newCallRequest(service, method, args)
	ctx, span := c.tracer.Start(ctx, service+"."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
			attribute.Int64("rpc.jsonrpc.request_id", req.ID),
		))
	defer span.End()

	started := time.Now()
	result, err := c.roundTrip(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, firstLine(err.Error()))
		c.logf("call %s.%s id=%d failed after %s: %s", service, method, req.ID, time.Since(started).Round(time.Millisecond), firstLine(err.Error()))
		return nil, err
	}
	c.logf("call %s.%s id=%d ok in %s", service, method, req.ID, time.Since(started).Round(time.Millisecond))
	return result, nil
}

func (c *Client) roundTrip(ctx context.Context, req Request) (Value, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return Unwrap(resp.Body)
}

func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	body, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	c.logf("POST %s id=%d (%d bytes)", c.endpoint, req.ID, len(body))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, URL: c.endpoint}
	}
	return resp, nil
}

func newCallRequest(service, method string, args []any) Request {
	if args == nil {
		args = []any{}
	}
	return NewRequest(callParams{Service: service, Method: method, Args: args}, nil)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
