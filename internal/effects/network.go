package effects

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// DefaultTimeout bounds one HTTP round trip, including reading the body.
const DefaultTimeout = 30 * time.Second

// Network performs Http effects.
//
// Exactly one round trip is made per request: redirects are returned to the
// core as ordinary responses and nothing is retried. The default transport
// writes request headers in the order given and reports response headers in
// arrival order; it sends nothing the core did not ask for except Host and
// Content-Length.
type Network struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NetworkOption configures a Network.
type NetworkOption func(*networkConfig)

type networkConfig struct {
	timeout      time.Duration
	transport    http.RoundTripper
	client       *http.Client
	blockPrivate bool
	tracing      bool
	logger       *slog.Logger
}

// WithTimeout sets the per-request deadline. Zero disables it.
func WithTimeout(d time.Duration) NetworkOption {
	return func(c *networkConfig) { c.timeout = d }
}

// WithTransport replaces the round tripper (stub transports, VCR recorders).
// Such transports see headers as a map, so cross-name order is theirs.
func WithTransport(rt http.RoundTripper) NetworkOption {
	return func(c *networkConfig) { c.transport = rt }
}

// WithHTTPClient uses client as the base client. Its redirect policy is
// overridden.
func WithHTTPClient(client *http.Client) NetworkOption {
	return func(c *networkConfig) { c.client = client }
}

// WithBlockPrivateNetworks refuses connections to loopback, private and
// link-local addresses. Ignored when a custom transport is supplied.
func WithBlockPrivateNetworks(block bool) NetworkOption {
	return func(c *networkConfig) { c.blockPrivate = block }
}

// WithTracing wraps the transport with otelhttp instrumentation.
func WithTracing(enabled bool) NetworkOption {
	return func(c *networkConfig) { c.tracing = enabled }
}

// WithNetworkLogger sets the logger. Defaults to slog.Default().
func WithNetworkLogger(l *slog.Logger) NetworkOption {
	return func(c *networkConfig) { c.logger = l }
}

// NewNetwork creates a network executor.
func NewNetwork(opts ...NetworkOption) *Network {
	cfg := networkConfig{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := &http.Client{}
	if cfg.client != nil {
		copied := *cfg.client
		client = &copied
	}

	rt := cfg.transport
	if rt == nil && client.Transport == nil {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		if cfg.blockPrivate {
			dialer = safeDialer()
		}
		rt = &orderedTransport{dialer: dialer}
	}
	if rt == nil {
		rt = client.Transport
	}
	if cfg.tracing {
		rt = otelhttp.NewTransport(rt)
	}
	client.Transport = rt
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	// The per-request context carries the deadline.
	client.Timeout = 0

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Network{client: client, timeout: cfg.timeout, logger: logger}
}

// Execute performs one HTTP round trip. Failures are reported in the result.
func (n *Network) Execute(ctx context.Context, req ir.HttpRequest) (ir.HttpResult, error) {
	if n == nil || n.client == nil {
		return ir.HttpResult{}, errors.New("network executor not initialized")
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return httpFailure(ir.HttpErrorURL, err), nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return httpFailure(ir.HttpErrorURL, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, req.URL)), nil
	}
	if u.Host == "" {
		return httpFailure(ir.HttpErrorURL, fmt.Errorf("missing host in %q", req.URL)), nil
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	wire := &wireHeaders{request: req.Headers}
	ctx = withWireHeaders(ctx, wire)

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return httpFailure(ir.HttpErrorURL, err), nil
	}
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "Host") {
			httpReq.Host = h.Value
			continue
		}
		// Transports that only see the map still get every value.
		httpReq.Header[h.Name] = append(httpReq.Header[h.Name], h.Value)
	}

	n.logger.Debug("http request", "method", method, "url", req.URL, "headers", len(req.Headers), "body_bytes", len(req.Body))

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return httpFailure(classifyHTTPError(ctx, err), err), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpFailure(classifyHTTPError(ctx, err), fmt.Errorf("read body: %w", err)), nil
	}

	n.logger.Debug("http response", "url", req.URL, "status", resp.StatusCode, "body_bytes", len(respBody))

	headers := wire.response
	if !wire.received {
		headers = flattenHeaders(resp.Header)
	}
	return ir.HttpResult{Response: &ir.HttpResponse{
		Status:  uint16(resp.StatusCode),
		Headers: headers,
		Body:    respBody,
	}}, nil
}

// flattenHeaders lists a header map by sorted name, keeping the value order
// within each name. Used for transports that only produce the map form.
func flattenHeaders(h http.Header) []ir.Header {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ir.Header, 0, len(h))
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, ir.Header{Name: name, Value: v})
		}
	}
	return out
}

func classifyHTTPError(ctx context.Context, err error) ir.HttpErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ir.HttpErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ir.HttpErrorTimeout
	}
	return ir.HttpErrorIO
}

func httpFailure(kind ir.HttpErrorKind, err error) ir.HttpResult {
	return ir.HttpResult{Err: &ir.HttpError{Kind: kind, Message: err.Error()}}
}
