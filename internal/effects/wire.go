package effects

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// wireHeaders carries one exchange's header lists between Execute and the
// transport. net/http keeps headers in a map, which loses cross-name order.
type wireHeaders struct {
	request  []ir.Header
	response []ir.Header
	received bool
}

type wireHeadersKey struct{}

func withWireHeaders(ctx context.Context, w *wireHeaders) context.Context {
	return context.WithValue(ctx, wireHeadersKey{}, w)
}

func wireHeadersFrom(ctx context.Context) *wireHeaders {
	w, _ := ctx.Value(wireHeadersKey{}).(*wireHeaders)
	return w
}

// orderedTransport is an HTTP/1.1 round tripper that writes request headers
// in the order the core listed them and records response headers in the
// order they arrived. It adds no headers of its own beyond Host and
// Content-Length. One connection is used per request.
type orderedTransport struct {
	dialer    *net.Dialer
	tlsConfig *tls.Config
}

func (t *orderedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	wire := wireHeadersFrom(ctx)
	if wire == nil {
		wire = &wireHeaders{request: flattenHeaders(req.Header)}
	}

	conn, err := t.dial(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	fail := func(err error) (*http.Response, error) {
		stop()
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, err
	}

	if err := writeRequest(conn, req, wire.request); err != nil {
		return fail(err)
	}
	resp, headers, err := readResponse(bufio.NewReader(conn), req)
	if err != nil {
		return fail(err)
	}
	wire.response, wire.received = headers, true
	resp.Body = &connBody{ReadCloser: resp.Body, conn: conn, stop: stop}
	return resp, nil
}

func (t *orderedTransport) dial(ctx context.Context, u *url.URL) (net.Conn, error) {
	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	conn, err := t.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" {
		return conn, nil
	}

	cfg := &tls.Config{}
	if t.tlsConfig != nil {
		cfg = t.tlsConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// writeRequest writes the request line, Host unless listed, the listed
// headers in order, then any headers added by wrapping transports.
func writeRequest(w io.Writer, req *http.Request, headers []ir.Header) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", req.Method, req.URL.RequestURI())

	listed := make(map[string]bool, len(headers))
	for _, h := range headers {
		listed[textproto.CanonicalMIMEHeaderKey(h.Name)] = true
	}
	if !listed["Host"] {
		host := req.Host
		if host == "" {
			host = req.URL.Host
		}
		if err := writeHeader(bw, "Host", host); err != nil {
			return err
		}
	}
	for _, h := range headers {
		if err := writeHeader(bw, h.Name, h.Value); err != nil {
			return err
		}
	}

	// Trace propagation headers from otelhttp land here.
	var extra []string
	for name := range req.Header {
		if !listed[textproto.CanonicalMIMEHeaderKey(name)] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		for _, v := range req.Header[name] {
			if err := writeHeader(bw, name, v); err != nil {
				return err
			}
		}
	}

	if req.ContentLength > 0 && !listed["Content-Length"] {
		if err := writeHeader(bw, "Content-Length", strconv.FormatInt(req.ContentLength, 10)); err != nil {
			return err
		}
	}
	bw.WriteString("\r\n")

	if req.Body != nil {
		defer req.Body.Close()
		if _, err := io.Copy(bw, req.Body); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
	}
	return bw.Flush()
}

func writeHeader(w *bufio.Writer, name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("invalid header field name %q", name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("invalid header field value for %q", name)
	}
	w.WriteString(name)
	w.WriteString(": ")
	w.WriteString(value)
	w.WriteString("\r\n")
	return nil
}

// readResponse reads the final response, skipping 1xx interim responses.
// Header lines are collected in arrival order with names as sent; the
// block is then handed to http.ReadResponse for body framing.
func readResponse(br *bufio.Reader, req *http.Request) (*http.Response, []ir.Header, error) {
	for {
		tp := textproto.NewReader(br)
		status, err := tp.ReadLine()
		if err != nil {
			return nil, nil, fmt.Errorf("read status line: %w", err)
		}

		var (
			headers []ir.Header
			block   strings.Builder
		)
		block.WriteString(status + "\r\n")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return nil, nil, fmt.Errorf("read header: %w", err)
			}
			if line == "" {
				break
			}
			block.WriteString(line + "\r\n")
			if line[0] == ' ' || line[0] == '\t' {
				// Obsolete line folding continues the previous value.
				if len(headers) == 0 {
					return nil, nil, errors.New("malformed response: continuation before first header")
				}
				headers[len(headers)-1].Value += " " + strings.TrimSpace(line)
				continue
			}
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				return nil, nil, fmt.Errorf("malformed response header line %q", line)
			}
			headers = append(headers, ir.Header{Name: name, Value: strings.TrimSpace(value)})
		}
		block.WriteString("\r\n")

		rb := bufio.NewReader(io.MultiReader(strings.NewReader(block.String()), br))
		resp, err := http.ReadResponse(rb, req)
		if err != nil {
			return nil, nil, err
		}
		if resp.StatusCode >= 100 && resp.StatusCode < 200 && resp.StatusCode != http.StatusSwitchingProtocols {
			br = rb
			continue
		}
		if headers == nil {
			headers = []ir.Header{}
		}
		return resp, headers, nil
	}
}

// connBody closes the connection along with the body.
type connBody struct {
	io.ReadCloser
	conn net.Conn
	stop func() bool
}

func (b *connBody) Close() error {
	b.stop()
	err := b.ReadCloser.Close()
	if cerr := b.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}
