package effects

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alasdair-cooper/watch-history/internal/ir"
	"github.com/alasdair-cooper/watch-history/internal/testutil"
)

func TestNetworkGitHubUserCassette(t *testing.T) {
	rec := testutil.NewVCRRecorder(t, "github_user")
	n := NewNetwork(WithTransport(rec))

	res, err := n.Execute(context.Background(), ir.HttpRequest{
		Method: "GET",
		URL:    "https://api.github.com/user",
		Headers: []ir.Header{
			{Name: "Authorization", Value: "Bearer gho_fixture"},
			{Name: "Accept", Value: "application/vnd.github+json"},
		},
	})
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.Equal(t, uint16(200), res.Response.Status)
	assert.Contains(t, string(res.Response.Body), `"login":"octocat"`)
	assert.Equal(t, []ir.Header{
		{Name: "Content-Type", Value: "application/json; charset=utf-8"},
		{Name: "X-Github-Media-Type", Value: "github.v3; format=json"},
	}, res.Response.Headers)
}

func TestNetworkErrorStatusIsSuccess(t *testing.T) {
	rec := testutil.NewVCRRecorder(t, "github_user")
	n := NewNetwork(WithTransport(rec))

	res, err := n.Execute(context.Background(), ir.HttpRequest{
		Method:  "post",
		URL:     "https://github.com/login/oauth/access_token?client_id=abc&code=bad&redirect_uri=http%3A%2F%2Flocalhost%3A8080%2Fcallback",
		Headers: []ir.Header{{Name: "Accept", Value: "application/json"}},
	})
	require.NoError(t, err)
	require.Nil(t, res.Err, "a 4xx is a completed round trip")
	assert.Equal(t, uint16(401), res.Response.Status)
}

// rawExchange is what a one-shot TCP server saw on the wire.
type rawExchange struct {
	requestLine string
	headers     []string
	body        []byte
}

// serveRaw accepts one connection, records the request as sent and answers
// with response verbatim.
func serveRaw(t *testing.T, response string) (string, <-chan rawExchange) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan rawExchange, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewReader(bufio.NewReader(conn))

		var ex rawExchange
		ex.requestLine, _ = tp.ReadLine()
		length := 0
		for {
			line, err := tp.ReadLine()
			if err != nil || line == "" {
				break
			}
			ex.headers = append(ex.headers, line)
			if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(name, "Content-Length") {
				length, _ = strconv.Atoi(strings.TrimSpace(value))
			}
		}
		ex.body = make([]byte, length)
		_, _ = io.ReadFull(tp.R, ex.body)
		got <- ex
		conn.Write([]byte(response))
	}()
	return "http://" + ln.Addr().String(), got
}

func TestNetworkWritesHeadersInOrder(t *testing.T) {
	url, got := serveRaw(t, "HTTP/1.1 418 I'm a teapot\r\n"+
		"X-Multi: a\r\n"+
		"content-type: text/plain\r\n"+
		"X-Multi: b\r\n"+
		"A-Last: 1\r\n"+
		"Content-Length: 15\r\n"+
		"\r\n"+
		"short and stout")

	res, err := NewNetwork().Execute(context.Background(), ir.HttpRequest{
		Method: "PUT",
		URL:    url + "/x?y=1",
		Headers: []ir.Header{
			{Name: "A", Value: "1"},
			{Name: "B", Value: "2"},
			{Name: "A", Value: "3"},
		},
		Body: []byte{0xde, 0xad},
	})
	require.NoError(t, err)
	require.Nil(t, res.Err)

	ex := <-got
	assert.Equal(t, "PUT /x?y=1 HTTP/1.1", ex.requestLine)
	require.NotEmpty(t, ex.headers)
	assert.Equal(t, "Host: "+strings.TrimPrefix(url, "http://"), ex.headers[0])
	assert.Equal(t, []string{"A: 1", "B: 2", "A: 3", "Content-Length: 2"}, ex.headers[1:])
	assert.Equal(t, []byte{0xde, 0xad}, ex.body)

	assert.Equal(t, uint16(http.StatusTeapot), res.Response.Status)
	assert.Equal(t, "short and stout", string(res.Response.Body))
	assert.Equal(t, []ir.Header{
		{Name: "X-Multi", Value: "a"},
		{Name: "content-type", Value: "text/plain"},
		{Name: "X-Multi", Value: "b"},
		{Name: "A-Last", Value: "1"},
		{Name: "Content-Length", Value: "15"},
	}, res.Response.Headers)
}

func TestNetworkTracingKeepsHeaderOrder(t *testing.T) {
	url, got := serveRaw(t, "HTTP/1.1 200 OK\r\nB: 1\r\nA: 2\r\nContent-Length: 0\r\n\r\n")

	res, err := NewNetwork(WithTracing(true)).Execute(context.Background(), ir.HttpRequest{
		Method:  "GET",
		URL:     url,
		Headers: []ir.Header{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}, {Name: "A", Value: "3"}},
	})
	require.NoError(t, err)
	require.Nil(t, res.Err)

	ex := <-got
	require.GreaterOrEqual(t, len(ex.headers), 4)
	assert.Equal(t, []string{"A: 1", "B: 2", "A: 3"}, ex.headers[1:4])
	assert.Equal(t, []ir.Header{{Name: "B", Value: "1"}, {Name: "A", Value: "2"}, {Name: "Content-Length", Value: "0"}}, res.Response.Headers)
}

func TestNetworkSendsOnlyRequestedHeaders(t *testing.T) {
	url, got := serveRaw(t, "HTTP/1.1 204 No Content\r\n\r\n")

	res, err := NewNetwork().Execute(context.Background(), ir.HttpRequest{
		Method:  "GET",
		URL:     url,
		Headers: []ir.Header{{Name: "host", Value: "api.example"}, {Name: "Accept", Value: "*/*"}},
	})
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.Empty(t, res.Response.Headers)

	ex := <-got
	assert.Equal(t, "GET / HTTP/1.1", ex.requestLine)
	assert.Equal(t, []string{"host: api.example", "Accept: */*"}, ex.headers)
}

func TestNetworkRejectsHeaderInjection(t *testing.T) {
	url, _ := serveRaw(t, "HTTP/1.1 204 No Content\r\n\r\n")

	res, err := NewNetwork().Execute(context.Background(), ir.HttpRequest{
		Method:  "GET",
		URL:     url,
		Headers: []ir.Header{{Name: "X-Evil", Value: "a\r\nInjected: yes"}},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, ir.HttpErrorIO, res.Err.Kind)
}

func TestNetworkSkipsInterimResponses(t *testing.T) {
	url, _ := serveRaw(t, "HTTP/1.1 100 Continue\r\n\r\n"+
		"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")

	res, err := NewNetwork().Execute(context.Background(), ir.HttpRequest{Method: "GET", URL: url})
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.Equal(t, uint16(200), res.Response.Status)
	assert.Equal(t, "ok", string(res.Response.Body))
	assert.Equal(t, []ir.Header{{Name: "Content-Length", Value: "2"}}, res.Response.Headers)
}

func TestNetworkDoesNotFollowRedirects(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	res, err := NewNetwork().Execute(context.Background(), ir.HttpRequest{Method: "GET", URL: srv.URL})
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.Equal(t, uint16(http.StatusFound), res.Response.Status)
	assert.Equal(t, 1, hits)
}

func TestNetworkDoesNotDecompress(t *testing.T) {
	var acceptEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acceptEncoding = r.Header.Get("Accept-Encoding")
	}))
	defer srv.Close()

	_, err := NewNetwork().Execute(context.Background(), ir.HttpRequest{Method: "GET", URL: srv.URL})
	require.NoError(t, err)
	assert.Empty(t, acceptEncoding)
}

func TestNetworkErrorClassification(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name string
		net  *Network
		url  string
		want ir.HttpErrorKind
	}{
		{"malformed url", NewNetwork(), "http://[::1", ir.HttpErrorURL},
		{"missing scheme", NewNetwork(), "example.com/path", ir.HttpErrorURL},
		{"timeout", NewNetwork(WithTimeout(50 * time.Millisecond)), slow.URL, ir.HttpErrorTimeout},
		{"connection refused", NewNetwork(), closedURL, ir.HttpErrorIO},
		{"private network blocked", NewNetwork(WithBlockPrivateNetworks(true)), slow.URL, ir.HttpErrorIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.net.Execute(context.Background(), ir.HttpRequest{Method: "GET", URL: tt.url})
			require.NoError(t, err)
			require.NotNil(t, res.Err)
			assert.Nil(t, res.Response)
			assert.Equal(t, tt.want, res.Err.Kind, res.Err.Message)
		})
	}
}

func TestNetworkCancelledContextStillProducesResult(t *testing.T) {
	st := testutil.NewStubTransport()
	n := NewNetwork(WithTransport(st))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := n.Execute(ctx, ir.HttpRequest{Method: "GET", URL: "https://example.com/"})
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, ir.HttpErrorIO, res.Err.Kind)
}

func TestNetworkTracingWrapsTransport(t *testing.T) {
	st := testutil.NewStubTransport()
	st.Stub("GET", "https://example.com/", testutil.StubResponse{Status: 204})

	res, err := NewNetwork(WithTransport(st), WithTracing(true)).Execute(context.Background(), ir.HttpRequest{Method: "GET", URL: "https://example.com/"})
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.Equal(t, uint16(204), res.Response.Status)
	assert.Len(t, st.Requests(), 1)
}

func TestBlockedIP(t *testing.T) {
	for _, s := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.1", "169.254.1.1", "::1", "0.0.0.0"} {
		ip := parseIP(t, s)
		assert.True(t, blockedIP(ip), s)
	}
	assert.False(t, blockedIP(parseIP(t, "140.82.112.3")))
}
