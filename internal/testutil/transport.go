package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// StubResponse is a canned reply for one method and URL.
type StubResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
	// Err is returned instead of a response when set.
	Err error
}

// ErrStubTimeout makes the stub fail the way an expired deadline does.
var ErrStubTimeout = context.DeadlineExceeded

// StubTransport is an http.RoundTripper serving canned responses keyed by
// "METHOD URL". Requests without a stub get a 404 with an empty body.
//
// Safe for concurrent use.
type StubTransport struct {
	mu       sync.Mutex
	stubs    map[string]StubResponse
	requests []*http.Request
	bodies   [][]byte
}

// NewStubTransport creates an empty stub transport.
func NewStubTransport() *StubTransport {
	return &StubTransport{stubs: make(map[string]StubResponse)}
}

// Stub registers a response for method and url.
func (s *StubTransport) Stub(method, url string, resp StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs[method+" "+url] = resp
}

// Requests returns the requests seen so far, in arrival order.
func (s *StubTransport) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}

// Bodies returns the request bodies seen so far, in arrival order.
func (s *StubTransport) Bodies() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.bodies...)
}

// RoundTrip implements http.RoundTripper.
func (s *StubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("stub transport: read body: %w", err)
		}
		req.Body.Close()
		body = b
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.bodies = append(s.bodies, body)
	stub, ok := s.stubs[req.Method+" "+req.URL.String()]
	s.mu.Unlock()

	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	if !ok {
		stub = StubResponse{Status: http.StatusNotFound}
	}
	if stub.Err != nil {
		return nil, stub.Err
	}

	header := http.Header{}
	for k, vs := range stub.Headers {
		header[k] = append([]string(nil), vs...)
	}
	status := stub.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(stub.Body)),
		ContentLength: int64(len(stub.Body)),
		Request:       req,
	}, nil
}
