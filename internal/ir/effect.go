package ir

import (
	"fmt"
	"strings"
)

// EffectKind identifies an Effect variant. Values are wire tags.
type EffectKind uint32

const (
	// EffectRender asks the shell to re-read the view snapshot. Terminal.
	EffectRender EffectKind = iota
	// EffectHttp asks the shell to perform one HTTP round trip. Continuing.
	EffectHttp
	// EffectRedirect asks the shell to navigate to a URL. Terminal.
	EffectRedirect
	// EffectKeyValue asks the shell to run one storage operation. Continuing.
	EffectKeyValue
)

var effectNames = [...]string{"render", "http", "redirect", "key_value"}

// String returns the snake_case effect name.
func (k EffectKind) String() string {
	if int(k) < len(effectNames) {
		return effectNames[k]
	}
	return fmt.Sprintf("effect(%d)", uint32(k))
}

// Known reports whether k is a member of the closed effect set.
func (k EffectKind) Known() bool {
	return int(k) < len(effectNames)
}

// Continuing reports whether the effect requires a Response.
func (k EffectKind) Continuing() bool {
	return k == EffectHttp || k == EffectKeyValue
}

// Effect is a declarative description of work the shell must perform.
// Exactly the field matching Kind is populated.
type Effect struct {
	Kind     EffectKind         `json:"kind"`
	URL      string             `json:"url,omitempty"` // Redirect
	HTTP     *HttpRequest       `json:"http,omitempty"`
	KeyValue *KeyValueOperation `json:"key_value,omitempty"`
}

// Render returns a Render effect.
func Render() Effect { return Effect{Kind: EffectRender} }

// Redirect returns a Redirect effect.
func Redirect(url string) Effect { return Effect{Kind: EffectRedirect, URL: url} }

// HTTP returns an Http effect.
func HTTP(req HttpRequest) Effect { return Effect{Kind: EffectHttp, HTTP: &req} }

// KeyValue returns a KeyValue effect.
func KeyValue(op KeyValueOperation) Effect { return Effect{Kind: EffectKeyValue, KeyValue: &op} }

// Describe renders a short human-readable summary, e.g. "GET https://x" or
// "get github_tokens". Used in logs and traces.
func (e Effect) Describe() string {
	switch e.Kind {
	case EffectRender:
		return ""
	case EffectRedirect:
		return e.URL
	case EffectHttp:
		if e.HTTP == nil {
			return ""
		}
		return strings.ToUpper(e.HTTP.Method) + " " + e.HTTP.URL
	case EffectKeyValue:
		if e.KeyValue == nil {
			return ""
		}
		return e.KeyValue.Describe()
	default:
		return ""
	}
}

// Header is a single (name, value) pair. Header sequences keep wire order
// and duplicates.
type Header struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// HttpRequest is the payload of an Http effect.
type HttpRequest struct {
	Method  string   `json:"method"`
	URL     string   `json:"url"`
	Headers []Header `json:"headers"`
	Body    []byte   `json:"body"`
}

// HttpResponse is a successful HTTP round trip. Any status code is a success
// at this layer; the core decides what a 4xx or 5xx means.
type HttpResponse struct {
	Status  uint16   `json:"status"`
	Headers []Header `json:"headers"`
	Body    []byte   `json:"body"`
}

// HttpErrorKind classifies transport failures.
type HttpErrorKind uint32

const (
	// HttpErrorURL means the request URL could not be used.
	HttpErrorURL HttpErrorKind = iota
	// HttpErrorIO covers connection, DNS and TLS failures.
	HttpErrorIO
	// HttpErrorTimeout means the round trip did not finish in time.
	HttpErrorTimeout
)

var httpErrorNames = [...]string{"url", "io", "timeout"}

func (k HttpErrorKind) String() string {
	if int(k) < len(httpErrorNames) {
		return httpErrorNames[k]
	}
	return fmt.Sprintf("http_error(%d)", uint32(k))
}

// HttpError is a transport failure reported to the core.
type HttpError struct {
	Kind    HttpErrorKind `json:"kind"`
	Message string        `json:"message"`
}

func (e *HttpError) Error() string {
	if e.Message == "" {
		return "http " + e.Kind.String()
	}
	return "http " + e.Kind.String() + ": " + e.Message
}

// HttpResult is Ok(Response) or Err(Err). Exactly one is non-nil.
type HttpResult struct {
	Response *HttpResponse `json:"response,omitempty"`
	Err      *HttpError    `json:"error,omitempty"`
}
