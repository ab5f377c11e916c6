package ir

import "fmt"

// EventKind identifies an Event variant. Values are wire tags.
type EventKind uint32

const (
	// EventInitialLoad is sent once when the shell starts.
	EventInitialLoad EventKind = iota
	// EventLoginButtonClicked is sent when the user asks to sign in.
	EventLoginButtonClicked
	// EventCallbackReceived carries inbound OAuth callback data.
	EventCallbackReceived
)

var eventNames = map[EventKind]string{
	EventInitialLoad:        "initial_load",
	EventLoginButtonClicked: "login_button_clicked",
	EventCallbackReceived:   "callback_received",
}

// String returns the snake_case event name used in scripts and traces.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", uint32(k))
}

// ParseEventKind resolves a snake_case event name.
func ParseEventKind(name string) (EventKind, error) {
	for k, n := range eventNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", name)
}

// Event is an external stimulus submitted to the decision core.
// The dispatcher only serializes it; the core interprets it.
type Event struct {
	Kind EventKind `json:"kind"`

	// URL is set for EventCallbackReceived only.
	URL string `json:"url,omitempty"`
}

// InitialLoad returns the InitialLoad event.
func InitialLoad() Event { return Event{Kind: EventInitialLoad} }

// LoginButtonClicked returns the LoginButtonClicked event.
func LoginButtonClicked() Event { return Event{Kind: EventLoginButtonClicked} }

// CallbackReceived returns a CallbackReceived event for the given callback URL.
func CallbackReceived(url string) Event { return Event{Kind: EventCallbackReceived, URL: url} }

// Request is a core-issued, id-tagged effect awaiting execution by the shell.
//
// ID is unique among outstanding requests only; the core may reuse it once
// the response for that id has been delivered.
type Request struct {
	ID     uint32 `json:"id"`
	Effect Effect `json:"effect"`
}

// Response is the shell's reported outcome of a continuing effect,
// correlated to its Request by RequestID.
//
// Exactly one of HTTP and KeyValue is set, matching Kind.
type Response struct {
	RequestID uint32          `json:"request_id"`
	Kind      EffectKind      `json:"kind"`
	HTTP      *HttpResult     `json:"http,omitempty"`
	KeyValue  *KeyValueResult `json:"key_value,omitempty"`
}

// Failed reports whether the response carries an error result.
func (r Response) Failed() bool {
	switch r.Kind {
	case EffectHttp:
		return r.HTTP == nil || r.HTTP.Err != nil
	case EffectKeyValue:
		return r.KeyValue == nil || r.KeyValue.Err != nil
	default:
		return true
	}
}

// ShellEventKind identifies a ShellEvent variant.
type ShellEventKind int

const (
	// ShellOpenURL asks observers to open a URL (e.g. an OAuth authorize page).
	ShellOpenURL ShellEventKind = iota + 1
)

// ShellEvent is an out-of-band notification to UI/navigation observers.
// It is never part of the ViewModel.
type ShellEvent struct {
	Kind ShellEventKind `json:"kind"`
	URL  string         `json:"url"`
}

// OpenURL returns an OpenUrl shell event.
func OpenURL(url string) ShellEvent { return ShellEvent{Kind: ShellOpenURL, URL: url} }
