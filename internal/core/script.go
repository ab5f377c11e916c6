package core

import (
	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// Script is a rule table driving a ScriptCore.
//
// A rule fires on an event name or on the response to a named request. The
// first rule whose trigger and condition match is applied: its view patch is
// applied and its requests are returned as the next batch. Strings in
// requests and view patches are text/template templates.
type Script struct {
	Name  string            `yaml:"name" json:"name"`
	Vars  map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`
	Rules []Rule            `yaml:"rules" json:"rules"`
}

// Rule is one trigger/condition/action entry.
type Rule struct {
	On       Trigger       `yaml:"on" json:"on"`
	When     *Condition    `yaml:"when,omitempty" json:"when,omitempty"`
	View     *ViewPatch    `yaml:"view,omitempty" json:"view,omitempty"`
	Requests []RequestSpec `yaml:"requests,omitempty" json:"requests,omitempty"`
}

// Trigger selects what a rule reacts to. Exactly one field is set.
type Trigger struct {
	// Event is a snake_case event name, e.g. "initial_load".
	Event string `yaml:"event,omitempty" json:"event,omitempty"`
	// Response is the Name of the request whose response this rule handles.
	Response string `yaml:"response,omitempty" json:"response,omitempty"`
}

// Condition narrows a trigger. All set fields must hold.
type Condition struct {
	// Status matches a completed HTTP round trip with this status code.
	Status *int `yaml:"status,omitempty" json:"status,omitempty"`
	// Error matches a failed result: "any" or an error kind name.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`
	// Found matches whether a Get returned a value.
	Found *bool `yaml:"found,omitempty" json:"found,omitempty"`
	// Exists matches the result of an Exists operation.
	Exists *bool `yaml:"exists,omitempty" json:"exists,omitempty"`
	// Param requires the callback URL to carry this query parameter.
	Param string `yaml:"param,omitempty" json:"param,omitempty"`
}

// RequestSpec describes one request to emit. Exactly one effect field is set.
type RequestSpec struct {
	// ID pins the request id. When nil the core allocates one.
	ID *uint32 `yaml:"id,omitempty" json:"id,omitempty"`
	// Name labels the request so response rules can refer to it.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	Render   bool          `yaml:"render,omitempty" json:"render,omitempty"`
	Redirect string        `yaml:"redirect,omitempty" json:"redirect,omitempty"`
	HTTP     *HTTPSpec     `yaml:"http,omitempty" json:"http,omitempty"`
	KeyValue *KeyValueSpec `yaml:"key_value,omitempty" json:"key_value,omitempty"`

	// EffectCode emits a raw effect tag with an empty payload. Used to
	// exercise unknown-effect handling.
	EffectCode *uint32 `yaml:"effect_code,omitempty" json:"effect_code,omitempty"`
}

// HTTPSpec is an Http effect template.
type HTTPSpec struct {
	Method  string      `yaml:"method" json:"method"`
	URL     string      `yaml:"url" json:"url"`
	Headers []ir.Header `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    string      `yaml:"body,omitempty" json:"body,omitempty"`
}

// KeyValueSpec is a KeyValue effect template.
type KeyValueSpec struct {
	// Op is get, set, delete, list_keys or exists.
	Op     string `yaml:"op" json:"op"`
	Key    string `yaml:"key,omitempty" json:"key,omitempty"`
	Value  string `yaml:"value,omitempty" json:"value,omitempty"`
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	// OpCode emits a raw operation tag instead of Op.
	OpCode *uint32 `yaml:"op_code,omitempty" json:"op_code,omitempty"`
}

// ViewPatch edits the view model. Log lines are appended; films and user
// replace the current values when set.
type ViewPatch struct {
	Log       []LogSpec  `yaml:"log,omitempty" json:"log,omitempty"`
	Films     []FilmSpec `yaml:"films,omitempty" json:"films,omitempty"`
	User      *UserSpec  `yaml:"user,omitempty" json:"user,omitempty"`
	ClearUser bool       `yaml:"clear_user,omitempty" json:"clear_user,omitempty"`
}

// LogSpec is a log line template.
type LogSpec struct {
	Level   string `yaml:"level,omitempty" json:"level,omitempty"`
	Message string `yaml:"message" json:"message"`
}

// FilmSpec is a watched film entry.
type FilmSpec struct {
	Title  string `yaml:"title" json:"title"`
	Rating string `yaml:"rating" json:"rating"`
	Year   int16  `yaml:"year,omitempty" json:"year,omitempty"`
	Month  uint8  `yaml:"month,omitempty" json:"month,omitempty"`
}

// UserSpec is a user info template.
type UserSpec struct {
	Name      string `yaml:"name" json:"name"`
	AvatarURL string `yaml:"avatar_url" json:"avatar_url"`
}
