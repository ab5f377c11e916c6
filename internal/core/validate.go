package core

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// Validation error codes.
const (
	ErrScriptEmpty       = "E101" // script has no rules
	ErrInvalidTrigger    = "E102" // trigger must name exactly one of event/response
	ErrUnknownEvent      = "E103" // event name is not recognized
	ErrUnknownResponse   = "E104" // response trigger names no request
	ErrInvalidRequest    = "E105" // request must set exactly one effect
	ErrUnknownOperation  = "E106" // key-value op name is not recognized
	ErrInvalidCondition  = "E107" // condition does not fit the trigger
	ErrInvalidTemplate   = "E108" // string does not parse as a template
	ErrInvalidViewPatch  = "E109" // bad log level or rating
	ErrDuplicateName     = "E110" // request name reused with a different effect kind
	ErrMissingHTTPFields = "E111" // http spec lacks a url
)

// ValidationError is one problem found in a script.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var errorNames = map[string]bool{
	"any": true, "url": true, "io": true, "timeout": true, "other": true,
}

// Validate checks a script and returns every problem found.
func Validate(s *Script) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if len(s.Rules) == 0 {
		add("rules", ErrScriptEmpty, "at least one rule is required")
		return errs
	}

	// Names and the effect kinds they label.
	named := map[string]string{}
	for i, r := range s.Rules {
		for j, req := range r.Requests {
			if req.Name == "" {
				continue
			}
			kind := requestKind(req)
			field := fmt.Sprintf("rules[%d].requests[%d].name", i, j)
			if prev, ok := named[req.Name]; ok && prev != kind {
				add(field, ErrDuplicateName, "name %q labels both %s and %s requests", req.Name, prev, kind)
				continue
			}
			named[req.Name] = kind
		}
	}

	for i, r := range s.Rules {
		base := fmt.Sprintf("rules[%d]", i)

		switch {
		case r.On.Event != "" && r.On.Response != "":
			add(base+".on", ErrInvalidTrigger, "set either event or response, not both")
		case r.On.Event == "" && r.On.Response == "":
			add(base+".on", ErrInvalidTrigger, "event or response is required")
		case r.On.Event != "":
			if _, err := ir.ParseEventKind(r.On.Event); err != nil {
				add(base+".on.event", ErrUnknownEvent, "%v", err)
			}
		default:
			if _, ok := named[r.On.Response]; !ok {
				add(base+".on.response", ErrUnknownResponse, "no request is named %q", r.On.Response)
			}
		}

		if c := r.When; c != nil {
			if r.On.Event != "" && (c.Status != nil || c.Error != "" || c.Found != nil || c.Exists != nil) {
				add(base+".when", ErrInvalidCondition, "result conditions need a response trigger")
			}
			if c.Error != "" && !errorNames[c.Error] {
				add(base+".when.error", ErrInvalidCondition, "unknown error kind %q", c.Error)
			}
			kind := named[r.On.Response]
			if c.Status != nil && kind != "" && kind != "http" {
				add(base+".when.status", ErrInvalidCondition, "status applies to http responses, %q is %s", r.On.Response, kind)
			}
			if (c.Found != nil || c.Exists != nil) && kind != "" && kind != "key_value" {
				add(base+".when", ErrInvalidCondition, "found/exists apply to key_value responses, %q is %s", r.On.Response, kind)
			}
		}

		for j, req := range r.Requests {
			field := fmt.Sprintf("%s.requests[%d]", base, j)
			validateRequest(field, req, add)
		}

		if p := r.View; p != nil {
			for j, l := range p.Log {
				field := fmt.Sprintf("%s.view.log[%d]", base, j)
				if _, err := ir.ParseLogLevel(l.Level); err != nil {
					add(field+".level", ErrInvalidViewPatch, "%v", err)
				}
				checkTemplate(field+".message", l.Message, add)
			}
			for j, f := range p.Films {
				field := fmt.Sprintf("%s.view.films[%d]", base, j)
				if _, err := ir.ParseRating(f.Rating); err != nil {
					add(field+".rating", ErrInvalidViewPatch, "%v", err)
				}
				if f.Month > 12 {
					add(field+".month", ErrInvalidViewPatch, "month %d out of range", f.Month)
				}
			}
			if p.User != nil {
				checkTemplate(base+".view.user.name", p.User.Name, add)
				checkTemplate(base+".view.user.avatar_url", p.User.AvatarURL, add)
			}
		}
	}
	return errs
}

func validateRequest(field string, req RequestSpec, add func(field, code, format string, args ...any)) {
	set := 0
	if req.Render {
		set++
	}
	if req.Redirect != "" {
		set++
		checkTemplate(field+".redirect", req.Redirect, add)
	}
	if req.EffectCode != nil {
		set++
	}
	if h := req.HTTP; h != nil {
		set++
		if h.URL == "" {
			add(field+".http.url", ErrMissingHTTPFields, "url is required")
		}
		checkTemplate(field+".http.url", h.URL, add)
		checkTemplate(field+".http.body", h.Body, add)
		for k, hd := range h.Headers {
			checkTemplate(fmt.Sprintf("%s.http.headers[%d]", field, k), hd.Value, add)
		}
	}
	if kv := req.KeyValue; kv != nil {
		set++
		if kv.OpCode == nil {
			if _, err := ir.ParseKeyValueOpKind(kv.Op); err != nil {
				add(field+".key_value.op", ErrUnknownOperation, "%v", err)
			}
		}
		checkTemplate(field+".key_value.key", kv.Key, add)
		checkTemplate(field+".key_value.value", kv.Value, add)
	}
	if set != 1 {
		add(field, ErrInvalidRequest, "exactly one of render, redirect, http, key_value, effect_code is required (found %d)", set)
	}
}

func checkTemplate(field, text string, add func(field, code, format string, args ...any)) {
	if !strings.Contains(text, "{{") {
		return
	}
	if _, err := template.New(field).Funcs(templateFuncs).Parse(text); err != nil {
		add(field, ErrInvalidTemplate, "%v", err)
	}
}

func requestKind(req RequestSpec) string {
	switch {
	case req.HTTP != nil:
		return ir.EffectHttp.String()
	case req.KeyValue != nil:
		return ir.EffectKeyValue.String()
	case req.Redirect != "":
		return ir.EffectRedirect.String()
	case req.Render:
		return ir.EffectRender.String()
	default:
		return "raw"
	}
}
