package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"text/template"

	"github.com/alasdair-cooper/watch-history/internal/codec"
	"github.com/alasdair-cooper/watch-history/internal/ir"
)

var templateFuncs = template.FuncMap{
	// field extracts a top-level field from a JSON object body.
	"field": func(body, name string) string {
		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err != nil {
			return ""
		}
		v, ok := obj[name]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	},
}

// ScriptCore is a deterministic in-process Core driven by a Script.
//
// It keeps its own model (the view plus the names of outstanding requests)
// and is safe for concurrent use, although callers are expected to
// serialize calls anyway.
type ScriptCore struct {
	mu        sync.Mutex
	script    *Script
	vars      map[string]string
	view      *ir.ViewModel
	pending   map[uint32]pendingRequest
	nextID    uint32
	templates map[string]*template.Template
}

type pendingRequest struct {
	name string
	kind ir.EffectKind
	flow flowData
}

// flowData is the event context carried from an event to the responses it
// causes.
type flowData struct {
	event string
	url   string
	query map[string]string
}

// templateData is what script templates can reference.
type templateData struct {
	Vars    map[string]string
	Event   string
	URL     string
	Query   map[string]string
	Status  int
	Body    string
	Value   string
	Keys    []string
	Exists  bool
	Summary string
}

// ScriptOption configures a ScriptCore.
type ScriptOption func(*ScriptCore)

// WithVars overrides script variables.
func WithVars(vars map[string]string) ScriptOption {
	return func(c *ScriptCore) {
		for k, v := range vars {
			c.vars[k] = v
		}
	}
}

// NewScriptCore creates a core running script. The script must already be
// valid (see Validate).
func NewScriptCore(script *Script, opts ...ScriptOption) *ScriptCore {
	c := &ScriptCore{
		script:    script,
		vars:      make(map[string]string, len(script.Vars)),
		view:      &ir.ViewModel{},
		pending:   make(map[uint32]pendingRequest),
		nextID:    1,
		templates: make(map[string]*template.Template),
	}
	for k, v := range script.Vars {
		c.vars[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessEvent implements Core.
func (c *ScriptCore) ProcessEvent(ctx context.Context, event []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ev, err := codec.DecodeEvent(event)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// An idle core numbers each flow from 1 so a flow replays the same ids
	// on a fresh core.
	if len(c.pending) == 0 {
		c.nextID = 1
	}
	c.view.Log = append(c.view.Log, ir.LogEntry{Level: ir.LogInfo, Message: "Event: " + describeEvent(ev)})

	flow := flowData{event: ev.Kind.String(), url: ev.URL, query: map[string]string{}}
	if ev.URL != "" {
		if u, err := url.Parse(ev.URL); err == nil {
			for k, vs := range u.Query() {
				if len(vs) > 0 {
					flow.query[k] = vs[0]
				}
			}
		}
	}
	data := c.dataFor(flow)

	for _, rule := range c.script.Rules {
		if rule.On.Event != flow.event || !matchParam(rule.When, flow) {
			continue
		}
		return c.apply(rule, flow, data)
	}
	return codec.EncodeRequests(nil), nil
}

// HandleResponse implements Core.
func (c *ScriptCore) HandleResponse(ctx context.Context, id uint32, response []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := codec.DecodeResponse(response)
	if err != nil {
		return nil, err
	}
	if resp.RequestID != id {
		return nil, fmt.Errorf("response for request %d delivered as %d", resp.RequestID, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		return nil, fmt.Errorf("no outstanding request with id %d", id)
	}
	if p.kind != resp.Kind {
		return nil, fmt.Errorf("request %d is %s but response is %s", id, p.kind, resp.Kind)
	}
	delete(c.pending, id)

	data := c.dataFor(p.flow)
	fillResult(&data, resp)

	for _, rule := range c.script.Rules {
		if p.name == "" || rule.On.Response != p.name {
			continue
		}
		if !matchParam(rule.When, p.flow) || !matchResult(rule.When, resp) {
			continue
		}
		return c.apply(rule, p.flow, data)
	}
	return codec.EncodeRequests(nil), nil
}

// View implements Core.
func (c *ScriptCore) View(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return codec.EncodeViewModel(c.view), nil
}

// Outstanding returns the ids the core is waiting on.
func (c *ScriptCore) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *ScriptCore) dataFor(flow flowData) templateData {
	return templateData{Vars: c.vars, Event: flow.event, URL: flow.url, Query: flow.query}
}

func (c *ScriptCore) apply(rule Rule, flow flowData, data templateData) ([]byte, error) {
	if rule.View != nil {
		if err := c.patchView(rule.View, data); err != nil {
			return nil, err
		}
	}

	reqs := make([]ir.Request, 0, len(rule.Requests))
	for i, spec := range rule.Requests {
		eff, err := c.buildEffect(spec, data)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		id := c.allocate(spec.ID)
		if eff.Kind.Continuing() {
			c.pending[id] = pendingRequest{name: spec.Name, kind: eff.Kind, flow: flow}
		}
		reqs = append(reqs, ir.Request{ID: id, Effect: eff})
	}
	return codec.EncodeRequests(reqs), nil
}

// allocate returns the pinned id or the next free one. Ids are never 0.
func (c *ScriptCore) allocate(pinned *uint32) uint32 {
	if pinned != nil {
		if *pinned >= c.nextID {
			c.nextID = *pinned + 1
		}
		return *pinned
	}
	for {
		id := c.nextID
		c.nextID++
		if c.nextID == 0 {
			c.nextID = 1
		}
		if _, busy := c.pending[id]; !busy && id != 0 {
			return id
		}
	}
}

func (c *ScriptCore) buildEffect(spec RequestSpec, data templateData) (ir.Effect, error) {
	switch {
	case spec.Render:
		return ir.Render(), nil
	case spec.Redirect != "":
		u, err := c.render(spec.Redirect, data)
		if err != nil {
			return ir.Effect{}, err
		}
		return ir.Redirect(u), nil
	case spec.HTTP != nil:
		u, err := c.render(spec.HTTP.URL, data)
		if err != nil {
			return ir.Effect{}, err
		}
		body, err := c.render(spec.HTTP.Body, data)
		if err != nil {
			return ir.Effect{}, err
		}
		headers := make([]ir.Header, 0, len(spec.HTTP.Headers))
		for _, h := range spec.HTTP.Headers {
			v, err := c.render(h.Value, data)
			if err != nil {
				return ir.Effect{}, err
			}
			headers = append(headers, ir.Header{Name: h.Name, Value: v})
		}
		method := spec.HTTP.Method
		if method == "" {
			method = "GET"
		}
		req := ir.HttpRequest{Method: method, URL: u, Headers: headers}
		if body != "" {
			req.Body = []byte(body)
		}
		return ir.HTTP(req), nil
	case spec.KeyValue != nil:
		kv := spec.KeyValue
		op := ir.KeyValueOperation{Prefix: kv.Prefix}
		if kv.OpCode != nil {
			op.Op = ir.KeyValueOpKind(*kv.OpCode)
		} else {
			kind, err := ir.ParseKeyValueOpKind(kv.Op)
			if err != nil {
				return ir.Effect{}, err
			}
			op.Op = kind
		}
		key, err := c.render(kv.Key, data)
		if err != nil {
			return ir.Effect{}, err
		}
		op.Key = key
		if op.Op == ir.KeyValueSet {
			value, err := c.render(kv.Value, data)
			if err != nil {
				return ir.Effect{}, err
			}
			op.Value = []byte(value)
		}
		return ir.KeyValue(op), nil
	case spec.EffectCode != nil:
		return ir.Effect{Kind: ir.EffectKind(*spec.EffectCode)}, nil
	default:
		return ir.Effect{}, fmt.Errorf("request has no effect")
	}
}

func (c *ScriptCore) patchView(p *ViewPatch, data templateData) error {
	// Build a new model so a failed patch leaves the old one intact.
	next := c.view.Clone()
	for _, l := range p.Log {
		level, err := ir.ParseLogLevel(l.Level)
		if err != nil {
			return err
		}
		msg, err := c.render(l.Message, data)
		if err != nil {
			return err
		}
		next.Log = append(next.Log, ir.LogEntry{Level: level, Message: msg})
	}
	if len(p.Films) > 0 {
		films := make([]ir.WatchedFilm, 0, len(p.Films))
		for _, f := range p.Films {
			rating, err := ir.ParseRating(f.Rating)
			if err != nil {
				return err
			}
			films = append(films, ir.WatchedFilm{Title: f.Title, Rating: rating, YearWatched: f.Year, MonthWatched: f.Month})
		}
		next.Films = films
	}
	if p.ClearUser {
		next.UserInfo = nil
	}
	if p.User != nil {
		name, err := c.render(p.User.Name, data)
		if err != nil {
			return err
		}
		avatar, err := c.render(p.User.AvatarURL, data)
		if err != nil {
			return err
		}
		next.UserInfo = &ir.UserInfo{Name: name, AvatarURL: avatar}
	}
	c.view = next
	return nil
}

func (c *ScriptCore) render(text string, data templateData) (string, error) {
	t, ok := c.templates[text]
	if !ok {
		var err error
		t, err = template.New("script").Funcs(templateFuncs).Option("missingkey=zero").Parse(text)
		if err != nil {
			return "", fmt.Errorf("parse template %q: %w", text, err)
		}
		c.templates[text] = t
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %q: %w", text, err)
	}
	return buf.String(), nil
}

func describeEvent(ev ir.Event) string {
	switch ev.Kind {
	case ir.EventInitialLoad:
		return "InitialLoad"
	case ir.EventLoginButtonClicked:
		return "LoginButtonClicked"
	case ir.EventCallbackReceived:
		return fmt.Sprintf("CallbackReceived(%q)", ev.URL)
	default:
		return ev.Kind.String()
	}
}

func matchParam(c *Condition, flow flowData) bool {
	if c == nil || c.Param == "" {
		return true
	}
	_, ok := flow.query[c.Param]
	return ok
}

func matchResult(c *Condition, resp ir.Response) bool {
	if c == nil {
		return true
	}
	failed := resp.Failed()
	if c.Error != "" {
		if !failed {
			return false
		}
		if c.Error != "any" && c.Error != errorKindName(resp) {
			return false
		}
	}
	if c.Status != nil {
		if failed || resp.Kind != ir.EffectHttp || int(resp.HTTP.Response.Status) != *c.Status {
			return false
		}
	}
	if c.Found != nil {
		if failed || resp.Kind != ir.EffectKeyValue || resp.KeyValue.Response.Op != ir.KeyValueGet ||
			resp.KeyValue.Response.Found != *c.Found {
			return false
		}
	}
	if c.Exists != nil {
		if failed || resp.Kind != ir.EffectKeyValue || resp.KeyValue.Response.Op != ir.KeyValueExists ||
			resp.KeyValue.Response.Exists != *c.Exists {
			return false
		}
	}
	return true
}

func errorKindName(resp ir.Response) string {
	switch {
	case resp.HTTP != nil && resp.HTTP.Err != nil:
		return resp.HTTP.Err.Kind.String()
	case resp.KeyValue != nil && resp.KeyValue.Err != nil:
		return resp.KeyValue.Err.Kind.String()
	}
	return ""
}

func fillResult(data *templateData, resp ir.Response) {
	switch {
	case resp.HTTP != nil && resp.HTTP.Response != nil:
		data.Status = int(resp.HTTP.Response.Status)
		data.Body = string(resp.HTTP.Response.Body)
		data.Summary = fmt.Sprintf("status %d", data.Status)
	case resp.HTTP != nil && resp.HTTP.Err != nil:
		data.Summary = resp.HTTP.Err.Error()
	case resp.KeyValue != nil && resp.KeyValue.Response != nil:
		r := resp.KeyValue.Response
		data.Value = string(r.Value)
		data.Keys = r.Keys
		data.Exists = r.Exists
		data.Summary = r.Op.String()
	case resp.KeyValue != nil && resp.KeyValue.Err != nil:
		data.Summary = resp.KeyValue.Err.Error()
	}
}
