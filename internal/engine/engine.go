package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alasdair-cooper/watch-history/internal/broadcast"
	"github.com/alasdair-cooper/watch-history/internal/codec"
	"github.com/alasdair-cooper/watch-history/internal/core"
	"github.com/alasdair-cooper/watch-history/internal/ir"
	"github.com/alasdair-cooper/watch-history/internal/view"
)

const tracerName = "github.com/alasdair-cooper/watch-history/internal/engine"

// NetworkExecutor performs one HTTP round trip. Transport failures are
// reported in the result; the error return is for internal defects only.
type NetworkExecutor interface {
	Execute(ctx context.Context, req ir.HttpRequest) (ir.HttpResult, error)
}

// StorageExecutor performs one key-value operation. Storage failures are
// reported in the result; the error return is for internal defects only.
type StorageExecutor interface {
	Execute(ctx context.Context, op ir.KeyValueOperation) (ir.KeyValueResult, error)
}

// Journal receives every payload exchanged with the core.
// Implemented by *store.Store.
type Journal interface {
	Append(ctx context.Context, e ir.JournalEntry) error
}

// Engine is the dispatch loop between the decision core, the executors and
// the view.
//
// Thread-safety model:
//   - Update, Submit, Outstanding: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Engine struct {
	core    core.Core
	network NetworkExecutor
	storage StorageExecutor

	journal     Journal
	cell        *view.Cell
	shellEvents *broadcast.Broadcaster[ir.ShellEvent]
	flowGen     FlowTokenGenerator
	clock       *Clock
	maxSteps    int
	sequential  bool
	logger      *slog.Logger
	tracer      trace.Tracer

	coreMu  sync.Mutex
	pending *pendingSet
	queue   *eventQueue
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal records every core call in j.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithView sets the view cell Render writes to.
func WithView(c *view.Cell) Option {
	return func(e *Engine) { e.cell = c }
}

// WithShellEvents sets the channel Redirect publishes OpenUrl on.
func WithShellEvents(b *broadcast.Broadcaster[ir.ShellEvent]) Option {
	return func(e *Engine) { e.shellEvents = b }
}

// WithFlowGenerator sets the flow token generator (default UUIDv7).
func WithFlowGenerator(g FlowTokenGenerator) Option {
	return func(e *Engine) { e.flowGen = g }
}

// WithClock sets the logical clock used for journal seq values. Use
// NewClockAt(store.MaxSeq()) to continue an existing journal.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithMaxSteps sets the maximum number of continuing requests per flow.
//
// Default: 1000 (DefaultMaxSteps). Zero disables the quota.
func WithMaxSteps(maxSteps int) Option {
	return func(e *Engine) { e.maxSteps = maxSteps }
}

// WithSequential resolves continuing requests one at a time, depth first.
func WithSequential(sequential bool) Option {
	return func(e *Engine) { e.sequential = sequential }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine driving c with the given executors.
func New(c core.Core, network NetworkExecutor, storage StorageExecutor, opts ...Option) *Engine {
	e := &Engine{
		core:     c,
		network:  network,
		storage:  storage,
		flowGen:  UUIDv7Generator{},
		clock:    NewClock(),
		maxSteps: DefaultMaxSteps,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		pending:  newPendingSet(),
		queue:    newEventQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cell == nil {
		e.cell = view.NewCell()
	}
	if e.shellEvents == nil {
		e.shellEvents = broadcast.New[ir.ShellEvent](16, e.logger)
	}
	return e
}

// View returns the view cell Render writes to.
func (e *Engine) View() *view.Cell {
	return e.cell
}

// ShellEvents returns the shell event channel.
func (e *Engine) ShellEvents() *broadcast.Broadcaster[ir.ShellEvent] {
	return e.shellEvents
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Outstanding returns how many continuing requests are awaiting their
// response across all flows.
func (e *Engine) Outstanding() int {
	return e.pending.len()
}

// Update submits ev to the core and drives every request it causes until
// the flow is idle. A non-nil error is a *RuntimeError for a fatal abort, or
// the context's error when ctx ended first.
func (e *Engine) Update(ctx context.Context, ev ir.Event) error {
	token := e.flowGen.Generate()
	ctx, span := e.tracer.Start(ctx, "engine.update", trace.WithAttributes(
		attribute.String("flow.token", token),
		attribute.String("event", ev.Kind.String()),
	))
	defer span.End()

	f := e.newFlow(ctx, token)
	defer f.cancel(nil)

	f.log.Debug("update started", "event", ev.Kind)

	payload := codec.EncodeEvent(ev)
	out, ok := f.callCore(ir.JournalEvent, 0, payload, func(ctx context.Context) ([]byte, error) {
		return e.core.ProcessEvent(ctx, payload)
	})
	if ok {
		if e.sequential {
			f.drainSequential(out)
		} else {
			f.dispatch(out)
		}
	}
	f.wg.Wait()

	err := f.result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if n := e.pending.releaseFlow(token); n > 0 {
			f.log.Warn("released unanswered requests", "count", n)
		}
		return err
	}
	f.log.Debug("update finished", "steps", f.quota.Current())
	return nil
}

// Submit queues ev for Run. Safe from any goroutine; returns false once the
// engine has been stopped.
func (e *Engine) Submit(ev ir.Event) bool {
	return e.queue.Enqueue(ev)
}

// Run processes submitted events one at a time until ctx is done or Stop is
// called. A failed Update is logged and the loop continues with the next
// event.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			if err := e.Update(ctx, ev); err != nil {
				e.logger.Error("update failed", "event", ev.Kind, "error", err)
			}
			continue
		}
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()
		case <-e.queue.Wait():
			// Closed and drained.
			if e.queue.Len() == 0 && e.isStopped() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue. Run returns after draining what was
// already submitted.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) isStopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

// flow is the state of one Update.
type flow struct {
	e      *Engine
	token  string
	ctx    context.Context
	cancel context.CancelCauseFunc
	log    *slog.Logger
	quota  *QuotaEnforcer
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

func (e *Engine) newFlow(ctx context.Context, token string) *flow {
	fctx, cancel := context.WithCancelCause(ctx)
	return &flow{
		e:      e,
		token:  token,
		ctx:    fctx,
		cancel: cancel,
		log:    e.logger.With("flow", token),
		quota:  NewQuotaEnforcer(e.maxSteps),
	}
}

// abort records the first fatal error and cancels the flow. Later
// responses of the flow are suppressed.
func (f *flow) abort(err *RuntimeError) {
	f.mu.Lock()
	first := f.err == nil
	if first {
		f.err = err
	}
	f.mu.Unlock()
	if first {
		f.log.Error("flow aborted", "code", err.Code, "request_id", err.RequestID, "error", err)
		f.cancel(err)
	}
}

func (f *flow) result() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if err := f.ctx.Err(); err != nil {
		return context.Cause(f.ctx)
	}
	return nil
}

// callCore runs one core call under the core mutex, journalling the input
// and the returned batch. Returns false when the flow is already over or the
// call failed (the flow is then aborted).
func (f *flow) callCore(kind ir.JournalKind, id uint32, payload []byte, call func(context.Context) ([]byte, error)) ([]byte, bool) {
	e := f.e
	e.coreMu.Lock()
	defer e.coreMu.Unlock()

	if f.ctx.Err() != nil {
		f.log.Debug("core call suppressed", "kind", kind, "request_id", id)
		return nil, false
	}

	f.record(kind, id, payload)
	out, err := call(f.ctx)
	if err != nil {
		if f.ctx.Err() == nil {
			f.abort(newRuntimeError(ErrCodeCoreFailure, f.token, id, err, "core rejected %s", kind))
		}
		return nil, false
	}
	f.record(ir.JournalRequests, id, out)
	return out, true
}

// record appends a journal entry. Caller holds e.coreMu. Failures are
// logged and do not stop the flow.
func (f *flow) record(kind ir.JournalKind, id uint32, payload []byte) {
	j := f.e.journal
	if j == nil {
		return
	}
	entry, err := ir.NewJournalEntry(f.token, f.e.clock.Next(), kind, id, payload)
	if err == nil {
		err = j.Append(f.ctx, entry)
	}
	if err != nil {
		f.log.Warn("journal append failed", "kind", kind, "request_id", id, "error", err)
	}
}

// decode parses a request batch from the core, aborting on schema errors.
func (f *flow) decode(out []byte, after uint32) ([]ir.Request, bool) {
	reqs, err := codec.DecodeRequests(out)
	if err != nil {
		f.abort(newRuntimeError(ErrCodeSchemaMismatch, f.token, after, err, "undecodable request batch"))
		return nil, false
	}
	return reqs, true
}

// dispatch processes a batch in order and then starts one goroutine per
// continuing request. Every id of the batch is registered before any of
// them can complete, so a repeated id within a batch is always caught.
func (f *flow) dispatch(out []byte) {
	reqs, ok := f.decode(out, 0)
	if !ok {
		return
	}
	var continuing []ir.Request
	for _, req := range reqs {
		if !f.handle(req) {
			return
		}
		if req.Effect.Kind.Continuing() {
			continuing = append(continuing, req)
		}
	}
	for _, req := range continuing {
		f.wg.Add(1)
		go func(req ir.Request) {
			defer f.wg.Done()
			if next, ok := f.resolve(req); ok {
				f.dispatch(next)
			}
		}(req)
	}
}

// batch is a partially processed request batch on the sequential stack.
type batch struct {
	reqs []ir.Request
	next int
}

// drainSequential processes requests depth first: a continuing request's
// follow-up batch is finished before the next request of the outer batch.
// The explicit stack bounds Go stack use regardless of chain length.
func (f *flow) drainSequential(out []byte) {
	reqs, ok := f.decode(out, 0)
	if !ok {
		return
	}
	stack := []*batch{{reqs: reqs}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next >= len(top.reqs) {
			stack = stack[:len(stack)-1]
			continue
		}
		req := top.reqs[top.next]
		top.next++

		if !f.handle(req) {
			return
		}
		if !req.Effect.Kind.Continuing() {
			continue
		}
		next, ok := f.resolve(req)
		if !ok {
			return
		}
		reqs, ok := f.decode(next, req.ID)
		if !ok {
			return
		}
		stack = append(stack, &batch{reqs: reqs})
	}
}

// handle performs the synchronous part of a request: terminal effects run
// to completion; continuing ones are registered and counted. Returns false
// when the flow must stop.
func (f *flow) handle(req ir.Request) bool {
	if f.ctx.Err() != nil {
		return false
	}
	log := f.log.With("request_id", req.ID, "effect", req.Effect.Kind)

	switch req.Effect.Kind {
	case ir.EffectRender:
		log.Debug("render")
		return f.render(req.ID)

	case ir.EffectRedirect:
		log.Debug("redirect", "url", req.Effect.URL)
		if !f.render(req.ID) {
			return false
		}
		f.e.shellEvents.Publish(ir.OpenURL(req.Effect.URL))
		return true

	case ir.EffectHttp, ir.EffectKeyValue:
		if owner, ok := f.e.pending.add(req.ID, f.token); !ok {
			f.abort(newRuntimeError(ErrCodeDuplicateRequest, f.token, req.ID, nil,
				"request id %d is already outstanding in flow %s", req.ID, owner))
			return false
		}
		if err := f.quota.Check(f.token); err != nil {
			f.e.pending.remove(req.ID)
			f.abort(newRuntimeError(ErrCodeQuotaExceeded, f.token, req.ID, err, "flow exceeded %d steps", f.quota.MaxSteps()))
			return false
		}
		log.Debug("request dispatched", "detail", req.Effect.Describe())
		return true

	default:
		f.abort(newRuntimeError(ErrCodeUnknownEffect, f.token, req.ID, nil, "unknown effect kind %d", uint32(req.Effect.Kind)))
		return false
	}
}

// render pulls the view from the core and stores it in the cell.
func (f *flow) render(id uint32) bool {
	_, span := f.e.tracer.Start(f.ctx, "effect.render", trace.WithAttributes(attribute.Int64("request.id", int64(id))))
	defer span.End()

	f.e.coreMu.Lock()
	if f.ctx.Err() != nil {
		f.e.coreMu.Unlock()
		return false
	}
	b, err := f.e.core.View(f.ctx)
	f.e.coreMu.Unlock()
	if err != nil {
		f.abort(newRuntimeError(ErrCodeCoreFailure, f.token, id, err, "core view failed"))
		return false
	}
	vm, err := codec.DecodeViewModel(b)
	if err != nil {
		f.abort(newRuntimeError(ErrCodeSchemaMismatch, f.token, id, err, "undecodable view"))
		return false
	}
	f.e.cell.Store(vm)
	return true
}

// resolve executes a continuing request and hands its response to the
// core. Returns the follow-up batch.
func (f *flow) resolve(req ir.Request) ([]byte, bool) {
	ctx, span := f.e.tracer.Start(f.ctx, "effect."+req.Effect.Kind.String(), trace.WithAttributes(
		attribute.Int64("request.id", int64(req.ID)),
		attribute.String("effect.detail", req.Effect.Describe()),
	))
	defer span.End()

	resp, err := f.execute(ctx, req)
	if err != nil {
		f.e.pending.remove(req.ID)
		span.SetStatus(codes.Error, err.Error())
		f.abort(newRuntimeError(ErrCodeExecutorFailure, f.token, req.ID, err, "%s executor failed", req.Effect.Kind))
		return nil, false
	}
	if resp.Failed() {
		span.SetAttributes(attribute.Bool("effect.failed", true))
	}

	payload, err := codec.EncodeResponse(resp)
	if err != nil {
		f.e.pending.remove(req.ID)
		f.abort(newRuntimeError(ErrCodeExecutorFailure, f.token, req.ID, err, "unencodable response"))
		return nil, false
	}

	// The id is free again once the core has the response; the core may
	// reuse it in the batch it returns.
	f.e.pending.remove(req.ID)
	return f.callCore(ir.JournalResponse, req.ID, payload, func(ctx context.Context) ([]byte, error) {
		return f.e.core.HandleResponse(ctx, req.ID, payload)
	})
}

func (f *flow) execute(ctx context.Context, req ir.Request) (ir.Response, error) {
	resp := ir.Response{RequestID: req.ID, Kind: req.Effect.Kind}
	switch req.Effect.Kind {
	case ir.EffectHttp:
		if req.Effect.HTTP == nil {
			return resp, errors.New("http effect without request")
		}
		res, err := f.e.network.Execute(ctx, *req.Effect.HTTP)
		if err != nil {
			return resp, err
		}
		resp.HTTP = &res
	case ir.EffectKeyValue:
		if req.Effect.KeyValue == nil {
			return resp, errors.New("key-value effect without operation")
		}
		res, err := f.e.storage.Execute(ctx, *req.Effect.KeyValue)
		if err != nil {
			return resp, err
		}
		resp.KeyValue = &res
	}
	f.log.Debug("request resolved", "request_id", req.ID, "failed", resp.Failed())
	return resp, nil
}
