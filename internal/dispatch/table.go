// Package dispatch routes tool calls from any transport to their handlers.
//
// A Table is built once from the registered specs and is read-only
// afterwards. Each entry carries a decoder compiled from its parameter
// list, so calls never inspect the spec again.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bobmcallan/toolhost/internal/common"
	"github.com/bobmcallan/toolhost/internal/normalize"
	"github.com/bobmcallan/toolhost/internal/tool"
)

// ResultField is the single field every response carries.
const ResultField = "result"

// Options tunes call execution.
type Options struct {
	// MaxConcurrent bounds in-flight handler invocations. Zero or less
	// means unbounded.
	MaxConcurrent int64
	// CallTimeout bounds each call, including time spent waiting for the
	// application guard. Zero or less means no deadline.
	CallTimeout time.Duration
	// Guard serializes mutating tools against one application instance.
	// Built-in tools sharing the instance must share the guard. A nil
	// Guard gets a private one.
	Guard  *sync.RWMutex
	Logger *common.Logger
}

// Entry is the dispatch record of one tool. Entries are immutable; the
// accessors return copies.
type Entry struct {
	name       string
	paramNames []string
	readOnly   bool

	spec    tool.Spec
	params  []param
	handler tool.Handler
}

type param struct {
	name     string
	optional bool
	decode   decoder
}

// Name returns the resolved tool name.
func (e *Entry) Name() string { return e.name }

// ParamNames returns parameter names in declaration order.
func (e *Entry) ParamNames() []string {
	return append([]string(nil), e.paramNames...)
}

// ReadOnly reports whether the tool runs under the shared read guard.
func (e *Entry) ReadOnly() bool { return e.readOnly }

// Spec returns a copy of the descriptor the entry was built from.
func (e *Entry) Spec() tool.Spec {
	spec := e.spec
	spec.Params = append([]tool.Param(nil), e.spec.Params...)
	return spec
}

// Decode extracts the entry's arguments from request by name. Order is
// irrelevant and unknown fields are ignored.
func (e *Entry) Decode(request map[string]any) (tool.Args, error) {
	args := make(tool.Args, len(e.params))
	for _, p := range e.params {
		raw, ok := request[p.name]
		if !ok || raw == nil {
			if p.optional {
				args[p.name] = nil
				continue
			}
			return nil, &ArgumentError{Field: p.name, Reason: "missing required parameter"}
		}
		v, err := p.decode(raw, p.name)
		if err != nil {
			return nil, &ArgumentError{Field: p.name, Reason: err.Error()}
		}
		args[p.name] = v
	}
	return args, nil
}

// Encode wraps the normalized result under ResultField. Tools without a
// declared return type always encode a null result.
func (e *Entry) Encode(result any) map[string]any {
	if e.spec.Returns == nil {
		return map[string]any{ResultField: nil}
	}
	return map[string]any{ResultField: normalize.Value(result)}
}

// Table maps tool names to entries.
type Table struct {
	entries map[string]*Entry
	order   []string
	guard   *sync.RWMutex
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *common.Logger
}

// Build creates a Table from specs. Duplicate or invalid names fail with
// *tool.RegistrationError.
func Build(specs []tool.Spec, opts Options) (*Table, error) {
	t := &Table{
		entries: make(map[string]*Entry, len(specs)),
		guard:   opts.Guard,
		timeout: opts.CallTimeout,
		logger:  opts.Logger,
	}
	if t.guard == nil {
		t.guard = &sync.RWMutex{}
	}
	if t.logger == nil {
		t.logger = common.NewSilentLogger()
	}
	if opts.MaxConcurrent > 0 {
		t.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}

	composites := make(map[string]*decoder)
	for _, spec := range specs {
		name := spec.ResolvedName()
		if !tool.IsIdentifier(name) {
			return nil, &tool.RegistrationError{Tool: name, Member: spec.Member, Reason: "invalid tool name"}
		}
		if spec.Handler == nil {
			return nil, &tool.RegistrationError{Tool: name, Member: spec.Member, Reason: "handler is nil"}
		}
		if prev, exists := t.entries[name]; exists {
			return nil, &tool.RegistrationError{
				Tool:   name,
				Member: spec.Member,
				Reason: fmt.Sprintf("name already registered by %s", prev.spec.Member),
			}
		}

		entry := &Entry{
			name:       name,
			paramNames: spec.ParamNames(),
			readOnly:   spec.ReadOnly,
			spec:       spec,
			handler:    spec.Handler,
		}
		for _, p := range spec.Params {
			entry.params = append(entry.params, param{
				name:     p.Name,
				optional: nullable(p.Type),
				decode:   compile(p.Type, composites),
			})
		}
		t.entries[name] = entry
		t.order = append(t.order, name)
	}
	return t, nil
}

// Lookup returns the entry registered under name.
func (t *Table) Lookup(name string) (*Entry, bool) {
	e, ok := t.entries[name]
	return e, ok
}

// Names returns tool names in registration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Specs returns the descriptors in registration order.
func (t *Table) Specs() []tool.Spec {
	out := make([]tool.Spec, len(t.order))
	for i, name := range t.order {
		out[i] = t.entries[name].Spec()
	}
	return out
}

func (t *Table) Len() int { return len(t.order) }

// Call runs the named tool with the given request object and returns the
// encoded response {"result": value}. Every failure is a *Error; none of
// them affect other calls.
func (t *Table) Call(ctx context.Context, name string, request map[string]any) (map[string]any, error) {
	entry, ok := t.entries[name]
	if !ok {
		return nil, &Error{Code: CodeNotFound, Tool: name, Message: "tool not found"}
	}

	args, err := entry.Decode(request)
	if err != nil {
		var argErr *ArgumentError
		errors.As(err, &argErr)
		return nil, &Error{Code: CodeInvalidArgument, Tool: name, Field: argErr.Field, Message: argErr.Reason, Err: err}
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if t.sem != nil {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return nil, t.contextError(name, err, "no capacity for call")
		}
	}

	result, err := t.invoke(ctx, entry, args)
	if err != nil {
		return nil, err
	}
	return entry.Encode(result), nil
}

type outcome struct {
	result any
	err    error
}

// invoke runs the handler on its own goroutine under the application
// guard. When ctx ends first the caller gets a deadline error while the
// handler keeps its guard and semaphore slot until it returns.
func (t *Table) invoke(ctx context.Context, entry *Entry, args tool.Args) (any, error) {
	done := make(chan outcome, 1)

	go func() {
		if t.sem != nil {
			defer t.sem.Release(1)
		}
		if entry.readOnly {
			t.guard.RLock()
			defer t.guard.RUnlock()
		} else {
			t.guard.Lock()
			defer t.guard.Unlock()
		}

		// The caller may have given up while this call waited for the guard.
		if ctx.Err() != nil {
			done <- outcome{err: ctx.Err()}
			return
		}

		defer func() {
			if r := recover(); r != nil {
				t.logger.Error().
					Str("tool", entry.name).
					Str("panic", fmt.Sprint(r)).
					Str("stack", string(debug.Stack())).
					Msg("tool handler panicked")
				done <- outcome{err: &Error{Code: CodeInternal, Tool: entry.name, Message: fmt.Sprintf("handler panicked: %v", r)}}
			}
		}()

		result, err := entry.handler(ctx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			return out.result, nil
		}
		return nil, t.handlerError(entry.name, out.err)
	case <-ctx.Done():
		t.logger.Warn().Str("tool", entry.name).Err(ctx.Err()).Msg("tool call abandoned")
		return nil, t.contextError(entry.name, ctx.Err(), "call did not complete")
	}
}

func (t *Table) handlerError(name string, err error) error {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return t.contextError(name, err, "call did not complete")
	}
	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		return &Error{Code: CodeInvalidArgument, Tool: name, Field: argErr.Field, Message: argErr.Reason, Err: err}
	}
	t.logger.Debug().Str("tool", name).Err(err).Msg("tool handler returned error")
	return &Error{Code: CodeHandler, Tool: name, Message: err.Error(), Err: err}
}

func (t *Table) contextError(name string, err error, msg string) error {
	code := CodeUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeDeadlineExceeded
	}
	return &Error{Code: code, Tool: name, Message: fmt.Sprintf("%s: %v", msg, err), Err: err}
}
