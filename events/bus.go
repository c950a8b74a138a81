// Package events implements the typed event bus driving retry and
// failover: pre-<E>/post-<E>/<E> events, priority-ordered listeners, and
// the before/after interception outcomes that wrap a perform. Grounded
// on the teacher's StepProfilerData/profiler-channel pattern
// (authenticator.go, crawler.go) generalized from a fixed set of
// profiler points into an arbitrary registrable bus.
package events

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Name is one of the typed event kinds the core emits.
type Name string

const (
	EventPerform        Name = "perform"
	EventBindAndPerform  Name = "bind-and-perform"
	EventFetch           Name = "fetch"
	EventUnhandledHTTP   Name = "unhandled-http"
	EventSuccess         Name = "success"
	EventFailure         Name = "failure"
	EventProviderSwitch  Name = "provider-switch"
)

// Phase distinguishes before/after/void emission of a Name.
type Phase string

const (
	PhaseBefore Phase = "pre"
	PhaseAfter  Phase = "post"
	PhaseVoid   Phase = ""
)

// Filter restricts a listener to matching profile/use-case emissions;
// zero-value fields match anything.
type Filter struct {
	Profile string
	UseCase string
}

func (f Filter) matches(profile, usecase string) bool {
	if f.Profile != "" && f.Profile != profile {
		return false
	}
	if f.UseCase != "" && f.UseCase != usecase {
		return false
	}
	return true
}

// Event is one emission: its correlation ID, the original event name and
// phase, and an arbitrary payload plus profile/use-case addressing for
// filter matching.
type Event struct {
	ID       uuid.UUID
	ParentID *uuid.UUID
	Name     Name
	Phase    Phase
	Profile  string
	UseCase  string
	Payload  any
}

// BeforeOutcome is a before-hook's decision.
type BeforeOutcome struct {
	Kind    BeforeKind
	NewArgs any
	Result  any
}

type BeforeKind string

const (
	BeforeContinue BeforeKind = "continue"
	BeforeModify   BeforeKind = "modify-args"
	BeforeAbort    BeforeKind = "abort"
)

// AfterOutcome is an after-hook's decision.
type AfterOutcome struct {
	Kind    AfterKind
	Result  any
	NewArgs any
}

type AfterKind string

const (
	AfterContinue     AfterKind = "continue"
	AfterModifyResult AfterKind = "modify-result"
	AfterRetry        AfterKind = "retry"
)

// BeforeListener observes a pre-<E> emission.
type BeforeListener func(ctx context.Context, ev Event) BeforeOutcome

// AfterListener observes a post-<E> emission.
type AfterListener func(ctx context.Context, ev Event) AfterOutcome

// VoidListener observes a plain <E> emission with no outcome.
type VoidListener func(ctx context.Context, ev Event)

type registration[L any] struct {
	priority int
	filter   Filter
	listener L
}

// Bus is the typed event bus. One Bus instance is shared across all
// performs in a Client, matching the single-writer-per-reporter
// concurrency note — listener slices are copy-on-write under a mutex so
// emission never holds the lock across a listener call (listeners may
// re-enter the bus).
type Bus struct {
	mu     sync.Mutex
	before map[Name][]registration[BeforeListener]
	after  map[Name][]registration[AfterListener]
	void   map[Name][]registration[VoidListener]
}

func New() *Bus {
	return &Bus{
		before: map[Name][]registration[BeforeListener]{},
		after:  map[Name][]registration[AfterListener]{},
		void:   map[Name][]registration[VoidListener]{},
	}
}

// OnBefore registers a pre-<name> listener at the given priority
// (ascending fire order) and optional filter.
func (b *Bus) OnBefore(name Name, priority int, filter Filter, l BeforeListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.before[name] = insertSorted(b.before[name], registration[BeforeListener]{priority, filter, l})
}

// OnAfter registers a post-<name> listener.
func (b *Bus) OnAfter(name Name, priority int, filter Filter, l AfterListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.after[name] = insertSorted(b.after[name], registration[AfterListener]{priority, filter, l})
}

// On registers a void <name> listener.
func (b *Bus) On(name Name, priority int, filter Filter, l VoidListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.void[name] = insertSorted(b.void[name], registration[VoidListener]{priority, filter, l})
}

func insertSorted[L any](regs []registration[L], r registration[L]) []registration[L] {
	out := append(append([]registration[L]{}, regs...), r)
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out
}

// EmitVoid fires every matching void listener for name in priority
// order, sequentially.
func (b *Bus) EmitVoid(ctx context.Context, name Name, profile, usecase string, payload any) {
	b.mu.Lock()
	regs := append([]registration[VoidListener]{}, b.void[name]...)
	b.mu.Unlock()

	ev := Event{ID: uuid.New(), Name: name, Phase: PhaseVoid, Profile: profile, UseCase: usecase, Payload: payload}
	for _, r := range regs {
		if !r.filter.matches(profile, usecase) {
			continue
		}
		r.listener(ctx, ev)
	}
}

// runBefore fires pre-<name> listeners in priority order, stopping at
// the first abort outcome; a modify-args outcome replaces the args and
// the remaining listeners still run.
func (b *Bus) runBefore(ctx context.Context, name Name, profile, usecase string, args any) BeforeOutcome {
	b.mu.Lock()
	regs := append([]registration[BeforeListener]{}, b.before[name]...)
	b.mu.Unlock()

	ev := Event{ID: uuid.New(), Name: name, Phase: PhaseBefore, Profile: profile, UseCase: usecase, Payload: args}
	for _, r := range regs {
		if !r.filter.matches(profile, usecase) {
			continue
		}
		out := r.listener(ctx, ev)
		switch out.Kind {
		case BeforeModify:
			args = out.NewArgs
			ev.Payload = args
		case BeforeAbort:
			return out
		}
	}
	return BeforeOutcome{Kind: BeforeContinue, NewArgs: args}
}

// runAfter fires post-<name> listeners in priority order, stopping at
// the first retry/modify-result outcome.
func (b *Bus) runAfter(ctx context.Context, name Name, profile, usecase string, result any) AfterOutcome {
	b.mu.Lock()
	regs := append([]registration[AfterListener]{}, b.after[name]...)
	b.mu.Unlock()

	ev := Event{ID: uuid.New(), Name: name, Phase: PhaseAfter, Profile: profile, UseCase: usecase, Payload: result}
	for _, r := range regs {
		if !r.filter.matches(profile, usecase) {
			continue
		}
		out := r.listener(ctx, ev)
		switch out.Kind {
		case AfterModifyResult, AfterRetry:
			return out
		}
	}
	return AfterOutcome{Kind: AfterContinue, Result: result}
}

// Intercept wraps fn in the pre-<name>/post-<name> interceptor
// contract: before hooks may abort with a substituted result or modify
// args; after hooks may substitute the result or request a retry (which
// re-invokes fn, optionally with new args, and re-runs the after chain).
func Intercept[A, R any](ctx context.Context, b *Bus, name Name, profile, usecase string, args A, fn func(context.Context, A) (R, error)) (R, error) {
	for {
		before := b.runBefore(ctx, name, profile, usecase, args)
		if before.Kind == BeforeAbort {
			r, _ := before.Result.(R)
			return r, nil
		}
		if before.Kind == BeforeModify {
			args, _ = before.NewArgs.(A)
		}

		result, err := fn(ctx, args)

		after := b.runAfter(ctx, name, profile, usecase, result)
		switch after.Kind {
		case AfterModifyResult:
			r, _ := after.Result.(R)
			return r, err
		case AfterRetry:
			if after.NewArgs != nil {
				args, _ = after.NewArgs.(A)
			}
			continue
		default:
			return result, err
		}
	}
}
