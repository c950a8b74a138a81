// Package failurepolicy implements the per-(profile,use-case) router:
// circuit breaker, backoff, request timeout, and provider failover
// decisions. Grounded on
// r3e-network-service_layer/infrastructure/resilience's
// CircuitBreaker/Retry shape, generalized from a single-endpoint guard
// into a multi-provider router that also emits provider-switch
// decisions for the metrics pipeline.
package failurepolicy

import (
	"sync"
	"time"
)

// Mode is the circuit breaker's current state.
type Mode string

const (
	Closed   Mode = "closed"
	Open     Mode = "open"
	HalfOpen Mode = "half-open"
)

// BackoffKind selects constant or exponential backoff between retries.
type BackoffKind string

const (
	BackoffConstant    BackoffKind = "constant"
	BackoffExponential BackoffKind = "exponential"
)

// Backoff configures the delay between consecutive retry attempts.
type Backoff struct {
	Kind   BackoffKind
	Start  time.Duration
	Factor float64 // only used for Exponential
	Max    time.Duration
}

// Delay returns the backoff duration for the given 1-indexed attempt
// number, clamped to Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch b.Kind {
	case BackoffExponential:
		factor := b.Factor
		if factor <= 0 {
			factor = 2
		}
		d = b.Start
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * factor)
			if b.Max > 0 && d > b.Max {
				d = b.Max
				break
			}
		}
	default:
		d = b.Start
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// PolicyKind selects which of the three policy shapes governs a
// provider.
type PolicyKind string

const (
	PolicyNone           PolicyKind = "none"
	PolicySimpleRetry    PolicyKind = "simple-retry"
	PolicyCircuitBreaker PolicyKind = "circuit-breaker"
)

// PolicyConfig configures one provider's failure policy.
type PolicyConfig struct {
	Kind                 PolicyKind
	MaxContiguousRetries int
	RequestTimeout       time.Duration
	Backoff              Backoff
	OpenTime             time.Duration // circuit-breaker: initial time spent Open
	MaxOpenTime          time.Duration // circuit-breaker: ceiling after repeated trips
}

// providerState is the live failure-policy state for one provider,
// matching §3's "Failure policy state".
type providerState struct {
	cfg                  PolicyConfig
	mode                 Mode
	consecutiveFailures  int
	consecutiveSuccesses int
	currentOpenTime      time.Duration
	openedAt             time.Time
	nextAttemptAt        time.Time
}

// BeforeDecision is the router's answer to beforePerform.
type BeforeDecision string

const (
	BeforeOK      BeforeDecision = "ok"
	BeforeBackoff BeforeDecision = "backoff"
	BeforeRecache BeforeDecision = "recache"
)

// AfterDecision is the router's answer to afterFailure.
type AfterDecision string

const (
	AfterRetryDecision  AfterDecision = "retry"
	AfterSwitchDecision AfterDecision = "switch"
	AfterAbortDecision  AfterDecision = "abort"
)

// FailureReason classifies why an attempt failed, per §4.4's taxonomy.
type FailureReason string

const (
	ReasonNetworkDNS       FailureReason = "network:dns"
	ReasonNetworkTimeout   FailureReason = "network:timeout"
	ReasonNetworkUnsignedSSL FailureReason = "network:unsigned-ssl"
	ReasonNetworkReject    FailureReason = "network:reject"
	ReasonRequestTimeout   FailureReason = "request:timeout"
	ReasonRequestAbort     FailureReason = "request:abort"
	ReasonHTTPStatus       FailureReason = "http:status"
	ReasonUnexpected       FailureReason = "unexpected"
)

// ProviderSwitchEvent is emitted before a failover attempt, feeding the
// metrics pipeline.
type ProviderSwitchEvent struct {
	From    string
	To      string
	Reasons []FailureReason
}

// Clock abstracts time.Now so tests can drive the circuit breaker
// deterministically, per the injected *Timers* collaborator named in the
// external interfaces.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Router is one per (profile, use-case): it holds one PolicyConfig-backed
// state per provider, a priority list for failover, and an allow-failover
// flag.
type Router struct {
	mu            sync.Mutex
	clock         Clock
	providers     map[string]*providerState
	priority      []string
	current       string
	allowFailover bool
	onSwitch      func(ProviderSwitchEvent)
}

// NewRouter constructs a Router with one policy per provider (configs
// keyed by provider name) and a priority order for failover.
func NewRouter(configs map[string]PolicyConfig, priority []string, allowFailover bool, onSwitch func(ProviderSwitchEvent)) *Router {
	r := &Router{
		clock:         systemClock{},
		providers:     map[string]*providerState{},
		priority:      priority,
		allowFailover: allowFailover,
		onSwitch:      onSwitch,
	}
	for name, cfg := range configs {
		r.providers[name] = &providerState{cfg: cfg, mode: Closed}
	}
	if len(priority) > 0 {
		r.current = priority[0]
	}
	return r
}

// SetClock overrides the router's time source, for deterministic tests.
func (r *Router) SetClock(c Clock) { r.clock = c }

// SetAllowFailover toggles failover, e.g. disabled when a caller
// explicitly names a provider for this perform.
func (r *Router) SetAllowFailover(allow bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowFailover = allow
}

// CurrentProvider returns the sticky current provider selection.
func (r *Router) CurrentProvider() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// BeforePerform decides whether the named provider's circuit currently
// allows a call.
func (r *Router) BeforePerform(provider string) BeforeDecision {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.providers[provider]
	if !ok || st.cfg.Kind != PolicyCircuitBreaker {
		return BeforeOK
	}
	now := r.clock.Now()
	switch st.mode {
	case Open:
		if now.Before(st.nextAttemptAt) {
			return BeforeBackoff
		}
		st.mode = HalfOpen
		return BeforeOK
	default:
		return BeforeOK
	}
}

// AfterFailure records a classified failure against provider and decides
// the router's response: retry in place, switch to a healthier provider,
// or abort.
func (r *Router) AfterFailure(provider string, reason FailureReason) AfterDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.providers[provider]
	if !ok {
		return AfterAbortDecision
	}
	st.consecutiveSuccesses = 0
	st.consecutiveFailures++

	switch st.cfg.Kind {
	case PolicyNone:
		return AfterAbortDecision

	case PolicySimpleRetry:
		if st.consecutiveFailures <= st.cfg.MaxContiguousRetries {
			return AfterRetryDecision
		}
		return r.failoverLocked(provider, reason)

	case PolicyCircuitBreaker:
		if st.mode == HalfOpen {
			r.tripOpenLocked(st)
			return r.failoverLocked(provider, reason)
		}
		if st.consecutiveFailures >= st.cfg.MaxContiguousRetries {
			r.tripOpenLocked(st)
			return r.failoverLocked(provider, reason)
		}
		return AfterRetryDecision

	default:
		return AfterAbortDecision
	}
}

func (r *Router) tripOpenLocked(st *providerState) {
	now := r.clock.Now()
	if st.currentOpenTime == 0 {
		st.currentOpenTime = st.cfg.OpenTime
	} else {
		st.currentOpenTime *= 2
		if st.cfg.MaxOpenTime > 0 && st.currentOpenTime > st.cfg.MaxOpenTime {
			st.currentOpenTime = st.cfg.MaxOpenTime
		}
	}
	st.mode = Open
	st.openedAt = now
	st.nextAttemptAt = now.Add(st.currentOpenTime)
}

// failoverLocked selects the next healthy provider in priority order
// (round-robin from the current provider's position) and, if one is
// found and failover is allowed, emits provider-switch and updates the
// sticky current provider.
func (r *Router) failoverLocked(from string, reason FailureReason) AfterDecision {
	if !r.allowFailover || len(r.priority) == 0 {
		return AfterAbortDecision
	}
	startIdx := 0
	for i, name := range r.priority {
		if name == from {
			startIdx = i
			break
		}
	}
	for offset := 1; offset <= len(r.priority); offset++ {
		idx := (startIdx + offset) % len(r.priority)
		candidate := r.priority[idx]
		st, ok := r.providers[candidate]
		if !ok || st.mode != Open {
			r.current = candidate
			if r.onSwitch != nil {
				r.onSwitch(ProviderSwitchEvent{From: from, To: candidate, Reasons: []FailureReason{reason}})
			}
			return AfterSwitchDecision
		}
	}
	if r.onSwitch != nil {
		r.onSwitch(ProviderSwitchEvent{From: from, Reasons: []FailureReason{reason}})
	}
	return AfterAbortDecision
}

// AfterSuccess records a success against provider, resetting the circuit
// breaker to Closed when it was probing from HalfOpen.
func (r *Router) AfterSuccess(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.providers[provider]
	if !ok {
		return
	}
	st.consecutiveFailures = 0
	st.consecutiveSuccesses++
	if st.mode == HalfOpen {
		st.mode = Closed
		st.currentOpenTime = 0
	}
}

// ClassifyHTTPStatus maps a response status code to a FailureReason,
// nil when the status does not indicate a failure.
func ClassifyHTTPStatus(status int) *FailureReason {
	if status >= 500 {
		r := ReasonHTTPStatus
		return &r
	}
	return nil
}
