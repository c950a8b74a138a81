// Package metrics implements the debounced telemetry aggregator:
// subscribes to success/failure/provider-switch events, buffers tuples,
// and flushes one aggregated event after a quiet period (T_min) bounded
// by an upper ceiling from the first buffered entry (T_max). Grounded on
// the teacher's profiler-channel consumer pattern in crawler.go
// (ApiCrawler.profiler), generalized from a raw channel drain into a
// timer-debounced buffer.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/oneclient/comlink-runtime/comlinkerr"
	"github.com/oneclient/comlink-runtime/events"
)

// Entry is one buffered perform observation (success or failure);
// provider-switch events flush the buffer and are not buffered
// themselves.
type Entry struct {
	Profile   string
	Provider  string
	Success   bool
	Timestamp time.Time
}

// ProviderMetrics is one provider's aggregate counts within a flush.
type ProviderMetrics struct {
	Profile  string
	Provider string
	Success  int
	Failed   int
}

// Flush is the aggregated payload emitted after a debounce window.
type Flush struct {
	Providers []ProviderMetrics
}

// Config configures the debounce window. Per the documented Open
// Question resolution (DESIGN.md), TMax defaults to 3×TMin when unset.
type Config struct {
	TMin time.Duration
	TMax time.Duration
}

// DefaultConfig returns the documented default: TMin=10s, TMax=3×TMin.
func DefaultConfig() Config {
	tMin := 10 * time.Second
	return Config{TMin: tMin, TMax: 3 * tMin}
}

// Reporter buffers perform/switch events and emits aggregated Flush
// payloads through Emit.
type Reporter struct {
	cfg  Config
	bus  *events.Bus
	Emit func(Flush)

	mu          sync.Mutex
	buffer      []Entry
	firstAt     time.Time
	quietTimer  *time.Timer
	ceilTimer   *time.Timer
}

// New validates cfg (TMax must be >= TMin, per §4.6) and subscribes the
// reporter to success/failure/provider-switch on bus.
func New(cfg Config, bus *events.Bus, emit func(Flush)) (*Reporter, error) {
	if cfg.TMax == 0 {
		cfg.TMax = 3 * cfg.TMin
	}
	if cfg.TMax < cfg.TMin {
		return nil, comlinkerr.NewConfigurationError(
			"metricDebounceTimeMax must be >= metricDebounceTimeMin",
			"raise metricDebounceTimeMax or lower metricDebounceTimeMin",
		)
	}
	r := &Reporter{cfg: cfg, bus: bus, Emit: emit}

	bus.On(events.EventSuccess, 0, events.Filter{}, func(ctx context.Context, ev events.Event) {
		r.record(Entry{Profile: ev.Profile, Provider: stringPayload(ev.Payload, "provider"), Success: true, Timestamp: time.Now()})
	})
	bus.On(events.EventFailure, 0, events.Filter{}, func(ctx context.Context, ev events.Event) {
		r.record(Entry{Profile: ev.Profile, Provider: stringPayload(ev.Payload, "provider"), Success: false, Timestamp: time.Now()})
	})
	bus.On(events.EventProviderSwitch, 0, events.Filter{}, func(ctx context.Context, ev events.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.flushLocked()
	})

	return r, nil
}

// record appends an entry and (re)arms the debounce timers: the quiet
// timer resets on every new entry; the ceiling timer is armed once, on
// the first entry of a fresh window.
func (r *Reporter) record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, e)

	if len(r.buffer) == 1 {
		r.firstAt = e.Timestamp
		r.ceilTimer = time.AfterFunc(r.cfg.TMax, func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.flushLocked()
		})
	}
	if r.quietTimer != nil {
		r.quietTimer.Stop()
	}
	r.quietTimer = time.AfterFunc(r.cfg.TMin, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.flushLocked()
	})
}

// flushLocked must be called with mu held; it aggregates the buffer by
// (profile, provider), emits the Flush, and resets the buffer
// atomically.
func (r *Reporter) flushLocked() {
	if len(r.buffer) == 0 {
		return
	}
	if r.quietTimer != nil {
		r.quietTimer.Stop()
		r.quietTimer = nil
	}
	if r.ceilTimer != nil {
		r.ceilTimer.Stop()
		r.ceilTimer = nil
	}

	agg := map[[2]string]*ProviderMetrics{}
	var order [][2]string
	for _, e := range r.buffer {
		key := [2]string{e.Profile, e.Provider}
		pm, ok := agg[key]
		if !ok {
			pm = &ProviderMetrics{Profile: e.Profile, Provider: e.Provider}
			agg[key] = pm
			order = append(order, key)
		}
		if e.Success {
			pm.Success++
		} else {
			pm.Failed++
		}
	}

	flush := Flush{}
	for _, key := range order {
		flush.Providers = append(flush.Providers, *agg[key])
	}

	r.buffer = nil
	if r.Emit != nil {
		r.Emit(flush)
	}
}

func stringPayload(payload any, key string) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
