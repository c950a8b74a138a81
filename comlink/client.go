package comlink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oneclient/comlink-runtime/comlinkerr"
	"github.com/oneclient/comlink-runtime/events"
	"github.com/oneclient/comlink-runtime/failurepolicy"
	"github.com/oneclient/comlink-runtime/httpengine"
	"github.com/oneclient/comlink-runtime/mapast"
	"github.com/oneclient/comlink-runtime/metrics"
	"github.com/oneclient/comlink-runtime/profilecache"
	"github.com/oneclient/comlink-runtime/registryclient"
	"github.com/oneclient/comlink-runtime/sandbox"
	"github.com/oneclient/comlink-runtime/variables"
)

// MapParser turns a registry bind response's serialized map AST into a
// *mapast.MapDocument. Parsing the Comlink Map AST's own wire encoding is
// out of this runtime's scope (the registry and the Comlink toolchain own
// that grammar); callers inject whichever decoder matches their registry,
// the same way FileSystem/Fetch/Crypto are injected.
type MapParser func(mapAST string) (*mapast.MapDocument, error)

// ClientOptions wires every collaborator named in §6's external
// interfaces, plus the registry Binder/MapParser, integration parameters,
// and the per-profile provider priority list. A uniform failure policy is
// applied across every provider of a profile rather than one policy per
// provider; a caller needing per-provider policies can still get there by
// registering a distinct Client per provider group. This is the
// documented simplification over the full per-provider policy model.
type ClientOptions struct {
	Binder           registryclient.Binder
	MapParser        MapParser
	Fetch            Fetch
	Logger           Logger
	Parameters       map[string]string  // integration parameters and secrets, by name
	ProfileProviders map[string][]string // profile id -> provider priority (index 0 is the default)
	ProviderPolicy   failurepolicy.PolicyConfig
}

// Client is the top-level runtime entry point named in §6:
// Client(config, options) -> Client, Client.GetProfile.
type Client struct {
	cfg  Config
	opts ClientOptions

	bus        *events.Bus
	cache      *profilecache.Cache
	metrics    *metrics.Reporter
	httpEngine *httpengine.Engine
	sandbox    sandbox.Sandbox
	logger     Logger

	mu      sync.Mutex
	routers map[string]*failurepolicy.Router
}

// NewClient validates cfg and wires the use-case perform pipeline:
// events.Bus, profilecache.Cache (backed by the registry Binder and
// MapParser), httpengine.Engine (backed by Fetch), and, unless
// DisableReporting is set, the debounced metrics.Reporter.
func NewClient(cfg Config, opts ClientOptions) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	if err := cfg.Validate(logger); err != nil {
		return nil, err
	}
	if opts.Binder == nil {
		return nil, comlinkerr.NewConfigurationError("no registry Binder configured", "pass a registryclient.Binder in ClientOptions")
	}
	if opts.MapParser == nil {
		return nil, comlinkerr.NewConfigurationError("no MapParser configured", "pass a MapParser in ClientOptions")
	}

	fetch := opts.Fetch
	if fetch == nil {
		fetch = NewDefaultFetch(nil)
	}

	c := &Client{
		cfg:        cfg,
		opts:       opts,
		bus:        events.New(),
		httpEngine: httpengine.New(&fetchHTTPClient{fetch: fetch}),
		sandbox:    sandbox.New(),
		logger:     logger,
		routers:    map[string]*failurepolicy.Router{},
	}

	cacheDir := ""
	if cfg.Cache {
		cacheDir = cfg.CachePath
	}
	cache, err := profilecache.New(c.loadBoundProfileProvider, cacheDir)
	if err != nil {
		return nil, err
	}
	c.cache = cache

	if !cfg.DisableReporting {
		reporter, err := metrics.New(metrics.Config{TMin: cfg.MetricDebounceTimeMin, TMax: cfg.MetricDebounceTimeMax}, c.bus, c.emitMetrics)
		if err != nil {
			return nil, err
		}
		c.metrics = reporter
	}

	return c, nil
}

// emitMetrics is the default metrics.Reporter sink: it logs the flush at
// debug level. Callers that want a real telemetry sink replace it after
// construction via SetMetricsSink.
func (c *Client) emitMetrics(f metrics.Flush) {
	if c.logger != nil {
		c.logger.Debug("metrics", "flush", "providers", f.Providers)
	}
}

// SetMetricsSink overrides where aggregated metrics flushes are sent.
func (c *Client) SetMetricsSink(sink func(metrics.Flush)) {
	if c.metrics != nil {
		c.metrics.Emit = sink
	}
}

// Bus exposes the event bus so callers can register hooks, per §4.3's
// public interception surface.
func (c *Client) Bus() *events.Bus { return c.bus }

// Close releases the profile cache's background resources (its fsnotify
// watcher, if one was started).
func (c *Client) Close() error {
	return c.cache.Close()
}

// GetProfile resolves a bound profile handle. Binding is lazy: no
// registry call happens until the first UseCase.Perform.
func (c *Client) GetProfile(id, version string) *Profile {
	return &Profile{client: c, ID: id, Version: version}
}

// routerFor returns the (profile, use-case) Router, constructing it on
// first use from ProfileProviders/ProviderPolicy.
func (c *Client) routerFor(profile, usecase string) *failurepolicy.Router {
	key := profile + "::" + usecase
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.routers[key]; ok {
		return r
	}
	priority := c.opts.ProfileProviders[profile]
	configs := map[string]failurepolicy.PolicyConfig{}
	for _, p := range priority {
		configs[p] = c.opts.ProviderPolicy
	}
	r := failurepolicy.NewRouter(configs, priority, true, func(ev failurepolicy.ProviderSwitchEvent) {
		c.bus.EmitVoid(context.Background(), events.EventProviderSwitch, profile, usecase, map[string]any{
			"from": ev.From, "to": ev.To, "reasons": ev.Reasons, "provider": ev.To,
		})
	})
	c.routers[key] = r
	return r
}

// loadBoundProfileProvider is the profilecache.Loader backing c.cache: it
// binds through the registry, parses the returned map AST and provider
// JSON, and resolves the provider's declared security schemes against
// the client's integration parameters.
func (c *Client) loadBoundProfileProvider(ctx context.Context, key profilecache.Key) (*profilecache.BoundProfileProvider, error) {
	bound, err := c.opts.Binder.Bind(ctx, registryclient.BindRequest{
		ProfileID:      key.ProfileID,
		ProfileVersion: key.ProfileVersion,
		Provider:       key.ProviderName,
		MapVariant:     key.MapVariant,
		MapRevision:    key.MapRevision,
	})
	if err != nil {
		return nil, err
	}

	doc, err := c.opts.MapParser(bound.MapAST)
	if err != nil {
		return nil, comlinkerr.NewBindingError(fmt.Sprintf("parsing map AST for provider %q", key.ProviderName), err)
	}

	providerCfg, err := ParseProviderConfig(bound.Provider)
	if err != nil {
		return nil, comlinkerr.NewBindingError(fmt.Sprintf("parsing provider config for %q", key.ProviderName), err)
	}

	schemes, err := ResolveSecurity(providerCfg, c.opts.Parameters)
	if err != nil {
		return nil, err
	}

	return &profilecache.BoundProfileProvider{
		MapAST:          doc,
		ProviderJSON:    providerCfg,
		ServiceSelector: providerCfg.Services,
		SecurityConfig:  schemes,
		ExpiresAt:       time.Now().Add(c.cfg.SuperfaceCacheTimeout),
	}, nil
}

func toVariablesMapping(m map[string]string) variables.Value {
	out := variables.Mapping{}
	for k, v := range m {
		out[k] = v
	}
	return out
}
