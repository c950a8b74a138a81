package comlink

import (
	"regexp"
	"time"

	"github.com/oneclient/comlink-runtime/comlinkerr"
)

// Config enumerates every configuration option named in §6. SuperfacePath
// and SuperfaceAPIURL are accepted for parity with the documented config
// surface but are not read by Client itself: the registry client is
// consumed as a collaborator (ClientOptions.Binder), never constructed
// internally, so it is the caller's job to build that Binder (and any
// local-file MapParser override) from these two values before passing it
// in. Client only ever touches ClientOptions.Binder/MapParser.
type Config struct {
	CachePath       string
	SuperfacePath   string
	SuperfaceAPIURL string
	SDKAuthToken    string // validated below; invalid values are ignored with a warning, not rejected

	DisableReporting bool

	MetricDebounceTimeMin time.Duration
	MetricDebounceTimeMax time.Duration

	SandboxTimeout        time.Duration
	SuperfaceCacheTimeout time.Duration

	Cache bool
	Debug bool
}

// DefaultConfig returns the documented defaults, including the T_max =
// 3×T_min resolution of the metric-reporter Open Question.
func DefaultConfig() Config {
	tMin := 10 * time.Second
	return Config{
		CachePath:             ".cache/comlink",
		MetricDebounceTimeMin: tMin,
		MetricDebounceTimeMax: 3 * tMin,
		SandboxTimeout:        5 * time.Second,
		SuperfaceCacheTimeout: 60 * time.Second,
		Cache:                 true,
	}
}

var sdkAuthTokenPattern = regexp.MustCompile(`^sfs_[0-9a-f]+_[0-9a-f]+$`)

// Validate checks the enumerated invariants: metricDebounceTimeMax must
// be >= metricDebounceTimeMin; an invalid sdkAuthToken is cleared and a
// warning logged rather than rejected, per §6.
func (c *Config) Validate(logger Logger) error {
	if c.MetricDebounceTimeMin <= 0 {
		c.MetricDebounceTimeMin = DefaultConfig().MetricDebounceTimeMin
	}
	if c.MetricDebounceTimeMax < c.MetricDebounceTimeMin {
		return comlinkerr.NewConfigurationError(
			"metricDebounceTimeMax must be >= metricDebounceTimeMin",
			"raise metricDebounceTimeMax or lower metricDebounceTimeMin",
		)
	}
	if c.SDKAuthToken != "" && !sdkAuthTokenPattern.MatchString(c.SDKAuthToken) {
		if logger != nil {
			logger.Warning("config", "sdkAuthToken does not match the expected sfs_<hex>_<hex> shape; ignoring it")
		}
		c.SDKAuthToken = ""
	}
	return nil
}
