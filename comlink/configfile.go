package comlink

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// configFile is the on-disk shape of a super.yaml-style config document:
// every field is optional and overlays onto DefaultConfig.
type configFile struct {
	CachePath       *string `yaml:"cachePath"`
	SuperfacePath   *string `yaml:"superfacePath"`
	SuperfaceAPIURL *string `yaml:"superfaceApiUrl"`
	SDKAuthToken    *string `yaml:"sdkAuthToken"`

	DisableReporting *bool `yaml:"disableReporting"`

	MetricDebounceTimeMinSeconds *int `yaml:"metricDebounceTimeMinSeconds"`
	MetricDebounceTimeMaxSeconds *int `yaml:"metricDebounceTimeMaxSeconds"`

	SandboxTimeoutSeconds        *int `yaml:"sandboxTimeoutSeconds"`
	SuperfaceCacheTimeoutSeconds *int `yaml:"superfaceCacheTimeoutSeconds"`

	Cache *bool `yaml:"cache"`
	Debug *bool `yaml:"debug"`
}

// LoadConfigFile reads a YAML config document from path and overlays it
// onto DefaultConfig(), so an on-disk document only needs to name the
// fields it wants to override.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Config{}, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if f.CachePath != nil {
		cfg.CachePath = *f.CachePath
	}
	if f.SuperfacePath != nil {
		cfg.SuperfacePath = *f.SuperfacePath
	}
	if f.SuperfaceAPIURL != nil {
		cfg.SuperfaceAPIURL = *f.SuperfaceAPIURL
	}
	if f.SDKAuthToken != nil {
		cfg.SDKAuthToken = *f.SDKAuthToken
	}
	if f.DisableReporting != nil {
		cfg.DisableReporting = *f.DisableReporting
	}
	if f.MetricDebounceTimeMinSeconds != nil {
		cfg.MetricDebounceTimeMin = secondsToDuration(*f.MetricDebounceTimeMinSeconds)
	}
	if f.MetricDebounceTimeMaxSeconds != nil {
		cfg.MetricDebounceTimeMax = secondsToDuration(*f.MetricDebounceTimeMaxSeconds)
	}
	if f.SandboxTimeoutSeconds != nil {
		cfg.SandboxTimeout = secondsToDuration(*f.SandboxTimeoutSeconds)
	}
	if f.SuperfaceCacheTimeoutSeconds != nil {
		cfg.SuperfaceCacheTimeout = secondsToDuration(*f.SuperfaceCacheTimeoutSeconds)
	}
	if f.Cache != nil {
		cfg.Cache = *f.Cache
	}
	if f.Debug != nil {
		cfg.Debug = *f.Debug
	}

	return cfg, nil
}
