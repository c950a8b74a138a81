package comlink

import (
	"encoding/json"
	"fmt"

	"github.com/oneclient/comlink-runtime/httpengine"
)

// ProviderConfig is the provider JSON document shape the registry binds
// back: a service-id → base-URL selector plus the security schemes the
// provider declares, each identified by the id a map's HttpCallStatement
// references via HttpRequest.Security.
type ProviderConfig struct {
	Services map[string]string         `json:"services"`
	Security map[string]SecurityScheme `json:"security"`
}

// SecurityScheme names one declared security requirement and the
// integration-parameter keys its concrete values come from.
type SecurityScheme struct {
	Type          string            `json:"type"` // basic | bearer | apikey | digest | oauth2_client_credentials
	Placement     string            `json:"placement,omitempty"`
	Name          string            `json:"name,omitempty"`
	ChallengeName string            `json:"challengeName,omitempty"`
	ValuesFrom    map[string]string `json:"valuesFrom"` // field (e.g. "username") -> parameter key
}

// ParseProviderConfig decodes a registry bind response's raw provider
// JSON into the selector/security shape the interpreter needs.
func ParseProviderConfig(raw json.RawMessage) (*ProviderConfig, error) {
	var cfg ProviderConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decoding provider config: %w", err)
	}
	return &cfg, nil
}

// ResolveSecurity resolves every declared scheme against the caller's
// integration parameters (secrets included), producing the concrete
// httpengine.SecurityConfig set the interpreter's Driver.Security
// resolver serves from. A scheme whose required values are missing from
// parameters fails fast with InvalidSecurityValuesError.
func ResolveSecurity(cfg *ProviderConfig, parameters map[string]string) (map[string]*httpengine.SecurityConfig, error) {
	out := map[string]*httpengine.SecurityConfig{}
	for id, scheme := range cfg.Security {
		values := make(map[string]string, len(scheme.ValuesFrom))
		var missing []string
		for field, paramKey := range scheme.ValuesFrom {
			v, ok := parameters[paramKey]
			if !ok {
				missing = append(missing, paramKey)
				continue
			}
			values[field] = v
		}
		if len(missing) > 0 {
			return nil, httpengine.InvalidSecurityValuesError(scheme.Type, missing, keysOf(parameters))
		}

		sec := &httpengine.SecurityConfig{ID: id}
		switch scheme.Type {
		case "basic":
			sec.Basic = &httpengine.BasicConfig{Username: values["username"], Password: values["password"]}
		case "bearer":
			sec.Bearer = &httpengine.BearerConfig{Token: values["token"]}
		case "apikey":
			sec.APIKey = &httpengine.APIKeyConfig{
				Name:      scheme.Name,
				Placement: httpengine.Placement(scheme.Placement),
				Value:     values["apikey"],
			}
		case "digest":
			sec.Digest = &httpengine.DigestConfig{
				Username:      values["username"],
				Password:      values["password"],
				ChallengeName: scheme.ChallengeName,
			}
		case "oauth2_client_credentials":
			provider, err := httpengine.NewOAuthProvider(httpengine.OAuthConfig{
				Method:       httpengine.OAuthMethodClientCredentials,
				TokenURL:     values["tokenUrl"],
				ClientID:     values["clientId"],
				ClientSecret: values["clientSecret"],
			})
			if err != nil {
				return nil, err
			}
			sec.OAuth = provider
		default:
			return nil, fmt.Errorf("unknown security scheme type %q for id %q", scheme.Type, id)
		}
		out[id] = sec
	}
	return out, nil
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// securityResolver returns a Driver.Security func bound to one resolved
// scheme set, surfacing SecurityNotFoundError for an undeclared id.
func securityResolver(schemes map[string]*httpengine.SecurityConfig) func(id string) (*httpengine.SecurityConfig, error) {
	return func(id string) (*httpengine.SecurityConfig, error) {
		sec, ok := schemes[id]
		if !ok {
			return nil, httpengine.SecurityNotFoundError(id)
		}
		return sec, nil
	}
}
