package httpengine

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/oneclient/comlink-runtime/comlinkerr"
	"github.com/oneclient/comlink-runtime/variables"
)

// Placement names where an API-key value is injected.
type Placement string

const (
	PlacementHeader Placement = "header"
	PlacementQuery  Placement = "query"
	PlacementBody   Placement = "body"
	PlacementPath   Placement = "path"
)

// BasicConfig is the Basic security scheme.
type BasicConfig struct {
	Username string
	Password string
}

// BearerConfig is the Bearer security scheme.
type BearerConfig struct {
	Token string
}

// APIKeyConfig is the API-key security scheme, placed in header, query,
// body, or path.
type APIKeyConfig struct {
	Name      string
	Placement Placement
	Value     string
}

// DigestConfig is the Digest security scheme: username/password plus the
// (configurable) challenge header name, default WWW-Authenticate.
type DigestConfig struct {
	Username      string
	Password      string
	ChallengeName string // default "WWW-Authenticate"
}

// SecurityConfig names the one scheme (at most) applied to a request.
// Exactly one of the pointer fields is set; mismatches between the
// declared security id and the supplied config are the caller's
// responsibility to catch (SecurityNotFoundError / InvalidSecurityValuesError).
type SecurityConfig struct {
	ID     string
	Basic  *BasicConfig
	Bearer *BearerConfig
	APIKey *APIKeyConfig
	Digest *DigestConfig
	OAuth  *OAuthProvider // the oauth2 convenience scheme from SPEC_FULL §7
}

// ApplySecurity applies every non-Digest scheme; Digest is special-cased
// by Engine.Send because it requires a round trip to read the 401
// challenge before it can produce a header.
func ApplySecurity(ctx context.Context, sec *SecurityConfig, req *http.Request, body variables.Value) error {
	switch {
	case sec.Basic != nil:
		req.SetBasicAuth(sec.Basic.Username, sec.Basic.Password)
		return nil

	case sec.Bearer != nil:
		req.Header.Set("Authorization", "Bearer "+sec.Bearer.Token)
		return nil

	case sec.APIKey != nil:
		return applyAPIKey(sec.APIKey, req, body)

	case sec.OAuth != nil:
		tok, _, err := sec.OAuth.GetToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
		return nil

	case sec.Digest != nil:
		// First attempt: no credentials, matching the challenge dance in
		// §4.2. The 401 retry is driven from Engine.Send.
		return nil

	default:
		return nil
	}
}

func applyAPIKey(cfg *APIKeyConfig, req *http.Request, body variables.Value) error {
	switch cfg.Placement {
	case PlacementHeader, "":
		req.Header.Set(cfg.Name, cfg.Value)
		return nil

	case PlacementQuery:
		q := req.URL.Query()
		q.Set(cfg.Name, cfg.Value)
		req.URL.RawQuery = q.Encode()
		return nil

	case PlacementPath:
		req.URL.Path = strings.ReplaceAll(req.URL.Path, "{"+cfg.Name+"}", cfg.Value)
		return nil

	case PlacementBody:
		if _, ok := variables.AsMapping(body); !ok {
			return comlinkerr.NewExecutionError("ApiKey in body can be used only on object")
		}
		// Engine.Send merges {cfg.Name: cfg.Value} into the body mapping
		// before serialization; serialization has already captured the
		// body bytes by the time security is applied, so only the shape
		// is validated here.
		return nil

	default:
		return comlinkerr.NewExecutionError(fmt.Sprintf("unknown ApiKey placement %q", cfg.Placement))
	}
}

// maskToken renders a token with only its first/last 4 characters
// visible, guarding request-debug output from leaking full security
// values; tokens of length <= 8 are fully masked. Adapted from
// authenticator.go's maskToken helper.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

// Redact masks the value of any header commonly carrying a credential,
// used when building request-debug snapshots so logs never carry full
// security values.
func Redact(header, value string) string {
	switch strings.ToLower(header) {
	case "authorization", "cookie", "x-api-key", "proxy-authorization":
		return maskToken(value)
	default:
		return value
	}
}

// SecurityNotFoundError is returned when a map references a security
// requirement id the provider config does not declare.
func SecurityNotFoundError(id string) error {
	return comlinkerr.NewExecutionError(fmt.Sprintf("security scheme %q not found in provider configuration", id))
}

// InvalidSecurityValuesError is returned when the shape of the supplied
// security values does not match the scheme type.
func InvalidSecurityValuesError(schemeType string, required, supplied []string) error {
	return comlinkerr.NewExecutionError(
		fmt.Sprintf("invalid values for %s security scheme: required=%v supplied=%v", schemeType, required, supplied),
	)
}
