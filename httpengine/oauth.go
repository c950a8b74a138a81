package httpengine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/oneclient/comlink-runtime/comlinkerr"
)

// OAuthMethod names the supported token-acquisition flows, matching the
// teacher's AuthenticatorConfig.OAuthConfig.Method values.
type OAuthMethod string

const (
	OAuthMethodPassword          OAuthMethod = "password"
	OAuthMethodClientCredentials OAuthMethod = "client_credentials"
)

// OAuthConfig configures the oauth2 convenience scheme: sugar over
// Bearer that mints and caches its own token, supplementing the
// distilled Basic/Bearer/ApiKey/Digest set per SPEC_FULL §7.
type OAuthConfig struct {
	Method       OAuthMethod
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Scopes       []string
}

// OAuthProvider mints and caches a bearer token for a service, reusing
// it while oauth2.Token.Valid() reports true. Grounded on
// authenticator.go's OAuthProvider/GetTokenWithCache.
type OAuthProvider struct {
	cfg         OAuthConfig
	passwordCfg *oauth2.Config
	clientCfg   *clientcredentials.Config
	mu          sync.Mutex
	token       *oauth2.Token
}

// NewOAuthProvider constructs a provider for the given method, returning
// a ConfigurationError for a method value outside the two supported
// flows.
func NewOAuthProvider(cfg OAuthConfig) (*OAuthProvider, error) {
	p := &OAuthProvider{cfg: cfg}
	switch cfg.Method {
	case OAuthMethodClientCredentials:
		p.clientCfg = &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
	case OAuthMethodPassword:
		p.passwordCfg = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		}
	default:
		return nil, comlinkerr.NewConfigurationError(
			fmt.Sprintf("unsupported oauth2 method %q", cfg.Method),
			"use 'password' or 'client_credentials'",
		)
	}
	return p, nil
}

// GetToken returns a cached valid token or fetches a fresh one,
// reporting whether the returned token came from cache.
func (p *OAuthProvider) GetToken(ctx context.Context) (*oauth2.Token, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != nil && p.token.Valid() {
		return p.token, true, nil
	}

	var (
		tok *oauth2.Token
		err error
	)
	switch p.cfg.Method {
	case OAuthMethodClientCredentials:
		tok, err = p.clientCfg.Token(ctx)
	case OAuthMethodPassword:
		tok, err = p.passwordCfg.PasswordCredentialsToken(ctx, p.cfg.Username, p.cfg.Password)
	}
	if err != nil {
		return nil, false, comlinkerr.NewUnexpectedError(fmt.Sprintf("oauth2 token request failed: %s", err), nil)
	}
	p.token = tok
	return tok, false, nil
}
