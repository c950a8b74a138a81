package httpengine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneclient/comlink-runtime/variables"
)

func TestOAuthClientCredentialsMintsAndCachesToken(t *testing.T) {
	var tokenRequests int
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "minted-token", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer tokenSrv.Close()

	provider, err := NewOAuthProvider(OAuthConfig{
		Method:       OAuthMethodClientCredentials,
		TokenURL:     tokenSrv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	})
	require.NoError(t, err)

	tok1, fromCache1, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	assert.False(t, fromCache1)
	assert.Equal(t, "minted-token", tok1.AccessToken)

	_, fromCache2, err := provider.GetToken(context.Background())
	require.NoError(t, err)
	assert.True(t, fromCache2)
	assert.Equal(t, 1, tokenRequests)
}

func TestOAuthSecurityAppliesBearerHeader(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "abc123", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer tokenSrv.Close()

	provider, err := NewOAuthProvider(OAuthConfig{
		Method:       OAuthMethodClientCredentials,
		TokenURL:     tokenSrv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	})
	require.NoError(t, err)

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer apiSrv.Close()

	e := New(http.DefaultClient)
	resp, err := e.Send(context.Background(), &Request{
		Method:    "GET",
		BaseURL:   apiSrv.URL,
		Path:      "/resource",
		PathScope: variables.Mapping{},
		Security:  &SecurityConfig{ID: "my_oauth", OAuth: provider},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
