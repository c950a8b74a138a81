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

func TestBuildURLSubstitutesPathAndBase(t *testing.T) {
	e := New(http.DefaultClient)
	req := &Request{
		BaseURL:    "http://{host}/",
		Path:       "/twelve/{page}",
		Parameters: map[string]string{"host": "example.test"},
		PathScope:  variables.Mapping{"page": 2.0},
	}
	u, err := e.BuildURL(req)
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/twelve/2", u)
}

func TestBuildURLFailsOnMissingPathParam(t *testing.T) {
	e := New(http.DefaultClient)
	req := &Request{
		BaseURL:   "http://example.test",
		Path:      "/twelve/{page}",
		PathScope: variables.Mapping{},
	}
	_, err := e.BuildURL(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page")
}

func TestSendSimpleGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": 12}`))
	}))
	defer srv.Close()

	e := New(http.DefaultClient)
	resp, err := e.Send(context.Background(), &Request{
		Method:    "GET",
		BaseURL:   srv.URL,
		Path:      "/twelve",
		PathScope: variables.Mapping{},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	m, ok := variables.AsMapping(resp.Body)
	require.True(t, ok)
	assert.Equal(t, 12.0, m["data"])
}

func TestSendBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Basic bmFtZTpwYXNzd29yZA==", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": 12}`))
	}))
	defer srv.Close()

	e := New(http.DefaultClient)
	resp, err := e.Send(context.Background(), &Request{
		Method:    "GET",
		BaseURL:   srv.URL,
		Path:      "/twelve",
		PathScope: variables.Mapping{},
		Security: &SecurityConfig{
			ID:    "my_basic",
			Basic: &BasicConfig{Username: "name", Password: "password"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestDigestChallengeAndRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if r.Header.Get("Authorization") == "" {
			w.Header().Set("WWW-Authenticate", `Digest realm="test", nonce="abc123", qop="auth", algorithm=MD5`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	e := New(http.DefaultClient)
	resp, err := e.Send(context.Background(), &Request{
		Method:    "GET",
		BaseURL:   srv.URL,
		Path:      "/secure",
		ServiceID: "svc1",
		PathScope: variables.Mapping{},
		Security: &SecurityConfig{
			ID:     "my_digest",
			Digest: &DigestConfig{Username: "u", Password: "p"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 2, attempts)
}

func TestDigestProactiveReplayAfterCachedChallenge(t *testing.T) {
	var unauthorized int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			unauthorized++
			w.Header().Set("WWW-Authenticate", `Digest realm="test", nonce="abc123", qop="auth", algorithm=MD5`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	e := New(http.DefaultClient)
	req := &Request{
		Method:    "GET",
		BaseURL:   srv.URL,
		Path:      "/secure",
		ServiceID: "svc1",
		PathScope: variables.Mapping{},
		Security: &SecurityConfig{
			ID:     "my_digest",
			Digest: &DigestConfig{Username: "u", Password: "p"},
		},
	}

	// First call: no cached challenge, goes through the reactive 401 dance.
	resp, err := e.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, unauthorized)

	state1, ok := e.Auth.GetDigest("svc1")
	require.True(t, ok)

	// Second call to the same service: the cached challenge is replayed
	// proactively, so the server never has to issue a second 401.
	resp, err = e.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, unauthorized)

	state2, ok := e.Auth.GetDigest("svc1")
	require.True(t, ok)
	assert.Same(t, state1, state2)
}

func TestMaskTokenShortAndLong(t *testing.T) {
	assert.Equal(t, "***", maskToken("short"))
	long := maskToken("token1234567890token")
	assert.True(t, len(long) == len("token1234567890token"))
	assert.Equal(t, "toke", long[:4])
	assert.Equal(t, "oken", long[len(long)-4:])
}
