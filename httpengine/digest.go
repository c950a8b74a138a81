package httpengine

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/oneclient/comlink-runtime/comlinkerr"
)

// DigestState is the per-service cached challenge, serialized under a
// mutex so concurrent requests to the same service produce distinct,
// strictly increasing nonce counts — the invariant the design notes call
// out explicitly ("digest concurrency" must be serialized per service,
// unlike the source which races it).
type DigestState struct {
	Realm     string
	Nonce     string
	QOP       string
	Algorithm string
	Opaque    string
	nonceCount uint64
}

// AuthCache holds per-service Digest challenge state, plus a
// per-service token map (SetToken/GetToken). The oauth2 convenience
// scheme does not use that map: OAuthProvider caches its own token.
type AuthCache struct {
	mu      sync.Mutex
	digest  map[string]*DigestState
	tokens  map[string]string
}

func NewAuthCache() *AuthCache {
	return &AuthCache{
		digest: map[string]*DigestState{},
		tokens: map[string]string{},
	}
}

func (c *AuthCache) SetDigest(serviceID string, state *DigestState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.digest[serviceID] = state
}

func (c *AuthCache) GetDigest(serviceID string) (*DigestState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.digest[serviceID]
	return s, ok
}

// nextNonceCount atomically reads and bumps the per-service nonce
// counter, returning the value to use for this request.
func (c *AuthCache) nextNonceCount(serviceID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.digest[serviceID]
	s.nonceCount++
	return s.nonceCount
}

func (c *AuthCache) SetToken(serviceID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[serviceID] = token
}

func (c *AuthCache) GetToken(serviceID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[serviceID]
	return t, ok
}

func challengeHeaderName(cfg *DigestConfig) string {
	if cfg.ChallengeName != "" {
		return cfg.ChallengeName
	}
	return "WWW-Authenticate"
}

// parseDigestChallenge parses a WWW-Authenticate: Digest ... header into
// a DigestState, failing with a structured error naming every missing
// required part (realm, nonce).
func parseDigestChallenge(header string) (*DigestState, error) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(header)), "digest") {
		return nil, comlinkerr.NewUnexpectedError("digest challenge header does not start with 'Digest'", nil)
	}
	rest := strings.TrimSpace(header[len("Digest"):])

	params := map[string]string{}
	for _, part := range splitDigestParams(rest) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		params[key] = val
	}

	state := &DigestState{
		Realm:     params["realm"],
		Nonce:     params["nonce"],
		QOP:       params["qop"],
		Algorithm: params["algorithm"],
		Opaque:    params["opaque"],
	}
	if state.Algorithm == "" {
		state.Algorithm = "MD5"
	}

	var missing []string
	if state.Realm == "" {
		missing = append(missing, "realm")
	}
	if state.Nonce == "" {
		missing = append(missing, "nonce")
	}
	if len(missing) > 0 {
		return nil, comlinkerr.NewUnexpectedError(fmt.Sprintf("digest challenge missing required part(s): %v", missing), nil)
	}
	return state, nil
}

// splitDigestParams splits a comma-separated Digest parameter list,
// respecting double-quoted values that may themselves contain commas.
func splitDigestParams(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch r {
		case '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case ',':
			if inQuotes {
				cur.WriteRune(r)
			} else {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, strings.TrimSpace(cur.String()))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func hashHex(algorithm string, data string) string {
	base := strings.TrimSuffix(strings.ToUpper(algorithm), "-SESS")
	switch base {
	case "SHA-256":
		sum := sha256.Sum256([]byte(data))
		return hex.EncodeToString(sum[:])
	default: // MD5, MD5-sess
		sum := md5.Sum([]byte(data))
		return hex.EncodeToString(sum[:])
	}
}

// applyDigest computes the Authorization header for req from the cached
// challenge state, generating a fresh client nonce and an atomically
// incremented nonce-count for this service.
func applyDigest(cfg *DigestConfig, cache *AuthCache, serviceID string, req *http.Request) error {
	state, ok := cache.GetDigest(serviceID)
	if !ok {
		return comlinkerr.NewUnexpectedError("no cached digest challenge for service "+serviceID, nil)
	}

	cnonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	nc := cache.nextNonceCount(serviceID)
	ncHex := fmt.Sprintf("%08x", nc)

	ha1 := hashHex(state.Algorithm, cfg.Username+":"+state.Realm+":"+cfg.Password)
	if strings.HasSuffix(strings.ToUpper(state.Algorithm), "-SESS") {
		ha1 = hashHex(state.Algorithm, ha1+":"+state.Nonce+":"+cnonce)
	}

	method := req.Method
	uri := req.URL.RequestURI()
	ha2 := hashHex(state.Algorithm, method+":"+uri)

	var response string
	qop := state.QOP
	if qop != "" {
		// qop may be a comma-separated list; prefer "auth".
		if strings.Contains(qop, "auth") {
			qop = "auth"
		}
		response = hashHex(state.Algorithm, strings.Join([]string{ha1, state.Nonce, ncHex, cnonce, qop, ha2}, ":"))
	} else {
		response = hashHex(state.Algorithm, ha1+":"+state.Nonce+":"+ha2)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		cfg.Username, state.Realm, state.Nonce, uri, response)
	if state.Algorithm != "" {
		fmt.Fprintf(&sb, `, algorithm=%s`, state.Algorithm)
	}
	if qop != "" {
		fmt.Fprintf(&sb, `, qop=%s, nc=%s, cnonce="%s"`, qop, ncHex, cnonce)
	}
	if state.Opaque != "" {
		fmt.Fprintf(&sb, `, opaque="%s"`, state.Opaque)
	}

	req.Header.Set("Authorization", sb.String())
	return nil
}
