// Package httpengine builds and sends one HTTP request on behalf of the
// map interpreter: path-template substitution, content-type negotiation
// and body serialization, multi-scheme authentication, and structured
// request/response debug info. Adapted from authenticator.go's security
// scheme dispatch and crawler.go's handleRequest (URL templating, JSON
// decode), generalized from a fixed YAML step shape into the AST-driven
// shape the interpreter produces per call.
package httpengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/oneclient/comlink-runtime/comlinkerr"
	"github.com/oneclient/comlink-runtime/variables"
)

// HTTPClient is the minimal collaborator the engine sends requests
// through — satisfied by *http.Client and by the Fetch adapter injected
// into the runtime (§6 external interfaces).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is the interpreter's abstract HTTP call, already resolved down
// to concrete header/query/body values (the interpreter evaluates the
// AST sub-nodes; the engine only builds and sends the wire request).
type Request struct {
	Method          string
	BaseURL         string // may itself still contain {name} placeholders, substituted from Parameters
	Path            string // may contain {name} placeholders, substituted from PathScope
	Headers         map[string]string
	Query           map[string]string
	Body            variables.Value
	ContentType     string
	Accept          string
	ServiceID       string
	Security        *SecurityConfig
	PathScope       variables.Value // stack ∪ {input, parameters}, for path templating
	Parameters      map[string]string // integration parameters, for base-url templating
}

// Response is what the engine hands back to the interpreter.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       variables.Value
	Debug      map[string]any
}

// Engine sends requests built from Request values.
type Engine struct {
	Client HTTPClient
	Auth   *AuthCache
}

// New constructs an Engine with its own per-service auth/digest cache.
func New(client HTTPClient) *Engine {
	return &Engine{Client: client, Auth: NewAuthCache()}
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// substitutePlaceholders replaces every {name} occurrence in tmpl using
// scope, a flattened dotted-path → string view. It fails naming both the
// missing keys and the keys that were available, per §4.2.
func substitutePlaceholders(tmpl string, scope map[string]string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := scope[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		available := make([]string, 0, len(scope))
		for k := range scope {
			available = append(available, k)
		}
		sort.Strings(available)
		sort.Strings(missing)
		return "", comlinkerr.NewExecutionError(
			fmt.Sprintf("Missing or mistyped values for URL path replacement: missing=%v available=%v", missing, available),
		)
	}
	return out, nil
}

// BuildURL resolves BaseURL (substituted from req.Parameters) and Path
// (substituted from a flattened view of req.PathScope), joining them
// with exactly one slash, and appends Query.
func (e *Engine) BuildURL(req *Request) (string, error) {
	base, err := substitutePlaceholders(req.BaseURL, req.Parameters)
	if err != nil {
		return "", err
	}
	base = strings.TrimSuffix(base, "/")

	pathScope := variables.Flatten(req.PathScope)
	path, err := substitutePlaceholders(req.Path, pathScope)
	if err != nil {
		return "", err
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	full := base + path
	if len(req.Query) == 0 {
		return full, nil
	}

	q := url.Values{}
	keys := make([]string, 0, len(req.Query))
	for k := range req.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, req.Query[k])
	}
	sep := "?"
	if strings.Contains(full, "?") {
		sep = "&"
	}
	return full + sep + q.Encode(), nil
}

// serializeBody encodes req.Body according to req.ContentType, returning
// the wire bytes and the Content-Type header value actually used
// (multipart needs the generated boundary appended).
func serializeBody(contentType string, body variables.Value) ([]byte, string, error) {
	if body == nil {
		return nil, contentType, nil
	}
	switch {
	case contentType == "" || strings.Contains(contentType, "application/json"):
		b, err := json.Marshal(body)
		if err != nil {
			return nil, "", comlinkerr.NewExecutionError(fmt.Sprintf("encoding JSON body: %s", err))
		}
		return b, "application/json", nil

	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		m, ok := variables.AsMapping(body)
		if !ok {
			return nil, "", comlinkerr.NewExecutionError("form-urlencoded body must be an object")
		}
		form := url.Values{}
		for k, v := range m {
			s, ok := variables.ScalarString(v)
			if !ok {
				return nil, "", comlinkerr.NewExecutionError(fmt.Sprintf("form-urlencoded field %q is not a scalar", k))
			}
			form.Set(k, s)
		}
		return []byte(form.Encode()), contentType, nil

	case strings.Contains(contentType, "multipart/form-data"):
		m, ok := variables.AsMapping(body)
		if !ok {
			return nil, "", comlinkerr.NewExecutionError("multipart body must be an object")
		}
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s, ok := variables.ScalarString(m[k])
			if !ok {
				return nil, "", comlinkerr.NewExecutionError(fmt.Sprintf("multipart field %q is not a scalar", k))
			}
			if err := w.WriteField(k, s); err != nil {
				return nil, "", comlinkerr.NewExecutionError(fmt.Sprintf("writing multipart field %q: %s", k, err))
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", comlinkerr.NewExecutionError(fmt.Sprintf("closing multipart writer: %s", err))
		}
		return buf.Bytes(), w.FormDataContentType(), nil

	default:
		return nil, "", comlinkerr.NewExecutionError(fmt.Sprintf("unsupported content-type %q for request body", contentType))
	}
}

// Send builds and issues one HTTP request, applying the configured
// security scheme (including Digest's challenge/retry dance) and
// returning structured debug info regardless of outcome.
func (e *Engine) Send(ctx context.Context, req *Request) (*Response, error) {
	fullURL, err := e.BuildURL(req)
	if err != nil {
		return nil, err
	}

	body := req.Body
	if req.Security != nil && req.Security.APIKey != nil && req.Security.APIKey.Placement == PlacementBody {
		if m, ok := variables.AsMapping(body); ok {
			body = variables.Merge(m, variables.Mapping{req.Security.APIKey.Name: req.Security.APIKey.Value})
		}
	}
	bodyBytes, contentType, err := serializeBody(req.ContentType, body)
	if err != nil {
		return nil, err
	}

	build := func() (*http.Request, error) {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		hreq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
		if err != nil {
			return nil, comlinkerr.NewUnexpectedError(fmt.Sprintf("constructing request: %s", err), nil)
		}
		for k, v := range req.Headers {
			hreq.Header.Set(k, v)
		}
		if contentType != "" && bodyBytes != nil {
			hreq.Header.Set("Content-Type", contentType)
		}
		if req.Accept != "" {
			hreq.Header.Set("Accept", req.Accept)
		}
		return hreq, nil
	}

	hreq, err := build()
	if err != nil {
		return nil, err
	}

	if req.Security != nil {
		if err := ApplySecurity(ctx, req.Security, hreq, req.Body); err != nil {
			return nil, err
		}
		// Digest: once a challenge has been cached for this service, every
		// subsequent request replays it proactively with a fresh cnonce and
		// incremented nonce-count, rather than waiting to be challenged
		// again. A fresh 401 below still re-challenges and re-caches.
		if req.Security.Digest != nil {
			if _, ok := e.Auth.GetDigest(req.ServiceID); ok {
				if err := applyDigest(req.Security.Digest, e.Auth, req.ServiceID, hreq); err != nil {
					return nil, err
				}
			}
		}
	}

	debug := requestDebug(hreq, bodyBytes)

	resp, err := e.Client.Do(hreq)
	if err != nil {
		return nil, comlinkerr.NewUnexpectedErrorWithCause(fmt.Sprintf("performing HTTP request: %s", err), nil, err)
	}
	defer resp.Body.Close()

	// Digest: on a 401 challenge, compute the authorization header from
	// the cached/parsed challenge and retry exactly once.
	if req.Security != nil && req.Security.Digest != nil && resp.StatusCode == http.StatusUnauthorized {
		challenge := resp.Header.Get(challengeHeaderName(req.Security.Digest))
		if challenge != "" {
			resp.Body.Close()
			state, err := parseDigestChallenge(challenge)
			if err != nil {
				return nil, err
			}
			e.Auth.SetDigest(req.ServiceID, state)

			hreq2, err := build()
			if err != nil {
				return nil, err
			}
			if err := applyDigest(req.Security.Digest, e.Auth, req.ServiceID, hreq2); err != nil {
				return nil, err
			}
			debug = requestDebug(hreq2, bodyBytes)
			resp, err = e.Client.Do(hreq2)
			if err != nil {
				return nil, comlinkerr.NewUnexpectedErrorWithCause(fmt.Sprintf("performing HTTP request: %s", err), nil, err)
			}
			defer resp.Body.Close()
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, comlinkerr.NewUnexpectedError(fmt.Sprintf("reading response body: %s", err), nil)
	}

	parsedBody := parseResponseBody(resp.Header.Get("Content-Type"), raw)

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       parsedBody,
		Debug:      debug,
	}, nil
}

func requestDebug(req *http.Request, body []byte) map[string]any {
	headers := map[string]string{}
	for k := range req.Header {
		headers[k] = Redact(k, req.Header.Get(k))
	}
	d := map[string]any{
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": headers,
	}
	if body != nil {
		d["body"] = string(body)
	}
	return d
}

func parseResponseBody(contentType string, raw []byte) variables.Value {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/json") {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}
