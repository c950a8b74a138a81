// Package registryclient is the consumed-as-collaborator registry bind
// client named in §6: it turns a (profile, version, provider, map
// variant/revision) request into a {provider, map_ast} pair, or a
// structured binding error on a
// non-200 response. Grounded on the teacher's HTTPClient interface
// (crawler.go) and request/response shape, generalized from a
// fixed-config fetch into a registry bind call.
package registryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/oneclient/comlink-runtime/comlinkerr"
)

// BindRequest names what the caller wants bound.
type BindRequest struct {
	ProfileID    string
	ProfileVersion string
	Provider     string
	MapVariant   string
	MapRevision  string
}

// BindResponse is the registry's successful bind payload.
type BindResponse struct {
	Provider json.RawMessage `json:"provider"`
	MapAST   string          `json:"map_ast"`
}

// bindErrorBody is the shape a non-200 bind response's body may take.
type bindErrorBody struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Binder is the injected collaborator the use-case driver consumes;
// the core only depends on this interface, never on the concrete HTTP
// client below.
type Binder interface {
	Bind(ctx context.Context, req BindRequest) (*BindResponse, error)
}

// HTTPClient is the minimal collaborator Client sends requests through.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the default Binder: an HTTP POST to <apiURL>/registry/bind.
type Client struct {
	APIURL string
	HTTP   HTTPClient
}

func New(apiURL string, httpClient HTTPClient) *Client {
	return &Client{APIURL: apiURL, HTTP: httpClient}
}

func (c *Client) Bind(ctx context.Context, req BindRequest) (*BindResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, comlinkerr.NewBindingError("encoding bind request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/registry/bind", bytes.NewReader(payload))
	if err != nil {
		return nil, comlinkerr.NewBindingError("constructing bind request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, comlinkerr.NewBindingError("registry call failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, comlinkerr.NewBindingError("reading bind response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var eb bindErrorBody
		_ = json.Unmarshal(body, &eb)
		msg := eb.Title
		if eb.Detail != "" {
			msg = fmt.Sprintf("%s: %s", eb.Title, eb.Detail)
		}
		if msg == "" {
			msg = fmt.Sprintf("registry bind failed with status %d", resp.StatusCode)
		}
		return nil, comlinkerr.NewBindingError(msg, nil)
	}

	var br BindResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, comlinkerr.NewBindingError("invalid bind response JSON", err)
	}
	if br.MapAST == "" {
		return nil, comlinkerr.NewBindingError("bind response missing map_ast", nil)
	}
	return &br, nil
}
