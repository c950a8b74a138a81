package comlink

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// netHTTPFetch is the default Fetch, backed by *http.Client.
type netHTTPFetch struct {
	client *http.Client
}

// NewDefaultFetch returns the default Fetch collaborator.
func NewDefaultFetch(client *http.Client) Fetch {
	if client == nil {
		client = http.DefaultClient
	}
	return &netHTTPFetch{client: client}
}

func (f *netHTTPFetch) Do(ctx context.Context, url string, opts FetchOptions) (FetchResponse, error) {
	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return FetchResponse{}, err
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResponse{}, err
	}
	return FetchResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
		Meta:       map[string]any{},
	}, nil
}

// fetchHTTPClient adapts the injected Fetch collaborator to
// httpengine.HTTPClient's net/http-shaped Do method, so the HTTP engine
// (and, through it, the interpreter's HttpCallStatement execution)
// always runs through whatever Fetch the caller supplied, including a
// test double that never touches the network.
type fetchHTTPClient struct {
	fetch Fetch
}

func (a *fetchHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	headers := map[string]string{}
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}
	resp, err := a.fetch.Do(req.Context(), req.URL.String(), FetchOptions{
		Method:  req.Method,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Header:     http.Header(resp.Headers),
		Body:       io.NopCloser(bytes.NewReader(resp.Body)),
	}, nil
}
