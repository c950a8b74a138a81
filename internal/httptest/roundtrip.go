// SPDX-FileCopyrightText: 2024 NOI Techpark <digital@noi.bz.it>
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package httptest is a canned-response http.RoundTripper for driving the
// use-case perform pipeline end to end without a live server, including
// simulating a provider that is down outright (RoundTrip returning an
// error rather than a response). Adapted from the original MockMap
// file-backed RoundTripper: routes are registered in-memory instead of
// pointing at fixture files, and a route may now canned an error instead
// of only a status/body, so provider-failover tests can simulate a dead
// endpoint.
package httptest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Response is one canned reply. If Err is set, RoundTrip returns it
// directly instead of building an *http.Response, simulating a transport
// failure (DNS, connection refused, …).
type Response struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Err        error
}

// RoundTripper serves Response values registered by method+URL, and
// counts how many times each route was hit.
type RoundTripper struct {
	mu     sync.Mutex
	routes map[string]Response
	counts map[string]int
}

// New constructs an empty RoundTripper.
func New() *RoundTripper {
	return &RoundTripper{routes: map[string]Response{}, counts: map[string]int{}}
}

// OnRequest registers the canned Response for method+rawURL.
func (rt *RoundTripper) OnRequest(method, rawURL string, resp Response) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.routes[routeKey(method, rawURL)] = resp
}

// CallCount reports how many times method+rawURL was requested.
func (rt *RoundTripper) CallCount(method, rawURL string) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.counts[routeKey(method, rawURL)]
}

func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	key := routeKey(req.Method, req.URL.String())

	rt.mu.Lock()
	rt.counts[key]++
	resp, ok := rt.routes[key]
	rt.mu.Unlock()

	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(bytes.NewBufferString(`{"error": "no mock registered for this route"}`)),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Request:    req,
		}, nil
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	header := http.Header{"Content-Type": []string{"application/json"}}
	for k, v := range resp.Headers {
		header.Set(k, v)
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(bytes.NewReader(resp.Body)),
		Header:     header,
		Request:    req,
	}, nil
}

func routeKey(method, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Sprintf("%s %s", strings.ToUpper(method), rawURL)
	}
	return fmt.Sprintf("%s %s", strings.ToUpper(method), normalizeURL(u))
}

// normalizeURL sorts query params and strips any trailing slash, so
// registration order and incidental query-param order never matter.
func normalizeURL(u *url.URL) string {
	base := u.Scheme + "://" + u.Host + strings.TrimRight(u.Path, "/")
	params := u.Query()

	var sorted []string
	for k, vs := range params {
		for _, v := range vs {
			sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	sort.Strings(sorted)

	if len(sorted) > 0 {
		return base + "?" + strings.Join(sorted, "&")
	}
	return base
}
