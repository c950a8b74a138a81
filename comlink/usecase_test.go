package comlink

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneclient/comlink-runtime/comlinkerr"
	"github.com/oneclient/comlink-runtime/events"
	"github.com/oneclient/comlink-runtime/failurepolicy"
	internalhttptest "github.com/oneclient/comlink-runtime/internal/httptest"
	"github.com/oneclient/comlink-runtime/mapast"
	"github.com/oneclient/comlink-runtime/registryclient"
)

func providerConfigJSON(baseURL string) []byte {
	return []byte(`{"services":{"default":"` + baseURL + `"},"security":{}}`)
}

func newIntegrationClient(t *testing.T, rt *internalhttptest.RoundTripper, binder registryclient.Binder, providers []string, policy failurepolicy.PolicyConfig) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Cache = false
	cfg.DisableReporting = true

	doc := simpleGetDoc("GetTwelve", "/twelve")

	c, err := NewClient(cfg, ClientOptions{
		Binder:           binder,
		MapParser:        func(string) (*mapast.MapDocument, error) { return doc, nil },
		Fetch:            NewDefaultFetch(&http.Client{Transport: rt}),
		ProfileProviders: map[string][]string{"weather/current": providers},
		ProviderPolicy:   policy,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestUseCasePerformSuccess(t *testing.T) {
	rt := internalhttptest.New()
	rt.OnRequest("GET", "http://svc.test/twelve", internalhttptest.Response{
		StatusCode: 200,
		Body:       []byte(`{"data": 12}`),
	})

	binder := fakeBinder(func(ctx context.Context, req registryclient.BindRequest) (*registryclient.BindResponse, error) {
		return &registryclient.BindResponse{Provider: providerConfigJSON("http://svc.test"), MapAST: "doc"}, nil
	})

	c := newIntegrationClient(t, rt, binder, []string{"p1"}, failurepolicy.PolicyConfig{Kind: failurepolicy.PolicyNone})

	out, err := c.GetProfile("weather/current", "1.0.0").GetUseCase("GetTwelve").Perform(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 12.0, out)
}

func TestUseCaseFailoverAfterCircuitOpens(t *testing.T) {
	rt := internalhttptest.New()
	rt.OnRequest("GET", "http://p1.test/twelve", internalhttptest.Response{Err: errors.New("connection refused")})
	rt.OnRequest("GET", "http://p2.test/twelve", internalhttptest.Response{
		StatusCode: 200,
		Body:       []byte(`{"data": 99}`),
	})

	binder := fakeBinder(func(ctx context.Context, req registryclient.BindRequest) (*registryclient.BindResponse, error) {
		urls := map[string]string{"p1": "http://p1.test", "p2": "http://p2.test"}
		return &registryclient.BindResponse{Provider: providerConfigJSON(urls[req.Provider]), MapAST: "doc"}, nil
	})

	policy := failurepolicy.PolicyConfig{Kind: failurepolicy.PolicyCircuitBreaker, MaxContiguousRetries: 1}
	c := newIntegrationClient(t, rt, binder, []string{"p1", "p2"}, policy)

	out, err := c.GetProfile("weather/current", "1.0.0").GetUseCase("GetTwelve").Perform(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 99.0, out)
	assert.Equal(t, 1, rt.CallCount("GET", "http://p1.test/twelve"))
	assert.Equal(t, 1, rt.CallCount("GET", "http://p2.test/twelve"))
}

func TestUseCaseFailoverClassifiesDNSFailure(t *testing.T) {
	rt := internalhttptest.New()
	rt.OnRequest("GET", "http://p1.test/twelve", internalhttptest.Response{
		Err: &net.DNSError{Err: "no such host", Name: "p1.test", IsNotFound: true},
	})
	rt.OnRequest("GET", "http://p2.test/twelve", internalhttptest.Response{
		StatusCode: 200,
		Body:       []byte(`{"data": 99}`),
	})

	binder := fakeBinder(func(ctx context.Context, req registryclient.BindRequest) (*registryclient.BindResponse, error) {
		urls := map[string]string{"p1": "http://p1.test", "p2": "http://p2.test"}
		return &registryclient.BindResponse{Provider: providerConfigJSON(urls[req.Provider]), MapAST: "doc"}, nil
	})

	policy := failurepolicy.PolicyConfig{Kind: failurepolicy.PolicyCircuitBreaker, MaxContiguousRetries: 1}
	c := newIntegrationClient(t, rt, binder, []string{"p1", "p2"}, policy)

	var reasons []failurepolicy.FailureReason
	c.Bus().On(events.EventProviderSwitch, 0, events.Filter{}, func(ctx context.Context, ev events.Event) {
		payload, ok := ev.Payload.(map[string]any)
		if !ok {
			return
		}
		rs, ok := payload["reasons"].([]failurepolicy.FailureReason)
		if !ok {
			return
		}
		reasons = append(reasons, rs...)
	})

	out, err := c.GetProfile("weather/current", "1.0.0").GetUseCase("GetTwelve").Perform(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 99.0, out)
	require.NotEmpty(t, reasons)
	assert.Equal(t, failurepolicy.ReasonNetworkDNS, reasons[0])
}

func TestUseCasePinnedProviderSkipsFailover(t *testing.T) {
	rt := internalhttptest.New()
	rt.OnRequest("GET", "http://p1.test/twelve", internalhttptest.Response{Err: errors.New("connection refused")})

	binder := fakeBinder(func(ctx context.Context, req registryclient.BindRequest) (*registryclient.BindResponse, error) {
		return &registryclient.BindResponse{Provider: providerConfigJSON("http://p1.test"), MapAST: "doc"}, nil
	})

	policy := failurepolicy.PolicyConfig{Kind: failurepolicy.PolicyCircuitBreaker, MaxContiguousRetries: 1}
	c := newIntegrationClient(t, rt, binder, []string{"p1", "p2"}, policy)

	uc := c.GetProfile("weather/current", "1.0.0").GetUseCase("GetTwelve")
	_, err := uc.PerformWithOptions(context.Background(), nil, PerformOptions{Provider: "p1"})
	require.Error(t, err)
	assert.Equal(t, 1, rt.CallCount("GET", "http://p1.test/twelve"))
}

func TestUseCaseNotFoundFailsAtPerformTime(t *testing.T) {
	rt := internalhttptest.New()
	binder := fakeBinder(func(ctx context.Context, req registryclient.BindRequest) (*registryclient.BindResponse, error) {
		return &registryclient.BindResponse{Provider: providerConfigJSON("http://svc.test"), MapAST: "doc"}, nil
	})
	c := newIntegrationClient(t, rt, binder, []string{"p1"}, failurepolicy.PolicyConfig{Kind: failurepolicy.PolicyNone})

	_, err := c.GetProfile("weather/current", "1.0.0").GetUseCase("DoesNotExist").Perform(context.Background(), nil)
	require.Error(t, err)
	_, ok := comlinkerr.As[*comlinkerr.ConfigurationError](err)
	assert.True(t, ok)
}
