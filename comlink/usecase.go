package comlink

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/oneclient/comlink-runtime/comlinkerr"
	"github.com/oneclient/comlink-runtime/events"
	"github.com/oneclient/comlink-runtime/failurepolicy"
	"github.com/oneclient/comlink-runtime/httpengine"
	"github.com/oneclient/comlink-runtime/interpreter"
	"github.com/oneclient/comlink-runtime/mapast"
	"github.com/oneclient/comlink-runtime/profilecache"
	"github.com/oneclient/comlink-runtime/variables"
)

// maxPerformAttempts bounds the bind-and-perform retry/failover loop so a
// misconfigured priority list (every provider permanently Open) fails
// loudly instead of spinning.
const maxPerformAttempts = 8

// PerformOptions configures one UseCase.Perform call.
type PerformOptions struct {
	// Provider, if set, pins this perform to one provider and disables
	// router failover for the call, per §4.5 step 1.
	Provider string
}

// UseCase is a bound (profile, use-case) handle; Perform is the runtime's
// one entry point for actually running a map, per §6.
type UseCase struct {
	profile *Profile
	Name    string
}

// Perform implements §4.5's orchestration: resolve the provider (sticky
// router selection, or the caller's explicit pin), load the bound
// profile-provider from cache, run the interpreter wrapped in the
// perform/bind-and-perform interceptor chains, and emit success/failure.
func (u *UseCase) Perform(ctx context.Context, input variables.Value) (variables.Value, error) {
	return u.PerformWithOptions(ctx, input, PerformOptions{})
}

// PerformWithOptions is Perform with an explicit provider pin.
func (u *UseCase) PerformWithOptions(ctx context.Context, input variables.Value, opts PerformOptions) (variables.Value, error) {
	c := u.profile.client
	profileID := u.profile.ID
	router := c.routerFor(profileID, u.Name)
	router.SetAllowFailover(opts.Provider == "")

	return events.Intercept(ctx, c.bus, events.EventBindAndPerform, profileID, u.Name, input,
		func(ctx context.Context, in variables.Value) (variables.Value, error) {
			return u.bindAndPerform(ctx, router, opts.Provider, in)
		})
}

func (u *UseCase) bindAndPerform(ctx context.Context, router *failurepolicy.Router, pinned string, input variables.Value) (variables.Value, error) {
	c := u.profile.client
	profileID := u.profile.ID

	provider := pinned
	if provider == "" {
		provider = router.CurrentProvider()
	}
	if provider == "" {
		return nil, comlinkerr.NewConfigurationError(
			fmt.Sprintf("no provider configured for profile %q", profileID),
			"declare at least one provider in ClientOptions.ProfileProviders",
		)
	}

	for attempt := 0; attempt < maxPerformAttempts; attempt++ {
		if decision := router.BeforePerform(provider); decision == failurepolicy.BeforeBackoff {
			u.emitFailure(ctx, provider, comlinkerr.NewUnexpectedError(fmt.Sprintf("provider %q circuit is open", provider), nil))
			after := router.AfterFailure(provider, failurepolicy.ReasonRequestTimeout)
			if after == failurepolicy.AfterSwitchDecision && pinned == "" {
				provider = router.CurrentProvider()
				continue
			}
			return nil, comlinkerr.NewUnexpectedError(fmt.Sprintf("provider %q circuit is open and no healthy provider remains", provider), nil)
		}

		result, err := events.Intercept(ctx, c.bus, events.EventPerform, profileID, u.Name, input,
			func(ctx context.Context, in variables.Value) (variables.Value, error) {
				return u.performOn(ctx, provider, in)
			})

		if err == nil {
			router.AfterSuccess(provider)
			c.bus.EmitVoid(ctx, events.EventSuccess, profileID, u.Name, map[string]any{
				"profile": profileID, "provider": provider, "usecase": u.Name, "time": time.Now(),
			})
			return result, nil
		}

		u.emitFailure(ctx, provider, err)

		if pinned != "" {
			return nil, err
		}
		switch router.AfterFailure(provider, classifyFailure(err)) {
		case failurepolicy.AfterRetryDecision:
			continue
		case failurepolicy.AfterSwitchDecision:
			provider = router.CurrentProvider()
			continue
		default:
			return nil, err
		}
	}
	return nil, comlinkerr.NewUnexpectedError("exceeded maximum bind-and-perform attempts", nil)
}

func (u *UseCase) emitFailure(ctx context.Context, provider string, err error) {
	c := u.profile.client
	c.bus.EmitVoid(ctx, events.EventFailure, u.profile.ID, u.Name, map[string]any{
		"profile": u.profile.ID, "provider": provider, "usecase": u.Name, "time": time.Now(), "error": err.Error(),
	})
}

// performOn loads provider's bound profile-provider (lazily re-bound on
// cache miss or expiry) and runs the interpreter against it.
func (u *UseCase) performOn(ctx context.Context, provider string, input variables.Value) (variables.Value, error) {
	c := u.profile.client

	bound, err := c.cache.Get(ctx, profilecache.Key{
		ProfileID:      u.profile.ID,
		ProfileVersion: u.profile.Version,
		ProviderName:   provider,
	})
	if err != nil {
		return nil, err
	}

	doc, ok := bound.MapAST.(*mapast.MapDocument)
	if !ok {
		return nil, comlinkerr.NewUnexpectedError("cached map AST has an unexpected type", nil)
	}

	found := false
	for _, m := range doc.Maps {
		if m.UseCaseName == u.Name {
			found = true
			break
		}
	}
	if !found {
		return nil, comlinkerr.NewUsecaseNotFoundError(u.Name)
	}

	schemes, _ := bound.SecurityConfig.(map[string]*httpengine.SecurityConfig)

	driver := &interpreter.Driver{
		Document: doc,
		HTTP:     c.httpEngine,
		Sandbox:  c.sandbox,
		ServiceURL: func(id string) (string, bool) {
			v, ok := bound.ServiceSelector[id]
			return v, ok
		},
		Security: securityResolver(schemes),
	}

	return driver.Run(ctx, u.Name, input, toVariablesMapping(c.opts.Parameters))
}

// classifyFailure maps a returned taxonomy error to the router's
// FailureReason vocabulary, per §4.4. HTTP-status failures classify
// directly off the error kind; anything else unwraps to the raw Fetch-
// adapter transport error (preserved via NewUnexpectedErrorWithCause)
// and classifies that per §7's network:{dns,timeout,unsigned-ssl,reject}
// / request:{timeout,abort} taxonomy.
func classifyFailure(err error) failurepolicy.FailureReason {
	if httpErr, ok := comlinkerr.As[*comlinkerr.HTTPError](err); ok {
		if r := failurepolicy.ClassifyHTTPStatus(httpErr.StatusCode); r != nil {
			return *r
		}
		return failurepolicy.ReasonHTTPStatus
	}
	if _, ok := comlinkerr.As[*comlinkerr.MappedHTTPError](err); ok {
		return failurepolicy.ReasonHTTPStatus
	}
	if interpErr, ok := comlinkerr.As[*comlinkerr.InterpretationError](err); ok {
		if cause := errors.Unwrap(interpErr); cause != nil {
			return classifyTransportError(cause)
		}
	}
	return failurepolicy.ReasonUnexpected
}

// classifyTransportError inspects a raw error returned by the Fetch
// collaborator (DNS failure, dial timeout/refusal, TLS verification
// failure, context cancellation) and maps it to the closest
// failurepolicy.FailureReason. Falls back to ReasonUnexpected when
// nothing below matches, rather than guessing.
func classifyTransportError(err error) failurepolicy.FailureReason {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return failurepolicy.ReasonNetworkDNS
	}

	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return failurepolicy.ReasonNetworkUnsignedSSL
	}
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certInvalid) {
		return failurepolicy.ReasonNetworkUnsignedSSL
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return failurepolicy.ReasonNetworkUnsignedSSL
	}

	if errors.Is(err, context.Canceled) {
		return failurepolicy.ReasonRequestAbort
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failurepolicy.ReasonRequestTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failurepolicy.ReasonNetworkTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return failurepolicy.ReasonNetworkReject
		}
	}

	return failurepolicy.ReasonUnexpected
}
