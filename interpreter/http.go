package interpreter

import (
	"context"
	"fmt"
	"strings"

	"github.com/oneclient/comlink-runtime/comlinkerr"
	"github.com/oneclient/comlink-runtime/httpengine"
	"github.com/oneclient/comlink-runtime/mapast"
	"github.com/oneclient/comlink-runtime/variables"
)

// execHTTPCall implements the HttpCallStatement contract from §4.1:
// resolve the service URL, compute Accept from the declared response
// handlers, send, then dispatch to the first matching handler in
// declaration order.
func (d *Driver) execHTTPCall(ctx context.Context, stack variables.Value, n *mapast.HttpCallStatement, depth frameID) (Outcome, variables.Value, error) {
	baseURL, ok := d.ServiceURL(n.ServiceID)
	if !ok {
		return Outcome{}, stack, comlinkerr.NewUnexpectedError(fmt.Sprintf("no service URL configured for %q", n.ServiceID), n)
	}

	accept := computeAccept(n.ResponseHandlers)

	req := &httpengine.Request{
		Method:    n.Method,
		BaseURL:   baseURL,
		Path:      n.URL,
		ServiceID: n.ServiceID,
		PathScope: stack,
		Accept:    accept,
	}

	if n.Request != nil {
		if n.Request.Headers != nil {
			v, err := d.evalExpr(ctx, stack, n.Request.Headers)
			if err != nil {
				return Outcome{}, stack, err
			}
			headers, err := toStringMap("header", v)
			if err != nil {
				return Outcome{}, stack, err
			}
			req.Headers = headers
		}
		if n.Request.Query != nil {
			v, err := d.evalExpr(ctx, stack, n.Request.Query)
			if err != nil {
				return Outcome{}, stack, err
			}
			query, err := toStringMap("query", v)
			if err != nil {
				return Outcome{}, stack, err
			}
			req.Query = query
		}
		if n.Request.Body != nil {
			v, err := d.evalExpr(ctx, stack, n.Request.Body)
			if err != nil {
				return Outcome{}, stack, err
			}
			req.Body = v
		}
		req.ContentType = n.Request.ContentType

		if n.Request.Security != "" {
			if d.Security == nil {
				return Outcome{}, stack, comlinkerr.NewUnexpectedError("no security configuration resolver configured", n)
			}
			sec, err := d.Security(n.Request.Security)
			if err != nil {
				return Outcome{}, stack, err
			}
			req.Security = sec
		}
	}

	resp, err := d.HTTP.Send(ctx, req)
	if err != nil {
		return Outcome{}, stack, err
	}

	respStack := variables.Merge(stack, variables.Mapping{
		"body":       resp.Body,
		"headers":    flattenHeaders(resp.Headers),
		"statusCode": float64(resp.StatusCode),
	})

	for _, handler := range n.ResponseHandlers {
		if !handlerMatches(handler, resp) {
			continue
		}
		out, newStack, err := d.execStatements(ctx, respStack, handler.Statements, depth+1)
		if err != nil {
			return Outcome{}, stack, err
		}
		if out.HasError {
			out.FromHTTP = true
			out.HTTPStatus = resp.StatusCode
		}
		return out, newStack, nil
	}

	// No handler matched.
	if d.UnhandledHTTP != nil {
		retry, err := d.UnhandledHTTP(ctx, resp)
		if err != nil {
			return Outcome{}, stack, err
		}
		if retry {
			return d.execHTTPCall(ctx, stack, n, depth)
		}
	}
	if resp.StatusCode >= 400 {
		return Outcome{HasError: true, FromHTTP: true,
			Err: comlinkerr.NewHTTPError(resp.StatusCode, resp.Debug, resp.Body, resp.Headers),
		}, respStack, nil
	}
	return Outcome{}, respStack, nil
}

func computeAccept(handlers []*mapast.HttpResponseHandler) string {
	seen := map[string]bool{}
	var types []string
	for _, h := range handlers {
		if h.ContentType == "" {
			return "*/*"
		}
		if !seen[h.ContentType] {
			seen[h.ContentType] = true
			types = append(types, h.ContentType)
		}
	}
	if len(types) == 0 {
		return "*/*"
	}
	return strings.Join(types, ", ")
}

func handlerMatches(h *mapast.HttpResponseHandler, resp *httpengine.Response) bool {
	if h.StatusCode != nil && *h.StatusCode != resp.StatusCode {
		return false
	}
	if h.ContentType != "" && !strings.Contains(resp.Headers.Get("Content-Type"), h.ContentType) {
		return false
	}
	if h.ContentLanguage != "" && !strings.Contains(resp.Headers.Get("Content-Language"), h.ContentLanguage) {
		return false
	}
	return true
}

// toStringMap coerces a header/query expression's result to a flat
// string map. kind names the call site ("header" or "query") for the
// error message. A non-scalar value fails loudly (§4.2 step 4) rather
// than being silently dropped, naming the offending key and its type.
func toStringMap(kind string, v variables.Value) (map[string]string, error) {
	m, ok := variables.AsMapping(v)
	if !ok {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		s, ok := variables.ScalarString(val)
		if !ok {
			return nil, comlinkerr.NewExecutionError(
				fmt.Sprintf("%s value for %q must be a scalar, got %T", kind, k, val))
		}
		out[k] = s
	}
	return out, nil
}

func flattenHeaders(h map[string][]string) variables.Value {
	out := variables.Mapping{}
	for k, v := range h {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}
