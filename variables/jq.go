package variables

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// IndexJQ evaluates a jq query against v and returns the first result.
// This is the engine behind a future Jessie `$jq(...)` builtin: unlike
// Index/IndexDotted, which only walk a fixed, AST-known key path, a jq
// query lets a map author express selection, filtering, and projection
// over a value whose shape isn't known until the AST is written (for
// instance, plucking the first array element matching a predicate out of
// an HTTP response body).
func IndexJQ(v Value, query string) (Value, error) {
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("parsing jq query %q: %w", query, err)
	}
	iter := q.Run(v)
	out, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := out.(error); ok {
		return nil, fmt.Errorf("evaluating jq query %q: %w", query, err)
	}
	return out, nil
}
