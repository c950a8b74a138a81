package comlinkerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapASTErrorFormatting(t *testing.T) {
	e := NewMapASTError("Operation not found", nil)
	e.SetASTPath("MapDocument.map[0].OperationDefinition")
	assert.Contains(t, e.FormatShort(), "MapASTError")
	assert.Contains(t, e.FormatShort(), "Operation not found")
	assert.Contains(t, e.FormatShort(), e.ASTPath())
}

func TestHTTPErrorCarriesStatus(t *testing.T) {
	e := NewHTTPError(404, map[string]any{"method": "GET"}, "not found", nil)
	assert.Equal(t, 404, e.StatusCode)
	assert.Equal(t, KindHTTP, e.Kind())
}

func TestMappedHTTPErrorFormatLongIncludesHint(t *testing.T) {
	e := NewMappedHTTPError(404, map[string]any{"message": "Nothing was found"})
	e.hint = "check the response handler for this status"
	long := e.FormatLong()
	assert.Contains(t, long, "Hint:")
}

func TestAsUnwrapsTaxonomyMember(t *testing.T) {
	cause := errors.New("boom")
	be := NewBindingError("registry call failed", cause)
	var err error = be
	got, ok := As[*BindingError](err)
	require.True(t, ok)
	assert.Equal(t, KindBinding, got.Kind())
	assert.ErrorIs(t, err, cause)
}

func TestExecutionErrorKindAndMessage(t *testing.T) {
	e := NewExecutionError(`header value for "x-id" must be a scalar, got variables.Mapping`)
	assert.Equal(t, KindExecution, e.Kind())
	assert.Contains(t, e.Error(), "x-id")
}

func TestUnexpectedErrorWithCausePreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: no such host")
	e := NewUnexpectedErrorWithCause("performing HTTP request: dial tcp: no such host", nil, cause)
	var err error = e
	assert.ErrorIs(t, err, cause)
}

func TestInputValidationErrorIssues(t *testing.T) {
	e := NewInputValidationError([]ValidationIssue{
		{Kind: "missingRequired", Context: map[string]any{"path": "input.name"}},
	})
	assert.Len(t, e.Issues, 1)
	assert.Equal(t, "missingRequired", e.Issues[0].Kind)
}
