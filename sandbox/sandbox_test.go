package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalArithmeticOverScope(t *testing.T) {
	sb := New()
	out, err := sb.Eval("input.page * 2", map[string]any{
		"input": map[string]any{"page": 3.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 6.0, out)
}

func TestEvalCachesCompiledProgram(t *testing.T) {
	sb := New().(*exprSandbox)
	_, err := sb.Eval("1 + 1", map[string]any{})
	require.NoError(t, err)
	assert.Len(t, sb.cache, 1)
	_, err = sb.Eval("1 + 1", map[string]any{})
	require.NoError(t, err)
	assert.Len(t, sb.cache, 1)
}

func TestEvalUndefinedVariableIsNil(t *testing.T) {
	sb := New()
	out, err := sb.Eval("parameters.missing", map[string]any{
		"parameters": map[string]any{},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCoerceBool(t *testing.T) {
	assert.False(t, CoerceBool(nil))
	assert.False(t, CoerceBool(false))
	assert.False(t, CoerceBool(""))
	assert.False(t, CoerceBool(0.0))
	assert.True(t, CoerceBool("x"))
	assert.True(t, CoerceBool(map[string]any{}))
	assert.True(t, CoerceBool([]any{}))
}
