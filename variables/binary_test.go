package variables

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinaryData is a mock BinaryData handle recording lifecycle calls.
type fakeBinaryData struct {
	name        string
	initialized bool
	destroyed   bool
	data        []byte
	initErr     error
	destroyErr  error
}

func (f *fakeBinaryData) Initialize() error {
	f.initialized = true
	return f.initErr
}

func (f *fakeBinaryData) Destroy() error {
	f.destroyed = true
	return f.destroyErr
}

func (f *fakeBinaryData) GetAllData() ([]byte, error) {
	return f.data, nil
}

func TestWalkBinaryDataFindsNestedHandles(t *testing.T) {
	a := &fakeBinaryData{name: "a", data: []byte("one")}
	b := &fakeBinaryData{name: "b", data: []byte("two")}
	v := Mapping{
		"top": a,
		"list": []any{
			Mapping{"nested": b},
			"scalar",
		},
	}

	var seen []*fakeBinaryData
	err := WalkBinaryData(v, func(bd BinaryData) error {
		seen = append(seen, bd.(*fakeBinaryData))
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 2)
}

func TestInitializeBinaryDataCallsEveryHandle(t *testing.T) {
	a := &fakeBinaryData{}
	b := &fakeBinaryData{}
	v := Mapping{"a": a, "b": Mapping{"nested": b}}

	require.NoError(t, InitializeBinaryData(v))
	assert.True(t, a.initialized)
	assert.True(t, b.initialized)
}

func TestInitializeBinaryDataStopsOnFirstError(t *testing.T) {
	failing := &fakeBinaryData{initErr: errors.New("boom")}
	v := Mapping{"a": failing}

	err := InitializeBinaryData(v)
	assert.EqualError(t, err, "boom")
}

func TestDestroyBinaryDataCallsEveryHandle(t *testing.T) {
	a := &fakeBinaryData{}
	b := &fakeBinaryData{}
	v := []any{a, b}

	require.NoError(t, DestroyBinaryData(v))
	assert.True(t, a.destroyed)
	assert.True(t, b.destroyed)
}

func TestMaterializeBinaryDataReplacesHandlesWithBytes(t *testing.T) {
	a := &fakeBinaryData{data: []byte("payload")}
	v := Mapping{
		"file":  a,
		"count": 3.0,
		"nested": map[string]any{
			"inner": a,
		},
	}

	out, err := MaterializeBinaryData(v)
	require.NoError(t, err)

	m, ok := AsMapping(out)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), m["file"])
	assert.Equal(t, 3.0, m["count"])

	nested, ok := AsMapping(m["nested"])
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), nested["inner"])
}

func TestMaterializeBinaryDataLeavesScalarsAlone(t *testing.T) {
	v := Mapping{"a": "hello", "b": 1.0, "c": nil}
	out, err := MaterializeBinaryData(v)
	require.NoError(t, err)
	assert.Equal(t, v, out)
}
