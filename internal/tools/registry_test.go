package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sumSchema = `{
	"type": "object",
	"properties": {
		"a": {"type": "number"},
		"b": {"type": "number"}
	},
	"required": ["a", "b"]
}`

func TestRegistry_RegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	err := r.Register("sum", "adds two numbers", []byte(sumSchema), func(ctx context.Context, args map[string]any) (string, error) {
		return "5", nil
	})
	require.NoError(t, err)

	out, err := r.Invoke(context.Background(), "sum", map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, "5", out)
}

func TestRegistry_InvalidArgsRejected(t *testing.T) {
	r := NewRegistry()
	err := r.Register("sum", "adds two numbers", []byte(sumSchema), func(ctx context.Context, args map[string]any) (string, error) {
		return "5", nil
	})
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), "sum", map[string]any{"a": 2.0})
	require.Error(t, err)
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "ghost", nil)
	require.Error(t, err)
}

func TestRegistry_ToolsSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("zeta", "", []byte(`{"type":"object"}`), noop))
	require.NoError(t, r.Register("alpha", "", []byte(`{"type":"object"}`), noop))

	assert.Equal(t, []string{"alpha", "zeta"}, r.Tools())
}

func noop(ctx context.Context, args map[string]any) (string, error) { return "", nil }
