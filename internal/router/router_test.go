package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vfirsov/agentflow/contracts"
	"github.com/vfirsov/agentflow/internal/budget"
)

func TestRouter_ComplexityBasedRole(t *testing.T) {
	r := NewRouter(budget.NewCatalog())

	_, model, err := r.Route("generic", "complex")
	require.NoError(t, err)
	assert.Equal(t, contracts.ModelID("claude-opus-4-5-20251101"), model)

	_, model, err = r.Route("generic", "simple")
	require.NoError(t, err)
	assert.Equal(t, contracts.ModelID("claude-3-haiku-20240307"), model)
}

func TestRouter_UnknownComplexityDefaultsBalanced(t *testing.T) {
	r := NewRouter(budget.NewCatalog())

	_, model, err := r.Route("generic", "nonsense")
	require.NoError(t, err)
	assert.Equal(t, contracts.ModelID("claude-sonnet-4-5-20250929"), model)
}

func TestRouter_TaskTypeOverride(t *testing.T) {
	r := NewRouter(budget.NewCatalog())
	r.SetTaskTypeOverride("summarize", contracts.RoleFast)

	_, model, err := r.Route("summarize", "complex")
	require.NoError(t, err)
	assert.Equal(t, contracts.ModelID("claude-3-haiku-20240307"), model)
}
