package budget

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vfirsov/agentflow/contracts"
)

func TestCostCalculator_Estimate(t *testing.T) {
	c := NewCostCalculator()

	cost, err := c.Estimate(1_000_000, "claude-3-haiku-20240307")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, cost.Amount, 1e-9) // (0.25+1.25)/2
	assert.Equal(t, contracts.Currency("USD"), cost.Currency)
}

func TestCostCalculator_UnknownModel(t *testing.T) {
	c := NewCostCalculator()

	_, err := c.Estimate(1000, "gpt-unknown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrModelUnknown))
}

func TestCostCalculator_EstimateByRole(t *testing.T) {
	c := NewCostCalculator()

	for _, role := range []contracts.ModelRole{contracts.RoleFlagship, contracts.RoleBalanced, contracts.RoleFast} {
		cost, err := c.EstimateByRole(1000, role)
		require.NoError(t, err)
		assert.Greater(t, cost.Amount, 0.0)
	}
}

func TestModelCatalog_RoleMapping(t *testing.T) {
	cat := NewCatalog()

	_, ok := cat.GetByRole(contracts.RoleFlagship)
	require.True(t, ok)

	err := cat.SetRoleMapping(contracts.RoleFast, "claude-sonnet-4-5-20250929")
	require.NoError(t, err)
	info, ok := cat.GetByRole(contracts.RoleFast)
	require.True(t, ok)
	assert.Equal(t, contracts.ModelID("claude-sonnet-4-5-20250929"), info.ID)

	err = cat.SetRoleMapping(contracts.RoleFast, "nonexistent-model")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrModelUnknown))
}
