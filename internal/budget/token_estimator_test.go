package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vfirsov/agentflow/contracts"
)

func TestTokenEstimator_EmptyInput(t *testing.T) {
	e := NewTokenEstimator()

	n, err := e.Estimate(nil, "")
	require.NoError(t, err)
	assert.Equal(t, contracts.TokenCount(0), n)
}

func TestTokenEstimator_NonEmptyInput(t *testing.T) {
	e := NewTokenEstimator()

	n, err := e.Estimate(&contracts.ContextBundle{Messages: []string{"hello world"}}, "compute 2+3")
	require.NoError(t, err)
	assert.Greater(t, int(n), 0)
}

func TestTokenEstimator_SmallInputNeverZero(t *testing.T) {
	e := NewTokenEstimator()

	n, err := e.Estimate(nil, "a")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, int(n), 1)
}
