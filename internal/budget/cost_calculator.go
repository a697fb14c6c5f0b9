package budget

import (
	"fmt"

	"github.com/vfirsov/agentflow/contracts"
)

const defaultCurrency contracts.Currency = "USD"

// CostCalculator converts a token count and model into an estimated or
// actual monetary cost using the per-1M-token pricing in a ModelCatalog.
type CostCalculator struct {
	catalog  contracts.ModelCatalog
	currency contracts.Currency
}

// NewCostCalculator builds a CostCalculator over a default Catalog priced in USD.
func NewCostCalculator() *CostCalculator {
	return &CostCalculator{catalog: NewCatalog(), currency: defaultCurrency}
}

// NewCostCalculatorWithCatalog builds a CostCalculator over a caller-supplied
// catalog and currency, falling back to defaults for nil/empty values.
func NewCostCalculatorWithCatalog(catalog contracts.ModelCatalog, currency contracts.Currency) *CostCalculator {
	if catalog == nil {
		catalog = NewCatalog()
	}
	if currency == "" {
		currency = defaultCurrency
	}
	return &CostCalculator{catalog: catalog, currency: currency}
}

// Estimate returns the cost of tokens on model, using the model's average
// per-1M-token price (input+output averaged, since the split between input
// and output tokens is not known ahead of the call).
func (c *CostCalculator) Estimate(tokens contracts.TokenCount, model contracts.ModelID) (contracts.Cost, error) {
	info, ok := c.catalog.Get(model)
	if !ok {
		return contracts.Cost{}, fmt.Errorf("model %q: %w", model, contracts.ErrModelUnknown)
	}
	amount := float64(tokens) * info.AverageCostPer1M() / 1_000_000
	return contracts.Cost{Amount: amount, Currency: c.currency}, nil
}

// EstimateByRole resolves a model via its default role and estimates cost on it.
func (c *CostCalculator) EstimateByRole(tokens contracts.TokenCount, role contracts.ModelRole) (contracts.Cost, error) {
	info, ok := c.catalog.GetByRole(role)
	if !ok {
		return contracts.Cost{}, fmt.Errorf("role %q: %w", role, contracts.ErrModelUnknown)
	}
	amount := float64(tokens) * info.AverageCostPer1M() / 1_000_000
	return contracts.Cost{Amount: amount, Currency: c.currency}, nil
}
