package contextmgr

import (
	"fmt"

	"github.com/vfirsov/agentflow/contracts"
)

const (
	// StrategyTruncate removes oldest messages until within limit.
	StrategyTruncate = "truncate"
	// StrategyKeepLastN keeps only the last N messages.
	StrategyKeepLastN = "keep_last_n"
	// StrategyNone does no compaction (default).
	StrategyNone = "none"

	defaultCharsPerToken = 4
)

// Compactor implements contracts.ContextCompactor.
//
// Strategies:
//   - "truncate": remove oldest messages until tokens <= MaxTokens
//   - "keep_last_n": keep only the last N messages (policy.KeepLastN)
//   - "none"/"": no compaction (may error if context too large)
type Compactor struct {
	charsPerToken int
}

// NewCompactor creates a Compactor using the default chars-per-token ratio.
func NewCompactor() *Compactor {
	return &Compactor{charsPerToken: defaultCharsPerToken}
}

// NewCompactorWithRatio creates a Compactor with a custom chars-per-token ratio.
func NewCompactorWithRatio(charsPerToken int) *Compactor {
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}
	return &Compactor{charsPerToken: charsPerToken}
}

// Compact reduces bundle according to policy. Memory is not compacted, only Messages.
func (c *Compactor) Compact(bundle *contracts.ContextBundle, policy contracts.ContextPolicy) (*contracts.ContextBundle, error) {
	if bundle == nil {
		return nil, contracts.ErrInvalidInput
	}

	result := c.copyBundle(bundle)

	switch policy.Strategy {
	case StrategyKeepLastN:
		result = c.applyKeepLastN(result, policy.KeepLastN)
	case StrategyTruncate:
		result = c.applyTruncate(result, policy.MaxTokens)
	case StrategyNone, "":
	default:
		// unknown strategy, treat as none
	}

	if policy.MaxTokens > 0 {
		tokens := c.estimateTokens(result)
		if tokens > policy.MaxTokens {
			return nil, fmt.Errorf("context has %d tokens after compaction, exceeds limit %d: %w",
				tokens, policy.MaxTokens, contracts.ErrContextTooLarge)
		}
	}

	return result, nil
}

func (c *Compactor) copyBundle(bundle *contracts.ContextBundle) *contracts.ContextBundle {
	result := &contracts.ContextBundle{
		Messages: make([]string, len(bundle.Messages)),
		Memory:   make(map[string]string),
		Tools:    append([]string{}, bundle.Tools...),
	}
	copy(result.Messages, bundle.Messages)
	for k, v := range bundle.Memory {
		result.Memory[k] = v
	}
	return result
}

func (c *Compactor) applyKeepLastN(bundle *contracts.ContextBundle, n int) *contracts.ContextBundle {
	if n <= 0 || n >= len(bundle.Messages) {
		return bundle
	}
	bundle.Messages = bundle.Messages[len(bundle.Messages)-n:]
	return bundle
}

func (c *Compactor) applyTruncate(bundle *contracts.ContextBundle, maxTokens contracts.TokenCount) *contracts.ContextBundle {
	if maxTokens <= 0 {
		return bundle
	}
	for c.estimateTokens(bundle) > maxTokens && len(bundle.Messages) > 0 {
		bundle.Messages = bundle.Messages[1:]
	}
	return bundle
}

func (c *Compactor) estimateTokens(bundle *contracts.ContextBundle) contracts.TokenCount {
	var totalChars int
	for _, msg := range bundle.Messages {
		totalChars += len(msg)
	}
	for _, v := range bundle.Memory {
		totalChars += len(v)
	}
	for _, t := range bundle.Tools {
		totalChars += len(t)
	}
	return contracts.TokenCount(totalChars / c.charsPerToken)
}
