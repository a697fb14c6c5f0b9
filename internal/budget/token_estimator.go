package budget

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/vfirsov/agentflow/contracts"
)

// encodingName is the tokenizer used to approximate token counts ahead of
// a call. Anthropic does not publish a public tokenizer, so, like other
// tools in this ecosystem, we approximate with OpenAI's cl100k_base encoding:
// close enough to bound budget checks without calling out to the provider.
const encodingName = "cl100k_base"

const fallbackCharsPerToken = 4

// TokenEstimator estimates the number of tokens a context bundle and task
// description will consume, using a real BPE tokenizer with a conservative
// char-count fallback if the encoding fails to load.
type TokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTokenEstimator loads the cl100k_base encoding once and reuses it.
func NewTokenEstimator() *TokenEstimator {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		enc = nil
	}
	return &TokenEstimator{enc: enc}
}

// Estimate returns the estimated token count for a task's assembled context.
// Empty input estimates to zero tokens, never an error.
func (e *TokenEstimator) Estimate(bundle *contracts.ContextBundle, description string) (contracts.TokenCount, error) {
	var sb strings.Builder
	sb.WriteString(description)
	if bundle != nil {
		for _, m := range bundle.Messages {
			sb.WriteString(m)
		}
		for _, v := range bundle.Memory {
			sb.WriteString(v)
		}
		for _, t := range bundle.Tools {
			sb.WriteString(t)
		}
	}
	text := sb.String()
	if text == "" {
		return 0, nil
	}

	if e.enc != nil {
		tokens := e.enc.Encode(text, nil, nil)
		n := len(tokens)
		if n == 0 {
			return 0, fmt.Errorf("encoder returned zero tokens for non-empty input: %w", contracts.ErrEstimationFailed)
		}
		return contracts.TokenCount(n), nil
	}

	// Fallback heuristic; floors to 1 token for any non-empty input so a
	// small request can never bypass budget checks entirely.
	n := len(text) / fallbackCharsPerToken
	if n == 0 {
		n = 1
	}
	return contracts.TokenCount(n), nil
}
