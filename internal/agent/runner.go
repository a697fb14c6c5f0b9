// Package agent drives the tool-use loop for a single task: it calls the
// provider, dispatches any requested tool calls, and loops until the model
// stops requesting tools, the round budget is exhausted, or the project's
// cost budget is exhausted.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vfirsov/agentflow/contracts"
	"github.com/vfirsov/agentflow/internal/budget"
)

// defaultMaxToolRounds bounds the tool-use loop when a project's policy does
// not specify one.
const defaultMaxToolRounds = 10

// Runner implements contracts.AgentRunner against the Anthropic Messages API.
type Runner struct {
	client     anthropic.Client
	tools      contracts.ToolRegistry
	router     contracts.ModelRouter
	costCalc   *budget.CostCalculator
	enforcer   *budget.Enforcer
}

// NewRunner builds a Runner. apiKey may be empty if ANTHROPIC_API_KEY is set
// in the environment, matching the SDK's own default resolution.
func NewRunner(apiKey string, tools contracts.ToolRegistry, router contracts.ModelRouter, costCalc *budget.CostCalculator, enforcer *budget.Enforcer) *Runner {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &Runner{
		client:   anthropic.NewClient(opts...),
		tools:    tools,
		router:   router,
		costCalc: costCalc,
		enforcer: enforcer,
	}
}

// Run executes the tool-use loop for task within project, given its
// pre-built context bundle. On budget exhaustion mid-loop it returns
// whatever output has been accumulated with PartialResult set, rather than
// an error — a partial result is still a usable COMPLETED outcome.
func (r *Runner) Run(ctx context.Context, project *contracts.Project, task *contracts.Task, bundle *contracts.ContextBundle) (*contracts.AgentResult, error) {
	_, model, err := r.router.Route(task.TaskType, task.Complexity)
	if err != nil {
		return nil, fmt.Errorf("routing model for task %q: %w", task.ID, err)
	}

	maxRounds := project.Policy.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}

	messages := buildInitialMessages(task, bundle)

	var totalUsage contracts.Usage
	var lastText string
	partial := false

	for round := 0; round < maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: 4096,
			Messages:  messages,
			Tools:     toolUnionParams(r.tools),
		})
		if err != nil {
			return nil, classifyCallError(task.ID, err)
		}

		roundTokens := contracts.TokenCount(resp.Usage.InputTokens + resp.Usage.OutputTokens)
		roundCost, err := r.costCalc.Estimate(roundTokens, contracts.ModelID(model))
		if err != nil {
			return nil, err
		}
		totalUsage.Tokens += roundTokens
		totalUsage.Cost.Amount += roundCost.Amount
		totalUsage.Cost.Currency = roundCost.Currency

		if !r.enforcer.CanContinue(ctx, project, totalUsage.Cost) {
			partial = true
			break
		}

		toolUses, text := splitResponse(resp)
		lastText = text

		if len(toolUses) == 0 {
			return &contracts.AgentResult{Output: lastText, Usage: totalUsage}, nil
		}

		messages = appendAssistantTurn(messages, resp)
		messages = r.runToolCalls(ctx, messages, toolUses)
	}

	return &contracts.AgentResult{Output: lastText, Usage: totalUsage, PartialResult: partial || lastText == ""}, nil
}

// classifyCallError wraps network failures, rate limiting, and 5xx
// responses as contracts.TransientError so the executor retries them with
// backoff; anything else (4xx validation, auth) is left as a permanent error.
func classifyCallError(taskID contracts.TaskID, err error) error {
	wrapped := fmt.Errorf("agent call for task %q: %w", taskID, err)

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 529:
			return &contracts.TransientError{Err: wrapped}
		default:
			return wrapped
		}
	}

	// Connection-level failures (DNS, timeout, reset) never surface as
	// *anthropic.Error; treat anything outside the typed API error as
	// potentially transient network trouble.
	return &contracts.TransientError{Err: wrapped}
}

func buildInitialMessages(task *contracts.Task, bundle *contracts.ContextBundle) []anthropic.MessageParam {
	var sb string
	sb = task.Description
	if bundle != nil {
		for _, m := range bundle.Messages {
			sb += "\n\n" + m
		}
	}
	return []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(sb)),
	}
}

func toolUnionParams(registry contracts.ToolRegistry) []anthropic.ToolUnionParam {
	if registry == nil {
		return nil
	}
	names := registry.Tools()
	out := make([]anthropic.ToolUnionParam, 0, len(names))
	for _, name := range names {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name: name,
			},
		})
	}
	return out
}

// toolUseRequest is the minimal shape extracted from a response's tool_use blocks.
type toolUseRequest struct {
	ID    string
	Name  string
	Input map[string]any
}

func splitResponse(resp *anthropic.Message) ([]toolUseRequest, string) {
	var toolUses []toolUseRequest
	var text string
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += b.Text
		case anthropic.ToolUseBlock:
			args, _ := b.Input.(map[string]any)
			toolUses = append(toolUses, toolUseRequest{ID: b.ID, Name: b.Name, Input: args})
		}
	}
	return toolUses, text
}

func appendAssistantTurn(messages []anthropic.MessageParam, resp *anthropic.Message) []anthropic.MessageParam {
	return append(messages, resp.ToParam())
}

func (r *Runner) runToolCalls(ctx context.Context, messages []anthropic.MessageParam, calls []toolUseRequest) []anthropic.MessageParam {
	var resultBlocks []anthropic.ContentBlockParamUnion
	for _, call := range calls {
		if ctx.Err() != nil {
			break
		}
		out, err := r.tools.Invoke(ctx, call.Name, call.Input)
		if err != nil {
			out = fmt.Sprintf("error: %v", err)
		}
		resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(call.ID, out, err != nil))
	}
	return append(messages, anthropic.NewUserMessage(resultBlocks...))
}
