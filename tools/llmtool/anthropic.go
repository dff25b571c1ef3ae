// Package llmtool provides node.Tool implementations backed by real chat
// completion APIs: Anthropic Claude Messages and OpenAI Chat Completions.
// Both stream text fragments as node.Tool's contract requires, grounded on
// the teacher's features/model/{anthropic,openai} adapters — the
// model.Client/model.Streamer shape those packages build is rehomed here
// directly against node.Tool's simpler, domain-specific contract instead of
// goa-ai's generic planner-facing model.Client interface.
package llmtool

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"goa.design/eventflow/runtime/message"
	"goa.design/eventflow/runtime/node"
	"goa.design/eventflow/runtime/streamresult"
)

// AnthropicOptions configures an AnthropicTool.
type AnthropicOptions struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	SystemPrompt string
}

// AnthropicTool is a node.Tool backed by the Anthropic Claude Messages API.
// It streams assistant text as streaming-fragment Messages, following
// grafi's convention that a Tool's output is always boundary-aggregated by
// eventbus.Aggregate rather than by the tool itself.
type AnthropicTool struct {
	id     string
	name   string
	client *sdk.Client
	opts   AnthropicOptions
}

// NewAnthropicTool constructs an AnthropicTool from an API key.
func NewAnthropicTool(name, apiKey string, opts AnthropicOptions) (*AnthropicTool, error) {
	if apiKey == "" {
		return nil, errors.New("llmtool: anthropic api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("llmtool: anthropic model is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicTool{id: name, name: name, client: &client, opts: opts}, nil
}

func (t *AnthropicTool) ID() string            { return t.id }
func (t *AnthropicTool) Name() string          { return t.name }
func (t *AnthropicTool) Type() string          { return "llm.anthropic" }
func (t *AnthropicTool) SpanType() node.SpanType { return node.SpanTypeLLM }

// Invoke translates inputs into an Anthropic Messages request and streams
// the response back as one streaming-fragment Message per text delta.
func (t *AnthropicTool) Invoke(ctx context.Context, _ message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(t.opts.Model),
		MaxTokens: t.opts.MaxTokens,
		Messages:  toAnthropicMessages(inputs),
	}
	if t.opts.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: t.opts.SystemPrompt}}
	}
	if t.opts.Temperature != 0 {
		params.Temperature = sdk.Float(t.opts.Temperature)
	}

	stream := t.client.Messages.NewStreaming(ctx, params)

	return streamresult.FromStream(func(ctx context.Context, emit func(message.Messages)) error {
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(sdk.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			emit(message.Messages{message.NewStreamingFragment(message.RoleAssistant, text.Text)})
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("llmtool: anthropic stream: %w", err)
		}
		return nil
	}), nil
}

func toAnthropicMessages(inputs message.Messages) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(inputs))
	for _, m := range inputs {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case message.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(block))
		default:
			out = append(out, sdk.NewUserMessage(block))
		}
	}
	return out
}
