package llmtool

import (
	"context"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"goa.design/eventflow/runtime/message"
	"goa.design/eventflow/runtime/node"
	"goa.design/eventflow/runtime/streamresult"
)

// OpenAIOptions configures an OpenAITool.
type OpenAIOptions struct {
	Model        string
	Temperature  float64
	SystemPrompt string
}

// OpenAITool is a node.Tool backed by the OpenAI Chat Completions API.
type OpenAITool struct {
	id     string
	name   string
	client *oai.Client
	opts   OpenAIOptions
}

// NewOpenAITool constructs an OpenAITool from an API key.
func NewOpenAITool(name, apiKey string, opts OpenAIOptions) (*OpenAITool, error) {
	if apiKey == "" {
		return nil, errors.New("llmtool: openai api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("llmtool: openai model is required")
	}
	client := oai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAITool{id: name, name: name, client: &client, opts: opts}, nil
}

func (t *OpenAITool) ID() string            { return t.id }
func (t *OpenAITool) Name() string          { return t.name }
func (t *OpenAITool) Type() string          { return "llm.openai" }
func (t *OpenAITool) SpanType() node.SpanType { return node.SpanTypeLLM }

// Invoke translates inputs into a Chat Completions request and streams the
// response back as one streaming-fragment Message per content delta.
func (t *OpenAITool) Invoke(ctx context.Context, _ message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	messages := toOpenAIMessages(t.opts.SystemPrompt, inputs)
	params := oai.ChatCompletionNewParams{
		Model:    t.opts.Model,
		Messages: messages,
	}
	if t.opts.Temperature != 0 {
		params.Temperature = oai.Float(t.opts.Temperature)
	}

	stream := t.client.Chat.Completions.NewStreaming(ctx, params)

	return streamresult.FromStream(func(ctx context.Context, emit func(message.Messages)) error {
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			emit(message.Messages{message.NewStreamingFragment(message.RoleAssistant, content)})
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("llmtool: openai stream: %w", err)
		}
		return nil
	}), nil
}

func toOpenAIMessages(systemPrompt string, inputs message.Messages) []oai.ChatCompletionMessageParamUnion {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(inputs)+1)
	if systemPrompt != "" {
		out = append(out, oai.SystemMessage(systemPrompt))
	}
	for _, m := range inputs {
		switch m.Role {
		case message.RoleAssistant:
			out = append(out, oai.AssistantMessage(m.Content))
		case message.RoleSystem:
			out = append(out, oai.SystemMessage(m.Content))
		default:
			out = append(out, oai.UserMessage(m.Content))
		}
	}
	return out
}
