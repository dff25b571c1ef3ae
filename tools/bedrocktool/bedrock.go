// Package bedrocktool provides a node.Tool backed by AWS Bedrock's unified
// Converse API, demonstrating that node.Tool's contract is provider-
// agnostic: the same streaming-fragment-Message shape llmtool exposes for
// Anthropic/OpenAI applies here against a third, AWS-hosted backend.
package bedrocktool

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"goa.design/eventflow/runtime/message"
	"goa.design/eventflow/runtime/node"
	"goa.design/eventflow/runtime/streamresult"
)

// RuntimeClient is the subset of *bedrockruntime.Client this Tool calls,
// narrowed so tests can substitute a fake.
type RuntimeClient interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Options configures a Tool.
type Options struct {
	ModelID      string
	Temperature  float32
	SystemPrompt string
}

// Tool is a node.Tool backed by AWS Bedrock's ConverseStream API. The
// caller constructs and injects the runtime client (typically
// bedrockruntime.NewFromConfig against an aws.Config assembled however the
// embedding application already manages AWS credentials), mirroring the
// teacher's features/model/bedrock adapter, which takes a RuntimeClient
// rather than owning AWS config loading itself.
type Tool struct {
	id     string
	name   string
	client RuntimeClient
	opts   Options
}

// New constructs a Tool around an already-configured Bedrock runtime
// client.
func New(client RuntimeClient, name string, opts Options) (*Tool, error) {
	if client == nil {
		return nil, errors.New("bedrocktool: runtime client is required")
	}
	if opts.ModelID == "" {
		return nil, errors.New("bedrocktool: model id is required")
	}
	return &Tool{id: name, name: name, client: client, opts: opts}, nil
}

func (t *Tool) ID() string            { return t.id }
func (t *Tool) Name() string          { return t.name }
func (t *Tool) Type() string          { return "llm.bedrock" }
func (t *Tool) SpanType() node.SpanType { return node.SpanTypeLLM }

// Invoke issues a ConverseStream call and streams assistant text back as
// streaming-fragment Messages.
func (t *Tool) Invoke(ctx context.Context, _ message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(t.opts.ModelID),
		Messages: toBedrockMessages(inputs),
	}
	if t.opts.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: t.opts.SystemPrompt}}
	}
	if t.opts.Temperature != 0 {
		input.InferenceConfig = &types.InferenceConfiguration{Temperature: aws.Float32(t.opts.Temperature)}
	}

	out, err := t.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrocktool: converse stream: %w", err)
	}
	stream := out.GetStream()

	return streamresult.FromStream(func(ctx context.Context, emit func(message.Messages)) error {
		defer stream.Close()
		for event := range stream.Events() {
			delta, ok := event.(*types.ConverseStreamOutputMemberContentBlockDelta)
			if !ok {
				continue
			}
			text, ok := delta.Value.Delta.(*types.ContentBlockDeltaMemberText)
			if !ok || text.Value == "" {
				continue
			}
			emit(message.Messages{message.NewStreamingFragment(message.RoleAssistant, text.Value)})
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("bedrocktool: stream: %w", err)
		}
		return nil
	}), nil
}

func toBedrockMessages(inputs message.Messages) []types.Message {
	out := make([]types.Message, 0, len(inputs))
	for _, m := range inputs {
		role := types.ConversationRoleUser
		if m.Role == message.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	return out
}
