// Package node implements the workflow graph's unit of computation: Node
// wraps a Tool behind a Command, subscribes to topics, publishes to others,
// and follows the AND fan-in ready rule and commit-after-stream contract
// spec.md §4.3 pins down.
package node

import (
	"context"

	"goa.design/eventflow/runtime/message"
	"goa.design/eventflow/runtime/streamresult"
)

// SpanType tags a Tool for tracing, matching the oi_span_type concept
// record_tool_a_execution.py attaches to every tool span.
type SpanType string

// Well-known span types. Tools may use other values; the core only forwards
// whatever SpanType a Tool reports as a span attribute.
const (
	SpanTypeLLM       SpanType = "llm"
	SpanTypeTool      SpanType = "tool"
	SpanTypeRetriever SpanType = "retriever"
	SpanTypeChain     SpanType = "chain"
)

// Tool is the external collaborator contract spec.md §6 requires: a single
// streaming invoke method plus identity/tracing metadata.
type Tool interface {
	ID() string
	Name() string
	Type() string
	SpanType() SpanType
	Invoke(ctx context.Context, ictx message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error)
}

// Command adapts a Node's concatenated subscribed-topic input into a call
// to its wrapped Tool and turns the Tool's output into the stream of
// Messages batches the Node publishes. Most nodes use ToolCommand directly;
// Command exists as its own interface so a node can compose several tools,
// branch, or reshape input/output without the Node itself knowing about it.
type Command interface {
	Invoke(ctx context.Context, ictx message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error)
}

// ToolCommand is the identity Command: it forwards directly to a single
// Tool, unchanged.
type ToolCommand struct {
	Tool Tool
}

// NewToolCommand returns a Command that delegates directly to tool.
func NewToolCommand(tool Tool) *ToolCommand {
	return &ToolCommand{Tool: tool}
}

// Invoke delegates to the wrapped Tool.
func (c *ToolCommand) Invoke(ctx context.Context, ictx message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	return c.Tool.Invoke(ctx, ictx, inputs)
}
