package node

import (
	"time"

	"github.com/google/uuid"

	"goa.design/eventflow/runtime/message"
)

// NodeEventType discriminates the NodeEvent variants (spec.md §6).
type NodeEventType string

const (
	NodeEventInvoke  NodeEventType = "NodeInvoke"
	NodeEventRespond NodeEventType = "NodeRespond"
	NodeEventFailed  NodeEventType = "NodeFailed"
)

// NodeEvent records a node invocation's lifecycle for the event store.
type NodeEvent struct {
	EventID          string                `json:"event_id"`
	EventType        NodeEventType         `json:"event_type"`
	Timestamp        time.Time             `json:"timestamp"`
	InvokeContext    message.InvokeContext `json:"invoke_context"`
	NodeID           string                `json:"node_id"`
	NodeName         string                `json:"node_name"`
	NodeType         string                `json:"node_type"`
	SubscribedTopics []string              `json:"subscribed_topics"`
	PublishToTopics  []string              `json:"publish_to_topics"`
	Error            string                `json:"error,omitempty"` // NodeFailed only
}

func (e NodeEvent) ID() string                        { return e.EventID }
func (e NodeEvent) Kind() string                       { return string(e.EventType) }
func (e NodeEvent) OccurredAt() time.Time               { return e.Timestamp }
func (e NodeEvent) Context() message.InvokeContext       { return e.InvokeContext }

func newNodeEvent(typ NodeEventType, n *Node, ictx message.InvokeContext) NodeEvent {
	return NodeEvent{
		EventID:          uuid.NewString(),
		EventType:        typ,
		Timestamp:        time.Now(),
		InvokeContext:    ictx,
		NodeID:           n.id,
		NodeName:         n.Name,
		NodeType:         n.Type,
		SubscribedTopics: n.subscribedTopicNames(),
		PublishToTopics:  n.publishToTopicNames(),
	}
}

// ToolEventType discriminates the ToolEvent variants (spec.md §6).
type ToolEventType string

const (
	ToolEventInvoke  ToolEventType = "ToolInvoke"
	ToolEventRespond ToolEventType = "ToolRespond"
	ToolEventFailed  ToolEventType = "ToolFailed"
)

// ToolEvent records a single Tool call's lifecycle, following
// grafi/common/decorators/record_tool_a_execution.py: one ToolInvokeEvent
// before the call, one ToolRespondEvent after a successful stream, or one
// ToolFailedEvent if the stream raised.
type ToolEvent struct {
	EventID       string                `json:"event_id"`
	EventType     ToolEventType         `json:"event_type"`
	Timestamp     time.Time             `json:"timestamp"`
	InvokeContext message.InvokeContext `json:"invoke_context"`
	ToolID        string                `json:"tool_id"`
	ToolName      string                `json:"tool_name"`
	ToolType      string                `json:"tool_type"`
	Input         message.Messages      `json:"input"`
	Output        message.Messages      `json:"output,omitempty"` // ToolRespond only
	Error         string                `json:"error,omitempty"`  // ToolFailed only
}

func (e ToolEvent) ID() string                  { return e.EventID }
func (e ToolEvent) Kind() string                 { return string(e.EventType) }
func (e ToolEvent) OccurredAt() time.Time         { return e.Timestamp }
func (e ToolEvent) Context() message.InvokeContext { return e.InvokeContext }

func newToolEvent(typ ToolEventType, tool Tool, ictx message.InvokeContext, input message.Messages) ToolEvent {
	return ToolEvent{
		EventID:       uuid.NewString(),
		EventType:     typ,
		Timestamp:     time.Now(),
		InvokeContext: ictx,
		ToolID:        tool.ID(),
		ToolName:      tool.Name(),
		ToolType:      tool.Type(),
		Input:         input,
	}
}
