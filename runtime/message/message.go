// Package message defines the immutable payloads threaded through the
// event-driven workflow core: Message, the unit of data exchanged between
// nodes, and InvokeContext, the per-request identity tuple that correlates
// every event produced while servicing one top-level request.
package message

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies the originator of a Message within a conversation.
type Role string

// Well-known roles. Tools and nodes may introduce additional values; the
// core does not interpret Role beyond carrying it through unchanged.
const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall describes a single function/tool invocation requested by an
// assistant message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is an immutable record carried by every topic event. Two messages
// are equal iff their fields are structurally equal; MessageID is not
// assumed unique for equality purposes but is unique for the lifetime of a
// workflow run.
//
// IsStreaming is the sole discriminator aggregation (see eventbus.Aggregate)
// uses to decide whether a message is a partial content fragment that must
// be concatenated with its siblings at the output boundary, or a complete
// message that passes through unchanged.
type Message struct {
	MessageID   string     `json:"message_id"`
	Timestamp   time.Time  `json:"timestamp"`
	Role        Role       `json:"role"`
	Content     string     `json:"content,omitempty"`
	Name        string     `json:"name,omitempty"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID  string     `json:"tool_call_id,omitempty"`
	IsStreaming bool       `json:"is_streaming"`

	// FunctionCall and Functions are the pre-tool_calls OpenAI function-call
	// API keys spec.md §6 pins for wire compatibility. The core never reads
	// or writes them itself; they round-trip as opaque JSON so a message
	// produced by an older caller doesn't lose data passing through this bus.
	FunctionCall json.RawMessage `json:"function_call,omitempty"`
	Functions    json.RawMessage `json:"functions,omitempty"`
}

// New constructs a Message with a fresh MessageID and the current time.
// Embedders that need deterministic IDs/timestamps (tests, replay) should
// construct Message literals directly instead.
func New(role Role, content string) Message {
	return Message{
		MessageID: uuid.NewString(),
		Timestamp: time.Now(),
		Role:      role,
		Content:   content,
	}
}

// NewStreamingFragment constructs a partial streaming Message sharing the
// given role. Content is the fragment's text; IsStreaming is always true.
func NewStreamingFragment(role Role, content string) Message {
	m := New(role, content)
	m.IsStreaming = true
	return m
}

// Messages is a convenience alias used throughout node/tool signatures.
type Messages []Message

// InvokeContext is threaded through every event produced while servicing one
// top-level request, so downstream observers (event stores, tracers) can
// correlate events that belong to the same conversation, invocation, or
// user. It is immutable for the lifetime of a single invoke call.
type InvokeContext struct {
	ConversationID     string `json:"conversation_id"`
	InvokeID           string `json:"invoke_id"`
	AssistantRequestID string `json:"assistant_request_id"`
	UserID             string `json:"user_id"`
}

// NewInvokeContext constructs an InvokeContext with a fresh InvokeID. Callers
// supply ConversationID/AssistantRequestID/UserID since those typically
// originate outside the workflow (session management, request routing).
func NewInvokeContext(conversationID, assistantRequestID, userID string) InvokeContext {
	return InvokeContext{
		ConversationID:     conversationID,
		InvokeID:           uuid.NewString(),
		AssistantRequestID: assistantRequestID,
		UserID:             userID,
	}
}
