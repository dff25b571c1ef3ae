// Package eventstore records the full event history of a workflow run —
// every topic publish/consume/output and every node/tool lifecycle
// transition — and lets it be queried back for debugging, audit, and
// replay tooling, following
// grafi/common/event_stores/event_store_in_memory.py.
package eventstore

import (
	"context"
	"time"

	"goa.design/eventflow/runtime/message"
)

// Event is the minimal shape every recordable event satisfies: topic
// events (runtime/eventbus.TopicEvent) and node/tool lifecycle events
// (runtime/node).
type Event interface {
	ID() string
	Kind() string
	OccurredAt() time.Time
	Context() message.InvokeContext
}

// TopicScoped is implemented by events that belong to a specific topic
// offset (PublishToTopicEvent/OutputTopicEvent, not ConsumeFromTopicEvent
// per grafi's get_topic_events, which only matches those two types).
type TopicScoped interface {
	TopicScope() (topicName string, offset int, ok bool)
}

// EventSink is the write side a node, tool, or engine records events
// through. It is deliberately narrower than EventStore so callers that only
// produce events don't need query methods in their dependency surface.
type EventSink interface {
	Record(ctx context.Context, event Event) error
	RecordBatch(ctx context.Context, events []Event) error
}

// EventStore is the full read/write interface: a sink plus the query
// operations grafi's in-memory store exposes.
type EventStore interface {
	EventSink

	// Events returns every recorded event, in recording order.
	Events(ctx context.Context) ([]Event, error)
	// EventByID returns the event with the given ID, if any.
	EventByID(ctx context.Context, eventID string) (Event, bool, error)
	// AgentEvents returns every event whose InvokeContext.AssistantRequestID
	// matches assistantRequestID.
	AgentEvents(ctx context.Context, assistantRequestID string) ([]Event, error)
	// ConversationEvents returns every event whose InvokeContext.ConversationID
	// matches conversationID.
	ConversationEvents(ctx context.Context, conversationID string) ([]Event, error)
	// TopicEvents returns every TopicScoped event on topicName whose offset
	// is in offsets.
	TopicEvents(ctx context.Context, topicName string, offsets []int) ([]Event, error)
	// Clear discards every recorded event.
	Clear(ctx context.Context) error
}
