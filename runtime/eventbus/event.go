// Package eventbus implements the append-only, per-consumer-cursor topic
// log at the heart of the workflow core: TopicEventQueue, Topic, the
// TopicEvent variants that flow through them, and the boundary-only
// streaming aggregation rule applied when draining an output topic.
package eventbus

import (
	"time"

	"github.com/google/uuid"
	"goa.design/eventflow/runtime/message"
)

// EventType discriminates the TopicEvent variants. Values match the wire
// format pinned in spec.md §6.
type EventType string

const (
	EventTypePublish EventType = "PublishToTopic"
	EventTypeConsume EventType = "ConsumeFromTopic"
	EventTypeOutput  EventType = "OutputTopic"
)

// TopicRole classifies why a Topic exists in the workflow graph.
type TopicRole string

const (
	// RoleInput marks the topic the external caller publishes the request
	// to. By convention there is exactly one: InputTopicName.
	RoleInput TopicRole = "input"
	// RoleOutput marks the topic the external caller drains for the
	// response. By convention there is exactly one: OutputTopicName.
	RoleOutput TopicRole = "output"
	// RoleIntermediate marks any topic used only between nodes.
	RoleIntermediate TopicRole = "intermediate"
)

// Well-known topic names (spec.md §6). The caller is the sole publisher to
// the input topic and the sole consumer of the output topic.
const (
	InputTopicName  = "agent_input_topic"
	OutputTopicName = "agent_output_topic"
)

// TopicEvent is the common shape shared by every event appended to a topic
// log. Offset is assigned exactly once, at append time, by the owning
// TopicEventQueue (invariant 1 in spec.md §3).
type TopicEvent struct {
	EventID       string
	EventType     EventType
	Timestamp     time.Time
	TopicName     string
	Offset        int
	InvokeContext message.InvokeContext
	Data          message.Messages

	// Publish/Output fields.
	PublisherName   string
	PublisherType   string
	ConsumedEvents  []TopicEvent // causal parents, Publish/Output only

	// Consume fields.
	ConsumerName string
	ConsumerType string
}

// IsStreamingFragment reports whether the event's leading message is a
// streaming fragment, the sole discriminator aggregation uses (spec.md
// §4.7). An event with no data is never treated as streaming.
func (e TopicEvent) IsStreamingFragment() bool {
	return len(e.Data) > 0 && e.Data[0].IsStreaming
}

// ID satisfies eventstore.Event.
func (e TopicEvent) ID() string { return e.EventID }

// Kind satisfies eventstore.Event.
func (e TopicEvent) Kind() string { return string(e.EventType) }

// OccurredAt satisfies eventstore.Event.
func (e TopicEvent) OccurredAt() time.Time { return e.Timestamp }

// Context satisfies eventstore.Event.
func (e TopicEvent) Context() message.InvokeContext { return e.InvokeContext }

// TopicScope satisfies eventstore.TopicScoped, letting a store filter
// PublishToTopic/OutputTopic events by topic name and offset the same way
// grafi's EventStoreInMemory.get_topic_events does.
func (e TopicEvent) TopicScope() (name string, offset int, ok bool) {
	if e.EventType == EventTypeConsume {
		return "", 0, false
	}
	return e.TopicName, e.Offset, true
}

func newEvent(typ EventType, topicName string, ictx message.InvokeContext, data message.Messages) TopicEvent {
	return TopicEvent{
		EventID:       uuid.NewString(),
		EventType:     typ,
		Timestamp:     time.Now(),
		TopicName:     topicName,
		InvokeContext: ictx,
		Data:          data,
	}
}
