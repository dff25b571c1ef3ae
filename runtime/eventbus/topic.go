package eventbus

import (
	"time"

	"goa.design/eventflow/runtime/message"
)

// Condition decides whether a publish is accepted onto a Topic. A condition
// returning false causes PublishData to append nothing and return the zero
// event and false — a silent ConditionReject (spec.md §7), not an error.
type Condition func(message.Messages) bool

// AcceptAll is the default Condition: every publish is accepted.
func AcceptAll(message.Messages) bool { return true }

// Topic wraps a TopicEventQueue with identity and subscription metadata.
// Name, Role and Condition are fixed at construction; the underlying queue
// is exclusively owned by the Topic and is never mutated by anything else.
type Topic struct {
	Name      string
	Role      TopicRole
	Condition Condition

	queue *TopicEventQueue
}

// NewTopic constructs a Topic with the given name, role and condition. A nil
// condition is treated as AcceptAll.
func NewTopic(name string, role TopicRole, cond Condition) *Topic {
	if cond == nil {
		cond = AcceptAll
	}
	return &Topic{Name: name, Role: role, Condition: cond, queue: NewTopicEventQueue()}
}

// NewInputTopic constructs the well-known agent_input_topic.
func NewInputTopic() *Topic {
	return NewTopic(InputTopicName, RoleInput, AcceptAll)
}

// NewOutputTopic constructs the well-known agent_output_topic.
func NewOutputTopic() *Topic {
	return NewTopic(OutputTopicName, RoleOutput, AcceptAll)
}

// CanConsume reports whether consumerName has unconsumed events.
func (t *Topic) CanConsume(consumerName string) bool {
	return t.queue.CanConsume(consumerName)
}

// PublishData applies Condition to data; if accepted, constructs the
// appropriate TopicEvent variant (OutputTopicEvent for RoleOutput topics,
// PublishToTopicEvent otherwise), appends it, and returns (event, true). If
// rejected, returns (zero value, false) and appends nothing.
func (t *Topic) PublishData(ictx message.InvokeContext, publisherName, publisherType string, data message.Messages, consumed []TopicEvent) (TopicEvent, bool) {
	if !t.Condition(data) {
		return TopicEvent{}, false
	}
	typ := EventTypePublish
	if t.Role == RoleOutput {
		typ = EventTypeOutput
	}
	event := newEvent(typ, t.Name, ictx, data)
	event.PublisherName = publisherName
	event.PublisherType = publisherType
	event.ConsumedEvents = consumed
	return t.queue.Append(event), true
}

// Consume fetches the next batch for consumerName and re-addresses each
// event as a ConsumeFromTopicEvent naming consumerName/consumerType,
// matching grafi's get_node_input: the node never sees the publisher's
// PublishToTopicEvent/OutputTopicEvent directly, only its own consume view.
func (t *Topic) Consume(consumerName, consumerType string) []TopicEvent {
	return t.wrapConsumed(t.queue.Fetch(consumerName, nil), consumerName, consumerType)
}

// ConsumeAsync behaves like Consume but waits up to timeout for data.
func (t *Topic) ConsumeAsync(consumerName, consumerType string, timeout time.Duration) []TopicEvent {
	return t.wrapConsumed(t.queue.FetchAsync(consumerName, nil, timeout), consumerName, consumerType)
}

func (t *Topic) wrapConsumed(batch []TopicEvent, consumerName, consumerType string) []TopicEvent {
	out := make([]TopicEvent, len(batch))
	for i, e := range batch {
		out[i] = TopicEvent{
			EventID:       e.EventID,
			EventType:     EventTypeConsume,
			Timestamp:     e.Timestamp,
			TopicName:     e.TopicName,
			Offset:        e.Offset,
			InvokeContext: e.InvokeContext,
			Data:          e.Data,
			ConsumerName:  consumerName,
			ConsumerType:  consumerType,
		}
	}
	return out
}

// Commit advances consumerName's committed cursor to offset.
func (t *Topic) Commit(consumerName string, offset int) {
	t.queue.Commit(consumerName, offset)
}

// Len returns the number of events appended to the topic's log.
func (t *Topic) Len() int { return t.queue.Len() }

// Reset clears the topic's log and cursors.
func (t *Topic) Reset() { t.queue.Reset() }
