package eventbus

import (
	"encoding/json"
	"time"

	"goa.design/eventflow/runtime/message"
)

// timeLayout is RFC3339Nano, spec.md §6's "<ISO-8601>" timestamp format.
const timeLayout = time.RFC3339Nano

func parseTimeLayout(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// wireEventContext is the "event_context" object of spec.md §6's pinned
// topic event JSON, grounded on grafi's NodeEvent/ToolEvent/OutputTopicEvent
// node_event_dict/tool_event_dict/to_dict convention of nesting every
// variant-specific field (plus the request's identity tuple) under one
// "event_context" key rather than flattening it onto the envelope.
type wireEventContext struct {
	TopicName        string               `json:"topic_name"`
	Offset           int                  `json:"offset"`
	PublisherName    string               `json:"publisher_name,omitempty"`
	PublisherType    string               `json:"publisher_type,omitempty"`
	ConsumerName     string               `json:"consumer_name,omitempty"`
	ConsumerType     string               `json:"consumer_type,omitempty"`
	ExecutionContext wireExecutionContext `json:"execution_context"`
}

// wireExecutionContext maps message.InvokeContext onto spec.md §6's
// execution_context keys; "execution_id" is this wire format's name for
// InvokeID (the original source's ExecutionContext/InvokeContext split
// predates a rename that never reached the serialized form).
type wireExecutionContext struct {
	ConversationID     string `json:"conversation_id"`
	ExecutionID        string `json:"execution_id"`
	AssistantRequestID string `json:"assistant_request_id"`
	UserID             string `json:"user_id"`
}

type wireTopicEvent struct {
	EventID            string           `json:"event_id"`
	EventType          EventType        `json:"event_type"`
	AssistantRequestID string           `json:"assistant_request_id"`
	Timestamp          string           `json:"timestamp"`
	EventContext       wireEventContext `json:"event_context"`
	Data               json.RawMessage  `json:"data"`
}

// MarshalJSON renders e in the pinned wire format of spec.md §6: event_id,
// event_type, assistant_request_id, timestamp, a nested event_context, and
// data as the JSON-encoded Message slice (null if e.Data is nil, matching
// the "unrepresentable live stream" case the spec calls out — this package
// never holds a live stream at the point an event is marshaled, but a nil
// Data is treated the same way for consistency).
func (e TopicEvent) MarshalJSON() ([]byte, error) {
	var data json.RawMessage
	if e.Data != nil {
		encoded, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		data = encoded
	}

	wire := wireTopicEvent{
		EventID:            e.EventID,
		EventType:          e.EventType,
		AssistantRequestID: e.InvokeContext.AssistantRequestID,
		Timestamp:          e.Timestamp.Format(timeLayout),
		EventContext: wireEventContext{
			TopicName:     e.TopicName,
			Offset:        e.Offset,
			PublisherName: e.PublisherName,
			PublisherType: e.PublisherType,
			ConsumerName:  e.ConsumerName,
			ConsumerType:  e.ConsumerType,
			ExecutionContext: wireExecutionContext{
				ConversationID:     e.InvokeContext.ConversationID,
				ExecutionID:        e.InvokeContext.InvokeID,
				AssistantRequestID: e.InvokeContext.AssistantRequestID,
				UserID:             e.InvokeContext.UserID,
			},
		},
		Data: data,
	}
	return json.Marshal(wire)
}

// UnmarshalJSON parses the pinned wire format back into a TopicEvent.
// ConsumedEvents is not part of the wire format (it references other
// events by position, not value) and is left empty; callers that need the
// causal chain reconstruct it from the event store's own offsets.
func (e *TopicEvent) UnmarshalJSON(raw []byte) error {
	var wire wireTopicEvent
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	ts, err := parseTimeLayout(wire.Timestamp)
	if err != nil {
		return err
	}

	var data message.Messages
	if len(wire.Data) > 0 && string(wire.Data) != "null" {
		if err := json.Unmarshal(wire.Data, &data); err != nil {
			return err
		}
	}

	*e = TopicEvent{
		EventID:       wire.EventID,
		EventType:     wire.EventType,
		Timestamp:     ts,
		TopicName:     wire.EventContext.TopicName,
		Offset:        wire.EventContext.Offset,
		PublisherName: wire.EventContext.PublisherName,
		PublisherType: wire.EventContext.PublisherType,
		ConsumerName:  wire.EventContext.ConsumerName,
		ConsumerType:  wire.EventContext.ConsumerType,
		Data:          data,
		InvokeContext: message.InvokeContext{
			ConversationID:     wire.EventContext.ExecutionContext.ConversationID,
			InvokeID:           wire.EventContext.ExecutionContext.ExecutionID,
			AssistantRequestID: wire.EventContext.ExecutionContext.AssistantRequestID,
			UserID:             wire.EventContext.ExecutionContext.UserID,
		},
	}
	return nil
}
