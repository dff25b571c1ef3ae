package eventstore

import (
	"encoding/json"
	"time"

	"goa.design/eventflow/runtime/message"
)

// StoredEvent is the generic, fully-decoded shape a persistent backend
// (Redis, Mongo) reads back. Persistent stores serialize whatever concrete
// Event they were given and deserialize into this envelope rather than the
// original concrete type, the same "typed write, generic read" tradeoff the
// teacher's own persistence layers make for anything crossing a process
// boundary. Raw carries the original JSON for callers that know the
// concrete shape they're expecting.
type StoredEvent struct {
	EventID    string
	EventKind  string
	Timestamp  time.Time
	InvokeCtx  message.InvokeContext
	TopicName  string
	Offset     int
	HasScope   bool
	Raw        json.RawMessage
}

func (e StoredEvent) ID() string                         { return e.EventID }
func (e StoredEvent) Kind() string                        { return e.EventKind }
func (e StoredEvent) OccurredAt() time.Time                { return e.Timestamp }
func (e StoredEvent) Context() message.InvokeContext        { return e.InvokeCtx }

func (e StoredEvent) TopicScope() (string, int, bool) {
	if !e.HasScope {
		return "", 0, false
	}
	return e.TopicName, e.Offset, true
}

func encodeEvent(event Event) (StoredEvent, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return StoredEvent{}, err
	}
	stored := StoredEvent{
		EventID:   event.ID(),
		EventKind: event.Kind(),
		Timestamp: event.OccurredAt(),
		InvokeCtx: event.Context(),
		Raw:       raw,
	}
	if scoped, ok := event.(TopicScoped); ok {
		if name, offset, ok := scoped.TopicScope(); ok {
			stored.TopicName = name
			stored.Offset = offset
			stored.HasScope = true
		}
	}
	return stored, nil
}
