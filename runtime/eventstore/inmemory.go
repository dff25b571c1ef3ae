package eventstore

import (
	"context"
	"sync"
)

// InMemory is the default EventStore, a direct port of
// grafi/common/event_stores/event_store_in_memory.py: an append-only slice
// protected by a mutex, with linear-scan queries matching the original
// (no indices — this store is for local runs and tests, not production
// scale, exactly as in the teacher's domain).
type InMemory struct {
	mu     sync.Mutex
	events []Event
}

// NewInMemory returns an empty InMemory event store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

// Record appends event to the store.
func (s *InMemory) Record(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// RecordBatch appends events to the store, in order.
func (s *InMemory) RecordBatch(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Events returns a copy of every recorded event, in recording order.
func (s *InMemory) Events(_ context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...), nil
}

// EventByID returns the event with the given ID, if any.
func (s *InMemory) EventByID(_ context.Context, eventID string) (Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID() == eventID {
			return e, true, nil
		}
	}
	return nil, false, nil
}

// AgentEvents returns every event for the given assistant request ID.
func (s *InMemory) AgentEvents(_ context.Context, assistantRequestID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Context().AssistantRequestID == assistantRequestID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ConversationEvents returns every event for the given conversation ID.
func (s *InMemory) ConversationEvents(_ context.Context, conversationID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Context().ConversationID == conversationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// TopicEvents returns every TopicScoped event on topicName at one of offsets.
func (s *InMemory) TopicEvents(_ context.Context, topicName string, offsets []int) ([]Event, error) {
	offsetSet := make(map[int]struct{}, len(offsets))
	for _, o := range offsets {
		offsetSet[o] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		scoped, ok := e.(TopicScoped)
		if !ok {
			continue
		}
		name, offset, ok := scoped.TopicScope()
		if !ok || name != topicName {
			continue
		}
		if _, ok := offsetSet[offset]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Clear discards every recorded event.
func (s *InMemory) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	return nil
}
