package eventstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStream is a persistent EventStore backed by a single Redis Stream.
// Every Record is an XADD; queries XRANGE the whole stream and filter
// client-side, the same linear-scan shape as InMemory — this backend
// trades query speed for durability across process restarts, not for
// indexed lookups.
type RedisStream struct {
	client *redis.Client
	key    string
}

// NewRedisStream returns a RedisStream event store appending to streamKey.
func NewRedisStream(client *redis.Client, streamKey string) *RedisStream {
	return &RedisStream{client: client, key: streamKey}
}

// Record appends event to the stream.
func (s *RedisStream) Record(ctx context.Context, event Event) error {
	stored, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("eventstore: encode event: %w", err)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("eventstore: marshal stored event: %w", err)
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		Values: map[string]any{"data": data},
	}).Err()
}

// RecordBatch appends events to the stream in order.
func (s *RedisStream) RecordBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		if err := s.Record(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStream) scan(ctx context.Context) ([]StoredEvent, error) {
	messages, err := s.client.XRange(ctx, s.key, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("eventstore: xrange %s: %w", s.key, err)
	}
	out := make([]StoredEvent, 0, len(messages))
	for _, msg := range messages {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var stored StoredEvent
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return nil, fmt.Errorf("eventstore: unmarshal stored event: %w", err)
		}
		out = append(out, stored)
	}
	return out, nil
}

// Events returns every recorded event, in recording order.
func (s *RedisStream) Events(ctx context.Context) ([]Event, error) {
	stored, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Event, len(stored))
	for i, e := range stored {
		out[i] = e
	}
	return out, nil
}

// EventByID returns the event with the given ID, if any.
func (s *RedisStream) EventByID(ctx context.Context, eventID string) (Event, bool, error) {
	stored, err := s.scan(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, e := range stored {
		if e.ID() == eventID {
			return e, true, nil
		}
	}
	return nil, false, nil
}

// AgentEvents returns every event for the given assistant request ID.
func (s *RedisStream) AgentEvents(ctx context.Context, assistantRequestID string) ([]Event, error) {
	stored, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range stored {
		if e.Context().AssistantRequestID == assistantRequestID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ConversationEvents returns every event for the given conversation ID.
func (s *RedisStream) ConversationEvents(ctx context.Context, conversationID string) ([]Event, error) {
	stored, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range stored {
		if e.Context().ConversationID == conversationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// TopicEvents returns every TopicScoped event on topicName at one of offsets.
func (s *RedisStream) TopicEvents(ctx context.Context, topicName string, offsets []int) ([]Event, error) {
	offsetSet := make(map[int]struct{}, len(offsets))
	for _, o := range offsets {
		offsetSet[o] = struct{}{}
	}
	stored, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range stored {
		name, offset, ok := e.TopicScope()
		if !ok || name != topicName {
			continue
		}
		if _, ok := offsetSet[offset]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Clear removes the backing stream key entirely.
func (s *RedisStream) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
