package eventstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"goa.design/eventflow/runtime/message"
)

// mongoDoc is the BSON document shape a StoredEvent is persisted as.
type mongoDoc struct {
	EventID   string `bson:"event_id"`
	EventKind string `bson:"event_kind"`
	Timestamp int64  `bson:"timestamp_unix_nano"`
	ConvID    string `bson:"conversation_id"`
	InvokeID  string `bson:"invoke_id"`
	ReqID     string `bson:"assistant_request_id"`
	UserID    string `bson:"user_id"`
	TopicName string `bson:"topic_name,omitempty"`
	Offset    int    `bson:"offset"`
	HasScope  bool   `bson:"has_scope"`
	Raw       []byte `bson:"raw"`
}

// Mongo is a persistent EventStore backed by a MongoDB collection. Unlike
// RedisStream it keeps indexed fields (conversation_id, assistant_request_id,
// topic_name+offset) as top-level BSON fields so queries run as real
// collection queries instead of a client-side scan.
type Mongo struct {
	collection *mongo.Collection
}

// NewMongo returns a Mongo event store backed by collection. Callers are
// expected to have created indexes on conversation_id, assistant_request_id,
// and {topic_name, offset} for production use.
func NewMongo(collection *mongo.Collection) *Mongo {
	return &Mongo{collection: collection}
}

func toDoc(stored StoredEvent) mongoDoc {
	return mongoDoc{
		EventID:   stored.EventID,
		EventKind: stored.EventKind,
		Timestamp: stored.Timestamp.UnixNano(),
		ConvID:    stored.InvokeCtx.ConversationID,
		InvokeID:  stored.InvokeCtx.InvokeID,
		ReqID:     stored.InvokeCtx.AssistantRequestID,
		UserID:    stored.InvokeCtx.UserID,
		TopicName: stored.TopicName,
		Offset:    stored.Offset,
		HasScope:  stored.HasScope,
		Raw:       stored.Raw,
	}
}

func invokeContextFrom(doc mongoDoc) message.InvokeContext {
	return message.InvokeContext{
		ConversationID:      doc.ConvID,
		InvokeID:            doc.InvokeID,
		AssistantRequestID:  doc.ReqID,
		UserID:              doc.UserID,
	}
}

func fromDoc(doc mongoDoc) StoredEvent {
	return StoredEvent{
		EventID:   doc.EventID,
		EventKind: doc.EventKind,
		InvokeCtx: invokeContextFrom(doc),
		TopicName: doc.TopicName,
		Offset:    doc.Offset,
		HasScope:  doc.HasScope,
		Raw:       doc.Raw,
	}
}

// Record inserts event as a document.
func (s *Mongo) Record(ctx context.Context, event Event) error {
	stored, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("eventstore: encode event: %w", err)
	}
	_, err = s.collection.InsertOne(ctx, toDoc(stored))
	return err
}

// RecordBatch inserts events as documents in one bulk write.
func (s *Mongo) RecordBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]any, 0, len(events))
	for _, event := range events {
		stored, err := encodeEvent(event)
		if err != nil {
			return fmt.Errorf("eventstore: encode event: %w", err)
		}
		docs = append(docs, toDoc(stored))
	}
	_, err := s.collection.InsertMany(ctx, docs)
	return err
}

func (s *Mongo) find(ctx context.Context, filter bson.D) ([]Event, error) {
	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("eventstore: find: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Event
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("eventstore: decode: %w", err)
		}
		out = append(out, fromDoc(doc))
	}
	return out, cursor.Err()
}

// Events returns every recorded event.
func (s *Mongo) Events(ctx context.Context) ([]Event, error) {
	return s.find(ctx, bson.D{})
}

// EventByID returns the event with the given ID, if any.
func (s *Mongo) EventByID(ctx context.Context, eventID string) (Event, bool, error) {
	events, err := s.find(ctx, bson.D{{Key: "event_id", Value: eventID}})
	if err != nil {
		return nil, false, err
	}
	if len(events) == 0 {
		return nil, false, nil
	}
	return events[0], true, nil
}

// AgentEvents returns every event for the given assistant request ID.
func (s *Mongo) AgentEvents(ctx context.Context, assistantRequestID string) ([]Event, error) {
	return s.find(ctx, bson.D{{Key: "assistant_request_id", Value: assistantRequestID}})
}

// ConversationEvents returns every event for the given conversation ID.
func (s *Mongo) ConversationEvents(ctx context.Context, conversationID string) ([]Event, error) {
	return s.find(ctx, bson.D{{Key: "conversation_id", Value: conversationID}})
}

// TopicEvents returns every TopicScoped event on topicName at one of offsets.
func (s *Mongo) TopicEvents(ctx context.Context, topicName string, offsets []int) ([]Event, error) {
	return s.find(ctx, bson.D{
		{Key: "topic_name", Value: topicName},
		{Key: "offset", Value: bson.D{{Key: "$in", Value: offsets}}},
	})
}

// Clear removes every document in the collection.
func (s *Mongo) Clear(ctx context.Context) error {
	_, err := s.collection.DeleteMany(ctx, bson.D{})
	return err
}
