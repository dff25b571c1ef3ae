package eventstore_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/eventflow/runtime/eventstore"
	"goa.design/eventflow/runtime/message"
)

var (
	mongoClient    *mongo.Client
	mongoContainer testcontainers.Container
	skipMongoTests bool
)

// setupMongo mirrors the teacher's registry/store/mongo/mongo_test.go
// setupMongoDB: start a throwaway mongo:7 container, skip the whole suite
// if Docker isn't available rather than failing the build.
func setupMongo(t *testing.T) *mongo.Collection {
	t.Helper()
	if skipMongoTests {
		t.Skip("docker not available, skipping mongo-backed eventstore tests")
	}

	ctx := context.Background()
	if mongoClient == nil {
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		}
		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			t.Logf("docker not available, skipping mongo-backed eventstore tests: %v", err)
			skipMongoTests = true
			t.Skip("docker not available")
		}
		mongoContainer = container

		host, err := container.Host(ctx)
		require.NoError(t, err)
		port, err := container.MappedPort(ctx, "27017")
		require.NoError(t, err)

		uri := "mongodb://" + host + ":" + port.Port()
		client, err := mongo.Connect(options.Client().ApplyURI(uri))
		require.NoError(t, err)
		require.NoError(t, client.Ping(ctx, nil))
		mongoClient = client
	}

	collection := mongoClient.Database("eventflow_test").Collection(t.Name())
	require.NoError(t, collection.Drop(ctx))
	return collection
}

func TestMongo_RecordRoundTripsArbitraryTopicEvents(t *testing.T) {
	collection := setupMongo(t)
	ctx := context.Background()
	store := eventstore.NewMongo(collection)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("recorded topic events round-trip through mongo", prop.ForAll(
		func(topicName string, offset int, convID, reqID string) bool {
			if err := collection.Drop(ctx); err != nil {
				return false
			}
			e := newTopicEvent(topicName, offset, message.NewInvokeContext(convID, reqID, "user-1"))

			if err := store.Record(ctx, e); err != nil {
				return false
			}

			found, ok, err := store.EventByID(ctx, e.EventID)
			if err != nil || !ok {
				return false
			}
			if found.ID() != e.EventID || found.Context().ConversationID != convID {
				return false
			}
			scopedEvent, ok := found.(eventstore.TopicScoped)
			if !ok {
				return false
			}
			name, gotOffset, scoped := scopedEvent.TopicScope()
			return scoped && name == topicName && gotOffset == offset
		},
		genTopicName(), genOffset(), genConvID(), genReqID(),
	))

	properties.TestingRun(t)
}

func TestMongo_TopicEventsFiltersByOffsetSet(t *testing.T) {
	collection := setupMongo(t)
	ctx := context.Background()
	store := eventstore.NewMongo(collection)

	ictx := message.NewInvokeContext("conv", "req", "user")
	require.NoError(t, store.RecordBatch(ctx, []eventstore.Event{
		newTopicEvent("topic-a", 0, ictx),
		newTopicEvent("topic-a", 1, ictx),
		newTopicEvent("topic-b", 0, ictx),
	}))

	events, err := store.TopicEvents(ctx, "topic-a", []int{1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	scopedEvent, ok := events[0].(eventstore.TopicScoped)
	require.True(t, ok)
	name, offset, ok := scopedEvent.TopicScope()
	require.True(t, ok)
	require.Equal(t, "topic-a", name)
	require.Equal(t, 1, offset)
}

func TestMongo_ConversationAndAgentFilters(t *testing.T) {
	collection := setupMongo(t)
	ctx := context.Background()
	store := eventstore.NewMongo(collection)

	ictxA := message.NewInvokeContext("conv-a", "req-a", "user-1")
	ictxB := message.NewInvokeContext("conv-b", "req-b", "user-2")
	require.NoError(t, store.RecordBatch(ctx, []eventstore.Event{
		newTopicEvent("t", 0, ictxA),
		newTopicEvent("t", 1, ictxB),
		newTopicEvent("t", 2, ictxA),
	}))

	convEvents, err := store.ConversationEvents(ctx, "conv-a")
	require.NoError(t, err)
	require.Len(t, convEvents, 2)

	agentEvents, err := store.AgentEvents(ctx, "req-b")
	require.NoError(t, err)
	require.Len(t, agentEvents, 1)
}
