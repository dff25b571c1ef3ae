package eventstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"goa.design/eventflow/runtime/eventstore"
	"goa.design/eventflow/runtime/message"
)

var (
	redisClient    *redis.Client
	redisContainer testcontainers.Container
	skipRedisTests bool
)

// setupRedis starts a throwaway redis:7-alpine container, following the
// teacher's registry/store/mongo/mongo_test.go:setupMongoDB skip-on-no-docker
// pattern so this suite degrades gracefully in sandboxes without a daemon.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if skipRedisTests {
		t.Skip("docker not available, skipping redis-backed eventstore tests")
	}
	if redisClient != nil {
		return redisClient
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Logf("docker not available, skipping redis-backed eventstore tests: %v", err)
		skipRedisTests = true
		t.Skip("docker not available")
	}
	redisContainer = container

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisClient = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, redisClient.Ping(ctx).Err())
	return redisClient
}

// TestRedisStream_RecordRoundTripsArbitraryTopicEvents checks that every
// TopicEvent gopter generates survives an XAdd/XRange round trip with its
// event ID, conversation ID and topic scope (name and offset) intact.
func TestRedisStream_RecordRoundTripsArbitraryTopicEvents(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	streamKey := "eventflow-test:" + t.Name()
	store := eventstore.NewRedisStream(client, streamKey)
	defer func() { _ = store.Clear(ctx) }()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("recorded topic events round-trip through a redis stream", prop.ForAll(
		func(topicName string, offset int, convID, reqID string) bool {
			if err := store.Clear(ctx); err != nil {
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

func TestRedisStream_TopicEventsFiltersByOffsetSet(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	store := eventstore.NewRedisStream(client, "eventflow-test:"+t.Name())
	defer func() { _ = store.Clear(ctx) }()

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

// TestMain tears down both the redis and mongo containers this package's
// suites may have started, regardless of which test file ran last.
func TestMain(m *testing.M) {
	code := m.Run()
	ctx := context.Background()
	if redisContainer != nil {
		_ = redisContainer.Terminate(ctx)
	}
	if mongoContainer != nil {
		_ = mongoContainer.Terminate(ctx)
	}
	os.Exit(code)
}

func genTopicName() gopter.Gen {
	return gen.OneConstOf("agent_input_topic", "mid", "topic-a", "topic-b")
}

func genOffset() gopter.Gen {
	return gen.IntRange(0, 1000)
}

func genConvID() gopter.Gen {
	return gen.OneConstOf("conv-1", "conv-2", "conv-3")
}

func genReqID() gopter.Gen {
	return gen.OneConstOf("req-1", "req-2", "req-3")
}
