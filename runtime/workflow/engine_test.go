package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/eventflow/runtime/eventbus"
	"goa.design/eventflow/runtime/message"
	"goa.design/eventflow/runtime/streamresult"
	"goa.design/eventflow/runtime/workflow"
)

type upperCommand struct{}

func (upperCommand) Invoke(_ context.Context, _ message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	var out message.Messages
	for _, m := range inputs {
		out = append(out, message.New(message.RoleAssistant, strings.ToUpper(m.Content)))
	}
	return streamresult.FromValue(out), nil
}

type streamingCommand struct{ fragments []string }

func (s streamingCommand) Invoke(_ context.Context, _ message.InvokeContext, _ message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	return streamresult.FromStream(func(ctx context.Context, emit func(message.Messages)) error {
		for _, f := range s.fragments {
			emit(message.Messages{message.NewStreamingFragment(message.RoleAssistant, f)})
		}
		return nil
	}), nil
}

type blockingCommand struct{ unblock chan struct{} }

func (b blockingCommand) Invoke(ctx context.Context, _ message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	return streamresult.FromStream(func(streamCtx context.Context, emit func(message.Messages)) error {
		select {
		case <-b.unblock:
		case <-streamCtx.Done():
			return streamCtx.Err()
		}
		emit(inputs)
		return nil
	}), nil
}

func TestEngine_InvokeSingleNodeTopology(t *testing.T) {
	b := workflow.NewBuilder()
	b.Node("upper", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{b.OutputTopic()}, upperCommand{})
	eng, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	ictx := message.NewInvokeContext("c", "r", "u")
	out, err := eng.Invoke(ctx, ictx, message.New(message.RoleUser, "hi"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "HI", out[0].Content)
}

func TestEngine_InvokeChainsTwoNodes(t *testing.T) {
	b := workflow.NewBuilder()
	mid := b.Topic("mid", nil)
	b.Node("upper", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{mid}, upperCommand{})
	b.Node("echo", "transform", []*eventbus.Topic{mid}, []*eventbus.Topic{b.OutputTopic()}, upperCommand{})
	eng, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	ictx := message.NewInvokeContext("c", "r", "u")
	out, err := eng.Invoke(ctx, ictx, message.New(message.RoleUser, "hi"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "HI", out[0].Content)
}

func TestEngine_AggregatesStreamingFragmentsAtOutput(t *testing.T) {
	b := workflow.NewBuilder()
	b.Node("streamer", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{b.OutputTopic()}, streamingCommand{fragments: []string{"foo", "bar", "baz"}})
	eng, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	ictx := message.NewInvokeContext("c", "r", "u")
	out, err := eng.Invoke(ctx, ictx, message.New(message.RoleUser, "go"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "foobarbaz", out[0].Content)
}

func TestEngine_BuildRejectsOrphanTopic(t *testing.T) {
	b := workflow.NewBuilder()
	orphan := b.Topic("orphan", nil)
	b.Node("upper", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{orphan, b.OutputTopic()}, upperCommand{})
	_, err := b.Build()
	assert.Error(t, err)
}

func TestEngine_StopEndsRunWithoutError(t *testing.T) {
	b := workflow.NewBuilder()
	unblock := make(chan struct{})
	b.Node("blocker", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{b.OutputTopic()}, blockingCommand{unblock: unblock})
	eng, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	ictx := message.NewInvokeContext("c", "r", "u")

	go func() {
		time.Sleep(30 * time.Millisecond)
		eng.Stop()
	}()

	out, err := eng.Invoke(ctx, ictx, message.New(message.RoleUser, "hi"))
	require.NoError(t, err)
	assert.Empty(t, out)
	close(unblock)
}

func TestEngine_QuiescenceTimeoutIsDistinctFromStop(t *testing.T) {
	b := workflow.NewBuilder()
	unblock := make(chan struct{})
	defer close(unblock)
	b.Node("blocker", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{b.OutputTopic()}, blockingCommand{unblock: unblock})
	eng, err := b.Build()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ictx := message.NewInvokeContext("c", "r", "u")

	_, err = eng.Invoke(ctx, ictx, message.New(message.RoleUser, "hi"))
	assert.ErrorIs(t, err, workflow.ErrQuiescenceTimeout)
}

// TestEngine_FanOutFanIn implements scenario S3: node A publishes to topics
// X and Y, nodes B and C each consume one and publish to their own
// downstream topic, node D subscribes to both of those (AND fan-in: Ready
// requires unconsumed data on every subscribed topic, not just one). D is
// dispatched only once both B's and C's output have landed, and gathers one
// input message from each, following grafi/workflows/impl/utils.py's
// get_node_input concatenation order.
//
// Note this is deliberately NOT "B and C both publish onto one shared topic
// Z" — Ready() is a per-node AND over that node's own subscriptions, with no
// notion of waiting for a specific number of publishers on a single topic,
// so two independently-scheduled goroutines racing to publish onto one
// shared topic cannot guarantee the single-fan-in-cycle behavior a literal
// reading of "Z" would imply. Giving B and C distinct downstream topics is
// the deterministic way to express this fan-in under real concurrency.
func TestEngine_FanOutFanIn(t *testing.T) {
	b := workflow.NewBuilder()
	x := b.Topic("x", nil)
	y := b.Topic("y", nil)
	zb := b.Topic("z_b", nil)
	zc := b.Topic("z_c", nil)

	b.Node("a", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{x, y}, upperCommand{})
	b.Node("b", "transform", []*eventbus.Topic{x}, []*eventbus.Topic{zb}, upperCommand{})
	b.Node("c", "transform", []*eventbus.Topic{y}, []*eventbus.Topic{zc}, upperCommand{})
	b.Node("d", "transform", []*eventbus.Topic{zb, zc}, []*eventbus.Topic{b.OutputTopic()}, upperCommand{})

	eng, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	ictx := message.NewInvokeContext("c", "r", "u")
	out, err := eng.Invoke(ctx, ictx, message.New(message.RoleUser, "hi"))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "HI", out[0].Content)
	assert.Equal(t, "HI", out[1].Content)
}

type failingCommand struct{ err error }

func (f failingCommand) Invoke(context.Context, message.InvokeContext, message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	return nil, f.err
}

// TestEngine_ToolFailurePropagates implements scenario S5: a node's
// command errors, Invoke surfaces the error rather than hanging until the
// caller's deadline, and the failing consume is never committed.
func TestEngine_ToolFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	b := workflow.NewBuilder()
	b.Node("boom", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{b.OutputTopic()}, failingCommand{err: boom})
	eng, err := b.Build()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ictx := message.NewInvokeContext("c", "r", "u")
	_, err = eng.Invoke(ctx, ictx, message.New(message.RoleUser, "hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestEngine_InvokeStreamYieldsIncrementally(t *testing.T) {
	b := workflow.NewBuilder()
	b.Node("streamer", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{b.OutputTopic()}, streamingCommand{fragments: []string{"a", "b"}})
	eng, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	ictx := message.NewInvokeContext("c", "r", "u")
	stream, err := eng.InvokeStream(ctx, ictx, message.New(message.RoleUser, "go"))
	require.NoError(t, err)

	all, err := stream.Await(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	var content string
	for _, batch := range all {
		for _, m := range batch {
			content += m.Content
		}
	}
	assert.Equal(t, "ab", content)
}
