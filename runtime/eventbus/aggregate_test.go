package eventbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/eventflow/runtime/eventbus"
	"goa.design/eventflow/runtime/message"
)

// TestAggregate_StreamingAggregationLaw covers testable property 6: a
// sequence of streaming fragments on the output topic collapses, in offset
// order, into a single non-streaming event whose content is their
// concatenation.
func TestAggregate_StreamingAggregationLaw(t *testing.T) {
	topic := eventbus.NewOutputTopic()
	ictx := message.NewInvokeContext("c", "r", "u")
	for _, frag := range []string{"Hel", "lo ", "world"} {
		topic.PublishData(ictx, "p", "p", message.Messages{message.NewStreamingFragment(message.RoleAssistant, frag)}, nil)
	}

	all := topic.Consume("caller", "caller")
	out := eventbus.Aggregate(all)
	require.Len(t, out, 1)
	assert.Equal(t, "Hello world", out[0].Data[0].Content)
	assert.False(t, out[0].Data[0].IsStreaming)
	assert.Equal(t, 0, out[0].Offset, "aggregated event takes the first fragment's offset")
}

func TestAggregate_NonStreamingPassesThroughUnchanged(t *testing.T) {
	topic := eventbus.NewOutputTopic()
	ictx := message.NewInvokeContext("c", "r", "u")
	topic.PublishData(ictx, "p", "p", message.Messages{message.New(message.RoleAssistant, "hi")}, nil)

	all := topic.Consume("caller", "caller")
	out := eventbus.Aggregate(all)
	require.Len(t, out, 1)
	assert.Equal(t, "hi", out[0].Data[0].Content)
}

func TestAggregate_MixedStreamingAndNonStreamingByTopic(t *testing.T) {
	topic := eventbus.NewOutputTopic()
	ictx := message.NewInvokeContext("c", "r", "u")
	topic.PublishData(ictx, "p", "p", message.Messages{message.New(message.RoleAssistant, "plain")}, nil)
	topic.PublishData(ictx, "p", "p", message.Messages{message.NewStreamingFragment(message.RoleAssistant, "a")}, nil)
	topic.PublishData(ictx, "p", "p", message.Messages{message.NewStreamingFragment(message.RoleAssistant, "b")}, nil)

	all := topic.Consume("caller", "caller")
	out := eventbus.Aggregate(all)
	require.Len(t, out, 2)
	assert.Equal(t, "plain", out[0].Data[0].Content)
	assert.Equal(t, "ab", out[1].Data[0].Content)
}
