package eventbus_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/eventflow/runtime/eventbus"
	"goa.design/eventflow/runtime/message"
)

// TestTopic_ConditionRejectIsSilent covers scenario S4: a rejected publish
// appends nothing and returns false; a subsequent accepted publish flows
// through normally.
func TestTopic_ConditionRejectIsSilent(t *testing.T) {
	noStop := func(msgs message.Messages) bool {
		for _, m := range msgs {
			if strings.Contains(m.Content, "stop") {
				return false
			}
		}
		return true
	}
	topic := eventbus.NewTopic("t", eventbus.RoleIntermediate, noStop)
	ictx := message.NewInvokeContext("c", "r", "u")

	_, accepted := topic.PublishData(ictx, "p", "p", message.Messages{message.New(message.RoleUser, "please stop")}, nil)
	assert.False(t, accepted)
	assert.Equal(t, 0, topic.Len())

	event, accepted := topic.PublishData(ictx, "p", "p", message.Messages{message.New(message.RoleUser, "go on")}, nil)
	require.True(t, accepted)
	assert.Equal(t, 0, event.Offset)
	assert.Equal(t, 1, topic.Len())
}

func TestTopic_ConsumeRewritesConsumerIdentity(t *testing.T) {
	topic := eventbus.NewTopic("t", eventbus.RoleIntermediate, nil)
	ictx := message.NewInvokeContext("c", "r", "u")
	topic.PublishData(ictx, "publisher", "tool", message.Messages{message.New(message.RoleUser, "hi")}, nil)

	got := topic.Consume("consumer", "transform")
	require.Len(t, got, 1)
	assert.Equal(t, eventbus.EventTypeConsume, got[0].EventType)
	assert.Equal(t, "consumer", got[0].ConsumerName)
	assert.Equal(t, "transform", got[0].ConsumerType)
}

func TestTopic_OutputRoleProducesOutputEventType(t *testing.T) {
	topic := eventbus.NewOutputTopic()
	ictx := message.NewInvokeContext("c", "r", "u")
	event, accepted := topic.PublishData(ictx, "p", "p", message.Messages{message.New(message.RoleAssistant, "done")}, nil)
	require.True(t, accepted)
	assert.Equal(t, eventbus.EventTypeOutput, event.EventType)
}

func TestTopic_CanConsumeReflectsCursorPosition(t *testing.T) {
	topic := eventbus.NewTopic("t", eventbus.RoleIntermediate, nil)
	assert.False(t, topic.CanConsume("c"))

	ictx := message.NewInvokeContext("c", "r", "u")
	topic.PublishData(ictx, "p", "p", message.Messages{message.New(message.RoleUser, "hi")}, nil)
	assert.True(t, topic.CanConsume("c"))

	topic.Consume("c", "t")
	assert.False(t, topic.CanConsume("c"), "cursor advances immediately at consume, before commit")
}
