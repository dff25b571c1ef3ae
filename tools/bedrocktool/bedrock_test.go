package bedrocktool

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/eventflow/runtime/message"
)

type stubRuntimeClient struct{}

func (stubRuntimeClient) ConverseStream(context.Context, *bedrockruntime.ConverseStreamInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return &bedrockruntime.ConverseStreamOutput{}, nil
}

func TestNew_RequiresClientAndModelID(t *testing.T) {
	_, err := New(nil, "n", Options{ModelID: "model"})
	assert.Error(t, err)

	_, err = New(stubRuntimeClient{}, "n", Options{})
	assert.Error(t, err)

	tool, err := New(stubRuntimeClient{}, "n", Options{ModelID: "anthropic.claude-3"})
	require.NoError(t, err)
	assert.Equal(t, "llm.bedrock", tool.Type())
}

func TestToBedrockMessages_MapsRoles(t *testing.T) {
	inputs := message.Messages{
		message.New(message.RoleUser, "hi"),
		message.New(message.RoleAssistant, "hello"),
	}
	out := toBedrockMessages(inputs)
	assert.Len(t, out, 2)
}
