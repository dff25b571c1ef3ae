// Package schema wraps a node.Command with JSON-Schema validation of its
// input payload, grounded on goa-ai's registry/service.go
// validatePayloadJSONAgainstSchema (read for grounding, not kept — it is
// wired into that teacher's Pulse-stream gateway protocol, which this
// module has no use for) and compiled with the same
// github.com/santhosh-tekuri/jsonschema/v6 the teacher's go.mod already
// carries.
package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/eventflow/runtime/message"
	"goa.design/eventflow/runtime/node"
	"goa.design/eventflow/runtime/streamresult"
)

// ErrInvalidPayload wraps a schema.Validate failure with the message it was
// raised against, so callers can tell a ConditionReject-shaped input error
// apart from a downstream ToolFailure.
type ErrInvalidPayload struct {
	MessageIndex int
	Err          error
}

func (e *ErrInvalidPayload) Error() string {
	return fmt.Sprintf("schema: input message %d failed validation: %v", e.MessageIndex, e.Err)
}

func (e *ErrInvalidPayload) Unwrap() error { return e.Err }

// ValidatingCommand decorates a node.Command so every inbound Message's
// non-empty Content is parsed as JSON and validated against a compiled
// schema before the wrapped Command ever sees it; a Message with empty
// Content is passed through unvalidated. A Message whose Content is not a JSON
// document representing the schema's expected shape never reaches the
// Command; the Node.Invoke that called it receives ErrInvalidPayload,
// which the engine treats like any other ToolFailure (spec.md §7): the
// NodeFailedEvent is recorded and the consume is not committed.
type ValidatingCommand struct {
	inner  node.Command
	schema *jsonschema.Schema
}

// Compile parses schemaJSON (a JSON Schema document) and returns a
// ValidatingCommand wrapping inner. An error from Compile means the schema
// itself is malformed; this is a construction-time failure, not a
// per-invocation one.
func Compile(schemaJSON []byte, inner node.Command) (*ValidatingCommand, error) {
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return nil, fmt.Errorf("schema: unmarshal schema document: %w", err)
	}

	c := jsonschema.NewCompiler()
	const resourceName = "payload.json"
	if err := c.AddResource(resourceName, schemaDoc); err != nil {
		return nil, fmt.Errorf("schema: add schema resource: %w", err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("schema: compile schema: %w", err)
	}

	return &ValidatingCommand{inner: inner, schema: compiled}, nil
}

// Invoke validates every non-empty input Message Content against the compiled
// schema before delegating to the wrapped Command. Validation happens
// eagerly, before the wrapped Command's stream is even started, so a
// rejected payload never causes partial side effects.
func (c *ValidatingCommand) Invoke(ctx context.Context, ictx message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	for i, m := range inputs {
		if m.Content == "" {
			continue
		}
		var payload any
		if err := json.Unmarshal([]byte(m.Content), &payload); err != nil {
			return nil, &ErrInvalidPayload{MessageIndex: i, Err: err}
		}
		if err := c.schema.Validate(payload); err != nil {
			return nil, &ErrInvalidPayload{MessageIndex: i, Err: err}
		}
	}
	return c.inner.Invoke(ctx, ictx, inputs)
}
