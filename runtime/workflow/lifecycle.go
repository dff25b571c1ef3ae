package workflow

import (
	"time"

	"github.com/google/uuid"

	"goa.design/eventflow/runtime/message"
)

// RunEventType distinguishes the two engine-level lifecycle events Invoke
// records, independent of any individual node's own NodeInvoke/Respond/Failed
// events. InvokeStream records neither.
type RunEventType string

const (
	// RunStarted is recorded by Invoke just before the request is published
	// to the input topic.
	RunStarted RunEventType = "RunStarted"
	// RunCompleted is recorded by Invoke after the output topic has been
	// drained, whether the run reached natural quiescence or was stopped
	// with Stop. A run that ends in an error records no RunCompleted.
	RunCompleted RunEventType = "RunCompleted"
)

// RunEvent is the Engine's own lifecycle event, recorded to the sink set
// through WithEventSink (separate from each Node's own event recording).
type RunEvent struct {
	EventID       string                `json:"event_id"`
	EventType     RunEventType          `json:"event_type"`
	Timestamp     time.Time             `json:"timestamp"`
	InvokeContext message.InvokeContext `json:"invoke_context"`
	ForceStopped  bool                  `json:"force_stopped,omitempty"`
	OutputCount   int                   `json:"output_count,omitempty"`
}

func (e RunEvent) ID() string                        { return e.EventID }
func (e RunEvent) Kind() string                      { return string(e.EventType) }
func (e RunEvent) OccurredAt() time.Time              { return e.Timestamp }
func (e RunEvent) Context() message.InvokeContext     { return e.InvokeContext }

func newRunEvent(typ RunEventType, ictx message.InvokeContext) RunEvent {
	return RunEvent{
		EventID:       uuid.NewString(),
		EventType:     typ,
		Timestamp:     time.Now(),
		InvokeContext: ictx,
	}
}
