package node

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"goa.design/eventflow/runtime/eventstore"
	"goa.design/eventflow/runtime/message"
	"goa.design/eventflow/runtime/streamresult"
	"goa.design/eventflow/runtime/telemetry"
)

// tracedTool decorates a Tool with event recording and tracing around every
// call, a direct port of
// grafi/common/decorators/record_tool_a_execution.py: ToolInvokeEvent
// before the call, the original stream forwarded item-by-item unchanged,
// then either ToolRespondEvent (with the accumulated output) on a clean
// finish or ToolFailedEvent (with the error string) if the stream raised.
type tracedTool struct {
	Tool
	sink   eventstore.EventSink
	tracer telemetry.Tracer
}

// TraceTool wraps tool so every Invoke call is recorded to sink and traced
// through tracer. A nil sink or tracer is replaced with a no-op.
func TraceTool(tool Tool, sink eventstore.EventSink, tracer telemetry.Tracer) Tool {
	if sink == nil {
		sink = noopSink{}
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &tracedTool{Tool: tool, sink: sink, tracer: tracer}
}

func (t *tracedTool) Invoke(ctx context.Context, ictx message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	inner, err := t.Tool.Invoke(ctx, ictx, inputs)
	if err != nil {
		return nil, err
	}

	return streamresult.FromStream(func(ctx context.Context, emit func(message.Messages)) error {
		_ = t.sink.Record(ctx, newToolEvent(ToolEventInvoke, t.Tool, ictx, inputs))

		spanCtx, span := t.tracer.Start(ctx, t.Tool.Name()+".execute")
		span.AddEvent("tool.invoke", "tool.id", t.Tool.ID(), "tool.type", t.Tool.Type())
		defer span.End()

		var output message.Messages
		for {
			batch, ok, nextErr := inner.Next(spanCtx)
			if !ok {
				if nextErr != nil {
					span.RecordError(nextErr)
					span.SetStatus(codes.Error, nextErr.Error())
					failed := newToolEvent(ToolEventFailed, t.Tool, ictx, inputs)
					failed.Error = nextErr.Error()
					_ = t.sink.Record(ctx, failed)
					return fmt.Errorf("tool %s: %w", t.Tool.Name(), nextErr)
				}
				respond := newToolEvent(ToolEventRespond, t.Tool, ictx, inputs)
				respond.Output = output
				_ = t.sink.Record(ctx, respond)
				span.SetStatus(codes.Ok, "")
				return nil
			}
			output = append(output, batch...)
			emit(batch)
		}
	}), nil
}

// noopSink discards every event; used when TraceTool is given no sink.
type noopSink struct{}

func (noopSink) Record(context.Context, eventstore.Event) error           { return nil }
func (noopSink) RecordBatch(context.Context, []eventstore.Event) error    { return nil }
