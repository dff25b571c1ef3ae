package workflow

import (
	"context"
	"time"

	"goa.design/eventflow/runtime/eventbus"
	"goa.design/eventflow/runtime/message"
)

// outputPollInterval bounds how long drainOutputEvents' ConsumeAsync call
// blocks before re-checking ctx and tracker state. TopicEventQueue.FetchAsync
// only understands a timeout, not a context.Context, so a short poll is how
// ctx cancellation and ShouldTerminate are noticed promptly without leaking
// a goroutine per Invoke/InvokeStream call.
const outputPollInterval = 20 * time.Millisecond

// drainOutputEvents pumps the output topic until the tracker reports
// should_terminate and the output topic has nothing left to consume,
// committing each batch (and waking the scheduler, so a runLoop blocked
// waiting for exactly this commit to reach quiescence notices promptly)
// as it lands and handing the raw, un-aggregated batch to onBatch. Both
// Invoke (aggregate everything once, at the very end) and InvokeStream
// (aggregate incrementally, per batch) share this drain/commit loop and
// only differ in what they do with onBatch — the Go rendering of
// grafi/workflows/impl/utils.py's output_listener / MergeIdleQueue.__anext__
// two-waiter race between new topic data and the tracker going idle.
func drainOutputEvents(ctx context.Context, e *Engine, onBatch func([]eventbus.TopicEvent)) error {
	const callerConsumer = "caller"
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch := e.output.ConsumeAsync(callerConsumer, callerConsumer, outputPollInterval)
		if len(batch) > 0 {
			e.tracker.OnMessagesCommitted(len(batch))
			e.output.Commit(callerConsumer, batch[len(batch)-1].Offset)
			onBatch(batch)
			e.signalWake()
			continue
		}

		if e.tracker.ShouldTerminate() && !e.output.CanConsume(callerConsumer) {
			return nil
		}
	}
}

// outputListener is drainOutputEvents specialized for InvokeStream: each
// batch is boundary-aggregated and emitted as soon as it lands, so callers
// still see streaming fragments arrive incrementally (spec.md §4.7).
func outputListener(ctx context.Context, e *Engine, ictx message.InvokeContext, emit func(message.Messages)) error {
	return drainOutputEvents(ctx, e, func(batch []eventbus.TopicEvent) {
		for _, aggregated := range eventbus.Aggregate(batch) {
			emit(aggregated.Data)
		}
	})
}
