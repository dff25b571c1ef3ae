// Package workflow implements the cooperative scheduler that drives a
// topology of nodes and topics to completion: spec.md §4.5's Engine.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"goa.design/eventflow/runtime/eventbus"
	"goa.design/eventflow/runtime/eventstore"
	"goa.design/eventflow/runtime/message"
	"goa.design/eventflow/runtime/node"
	"goa.design/eventflow/runtime/streamresult"
	"goa.design/eventflow/runtime/telemetry"
	"goa.design/eventflow/runtime/tracker"
)

// ErrQuiescenceTimeout is returned by Invoke/InvokeStream when the ctx
// deadline passed by the caller expires before the tracker reports
// quiescence — spec.md §7's "Quiescence timeout", distinct from an explicit
// Stop() call, which ends a run without error (scenario S6).
var ErrQuiescenceTimeout = errors.New("workflow: quiescence timeout")

// Engine drives a fixed topology of nodes and topics. One Engine instance
// runs one workflow at a time; construct it through Builder.
type Engine struct {
	nodes  []*node.Node
	topics []*eventbus.Topic
	input  *eventbus.Topic
	output *eventbus.Topic

	tracker *tracker.NodeTracker
	sink    eventstore.EventSink
	logger  telemetry.Logger
	limiter *rate.Limiter

	runMu           sync.Mutex // one run at a time; topics/tracker are shared mutable state
	wakeMu          sync.Mutex
	wake            chan struct{}
	stoppedByUser   bool
	cancelRun       context.CancelFunc
	runInvokeContext message.InvokeContext

	errMu  sync.Mutex
	runErr error // first node failure this run; takes priority over a plain Stop()

	// inFlight tracks which nodes the scheduler has already dispatched and
	// not yet seen finish, so a node whose Ready() stays true while its
	// consume is still in flight (the common case: the dispatched goroutine
	// hasn't advanced the cursor yet) is not dispatched a second time.
	// Marked synchronously in runLoop's single-threaded scan, before the
	// worker goroutine is spawned; cleared by that goroutine on completion.
	inFlightMu sync.Mutex
	inFlight   map[string]bool
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithEventSink sets the sink the engine records its own RunEvents to.
// Node and tool events are not copied here; each node records them only to
// the sink it was given through node.WithEventSink.
func WithEventSink(sink eventstore.EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithLogger sets the Logger used for scheduler-level diagnostics.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNodeLimiter caps the rate at which the scheduler starts new node
// invocations. Node concurrency is otherwise unbounded by design (spec.md
// §4.5); embedders that need a resource bound pass a rate.Limiter here
// instead of modifying the scheduler.
func WithNodeLimiter(limiter *rate.Limiter) Option {
	return func(e *Engine) { e.limiter = limiter }
}

func newEngine(nodes []*node.Node, topics []*eventbus.Topic, input, output *eventbus.Topic, tr *tracker.NodeTracker, opts ...Option) *Engine {
	e := &Engine{
		nodes:   nodes,
		topics:  topics,
		input:   input,
		output:  output,
		tracker: tr,
		sink:    noopSink{},
		logger:  telemetry.NewNoopLogger(),
		wake:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) signalWake() {
	e.wakeMu.Lock()
	close(e.wake)
	e.wake = make(chan struct{})
	e.wakeMu.Unlock()
}

func (e *Engine) currentWake() <-chan struct{} {
	e.wakeMu.Lock()
	defer e.wakeMu.Unlock()
	return e.wake
}

func (e *Engine) reset() {
	e.tracker.Reset()
	for _, t := range e.topics {
		t.Reset()
	}
	e.stoppedByUser = false
	e.errMu.Lock()
	e.runErr = nil
	e.errMu.Unlock()
	e.inFlightMu.Lock()
	e.inFlight = make(map[string]bool)
	e.inFlightMu.Unlock()
}

// tryMarkInFlight marks name as dispatched and returns true, or returns
// false if it was already marked — the single dispatch-per-readiness guard
// runLoop consults before spawning a node's worker goroutine.
func (e *Engine) tryMarkInFlight(name string) bool {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	if e.inFlight[name] {
		return false
	}
	e.inFlight[name] = true
	return true
}

func (e *Engine) clearInFlight(name string) {
	e.inFlightMu.Lock()
	delete(e.inFlight, name)
	e.inFlightMu.Unlock()
}

// recordNodeFailure latches the first node error seen this run (spec.md
// §7: ToolFailure propagates out of Invoke) and forces the scheduler to
// stop rather than waiting out the caller's quiescence deadline.
func (e *Engine) recordNodeFailure(err error) {
	e.errMu.Lock()
	if e.runErr == nil {
		e.runErr = err
	}
	e.errMu.Unlock()
	e.tracker.ForceStop()
	e.signalWake()
}

func (e *Engine) firstRunErr() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.runErr
}

// Stop forces termination at the next scheduling point. invoke(_stream)
// returns without error, reflecting whatever output has already reached
// the output topic (spec.md §4.5, scenario S6).
func (e *Engine) Stop() {
	e.wakeMu.Lock()
	e.stoppedByUser = true
	e.wakeMu.Unlock()
	e.tracker.ForceStop()
	if cancel := e.cancelRun; cancel != nil {
		cancel()
	}
	e.signalWake()
}

// Invoke publishes request to the input topic, drives the scheduler until
// the tracker reports quiescence, then returns all accumulated messages with
// streaming fragments aggregated (spec.md §4.5, §4.7).
//
// The output topic has no subscribing node (Builder exempts it from the
// every-topic-needs-a-subscriber rule), so nothing but this call's own drain
// ever commits the events a node publishes there. drainOutputEvents therefore
// runs concurrently with runLoop, exactly as InvokeStream's outputListener
// does, so uncommitted output can reach zero and the scheduler can actually
// observe quiescence instead of blocking on its own unconsumed output. Raw
// events are collected here and aggregated exactly once at the end, rather
// than per poll batch, so one streamed response is never split across
// multiple aggregated messages by an unlucky batch boundary.
func (e *Engine) Invoke(ctx context.Context, ictx message.InvokeContext, request message.Message) (message.Messages, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.reset()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancelRun = cancel
	defer cancel()

	_ = e.sink.Record(ctx, newRunEvent(RunStarted, ictx))
	e.publishRequest(ictx, request)

	var collected []eventbus.TopicEvent
	drainErr := make(chan error, 1)
	go func() {
		drainErr <- drainOutputEvents(runCtx, e, func(batch []eventbus.TopicEvent) {
			collected = append(collected, batch...)
		})
	}()

	loopErr := e.runLoop(runCtx)
	cancel()
	if err := <-drainErr; err != nil && !errors.Is(err, context.Canceled) && loopErr == nil {
		loopErr = err
	}
	if loopErr != nil {
		return nil, loopErr
	}

	completed := newRunEvent(RunCompleted, ictx)
	completed.OutputCount = len(collected)
	_ = e.sink.Record(ctx, completed)
	return flatten(eventbus.Aggregate(collected)), nil
}

// InvokeStream behaves like Invoke but yields batches as they land on the
// output topic, following grafi/workflows/impl/utils.py's output_listener /
// MergeIdleQueue: two waiters race — new output data, or the tracker going
// idle — and the stream ends once both the tracker is idle (or stopped)
// and the output topic has nothing left to drain.
func (e *Engine) InvokeStream(ctx context.Context, ictx message.InvokeContext, request message.Message) (*streamresult.StreamResult[message.Messages], error) {
	e.runMu.Lock()
	e.reset()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancelRun = cancel

	e.publishRequest(ictx, request)

	schedErr := make(chan error, 1)
	go func() {
		schedErr <- e.runLoop(runCtx)
	}()

	return streamresult.FromStream(func(streamCtx context.Context, emit func(message.Messages)) error {
		defer e.runMu.Unlock()
		defer cancel()

		err := outputListener(streamCtx, e, ictx, emit)
		if schedulerErr := <-schedErr; schedulerErr != nil && err == nil {
			err = schedulerErr
		}
		return err
	}), nil
}

func (e *Engine) publishRequest(ictx message.InvokeContext, request message.Message) {
	e.runInvokeContext = ictx
	event, accepted := e.input.PublishData(ictx, "caller", "caller", message.Messages{request}, nil)
	if !accepted {
		return
	}
	_ = event
	e.tracker.OnMessagesPublished(1)
	e.signalWake()
}

// runLoop is the scheduler: at each step it dispatches every ready node that
// isn't already in flight, on its own goroutine (single-flighted per node
// through both the inFlight guard here and node.Node.Invoke's own lock), and
// blocks for new activity when nothing is ready, until the tracker reports
// should_terminate or ctx is done.
func (e *Engine) runLoop(ctx context.Context) error {
	for {
		if e.tracker.ShouldTerminate() {
			if err := e.firstRunErr(); err != nil {
				return err
			}
			return nil
		}

		dispatchedAny := false
		for _, n := range e.nodes {
			if !n.Ready() {
				continue
			}
			if !e.tryMarkInFlight(n.Name) {
				continue
			}
			dispatchedAny = true
			e.dispatch(ctx, n)
		}
		if dispatchedAny {
			continue
		}

		select {
		case <-e.currentWake():
			if err := e.firstRunErr(); err != nil {
				return err
			}
		case <-ctx.Done():
			wasStopped := e.wasStoppedByUser()
			e.tracker.ForceStop()
			if err := e.firstRunErr(); err != nil {
				return err
			}
			if wasStopped {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrQuiescenceTimeout, ctx.Err())
		}
	}
}

func (e *Engine) wasStoppedByUser() bool {
	e.wakeMu.Lock()
	defer e.wakeMu.Unlock()
	return e.stoppedByUser
}

func (e *Engine) dispatch(ctx context.Context, n *node.Node) {
	go func() {
		// clearInFlight must run before signalWake, and both must run as one
		// deferred unit: if a woken runLoop observed the node still marked
		// in-flight it would go back to sleep, and nothing else would wake it
		// again once the flag actually clears.
		defer func() {
			e.clearInFlight(n.Name)
			e.signalWake()
		}()
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return
			}
		}
		if _, err := n.Invoke(ctx, e.runInvokeContext); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				// The run itself was cancelled (Stop or the caller's
				// deadline); runLoop reports that outcome, not this error.
				return
			}
			e.logger.Error(ctx, "node invocation failed", "node", n.Name, "error", err)
			e.recordNodeFailure(fmt.Errorf("node %q: %w", n.Name, err))
			return
		}
	}()
}

func flatten(events []eventbus.TopicEvent) message.Messages {
	var out message.Messages
	for _, e := range events {
		out = append(out, e.Data...)
	}
	return out
}

// noopSink discards every event; used when no engine-level sink is set.
type noopSink struct{}

func (noopSink) Record(context.Context, eventstore.Event) error        { return nil }
func (noopSink) RecordBatch(context.Context, []eventstore.Event) error { return nil }
