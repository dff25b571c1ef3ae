package node

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"goa.design/eventflow/runtime/eventbus"
	"goa.design/eventflow/runtime/eventstore"
	"goa.design/eventflow/runtime/message"
	"goa.design/eventflow/runtime/telemetry"
	"goa.design/eventflow/runtime/tracker"
)

// ErrNoSubscribedTopics is returned by New when constructed with zero
// subscribed topics, illegal per spec.md §9's resolution of the open
// question (a node the engine can never schedule is a build-time error,
// not a silently-dead node).
var ErrNoSubscribedTopics = errors.New("node: must subscribe to at least one topic")

// Node wraps a Command (and, through it, a Tool) behind topic subscriptions
// and publish targets, implementing the AND fan-in ready rule and
// commit-after-stream contract of spec.md §4.3.
type Node struct {
	id         string
	Name       string
	Type       string
	subscribed []*eventbus.Topic
	publishTo  []*eventbus.Topic
	command    Command

	sink    eventstore.EventSink
	tracer  telemetry.Tracer
	logger  telemetry.Logger
	tracker *tracker.NodeTracker

	mu sync.Mutex // single-flight: at most one Invoke at a time
}

// Option configures optional Node collaborators.
type Option func(*Node)

// WithEventSink sets the sink NodeInvoke/Respond/Failed events are recorded
// to. Defaults to a no-op sink.
func WithEventSink(sink eventstore.EventSink) Option {
	return func(n *Node) { n.sink = sink }
}

// WithTracer sets the Tracer used for this node's processing span.
func WithTracer(t telemetry.Tracer) Option {
	return func(n *Node) { n.tracer = t }
}

// WithLogger sets the Logger used for this node's diagnostic output.
func WithLogger(l telemetry.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// New constructs a Node. subscribed must be non-empty and its order is
// significant: gathered input concatenates each topic's consumed data in
// subscription-declaration order (spec.md §4.3). tr is the workflow-wide
// NodeTracker the engine uses for quiescence detection.
func New(name, typ string, subscribed []*eventbus.Topic, publishTo []*eventbus.Topic, command Command, tr *tracker.NodeTracker, opts ...Option) (*Node, error) {
	if len(subscribed) == 0 {
		return nil, ErrNoSubscribedTopics
	}
	n := &Node{
		id:         uuid.NewString(),
		Name:       name,
		Type:       typ,
		subscribed: subscribed,
		publishTo:  publishTo,
		command:    command,
		tracker:    tr,
		sink:       noopSink{},
		tracer:     telemetry.NewNoopTracer(),
		logger:     telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Ready reports whether every subscribed topic currently has unconsumed
// data for this node. Fan-in is AND: a node with one empty subscription is
// not ready even if the rest are full.
func (n *Node) Ready() bool {
	for _, topic := range n.subscribed {
		if !topic.CanConsume(n.Name) {
			return false
		}
	}
	return true
}

func (n *Node) subscribedTopicNames() []string {
	names := make([]string, len(n.subscribed))
	for i, t := range n.subscribed {
		names[i] = t.Name
	}
	return names
}

func (n *Node) publishToTopicNames() []string {
	names := make([]string, len(n.publishTo))
	for i, t := range n.publishTo {
		names[i] = t.Name
	}
	return names
}

type consumedBatch struct {
	topic  *eventbus.Topic
	events []eventbus.TopicEvent
}

// gatherInput consumes every subscribed topic and concatenates their data
// in subscription order, following
// grafi/workflows/impl/utils.py:get_node_input.
func (n *Node) gatherInput() (message.Messages, []consumedBatch) {
	var inputs message.Messages
	batches := make([]consumedBatch, 0, len(n.subscribed))
	for _, topic := range n.subscribed {
		events := topic.Consume(n.Name, n.Type)
		for _, e := range events {
			inputs = append(inputs, e.Data...)
		}
		batches = append(batches, consumedBatch{topic: topic, events: events})
	}
	return inputs, batches
}

// Invoke runs one full node cycle: gather input, call the Command, publish
// every produced batch to publish_to topics whose condition accepts it,
// and — only on a clean finish — commit every consumed event to its
// source topic and record NodeRespondEvent. On any error it records
// NodeFailedEvent, leaves the consumed events uncommitted, and returns the
// error (spec.md §4.3, §7's ToolFailure policy).
//
// Invoke is single-flighted per Node: a concurrent call blocks until the
// prior one finishes, because gatherInput's consume step advances a shared
// cursor that a second concurrent invocation must not partition.
func (n *Node) Invoke(ctx context.Context, ictx message.InvokeContext) ([]eventbus.TopicEvent, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.tracker.Enter(n.Name)
	defer n.tracker.Leave(n.Name)

	ctx, span := n.tracer.Start(ctx, n.Name+".invoke")
	defer span.End()

	inputs, batches := n.gatherInput()
	var consumedEvents []eventbus.TopicEvent
	consumedCount := 0
	for _, b := range batches {
		consumedEvents = append(consumedEvents, b.events...)
		consumedCount += len(b.events)
	}

	_ = n.sink.Record(ctx, newNodeEvent(NodeEventInvoke, n, ictx))

	stream, err := n.command.Invoke(ctx, ictx, inputs)
	if err != nil {
		n.recordFailed(ctx, ictx, err)
		return nil, err
	}

	var published []eventbus.TopicEvent
	for {
		batch, ok, nextErr := stream.Next(ctx)
		if !ok {
			if nextErr != nil {
				n.recordFailed(ctx, ictx, nextErr)
				return nil, nextErr
			}
			break
		}
		for _, topic := range n.publishTo {
			event, accepted := topic.PublishData(ictx, n.Name, n.Type, batch, consumedEvents)
			if !accepted {
				continue
			}
			published = append(published, event)
			// One per accepted event, the same unit the commits below and
			// the engine's output drain count in.
			n.tracker.OnMessagesPublished(1)
		}
	}

	for _, b := range batches {
		if len(b.events) == 0 {
			continue
		}
		last := b.events[len(b.events)-1]
		b.topic.Commit(n.Name, last.Offset)
	}
	if consumedCount > 0 {
		n.tracker.OnMessagesCommitted(consumedCount)
	}

	_ = n.sink.Record(ctx, newNodeEvent(NodeEventRespond, n, ictx))
	return published, nil
}

func (n *Node) recordFailed(ctx context.Context, ictx message.InvokeContext, err error) {
	n.logger.Error(ctx, "node invocation failed", "node", n.Name, "error", err)
	failed := newNodeEvent(NodeEventFailed, n, ictx)
	failed.Error = err.Error()
	_ = n.sink.Record(ctx, failed)
}
