package workflow

import (
	"fmt"

	"goa.design/eventflow/runtime/eventbus"
	"goa.design/eventflow/runtime/node"
	"goa.design/eventflow/runtime/tracker"
)

// Builder assembles a validated topology of topics and nodes into an
// Engine. Construction through Builder (rather than hand-built slices)
// catches the two build-time topology errors spec.md §9 resolves as
// illegal rather than silently inert: a node with zero subscriptions
// (already rejected by node.New) and an intermediate topic nothing ever
// subscribes to, which would accumulate uncommitted messages forever
// without a node around to drain them.
type Builder struct {
	input  *eventbus.Topic
	output *eventbus.Topic
	topics []*eventbus.Topic
	nodes  []*node.Node
	tr     *tracker.NodeTracker

	subscribers map[string]int // topic name -> count of nodes subscribed to it
	err         error
}

// NewBuilder starts a Builder with the well-known input and output topics
// already registered.
func NewBuilder() *Builder {
	input := eventbus.NewInputTopic()
	output := eventbus.NewOutputTopic()
	return &Builder{
		input:       input,
		output:      output,
		topics:      []*eventbus.Topic{input, output},
		tr:          tracker.New(),
		subscribers: map[string]int{input.Name: 0, output.Name: 0},
	}
}

// InputTopic returns the engine's agent_input_topic.
func (b *Builder) InputTopic() *eventbus.Topic { return b.input }

// OutputTopic returns the engine's agent_output_topic.
func (b *Builder) OutputTopic() *eventbus.Topic { return b.output }

// Topic registers and returns a new intermediate topic.
func (b *Builder) Topic(name string, cond eventbus.Condition) *eventbus.Topic {
	t := eventbus.NewTopic(name, eventbus.RoleIntermediate, cond)
	b.topics = append(b.topics, t)
	b.subscribers[t.Name] = 0
	return t
}

// Node constructs a node.Node subscribed to subscribed and publishing to
// publishTo, registers it with the builder, and returns it so the caller
// can keep a typed reference if useful.
func (b *Builder) Node(name, typ string, subscribed, publishTo []*eventbus.Topic, command node.Command, opts ...node.Option) *node.Node {
	n, err := node.New(name, typ, subscribed, publishTo, command, b.tr, opts...)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("node %q: %w", name, err)
		}
		return nil
	}
	b.nodes = append(b.nodes, n)
	for _, t := range subscribed {
		b.subscribers[t.Name]++
	}
	return n
}

// Build validates the topology and returns an Engine. It is an error for
// any intermediate topic registered through Topic (every topic other than
// the input and output topics) to have zero subscribing nodes, whether or
// not a node publishes to it: a published-to topic of that kind could never
// bring its uncommitted count back to zero, permanently blocking quiescence.
func (b *Builder) Build(opts ...Option) (*Engine, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.nodes) == 0 {
		return nil, fmt.Errorf("workflow: topology has no nodes")
	}
	for name, count := range b.subscribers {
		if name == b.output.Name || name == b.input.Name {
			continue
		}
		if count == 0 {
			return nil, fmt.Errorf("workflow: topic %q has no subscribing node", name)
		}
	}
	return newEngine(b.nodes, b.topics, b.input, b.output, b.tr, opts...), nil
}
