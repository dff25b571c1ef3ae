package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"goa.design/eventflow/runtime/eventbus"
	"goa.design/eventflow/runtime/node"
)

// TopologyConfig is the YAML-declared shape of a workflow graph: topic
// names and node wiring. Node behavior (the node.Command each node runs)
// cannot be expressed in data, so LoadTopology takes a registry of named
// command factories the YAML node entries reference by Command.
type TopologyConfig struct {
	Topics []TopicConfig `yaml:"topics"`
	Nodes  []NodeConfig  `yaml:"nodes"`
}

// TopicConfig declares one intermediate topic. The well-known input/output
// topics are implicit and never declared here.
type TopicConfig struct {
	Name string `yaml:"name"`
}

// NodeConfig declares one node: its name, type, the topics it subscribes
// to and publishes to (by name — "agent_input_topic"/"agent_output_topic"
// or any name declared under topics), and which registered command it
// runs.
type NodeConfig struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Subscribes []string `yaml:"subscribes"`
	Publishes  []string `yaml:"publishes"`
	Command    string   `yaml:"command"`
}

// CommandFactory builds the node.Command a NodeConfig.Command name refers
// to. Factories are looked up once per node at LoadTopology time.
type CommandFactory func() node.Command

// LoadTopology parses YAML topology config from path and builds an Engine,
// resolving each node's Command field against commands. Unknown topic
// names or unregistered command names are reported as errors rather than
// silently producing a node with no effect.
func LoadTopology(path string, commands map[string]CommandFactory, opts ...Option) (*Engine, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: read topology %s: %w", path, err)
	}
	var cfg TopologyConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("workflow: parse topology %s: %w", path, err)
	}
	return BuildTopology(cfg, commands, opts...)
}

// BuildTopology builds an Engine from an already-parsed TopologyConfig.
func BuildTopology(cfg TopologyConfig, commands map[string]CommandFactory, opts ...Option) (*Engine, error) {
	b := NewBuilder()

	topicsByName := map[string]*eventbus.Topic{
		eventbus.InputTopicName:  b.InputTopic(),
		eventbus.OutputTopicName: b.OutputTopic(),
	}
	for _, tc := range cfg.Topics {
		if _, exists := topicsByName[tc.Name]; exists {
			return nil, fmt.Errorf("workflow: topic %q declared more than once", tc.Name)
		}
		topicsByName[tc.Name] = b.Topic(tc.Name, nil)
	}

	resolve := func(names []string) ([]*eventbus.Topic, error) {
		topics := make([]*eventbus.Topic, 0, len(names))
		for _, name := range names {
			t, ok := topicsByName[name]
			if !ok {
				return nil, fmt.Errorf("workflow: undeclared topic %q", name)
			}
			topics = append(topics, t)
		}
		return topics, nil
	}

	for _, nc := range cfg.Nodes {
		factory, ok := commands[nc.Command]
		if !ok {
			return nil, fmt.Errorf("workflow: node %q references unregistered command %q", nc.Name, nc.Command)
		}
		subscribed, err := resolve(nc.Subscribes)
		if err != nil {
			return nil, err
		}
		publishTo, err := resolve(nc.Publishes)
		if err != nil {
			return nil, err
		}
		b.Node(nc.Name, nc.Type, subscribed, publishTo, factory())
	}

	return b.Build(opts...)
}
