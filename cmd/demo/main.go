// Command demo wires a handful of small topologies and runs each of the
// end-to-end scenarios (spec.md §8) against a real workflow.Engine, the way
// goa-ai's own cmd/demo wires one agent and runs it once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"goa.design/eventflow/runtime/eventbus"
	"goa.design/eventflow/runtime/eventstore"
	"goa.design/eventflow/runtime/message"
	"goa.design/eventflow/runtime/streamresult"
	"goa.design/eventflow/runtime/workflow"
)

// identityCommand forwards every input message unchanged — S1's command.
type identityCommand struct{}

func (identityCommand) Invoke(_ context.Context, _ message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	return streamresult.FromValue(inputs), nil
}

// streamingEchoCommand ignores its input and emits fixed fragments — S2.
type streamingEchoCommand struct{ fragments []string }

func (c streamingEchoCommand) Invoke(_ context.Context, _ message.InvokeContext, _ message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	return streamresult.FromStream(func(ctx context.Context, emit func(message.Messages)) error {
		for _, f := range c.fragments {
			emit(message.Messages{message.NewStreamingFragment(message.RoleAssistant, f)})
		}
		return nil
	}), nil
}

// failingCommand always errors — S5.
type failingCommand struct{}

func (failingCommand) Invoke(context.Context, message.InvokeContext, message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	return nil, errors.New("tool exploded")
}

// blockingCommand waits for unblock or ctx cancellation before echoing — S6.
type blockingCommand struct{ unblock <-chan struct{} }

func (c blockingCommand) Invoke(ctx context.Context, _ message.InvokeContext, inputs message.Messages) (*streamresult.StreamResult[message.Messages], error) {
	return streamresult.FromStream(func(streamCtx context.Context, emit func(message.Messages)) error {
		select {
		case <-c.unblock:
		case <-streamCtx.Done():
			return streamCtx.Err()
		}
		emit(inputs)
		return nil
	}), nil
}

func run(ctx context.Context, name string) error {
	ictx := message.NewInvokeContext("demo-conversation", "demo-request", "demo-user")
	sink := eventstore.NewInMemory()

	switch name {
	case "s1":
		b := workflow.NewBuilder()
		b.Node("echo", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{b.OutputTopic()}, identityCommand{})
		eng, err := b.Build(workflow.WithEventSink(sink))
		if err != nil {
			return err
		}
		out, err := eng.Invoke(ctx, ictx, message.New(message.RoleUser, "hi"))
		if err != nil {
			return err
		}
		fmt.Println("S1 output:", dump(out))

	case "s2":
		b := workflow.NewBuilder()
		b.Node("streamer", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{b.OutputTopic()},
			streamingEchoCommand{fragments: []string{"Hel", "lo ", "world"}})
		eng, err := b.Build(workflow.WithEventSink(sink))
		if err != nil {
			return err
		}
		out, err := eng.Invoke(ctx, ictx, message.New(message.RoleUser, "go"))
		if err != nil {
			return err
		}
		fmt.Println("S2 blocking output:", dump(out))

		stream, err := eng.InvokeStream(ctx, ictx, message.New(message.RoleUser, "go"))
		if err != nil {
			return err
		}
		for {
			batch, ok, err := stream.Next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			fmt.Println("S2 fragment:", dump(batch))
		}

	case "s3":
		b := workflow.NewBuilder()
		x := b.Topic("x", nil)
		y := b.Topic("y", nil)
		zb := b.Topic("z_b", nil)
		zc := b.Topic("z_c", nil)
		b.Node("a", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{x, y}, identityCommand{})
		b.Node("b", "transform", []*eventbus.Topic{x}, []*eventbus.Topic{zb}, identityCommand{})
		b.Node("c", "transform", []*eventbus.Topic{y}, []*eventbus.Topic{zc}, identityCommand{})
		b.Node("d", "transform", []*eventbus.Topic{zb, zc}, []*eventbus.Topic{b.OutputTopic()}, identityCommand{})
		eng, err := b.Build(workflow.WithEventSink(sink))
		if err != nil {
			return err
		}
		out, err := eng.Invoke(ctx, ictx, message.New(message.RoleUser, "hi"))
		if err != nil {
			return err
		}
		fmt.Println("S3 output:", dump(out))

	case "s4":
		reject := func(msgs message.Messages) bool {
			for _, m := range msgs {
				if strings.Contains(m.Content, "stop") {
					return false
				}
			}
			return true
		}
		b := workflow.NewBuilder()
		guarded := b.Topic("guarded", reject)
		b.Node("gate", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{guarded}, identityCommand{})
		b.Node("sink", "transform", []*eventbus.Topic{guarded}, []*eventbus.Topic{b.OutputTopic()}, identityCommand{})
		eng, err := b.Build(workflow.WithEventSink(sink))
		if err != nil {
			return err
		}
		out, err := eng.Invoke(ctx, ictx, message.New(message.RoleUser, "please stop now"))
		if err != nil {
			return err
		}
		fmt.Println("S4 rejected output (expect empty):", dump(out))

		rejectCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		out, err = eng.Invoke(rejectCtx, ictx, message.New(message.RoleUser, "go ahead"))
		if err != nil {
			return err
		}
		fmt.Println("S4 accepted output:", dump(out))

	case "s5":
		b := workflow.NewBuilder()
		b.Node("boom", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{b.OutputTopic()}, failingCommand{})
		eng, err := b.Build(workflow.WithEventSink(sink))
		if err != nil {
			return err
		}
		failCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_, err = eng.Invoke(failCtx, ictx, message.New(message.RoleUser, "hi"))
		fmt.Println("S5 invoke error (expected):", err)

	case "s6":
		unblock := make(chan struct{})
		b := workflow.NewBuilder()
		b.Node("blocker", "transform", []*eventbus.Topic{b.InputTopic()}, []*eventbus.Topic{b.OutputTopic()}, blockingCommand{unblock: unblock})
		eng, err := b.Build(workflow.WithEventSink(sink))
		if err != nil {
			return err
		}
		go func() {
			time.Sleep(30 * time.Millisecond)
			eng.Stop()
		}()
		out, err := eng.Invoke(ctx, ictx, message.New(message.RoleUser, "hi"))
		close(unblock)
		if err != nil {
			return err
		}
		fmt.Println("S6 output after Stop (expect empty):", dump(out))

	default:
		return fmt.Errorf("unknown scenario %q", name)
	}

	events, _ := sink.Events(ctx)
	fmt.Printf("%s recorded %d events\n", name, len(events))
	return nil
}

func dump(msgs message.Messages) string {
	var parts []string
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " | ")
}

func main() {
	scenario := flag.String("scenario", "all", "scenario to run: s1-s6 or all")
	flag.Parse()

	ctx := context.Background()
	names := []string{"s1", "s2", "s3", "s4", "s5", "s6"}
	if *scenario != "all" {
		names = []string{*scenario}
	}

	for _, name := range names {
		fmt.Println("=== running", name, "===")
		if err := run(ctx, name); err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
			os.Exit(1)
		}
	}
}
