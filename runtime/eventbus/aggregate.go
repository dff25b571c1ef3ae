package eventbus

import "goa.design/eventflow/runtime/message"

// Aggregate implements spec.md §4.7's boundary-only streaming aggregation,
// following grafi/workflows/impl/utils.py:get_async_output_events exactly:
// events are grouped by TopicName, and within each group the streaming
// subsequence (events whose IsStreamingFragment is true) is collapsed into
// a single non-streaming event while non-streaming events pass through
// unchanged. Group order and, within a group, non-streaming-then-aggregated
// order follow the original; callers that need strict offset order should
// sort the result by Offset.
//
// The aggregated event's Content is the concatenation (in input, i.e.
// offset, order) of the streaming fragments' Content; Role, Name,
// ToolCalls, ToolCallID and the event's Offset are taken from the first
// streaming fragment in the group.
func Aggregate(events []TopicEvent) []TopicEvent {
	order := make([]string, 0, 4)
	byTopic := make(map[string][]TopicEvent, 4)
	for _, e := range events {
		if _, ok := byTopic[e.TopicName]; !ok {
			order = append(order, e.TopicName)
		}
		byTopic[e.TopicName] = append(byTopic[e.TopicName], e)
	}

	var out []TopicEvent
	for _, name := range order {
		group := byTopic[name]
		var streaming, rest []TopicEvent
		for _, e := range group {
			if e.IsStreamingFragment() {
				streaming = append(streaming, e)
			} else {
				rest = append(rest, e)
			}
		}
		out = append(out, rest...)
		if len(streaming) == 0 {
			continue
		}
		out = append(out, aggregateGroup(streaming))
	}
	return out
}

func aggregateGroup(streaming []TopicEvent) TopicEvent {
	base := streaming[0]
	first := base.Data[0]

	var content string
	for _, e := range streaming {
		for _, m := range e.Data {
			content += m.Content
		}
	}

	aggregated := message.Message{
		MessageID:  first.MessageID,
		Timestamp:  first.Timestamp,
		Role:       first.Role,
		Name:       first.Name,
		ToolCalls:  first.ToolCalls,
		ToolCallID: first.ToolCallID,
		Content:    content,
	}

	out := base
	out.Data = message.Messages{aggregated}
	return out
}
