package chaos

import (
	"time"

	"conversation-chaos/internal/conversation"
)

// remainderGroup holds every agent not named in NetworkPartition.Partitions.
const remainderGroup = -1

// applyPartition drops or holds back messages that cross a partition boundary
// while the partition is active. A message crosses when a later message from
// another group replies to it. The mode makes no random draws.
func applyPartition(r *run, p NetworkPartition, msgs []conversation.Message) []conversation.Message {
	if len(msgs) == 0 {
		return msgs
	}

	groups := make(map[string]int)
	for gi, group := range p.Partitions {
		for _, id := range group {
			groups[id] = gi
		}
	}
	groupOf := func(agentID string) int {
		if g, ok := groups[agentID]; ok {
			return g
		}
		return remainderGroup
	}

	crossing := make(map[string]bool)
	position := make(map[string]int, len(msgs))
	for i, m := range msgs {
		position[m.ID] = i
	}
	for k, m := range msgs {
		if m.ParentMessageID == "" {
			continue
		}
		i, ok := position[m.ParentMessageID]
		if !ok || i >= k {
			continue
		}
		if groupOf(msgs[i].AgentID) != groupOf(m.AgentID) {
			crossing[msgs[i].ID] = true
		}
	}

	windowStart := msgs[0].Timestamp
	for _, m := range msgs[1:] {
		if m.Timestamp.Before(windowStart) {
			windowStart = m.Timestamp
		}
	}
	windowStart = windowStart.Add(p.StartOffset)
	windowEnd := windowStart.Add(p.Duration)

	details := func() map[string]string {
		return map[string]string{"window_end": windowEnd.Format(time.RFC3339Nano)}
	}

	out := make([]conversation.Message, 0, len(msgs))
	for i, m := range msgs {
		active := !m.Timestamp.Before(windowStart) && m.Timestamp.Before(windowEnd)
		if !active || !crossing[m.ID] {
			out = append(out, m)
			continue
		}
		if !p.AllowPartialDelivery {
			r.drop(i, m, details())
			continue
		}
		out = append(out, r.delay(i, m, windowEnd.Sub(m.Timestamp), details()))
	}
	return out
}
