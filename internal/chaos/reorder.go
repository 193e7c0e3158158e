package chaos

import (
	"strconv"

	"conversation-chaos/internal/conversation"
)

func applyReorder(r *run, p Reorder, msgs []conversation.Message) ([]conversation.Message, error) {
	out := make([]conversation.Message, len(msgs))
	copy(out, msgs)

	pos := make(map[string]int, len(out))
	for i, m := range out {
		pos[m.ID] = i
	}

	for start := 0; start < len(out); start += p.WindowSize {
		end := start + p.WindowSize
		if end > len(out) {
			end = len(out)
		}
		for i := start; i < end; i++ {
			d, err := r.gen.NextInt(0, p.MaxDisplacement)
			if err != nil {
				return nil, err
			}
			j := i + d
			if d == 0 || j >= end {
				continue
			}
			if p.PreserveCausality && breaksCausality(out, pos, i, j) {
				continue
			}

			out[i], out[j] = out[j], out[i]
			pos[out[i].ID] = i
			pos[out[j].ID] = j

			r.touch(out[i])
			r.touch(out[j])
			r.record(TimelineEntry{
				Timestamp:    out[i].Timestamp,
				MessageIndex: i,
				MessageID:    out[i].ID,
				AgentID:      out[i].AgentID,
				Action:       ActionSwap,
				Details: map[string]string{
					"from":         strconv.Itoa(j),
					"to":           strconv.Itoa(i),
					"swapped_with": out[j].ID,
				},
			})
		}
	}

	for i := range out {
		if out[i].ID != msgs[i].ID {
			r.stats.ReorderedMessages++
		}
	}
	return out, nil
}

// breaksCausality reports whether swapping positions i < j would put a message
// ahead of its parent. out[j] moves to i, so its parent must sit before i;
// out[i] moves to j, so none of its children may sit in (i, j].
func breaksCausality(out []conversation.Message, pos map[string]int, i, j int) bool {
	if parent := out[j].ParentMessageID; parent != "" {
		if p, ok := pos[parent]; ok && p >= i && p < j {
			return true
		}
	}
	anchor := out[i].ID
	for k := i + 1; k <= j; k++ {
		if out[k].ParentMessageID == anchor {
			return true
		}
	}
	return false
}
