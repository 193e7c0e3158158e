package conversation

import (
	"fmt"
	"time"
)

// SyntheticEpoch is the timestamp of the first synthetic message.
var SyntheticEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Synthetic builds a conversation of n messages sent round-robin by the given
// number of agents, spacing apart, with no parent links. The result depends
// only on its arguments.
func Synthetic(n, agents int, spacing time.Duration) Conversation {
	if agents < 1 {
		agents = 1
	}
	c := Conversation{
		ID:       fmt.Sprintf("synthetic-%d-%d", n, agents),
		Agents:   make([]Agent, agents),
		Messages: make([]Message, n),
	}
	for i := range c.Agents {
		c.Agents[i] = Agent{
			ID:   fmt.Sprintf("agent-%d", i),
			Name: fmt.Sprintf("Agent %d", i),
			Type: "synthetic",
		}
	}
	for i := range c.Messages {
		agent := c.Agents[i%agents].ID
		c.Messages[i] = Message{
			ID:        fmt.Sprintf("msg-%04d", i),
			AgentID:   agent,
			Content:   fmt.Sprintf("message %d from %s", i, agent),
			Timestamp: SyntheticEpoch.Add(time.Duration(i) * spacing),
			Role:      "assistant",
		}
	}
	return c
}

// Threaded is Synthetic with every message replying to the one before it.
func Threaded(n, agents int, spacing time.Duration) Conversation {
	c := Synthetic(n, agents, spacing)
	for i := 1; i < len(c.Messages); i++ {
		c.Messages[i].ParentMessageID = c.Messages[i-1].ID
	}
	return c
}
