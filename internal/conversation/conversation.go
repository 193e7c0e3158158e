package conversation

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConversation is wrapped by every structural validation failure.
var ErrInvalidConversation = errors.New("invalid conversation")

// Message is a single utterance in a multi-agent conversation.
type Message struct {
	ID              string            `json:"id" yaml:"id"`
	AgentID         string            `json:"agentId" yaml:"agent_id"`
	Content         string            `json:"content" yaml:"content"`
	Timestamp       time.Time         `json:"timestamp" yaml:"timestamp"`
	ParentMessageID string            `json:"parentMessageId,omitempty" yaml:"parent_message_id,omitempty"`
	Role            string            `json:"role,omitempty" yaml:"role,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a copy of the message that shares no maps with the original.
func (m Message) Clone() Message {
	if m.Metadata != nil {
		md := make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return m
}

// Agent is a participant in a conversation.
type Agent struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Type         string   `json:"type" yaml:"type"`
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// Conversation is an ordered message log plus the agents that produced it.
type Conversation struct {
	ID       string            `json:"id" yaml:"id"`
	Messages []Message         `json:"messages" yaml:"messages"`
	Agents   []Agent           `json:"agents" yaml:"agents"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate checks the structural invariants: unique agent and message IDs and
// every message sent by a known agent. Timestamp order is not enforced; see
// IsChronological.
func (c *Conversation) Validate() error {
	agents := make(map[string]struct{}, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("%w: agent %d has empty id", ErrInvalidConversation, i)
		}
		if _, dup := agents[a.ID]; dup {
			return fmt.Errorf("%w: duplicate agent id %q", ErrInvalidConversation, a.ID)
		}
		agents[a.ID] = struct{}{}
	}

	messages := make(map[string]struct{}, len(c.Messages))
	for i, m := range c.Messages {
		if m.ID == "" {
			return fmt.Errorf("%w: message %d has empty id", ErrInvalidConversation, i)
		}
		if _, dup := messages[m.ID]; dup {
			return fmt.Errorf("%w: duplicate message id %q", ErrInvalidConversation, m.ID)
		}
		messages[m.ID] = struct{}{}
		if _, ok := agents[m.AgentID]; !ok {
			return fmt.Errorf("%w: message %q references unknown agent %q", ErrInvalidConversation, m.ID, m.AgentID)
		}
	}

	return nil
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = CloneMessages(c.Messages)
	out.Agents = make([]Agent, len(c.Agents))
	for i, a := range c.Agents {
		a.Capabilities = append([]string(nil), a.Capabilities...)
		out.Agents[i] = a
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// AgentIDs returns agent IDs in declaration order.
func (c *Conversation) AgentIDs() []string {
	ids := make([]string, len(c.Agents))
	for i, a := range c.Agents {
		ids[i] = a.ID
	}
	return ids
}

// MessageIDs returns message IDs in sequence order.
func (c *Conversation) MessageIDs() []string {
	ids := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		ids[i] = m.ID
	}
	return ids
}

// IsChronological reports whether timestamps are non-decreasing.
func (c *Conversation) IsChronological() bool {
	return TimestampInversions(c.Messages) == 0
}

// TimestampInversions counts adjacent pairs whose timestamps go backwards.
func TimestampInversions(msgs []Message) int {
	count := 0
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			count++
		}
	}
	return count
}
