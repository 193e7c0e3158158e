package chaos

import (
	"time"

	"conversation-chaos/internal/conversation"
)

// Mode identifies one of the six chaos algorithms.
type Mode string

const (
	ModeMessageLoss      Mode = "message-loss"
	ModeDelay            Mode = "delay"
	ModeReorder          Mode = "reorder"
	ModeCorruption       Mode = "corruption"
	ModeAgentFailure     Mode = "agent-failure"
	ModeNetworkPartition Mode = "network-partition"
)

// Modes lists every mode in a stable order.
var Modes = []Mode{
	ModeMessageLoss,
	ModeDelay,
	ModeReorder,
	ModeCorruption,
	ModeAgentFailure,
	ModeNetworkPartition,
}

// Action is the kind of mutation a timeline entry records.
type Action string

const (
	ActionDrop        Action = "drop"
	ActionDelay       Action = "delay"
	ActionSwap        Action = "swap"
	ActionCorrupt     Action = "corrupt"
	ActionAgentFailed Action = "agent-failed"
	ActionSkip        Action = "skip"
)

// Statistics summarizes what a run did to a conversation.
type Statistics struct {
	TotalMessages     int           `json:"totalMessages" yaml:"total_messages"`
	ModifiedMessages  int           `json:"modifiedMessages" yaml:"modified_messages"`
	DroppedMessages   int           `json:"droppedMessages" yaml:"dropped_messages"`
	DelayedMessages   int           `json:"delayedMessages" yaml:"delayed_messages"`
	ReorderedMessages int           `json:"reorderedMessages" yaml:"reordered_messages"`
	CorruptedMessages int           `json:"corruptedMessages" yaml:"corrupted_messages"`
	TotalDelay        time.Duration `json:"totalDelay,omitempty" yaml:"total_delay,omitempty"`
	AverageDelay      time.Duration `json:"averageDelay,omitempty" yaml:"average_delay,omitempty"`
	MaxDelay          time.Duration `json:"maxDelay,omitempty" yaml:"max_delay,omitempty"`
}

// merge folds the counters of other into s. Derived fields are recomputed by
// finalize.
func (s *Statistics) merge(other Statistics) {
	s.DroppedMessages += other.DroppedMessages
	s.DelayedMessages += other.DelayedMessages
	s.ReorderedMessages += other.ReorderedMessages
	s.CorruptedMessages += other.CorruptedMessages
	s.TotalDelay += other.TotalDelay
	if other.MaxDelay > s.MaxDelay {
		s.MaxDelay = other.MaxDelay
	}
}

func (s *Statistics) finalize() {
	if s.DelayedMessages > 0 {
		s.AverageDelay = s.TotalDelay / time.Duration(s.DelayedMessages)
	} else {
		s.AverageDelay = 0
	}
}

// ModeResult is the per-configuration part of a Result.
type ModeResult struct {
	Mode       Mode       `json:"mode"`
	Seed       int64      `json:"seed"`
	Skipped    bool       `json:"skipped,omitempty"`
	Statistics Statistics `json:"statistics"`
}

// Result is the summary of an injection run. It never embeds the mutated
// conversation.
type Result struct {
	Modes            []Mode       `json:"modes"`
	Seed             int64        `json:"seed"`
	AffectedMessages []string     `json:"affectedMessages"`
	AffectedAgents   []string     `json:"affectedAgents"`
	Statistics       Statistics   `json:"statistics"`
	ModeResults      []ModeResult `json:"modeResults"`
	// TimestampInversions counts adjacent output messages whose timestamps go
	// backwards. Delay-bearing modes produce these on purpose; they are
	// reported, never repaired.
	TimestampInversions int    `json:"timestampInversions"`
	Fingerprint         string `json:"fingerprint"`
}

// Mode returns the mode of a single-configuration run, or "" otherwise.
func (r Result) Mode() Mode {
	if len(r.Modes) == 1 {
		return r.Modes[0]
	}
	return ""
}

// TimelineEntry records one discrete mutation decision. Timestamp is the
// simulated message time, so timelines are reproducible.
type TimelineEntry struct {
	Timestamp    time.Time         `json:"timestamp"`
	MessageIndex int               `json:"messageIndex"`
	MessageID    string            `json:"messageId,omitempty"`
	AgentID      string            `json:"agentId,omitempty"`
	Mode         Mode              `json:"mode"`
	Action       Action            `json:"action"`
	Delay        time.Duration     `json:"delay,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Outcome bundles the three artifacts of Inject. RunID identifies the
// execution in logs and the ledger; it is not part of the fingerprint.
type Outcome struct {
	RunID        string                    `json:"runId"`
	Conversation conversation.Conversation `json:"conversation"`
	Result       Result                    `json:"result"`
	Timeline     []TimelineEntry           `json:"timeline"`
}
