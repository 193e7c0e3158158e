package chaos

import (
	"math"
	"time"
)

// Parameters is the mode-specific half of a Configuration. It is implemented
// only by the six parameter structs in this package, so the mode of a
// configuration always agrees with its parameter shape.
type Parameters interface {
	Mode() Mode
	Validate() error
	isParameters()
}

// Configuration is one entry of an injection plan.
type Configuration struct {
	// Seed reseeds the shared generator before this configuration runs.
	Seed *int64
	// Probability gates the whole configuration with a single draw.
	Probability *float64
	Parameters  Parameters
}

// Mode returns the mode selected by the parameters.
func (c Configuration) Mode() Mode {
	if c.Parameters == nil {
		return ""
	}
	return c.Parameters.Mode()
}

// Validate checks the configuration and its parameters.
func (c Configuration) Validate() error {
	if c.Parameters == nil {
		return configErrorf("", "parameters", "are required")
	}
	if c.Probability != nil && !validRate(*c.Probability) {
		return configErrorf(c.Mode(), "probability", "%v outside [0,1]", *c.Probability)
	}
	return c.Parameters.Validate()
}

// Int64 returns a pointer to v, for Configuration.Seed literals.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v, for Configuration.Probability literals.
func Float64(v float64) *float64 { return &v }

func validRate(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// LossPattern selects how message-loss picks its victims.
type LossPattern string

const (
	LossRandom    LossPattern = "random"
	LossBurst     LossPattern = "burst"
	LossSelective LossPattern = "selective"
)

// MessageLoss drops messages.
type MessageLoss struct {
	LossRate     float64     `json:"lossRate" yaml:"loss_rate"`
	Pattern      LossPattern `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	TargetAgents []string    `json:"targetAgents,omitempty" yaml:"target_agents,omitempty"`
}

func (MessageLoss) Mode() Mode    { return ModeMessageLoss }
func (MessageLoss) isParameters() {}

func (p MessageLoss) Validate() error {
	if !validRate(p.LossRate) {
		return configErrorf(ModeMessageLoss, "lossRate", "%v outside [0,1]", p.LossRate)
	}
	switch p.Pattern {
	case "", LossRandom, LossBurst, LossSelective:
	default:
		return configErrorf(ModeMessageLoss, "pattern", "unknown pattern %q", p.Pattern)
	}
	return nil
}

func (p MessageLoss) pattern() LossPattern {
	if p.Pattern == "" {
		return LossRandom
	}
	return p.Pattern
}

// DelayDistribution selects the offset distribution of the delay mode.
type DelayDistribution string

const (
	DistributionUniform     DelayDistribution = "uniform"
	DistributionNormal      DelayDistribution = "normal"
	DistributionExponential DelayDistribution = "exponential"
)

// Delay shifts message timestamps forward.
type Delay struct {
	MinDelay     time.Duration     `json:"minDelay" yaml:"min_delay"`
	MaxDelay     time.Duration     `json:"maxDelay" yaml:"max_delay"`
	Distribution DelayDistribution `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	TargetAgents []string          `json:"targetAgents,omitempty" yaml:"target_agents,omitempty"`
}

func (Delay) Mode() Mode    { return ModeDelay }
func (Delay) isParameters() {}

func (p Delay) Validate() error {
	if p.MinDelay < 0 {
		return configErrorf(ModeDelay, "minDelay", "must not be negative")
	}
	if p.MinDelay > p.MaxDelay {
		return configErrorf(ModeDelay, "minDelay", "%s greater than maxDelay %s", p.MinDelay, p.MaxDelay)
	}
	switch p.Distribution {
	case "", DistributionUniform, DistributionNormal, DistributionExponential:
	default:
		return configErrorf(ModeDelay, "distribution", "unknown distribution %q", p.Distribution)
	}
	return nil
}

func (p Delay) distribution() DelayDistribution {
	if p.Distribution == "" {
		return DistributionUniform
	}
	return p.Distribution
}

// Reorder swaps messages inside sliding windows.
type Reorder struct {
	WindowSize        int  `json:"windowSize" yaml:"window_size"`
	MaxDisplacement   int  `json:"maxDisplacement" yaml:"max_displacement"`
	PreserveCausality bool `json:"preserveCausality,omitempty" yaml:"preserve_causality,omitempty"`
}

func (Reorder) Mode() Mode    { return ModeReorder }
func (Reorder) isParameters() {}

func (p Reorder) Validate() error {
	if p.WindowSize < 1 {
		return configErrorf(ModeReorder, "windowSize", "must be at least 1, got %d", p.WindowSize)
	}
	if p.MaxDisplacement < 0 {
		return configErrorf(ModeReorder, "maxDisplacement", "must not be negative, got %d", p.MaxDisplacement)
	}
	return nil
}

// CorruptionType selects how content is damaged.
type CorruptionType string

const (
	CorruptTruncate CorruptionType = "truncate"
	CorruptScramble CorruptionType = "scramble"
	CorruptReplace  CorruptionType = "replace"
	CorruptInject   CorruptionType = "inject"
)

// Severity scales the share of content a corruption touches.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Fraction returns the share of characters touched at this severity.
func (s Severity) Fraction() float64 {
	switch s {
	case SeverityLow:
		return 0.1
	case SeverityHigh:
		return 1.0
	default:
		return 0.5
	}
}

func validCorruptionType(t CorruptionType) bool {
	switch t {
	case CorruptTruncate, CorruptScramble, CorruptReplace, CorruptInject:
		return true
	}
	return false
}

// Corruption damages message content.
type Corruption struct {
	CorruptionRate float64        `json:"corruptionRate" yaml:"corruption_rate"`
	CorruptionType CorruptionType `json:"corruptionType" yaml:"corruption_type"`
	Severity       Severity       `json:"severity,omitempty" yaml:"severity,omitempty"`
	TargetAgents   []string       `json:"targetAgents,omitempty" yaml:"target_agents,omitempty"`
}

func (Corruption) Mode() Mode    { return ModeCorruption }
func (Corruption) isParameters() {}

func (p Corruption) Validate() error {
	if !validRate(p.CorruptionRate) {
		return configErrorf(ModeCorruption, "corruptionRate", "%v outside [0,1]", p.CorruptionRate)
	}
	if !validCorruptionType(p.CorruptionType) {
		return configErrorf(ModeCorruption, "corruptionType", "unknown type %q", p.CorruptionType)
	}
	switch p.Severity {
	case "", SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return configErrorf(ModeCorruption, "severity", "unknown severity %q", p.Severity)
	}
	return nil
}

// FailureType selects how a failed agent misbehaves.
type FailureType string

const (
	FailureCrash     FailureType = "crash"
	FailureTimeout   FailureType = "timeout"
	FailureSlow      FailureType = "slow"
	FailureByzantine FailureType = "byzantine"
)

// SlowdownFactor stretches a slow agent's offsets from failure onset.
const SlowdownFactor = 3

// AgentFailure takes agents out for a window of simulated time.
type AgentFailure struct {
	TargetAgents []string      `json:"targetAgents,omitempty" yaml:"target_agents,omitempty"`
	FailureRate  float64       `json:"failureRate" yaml:"failure_rate"`
	FailureType  FailureType   `json:"failureType" yaml:"failure_type"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	// ByzantineCorruption is the corruption applied by byzantine agents.
	// Defaults to replace.
	ByzantineCorruption CorruptionType `json:"byzantineCorruption,omitempty" yaml:"byzantine_corruption,omitempty"`
}

func (AgentFailure) Mode() Mode    { return ModeAgentFailure }
func (AgentFailure) isParameters() {}

func (p AgentFailure) Validate() error {
	if !validRate(p.FailureRate) {
		return configErrorf(ModeAgentFailure, "failureRate", "%v outside [0,1]", p.FailureRate)
	}
	switch p.FailureType {
	case FailureCrash, FailureTimeout, FailureSlow, FailureByzantine:
	default:
		return configErrorf(ModeAgentFailure, "failureType", "unknown type %q", p.FailureType)
	}
	if p.Duration < 0 {
		return configErrorf(ModeAgentFailure, "duration", "must not be negative")
	}
	if p.ByzantineCorruption != "" && !validCorruptionType(p.ByzantineCorruption) {
		return configErrorf(ModeAgentFailure, "byzantineCorruption", "unknown type %q", p.ByzantineCorruption)
	}
	return nil
}

func (p AgentFailure) byzantineCorruption() CorruptionType {
	if p.ByzantineCorruption == "" {
		return CorruptReplace
	}
	return p.ByzantineCorruption
}

// NetworkPartition splits agents into groups that cannot hear each other for
// a window of simulated time.
type NetworkPartition struct {
	Partitions           [][]string    `json:"partitions" yaml:"partitions"`
	Duration             time.Duration `json:"duration" yaml:"duration"`
	AllowPartialDelivery bool          `json:"allowPartialDelivery,omitempty" yaml:"allow_partial_delivery,omitempty"`
	// StartOffset moves the window start past the earliest message.
	StartOffset time.Duration `json:"startOffset,omitempty" yaml:"start_offset,omitempty"`
}

func (NetworkPartition) Mode() Mode    { return ModeNetworkPartition }
func (NetworkPartition) isParameters() {}

func (p NetworkPartition) Validate() error {
	if p.Duration < 0 {
		return configErrorf(ModeNetworkPartition, "duration", "must not be negative")
	}
	if p.StartOffset < 0 {
		return configErrorf(ModeNetworkPartition, "startOffset", "must not be negative")
	}
	seen := make(map[string]int)
	for gi, group := range p.Partitions {
		for _, id := range group {
			if id == "" {
				return configErrorf(ModeNetworkPartition, "partitions", "group %d contains an empty agent id", gi)
			}
			if prev, ok := seen[id]; ok {
				return configErrorf(ModeNetworkPartition, "partitions", "agent %q in groups %d and %d", id, prev, gi)
			}
			seen[id] = gi
		}
	}
	return nil
}
