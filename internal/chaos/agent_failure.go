package chaos

import (
	"time"

	"conversation-chaos/internal/conversation"
)

type agentFailureStage struct {
	params  AgentFailure
	targets map[string]struct{}
	failed  map[string]bool
	onset   map[string]time.Time
}

func newAgentFailureStage(p AgentFailure) *agentFailureStage {
	return &agentFailureStage{
		params:  p,
		targets: targetSet(p.TargetAgents),
		failed:  make(map[string]bool),
		onset:   make(map[string]time.Time),
	}
}

// start draws one failure decision per candidate agent, in declaration order.
func (s *agentFailureStage) start(r *run, agents []conversation.Agent) error {
	for _, a := range agents {
		if !inTargets(s.targets, a.ID) {
			continue
		}
		hit, err := r.gen.NextBoolean(s.params.FailureRate)
		if err != nil {
			return err
		}
		if hit {
			s.failed[a.ID] = true
		}
	}
	return nil
}

func (s *agentFailureStage) process(r *run, index int, msg conversation.Message) (conversation.Message, bool, error) {
	if !s.failed[msg.AgentID] {
		return msg, true, nil
	}

	onset, seen := s.onset[msg.AgentID]
	if !seen {
		onset = msg.Timestamp
		s.onset[msg.AgentID] = onset
		r.touchAgent(msg.AgentID)
		r.record(TimelineEntry{
			Timestamp:    onset,
			MessageIndex: index,
			MessageID:    msg.ID,
			AgentID:      msg.AgentID,
			Action:       ActionAgentFailed,
			Details: map[string]string{
				"failure_type": string(s.params.FailureType),
				"window_end":   onset.Add(s.params.Duration).Format(time.RFC3339Nano),
			},
		})
	}

	if msg.Timestamp.Before(onset) || !msg.Timestamp.Before(onset.Add(s.params.Duration)) {
		return msg, true, nil
	}

	details := map[string]string{"failure_type": string(s.params.FailureType)}
	switch s.params.FailureType {
	case FailureCrash:
		r.drop(index, msg, details)
		return msg, false, nil

	case FailureTimeout:
		return r.delay(index, msg, s.params.Duration, details), true, nil

	case FailureSlow:
		extra := msg.Timestamp.Sub(onset) * (SlowdownFactor - 1)
		if extra <= 0 {
			return msg, true, nil
		}
		return r.delay(index, msg, extra, details), true, nil

	case FailureByzantine:
		kind := s.params.byzantineCorruption()
		content, changed, err := corruptContent(r.gen, msg.Content, kind, SeverityHigh)
		if err != nil {
			return msg, false, err
		}
		if !changed {
			return msg, true, nil
		}
		msg.Content = content
		details["type"] = string(kind)
		details["severity"] = string(SeverityHigh)
		r.corrupt(index, msg, details)
		return msg, true, nil
	}

	return msg, true, nil
}
