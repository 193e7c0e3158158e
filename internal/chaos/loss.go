package chaos

import (
	"math"
	"strconv"

	"conversation-chaos/internal/conversation"
)

type lossStage struct {
	params    MessageLoss
	targets   map[string]struct{}
	remaining int
	position  int
}

func (s *lossStage) start(*run, []conversation.Agent) error { return nil }

func (s *lossStage) eligible(agentID string) bool {
	if s.params.pattern() == LossSelective && s.targets == nil {
		return false
	}
	return inTargets(s.targets, agentID)
}

func (s *lossStage) process(r *run, index int, msg conversation.Message) (conversation.Message, bool, error) {
	if !s.eligible(msg.AgentID) {
		return msg, true, nil
	}

	if s.remaining > 0 {
		s.remaining--
		s.position++
		r.drop(index, msg, map[string]string{
			"pattern":        string(LossBurst),
			"burst_position": strconv.Itoa(s.position),
		})
		return msg, false, nil
	}

	lost, err := r.gen.NextBoolean(s.params.LossRate)
	if err != nil {
		return msg, false, err
	}
	if !lost {
		return msg, true, nil
	}

	pattern := s.params.pattern()
	details := map[string]string{"pattern": string(pattern)}
	if pattern == LossBurst {
		maxLen := int(math.Round(1 / s.params.LossRate))
		if maxLen < 1 {
			maxLen = 1
		}
		length, err := r.gen.NextInt(1, maxLen)
		if err != nil {
			return msg, false, err
		}
		s.remaining = length - 1
		s.position = 0
		details["burst_position"] = "0"
		details["burst_length"] = strconv.Itoa(length)
	}

	r.drop(index, msg, details)
	return msg, false, nil
}
