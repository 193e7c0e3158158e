package chaos

import (
	"time"

	"conversation-chaos/internal/conversation"
	"conversation-chaos/internal/rng"
)

type delayStage struct {
	params  Delay
	targets map[string]struct{}
}

func (s *delayStage) start(*run, []conversation.Agent) error { return nil }

func (s *delayStage) process(r *run, index int, msg conversation.Message) (conversation.Message, bool, error) {
	if !inTargets(s.targets, msg.AgentID) {
		return msg, true, nil
	}
	offset, err := s.params.sample(r.gen)
	if err != nil {
		return msg, false, err
	}
	msg = r.delay(index, msg, offset, map[string]string{"distribution": string(s.params.distribution())})
	return msg, true, nil
}

// sample draws one offset. Equal bounds return MinDelay without a draw.
func (p Delay) sample(g *rng.Generator) (time.Duration, error) {
	lo, hi := float64(p.MinDelay), float64(p.MaxDelay)
	if lo == hi {
		return p.MinDelay, nil
	}

	var v float64
	switch p.distribution() {
	case DistributionNormal:
		v = clamp(g.Gaussian((lo+hi)/2, (hi-lo)/6), lo, hi)
	case DistributionExponential:
		e, err := g.Exponential(1 / ((lo + hi) / 2))
		if err != nil {
			return 0, err
		}
		v = clamp(e, lo, hi)
	default:
		u, err := g.NextFloat(lo, hi)
		if err != nil {
			return 0, err
		}
		v = u
	}
	return time.Duration(v), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
