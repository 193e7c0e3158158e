package chaos

import (
	"math"

	"conversation-chaos/internal/conversation"
	"conversation-chaos/internal/rng"
)

type corruptionStage struct {
	params  Corruption
	targets map[string]struct{}
}

func (s *corruptionStage) start(*run, []conversation.Agent) error { return nil }

func (s *corruptionStage) process(r *run, index int, msg conversation.Message) (conversation.Message, bool, error) {
	if !inTargets(s.targets, msg.AgentID) {
		return msg, true, nil
	}
	hit, err := r.gen.NextBoolean(s.params.CorruptionRate)
	if err != nil {
		return msg, false, err
	}
	if !hit {
		return msg, true, nil
	}

	severity := s.params.Severity
	if severity == "" {
		severity = SeverityMedium
	}
	content, changed, err := corruptContent(r.gen, msg.Content, s.params.CorruptionType, severity)
	if err != nil {
		return msg, false, err
	}
	if !changed {
		return msg, true, nil
	}

	msg.Content = content
	r.corrupt(index, msg, map[string]string{
		"type":     string(s.params.CorruptionType),
		"severity": string(severity),
	})
	return msg, true, nil
}

// windowStart picks where a k-rune window begins. A window covering the whole
// content starts at 0 without a draw.
func windowStart(g *rng.Generator, n, k int) (int, error) {
	if k == n {
		return 0, nil
	}
	return g.NextInt(0, n-k)
}

// corruptContent damages k = max(1, round(len*fraction)) runes of content.
// Empty content is left alone and reported as unchanged.
func corruptContent(g *rng.Generator, content string, kind CorruptionType, severity Severity) (string, bool, error) {
	runes := []rune(content)
	n := len(runes)
	if n == 0 {
		return content, false, nil
	}

	k := int(math.Round(float64(n) * severity.Fraction()))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	switch kind {
	case CorruptTruncate:
		cut, err := g.NextInt(n-k, n)
		if err != nil {
			return "", false, err
		}
		// A cut at n keeps every rune but still counts: the message was
		// selected and its truncation point drawn.
		return string(runes[:cut]), true, nil

	case CorruptScramble:
		start, err := windowStart(g, n, k)
		if err != nil {
			return "", false, err
		}
		rng.ShuffleInPlace(g, runes[start:start+k])
		return string(runes), true, nil

	case CorruptReplace:
		start, err := windowStart(g, n, k)
		if err != nil {
			return "", false, err
		}
		noise, err := g.String(k, rng.AlphaNumeric)
		if err != nil {
			return "", false, err
		}
		copy(runes[start:start+k], []rune(noise))
		return string(runes), true, nil

	case CorruptInject:
		noise, err := g.String(k, rng.AlphaNumeric)
		if err != nil {
			return "", false, err
		}
		return content + noise, true, nil
	}

	return content, false, nil
}
