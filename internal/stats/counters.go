package stats

import (
	"fmt"
	"math"
	"time"

	"conversation-chaos/internal/chaos"
	"conversation-chaos/internal/conversation"
)

// counter buckets the outcomes of one mode across trials.
type counter interface {
	categories() []string
	observe(out *chaos.Outcome)
	expected(trials int) []float64
	actual() []int
}

func newCounter(params chaos.Parameters, conv conversation.Conversation) (counter, error) {
	switch p := params.(type) {
	case chaos.MessageLoss:
		eligible := 0
		if p.Pattern != chaos.LossSelective || len(p.TargetAgents) > 0 {
			eligible = countMessages(conv, p.TargetAgents)
		}
		if eligible == 0 {
			return nil, fmt.Errorf("%w: no message is eligible for loss", ErrNotStochastic)
		}
		return &lossCounter{rate: p.LossRate, eligible: eligible}, nil

	case chaos.Delay:
		if p.MinDelay == p.MaxDelay {
			return nil, fmt.Errorf("%w: delay bounds are equal", ErrNotStochastic)
		}
		return &delayCounter{params: p}, nil

	case chaos.Reorder:
		return &reorderCounter{positions: len(conv.Messages), swapChance: swapChance(p, len(conv.Messages))}, nil

	case chaos.Corruption:
		eligible := 0
		for _, m := range conv.Messages {
			if m.Content != "" && inTargets(p.TargetAgents, m.AgentID) {
				eligible++
			}
		}
		if eligible == 0 {
			return nil, fmt.Errorf("%w: no message is eligible for corruption", ErrNotStochastic)
		}
		return &binaryCounter{
			names:    [2]string{"corrupted", "clean"},
			action:   chaos.ActionCorrupt,
			rate:     p.CorruptionRate,
			perTrial: eligible,
		}, nil

	case chaos.AgentFailure:
		eligible := 0
		for _, a := range conv.Agents {
			if inTargets(p.TargetAgents, a.ID) {
				eligible++
			}
		}
		if eligible == 0 {
			return nil, fmt.Errorf("%w: no agent is eligible for failure", ErrNotStochastic)
		}
		return &binaryCounter{
			names:    [2]string{"failed", "healthy"},
			action:   chaos.ActionAgentFailed,
			rate:     p.FailureRate,
			perTrial: eligible,
		}, nil

	case chaos.NetworkPartition:
		return nil, fmt.Errorf("%w: %s is a function of the conversation", ErrNotStochastic, p.Mode())
	}
	return nil, fmt.Errorf("stats: unsupported parameters %T", params)
}

func inTargets(targets []string, id string) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if t == id {
			return true
		}
	}
	return false
}

func countMessages(conv conversation.Conversation, targets []string) int {
	n := 0
	for _, m := range conv.Messages {
		if inTargets(targets, m.AgentID) {
			n++
		}
	}
	return n
}

// lossCounter counts loss decisions: every eligible message outside a running
// burst is one Bernoulli trial that either starts a loss or does not.
type lossCounter struct {
	rate      float64
	eligible  int
	decisions int
	starts    int
}

func (c *lossCounter) categories() []string { return []string{"start", "no-start"} }

func (c *lossCounter) observe(out *chaos.Outcome) {
	continued := 0
	for _, e := range out.Timeline {
		if e.Action != chaos.ActionDrop {
			continue
		}
		if pos, ok := e.Details["burst_position"]; ok && pos != "0" {
			continued++
		} else {
			c.starts++
		}
	}
	c.decisions += c.eligible - continued
}

func (c *lossCounter) expected(int) []float64 {
	n := float64(c.decisions)
	return []float64{n * c.rate, n * (1 - c.rate)}
}

func (c *lossCounter) actual() []int {
	return []int{c.starts, c.decisions - c.starts}
}

// binaryCounter counts a fixed number of Bernoulli decisions per trial by the
// timeline entries they leave.
type binaryCounter struct {
	names    [2]string
	action   chaos.Action
	rate     float64
	perTrial int
	trials   int
	hits     int
}

func (c *binaryCounter) categories() []string { return c.names[:] }

func (c *binaryCounter) observe(out *chaos.Outcome) {
	c.trials++
	for _, e := range out.Timeline {
		if e.Action == c.action {
			c.hits++
		}
	}
}

func (c *binaryCounter) expected(trials int) []float64 {
	n := float64(c.perTrial * trials)
	return []float64{n * c.rate, n * (1 - c.rate)}
}

func (c *binaryCounter) actual() []int {
	return []int{c.hits, c.perTrial*c.trials - c.hits}
}

// reorderCounter counts positions whose displacement draw started a swap.
type reorderCounter struct {
	positions  int
	swapChance float64
	trials     int
	swaps      int
}

// swapChance is the expected number of swaps per run: a position with r
// positions left in its window swaps when its draw from [0, D] lands in [1, r].
func swapChance(p chaos.Reorder, n int) float64 {
	total := 0.0
	for start := 0; start < n; start += p.WindowSize {
		end := start + p.WindowSize
		if end > n {
			end = n
		}
		for i := start; i < end; i++ {
			reach := end - 1 - i
			if reach > p.MaxDisplacement {
				reach = p.MaxDisplacement
			}
			total += float64(reach) / float64(p.MaxDisplacement+1)
		}
	}
	return total
}

func (c *reorderCounter) categories() []string { return []string{"swap", "no-swap"} }

func (c *reorderCounter) observe(out *chaos.Outcome) {
	c.trials++
	for _, e := range out.Timeline {
		if e.Action == chaos.ActionSwap {
			c.swaps++
		}
	}
}

func (c *reorderCounter) expected(trials int) []float64 {
	swaps := c.swapChance * float64(trials)
	return []float64{swaps, float64(c.positions*trials) - swaps}
}

func (c *reorderCounter) actual() []int {
	return []int{c.swaps, c.positions*c.trials - c.swaps}
}

// delayCounter buckets offsets into four equal-width bins over
// [MinDelay, MaxDelay]. Clamped mass falls into the outer bins.
type delayCounter struct {
	params  chaos.Delay
	buckets [4]int
	total   int
}

func (c *delayCounter) categories() []string {
	lo, hi := c.params.MinDelay, c.params.MaxDelay
	width := (hi - lo) / 4
	names := make([]string, 4)
	for i := range names {
		names[i] = fmt.Sprintf("[%s,%s)", lo+time.Duration(i)*width, lo+time.Duration(i+1)*width)
	}
	names[3] = fmt.Sprintf("[%s,%s]", lo+3*width, hi)
	return names
}

func (c *delayCounter) observe(out *chaos.Outcome) {
	lo, hi := c.params.MinDelay, c.params.MaxDelay
	for _, e := range out.Timeline {
		if e.Action != chaos.ActionDelay {
			continue
		}
		idx := int(float64(e.Delay-lo) / float64(hi-lo) * 4)
		if idx < 0 {
			idx = 0
		}
		if idx > 3 {
			idx = 3
		}
		c.buckets[idx]++
		c.total++
	}
}

func (c *delayCounter) expected(int) []float64 {
	p := c.probabilities()
	out := make([]float64, len(p))
	for i := range p {
		out[i] = p[i] * float64(c.total)
	}
	return out
}

func (c *delayCounter) actual() []int {
	return c.buckets[:]
}

// probabilities returns the exact bin masses of the clamped distribution.
func (c *delayCounter) probabilities() []float64 {
	lo, hi := float64(c.params.MinDelay), float64(c.params.MaxDelay)
	edges := [5]float64{}
	for i := range edges {
		edges[i] = lo + float64(i)*(hi-lo)/4
	}

	var cdf func(x float64) float64
	switch c.params.Distribution {
	case chaos.DistributionNormal:
		mean, std := (lo+hi)/2, (hi-lo)/6
		cdf = func(x float64) float64 { return 0.5 * (1 + math.Erf((x-mean)/(std*math.Sqrt2))) }
	case chaos.DistributionExponential:
		mean := (lo + hi) / 2
		cdf = func(x float64) float64 { return 1 - math.Exp(-x/mean) }
	default:
		return []float64{0.25, 0.25, 0.25, 0.25}
	}

	return []float64{
		cdf(edges[1]),
		cdf(edges[2]) - cdf(edges[1]),
		cdf(edges[3]) - cdf(edges[2]),
		1 - cdf(edges[3]),
	}
}
