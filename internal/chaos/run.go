package chaos

import (
	"time"

	"conversation-chaos/internal/conversation"
	"conversation-chaos/internal/rng"
)

// run is the exclusive state of one configuration while it executes. The
// generator it holds is owned by the caller for the duration of the run and
// must not be shared with another goroutine.
type run struct {
	mode  Mode
	gen   *rng.Generator
	seed  int64
	stats Statistics

	// sink receives timeline entries in processing order. Several runs of one
	// injection share the same sink.
	sink *[]TimelineEntry

	affected   []string
	affectSet  map[string]struct{}
	agents     []string
	agentSet   map[string]struct{}
	skipped    bool
	entryCount int
}

func newRun(mode Mode, gen *rng.Generator, sink *[]TimelineEntry) *run {
	return &run{
		mode:      mode,
		gen:       gen,
		seed:      gen.Seed(),
		sink:      sink,
		affectSet: make(map[string]struct{}),
		agentSet:  make(map[string]struct{}),
	}
}

func (r *run) record(e TimelineEntry) {
	e.Mode = r.mode
	*r.sink = append(*r.sink, e)
	r.entryCount++
}

func (r *run) touch(msg conversation.Message) {
	if _, ok := r.affectSet[msg.ID]; !ok {
		r.affectSet[msg.ID] = struct{}{}
		r.affected = append(r.affected, msg.ID)
	}
	r.touchAgent(msg.AgentID)
}

func (r *run) touchAgent(id string) {
	if _, ok := r.agentSet[id]; !ok {
		r.agentSet[id] = struct{}{}
		r.agents = append(r.agents, id)
	}
}

func (r *run) drop(index int, msg conversation.Message, details map[string]string) {
	r.stats.DroppedMessages++
	r.touch(msg)
	r.record(TimelineEntry{
		Timestamp:    msg.Timestamp,
		MessageIndex: index,
		MessageID:    msg.ID,
		AgentID:      msg.AgentID,
		Action:       ActionDrop,
		Details:      details,
	})
}

// delay shifts msg by offset and records it. The returned message carries the
// new timestamp.
func (r *run) delay(index int, msg conversation.Message, offset time.Duration, details map[string]string) conversation.Message {
	original := msg.Timestamp
	msg.Timestamp = msg.Timestamp.Add(offset)
	r.stats.DelayedMessages++
	r.stats.TotalDelay += offset
	if offset > r.stats.MaxDelay {
		r.stats.MaxDelay = offset
	}
	r.touch(msg)
	r.record(TimelineEntry{
		Timestamp:    original,
		MessageIndex: index,
		MessageID:    msg.ID,
		AgentID:      msg.AgentID,
		Action:       ActionDelay,
		Delay:        offset,
		Details:      details,
	})
	return msg
}

func (r *run) corrupt(index int, msg conversation.Message, details map[string]string) {
	r.stats.CorruptedMessages++
	r.touch(msg)
	r.record(TimelineEntry{
		Timestamp:    msg.Timestamp,
		MessageIndex: index,
		MessageID:    msg.ID,
		AgentID:      msg.AgentID,
		Action:       ActionCorrupt,
		Details:      details,
	})
}

func (r *run) skip() {
	r.skipped = true
	r.record(TimelineEntry{MessageIndex: -1, Action: ActionSkip})
}

func (r *run) result() ModeResult {
	return ModeResult{Mode: r.mode, Seed: r.seed, Skipped: r.skipped, Statistics: r.stats}
}

// targetSet builds a lookup for TargetAgents. A nil set means "no filter".
func targetSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func inTargets(set map[string]struct{}, id string) bool {
	if set == nil {
		return true
	}
	_, ok := set[id]
	return ok
}

// stage is a mode that decides each message's fate from that message alone
// plus state gathered from earlier messages. Stages run identically in batch
// and stream injection.
type stage interface {
	start(r *run, agents []conversation.Agent) error
	process(r *run, index int, msg conversation.Message) (conversation.Message, bool, error)
}

func runStage(r *run, s stage, msgs []conversation.Message, agents []conversation.Agent) ([]conversation.Message, error) {
	if err := s.start(r, agents); err != nil {
		return nil, err
	}
	out := make([]conversation.Message, 0, len(msgs))
	for i, msg := range msgs {
		next, keep, err := s.process(r, i, msg)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, next)
		}
	}
	return out, nil
}

// newStage returns a fresh stage for streamable parameters.
func newStage(p Parameters) (stage, bool) {
	switch p := p.(type) {
	case MessageLoss:
		return &lossStage{params: p, targets: targetSet(p.TargetAgents)}, true
	case Delay:
		return &delayStage{params: p, targets: targetSet(p.TargetAgents)}, true
	case Corruption:
		return &corruptionStage{params: p, targets: targetSet(p.TargetAgents)}, true
	case AgentFailure:
		return newAgentFailureStage(p), true
	default:
		return nil, false
	}
}

// apply runs one configuration's algorithm over msgs.
func apply(r *run, p Parameters, msgs []conversation.Message, agents []conversation.Agent) ([]conversation.Message, error) {
	switch p := p.(type) {
	case MessageLoss, Delay, Corruption, AgentFailure:
		s, _ := newStage(p)
		return runStage(r, s, msgs, agents)
	case Reorder:
		return applyReorder(r, p, msgs)
	case NetworkPartition:
		return applyPartition(r, p, msgs), nil
	default:
		return nil, configErrorf("", "parameters", "unsupported type %T", p)
	}
}
