package chaos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/google/uuid"

	"conversation-chaos/internal/conversation"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/rng"
)

// MessageSource yields the messages of a live conversation in arrival order.
// Next returns io.EOF once the conversation is over.
type MessageSource interface {
	Next(ctx context.Context) (conversation.Message, error)
}

// SliceSource replays a fixed message slice.
type SliceSource struct {
	msgs []conversation.Message
	pos  int
}

func NewSliceSource(msgs []conversation.Message) *SliceSource {
	return &SliceSource{msgs: msgs}
}

func (s *SliceSource) Next(ctx context.Context) (conversation.Message, error) {
	if err := ctx.Err(); err != nil {
		return conversation.Message{}, err
	}
	if s.pos >= len(s.msgs) {
		return conversation.Message{}, io.EOF
	}
	msg := s.msgs[s.pos]
	s.pos++
	return msg.Clone(), nil
}

type streamStage struct {
	run   *run
	stage stage
	index int
	// active is false when the probability gate skipped the configuration.
	active bool
}

// Stream applies streamable configurations to messages as they are pulled.
// Emission follows arrival order; a dropped message is never emitted. A
// Stream is not safe for concurrent use.
type Stream struct {
	inj      *Injector
	logCtx   context.Context
	runID    string
	source   MessageSource
	configs  []Configuration
	seed     int64
	stages   []*streamStage
	timeline []TimelineEntry
	pulled   int

	// Only the last emitted timestamp is kept; inversions are counted as
	// messages leave.
	lastEmitted time.Time
	emitted     int
	inversions  int
	started  time.Time

	done   bool
	err    error
	result *Result
}

// InjectStream prepares a pull-driven injection over source. Only modes that
// decide each message on arrival are accepted; reorder and network-partition
// need the whole sequence and fail with ErrStreamUnsupported.
//
// The run generator is seeded as in Inject. Every configuration that Inject
// would reseed for gets a generator of its own, so its decisions match the
// batch run; the others share the run generator, interleaved per message.
func (inj *Injector) InjectStream(ctx context.Context, agents []conversation.Agent, source MessageSource, configs []Configuration) (*Stream, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: nil message source", conversation.ErrInvalidConversation)
	}
	if err := ValidateConfigurations(configs); err != nil {
		return nil, err
	}

	s := &Stream{
		inj:      inj,
		runID:    uuid.NewString(),
		source:   source,
		configs:  configs,
		timeline: make([]TimelineEntry, 0),
		started:  time.Now(),
	}
	s.logCtx = logging.WithRunID(ctx, s.runID)

	seed, seedIndex := initialSeed(configs, inj.defaultSeed)
	s.seed = seed
	shared := rng.New(seed)

	for i, cfg := range configs {
		st, ok := newStage(cfg.Parameters)
		if !ok {
			return nil, &ConfigurationError{
				Mode:   cfg.Mode(),
				Field:  "mode",
				Reason: fmt.Sprintf("configuration %d cannot run on a stream", i),
				Err:    ErrStreamUnsupported,
			}
		}

		gen := shared
		if cfg.Seed != nil && i != seedIndex {
			gen = rng.New(*cfg.Seed)
		}

		r := newRun(cfg.Mode(), gen, &s.timeline)
		active, err := gate(r, cfg)
		if err != nil {
			return nil, fmt.Errorf("configuration %d (%s): %w", i, cfg.Mode(), err)
		}
		if active {
			if err := st.start(r, agents); err != nil {
				return nil, fmt.Errorf("configuration %d (%s): %w", i, cfg.Mode(), err)
			}
		}
		s.stages = append(s.stages, &streamStage{run: r, stage: st, active: active})
	}

	inj.logger.RunStarted(s.logCtx, s.runID, seed, modeNames(configs), -1)
	return s, nil
}

// Next pulls input until one message survives every stage and returns it.
// It returns io.EOF once the source is exhausted.
func (s *Stream) Next(ctx context.Context) (conversation.Message, error) {
	if s.done {
		if s.err != nil {
			return conversation.Message{}, s.err
		}
		return conversation.Message{}, io.EOF
	}

	for {
		msg, err := s.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return conversation.Message{}, s.finish(nil)
		}
		if err != nil {
			return conversation.Message{}, s.finish(err)
		}
		s.pulled++

		out, keep, err := s.process(msg)
		if err != nil {
			return conversation.Message{}, s.finish(err)
		}
		if keep {
			if s.emitted > 0 && out.Timestamp.Before(s.lastEmitted) {
				s.inversions++
			}
			s.lastEmitted = out.Timestamp
			s.emitted++
			return out, nil
		}
	}
}

func (s *Stream) process(msg conversation.Message) (conversation.Message, bool, error) {
	for i, st := range s.stages {
		if !st.active {
			continue
		}
		first := len(s.timeline)
		next, keep, err := st.stage.process(st.run, st.index, msg)
		st.index++
		if err != nil {
			return msg, false, fmt.Errorf("configuration %d (%s): %w", i, st.run.mode, err)
		}
		for _, e := range s.timeline[first:] {
			s.inj.metrics.Mutation(string(e.Mode), string(e.Action))
			s.inj.logger.Mutation(s.logCtx, s.runID, string(e.Mode), string(e.Action), e.MessageID, e.MessageIndex)
		}
		if !keep {
			return msg, false, nil
		}
		msg = next
	}
	return msg, true, nil
}

// finish seals the stream. A nil err means the source ended normally and
// io.EOF is returned.
func (s *Stream) finish(err error) error {
	s.done = true
	if err == nil {
		acc := newAccumulator()
		for _, st := range s.stages {
			acc.add(st.run)
			s.inj.metrics.ModeApplied(string(st.run.mode), st.run.skipped)
		}
		result, ferr := acc.result(s.seed, s.configs, s.inversions, s.pulled)
		if ferr != nil {
			err = ferr
		} else {
			s.result = &result
		}
	}

	s.inj.metrics.RunCompleted(time.Since(s.started), s.pulled, err)
	if err != nil {
		s.err = err
		s.inj.logger.RunCompleted(s.logCtx, s.runID, "", 0, time.Since(s.started), err)
		return err
	}
	s.inj.logger.RunCompleted(s.logCtx, s.runID, s.result.Fingerprint, len(s.result.AffectedMessages), time.Since(s.started), nil)
	return io.EOF
}

func (s *Stream) RunID() string {
	return s.runID
}

// Timeline returns the entries recorded so far.
func (s *Stream) Timeline() []TimelineEntry {
	out := make([]TimelineEntry, len(s.timeline))
	copy(out, s.timeline)
	return out
}

// Result returns the run summary once the source is exhausted. It returns
// false while the stream is still open or after it failed.
func (s *Stream) Result() (Result, bool) {
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// All adapts the stream to a range-over-func iterator. Iteration stops at the
// end of the source; a failure is yielded once as the final pair.
func (s *Stream) All(ctx context.Context) iter.Seq2[conversation.Message, error] {
	return func(yield func(conversation.Message, error) bool) {
		for {
			msg, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(conversation.Message{}, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}
