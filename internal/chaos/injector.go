package chaos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"conversation-chaos/internal/conversation"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/monitoring"
	"conversation-chaos/internal/rng"
)

// DefaultSeed seeds runs in which no configuration names a seed.
const DefaultSeed int64 = 42

// Injector applies ordered chaos configurations to conversations. It holds no
// per-run state and may be shared between goroutines; every call owns its own
// generator.
type Injector struct {
	logger      *logging.Logger
	tracer      oteltrace.Tracer
	metrics     *monitoring.ChaosMetrics
	defaultSeed int64
}

type Option func(*Injector)

func WithLogger(logger *logging.Logger) Option {
	return func(inj *Injector) { inj.logger = logger }
}

func WithTracer(tracer oteltrace.Tracer) Option {
	return func(inj *Injector) { inj.tracer = tracer }
}

// WithMetrics reports runs, modes and mutations to m. A nil m disables metrics.
func WithMetrics(m *monitoring.ChaosMetrics) Option {
	return func(inj *Injector) { inj.metrics = m }
}

func WithDefaultSeed(seed int64) Option {
	return func(inj *Injector) { inj.defaultSeed = seed }
}

func NewInjector(opts ...Option) *Injector {
	inj := &Injector{
		logger:      logging.Discard(),
		tracer:      otel.Tracer("conversation-chaos/chaos"),
		defaultSeed: DefaultSeed,
	}
	for _, opt := range opts {
		opt(inj)
	}
	return inj
}

// Inject applies configs in order, each to the output of the previous one,
// drawing from a single generator. The input conversation is not modified.
func (inj *Injector) Inject(ctx context.Context, conv conversation.Conversation, configs []Configuration) (*Outcome, error) {
	if err := conv.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateConfigurations(configs); err != nil {
		return nil, err
	}

	seed, seedIndex := initialSeed(configs, inj.defaultSeed)
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	ctx, span := inj.tracer.Start(ctx, "chaos.inject", oteltrace.WithAttributes(
		attribute.String("chaos.run_id", runID),
		attribute.Int64("chaos.seed", seed),
		attribute.Int("chaos.messages", len(conv.Messages)),
		attribute.Int("chaos.configurations", len(configs)),
	))
	defer span.End()

	started := time.Now()
	inj.logger.RunStarted(ctx, runID, seed, modeNames(configs), len(conv.Messages))

	outcome, err := inj.inject(ctx, runID, conv, configs, seed, seedIndex)

	inj.metrics.RunCompleted(time.Since(started), len(conv.Messages), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		inj.logger.RunCompleted(ctx, runID, "", 0, time.Since(started), err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("chaos.fingerprint", outcome.Result.Fingerprint),
		attribute.Int("chaos.affected_messages", len(outcome.Result.AffectedMessages)),
	)
	inj.logger.RunCompleted(ctx, runID, outcome.Result.Fingerprint, len(outcome.Result.AffectedMessages), time.Since(started), nil)
	return outcome, nil
}

func (inj *Injector) inject(ctx context.Context, runID string, conv conversation.Conversation, configs []Configuration, seed int64, seedIndex int) (*Outcome, error) {
	gen := rng.New(seed)
	msgs := conversation.CloneMessages(conv.Messages)
	timeline := make([]TimelineEntry, 0)
	acc := newAccumulator()

	for i, cfg := range configs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cfg.Seed != nil && i != seedIndex {
			gen.Reset(*cfg.Seed)
		}

		_, span := inj.tracer.Start(ctx, "chaos.mode", oteltrace.WithAttributes(
			attribute.String("chaos.mode", string(cfg.Mode())),
			attribute.Int("chaos.index", i),
		))

		first := len(timeline)
		r := newRun(cfg.Mode(), gen, &timeline)
		out, err := runConfiguration(r, cfg, msgs, conv.Agents)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return nil, fmt.Errorf("configuration %d (%s): %w", i, cfg.Mode(), err)
		}
		msgs = out
		acc.add(r)

		span.SetAttributes(
			attribute.Bool("chaos.skipped", r.skipped),
			attribute.Int("chaos.modified", len(r.affected)),
		)
		span.End()

		inj.observe(ctx, runID, r, timeline[first:])
	}

	result, err := acc.result(seed, configs, conversation.TimestampInversions(msgs), len(conv.Messages))
	if err != nil {
		return nil, err
	}

	mutated := conv.Clone()
	mutated.Messages = msgs
	return &Outcome{RunID: runID, Conversation: mutated, Result: result, Timeline: timeline}, nil
}

func (inj *Injector) observe(ctx context.Context, runID string, r *run, entries []TimelineEntry) {
	inj.metrics.ModeApplied(string(r.mode), r.skipped)
	inj.logger.ModeApplied(ctx, runID, string(r.mode), r.seed, r.skipped, len(r.affected))
	for _, e := range entries {
		inj.metrics.Mutation(string(e.Mode), string(e.Action))
		inj.logger.Mutation(ctx, runID, string(e.Mode), string(e.Action), e.MessageID, e.MessageIndex)
	}
}

// runConfiguration applies the probability gate and then the mode.
func runConfiguration(r *run, cfg Configuration, msgs []conversation.Message, agents []conversation.Agent) ([]conversation.Message, error) {
	pass, err := gate(r, cfg)
	if err != nil || !pass {
		return msgs, err
	}
	return apply(r, cfg.Parameters, msgs, agents)
}

func gate(r *run, cfg Configuration) (bool, error) {
	if cfg.Probability == nil {
		return true, nil
	}
	hit, err := r.gen.NextBoolean(*cfg.Probability)
	if err != nil {
		return false, err
	}
	if !hit {
		r.skip()
	}
	return hit, nil
}

// ValidateConfigurations validates every configuration of a plan.
func ValidateConfigurations(configs []Configuration) error {
	for i, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration %d: %w", i, err)
		}
	}
	return nil
}

// initialSeed returns the seed of the first configuration that names one and
// its index, or def and -1.
func initialSeed(configs []Configuration, def int64) (int64, int) {
	for i, cfg := range configs {
		if cfg.Seed != nil {
			return *cfg.Seed, i
		}
	}
	return def, -1
}

func modeNames(configs []Configuration) []string {
	names := make([]string, len(configs))
	for i, cfg := range configs {
		names[i] = string(cfg.Mode())
	}
	return names
}

// accumulator merges the runs of one injection into a Result.
type accumulator struct {
	stats       Statistics
	modes       []Mode
	modeResults []ModeResult
	affected    []string
	affectSet   map[string]struct{}
	agents      []string
	agentSet    map[string]struct{}
}

func newAccumulator() *accumulator {
	return &accumulator{
		modes:       make([]Mode, 0),
		modeResults: make([]ModeResult, 0),
		affected:    make([]string, 0),
		affectSet:   make(map[string]struct{}),
		agents:      make([]string, 0),
		agentSet:    make(map[string]struct{}),
	}
}

func (a *accumulator) add(r *run) {
	a.modes = append(a.modes, r.mode)
	a.modeResults = append(a.modeResults, r.result())
	a.stats.merge(r.stats)
	for _, id := range r.affected {
		if _, ok := a.affectSet[id]; !ok {
			a.affectSet[id] = struct{}{}
			a.affected = append(a.affected, id)
		}
	}
	for _, id := range r.agents {
		if _, ok := a.agentSet[id]; !ok {
			a.agentSet[id] = struct{}{}
			a.agents = append(a.agents, id)
		}
	}
}

func (a *accumulator) result(seed int64, configs []Configuration, inversions, total int) (Result, error) {
	stats := a.stats
	stats.TotalMessages = total
	stats.ModifiedMessages = len(a.affected)
	stats.finalize()

	fp, err := Fingerprint(seed, configs, stats)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Modes:               a.modes,
		Seed:                seed,
		AffectedMessages:    a.affected,
		AffectedAgents:      a.agents,
		Statistics:          stats,
		ModeResults:         a.modeResults,
		TimestampInversions: inversions,
		Fingerprint:         fp,
	}, nil
}
