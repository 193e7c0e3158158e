package stats

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"conversation-chaos/internal/chaos"
	"conversation-chaos/internal/conversation"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/monitoring"
	"conversation-chaos/internal/rng"
)

// ErrNotStochastic is returned for parameters whose outcome involves no random
// decision, so there is no distribution to test.
var ErrNotStochastic = errors.New("stats: mode makes no random decisions")

// DefaultBaseSeed is the base of the trial seed sequence.
const DefaultBaseSeed int64 = 1

const (
	canonicalMessages = 100
	canonicalAgents   = 4
)

// CanonicalConversation is the input every trial runs against: 100 messages
// from 4 agents, one second apart, without parent links.
func CanonicalConversation() conversation.Conversation {
	return conversation.Synthetic(canonicalMessages, canonicalAgents, time.Second)
}

// TrialSeed returns the seed of trial t. Seeds are spread over the generator
// cycle by hashing (base, t); consecutive raw seeds would give Park-Miller
// streams whose first draws are nearly equal.
func TrialSeed(base int64, t int) int64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(base))
	binary.LittleEndian.PutUint64(buf[8:], uint64(t))
	return int64(xxhash.Sum64(buf[:])%uint64(rng.Modulus-1)) + 1
}

// Report is the outcome of a distribution check.
type Report struct {
	Mode             chaos.Mode `json:"mode"`
	Trials           int        `json:"trials"`
	BaseSeed         int64      `json:"baseSeed"`
	Categories       []string   `json:"categories"`
	Expected         []float64  `json:"expected"`
	Actual           []int      `json:"actual"`
	ChiSquare        float64    `json:"chiSquare"`
	DegreesOfFreedom int        `json:"degreesOfFreedom"`
	CriticalValue    float64    `json:"criticalValue"`
	Passed           bool       `json:"passed"`
}

// MarshalJSON writes an infinite statistic as the string "+Inf".
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	out := struct {
		plain
		ChiSquare interface{} `json:"chiSquare"`
	}{plain: plain(r), ChiSquare: r.ChiSquare}
	if math.IsInf(r.ChiSquare, 1) {
		out.ChiSquare = "+Inf"
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the "+Inf" form written by MarshalJSON.
func (r *Report) UnmarshalJSON(data []byte) error {
	type plain Report
	in := struct {
		*plain
		ChiSquare json.RawMessage `json:"chiSquare"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case len(in.ChiSquare) == 0:
	case string(in.ChiSquare) == `"+Inf"`:
		r.ChiSquare = math.Inf(1)
	default:
		return json.Unmarshal(in.ChiSquare, &r.ChiSquare)
	}
	return nil
}

type options struct {
	baseSeed int64
	logger   *logging.Logger
	metrics  *monitoring.ChaosMetrics
}

type Option func(*options)

func WithBaseSeed(seed int64) Option {
	return func(o *options) { o.baseSeed = seed }
}

func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(m *monitoring.ChaosMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// ValidateDistribution runs samples independent trials of params over
// CanonicalConversation, each with a fresh generator seeded by TrialSeed, and
// chi-square tests the outcome counts. With one category left after dropping
// empty expectations the check passes only on an exact match.
func ValidateDistribution(ctx context.Context, params chaos.Parameters, samples int, opts ...Option) (*Report, error) {
	o := options{baseSeed: DefaultBaseSeed, logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	if params == nil {
		return nil, fmt.Errorf("stats: parameters are required")
	}
	if samples < 1 {
		return nil, fmt.Errorf("stats: samples must be positive, got %d", samples)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	conv := CanonicalConversation()
	c, err := newCounter(params, conv)
	if err != nil {
		return nil, err
	}

	inj := chaos.NewInjector()
	for t := 0; t < samples; t++ {
		seed := TrialSeed(o.baseSeed, t)
		out, err := inj.Inject(ctx, conv, []chaos.Configuration{{Seed: &seed, Parameters: params}})
		if err != nil {
			return nil, fmt.Errorf("stats: trial %d: %w", t, err)
		}
		c.observe(out)
	}

	expected, actual := c.expected(samples), c.actual()
	chi, df, err := ChiSquare(expected, actual)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Mode:             params.Mode(),
		Trials:           samples,
		BaseSeed:         o.baseSeed,
		Categories:       c.categories(),
		Expected:         expected,
		Actual:           actual,
		ChiSquare:        chi,
		DegreesOfFreedom: df,
		Passed:           chi == 0,
	}
	if df > 0 {
		report.CriticalValue, _ = CriticalValue(df)
		report.Passed = chi < report.CriticalValue
	}

	o.logger.ValidationCompleted(ctx, string(report.Mode), chi, report.CriticalValue, df, samples, report.Passed)
	o.metrics.ValidationCompleted(string(report.Mode), chi, report.Passed)
	return report, nil
}
