package stats

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"conversation-chaos/internal/chaos"
	"conversation-chaos/internal/monitoring"
)

func TestTrialSeed(t *testing.T) {
	want := []int64{171751209, 1854300765, 1800672353}
	for i, w := range want {
		if got := TrialSeed(1, i); got != w {
			t.Errorf("Expected trial %d seed %d, got %d", i, w, got)
		}
	}

	seen := make(map[int64]bool)
	for i := 0; i < 1000; i++ {
		s := TrialSeed(DefaultBaseSeed, i)
		if s < 1 || s >= 2147483647 {
			t.Fatalf("Expected seed in [1, 2^31-2], got %d", s)
		}
		if seen[s] {
			t.Fatalf("Expected distinct trial seeds, %d repeated", s)
		}
		seen[s] = true
	}

	if TrialSeed(2, 0) == TrialSeed(1, 0) {
		t.Error("Expected different bases to give different seeds")
	}
}

func TestValidateDistributionPasses(t *testing.T) {
	tests := []struct {
		name    string
		params  chaos.Parameters
		samples int
	}{
		{"random loss", chaos.MessageLoss{LossRate: 0.3}, 200},
		{"rare loss", chaos.MessageLoss{LossRate: 0.1}, 1000},
		{"burst loss", chaos.MessageLoss{LossRate: 0.3, Pattern: chaos.LossBurst}, 200},
		{"uniform delay", chaos.Delay{MaxDelay: time.Second}, 100},
		{"normal delay", chaos.Delay{MaxDelay: time.Second, Distribution: chaos.DistributionNormal}, 100},
		{"exponential delay", chaos.Delay{MinDelay: time.Second, MaxDelay: 5 * time.Second, Distribution: chaos.DistributionExponential}, 100},
		{"reorder", chaos.Reorder{WindowSize: 5, MaxDisplacement: 3}, 100},
		{"wide reorder", chaos.Reorder{WindowSize: 8, MaxDisplacement: 7}, 100},
		{"truncation", chaos.Corruption{CorruptionRate: 0.4, CorruptionType: chaos.CorruptTruncate}, 100},
		{"crash", chaos.AgentFailure{FailureRate: 0.5, FailureType: chaos.FailureCrash, Duration: time.Minute}, 200},
		{"rare crash", chaos.AgentFailure{FailureRate: 0.3, FailureType: chaos.FailureCrash, Duration: time.Minute}, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := ValidateDistribution(context.Background(), tt.params, tt.samples)
			if err != nil {
				t.Fatalf("ValidateDistribution failed: %v", err)
			}
			if !report.Passed {
				t.Errorf("Expected %s to pass, chi-square %.3f against %.3f (expected %v, actual %v)",
					tt.name, report.ChiSquare, report.CriticalValue, report.Expected, report.Actual)
			}
			if report.Trials != tt.samples || report.Mode != tt.params.Mode() {
				t.Errorf("Unexpected report header: %s with %d trials", report.Mode, report.Trials)
			}
			if len(report.Categories) != len(report.Expected) || len(report.Expected) != len(report.Actual) {
				t.Errorf("Expected aligned categories, got %d/%d/%d",
					len(report.Categories), len(report.Expected), len(report.Actual))
			}
		})
	}
}

func TestValidateDistributionCounts(t *testing.T) {
	tests := []struct {
		name    string
		params  chaos.Parameters
		samples int
		want    []int
	}{
		{"random loss", chaos.MessageLoss{LossRate: 0.3}, 200, []int{6070, 13930}},
		{"burst loss", chaos.MessageLoss{LossRate: 0.3, Pattern: chaos.LossBurst}, 200, []int{4692, 10589}},
		{"reorder", chaos.Reorder{WindowSize: 5, MaxDisplacement: 3}, 100, []int{4520, 5480}},
		{"crash", chaos.AgentFailure{FailureRate: 0.5, FailureType: chaos.FailureCrash, Duration: time.Minute}, 200, []int{409, 391}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := ValidateDistribution(context.Background(), tt.params, tt.samples)
			if err != nil {
				t.Fatalf("ValidateDistribution failed: %v", err)
			}
			if !reflect.DeepEqual(report.Actual, tt.want) {
				t.Errorf("Expected counts %v, got %v", tt.want, report.Actual)
			}
		})
	}
}

func TestValidateDistributionLossAtTenThousandTrials(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 10000-trial run in short mode")
	}

	report, err := ValidateDistribution(context.Background(), chaos.MessageLoss{LossRate: 0.3}, 10000)
	if err != nil {
		t.Fatalf("ValidateDistribution failed: %v", err)
	}
	if !report.Passed {
		t.Errorf("Expected loss to pass, chi-square %.3f against %.3f", report.ChiSquare, report.CriticalValue)
	}

	dropped := float64(report.Actual[0]) / float64(report.Actual[0]+report.Actual[1])
	if math.Abs(dropped-0.3) > 0.3*0.05 {
		t.Errorf("Expected drop fraction within 5%% of 0.3, got %.4f", dropped)
	}
	if want := []int{299126, 700874}; !reflect.DeepEqual(report.Actual, want) {
		t.Errorf("Expected counts %v, got %v", want, report.Actual)
	}
}

func TestValidateDistributionIsReproducible(t *testing.T) {
	params := chaos.Delay{MaxDelay: time.Second, Distribution: chaos.DistributionNormal}
	a, err := ValidateDistribution(context.Background(), params, 20)
	if err != nil {
		t.Fatalf("ValidateDistribution failed: %v", err)
	}
	b, _ := ValidateDistribution(context.Background(), params, 20)
	if !reflect.DeepEqual(a, b) {
		t.Error("Expected equal reports for equal inputs")
	}

	c, _ := ValidateDistribution(context.Background(), params, 20, WithBaseSeed(7))
	if reflect.DeepEqual(a.Actual, c.Actual) {
		t.Error("Expected another base seed to change the counts")
	}
	if c.BaseSeed != 7 {
		t.Errorf("Expected base seed 7, got %d", c.BaseSeed)
	}
}

func TestValidateDistributionDegenerateRates(t *testing.T) {
	for _, rate := range []float64{0, 1} {
		report, err := ValidateDistribution(context.Background(), chaos.MessageLoss{LossRate: rate}, 10)
		if err != nil {
			t.Fatalf("ValidateDistribution failed: %v", err)
		}
		if report.DegreesOfFreedom != 0 || report.ChiSquare != 0 || !report.Passed {
			t.Errorf("Expected rate %v to pass exactly with 0 df, got %+v", rate, report)
		}
	}
}

func TestValidateDistributionErrors(t *testing.T) {
	tests := []struct {
		name      string
		params    chaos.Parameters
		samples   int
		wantNotSt bool
	}{
		{"partition", chaos.NetworkPartition{Partitions: [][]string{{"agent-0"}}, Duration: time.Second}, 10, true},
		{"fixed delay", chaos.Delay{MinDelay: time.Second, MaxDelay: time.Second}, 10, true},
		{"selective without targets", chaos.MessageLoss{LossRate: 0.5, Pattern: chaos.LossSelective}, 10, true},
		{"absent target agents", chaos.AgentFailure{FailureRate: 0.5, FailureType: chaos.FailureCrash, TargetAgents: []string{"ghost"}}, 10, true},
		{"zero samples", chaos.MessageLoss{LossRate: 0.5}, 0, false},
		{"invalid parameters", chaos.MessageLoss{LossRate: 2}, 10, false},
		{"nil parameters", nil, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateDistribution(context.Background(), tt.params, tt.samples)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if errors.Is(err, ErrNotStochastic) != tt.wantNotSt {
				t.Errorf("Expected ErrNotStochastic %v, got %v", tt.wantNotSt, err)
			}
		})
	}
}

func TestValidateDistributionInvalidParametersAreConfigurationErrors(t *testing.T) {
	_, err := ValidateDistribution(context.Background(), chaos.Reorder{WindowSize: 0}, 10)
	if !chaos.IsConfigurationError(err) {
		t.Errorf("Expected a configuration error, got %v", err)
	}
}

func TestValidateDistributionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ValidateDistribution(ctx, chaos.MessageLoss{LossRate: 0.5}, 10)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestValidateDistributionReportsMetrics(t *testing.T) {
	metrics := monitoring.NewChaosMetrics()
	_, err := ValidateDistribution(context.Background(), chaos.MessageLoss{LossRate: 0.3}, 200, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("ValidateDistribution failed: %v", err)
	}
	if got := promtestutil.ToFloat64(metrics.ValidationsTotal.WithLabelValues("message-loss", "true")); got != 1 {
		t.Errorf("Expected 1 passed validation, got %v", got)
	}
}

func TestReportJSON(t *testing.T) {
	report := Report{Mode: chaos.ModeMessageLoss, ChiSquare: math.Inf(1), Actual: []int{1, 0}}
	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"chiSquare":"+Inf"`) {
		t.Errorf("Expected +Inf to be encoded as a string, got %s", data)
	}

	report.ChiSquare = 1.5
	data, _ = json.Marshal(report)
	if !strings.Contains(string(data), `"chiSquare":1.5`) {
		t.Errorf("Expected a numeric chi-square, got %s", data)
	}
}

func TestReportJSONDecode(t *testing.T) {
	var report Report
	if err := json.Unmarshal([]byte(`{"mode":"message-loss","trials":10,"chiSquare":"+Inf","passed":false}`), &report); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !math.IsInf(report.ChiSquare, 1) || report.Trials != 10 {
		t.Errorf("Expected +Inf over 10 trials, got %v over %d", report.ChiSquare, report.Trials)
	}

	if err := json.Unmarshal([]byte(`{"chiSquare":2.25,"degreesOfFreedom":1}`), &report); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if report.ChiSquare != 2.25 || report.DegreesOfFreedom != 1 {
		t.Errorf("Expected 2.25 with df 1, got %v with df %d", report.ChiSquare, report.DegreesOfFreedom)
	}
}
