package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"conversation-chaos/internal/api"
	"conversation-chaos/internal/chaos"
	"conversation-chaos/internal/config"
	"conversation-chaos/internal/conversation"
	"conversation-chaos/internal/ledger"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/rng"
	"conversation-chaos/internal/stats"
	"conversation-chaos/pkg/client"
)

// errFailed signals a completed command whose outcome is negative, such as a
// failed distribution check. The message has already been printed.
var errFailed = errors.New("command reported failure")

type tool struct {
	stdout  io.Writer
	stderr  io.Writer
	logger  *logging.Logger
	timeout time.Duration
	// remote is set when -server points at a running server.
	remote *client.Client
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("chaostool", flag.ContinueOnError)
	global.SetOutput(stderr)
	verbose := global.Bool("v", false, "Verbose output (debug logs on stderr)")
	timeout := global.Duration("timeout", 5*time.Minute, "Overall command timeout")
	server := global.String("server", "", "Run inject, validate, runs and replay against this server URL")
	global.Usage = func() { printUsage(stderr) }
	if err := global.Parse(args); err != nil {
		return 2
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}

	logger := logging.Discard()
	if *verbose {
		logCfg := logging.DevelopmentLoggingConfig()
		logger = logging.NewWithWriter(&logCfg, stderr)
	}
	t := &tool{stdout: stdout, stderr: stderr, logger: logger, timeout: *timeout}

	if *server != "" {
		clientCfg := client.DefaultConfig()
		clientCfg.BaseURL = *server
		clientCfg.Logger = logger
		remote, err := client.NewClient(clientCfg)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		defer remote.Close()
		t.remote = remote
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	var err error
	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "inject":
		err = t.inject(ctx, cmdArgs)
	case "validate":
		err = t.validate(ctx, cmdArgs)
	case "fingerprint":
		err = t.fingerprint(ctx, cmdArgs)
	case "rng":
		err = t.rng(cmdArgs)
	case "runs":
		err = t.runs(ctx, cmdArgs)
	case "replay":
		err = t.replay(ctx, cmdArgs)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFailed):
		return 1
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func (t *tool) newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(t.stderr)
	return fs
}

func (t *tool) injector(extra ...chaos.Option) *chaos.Injector {
	return chaos.NewInjector(append([]chaos.Option{chaos.WithLogger(t.logger)}, extra...)...)
}

// loadInputs reads the conversation and plan every chaos command needs
func loadInputs(convPath, planPath string) (*conversation.Conversation, *chaos.Plan, error) {
	if convPath == "" || planPath == "" {
		return nil, nil, errors.New("both -conversation and -plan are required")
	}
	conv, err := conversation.LoadFile(convPath)
	if err != nil {
		return nil, nil, err
	}
	plan, err := chaos.LoadPlan(planPath)
	if err != nil {
		return nil, nil, err
	}
	return conv, plan, nil
}

func (t *tool) inject(ctx context.Context, args []string) error {
	fs := t.newFlags("inject")
	convPath := fs.String("conversation", "", "Conversation JSON file")
	planPath := fs.String("plan", "", "Plan file (.yaml or .json)")
	outPath := fs.String("out", "", "Write the mutated conversation here (default: stdout)")
	defaultSeed := fs.Int64("seed", chaos.DefaultSeed, "Seed used when no configuration names one")
	stream := fs.Bool("stream", false, "Process messages one at a time and write JSON lines")
	timeline := fs.Bool("timeline", false, "Include the timeline in the summary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conv, plan, err := loadInputs(*convPath, *planPath)
	if err != nil {
		return err
	}
	inj := t.injector(chaos.WithDefaultSeed(*defaultSeed))

	out := t.stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if *stream {
		if t.remote != nil {
			return errors.New("-stream runs locally only")
		}
		return t.injectStream(ctx, inj, conv, plan, out, *outPath != "")
	}

	var outcome *chaos.Outcome
	if t.remote != nil {
		resp, err := t.remote.Inject(ctx, api.InjectRequest{Conversation: *conv, Configurations: plan.Configurations})
		if err != nil {
			return err
		}
		outcome = &chaos.Outcome{RunID: resp.RunID, Conversation: resp.Conversation, Result: resp.Result, Timeline: resp.Timeline}
	} else {
		outcome, err = inj.Inject(ctx, *conv, plan.Configurations)
		if err != nil {
			return err
		}
	}

	summary := map[string]interface{}{"runId": outcome.RunID, "result": outcome.Result}
	if *timeline {
		summary["timeline"] = outcome.Timeline
	}
	if *outPath == "" {
		summary["conversation"] = outcome.Conversation
		return writeJSON(out, summary)
	}
	if err := writeJSON(out, outcome.Conversation); err != nil {
		return err
	}
	return writeJSON(t.stdout, summary)
}

func (t *tool) injectStream(ctx context.Context, inj *chaos.Injector, conv *conversation.Conversation, plan *chaos.Plan, out io.Writer, separate bool) error {
	stream, err := inj.InjectStream(ctx, conv.Agents, chaos.NewSliceSource(conv.Messages), plan.Configurations)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for msg, err := range stream.All(ctx) {
		if err != nil {
			return err
		}
		if err := enc.Encode(msg); err != nil {
			return err
		}
	}

	result, ok := stream.Result()
	if !ok {
		return errors.New("stream ended without a result")
	}
	summary := map[string]interface{}{"runId": stream.RunID(), "result": result}
	if separate {
		return writeJSON(t.stdout, summary)
	}
	return writeJSON(t.stderr, summary)
}

func (t *tool) validate(ctx context.Context, args []string) error {
	fs := t.newFlags("validate")
	planPath := fs.String("plan", "", "Plan file (.yaml or .json)")
	samples := fs.Int("samples", 1000, "Trials per configuration")
	baseSeed := fs.Int64("base-seed", stats.DefaultBaseSeed, "Base of the per-trial seeds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *planPath == "" {
		return errors.New("-plan is required")
	}

	plan, err := chaos.LoadPlan(*planPath)
	if err != nil {
		return err
	}

	reports := make([]*stats.Report, 0, len(plan.Configurations))
	failed := false
	for _, cfg := range plan.Configurations {
		report, err := t.validateOne(ctx, cfg, *samples, *baseSeed)
		if errors.Is(err, stats.ErrNotStochastic) {
			fmt.Fprintf(t.stderr, "Skipping %s: %v\n", cfg.Mode(), err)
			continue
		}
		if err != nil {
			return err
		}
		if !report.Passed {
			failed = true
		}
		reports = append(reports, report)
	}

	if err := writeJSON(t.stdout, reports); err != nil {
		return err
	}
	if failed {
		fmt.Fprintln(t.stderr, "At least one distribution check failed")
		return errFailed
	}
	return nil
}

func (t *tool) validateOne(ctx context.Context, cfg chaos.Configuration, samples int, baseSeed int64) (*stats.Report, error) {
	if t.remote == nil {
		return stats.ValidateDistribution(ctx, cfg.Parameters, samples,
			stats.WithBaseSeed(baseSeed),
			stats.WithLogger(t.logger),
		)
	}

	report, err := t.remote.Validate(ctx, api.ValidateRequest{Configuration: cfg, Samples: samples, BaseSeed: &baseSeed})
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("%w: %s", stats.ErrNotStochastic, apiErr.Message)
	}
	return report, err
}

func (t *tool) fingerprint(ctx context.Context, args []string) error {
	fs := t.newFlags("fingerprint")
	convPath := fs.String("conversation", "", "Conversation JSON file")
	planPath := fs.String("plan", "", "Plan file (.yaml or .json)")
	defaultSeed := fs.Int64("seed", chaos.DefaultSeed, "Seed used when no configuration names one")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conv, plan, err := loadInputs(*convPath, *planPath)
	if err != nil {
		return err
	}
	outcome, err := t.injector(chaos.WithDefaultSeed(*defaultSeed)).Inject(ctx, *conv, plan.Configurations)
	if err != nil {
		return err
	}
	digest, err := conversation.Digest(conv)
	if err != nil {
		return err
	}

	return writeJSON(t.stdout, map[string]interface{}{
		"fingerprint": outcome.Result.Fingerprint,
		"seed":        outcome.Result.Seed,
		"inputDigest": digest,
	})
}

func (t *tool) rng(args []string) error {
	fs := t.newFlags("rng")
	seed := fs.Int64("seed", 1, "Generator seed")
	n := fs.Int("n", 10, "Number of draws")
	kind := fs.String("kind", "float", "Draw kind: float, int, gaussian, exponential, string, uuid")
	lo := fs.Int("min", 0, "Lower bound for int draws")
	hi := fs.Int("max", 100, "Upper bound for int draws")
	length := fs.Int("length", 8, "Length of string draws")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n < 0 {
		return errors.New("-n must not be negative")
	}

	g := rng.New(*seed)
	for i := 0; i < *n; i++ {
		var (
			v   interface{}
			err error
		)
		switch strings.ToLower(*kind) {
		case "float":
			v = g.Next()
		case "int":
			v, err = g.NextInt(*lo, *hi)
		case "gaussian":
			v = g.Gaussian(0, 1)
		case "exponential":
			v, err = g.Exponential(1)
		case "string":
			v, err = g.String(*length, rng.AlphaNumeric)
		case "uuid":
			v = g.UUID()
		default:
			return fmt.Errorf("unknown draw kind %q", *kind)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(t.stdout, v)
	}
	return nil
}

// openLedger opens the ledger named by a server config file
func openLedger(configPath string) (ledger.Store, error) {
	cfg, err := config.LoadIfExists(configPath)
	if err != nil {
		return nil, err
	}
	return ledger.NewStore(&cfg.Ledger)
}

func (t *tool) runs(ctx context.Context, args []string) error {
	fs := t.newFlags("runs")
	configPath := fs.String("config", "config.yaml", "Server configuration naming the ledger")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if t.remote != nil {
		if fp := fs.Arg(0); fp != "" {
			rec, err := t.remote.GetRun(ctx, fp)
			if err != nil {
				return err
			}
			return writeJSON(t.stdout, rec)
		}
		recs, err := t.remote.ListRuns(ctx)
		if err != nil {
			return err
		}
		return writeJSON(t.stdout, recs)
	}

	store, err := openLedger(*configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if fp := fs.Arg(0); fp != "" {
		rec, err := store.Get(ctx, fp)
		if err != nil {
			return err
		}
		return writeJSON(t.stdout, rec)
	}

	recs, err := store.List(ctx)
	if err != nil {
		return err
	}
	return writeJSON(t.stdout, recs)
}

func (t *tool) replay(ctx context.Context, args []string) error {
	fs := t.newFlags("replay")
	configPath := fs.String("config", "config.yaml", "Server configuration naming the ledger")
	convPath := fs.String("conversation", "", "Conversation JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	fp := fs.Arg(0)
	if fp == "" || *convPath == "" {
		return errors.New("usage: replay -conversation f.json <fingerprint>")
	}

	conv, err := conversation.LoadFile(*convPath)
	if err != nil {
		return err
	}

	var v *ledger.Verification
	if t.remote != nil {
		resp, err := t.remote.Replay(ctx, fp, *conv)
		if err != nil {
			return err
		}
		v = resp.Verification
	} else {
		store, err := openLedger(*configPath)
		if err != nil {
			return err
		}
		defer store.Close()

		v, _, err = ledger.Replay(ctx, store, fp, *conv, chaos.WithLogger(t.logger))
		if err != nil {
			return err
		}
	}
	if err := writeJSON(t.stdout, v); err != nil {
		return err
	}
	if !v.Reproduced {
		fmt.Fprintln(t.stderr, "Run was not reproduced")
		return errFailed
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Conversation Chaos Tool

Usage:
  chaostool [global options] <command> [options]

Global Options:
  -v            Debug logs on stderr
  -server URL   Send inject, validate, runs and replay to a running server
  -timeout      Overall command timeout (default 5m)

Commands:
  inject        -conversation f.json -plan p.yaml [-out o.json] [-seed N] [-stream] [-timeline]
  validate      -plan p.yaml [-samples N] [-base-seed S]
  fingerprint   -conversation f.json -plan p.yaml [-seed N]
  rng           [-seed S] [-n N] [-kind float|int|gaussian|exponential|string|uuid]
  runs          [-config config.yaml] [fingerprint]
  replay        [-config config.yaml] -conversation f.json <fingerprint>

Examples:
  chaostool inject -conversation chat.json -plan plans/lossy.yaml -out chaotic.json
  chaostool validate -plan plans/lossy.yaml -samples 500
  chaostool rng -seed 42 -n 5 -kind int -min 1 -max 6
  chaostool -server http://localhost:8080 runs
`)
}
