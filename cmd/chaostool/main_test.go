package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"conversation-chaos/internal/api"
	"conversation-chaos/internal/ledger"
	"conversation-chaos/internal/testutil"
)

const lossyPlan = `
name: lossy
configurations:
  - mode: message-loss
    seed: 7
    parameters:
      loss_rate: 0.3
`

func writeInputs(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	data, err := json.Marshal(testutil.Conversation(20, 3))
	if err != nil {
		t.Fatalf("Failed to marshal conversation: %v", err)
	}
	convPath := filepath.Join(dir, "conversation.json")
	if err := os.WriteFile(convPath, data, 0644); err != nil {
		t.Fatalf("Failed to write conversation: %v", err)
	}

	planPath := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(planPath, []byte(lossyPlan), 0644); err != nil {
		t.Fatalf("Failed to write plan: %v", err)
	}
	return convPath, planPath
}

func runTool(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsage(t *testing.T) {
	if code, _, stderr := runTool(); code != 2 || !strings.Contains(stderr, "Commands:") {
		t.Errorf("Expected usage with exit 2, got %d: %s", code, stderr)
	}
	if code, _, stderr := runTool("explode"); code != 2 || !strings.Contains(stderr, "Unknown command") {
		t.Errorf("Expected unknown command with exit 2, got %d: %s", code, stderr)
	}
	if code, stdout, _ := runTool("help"); code != 0 || !strings.Contains(stdout, "chaostool") {
		t.Errorf("Expected help on stdout, got %d", code)
	}
}

func TestInjectIsReproducible(t *testing.T) {
	convPath, planPath := writeInputs(t)

	code, first, stderr := runTool("inject", "-conversation", convPath, "-plan", planPath)
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}
	_, second, _ := runTool("inject", "-conversation", convPath, "-plan", planPath)
	if first != second {
		t.Error("Expected identical output for identical inputs")
	}

	var out struct {
		Result struct {
			Seed        int64  `json:"seed"`
			Fingerprint string `json:"fingerprint"`
		} `json:"result"`
		Conversation struct {
			Messages []json.RawMessage `json:"messages"`
		} `json:"conversation"`
	}
	if err := json.Unmarshal([]byte(first), &out); err != nil {
		t.Fatalf("Failed to decode output: %v", err)
	}
	if out.Result.Seed != 7 || out.Result.Fingerprint == "" {
		t.Errorf("Expected seed 7 with a fingerprint, got %+v", out.Result)
	}
	if len(out.Conversation.Messages) >= 20 {
		t.Errorf("Expected some messages lost, got %d", len(out.Conversation.Messages))
	}
}

func TestInjectToFileAndStream(t *testing.T) {
	convPath, planPath := writeInputs(t)
	outPath := filepath.Join(t.TempDir(), "out.json")

	code, summary, stderr := runTool("inject", "-conversation", convPath, "-plan", planPath, "-out", outPath)
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}
	if strings.Contains(summary, `"conversation"`) {
		t.Error("Expected summary without the conversation when -out is set")
	}
	written, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}

	var batch struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(written, &batch); err != nil {
		t.Fatalf("Failed to decode output file: %v", err)
	}

	code, lines, stderr := runTool("inject", "-stream", "-conversation", convPath, "-plan", planPath)
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}
	streamed := strings.Split(strings.TrimSpace(lines), "\n")
	if len(streamed) != len(batch.Messages) {
		t.Errorf("Expected %d streamed messages, got %d", len(batch.Messages), len(streamed))
	}
	if !strings.Contains(stderr, `"fingerprint"`) {
		t.Errorf("Expected stream summary on stderr, got %s", stderr)
	}
}

func TestInjectErrors(t *testing.T) {
	convPath, _ := writeInputs(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing plan", []string{"inject", "-conversation", convPath}},
		{"unreadable plan", []string{"inject", "-conversation", convPath, "-plan", "/nonexistent/plan.yaml"}},
		{"bad flag", []string{"inject", "-bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runTool(tt.args...); code == 0 {
				t.Error("Expected non-zero exit")
			}
		})
	}
}

func TestFingerprintMatchesInject(t *testing.T) {
	convPath, planPath := writeInputs(t)

	_, injected, _ := runTool("inject", "-conversation", convPath, "-plan", planPath)
	code, printed, stderr := runTool("fingerprint", "-conversation", convPath, "-plan", planPath)
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}

	var a struct {
		Result struct {
			Fingerprint string `json:"fingerprint"`
		} `json:"result"`
	}
	var b struct {
		Fingerprint string `json:"fingerprint"`
		InputDigest string `json:"inputDigest"`
	}
	json.Unmarshal([]byte(injected), &a)
	if err := json.Unmarshal([]byte(printed), &b); err != nil {
		t.Fatalf("Failed to decode fingerprint: %v", err)
	}
	if a.Result.Fingerprint != b.Fingerprint {
		t.Errorf("Expected %s, got %s", a.Result.Fingerprint, b.Fingerprint)
	}
	if b.InputDigest == "" {
		t.Error("Expected an input digest")
	}
}

func TestValidate(t *testing.T) {
	_, planPath := writeInputs(t)

	code, stdout, stderr := runTool("validate", "-plan", planPath, "-samples", "300")
	if code != 0 {
		t.Fatalf("Expected passing check, got %d: %s", code, stderr)
	}
	var reports []map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &reports); err != nil {
		t.Fatalf("Failed to decode reports: %v", err)
	}
	if len(reports) != 1 || reports[0]["passed"] != true {
		t.Errorf("Expected one passing report, got %v", reports)
	}

	if code, _, _ := runTool("validate"); code == 0 {
		t.Error("Expected failure without -plan")
	}
}

func TestRNG(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		lines int
	}{
		{"floats", []string{"rng", "-seed", "42", "-n", "5"}, 5},
		{"ints", []string{"rng", "-seed", "42", "-n", "3", "-kind", "int", "-min", "1", "-max", "6"}, 3},
		{"strings", []string{"rng", "-n", "2", "-kind", "string", "-length", "4"}, 2},
		{"uuids", []string{"rng", "-n", "1", "-kind", "uuid"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runTool(tt.args...)
			if code != 0 {
				t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
			}
			if got := len(strings.Fields(stdout)); got != tt.lines {
				t.Errorf("Expected %d draws, got %d", tt.lines, got)
			}
		})
	}

	_, a, _ := runTool("rng", "-seed", "9", "-n", "4")
	_, b, _ := runTool("rng", "-seed", "9", "-n", "4")
	if a != b {
		t.Error("Expected the same seed to produce the same draws")
	}

	if code, _, _ := runTool("rng", "-kind", "dice"); code == 0 {
		t.Error("Expected failure for an unknown kind")
	}
}

func TestLedgerCommands(t *testing.T) {
	convPath, _ := writeInputs(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := "ledger:\n  backend: badger\n  data_path: " + filepath.Join(t.TempDir(), "ledger") + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	code, stdout, stderr := runTool("runs", "-config", cfgPath)
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}
	if strings.TrimSpace(stdout) != "[]" {
		t.Errorf("Expected an empty ledger, got %s", stdout)
	}

	if code, _, _ := runTool("runs", "-config", cfgPath, "deadbeef"); code == 0 {
		t.Error("Expected failure for an unknown fingerprint")
	}
	if code, _, _ := runTool("replay", "-config", cfgPath, "-conversation", convPath, "deadbeef"); code == 0 {
		t.Error("Expected failure replaying an unknown fingerprint")
	}
	if code, _, _ := runTool("replay", "-config", cfgPath); code == 0 {
		t.Error("Expected usage failure without a fingerprint")
	}
}

func TestRemoteCommands(t *testing.T) {
	cfg := testutil.TestConfig()
	store, err := ledger.NewStore(&cfg.Ledger)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	defer store.Close()
	srv := httptest.NewServer(api.NewRESTHandler(cfg, api.Dependencies{Ledger: store, Logger: testutil.TestLogger()}).SetupRoutes())
	defer srv.Close()

	convPath, planPath := writeInputs(t)

	_, local, _ := runTool("inject", "-conversation", convPath, "-plan", planPath)
	code, remote, stderr := runTool("-server", srv.URL, "inject", "-conversation", convPath, "-plan", planPath)
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}

	var a, b struct {
		Result struct {
			Fingerprint string `json:"fingerprint"`
		} `json:"result"`
	}
	json.Unmarshal([]byte(local), &a)
	json.Unmarshal([]byte(remote), &b)
	if a.Result.Fingerprint == "" || a.Result.Fingerprint != b.Result.Fingerprint {
		t.Fatalf("Expected remote fingerprint %q to match local, got %q", a.Result.Fingerprint, b.Result.Fingerprint)
	}

	code, listed, stderr := runTool("-server", srv.URL, "runs")
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(listed, b.Result.Fingerprint) {
		t.Errorf("Expected the remote run to be listed, got %s", listed)
	}

	code, _, stderr = runTool("-server", srv.URL, "replay", "-conversation", convPath, b.Result.Fingerprint)
	if code != 0 {
		t.Errorf("Expected the run to reproduce remotely, got %d: %s", code, stderr)
	}

	code, _, stderr = runTool("-server", srv.URL, "validate", "-plan", planPath, "-samples", "300")
	if code != 0 {
		t.Errorf("Expected the remote check to pass, got %d: %s", code, stderr)
	}

	if code, _, _ := runTool("-server", srv.URL, "inject", "-stream", "-conversation", convPath, "-plan", planPath); code == 0 {
		t.Error("Expected -stream to be refused remotely")
	}
	if code, _, _ := runTool("-server", "ftp://nowhere", "runs"); code != 2 {
		t.Errorf("Expected exit 2 for a bad server URL, got %d", code)
	}
}
