package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"

	"conversation-chaos/internal/api"
	"conversation-chaos/internal/chaos"
	"conversation-chaos/internal/testutil"
)

func TestNewServerAndShutdown(t *testing.T) {
	cfg := testutil.TestConfig()

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if srv.GetUptime() < 0 {
		t.Error("Expected a non-negative uptime")
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestNewServerRejectsBadLedger(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Ledger.Backend = "etcd"

	if _, err := NewServer(cfg); err == nil {
		t.Error("Expected an error for an unknown ledger backend")
	}
}

func TestHTTPServerServesAPI(t *testing.T) {
	cfg := testutil.TestConfig()
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go srv.httpServer.Serve(lis)

	base := "http://" + lis.Addr().String()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected health 200, got %d", resp.StatusCode)
	}

	body, _ := json.Marshal(api.InjectRequest{
		Conversation:   testutil.Conversation(8, 2),
		Configurations: []chaos.Configuration{{Seed: chaos.Int64(3), Parameters: chaos.MessageLoss{LossRate: 0.5}}},
	})
	resp, err = http.Post(base+"/api/v1/inject", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/v1/inject failed: %v", err)
	}
	defer resp.Body.Close()

	var out api.InjectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !out.Recorded || out.Result.Fingerprint == "" {
		t.Errorf("Expected a recorded run, got %+v", out.Result)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected metrics 200, got %d", resp.StatusCode)
	}
}
