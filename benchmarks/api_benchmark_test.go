package benchmarks

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"conversation-chaos/internal/api"
	"conversation-chaos/internal/chaos"
	"conversation-chaos/internal/ledger"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/monitoring"
	"conversation-chaos/internal/testutil"
)

// API Benchmarks

func setupBenchmarkAPI(b *testing.B) http.Handler {
	b.Helper()
	cfg := testutil.TestConfig()

	store, err := ledger.NewStore(&cfg.Ledger)
	if err != nil {
		b.Fatalf("Failed to create ledger: %v", err)
	}
	b.Cleanup(func() { store.Close() })

	handler := api.NewRESTHandler(cfg, api.Dependencies{
		Ledger:  store,
		Logger:  logging.Discard(),
		Metrics: monitoring.NewChaosMetrics(),
	})
	return handler.SetupRoutes()
}

func encodeBody(b *testing.B, v interface{}) []byte {
	b.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		b.Fatalf("Failed to encode request: %v", err)
	}
	return data
}

func serve(b *testing.B, router http.Handler, method, path string, body []byte, want int) {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != want {
		b.Fatalf("Expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func BenchmarkAPI_Inject(b *testing.B) {
	router := setupBenchmarkAPI(b)
	plan := []chaos.Configuration{{Seed: chaos.Int64(5), Parameters: chaos.MessageLoss{LossRate: 0.2}}}
	record := false

	for _, size := range []struct {
		name     string
		messages int
	}{{"small", 10}, {"medium", 200}, {"large", 2000}} {
		body := encodeBody(b, api.InjectRequest{
			Conversation:   testutil.Conversation(size.messages, 4),
			Configurations: plan,
			Record:         &record,
		})

		b.Run(size.name, func(b *testing.B) {
			b.SetBytes(int64(len(body)))
			for i := 0; i < b.N; i++ {
				serve(b, router, http.MethodPost, "/api/v1/inject", body, http.StatusOK)
			}
		})
	}
}

func BenchmarkAPI_InjectRecorded(b *testing.B) {
	router := setupBenchmarkAPI(b)
	conv := testutil.Conversation(100, 3)

	bodies := make([][]byte, 128)
	for i := range bodies {
		bodies[i] = encodeBody(b, api.InjectRequest{
			Conversation:   conv,
			Configurations: []chaos.Configuration{{Seed: chaos.Int64(int64(i + 1)), Parameters: chaos.MessageLoss{LossRate: 0.2}}},
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serve(b, router, http.MethodPost, "/api/v1/inject", bodies[i%len(bodies)], http.StatusOK)
	}
}

func BenchmarkAPI_Validate(b *testing.B) {
	router := setupBenchmarkAPI(b)
	body := encodeBody(b, api.ValidateRequest{
		Configuration: chaos.Configuration{Parameters: chaos.MessageLoss{LossRate: 0.4}},
		Samples:       100,
	})

	for i := 0; i < b.N; i++ {
		serve(b, router, http.MethodPost, "/api/v1/validate", body, http.StatusOK)
	}
}

func BenchmarkAPI_Health(b *testing.B) {
	router := setupBenchmarkAPI(b)
	for i := 0; i < b.N; i++ {
		serve(b, router, http.MethodGet, "/health", nil, http.StatusOK)
	}
}

func BenchmarkAPI_Inject_Concurrent(b *testing.B) {
	router := setupBenchmarkAPI(b)
	record := false
	body := encodeBody(b, api.InjectRequest{
		Conversation:   testutil.Conversation(50, 3),
		Configurations: []chaos.Configuration{{Parameters: chaos.Reorder{WindowSize: 4, MaxDisplacement: 2}}},
		Record:         &record,
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/inject", bytes.NewReader(body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				b.Errorf("Expected status 200, got %d", rr.Code)
				return
			}
		}
	})
}
