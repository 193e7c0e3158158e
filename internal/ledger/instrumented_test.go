package ledger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"conversation-chaos/internal/config"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/monitoring"
	"conversation-chaos/internal/tracing"
)

func TestInstrumentedStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewInstrumentedStore(newBadgerStore(t), nil, nil, nil)
	})
}

func TestInstrumentedStoreReports(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	ts := tracing.NewWithSpanProcessor(config.DefaultConfig().Tracing, recorder)
	defer ts.Close(ctx)

	var buf bytes.Buffer
	logCfg := logging.TestLoggingConfig()
	logCfg.Level = "debug"
	logCfg.Format = "json"
	logger := logging.NewWithWriter(&logCfg, &buf)
	metrics := monitoring.NewChaosMetrics()

	store := NewInstrumentedStore(newBadgerStore(t), logger, metrics, ts)
	if Backend(store) != "badger" {
		t.Errorf("Expected backend badger, got %s", Backend(store))
	}

	rec := sampleRecord(t, 1)
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("Expected ErrRecordNotFound, got %v", err)
	}
	if err := store.Put(ctx, &Record{}); err == nil {
		t.Fatal("Expected an error for an empty record")
	}

	if got := promtestutil.ToFloat64(metrics.LedgerOperations.WithLabelValues("put", "success")); got != 1 {
		t.Errorf("Expected 1 successful put, got %v", got)
	}
	if got := promtestutil.ToFloat64(metrics.LedgerOperations.WithLabelValues("get", "success")); got != 1 {
		t.Errorf("Expected a miss to count as success, got %v", got)
	}
	if got := promtestutil.ToFloat64(metrics.LedgerOperations.WithLabelValues("put", "error")); got != 1 {
		t.Errorf("Expected 1 failed put, got %v", got)
	}

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("Expected 3 spans, got %d", len(spans))
	}
	if spans[0].Name() != "ledger.put" || spans[1].Name() != "ledger.get" {
		t.Errorf("Unexpected span names %s, %s", spans[0].Name(), spans[1].Name())
	}
	if spans[1].Status().Code == codes.Error {
		t.Error("Expected a miss not to mark the span as failed")
	}
	if spans[2].Status().Code != codes.Error {
		t.Error("Expected the failed put to mark its span")
	}

	if !strings.Contains(buf.String(), "Ledger operation failed") {
		t.Errorf("Expected the failure to be logged, got %s", buf.String())
	}
}
