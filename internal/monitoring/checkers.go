package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// slowPing is the ledger round trip above which the ledger counts as degraded
const slowPing = 100 * time.Millisecond

// Pinger is the slice of a run ledger the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LedgerHealthChecker pings the run ledger. It is critical: without the
// ledger, runs cannot be recorded or replayed.
type LedgerHealthChecker struct {
	ledger  Pinger
	backend string
}

func NewLedgerHealthChecker(ledger Pinger, backend string) *LedgerHealthChecker {
	return &LedgerHealthChecker{ledger: ledger, backend: backend}
}

func (l *LedgerHealthChecker) Name() string { return "ledger" }
func (l *LedgerHealthChecker) IsCritical() bool { return true }

func (l *LedgerHealthChecker) Check(ctx context.Context) HealthCheck {
	start := time.Now()
	err := l.ledger.Ping(ctx)
	elapsed := time.Since(start)

	details := map[string]interface{}{"backend": l.backend}
	if err != nil {
		details["error"] = err.Error()
		return HealthCheck{
			Status:  HealthStatusUnhealthy,
			Message: fmt.Sprintf("Ledger unreachable: %v", err),
			Details: details,
		}
	}

	details["ping_time_ms"] = elapsed.Milliseconds()
	if elapsed > slowPing {
		return HealthCheck{Status: HealthStatusDegraded, Message: "Ledger is slow", Details: details}
	}
	return HealthCheck{Status: HealthStatusHealthy, Message: "Ledger is operational", Details: details}
}

// DeterminismChecker runs a self-test that proves the engine still reproduces
// known outputs. A failing self-test means every recorded fingerprint is suspect.
type DeterminismChecker struct {
	selfTest func() error
}

func NewDeterminismChecker(selfTest func() error) *DeterminismChecker {
	return &DeterminismChecker{selfTest: selfTest}
}

func (d *DeterminismChecker) Name() string { return "determinism" }
func (d *DeterminismChecker) IsCritical() bool { return true }

func (d *DeterminismChecker) Check(ctx context.Context) HealthCheck {
	if err := d.selfTest(); err != nil {
		return HealthCheck{Status: HealthStatusUnhealthy, Message: err.Error()}
	}
	return HealthCheck{Status: HealthStatusHealthy, Message: "Generator reproduces reference values"}
}

// RuntimeHealthChecker watches heap size and goroutine count. Crossing 80% of
// a limit degrades, crossing the limit itself is unhealthy. A zero limit is
// not checked.
type RuntimeHealthChecker struct {
	maxHeapMB     uint64
	maxGoroutines int
}

func NewRuntimeHealthChecker(maxHeapMB uint64, maxGoroutines int) *RuntimeHealthChecker {
	return &RuntimeHealthChecker{maxHeapMB: maxHeapMB, maxGoroutines: maxGoroutines}
}

func (r *RuntimeHealthChecker) Name() string { return "runtime" }
func (r *RuntimeHealthChecker) IsCritical() bool { return false }

func (r *RuntimeHealthChecker) Check(ctx context.Context) HealthCheck {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	heapMB := m.HeapAlloc / 1024 / 1024
	goroutines := runtime.NumGoroutine()

	check := HealthCheck{
		Status:  HealthStatusHealthy,
		Message: "Runtime usage is normal",
		Details: map[string]interface{}{
			"heap_mb":         heapMB,
			"sys_mb":          m.Sys / 1024 / 1024,
			"num_gc":          m.NumGC,
			"goroutines":      goroutines,
			"heap_limit_mb":   r.maxHeapMB,
			"goroutine_limit": r.maxGoroutines,
		},
	}

	grade(&check, "heap", float64(heapMB), float64(r.maxHeapMB))
	grade(&check, "goroutine count", float64(goroutines), float64(r.maxGoroutines))
	return check
}

// grade worsens check when value nears or exceeds limit
func grade(check *HealthCheck, what string, value, limit float64) {
	if limit <= 0 {
		return
	}
	switch {
	case value > limit:
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("%s over limit (%.0f > %.0f)", what, value, limit)
	case value > limit*0.8 && check.Status == HealthStatusHealthy:
		check.Status = HealthStatusDegraded
		check.Message = fmt.Sprintf("%s is high (%.0f of %.0f)", what, value, limit)
	}
}
