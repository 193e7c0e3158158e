package monitoring

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// severity orders statuses so the worst one can be picked
func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusDegraded:
		return 1
	case HealthStatusUnhealthy:
		return 2
	default:
		return 0
	}
}

// HealthCheck is the result of one checker
type HealthCheck struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Duration  time.Duration          `json:"duration_ms"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Critical  bool                   `json:"critical"`
}

// HealthResponse is what /health returns
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Version   string                 `json:"version"`
	Uptime    time.Duration          `json:"uptime_seconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]HealthCheck `json:"checks"`
	Summary   HealthSummary          `json:"summary"`
	Runtime   RuntimeInfo            `json:"runtime"`
}

// HealthSummary counts checks by status. Critical counts critical checks
// that are unhealthy.
type HealthSummary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
	Critical  int `json:"critical"`
}

func (s *HealthSummary) add(check HealthCheck) {
	s.Total++
	switch check.Status {
	case HealthStatusHealthy:
		s.Healthy++
	case HealthStatusDegraded:
		s.Degraded++
	case HealthStatusUnhealthy:
		s.Unhealthy++
		if check.Critical {
			s.Critical++
		}
	}
}

// RuntimeInfo describes the process serving the report
type RuntimeInfo struct {
	GoVersion    string    `json:"go_version"`
	NumCPU       int       `json:"num_cpu"`
	NumGoroutine int       `json:"num_goroutine"`
	HeapMB       uint64    `json:"heap_mb"`
	StartTime    time.Time `json:"start_time"`
}

// HealthChecker is one named check
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) HealthCheck
	IsCritical() bool
}

// HealthManager runs every registered checker and folds the results into one
// status. Any unhealthy check makes the whole report unhealthy.
type HealthManager struct {
	mu          sync.RWMutex
	checkers    []HealthChecker
	startTime   time.Time
	version     string
	lastResults map[string]HealthCheck
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		startTime:   time.Now(),
		version:     version,
		lastResults: make(map[string]HealthCheck),
	}
}

func (hm *HealthManager) RegisterChecker(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers = append(hm.checkers, checker)
}

// CheckHealth runs all checkers in registration order
func (hm *HealthManager) CheckHealth(ctx context.Context) HealthResponse {
	hm.mu.RLock()
	checkers := append([]HealthChecker(nil), hm.checkers...)
	hm.mu.RUnlock()

	resp := HealthResponse{
		Status:  HealthStatusHealthy,
		Version: hm.version,
		Checks:  make(map[string]HealthCheck, len(checkers)),
	}

	for _, checker := range checkers {
		check := runChecker(ctx, checker)
		resp.Checks[checker.Name()] = check
		resp.Summary.add(check)
		if check.Status.severity() > resp.Status.severity() {
			resp.Status = check.Status
		}
	}

	hm.mu.Lock()
	for name, check := range resp.Checks {
		hm.lastResults[name] = check
	}
	hm.mu.Unlock()

	resp.Timestamp = time.Now()
	resp.Uptime = resp.Timestamp.Sub(hm.startTime)
	resp.Runtime = hm.runtimeInfo()
	return resp
}

func runChecker(ctx context.Context, checker HealthChecker) HealthCheck {
	start := time.Now()
	check := checker.Check(ctx)
	check.Name = checker.Name()
	check.Duration = time.Since(start)
	check.Timestamp = time.Now()
	check.Critical = checker.IsCritical()
	return check
}

// LastResults returns a copy of the most recent result of every checker
func (hm *HealthManager) LastResults() map[string]HealthCheck {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	results := make(map[string]HealthCheck, len(hm.lastResults))
	for name, check := range hm.lastResults {
		results[name] = check
	}
	return results
}

func (hm *HealthManager) runtimeInfo() RuntimeInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return RuntimeInfo{
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		HeapMB:       m.HeapAlloc / 1024 / 1024,
		StartTime:    hm.startTime,
	}
}
