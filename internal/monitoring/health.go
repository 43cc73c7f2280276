// Package monitoring evaluates liveness and readiness probes for the portal's
// dependencies.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status encodes the outcome of a probe.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Result captures a single dependency probe outcome.
type Result struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report aggregates the results of one evaluation. The worst probe decides
// the overall status.
type Report struct {
	Success   bool      `json:"success"`
	Status    Status    `json:"status"`
	Checks    []Result  `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

// Probe is a named dependency check.
type Probe struct {
	Name string
	Run  func(ctx context.Context) Result
}

// Health holds the registered liveness and readiness probes.
type Health struct {
	mu        sync.RWMutex
	liveness  []Probe
	readiness []Probe
	now       func() time.Time
}

// NewHealth constructs an empty probe set.
func NewHealth() *Health {
	return &Health{now: time.Now}
}

// AddLiveness registers a liveness probe. Probes without a name or function are ignored.
func (h *Health) AddLiveness(probe Probe) {
	if probe.Name == "" || probe.Run == nil {
		return
	}
	h.mu.Lock()
	h.liveness = append(h.liveness, probe)
	h.mu.Unlock()
}

// AddReadiness registers a readiness probe. Probes without a name or function are ignored.
func (h *Health) AddReadiness(probe Probe) {
	if probe.Name == "" || probe.Run == nil {
		return
	}
	h.mu.Lock()
	h.readiness = append(h.readiness, probe)
	h.mu.Unlock()
}

// Liveness runs the liveness probes.
func (h *Health) Liveness(ctx context.Context) Report {
	h.mu.RLock()
	probes := append([]Probe(nil), h.liveness...)
	h.mu.RUnlock()
	return h.evaluate(ctx, probes)
}

// Readiness runs the readiness probes.
func (h *Health) Readiness(ctx context.Context) Report {
	h.mu.RLock()
	probes := append([]Probe(nil), h.readiness...)
	h.mu.RUnlock()
	return h.evaluate(ctx, probes)
}

func (h *Health) evaluate(ctx context.Context, probes []Probe) Report {
	if ctx == nil {
		ctx = context.Background()
	}
	report := Report{
		Success:   true,
		Status:    StatusUp,
		Checks:    make([]Result, 0, len(probes)),
		CheckedAt: h.now().UTC(),
	}

	for _, probe := range probes {
		result := runProbe(ctx, probe)
		report.Checks = append(report.Checks, result)
		report.Status = worst(report.Status, result.Status)
	}
	report.Success = report.Status == StatusUp
	return report
}

func runProbe(ctx context.Context, probe Probe) (result Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = Result{Status: StatusDown, Details: fmt.Sprintf("panic: %v", rec)}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		result.Component = probe.Name
	}()

	return probe.Run(ctx)
}

func worst(current, candidate Status) Status {
	switch {
	case current == StatusDown || candidate == StatusDown:
		return StatusDown
	case current == StatusDegraded || candidate == StatusDegraded:
		return StatusDegraded
	default:
		return StatusUp
	}
}

// FromError converts an error into a Result. Timeouts and cancellations
// degrade rather than fail.
func FromError(err error) Result {
	if err == nil {
		return Result{Status: StatusUp}
	}
	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}
	return Result{Status: status, Details: err.Error()}
}
