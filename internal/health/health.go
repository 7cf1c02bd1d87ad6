// Package health provides a registry of named subsystem health checkers.
package health

import (
	"context"
	"sync"
	"time"
)

// Status reports the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Report aggregates every subsystem status for a single check run.
type Report struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checkedAt"`
	Checks    []Status  `json:"checks"`
}

// Checker checks the health of one subsystem.
type Checker func(ctx context.Context) Status

// OK is a convenience for checkers with nothing to measure.
func OK(name string) Status { return Status{Name: name, Healthy: true} }

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates a new health check registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named health checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// Check runs all registered checkers and returns the aggregate report.
func (r *Registry) Check(ctx context.Context) Report {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	rep := Report{Healthy: true, CheckedAt: time.Now().UTC()}
	rep.Checks = make([]Status, len(checkers))

	for i, nc := range checkers {
		rep.Checks[i] = nc.check(ctx)
		if !rep.Checks[i].Healthy {
			rep.Healthy = false
		}
	}

	return rep
}
