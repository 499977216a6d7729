// health.go - Health monitoring for the daemon's collaborators
package main

import (
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

// ComponentHealth is the latest observation for one collaborator: the
// account store, the ledger node, the relay or the proving key host.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message"`
	LastCheck time.Time     `json:"lastCheck"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// SystemHealth is the overall daemon health.
type SystemHealth struct {
	OverallStatus HealthStatus      `json:"overallStatus"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    []ComponentHealth `json:"components"`
	Uptime        time.Duration     `json:"uptime"`
	Version       string            `json:"version"`
}

// HealthChecker runs registered component probes on demand.
type HealthChecker struct {
	mu         sync.Mutex
	components []string
	checkers   map[string]func() error
	startTime  time.Time
	version    string
}

// NewHealthChecker creates a health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checkers:  make(map[string]func() error),
		startTime: time.Now(),
		version:   version,
	}
}

// RegisterComponent registers a probe. Probes must be cheap; they run on
// every health request.
func (hc *HealthChecker) RegisterComponent(name string, checker func() error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if _, exists := hc.checkers[name]; !exists {
		hc.components = append(hc.components, name)
	}
	hc.checkers[name] = checker
}

// CheckHealth probes every component and aggregates the result. Any
// unhealthy component makes the system unhealthy.
func (hc *HealthChecker) CheckHealth() *SystemHealth {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	overall := Healthy
	components := make([]ComponentHealth, 0, len(hc.components))
	for _, name := range hc.components {
		start := time.Now()
		err := hc.checkers[name]()
		component := ComponentHealth{
			Name:      name,
			Status:    Healthy,
			Message:   "OK",
			LastCheck: time.Now(),
			Latency:   time.Since(start),
		}
		if err != nil {
			component.Status = Unhealthy
			component.Message = err.Error()
			overall = Unhealthy
		}
		components = append(components, component)
	}

	return &SystemHealth{
		OverallStatus: overall,
		Timestamp:     time.Now(),
		Components:    components,
		Uptime:        time.Since(hc.startTime),
		Version:       hc.version,
	}
}
