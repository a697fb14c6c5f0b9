// Package resource periodically probes external resources (providers, tool
// backends) and exposes a non-blocking availability map guarded by a circuit
// breaker per resource.
package resource

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Probe checks one resource's health. It should return promptly; the
// Monitor runs it on its own ticking goroutine, never on the hot dispatch path.
type Probe func() error

// Monitor tracks resource availability via periodic probes wrapped in a
// circuit breaker, so a resource that starts failing is marked unavailable
// after a few consecutive failures and only re-probed after a cooldown,
// rather than being hammered on every tick.
type Monitor struct {
	mu        sync.RWMutex
	breakers  map[string]*gobreaker.CircuitBreaker
	probes    map[string]Probe
	available map[string]bool
	interval  time.Duration
	stop      chan struct{}
}

// NewMonitor creates a Monitor that probes registered resources every interval.
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		probes:    make(map[string]Probe),
		available: make(map[string]bool),
		interval:  interval,
		stop:      make(chan struct{}),
	}
}

// Register adds a resource with its health probe, defaulting it to available
// until the first probe runs.
func (m *Monitor) Register(resource string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := gobreaker.Settings{
		Name:        resource,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	m.breakers[resource] = gobreaker.NewCircuitBreaker(settings)
	m.probes[resource] = probe
	m.available[resource] = true
}

// IsAvailable is the hot-path, non-blocking read used by the executor's
// dispatch-selection step.
func (m *Monitor) IsAvailable(resource string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	avail, ok := m.available[resource]
	if !ok {
		// An unregistered resource has no known constraint; treat as available.
		return true
	}
	return avail
}

// Start runs the periodic probe loop until ctx-independent Stop is called.
// Probes are run through each resource's circuit breaker so a string of
// failures opens the breaker and short-circuits further probing for its
// cooldown window, during which the resource is reported unavailable.
func (m *Monitor) Start() {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.probeAll()
			}
		}
	}()
}

// Stop halts the probe loop.
func (m *Monitor) Stop() {
	close(m.stop)
}

func (m *Monitor) probeAll() {
	m.mu.RLock()
	resources := make([]string, 0, len(m.probes))
	for r := range m.probes {
		resources = append(resources, r)
	}
	m.mu.RUnlock()

	for _, r := range resources {
		m.mu.RLock()
		breaker := m.breakers[r]
		probe := m.probes[r]
		m.mu.RUnlock()

		_, err := breaker.Execute(func() (any, error) {
			return nil, probe()
		})

		m.mu.Lock()
		m.available[r] = err == nil
		m.mu.Unlock()
	}
}
