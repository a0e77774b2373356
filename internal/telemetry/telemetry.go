// Package telemetry collects per-step diagnostics of the contact core so
// operators can watch the stiffness feedback and contact activity without
// attaching a debugger to the solver coupling.
package telemetry

import (
	"log"
	"sync"
	"time"
)

// StepRecord captures the observable state of one physical timestep.
type StepRecord struct {
	Step        uint64
	SimTime     float64
	Iterations  int
	Contacts    int
	MinDistance float64
	Stiffness   float64
	Friction    bool
}

// Manager keeps a bounded window of step records plus running counters and
// periodically prints a summary. Recording is cheap enough to stay enabled in
// production runs.
type Manager struct {
	enabled    bool
	records    []StepRecord
	maxEntries int
	mutex      sync.RWMutex

	counters      map[string]int
	lastPrint     time.Time
	printInterval time.Duration
	logger        *log.Logger
}

func NewManager(logger *log.Logger) *Manager {
	return &Manager{
		enabled:       true,
		maxEntries:    200,
		counters:      make(map[string]int),
		lastPrint:     time.Now(),
		printInterval: 2 * time.Second,
		logger:        logger,
	}
}

// SetEnabled toggles collection at runtime.
func (m *Manager) SetEnabled(enabled bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.enabled = enabled
}

// RecordStep stores one step record and bumps the counters.
func (m *Manager) RecordStep(rec StepRecord) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !m.enabled {
		return
	}

	m.records = append(m.records, rec)
	if len(m.records) > m.maxEntries {
		m.records = m.records[len(m.records)-m.maxEntries:]
	}

	m.counters["steps"]++
	if rec.Contacts > 0 {
		m.counters["contact_steps"]++
	}
	if rec.Friction {
		m.counters["friction_steps"]++
	}

	if time.Since(m.lastPrint) >= m.printInterval {
		m.printSummary()
		m.lastPrint = time.Now()
	}
}

// RecordFallback counts a recoverable model fallback (e.g. a discarded
// friction jacobian).
func (m *Manager) RecordFallback() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.counters["hessian_fallbacks"]++
}

// Counter returns the current value of a named counter.
func (m *Manager) Counter(name string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.counters[name]
}

// Recent returns a copy of the buffered records.
func (m *Manager) Recent() []StepRecord {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]StepRecord, len(m.records))
	copy(out, m.records)
	return out
}

// printSummary is called with the mutex held.
func (m *Manager) printSummary() {
	if len(m.records) == 0 {
		return
	}
	last := m.records[len(m.records)-1]
	m.logger.Printf("[Telemetry] steps: %d | contact steps: %d | fallbacks: %d | latest min_dist: %.6f | k: %.3e",
		m.counters["steps"], m.counters["contact_steps"], m.counters["hessian_fallbacks"],
		last.MinDistance, last.Stiffness)
}
