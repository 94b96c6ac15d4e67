package logdedup

import (
	"sync"

	"flairnode-agent/internal/clock"
	"flairnode-agent/internal/eventbus"
)

// Manager hands out one Logger per module and runs the shared cleanup
// sweep across all of them.
type Manager struct {
	policy Policy
	clock  clock.Clock
	bus    eventbus.Publisher

	mu      sync.Mutex
	loggers map[string]*Logger
	order   []*Logger
}

func NewManager(policy Policy, clk clock.Clock, bus eventbus.Publisher) *Manager {
	return &Manager{
		policy:  policy,
		clock:   clk,
		bus:     bus,
		loggers: make(map[string]*Logger),
	}
}

// For returns the Logger for module, creating it on first use.
func (m *Manager) For(module string) *Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loggers[module]; ok {
		return l
	}
	l := newLogger(module, m.policy, m.clock, m.bus)
	m.loggers[module] = l
	m.order = append(m.order, l)
	return l
}

func (m *Manager) Sweep() {
	m.mu.Lock()
	loggers := make([]*Logger, len(m.order))
	copy(loggers, m.order)
	m.mu.Unlock()

	for _, l := range loggers {
		l.sweep()
	}
}

// Tracked reports how many distinct streams are currently remembered.
func (m *Manager) Tracked() int {
	m.mu.Lock()
	loggers := make([]*Logger, len(m.order))
	copy(loggers, m.order)
	m.mu.Unlock()

	total := 0
	for _, l := range loggers {
		total += l.tracked()
	}
	return total
}
