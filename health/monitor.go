package health

import (
	"slices"
	"sync"
	"time"
)

// Source reports the current health of one component.
type Source func() Status

// Monitor aggregates named statuses. A name is either pushed with Update or
// pulled from a Source on every read.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	sources  map[string]Source
}

// NewMonitor creates an empty Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		sources:  make(map[string]Source),
	}
}

func stamp(name string, s Status) Status {
	s.Component = name
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return s
}

// Update records status under name, replacing any Source tracked for it.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, name)
	m.statuses[name] = stamp(name, status)
}

// Track polls src whenever name is read.
func (m *Monitor) Track(name string, src Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	m.sources[name] = src
}

// Remove stops tracking name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.sources, name)
}

// Get returns the status of name.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	status, ok := m.statuses[name]
	src := m.sources[name]
	m.mu.RUnlock()

	if src != nil {
		return stamp(name, src()), true
	}
	return status, ok
}

// Names returns the tracked names, sorted.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.statuses)+len(m.sources))
	for name := range m.statuses {
		names = append(names, name)
	}
	for name := range m.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// AggregateHealth combines every tracked status under systemName. Sources are
// called without the monitor lock held.
func (m *Monitor) AggregateHealth(systemName string) Status {
	names := m.Names()
	subs := make([]Status, 0, len(names))
	for _, name := range names {
		if s, ok := m.Get(name); ok {
			subs = append(subs, s)
		}
	}
	return Aggregate(systemName, subs)
}
