package stats

import "sync"

// MockStatsUpdater records counter changes for assertions in tests.
type MockStatsUpdater struct {
	mu     sync.Mutex
	Counts map[string]int
}

func (m *MockStatsUpdater) Incr(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Counts == nil {
		m.Counts = make(map[string]int)
	}
	m.Counts[name]++
}

func (m *MockStatsUpdater) Decr(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Counts == nil {
		m.Counts = make(map[string]int)
	}
	m.Counts[name]--
}

func (m *MockStatsUpdater) RegisterMetric(name string) {}

func (m *MockStatsUpdater) Run() {}

func (m *MockStatsUpdater) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counts[name]
}
