// Package health runs periodic liveness probes against the service's
// external dependencies (ledger node, scoring service, database) and keeps a
// snapshot for the health endpoint.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Probe checks one dependency. A nil return means healthy.
type Probe func(ctx context.Context) error

// Config holds monitor settings.
type Config struct {
	CheckInterval time.Duration // default 30s
	ProbeTimeout  time.Duration // default 10s
	FailThreshold int           // consecutive failures before degraded, default 3
}

// Status is the last known state of one dependency.
type Status struct {
	Name             string    `json:"name"`
	Healthy          bool      `json:"healthy"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	LastChecked      time.Time `json:"lastChecked"`
	LastError        string    `json:"lastError,omitempty"`
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(name string, success bool)

// Monitor runs registered probes on a fixed interval. A dependency flips to
// unhealthy only after FailThreshold consecutive failures, so one transient
// blip does not flap the health endpoint.
type Monitor struct {
	cfg       Config
	logger    *zap.Logger
	onMetrics MetricsRecordFunc

	mu     sync.Mutex
	probes map[string]Probe
	states map[string]*Status
}

// New creates a Monitor.
func New(cfg Config, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Monitor{
		cfg:    cfg,
		logger: logger,
		probes: make(map[string]Probe),
		states: make(map[string]*Status),
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (m *Monitor) SetMetricsRecord(fn MetricsRecordFunc) { m.onMetrics = fn }

// Register adds a named dependency probe. Dependencies start healthy until
// proven otherwise.
func (m *Monitor) Register(name string, p Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = p
	m.states[name] = &Status{Name: name, Healthy: true}
}

// Start runs the probe loop until quit is closed.
func (m *Monitor) Start(quit <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckAll(context.Background())
		case <-quit:
			return
		}
	}
}

// CheckAll probes every registered dependency concurrently.
func (m *Monitor) CheckAll(ctx context.Context) {
	m.mu.Lock()
	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			m.checkOne(ctx, name)
		}(name)
	}
	wg.Wait()
}

func (m *Monitor) checkOne(ctx context.Context, name string) {
	m.mu.Lock()
	probe := m.probes[name]
	m.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := probe(probeCtx)
	cancel()

	if m.onMetrics != nil {
		m.onMetrics(name, err == nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[name]
	st.LastChecked = time.Now().UTC()

	if err == nil {
		if !st.Healthy {
			m.logger.Info("dependency recovered", zap.String("dependency", name))
		}
		st.Healthy = true
		st.ConsecutiveFails = 0
		st.LastError = ""
		return
	}

	st.ConsecutiveFails++
	st.LastError = err.Error()
	if st.Healthy && st.ConsecutiveFails >= m.cfg.FailThreshold {
		st.Healthy = false
		m.logger.Warn("dependency degraded",
			zap.String("dependency", name),
			zap.Int("consecutive_fails", st.ConsecutiveFails),
			zap.Error(err),
		)
	}
}

// Snapshot returns the current state of all dependencies, sorted by name.
func (m *Monitor) Snapshot() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Status, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether every dependency is healthy.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.states {
		if !st.Healthy {
			return false
		}
	}
	return true
}
