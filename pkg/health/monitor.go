package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/holo-host/hpos-api/pkg/log"
	"github.com/holo-host/hpos-api/pkg/metrics"
)

type probe struct {
	name    string
	checker Checker
	status  *Status
}

// Monitor runs checkers periodically and reports each dependency as a
// component of the readiness endpoint
type Monitor struct {
	config Config
	probes []*probe
	mu     sync.RWMutex
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewMonitor creates a monitor
func NewMonitor(config Config) *Monitor {
	return &Monitor{
		config: config,
		stopCh: make(chan struct{}),
		logger: log.WithComponent("health"),
	}
}

// Add registers checker under component name. Must be called before Start.
func (m *Monitor) Add(name string, checker Checker) {
	// unready until the first successful check
	m.probes = append(m.probes, &probe{name: name, checker: checker, status: &Status{}})
	metrics.RegisterComponent(name, false, "not checked yet")
}

// Start checks every dependency once and then every Interval
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.CheckAll(context.Background())

		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CheckAll(context.Background())
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop ends the loop and waits for it
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// CheckAll runs every checker once
func (m *Monitor) CheckAll(ctx context.Context) {
	for _, p := range m.probes {
		checkCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
		result := p.checker.Check(checkCtx)
		cancel()

		m.mu.Lock()
		wasHealthy := p.status.Healthy
		p.status.Update(result, m.config)
		healthy := p.status.Healthy
		m.mu.Unlock()

		if wasHealthy != healthy {
			m.logger.Warn().
				Str("component", p.name).
				Bool("healthy", healthy).
				Str("message", result.Message).
				Msg("Dependency health changed")
		}
		metrics.UpdateComponent(p.name, healthy, result.Message)
	}
}

// Status returns the current status of a component
func (m *Monitor) Status(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.probes {
		if p.name == name {
			return *p.status, true
		}
	}
	return Status{}, false
}
