package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/nalvarez/comanda/internal/logging"
)

// Pinger probes remote reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor watches connectivity and triggers a reconciliation pass on every
// transition from unreachable to reachable.
type Monitor struct {
	pinger     Pinger
	reconciler *Reconciler
	interval   time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.RWMutex
	running  bool
	online   bool
	lastPass *Result
}

// NewMonitor creates a connectivity monitor. The monitor starts offline so
// the first successful probe drains anything queued before startup.
func NewMonitor(pinger Pinger, reconciler *Reconciler, interval time.Duration) *Monitor {
	return &Monitor{
		pinger:     pinger,
		reconciler: reconciler,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the probe loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx)

	logging.Info("connectivity monitor started", logging.Fields{"interval": m.interval.String()})
}

// Stop stops the probe loop and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	logging.Info("connectivity monitor stopped")
}

// Online reports the last observed reachability state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// LastPass returns the result of the most recent reconciliation pass.
func (m *Monitor) LastPass() *Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPass
}

// TriggerNow runs a reconciliation pass immediately, regardless of the
// probe schedule.
func (m *Monitor) TriggerNow(ctx context.Context) (*Result, error) {
	result, err := m.reconciler.Reconcile(ctx)
	if err != nil {
		return result, err
	}
	m.mu.Lock()
	m.lastPass = result
	m.mu.Unlock()
	return result, nil
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// probe checks reachability and reconciles on an offline to online
// transition.
func (m *Monitor) probe(ctx context.Context) {
	err := m.pinger.Ping(ctx)
	nowOnline := err == nil

	m.mu.Lock()
	wasOnline := m.online
	m.online = nowOnline
	m.mu.Unlock()

	if wasOnline == nowOnline {
		return
	}
	logging.Info("connectivity changed", logging.Fields{"online": nowOnline})

	if !nowOnline {
		return
	}
	if _, err := m.TriggerNow(ctx); err != nil {
		logging.Error("reconciliation after reconnect failed", err)
	}
}
