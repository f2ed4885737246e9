package system

import (
	"context"
	"fmt"
	"sync"
)

// Manager owns the registered services and starts and stops them in a
// deterministic order: registration order on start, reverse on stop.
type Manager struct {
	mu       sync.Mutex
	services []Service
	byName   map[string]bool
	started  bool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{byName: make(map[string]bool)}
}

// Register adds a service. It fails on duplicate names or after Start.
func (m *Manager) Register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("cannot register %s: manager already started", svc.Name())
	}
	if m.byName[svc.Name()] {
		return fmt.Errorf("service %s already registered", svc.Name())
	}
	m.byName[svc.Name()] = true
	m.services = append(m.services, svc)
	return nil
}

// Start starts every registered service. On failure, already-started services
// are stopped in reverse order before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	for i, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = m.services[j].Stop(ctx)
			}
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
	}
	m.started = true
	return nil
}

// Stop stops every service in reverse registration order, collecting the
// first error but attempting all stops.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	var firstErr error
	for i := len(m.services) - 1; i >= 0; i-- {
		if err := m.services[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", m.services[i].Name(), err)
		}
	}
	m.started = false
	return firstErr
}
