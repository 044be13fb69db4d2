package resource

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-narrator/metrics"
)

// Manager owns the resource of a single run. Exactly one resource exists per
// Acquire/Release pair; steps only ever see a guarded handle that stops
// working once Release has been called.
type Manager struct {
	factory Factory
	driver  DriverType
	log     log.Logger

	mu     sync.Mutex
	inner  Resource
	handle *guardedResource
}

// NewManager creates a manager that builds resources of the given driver type
func NewManager(factory Factory, driver DriverType, logger log.Logger) *Manager {
	if factory == nil {
		panic("factory cannot be nil")
	}
	if logger == nil {
		logger = log.New()
	}
	return &Manager{
		factory: factory,
		driver:  driver,
		log:     logger.New("component", "resource-manager", "driver", driver),
	}
}

// Driver returns the driver type this manager creates resources with
func (m *Manager) Driver() DriverType {
	return m.driver
}

// Acquire creates and returns a ready-to-use resource. Any creation failure is
// reported as a ResourceUnavailableError.
func (m *Manager) Acquire(ctx context.Context) (Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		return nil, ErrAlreadyAcquired
	}

	inner, err := m.factory.Create(ctx, m.driver)
	if err == nil && inner == nil {
		err = fmt.Errorf("factory returned no resource")
	}
	metrics.RecordResourceAcquire(m.driver.String(), err)
	if err != nil {
		m.log.Error("Failed to acquire resource", "error", err)
		if IsResourceUnavailable(err) {
			return nil, err
		}
		return nil, NewResourceUnavailableError(m.driver, err)
	}

	m.inner = inner
	m.handle = &guardedResource{inner: inner}
	m.log.Debug("Resource acquired")
	return m.handle, nil
}

// Current returns the handle of the live resource
func (m *Manager) Current() (Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return nil, ErrNotAcquired
	}
	return m.handle, nil
}

// Release destroys the live resource. Calling it on a released or
// never-acquired manager does nothing.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return nil
	}

	m.handle.released.Store(true)
	inner := m.inner
	m.handle = nil
	m.inner = nil
	metrics.RecordResourceRelease(m.driver.String())

	if err := inner.Close(); err != nil {
		m.log.Warn("Error closing resource", "error", err)
		return fmt.Errorf("closing %s resource: %w", m.driver, err)
	}
	m.log.Debug("Resource released")
	return nil
}

// With acquires a resource, runs fn with it and releases it on every exit
// path, including panics raised by fn.
func (m *Manager) With(ctx context.Context, fn func(Resource) error) (err error) {
	res, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := m.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn(res)
}
