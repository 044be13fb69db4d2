package resource

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Constructor launches a new resource for a driver
type Constructor func(ctx context.Context) (Resource, error)

var _ Factory = (*DriverRegistry)(nil)

// DriverRegistry is the default Factory. It maps driver types to constructors.
type DriverRegistry struct {
	mu      sync.RWMutex
	drivers map[DriverType]Constructor
}

// RegistryConfig configures the built-in drivers
type RegistryConfig struct {
	HTTPTimeout time.Duration
	UserAgent   string
}

// NewDriverRegistry creates a registry with the built-in http and noop drivers
func NewDriverRegistry(cfg RegistryConfig) *DriverRegistry {
	r := NewEmptyDriverRegistry()
	r.Register(DriverHTTP, func(ctx context.Context) (Resource, error) {
		session, err := NewHTTPSession(HTTPSessionConfig{
			Timeout:   cfg.HTTPTimeout,
			UserAgent: cfg.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		return session, nil
	})
	r.Register(DriverNoop, func(ctx context.Context) (Resource, error) {
		return NewNoopSession(), nil
	})
	return r
}

// NewEmptyDriverRegistry creates a registry with no drivers
func NewEmptyDriverRegistry() *DriverRegistry {
	return &DriverRegistry{drivers: make(map[DriverType]Constructor)}
}

// Register adds or replaces the constructor for a driver type
func (r *DriverRegistry) Register(driver DriverType, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[driver] = ctor
}

// Supports reports whether a constructor is registered for the driver
func (r *DriverRegistry) Supports(driver DriverType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.drivers[driver]
	return ok
}

// Drivers returns the registered driver types, sorted
func (r *DriverRegistry) Drivers() []DriverType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	drivers := make([]DriverType, 0, len(r.drivers))
	for d := range r.drivers {
		drivers = append(drivers, d)
	}
	slices.Sort(drivers)
	return drivers
}

// Create implements Factory
func (r *DriverRegistry) Create(ctx context.Context, driver DriverType) (Resource, error) {
	r.mu.RLock()
	ctor, ok := r.drivers[driver]
	r.mu.RUnlock()
	if !ok {
		return nil, NewResourceUnavailableError(driver, ErrUnsupportedDriver)
	}

	res, err := ctor(ctx)
	if err != nil {
		return nil, NewResourceUnavailableError(driver, fmt.Errorf("launching driver: %w", err))
	}
	return res, nil
}
