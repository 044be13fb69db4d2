// Package resource manages the lifecycle of the browser automation session a
// run's steps operate against.
//
// The main components are:
//   - Resource: the session handle (navigate, inspect the current page, close)
//   - DriverRegistry: the default Factory, mapping driver types to constructors
//   - Manager: owns exactly one Resource per acquire/release pair for one run
//   - Pages: navigation helper resolving paths against a base URL
package resource

import (
	"context"
	"sync/atomic"
)

// DriverType names a resource backend
type DriverType string

// String implements the Stringer interface for DriverType
func (d DriverType) String() string {
	return string(d)
}

const (
	DriverHTTP DriverType = "http"
	DriverNoop DriverType = "noop"
)

// Resource is a browser-like automation session
type Resource interface {
	// Open navigates the session to the given absolute URL
	Open(ctx context.Context, url string) error
	// CurrentURL returns the URL of the current page, after redirects
	CurrentURL() string
	// StatusCode returns the status of the last navigation, 0 if none happened
	StatusCode() int
	// Title returns the title of the current page
	Title() string
	// PageSource returns the raw source of the current page
	PageSource() string
	// Close destroys the session
	Close() error
}

// Snapshotter is implemented by resources that can capture a diagnostic
// artifact of their current state (a screenshot, or the page source for
// headless drivers).
type Snapshotter interface {
	Snapshot() (data []byte, ext string, err error)
}

// Factory creates resources for a driver type
type Factory interface {
	Create(ctx context.Context, driver DriverType) (Resource, error)
}

// guardedResource wraps the handle given to steps so that it refuses every
// call once the owning manager has released it.
type guardedResource struct {
	inner    Resource
	released atomic.Bool
}

var (
	_ Resource    = (*guardedResource)(nil)
	_ Snapshotter = (*guardedResource)(nil)
)

func (g *guardedResource) Open(ctx context.Context, url string) error {
	if g.released.Load() {
		return ErrResourceReleased
	}
	return g.inner.Open(ctx, url)
}

func (g *guardedResource) CurrentURL() string {
	if g.released.Load() {
		return ""
	}
	return g.inner.CurrentURL()
}

func (g *guardedResource) StatusCode() int {
	if g.released.Load() {
		return 0
	}
	return g.inner.StatusCode()
}

func (g *guardedResource) Title() string {
	if g.released.Load() {
		return ""
	}
	return g.inner.Title()
}

func (g *guardedResource) PageSource() string {
	if g.released.Load() {
		return ""
	}
	return g.inner.PageSource()
}

// Close is a no-op on the guard; only the manager destroys the session.
func (g *guardedResource) Close() error {
	return nil
}

func (g *guardedResource) Snapshot() ([]byte, string, error) {
	if g.released.Load() {
		return nil, "", ErrResourceReleased
	}
	snap, ok := g.inner.(Snapshotter)
	if !ok {
		return nil, "", nil
	}
	return snap.Snapshot()
}
