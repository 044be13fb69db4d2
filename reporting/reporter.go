// Package reporting fans finished run records out to report generators.
package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

// Reporter persists a representation of a finalized run.
type Reporter interface {
	// Name identifies the reporter in logs and errors
	Name() string
	// SetOutputDirectory sets where file-based reporters write to
	SetOutputDirectory(dir string)
	// GenerateReportFor writes the report for the run
	GenerateReportFor(ctx context.Context, run *types.Run) error
}

// Constructor builds a fresh reporter instance
type Constructor func() (Reporter, error)

// Catalog maps reporter names to constructors. Every run builds its own
// reporters from it, so reporter state is never shared between runs.
type Catalog struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewCatalog creates a catalog with the built-in file reporters
func NewCatalog() *Catalog {
	c := NewEmptyCatalog()
	c.Register(JSONReporterName, func() (Reporter, error) { return NewJSONReporter(), nil })
	c.Register(TextReporterName, func() (Reporter, error) { return NewTextReporter(), nil })
	c.Register(HTMLReporterName, func() (Reporter, error) { return NewHTMLReporter() })
	c.Register(JUnitReporterName, func() (Reporter, error) { return NewJUnitReporter(), nil })
	return c
}

// NewEmptyCatalog creates a catalog with no reporters
func NewEmptyCatalog() *Catalog {
	return &Catalog{ctors: make(map[string]Constructor)}
}

// Register adds or replaces a constructor
func (c *Catalog) Register(name string, ctor Constructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctors[name] = ctor
}

// Has reports whether a constructor is registered under name
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ctors[name]
	return ok
}

// Names returns the registered names, sorted
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.ctors))
	for name := range c.ctors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build creates one reporter per name, in the order given
func (c *Catalog) Build(names []string) ([]Reporter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reporters := make([]Reporter, 0, len(names))
	for _, name := range names {
		ctor, ok := c.ctors[name]
		if !ok {
			return nil, fmt.Errorf("unknown reporter %q", name)
		}
		r, err := ctor()
		if err != nil {
			return nil, fmt.Errorf("failed to create reporter %q: %w", name, err)
		}
		reporters = append(reporters, r)
	}
	return reporters, nil
}

// fileReporter holds the output directory handling shared by file-based reporters
type fileReporter struct {
	dir string
}

func (f *fileReporter) SetOutputDirectory(dir string) {
	f.dir = dir
}

// OutputDirectory returns the configured output directory
func (f *fileReporter) OutputDirectory() string {
	return f.dir
}

// writeFile writes data to name inside the output directory and returns the full path
func (f *fileReporter) writeFile(name string, data []byte) (string, error) {
	if f.dir == "" {
		return "", fmt.Errorf("no output directory set")
	}
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", f.dir, err)
	}
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
