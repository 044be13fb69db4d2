package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ArtifactStore persists diagnostic artifacts captured for failed steps
type ArtifactStore interface {
	// Save stores data and returns a reference to it
	Save(ctx context.Context, runID string, position int, step string, data []byte, ext string) (string, error)
}

var _ ArtifactStore = (*FileArtifactStore)(nil)

// FileArtifactStore writes artifacts below a base directory, one
// subdirectory per run.
type FileArtifactStore struct {
	baseDir string
}

// NewFileArtifactStore creates a store rooted at baseDir
func NewFileArtifactStore(baseDir string) *FileArtifactStore {
	return &FileArtifactStore{baseDir: baseDir}
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Save implements ArtifactStore
func (s *FileArtifactStore) Save(ctx context.Context, runID string, position int, step string, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	name := strings.Trim(unsafeFileChars.ReplaceAllString(step, "_"), "_")
	if name == "" {
		name = "step"
	}
	path := filepath.Join(dir, fmt.Sprintf("%02d-%s%s", position, name, ext))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}
