// Package adapter contains infrastructure adapters for the pipeline: the
// local filesystem, artifact persistence, and the scoring-model loader.
package adapter

import (
	"os"
	"path/filepath"

	m "github.com/hwsec-lab/trojanforge/internal/model"
)

// NetlistFS abstracts the filesystem operations the pipeline needs, so the
// domain logic can be tested without touching the disk.
type NetlistFS interface {
	// ReadFile loads a file and returns its contents.
	ReadFile(path m.Path) ([]byte, error)

	// WriteFile writes content to a file, creating it if needed.
	WriteFile(path m.Path, content []byte) error

	// EnsureDir creates a directory (and parents) if it does not exist.
	EnsureDir(path m.Path) error

	// JoinPath joins path elements into a single path.
	JoinPath(elem ...string) m.Path
}

// LocalNetlistFS is the disk-backed NetlistFS implementation.
type LocalNetlistFS struct{}

// NewLocalNetlistFS constructs a LocalNetlistFS.
func NewLocalNetlistFS() *LocalNetlistFS {
	return &LocalNetlistFS{}
}

// ReadFile loads file contents from disk.
func (a *LocalNetlistFS) ReadFile(path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// WriteFile writes content to disk with default permissions.
func (a *LocalNetlistFS) WriteFile(path m.Path, content []byte) error {
	return os.WriteFile(string(path), content, 0o644)
}

// EnsureDir creates the directory tree for path.
func (a *LocalNetlistFS) EnsureDir(path m.Path) error {
	return os.MkdirAll(string(path), 0o755)
}

// JoinPath joins path elements.
func (a *LocalNetlistFS) JoinPath(elem ...string) m.Path {
	return m.Path(filepath.Join(elem...))
}
