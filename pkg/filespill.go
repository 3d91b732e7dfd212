// Package pkg provides small reusable utilities for trojanforge.
package pkg

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// FileSpill buffers items of type T on disk instead of in memory. The
// insertion stage uses it to accumulate per-Trojan records from concurrent
// workers before the metadata artifact is assembled; large feature sweeps
// can use it the same way.
type FileSpill[T any] interface {
	Len() uint64
	Path() string
	Append(item T) error
	AppendBatch(items []T) error
	Get(index uint64) (T, error)
	Range(f func(index uint64, item T) error) error
	Close() error
}

type fileSpill[T any] struct {
	path    string
	file    *os.File
	encoder *gob.Encoder
	mu      sync.Mutex
	length  uint64
}

// NewFileSpill creates a disk-backed spill buffer in the system temp
// directory. Callers must Close it when done; the backing file stays
// readable after Close.
func NewFileSpill[T any]() (FileSpill[T], error) {
	file, err := os.CreateTemp("", "trojanforge-spill-*.gob")
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}
	slog.Debug("created spill buffer", "path", file.Name())

	return &fileSpill[T]{
		path:    file.Name(),
		file:    file,
		encoder: gob.NewEncoder(file),
	}, nil
}

// Path returns the backing file's location.
func (f *fileSpill[T]) Path() string {
	return f.path
}

// Len returns the number of items appended so far.
func (f *fileSpill[T]) Len() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.length
}

// Append encodes one item to the backing file. Safe for concurrent use.
func (f *fileSpill[T]) Append(item T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.encoder.Encode(item); err != nil {
		return fmt.Errorf("encode item %d: %w", f.length, err)
	}
	f.length++

	return nil
}

// AppendBatch appends items in order.
func (f *fileSpill[T]) AppendBatch(items []T) error {
	for _, item := range items {
		if err := f.Append(item); err != nil {
			return err
		}
	}

	return nil
}

// Get decodes the item at index. The gob stream has no random access, so
// this re-reads the file from the start.
func (f *fileSpill[T]) Get(index uint64) (T, error) {
	var item T

	f.mu.Lock()
	defer f.mu.Unlock()

	if index >= f.length {
		return item, fmt.Errorf("index %d out of bounds (length %d)", index, f.length)
	}

	err := f.decodeEach(func(i uint64, it T) (bool, error) {
		if i == index {
			item = it
			return false, nil
		}
		return true, nil
	})

	return item, err
}

// Range calls fn for each item in append order. A non-nil return from fn
// stops the iteration and is returned to the caller.
func (f *fileSpill[T]) Range(fn func(index uint64, item T) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.decodeEach(func(i uint64, item T) (bool, error) {
		if err := fn(i, item); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (f *fileSpill[T]) decodeEach(fn func(index uint64, item T) (bool, error)) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open spill file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Error("close spill file", "path", f.path, "error", cerr)
		}
	}()

	decoder := gob.NewDecoder(file)
	for i := uint64(0); i < f.length; i++ {
		var item T
		if err := decoder.Decode(&item); err != nil {
			return fmt.Errorf("decode item %d: %w", i, err)
		}
		cont, err := fn(i, item)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}

	return nil
}

// Close flushes and closes the backing file.
func (f *fileSpill[T]) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("close spill file: %w", err)
	}
	f.file = nil

	return nil
}
