package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gradeboard/internal/core"
	"gradeboard/internal/loader"
	ports "gradeboard/internal/sheets"
)

// Seed files looked up by NewFromFiles, in order.
var SeedFiles = []string{"results.csv", "results.xlsx"}

// SampleSource names the built-in dataset.
const SampleSource = "sample"

var (
	_ ports.TableReader = (*Store)(nil)
	_ ports.SourceNamer = (*Store)(nil)
)

// Store serves a fixed in-process table.
type Store struct {
	mu     sync.RWMutex
	table  core.Table
	source string
}

func New(t core.Table, source string) *Store {
	return &Store{table: t, source: source}
}

// NewSample serves the demonstration dataset.
func NewSample() *Store {
	return New(loader.Sample(), SampleSource)
}

// NewFromFiles loads the first seed file found in base. Without one it falls
// back to the sample; a seed file that does not parse is an error.
func NewFromFiles(base string, opts loader.Options) (*Store, error) {
	if base == "" {
		return NewSample(), nil
	}
	for _, name := range SeedFiles {
		path := filepath.Join(base, name)
		b, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		t, err := loader.Load(name, b, opts)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		return New(t, path), nil
	}
	return NewSample(), nil
}

// ReadTable returns the stored table.
func (s *Store) ReadTable(_ context.Context) (core.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table, nil
}

// Set swaps the stored table.
func (s *Store) Set(t core.Table, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
	s.source = source
}

func (s *Store) SourceName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}
