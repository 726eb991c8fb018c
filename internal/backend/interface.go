package backend

import (
	"context"

	"gradeboard/internal/loader"
	"gradeboard/internal/sheets"
	gsheet "gradeboard/internal/sheets/google"
)

// Backend provides the default dataset and names where it comes from.
type Backend interface {
	sheets.TableReader
	sheets.SourceNamer
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory backend: directory holding results.csv or results.xlsx.
	DataDirectory string

	Sheets gsheet.Config

	Options loader.Options
}

// BackendType represents the type of backend
type BackendType string

const (
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
