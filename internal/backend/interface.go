package backend

import (
	"context"
	"io"
	"slices"

	"orcamento/internal/sheets"
)

// Store is everything the services and the export worker need from storage.
type Store interface {
	sheets.ProfileStore
	sheets.AllocationStore
	sheets.ExportQueue
	io.Closer
}

// BackendResult contains the store and its cleanup function.
type BackendResult struct {
	Store   Store
	Cleanup func() error
}

// Factory creates stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory backend seed directory
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	return slices.Contains(GetBackendTypes(), bt)
}
