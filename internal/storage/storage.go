// Package storage persists report records: the per-report directory tree,
// an aggregate JSONL export, the SQLite report index, an optional MongoDB
// collection and an S3 mirror of the data directory.
package storage

import (
	"context"
	"log/slog"

	"github.com/IshaanNene/igscrape/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists a batch of reports.
	Store(ctx context.Context, reports []*types.Report) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes reports to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

// Store writes to every backend and returns the first error.
func (s *MultiStorage) Store(ctx context.Context, reports []*types.Report) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(ctx, reports); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = &types.StorageError{Backend: backend.Name(), Err: err}
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			s.logger.Error("backend close failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Backends returns the wrapped backends.
func (s *MultiStorage) Backends() []Storage {
	return s.backends
}
