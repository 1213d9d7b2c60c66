package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/igscrape/internal/types"
)

// --- Report tree ---

// FileStorage writes each report's metadata to its directory in the layout.
type FileStorage struct {
	layout Layout
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewFileStorage creates the report tree storage.
func NewFileStorage(layout Layout, logger *slog.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(layout.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStorage{
		layout: layout,
		logger: logger.With("component", "file_storage"),
	}, nil
}

func (s *FileStorage) Name() string { return "files" }

func (s *FileStorage) Store(_ context.Context, reports []*types.Report) error {
	for _, r := range reports {
		if err := s.write(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStorage) write(r *types.Report) error {
	data, err := r.ToJSON()
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.Key(), err)
	}
	path := s.layout.JSONPath(r)
	if err := WriteFileAtomic(path, append(data, '\n')); err != nil {
		return err
	}

	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.logger.Debug("report written", "path", path)
	return nil
}

func (s *FileStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("report files written", "dir", s.layout.DataDir, "reports", s.count)
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, creating parent directories as needed.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// --- JSONL Storage ---

// JSONLStorage writes reports as newline-delimited JSON (one object per line).
type JSONLStorage struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLStorage creates a JSONL export, appending to an existing file.
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	return &JSONLStorage{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(_ context.Context, reports []*types.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range reports {
		if err := s.enc.Encode(r); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
		s.count++
	}
	return nil
}

func (s *JSONLStorage) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "reports", s.count)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
