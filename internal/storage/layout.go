package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/IshaanNene/igscrape/internal/types"
)

const (
	reportJSON = "report.json"
	reportText = "report.txt"
)

// Layout maps reports onto the data directory:
//
//	<data_dir>/<inspector>/<year>/<report_id>/report.json
//	<data_dir>/<inspector>/<year>/<report_id>/report.<file_type>
//	<data_dir>/<inspector>/<year>/<report_id>/report.txt
type Layout struct {
	DataDir string
}

// NewLayout creates a Layout rooted at dataDir.
func NewLayout(dataDir string) Layout {
	return Layout{DataDir: dataDir}
}

// Dir returns the report's directory.
func (l Layout) Dir(r *types.Report) string {
	return filepath.Join(l.DataDir, r.Inspector, strconv.Itoa(r.Year()), r.ReportID)
}

// JSONPath returns the path of the report's metadata file.
func (l Layout) JSONPath(r *types.Report) string {
	return filepath.Join(l.Dir(r), reportJSON)
}

// FilePath returns the path of the downloaded document.
func (l Layout) FilePath(r *types.Report) string {
	ext := r.FileType
	if ext == "" {
		ext = "bin"
	}
	return filepath.Join(l.Dir(r), "report."+ext)
}

// TextPath returns the path of the extracted text.
func (l Layout) TextPath(r *types.Report) string {
	return filepath.Join(l.Dir(r), reportText)
}

// Exists reports whether the report's metadata has already been written.
func (l Layout) Exists(r *types.Report) bool {
	_, err := os.Stat(l.JSONPath(r))
	return err == nil
}

// Rel returns path relative to the data directory with forward slashes.
func (l Layout) Rel(path string) (string, error) {
	rel, err := filepath.Rel(l.DataDir, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Load reads a report.json file.
func Load(path string) (*types.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r types.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &r, nil
}

// Walk calls fn for every report.json under the data directory, optionally
// limited to one inspector. A file that fails to decode is passed to fn with
// a nil report and the decode error.
func (l Layout) Walk(ctx context.Context, inspector string, fn func(path string, r *types.Report, err error) error) error {
	root := l.DataDir
	if inspector != "" {
		root = filepath.Join(root, inspector)
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || d.Name() != reportJSON {
			return nil
		}
		r, loadErr := Load(path)
		return fn(path, r, loadErr)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
