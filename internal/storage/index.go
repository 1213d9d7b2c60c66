package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/IshaanNene/igscrape/internal/types"
)

// SQLiteIndex records every saved report so later runs and the reports
// command can query across inspectors.
type SQLiteIndex struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenIndex opens (creating if needed) the index at path. ":memory:" opens a
// private in-memory index.
func OpenIndex(path string, logger *slog.Logger) (*SQLiteIndex, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		dsn = path + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	idx := &SQLiteIndex{
		db:     db,
		path:   path,
		logger: logger.With("component", "sqlite_index"),
	}

	if path != ":memory:" {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if err := idx.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return idx, nil
}

func (idx *SQLiteIndex) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		inspector    TEXT NOT NULL,
		report_id    TEXT NOT NULL,
		url          TEXT,
		title        TEXT NOT NULL,
		published_on TEXT NOT NULL,
		type         TEXT,
		file_type    TEXT,
		sha256       TEXT,
		report_json  TEXT NOT NULL,
		first_seen   DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (inspector, report_id)
	);

	CREATE INDEX IF NOT EXISTS idx_reports_published ON reports(published_on);
	CREATE INDEX IF NOT EXISTS idx_reports_url ON reports(url);
	`
	_, err := idx.db.ExecContext(context.Background(), schema)
	return err
}

func (idx *SQLiteIndex) Name() string { return "sqlite" }

// Store upserts the reports in one transaction.
func (idx *SQLiteIndex) Store(ctx context.Context, reports []*types.Report) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO reports (inspector, report_id, url, title, published_on, type, file_type, sha256, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(inspector, report_id) DO UPDATE SET
		url = excluded.url,
		title = excluded.title,
		published_on = excluded.published_on,
		type = excluded.type,
		file_type = excluded.file_type,
		sha256 = excluded.sha256,
		report_json = excluded.report_json,
		updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range reports {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode report %s: %w", r.Key(), err)
		}
		if _, err := stmt.ExecContext(ctx, r.Inspector, r.ReportID, r.URL, r.Title,
			r.PublishedOn, r.Type, r.FileType, r.SHA256, string(data)); err != nil {
			return fmt.Errorf("upsert %s: %w", r.Key(), err)
		}
	}
	return tx.Commit()
}

// Lookup returns the indexed report, or nil if it is not indexed.
func (idx *SQLiteIndex) Lookup(ctx context.Context, inspector, reportID string) (*types.Report, error) {
	var data string
	err := idx.db.QueryRowContext(ctx,
		`SELECT report_json FROM reports WHERE inspector = ? AND report_id = ?`,
		inspector, reportID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s/%s: %w", inspector, reportID, err)
	}
	var r types.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", inspector, reportID, err)
	}
	return &r, nil
}

// InspectorCount is a per-inspector summary row.
type InspectorCount struct {
	Inspector string
	Reports   int
	Earliest  string
	Latest    string
}

// Counts returns report counts per inspector ordered by inspector.
func (idx *SQLiteIndex) Counts(ctx context.Context) ([]InspectorCount, error) {
	rows, err := idx.db.QueryContext(ctx, `
	SELECT inspector, COUNT(*), MIN(published_on), MAX(published_on)
	FROM reports GROUP BY inspector ORDER BY inspector`)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	defer rows.Close()

	var out []InspectorCount
	for rows.Next() {
		var c InspectorCount
		if err := rows.Scan(&c.Inspector, &c.Reports, &c.Earliest, &c.Latest); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Query filters for Reports.
type Query struct {
	Inspector string
	Year      int
	Limit     int
}

// Reports returns indexed reports, newest first.
func (idx *SQLiteIndex) Reports(ctx context.Context, q Query) ([]*types.Report, error) {
	query := `SELECT report_json FROM reports WHERE 1=1`
	var args []any
	if q.Inspector != "" {
		query += ` AND inspector = ?`
		args = append(args, q.Inspector)
	}
	if q.Year > 0 {
		query += ` AND published_on LIKE ?`
		args = append(args, fmt.Sprintf("%04d-%%", q.Year))
	}
	query += ` ORDER BY published_on DESC, inspector, report_id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []*types.Report
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r types.Report
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DuplicateURL is a document URL indexed under more than one report.
type DuplicateURL struct {
	URL     string
	Reports []string
}

// DuplicateURLs lists URLs shared by several (inspector, report_id) pairs.
func (idx *SQLiteIndex) DuplicateURLs(ctx context.Context) ([]DuplicateURL, error) {
	rows, err := idx.db.QueryContext(ctx, `
	SELECT url, inspector || '/' || report_id FROM reports
	WHERE url IN (
		SELECT url FROM reports WHERE url != '' GROUP BY url HAVING COUNT(*) > 1
	)
	ORDER BY url, inspector, report_id`)
	if err != nil {
		return nil, fmt.Errorf("query duplicates: %w", err)
	}
	defer rows.Close()

	var out []DuplicateURL
	for rows.Next() {
		var url, key string
		if err := rows.Scan(&url, &key); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].URL == url {
			out[n-1].Reports = append(out[n-1].Reports, key)
			continue
		}
		out = append(out, DuplicateURL{URL: url, Reports: []string{key}})
	}
	return out, rows.Err()
}

func (idx *SQLiteIndex) Close() error {
	idx.logger.Debug("index closing", "path", idx.path)
	return idx.db.Close()
}
