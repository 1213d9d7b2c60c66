// Package dashboard serves a local status page for long-running schedules:
// the live counters and the last result of every inspector.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/IshaanNene/igscrape/internal/engine"
	"github.com/IshaanNene/igscrape/internal/observability"
)

// Dashboard serves the status page.
type Dashboard struct {
	addr       string
	statusPath string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewDashboard creates a dashboard that reads the status file at statusPath.
func NewDashboard(addr, statusPath string, metrics *observability.Metrics, logger *slog.Logger) *Dashboard {
	return &Dashboard{
		addr:       addr,
		statusPath: statusPath,
		metrics:    metrics,
		logger:     logger.With("component", "dashboard"),
	}
}

// Handler returns the dashboard routes.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", d.handleDashboard)
	mux.HandleFunc("GET /api/stats", d.handleAPIStats)
	mux.HandleFunc("GET /api/status", d.handleAPIStatus)
	return mux
}

// Start serves the dashboard until ctx is cancelled.
func (d *Dashboard) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:              d.addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	d.logger.Info("dashboard starting", "addr", d.addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("dashboard error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func (d *Dashboard) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

func (d *Dashboard) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range d.metrics.Snapshot() {
		stats[k] = v
	}
	writeJSON(w, http.StatusOK, stats)
}

func (d *Dashboard) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	st, err := engine.LoadStatus(d.statusPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeJSON(w, http.StatusOK, map[string]any{"state": "idle", "inspectors": []any{}})
	case err != nil:
		d.logger.Warn("status file unreadable", "path", d.statusPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status file unreadable"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"state":      st.State,
			"started":    st.Started,
			"updated":    st.Updated,
			"dry_run":    st.DryRun,
			"inspectors": st.Sorted(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
