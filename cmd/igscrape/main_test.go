package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/igscrape/internal/config"
	"github.com/IshaanNene/igscrape/internal/inspector"
	"github.com/IshaanNene/igscrape/internal/notify"
	"github.com/IshaanNene/igscrape/internal/storage"
	"github.com/IshaanNene/igscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var testNow = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func TestRunFlags(t *testing.T) {
	flags := &runFlags{}
	cmd := &cobra.Command{Use: "run"}
	flags.register(cmd)

	err := cmd.ParseFlags([]string{
		"--only", "cpb,nea", "--except=usps", "--safe",
		"--year", "2023", "--report-id", "OIG-23-01", "--limit", "5",
		"--pages", "2", "--topics", "audit,sar", "--quick", "--skip-downloaded",
	})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	sel := flags.selection([]string{"fca"})
	wantSel := inspector.Selection{Only: []string{"cpb", "nea", "fca"}, Except: []string{"usps"}, Safe: true}
	if diff := cmp.Diff(wantSel, sel); diff != "" {
		t.Errorf("selection (-want +got):\n%s", diff)
	}

	opts := flags.options()
	if opts.Year != 2023 || opts.ReportID != "OIG-23-01" || opts.Limit != 5 || opts.Pages != 2 {
		t.Errorf("options = %+v", opts)
	}
	if !opts.Quick || !opts.SkipDownloaded || opts.DryRun {
		t.Errorf("mode flags = %+v", opts)
	}
	if diff := cmp.Diff([]string{"audit", "sar"}, opts.Topics); diff != "" {
		t.Errorf("topics (-want +got):\n%s", diff)
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	cmd := runCmd()
	if err := cmd.ParseFlags([]string{"--bogus"}); err == nil {
		t.Error("expected an error for an unknown flag")
	}
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "inspector", "cpb")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "shown" || line["inspector"] != "cpb" {
		t.Errorf("log line = %v", line)
	}

	buf.Reset()
	setupLogger(config.LoggingConfig{Level: "debug", Format: "pretty"}, &buf).Debug("pretty line")
	if !strings.Contains(buf.String(), "pretty line") {
		t.Errorf("pretty handler wrote %q", buf.String())
	}
}

func validReport(id string) *types.Report {
	return &types.Report{
		Inspector:    "exampleoig",
		InspectorURL: "https://oig.example.gov",
		Agency:       "example",
		AgencyName:   "Example Agency",
		ReportID:     id,
		URL:          "https://oig.example.gov/reports/" + id + ".pdf",
		Title:        "Report " + id,
		PublishedOn:  "2023-09-30",
		Type:         "audit",
		FileType:     "pdf",
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestValidateTree(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())
	files, err := storage.NewFileStorage(layout, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	good := validReport("OIG-23-01")
	if err := files.Store(context.Background(), []*types.Report{good}); err != nil {
		t.Fatal(err)
	}

	noTitle := validReport("OIG-23-02")
	noTitle.Title = ""
	writeJSON(t, layout.JSONPath(noTitle), noTitle)

	misplaced := validReport("OIG-23-03")
	writeJSON(t, filepath.Join(layout.DataDir, "exampleoig", "2022", "OIG-23-03", "report.json"), misplaced)

	brokenDir := filepath.Join(layout.DataDir, "exampleoig", "2023", "OIG-23-04")
	if err := os.MkdirAll(brokenDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(brokenDir, "report.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	problems, checked, err := validateTree(context.Background(), layout, "", false, testNow)
	if err != nil {
		t.Fatalf("validateTree: %v", err)
	}
	if checked != 4 {
		t.Errorf("checked = %d, want 4", checked)
	}

	got := map[string]string{}
	for _, p := range problems {
		got[p.Path] = p.Reason
	}
	if len(got) != 3 {
		t.Fatalf("problems = %+v", problems)
	}
	for path, want := range map[string]string{
		"exampleoig/2023/OIG-23-02/report.json": "title is required",
		"exampleoig/2022/OIG-23-03/report.json": "expected exampleoig/2023/OIG-23-03/report.json",
		"exampleoig/2023/OIG-23-04/report.json": "decode",
	} {
		if !strings.Contains(got[path], want) {
			t.Errorf("%s: problem %q, want it to mention %q", path, got[path], want)
		}
	}

	// Quick runs leave no document; --documents flags it.
	problems, _, err = validateTree(context.Background(), layout, "exampleoig", true, testNow)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, p := range problems {
		if p.Path == "exampleoig/2023/OIG-23-01/report.json" && strings.Contains(p.Reason, "document missing") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing document not reported: %+v", problems)
	}
}

func TestValidateTreeMissingDataDir(t *testing.T) {
	layout := storage.NewLayout(filepath.Join(t.TempDir(), "nope"))
	problems, checked, err := validateTree(context.Background(), layout, "", false, testNow)
	if err != nil || checked != 0 || len(problems) != 0 {
		t.Errorf("got problems=%v checked=%d err=%v", problems, checked, err)
	}
}

func TestRenderSummary(t *testing.T) {
	s := &notify.Summary{
		Started:  testNow(),
		Finished: testNow().Add(90 * time.Second),
		Results: []notify.Result{
			{Inspector: "cpb", Saved: 12, Errors: 1, Duration: 3 * time.Second},
			{Inspector: "nea", Error: "panic: boom\ngoroutine 7 [running]:"},
		},
	}
	var buf bytes.Buffer
	renderSummary(&buf, s)
	out := buf.String()

	for _, want := range []string{"cpb", "nea", "panic: boom", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "goroutine") {
		t.Errorf("stack trace leaked into summary:\n%s", out)
	}
}

func TestWriteConfigMasksSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Notify.Email.Password = "hunter2"
	cfg.Notify.Slack.WebhookURL = "https://hooks.slack.com/services/T0/B0/secret"

	var buf bytes.Buffer
	if err := writeConfig(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "secret") {
		t.Errorf("secret leaked:\n%s", out)
	}
	if !strings.Contains(out, "requests_per_minute: 120") {
		t.Errorf("config output missing fetcher settings:\n%s", out)
	}
	if cfg.Notify.Email.Password != "hunter2" {
		t.Error("writeConfig modified the config")
	}
}

func TestNewScheduler(t *testing.T) {
	if _, err := newScheduler("not a cron spec", testLogger, func() {}); err == nil {
		t.Error("expected an error for a bad spec")
	}
	c, err := newScheduler("0 6 * * *", testLogger, func() {})
	if err != nil {
		t.Fatal(err)
	}
	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	next := entries[0].Schedule.Next(testNow())
	if next.Hour() != 6 || next.Day() != 2 {
		t.Errorf("next run = %s", next)
	}
}

func TestFirstLine(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"one line":        "one line",
		"first\nsecond":   "first",
		"panic: x\n\tat y": "panic: x",
	}
	for in, want := range tests {
		if got := firstLine(in); got != want {
			t.Errorf("firstLine(%q) = %q, want %q", in, got, want)
		}
	}
}
