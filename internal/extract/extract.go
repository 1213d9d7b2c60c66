// Package extract turns downloaded report documents into plain text.
//
// PDFs go through pdftotext, Word documents through abiword, and HTML pages
// through go-readability. The external tools are optional: when one is not
// installed the extractor returns ErrToolMissing and the caller keeps the
// document without a text file.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/IshaanNene/igscrape/internal/config"
	"github.com/IshaanNene/igscrape/internal/observability"
	"github.com/IshaanNene/igscrape/internal/parser"
)

var (
	// ErrToolMissing is returned when the external binary for a file type is
	// not on PATH.
	ErrToolMissing = errors.New("extraction tool not installed")

	// ErrUnsupported is returned for file types with no extractor.
	ErrUnsupported = errors.New("no text extractor for file type")
)

// Extractor runs the text extraction tools.
type Extractor struct {
	cfg     config.ExtractConfig
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates an Extractor.
func New(cfg config.ExtractConfig, metrics *observability.Metrics, logger *slog.Logger) *Extractor {
	return &Extractor{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "extract"),
	}
}

// Supports reports whether fileType has an extractor.
func (e *Extractor) Supports(fileType string) bool {
	switch fileType {
	case "pdf", "doc", "docx", "htm", "html", "txt":
		return true
	}
	return false
}

// Text extracts the text of the document at path. pageURL is used to
// resolve links in HTML documents and may be empty.
func (e *Extractor) Text(ctx context.Context, path, fileType, pageURL string) (string, error) {
	var (
		text string
		err  error
	)
	switch fileType {
	case "pdf":
		text, err = e.run(ctx, e.cfg.PDFToText, "-layout", "-enc", "UTF-8", path, "-")
	case "doc", "docx":
		text, err = e.run(ctx, e.cfg.Abiword, "--to=txt", "--to-name=fd://1", path)
	case "htm", "html":
		text, err = e.html(path, pageURL)
	case "txt":
		var b []byte
		b, err = os.ReadFile(path)
		text = string(b)
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupported, fileType)
	}

	if err != nil {
		if e.metrics != nil {
			e.metrics.ExtractFailures.Add(1)
		}
		return "", err
	}
	return text, nil
}

// WriteText extracts the text of src and writes it to dst.
func (e *Extractor) WriteText(ctx context.Context, src, dst, fileType, pageURL string) error {
	text, err := e.Text(ctx, src, fileType, pageURL)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		e.logger.Warn("extracted text is empty", "path", src, "type", fileType)
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write text: %w", err)
	}
	return os.Rename(tmp, dst)
}

// run executes bin with args and returns its stdout.
func (e *Extractor) run(ctx context.Context, bin string, args ...string) (string, error) {
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolMissing, bin)
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, resolved, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return "", fmt.Errorf("%s failed: %w (%s)", bin, err, msg)
	}
	e.logger.Debug("extracted text", "tool", bin, "bytes", stdout.Len(), "duration", time.Since(start))
	return stdout.String(), nil
}

// html extracts the readable article text of an HTML page, falling back to
// the whole body text when readability finds no article.
func (e *Extractor) html(path, pageURL string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	u, _ := url.Parse(pageURL)
	if u == nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(f, u)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent), nil
	}
	if err != nil {
		e.logger.Debug("readability failed, using body text", "path", path, "error", err)
	}

	if _, err := f.Seek(0, 0); err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	return parser.Text(doc.Find("body")), nil
}
