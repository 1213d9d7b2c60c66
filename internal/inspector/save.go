package inspector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/igscrape/internal/extract"
	"github.com/IshaanNene/igscrape/internal/fetcher"
	"github.com/IshaanNene/igscrape/internal/observability"
	"github.com/IshaanNene/igscrape/internal/storage"
	"github.com/IshaanNene/igscrape/internal/types"
)

// Fetcher is the network side of a session.
type Fetcher interface {
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)
	Resolve(ctx context.Context, rawURL string) (string, error)
	Downloader
}

// Downloader writes a document to disk.
type Downloader interface {
	Download(ctx context.Context, rawURL, dest string) (*fetcher.DownloadResult, error)
}

// TextExtractor produces report.txt and PDF metadata.
type TextExtractor interface {
	Supports(fileType string) bool
	WriteText(ctx context.Context, src, dst, fileType, pageURL string) error
	Metadata(ctx context.Context, path string) (*extract.Metadata, error)
}

// Outcome is what the save path did with a report.
type Outcome int

const (
	OutcomeSaved Outcome = iota
	OutcomeSkipped
	OutcomeDryRun
)

// Saver writes validated reports: document download, text extraction, then
// the storage backends. It is shared by all sessions of a run.
type Saver struct {
	layout     storage.Layout
	store      storage.Storage
	downloader Downloader
	extractor  TextExtractor
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewSaver creates a Saver. extractor may be nil to skip text extraction.
func NewSaver(layout storage.Layout, store storage.Storage, downloader Downloader, extractor TextExtractor, metrics *observability.Metrics, logger *slog.Logger) *Saver {
	return &Saver{
		layout:     layout,
		store:      store,
		downloader: downloader,
		extractor:  extractor,
		metrics:    metrics,
		logger:     logger.With("component", "saver"),
	}
}

// Layout returns the data directory layout.
func (s *Saver) Layout() storage.Layout {
	return s.layout
}

// Save writes r according to opts. r must already have passed validation.
func (s *Saver) Save(ctx context.Context, r *types.Report, opts Options) (Outcome, error) {
	logger := s.logger.With("inspector", r.Inspector, "report_id", r.ReportID)

	if opts.DryRun {
		logger.Info("dry run", "title", r.Title, "published_on", r.PublishedOn, "url", r.URL)
		return OutcomeDryRun, nil
	}

	if opts.SkipDownloaded && s.layout.Exists(r) {
		logger.Debug("already downloaded")
		s.metrics.ReportsSkipped.Add(1)
		return OutcomeSkipped, nil
	}

	if !opts.Quick && !r.Unreleased && r.URL != "" {
		if err := s.download(ctx, r, logger); err != nil {
			return 0, err
		}
	}

	if err := s.store.Store(ctx, []*types.Report{r}); err != nil {
		return 0, err
	}
	s.metrics.ReportsSaved.Add(1)
	logger.Info("report saved", "title", r.Title, "published_on", r.PublishedOn)
	return OutcomeSaved, nil
}

func (s *Saver) download(ctx context.Context, r *types.Report, logger *slog.Logger) error {
	dest := s.layout.FilePath(r)
	res, err := s.downloader.Download(ctx, r.URL, dest)
	if err != nil {
		return err
	}
	r.SHA256 = res.SHA256
	r.Size = res.Size

	// Extension-less URLs are guessed as HTML; trust the server when it says
	// it sent a document.
	if ft := types.FileTypeFromContentType(res.ContentType); ft != "" && ft != r.FileType {
		switch ft {
		case "pdf", "doc", "docx":
			if err := s.retype(r, dest, ft); err != nil {
				return err
			}
			dest = s.layout.FilePath(r)
		default:
			logger.Warn("content type does not match file type", "file_type", r.FileType, "content_type", res.ContentType)
		}
	}

	if s.extractor == nil || !s.extractor.Supports(r.FileType) {
		return nil
	}

	if r.FileType == "pdf" {
		md, err := s.extractor.Metadata(ctx, dest)
		switch {
		case err == nil:
			r.PageCount = md.Pages
			if refineEstimate(r, md.CreatedAt) {
				logger.Debug("estimated date narrowed from pdf creation date", "published_on", r.PublishedOn)
			}
		case errors.Is(err, extract.ErrToolMissing):
			logger.Debug("pdfinfo not installed")
		default:
			logger.Warn("pdf metadata failed", "error", err)
		}
	}

	pageURL := r.URL
	if res.FinalURL != "" {
		pageURL = res.FinalURL
	}
	if err := s.extractor.WriteText(ctx, dest, s.layout.TextPath(r), r.FileType, pageURL); err != nil {
		if errors.Is(err, extract.ErrToolMissing) {
			logger.Debug("text extraction skipped", "error", err)
		} else {
			logger.Warn("text extraction failed", "error", err)
		}
	}
	return nil
}

func (s *Saver) retype(r *types.Report, dest, fileType string) error {
	r.FileType = fileType
	if err := os.Rename(dest, s.layout.FilePath(r)); err != nil {
		return fmt.Errorf("rename downloaded file: %w", err)
	}
	return nil
}

// refineEstimate narrows an estimated publish date (the first of a month) to
// the document's creation day when both fall in the same month. The date
// stays estimated and the report keeps its year directory.
func refineEstimate(r *types.Report, created time.Time) bool {
	if !r.EstimatedDate || created.IsZero() {
		return false
	}
	pub, err := r.Published()
	if err != nil || created.Year() != pub.Year() || created.Month() != pub.Month() {
		return false
	}
	r.SetPublished(created)
	return true
}
