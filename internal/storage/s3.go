package storage

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/IshaanNene/igscrape/internal/config"
	"github.com/IshaanNene/igscrape/internal/types"
)

// S3Mirror uploads every file in a saved report's directory to a bucket,
// keeping the data directory layout under an optional prefix.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
	layout Layout
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewS3Mirror loads AWS credentials from the environment or the configured
// profile and creates the mirror.
func NewS3Mirror(ctx context.Context, cfg config.MirrorConfig, layout Layout, logger *slog.Logger) (*S3Mirror, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
	})
	return NewS3MirrorWithClient(client, cfg.Bucket, cfg.Prefix, layout, logger), nil
}

// NewS3MirrorWithClient creates a mirror around an existing client.
func NewS3MirrorWithClient(client *s3.Client, bucket, prefix string, layout Layout, logger *slog.Logger) *S3Mirror {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Mirror{
		client: client,
		bucket: bucket,
		prefix: prefix,
		layout: layout,
		logger: logger.With("component", "s3_mirror", "bucket", bucket),
	}
}

func (m *S3Mirror) Name() string { return "s3" }

// Store uploads the files of each report. Temp files are skipped.
func (m *S3Mirror) Store(ctx context.Context, reports []*types.Report) error {
	for _, r := range reports {
		dir := m.layout.Dir(r)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read report dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
				continue
			}
			if err := m.upload(ctx, filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// Key returns the object key for a file under the data directory.
func (m *S3Mirror) Key(filePath string) (string, error) {
	rel, err := m.layout.Rel(filePath)
	if err != nil {
		return "", err
	}
	return m.prefix + rel, nil
}

func (m *S3Mirror) upload(ctx context.Context, filePath string) error {
	key, err := m.Key(filePath)
	if err != nil {
		return err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := m.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", m.bucket, key, err)
	}

	m.mu.Lock()
	m.count++
	m.mu.Unlock()
	m.logger.Debug("uploaded", "key", key)
	return nil
}

func (m *S3Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Info("s3 mirror done", "objects", m.count)
	return nil
}
