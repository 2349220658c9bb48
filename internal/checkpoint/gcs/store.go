// Package gcs keeps the crawl checkpoint in a Google Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/serp-crawler/internal/checkpoint"
	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// Config captures the object holding the checkpoint.
type Config struct {
	Bucket string
	Object string
}

// Store implements crawler.CheckpointStore on one GCS object. Object writes only
// become visible when the writer closes, so a failed Save leaves the previous version.
type Store struct {
	client *storage.Client
	bucket string
	object string
	logger *zap.Logger
}

// New creates a GCS-backed checkpoint store.
func New(client *storage.Client, cfg Config, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, bucket: cfg.Bucket, object: cfg.Object, logger: logger}, nil
}

// URI returns the gs:// location of the checkpoint.
func (s *Store) URI() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
}

// Load reads the checkpoint object. A missing or corrupt object yields nil without error.
func (s *Store) Load(ctx context.Context) (*crawler.Checkpoint, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open checkpoint %s: %w", s.URI(), err)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			s.logger.Warn("close checkpoint reader", zap.Error(cerr))
		}
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", s.URI(), err)
	}
	cp, err := checkpoint.Decode(data)
	if err != nil {
		s.logger.Warn("ignoring corrupt checkpoint", zap.String("uri", s.URI()), zap.Error(err))
		return nil, nil
	}
	return cp, nil
}

// Save uploads the checkpoint, replacing the previous generation.
func (s *Store) Save(ctx context.Context, cp crawler.Checkpoint) error {
	data, err := checkpoint.Encode(cp)
	if err != nil {
		return err
	}
	writer := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	// Checkpoints are small; one request avoids a resumable upload session.
	writer.ChunkSize = 0
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("write checkpoint: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close checkpoint writer: %w", err)
	}
	return nil
}
