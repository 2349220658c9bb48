package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// FileStore keeps the checkpoint in a single JSON file.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore returns a store writing to path. The parent directory is created when missing.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Path returns the checkpoint file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the checkpoint. A missing or unreadable document yields nil without error.
func (s *FileStore) Load(_ context.Context) (*crawler.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}
	cp, err := Decode(data)
	if err != nil {
		s.logger.Warn("ignoring corrupt checkpoint", zap.String("path", s.path), zap.Error(err))
		return nil, nil
	}
	return cp, nil
}

// Save replaces the checkpoint atomically: the document is written to a temp file in the
// same directory, synced, then renamed over the previous one.
func (s *FileStore) Save(_ context.Context, cp crawler.Checkpoint) error {
	data, err := Encode(cp)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace checkpoint %s: %w", s.path, err)
	}
	return nil
}
