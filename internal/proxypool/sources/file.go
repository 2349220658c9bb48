package sources

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// File reads one host:port per line from a local file. Malformed lines are skipped.
type File struct {
	Path   string
	Logger *zap.Logger
}

// Name identifies the source in logs.
func (f File) Name() string {
	return "file:" + f.Path
}

// Candidates parses the file.
func (f File) Candidates(ctx context.Context) ([]string, error) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer func() {
		_ = fh.Close()
	}()

	var out []string
	scanner := bufio.NewScanner(fh)
	line := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read proxy file: %w", ctx.Err())
		}
		line++
		text := scanner.Text()
		addr, ok := parseLine(text)
		if !ok {
			if trimmed := strings.TrimSpace(text); trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				logger.Warn("skipping malformed proxy line", zap.String("path", f.Path), zap.Int("line", line))
			}
			continue
		}
		out = append(out, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan proxy file: %w", err)
	}
	return out, nil
}

// Static is a fixed candidate list, e.g. from --proxy flags.
type Static []string

// Name identifies the source in logs.
func (Static) Name() string { return "static" }

// Candidates returns the list unchanged.
func (s Static) Candidates(_ context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}
