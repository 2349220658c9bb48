package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// DefaultCSVPattern names the output file after the day the run started.
const DefaultCSVPattern = "{date}_results.csv"

// ResolvePath expands the {date} placeholder as YYYY-MM-DD.
func ResolvePath(pattern string, now time.Time) string {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultCSVPattern
	}
	return strings.ReplaceAll(pattern, "{date}", now.Format("2006-01-02"))
}

// CSVStore appends results to a CSV file with the header Title, Link, <fields...>.
type CSVStore struct {
	path   string
	fields []string
	mu     sync.Mutex
}

// NewCSVStore returns a store for path with the given extra field columns.
func NewCSVStore(path string, fields []string) (*CSVStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("csv path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	return &CSVStore{path: path, fields: append([]string(nil), fields...)}, nil
}

// Path returns the output file location.
func (s *CSVStore) Path() string {
	return s.path
}

// Header returns the column names written at the top of a new file.
func (s *CSVStore) Header() []string {
	header := []string{"Title", "Link"}
	for _, f := range s.fields {
		header = append(header, columnName(f))
	}
	return header
}

// Existing reads back every row. A missing file has no rows.
func (s *CSVStore) Existing(_ context.Context) ([]crawler.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	columns := s.columnFields(rows[0])
	out := make([]crawler.SearchResult, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 2 {
			continue
		}
		r := crawler.SearchResult{Title: row[0], Link: row[1]}
		for i, name := range columns {
			if name == "" || i >= len(row) {
				continue
			}
			if r.Fields == nil {
				r.Fields = make(map[string]string, len(s.fields))
			}
			r.Fields[name] = row[i]
		}
		out = append(out, r)
	}
	return out, nil
}

// Append writes rows, adding the header when the file is new or empty.
func (s *CSVStore) Append(_ context.Context, results []crawler.SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat %s: %w", s.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(s.Header()); err != nil {
			_ = f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, r := range results {
		row := []string{r.Title, r.Link}
		for _, name := range s.fields {
			row = append(row, r.Field(name))
		}
		if err := w.Write(row); err != nil {
			_ = f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}

// columnFields maps header positions to configured field names; unknown columns map to "".
func (s *CSVStore) columnFields(header []string) []string {
	byColumn := make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		byColumn[strings.ToLower(f)] = f
	}
	out := make([]string, len(header))
	for i := 2; i < len(header); i++ {
		out[i] = byColumn[strings.ToLower(strings.TrimSpace(header[i]))]
	}
	return out
}

func columnName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToUpper(field[:1]) + field[1:]
}
