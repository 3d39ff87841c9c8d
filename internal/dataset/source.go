package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
)

// Source produces a fresh snapshot for a source identifier.
type Source interface {
	Fetch(ctx context.Context, sourceID string) (*Dataset, error)
}

// SheetSource reads the CSV export of a Google Sheet. The sheet must be
// shared publicly (anyone with the link can view).
type SheetSource struct {
	httpClient *http.Client
	baseURL    string
	gid        string
	now        func() time.Time
}

// SheetConfig holds SheetSource configuration.
type SheetConfig struct {
	BaseURL string // Default: https://docs.google.com/spreadsheets/d
	GID     string // worksheet id, default "0"
	Timeout time.Duration
}

// NewSheetSource creates a Google Sheets CSV export source.
func NewSheetSource(cfg SheetConfig) *SheetSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://docs.google.com/spreadsheets/d"
	}
	if cfg.GID == "" {
		cfg.GID = "0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &SheetSource{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		gid:        cfg.GID,
		now:        time.Now,
	}
}

// ExportURL returns the CSV export URL for a sheet id.
func (s *SheetSource) ExportURL(sheetID string) string {
	q := url.Values{}
	q.Set("format", "csv")
	q.Set("gid", s.gid)
	return fmt.Sprintf("%s/%s/export?%s", s.baseURL, url.PathEscape(sheetID), q.Encode())
}

// Fetch downloads and parses the sheet.
func (s *SheetSource) Fetch(ctx context.Context, sheetID string) (*Dataset, error) {
	if sheetID == "" {
		return nil, fmt.Errorf("%w: sheet id is empty", ErrUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ExportURL(sheetID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: sheet export returned status %d", ErrUnavailable, resp.StatusCode)
	}

	records, err := readCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return New(sheetID, records, s.now())
}

// FileSource reads a local CSV file. The source identifier is the file path.
type FileSource struct {
	logger *observability.Logger
	now    func() time.Time
}

// NewFileSource creates a local CSV source.
func NewFileSource(logger *observability.Logger) *FileSource {
	return &FileSource{logger: observability.OrNop(logger), now: time.Now}
}

// Fetch reads and parses the file at path.
func (s *FileSource) Fetch(ctx context.Context, path string) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer f.Close()

	records, err := readCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return New(path, records, s.now())
}

// Watch calls onChange whenever the file at path is written, created or
// replaced. It blocks until ctx is cancelled. The parent directory is
// watched because editors commonly replace files through a rename.
func (s *FileSource) Watch(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Debug().Str("path", abs).Str("op", event.Op.String()).Msg("Source file changed")
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Str("path", abs).Msg("File watcher error")
		}
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv is empty")
	}
	return records, nil
}

var (
	_ Source = (*SheetSource)(nil)
	_ Source = (*FileSource)(nil)
)
