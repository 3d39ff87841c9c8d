package dataset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSheetSource_Fetch(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("name,age\nSomchai,34\nAnong\n"))
	}))
	defer server.Close()

	src := NewSheetSource(SheetConfig{BaseURL: server.URL, GID: "7"})
	ds, err := src.Fetch(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, "/abc123/export", gotPath)
	assert.Equal(t, "format=csv&gid=7", gotQuery)
	assert.Equal(t, []string{"name", "age"}, ds.Header)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "", ds.Rows[1].Cell(1))
}

func TestSheetSource_Non2xxIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	src := NewSheetSource(SheetConfig{BaseURL: server.URL})
	_, err := src.Fetch(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "403")
}

func TestSheetSource_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	src := NewSheetSource(SheetConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := src.Fetch(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSheetSource_EmptyID(t *testing.T) {
	_, err := NewSheetSource(SheetConfig{}).Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFileSource_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,age\nSomchai,34\n"), 0o644))

	ds, err := NewFileSource(nil).Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, ds.SourceID)
	assert.Equal(t, 1, ds.Len())

	_, err = NewFileSource(nil).Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFileSource_WatchReportsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("name\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- NewFileSource(nil).Watch(ctx, path, func() { changed <- struct{}{} })
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("name\nAnong\n"), 0o644)
		select {
		case <-changed:
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
