package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docfinder/internal/config"
	"docfinder/internal/domain"
	"docfinder/internal/upload"
)

type yes struct{}

func (yes) Confirm(context.Context, string) (bool, error) { return true, nil }

// fakeStore is a minimal document service keeping uploads in memory.
type fakeStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *fakeStore) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if !assert.NoError(t, err) {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.files[hdr.Filename]; ok && r.FormValue("overwrite") != "1" {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "이미 존재하는 파일입니다"})
			return
		}
		s.files[hdr.Filename] = data
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Azure Storage 업로드 성공", "filename": hdr.Filename})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var hits []map[string]any
		for name, data := range s.files {
			hits = append(hits, map[string]any{"문서명": name, "유사도": 0.9, "본문": string(data)})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"질의": r.URL.Query().Get("q"), "결과": hits})
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		data, ok := s.files[r.URL.Query().Get("filename")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
			return
		}
		_, _ = w.Write(data)
	})
	return mux
}

func newTestApp(t *testing.T, summarizerType string) (*App, *fakeStore) {
	t.Helper()
	store := &fakeStore{files: map[string][]byte{}}
	srv := httptest.NewServer(store.handler(t))
	t.Cleanup(srv.Close)

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Server.BaseURL = srv.URL
	cfg.Upload.CompleteDelayMS = 0
	cfg.Upload.ClearDelayMS = 0
	cfg.Download.Dir = t.TempDir()
	cfg.Summarizer.Type = summarizerType

	app, err := New(cfg, yes{})
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app, store
}

func TestAppUploadSearchDownload(t *testing.T) {
	app, store := newTestApp(t, config.SummarizerLocal)
	dir := t.TempDir()
	path := filepath.Join(dir, "login.txt")
	require.NoError(t, os.WriteFile(path, []byte("The login service fails. Users report the login bug."), 0o644))

	report, err := app.UploadPaths(context.Background(), []string{filepath.Join(dir, "*.txt")})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Finished)
	assert.Equal(t, domain.TaskSucceeded, report.Tasks[0].State)

	// the second upload conflicts and is overwritten after confirmation
	report, err = app.UploadPaths(context.Background(), []string{path})
	require.NoError(t, err)
	assert.True(t, report.Tasks[0].Overwrite)
	assert.Equal(t, upload.StatusComplete, report.Tasks[0].Status)
	assert.Len(t, store.files, 1)

	view, err := app.Search.RunSearch(context.Background(), "login bug", app.TopK())
	require.NoError(t, err)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "0.90", view.Rows[0].Score)

	state, err := app.Search.ToggleSummary(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryShown, state)
	assert.Contains(t, app.Search.Snapshot().Rows[0].Keywords, "login")

	saved, err := app.Search.Download(context.Background(), 0)
	require.NoError(t, err)
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Contains(t, string(data), "login bug")
}

func TestNewRejectsUnknownSummarizer(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Summarizer.Type = "gpt"
	_, err = New(cfg, yes{})
	assert.Error(t, err)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Server.BaseURL = "::not a url"
	_, err = New(cfg, yes{})
	assert.Error(t, err)
}
