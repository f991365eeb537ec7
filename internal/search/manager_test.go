package search

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docfinder/internal/docapi"
	"docfinder/internal/domain"
	"docfinder/internal/pubsub"
)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   int
	results []domain.SearchResult
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ int) ([]domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.results, f.err
}

type fakeSummarizer struct {
	mu    sync.Mutex
	calls []domain.SummaryRequest
	// gate, when set, blocks every call until it is closed
	gate chan struct{}
	errs []error
}

func (f *fakeSummarizer) Summarize(_ context.Context, req domain.SummaryRequest) (domain.Summary, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, req)
	gate := f.gate
	var err error
	if n < len(f.errs) {
		err = f.errs[n]
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summary{Keywords: "login, bug", Text: "summary of " + req.Source}, nil
}

func (f *fakeSummarizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDownloader struct {
	calls []string
	err   error
}

func (f *fakeDownloader) Download(_ context.Context, name string) (io.ReadCloser, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewBufferString("content of " + name)), nil
}

type memSaver struct {
	saved map[string]string
}

func (s *memSaver) Save(name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if s.saved == nil {
		s.saved = make(map[string]string)
	}
	s.saved[name] = string(data)
	return "/downloads/" + name, nil
}

type answer struct {
	ok        bool
	questions []string
}

func (a *answer) Confirm(_ context.Context, q string) (bool, error) {
	a.questions = append(a.questions, q)
	return a.ok, nil
}

type fixture struct {
	searcher   *fakeSearcher
	summarizer *fakeSummarizer
	downloader *fakeDownloader
	saver      *memSaver
	confirm    *answer
	broker     *pubsub.Broker[Event]
	manager    *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		searcher: &fakeSearcher{results: []domain.SearchResult{
			{Name: "login.pdf", Score: 0.876, Excerpt: "login fails after reset"},
			{Name: "bug.docx", Score: 0.5, Excerpt: "bug report"},
			{Name: "notes.txt", Score: 0.12345},
		}},
		summarizer: &fakeSummarizer{},
		downloader: &fakeDownloader{},
		saver:      &memSaver{},
		confirm:    &answer{ok: true},
		broker:     pubsub.NewBroker[Event](),
	}
	t.Cleanup(f.broker.Shutdown)
	f.manager = NewManager(Deps{
		Searcher:   f.searcher,
		Downloader: f.downloader,
		Summarizer: f.summarizer,
		Saver:      f.saver,
		Confirmer:  f.confirm,
		Events:     f.broker,
	}, 5)
	return f
}

func (f *fixture) search(t *testing.T) View {
	t.Helper()
	v, err := f.manager.RunSearch(context.Background(), "login bug", 5)
	require.NoError(t, err)
	return v
}

func TestRunSearchEmptyQuery(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"", "   ", "\t\n"} {
		v, err := f.manager.RunSearch(context.Background(), q, 5)
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.Equal(t, ListInvalid, v.Kind)
		assert.Equal(t, NoticeEmptyQuery, v.Notice)
		assert.Empty(t, v.Rows)
	}
	assert.Zero(t, f.searcher.calls)
}

func TestRunSearchRendersRows(t *testing.T) {
	f := newFixture(t)
	v := f.search(t)

	assert.Equal(t, ListResults, v.Kind)
	assert.Equal(t, "login bug", v.Query)
	require.Len(t, v.Rows, 3)
	for i, r := range v.Rows {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, LabelDownload, r.DownloadLabel)
		assert.Equal(t, domain.SummaryAbsent, r.Summary)
	}
	assert.Equal(t, []string{"0.88", "0.50", "0.12"}, []string{v.Rows[0].Score, v.Rows[1].Score, v.Rows[2].Score})
	assert.Equal(t, "login fails after reset", v.Rows[0].Excerpt)
	assert.Empty(t, v.Rows[2].Excerpt)
}

func TestRunSearchNoResultsDiffersFromError(t *testing.T) {
	f := newFixture(t)
	f.searcher.results = nil
	v, err := f.manager.RunSearch(context.Background(), "nothing", 5)
	require.NoError(t, err)
	assert.Equal(t, ListEmpty, v.Kind)
	assert.Equal(t, NoticeNoResults, v.Notice)

	f.searcher.err = &docapi.ServerError{Op: "search", Status: 500}
	v, err = f.manager.RunSearch(context.Background(), "nothing", 5)
	require.Error(t, err)
	assert.Equal(t, ListError, v.Kind)
	assert.NotEqual(t, NoticeNoResults, v.Notice)
}

func TestRunSearchErrorNotices(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"malformed", &docapi.MalformedResponseError{Status: 502, Raw: "upstream exploded"}, "Server error: upstream exploded"},
		{"detail", &docapi.ServerError{Status: 422, Detail: "q is required"}, "Error: q is required"},
		{"status text", &docapi.ServerError{Status: 404}, "Error: Not Found"},
		{"transport", &docapi.TransportError{Op: "search", Err: errors.New("connection refused")}, "Exception: search: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.searcher.err = tt.err
			v, err := f.manager.RunSearch(context.Background(), "q", 3)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.want, v.Notice)
			assert.Empty(t, v.Rows)
		})
	}
}

func TestRunSearchDefaultTopK(t *testing.T) {
	var got int
	m := NewManager(Deps{Searcher: searchFunc(func(_ string, k int) { got = k })}, 7)
	_, err := m.RunSearch(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

type searchFunc func(q string, k int)

func (f searchFunc) Search(_ context.Context, q string, k int) ([]domain.SearchResult, error) {
	f(q, k)
	return nil, nil
}

func TestToggleSummaryRoundTrip(t *testing.T) {
	f := newFixture(t)
	before := f.search(t)

	state, err := f.manager.ToggleSummary(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryShown, state)
	shown := f.manager.Snapshot().Rows[0]
	assert.Equal(t, "login, bug", shown.Keywords)
	assert.Equal(t, "summary of login.pdf", shown.SummaryText)
	require.Len(t, f.summarizer.calls, 1)
	assert.Equal(t, domain.SummaryRequest{Text: "login fails after reset", Source: "login.pdf", Query: "login bug"}, f.summarizer.calls[0])

	state, err = f.manager.ToggleSummary(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryAbsent, state)
	assert.Equal(t, before, f.manager.Snapshot())
	assert.Equal(t, 1, f.summarizer.count(), "hiding makes no network call")
}

func TestToggleSummaryIgnoredWhileGenerating(t *testing.T) {
	f := newFixture(t)
	f.search(t)
	f.summarizer.gate = make(chan struct{})

	done := make(chan domain.SummaryState, 1)
	go func() {
		s, _ := f.manager.ToggleSummary(context.Background(), 1)
		done <- s
	}()
	require.Eventually(t, func() bool {
		return f.manager.Snapshot().Rows[1].Summary == domain.SummaryGenerating
	}, time.Second, 5*time.Millisecond)

	state, err := f.manager.ToggleSummary(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryGenerating, state)

	// other rows generate independently
	other := make(chan struct{})
	go func() {
		_, _ = f.manager.ToggleSummary(context.Background(), 2)
		close(other)
	}()

	close(f.summarizer.gate)
	assert.Equal(t, domain.SummaryShown, <-done)
	<-other
	assert.Equal(t, 2, f.summarizer.count())
}

// gatedSummarizer blocks each document until its gate is closed.
type gatedSummarizer struct {
	gates map[string]chan struct{}
}

func (g *gatedSummarizer) Summarize(ctx context.Context, req domain.SummaryRequest) (domain.Summary, error) {
	select {
	case <-g.gates[req.Source]:
	case <-ctx.Done():
		return domain.Summary{}, ctx.Err()
	}
	return domain.Summary{Keywords: req.Source, Text: "summary of " + req.Source}, nil
}

func TestToggleSummaryRowsGenerateConcurrently(t *testing.T) {
	f := newFixture(t)
	gated := &gatedSummarizer{gates: map[string]chan struct{}{
		"login.pdf": make(chan struct{}),
		"bug.docx":  make(chan struct{}),
	}}
	f.manager.deps.Summarizer = gated
	f.search(t)

	toggle := func(idx int) <-chan domain.SummaryState {
		out := make(chan domain.SummaryState, 1)
		go func() {
			s, _ := f.manager.ToggleSummary(context.Background(), idx)
			out <- s
		}()
		return out
	}
	generating := func(idx int) func() bool {
		return func() bool { return f.manager.Snapshot().Rows[idx].Summary == domain.SummaryGenerating }
	}

	first := toggle(0)
	require.Eventually(t, generating(0), time.Second, 5*time.Millisecond)
	second := toggle(1)
	require.Eventually(t, generating(1), time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.SummaryGenerating, f.manager.Snapshot().Rows[0].Summary)

	// row 1 finishes while row 0 is still generating
	close(gated.gates["bug.docx"])
	assert.Equal(t, domain.SummaryShown, <-second)
	v := f.manager.Snapshot()
	assert.Equal(t, domain.SummaryGenerating, v.Rows[0].Summary)
	assert.Equal(t, "summary of bug.docx", v.Rows[1].SummaryText)

	close(gated.gates["login.pdf"])
	assert.Equal(t, domain.SummaryShown, <-first)
	v = f.manager.Snapshot()
	assert.Equal(t, "summary of login.pdf", v.Rows[0].SummaryText)
	assert.Equal(t, "summary of bug.docx", v.Rows[1].SummaryText)
}

func TestToggleSummaryFailureIsNotCached(t *testing.T) {
	f := newFixture(t)
	f.search(t)
	f.summarizer.errs = []error{&docapi.ServerError{Op: "summarize", Status: 200, Detail: "no text"}}

	sub := f.broker.Subscribe(context.Background())

	state, err := f.manager.ToggleSummary(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, domain.SummaryAbsent, state)
	assert.Equal(t, domain.SummaryAbsent, f.manager.Snapshot().Rows[0].Summary)

	var alert string
	for alert == "" {
		select {
		case ev := <-sub:
			alert = ev.Payload.Alert
		case <-time.After(time.Second):
			t.Fatal("no alert published")
		}
	}
	assert.Equal(t, "no text", alert)

	state, err = f.manager.ToggleSummary(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryShown, state)
	assert.Equal(t, 2, f.summarizer.count())
}

func TestToggleSummaryStaleAfterNewSearch(t *testing.T) {
	f := newFixture(t)
	f.search(t)
	f.summarizer.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.ToggleSummary(context.Background(), 0)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.manager.Snapshot().Rows[0].Summary == domain.SummaryGenerating
	}, time.Second, 5*time.Millisecond)

	f.search(t)
	close(f.summarizer.gate)

	assert.ErrorIs(t, <-done, ErrStale)
	for _, r := range f.manager.Snapshot().Rows {
		assert.Equal(t, domain.SummaryAbsent, r.Summary)
	}
}

func TestToggleSummaryNoSuchRow(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.ToggleSummary(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoSuchRow)

	f.search(t)
	_, err = f.manager.ToggleSummary(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNoSuchRow)
}

func TestDownloadConfirmed(t *testing.T) {
	f := newFixture(t)
	f.search(t)

	path, err := f.manager.Download(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "/downloads/bug.docx", path)
	assert.Equal(t, "content of bug.docx", f.saver.saved["bug.docx"])
	assert.Equal(t, []string{"Download bug.docx?"}, f.confirm.questions)

	row := f.manager.Snapshot().Rows[1]
	assert.False(t, row.Downloading)
	assert.Equal(t, LabelDownload, row.DownloadLabel)
}

func TestDownloadDeclined(t *testing.T) {
	f := newFixture(t)
	f.search(t)
	f.confirm.ok = false

	_, err := f.manager.Download(context.Background(), 0)
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Empty(t, f.downloader.calls)
}

func TestDownloadFailureRestoresControl(t *testing.T) {
	f := newFixture(t)
	f.search(t)
	f.downloader.err = &docapi.ServerError{Op: "download", Status: 404, Detail: "download failed: not found"}
	sub := f.broker.Subscribe(context.Background())

	_, err := f.manager.Download(context.Background(), 0)
	require.Error(t, err)
	assert.False(t, f.manager.Snapshot().Rows[0].Downloading)
	assert.Empty(t, f.saver.saved)

	var labels []bool
	var alert string
	for alert == "" {
		select {
		case ev := <-sub:
			labels = append(labels, ev.Payload.Alert == "")
			alert = ev.Payload.Alert
		case <-time.After(time.Second):
			t.Fatal("no alert published")
		}
	}
	assert.Equal(t, "download failed: not found", alert)
	assert.Len(t, labels, 2)
}

func TestDownloadByName(t *testing.T) {
	f := newFixture(t)

	path, err := f.manager.DownloadByName(context.Background(), "report.pdf", false)
	require.NoError(t, err)
	assert.Equal(t, "/downloads/report.pdf", path)
	assert.Empty(t, f.confirm.questions)

	f.confirm.ok = false
	_, err = f.manager.DownloadByName(context.Background(), "report.pdf", true)
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Len(t, f.downloader.calls, 1)
}

func TestFormatScore(t *testing.T) {
	tests := map[float64]string{
		0:        "0.00",
		1:        "1.00",
		0.005:    "0.01",
		0.994999: "0.99",
		12.3456:  "12.35",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatScore(in), "score %v", in)
	}
}
