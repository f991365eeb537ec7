package search

import (
	"fmt"
	"sync"

	"docfinder/internal/domain"
)

// Download control labels.
const (
	LabelDownload    = "download"
	LabelDownloading = "downloading..."
)

// ListKind describes what the result area currently shows.
type ListKind int

const (
	ListIdle ListKind = iota
	ListInvalid
	ListSearching
	ListResults
	ListEmpty
	ListError
)

type row struct {
	result      domain.SearchResult
	summary     domain.SummaryState
	data        domain.Summary
	downloading bool
}

// session is the result list of the current query. A new search replaces it
// wholesale and bumps the generation.
type session struct {
	mu         sync.Mutex
	generation uint64
	query      string
	kind       ListKind
	notice     string
	rows       []row
}

// RowView is a read-only copy of one result row.
type RowView struct {
	Rank          int
	Name          string
	Score         string
	Excerpt       string
	Summary       domain.SummaryState
	Keywords      string
	SummaryText   string
	Downloading   bool
	DownloadLabel string
}

// View is a read-only copy of the whole result area.
type View struct {
	Generation uint64
	Query      string
	Kind       ListKind
	Notice     string
	Rows       []RowView
}

// FormatScore renders a similarity score with exactly two decimals.
func FormatScore(score float64) string {
	return fmt.Sprintf("%.2f", score)
}

// replace discards the current list and starts a new generation.
func (s *session) replace(query string, kind ListKind, notice string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.query = query
	s.kind = kind
	s.notice = notice
	s.rows = nil
	return s.generation
}

// settle fills in the outcome of the search for generation gen. It reports
// false when a newer search has started meanwhile.
func (s *session) settle(gen uint64, kind ListKind, notice string, results []domain.SearchResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	s.kind = kind
	s.notice = notice
	s.rows = make([]row, len(results))
	for i, r := range results {
		s.rows[i] = row{result: r}
	}
	return true
}

// update runs fn on row idx of generation gen under the lock.
func (s *session) update(gen uint64, idx int, fn func(r *row)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return ErrStale
	}
	if idx < 0 || idx >= len(s.rows) {
		return ErrNoSuchRow
	}
	fn(&s.rows[idx])
	return nil
}

// with runs fn on row idx of the current list under the lock and returns the
// generation and query the row belongs to.
func (s *session) with(idx int, fn func(r *row)) (uint64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.rows) {
		return s.generation, s.query, ErrNoSuchRow
	}
	fn(&s.rows[idx])
	return s.generation, s.query, nil
}

func (s *session) snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{Generation: s.generation, Query: s.query, Kind: s.kind, Notice: s.notice}
	if len(s.rows) == 0 {
		return v
	}
	v.Rows = make([]RowView, len(s.rows))
	for i, r := range s.rows {
		label := LabelDownload
		if r.downloading {
			label = LabelDownloading
		}
		rv := RowView{
			Rank:          i + 1,
			Name:          r.result.Name,
			Score:         FormatScore(r.result.Score),
			Excerpt:       r.result.Excerpt,
			Summary:       r.summary,
			Downloading:   r.downloading,
			DownloadLabel: label,
		}
		if r.summary == domain.SummaryShown {
			rv.Keywords = r.data.Keywords
			rv.SummaryText = r.data.Text
		}
		v.Rows[i] = rv
	}
	return v
}
