package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"docfinder/internal/docapi"
	"docfinder/internal/domain"
	"docfinder/internal/pubsub"
)

// Notices shown in the result area.
const (
	NoticeEmptyQuery = "Please enter a query."
	NoticeSearching  = "Searching..."
	NoticeNoResults  = "No results found. No document matched the query."
)

// Event tells subscribers that the result area changed. Row is -1 for
// list-level changes. Alert carries a message the user must acknowledge.
type Event struct {
	Generation uint64
	Row        int
	Alert      string
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Searcher   domain.Searcher
	Downloader domain.Downloader
	Summarizer domain.Summarizer
	Saver      domain.Saver
	Confirmer  domain.Confirmer
	Events     pubsub.Publisher[Event]
}

// Manager owns the current result list and the per-row download and
// summary actions attached to it.
type Manager struct {
	deps    Deps
	topK    int
	session session
}

// NewManager creates a manager. topK is used when RunSearch gets a
// non-positive bound.
func NewManager(deps Deps, topK int) *Manager {
	if topK < 1 {
		topK = 5
	}
	return &Manager{deps: deps, topK: topK}
}

// Snapshot returns a copy of the result area.
func (m *Manager) Snapshot() View {
	return m.session.snapshot()
}

// RunSearch replaces the result list with the results for query. The
// returned view is the settled result area; the error is the reason for an
// invalid, failed or superseded search.
func (m *Manager) RunSearch(ctx context.Context, query string, topK int) (View, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		gen := m.session.replace("", ListInvalid, NoticeEmptyQuery)
		m.notify(ctx, Event{Generation: gen, Row: -1})
		return m.Snapshot(), ErrEmptyQuery
	}
	if topK < 1 {
		topK = m.topK
	}

	gen := m.session.replace(query, ListSearching, NoticeSearching)
	m.notify(ctx, Event{Generation: gen, Row: -1})
	logger := log.With().Str("query", query).Int("top_k", topK).Uint64("generation", gen).Logger()

	results, err := m.deps.Searcher.Search(ctx, query, topK)
	kind, notice := ListResults, ""
	switch {
	case err != nil:
		kind, notice = ListError, errorNotice(err)
		results = nil
	case len(results) == 0:
		kind, notice = ListEmpty, NoticeNoResults
	}
	if !m.session.settle(gen, kind, notice, results) {
		logger.Debug().Msg("search superseded, result discarded")
		return m.Snapshot(), ErrStale
	}
	m.notify(ctx, Event{Generation: gen, Row: -1})

	if err != nil {
		logger.Warn().Err(err).Msg("search failed")
	} else {
		logger.Info().Int("results", len(results)).Msg("search done")
	}
	return m.Snapshot(), err
}

// ToggleSummary flips the summary of row idx. A shown summary is removed
// without a network call; a click while one is generating is ignored;
// otherwise a summary is generated and shown. A failed generation leaves
// the row absent so that the next click retries.
func (m *Manager) ToggleSummary(ctx context.Context, idx int) (domain.SummaryState, error) {
	var (
		prev domain.SummaryState
		req  domain.SummaryRequest
	)
	gen, query, err := m.session.with(idx, func(r *row) {
		prev = r.summary
		switch r.summary {
		case domain.SummaryShown:
			r.summary = domain.SummaryAbsent
			r.data = domain.Summary{}
		case domain.SummaryAbsent:
			r.summary = domain.SummaryGenerating
			req = domain.SummaryRequest{Text: r.result.Excerpt, Source: r.result.Name}
		}
	})
	if err != nil {
		return domain.SummaryAbsent, err
	}
	logger := log.With().Uint64("generation", gen).Int("row", idx).Logger()

	switch prev {
	case domain.SummaryShown:
		m.notify(ctx, Event{Generation: gen, Row: idx})
		logger.Debug().Msg("summary hidden")
		return domain.SummaryAbsent, nil
	case domain.SummaryGenerating:
		return domain.SummaryGenerating, nil
	}
	m.notify(ctx, Event{Generation: gen, Row: idx})

	req.Query = query
	summary, err := m.deps.Summarizer.Summarize(ctx, req)
	state := domain.SummaryShown
	if err != nil {
		state = domain.SummaryAbsent
	}
	if uerr := m.session.update(gen, idx, func(r *row) {
		r.summary = state
		if err == nil {
			r.data = summary
		}
	}); uerr != nil {
		logger.Debug().Err(uerr).Msg("summary result discarded")
		return domain.SummaryAbsent, uerr
	}

	if err != nil {
		logger.Warn().Err(err).Msg("summary failed")
		m.notify(ctx, Event{Generation: gen, Row: idx, Alert: alertText(err)})
		return domain.SummaryAbsent, err
	}
	logger.Info().Msg("summary shown")
	m.notify(ctx, Event{Generation: gen, Row: idx})
	return domain.SummaryShown, nil
}

// Download asks for confirmation and saves the document of row idx. The
// row's control is disabled while the download runs and always re-enabled.
func (m *Manager) Download(ctx context.Context, idx int) (string, error) {
	var name string
	var busy bool
	gen, _, err := m.session.with(idx, func(r *row) {
		name = r.result.Name
		busy = r.downloading
	})
	if err != nil {
		return "", err
	}
	if busy {
		return "", ErrBusy
	}
	ok, err := m.deps.Confirmer.Confirm(ctx, fmt.Sprintf("Download %s?", name))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrDeclined
	}

	if err := m.session.update(gen, idx, func(r *row) {
		if r.downloading {
			busy = true
			return
		}
		r.downloading = true
	}); err != nil {
		return "", err
	}
	if busy {
		return "", ErrBusy
	}
	m.notify(ctx, Event{Generation: gen, Row: idx})

	path, err := m.fetch(ctx, name)

	stale := m.session.update(gen, idx, func(r *row) { r.downloading = false }) != nil
	ev := Event{Generation: gen, Row: idx}
	if err != nil {
		ev.Alert = alertText(err)
	}
	if !stale || err != nil {
		m.notify(ctx, ev)
	}
	return path, err
}

// DownloadByName confirms and saves a document that is not tied to a row.
func (m *Manager) DownloadByName(ctx context.Context, name string, confirm bool) (string, error) {
	if confirm {
		ok, err := m.deps.Confirmer.Confirm(ctx, fmt.Sprintf("Download %s?", name))
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrDeclined
		}
	}
	return m.fetch(ctx, name)
}

func (m *Manager) fetch(ctx context.Context, name string) (string, error) {
	logger := log.With().Str("file", name).Logger()
	body, err := m.deps.Downloader.Download(ctx, name)
	if err != nil {
		logger.Warn().Err(err).Msg("download failed")
		return "", err
	}
	defer body.Close()
	path, err := m.deps.Saver.Save(name, body)
	if err != nil {
		logger.Warn().Err(err).Msg("save failed")
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	logger.Info().Str("path", path).Msg("download saved")
	return path, nil
}

func (m *Manager) notify(ctx context.Context, ev Event) {
	if m.deps.Events == nil {
		return
	}
	if err := m.deps.Events.Deliver(ctx, pubsub.UpdatedEvent, ev); err != nil {
		log.Debug().Err(err).Msg("search event not delivered")
	}
}

// errorNotice renders a failed search for the result area.
func errorNotice(err error) string {
	var malformed *docapi.MalformedResponseError
	var server *docapi.ServerError
	switch {
	case errors.As(err, &malformed):
		return "Server error: " + malformed.Display()
	case errors.As(err, &server):
		return "Error: " + server.Message()
	default:
		return "Exception: " + err.Error()
	}
}

func alertText(err error) string {
	var server *docapi.ServerError
	if errors.As(err, &server) {
		return server.Message()
	}
	var malformed *docapi.MalformedResponseError
	if errors.As(err, &malformed) {
		return malformed.Display()
	}
	return err.Error()
}
