package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"docfinder/internal/domain"
	"docfinder/internal/pubsub"
	"docfinder/internal/search"
	"docfinder/internal/upload"
)

const maxTopK = 50

// SearchPort is the TUI-facing subset of the search manager.
type SearchPort interface {
	RunSearch(ctx context.Context, query string, topK int) (search.View, error)
	ToggleSummary(ctx context.Context, idx int) (domain.SummaryState, error)
	Download(ctx context.Context, idx int) (string, error)
	Snapshot() search.View
}

// UploadPort starts an upload batch from paths or globs.
type UploadPort interface {
	UploadPaths(ctx context.Context, patterns []string) (upload.Report, error)
}

// Deps wires the model to a session.
type Deps struct {
	Search   SearchPort
	Upload   UploadPort
	Results  pubsub.Subscriber[search.Event]
	Uploads  pubsub.Subscriber[upload.Event]
	Prompter *Prompter
	TopK     int
}

type focus int

const (
	focusQuery focus = iota
	focusList
	focusPaths
)

type (
	searchDoneMsg struct{ err error }
	summaryDoneMsg struct {
		row   int
		state domain.SummaryState
		err   error
	}
	downloadDoneMsg struct {
		path string
		err  error
	}
	uploadDoneMsg struct {
		report upload.Report
		err    error
	}
)

// batchRows are the progress rows of one upload batch.
type batchRows struct {
	id     string
	tasks  []domain.UploadTask
	notice string
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx      context.Context
	search   SearchPort
	uploader UploadPort
	results  <-chan pubsub.Event[search.Event]
	uploads  <-chan pubsub.Event[upload.Event]
	prompts  <-chan promptRequest

	input    textinput.Model
	paths    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	bar      progress.Model

	focus     focus
	view      search.View
	cursor    int
	topK      int
	searching bool
	batches   []batchRows
	prompt    *promptRequest
	alert     string
	status    string
	width     int
	height    int
	ready     bool
}

// New creates a new TUI model instance. The subscriptions end with ctx.
func New(ctx context.Context, deps Deps) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	pi := textinput.New()
	pi.Prompt = "upload> "
	pi.Placeholder = "paths or globs, e.g. docs/**/*.pdf"
	pi.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	topK := deps.TopK
	if topK < 1 {
		topK = 5
	}
	m := Model{
		ctx:      ctx,
		search:   deps.Search,
		uploader: deps.Upload,
		input:    ti,
		paths:    pi,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(24), progress.WithoutPercentage()),
		topK:     topK,
		status:   "Type to search. ctrl+u uploads files.",
	}
	if deps.Results != nil {
		m.results = deps.Results.Subscribe(ctx)
	}
	if deps.Uploads != nil {
		m.uploads = deps.Uploads.Subscribe(ctx)
	}
	if deps.Prompter != nil {
		m.prompts = deps.Prompter.requests
	}
	if deps.Search != nil {
		m.view = deps.Search.Snapshot()
	}
	return m
}

// Init starts the cursor blink, the spinner and the event listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForResult(),
		m.waitForUpload(),
		m.waitForPrompt(),
	)
}

func (m Model) waitForResult() tea.Cmd {
	if m.results == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.results
		if !ok {
			return nil
		}
		return ev
	}
}

func (m Model) waitForUpload() tea.Cmd {
	if m.uploads == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.uploads
		if !ok {
			return nil
		}
		return ev
	}
}

func (m Model) waitForPrompt() tea.Cmd {
	if m.prompts == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case req := <-m.prompts:
			return req
		case <-m.ctx.Done():
			return nil
		}
	}
}

// Update handles key, window and session events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = max(10, min(40, msg.Width/4))
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case pubsub.Event[search.Event]:
		m.view = m.search.Snapshot()
		if msg.Payload.Alert != "" {
			m.alert = msg.Payload.Alert
		}
		m.clampCursor()
		m.refresh()
		return m, m.waitForResult()

	case pubsub.Event[upload.Event]:
		m.applyUpload(msg)
		m.refresh()
		return m, m.waitForUpload()

	case promptRequest:
		m.prompt = &msg
		m.refresh()
		return m, nil

	case searchDoneMsg:
		m.searching = false
		m.view = m.search.Snapshot()
		m.cursor = 0
		if len(m.view.Rows) > 0 {
			m.setFocus(focusList)
		}
		if msg.err != nil && !errors.Is(msg.err, search.ErrStale) {
			log.Debug().Err(msg.err).Msg("search ended with error")
		}
		m.refresh()
		return m, nil

	case summaryDoneMsg:
		if msg.err != nil {
			log.Debug().Int("row", msg.row).Err(msg.err).Msg("summary ended with error")
		}
		return m, nil

	case downloadDoneMsg:
		switch {
		case msg.err == nil:
			m.status = "Saved " + msg.path
		case errors.Is(msg.err, search.ErrDeclined):
			m.status = "Download cancelled."
		case errors.Is(msg.err, search.ErrBusy):
			m.status = "Download already running."
		}
		m.refresh()
		return m, nil

	case uploadDoneMsg:
		if msg.err != nil {
			m.status = "Upload: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Uploaded batch of %d file(s).", len(msg.report.Tasks))
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusQuery:
		m.input, cmd = m.input.Update(msg)
	case focusPaths:
		m.paths, cmd = m.paths.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global quits
	if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
		return m, tea.Quit
	}

	if m.prompt != nil {
		var answer, answered bool
		switch msg.String() {
		case "y", "Y":
			answer, answered = true, true
		case "n", "N", "esc", "enter":
			answered = true
		}
		if !answered {
			return m, nil
		}
		m.prompt.reply <- answer
		m.prompt = nil
		m.refresh()
		return m, m.waitForPrompt()
	}

	if m.alert != "" {
		m.alert = ""
		m.refresh()
		return m, nil
	}

	switch msg.String() {
	case "ctrl+up":
		m.topK = min(maxTopK, m.topK+1)
		return m, nil
	case "ctrl+down":
		m.topK = max(1, m.topK-1)
		return m, nil
	case "ctrl+u":
		m.setFocus(focusPaths)
		m.refresh()
		return m, textinput.Blink
	case "tab":
		if m.focus == focusQuery && len(m.view.Rows) > 0 {
			m.setFocus(focusList)
		} else {
			m.setFocus(focusQuery)
		}
		m.refresh()
		return m, nil
	}

	switch m.focus {
	case focusPaths:
		switch msg.String() {
		case "esc":
			m.paths.Reset()
			m.setFocus(focusQuery)
			m.refresh()
			return m, nil
		case "enter":
			patterns := strings.Fields(m.paths.Value())
			m.paths.Reset()
			m.setFocus(focusQuery)
			m.refresh()
			if len(patterns) == 0 {
				return m, nil
			}
			return m, m.uploadCmd(patterns)
		}
		var cmd tea.Cmd
		m.paths, cmd = m.paths.Update(msg)
		return m, cmd

	case focusList:
		switch msg.String() {
		case "up", "k":
			if n := len(m.view.Rows); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
			}
		case "down", "j":
			if n := len(m.view.Rows); n > 0 {
				m.cursor = (m.cursor + 1) % n
			}
		case "enter", " ":
			if len(m.view.Rows) > 0 {
				return m, m.toggleCmd(m.cursor)
			}
		case "d":
			if len(m.view.Rows) > 0 {
				return m, m.downloadCmd(m.cursor)
			}
		case "esc", "/":
			m.setFocus(focusQuery)
		}
		m.refresh()
		return m, nil
	}

	if msg.String() == "enter" {
		m.searching = true
		m.refresh()
		return m, m.searchCmd(m.input.Value())
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) searchCmd(query string) tea.Cmd {
	ctx, svc, topK := m.ctx, m.search, m.topK
	return func() tea.Msg {
		_, err := svc.RunSearch(ctx, query, topK)
		return searchDoneMsg{err: err}
	}
}

func (m Model) toggleCmd(row int) tea.Cmd {
	ctx, svc := m.ctx, m.search
	return func() tea.Msg {
		state, err := svc.ToggleSummary(ctx, row)
		return summaryDoneMsg{row: row, state: state, err: err}
	}
}

func (m Model) downloadCmd(row int) tea.Cmd {
	ctx, svc := m.ctx, m.search
	return func() tea.Msg {
		path, err := svc.Download(ctx, row)
		return downloadDoneMsg{path: path, err: err}
	}
}

func (m Model) uploadCmd(patterns []string) tea.Cmd {
	ctx, up := m.ctx, m.uploader
	if up == nil {
		return nil
	}
	return func() tea.Msg {
		report, err := up.UploadPaths(ctx, patterns)
		return uploadDoneMsg{report: report, err: err}
	}
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	m.input.Blur()
	m.paths.Blur()
	switch f {
	case focusQuery:
		m.input.Focus()
	case focusPaths:
		m.paths.Focus()
	}
}

func (m *Model) clampCursor() {
	if n := len(m.view.Rows); m.cursor >= n {
		m.cursor = max(0, n-1)
	}
	if len(m.view.Rows) == 0 && m.focus == focusList {
		m.setFocus(focusQuery)
	}
}

func (m *Model) applyUpload(ev pubsub.Event[upload.Event]) {
	p := ev.Payload
	idx := -1
	for i := range m.batches {
		if m.batches[i].id == p.BatchID {
			idx = i
			break
		}
	}
	if idx < 0 {
		if ev.Type == pubsub.DeletedEvent {
			return
		}
		m.batches = append(m.batches, batchRows{id: p.BatchID, tasks: make([]domain.UploadTask, p.Size)})
		idx = len(m.batches) - 1
	}
	b := &m.batches[idx]
	switch ev.Type {
	case pubsub.CreatedEvent, pubsub.UpdatedEvent:
		if p.Task.Index >= 0 && p.Task.Index < len(b.tasks) {
			b.tasks[p.Task.Index] = p.Task
		}
	case pubsub.FinishedEvent:
		b.notice = p.Message
	case pubsub.DeletedEvent:
		m.batches = append(m.batches[:idx], m.batches[idx+1:]...)
	}
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	parts := []string{m.headerView(), resultBoxStyle.Render(m.viewport.View())}
	if up := m.uploadView(); up != "" {
		parts = append(parts, up)
	}
	parts = append(parts, m.footerView()...)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) headerView() string {
	title := titleStyle.Render("Document Search")
	return title + "  " + mutedStyle.Render(fmt.Sprintf("top_k=%d", m.topK))
}

func (m Model) footerView() []string {
	var parts []string
	switch {
	case m.prompt != nil:
		parts = append(parts, promptStyle.Render(m.prompt.question+" [y/N]"))
	case m.alert != "":
		parts = append(parts, alertStyle.Render(m.alert+"  (press any key)"))
	}
	if m.focus == focusPaths {
		parts = append(parts, queryBoxStyle.Render(m.paths.View()))
	} else {
		parts = append(parts, queryBoxStyle.Render(m.input.View()))
	}
	parts = append(parts, statusStyle.Render(m.status), mutedStyle.Render(m.helpLine()))
	return parts
}

func (m Model) helpLine() string {
	switch m.focus {
	case focusList:
		return "up/down move  enter summary  d download  tab query  ctrl+c quit"
	case focusPaths:
		return "enter upload  esc cancel"
	default:
		return "enter search  tab results  ctrl+u upload  ctrl+up/down top_k  ctrl+c quit"
	}
}

// refresh re-renders the result list into the viewport and sizes it to the
// space left by the other parts.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	_, rh := resultBoxStyle.GetFrameSize()
	rw, _ := resultBoxStyle.GetFrameSize()
	used := lipgloss.Height(m.headerView())
	if up := m.uploadView(); up != "" {
		used += lipgloss.Height(up)
	}
	for _, p := range m.footerView() {
		used += lipgloss.Height(p)
	}
	m.viewport.Width = max(20, m.width-rw)
	m.viewport.Height = max(3, m.height-used-rh)

	content, offset := m.renderResults()
	m.viewport.SetContent(content)
	if offset < m.viewport.YOffset || offset >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(offset)
	}
}
