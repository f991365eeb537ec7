package tui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"docfinder/internal/domain"
	"docfinder/internal/search"
	"docfinder/internal/textutil"
)

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	summaryStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("12")).Padding(0, 1).MarginLeft(3)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	dimStyle       = lipgloss.NewStyle().Faint(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	alertStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("9")).Padding(0, 1)
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	taskStyles = map[domain.TaskState]lipgloss.Style{
		domain.TaskSucceeded: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		domain.TaskRejected:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		domain.TaskFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}

	unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// renderResults returns the result area and the line the cursor row starts on.
func (m Model) renderResults() (string, int) {
	v := m.view
	if m.searching {
		return m.spinner.View() + " " + search.NoticeSearching, 0
	}
	switch v.Kind {
	case search.ListIdle:
		return mutedStyle.Render("No results yet."), 0
	case search.ListSearching:
		return m.spinner.View() + " " + v.Notice, 0
	case search.ListError:
		return errorStyle.Render(v.Notice), 0
	case search.ListInvalid, search.ListEmpty:
		return v.Notice, 0
	}

	var b strings.Builder
	offset := 0
	for i, r := range v.Rows {
		if i == m.cursor {
			offset = strings.Count(b.String(), "\n")
		}
		b.WriteString(m.renderRow(i, r, v.Query))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), offset
}

func (m Model) renderRow(i int, r search.RowView, query string) string {
	marker := "  "
	title := fmt.Sprintf("%d. %s [%s]", r.Rank, r.Name, r.DownloadLabel)
	if i == m.cursor && m.focus == focusList {
		marker = "> "
		title = selectedStyle.Render(title)
	}
	lines := []string{
		marker + title,
		"   " + mutedStyle.Render("similarity: "+r.Score),
	}
	if strings.TrimSpace(r.Excerpt) != "" {
		width := max(20, m.viewport.Width-3)
		excerpt := lipgloss.NewStyle().Width(width).Render(highlightBestSentence(r.Excerpt, query))
		for _, l := range strings.Split(excerpt, "\n") {
			lines = append(lines, "   "+l)
		}
	}
	switch r.Summary {
	case domain.SummaryGenerating:
		for j := range lines {
			lines[j] = dimStyle.Render(lines[j])
		}
		lines = append(lines, "   "+m.spinner.View()+" generating...")
	case domain.SummaryShown:
		box := fmt.Sprintf("Keywords: %s\nSummary: %s", r.Keywords, r.SummaryText)
		lines = append(lines, summaryStyle.Width(max(20, m.viewport.Width-6)).Render(box))
	}
	return strings.Join(lines, "\n")
}

func (m Model) uploadView() string {
	if len(m.batches) == 0 {
		return ""
	}
	var lines []string
	for _, b := range m.batches {
		for _, t := range b.tasks {
			if t.File.Name == "" {
				continue
			}
			status := t.Status
			if style, ok := taskStyles[t.State]; ok {
				status = style.Render(status)
			}
			lines = append(lines, fmt.Sprintf("%-24s %s %s", truncate(t.File.Name, 24), m.bar.ViewAs(float64(t.Percent)/100), status))
		}
		if b.notice != "" {
			lines = append(lines, taskStyles[domain.TaskSucceeded].Bold(true).Render(b.notice))
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// highlightBestSentence returns text with the sentence sharing the most
// words with query highlighted. No text is dropped.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textutil.Sentences(strings.TrimSpace(text))
	qTokens := toTokenSet(query)
	bestIdx, bestScore := 0, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestScore > 0 {
		s := sentences[bestIdx]
		core := strings.TrimSpace(s)
		lead := s[:strings.Index(s, core)]
		sentences[bestIdx] = lead + highlightStyle.Render(core) + s[len(lead)+len(core):]
	}
	return strings.Join(sentences, "")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
