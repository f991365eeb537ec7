package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"docfinder/internal/domain"
	"docfinder/internal/fileutil"
	"docfinder/internal/pubsub"
	"docfinder/internal/search"
	"docfinder/internal/service"
	"docfinder/internal/tui"
	"docfinder/internal/upload"
)

func tuiCommand(c *cli.Context) error {
	cfg := appConfig(c)

	// the terminal belongs to the UI, so logs go to a file
	if err := fileutil.EnsureDir(filepath.Dir(cfg.Log.File)); err != nil {
		return err
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	log.Logger = zerolog.New(f).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	prompter := tui.NewPrompter()
	app, err := service.New(cfg, prompter)
	if err != nil {
		return err
	}
	defer app.Close()

	m := tui.New(ctx, tui.Deps{
		Search:   app.Search,
		Upload:   app,
		Results:  app.Results,
		Uploads:  app.Uploads,
		Prompter: prompter,
		TopK:     app.TopK(),
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func uploadCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one path or glob is required")
	}
	if c.Bool("overwrite-all") && c.Bool("no-overwrite") {
		return errors.New("--overwrite-all and --no-overwrite are mutually exclusive")
	}
	out := &lockedWriter{w: c.App.Writer}
	confirm := newLineConfirmer(c.App.Reader, out)
	switch {
	case c.Bool("overwrite-all"):
		confirm.fixed = boolPtr(true)
	case c.Bool("no-overwrite"):
		confirm.fixed = boolPtr(false)
	}

	app, err := service.New(appConfig(c), confirm)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	done := make(chan struct{})
	events := app.Uploads.Subscribe(ctx)
	go func() {
		defer close(done)
		printUploads(out, events)
	}()

	report, err := app.UploadPaths(ctx, c.Args().Slice())
	cancel()
	<-done
	if err != nil {
		return err
	}

	var failed int
	for _, t := range report.Tasks {
		if t.State == domain.TaskFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(report.Tasks))
	}
	return nil
}

// printUploads writes one line per terminal task transition and the batch
// message.
func printUploads(w io.Writer, events <-chan pubsub.Event[upload.Event]) {
	for ev := range events {
		switch ev.Type {
		case pubsub.UpdatedEvent:
			t := ev.Payload.Task
			if t.State == domain.TaskUploading {
				continue
			}
			fmt.Fprintf(w, "%s: %s\n", t.File.Name, t.Status)
		case pubsub.FinishedEvent:
			fmt.Fprintln(w, ev.Payload.Message)
		}
	}
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	cfg := appConfig(c)
	app, err := service.New(cfg, newLineConfirmer(c.App.Reader, c.App.Writer))
	if err != nil {
		return err
	}
	defer app.Close()

	view, err := app.Search.RunSearch(c.Context, query, c.Int("top-k"))
	if err != nil {
		return errors.New(view.Notice)
	}
	printView(c.App.Writer, view)

	if n := c.Int("summarize"); n > 0 {
		if n > len(view.Rows) {
			return fmt.Errorf("no result %d", n)
		}
		if _, err := app.Search.ToggleSummary(c.Context, n-1); err != nil {
			return fmt.Errorf("summary failed: %w", err)
		}
		row := app.Search.Snapshot().Rows[n-1]
		fmt.Fprintf(c.App.Writer, "\nKeywords: %s\nSummary: %s\n", row.Keywords, row.SummaryText)
	}
	return nil
}

func printView(w io.Writer, v search.View) {
	if len(v.Rows) == 0 {
		fmt.Fprintln(w, v.Notice)
		return
	}
	for _, r := range v.Rows {
		fmt.Fprintf(w, "%d. %s [%s]  %s\n", r.Rank, r.Name, r.DownloadLabel, r.Score)
		if r.Excerpt != "" {
			fmt.Fprintf(w, "   %s\n", strings.Join(strings.Fields(r.Excerpt), " "))
		}
	}
}

func downloadCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one document name is required")
	}
	app, err := service.New(appConfig(c), newLineConfirmer(c.App.Reader, c.App.Writer))
	if err != nil {
		return err
	}
	defer app.Close()

	path, err := app.Search.DownloadByName(c.Context, c.Args().First(), !c.Bool("yes"))
	if errors.Is(err, search.ErrDeclined) {
		fmt.Fprintln(c.App.Writer, "Download cancelled.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "Saved", path)
	return nil
}

// lineConfirmer asks y/N questions on a line-oriented stream. Concurrent
// prompts are serialized.
type lineConfirmer struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	fixed *bool
}

func newLineConfirmer(in io.Reader, out io.Writer) *lineConfirmer {
	return &lineConfirmer{in: bufio.NewReader(in), out: out}
}

func (l *lineConfirmer) Confirm(ctx context.Context, question string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if l.fixed != nil {
		answer := "n"
		if *l.fixed {
			answer = "y"
		}
		fmt.Fprintf(l.out, "%s %s\n", question, answer)
		return *l.fixed, nil
	}

	fmt.Fprintf(l.out, "%s [y/N] ", question)
	line, err := l.in.ReadString('\n')
	if err != nil && line == "" {
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(l.out)
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func boolPtr(b bool) *bool { return &b }

// lockedWriter serializes writes from the progress printer and the prompts.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
