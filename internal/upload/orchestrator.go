package upload

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"docfinder/internal/domain"
	"docfinder/internal/pubsub"
)

// Row status texts.
const (
	StatusComplete  = "upload complete!"
	StatusDuplicate = "duplicate, not uploaded"
	StatusFailed    = "upload failed"
	StatusError     = "upload error"
	BatchComplete   = "upload complete!"
)

// Event is published for every row and batch transition. Task is the zero
// value for batch-level events.
type Event struct {
	BatchID string
	Size    int
	Task    domain.UploadTask
	Message string
}

// Report is the final state of a batch.
type Report struct {
	BatchID  string
	Tasks    []domain.UploadTask
	Finished int
}

// Options tune the display timers of a batch.
type Options struct {
	// CompleteDelay is waited after the last task finishes before the
	// aggregate message is shown.
	CompleteDelay time.Duration
	// ClearDelay is waited after the aggregate message before rows are cleared.
	ClearDelay time.Duration
}

// Orchestrator runs one upload pipeline per file, all in parallel.
type Orchestrator struct {
	uploader  domain.Uploader
	confirmer domain.Confirmer
	events    pubsub.Publisher[Event]
	opts      Options
}

// NewOrchestrator creates an orchestrator publishing row events to events.
func NewOrchestrator(uploader domain.Uploader, confirmer domain.Confirmer, events pubsub.Publisher[Event], opts Options) *Orchestrator {
	return &Orchestrator{uploader: uploader, confirmer: confirmer, events: events, opts: opts}
}

// SubmitBatch uploads every file concurrently and returns once the batch has
// completed and its rows were cleared. Each task is counted exactly once.
func (o *Orchestrator) SubmitBatch(ctx context.Context, files []domain.FileRef) (Report, error) {
	if len(files) == 0 {
		return Report{}, ErrEmptyBatch
	}
	b := newBatch(uuid.NewString(), files)
	logger := log.With().Str("batch_id", b.id).Int("size", len(files)).Logger()
	logger.Info().Msg("upload batch started")

	for i := range b.tasks {
		o.deliver(ctx, pubsub.CreatedEvent, b.event(i))
	}

	var g errgroup.Group
	for i := range b.tasks {
		i := i
		g.Go(func() error {
			o.runTask(ctx, b, i)
			if b.finish(i) {
				o.complete(ctx, b)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := b.report()
	logger.Info().Int("finished", report.Finished).Msg("upload batch done")
	return report, nil
}

// runTask drives one file to a terminal state. A duplicate conflict is
// resolved by asking the user; a confirmed overwrite is a fresh upload and
// only its outcome counts.
func (o *Orchestrator) runTask(ctx context.Context, b *batch, idx int) {
	overwrite := false
	for {
		outcome := o.attempt(ctx, b, idx, overwrite)
		if outcome.Kind != domain.UploadConflict {
			return
		}
		if overwrite {
			// the overwrite flag only ever flips once
			return
		}
		name := b.name(idx)
		ok, err := o.confirmer.Confirm(ctx, fmt.Sprintf("%s already exists. Overwrite?", name))
		if err != nil {
			log.Warn().Str("batch_id", b.id).Str("file", name).Err(err).Msg("overwrite confirmation failed")
			return
		}
		if !ok {
			log.Info().Str("batch_id", b.id).Str("file", name).Msg("overwrite declined")
			return
		}
		overwrite = true
		b.setOverwrite(idx)
	}
}

func (o *Orchestrator) attempt(ctx context.Context, b *batch, idx int, overwrite bool) domain.UploadOutcome {
	attempt := b.start(idx)
	o.deliver(ctx, pubsub.UpdatedEvent, b.event(idx))

	file := b.file(idx)
	outcome := o.uploader.Upload(ctx, file, overwrite, func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := int(math.Round(float64(sent) / float64(total) * 100))
		if b.progress(idx, attempt, pct) {
			o.events.Publish(pubsub.UpdatedEvent, b.event(idx))
		}
	})

	b.settle(idx, outcome)
	o.deliver(ctx, pubsub.UpdatedEvent, b.event(idx))

	evt := log.Info()
	if outcome.Kind != domain.UploadSucceeded {
		evt = log.Warn().Err(outcome.Err)
	}
	evt.Str("batch_id", b.id).Int("task", idx).Str("file", file.Name).
		Bool("overwrite", overwrite).Str("state", string(b.state(idx))).Msg("upload attempt finished")
	return outcome
}

// complete shows the aggregate message after CompleteDelay and clears the
// rows after ClearDelay.
func (o *Orchestrator) complete(ctx context.Context, b *batch) {
	if !sleep(ctx, o.opts.CompleteDelay) {
		return
	}
	o.deliver(ctx, pubsub.FinishedEvent, Event{BatchID: b.id, Size: len(b.tasks), Message: BatchComplete})
	if !sleep(ctx, o.opts.ClearDelay) {
		return
	}
	o.deliver(ctx, pubsub.DeletedEvent, Event{BatchID: b.id, Size: len(b.tasks)})
}

func (o *Orchestrator) deliver(ctx context.Context, t pubsub.EventType, ev Event) {
	if err := o.events.Deliver(ctx, t, ev); err != nil {
		log.Debug().Str("batch_id", ev.BatchID).Err(err).Msg("upload event not delivered")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// batch owns the tasks of one SubmitBatch call.
type batch struct {
	id       string
	mu       sync.Mutex
	tasks    []domain.UploadTask
	attempts []int
	counted  []bool
	finished int
}

func newBatch(id string, files []domain.FileRef) *batch {
	b := &batch{
		id:       id,
		tasks:    make([]domain.UploadTask, len(files)),
		attempts: make([]int, len(files)),
		counted:  make([]bool, len(files)),
	}
	for i, f := range files {
		b.tasks[i] = domain.UploadTask{Index: i, File: f, State: domain.TaskPending, Status: "0%"}
	}
	return b
}

func (b *batch) event(idx int) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Event{BatchID: b.id, Size: len(b.tasks), Task: b.tasks[idx]}
}

func (b *batch) file(idx int) domain.FileRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tasks[idx].File
}

func (b *batch) name(idx int) string { return b.file(idx).Name }

func (b *batch) state(idx int) domain.TaskState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tasks[idx].State
}

func (b *batch) setOverwrite(idx int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks[idx].Overwrite = true
}

// start begins a new attempt and returns its number.
func (b *batch) start(idx int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts[idx]++
	t := &b.tasks[idx]
	t.State = domain.TaskUploading
	t.Percent = 0
	t.Status = "0%"
	return b.attempts[idx]
}

// progress applies a percentage if it belongs to the current attempt, the
// task is still uploading and the value does not go backwards.
func (b *batch) progress(idx, attempt, pct int) bool {
	pct = max(0, min(100, pct))
	b.mu.Lock()
	defer b.mu.Unlock()
	t := &b.tasks[idx]
	if b.attempts[idx] != attempt || t.State != domain.TaskUploading || pct < t.Percent {
		return false
	}
	t.Percent = pct
	t.Status = fmt.Sprintf("%d%%", pct)
	return true
}

func (b *batch) settle(idx int, outcome domain.UploadOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := &b.tasks[idx]
	switch outcome.Kind {
	case domain.UploadSucceeded:
		t.State, t.Percent, t.Status = domain.TaskSucceeded, 100, StatusComplete
	case domain.UploadConflict:
		t.State, t.Percent, t.Status = domain.TaskRejected, 0, StatusDuplicate
	case domain.UploadTransportError:
		t.State, t.Status = domain.TaskFailed, StatusError
	default:
		t.State, t.Status = domain.TaskFailed, StatusFailed
	}
}

// finish counts a task once and reports whether it was the last one.
func (b *batch) finish(idx int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.counted[idx] {
		return false
	}
	b.counted[idx] = true
	b.finished++
	return b.finished == len(b.tasks)
}

func (b *batch) report() Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	tasks := make([]domain.UploadTask, len(b.tasks))
	copy(tasks, b.tasks)
	return Report{BatchID: b.id, Tasks: tasks, Finished: b.finished}
}
