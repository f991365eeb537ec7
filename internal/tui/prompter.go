package tui

import (
	"context"
	"sync"
)

// promptRequest is a yes/no question waiting for the user.
type promptRequest struct {
	question string
	reply    chan bool
}

// Prompter answers confirmations through the TUI. Prompts are shown one at a
// time; callers queue on the mutex and only the asking goroutine blocks.
type Prompter struct {
	mu       sync.Mutex
	requests chan promptRequest
}

// NewPrompter creates a prompter. Pass it to the model so it can render the
// questions.
func NewPrompter() *Prompter {
	return &Prompter{requests: make(chan promptRequest)}
}

// Confirm shows question and waits for y or n.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req := promptRequest{question: question, reply: make(chan bool, 1)}
	select {
	case p.requests <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-req.reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
