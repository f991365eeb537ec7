package domain

import (
	"context"
	"io"
)

// ProgressFunc receives byte-level progress of an upload attempt. It is only
// called when the total is known (length-computable).
type ProgressFunc func(sent, total int64)

// Uploader sends one file to the document store.
type Uploader interface {
	Upload(ctx context.Context, file FileRef, overwrite bool, progress ProgressFunc) UploadOutcome
}

// Searcher runs a natural-language query against the indexed corpus.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]SearchResult, error)
}

// Downloader fetches the raw bytes of a stored document by name.
type Downloader interface {
	Download(ctx context.Context, name string) (io.ReadCloser, error)
}

// Summarizer produces keywords and a short summary for a result excerpt.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (Summary, error)
}

// Saver persists downloaded content under its original name and returns the
// final location.
type Saver interface {
	Save(name string, r io.Reader) (string, error)
}

// Confirmer asks the user a yes/no question. Implementations may serialize
// prompts; only the caller blocks while waiting for an answer.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}
