package domain

// FileRef identifies a local file selected for upload.
type FileRef struct {
	Path string
	Name string
	Size int64
}

// TaskState is the lifecycle state of one file's upload pipeline.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskUploading TaskState = "uploading"
	TaskSucceeded TaskState = "succeeded"
	// TaskRejected means the name already existed and nothing was written.
	TaskRejected TaskState = "rejected"
	TaskFailed   TaskState = "failed"
)

// UploadTask is the observable state of one file within a batch.
type UploadTask struct {
	Index     int
	File      FileRef
	Overwrite bool
	Percent   int
	State     TaskState
	Status    string
}

// UploadOutcomeKind classifies the server's answer to one upload attempt.
type UploadOutcomeKind int

const (
	UploadSucceeded UploadOutcomeKind = iota
	UploadConflict
	UploadFailed
	UploadTransportError
)

// UploadOutcome is the result of a single upload attempt.
type UploadOutcome struct {
	Kind    UploadOutcomeKind
	Message string
	Err     error
}

// SearchResult is one ranked document returned for a query. Score is opaque.
type SearchResult struct {
	Name    string
	Score   float64
	Excerpt string
}

// SummaryState tracks the lazily generated summary attached to a result row.
type SummaryState int

const (
	SummaryAbsent SummaryState = iota
	SummaryGenerating
	SummaryShown
)

func (s SummaryState) String() string {
	switch s {
	case SummaryGenerating:
		return "generating"
	case SummaryShown:
		return "shown"
	default:
		return "absent"
	}
}

// SummaryRequest is what the summarize endpoint receives.
type SummaryRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Query  string `json:"query"`
}

// Summary holds generated keywords and summary text.
type Summary struct {
	Keywords string `json:"keywords"`
	Text     string `json:"summary"`
}
