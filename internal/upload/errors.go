package upload

import "errors"

// ErrEmptyBatch is returned when no files were selected.
var ErrEmptyBatch = errors.New("upload: no files selected")
