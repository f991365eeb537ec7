package search

import "errors"

var (
	// ErrEmptyQuery is returned for an empty or whitespace-only query.
	ErrEmptyQuery = errors.New("search: empty query")
	// ErrNoSuchRow is returned when a row index is not in the current list.
	ErrNoSuchRow = errors.New("search: no such row")
	// ErrStale is returned when the result list was replaced while an
	// operation on one of its rows was in flight.
	ErrStale = errors.New("search: result list replaced")
	// ErrBusy is returned when a download for the row is already running.
	ErrBusy = errors.New("search: download already running")
	// ErrDeclined is returned when the user declined a confirmation.
	ErrDeclined = errors.New("search: declined")
)
