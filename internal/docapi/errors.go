package docapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrDuplicate matches any *ConflictError via errors.Is.
var ErrDuplicate = errors.New("duplicate name")

// TransportError is a network-level failure: no usable response arrived.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a structured error reported by the server.
type ServerError struct {
	Op     string
	Status int
	Detail string
}

func (e *ServerError) Error() string { return e.Message() }

// Message returns the server-supplied detail, falling back to the status text.
func (e *ServerError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if text := http.StatusText(e.Status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", e.Status)
}

// MalformedResponseError means bytes arrived but were not the expected JSON.
// Raw keeps the payload verbatim.
type MalformedResponseError struct {
	Op     string
	Status int
	Raw    string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response (status %d): %v", e.Op, e.Status, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Display returns text suitable for showing to the user: the raw payload,
// reduced to its text content when it is an HTML page, or the status text
// when the body was empty.
func (e *MalformedResponseError) Display() string {
	raw := strings.TrimSpace(e.Raw)
	if raw == "" {
		return http.StatusText(e.Status)
	}
	if looksLikeHTML(raw) {
		if text := htmlText(raw); text != "" {
			return text
		}
	}
	return raw
}

// ConflictError is the server's duplicate-name rejection of an upload.
type ConflictError struct {
	Name   string
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Detail)
}

func (e *ConflictError) Is(target error) bool { return target == ErrDuplicate }

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html") ||
		strings.Contains(lower, "<body")
}

func htmlText(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
