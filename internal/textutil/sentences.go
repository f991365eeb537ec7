// Package textutil holds text helpers shared by the summarizer and the UI.
package textutil

import (
	"unicode"
	"unicode/utf8"
)

// Sentences splits text into sentence segments. A run of '.', '!' or '?'
// ends a sentence only when followed by whitespace or the end of the text,
// so "v1.2" stays in one piece. Text after the last terminator becomes the
// final segment. Segments keep their surrounding whitespace, so joining
// them yields text unchanged.
func Sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if !isTerminator(text[i]) {
			continue
		}
		next := i + 1
		if next < len(text) {
			if isTerminator(text[next]) {
				continue
			}
			r, _ := utf8.DecodeRuneInString(text[next:])
			if !unicode.IsSpace(r) {
				continue
			}
		}
		out = append(out, text[start:next])
		start = next
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}
