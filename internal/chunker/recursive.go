// Package chunker splits extracted document pages into overlapping windows.
package chunker

import (
	"docqa/internal/domain"
)

// DefaultWindowSize is the default window length in characters.
const DefaultWindowSize = 3500

// separators is the boundary cascade, most preferred first: paragraph,
// line, sentence, word. A hard character cut is the final fallback.
var separators = []string{"\n\n", "\n", ". ", " "}

// RecursiveSplitter cuts page text into windows of at most windowSize
// characters, preferring natural boundaries and overlapping consecutive
// windows by exactly windowOverlap characters. Windows never span pages, so
// page provenance stays exact.
type RecursiveSplitter struct {
	windowSize    int
	windowOverlap int
}

func NewRecursiveSplitter(windowSize, windowOverlap int) *RecursiveSplitter {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if windowOverlap < 0 {
		windowOverlap = 0
	}
	if windowOverlap >= windowSize {
		windowOverlap = windowSize / 4
	}
	return &RecursiveSplitter{windowSize: windowSize, windowOverlap: windowOverlap}
}

// Split returns the document's windows in page order, then offset order.
func (s *RecursiveSplitter) Split(doc domain.Document) []domain.Window {
	var windows []domain.Window
	for _, page := range doc.Pages {
		for _, text := range s.splitText(page.Text) {
			windows = append(windows, domain.Window{Text: text, Page: page.Number})
		}
	}
	return windows
}

func (s *RecursiveSplitter) splitText(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.windowSize {
		return []string{text}
	}
	var out []string
	start := 0
	for {
		if len(runes)-start <= s.windowSize {
			out = append(out, string(runes[start:]))
			return out
		}
		cut := s.findCut(runes, start)
		out = append(out, string(runes[start:cut]))
		start = cut - s.windowOverlap
	}
}

// findCut picks the end of the window starting at start. It prefers the
// latest boundary within reach; the cut must land after start+overlap so the
// next window makes progress and the overlap stays exact.
func (s *RecursiveSplitter) findCut(runes []rune, start int) int {
	limit := start + s.windowSize
	floor := start + s.windowOverlap
	for _, sep := range separators {
		if cut := lastBoundary(runes, []rune(sep), floor, limit); cut > 0 {
			return cut
		}
	}
	return limit
}

// lastBoundary returns the cut point just after the last occurrence of sep
// ending in (floor, limit], or 0 if there is none.
func lastBoundary(runes, sep []rune, floor, limit int) int {
	for i := limit - len(sep); i > floor-len(sep); i-- {
		if i < 0 {
			break
		}
		if matchAt(runes, sep, i) {
			cut := i + len(sep)
			if cut > floor && cut <= limit {
				return cut
			}
		}
	}
	return 0
}

func matchAt(runes, sep []rune, at int) bool {
	if at+len(sep) > len(runes) {
		return false
	}
	for j := range sep {
		if runes[at+j] != sep[j] {
			return false
		}
	}
	return true
}
