package feedback

import "strings"

// FindAnchor returns the index of the first line containing anchor.
// Matching is case-sensitive; an empty anchor never matches.
func FindAnchor(lines []string, anchor string) (int, bool) {
	return findAnchor(lines, anchor, nil)
}

func findAnchor(lines []string, anchor string, skip func(string) bool) (int, bool) {
	if anchor == "" {
		return -1, false
	}
	for i, line := range lines {
		if skip != nil && skip(line) {
			continue
		}
		if strings.Contains(line, anchor) {
			return i, true
		}
	}
	return -1, false
}

// ContainsAnchor reports whether any line of text contains anchor.
func ContainsAnchor(text, anchor string) bool {
	_, ok := FindAnchor(strings.Split(text, "\n"), anchor)
	return ok
}

// InsertAfter returns a copy of lines with extra placed right after lines[idx].
func InsertAfter(lines []string, idx int, extra ...string) []string {
	if idx < 0 || idx >= len(lines) {
		idx = len(lines) - 1
	}
	out := make([]string, 0, len(lines)+len(extra))
	out = append(out, lines[:idx+1]...)
	out = append(out, extra...)
	out = append(out, lines[idx+1:]...)
	return out
}

// InsertNear places text (verbatim, possibly multi-line) after the first line
// of body containing anchor.
func InsertNear(body, anchor, text string) (string, error) {
	lines := strings.Split(body, "\n")
	idx, ok := FindAnchor(lines, anchor)
	if !ok {
		return body, &AnchorNotFoundError{Anchor: anchor}
	}
	return strings.Join(InsertAfter(lines, idx, strings.Split(text, "\n")...), "\n"), nil
}
