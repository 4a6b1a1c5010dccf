// Package feedback separates author text from AI-inserted review lines.
//
// A feedback line is any line whose left-trimmed text starts with the
// "<!--AI" sentinel. When the same line also contains "-->" it stands alone;
// the canonical form written by Merge is "<!--AI--> comment", which keeps the
// comment visible in rendered Markdown while the sentinel stays hidden.
// Otherwise the line opens a block that runs through the first line
// containing "-->".
package feedback

import (
	"fmt"
	"strings"
)

const (
	// Marker prefixes every line written by Merge.
	Marker = "<!--AI-->"

	openToken  = "<!--AI"
	closeToken = "-->"
)

// Annotation is one piece of model feedback anchored to a line of the document.
type Annotation struct {
	Anchor  string `json:"position"`
	Comment string `json:"comment"`
}

// AnchorNotFoundError is returned by Merge when an annotation's anchor does
// not occur in any author line.
type AnchorNotFoundError struct {
	Anchor string
}

func (e *AnchorNotFoundError) Error() string {
	return fmt.Sprintf("feedback: anchor not found: %q", e.Anchor)
}

// MarkLine turns one line of comment text into a feedback line.
func MarkLine(text string) string {
	if text == "" {
		return Marker
	}
	return Marker + " " + text
}

// IsMarked reports whether line is a single-line feedback marker.
func IsMarked(line string) bool {
	t := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(t, openToken) && strings.Contains(t, closeToken)
}

type scanState int

const (
	inAuthorContent scanState = iota
	inMarkedBlock
)

// Strip removes every feedback line and marked block from body, leaving the
// author lines in their original order. A block that is never closed is not
// treated as feedback and its lines are kept.
func Strip(body string) string {
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	var pending []string
	state := inAuthorContent

	for _, line := range lines {
		switch state {
		case inAuthorContent:
			t := strings.TrimLeft(line, " \t")
			if !strings.HasPrefix(t, openToken) {
				out = append(out, line)
				continue
			}
			if strings.Contains(t, closeToken) {
				continue
			}
			pending = append(pending[:0], line)
			state = inMarkedBlock
		case inMarkedBlock:
			pending = append(pending, line)
			if strings.Contains(line, closeToken) {
				pending = pending[:0]
				state = inAuthorContent
			}
		}
	}
	if state == inMarkedBlock {
		out = append(out, pending...)
	}
	return strings.Join(out, "\n")
}

// HasFeedback reports whether body carries any feedback lines.
func HasFeedback(body string) bool {
	return Strip(body) != body
}

// Merge inserts every annotation's comment right after the first author line
// that contains its anchor; existing feedback lines are never anchors.
// Anchors are resolved against body as given, before any insertion. If any
// anchor is missing the body is returned unchanged together with an
// *AnchorNotFoundError; nothing is applied partially.
//
// Multi-line comments become one feedback line per comment line. Comments
// sharing an anchor line appear in annotation order.
func Merge(body string, annotations []Annotation) (string, error) {
	if len(annotations) == 0 {
		return body, nil
	}
	lines := strings.Split(body, "\n")

	inserts := make(map[int][]string, len(annotations))
	for _, a := range annotations {
		idx, ok := findAnchor(lines, a.Anchor, IsMarked)
		if !ok {
			return body, &AnchorNotFoundError{Anchor: a.Anchor}
		}
		inserts[idx] = append(inserts[idx], markComment(a.Comment)...)
	}

	out := make([]string, 0, len(lines)+len(annotations))
	for i, line := range lines {
		out = append(out, line)
		out = append(out, inserts[i]...)
	}
	return strings.Join(out, "\n"), nil
}

func markComment(comment string) []string {
	parts := strings.Split(strings.ReplaceAll(comment, "\r\n", "\n"), "\n")
	marked := make([]string, len(parts))
	for i, p := range parts {
		marked[i] = MarkLine(p)
	}
	return marked
}
