package delta

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Op tags a single diff line.
type Op int

const (
	Unchanged Op = iota
	Removed
	Added
)

func (o Op) String() string {
	switch o {
	case Removed:
		return "removed"
	case Added:
		return "added"
	default:
		return "unchanged"
	}
}

// Line is one entry of a line-level diff. Text is kept verbatim.
type Line struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

const (
	removedPrefix = "--"
	addedPrefix   = "++"
)

// Lines computes the line diff between before and after.
//
// Both inputs are split on "\n" only, so trailing empty lines survive as
// their own entries and "\r" stays part of the line text. Alignment uses a
// longest-common-subsequence matcher with auto-junk disabled, which keeps
// the output stable for a given pair of inputs.
func Lines(before, after string) []Line {
	a := SplitLines(before)
	b := SplitLines(after)

	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	out := make([]Line, 0, len(a)+len(b))
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			out = appendLines(out, Unchanged, a[op.I1:op.I2])
		case 'd':
			out = appendLines(out, Removed, a[op.I1:op.I2])
		case 'i':
			out = appendLines(out, Added, b[op.J1:op.J2])
		case 'r':
			out = appendLines(out, Removed, a[op.I1:op.I2])
			out = appendLines(out, Added, b[op.J1:op.J2])
		}
	}
	return out
}

// SplitLines splits text on "\n". The empty string has no lines, so a diff
// from an empty baseline is all additions.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Changed reports whether any entry is not Unchanged.
func Changed(lines []Line) bool {
	for _, l := range lines {
		if l.Op != Unchanged {
			return true
		}
	}
	return false
}

// Render formats the diff as the report sent to the model: removed lines
// get "--", added lines get "++", unchanged lines are written as-is.
func Render(lines []Line) string {
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch l.Op {
		case Removed:
			sb.WriteString(removedPrefix)
		case Added:
			sb.WriteString(addedPrefix)
		}
		sb.WriteString(l.Text)
	}
	return sb.String()
}

// Apply rebuilds the "after" side of a diff from its Added and Unchanged entries.
func Apply(lines []Line) string {
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Op == Removed {
			continue
		}
		kept = append(kept, l.Text)
	}
	return strings.Join(kept, "\n")
}

func appendLines(out []Line, op Op, texts []string) []Line {
	for _, t := range texts {
		out = append(out, Line{Op: op, Text: t})
	}
	return out
}
