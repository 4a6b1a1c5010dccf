package feedback

import "strings"

const (
	requestToken = "user:"
	handledToken = "!user:"
)

// HasPendingRequest reports whether an author left a "user:" request that
// has not yet been marked as handled.
func HasPendingRequest(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		if strings.Contains(line, requestToken) && !strings.Contains(line, handledToken) {
			return true
		}
	}
	return false
}

// MarkRequestsHandled rewrites every pending "user:" request to "!user:".
func MarkRequestsHandled(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.Contains(line, requestToken) && !strings.Contains(line, handledToken) {
			lines[i] = strings.ReplaceAll(line, requestToken, handledToken)
		}
	}
	return strings.Join(lines, "\n")
}
