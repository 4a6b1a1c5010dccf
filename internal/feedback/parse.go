package feedback

import (
	"errors"
	"fmt"

	"annotator/internal/util/jsonutil"
)

// ErrMalformed is wrapped by every ParseAnnotations failure.
var ErrMalformed = errors.New("feedback: malformed annotations")

type rawAnnotation struct {
	Position *string `json:"position"`
	Comment  *string `json:"comment"`
}

// ParseAnnotations decodes a model reply that must be a JSON array of
// {"position": string, "comment": string} objects. Anything else, including
// a missing field or a non-array top level, is rejected.
func ParseAnnotations(reply string) ([]Annotation, error) {
	var raws []rawAnnotation
	if err := jsonutil.UnmarshalArray([]byte(reply), &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out := make([]Annotation, 0, len(raws))
	for i, r := range raws {
		if r.Position == nil || r.Comment == nil {
			return nil, fmt.Errorf("%w: element %d needs position and comment", ErrMalformed, i)
		}
		out = append(out, Annotation{
			Anchor:  unescape(*r.Position),
			Comment: unescape(*r.Comment),
		})
	}
	return out, nil
}

func unescape(s string) string {
	if u, err := jsonutil.UnescapeUnicodeString(s); err == nil {
		return u
	}
	return s
}
