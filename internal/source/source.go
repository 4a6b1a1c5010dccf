// Package source defines how the annotator reads and writes the documents
// it watches. Adapters live in the sub-packages.
package source

import (
	"context"

	"annotator/internal/feedback"
	"annotator/internal/tracker"
)

// Lister enumerates the tracked items of a multi-item host.
type Lister interface {
	ListItems(ctx context.Context) ([]tracker.Snapshot, error)
}

// Writer replaces the body of one item.
type Writer interface {
	UpdateBody(ctx context.Context, id, title, body string) error
}

// Describer returns a free-text description of the whole project. Optional.
type Describer interface {
	Description(ctx context.Context) (string, error)
}

// Project is a multi-item host that can be read and written.
type Project interface {
	Lister
	Writer
}

// Document is a single watched document.
type Document interface {
	Content(ctx context.Context) (string, error)
	SetContent(ctx context.Context, content string) error
}

// Annotatable documents take feedback as separate remote blocks instead of
// a rewritten body. AppendFeedback must resolve every anchor before writing:
// when one is missing it returns a fault.ErrNotFound error and writes nothing.
type Annotatable interface {
	AppendFeedback(ctx context.Context, anns []feedback.Annotation) error
}

// RequestMarker marks pending "user:" requests as handled in place. Documents
// that cannot be rewritten wholesale implement it.
type RequestMarker interface {
	MarkRequestsHandled(ctx context.Context) error
}
