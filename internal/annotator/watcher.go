package annotator

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"annotator/internal/common/delta"
	"annotator/internal/common/fault"
	"annotator/internal/debounce"
	"annotator/internal/events"
	"annotator/internal/feedback"
	"annotator/internal/llm"
	"annotator/internal/snapshot"
	"annotator/internal/source"
	"annotator/internal/tracker"
)

type WatcherOptions struct {
	Doc      source.Document
	ID       string // snapshot key and display name
	LLM      llm.Client
	Store    snapshot.Store
	Prompt   string
	Settle   time.Duration
	Interval time.Duration
	// Manual waits for an unhandled "user:" request before reacting, and
	// marks it "!user:" afterwards.
	Manual bool
	Hub    *events.Hub
	Logger *log.Logger
}

// Watcher reacts to edits of one document once the author has paused.
// Tick must not be called concurrently; Items may be.
type Watcher struct {
	doc      source.Document
	id       string
	llm      llm.Client
	store    snapshot.Store
	prompt   string
	interval time.Duration
	manual   bool
	hub      *events.Hub
	log      *log.Logger
	settler  *debounce.Settler

	mu   sync.RWMutex
	last tracker.Snapshot
}

func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Doc == nil || opts.LLM == nil || opts.Store == nil {
		return nil, fault.Config("new watcher", errors.New("document, llm and store are required"))
	}
	if strings.TrimSpace(opts.ID) == "" {
		return nil, fault.Config("new watcher", errors.New("document id is required"))
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Watcher{
		doc:      opts.Doc,
		id:       opts.ID,
		llm:      opts.LLM,
		store:    opts.Store,
		prompt:   opts.Prompt,
		interval: opts.Interval,
		manual:   opts.Manual,
		hub:      opts.Hub,
		log:      opts.Logger,
		settler:  debounce.NewSettler(opts.Settle),
	}, nil
}

// Items reports the watched document for the status server.
func (w *Watcher) Items() []tracker.Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.last.ID == "" {
		return nil
	}
	return []tracker.Snapshot{w.last}
}

func (w *Watcher) remember(content string, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last.ID == "" || w.last.Body != content {
		w.last = tracker.Snapshot{ID: w.id, Title: w.id, Body: content, ModifiedAt: now}
	}
}

// read returns the full content and its author-only part. A document with
// no author content counts as missing.
func (w *Watcher) read(ctx context.Context) (string, string, error) {
	content, err := w.doc.Content(ctx)
	if err != nil {
		return "", "", classify("read document", w.id, err)
	}
	stripped := feedback.Strip(content)
	if strings.TrimSpace(stripped) == "" {
		return "", "", fault.NotFound("read document", w.id, errors.New("document is empty"))
	}
	return content, stripped, nil
}

// Prime stores the current content as the baseline and seeds the settle
// window with it, so edits made before startup are not reported.
func (w *Watcher) Prime(ctx context.Context) error {
	content, stripped, err := w.read(ctx)
	if err != nil {
		return err
	}
	if err := w.store.Put(ctx, w.id, stripped); err != nil {
		return classify("save baseline", w.id, err)
	}
	w.settler.Seed(stripped)
	w.remember(content, time.Now())
	return nil
}

// Tick polls the document once at time now.
//
// Any change to the author content restarts the settle window. Once the
// window has passed (and, in manual mode, the author left a request) the
// change since the stored baseline is sent to the model and the feedback is
// written back. A transport failure keeps the change pending so the next
// tick retries it; other failures wait for the next edit.
func (w *Watcher) Tick(ctx context.Context, now time.Time) error {
	content, stripped, err := w.read(ctx)
	if err != nil {
		return err
	}
	w.remember(content, now)
	w.settler.Observe(stripped, now)
	if !w.settler.Due(now) {
		return nil
	}
	if w.manual && !feedback.HasPendingRequest(stripped) {
		return nil
	}

	err = w.act(ctx, content, stripped)
	if err != nil && errors.Is(err, fault.ErrTransport) {
		return err
	}
	w.settler.Done()
	return err
}

func (w *Watcher) act(ctx context.Context, content, stripped string) error {
	prev, err := snapshot.GetOrEmpty(ctx, w.store, w.id)
	if err != nil {
		return classify("load baseline", w.id, err)
	}
	lines := delta.Lines(feedback.Strip(prev), stripped)
	if !delta.Changed(lines) {
		return nil
	}
	diff := delta.Render(lines)

	reply, err := w.llm.Complete(llm.WithJSONResponse(llm.WithPhase(ctx, "document")), w.prompt, diff)
	if err != nil {
		return classify("review document", w.id, err)
	}
	anns, err := feedback.ParseAnnotations(reply)
	if err != nil {
		return fault.Parse("review document", w.id, err)
	}

	var after string
	if remote, ok := w.doc.(source.Annotatable); ok {
		after, err = w.appendRemote(ctx, remote, stripped, anns)
	} else {
		after, err = w.rewrite(ctx, content, anns)
	}
	if err != nil {
		return err
	}

	if err := w.store.Put(ctx, w.id, after); err != nil {
		return classify("save baseline", w.id, err)
	}
	if err := w.store.Put(ctx, snapshot.DiffKey(w.id), diff); err != nil {
		return classify("save diff", w.id, err)
	}
	// Our own write must not count as an author edit.
	w.settler.Seed(after)

	w.log.Printf("annotator: document %s reviewed, %d comments", w.id, len(anns))
	w.hub.Publish(events.Event{Kind: events.KindAnnotated, ItemID: w.id, Title: w.id, Count: len(anns)})
	return nil
}

// rewrite merges feedback into the full content, keeping earlier feedback,
// and writes it back. It returns the new author content.
func (w *Watcher) rewrite(ctx context.Context, content string, anns []feedback.Annotation) (string, error) {
	merged, err := feedback.Merge(content, anns)
	if err != nil {
		return "", fault.NotFound("merge feedback", w.id, err)
	}
	if w.manual {
		merged = feedback.MarkRequestsHandled(merged)
	}
	if merged != content {
		if err := w.doc.SetContent(ctx, merged); err != nil {
			return "", classify("write document", w.id, err)
		}
	}
	return feedback.Strip(merged), nil
}

// appendRemote checks every anchor against the author content first, then
// hands all comments to the document in one batch.
func (w *Watcher) appendRemote(ctx context.Context, remote source.Annotatable, stripped string, anns []feedback.Annotation) (string, error) {
	for _, a := range anns {
		if !feedback.ContainsAnchor(stripped, a.Anchor) {
			return "", fault.NotFound("append feedback", w.id, &feedback.AnchorNotFoundError{Anchor: a.Anchor})
		}
	}
	if err := remote.AppendFeedback(ctx, anns); err != nil {
		return "", classify("append feedback", w.id, err)
	}
	after := stripped
	if w.manual {
		if m, ok := w.doc.(source.RequestMarker); ok {
			if err := m.MarkRequestsHandled(ctx); err != nil {
				return "", classify("mark requests", w.id, err)
			}
			after = feedback.MarkRequestsHandled(stripped)
		}
	}
	return after, nil
}

// Run ticks every interval until ctx is done. Repeated identical errors are
// logged once.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	lastErr := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			err := w.Tick(ctx, now)
			if err == nil || ctx.Err() != nil {
				lastErr = ""
				continue
			}
			if msg := err.Error(); msg != lastErr {
				w.log.Printf("annotator: %v", err)
				lastErr = msg
			}
		}
	}
}
