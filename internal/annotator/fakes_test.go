package annotator

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"annotator/internal/feedback"
	"annotator/internal/tracker"
)

var quiet = log.New(io.Discard, "", 0)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// fakeProject is an in-memory multi-item host. Writes bump ModifiedAt the
// way a real host would.
type fakeProject struct {
	mu        sync.Mutex
	items     map[string]tracker.Snapshot
	listErr   error
	updateErr map[string]error
	writes    []string
	desc      string
	clock     time.Time
}

func newFakeProject(items ...tracker.Snapshot) *fakeProject {
	p := &fakeProject{items: map[string]tracker.Snapshot{}, updateErr: map[string]error{}, clock: base}
	for _, it := range items {
		p.items[it.ID] = it
	}
	return p
}

func (p *fakeProject) tick() time.Time {
	p.clock = p.clock.Add(time.Minute)
	return p.clock
}

func (p *fakeProject) set(id, title, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[id] = tracker.Snapshot{ID: id, Title: title, Body: body, ModifiedAt: p.tick()}
}

func (p *fakeProject) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, id)
}

func (p *fakeProject) body(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.items[id].Body
}

func (p *fakeProject) ListItems(context.Context) ([]tracker.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	out := make([]tracker.Snapshot, 0, len(p.items))
	for _, it := range p.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *fakeProject) UpdateBody(_ context.Context, id, title, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.updateErr[id]; err != nil {
		return err
	}
	p.writes = append(p.writes, id)
	p.items[id] = tracker.Snapshot{ID: id, Title: title, Body: body, ModifiedAt: p.tick()}
	return nil
}

func (p *fakeProject) Description(context.Context) (string, error) { return p.desc, nil }

// fakeDoc is a single local-style document.
type fakeDoc struct {
	mu      sync.Mutex
	content string
	readErr error
	sets    int
}

func (d *fakeDoc) Content(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content, d.readErr
}

func (d *fakeDoc) SetContent(_ context.Context, c string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = c
	d.sets++
	return nil
}

func (d *fakeDoc) edit(c string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = c
}

func (d *fakeDoc) get() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

// fakeRemoteDoc takes feedback as appended blocks, like a Notion page.
type fakeRemoteDoc struct {
	fakeDoc
	appended []feedback.Annotation
	marked   int
}

func (d *fakeRemoteDoc) SetContent(context.Context, string) error {
	return errors.New("remote documents are not rewritten")
}

func (d *fakeRemoteDoc) AppendFeedback(_ context.Context, anns []feedback.Annotation) error {
	d.appended = append(d.appended, anns...)
	return nil
}

func (d *fakeRemoteDoc) MarkRequestsHandled(context.Context) error {
	d.marked++
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = feedback.MarkRequestsHandled(d.content)
	return nil
}
