// Package annotator runs the polling loops that detect document changes,
// ask the model for feedback and write it back next to the author's text.
//
// Annotator handles hosts with many items (a project board, a directory).
// Watcher handles one document that is edited live and waits for the author
// to pause before reacting.
package annotator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"annotator/internal/common/delta"
	"annotator/internal/common/fault"
	"annotator/internal/events"
	"annotator/internal/feedback"
	"annotator/internal/llm"
	"annotator/internal/snapshot"
	"annotator/internal/source"
	"annotator/internal/tracker"
)

// DefaultInterval is the polling period when none is configured.
const DefaultInterval = time.Second

// Prompts are the system prompts and templates sent to the model.
type Prompts struct {
	Updated    string
	Created    string
	ItemFormat string
	Document   string
}

// Action is what a cycle did to one item.
type Action string

const (
	ActionNone      Action = "none"
	ActionDrafted   Action = "drafted"
	ActionAnnotated Action = "annotated"
	ActionReviewed  Action = "reviewed" // model had no comments
	ActionRemoved   Action = "removed"
	ActionFailed    Action = "failed"
)

type ItemResult struct {
	ID     string
	Title  string
	Change tracker.Change
	Action Action
	Err    error
}

// CycleReport describes one RunCycle pass.
type CycleReport struct {
	Statuses []tracker.ItemStatus
	Results  []ItemResult
}

// Failed lists the results that ended in an error.
func (r CycleReport) Failed() []ItemResult {
	var out []ItemResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Changed counts the items that were created, updated or deleted.
func (r CycleReport) Changed() int {
	n := 0
	for _, res := range r.Results {
		if res.Change != tracker.Unchanged {
			n++
		}
	}
	return n
}

// Err joins every per-item error, or returns nil.
func (r CycleReport) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

type Options struct {
	Source   source.Project
	LLM      llm.Client
	Store    snapshot.Store
	Prompts  Prompts
	Tracker  *tracker.Tracker // optional
	Hub      *events.Hub      // optional
	Logger   *log.Logger      // optional
	Interval time.Duration
}

type Annotator struct {
	src      source.Project
	llm      llm.Client
	store    snapshot.Store
	prompts  Prompts
	tracker  *tracker.Tracker
	hub      *events.Hub
	log      *log.Logger
	interval time.Duration

	description string
}

func New(opts Options) (*Annotator, error) {
	if opts.Source == nil || opts.LLM == nil || opts.Store == nil {
		return nil, fault.Config("new annotator", errors.New("source, llm and store are required"))
	}
	if opts.Tracker == nil {
		opts.Tracker = tracker.New()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Annotator{
		src:      opts.Source,
		llm:      opts.LLM,
		store:    opts.Store,
		prompts:  opts.Prompts,
		tracker:  opts.Tracker,
		hub:      opts.Hub,
		log:      opts.Logger,
		interval: opts.Interval,
	}, nil
}

// Tracker exposes the committed item cache for read-only consumers.
func (a *Annotator) Tracker() *tracker.Tracker { return a.tracker }

// Prime records the current state of every item as the baseline without
// calling the model, so items that existed before startup are not treated
// as new.
func (a *Annotator) Prime(ctx context.Context) error {
	items, err := a.src.ListItems(ctx)
	if err != nil {
		return classify("list items", "", err)
	}
	next, _ := tracker.Reconcile(nil, items)
	var errs []error
	for id, it := range next {
		if err := a.store.Put(ctx, id, it.Body); err != nil {
			delete(next, id)
			errs = append(errs, classify("save baseline", id, err))
		}
	}
	a.tracker.Commit(next)
	a.log.Printf("annotator: primed %d items", len(next))
	return errors.Join(errs...)
}

// Run calls RunCycle every interval until ctx is done. Errors are logged
// and never stop the loop.
func (a *Annotator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := a.RunCycle(ctx); err != nil && ctx.Err() == nil {
			a.log.Printf("annotator: cycle: %v", err)
		}
	}
}

// RunCycle lists the items once, reacts to every change and commits the new
// cache. A listing failure leaves the cache untouched. A failing item does
// not stop the others; its cache entry is rolled back so the change is seen
// again next cycle, and its baseline is left as it was. The returned error
// joins the per-item failures.
func (a *Annotator) RunCycle(ctx context.Context) (CycleReport, error) {
	items, err := a.src.ListItems(ctx)
	if err != nil {
		return CycleReport{}, classify("list items", "", err)
	}
	old := a.tracker.Committed()
	next, statuses := tracker.Reconcile(old, items)
	report := CycleReport{Statuses: statuses, Results: make([]ItemResult, 0, len(statuses))}
	descLoaded := false

	for _, st := range statuses {
		res := ItemResult{ID: st.ID, Title: st.Title, Change: st.Change, Action: ActionNone}
		var (
			baseline string
			persist  bool
		)
		switch st.Change {
		case tracker.Unchanged:
			report.Results = append(report.Results, res)
			continue
		case tracker.Deleted:
			res.Action = ActionRemoved
			if err := a.store.Delete(ctx, st.ID); err != nil && !errors.Is(err, snapshot.ErrNotFound) {
				res.Err = classify("delete baseline", st.ID, err)
			}
		default:
			if !descLoaded {
				a.loadDescription(ctx)
				descLoaded = true
			}
			it := next[st.ID]
			if st.IsCreated() && strings.TrimSpace(it.Body) == "" {
				res.Action = ActionDrafted
				baseline, res.Err = a.draft(ctx, it)
			} else {
				res.Action, baseline, res.Err = a.review(ctx, it)
			}
			persist = res.Err == nil
		}
		if persist {
			if err := a.store.Put(ctx, st.ID, baseline); err != nil {
				res.Err = classify("save baseline", st.ID, err)
			}
		}
		if res.Err != nil {
			res.Action = ActionFailed
			rollback(next, old, st)
			a.log.Printf("annotator: item %s failed: %v", st.Title, res.Err)
			a.hub.Publish(events.Event{Kind: events.KindFailed, ItemID: st.ID, Title: st.Title, Message: res.Err.Error()})
		} else {
			a.announce(res)
		}
		report.Results = append(report.Results, res)
	}

	a.tracker.Commit(next)
	if n := report.Changed(); n > 0 {
		a.hub.Publish(events.Event{Kind: events.KindCycle, Count: n, Message: fmt.Sprintf("%d changed, %d failed", n, len(report.Failed()))})
	}
	return report, report.Err()
}

// rollback restores the pre-cycle cache entry for a failed item.
func rollback(next, old tracker.Cache, st tracker.ItemStatus) {
	if prev, ok := old[st.ID]; ok {
		next[st.ID] = prev
		return
	}
	delete(next, st.ID)
}

func (a *Annotator) announce(res ItemResult) {
	switch res.Action {
	case ActionDrafted:
		a.log.Printf("annotator: item %s created, drafted body", res.Title)
		a.hub.Publish(events.Event{Kind: events.KindCreated, ItemID: res.ID, Title: res.Title})
	case ActionAnnotated:
		a.log.Printf("annotator: item %s updated, feedback added", res.Title)
		a.hub.Publish(events.Event{Kind: events.KindAnnotated, ItemID: res.ID, Title: res.Title})
	case ActionReviewed:
		a.log.Printf("annotator: item %s updated, no feedback", res.Title)
	case ActionRemoved:
		a.log.Printf("annotator: item %s deleted", res.Title)
		a.hub.Publish(events.Event{Kind: events.KindDeleted, ItemID: res.ID, Title: res.Title})
	}
}

// loadDescription refreshes the project description once per cycle. A
// failure keeps the last known value.
func (a *Annotator) loadDescription(ctx context.Context) {
	d, ok := a.src.(source.Describer)
	if !ok {
		return
	}
	desc, err := d.Description(ctx)
	if err != nil {
		a.log.Printf("annotator: project description: %v", err)
		return
	}
	a.description = desc
}

// draft asks the model for an initial body for an empty new item and
// writes the reply back verbatim.
func (a *Annotator) draft(ctx context.Context, it tracker.Snapshot) (string, error) {
	user := fmt.Sprintf("Item name: %s\nProject overview: %s\nItem format:\n%s", it.Title, a.description, a.prompts.ItemFormat)
	reply, err := a.llm.Complete(llm.WithPhase(ctx, "created"), a.prompts.Created, user)
	if err != nil {
		return "", classify("draft item", it.ID, err)
	}
	if err := a.src.UpdateBody(ctx, it.ID, it.Title, reply); err != nil {
		return "", classify("write item", it.ID, err)
	}
	return reply, nil
}

// review compares the item with its baseline and, when the author content
// changed, asks the model for feedback and writes the annotated body back.
// Previous feedback is replaced. The returned baseline is the body the item
// holds afterwards.
func (a *Annotator) review(ctx context.Context, it tracker.Snapshot) (Action, string, error) {
	prev, err := snapshot.GetOrEmpty(ctx, a.store, it.ID)
	if err != nil {
		return ActionNone, "", classify("load baseline", it.ID, err)
	}
	current := feedback.Strip(it.Body)
	previous := feedback.Strip(prev)
	if current == previous {
		return ActionNone, it.Body, nil
	}

	diff := delta.Render(delta.Lines(previous, current))
	user := fmt.Sprintf("Item name: %s\nProject overview: %s\nItem content:\n%s\nChanges since last review:\n%s",
		it.Title, a.description, current, diff)
	reply, err := a.llm.Complete(llm.WithJSONResponse(llm.WithPhase(ctx, "updated")), a.prompts.Updated, user)
	if err != nil {
		return ActionNone, "", classify("review item", it.ID, err)
	}
	anns, err := feedback.ParseAnnotations(reply)
	if err != nil {
		return ActionNone, "", fault.Parse("review item", it.ID, err)
	}
	if len(anns) == 0 {
		return ActionReviewed, it.Body, nil
	}
	merged, err := feedback.Merge(current, anns)
	if err != nil {
		return ActionNone, "", fault.NotFound("merge feedback", it.ID, err)
	}
	if err := a.src.UpdateBody(ctx, it.ID, it.Title, merged); err != nil {
		return ActionNone, "", classify("write item", it.ID, err)
	}
	return ActionAnnotated, merged, nil
}

// classify keeps an already typed error and treats anything else as a
// transport failure.
func classify(op, itemID string, err error) error {
	if err == nil || fault.KindOf(err) != nil {
		return err
	}
	return fault.Transport(op, itemID, err)
}
