package annotator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotator/internal/common/fault"
	"annotator/internal/events"
	"annotator/internal/feedback"
	"annotator/internal/llm"
	"annotator/internal/snapshot"
	"annotator/internal/tracker"
)

var testPrompts = Prompts{Updated: "review", Created: "draft", ItemFormat: "## Goal"}

type rig struct {
	src   *fakeProject
	llm   *llm.FakeClient
	store *snapshot.MemoryStore
	hub   *events.Hub
	a     *Annotator
}

func newRig(t *testing.T, items ...tracker.Snapshot) *rig {
	t.Helper()
	r := &rig{
		src:   newFakeProject(items...),
		llm:   llm.NewFakeClient(),
		store: snapshot.NewMemoryStore(),
		hub:   events.NewHub(),
	}
	a, err := New(Options{Source: r.src, LLM: r.llm, Store: r.store, Prompts: testPrompts, Hub: r.hub, Logger: quiet})
	require.NoError(t, err)
	r.a = a
	return r
}

func (r *rig) cycle(t *testing.T) (CycleReport, error) {
	t.Helper()
	return r.a.RunCycle(context.Background())
}

func (r *rig) baseline(t *testing.T, id string) string {
	t.Helper()
	v, err := r.store.Get(context.Background(), id)
	require.NoError(t, err)
	return v
}

func resultFor(rep CycleReport, id string) ItemResult {
	for _, r := range rep.Results {
		if r.ID == id {
			return r
		}
	}
	return ItemResult{}
}

func TestPrimeRecordsBaselineWithoutModel(t *testing.T) {
	r := newRig(t, tracker.Snapshot{ID: "a", Title: "Login", Body: "As a user", ModifiedAt: base})
	require.NoError(t, r.a.Prime(context.Background()))

	assert.Equal(t, "As a user", r.baseline(t, "a"))
	assert.Equal(t, 1, r.a.Tracker().Len())

	rep, err := r.cycle(t)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, resultFor(rep, "a").Action)
	assert.Empty(t, r.llm.Calls())
}

func TestCreatedEmptyItemGetsDraftedBody(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.a.Prime(context.Background()))
	r.src.desc = "Checkout revamp"
	r.src.set("a", "Login", "")
	r.llm.Push("## Goal\nLet users sign in")

	rep, err := r.cycle(t)
	require.NoError(t, err)
	res := resultFor(rep, "a")
	assert.Equal(t, tracker.Created, res.Change)
	assert.Equal(t, ActionDrafted, res.Action)
	assert.Equal(t, "## Goal\nLet users sign in", r.src.body("a"))
	assert.Equal(t, "## Goal\nLet users sign in", r.baseline(t, "a"))

	calls := r.llm.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "draft", calls[0].System)
	assert.Contains(t, calls[0].User, "Login")
	assert.Contains(t, calls[0].User, "Checkout revamp")
	assert.Contains(t, calls[0].User, "## Goal")

	// The write bumps the timestamp; the body matches the baseline so the
	// model is not called again.
	rep, err = r.cycle(t)
	require.NoError(t, err)
	assert.Equal(t, tracker.Updated, resultFor(rep, "a").Change)
	assert.Equal(t, ActionNone, resultFor(rep, "a").Action)
	assert.Len(t, r.llm.Calls(), 1)
}

func TestUpdatedItemIsAnnotatedAtAnchor(t *testing.T) {
	r := newRig(t, tracker.Snapshot{ID: "a", Title: "Login", Body: "line1\nline3", ModifiedAt: base})
	require.NoError(t, r.a.Prime(context.Background()))
	sub := r.hub.Subscribe(context.Background())

	r.src.set("a", "Login", "line1\nTARGET\nline3")
	r.llm.Push(`[{"position":"TARGET","comment":"X"}]`)

	rep, err := r.cycle(t)
	require.NoError(t, err)
	assert.Equal(t, ActionAnnotated, resultFor(rep, "a").Action)
	assert.Equal(t, "line1\nTARGET\n<!--AI--> X\nline3", r.src.body("a"))
	assert.Equal(t, "line1\nTARGET\nline3", feedback.Strip(r.baseline(t, "a")))

	calls := r.llm.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "review", calls[0].System)
	assert.Equal(t, "updated", calls[0].Phase)
	assert.Contains(t, calls[0].User, "++TARGET")

	e := <-sub
	assert.Equal(t, events.KindAnnotated, e.Kind)
	e = <-sub
	assert.Equal(t, events.KindCycle, e.Kind)
	assert.Equal(t, 1, e.Count)
	assert.Equal(t, "1 changed, 0 failed", e.Message)

	// Our own write is seen as an update whose author content is unchanged.
	_, err = r.cycle(t)
	require.NoError(t, err)
	assert.Len(t, r.llm.Calls(), 1)
}

func TestMissingAnchorLeavesItemUntouchedAndRetries(t *testing.T) {
	r := newRig(t, tracker.Snapshot{ID: "a", Title: "Login", Body: "line1\nline3", ModifiedAt: base})
	require.NoError(t, r.a.Prime(context.Background()))
	r.src.set("a", "Login", "line1\nTARGET\nline3")
	r.llm.Push(`[{"position":"MISSING","comment":"X"}]`)

	rep, err := r.cycle(t)
	require.Error(t, err)
	res := resultFor(rep, "a")
	assert.Equal(t, ActionFailed, res.Action)
	assert.ErrorIs(t, res.Err, fault.ErrNotFound)
	var anchorErr *feedback.AnchorNotFoundError
	require.ErrorAs(t, res.Err, &anchorErr)
	assert.Equal(t, "MISSING", anchorErr.Anchor)

	assert.Equal(t, "line1\nTARGET\nline3", r.src.body("a"), "body must be untouched")
	assert.Equal(t, "line1\nline3", r.baseline(t, "a"), "baseline must not advance")
	assert.Empty(t, r.src.writes)

	// The cache was rolled back, so the same change is seen again.
	r.llm.Push(`[{"position":"TARGET","comment":"X"}]`)
	rep, err = r.cycle(t)
	require.NoError(t, err)
	assert.Equal(t, tracker.Updated, resultFor(rep, "a").Change)
	assert.Equal(t, ActionAnnotated, resultFor(rep, "a").Action)
}

func TestMalformedReplyIsParseError(t *testing.T) {
	r := newRig(t, tracker.Snapshot{ID: "a", Title: "Login", Body: "x", ModifiedAt: base})
	require.NoError(t, r.a.Prime(context.Background()))
	r.src.set("a", "Login", "y")
	r.llm.Push("Sure! Here are my thoughts.")

	rep, err := r.cycle(t)
	require.ErrorIs(t, err, fault.ErrParse)
	assert.ErrorIs(t, resultFor(rep, "a").Err, feedback.ErrMalformed)
	assert.Equal(t, "y", r.src.body("a"))
}

func TestEmptyAnnotationListWritesNothing(t *testing.T) {
	r := newRig(t, tracker.Snapshot{ID: "a", Title: "Login", Body: "x", ModifiedAt: base})
	require.NoError(t, r.a.Prime(context.Background()))
	r.src.set("a", "Login", "x\ny")
	r.llm.Push("[]")

	rep, err := r.cycle(t)
	require.NoError(t, err)
	assert.Equal(t, ActionReviewed, resultFor(rep, "a").Action)
	assert.Empty(t, r.src.writes)
	assert.Equal(t, "x\ny", r.baseline(t, "a"))
}

func TestTimestampOnlyChangeSkipsModel(t *testing.T) {
	r := newRig(t, tracker.Snapshot{ID: "a", Title: "Login", Body: "x\n<!--AI--> old note", ModifiedAt: base})
	require.NoError(t, r.a.Prime(context.Background()))
	r.src.set("a", "Login", "x")

	rep, err := r.cycle(t)
	require.NoError(t, err)
	assert.Equal(t, tracker.Updated, resultFor(rep, "a").Change)
	assert.Equal(t, ActionNone, resultFor(rep, "a").Action)
	assert.Empty(t, r.llm.Calls())
}

func TestCreatedItemWithBodyIsReviewed(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.a.Prime(context.Background()))
	r.src.set("a", "Login", "TARGET")
	r.llm.Push(`[{"position":"TARGET","comment":"needs criteria"}]`)

	rep, err := r.cycle(t)
	require.NoError(t, err)
	assert.Equal(t, ActionAnnotated, resultFor(rep, "a").Action)
	user := r.llm.Calls()[0].User
	assert.Contains(t, user, "Changes since last review:\n++TARGET")
	assert.NotContains(t, user, "\n--", "an empty baseline has no removed lines")
	assert.Equal(t, "TARGET\n<!--AI--> needs criteria", r.src.body("a"))
}

func TestDeletedItemDropsBaseline(t *testing.T) {
	r := newRig(t,
		tracker.Snapshot{ID: "a", Title: "Login", Body: "x", ModifiedAt: base},
		tracker.Snapshot{ID: "b", Title: "Search", Body: "y", ModifiedAt: base},
	)
	require.NoError(t, r.a.Prime(context.Background()))
	r.src.remove("a")

	rep, err := r.cycle(t)
	require.NoError(t, err)
	assert.Equal(t, ActionRemoved, resultFor(rep, "a").Action)
	_, err = r.store.Get(context.Background(), "a")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
	_, ok := r.a.Tracker().Snapshot("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.a.Tracker().Len())
}

func TestDeletedItemWithoutBaselineIsFine(t *testing.T) {
	r := newRig(t, tracker.Snapshot{ID: "a", Title: "Login", Body: "x", ModifiedAt: base})
	require.NoError(t, r.a.Prime(context.Background()))
	require.NoError(t, r.store.Delete(context.Background(), "a"))
	r.src.remove("a")

	_, err := r.cycle(t)
	require.NoError(t, err)
}

func TestListFailureLeavesCacheUntouched(t *testing.T) {
	r := newRig(t, tracker.Snapshot{ID: "a", Title: "Login", Body: "x", ModifiedAt: base})
	require.NoError(t, r.a.Prime(context.Background()))
	r.src.listErr = errors.New("connection reset")

	rep, err := r.cycle(t)
	require.ErrorIs(t, err, fault.ErrTransport)
	assert.Empty(t, rep.Results)
	assert.Equal(t, 1, r.a.Tracker().Len())
}

func TestFailingItemDoesNotStopOthers(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.a.Prime(context.Background()))
	r.src.set("a", "Login", "")
	r.src.set("b", "Search", "")
	r.src.updateErr["a"] = errors.New("502 bad gateway")
	r.llm.Push("draft a", "draft b")

	rep, err := r.cycle(t)
	require.ErrorIs(t, err, fault.ErrTransport)
	assert.Len(t, rep.Failed(), 1)
	assert.Equal(t, ActionFailed, resultFor(rep, "a").Action)
	assert.Equal(t, ActionDrafted, resultFor(rep, "b").Action)
	assert.Equal(t, "draft b", r.src.body("b"))

	// "a" was Created and failed, so it is not cached and counts as new again.
	_, ok := r.a.Tracker().Snapshot("a")
	assert.False(t, ok)
	_, err = r.store.Get(context.Background(), "a")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)

	delete(r.src.updateErr, "a")
	r.llm.Push("draft a")
	rep, err = r.cycle(t)
	require.NoError(t, err)
	assert.Equal(t, tracker.Created, resultFor(rep, "a").Change)
	assert.Equal(t, "draft a", r.src.body("a"))
}

func TestModelFailureIsTransport(t *testing.T) {
	r := newRig(t, tracker.Snapshot{ID: "a", Title: "Login", Body: "x", ModifiedAt: base})
	require.NoError(t, r.a.Prime(context.Background()))
	r.src.set("a", "Login", "x\ny")
	r.llm.FailNext(errors.New("quota exceeded"))

	_, err := r.cycle(t)
	require.ErrorIs(t, err, fault.ErrTransport)
	assert.True(t, strings.Contains(err.Error(), "quota exceeded"))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, fault.ErrConfig)
}
