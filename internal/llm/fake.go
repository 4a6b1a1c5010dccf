package llm

import (
	"context"
	"errors"
	"sync"
)

// Call records one request seen by FakeClient.
type Call struct {
	Phase  string
	System string
	User   string
}

// FakeClient returns scripted replies in order. Once the script runs out it
// keeps returning Fallback. It is used for offline runs and tests.
type FakeClient struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	Fallback string
	calls    []Call
}

// NewFakeClient scripts the given replies. The fallback reply is "[]",
// which means "no comments".
func NewFakeClient(replies ...string) *FakeClient {
	return &FakeClient{replies: replies, Fallback: "[]"}
}

// FailNext makes the next Complete call return err.
func (f *FakeClient) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = errors.New("fake llm failure")
	}
	f.errs = append(f.errs, err)
}

// Push appends replies to the script.
func (f *FakeClient) Push(replies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

// Calls returns a copy of every request received so far.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Complete(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Phase: PhaseFrom(ctx), System: system, User: user})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	if len(f.replies) == 0 {
		return f.Fallback, nil
	}
	out := f.replies[0]
	f.replies = f.replies[1:]
	return out, nil
}
