package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroqCompleteSendsSystemAndUser(t *testing.T) {
	var got groqChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[]"}}]}`))
	}))
	defer srv.Close()

	c := NewGroqClient("k", "m", srv.URL)
	out, err := c.Complete(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Equal(t, "m", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, groqMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, groqMessage{Role: "user", Content: "hello"}, got.Messages[1])
}

func TestGroqCompleteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "empty") {
			_, _ = w.Write([]byte(`{"choices":[]}`))
			return
		}
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewGroqClient("k", "m", srv.URL+"/busy").Complete(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = NewGroqClient("k", "m", srv.URL+"/empty").Complete(context.Background(), "", "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestWrapOrderAndLogging(t *testing.T) {
	var buf bytes.Buffer
	fake := NewFakeClient("one")
	c := Wrap(fake, WithLogging(log.New(&buf, "", 0)))

	out, err := c.Complete(WithPhase(context.Background(), "updated"), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "one", out)
	assert.Contains(t, buf.String(), "phase=updated")
	assert.Equal(t, "FakeLLM", c.Name())

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, Call{Phase: "updated", System: "s", User: "u"}, calls[0])
}

func TestFakeClientScriptAndFailures(t *testing.T) {
	f := NewFakeClient("a")
	f.FailNext(errors.New("boom"))
	ctx := context.Background()

	_, err := f.Complete(ctx, "", "")
	require.EqualError(t, err, "boom")
	out, _ := f.Complete(ctx, "", "")
	assert.Equal(t, "a", out)
	out, _ = f.Complete(ctx, "", "")
	assert.Equal(t, "[]", out)
}

func TestRateLimitBlocksUntilContextDone(t *testing.T) {
	c := Wrap(NewFakeClient(), RateLimit(0.001, 1))
	defer c.Close()

	_, err := c.Complete(context.Background(), "", "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Complete(ctx, "", "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimitDisabled(t *testing.T) {
	if newRPSLimiter(0, 5) != nil {
		t.Fatalf("zero rps must disable the limiter")
	}
	c := Wrap(NewFakeClient(), RateLimit(0, 0))
	for i := 0; i < 10; i++ {
		if _, err := c.Complete(context.Background(), "", ""); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestRPSLimiterRefillsFromClock(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newRPSLimiter(2, 2)
	l.now = func() time.Time { return now }
	l.last = now

	assert.Zero(t, l.reserve())
	assert.Zero(t, l.reserve())
	assert.Equal(t, 500*time.Millisecond, l.reserve(), "bucket is empty, next token in 1/rps")

	now = now.Add(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, l.reserve())

	now = now.Add(10 * time.Second)
	assert.Zero(t, l.reserve())
	assert.Zero(t, l.reserve())
	assert.NotZero(t, l.reserve(), "refill is capped at burst")
}

func TestJSONResponseFlag(t *testing.T) {
	ctx := context.Background()
	if JSONResponseFrom(ctx) {
		t.Fatalf("flag should default to false")
	}
	if !JSONResponseFrom(WithJSONResponse(ctx)) {
		t.Fatalf("flag not carried")
	}
	if PhaseFrom(ctx) != "unknown" {
		t.Fatalf("unexpected default phase %q", PhaseFrom(ctx))
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: "nope"}, nil)
	require.Error(t, err)

	c, err := New(context.Background(), Options{Provider: "fake"}, log.New(&bytes.Buffer{}, "", 0))
	require.NoError(t, err)
	assert.Equal(t, "FakeLLM", c.Name())
}
