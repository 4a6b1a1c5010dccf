package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"annotator/internal/events"
	"annotator/internal/feedback"
	"annotator/internal/snapshot"
	"annotator/internal/tracker"
)

// ItemSource reports the items currently tracked.
type ItemSource interface {
	Items() []tracker.Snapshot
}

// CacheReporter exposes snapshot cache counters. Optional.
type CacheReporter interface {
	Stats() snapshot.CacheStats
}

type itemView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	HasFeedback bool      `json:"hasFeedback"`
}

type statusView struct {
	Items       []itemView           `json:"items"`
	Count       int                  `json:"count"`
	Subscribers int                  `json:"subscribers"`
	Cache       *snapshot.CacheStats `json:"cache,omitempty"`
}

// NewHandler wires /healthz, /status and /ws/events. cache may be nil.
func NewHandler(items ItemSource, hub *events.Hub, cache CacheReporter, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		snaps := items.Items()
		view := statusView{Items: make([]itemView, 0, len(snaps)), Count: len(snaps)}
		for _, s := range snaps {
			view.Items = append(view.Items, itemView{
				ID:          s.ID,
				Title:       s.Title,
				ModifiedAt:  s.ModifiedAt,
				HasFeedback: feedback.HasFeedback(s.Body),
			})
		}
		if hub != nil {
			view.Subscribers = hub.Subscribers()
		}
		if cache != nil {
			stats := cache.Stats()
			view.Cache = &stats
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(view); err != nil {
			logger.Printf("status encode failed: %v", err)
		}
	})
	if hub != nil {
		mux.Handle("GET /ws/events", &eventsHandler{hub: hub, log: logger})
	}
	return mux
}
