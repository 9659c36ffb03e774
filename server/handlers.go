package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jiyun-dev/chzzk-vodset/db"
)

// Handlers carries shared dependencies for HTTP handlers.
type Handlers struct {
	db        *sql.DB
	streamers []int
	// triggers forces a collection run per streamer_idx; nil sends are fine
	// (the request is acknowledged but nothing listens).
	triggers map[int]chan<- struct{}
}

// Option configures optional handler dependencies.
type Option func(*Handlers)

// WithStreamers sets the streamer list surfaced by /status.
func WithStreamers(streamers []int) Option {
	return func(h *Handlers) { h.streamers = streamers }
}

// WithCollectTriggers wires per-streamer channels the admin endpoint nudges.
func WithCollectTriggers(triggers map[int]chan<- struct{}) Option {
	return func(h *Handlers) { h.triggers = triggers }
}

// NewHandlers wires handlers with dependencies.
func NewHandlers(dbc *sql.DB, opts ...Option) *Handlers {
	h := &Handlers{db: dbc}
	for _, o := range opts {
		o(h)
	}
	return h
}

// HandleHealthz responds to liveness probes by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probes. Ready means the database is
// reachable and the schema is migrated.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"schema", func() error {
			var n int
			return h.db.QueryRowContext(r.Context(), "SELECT COUNT(1) FROM kv").Scan(&n)
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type streamerStatus struct {
	StreamerIdx int    `json:"streamer_idx"`
	Videos      int    `json:"videos"`
	Chats       int    `json:"chats"`
	LastRun     string `json:"last_run,omitempty"`
}

// HandleStatus reports per-streamer collection progress.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := make([]streamerStatus, 0, len(h.streamers))
	for _, idx := range h.streamers {
		st := streamerStatus{StreamerIdx: idx}
		var err error
		if st.Videos, err = db.CountVideos(ctx, h.db, idx); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if st.Chats, err = db.CountChats(ctx, h.db, idx); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if v, err := db.GetKV(ctx, h.db, fmt.Sprintf("collect_last_run:%d", idx)); err == nil {
			st.LastRun = v
		}
		out = append(out, st)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"streamers": out})
}

// HandleAdminCollectRun forces an immediate collection run. With ?streamer=N
// only that streamer runs, otherwise all of them.
func (h *Handlers) HandleAdminCollectRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	nudge := func(idx int) bool {
		ch, ok := h.triggers[idx]
		if !ok {
			return false
		}
		select {
		case ch <- struct{}{}:
		default: // run already pending
		}
		return true
	}

	triggered := []int{}
	if s := r.URL.Query().Get("streamer"); s != "" {
		idx, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid streamer", http.StatusBadRequest)
			return
		}
		if !nudge(idx) {
			http.Error(w, "unknown streamer", http.StatusNotFound)
			return
		}
		triggered = append(triggered, idx)
	} else {
		for idx := range h.triggers {
			if nudge(idx) {
				triggered = append(triggered, idx)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"triggered": triggered})
}
