// Package testutil provides test doubles shared across packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ChatPageFixture describes one page the mock feed serves.
type ChatPageFixture struct {
	Chats []map[string]any
	Next  *int64
	// Fail makes the server answer this request with a 500 instead.
	Fail bool
	// OmitContent drops the content object to simulate a malformed response.
	OmitContent bool
}

// MockChatServer serves a scripted sequence of chat pages per video, in
// request order, mimicking the Chzzk VOD chat endpoint shape.
type MockChatServer struct {
	*httptest.Server

	mu       sync.Mutex
	pages    map[string][]ChatPageFixture
	served   map[string]int
	requests int
}

// NewMockChatServer creates a mock chat feed server, closed at test cleanup.
func NewMockChatServer(t *testing.T) *MockChatServer {
	t.Helper()
	m := &MockChatServer{
		pages:  make(map[string][]ChatPageFixture),
		served: make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

// Script sets the page sequence served for a video id.
func (m *MockChatServer) Script(videoID int64, pages ...ChatPageFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d", videoID)
	m.pages[key] = pages
	m.served[key] = 0
}

// Requests returns the total number of requests handled.
func (m *MockChatServer) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

func (m *MockChatServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++

	// path is /{video_id}/chats
	var id int64
	if _, err := fmt.Sscanf(r.URL.Path, "/%d/chats", &id); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	key := fmt.Sprintf("%d", id)
	seq, ok := m.pages[key]
	if !ok || m.served[key] >= len(seq) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	page := seq[m.served[key]]
	m.served[key]++

	if page.Fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if page.OmitContent {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 200})
		return
	}
	content := map[string]any{
		"videoChats":         page.Chats,
		"previousVideoChats": []map[string]any{},
	}
	if page.Next != nil {
		content["nextPlayerMessageTime"] = *page.Next
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "content": content})
}
