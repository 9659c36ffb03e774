package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jiyun-dev/chzzk-vodset/model"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbc, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { dbc.Close() })
	schema := `
CREATE TABLE videos (
	video_idx INTEGER PRIMARY KEY,
	streamer_idx INTEGER NOT NULL,
	video_id INTEGER NOT NULL,
	category TEXT,
	created_at TIMESTAMP,
	video_url TEXT,
	UNIQUE (streamer_idx, video_id)
);
CREATE TABLE chats (
	chat_idx INTEGER PRIMARY KEY,
	video_idx INTEGER NOT NULL,
	chat_text TEXT,
	chat_time INTEGER,
	user_id_hash TEXT,
	pay_amount INTEGER DEFAULT 0,
	os_type TEXT
);
CREATE TABLE kv (key TEXT PRIMARY KEY, value TEXT, updated_at TIMESTAMP);`
	if _, err := dbc.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return dbc
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		wantErr bool
	}{
		{"explicit dsn", "postgres://user:pw@db.example.com:5432/vodset", false},
		{"empty dsn uses local default", "", false},
		{"malformed dsn", "://nope", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbc, err := Connect(tt.dsn)
			if tt.wantErr {
				if err == nil {
					dbc.Close()
					t.Fatalf("Connect(%q) expected error", tt.dsn)
				}
				return
			}
			if err != nil {
				t.Fatalf("Connect(%q) error: %v", tt.dsn, err)
			}
			dbc.Close()
		})
	}
}

func sampleVideos() []model.VideoLog {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []model.VideoLog{
		{StreamerIdx: 1, VideoID: 100, Category: "talk", CreatedAt: created, VideoURL: "u1"},
		{StreamerIdx: 1, VideoID: 200, Category: "game", CreatedAt: created, VideoURL: "u2"},
	}
}

func TestInsertVideosBulkIdempotent(t *testing.T) {
	dbc := newTestDB(t)
	ctx := context.Background()

	if err := InsertVideosBulk(ctx, dbc, sampleVideos()); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// Same batch again must not error or duplicate.
	if err := InsertVideosBulk(ctx, dbc, sampleVideos()); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	n, err := CountVideos(ctx, dbc, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountVideos = %d, want 2", n)
	}

	set, err := VideoIDSet(ctx, dbc, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !set[100] || !set[200] || len(set) != 2 {
		t.Errorf("VideoIDSet = %v", set)
	}
}

func TestInsertChatsAndExtractedSet(t *testing.T) {
	dbc := newTestDB(t)
	ctx := context.Background()

	if err := InsertVideosBulk(ctx, dbc, sampleVideos()); err != nil {
		t.Fatal(err)
	}
	idx, err := VideoIdx(ctx, dbc, 1, 100)
	if err != nil {
		t.Fatalf("VideoIdx: %v", err)
	}

	chats := []model.ChatRecord{
		{VideoID: 100, Content: "hello", TimestampMS: 1000, UserIDHash: "a", OSType: "not_pc"},
		{VideoID: 100, Content: "world", TimestampMS: 2000, UserIDHash: "b", PayAmount: 5000, OSType: "PC"},
	}
	if err := InsertChatsBulk(ctx, dbc, idx, chats); err != nil {
		t.Fatalf("InsertChatsBulk: %v", err)
	}

	extracted, err := ExtractedChatVideoIDSet(ctx, dbc, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !extracted[100] || extracted[200] {
		t.Errorf("ExtractedChatVideoIDSet = %v, want only 100", extracted)
	}

	n, err := CountChats(ctx, dbc, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountChats = %d, want 2", n)
	}
}

func TestVideoIdxMissing(t *testing.T) {
	dbc := newTestDB(t)
	if _, err := VideoIdx(context.Background(), dbc, 1, 999); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestKVRoundTrip(t *testing.T) {
	dbc := newTestDB(t)
	ctx := context.Background()

	if v, err := GetKV(ctx, dbc, "missing"); err != nil || v != "" {
		t.Errorf("GetKV missing = %q, %v", v, err)
	}
	if err := SetKV(ctx, dbc, "k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := SetKV(ctx, dbc, "k", "v2"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if v, _ := GetKV(ctx, dbc, "k"); v != "v2" {
		t.Errorf("GetKV = %q, want v2", v)
	}
}

func TestCrawlCursors(t *testing.T) {
	dbc := newTestDB(t)
	ctx := context.Background()
	cursors := &CrawlCursors{DB: dbc, StreamerIdx: 1}

	if _, ok, err := cursors.Get(ctx, 100); err != nil || ok {
		t.Fatalf("Get before Set: ok=%v err=%v", ok, err)
	}

	if err := cursors.Set(ctx, 100, 5000); err != nil {
		t.Fatal(err)
	}
	got, ok, err := cursors.Get(ctx, 100)
	if err != nil || !ok || got != 5000 {
		t.Fatalf("Get = %d, %v, %v; want 5000", got, ok, err)
	}

	pending, err := cursors.PendingVideoIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !pending[100] || len(pending) != 1 {
		t.Errorf("PendingVideoIDs = %v, want {100}", pending)
	}

	// Other streamers' cursors don't leak into pending.
	other := &CrawlCursors{DB: dbc, StreamerIdx: 2}
	if err := other.Set(ctx, 300, 1); err != nil {
		t.Fatal(err)
	}
	pending, _ = cursors.PendingVideoIDs(ctx)
	if pending[300] {
		t.Error("pending contains another streamer's video")
	}

	if err := cursors.Clear(ctx, 100); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := cursors.Get(ctx, 100); ok {
		t.Error("cursor still present after Clear")
	}
}

func TestCrawlCursorsCorruptValue(t *testing.T) {
	dbc := newTestDB(t)
	ctx := context.Background()
	cursors := &CrawlCursors{DB: dbc, StreamerIdx: 1}

	if err := SetKV(ctx, dbc, "chat_cursor:1:100", "garbage"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := cursors.Get(ctx, 100); err != nil || ok {
		t.Errorf("corrupt cursor: ok=%v err=%v, want treated as absent", ok, err)
	}
}
