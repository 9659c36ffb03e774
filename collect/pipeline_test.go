package collect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jiyun-dev/chzzk-vodset/config"
	"github.com/jiyun-dev/chzzk-vodset/db"
	"github.com/jiyun-dev/chzzk-vodset/store"
	"github.com/jiyun-dev/chzzk-vodset/testutil"
)

func writeVideoFile(t *testing.T, fm *store.FileManager, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(fm.VideosDir(), name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func chatMsg(text string, ts int64) map[string]any {
	return map[string]any{
		"messageTypeCode":   1,
		"messageStatusType": "NORMAL",
		"content":           text,
		"playerMessageTime": ts,
		"userIdHash":        "u",
	}
}

func newTestPipeline(t *testing.T, baseURL string) *Pipeline {
	t.Helper()
	dbc := newTestDB(t)
	fm := newTestFileManager(t)
	cfg := config.Config{
		ChatBaseURL:      baseURL,
		UserAgent:        "test-agent",
		CrawlMaxRetries:  2,
		CrawlBaseDelay:   time.Millisecond,
		CrawlPageRate:    1000,
		ExtractBatchSize: 2,
	}
	return NewPipeline(cfg, dbc, fm)
}

func TestPipelineFullPass(t *testing.T) {
	mock := testutil.NewMockChatServer(t)
	next := int64(3000)
	mock.Script(100,
		testutil.ChatPageFixture{Chats: []map[string]any{chatMsg("one", 1000), chatMsg("two", 2000)}, Next: &next},
		testutil.ChatPageFixture{Chats: []map[string]any{chatMsg("three", 3500)}},
	)

	p := newTestPipeline(t, mock.URL)
	writeVideoFile(t, p.Files, "20260301_talk_100.mp4")

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.MetadataStored != 1 || stats.CrawlsDone != 1 || stats.VideosExtracted != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ChatsExtracted != 3 {
		t.Errorf("ChatsExtracted = %d, want 3", stats.ChatsExtracted)
	}

	extracted, err := db.ExtractedChatVideoIDSet(context.Background(), p.DB, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !extracted[100] {
		t.Error("video 100 not extracted")
	}

	// A second run finds nothing left to do and touches the feed no further.
	before := mock.Requests()
	stats, err = p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.MetadataStored != 0 || stats.CrawlsDone != 0 || stats.VideosExtracted != 0 {
		t.Errorf("second run stats = %+v, want all zero", stats)
	}
	if mock.Requests() != before {
		t.Errorf("second run hit the feed %d more times", mock.Requests()-before)
	}
}

func TestPipelineIsolatesFailedCrawl(t *testing.T) {
	mock := testutil.NewMockChatServer(t)
	// Video 100 always fails; video 200 succeeds.
	mock.Script(100,
		testutil.ChatPageFixture{Fail: true},
		testutil.ChatPageFixture{Fail: true},
	)
	mock.Script(200,
		testutil.ChatPageFixture{Chats: []map[string]any{chatMsg("hi", 500)}},
	)

	p := newTestPipeline(t, mock.URL)
	writeVideoFile(t, p.Files, "20260301_talk_100.mp4")
	writeVideoFile(t, p.Files, "20260302_game_200.mp4")

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.CrawlsFailed != 1 || stats.CrawlsDone != 1 {
		t.Errorf("stats = %+v, want 1 failed / 1 done", stats)
	}
	if stats.VideosExtracted != 1 {
		t.Errorf("VideosExtracted = %d, want 1 (the failed video is withheld)", stats.VideosExtracted)
	}

	// The failed video keeps its checkpoint and is re-enqueued next run.
	ws, err := Reconcile(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(ws.NeedsChatCrawl) != 1 || ws.NeedsChatCrawl[0] != 100 {
		t.Errorf("NeedsChatCrawl = %v, want [100]", ws.NeedsChatCrawl)
	}
}

func TestPipelineResumesFailedCrawl(t *testing.T) {
	mock := testutil.NewMockChatServer(t)
	next := int64(2000)
	// First run: one good page, then persistent failure.
	mock.Script(100,
		testutil.ChatPageFixture{Chats: []map[string]any{chatMsg("one", 1000)}, Next: &next},
		testutil.ChatPageFixture{Fail: true},
		testutil.ChatPageFixture{Fail: true},
	)

	p := newTestPipeline(t, mock.URL)
	writeVideoFile(t, p.Files, "20260301_talk_100.mp4")

	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if stats.CrawlsFailed != 1 {
		t.Fatalf("stats = %+v, want 1 failed", stats)
	}

	// Second run: the feed recovers and serves the remaining page. The crawl
	// must resume at the stored cursor, not refetch page one.
	mock.Script(100,
		testutil.ChatPageFixture{Chats: []map[string]any{chatMsg("two", 2500)}},
	)
	stats, err = p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.CrawlsDone != 1 || stats.VideosExtracted != 1 {
		t.Errorf("second run stats = %+v", stats)
	}
	if stats.ChatsExtracted != 2 {
		t.Errorf("ChatsExtracted = %d, want 2", stats.ChatsExtracted)
	}
}
