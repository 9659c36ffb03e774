package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jiyun-dev/chzzk-vodset/model"
)

func newTestManager(t *testing.T) *FileManager {
	t.Helper()
	fm, err := NewFileManager(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("NewFileManager() error: %v", err)
	}
	return fm
}

func TestParseVideoFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantDate string
		wantCat  string
		wantID   int64
		wantErr  bool
	}{
		{"simple", "20240101_talk_12345.mp4", "2024-01-01", "talk", 12345, false},
		{"category with underscores", "20231215_just_chatting_777.mp4", "2023-12-15", "just_chatting", 777, false},
		{"wav extension", "20240101_talk_12345.wav", "2024-01-01", "talk", 12345, false},
		{"missing parts", "20240101_12345.mp4", "", "", 0, true},
		{"bad date", "2024x101_talk_12345.mp4", "", "", 0, true},
		{"bad id", "20240101_talk_abc.mp4", "", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, cat, id, err := ParseVideoFilename(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseVideoFilename(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVideoFilename(%q) error: %v", tt.input, err)
			}
			if got := created.Format("2006-01-02"); got != tt.wantDate {
				t.Errorf("date = %s, want %s", got, tt.wantDate)
			}
			if cat != tt.wantCat {
				t.Errorf("category = %q, want %q", cat, tt.wantCat)
			}
			if id != tt.wantID {
				t.Errorf("video id = %d, want %d", id, tt.wantID)
			}
		})
	}
}

func TestVideoFilesSkipsUnparsable(t *testing.T) {
	fm := newTestManager(t)
	for _, name := range []string{"20240101_talk_100.mp4", "garbage.mp4", "20240102_music_200.mp4"} {
		if err := os.WriteFile(filepath.Join(fm.VideosDir(), name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := fm.VideoFiles()
	if err != nil {
		t.Fatalf("VideoFiles() error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("VideoFiles() returned %d entries, want 2", len(files))
	}
	ids, err := fm.VideoIDSet()
	if err != nil {
		t.Fatalf("VideoIDSet() error: %v", err)
	}
	if !ids[100] || !ids[200] {
		t.Errorf("VideoIDSet() = %v, want {100,200}", ids)
	}
}

func TestAppendAndReadChatPageBatches(t *testing.T) {
	fm := newTestManager(t)
	recs := make([]model.ChatRecord, 0, 5)
	for i := 0; i < 5; i++ {
		recs = append(recs, model.ChatRecord{
			VideoID:     42,
			Content:     "hello",
			TimestampMS: int64(i * 1000),
			UserIDHash:  "abc",
			OSType:      "not_pc",
		})
	}
	if err := fm.AppendChatPage(42, recs[:3]); err != nil {
		t.Fatalf("AppendChatPage() error: %v", err)
	}
	if err := fm.AppendChatPage(42, recs[3:]); err != nil {
		t.Fatalf("AppendChatPage() second error: %v", err)
	}

	r, err := fm.OpenChatPage(42, 2)
	if err != nil {
		t.Fatalf("OpenChatPage() error: %v", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	}()

	var total int
	var batches int
	for {
		batch, err := r.Next()
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if batch == nil {
			break
		}
		if len(batch) > 2 {
			t.Errorf("batch size = %d, want <= 2", len(batch))
		}
		total += len(batch)
		batches++
	}
	if total != 5 {
		t.Errorf("read %d records, want 5", total)
	}
	if batches != 3 {
		t.Errorf("read %d batches, want 3", batches)
	}
}

func TestChatPageVideoIDSet(t *testing.T) {
	fm := newTestManager(t)
	if err := fm.AppendChatPage(7, []model.ChatRecord{{VideoID: 7, Content: "x", UserIDHash: "h"}}); err != nil {
		t.Fatal(err)
	}
	// an empty crawl still creates the page file
	if err := fm.AppendChatPage(9, nil); err != nil {
		t.Fatal(err)
	}
	ids, err := fm.ChatPageVideoIDSet()
	if err != nil {
		t.Fatalf("ChatPageVideoIDSet() error: %v", err)
	}
	if !ids[7] || !ids[9] || len(ids) != 2 {
		t.Errorf("ChatPageVideoIDSet() = %v, want {7,9}", ids)
	}
}

func TestAudioAndSegmentPaths(t *testing.T) {
	fm := newTestManager(t)
	v := VideoFile{
		Path: filepath.Join(fm.VideosDir(), "20240101_talk_55.mp4"),
		Log:  model.VideoLog{StreamerIdx: 1, VideoID: 55, Category: "talk", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	if got := filepath.Base(fm.AudioPath(v)); got != "20240101_talk_55.wav" {
		t.Errorf("AudioPath = %s, want 20240101_talk_55.wav", got)
	}
	if got := filepath.Base(fm.SegmentPath(v)); got != "20240101_talk_55.json" {
		t.Errorf("SegmentPath = %s, want 20240101_talk_55.json", got)
	}

	if err := os.WriteFile(fm.AudioPath(v), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	audio, err := fm.AudioVideoIDSet()
	if err != nil {
		t.Fatalf("AudioVideoIDSet() error: %v", err)
	}
	if !audio[55] {
		t.Errorf("AudioVideoIDSet() = %v, want {55}", audio)
	}
}
