// Package store manages the per-streamer file tree that external tooling
// populates with video files and that the pipeline fills with chat pages,
// extracted audio, and speech segments:
//
//	<base>/data/<streamer_idx>/videos/{YYYYMMDD}_{category}_{video_id}.mp4
//	<base>/data/<streamer_idx>/chats/chats_{video_id}.jsonl
//	<base>/data/<streamer_idx>/audios/{YYYYMMDD}_{category}_{video_id}.wav
//	<base>/data/<streamer_idx>/segments/{YYYYMMDD}_{category}_{video_id}.json
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jiyun-dev/chzzk-vodset/model"
)

const (
	videosDirName   = "videos"
	chatsDirName    = "chats"
	audiosDirName   = "audios"
	segmentsDirName = "segments"
	dataRootDirName = "data"

	chatFilePrefix = "chats_"
	videoExt       = ".mp4"
	audioExt       = ".wav"
)

// VideoFile is one video on disk together with its parsed metadata.
type VideoFile struct {
	Path string
	Log  model.VideoLog
}

// FileManager provides access to one streamer's directory tree. Construct it
// explicitly and pass it in; nothing here is lazily attached to shared state.
type FileManager struct {
	streamerIdx int
	videosDir   string
	chatsDir    string
	audiosDir   string
	segmentsDir string
}

// NewFileManager creates the streamer's directories if missing and returns a manager.
func NewFileManager(baseDir string, streamerIdx int) (*FileManager, error) {
	root := filepath.Join(baseDir, dataRootDirName, strconv.Itoa(streamerIdx))
	fm := &FileManager{
		streamerIdx: streamerIdx,
		videosDir:   filepath.Join(root, videosDirName),
		chatsDir:    filepath.Join(root, chatsDirName),
		audiosDir:   filepath.Join(root, audiosDirName),
		segmentsDir: filepath.Join(root, segmentsDirName),
	}
	for _, dir := range []string{fm.videosDir, fm.chatsDir, fm.audiosDir, fm.segmentsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return fm, nil
}

// StreamerIdx returns the streamer this manager serves.
func (fm *FileManager) StreamerIdx() int { return fm.streamerIdx }

// VideosDir returns the watched videos directory.
func (fm *FileManager) VideosDir() string { return fm.videosDir }

// ParseVideoFilename parses {YYYYMMDD}_{category}_{video_id}{ext}. The
// category itself may contain underscores; the first part is always the date
// and the last the video id.
func ParseVideoFilename(name string) (created time.Time, category string, videoID int64, err error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return time.Time{}, "", 0, fmt.Errorf("unexpected video filename %q", name)
	}
	created, err = time.Parse("20060102", parts[0])
	if err != nil {
		return time.Time{}, "", 0, fmt.Errorf("bad date in video filename %q: %w", name, err)
	}
	videoID, err = strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return time.Time{}, "", 0, fmt.Errorf("bad video id in filename %q: %w", name, err)
	}
	category = strings.Join(parts[1:len(parts)-1], "_")
	return created, category, videoID, nil
}

// VideoFiles lists the streamer's video files with parsed metadata. Files that
// do not follow the naming convention are skipped with a log record.
func (fm *FileManager) VideoFiles() ([]VideoFile, error) {
	paths, err := filepath.Glob(filepath.Join(fm.videosDir, "*"+videoExt))
	if err != nil {
		return nil, fmt.Errorf("glob videos: %w", err)
	}
	out := make([]VideoFile, 0, len(paths))
	for _, p := range paths {
		created, category, videoID, err := ParseVideoFilename(filepath.Base(p))
		if err != nil {
			slog.Warn("skipping unparsable video file", slog.String("path", p), slog.Any("err", err))
			continue
		}
		out = append(out, VideoFile{
			Path: p,
			Log: model.VideoLog{
				StreamerIdx: fm.streamerIdx,
				VideoID:     videoID,
				Category:    category,
				CreatedAt:   created,
				VideoURL:    p,
			},
		})
	}
	return out, nil
}

// VideoIDSet returns the set of video ids present as video files.
func (fm *FileManager) VideoIDSet() (map[int64]bool, error) {
	files, err := fm.VideoFiles()
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(files))
	for _, f := range files {
		out[f.Log.VideoID] = true
	}
	return out, nil
}

func (fm *FileManager) chatPagePath(videoID int64) string {
	return filepath.Join(fm.chatsDir, fmt.Sprintf("%s%d.jsonl", chatFilePrefix, videoID))
}

// ChatPageVideoIDSet returns the set of video ids that have a chat page file.
func (fm *FileManager) ChatPageVideoIDSet() (map[int64]bool, error) {
	paths, err := filepath.Glob(filepath.Join(fm.chatsDir, chatFilePrefix+"*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("glob chat pages: %w", err)
	}
	out := make(map[int64]bool, len(paths))
	for _, p := range paths {
		stem := strings.TrimSuffix(filepath.Base(p), ".jsonl")
		id, err := strconv.ParseInt(strings.TrimPrefix(stem, chatFilePrefix), 10, 64)
		if err != nil {
			continue
		}
		out[id] = true
	}
	return out, nil
}

// AppendChatPage appends one page of records to the video's JSONL file,
// one JSON document per line. The file is created on first append.
func (fm *FileManager) AppendChatPage(videoID int64, recs []model.ChatRecord) error {
	f, err := os.OpenFile(fm.chatPagePath(videoID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open chat page for %d: %w", videoID, err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return fmt.Errorf("append chat record for %d: %w", videoID, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush chat page for %d: %w", videoID, err)
	}
	return f.Close()
}

// ChatPageReader reads a video's chat page file as a sequence of fixed-size
// batches, holding at most one batch in memory at a time. Call Next until it
// returns a nil batch.
type ChatPageReader struct {
	f         *os.File
	scanner   *bufio.Scanner
	batchSize int
}

// OpenChatPage opens the JSONL page file of a video for batched reading.
func (fm *FileManager) OpenChatPage(videoID int64, batchSize int) (*ChatPageReader, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	f, err := os.Open(fm.chatPagePath(videoID))
	if err != nil {
		return nil, fmt.Errorf("open chat page for %d: %w", videoID, err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ChatPageReader{f: f, scanner: sc, batchSize: batchSize}, nil
}

// Next returns the next batch of records. A nil slice with nil error means
// the file is exhausted. Lines that fail to decode abort the read; a partial
// page on disk is a storage error, not something to paper over.
func (r *ChatPageReader) Next() ([]model.ChatRecord, error) {
	batch := make([]model.ChatRecord, 0, r.batchSize)
	for len(batch) < r.batchSize && r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		var rec model.ChatRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("decode chat page line: %w", err)
		}
		batch = append(batch, rec)
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chat page: %w", err)
	}
	if len(batch) == 0 {
		return nil, nil
	}
	return batch, nil
}

// Close releases the underlying file.
func (r *ChatPageReader) Close() error { return r.f.Close() }

// AudioPath returns the audio file path derived from a video file.
func (fm *FileManager) AudioPath(v VideoFile) string {
	stem := strings.TrimSuffix(filepath.Base(v.Path), filepath.Ext(v.Path))
	return filepath.Join(fm.audiosDir, stem+audioExt)
}

// AudioVideoIDSet returns video ids that already have extracted audio.
func (fm *FileManager) AudioVideoIDSet() (map[int64]bool, error) {
	return fm.idSetFromGlob(filepath.Join(fm.audiosDir, "*"+audioExt))
}

// SegmentPath returns the merged-segment JSON path derived from a video file.
func (fm *FileManager) SegmentPath(v VideoFile) string {
	stem := strings.TrimSuffix(filepath.Base(v.Path), filepath.Ext(v.Path))
	return filepath.Join(fm.segmentsDir, stem+".json")
}

// SegmentVideoIDSet returns video ids that already have a segment file.
func (fm *FileManager) SegmentVideoIDSet() (map[int64]bool, error) {
	return fm.idSetFromGlob(filepath.Join(fm.segmentsDir, "*.json"))
}

func (fm *FileManager) idSetFromGlob(pattern string) (map[int64]bool, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	out := make(map[int64]bool, len(paths))
	for _, p := range paths {
		_, _, id, err := ParseVideoFilename(filepath.Base(p))
		if err != nil {
			continue
		}
		out[id] = true
	}
	return out, nil
}
