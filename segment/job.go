package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jiyun-dev/chzzk-vodset/config"
	"github.com/jiyun-dev/chzzk-vodset/store"
	"github.com/jiyun-dev/chzzk-vodset/telemetry"
)

// SegmentFile is the dataset artifact written per video.
type SegmentFile struct {
	VideoID    int64     `json:"video_id"`
	MergeGapMS int64     `json:"merge_gap_ms"`
	MinLenMS   int64     `json:"min_len_ms"`
	MaxLenMS   int64     `json:"max_len_ms"`
	Segments   []Segment `json:"segments"`
}

// Builder produces segment files for one streamer's videos. Progress is
// tracked by file presence alone: a video with an audio file skips
// extraction, one with a segment file skips everything.
type Builder struct {
	Files    *store.FileManager
	Detector *Detector

	SampleRate int
	MergeGapMS int64
	MinLenMS   int64
	MaxLenMS   int64
}

// NewBuilder wires a builder for one streamer from config.
func NewBuilder(cfg config.Config, fm *store.FileManager) *Builder {
	return &Builder{
		Files:      fm,
		Detector:   &Detector{Command: strings.Fields(cfg.VADCommand)},
		SampleRate: cfg.AudioSampleRate,
		MergeGapMS: cfg.MergeThresholdMS,
		MinLenMS:   cfg.MinSegmentMS,
		MaxLenMS:   cfg.MaxSegmentMS,
	}
}

// Run makes one pass over the streamer's videos, extracting missing audio
// and producing missing segment files. Per-video failures are logged and
// skipped so one broken file doesn't stall the rest.
func (b *Builder) Run(ctx context.Context) error {
	logger := slog.Default().With(slog.String("component", "segment"), slog.Int("streamer_idx", b.Files.StreamerIdx()))

	videos, err := b.Files.VideoFiles()
	if err != nil {
		return fmt.Errorf("list video files: %w", err)
	}
	audios, err := b.Files.AudioVideoIDSet()
	if err != nil {
		return err
	}
	done, err := b.Files.SegmentVideoIDSet()
	if err != nil {
		return err
	}

	for _, v := range videos {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if done[v.Log.VideoID] {
			continue
		}
		audioPath := b.Files.AudioPath(v)
		if !audios[v.Log.VideoID] {
			if err := ExtractAudio(ctx, v.Path, audioPath, b.SampleRate); err != nil {
				logger.Warn("audio extraction failed", slog.Int64("video_id", v.Log.VideoID), slog.Any("err", err))
				continue
			}
			telemetry.AudiosExtracted.Inc()
		}
		if err := b.buildSegments(ctx, v, audioPath); err != nil {
			logger.Warn("segment build failed", slog.Int64("video_id", v.Log.VideoID), slog.Any("err", err))
			continue
		}
		telemetry.SegmentFilesWritten.Inc()
		logger.Info("segment file written", slog.Int64("video_id", v.Log.VideoID))
	}
	return nil
}

func (b *Builder) buildSegments(ctx context.Context, v store.VideoFile, audioPath string) error {
	res, err := b.Detector.Detect(ctx, audioPath)
	if err != nil {
		return err
	}
	merged := Merge(res.Segments(), b.MergeGapMS, b.MinLenMS, b.MaxLenMS)
	doc := SegmentFile{
		VideoID:    v.Log.VideoID,
		MergeGapMS: b.MergeGapMS,
		MinLenMS:   b.MinLenMS,
		MaxLenMS:   b.MaxLenMS,
		Segments:   merged,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	path := b.Files.SegmentPath(v)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write segment file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize segment file: %w", err)
	}
	return nil
}

// StartDatasetJob runs the builder at an interval until ctx is done. Without
// a configured VAD command the job is a no-op.
func StartDatasetJob(ctx context.Context, b *Builder) {
	if len(b.Detector.Command) == 0 {
		slog.Info("dataset job disabled: VAD_CMD not set")
		return
	}
	interval := 10 * time.Minute
	if s := os.Getenv("DATASET_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			interval = d
		}
	}
	logger := slog.Default().With(slog.String("component", "segment"), slog.Int("streamer_idx", b.Files.StreamerIdx()))
	logger.Info("dataset job starting", slog.Duration("interval", interval))

	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("dataset run", slog.Any("err", err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("dataset job stopped")
			return
		case <-ticker.C:
			if err := b.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("dataset run", slog.Any("err", err))
			}
		}
	}
}
