package collect

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jiyun-dev/chzzk-vodset/telemetry"
)

// StartCollectionJob runs the pipeline at an interval until ctx is done.
// With COLLECT_WATCH=1 a filesystem watch on the video directory triggers an
// extra run shortly after new video files land, so fresh VODs don't wait a
// full interval. extTrigger may be nil; a send on it also forces a run (the
// admin endpoint uses this).
func StartCollectionJob(ctx context.Context, p *Pipeline, extTrigger <-chan struct{}) {
	interval := 1 * time.Minute
	if s := os.Getenv("COLLECT_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			interval = d
		}
	}
	logger := slog.Default().With(slog.String("component", "collect"), slog.Int("streamer_idx", p.Files.StreamerIdx()))
	logger.Info("collection job starting", slog.Duration("interval", interval))

	trigger := make(chan struct{}, 1)
	if os.Getenv("COLLECT_WATCH") == "1" {
		go func() {
			err := p.Files.WatchVideos(ctx, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("video watch stopped", slog.Any("err", err))
			}
		}()
	}

	run := func() {
		runCtx := telemetry.WithCorrelation(ctx, uuid.NewString())
		if _, err := p.Run(runCtx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("collection run", slog.Any("err", err))
		}
	}

	// Kick an immediate run so we don't wait a full interval after boot.
	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("collection job stopped")
			return
		case <-ticker.C:
			run()
		case <-trigger:
			run()
		case <-extTrigger:
			run()
		}
	}
}
