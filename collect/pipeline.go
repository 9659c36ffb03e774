package collect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/jiyun-dev/chzzk-vodset/chzzkapi"
	"github.com/jiyun-dev/chzzk-vodset/config"
	"github.com/jiyun-dev/chzzk-vodset/db"
	"github.com/jiyun-dev/chzzk-vodset/store"
	"github.com/jiyun-dev/chzzk-vodset/telemetry"
)

// Pipeline runs the collection steps for one streamer: video metadata scan,
// chat crawl, chat extraction. Before every step it re-derives outstanding
// work from the stores, so a run after a crash repeats only what never
// committed.
type Pipeline struct {
	DB      *sql.DB
	Files   *store.FileManager
	Cursors *db.CrawlCursors
	Crawler *CrawlLoop

	BatchSize int // chat extraction batch size
}

// NewPipeline wires a pipeline for one streamer from config.
func NewPipeline(cfg config.Config, dbc *sql.DB, fm *store.FileManager) *Pipeline {
	cursors := &db.CrawlCursors{DB: dbc, StreamerIdx: fm.StreamerIdx()}
	client := &chzzkapi.Client{BaseURL: cfg.ChatBaseURL, UserAgent: cfg.UserAgent}
	return &Pipeline{
		DB:      dbc,
		Files:   fm,
		Cursors: cursors,
		Crawler: &CrawlLoop{
			Feed:       client,
			Sink:       fm,
			Cursors:    cursors,
			MaxRetries: cfg.CrawlMaxRetries,
			BaseDelay:  cfg.CrawlBaseDelay,
			Limiter:    rate.NewLimiter(rate.Limit(cfg.CrawlPageRate), 1),
		},
		BatchSize: cfg.ExtractBatchSize,
	}
}

// FileVideoIDs implements StateSource.
func (p *Pipeline) FileVideoIDs() (map[int64]bool, error) { return p.Files.VideoIDSet() }

// ChatPageVideoIDs implements StateSource.
func (p *Pipeline) ChatPageVideoIDs() (map[int64]bool, error) { return p.Files.ChatPageVideoIDSet() }

// DBVideoIDs implements StateSource.
func (p *Pipeline) DBVideoIDs(ctx context.Context) (map[int64]bool, error) {
	return db.VideoIDSet(ctx, p.DB, p.Files.StreamerIdx())
}

// ExtractedVideoIDs implements StateSource.
func (p *Pipeline) ExtractedVideoIDs(ctx context.Context) (map[int64]bool, error) {
	return db.ExtractedChatVideoIDSet(ctx, p.DB, p.Files.StreamerIdx())
}

// PendingCrawlVideoIDs implements StateSource.
func (p *Pipeline) PendingCrawlVideoIDs(ctx context.Context) (map[int64]bool, error) {
	return p.Cursors.PendingVideoIDs(ctx)
}

// RunStats tallies one pipeline run.
type RunStats struct {
	MetadataStored  int
	CrawlsDone      int
	CrawlsFailed    int
	VideosExtracted int
	ChatsExtracted  int
}

// Run executes one full collection pass. A video whose crawl exhausts its
// retry budget is tallied and skipped; any other error aborts the run.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	var stats RunStats
	ctx, span := telemetry.StartSpan(ctx, "collect", "pipeline.run",
		attribute.Int("streamer_idx", p.Files.StreamerIdx()))
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "collect"),
		slog.Int("streamer_idx", p.Files.StreamerIdx()))

	telemetry.CollectionRuns.Inc()
	if err := db.SetKV(ctx, p.DB, fmt.Sprintf("collect_last_run:%d", p.Files.StreamerIdx()),
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		logger.Warn("record last run", slog.Any("err", err))
	}
	start := time.Now()
	defer func() {
		telemetry.CollectionDuration.Observe(time.Since(start).Seconds())
	}()

	// Step 1: store metadata for video files the DB has not seen.
	ws, err := Reconcile(ctx, p)
	if err != nil {
		telemetry.RecordError(span, err)
		return stats, err
	}
	if err := storeVideoMetadata(ctx, p.DB, p.Files, ws.NeedsMetadata); err != nil {
		telemetry.RecordError(span, err)
		return stats, err
	}
	stats.MetadataStored = len(ws.NeedsMetadata)

	// Step 2: crawl chats for stored videos without a complete page file.
	ws, err = Reconcile(ctx, p)
	if err != nil {
		telemetry.RecordError(span, err)
		return stats, err
	}
	telemetry.SetCrawlBacklog(len(ws.NeedsChatCrawl))
	for _, id := range ws.NeedsChatCrawl {
		crawlStart := time.Now()
		res, err := p.Crawler.Crawl(ctx, id)
		telemetry.CrawlDuration.Observe(time.Since(crawlStart).Seconds())
		switch {
		case errors.Is(err, ErrCrawlFailed):
			stats.CrawlsFailed++
			telemetry.CrawlVideosFailed.Inc()
			logger.Warn("chat crawl failed", slog.Int64("video_id", id), slog.Any("err", err))
		case err != nil:
			telemetry.RecordError(span, err)
			return stats, fmt.Errorf("crawl video %d: %w", id, err)
		default:
			stats.CrawlsDone++
			telemetry.CrawlVideosDone.Inc()
			logger.Debug("chat crawl done",
				slog.Int64("video_id", id),
				slog.Int("pages", res.Pages),
				slog.Bool("resumed", res.Resumed))
		}
	}

	// Step 3: extract crawled page files into the DB.
	ws, err = Reconcile(ctx, p)
	if err != nil {
		telemetry.RecordError(span, err)
		return stats, err
	}
	telemetry.SetExtractionBacklog(len(ws.NeedsChatExtraction))
	for _, id := range ws.NeedsChatExtraction {
		n, err := extractChatLogs(ctx, p.DB, p.Files, id, p.BatchSize)
		if err != nil {
			telemetry.RecordError(span, err)
			return stats, fmt.Errorf("extract video %d: %w", id, err)
		}
		stats.VideosExtracted++
		stats.ChatsExtracted += n
	}

	telemetry.SetSpanSuccess(span)
	logger.Info("collection run complete",
		slog.Int("metadata_stored", stats.MetadataStored),
		slog.Int("crawls_done", stats.CrawlsDone),
		slog.Int("crawls_failed", stats.CrawlsFailed),
		slog.Int("videos_extracted", stats.VideosExtracted),
		slog.Int("chats_extracted", stats.ChatsExtracted))
	return stats, nil
}
