// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered at package load so every call site can use them
// without a setup step.
var (
	// Counters
	VideosStored        = promauto.NewCounter(prometheus.CounterOpts{Name: "vodset_videos_stored_total", Help: "Number of video metadata rows stored"})
	ChatsExtracted      = promauto.NewCounter(prometheus.CounterOpts{Name: "vodset_chats_extracted_total", Help: "Number of chat records extracted into the database"})
	CrawlPagesFetched   = promauto.NewCounter(prometheus.CounterOpts{Name: "vodset_crawl_pages_fetched_total", Help: "Number of chat pages fetched and appended"})
	CrawlRetries        = promauto.NewCounter(prometheus.CounterOpts{Name: "vodset_crawl_retries_total", Help: "Number of chat page fetch retries"})
	CrawlVideosDone     = promauto.NewCounter(prometheus.CounterOpts{Name: "vodset_crawl_videos_done_total", Help: "Number of videos whose chat crawl completed"})
	CrawlVideosFailed   = promauto.NewCounter(prometheus.CounterOpts{Name: "vodset_crawl_videos_failed_total", Help: "Number of videos whose chat crawl exhausted retries"})
	CollectionRuns      = promauto.NewCounter(prometheus.CounterOpts{Name: "vodset_collection_runs_total", Help: "Number of collection pipeline runs"})
	AudiosExtracted     = promauto.NewCounter(prometheus.CounterOpts{Name: "vodset_audios_extracted_total", Help: "Number of audio tracks extracted from videos"})
	SegmentFilesWritten = promauto.NewCounter(prometheus.CounterOpts{Name: "vodset_segment_files_written_total", Help: "Number of speech segment files written"})

	// Histograms (seconds)
	CrawlDuration      prometheus.Observer = promauto.NewHistogram(prometheus.HistogramOpts{Name: "vodset_crawl_duration_seconds", Help: "Per-video chat crawl duration seconds", Buckets: prometheus.DefBuckets})
	CollectionDuration prometheus.Observer = promauto.NewHistogram(prometheus.HistogramOpts{Name: "vodset_collection_run_duration_seconds", Help: "Collection pipeline run duration seconds", Buckets: prometheus.DefBuckets})
	VADDuration        prometheus.Observer = promauto.NewHistogram(prometheus.HistogramOpts{Name: "vodset_vad_duration_seconds", Help: "Per-video voice activity detection duration seconds", Buckets: prometheus.DefBuckets})

	// Gauges
	CrawlBacklogGauge      = promauto.NewGauge(prometheus.GaugeOpts{Name: "vodset_crawl_backlog", Help: "Current number of videos awaiting a chat crawl"})
	ExtractionBacklogGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "vodset_extraction_backlog", Help: "Current number of videos awaiting chat extraction"})
)

// SetCrawlBacklog records the current count of videos awaiting a crawl.
func SetCrawlBacklog(n int) {
	CrawlBacklogGauge.Set(float64(n))
}

// SetExtractionBacklog records the current count of videos awaiting extraction.
func SetExtractionBacklog(n int) {
	ExtractionBacklogGauge.Set(float64(n))
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
