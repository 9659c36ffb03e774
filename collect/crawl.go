package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/jiyun-dev/chzzk-vodset/chzzkapi"
	"github.com/jiyun-dev/chzzk-vodset/model"
	"github.com/jiyun-dev/chzzk-vodset/telemetry"
)

// ErrCrawlFailed marks a video whose crawl exhausted its retry budget. The
// surrounding run tallies it and moves on to the next video.
var ErrCrawlFailed = errors.New("chat crawl failed after retries")

// ChatFeed is the single-page fetch against the remote chat API.
type ChatFeed interface {
	FetchChats(ctx context.Context, videoID, cursor int64) (*chzzkapi.ChatPage, error)
}

// PageSink appends one filtered page to the chat-page store.
type PageSink interface {
	AppendChatPage(videoID int64, recs []model.ChatRecord) error
}

// CursorStore checkpoints the next cursor per video so an interrupted crawl
// resumes instead of re-fetching pages already on disk.
type CursorStore interface {
	Get(ctx context.Context, videoID int64) (cursor int64, ok bool, err error)
	Set(ctx context.Context, videoID, cursor int64) error
	Clear(ctx context.Context, videoID int64) error
}

// CrawlLoop drives the paginated chat fetch for single videos. Within one
// video, pages are fetched and appended strictly in cursor order; a loop
// instance must not be invoked concurrently for the same video.
type CrawlLoop struct {
	Feed    ChatFeed
	Sink    PageSink
	Cursors CursorStore

	MaxRetries int           // retry budget per cursor position (default 3)
	BaseDelay  time.Duration // base for jittered retry delay (default 500ms)
	Limiter    *rate.Limiter // optional pacing between page fetches

	// rand source for jitter; nil uses the global source
	Rand *rand.Rand
}

// CrawlResult summarizes one video's crawl.
type CrawlResult struct {
	Pages    int // pages appended
	Messages int // raw messages seen
	Kept     int // records kept after filtering
	Resumed  bool
}

func (c *CrawlLoop) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 3
}

func (c *CrawlLoop) baseDelay() time.Duration {
	if c.BaseDelay > 0 {
		return c.BaseDelay
	}
	return 500 * time.Millisecond
}

// jitterDelay is the base delay scaled by a uniform factor in [0.5, 1.5) so
// concurrent crawlers don't hammer the feed in lockstep after an outage.
func (c *CrawlLoop) jitterDelay() time.Duration {
	f := rand.Float64()
	if c.Rand != nil {
		f = c.Rand.Float64()
	}
	return time.Duration(float64(c.baseDelay()) * (0.5 + f))
}

// Crawl fetches every remaining chat page for one video, appending each page
// to the sink and checkpointing the cursor after each successful append.
//
// Transient fetch failures (network errors, bad status, missing content) and
// suspicious empty pages retry the same cursor with a jittered delay; after
// MaxRetries consecutive failures the crawl returns ErrCrawlFailed without
// issuing another fetch. Sink and cursor-store failures are storage errors:
// they are returned as-is without retry.
func (c *CrawlLoop) Crawl(ctx context.Context, videoID int64) (CrawlResult, error) {
	var res CrawlResult
	logger := slog.Default().With(slog.String("component", "chat_crawl"), slog.Int64("video_id", videoID))

	cursor := int64(0)
	if saved, ok, err := c.Cursors.Get(ctx, videoID); err != nil {
		return res, err
	} else if ok {
		cursor = saved
		res.Resumed = true
		logger.Info("resuming crawl from checkpoint", slog.Int64("cursor", cursor))
	} else {
		// Mark the crawl in progress before the first page can hit the sink;
		// a crash from here on leaves a checkpoint to resume from.
		if err := c.Cursors.Set(ctx, videoID, cursor); err != nil {
			return res, err
		}
	}

	attempt := 0
	for {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return res, err
			}
		}

		page, err := c.Feed.FetchChats(ctx, videoID, cursor)
		if err == nil && len(page.VideoChats) == 0 && !page.Done() {
			// A page with no messages but a next cursor is feed trouble, not
			// a legitimate empty window.
			err = fmt.Errorf("empty page with next cursor %d", *page.NextPlayerMessageTime)
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			attempt++
			telemetry.CrawlRetries.Inc()
			if attempt >= c.maxRetries() {
				logger.Warn("crawl giving up", slog.Int64("cursor", cursor), slog.Int("attempts", attempt), slog.Any("err", err))
				return res, fmt.Errorf("%w: video %d at cursor %d: %v", ErrCrawlFailed, videoID, cursor, err)
			}
			delay := c.jitterDelay()
			logger.Debug("crawl retrying", slog.Int64("cursor", cursor), slog.Int("attempt", attempt), slog.Duration("delay", delay), slog.Any("err", err))
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		recs := FilterMessages(page.VideoChats, videoID)
		if err := c.Sink.AppendChatPage(videoID, recs); err != nil {
			return res, fmt.Errorf("append chat page for %d: %w", videoID, err)
		}
		res.Pages++
		res.Messages += len(page.VideoChats)
		res.Kept += len(recs)
		telemetry.CrawlPagesFetched.Inc()

		if page.Done() {
			if err := c.Cursors.Clear(ctx, videoID); err != nil {
				return res, err
			}
			logger.Info("crawl done", slog.Int("pages", res.Pages), slog.Int("messages", res.Messages), slog.Int("kept", res.Kept))
			return res, nil
		}
		cursor = *page.NextPlayerMessageTime
		if err := c.Cursors.Set(ctx, videoID, cursor); err != nil {
			return res, err
		}
	}
}
