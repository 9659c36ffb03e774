package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// CrawlCursors persists the last successfully appended chat cursor per video
// in the kv table. A present key means the crawl for that video is incomplete
// and must be resumed from the stored cursor; clearing the key marks the
// crawl finished. This is what makes a crash mid-crawl recoverable without
// re-fetching pages that were already appended to disk.
type CrawlCursors struct {
	DB          *sql.DB
	StreamerIdx int
}

func (c *CrawlCursors) key(videoID int64) string {
	return fmt.Sprintf("chat_cursor:%d:%d", c.StreamerIdx, videoID)
}

// Get returns the persisted cursor for a video and whether one exists.
func (c *CrawlCursors) Get(ctx context.Context, videoID int64) (int64, bool, error) {
	var v string
	err := c.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, c.key(videoID)).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get crawl cursor: %w", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// A corrupt value is treated as absent; the crawl restarts from zero.
		slog.Warn("discarding unparsable crawl cursor", slog.Int64("video_id", videoID), slog.String("value", v))
		return 0, false, nil
	}
	return n, true, nil
}

// Set records the cursor of the next page to fetch for a video.
func (c *CrawlCursors) Set(ctx context.Context, videoID, cursor int64) error {
	if err := SetKV(ctx, c.DB, c.key(videoID), strconv.FormatInt(cursor, 10)); err != nil {
		return fmt.Errorf("set crawl cursor: %w", err)
	}
	return nil
}

// Clear removes the cursor, marking the video's crawl complete.
func (c *CrawlCursors) Clear(ctx context.Context, videoID int64) error {
	if _, err := c.DB.ExecContext(ctx, `DELETE FROM kv WHERE key=$1`, c.key(videoID)); err != nil {
		return fmt.Errorf("clear crawl cursor: %w", err)
	}
	return nil
}

// PendingVideoIDs returns the set of video ids with an unfinished crawl.
func (c *CrawlCursors) PendingVideoIDs(ctx context.Context) (map[int64]bool, error) {
	prefix := fmt.Sprintf("chat_cursor:%d:", c.StreamerIdx)
	rows, err := c.DB.QueryContext(ctx, `SELECT key FROM kv WHERE key LIKE $1`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("query pending cursors: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	out := make(map[int64]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)
		if err != nil {
			continue
		}
		out[id] = true
	}
	return out, rows.Err()
}
