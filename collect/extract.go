package collect

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jiyun-dev/chzzk-vodset/db"
	"github.com/jiyun-dev/chzzk-vodset/model"
	"github.com/jiyun-dev/chzzk-vodset/store"
	"github.com/jiyun-dev/chzzk-vodset/telemetry"
)

type chatKey struct {
	timestampMS int64
	userIDHash  string
	content     string
}

// extractChatLogs loads one video's chat page file in fixed-size batches and
// bulk-inserts each batch. A resumed crawl can append its boundary page twice,
// so records are deduplicated by (timestamp, user, content) within the video
// before insert.
func extractChatLogs(ctx context.Context, dbc *sql.DB, fm *store.FileManager, videoID int64, batchSize int) (int, error) {
	videoIdx, err := db.VideoIdx(ctx, dbc, fm.StreamerIdx(), videoID)
	if err != nil {
		return 0, fmt.Errorf("resolve video_idx for %d: %w", videoID, err)
	}

	r, err := fm.OpenChatPage(videoID, batchSize)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := r.Close(); err != nil {
			slog.Warn("failed to close chat page reader", slog.Any("err", err))
		}
	}()

	seen := make(map[chatKey]bool)
	total := 0
	for {
		batch, err := r.Next()
		if err != nil {
			return total, err
		}
		if batch == nil {
			break
		}
		deduped := make([]model.ChatRecord, 0, len(batch))
		for _, rec := range batch {
			k := chatKey{rec.TimestampMS, rec.UserIDHash, rec.Content}
			if seen[k] {
				continue
			}
			seen[k] = true
			deduped = append(deduped, rec)
		}
		if err := db.InsertChatsBulk(ctx, dbc, videoIdx, deduped); err != nil {
			return total, fmt.Errorf("insert chats for %d: %w", videoID, err)
		}
		total += len(deduped)
	}
	telemetry.ChatsExtracted.Add(float64(total))
	slog.Info("extracted chat logs",
		slog.Int64("video_id", videoID),
		slog.Int("count", total))
	return total, nil
}
