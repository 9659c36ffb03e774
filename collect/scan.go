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

// storeVideoMetadata bulk-inserts metadata for the videos in need. Metadata
// comes from the filename convention, so the scan re-reads the directory and
// keeps only the ids the reconciler selected.
func storeVideoMetadata(ctx context.Context, dbc *sql.DB, fm *store.FileManager, need []int64) error {
	if len(need) == 0 {
		return nil
	}
	needSet := make(map[int64]bool, len(need))
	for _, id := range need {
		needSet[id] = true
	}
	files, err := fm.VideoFiles()
	if err != nil {
		return fmt.Errorf("scan video files: %w", err)
	}
	logs := make([]model.VideoLog, 0, len(need))
	for _, f := range files {
		if needSet[f.Log.VideoID] {
			logs = append(logs, f.Log)
		}
	}
	if err := db.InsertVideosBulk(ctx, dbc, logs); err != nil {
		return fmt.Errorf("store video metadata: %w", err)
	}
	telemetry.VideosStored.Add(float64(len(logs)))
	slog.Info("stored video metadata",
		slog.Int("streamer_idx", fm.StreamerIdx()),
		slog.Int("count", len(logs)))
	return nil
}
