package store

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchVideos watches the streamer's videos directory and invokes trigger
// after new video files appear. Events are debounced so a large file being
// written produces one trigger, not one per chunk. Returns once the watcher
// is installed; the watch loop runs until ctx is done.
func (fm *FileManager) WatchVideos(ctx context.Context, trigger func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(fm.videosDir); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer func() {
			if err := w.Close(); err != nil {
				slog.Warn("failed to close watcher", slog.Any("err", err))
			}
		}()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if !strings.HasSuffix(ev.Name, videoExt) {
					continue
				}
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(5 * time.Second)
			case <-debounce.C:
				slog.Info("video directory changed; triggering collection",
					slog.Int("streamer_idx", fm.streamerIdx))
				trigger()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("video watch error", slog.Any("err", err))
			}
		}
	}()
	return nil
}
