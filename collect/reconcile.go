package collect

import (
	"context"
	"fmt"
	"sort"
)

// WorkSet is the reconciler's output: the video ids each pipeline step still
// has to handle, sorted ascending so runs are deterministic.
type WorkSet struct {
	NeedsMetadata       []int64
	NeedsChatCrawl      []int64
	NeedsChatExtraction []int64
}

// Empty reports whether no step has outstanding work.
func (w WorkSet) Empty() bool {
	return len(w.NeedsMetadata) == 0 && len(w.NeedsChatCrawl) == 0 && len(w.NeedsChatExtraction) == 0
}

// StateSource exposes the identifier sets of the three stores the pipeline
// reconciles against, plus the set of videos with an unfinished crawl.
type StateSource interface {
	// FileVideoIDs is the set of video ids present as video files on disk.
	FileVideoIDs() (map[int64]bool, error)
	// ChatPageVideoIDs is the set of video ids with a chat page file on disk.
	ChatPageVideoIDs() (map[int64]bool, error)
	// DBVideoIDs is the set of video ids with stored metadata.
	DBVideoIDs(ctx context.Context) (map[int64]bool, error)
	// ExtractedVideoIDs is the set of video ids whose chats are already in the DB.
	ExtractedVideoIDs(ctx context.Context) (map[int64]bool, error)
	// PendingCrawlVideoIDs is the set of video ids with a persisted crawl cursor.
	PendingCrawlVideoIDs(ctx context.Context) (map[int64]bool, error)
}

// Reconcile re-derives the outstanding work from the observable state of the
// stores. It is side-effect free and called before every pipeline step, which
// is what makes a crashed run recoverable by simply running again: whatever
// was committed before the crash no longer shows up as work.
//
// A video with a pending cursor is re-enqueued for crawling (resumed from the
// stored cursor) even though its page file already exists, and is withheld
// from extraction until the crawl finishes.
func Reconcile(ctx context.Context, src StateSource) (WorkSet, error) {
	files, err := src.FileVideoIDs()
	if err != nil {
		return WorkSet{}, fmt.Errorf("list video files: %w", err)
	}
	pages, err := src.ChatPageVideoIDs()
	if err != nil {
		return WorkSet{}, fmt.Errorf("list chat pages: %w", err)
	}
	inDB, err := src.DBVideoIDs(ctx)
	if err != nil {
		return WorkSet{}, fmt.Errorf("list stored videos: %w", err)
	}
	extracted, err := src.ExtractedVideoIDs(ctx)
	if err != nil {
		return WorkSet{}, fmt.Errorf("list extracted videos: %w", err)
	}
	pending, err := src.PendingCrawlVideoIDs(ctx)
	if err != nil {
		return WorkSet{}, fmt.Errorf("list pending crawls: %w", err)
	}

	var ws WorkSet
	for id := range files {
		if !inDB[id] {
			ws.NeedsMetadata = append(ws.NeedsMetadata, id)
		}
	}
	for id := range inDB {
		if !pages[id] || pending[id] {
			ws.NeedsChatCrawl = append(ws.NeedsChatCrawl, id)
		}
	}
	for id := range pages {
		if inDB[id] && !extracted[id] && !pending[id] {
			ws.NeedsChatExtraction = append(ws.NeedsChatExtraction, id)
		}
	}
	sortIDs(ws.NeedsMetadata)
	sortIDs(ws.NeedsChatCrawl)
	sortIDs(ws.NeedsChatExtraction)
	return ws, nil
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
