package collect

import (
	"context"
	"reflect"
	"testing"
)

type fakeState struct {
	files     map[int64]bool
	pages     map[int64]bool
	inDB      map[int64]bool
	extracted map[int64]bool
	pending   map[int64]bool
}

func (f *fakeState) FileVideoIDs() (map[int64]bool, error)     { return f.files, nil }
func (f *fakeState) ChatPageVideoIDs() (map[int64]bool, error) { return f.pages, nil }
func (f *fakeState) DBVideoIDs(context.Context) (map[int64]bool, error) {
	return f.inDB, nil
}
func (f *fakeState) ExtractedVideoIDs(context.Context) (map[int64]bool, error) {
	return f.extracted, nil
}
func (f *fakeState) PendingCrawlVideoIDs(context.Context) (map[int64]bool, error) {
	return f.pending, nil
}

func ids(vals ...int64) map[int64]bool {
	m := make(map[int64]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name           string
		state          fakeState
		wantMetadata   []int64
		wantCrawl      []int64
		wantExtraction []int64
	}{
		{
			name:  "fresh start",
			state: fakeState{files: ids(1, 2), pages: ids(), inDB: ids(), extracted: ids(), pending: ids()},
			// Nothing in the DB yet, so only metadata is due.
			wantMetadata: []int64{1, 2},
		},
		{
			name:      "metadata stored, chats not crawled",
			state:     fakeState{files: ids(1, 2), pages: ids(), inDB: ids(1, 2), extracted: ids(), pending: ids()},
			wantCrawl: []int64{1, 2},
		},
		{
			name:           "pages crawled, not extracted",
			state:          fakeState{files: ids(1, 2), pages: ids(1, 2), inDB: ids(1, 2), extracted: ids(), pending: ids()},
			wantExtraction: []int64{1, 2},
		},
		{
			name:  "fully processed",
			state: fakeState{files: ids(1, 2), pages: ids(1, 2), inDB: ids(1, 2), extracted: ids(1, 2), pending: ids()},
		},
		{
			name:  "pending cursor re-enqueues crawl and withholds extraction",
			state: fakeState{files: ids(1), pages: ids(1), inDB: ids(1), extracted: ids(), pending: ids(1)},
			// The page file exists but the crawl never finished.
			wantCrawl: []int64{1},
		},
		{
			name:           "mixed progress",
			state:          fakeState{files: ids(1, 2, 3), pages: ids(1, 2), inDB: ids(1, 2), extracted: ids(1), pending: ids()},
			wantMetadata:   []int64{3},
			wantExtraction: []int64{2},
		},
		{
			name:           "orphan page file without metadata is ignored",
			state:          fakeState{files: ids(1), pages: ids(1, 9), inDB: ids(1), extracted: ids(), pending: ids()},
			wantExtraction: []int64{1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, err := Reconcile(context.Background(), &tt.state)
			if err != nil {
				t.Fatalf("Reconcile: %v", err)
			}
			checkIDs(t, "NeedsMetadata", ws.NeedsMetadata, tt.wantMetadata)
			checkIDs(t, "NeedsChatCrawl", ws.NeedsChatCrawl, tt.wantCrawl)
			checkIDs(t, "NeedsChatExtraction", ws.NeedsChatExtraction, tt.wantExtraction)
		})
	}
}

func checkIDs(t *testing.T, field string, got, want []int64) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%s = %v, want %v", field, got, want)
	}
}

// Reconciling twice against unchanged state yields the same work set, and
// reconciling against fully-processed state yields none.
func TestReconcileIdempotent(t *testing.T) {
	state := fakeState{files: ids(1, 2, 3), pages: ids(1), inDB: ids(1, 2), extracted: ids(), pending: ids()}
	first, err := Reconcile(context.Background(), &state)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	second, err := Reconcile(context.Background(), &state)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeat reconcile differs: %+v vs %+v", first, second)
	}

	done := fakeState{files: ids(1, 2, 3), pages: ids(1, 2, 3), inDB: ids(1, 2, 3), extracted: ids(1, 2, 3), pending: ids()}
	ws, err := Reconcile(context.Background(), &done)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !ws.Empty() {
		t.Errorf("work set not empty after full processing: %+v", ws)
	}
}
