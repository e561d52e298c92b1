package itemstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/voicedeck/voicedeck/speech"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAddAssignsSequentialPositions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Add(ctx, "first", "session-1")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	second, err := store.Add(ctx, "second", "session-2")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if first.Position != 0 || second.Position != 1 {
		t.Errorf("positions = %d, %d, want 0, 1", first.Position, second.Position)
	}
	if first.UUID == "" || first.UUID == second.UUID {
		t.Errorf("uuids = %q, %q, want distinct non-empty", first.UUID, second.UUID)
	}
	if first.Status != speech.StatusPending {
		t.Errorf("status = %v, want pending", first.Status)
	}
	if first.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestAddAppendsAfterPendingBlock(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, _ := store.Add(ctx, "a", "s")
	b, _ := store.Add(ctx, "b", "s")
	if err := store.UpdateStatus(ctx, a.UUID, speech.StatusCompleted, 1000, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	c, err := store.Add(ctx, "c", "s")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if c.Position != b.Position+1 {
		t.Errorf("new position = %d, want %d", c.Position, b.Position+1)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, _ := store.Add(ctx, "a", "s")
	store.Add(ctx, "b", "s")
	if err := store.UpdateStatus(ctx, a.UUID, speech.StatusPlaying, 0, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List() returned %d items, want 2", len(all))
	}

	playing, err := store.List(ctx, speech.StatusPlaying)
	if err != nil {
		t.Fatalf("List(playing) error = %v", err)
	}
	if len(playing) != 1 || playing[0].UUID != a.UUID {
		t.Errorf("List(playing) = %v, want only %s", playing, a.UUID)
	}

	stuck, err := store.List(ctx, speech.StatusPlaying, speech.StatusPaused)
	if err != nil {
		t.Fatalf("List(playing, paused) error = %v", err)
	}
	if len(stuck) != 1 {
		t.Errorf("List(playing, paused) returned %d items, want 1", len(stuck))
	}
}

func TestUpdateStatusStampsTimes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	item, _ := store.Add(ctx, "text", "s")

	if err := store.UpdateStatus(ctx, item.UUID, speech.StatusPlaying, 0, ""); err != nil {
		t.Fatalf("UpdateStatus(playing) error = %v", err)
	}
	got := mustGet(t, store, item.UUID)
	if got.StartedAt == nil {
		t.Error("StartedAt not stamped on playing")
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt stamped too early")
	}

	if err := store.UpdateStatus(ctx, item.UUID, speech.StatusCompleted, 2500, ""); err != nil {
		t.Fatalf("UpdateStatus(completed) error = %v", err)
	}
	got = mustGet(t, store, item.UUID)
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped on completed")
	}
	if got.DurationMs != 2500 {
		t.Errorf("DurationMs = %d, want 2500", got.DurationMs)
	}

	if err := store.UpdateStatus(ctx, item.UUID, speech.StatusPending, 0, ""); err != nil {
		t.Fatalf("UpdateStatus(pending) error = %v", err)
	}
	got = mustGet(t, store, item.UUID)
	if got.StartedAt != nil || got.CompletedAt != nil || got.DurationMs != 0 {
		t.Errorf("pending reset kept stale fields: %+v", got)
	}
}

func TestUpdateStatusRecordsFailure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	item, _ := store.Add(ctx, "text", "s")

	if err := store.UpdateStatus(ctx, item.UUID, speech.StatusFailed, 0, "Synthesis returned no audio"); err != nil {
		t.Fatalf("UpdateStatus(failed) error = %v", err)
	}
	got := mustGet(t, store, item.UUID)
	if got.Status != speech.StatusFailed || got.ErrorMessage != "Synthesis returned no audio" {
		t.Errorf("item = %+v, want failed with cause", got)
	}
}

func TestUpdateStatusUnknownItem(t *testing.T) {
	store := openTestStore(t)
	err := store.UpdateStatus(context.Background(), "missing", speech.StatusCompleted, 0, "")
	if !errors.Is(err, speech.ErrItemNotFound) {
		t.Errorf("error = %v, want ErrItemNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	item, _ := store.Add(ctx, "text", "s")

	if err := store.Remove(ctx, item.UUID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	items, _ := store.List(ctx)
	if len(items) != 0 {
		t.Errorf("List() after remove = %v, want empty", items)
	}

	if err := store.Remove(ctx, item.UUID); !errors.Is(err, speech.ErrItemNotFound) {
		t.Errorf("second Remove() error = %v, want ErrItemNotFound", err)
	}
}

func TestReorderShiftsNeighbors(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, _ := store.Add(ctx, "a", "s")
	b, _ := store.Add(ctx, "b", "s")
	c, _ := store.Add(ctx, "c", "s")

	// Move the last item to the front.
	if err := store.Reorder(ctx, c.UUID, 0); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}

	items, _ := store.List(ctx)
	wantOrder := []string{c.UUID, a.UUID, b.UUID}
	for i, want := range wantOrder {
		if items[i].UUID != want {
			t.Fatalf("order = %v, want %v", uuids(items), wantOrder)
		}
	}

	// And the first item to the back.
	if err := store.Reorder(ctx, c.UUID, 2); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	items, _ = store.List(ctx)
	wantOrder = []string{a.UUID, b.UUID, c.UUID}
	for i, want := range wantOrder {
		if items[i].UUID != want {
			t.Fatalf("order = %v, want %v", uuids(items), wantOrder)
		}
	}
}

func TestReorderUnknownItem(t *testing.T) {
	store := openTestStore(t)
	err := store.Reorder(context.Background(), "missing", 0)
	if !errors.Is(err, speech.ErrItemNotFound) {
		t.Errorf("error = %v, want ErrItemNotFound", err)
	}
}

func TestClearCompleted(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, _ := store.Add(ctx, "a", "s")
	b, _ := store.Add(ctx, "b", "s")
	store.Add(ctx, "c", "s")
	store.UpdateStatus(ctx, a.UUID, speech.StatusCompleted, 0, "")
	store.UpdateStatus(ctx, b.UUID, speech.StatusCompleted, 0, "")

	removed, err := store.ClearCompleted(ctx, 0)
	if err != nil {
		t.Fatalf("ClearCompleted() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	items, _ := store.List(ctx)
	if len(items) != 1 || items[0].Status != speech.StatusPending {
		t.Errorf("List() = %v, want only the pending item", uuids(items))
	}
}

func TestClearCompletedRespectsAge(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, _ := store.Add(ctx, "a", "s")
	store.UpdateStatus(ctx, a.UUID, speech.StatusCompleted, 0, "")

	// Completed just now, so a 7-day cutoff keeps it.
	removed, err := store.ClearCompleted(ctx, 7)
	if err != nil {
		t.Fatalf("ClearCompleted() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0 for recent items", removed)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	item, _ := first.Add(context.Background(), "persisted", "s")
	_ = first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer second.Close()

	items, err := second.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 1 || items[0].UUID != item.UUID {
		t.Errorf("List() after reopen = %v, want the persisted item", uuids(items))
	}
}

func mustGet(t *testing.T, store *Store, uuid string) speech.QueueItem {
	t.Helper()
	items, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, item := range items {
		if item.UUID == uuid {
			return item
		}
	}
	t.Fatalf("item %s not found", uuid)
	return speech.QueueItem{}
}

func uuids(items []speech.QueueItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.UUID
	}
	return out
}
