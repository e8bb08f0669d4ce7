package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) < 2 {
		t.Fatalf("applied %v, want at least two migrations", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_history_created", "idx_history_model"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestRecordAndGetHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 3, 1, 12, 30, 0, 123456789, time.FixedZone("CET", 3600))
	saved, err := s.RecordHistory(ctx, Entry{
		CreatedAt:  now,
		Action:     ActionPull,
		Model:      "llama3:latest",
		Detail:     "success",
		DurationMS: 4200,
	})
	if err != nil {
		t.Fatalf("RecordHistory: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("RecordHistory did not assign an ID")
	}
	if saved.Status != StatusOK {
		t.Errorf("Status = %q, want default %q", saved.Status, StatusOK)
	}

	got, err := s.GetHistory(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if !got.CreatedAt.Equal(now.Truncate(time.Millisecond)) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now.Truncate(time.Millisecond))
	}
	if got.Action != ActionPull || got.Model != "llama3:latest" || got.Detail != "success" || got.DurationMS != 4200 {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestRecordHistory_RequiresActionAndModel(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.RecordHistory(context.Background(), Entry{Action: ActionDelete}); err == nil {
		t.Error("expected error for entry without model")
	}
}

func TestGetHistoryNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetHistory(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestListHistory saves 10 entries and verifies limit and descending order.
func TestListHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for j := 0; j < 10; j++ {
		action := ActionChat
		if j%2 == 0 {
			action = ActionPull
		}
		_, err := s.RecordHistory(ctx, Entry{
			ID:        fmt.Sprintf("h-%02d", j),
			CreatedAt: base.Add(time.Duration(j) * 500 * time.Millisecond),
			Action:    action,
			Model:     fmt.Sprintf("model-%d", j%3),
		})
		if err != nil {
			t.Fatalf("RecordHistory %d: %v", j, err)
		}
	}

	got, err := s.ListHistory(ctx, HistoryFilter{Limit: 5})
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d entries, want 5", len(got))
	}
	for k := 1; k < len(got); k++ {
		if got[k].CreatedAt.After(got[k-1].CreatedAt) {
			t.Errorf("not in descending order: [%d]=%v > [%d]=%v", k, got[k].CreatedAt, k-1, got[k-1].CreatedAt)
		}
	}
	if got[0].ID != "h-09" {
		t.Errorf("first result ID = %q, want %q", got[0].ID, "h-09")
	}

	pulls, err := s.ListHistory(ctx, HistoryFilter{Action: ActionPull, Model: "model-0"})
	if err != nil {
		t.Fatalf("ListHistory filtered: %v", err)
	}
	// j in {0, 6} are pulls of model-0.
	if len(pulls) != 2 {
		t.Fatalf("filtered got %d entries, want 2: %+v", len(pulls), pulls)
	}
	if pulls[0].ID != "h-06" || pulls[1].ID != "h-00" {
		t.Errorf("filtered IDs = %s, %s", pulls[0].ID, pulls[1].ID)
	}
}

func TestListHistory_EmptyIsNonNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.ListHistory(context.Background(), HistoryFilter{})
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if got == nil {
		t.Error("ListHistory returned nil slice, want empty")
	}
}

func TestPruneHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for j := 0; j < 4; j++ {
		if _, err := s.RecordHistory(ctx, Entry{
			CreatedAt: base.AddDate(0, 0, j),
			Action:    ActionDelete,
			Model:     "m",
		}); err != nil {
			t.Fatalf("RecordHistory: %v", err)
		}
	}

	n, err := s.PruneHistory(ctx, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("PruneHistory: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}

	left, _ := s.ListHistory(ctx, HistoryFilter{})
	if len(left) != 2 {
		t.Errorf("left %d entries, want 2", len(left))
	}
}
