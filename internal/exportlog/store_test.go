package exportlog

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func TestRecordAndLast(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ranAt := time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC)
	if err := store.Record(ctx, Run{RanAt: ranAt, Rows: 7, Bytes: 1024, DurationMS: 42}); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := store.Last(ctx)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if !got.RanAt.Equal(ranAt) || got.Rows != 7 || got.Bytes != 1024 || got.DurationMS != 42 {
		t.Fatalf("unexpected run: %+v", got)
	}
}

func TestLastWithoutRecord(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Last(context.Background()); !errors.Is(err, ErrNoRun) {
		t.Fatalf("expected ErrNoRun, got %v", err)
	}
}

func TestRecordOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, Run{Rows: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Record(ctx, Run{Rows: 2}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := store.Last(ctx)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if got.Rows != 2 {
		t.Fatalf("rows = %d, want 2", got.Rows)
	}
}

func TestNilStoreIsNoop(t *testing.T) {
	var store *Store
	if err := store.Record(context.Background(), Run{}); err != nil {
		t.Fatalf("nil record: %v", err)
	}
	if _, err := store.Last(context.Background()); !errors.Is(err, ErrNoRun) {
		t.Fatalf("expected ErrNoRun from nil store, got %v", err)
	}
}
