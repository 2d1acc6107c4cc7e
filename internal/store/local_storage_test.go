package store

import (
	"context"
	"testing"

	"github.com/dukerupert/cvewatch/internal/database"
)

func setupLocalStorageTestDB(t *testing.T) *LocalStorage {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewLocalStorage(db)
}

func TestLocalStorageGetMissing(t *testing.T) {
	ls := setupLocalStorageTestDB(t)

	v, ok, err := ls.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Errorf("expected missing key, got %q", v)
	}
}

func TestLocalStorageSetAndGet(t *testing.T) {
	ls := setupLocalStorageTestDB(t)
	ctx := context.Background()

	if err := ls.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := ls.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	v, ok, err := ls.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || v != "v2" {
		t.Errorf("get = %q, %v; want %q, true", v, ok, "v2")
	}
}

func TestLocalStorageSetIfAbsentKeepsFirst(t *testing.T) {
	ls := setupLocalStorageTestDB(t)
	ctx := context.Background()

	first, err := ls.SetIfAbsent(ctx, "token", "a")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := ls.SetIfAbsent(ctx, "token", "b")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != "a" || second != "a" {
		t.Errorf("got %q then %q, want both %q", first, second, "a")
	}
}

func TestLocalStorageDeleteAndClear(t *testing.T) {
	ls := setupLocalStorageTestDB(t)
	ctx := context.Background()

	ls.Set(ctx, "a", "1")
	ls.Set(ctx, "b", "2")

	if err := ls.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := ls.Get(ctx, "a"); ok {
		t.Error("expected a deleted")
	}

	if err := ls.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := ls.Get(ctx, "b"); ok {
		t.Error("expected b cleared")
	}
}
