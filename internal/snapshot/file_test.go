package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guest_session.json")
	return NewFileStore(path), path
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	want := &Snapshot{
		SessionID:      "sess-1",
		ExpiresAt:      time.Date(2026, 3, 1, 12, 20, 0, 0, time.UTC),
		ExtensionCount: 1,
		MaxExtensions:  2,
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SessionID != want.SessionID || !got.ExpiresAt.Equal(want.ExpiresAt) ||
		got.ExtensionCount != want.ExtensionCount || got.MaxExtensions != want.MaxExtensions {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestFileStoreMissing(t *testing.T) {
	store, _ := testStore(t)
	if _, err := store.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, want ErrNoSnapshot", err)
	}
}

func TestFileStoreMalformedTreatedAsAbsentAndRemoved(t *testing.T) {
	store, path := testStore(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, want ErrNoSnapshot", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("malformed snapshot file not removed")
	}
}

func TestFileStoreEmptySessionIDTreatedAsAbsent(t *testing.T) {
	store, path := testStore(t)
	if err := os.WriteFile(path, []byte(`{"expiresAt":"2026-03-01T12:20:00Z"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, want ErrNoSnapshot", err)
	}
}

func TestFileStoreClearIdempotent(t *testing.T) {
	store, _ := testStore(t)
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear on empty store: %v", err)
	}

	if err := store.Save(&Snapshot{SessionID: "sess-1", ExpiresAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatal("snapshot survived Clear")
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestMemStore(t *testing.T) {
	store := NewMemStore()
	if _, err := store.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, want ErrNoSnapshot", err)
	}

	snap := &Snapshot{SessionID: "sess-1", ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Save(snap); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got.SessionID = "mutated"
	again, _ := store.Load()
	if again.SessionID != "sess-1" {
		t.Fatal("Load returned aliased snapshot")
	}

	if err := store.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatal("snapshot survived Clear")
	}
}
