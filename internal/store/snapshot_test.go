package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStorePutGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")
	s, err := Open(ctx, path, testLogger())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Get(ctx, "phase-1"); err != nil || ok {
		t.Fatalf("expected missing snapshot, got ok=%v err=%v", ok, err)
	}

	if err := s.Put(ctx, "phase-1", []byte(`{"baseSeconds":30}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := s.Put(ctx, "phase-1", []byte(`{"baseSeconds":42}`)); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	value, ok, err := s.Get(ctx, "phase-1")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if string(value) != `{"baseSeconds":42}` {
		t.Fatalf("unexpected value: %s", value)
	}

	if err := s.Delete(ctx, "phase-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "phase-1"); ok {
		t.Fatalf("expected snapshot gone after delete")
	}
	if err := s.Delete(ctx, "phase-1"); err != nil {
		t.Fatalf("delete of missing key failed: %v", err)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := Open(ctx, path, testLogger())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.Put(ctx, "phase-2", []byte("payload")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open(ctx, path, testLogger())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.Get(ctx, "phase-2")
	if err != nil || !ok {
		t.Fatalf("get after reopen failed: ok=%v err=%v", ok, err)
	}
	if string(value) != "payload" {
		t.Fatalf("unexpected value after reopen: %s", value)
	}
}

func TestStoreEphemeralMode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := Open(ctx, "", testLogger())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer s.Close()

	if err := s.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	value, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(value) != "v" {
		t.Fatalf("get failed: %q ok=%v err=%v", value, ok, err)
	}

	// The returned slice is a copy; callers cannot mutate the stored value.
	value[0] = 'x'
	again, _, _ := s.Get(ctx, "k")
	if string(again) != "v" {
		t.Fatalf("stored value mutated: %q", again)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key gone")
	}
}

func TestStoreRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	s, err := Open(context.Background(), "", testLogger())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer s.Close()

	if err := s.Put(context.Background(), "", []byte("v")); err == nil {
		t.Fatalf("expected empty key error")
	}
}
