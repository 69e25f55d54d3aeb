package vocab

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyWholeWordCaseInsensitive(t *testing.T) {
	t.Parallel()

	corrector, err := New(map[string]string{"eg": "EG", "pitch sink": "PitchSync"})
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	cases := []struct {
		in   string
		want string
	}{
		{"eg is hiring", "EG is hiring"},
		{"we joined Eg last year", "we joined EG last year"},
		{"legally distinct", "legally distinct"},
		{"the pitch sink demo", "the PitchSync demo"},
		{"Pitch Sink works", "PitchSync works"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := corrector.Apply(tc.in); got != tc.want {
			t.Fatalf("Apply(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestApplyLongerPhrasesWin(t *testing.T) {
	t.Parallel()

	corrector, err := New(map[string]string{
		"sync":       "SYNC",
		"pitch sync": "PitchSync",
	})
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	if got := corrector.Apply("pitch sync demo"); got != "PitchSync demo" {
		t.Fatalf("expected multi-word phrase to win, got %q", got)
	}
}

func TestNewRejectsEmptyPhrase(t *testing.T) {
	t.Parallel()

	if _, err := New(map[string]string{"  ": "x"}); err == nil {
		t.Fatalf("expected error for empty phrase")
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "vocabulary.yaml")
	if err := os.WriteFile(path, []byte("demo day: Demo Day\nEG: EnterpriseGrid\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	corrector, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got := corrector.Apply("demo day prep"); got != "Demo Day prep" {
		t.Fatalf("expected file entry applied, got %q", got)
	}
	// File entries override the built-in table (keys are lowercased).
	if got := corrector.Apply("eg review"); got != "EnterpriseGrid review" {
		t.Fatalf("expected override applied, got %q", got)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	corrector, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := corrector.Apply("eg demo"); got != "EG demo" {
		t.Fatalf("expected default table, got %q", got)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vocabulary.yaml")
	if err := os.WriteFile(path, []byte(":\n  - broken"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "vocabulary.yaml")
	if err := os.WriteFile(path, []byte("eg: EG\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Corrector, 1)
	Watch(ctx, path, slog.New(slog.NewTextHandler(os.Stderr, nil)), func(c *Corrector) {
		select {
		case reloaded <- c:
		default:
		}
	})

	if err := os.WriteFile(path, []byte("eg: EnterpriseGrid\n"), 0o600); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	select {
	case corrector := <-reloaded:
		if got := corrector.Apply("eg"); got != "EnterpriseGrid" {
			t.Fatalf("expected reloaded table, got %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for reload")
	}
}
