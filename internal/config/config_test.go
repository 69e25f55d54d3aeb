package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearPitchsyncEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Speech.Language != "en-IN" {
		t.Fatalf("unexpected language: %q", cfg.Speech.Language)
	}
	if cfg.Speech.GatewayURL != "https://speech.egpitch.in/v1" {
		t.Fatalf("unexpected gateway url: %q", cfg.Speech.GatewayURL)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Dictation.RestartDelay != 100*time.Millisecond {
		t.Fatalf("unexpected restart delay: %v", cfg.Dictation.RestartDelay)
	}
	if cfg.Dictation.MeterDelay != 600*time.Millisecond {
		t.Fatalf("unexpected meter delay: %v", cfg.Dictation.MeterDelay)
	}
	if cfg.Dictation.NoSpeechHintAfter != 3 {
		t.Fatalf("unexpected no-speech threshold: %d", cfg.Dictation.NoSpeechHintAfter)
	}
	if cfg.Transcript.SentencePause != 1500*time.Millisecond {
		t.Fatalf("unexpected sentence pause: %v", cfg.Transcript.SentencePause)
	}
	if cfg.Clock.TickInterval != time.Second {
		t.Fatalf("unexpected tick interval: %v", cfg.Clock.TickInterval)
	}
	if cfg.Snapshot.Path != filepath.Join(home, ".local", "share", "pitchsync", "session.db") {
		t.Fatalf("unexpected snapshot path: %q", cfg.Snapshot.Path)
	}
}

func TestLoadVocabularyFallbackOrder(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearPitchsyncEnv(t)

	yamlPath := filepath.Join(home, ".config", "pitchsync", "vocabulary.yaml")
	ymlPath := filepath.Join(home, ".config", "pitchsync", "vocabulary.yml")

	if err := os.MkdirAll(filepath.Dir(ymlPath), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(ymlPath, []byte("eg: EG\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Transcript.VocabularyPath != ymlPath {
		t.Fatalf("expected yml fallback, got %q", cfg.Transcript.VocabularyPath)
	}

	if err := os.WriteFile(yamlPath, []byte("eg: EG\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg2, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg2.Transcript.VocabularyPath != yamlPath {
		t.Fatalf("expected yaml preferred, got %q", cfg2.Transcript.VocabularyPath)
	}
}

func TestLoadOverridesAndClamps(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearPitchsyncEnv(t)

	t.Setenv("PITCHSYNC_LANGUAGE", "hi-IN")
	t.Setenv("PITCHSYNC_SAMPLE_RATE", "-5")
	t.Setenv("PITCHSYNC_RESTART_DELAY_MS", "250")
	t.Setenv("PITCHSYNC_SNAPSHOT_PERSIST", "off")
	t.Setenv("PITCHSYNC_NORMALIZE_TYPED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Speech.Language != "hi-IN" {
		t.Fatalf("unexpected language: %q", cfg.Speech.Language)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected sample rate clamp, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Dictation.RestartDelay != 250*time.Millisecond {
		t.Fatalf("unexpected restart delay: %v", cfg.Dictation.RestartDelay)
	}
	if cfg.Snapshot.Path != "" {
		t.Fatalf("expected ephemeral snapshot store, got %q", cfg.Snapshot.Path)
	}
	if !cfg.Transcript.NormalizeTyped {
		t.Fatalf("expected typed normalization enabled")
	}
}

func clearPitchsyncEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PITCHSYNC_SPEECH_API_KEY", "PITCHSYNC_SPEECH_GATEWAY_URL", "PITCHSYNC_SPEECH_MODEL",
		"PITCHSYNC_LANGUAGE", "PITCHSYNC_INTERIM_RESULTS", "PITCHSYNC_MAX_ALTERNATIVES",
		"PITCHSYNC_FFMPEG_COMMAND", "PITCHSYNC_AUDIO_INPUT_FORMAT", "PITCHSYNC_AUDIO_INPUT_DEVICE",
		"PITCHSYNC_SAMPLE_RATE", "PITCHSYNC_CHANNELS", "PITCHSYNC_RESTART_DELAY_MS",
		"PITCHSYNC_METER_DELAY_MS", "PITCHSYNC_NO_SPEECH_HINT_AFTER", "PITCHSYNC_VOCAB_FILE",
		"PITCHSYNC_SENTENCE_PAUSE_MS", "PITCHSYNC_NORMALIZE_TYPED", "PITCHSYNC_WATCH_VOCAB",
		"PITCHSYNC_CLOCK_TICK_MS", "PITCHSYNC_SNAPSHOT_DB", "PITCHSYNC_SNAPSHOT_PERSIST",
		"PITCHSYNC_METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}
