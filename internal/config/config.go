package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the PitchSync client runtime.
type Config struct {
	Speech     SpeechConfig
	Audio      AudioConfig
	Dictation  DictationConfig
	Transcript TranscriptConfig
	Clock      ClockConfig
	Snapshot   SnapshotConfig
	Metrics    MetricsConfig
}

type SpeechConfig struct {
	APIKey          string
	GatewayURL      string
	Model           string
	Language        string
	InterimResults  bool
	MaxAlternatives int
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type DictationConfig struct {
	RestartDelay      time.Duration
	MeterDelay        time.Duration
	NoSpeechHintAfter int
}

type TranscriptConfig struct {
	VocabularyPath string
	SentencePause  time.Duration
	NormalizeTyped bool
	WatchVocab     bool
}

type ClockConfig struct {
	TickInterval time.Duration
}

type SnapshotConfig struct {
	// Path of the SQLite snapshot database. Empty means in-memory only.
	Path string
}

type MetricsConfig struct {
	// Addr enables a localhost Prometheus endpoint when non-empty.
	Addr string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	vocabPath := strings.TrimSpace(os.Getenv("PITCHSYNC_VOCAB_FILE"))
	if vocabPath == "" {
		vocabPath = firstExisting(
			filepath.Join(home, ".config", "pitchsync", "vocabulary.yaml"),
			filepath.Join(home, ".config", "pitchsync", "vocabulary.yml"),
		)
	}

	snapshotPath := strings.TrimSpace(os.Getenv("PITCHSYNC_SNAPSHOT_DB"))
	if snapshotPath == "" && !envDisabled("PITCHSYNC_SNAPSHOT_PERSIST") {
		snapshotPath = filepath.Join(home, ".local", "share", "pitchsync", "session.db")
	}

	cfg := Config{
		Speech: SpeechConfig{
			APIKey:          strings.TrimSpace(os.Getenv("PITCHSYNC_SPEECH_API_KEY")),
			GatewayURL:      envOrDefault("PITCHSYNC_SPEECH_GATEWAY_URL", "https://speech.egpitch.in/v1"),
			Model:           envOrDefault("PITCHSYNC_SPEECH_MODEL", "realtime-general"),
			Language:        envOrDefault("PITCHSYNC_LANGUAGE", "en-IN"),
			InterimResults:  envOrDefaultBool("PITCHSYNC_INTERIM_RESULTS", true),
			MaxAlternatives: envOrDefaultInt("PITCHSYNC_MAX_ALTERNATIVES", 1),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("PITCHSYNC_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("PITCHSYNC_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("PITCHSYNC_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("PITCHSYNC_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("PITCHSYNC_CHANNELS", 1),
		},
		Dictation: DictationConfig{
			RestartDelay:      envMillis("PITCHSYNC_RESTART_DELAY_MS", 100),
			MeterDelay:        envMillis("PITCHSYNC_METER_DELAY_MS", 600),
			NoSpeechHintAfter: envOrDefaultInt("PITCHSYNC_NO_SPEECH_HINT_AFTER", 3),
		},
		Transcript: TranscriptConfig{
			VocabularyPath: vocabPath,
			SentencePause:  envMillis("PITCHSYNC_SENTENCE_PAUSE_MS", 1500),
			NormalizeTyped: envOrDefaultBool("PITCHSYNC_NORMALIZE_TYPED", false),
			WatchVocab:     envOrDefaultBool("PITCHSYNC_WATCH_VOCAB", true),
		},
		Clock: ClockConfig{
			TickInterval: envMillis("PITCHSYNC_CLOCK_TICK_MS", 1000),
		},
		Snapshot: SnapshotConfig{Path: snapshotPath},
		Metrics:  MetricsConfig{Addr: strings.TrimSpace(os.Getenv("PITCHSYNC_METRICS_ADDR"))},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Speech.MaxAlternatives <= 0 {
		cfg.Speech.MaxAlternatives = 1
	}
	if cfg.Dictation.RestartDelay <= 0 {
		cfg.Dictation.RestartDelay = 100 * time.Millisecond
	}
	if cfg.Dictation.NoSpeechHintAfter <= 0 {
		cfg.Dictation.NoSpeechHintAfter = 3
	}
	if cfg.Transcript.SentencePause <= 0 {
		cfg.Transcript.SentencePause = 1500 * time.Millisecond
	}
	if cfg.Clock.TickInterval <= 0 {
		cfg.Clock.TickInterval = time.Second
	}

	return cfg, nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envDisabled(key string) bool {
	return !envOrDefaultBool(key, true)
}

func envMillis(key string, fallbackMs int) time.Duration {
	ms := envOrDefaultInt(key, fallbackMs)
	if ms < 0 {
		ms = fallbackMs
	}
	return time.Duration(ms) * time.Millisecond
}
