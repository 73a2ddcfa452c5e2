package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration for the scribe client.
type Config struct {
	Assistant AssistantConfig
	Audio     AudioConfig
	Analysis  AnalysisConfig
	Demo      DemoConfig
	Metrics   MetricsConfig
}

type AssistantConfig struct {
	URL                  string
	Language             string
	SpeakerSensitivity   float64
	PreferCurrentSpeaker bool
	DialTimeout          time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	BlockSize       int
}

type AnalysisConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	QuietPeriod time.Duration
	MaxRetries  uint64
}

type DemoConfig struct {
	Pacing time.Duration
}

type MetricsConfig struct {
	Addr string
}

// Load resolves configuration from a .env file, environment variables and
// defaults, in that order of increasing precedence for the latter two.
func Load() (Config, error) {
	// Missing .env is fine; plain environment variables still apply.
	_ = godotenv.Load()

	cfg := Config{
		Assistant: AssistantConfig{
			URL:                  envOrDefault("SCRIBE_ASSISTANT_URL", "ws://localhost:8000"),
			Language:             envOrDefault("SCRIBE_LANGUAGE", "ar_en"),
			SpeakerSensitivity:   envOrDefaultFloat("SCRIBE_SPEAKER_SENSITIVITY", 0.7),
			PreferCurrentSpeaker: envOrDefaultBool("SCRIBE_PREFER_CURRENT_SPEAKER", true),
			DialTimeout:          envOrDefaultDuration("SCRIBE_DIAL_TIMEOUT", 10*time.Second),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("SCRIBE_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("SCRIBE_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("SCRIBE_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("SCRIBE_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("SCRIBE_CHANNELS", 1),
			BlockSize:       envOrDefaultInt("SCRIBE_AUDIO_BLOCK_SIZE", 4096),
		},
		Analysis: AnalysisConfig{
			APIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			BaseURL:     envOrDefault("OPENAI_API_BASE", "https://api.openai.com/v1"),
			Model:       envOrDefault("SCRIBE_ANALYSIS_MODEL", "gpt-4o"),
			QuietPeriod: envOrDefaultDuration("SCRIBE_ANALYSIS_QUIET_PERIOD", 1500*time.Millisecond),
			MaxRetries:  uint64(envOrDefaultInt("SCRIBE_ANALYSIS_MAX_RETRIES", 2)),
		},
		Demo: DemoConfig{
			Pacing: envOrDefaultDuration("SCRIBE_DEMO_PACING", 600*time.Millisecond),
		},
		Metrics: MetricsConfig{
			Addr: strings.TrimSpace(os.Getenv("SCRIBE_METRICS_ADDR")),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.BlockSize < 256 {
		cfg.Audio.BlockSize = 4096
	}
	if cfg.Assistant.SpeakerSensitivity < 0 || cfg.Assistant.SpeakerSensitivity > 1 {
		cfg.Assistant.SpeakerSensitivity = 0.7
	}
	if cfg.Analysis.QuietPeriod <= 0 {
		cfg.Analysis.QuietPeriod = 1500 * time.Millisecond
	}

	return cfg, nil
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

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
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

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
