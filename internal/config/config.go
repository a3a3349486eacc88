package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration for the voice-booking client.
type Config struct {
	API      APIConfig
	Realtime RealtimeConfig
	Audio    AudioConfig
	Player   PlayerConfig
}

type APIConfig struct {
	BaseURL        string
	AccessToken    string
	RequestTimeout time.Duration
}

type RealtimeConfig struct {
	URL           string
	ReconnectWait time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	MinCapture      time.Duration
}

type PlayerConfig struct {
	Command string
}

// Load resolves configuration from a .env file (if present) and environment
// variables with sensible defaults. Speech processing is slow, so the HTTP
// timeout defaults to a generous two minutes.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		API: APIConfig{
			BaseURL:        envOrDefault("VOICEBOOK_API_BASE", "http://localhost:8080/api/v1"),
			AccessToken:    strings.TrimSpace(os.Getenv("VOICEBOOK_ACCESS_TOKEN")),
			RequestTimeout: time.Duration(envOrDefaultInt("VOICEBOOK_HTTP_TIMEOUT_MS", 120000)) * time.Millisecond,
		},
		Realtime: RealtimeConfig{
			URL:           envOrDefault("VOICEBOOK_WS_URL", "ws://localhost:8080/ws/voice-booking"),
			ReconnectWait: time.Duration(envOrDefaultInt("VOICEBOOK_WS_RECONNECT_MS", 3000)) * time.Millisecond,
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("VOICEBOOK_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("VOICEBOOK_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("VOICEBOOK_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("VOICEBOOK_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("VOICEBOOK_CHANNELS", 1),
			MinCapture:      time.Duration(envOrDefaultInt("VOICEBOOK_MIN_CAPTURE_MS", 2000)) * time.Millisecond,
		},
		Player: PlayerConfig{
			Command: envOrDefault("VOICEBOOK_PLAYER_COMMAND", "ffplay"),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.MinCapture < 0 {
		cfg.Audio.MinCapture = 0
	}
	if cfg.API.RequestTimeout <= 0 {
		cfg.API.RequestTimeout = 2 * time.Minute
	}
	if cfg.Realtime.ReconnectWait <= 0 {
		cfg.Realtime.ReconnectWait = 3 * time.Second
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
