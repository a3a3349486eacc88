package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"VOICEBOOK_API_BASE", "VOICEBOOK_ACCESS_TOKEN", "VOICEBOOK_HTTP_TIMEOUT_MS",
		"VOICEBOOK_WS_URL", "VOICEBOOK_WS_RECONNECT_MS",
		"VOICEBOOK_FFMPEG_COMMAND", "VOICEBOOK_AUDIO_INPUT_FORMAT", "VOICEBOOK_AUDIO_INPUT_DEVICE",
		"VOICEBOOK_SAMPLE_RATE", "VOICEBOOK_CHANNELS", "VOICEBOOK_MIN_CAPTURE_MS",
		"VOICEBOOK_PLAYER_COMMAND",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:8080/api/v1" {
		t.Fatalf("unexpected api base: %q", cfg.API.BaseURL)
	}
	if cfg.API.RequestTimeout != 2*time.Minute {
		t.Fatalf("unexpected http timeout: %s", cfg.API.RequestTimeout)
	}
	if cfg.Realtime.ReconnectWait != 3*time.Second {
		t.Fatalf("unexpected reconnect wait: %s", cfg.Realtime.ReconnectWait)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Audio.MinCapture != 2*time.Second {
		t.Fatalf("unexpected capture floor: %s", cfg.Audio.MinCapture)
	}
	if cfg.Player.Command != "ffplay" {
		t.Fatalf("unexpected player command: %q", cfg.Player.Command)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	t.Setenv("VOICEBOOK_API_BASE", "https://api.example.com/v2")
	t.Setenv("VOICEBOOK_ACCESS_TOKEN", "tok-42")
	t.Setenv("VOICEBOOK_HTTP_TIMEOUT_MS", "5000")
	t.Setenv("VOICEBOOK_WS_URL", "wss://api.example.com/ws")
	t.Setenv("VOICEBOOK_WS_RECONNECT_MS", "250")
	t.Setenv("VOICEBOOK_SAMPLE_RATE", "8000")
	t.Setenv("VOICEBOOK_MIN_CAPTURE_MS", "1500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.API.BaseURL != "https://api.example.com/v2" {
		t.Fatalf("unexpected api base: %q", cfg.API.BaseURL)
	}
	if cfg.API.AccessToken != "tok-42" {
		t.Fatalf("unexpected token: %q", cfg.API.AccessToken)
	}
	if cfg.API.RequestTimeout != 5*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.API.RequestTimeout)
	}
	if cfg.Realtime.ReconnectWait != 250*time.Millisecond {
		t.Fatalf("unexpected reconnect wait: %s", cfg.Realtime.ReconnectWait)
	}
	if cfg.Audio.SampleRate != 8000 {
		t.Fatalf("unexpected sample rate: %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.MinCapture != 1500*time.Millisecond {
		t.Fatalf("unexpected capture floor: %s", cfg.Audio.MinCapture)
	}
}

func TestLoadIgnoresGarbageInts(t *testing.T) {
	t.Setenv("VOICEBOOK_SAMPLE_RATE", "not-a-number")
	t.Setenv("VOICEBOOK_HTTP_TIMEOUT_MS", "-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected fallback sample rate, got %d", cfg.Audio.SampleRate)
	}
	if cfg.API.RequestTimeout != 2*time.Minute {
		t.Fatalf("expected fallback timeout, got %s", cfg.API.RequestTimeout)
	}
}
