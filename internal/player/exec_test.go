package player

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestPlayer(t *testing.T, script string) *ExecPlayer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewExecPlayer(writeScript(t, script), log)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "player.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script failed: %v", err)
	}
	return path
}

func TestPlayRejectsUnparsableURL(t *testing.T) {
	t.Parallel()

	player := newTestPlayer(t, "exit 0")
	err := player.Play(context.Background(), "not a url")
	if !errors.Is(err, ErrBadAudioURL) {
		t.Fatalf("expected ErrBadAudioURL, got %v", err)
	}

	err = player.Play(context.Background(), "/relative/path.mp3")
	if !errors.Is(err, ErrBadAudioURL) {
		t.Fatalf("expected ErrBadAudioURL for schemeless url, got %v", err)
	}
}

func TestPlayFinishesCleanly(t *testing.T) {
	t.Parallel()

	player := newTestPlayer(t, "exit 0")
	if err := player.Play(context.Background(), "https://cdn.example.com/say.mp3"); err != nil {
		t.Fatalf("play failed: %v", err)
	}
}

func TestPlaySurfacesStderrDetail(t *testing.T) {
	t.Parallel()

	player := newTestPlayer(t, `echo "decoder choked" >&2; exit 1`)
	err := player.Play(context.Background(), "https://cdn.example.com/say.mp3")
	if err == nil || !strings.Contains(err.Error(), "decoder choked") {
		t.Fatalf("expected stderr detail, got %v", err)
	}
}

func TestPlayHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	player := newTestPlayer(t, "sleep 5")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- player.Play(ctx, "https://cdn.example.com/say.mp3") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("playback did not stop on cancellation")
	}
}
