package main

import (
	"errors"
	"testing"

	"voicebook/internal/domain"
)

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:           "Startup failed",
		domain.ErrorCodeDeviceUnavailable: "Microphone unavailable",
		domain.ErrorCodeEmptyCapture:      "No audio was captured, please try again",
		domain.ErrorCodeTrackEnded:        "Microphone disconnected during recording",
		domain.ErrorCodeCapture:           "Recording failed",
		domain.ErrorCodeNoNegotiation:     "Speak first to start a booking",
		domain.ErrorCodeRejected:          "We could not understand the request",
		domain.ErrorCodeExpiredRequest:    "Your booking draft expired, please restate your request",
		domain.ErrorCodeMalformedResponse: "The booking service returned an unexpected response",
		domain.ErrorCodePlayback:          "Speech playback failed",
		domain.ErrorCodeDisabled:          "Voice booking is not available",
		domain.ErrorCodeNetwork:           "Network error",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
}

func TestGetSnapshotWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	snapshot := app.GetSnapshot()
	if snapshot.Phase != domain.PhaseIdle || snapshot.Enabled {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestGetRuntimeInfoSurfacesBootError(t *testing.T) {
	t.Parallel()

	app := &App{bootErr: errors.New("boot")}
	info := app.GetRuntimeInfo()
	if info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %+v", info)
	}
}
