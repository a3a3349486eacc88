package bootstrap

import (
	"testing"

	"voicebook/internal/domain"
)

func TestBuildSuccess(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VOICEBOOK_ACCESS_TOKEN", "test-token")

	services, err := Build(noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil {
		t.Fatalf("expected controller")
	}
	if services.Realtime == nil {
		t.Fatalf("expected realtime channel")
	}
	if services.Config.API.BaseURL == "" {
		t.Fatalf("expected resolved config")
	}
}

type noopEventSink struct{}

func (noopEventSink) StateChanged(_ domain.Snapshot)            {}
func (noopEventSink) UtteranceAdded(_ domain.Utterance)         {}
func (noopEventSink) PlaybackChanged(_ string, _ bool)          {}
func (noopEventSink) ConfirmationReady(_ domain.BookingPreview) {}
func (noopEventSink) BookingConfirmed(_ domain.BookingDetails)  {}
func (noopEventSink) SessionError(_ domain.ErrorCode, _ string) {}
