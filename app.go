package main

import (
	"context"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voicebook/internal/bootstrap"
	"voicebook/internal/config"
	"voicebook/internal/domain"
	"voicebook/internal/usecase"
)

const (
	eventState        = "voicebook:state"
	eventUtterance    = "voicebook:utterance"
	eventPlayback     = "voicebook:playback"
	eventConfirmation = "voicebook:confirmation"
	eventBooking      = "voicebook:booking"
	eventError        = "voicebook:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.Controller
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller

	go func() {
		if _, err := a.controller.RefreshEnabled(ctx); err != nil {
			a.SessionError(domain.ErrorCodeNetwork, err.Error())
		}
	}()
}

func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		a.controller.Close()
	}
}

// StartRecording acquires the microphone for the next utterance.
func (a *App) StartRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.StartRecording(a.ctx)
}

// StopAndSend finishes the recording and submits it as a negotiation turn.
func (a *App) StopAndSend() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.StopAndSend(a.ctx)
}

// SendText submits typed text into the live negotiation.
func (a *App) SendText(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SendText(a.ctx, text)
}

// ConfirmBooking finalizes the draft that is awaiting confirmation.
func (a *App) ConfirmBooking() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Confirm(a.ctx)
}

// CancelBooking abandons the current draft.
func (a *App) CancelBooking() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Cancel(a.ctx)
}

// ResetSession discards all session state, the escape hatch for a stuck UI.
func (a *App) ResetSession() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.controller.Reset()
	return nil
}

// RefreshEnabled re-probes the voice-booking feature flag.
func (a *App) RefreshEnabled() (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	return a.controller.RefreshEnabled(a.ctx)
}

// GetSnapshot returns the merged session state for rendering.
func (a *App) GetSnapshot() domain.Snapshot {
	if a.controller == nil {
		return domain.Snapshot{Phase: domain.PhaseIdle}
	}
	return a.controller.Snapshot()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"apiBase":          a.cfg.API.BaseURL,
		"realtimeUrl":      a.cfg.Realtime.URL,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"playerCommand":    a.cfg.Player.Command,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// StateChanged emits the merged session snapshot to the frontend.
func (a *App) StateChanged(snapshot domain.Snapshot) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventState, snapshot)
}

// UtteranceAdded emits one new transcript entry.
func (a *App) UtteranceAdded(utterance domain.Utterance) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventUtterance, utterance)
}

// PlaybackChanged emits speech playback start/stop for one utterance.
func (a *App) PlaybackChanged(utteranceID string, playing bool) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPlayback, map[string]any{
		"utteranceId": utteranceID,
		"playing":     playing,
	})
}

// ConfirmationReady emits the booking preview for the confirmation overlay.
func (a *App) ConfirmationReady(preview domain.BookingPreview) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventConfirmation, preview)
}

// BookingConfirmed emits the confirmed booking record.
func (a *App) BookingConfirmed(details domain.BookingDetails) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventBooking, details)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDeviceUnavailable:
		return "Microphone unavailable"
	case domain.ErrorCodeEmptyCapture:
		return "No audio was captured, please try again"
	case domain.ErrorCodeTrackEnded:
		return "Microphone disconnected during recording"
	case domain.ErrorCodeCapture:
		return "Recording failed"
	case domain.ErrorCodeNoNegotiation:
		return "Speak first to start a booking"
	case domain.ErrorCodeRejected:
		return "We could not understand the request"
	case domain.ErrorCodeExpiredRequest:
		return "Your booking draft expired, please restate your request"
	case domain.ErrorCodeMalformedResponse:
		return "The booking service returned an unexpected response"
	case domain.ErrorCodePlayback:
		return "Speech playback failed"
	case domain.ErrorCodeDisabled:
		return "Voice booking is not available"
	case domain.ErrorCodeNetwork:
		return "Network error"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
