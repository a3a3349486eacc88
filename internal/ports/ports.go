package ports

import (
	"context"

	"voicebook/internal/domain"
)

// CaptureSession is one live microphone recording. A session is single-use:
// once stopped or abandoned it cannot be restarted.
type CaptureSession interface {
	// Stop flushes buffered audio and resolves with the assembled clip. If the
	// minimum capture floor has not elapsed yet, Stop blocks until it has.
	Stop(ctx context.Context) (domain.Clip, error)
	// Abandon discards the capture and releases the hardware without
	// producing a clip.
	Abandon()
	// Done is closed once the session has fully released the device, whether
	// it stopped cleanly or the track ended on its own.
	Done() <-chan struct{}
}

// AudioCapture creates microphone capture sessions. At most one session may
// be active at a time; the previous one must be released first.
type AudioCapture interface {
	Start(ctx context.Context) (CaptureSession, error)
}

// BookingTransport is the typed client for the negotiation verbs. All calls
// normalize heterogeneous backend envelopes into domain.NegotiationUpdate.
type BookingTransport interface {
	Create(ctx context.Context, audio []byte, hints map[string]string) (domain.NegotiationUpdate, error)
	Continue(ctx context.Context, requestID string, audio []byte, additionalText string, explicitFields map[string]string) (domain.NegotiationUpdate, error)
	Confirm(ctx context.Context, requestID string) (domain.NegotiationUpdate, error)
	Cancel(ctx context.Context, requestID string) (domain.NegotiationUpdate, error)
	Enabled(ctx context.Context) (bool, error)
}

// RealtimeChannel delivers out-of-band negotiation events keyed by requestId.
type RealtimeChannel interface {
	// Subscribe registers a handler for the topic scoped to requestID, dialing
	// the connection first if needed. Events are dispatched in server-emission
	// order and are not deduplicated.
	Subscribe(ctx context.Context, requestID string, handler func(domain.RealtimeEvent)) error
	// Unsubscribe drops the topic and releases the handler reference. Other
	// subscriptions are unaffected.
	Unsubscribe(requestID string)
	// Disconnect tears down the connection and all subscriptions.
	Disconnect()
}

// TokenProvider supplies the bearer credential shared by HTTP and realtime.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// BookingDirectory fetches a confirmed booking for display.
type BookingDirectory interface {
	BookingByID(ctx context.Context, id string) (domain.BookingDetails, error)
}

// Speaker plays synthesized assistant speech. Play blocks until playback
// finishes or ctx is cancelled.
type Speaker interface {
	Play(ctx context.Context, audioURL string) error
}

// EventSink emits backend state and transcript events to the UI.
type EventSink interface {
	StateChanged(snapshot domain.Snapshot)
	UtteranceAdded(utterance domain.Utterance)
	PlaybackChanged(utteranceID string, playing bool)
	ConfirmationReady(preview domain.BookingPreview)
	BookingConfirmed(details domain.BookingDetails)
	SessionError(code domain.ErrorCode, detail string)
}
