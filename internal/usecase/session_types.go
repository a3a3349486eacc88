package usecase

import (
	"voicebook/internal/domain"
)

// updateSource tags which side of the dual-source merge produced an update.
type updateSource string

const (
	sourceHTTP     updateSource = "http"
	sourceRealtime updateSource = "realtime"
)

// negotiation is the single source of truth for one in-flight voice-booking
// transaction. All mutation goes through the controller's reducer.
type negotiation struct {
	requestID     string
	status        domain.NegotiationStatus
	missingFields []domain.FieldName
	preview       *domain.BookingPreview
	bookingID     string

	// Dedup anchors: realtime events are not deduplicated by the channel, so
	// the reducer must not append the same turn text twice.
	lastUserTranscript string
	lastAssistantText  string

	detailsFetched bool
}

// resetTurn marks the start of a new outbound turn. Status drops back to
// PROCESSING so a backend that legitimately regresses (the user changes info
// after AWAITING_CONFIRMATION) is representable, while stale events inside
// one turn still lose to later statuses.
func (n *negotiation) resetTurn() {
	n.status = domain.StatusProcessing
	n.lastAssistantText = ""
}

// pendingSend correlates an asynchronous recorder stop with the blob it must
// produce. The recorder flushes after a delay, so the token is recorded at
// the moment the user asks to stop and cleared exactly once: when the blob is
// observed non-empty and transmitted, or when transmission is abandoned.
type pendingSend struct {
	token string
}

// playbackHandle tracks the at-most-one currently playing assistant utterance.
type playbackHandle struct {
	utteranceID string
	cancel      func()
}
