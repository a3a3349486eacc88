package domain

import "time"

// NegotiationStatus is the authoritative phase of a voice-booking negotiation.
type NegotiationStatus string

const (
	StatusProcessing           NegotiationStatus = "PROCESSING"
	StatusPartial              NegotiationStatus = "PARTIAL"
	StatusAwaitingConfirmation NegotiationStatus = "AWAITING_CONFIRMATION"
	StatusCompleted            NegotiationStatus = "COMPLETED"
	StatusFailed               NegotiationStatus = "FAILED"
	StatusCancelled            NegotiationStatus = "CANCELLED"
)

// Rank orders statuses along the negotiation state machine. Updates are merged
// max-by-rank within one turn, which makes the merge idempotent under
// reordering and duplication of HTTP responses and realtime events.
func (s NegotiationStatus) Rank() int {
	switch s {
	case StatusProcessing:
		return 1
	case StatusPartial:
		return 2
	case StatusAwaitingConfirmation:
		return 3
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 4
	default:
		return 0
	}
}

// Terminal reports whether no further updates may mutate the negotiation.
func (s NegotiationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// FieldName identifies a booking field the backend still needs.
type FieldName string

// PreviewService is one line item of a booking preview.
type PreviewService struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// BookingPreview summarizes the draft before confirmation.
type BookingPreview struct {
	Services    []PreviewService `json:"services"`
	Address     string           `json:"address"`
	ScheduledAt string           `json:"scheduledAt"`
	Total       float64          `json:"total"`
	Currency    string           `json:"currency"`
}

// BookingDetails is the confirmed booking record fetched for display only.
type BookingDetails struct {
	ID          string           `json:"id"`
	Status      string           `json:"status"`
	Services    []PreviewService `json:"services"`
	Address     string           `json:"address"`
	ScheduledAt string           `json:"scheduledAt"`
	Total       float64          `json:"total"`
}

// SpeechSegment is narrated assistant output: text plus optional synthesized audio.
type SpeechSegment struct {
	Text     string `json:"text"`
	AudioURL string `json:"audioUrl"`
}

// Speech carries the assistant's spoken reply for one turn. Message takes
// precedence over Clarification when both are present.
type Speech struct {
	Message       *SpeechSegment `json:"message,omitempty"`
	Clarification *SpeechSegment `json:"clarification,omitempty"`
}

// NegotiationUpdate is the flattened contract every transport response and
// realtime event is normalized into before it reaches the session controller.
type NegotiationUpdate struct {
	RequestID            string            `json:"requestId"`
	Status               NegotiationStatus `json:"status"`
	IsFinal              bool              `json:"isFinal"`
	Transcript           string            `json:"transcript,omitempty"`
	MissingFields        []FieldName       `json:"missingFields,omitempty"`
	Preview              *BookingPreview   `json:"preview,omitempty"`
	BookingID            string            `json:"bookingId,omitempty"`
	Speech               Speech            `json:"speech"`
	Message              string            `json:"message,omitempty"`
	ClarificationMessage string            `json:"clarificationMessage,omitempty"`
}

// RealtimeEventKind discriminates out-of-band negotiation events.
type RealtimeEventKind string

const (
	EventReceived             RealtimeEventKind = "RECEIVED"
	EventTranscribing         RealtimeEventKind = "TRANSCRIBING"
	EventPartial              RealtimeEventKind = "PARTIAL"
	EventAwaitingConfirmation RealtimeEventKind = "AWAITING_CONFIRMATION"
	EventCompleted            RealtimeEventKind = "COMPLETED"
	EventFailed               RealtimeEventKind = "FAILED"
	EventCancelled            RealtimeEventKind = "CANCELLED"
)

// Status maps an event kind onto the negotiation state machine. RECEIVED and
// TRANSCRIBING are progress markers inside the PROCESSING phase.
func (k RealtimeEventKind) Status() NegotiationStatus {
	switch k {
	case EventReceived, EventTranscribing:
		return StatusProcessing
	case EventPartial:
		return StatusPartial
	case EventAwaitingConfirmation:
		return StatusAwaitingConfirmation
	case EventCompleted:
		return StatusCompleted
	case EventFailed:
		return StatusFailed
	case EventCancelled:
		return StatusCancelled
	default:
		return ""
	}
}

// RealtimeEvent is one message delivered on a requestId-scoped topic.
type RealtimeEvent struct {
	Kind   RealtimeEventKind `json:"event"`
	Update NegotiationUpdate `json:"update"`
}

// Role attributes an utterance in the visible transcript.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Utterance is one turn of the visible transcript. Append-only; only the
// IsPlaying flag is ever toggled after append, on at most one assistant turn.
type Utterance struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	AudioURL  string    `json:"audioUrl,omitempty"`
	IsPlaying bool      `json:"isPlaying"`
}

// StopReason distinguishes how a capture session ended.
type StopReason string

const (
	StopReasonStopped    StopReason = "stopped"
	StopReasonTrackEnded StopReason = "track-ended"
)

// Clip is the assembled audio payload of one finished capture session, handed
// to the controller by value.
type Clip struct {
	Data     []byte
	Duration time.Duration
	Reason   StopReason
}

// Empty reports whether the capture produced no usable audio.
func (c Clip) Empty() bool { return len(c.Data) == 0 }

// ErrorCode identifies user-surfaced failures.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodeDeviceUnavailable ErrorCode = "device_unavailable"
	ErrorCodeEmptyCapture      ErrorCode = "empty_capture"
	ErrorCodeTrackEnded        ErrorCode = "track_ended"
	ErrorCodeCapture           ErrorCode = "capture"
	ErrorCodeNoNegotiation     ErrorCode = "no_negotiation"
	ErrorCodeRejected          ErrorCode = "rejected"
	ErrorCodeExpiredRequest    ErrorCode = "expired_request"
	ErrorCodeMalformedResponse ErrorCode = "malformed_response"
	ErrorCodeNetwork           ErrorCode = "network"
	ErrorCodePlayback          ErrorCode = "playback"
	ErrorCodeDisabled          ErrorCode = "disabled"
)

// SessionPhase is the controller-level lifecycle visible to the UI, alongside
// the negotiation status.
type SessionPhase string

const (
	PhaseIdle       SessionPhase = "idle"
	PhaseRecording  SessionPhase = "recording"
	PhaseStopping   SessionPhase = "stopping"
	PhaseSubmitting SessionPhase = "submitting"
)

// Snapshot is the merged read state the presenter renders from.
type Snapshot struct {
	Phase               SessionPhase      `json:"phase"`
	Enabled             bool              `json:"enabled"`
	RequestID           string            `json:"requestId,omitempty"`
	Status              NegotiationStatus `json:"status,omitempty"`
	MissingFields       []FieldName       `json:"missingFields,omitempty"`
	Preview             *BookingPreview   `json:"preview,omitempty"`
	ConfirmedBookingID  string            `json:"confirmedBookingId,omitempty"`
	ConfirmationVisible bool              `json:"confirmationVisible"`
	Utterances          []Utterance       `json:"utterances"`
}
