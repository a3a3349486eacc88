package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voicebook/internal/audio"
	"voicebook/internal/domain"
	"voicebook/internal/ports"
	"voicebook/internal/transport"
)

var (
	ErrNoActiveRecording = errors.New("no active recording session")
	ErrVoiceDisabled     = errors.New("voice booking is disabled")
	ErrControllerClosed  = errors.New("session controller is closed")
)

// Config controls controller behavior.
type Config struct {
	// Hints accompany every create call (locale, customer context).
	Hints map[string]string
}

// Controller orchestrates one voice-booking negotiation at a time: it owns
// recording sessions, submits turns over the transport, folds HTTP responses
// and realtime events into a single session state, and drives speech playback
// and the confirmation overlay.
type Controller struct {
	audio     ports.AudioCapture
	transport ports.BookingTransport
	realtime  ports.RealtimeChannel
	directory ports.BookingDirectory
	speaker   ports.Speaker
	sink      ports.EventSink
	cfg       Config
	log       *logrus.Entry

	mu                  sync.Mutex
	closed              bool
	enabled             bool
	phase               domain.SessionPhase
	neg                 *negotiation
	utterances          []domain.Utterance
	recording           ports.CaptureSession
	pending             *pendingSend
	playback            *playbackHandle
	pendingReveal       bool
	confirmationVisible bool
}

func NewController(
	capture ports.AudioCapture,
	bookingTransport ports.BookingTransport,
	realtime ports.RealtimeChannel,
	directory ports.BookingDirectory,
	speaker ports.Speaker,
	sink ports.EventSink,
	cfg Config,
	log *logrus.Logger,
) *Controller {
	return &Controller{
		audio:     capture,
		transport: bookingTransport,
		realtime:  realtime,
		directory: directory,
		speaker:   speaker,
		sink:      sink,
		cfg:       cfg,
		log:       log.WithField("component", "session"),
		phase:     domain.PhaseIdle,
	}
}

// RefreshEnabled probes the voice-booking feature flag.
func (c *Controller) RefreshEnabled(ctx context.Context) (bool, error) {
	enabled, err := c.transport.Enabled(ctx)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
	c.emitState()
	return enabled, nil
}

// StartRecording acquires the microphone for a new utterance. Starting while
// a previous recording is live discards that recording first.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if !c.enabled {
		c.mu.Unlock()
		c.sink.SessionError(domain.ErrorCodeDisabled, "voice booking is not available")
		return ErrVoiceDisabled
	}
	previous := c.recording
	c.recording = nil
	c.pending = nil
	c.mu.Unlock()

	if previous != nil {
		previous.Abandon()
		<-previous.Done()
	}

	session, err := c.audio.Start(ctx)
	if err != nil {
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			c.sink.SessionError(domain.ErrorCodeDeviceUnavailable, err.Error())
		} else {
			c.sink.SessionError(domain.ErrorCodeCapture, err.Error())
		}
		return err
	}

	c.mu.Lock()
	c.recording = session
	c.phase = domain.PhaseRecording
	c.mu.Unlock()
	c.emitState()

	go c.watchTrack(session)
	return nil
}

// watchTrack surfaces a device revocation mid-recording as a specific error
// instead of letting a truncated blob reach the backend.
func (c *Controller) watchTrack(session ports.CaptureSession) {
	<-session.Done()

	c.mu.Lock()
	if c.recording != session || c.pending != nil {
		c.mu.Unlock()
		return
	}
	c.recording = nil
	c.phase = domain.PhaseIdle
	c.mu.Unlock()

	clip, _ := session.Stop(context.Background())
	if clip.Reason == domain.StopReasonTrackEnded {
		c.sink.SessionError(domain.ErrorCodeTrackEnded, "microphone track ended unexpectedly")
	}
	c.emitState()
}

// StopAndSend stops the live recording and submits the resulting clip as the
// next negotiation turn. The recorder flushes asynchronously, so a pending
// token is recorded first; only a new, non-empty, not-previously-sent blob is
// ever transmitted.
func (c *Controller) StopAndSend(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	session := c.recording
	if session == nil {
		c.mu.Unlock()
		return ErrNoActiveRecording
	}
	token := uuid.NewString()
	c.pending = &pendingSend{token: token}
	c.phase = domain.PhaseStopping
	c.mu.Unlock()
	c.emitState()

	clip, err := session.Stop(ctx)

	c.mu.Lock()
	if c.pending == nil || c.pending.token != token {
		// A reset or restart superseded this stop; the blob must not be sent.
		c.mu.Unlock()
		return nil
	}
	c.pending = nil
	c.recording = nil

	if err != nil {
		c.phase = domain.PhaseIdle
		c.mu.Unlock()
		c.sink.SessionError(domain.ErrorCodeCapture, err.Error())
		c.emitState()
		return err
	}
	if clip.Reason == domain.StopReasonTrackEnded {
		c.phase = domain.PhaseIdle
		c.mu.Unlock()
		c.sink.SessionError(domain.ErrorCodeTrackEnded, "microphone track ended before the recording finished")
		c.emitState()
		return nil
	}
	if clip.Empty() {
		c.phase = domain.PhaseIdle
		c.mu.Unlock()
		c.sink.SessionError(domain.ErrorCodeEmptyCapture, "no audio was captured, please try again")
		c.emitState()
		return nil
	}
	c.phase = domain.PhaseSubmitting
	c.mu.Unlock()
	c.emitState()

	return c.send(ctx, clip.Data, "", nil)
}

// SendText routes typed text into the negotiation as a keyboard fallback.
// Text before any requestId exists is not transmitted: the negotiation can
// only be opened by speech.
func (c *Controller) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.neg == nil || c.neg.requestID == "" || c.neg.status.Terminal() {
		c.mu.Unlock()
		c.sink.SessionError(domain.ErrorCodeNoNegotiation, "speak first to start a booking, then refine it by text")
		return nil
	}
	c.neg.lastUserTranscript = text
	utterance := c.appendUtteranceLocked(domain.RoleUser, text, "")
	c.phase = domain.PhaseSubmitting
	c.mu.Unlock()

	c.sink.UtteranceAdded(utterance)
	c.emitState()
	return c.send(ctx, nil, text, nil)
}

// Confirm finalizes a draft that is awaiting confirmation.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.neg == nil || c.neg.requestID == "" || c.neg.status.Terminal() {
		c.mu.Unlock()
		c.sink.SessionError(domain.ErrorCodeNoNegotiation, "there is no draft to confirm")
		return nil
	}
	requestID := c.neg.requestID
	c.mu.Unlock()

	update, err := c.transport.Confirm(ctx, requestID)
	if err != nil {
		if errors.Is(err, transport.ErrExpiredOrUnknownRequest) {
			// A confirm with no known server-side draft cannot be silently
			// replayed; ask the user to restate the request.
			c.dropNegotiation(requestID)
			c.sink.SessionError(domain.ErrorCodeExpiredRequest, "your booking draft expired, please restate your request")
			c.emitState()
			return nil
		}
		c.sink.SessionError(domain.ErrorCodeNetwork, err.Error())
		return err
	}

	c.ingest(update, sourceHTTP)
	return nil
}

// Cancel abandons the current draft. Safe to call repeatedly; cancelling an
// already terminal negotiation is a no-op.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.neg == nil || c.neg.requestID == "" || c.neg.status.Terminal() {
		c.mu.Unlock()
		return nil
	}
	requestID := c.neg.requestID
	c.mu.Unlock()

	update, err := c.transport.Cancel(ctx, requestID)
	if err != nil {
		c.sink.SessionError(domain.ErrorCodeNetwork, err.Error())
		return err
	}
	c.ingest(update, sourceHTTP)
	return nil
}

// Reset discards all session state and detaches all listeners. Always
// available as an escape hatch; a live server-side draft is cancelled
// best-effort.
func (c *Controller) Reset() {
	c.mu.Lock()
	recording := c.recording
	playback := c.playback
	var requestID string
	var needsCancel bool
	if c.neg != nil {
		requestID = c.neg.requestID
		needsCancel = !c.neg.status.Terminal()
	}
	c.recording = nil
	c.pending = nil
	c.playback = nil
	c.neg = nil
	c.utterances = nil
	c.pendingReveal = false
	c.confirmationVisible = false
	c.phase = domain.PhaseIdle
	c.mu.Unlock()

	if recording != nil {
		recording.Abandon()
	}
	if playback != nil {
		playback.cancel()
	}
	if requestID != "" {
		c.realtime.Unsubscribe(requestID)
		if needsCancel {
			c.detachCancel(requestID)
		}
	}
	c.emitState()
}

// Close shuts the controller down on teardown/navigation away. An
// unterminated negotiation is cancelled fire-and-forget.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	recording := c.recording
	playback := c.playback
	var requestID string
	var needsCancel bool
	if c.neg != nil {
		requestID = c.neg.requestID
		needsCancel = !c.neg.status.Terminal()
	}
	c.recording = nil
	c.pending = nil
	c.playback = nil
	c.mu.Unlock()

	if recording != nil {
		recording.Abandon()
	}
	if playback != nil {
		playback.cancel()
	}
	if needsCancel {
		c.detachCancel(requestID)
	}
	c.realtime.Disconnect()
}

// Snapshot returns the merged read state for rendering.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() domain.Snapshot {
	snapshot := domain.Snapshot{
		Phase:               c.phase,
		Enabled:             c.enabled,
		ConfirmationVisible: c.confirmationVisible,
		Utterances:          make([]domain.Utterance, len(c.utterances)),
	}
	copy(snapshot.Utterances, c.utterances)
	if c.neg != nil {
		snapshot.RequestID = c.neg.requestID
		snapshot.Status = c.neg.status
		snapshot.MissingFields = append([]domain.FieldName(nil), c.neg.missingFields...)
		snapshot.Preview = c.neg.preview
		snapshot.ConfirmedBookingID = c.neg.bookingID
	}
	return snapshot
}

// send submits one turn. An existing negotiation continues; a stale requestId
// transparently falls back to a fresh create carrying the same audio/text.
func (c *Controller) send(ctx context.Context, audioData []byte, text string, fields map[string]string) error {
	c.mu.Lock()
	var requestID string
	if c.neg != nil {
		if c.neg.status.Terminal() {
			// A finished negotiation never carries over; the next turn opens a
			// fresh one with a fresh requestId.
			c.neg = nil
		} else {
			requestID = c.neg.requestID
			c.neg.resetTurn()
			c.confirmationVisible = false
			c.pendingReveal = false
		}
	}
	c.mu.Unlock()

	var update domain.NegotiationUpdate
	var err error
	if requestID == "" {
		update, err = c.transport.Create(ctx, audioData, c.createHints(text))
	} else {
		update, err = c.transport.Continue(ctx, requestID, audioData, text, fields)
		if errors.Is(err, transport.ErrExpiredOrUnknownRequest) {
			c.log.WithField("request_id", requestID).Info("request expired, falling back to a fresh negotiation")
			c.dropNegotiation(requestID)
			update, err = c.transport.Create(ctx, audioData, c.createHints(text))
		}
	}

	c.mu.Lock()
	c.phase = domain.PhaseIdle
	c.mu.Unlock()

	if err != nil {
		switch {
		case errors.Is(err, transport.ErrRejected):
			c.sink.SessionError(domain.ErrorCodeRejected, "we could not understand the request, please start over")
		case errors.Is(err, transport.ErrMalformedResponse):
			c.sink.SessionError(domain.ErrorCodeMalformedResponse, "the booking service returned an unexpected response")
		default:
			c.sink.SessionError(domain.ErrorCodeNetwork, err.Error())
		}
		c.emitState()
		return err
	}

	c.ingest(update, sourceHTTP)
	return nil
}

func (c *Controller) createHints(text string) map[string]string {
	if text == "" {
		return c.cfg.Hints
	}
	hints := make(map[string]string, len(c.cfg.Hints)+1)
	for k, v := range c.cfg.Hints {
		hints[k] = v
	}
	hints["additionalText"] = text
	return hints
}

// dropNegotiation forgets a requestId entirely; it is never referenced again.
func (c *Controller) dropNegotiation(requestID string) {
	c.mu.Lock()
	if c.neg != nil && c.neg.requestID == requestID {
		c.neg = nil
		c.confirmationVisible = false
		c.pendingReveal = false
	}
	c.mu.Unlock()
	c.realtime.Unsubscribe(requestID)
}

// detachCancel is an explicitly detached, non-awaited side effect: it may
// fail silently so teardown is never blocked on the network.
func (c *Controller) detachCancel(requestID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := c.transport.Cancel(ctx, requestID); err != nil {
			c.log.WithError(err).WithField("request_id", requestID).Debug("detached cancel failed")
		}
	}()
}

func (c *Controller) appendUtteranceLocked(role domain.Role, text string, audioURL string) domain.Utterance {
	utterance := domain.Utterance{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
		AudioURL:  audioURL,
	}
	c.utterances = append(c.utterances, utterance)
	return utterance
}

func (c *Controller) emitState() {
	c.mu.Lock()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.sink.StateChanged(snapshot)
}
