package usecase

import (
	"context"
	"errors"
	"time"

	"voicebook/internal/domain"
)

// ingest is the single reducer both sources feed: HTTP responses and realtime
// events go through the same apply path, which is what makes the merge
// idempotent under duplication and reordering.
func (c *Controller) ingest(update domain.NegotiationUpdate, source updateSource) {
	if update.Status.Rank() == 0 {
		c.log.WithField("status", string(update.Status)).Warn("dropping update with unknown status")
		return
	}

	var after []func()

	c.mu.Lock()
	adopted := false
	if c.neg == nil {
		// Only an HTTP response may open a negotiation; realtime events for
		// unknown requestIds are dropped.
		if source != sourceHTTP || update.RequestID == "" {
			c.mu.Unlock()
			return
		}
		c.neg = &negotiation{
			requestID: update.RequestID,
			status:    domain.StatusProcessing,
		}
		adopted = true
	}
	neg := c.neg
	if update.RequestID != "" && update.RequestID != neg.requestID {
		c.mu.Unlock()
		return
	}
	if neg.status.Terminal() {
		c.mu.Unlock()
		return
	}

	// A stale update loses wholesale: its fields must not repollute state the
	// later status already settled (e.g. the preview behind the overlay).
	if update.Status.Rank() < neg.status.Rank() {
		c.mu.Unlock()
		return
	}
	neg.status = update.Status

	if update.Transcript != "" && update.Transcript != neg.lastUserTranscript {
		neg.lastUserTranscript = update.Transcript
		utterance := c.appendUtteranceLocked(domain.RoleUser, update.Transcript, "")
		after = append(after, func() { c.sink.UtteranceAdded(utterance) })
	}
	if update.MissingFields != nil {
		neg.missingFields = update.MissingFields
	}
	if update.Preview != nil {
		neg.preview = update.Preview
	}
	// A confirmed booking id only exists once the negotiation completed.
	if update.BookingID != "" && update.Status == domain.StatusCompleted {
		neg.bookingID = update.BookingID
	}

	speechStarted := false
	if segment := pickSpeech(update); segment != nil && segment.Text != neg.lastAssistantText {
		neg.lastAssistantText = segment.Text
		utterance := c.appendUtteranceLocked(domain.RoleAssistant, segment.Text, segment.AudioURL)
		after = append(after, func() { c.sink.UtteranceAdded(utterance) })
		if segment.AudioURL != "" {
			after = append(after, c.startPlaybackLocked(utterance.ID, segment.AudioURL)...)
			speechStarted = true
		}
	}

	switch {
	case neg.status == domain.StatusAwaitingConfirmation:
		// The overlay never preempts the assistant voicing the summary; it is
		// revealed once playback of this turn ends.
		if speechStarted || c.playback != nil {
			c.pendingReveal = true
		} else if !c.confirmationVisible {
			c.confirmationVisible = true
			after = append(after, c.confirmationReadyLocked())
		}
	case neg.status == domain.StatusCompleted:
		c.confirmationVisible = false
		c.pendingReveal = false
		if !neg.detailsFetched && neg.bookingID != "" {
			neg.detailsFetched = true
			bookingID := neg.bookingID
			after = append(after, func() { go c.fetchBookingDetails(bookingID) })
		}
	case neg.status.Terminal():
		c.confirmationVisible = false
		c.pendingReveal = false
	}

	if neg.status.Terminal() {
		requestID := neg.requestID
		after = append(after, func() { c.realtime.Unsubscribe(requestID) })
	}
	requestID := neg.requestID
	c.mu.Unlock()

	if adopted {
		c.subscribe(requestID)
	}
	for _, fn := range after {
		fn()
	}
	c.emitState()
}

// pickSpeech resolves the per-turn assistant output by precedence: narrated
// message, then narrated clarification, then the bare text fields.
func pickSpeech(update domain.NegotiationUpdate) *domain.SpeechSegment {
	if update.Speech.Message != nil && update.Speech.Message.Text != "" {
		return update.Speech.Message
	}
	if update.Speech.Clarification != nil && update.Speech.Clarification.Text != "" {
		return update.Speech.Clarification
	}
	if update.Message != "" {
		return &domain.SpeechSegment{Text: update.Message}
	}
	if update.ClarificationMessage != "" {
		return &domain.SpeechSegment{Text: update.ClarificationMessage}
	}
	return nil
}

// subscribe attaches the realtime feed for a freshly adopted requestId. A
// subscription failure is not fatal: the HTTP path still carries every turn.
func (c *Controller) subscribe(requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.realtime.Subscribe(ctx, requestID, func(event domain.RealtimeEvent) {
		c.ingest(event.Update, sourceRealtime)
	})
	if err != nil {
		c.log.WithError(err).WithField("request_id", requestID).Warn("realtime subscribe failed, continuing on http only")
	}
}

// startPlaybackLocked begins playing one assistant utterance, preempting any
// utterance still playing. Caller holds c.mu; the returned funcs run after
// unlock.
func (c *Controller) startPlaybackLocked(utteranceID, audioURL string) []func() {
	var after []func()
	if prev := c.playback; prev != nil {
		prev.cancel()
		prevID := prev.utteranceID
		c.setPlayingLocked(prevID, false)
		after = append(after, func() { c.sink.PlaybackChanged(prevID, false) })
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.playback = &playbackHandle{utteranceID: utteranceID, cancel: cancel}
	c.setPlayingLocked(utteranceID, true)

	after = append(after, func() {
		c.sink.PlaybackChanged(utteranceID, true)
		go c.runPlayback(ctx, utteranceID, audioURL)
	})
	return after
}

func (c *Controller) runPlayback(ctx context.Context, utteranceID, audioURL string) {
	err := c.speaker.Play(ctx, audioURL)

	c.mu.Lock()
	if c.playback == nil || c.playback.utteranceID != utteranceID {
		// Preempted; the superseding turn already owns the flags.
		c.mu.Unlock()
		return
	}
	c.playback = nil
	c.setPlayingLocked(utteranceID, false)
	var reveal func()
	if c.pendingReveal {
		c.pendingReveal = false
		c.confirmationVisible = true
		reveal = c.confirmationReadyLocked()
	}
	c.mu.Unlock()

	c.sink.PlaybackChanged(utteranceID, false)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.sink.SessionError(domain.ErrorCodePlayback, err.Error())
	}
	if reveal != nil {
		reveal()
	}
	c.emitState()
}

func (c *Controller) setPlayingLocked(utteranceID string, playing bool) {
	for i := range c.utterances {
		if c.utterances[i].ID == utteranceID {
			c.utterances[i].IsPlaying = playing
			return
		}
	}
}

func (c *Controller) confirmationReadyLocked() func() {
	var preview domain.BookingPreview
	if c.neg != nil && c.neg.preview != nil {
		preview = *c.neg.preview
	}
	return func() { c.sink.ConfirmationReady(preview) }
}

// fetchBookingDetails loads the confirmed record for display. Failure is
// non-fatal: the booking exists regardless, so only a log line is warranted.
func (c *Controller) fetchBookingDetails(bookingID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	details, err := c.directory.BookingByID(ctx, bookingID)
	if err != nil {
		c.log.WithError(err).WithField("booking_id", bookingID).Warn("confirmed booking lookup failed")
		return
	}
	c.sink.BookingConfirmed(details)
}
