package transport

import (
	"encoding/json"
	"fmt"
	"strings"

	"voicebook/internal/domain"
)

// flatBody mirrors the flattened negotiation response. The backend is not
// consistent about nesting, so normalize tries each known shape in turn and
// fails closed instead of coercing.
type flatBody struct {
	RequestID            string          `json:"requestId"`
	Status               string          `json:"status"`
	IsFinal              bool            `json:"isFinal"`
	Transcript           string          `json:"transcript"`
	MissingFields        []string        `json:"missingFields"`
	Preview              *previewBody    `json:"preview"`
	BookingID            string          `json:"bookingId"`
	ConfirmedBookingID   string          `json:"confirmedBookingId"`
	Speech               *speechBody     `json:"speech"`
	Message              string          `json:"message"`
	ClarificationMessage string          `json:"clarificationMessage"`
	Success              *bool           `json:"success"`
	Data                 json.RawMessage `json:"data"`
}

type previewBody struct {
	Services    []servicePreviewBody `json:"services"`
	Address     string               `json:"address"`
	ScheduledAt string               `json:"scheduledAt"`
	Total       float64              `json:"total"`
	Currency    string               `json:"currency"`
}

type servicePreviewBody struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type speechBody struct {
	Message       *speechSegmentBody `json:"message"`
	Clarification *speechSegmentBody `json:"clarification"`
}

type speechSegmentBody struct {
	Text     string `json:"text"`
	AudioURL string `json:"audioUrl"`
}

// Normalize flattens a response body into a NegotiationUpdate. knownRequestID
// fills the bespoke confirm shape, which omits the id.
func Normalize(payload []byte, knownRequestID string) (domain.NegotiationUpdate, error) {
	var body flatBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return domain.NegotiationUpdate{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if update, ok := flatten(body, knownRequestID); ok {
		return update, nil
	}

	if len(body.Data) > 0 {
		var nested flatBody
		if err := json.Unmarshal(body.Data, &nested); err == nil {
			if update, ok := flatten(nested, knownRequestID); ok {
				return update, nil
			}
		}
	}

	return domain.NegotiationUpdate{}, fmt.Errorf("%w: no recognizable envelope", ErrMalformedResponse)
}

func flatten(body flatBody, knownRequestID string) (domain.NegotiationUpdate, bool) {
	bookingID := firstNonEmpty(body.ConfirmedBookingID, body.BookingID)

	// Bespoke success+id shape used by the confirm endpoint.
	if body.RequestID == "" && body.Status == "" {
		if body.Success != nil && *body.Success && bookingID != "" {
			return domain.NegotiationUpdate{
				RequestID: knownRequestID,
				Status:    domain.StatusCompleted,
				IsFinal:   true,
				BookingID: bookingID,
				Message:   body.Message,
			}, true
		}
		return domain.NegotiationUpdate{}, false
	}

	// "has requestId and status" is the sole success predicate.
	if body.RequestID == "" || strings.TrimSpace(body.Status) == "" {
		return domain.NegotiationUpdate{}, false
	}

	status := domain.NegotiationStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
	if status.Rank() == 0 {
		return domain.NegotiationUpdate{}, false
	}

	update := domain.NegotiationUpdate{
		RequestID:            body.RequestID,
		Status:               status,
		IsFinal:              body.IsFinal,
		Transcript:           body.Transcript,
		BookingID:            bookingID,
		Message:              body.Message,
		ClarificationMessage: body.ClarificationMessage,
	}
	for _, field := range body.MissingFields {
		update.MissingFields = append(update.MissingFields, domain.FieldName(field))
	}
	if body.Preview != nil {
		preview := domain.BookingPreview{
			Address:     body.Preview.Address,
			ScheduledAt: body.Preview.ScheduledAt,
			Total:       body.Preview.Total,
			Currency:    body.Preview.Currency,
		}
		for _, svc := range body.Preview.Services {
			preview.Services = append(preview.Services, domain.PreviewService{
				Name:     svc.Name,
				Price:    svc.Price,
				Quantity: svc.Quantity,
			})
		}
		update.Preview = &preview
	}
	if body.Speech != nil {
		if body.Speech.Message != nil {
			update.Speech.Message = &domain.SpeechSegment{
				Text:     body.Speech.Message.Text,
				AudioURL: body.Speech.Message.AudioURL,
			}
		}
		if body.Speech.Clarification != nil {
			update.Speech.Clarification = &domain.SpeechSegment{
				Text:     body.Speech.Clarification.Text,
				AudioURL: body.Speech.Clarification.AudioURL,
			}
		}
	}
	return update, true
}
