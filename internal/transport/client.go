package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"voicebook/internal/domain"
	"voicebook/internal/ports"
)

var (
	// ErrRejected means the backend could not extract any usable booking
	// fields from the submitted audio. Terminal for that attempt.
	ErrRejected = errors.New("voice request rejected")
	// ErrExpiredOrUnknownRequest means the server no longer knows the
	// requestId. Recoverable: the caller restarts with a fresh create.
	ErrExpiredOrUnknownRequest = errors.New("voice request expired or unknown")
	// ErrMalformedResponse means no recognizable envelope shape was present.
	ErrMalformedResponse = errors.New("malformed voice response")
)

// Config controls the voice endpoint locations.
type Config struct {
	BaseURL string
}

// Client is the stateless typed client for the negotiation verbs. It accepts
// either a flat response body or a {data:{...}} wrapper and always yields the
// same flattened update shape, failing closed on anything else.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens ports.TokenProvider
	log    *logrus.Entry
}

func NewClient(cfg Config, httpClient *http.Client, tokens ports.TokenProvider, log *logrus.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		tokens: tokens,
		log:    log.WithField("component", "transport"),
	}
}

// Create starts a new negotiation from an audio clip.
func (c *Client) Create(ctx context.Context, audio []byte, hints map[string]string) (domain.NegotiationUpdate, error) {
	body, contentType, err := encodeVoiceForm(voiceForm{audio: audio, hints: hints})
	if err != nil {
		return domain.NegotiationUpdate{}, err
	}
	return c.post(ctx, "/voice", body, contentType, "")
}

// Continue supplies missing information to an existing negotiation.
func (c *Client) Continue(ctx context.Context, requestID string, audio []byte, additionalText string, explicitFields map[string]string) (domain.NegotiationUpdate, error) {
	form := voiceForm{
		requestID:      requestID,
		audio:          audio,
		additionalText: additionalText,
		explicitFields: explicitFields,
	}
	body, contentType, err := encodeVoiceForm(form)
	if err != nil {
		return domain.NegotiationUpdate{}, err
	}
	return c.post(ctx, "/voice/continue", body, contentType, requestID)
}

// Confirm finalizes a complete draft into a booking.
func (c *Client) Confirm(ctx context.Context, requestID string) (domain.NegotiationUpdate, error) {
	body, err := json.Marshal(map[string]string{"requestId": requestID})
	if err != nil {
		return domain.NegotiationUpdate{}, err
	}
	return c.post(ctx, "/voice/confirm", bytes.NewReader(body), "application/json", requestID)
}

// Cancel abandons a draft. Idempotent: cancelling an already finished or
// unknown negotiation is a no-op, not an error.
func (c *Client) Cancel(ctx context.Context, requestID string) (domain.NegotiationUpdate, error) {
	body, err := json.Marshal(map[string]string{"requestId": requestID})
	if err != nil {
		return domain.NegotiationUpdate{}, err
	}
	update, err := c.post(ctx, "/voice/cancel", bytes.NewReader(body), "application/json", requestID)
	if errors.Is(err, ErrExpiredOrUnknownRequest) {
		return domain.NegotiationUpdate{RequestID: requestID, Status: domain.StatusCancelled, IsFinal: true}, nil
	}
	return update, err
}

// Enabled probes the voice-booking feature flag.
func (c *Client) Enabled(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/voice/status", nil)
	if err != nil {
		return false, err
	}
	if err := c.authorize(ctx, req); err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("voice status probe failed: %s", resp.Status)
	}

	var probe struct {
		Enabled bool `json:"enabled"`
		Data    *struct {
			Enabled bool `json:"enabled"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&probe); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if probe.Data != nil {
		return probe.Data.Enabled, nil
	}
	return probe.Enabled, nil
}

func (c *Client) post(ctx context.Context, path string, body io.Reader, contentType string, requestID string) (domain.NegotiationUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return domain.NegotiationUpdate{}, err
	}
	req.Header.Set("Content-Type", contentType)
	if err := c.authorize(ctx, req); err != nil {
		return domain.NegotiationUpdate{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NegotiationUpdate{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NegotiationUpdate{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := c.mapError(path, resp.StatusCode, payload)
		c.log.WithFields(logrus.Fields{
			"path":   path,
			"status": resp.StatusCode,
		}).WithError(err).Warn("voice call failed")
		return domain.NegotiationUpdate{}, err
	}

	update, err := Normalize(payload, requestID)
	if err != nil {
		return domain.NegotiationUpdate{}, err
	}
	return update, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("resolve access token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) mapError(path string, status int, payload []byte) error {
	var body errorBody
	_ = json.Unmarshal(payload, &body)
	detail := firstNonEmpty(body.Message, body.Error, strings.TrimSpace(string(payload)))

	switch {
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		if path == "/voice" {
			return fmt.Errorf("%w: %s", ErrRejected, detail)
		}
		return fmt.Errorf("%w: %s", ErrExpiredOrUnknownRequest, detail)
	case status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrRejected, detail)
	default:
		return fmt.Errorf("voice call %s failed with %d: %s", path, status, detail)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type voiceForm struct {
	requestID      string
	audio          []byte
	additionalText string
	hints          map[string]string
	explicitFields map[string]string
}

func encodeVoiceForm(form voiceForm) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if form.requestID != "" {
		if err := writer.WriteField("requestId", form.requestID); err != nil {
			return nil, "", err
		}
	}
	if len(form.audio) > 0 {
		part, err := writer.CreateFormFile("audio", "utterance.pcm")
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(form.audio); err != nil {
			return nil, "", err
		}
	}
	if form.additionalText != "" {
		if err := writer.WriteField("additionalText", form.additionalText); err != nil {
			return nil, "", err
		}
	}
	if err := writeJSONField(writer, "hints", form.hints); err != nil {
		return nil, "", err
	}
	if err := writeJSONField(writer, "explicitFields", form.explicitFields); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func writeJSONField(writer *multipart.Writer, name string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return writer.WriteField(name, string(encoded))
}
