package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"voicebook/internal/domain"
)

// BookingByID fetches a confirmed booking for display. Called once after a
// negotiation completes.
func (c *Client) BookingByID(ctx context.Context, id string) (domain.BookingDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/bookings/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.BookingDetails{}, err
	}
	if err := c.authorize(ctx, req); err != nil {
		return domain.BookingDetails{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.BookingDetails{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.BookingDetails{}, fmt.Errorf("booking lookup failed: %s", resp.Status)
	}

	var body struct {
		domain.BookingDetails
		Data *domain.BookingDetails `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.BookingDetails{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body.Data != nil {
		return *body.Data, nil
	}
	return body.BookingDetails, nil
}
