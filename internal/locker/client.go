package locker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/config"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/logging"

	"github.com/rs/zerolog"
)

// Client drives the external locker backend over HTTP. Transient failures
// (network errors, 5xx) are retried with exponential backoff.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      RetryPolicy
	log        zerolog.Logger
}

func NewClient(cfg config.LockerConfig, logger *zerolog.Logger) *Client {
	base := logging.Component(logger, "locker-client")
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		retry: RetryPolicy{
			MaxRetries:    cfg.MaxRetries,
			InitialDelay:  time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2,
		},
		log: base,
	}
}

type startReservationRequest struct {
	TenantID     string `json:"tenant_id"`
	BookingID    string `json:"booking_id"`
	UnitID       string `json:"unit_id"`
	LockerSystem string `json:"locker_system"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time"`
}

type startReservationResponse struct {
	ReservationID string `json:"reservation_id"`
}

type updateReservationRequest struct {
	TenantID  string `json:"tenant_id"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
}

// StartReservation opens a reservation in the locker system and returns its
// external id.
func (c *Client) StartReservation(ctx context.Context, tenantID, bookingID, unitID, lockerSystem string, begin, end int64) (string, error) {
	body := startReservationRequest{
		TenantID:     tenantID,
		BookingID:    bookingID,
		UnitID:       unitID,
		LockerSystem: lockerSystem,
		StartTime:    begin,
		EndTime:      end,
	}

	var resp startReservationResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/reservations", body, &resp)
	if err != nil {
		return "", err
	}
	if resp.ReservationID == "" {
		return "", fmt.Errorf("locker backend returned empty reservation id")
	}
	return resp.ReservationID, nil
}

// UpdateReservation moves an existing reservation to a new window.
func (c *Client) UpdateReservation(ctx context.Context, tenantID, reservationID string, begin, end int64) error {
	body := updateReservationRequest{TenantID: tenantID, StartTime: begin, EndTime: end}
	return c.do(ctx, http.MethodPut, "/api/v1/reservations/"+reservationID, body, nil)
}

// CancelReservation cancels an existing reservation.
func (c *Client) CancelReservation(ctx context.Context, tenantID, reservationID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/reservations/"+reservationID+"?tenant_id="+tenantID, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	attempts := c.retry.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retry.NextDelay(attempt - 1)):
			}
		}

		retryable, err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Str("path", path).Msg("locker backend call failed")
	}
	return fmt.Errorf("locker backend %s %s: %w", method, path, lastErr)
}

// doOnce performs a single HTTP round trip. The bool reports whether the
// failure is worth retrying.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out interface{}) (bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("locker backend status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("locker backend status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
	}
	return false, nil
}
