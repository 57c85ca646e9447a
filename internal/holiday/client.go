// Package holiday resolves public holiday calendars used by holiday-scoped
// price categories.
package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
)

// Client fetches holiday calendars from the configured calendar service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type holidayDTO struct {
	Date string `json:"date"` // 2006-01-02
	Name string `json:"name"`
}

// GetHolidays returns the holidays of one year for a country/state scope.
func (c *Client) GetHolidays(ctx context.Context, year int, countryCode, stateCode string) ([]models.Holiday, error) {
	q := url.Values{}
	q.Set("year", fmt.Sprintf("%d", year))
	q.Set("country", countryCode)
	if stateCode != "" {
		q.Set("state", stateCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/holidays?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch holidays: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("holiday service status %d", resp.StatusCode)
	}

	var dtos []holidayDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("decode holidays: %w", err)
	}

	holidays := make([]models.Holiday, 0, len(dtos))
	for _, dto := range dtos {
		date, err := time.Parse("2006-01-02", dto.Date)
		if err != nil {
			return nil, fmt.Errorf("parse holiday date %q: %w", dto.Date, err)
		}
		holidays = append(holidays, models.Holiday{Date: date, Name: dto.Name})
	}
	return holidays, nil
}
