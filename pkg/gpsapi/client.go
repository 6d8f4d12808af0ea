package gpsapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"parkwatch/internal/domain"
)

// Client reads the full position set from a remote query endpoint that
// answers GET with a JSON array of readings.
type Client struct {
	url        string
	httpClient *http.Client
	loc        *time.Location
}

func New(url string, timeout time.Duration, loc *time.Location) *Client {
	return &Client{
		url: url,
		loc: loc,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) Fetch(ctx context.Context) ([]domain.Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	positions, _, err := Decode(body, c.loc)
	if err != nil {
		return nil, fmt.Errorf("decoding positions: %w", err)
	}
	return positions, nil
}
