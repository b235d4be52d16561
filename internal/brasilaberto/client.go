// Package brasilaberto wraps the Brasil Aberto address API: zip-code
// complement lookups used to synthesize street numbers, and the districts
// listing used to resolve a city's full neighborhood set.
package brasilaberto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/zapdeals/zapdeals/internal/zapapi"
)

const defaultBaseURL = "https://api.brasilaberto.com"

// Client calls the Brasil Aberto REST endpoints.
type Client struct {
	httpClient *http.Client
	backoff    *zapapi.ExponentialBackoff
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

// Config tunes the Brasil Aberto client.
type Config struct {
	APIKey         string
	RequestTimeout time.Duration
	MaxAttempts    int
	// BaseURL overrides the production API host, used by tests.
	BaseURL string
}

// NewClient constructs a Brasil Aberto API client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		backoff:    zapapi.NewExponentialBackoff(cfg.MaxAttempts, 0, 0),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
}

// Complement returns the free-text address-range string for a zip code. The
// empty string is a valid result: some zip codes carry no range information.
func (c *Client) Complement(ctx context.Context, zipCode string) (string, error) {
	var payload struct {
		Result struct {
			Complement string `json:"complement"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/v1/zipcode/%s.json", c.baseURL, zipCode)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return "", fmt.Errorf("zip code %s: %w", zipCode, err)
	}
	return payload.Result.Complement, nil
}

// Districts returns the sorted neighborhood names for an IBGE city code.
func (c *Client) Districts(ctx context.Context, cityID int) ([]string, error) {
	var payload struct {
		Result []struct {
			Name string `json:"name"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/v1/districts/%d", c.baseURL, cityID)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, fmt.Errorf("districts for city %d: %w", cityID, err)
	}
	names := make([]string, 0, len(payload.Result))
	for _, d := range payload.Result {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.backoff.MaxAttempts(); attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.backoff.Delay(attempt-1)); err != nil {
				return err
			}
		}
		err := c.getJSONOnce(ctx, url, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		c.logger.Warn("Brasil Aberto request failed",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return fmt.Errorf("attempts exhausted: %w", lastErr)
}

func (c *Client) getJSONOnce(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Bearer", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
