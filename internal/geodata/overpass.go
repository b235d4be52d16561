package geodata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zapdeals/zapdeals/internal/listing"
)

const defaultOverpassBaseURL = "https://overpass-api.de/api/interpreter"

// OverpassClient queries OpenStreetMap relation data: bus routes crossing a
// bounding box, and park polygons around a point.
type OverpassClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// OverpassConfig tunes the Overpass client.
type OverpassConfig struct {
	RequestTimeout time.Duration
	// BaseURL overrides the production interpreter, used by tests.
	BaseURL string
}

// NewOverpassClient constructs an Overpass API client.
func NewOverpassClient(cfg OverpassConfig, logger *zap.Logger) *OverpassClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOverpassBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverpassClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		logger:     logger,
	}
}

type overpassElement struct {
	Type string            `json:"type"`
	Tags map[string]string `json:"tags"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// BusLaneCount returns the number of bus-route relations crossing the box.
func (c *OverpassClient) BusLaneCount(ctx context.Context, box listing.BoundingBox) (int, error) {
	query := fmt.Sprintf(
		`[out:json];relation["route"="bus"](%f,%f,%f,%f);out;`,
		box.MinLat, box.MinLon, box.MaxLat, box.MaxLon,
	)
	resp, err := c.run(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("bus lane count: %w", err)
	}
	count := 0
	for _, el := range resp.Elements {
		if el.Type == "relation" {
			count++
		}
	}
	return count, nil
}

// IsNextToPark reports whether a real park lies within 1000 m of the point.
// Small decorative greens are excluded: only city parks or leisure parks
// whose name marks them as an actual "Parque" count.
func (c *OverpassClient) IsNextToPark(ctx context.Context, lat, lon float64) (bool, error) {
	query := fmt.Sprintf(
		`[out:json];nwr["leisure"="park"](around:1000,%f,%f);out;`,
		lat, lon,
	)
	resp, err := c.run(ctx, query)
	if err != nil {
		return false, fmt.Errorf("park lookup: %w", err)
	}
	for _, el := range resp.Elements {
		switch el.Type {
		case "way":
			if el.Tags["park:type"] == "city_park" {
				return true, nil
			}
			if el.Tags["leisure"] == "park" && strings.Contains(el.Tags["name"], "Parque") {
				return true, nil
			}
		case "relation":
			if el.Tags["leisure"] == "park" {
				return true, nil
			}
		}
	}
	return false, nil
}

func (c *OverpassClient) run(ctx context.Context, query string) (overpassResponse, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return overpassResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return overpassResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return overpassResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var decoded overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return overpassResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return decoded, nil
}
