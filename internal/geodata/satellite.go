package geodata

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // satellite tiles decode as JPEG
	_ "image/png"  // or PNG depending on the style
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zapdeals/zapdeals/internal/listing"
)

const defaultMapboxBaseURL = "https://api.mapbox.com"

// greenChannelMargin is how far the green channel must exceed the red
// channel (8-bit scale) for a pixel to count as vegetation.
const greenChannelMargin = 10

// SatelliteClient downloads static satellite tiles for bounding boxes.
type SatelliteClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

// SatelliteConfig tunes the satellite tile client.
type SatelliteConfig struct {
	Token          string
	RequestTimeout time.Duration
	// BaseURL overrides the production tile host, used by tests.
	BaseURL string
}

// NewSatelliteClient constructs a satellite tile client.
func NewSatelliteClient(cfg SatelliteConfig, logger *zap.Logger) *SatelliteClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultMapboxBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SatelliteClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		logger:     logger,
	}
}

// Tile fetches the satellite image covering the bounding box.
func (c *SatelliteClient) Tile(ctx context.Context, box listing.BoundingBox) (image.Image, error) {
	url := fmt.Sprintf(
		"%s/styles/v1/mapbox/satellite-v9/static/[%f,%f,%f,%f]/500x500@2x?access_token=%s",
		c.baseURL, box.MinLon, box.MinLat, box.MaxLon, box.MaxLat, c.token,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch satellite tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("satellite tile: unexpected status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode satellite tile: %w", err)
	}
	return img, nil
}

// GreenDensity returns the fraction of pixels counted as vegetation: those
// whose green channel exceeds the red channel by the fixed margin.
func GreenDensity(img image.Image) float64 {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	green := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, _, _ := img.At(x, y).RGBA()
			// RGBA returns 16-bit channels; scale to 8-bit.
			r8 := int(r >> 8)
			g8 := int(g >> 8)
			if g8 > r8+greenChannelMargin {
				green++
			}
		}
	}
	return float64(green) / float64(total)
}
