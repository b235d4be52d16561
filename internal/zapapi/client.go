package zapapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/zapdeals/zapdeals/internal/listing"
)

// RawPage couples the decoded payload with the raw body, which is archived
// for replay and debugging.
type RawPage struct {
	Page Page
	Body []byte
}

// Client fetches paginated search results from the listings API.
//
// Transient failures (connection errors, non-2xx statuses, malformed JSON)
// are retried with jittered exponential backoff. Exhausting the attempt
// budget is fatal for the page, and the caller treats it as fatal for the
// whole neighborhood crawl: skipping pages silently would produce partial,
// inconsistent batches.
type Client struct {
	baseCollector *colly.Collector
	backoff       *ExponentialBackoff
	endpoint      string
	logger        *zap.Logger
}

// ClientConfig tunes the fetch client.
type ClientConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	// Endpoint overrides the production listings endpoint, used by tests.
	Endpoint string
}

// NewClient constructs a configured listings API client.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("zapapi: user agent must be set")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = listingsEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := colly.NewCollector(
		colly.Async(false),
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	return &Client{
		baseCollector: base,
		backoff:       NewExponentialBackoff(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffMax),
		endpoint:      cfg.Endpoint,
		logger:        logger,
	}, nil
}

// FetchPage retrieves one page of search results, retrying transient
// failures until the attempt budget is exhausted.
func (c *Client) FetchPage(ctx context.Context, filters listing.SearchFilters, page int) (RawPage, error) {
	target, err := c.pageURL(filters, page)
	if err != nil {
		return RawPage{}, err
	}

	var lastErr error
	for attempt := 0; attempt < c.backoff.MaxAttempts(); attempt++ {
		if attempt > 0 {
			pageRetries.Inc()
			if err := sleepCtx(ctx, c.backoff.Delay(attempt-1)); err != nil {
				return RawPage{}, err
			}
		}

		raw, err := c.fetchOnce(ctx, target)
		if err == nil {
			pagesFetched.Inc()
			return raw, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return RawPage{}, err
		}
		c.logger.Warn("Page fetch failed",
			zap.Int("page", page),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	pageFailures.Inc()
	return RawPage{}, fmt.Errorf("fetch page %d: attempts exhausted: %w", page, lastErr)
}

func (c *Client) pageURL(filters listing.SearchFilters, page int) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	for k, v := range queryParams(filters, page) {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) fetchOnce(ctx context.Context, target string) (RawPage, error) {
	if err := ctx.Err(); err != nil {
		return RawPage{}, err
	}

	collector := c.baseCollector.Clone()
	collector.OnRequest(func(r *colly.Request) {
		for k, v := range requestHeaders() {
			r.Headers.Set(k, v)
		}
	})

	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK {
			send(fetchResult{err: fmt.Errorf("unexpected status %d", r.StatusCode)})
			return
		}
		send(fetchResult{body: append([]byte{}, r.Body...)})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(target); err != nil {
		return RawPage{}, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return RawPage{}, res.err
		}
		page, err := DecodePage(res.body)
		if err != nil {
			return RawPage{}, fmt.Errorf("decode page payload: %w", err)
		}
		return RawPage{Page: page, Body: res.body}, nil
	default:
		return RawPage{}, errors.New("fetch produced no result")
	}
}

type fetchResult struct {
	body []byte
	err  error
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
