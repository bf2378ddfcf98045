package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/paperscope/paperscope/internal/indexer/index"
	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/metrics"
	"github.com/paperscope/paperscope/pkg/resilience"
)

const userAgent = "paperscope/1.0 (https://github.com/paperscope/paperscope)"

// Client calls the arXiv query API. All requests pass through a shared rate
// limiter honoring arXiv's one-request-per-three-seconds guidance, and
// through a circuit breaker so a flaky upstream does not hammer retries.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewClient creates a Client from config. Metrics may be nil (tests).
func NewClient(cfg config.ArxivConfig, m *metrics.Metrics) *Client {
	interval := cfg.RequestInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		breaker: resilience.NewCircuitBreaker("arxiv", resilience.CircuitBreakerConfig{}),
		metrics: m,
		logger:  slog.Default().With("component", "arxiv-client"),
	}
}

// Page is one windowed request within a category, newest submissions first.
type Page struct {
	Category   string
	Start      int
	MaxResults int
}

// FetchPage performs a single API call and returns the parsed papers.
func (c *Client) FetchPage(ctx context.Context, p Page) ([]index.Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("search_query", "cat:"+p.Category)
	q.Set("start", strconv.Itoa(p.Start))
	q.Set("max_results", strconv.Itoa(p.MaxResults))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")
	endpoint := c.baseURL + "?" + q.Encode()

	var docs []index.Document
	err := c.breaker.Execute(func() error {
		return resilience.Retry(ctx, "arxiv-fetch", resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
		}, func() error {
			parsed, err := c.doRequest(ctx, endpoint)
			if err != nil {
				return err
			}
			docs = parsed
			return nil
		})
	})
	if err != nil {
		c.observeRequest("error")
		return nil, fmt.Errorf("fetching %s page at %d: %w", p.Category, p.Start, err)
	}

	c.observeRequest("ok")
	if c.metrics != nil {
		c.metrics.PapersFetchedTotal.WithLabelValues(p.Category).Add(float64(len(docs)))
	}
	c.logger.Debug("page fetched",
		"category", p.Category,
		"start", p.Start,
		"papers", len(docs),
	)
	return docs, nil
}

// FetchCategory pages through one category until max papers are collected
// or the API runs out of results.
func (c *Client) FetchCategory(ctx context.Context, category string, max, pageSize int) ([]index.Document, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	var all []index.Document
	for start := 0; start < max; start += pageSize {
		size := min(pageSize, max-start)
		page, err := c.FetchPage(ctx, Page{Category: category, Start: start, MaxResults: size})
		if err != nil {
			return all, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		if len(page) < size {
			break
		}
	}
	return all, nil
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.GetState()
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]index.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling arxiv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("arxiv returned status %d", resp.StatusCode)
	}

	var f feed
	if err := xml.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	docs := make([]index.Document, 0, len(f.Entries))
	for _, e := range f.Entries {
		doc := toDocument(e)
		if doc.ID == "" {
			c.logger.Warn("entry without usable id skipped", "raw_id", e.ID)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Client) observeRequest(status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.ArxivRequestsTotal.WithLabelValues(status).Inc()
}
