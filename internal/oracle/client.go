// Package oracle queries the Gamma market API for market status and resolved outcome prices.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

const (
	// DefaultBaseURL is the production Gamma API.
	DefaultBaseURL = "https://gamma-api.polymarket.com"
	// MaxBatchSize is the largest number of condition IDs sent in one request.
	MaxBatchSize = 50

	defaultTimeout = 5 * time.Second
)

// Config holds oracle client settings.
type Config struct {
	BaseURL    string
	BatchSize  int
	BatchDelay time.Duration
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Client is an HTTP client for the Gamma /markets endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	batchSize  int
	logger     *zap.Logger
}

// NewClient creates a new oracle client. Zero values in cfg fall back to defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.BatchDelay > 0 {
		limit = rate.Every(cfg.BatchDelay)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:   rate.NewLimiter(limit, 1),
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
	}
}

// MarketStatus is the open/closed state of one market.
type MarketStatus struct {
	MarketID string
	Closed   bool
	Question string
}

// GetResolutions returns the resolution record of every requested market that the API knows about.
// Markets missing from the result are treated as unresolved by callers. The returned error joins
// the failures of individual batches; results from successful batches are still returned.
func (c *Client) GetResolutions(ctx context.Context, marketIDs []string) (map[string]types.Resolution, error) {
	markets, err := c.FetchMarkets(ctx, marketIDs)

	out := make(map[string]types.Resolution, len(markets))
	for id, m := range markets {
		res := m.Resolution()
		res.MarketID = id
		out[id] = res
		if res.Resolved {
			ResolvedMarketsTotal.Inc()
		}
	}

	return out, err
}

// MarketStatuses returns the open/closed state of the requested markets.
func (c *Client) MarketStatuses(ctx context.Context, marketIDs []string) (map[string]MarketStatus, error) {
	markets, err := c.FetchMarkets(ctx, marketIDs)

	out := make(map[string]MarketStatus, len(markets))
	for id, m := range markets {
		out[id] = MarketStatus{MarketID: id, Closed: m.Closed, Question: m.Question}
	}

	return out, err
}

// MarketStatus returns the state of a single market. Unknown markets are reported open.
func (c *Client) MarketStatus(ctx context.Context, marketID string) (MarketStatus, error) {
	statuses, err := c.MarketStatuses(ctx, []string{marketID})
	if err != nil {
		return MarketStatus{MarketID: marketID}, err
	}

	status, ok := statuses[marketID]
	if !ok {
		return MarketStatus{MarketID: marketID}, nil
	}
	return status, nil
}

// FetchMarkets fetches the given markets in batches, keyed by condition ID.
func (c *Client) FetchMarkets(ctx context.Context, marketIDs []string) (map[string]types.GammaMarket, error) {
	ids := dedupe(marketIDs)
	result := make(map[string]types.GammaMarket, len(ids))

	var errs []error
	for start := 0; start < len(ids); start += c.batchSize {
		end := min(start+c.batchSize, len(ids))
		batch := ids[start:end]

		if err := c.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for rate limiter: %w", err))
			break
		}

		markets, err := c.fetchBatch(ctx, batch)
		if err != nil {
			BatchErrorsTotal.Inc()
			c.logger.Warn("oracle-batch-failed",
				zap.Int("batch-start", start),
				zap.Int("batch-size", len(batch)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("fetch batch %d-%d: %w", start, end, err))
			continue
		}

		for i := range markets {
			id := markets[i].ConditionID
			if id == "" {
				continue
			}
			result[id] = markets[i]
		}
	}

	return result, errors.Join(errs...)
}

func (c *Client) fetchBatch(ctx context.Context, batch []string) ([]types.GammaMarket, error) {
	params := url.Values{}
	params.Set("condition_ids", strings.Join(batch, ","))
	params.Set("limit", strconv.Itoa(len(batch)))

	requestURL := fmt.Sprintf("%s/markets?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polymarket-whalesim/1.0")

	c.logger.Debug("fetching-markets",
		zap.Int("batch-size", len(batch)))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	RequestDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	// Gamma returns a bare array
	var markets []types.GammaMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	MarketsFetchedTotal.Add(float64(len(markets)))

	return markets, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
