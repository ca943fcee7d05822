package wallet

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
)

const (
	// DefaultDataAPIURL is the Polymarket Data API.
	DefaultDataAPIURL = "https://data-api.polymarket.com"
	// PositionsLimit is the page size requested from /positions.
	PositionsLimit = 500
)

// Client fetches wallet holdings from the Polymarket Data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Config holds Data API client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RequestDelay is the minimum spacing between requests. Zero disables limiting.
	RequestDelay time.Duration
	Logger       *zap.Logger
}

// Position is one holding reported by the Data API.
type Position struct {
	Asset       string
	ConditionID string
	Outcome     string
	Size        float64
	AvgPrice    float64
	CurPrice    float64
	Title       string
	Slug        string
}

// dataAPIPosition represents the response from Polymarket Data API.
type dataAPIPosition struct {
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	InitialValue float64 `json:"initialValue"`
	CurrentValue float64 `json:"currentValue"`
	CurPrice     float64 `json:"curPrice"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	Outcome      string  `json:"outcome"`
}

// NewClient creates a new Data API client.
func NewClient(cfg *Config) (c *Client, err error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultDataAPIURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  cfg.Logger,
	}

	return client, nil
}

// GetPositions fetches the current holdings of address. Holdings with zero size are dropped.
func (c *Client) GetPositions(ctx context.Context, address string) (positions []Position, err error) {
	if err = c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("user", address)
	params.Set("limit", strconv.Itoa(PositionsLimit))

	requestURL := fmt.Sprintf("%s/positions?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	RequestDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		RequestErrorsTotal.Inc()
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		RequestErrorsTotal.Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var apiPositions []dataAPIPosition
	err = json.NewDecoder(resp.Body).Decode(&apiPositions)
	if err != nil {
		RequestErrorsTotal.Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	positions = make([]Position, 0, len(apiPositions))
	for _, pos := range apiPositions {
		if pos.Size <= 0 {
			continue
		}
		positions = append(positions, Position{
			Asset:       pos.Asset,
			ConditionID: pos.ConditionID,
			Outcome:     pos.Outcome,
			Size:        pos.Size,
			AvgPrice:    pos.AvgPrice,
			CurPrice:    pos.CurPrice,
			Title:       pos.Title,
			Slug:        pos.Slug,
		})
	}

	PositionsFetchedTotal.Add(float64(len(positions)))
	c.logger.Debug("wallet-positions-fetched",
		zap.String("address", address),
		zap.Int("positions", len(positions)))

	return positions, nil
}
