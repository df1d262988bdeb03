// Package steam fetches public Steam community inventories.
package steam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/pkg/clock"
	"github.com/okian/steamwatch/pkg/logger"
	"github.com/okian/steamwatch/pkg/metrics"
)

// Default configuration values.
const (
	DefaultBaseURL        = "https://steamcommunity.com/inventory"
	DefaultPageSize       = 2000
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 3 * time.Second
	DefaultRateLimitStep  = 30 * time.Second
	DefaultRequestTimeout = 30 * time.Second

	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	acceptHeader = "application/json, text/plain, */*"

	maxBodyBytes = 32 << 20
)

// Client retrieves inventories with bounded retries. Open must be called
// before Fetch; Close releases pooled connections.
type Client struct {
	mu         sync.RWMutex
	httpClient *http.Client
	transport  http.RoundTripper

	baseURL        string
	proxyURL       string
	maxAttempts    int
	baseDelay      time.Duration
	rateLimitStep  time.Duration
	requestTimeout time.Duration

	clock  clock.Clock
	logger logger.Logger
}

// New creates a client. It does no I/O.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		maxAttempts:    DefaultMaxAttempts,
		baseDelay:      DefaultBaseDelay,
		rateLimitStep:  DefaultRateLimitStep,
		requestTimeout: DefaultRequestTimeout,
		clock:          clock.Real(),
		logger:         logger.Get().Named("steam"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open prepares the HTTP session. Calling Open on an open client is a no-op.
func (c *Client) Open(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient != nil {
		return nil
	}

	rt := c.transport
	if rt == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.MaxIdleConnsPerHost = 4
		if c.proxyURL != "" {
			u, err := parseProxy(c.proxyURL)
			if err != nil {
				return fmt.Errorf("invalid proxy url: %w", err)
			}
			tr.Proxy = http.ProxyURL(u)
		}
		rt = tr
	}
	c.httpClient = &http.Client{Transport: rt}
	return nil
}

// Close releases idle connections. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient == nil {
		return nil
	}
	c.httpClient.CloseIdleConnections()
	c.httpClient = nil
	return nil
}

// Fetch returns one page of the inventory of (accountID, gameID, contextID).
//
// Failures are classified: ErrPrivateInventory and ErrUpstream return at once;
// non-200 statuses, transport errors and bad bodies are retried and finally
// wrapped in ErrRetrievalExhausted together with the last cause.
func (c *Client) Fetch(ctx context.Context, accountID string, gameID, contextID int64, pageSize int) (model.Inventory, error) {
	c.mu.RLock()
	hc := c.httpClient
	c.mu.RUnlock()
	if hc == nil {
		return model.Inventory{}, ErrNotOpen
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	endpoint := c.endpoint(accountID, gameID, contextID, pageSize)
	log := c.logger.With(
		logger.String("account_id", accountID),
		logger.Int64("app_id", gameID),
	)

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		inv, err := c.attempt(ctx, hc, endpoint)
		if err == nil {
			metrics.RecordFetchAttempt("ok")
			return inv, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Inventory{}, ctxErr
		}

		last := attempt == c.maxAttempts-1
		switch {
		case errors.Is(err, errRateLimited):
			metrics.RecordFetchAttempt("rate_limited")
			lastErr = err
			if last {
				continue
			}
			wait := c.rateLimitStep * time.Duration(attempt+1)
			log.Warn(ctx, "inventory rate limited", logger.Int("attempt", attempt+1), logger.Duration("wait", wait))
			if err := c.clock.Sleep(ctx, wait); err != nil {
				return model.Inventory{}, err
			}
			continue
		case errors.Is(err, ErrPrivateInventory):
			metrics.RecordFetchAttempt("private")
			return model.Inventory{}, err
		case errors.Is(err, ErrUpstream):
			metrics.RecordFetchAttempt("upstream")
			return model.Inventory{}, err
		case errors.Is(err, ErrUnavailable):
			metrics.RecordFetchAttempt("unavailable")
		default:
			metrics.RecordFetchAttempt("error")
		}

		lastErr = err
		log.Warn(ctx, "inventory fetch attempt failed", logger.Int("attempt", attempt+1), logger.Error(err))
		if last {
			break
		}
		if err := c.clock.Sleep(ctx, c.baseDelay*time.Duration(attempt+1)); err != nil {
			return model.Inventory{}, err
		}
	}

	if lastErr == nil || errors.Is(lastErr, errRateLimited) {
		return model.Inventory{}, fmt.Errorf("%w after %d attempts", ErrRetrievalExhausted, c.maxAttempts)
	}
	return model.Inventory{}, fmt.Errorf("%w: %w", ErrRetrievalExhausted, lastErr)
}

func (c *Client) endpoint(accountID string, gameID, contextID int64, pageSize int) string {
	q := url.Values{}
	q.Set("l", "english")
	q.Set("count", strconv.Itoa(pageSize))
	return c.baseURL + "/" + url.PathEscape(accountID) + "/" +
		strconv.FormatInt(gameID, 10) + "/" + strconv.FormatInt(contextID, 10) + "?" + q.Encode()
}

func (c *Client) attempt(ctx context.Context, hc *http.Client, endpoint string) (model.Inventory, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Inventory{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := hc.Do(req)
	if err != nil {
		return model.Inventory{}, fmt.Errorf("request inventory: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return model.Inventory{}, errRateLimited
	case http.StatusForbidden:
		return model.Inventory{}, ErrPrivateInventory
	default:
		return model.Inventory{}, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.Inventory{}, fmt.Errorf("read inventory body: %w", err)
	}
	return decodeInventory(body)
}

type inventoryResponse struct {
	Success      json.RawMessage     `json:"success"`
	Assets       []model.Item        `json:"assets"`
	Descriptions []model.Description `json:"descriptions"`
	MoreItems    json.RawMessage     `json:"more_items"`
	ErrorUpper   string              `json:"Error"`
	ErrorLower   string              `json:"error"`
}

// decodeInventory maps a 200 body to a result. success may be 1 or true.
func decodeInventory(body []byte) (model.Inventory, error) {
	var r inventoryResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return model.Inventory{}, fmt.Errorf("decode inventory: %w", err)
	}
	if !truthy(r.Success) {
		if msg := firstNonEmpty(r.ErrorUpper, r.ErrorLower); msg != "" {
			return model.Inventory{}, fmt.Errorf("%w: %s", ErrUpstream, msg)
		}
		// empty or never-populated inventory
		return model.Inventory{}, nil
	}
	return model.Inventory{
		Assets:       r.Assets,
		Descriptions: r.Descriptions,
		MoreItems:    truthy(r.MoreItems),
	}, nil
}

func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return bytes.Equal(v, []byte("1")) || bytes.Equal(v, []byte("true"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
