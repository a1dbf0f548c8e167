// Package indexer is a thin retrying HTTP client over an esplora-style
// transaction lookup API (mempool.space compatible).
//
// Every call reflects current indexer state: no caching. The fixed-interval
// retry policy absorbs propagation lag and transient HTTP failures.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/privilegehq/satsgate/internal/retry"
)

// ErrUnreachable is returned when the retry budget is exhausted without a
// successful response. The operation may be retried by the caller later.
var ErrUnreachable = errors.New("indexer unreachable")

// ErrMalformedResponse is returned when the indexer answers 200 with a body
// that cannot be parsed. This is escalated as-is rather than folded into
// ErrUnreachable: it indicates a broken indexer, not propagation lag.
var ErrMalformedResponse = errors.New("malformed indexer response")

const (
	// DefaultAttempts and DefaultInterval define the shared retry policy
	// for both lookup endpoints.
	DefaultAttempts = 10
	DefaultInterval = 800 * time.Millisecond
)

// Client talks to the external ledger indexer.
type Client struct {
	baseURL string
	httpc   *http.Client
	policy  retry.Policy
	logger  *slog.Logger
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (for testing)
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithRetry overrides the default retry policy
func WithRetry(attempts int, interval time.Duration) Option {
	return func(c *Client) {
		c.policy = retry.Policy{Attempts: attempts, Interval: interval}
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates an indexer client for the given base URL
// (e.g. "https://mempool.staging.midl.xyz").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		policy:  retry.Policy{Attempts: DefaultAttempts, Interval: DefaultInterval},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transaction fetches a single transaction by id.
// All attempts failing (including 404s, which the indexer returns while a
// transaction has not propagated yet) yields ErrUnreachable.
func (c *Client) Transaction(ctx context.Context, txid string) (*Transaction, error) {
	var tx Transaction
	if err := c.getJSON(ctx, fmt.Sprintf("%s/api/tx/%s", c.baseURL, txid), "tx", &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// AddressTransactions fetches recent transactions (confirmed and mempool)
// paying to the given address.
func (c *Client) AddressTransactions(ctx context.Context, address string) ([]Transaction, error) {
	var txs []Transaction
	if err := c.getJSON(ctx, fmt.Sprintf("%s/api/address/%s/txs", c.baseURL, address), "address_txs", &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *Client) getJSON(ctx context.Context, url, endpoint string, out interface{}) error {
	start := time.Now()
	err := c.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Cache-Control", "no-store")

		resp, err := c.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("indexer request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("indexer returned %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			// A 200 with a body we cannot parse is not propagation lag;
			// retrying will not help.
			return retry.Permanent(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
		}
		return nil
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("indexer lookup failed", "endpoint", endpoint, "error", err)
		if errors.Is(err, ErrMalformedResponse) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return nil
}
