// Package signer talks to the external signing agent over HTTP.
//
// Submissions are asynchronous: the agent accepts a payment request and
// later reports completion to a callback URL we host. The callback router
// matches those reports back to the in-flight submission by request ID.
package signer

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/privilegehq/satsgate/internal/settlement"
)

// Recipient is one output of the requested transfer.
type Recipient struct {
	Address    string `json:"address"`
	AmountSats int64  `json:"amountSats"`
}

// Request is the payload posted to the signing agent.
type Request struct {
	RequestID     string      `json:"requestId"`
	Network       string      `json:"network"`
	SenderAddress string      `json:"senderAddress"`
	Recipients    []Recipient `json:"recipients"`
	CallbackURL   string      `json:"callbackUrl"`
}

// Client submits payment intents to the signing agent and routes its
// completion callbacks. It implements settlement.Signer.
type Client struct {
	agentURL    string
	callbackURL string
	network     string
	http        *http.Client
	router      *CallbackRouter
	logger      *slog.Logger
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Client) { s.http = c }
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Client) { s.logger = logger }
}

// New creates a signing agent client. callbackURL is the externally
// reachable URL of the callback endpoint served by Router().
func New(agentURL, callbackURL, network string, opts ...Option) *Client {
	c := &Client{
		agentURL:    agentURL,
		callbackURL: callbackURL,
		network:     network,
		http:        &http.Client{Timeout: 15 * time.Second},
		router:      NewCallbackRouter(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.router.logger = c.logger
	return c
}

// Router returns the callback router that must be mounted at the path the
// configured callback URL points to.
func (c *Client) Router() *CallbackRouter {
	return c.router
}

// Submit posts the intent to the signing agent. A non-2xx response or a
// transport failure is a synchronous submission failure; completion arrives
// later through the callback router.
func (c *Client) Submit(ctx context.Context, intent settlement.PaymentIntent, cb settlement.Callbacks) error {
	requestID := newRequestID()
	c.router.register(requestID, cb)

	req := Request{
		RequestID:     requestID,
		Network:       c.network,
		SenderAddress: intent.SenderAddress,
		Recipients: []Recipient{
			{Address: intent.RecipientAddress, AmountSats: intent.AmountSats},
		},
		CallbackURL: c.callbackURL,
	}

	body, err := json.Marshal(req)
	if err != nil {
		c.router.drop(requestID)
		return fmt.Errorf("encode signer request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.agentURL+"/sign", bytes.NewReader(body))
	if err != nil {
		c.router.drop(requestID)
		return fmt.Errorf("build signer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.router.drop(requestID)
		submitTotal.WithLabelValues("transport_error").Inc()
		return fmt.Errorf("signer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.router.drop(requestID)
		submitTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("signer rejected submission: status %d", resp.StatusCode)
	}

	submitTotal.WithLabelValues("accepted").Inc()
	c.logger.Info("payment submitted to signer",
		"requestID", requestID,
		"sender", intent.SenderAddress,
		"amountSats", intent.AmountSats,
	)
	return nil
}

func newRequestID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return "req_" + hex.EncodeToString(b)
}
