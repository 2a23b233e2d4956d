// Package jupiter is a client for the Jupiter v6 quote and swap-build API.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"solana-buyback-relay/internal/observability"
)

// DefaultBaseURL is the public Jupiter v6 endpoint.
const DefaultBaseURL = "https://quote-api.jup.ag/v6"

// DefaultTimeout bounds quote and swap-build requests.
const DefaultTimeout = 15 * time.Second

// Quoter defines the swap aggregator interface used by the executor.
type Quoter interface {
	// GetQuote requests a price quote for swapping amount (in the input
	// mint's base units) of inputMint into outputMint.
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error)

	// BuildSwapTransaction requests a ready-to-sign transaction for a
	// quote, payable by payerAddress. Returns the serialized transaction.
	BuildSwapTransaction(ctx context.Context, quote *Quote, payerAddress string) ([]byte, error)
}

// Quote is a Jupiter price quote. Raw carries the full quote payload,
// which the swap-build endpoint expects back verbatim.
type Quote struct {
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	Raw        json.RawMessage
}

// Client implements Quoter over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a Jupiter API client. An empty baseURL selects the
// public v6 endpoint.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Quoter = (*Client)(nil)

// quoteResponse mirrors the fields of the v6 quote payload we read;
// the rest rides along in Quote.Raw.
type quoteResponse struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	Error      string `json:"error"`
}

// GetQuote requests a price quote.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	start := time.Now()
	defer func() {
		observability.RecordJupiterLatency("quote", time.Since(start).Seconds())
	}()

	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	body, err := c.get(ctx, "/quote?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal quote: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("quote error: %s", resp.Error)
	}
	if resp.OutAmount == "" {
		return nil, fmt.Errorf("quote missing outAmount")
	}

	outAmount, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse outAmount %q: %w", resp.OutAmount, err)
	}

	var inAmount uint64
	if resp.InAmount != "" {
		inAmount, err = strconv.ParseUint(resp.InAmount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse inAmount %q: %w", resp.InAmount, err)
		}
	}

	return &Quote{
		InputMint:  resp.InputMint,
		OutputMint: resp.OutputMint,
		InAmount:   inAmount,
		OutAmount:  outAmount,
		Raw:        json.RawMessage(body),
	}, nil
}

// swapRequest is the v6 swap-build request body.
type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

// swapResponse is the v6 swap-build response body.
type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
	Error           string `json:"error"`
}

// BuildSwapTransaction requests a ready-to-sign transaction for a quote.
func (c *Client) BuildSwapTransaction(ctx context.Context, quote *Quote, payerAddress string) ([]byte, error) {
	start := time.Now()
	defer func() {
		observability.RecordJupiterLatency("swap", time.Since(start).Seconds())
	}()

	reqBody, err := json.Marshal(swapRequest{
		QuoteResponse:    quote.Raw,
		UserPublicKey:    payerAddress,
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	body, err := c.post(ctx, "/swap", reqBody)
	if err != nil {
		return nil, err
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal swap response: %w", err)
	}
	if resp.SwapTransaction == "" {
		if resp.Error != "" {
			return nil, fmt.Errorf("swap error: %s", resp.Error)
		}
		return nil, fmt.Errorf("swap response missing transaction")
	}

	tx, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}

	return tx, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// Error payloads come back with non-2xx status and a JSON body;
	// surface the body so callers can log the aggregator's message.
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
