package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	sendDescription      = "Reward for USDC purchase"
	sendPriorityLevel    = "regular"
	maxResponseBodyBytes = 1 << 20
)

// Error describes a failed payout provider call. StatusCode mirrors the
// provider's HTTP status when one was received, 500 otherwise; Details
// carries the provider's raw error payload or the transport error message.
type Error struct {
	Message    string
	StatusCode int
	Details    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: status=%d", e.Message, e.StatusCode)
}

// SendRequest describes a reward payout submission. Amount is denominated in
// the source currency; conversion to the smallest unit happens inside the
// client.
type SendRequest struct {
	PayoutAddress string
	Amount        float64
	ContactRef    string
}

// SendReceipt is the provider's description of a submitted payment.
type SendReceipt struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Address   string `json:"address"`
}

// SendResponse is the provider response for a payment submission. Raw holds
// the unmodified response body for passthrough to callers.
type SendResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    SendReceipt     `json:"data"`
	Raw     json.RawMessage `json:"-"`
}

// Client is the payout provider surface the reward workflow depends on.
type Client interface {
	Send(ctx context.Context, req SendRequest) (*SendResponse, error)
	ListWallets(ctx context.Context) (json.RawMessage, error)
	WalletBalance(ctx context.Context) (float64, error)
}

// HTTPClient implements Client against the provider's HTTP API with bearer
// token authentication.
type HTTPClient struct {
	baseURL string
	apiKey  string
	btcRate float64
	http    *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient constructs a provider client. btcRate is the fixed
// source-currency to BTC conversion rate applied before submission.
func NewHTTPClient(baseURL, apiKey string, btcRate float64, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		btcRate: btcRate,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

type sendPayload struct {
	Satoshis      int64  `json:"satoshis"`
	Address       string `json:"address"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	Description   string `json:"description"`
	PriorityLevel string `json:"priorityLevel"`
}

// Send converts the amount to satoshis and submits a payment request. The
// call is at-most-once: failures surface as *Error with no internal retry.
func (c *HTTPClient) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	if strings.TrimSpace(req.PayoutAddress) == "" {
		return nil, &Error{Message: "payout address required", StatusCode: http.StatusInternalServerError}
	}
	sats, err := Satoshis(req.Amount, c.btcRate)
	if err != nil {
		return nil, &Error{Message: err.Error(), StatusCode: http.StatusInternalServerError}
	}

	payload := sendPayload{
		Satoshis:      sats,
		Address:       req.PayoutAddress,
		CustomerEmail: req.ContactRef,
		Description:   sendDescription,
		PriorityLevel: sendPriorityLevel,
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/send_bitcoin", payload)
	if err != nil {
		return nil, err
	}

	resp := &SendResponse{Raw: body}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, &Error{
			Message:    "malformed provider response",
			StatusCode: http.StatusInternalServerError,
			Details:    err.Error(),
		}
	}
	return resp, nil
}

// ListWallets returns the provider wallet list verbatim.
func (c *HTTPClient) ListWallets(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/wallets", nil)
}

// WalletBalance reads the primary wallet balance from the provider.
func (c *HTTPClient) WalletBalance(ctx context.Context) (float64, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/wallets", nil)
	if err != nil {
		return 0, err
	}
	var parsed struct {
		Data struct {
			Balance *float64 `json:"balance"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Data.Balance == nil {
		return 0, &Error{
			Message:    "malformed wallet balance response",
			StatusCode: http.StatusInternalServerError,
			Details:    string(body),
		}
	}
	return *parsed.Data.Balance, nil
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error) {
	if c == nil {
		return nil, &Error{Message: "payout client not configured", StatusCode: http.StatusInternalServerError}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Message: "payout request aborted", StatusCode: http.StatusInternalServerError, Details: err.Error()}
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Message: "encode payout request", StatusCode: http.StatusInternalServerError, Details: err.Error()}
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &Error{Message: "build payout request", StatusCode: http.StatusInternalServerError, Details: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{
			Message:    fmt.Sprintf("payout provider %s unreachable", path),
			StatusCode: http.StatusInternalServerError,
			Details:    err.Error(),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, &Error{
			Message:    fmt.Sprintf("read payout provider response for %s", path),
			StatusCode: http.StatusInternalServerError,
			Details:    err.Error(),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Message:    fmt.Sprintf("payout provider %s failed", path),
			StatusCode: resp.StatusCode,
			Details:    strings.TrimSpace(string(raw)),
		}
	}
	return raw, nil
}
