package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// ErrTransactionNotFound indicates the ledger has no finalized transaction
// for the requested signature.
var ErrTransactionNotFound = errors.New("ledger: transaction not found")

// ErrUnknownMessageEncoding indicates the transaction message exposed neither
// the legacy nor the versioned participant list.
var ErrUnknownMessageEncoding = errors.New("ledger: unknown transaction message encoding")

// ErrNoTokenAccount indicates the owner holds no token account for the
// configured mint.
var ErrNoTokenAccount = errors.New("ledger: no token account for owner")

// Client is a minimal JSON-RPC client against a Solana-compatible read API.
type Client struct {
	baseURL string
	http    *http.Client
	nextID  atomic.Int64
}

// NewClient constructs a ledger client with sane defaults.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Message is the tagged union of legacy and versioned transaction message
// encodings. Legacy messages expose accountKeys, versioned messages expose
// staticAccountKeys; both normalize to one participant list.
type Message struct {
	AccountKeys       []string `json:"accountKeys"`
	StaticAccountKeys []string `json:"staticAccountKeys"`
}

// Participants returns the canonical address list regardless of encoding.
func (m Message) Participants() ([]string, error) {
	switch {
	case len(m.AccountKeys) > 0:
		return m.AccountKeys, nil
	case len(m.StaticAccountKeys) > 0:
		return m.StaticAccountKeys, nil
	}
	return nil, ErrUnknownMessageEncoding
}

// Transaction captures the subset of a finalized ledger transaction the
// service inspects.
type Transaction struct {
	Slot        uint64 `json:"slot"`
	BlockTime   *int64 `json:"blockTime"`
	Transaction struct {
		Message    Message  `json:"message"`
		Signatures []string `json:"signatures"`
	} `json:"transaction"`
	Meta *struct {
		Err json.RawMessage `json:"err"`
	} `json:"meta"`
}

// GetTransaction fetches a finalized transaction by signature. Both legacy
// and versioned message encodings are accepted.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
			"encoding":                       "json",
		},
	}
	var result json.RawMessage
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, ErrTransactionNotFound
	}
	var tx Transaction
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("ledger: decode transaction: %w", err)
	}
	return &tx, nil
}

type tokenAccountsResult struct {
	Value []struct {
		Pubkey string `json:"pubkey"`
	} `json:"value"`
}

type tokenBalanceResult struct {
	Value struct {
		Amount   string   `json:"amount"`
		Decimals int      `json:"decimals"`
		UIAmount *float64 `json:"uiAmount"`
	} `json:"value"`
}

// TokenBalanceByOwner resolves the owner's token account for the given mint
// and returns its balance in whole token units.
func (c *Client) TokenBalanceByOwner(ctx context.Context, owner, mint string) (float64, error) {
	params := []interface{}{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "base64"},
	}
	var accounts tokenAccountsResult
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &accounts); err != nil {
		return 0, err
	}
	if len(accounts.Value) == 0 {
		return 0, ErrNoTokenAccount
	}

	var balance tokenBalanceResult
	if err := c.call(ctx, "getTokenAccountBalance", []interface{}{accounts.Value[0].Pubkey}, &balance); err != nil {
		return 0, err
	}
	if balance.Value.UIAmount != nil {
		return *balance.Value.UIAmount, nil
	}
	var amount float64
	if _, err := fmt.Sscanf(balance.Value.Amount, "%f", &amount); err != nil {
		return 0, fmt.Errorf("ledger: malformed token amount %q", balance.Value.Amount)
	}
	for i := 0; i < balance.Value.Decimals; i++ {
		amount /= 10
	}
	return amount, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := c.nextID.Add(1)
	bodyStruct := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	buf, err := json.Marshal(bodyStruct)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger rpc %s failed: status=%d", method, resp.StatusCode)
	}
	var rpcResp struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("ledger rpc error: %s", rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = rpcResp.Result
		return nil
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return fmt.Errorf("ledger rpc %s returned empty result", method)
	}
	return json.Unmarshal(rpcResp.Result, out)
}
