// Package solana is the ledger oracle adapter: a minimal JSON-RPC client for
// the parts of the Solana RPC surface the paywall needs — fetching a finalized
// transaction's effects and resolving an SPL mint's decimals.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/punchamoorthee/x402gate/internal/domain"
)

// Client talks JSON-RPC 2.0 to a Solana node. Mint decimals are cached after
// the first successful fetch; a mint's decimals never change.
type Client struct {
	rpcURL string
	mint   string
	http   *http.Client
	nextID atomic.Int64

	mu           sync.Mutex
	decimals     uint8
	haveDecimals bool
}

func NewClient(rpcURL, mint string) *Client {
	return &Client{
		rpcURL: rpcURL,
		mint:   mint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetTransaction fetches a confirmed transaction by signature. Returns
// domain.ErrTransactionNotFound when the node has no record of it.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []interface{}{signature, map[string]interface{}{
		"encoding":                       "jsonParsed",
		"commitment":                     "confirmed",
		"maxSupportedTransactionVersion": 0,
	}}
	var result json.RawMessage
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, domain.ErrTransactionNotFound
	}
	var tx Transaction
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("%w: malformed getTransaction result: %v", domain.ErrOracleUnavailable, err)
	}
	return &tx, nil
}

// MintDecimals resolves the configured mint's decimal scale.
func (c *Client) MintDecimals(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	if c.haveDecimals {
		d := c.decimals
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	params := []interface{}{c.mint, map[string]interface{}{"encoding": "jsonParsed"}}
	var result struct {
		Value *struct {
			Data struct {
				Parsed struct {
					Info struct {
						Decimals uint8 `json:"decimals"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return 0, err
	}
	if result.Value == nil {
		return 0, fmt.Errorf("%w: mint account %s not found", domain.ErrOracleUnavailable, c.mint)
	}

	c.mu.Lock()
	c.decimals = result.Value.Data.Parsed.Info.Decimals
	c.haveDecimals = true
	d := c.decimals
	c.mu.Unlock()
	return d, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := c.nextID.Add(1)
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrOracleUnavailable, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", domain.ErrOracleUnavailable, method, resp.StatusCode)
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
		return fmt.Errorf("%w: %s: %v", domain.ErrOracleUnavailable, method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s: %s", domain.ErrOracleUnavailable, method, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = rpcResp.Result
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("%w: %s returned empty result", domain.ErrOracleUnavailable, method)
	}
	return json.Unmarshal(rpcResp.Result, out)
}
