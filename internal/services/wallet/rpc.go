package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"blocktix/internal/status"
	"blocktix/models"
	"blocktix/utils"

	"github.com/shopspring/decimal"
)

// codeUserRejected is the EIP-1193 code for a request the user declined.
const codeUserRejected = 4001

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type sendTx struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// RPC talks JSON-RPC to a wallet node that signs on behalf of its accounts.
type RPC struct {
	// url is the JSON-RPC endpoint.
	url string

	// timeout bounds a single wallet interaction, approval included.
	timeout time.Duration

	// breaker stops hammering a node that keeps failing.
	breaker *utils.CircuitBreaker

	// hc is the http client.
	hc *http.Client

	nextID atomic.Int64
}

func NewRPC(url string, timeout time.Duration) *RPC {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &RPC{
		url:     url,
		timeout: timeout,
		breaker: utils.NewCircuitBreaker("wallet-rpc"),
		hc:      &http.Client{},
	}
}

func (c *RPC) Pay(ctx context.Context, from, to string, amount decimal.Decimal) (*models.Payment, error) {
	value, err := ToWeiHex(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrPaymentRejected, err)
	}

	var txHash string
	tx := sendTx{From: from, To: to, Value: value}
	if err := c.call(ctx, "eth_sendTransaction", []any{tx}, &txHash); err != nil {
		slog.Warn("Wallet payment failed", "from", from, "to", to, "amount", amount.String(), "error", err)
		return nil, err
	}

	slog.Info("Wallet payment confirmed", "tx_hash", txHash, "from", from, "to", to, "amount", amount.String())
	return &models.Payment{
		TxHash:      txHash,
		From:        from,
		To:          to,
		Amount:      amount,
		ConfirmedAt: time.Now(),
	}, nil
}

func (c *RPC) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	var quantity string
	if err := c.call(ctx, "eth_getBalance", []any{address, "latest"}, &quantity); err != nil {
		return decimal.Zero, err
	}
	return FromWeiHex(quantity)
}

// call performs one JSON-RPC round trip. Errors answered by the wallet map to
// status.ErrPaymentRejected, everything else to status.ErrPaymentUnavailable.
func (c *RPC) call(ctx context.Context, method string, params []any, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", method, err)
	}

	var reply rpcResponse
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("http.NewReq: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("http.Do: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http status %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
			return fmt.Errorf("json.Decode: %w", err)
		}
		return nil
	})
	if errors.Is(err, utils.ErrCircuitOpen) {
		slog.Warn("Circuit breaker open", "breaker", c.breaker.Name(), "method", method)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", status.ErrPaymentUnavailable, method, err)
	}

	if reply.Error != nil {
		if reply.Error.Code == codeUserRejected {
			return fmt.Errorf("%w: user rejected the request", status.ErrPaymentRejected)
		}
		return fmt.Errorf("%w: %s: %v", status.ErrPaymentRejected, method, reply.Error)
	}

	if err := json.Unmarshal(reply.Result, result); err != nil {
		return fmt.Errorf("%w: %s: decode result: %v", status.ErrPaymentUnavailable, method, err)
	}
	return nil
}
