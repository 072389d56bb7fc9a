package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/poolhand/payoutd/pkg/helpers"
)

// Daemon error codes worth distinguishing.
const (
	rpcWalletInsufficientFunds = -6
	rpcInvalidAddressOrKey     = -5
)

// unlockSeconds is how long the wallet stays unlocked around a send.
const unlockSeconds = 30

// CoinRPC implements Gateway over a coin daemon's JSON-RPC interface
// (bitcoind lineage: getinfo, getbalance, sendmany, gettransaction).
type CoinRPC struct {
	rpcURL     string
	rpcUser    string
	rpcPass    string
	walletPass string
	httpClient *http.Client
	requestID  atomic.Uint64
}

var _ Gateway = (*CoinRPC)(nil)

// NewCoinRPC creates a gateway for the daemon at rpcURL. walletPass may be
// empty for unencrypted wallets.
func NewCoinRPC(rpcURL, user, pass, walletPass string) *CoinRPC {
	return &CoinRPC{
		rpcURL:     rpcURL,
		rpcUser:    user,
		rpcPass:    pass,
		walletPass: walletPass,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Poke implements Gateway.
func (c *CoinRPC) Poke(ctx context.Context) error {
	_, err := c.call(ctx, "getinfo", []interface{}{})
	return err
}

// Balance implements Gateway.
func (c *CoinRPC) Balance(ctx context.Context, account string) (uint64, error) {
	params := []interface{}{}
	if account != "" {
		params = append(params, account)
	}

	result, err := c.call(ctx, "getbalance", params)
	if err != nil {
		return 0, err
	}

	return parseAmount(result)
}

// SendMany implements Gateway. The transaction metadata is looked up after
// broadcast and is nil when that lookup fails; the send itself already
// happened at that point.
func (c *CoinRPC) SendMany(ctx context.Context, account string, recipients map[string]uint64) (string, *TxMeta, error) {
	if len(recipients) == 0 {
		return "", nil, fmt.Errorf("empty recipient set")
	}

	// Amounts cross the wire as exact decimal literals, never floats.
	amounts := make(map[string]json.RawMessage, len(recipients))
	for address, sats := range recipients {
		amounts[address] = json.RawMessage(helpers.SatsToCoin(sats))
	}

	if c.walletPass != "" {
		if _, err := c.call(ctx, "walletpassphrase", []interface{}{c.walletPass, unlockSeconds}); err != nil {
			return "", nil, fmt.Errorf("wallet unlock failed: %w", err)
		}
		defer c.call(ctx, "walletlock", []interface{}{})
	}

	result, err := c.call(ctx, "sendmany", []interface{}{account, amounts})
	if err != nil {
		return "", nil, err
	}

	var txid string
	if err := json.Unmarshal(result, &txid); err != nil {
		return "", nil, fmt.Errorf("failed to parse sendmany result: %w", err)
	}

	var meta *TxMeta
	if info, err := c.GetTransaction(ctx, txid); err == nil {
		meta = &TxMeta{Fee: info.Fee, Time: info.Time}
	}
	return txid, meta, nil
}

// GetTransaction implements Gateway.
func (c *CoinRPC) GetTransaction(ctx context.Context, txid string) (*TxInfo, error) {
	result, err := c.call(ctx, "gettransaction", []interface{}{txid})
	if err != nil {
		return nil, err
	}

	var tx struct {
		TxID          string      `json:"txid"`
		Confirmations int64       `json:"confirmations"`
		Fee           json.Number `json:"fee"`
		Time          int64       `json:"time"`
	}
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("failed to parse gettransaction result: %w", err)
	}
	if tx.TxID == "" {
		tx.TxID = txid
	}

	return &TxInfo{
		TxID:          tx.TxID,
		Confirmations: tx.Confirmations,
		Fee:           tx.Fee.String(),
		Time:          tx.Time,
	}, nil
}

// parseAmount converts a JSON coin amount into satoshis.
func parseAmount(raw json.RawMessage) (uint64, error) {
	s := string(bytes.TrimSpace(raw))
	if s == "" || s == "null" {
		return 0, fmt.Errorf("daemon returned no amount")
	}
	sats, err := helpers.CoinToSats(s)
	if err != nil {
		return 0, fmt.Errorf("unparseable daemon amount %q: %w", s, err)
	}
	return sats, nil
}

func (c *CoinRPC) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := c.requestID.Add(1)

	request := map[string]interface{}{
		"jsonrpc": "1.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.rpcUser, c.rpcPass)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	// Daemons report RPC errors on non-200 statuses too; the body shape
	// is the same, so decode before judging the status.
	var response struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("daemon status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		}
		return nil, fmt.Errorf("failed to parse daemon response: %w", err)
	}

	if response.Error != nil {
		switch response.Error.Code {
		case rpcWalletInsufficientFunds:
			return nil, fmt.Errorf("%w: %s", ErrInsufficientFunds, response.Error.Message)
		case rpcInvalidAddressOrKey:
			return nil, fmt.Errorf("%w: %s", ErrTxNotFound, response.Error.Message)
		default:
			return nil, &RPCError{Code: response.Error.Code, Message: response.Error.Message}
		}
	}

	return response.Result, nil
}
