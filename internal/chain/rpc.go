package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type RPCClient struct {
	baseURL string
	client  *http.Client
}

func NewRPCClient(baseURL string) *RPCClient {
	return &RPCClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *RPCClient) LatestHeight(ctx context.Context) (int64, error) {
	endpoint := c.baseURL + "/status"
	var resp statusResponse
	if err := c.getJSON(ctx, "status", endpoint, &resp); err != nil {
		return 0, err
	}
	h, err := parseInt64(resp.Result.SyncInfo.LatestBlockHeight)
	if err != nil {
		return 0, Retryable("status", err)
	}
	return h, nil
}

func (c *RPCClient) GetBalance(ctx context.Context, accountID string) (string, error) {
	endpoint := c.baseURL + "/accounts/" + url.PathEscape(accountID) + "/balance"
	var resp balanceResponse
	if err := c.getJSON(ctx, "get_balance", endpoint, &resp); err != nil {
		return "", err
	}
	if resp.Amount == "" {
		return "", Retryable("get_balance", errors.New("empty amount in balance response"))
	}
	return resp.Amount, nil
}

func (c *RPCClient) ExecuteContract(ctx context.Context, req ExecuteRequest) (*Receipt, error) {
	body := executeContractRequest{
		AccountID:        req.AccountID,
		Credential:       req.Credential,
		ContractID:       req.ContractID,
		Function:         req.Function,
		Params:           req.Params,
		GasLimit:         req.GasLimit,
		IdempotencyToken: req.IdempotencyToken,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, Fatal("execute_contract", err)
	}

	endpoint := c.baseURL + "/contracts/execute"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, Retryable("execute_contract", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// The request was handed to the transport; a timeout here does not
		// prove the tx never landed.
		return nil, classifyTransport("execute_contract", err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out executeContractResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, Unknown("execute_contract", err)
		}
		height, _ := parseInt64(out.Height)
		return &Receipt{TxHash: out.TxHash, Height: height}, nil
	}

	raw, _ := io.ReadAll(resp.Body)
	var gwErr gatewayError
	_ = json.Unmarshal(raw, &gwErr)
	msg := strings.TrimSpace(gwErr.Message)
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}

	err = fmt.Errorf("gateway status %d: %s", resp.StatusCode, msg)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Contract revert, insufficient funds, bad params: the chain said no.
		return nil, Fatal("execute_contract", err)
	}
	return nil, Retryable("execute_contract", err)
}

func (c *RPCClient) FindTransaction(ctx context.Context, token string) (*Tx, error) {
	u, err := url.Parse(c.baseURL + "/tx_search")
	if err != nil {
		return nil, Retryable("tx_search", err)
	}
	values := url.Values{}
	// Tendermint/CometBFT docs use query="...".
	values.Set("query", "\"settlement.idempotency_token='"+token+"'\"")
	values.Set("prove", "false")
	values.Set("page", "1")
	values.Set("per_page", "1")
	values.Set("order_by", "\"desc\"")
	u.RawQuery = values.Encode()

	var resp txSearchResponse
	if err := c.getJSON(ctx, "tx_search", u.String(), &resp); err != nil {
		return nil, err
	}

	total, err := parseInt64(resp.Result.TotalCount)
	if err != nil {
		return nil, Retryable("tx_search", err)
	}
	if total == 0 || len(resp.Result.Txs) == 0 {
		return nil, nil
	}

	tx := resp.Result.Txs[0]
	height, err := parseInt64(tx.Height)
	if err != nil {
		return nil, Retryable("tx_search", err)
	}
	timestamp, _ := time.Parse(time.RFC3339, tx.Timestamp)
	return &Tx{
		Hash:      tx.Hash,
		Height:    height,
		Code:      tx.TxResult.Code,
		Events:    decodeEvents(tx.TxResult.Events),
		Timestamp: timestamp,
	}, nil
}

func (c *RPCClient) getJSON(ctx context.Context, op, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Retryable(op, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransport(op, err, false)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return Retryable(op, fmt.Errorf("rpc http status %d: %s", resp.StatusCode, msg))
		}
		return Retryable(op, fmt.Errorf("rpc http status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Retryable(op, err)
	}
	return nil
}

func parseInt64(v string) (int64, error) {
	if v == "" {
		return 0, errors.New("empty int string")
	}
	return strconv.ParseInt(v, 10, 64)
}

func decodeEvents(events []rpcEvent) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		e := Event{Type: ev.Type}
		for _, attr := range ev.Attributes {
			e.Attributes = append(e.Attributes, Attribute{
				Key:   decodeMaybeBase64(attr.Key),
				Value: decodeMaybeBase64(attr.Value),
			})
		}
		out = append(out, e)
	}
	return out
}

func decodeMaybeBase64(v string) string {
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return v
	}
	if isMostlyPrintable(b) {
		return string(b)
	}
	return v
}

func isMostlyPrintable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	printable := 0
	for _, c := range b {
		if c >= 32 && c <= 126 {
			printable++
		}
	}
	return printable*100/len(b) >= 80
}

// Gateway request/response types

type executeContractRequest struct {
	AccountID        string         `json:"account_id"`
	Credential       string         `json:"credential"`
	ContractID       string         `json:"contract_id"`
	Function         string         `json:"function"`
	Params           map[string]any `json:"params"`
	GasLimit         int64          `json:"gas_limit"`
	IdempotencyToken string         `json:"idempotency_token"`
}

type executeContractResponse struct {
	TxHash string `json:"tx_hash"`
	Height string `json:"height"`
}

type gatewayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type balanceResponse struct {
	Amount string `json:"amount"`
	Denom  string `json:"denom"`
}

type statusResponse struct {
	Result struct {
		SyncInfo struct {
			LatestBlockHeight string `json:"latest_block_height"`
		} `json:"sync_info"`
	} `json:"result"`
}

type txSearchResponse struct {
	Result struct {
		TotalCount string  `json:"total_count"`
		Txs        []rpcTx `json:"txs"`
	} `json:"result"`
}

type rpcTx struct {
	Hash      string      `json:"hash"`
	Height    string      `json:"height"`
	Timestamp string      `json:"timestamp"`
	TxResult  rpcTxResult `json:"tx_result"`
}

type rpcTxResult struct {
	Code   int        `json:"code"`
	Events []rpcEvent `json:"events"`
}

type rpcEvent struct {
	Type       string         `json:"type"`
	Attributes []rpcAttribute `json:"attributes"`
}

type rpcAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
