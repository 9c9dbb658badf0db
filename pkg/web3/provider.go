// Package web3 把 Connect 暴露为以太坊 JSON-RPC provider：
// 账户与交易相关的方法走带外签名，其余方法透传到 RPC 节点。
package web3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aegis-sign/connect/pkg/dispatch"
	"github.com/aegis-sign/connect/pkg/requesturi"
)

// Accounts 是 provider 依赖的带外签名能力，由 connect.Connect 实现。
type Accounts interface {
	RequestAddress(ctx context.Context, override dispatch.Handler) (string, error)
	SendTransaction(ctx context.Context, tx requesturi.Intent, override dispatch.Handler) (string, error)
}

// Config 控制 provider 行为。
type Config struct {
	RPCURL string
	Client *http.Client
	Logger *slog.Logger
}

// Request 是 JSON-RPC 2.0 请求。
type Request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id,omitempty"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
}

// Response 是 JSON-RPC 2.0 响应。
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError 是节点返回的 JSON-RPC 错误。
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Provider 绑定到某个 Accounts 实例。
type Provider struct {
	accounts Accounts
	rpcURL   string
	client   *http.Client
	logger   *slog.Logger

	mu      sync.Mutex
	address string
}

// New 构造 Provider。
func New(accounts Accounts, cfg Config) *Provider {
	if accounts == nil {
		panic("web3 accounts are required")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{accounts: accounts, rpcURL: cfg.RPCURL, client: client, logger: logger}
}

// RPCURL 返回透传的节点地址。
func (p *Provider) RPCURL() string { return p.rpcURL }

// RequestAddress 请求用户地址，成功后缓存。
func (p *Provider) RequestAddress(ctx context.Context, override dispatch.Handler) (string, error) {
	p.mu.Lock()
	cached := p.address
	p.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	address, err := p.accounts.RequestAddress(ctx, override)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.address = address
	p.mu.Unlock()
	return address, nil
}

// SendTransaction 通过带外签名发送交易。
func (p *Provider) SendTransaction(ctx context.Context, tx requesturi.Intent, override dispatch.Handler) (string, error) {
	return p.accounts.SendTransaction(ctx, tx, override)
}

type txParams struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Data     string `json:"data"`
	Function string `json:"function"`
}

// Send 处理一次 JSON-RPC 调用。
func (p *Provider) Send(ctx context.Context, req Request) (*Response, error) {
	switch req.Method {
	case "eth_coinbase":
		address, err := p.RequestAddress(ctx, nil)
		if err != nil {
			return nil, err
		}
		return result(req, address)
	case "eth_accounts":
		address, err := p.RequestAddress(ctx, nil)
		if err != nil {
			return nil, err
		}
		return result(req, []string{address})
	case "eth_sendTransaction":
		if len(req.Params) == 0 {
			return nil, errors.New("eth_sendTransaction requires a transaction object")
		}
		var tx txParams
		if err := json.Unmarshal(req.Params[0], &tx); err != nil {
			return nil, fmt.Errorf("decoding transaction: %w", err)
		}
		hash, err := p.SendTransaction(ctx, requesturi.Intent{
			To:       tx.To,
			Value:    tx.Value,
			Data:     tx.Data,
			Function: tx.Function,
		}, nil)
		if err != nil {
			return nil, err
		}
		return result(req, hash)
	default:
		return p.forward(ctx, req)
	}
}

func (p *Provider) forward(ctx context.Context, req Request) (*Response, error) {
	if p.rpcURL == "" {
		return nil, fmt.Errorf("no rpc url configured for %s", req.Method)
	}
	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding rpc request: %w", err)
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, p.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating rpc request: %w", err)
	}
	hr.Header.Set("Content-Type", "application/json")
	res, err := p.client.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("doing rpc request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc %s: status %d", req.Method, res.StatusCode)
	}
	var resp Response
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding rpc response: %w", err)
	}
	p.logger.Debug("rpc forwarded", slog.String("method", req.Method))
	return &resp, nil
}

func result(req Request, value any) (*Response, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: raw}, nil
}
