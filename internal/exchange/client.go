package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// 提现单在交易所侧的状态
const (
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// WithdrawRequest 发往交易所的出金请求
// ClientRef 是我方幂等键，交易所按它去重，也用于超时后的对账
type WithdrawRequest struct {
	ClientRef  string          `json:"client_ref"`
	Address    string          `json:"address"`
	Amount     decimal.Decimal `json:"amount"`
	NetworkTag string          `json:"network_tag"`
}

// Withdrawal 交易所侧提现单
type Withdrawal struct {
	ExternalID string          `json:"id"`
	ClientRef  string          `json:"client_ref"`
	State      string          `json:"state"`
	Amount     decimal.Decimal `json:"amount"`
}

// Client 交易所出金边界
// 只负责调用和错误归类，重试策略由 Worker 决定
type Client interface {
	Withdraw(ctx context.Context, req WithdrawRequest) (*Withdrawal, error)
	FindByClientRef(ctx context.Context, clientRef string) (*Withdrawal, error)
}

// HTTPClient 托管交易所 HTTP API 实现
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Withdraw 发起出金
func (c *HTTPClient) Withdraw(ctx context.Context, req WithdrawRequest) (*Withdrawal, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Class: ClassInvalid, Code: "marshal", Message: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/withdrawals", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Class: ClassInvalid, Code: "request", Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var w Withdrawal
		if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
			// 响应体损坏但请求已被接收，按结果不明处理
			return nil, &Error{Class: ClassAmbiguous, Code: "decode", Message: err.Error()}
		}
		return &w, nil
	}

	return nil, classifyResponse(resp)
}

// FindByClientRef 按 client_ref 对账查询
func (c *HTTPClient) FindByClientRef(ctx context.Context, clientRef string) (*Withdrawal, error) {
	url := fmt.Sprintf("%s/v1/withdrawals/by-client-ref/%s", c.baseURL, clientRef)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Class: ClassInvalid, Code: "request", Message: err.Error()}
	}
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyResponse(resp)
	}

	var w Withdrawal
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, &Error{Class: ClassTransient, Code: "decode", Message: err.Error()}
	}
	return &w, nil
}

// classifyTransport 网络层错误归类
// 超时 => 请求可能已送达并被执行，归为 ambiguous
// 连接失败 => 请求确定没送出去，归为 transient
func classifyTransport(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Class: ClassAmbiguous, Code: "timeout", Message: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Class: ClassAmbiguous, Code: "timeout", Message: err.Error()}
	}
	return &Error{Class: ClassTransient, Code: "network", Message: err.Error()}
}

// errorBody 交易所错误响应体
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classifyResponse HTTP 错误响应归类
func classifyResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body errorBody
	_ = json.Unmarshal(raw, &body)
	if body.Message == "" {
		body.Message = string(raw)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &Error{Class: ClassTransient, Code: body.Code, Message: body.Message}
	}

	switch body.Code {
	case "invalid_address", "invalid_amount", "unsupported_asset":
		return &Error{Class: ClassInvalid, Code: body.Code, Message: body.Message}
	case "insufficient_liquidity", "hot_wallet_depleted":
		return &Error{Class: ClassLiquidity, Code: body.Code, Message: body.Message}
	default:
		return &Error{Class: ClassRejected, Code: body.Code, Message: body.Message}
	}
}
