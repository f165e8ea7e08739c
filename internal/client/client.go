package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"secure-pastebox/internal/httputil"
	"secure-pastebox/internal/keys"
)

var (
	// ErrNotFound 密鑰不存在、已過期或已取回
	ErrNotFound = errors.New("key not found, expired or already retrieved")
	// ErrRateLimited 取回請求過於頻繁
	ErrRateLimited = errors.New("too many requests")
)

// APIError 服務端回傳的非成功回應
type APIError struct {
	Status    int
	Code      int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("server returned %d (code %d): %s [request %s]", e.Status, e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("server returned %d (code %d): %s", e.Status, e.Code, e.Message)
}

// Client 密鑰保管服務的 HTTP 客戶端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 創建客戶端，timeout 可選，預設 30 秒
func New(baseURL string, timeout ...time.Duration) *Client {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

type saveRequest struct {
	Key        string          `json:"key"`
	Expiration keys.Expiration `json:"expiration"`
}

// SaveKey 保存密鑰並回傳識別碼
func (c *Client) SaveKey(ctx context.Context, value string, exp keys.Expiration) (string, error) {
	reqJSON, err := json.Marshal(saveRequest{Key: value, Expiration: exp})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	var result httputil.SaveKeyResponse
	if err := c.do(ctx, http.MethodPost, "/api/keys", reqJSON, &result); err != nil {
		return "", fmt.Errorf("save key request failed: %w", err)
	}
	return result.KeyID, nil
}

// TakeKey 取回密鑰，服務端同時銷毀它
func (c *Client) TakeKey(ctx context.Context, id string) (string, error) {
	var result httputil.GetKeyResponse
	if err := c.do(ctx, http.MethodDelete, "/api/keys/"+url.PathEscape(id), nil, &result); err != nil {
		return "", fmt.Errorf("take key request failed: %w", err)
	}
	return result.Key, nil
}

// Health 查詢存活狀態，正常時回傳 "Healthy"
func (c *Client) Health(ctx context.Context) (string, error) {
	var status string
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &status); err != nil {
		return "", fmt.Errorf("health request failed: %w", err)
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error     string `json:"error"`
		Code      int    `json:"code"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(raw))
	}

	apiErr := &APIError{
		Status:    resp.StatusCode,
		Code:      payload.Code,
		Message:   payload.Error,
		RequestID: payload.RequestID,
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, apiErr)
	default:
		return apiErr
	}
}
