package analyze

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"auditor-cli/internal/logger"

	"github.com/tidwall/sjson"
)

// ErrStatus 表示服务返回了非 2xx 状态码。
var ErrStatus = errors.New("analyze service returned failure status")

// Request 是一次提交携带的 SubmissionState。
type Request struct {
	Question   string
	SourceCode string
}

// Payload 以服务约定的 JSON 字段编码请求。
func (r Request) Payload() ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "question", r.Question)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "source_code", r.SourceCode)
}

// Client 发出一次分析请求；返回 nil 表示服务接受了请求。
type Client interface {
	Analyze(ctx context.Context, req Request) error
}

// StatusError 携带失败的 HTTP 状态码，errors.Is(err, ErrStatus) 成立。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("analyze service returned %d", e.Code)
	}
	return fmt.Sprintf("analyze service returned %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// HTTPClient 把请求 POST 到 <BaseURL>/analyze。
type HTTPClient struct {
	URL     string
	HTTP    *http.Client
	Timeout time.Duration
	// Wire 为空时使用 logger.Wire()。
	Wire logger.WireLogger
}

// NewHTTPClient 使用给定的 analyze 地址与超时创建客户端。
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{URL: url, HTTP: http.DefaultClient, Timeout: timeout}
}

// Analyze 实现 Client。成功时响应体被读尽并丢弃。
func (c *HTTPClient) Analyze(ctx context.Context, req Request) error {
	body, err := req.Payload()
	if err != nil {
		return fmt.Errorf("encode analyze request: %w", err)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	wire := c.Wire
	if wire == nil {
		wire = logger.Wire()
	}
	start := time.Now()
	wire.Request(http.MethodPost, c.URL, len(body))
	resp, err := client.Do(httpReq)
	if err != nil {
		wire.Error(c.URL, err, time.Since(start))
		return fmt.Errorf("post analyze request: %w", err)
	}
	defer resp.Body.Close()
	wire.Response(c.URL, resp.StatusCode, time.Since(start))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
