package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/CarRentLink/CarRentLink/internal/common/config"
	"github.com/CarRentLink/CarRentLink/internal/common/logger"
	"github.com/CarRentLink/CarRentLink/internal/common/middleware"
)

// client 下游 HTTP 调用的公共底座：JSON 编解码 + 有界超时 + 熔断。
// 支付/跟踪/身份三个客户端都基于它。
type client struct {
	name    string
	baseURL string
	http    *http.Client
	breaker *middleware.CircuitBreaker
	log     logger.Logger
}

func newClient(name string, ep config.UpstreamEndpoint, log logger.Logger) *client {
	timeout := time.Duration(ep.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &client{
		name:    name,
		baseURL: ep.BaseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: middleware.NewCircuitBreaker(name, ep.MaxFailures,
			time.Duration(ep.ResetTimeoutSeconds)*time.Second),
		log: log,
	}
}

// doJSON 发起一次 JSON 请求。非 2xx 一律视为失败并计入熔断。
func (c *client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	return c.breaker.Call(ctx, func() error {
		var body io.Reader
		if in != nil {
			buf, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("%s: marshal request: %w", c.name, err)
			}
			body = bytes.NewReader(buf)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("%s: build request: %w", c.name, err)
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("%s: %s %s -> %d: %s", c.name, method, path, resp.StatusCode, string(snippet))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("%s: decode response: %w", c.name, err)
			}
		}
		return nil
	})
}
