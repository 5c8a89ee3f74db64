package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "IntentWallet/internal/errors"
)

const defaultTimeout = 30 * time.Second

// transport 是两个 HTTP 客户端共享的 JSON 请求逻辑。
type transport struct {
	name       string
	baseURL    string
	headers    func(*http.Request)
	httpClient *http.Client
}

func newTransport(name, baseURL string, timeout time.Duration, headers func(*http.Request)) transport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return transport{
		name:       name,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		headers:    headers,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// do 发送 JSON 请求并解码响应。网络错误、429 与 5xx 视为可重试，
// 409 视为冲突，其余 4xx 视为上游拒绝。
func (t transport) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("序列化 %s 请求失败", t.name))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("构建 %s 请求失败", t.name))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.headers != nil {
		t.headers(req)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("请求 %s 超时", t.name))
		}
		return xerrors.Wrap(xerrors.CodeTransientNetwork, err, fmt.Sprintf("请求 %s 失败", t.name),
			xerrors.WithMetadata("service", t.name),
			xerrors.WithMetadata("path", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		message := fmt.Sprintf("%s 返回错误状态 %d: %s", t.name, resp.StatusCode, strings.TrimSpace(string(detail)))
		opts := []xerrors.Option{
			xerrors.WithMetadata("service", t.name),
			xerrors.WithMetadata("path", path),
			xerrors.WithMetadata("status", fmt.Sprint(resp.StatusCode)),
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			return xerrors.New(xerrors.CodeTransientNetwork, message, opts...)
		case resp.StatusCode == http.StatusConflict:
			return xerrors.New(xerrors.CodeConflict, message, opts...)
		case resp.StatusCode == http.StatusNotFound:
			return xerrors.New(xerrors.CodeNotFound, message, opts...)
		default:
			return xerrors.New(xerrors.CodeUpstreamRejected, message, opts...)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamRejected, err, fmt.Sprintf("解析 %s 响应失败", t.name))
	}
	return nil
}
