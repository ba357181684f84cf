// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/flagforge/pkg/trace/inject"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const InternalTokenHeader = "X-Internal-Token"

type ClientConf struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	// InternalToken 调用 /internal 接口时携带
	InternalToken string
}

// Client 访问 flagforge 服务的 http 客户端
type Client struct {
	rc *resty.Client
}

// Result 兼容 Response 和 ResponseErr 两种结构
type Result struct {
	Code   int             `json:"code"`
	Detail json.RawMessage `json:"detail,omitempty"`
	Msg    string          `json:"msg,omitempty"`
	ErrMsg any             `json:"errMsg,omitempty"`
	Path   string          `json:"path,omitempty"`
	Status int             `json:"-"`
}

// Decode 解析 detail
func (r *Result) Decode(out any) error {
	if len(r.Detail) == 0 {
		return nil
	}
	return sonic.Unmarshal(r.Detail, out)
}

// StatusError 服务端返回非 2xx
type StatusError struct {
	Status int
	Code   int
	Msg    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d, code %d: %s", e.Status, e.Code, e.Msg)
}

func NewClient(conf ClientConf) *Client {
	if conf.Timeout <= 0 {
		conf.Timeout = 5 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(conf.BaseURL, "/")).
		SetTimeout(conf.Timeout).
		SetRetryCount(conf.RetryCount).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetHeader("Content-Type", "application/json")
	if conf.InternalToken != "" {
		rc.SetHeader(InternalTokenHeader, conf.InternalToken)
	}
	return &Client{rc: rc}
}

// Do 发送请求并解析统一响应，非 2xx 返回 *StatusError，Result 仍然可用
func (c *Client) Do(ctx context.Context, method, path string, query map[string]string, body any) (*Result, error) {
	result := &Result{}
	_, _, err := inject.HTTPRequest(ctx, method, c.rc.BaseURL+path, func(ctx context.Context) (int, int64, error) {
		req := c.rc.R().
			SetContext(ctx).
			SetQueryParams(query).
			SetResult(result).
			SetError(result)
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
		if body != nil {
			req.SetBody(body)
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			return 0, 0, err
		}
		result.Status = resp.StatusCode()
		return resp.StatusCode(), resp.Size(), nil
	})
	if err != nil {
		return nil, err
	}
	if result.Status >= 300 {
		msg := result.Msg
		if s, ok := result.ErrMsg.(string); ok && s != "" {
			msg = s
		}
		return result, &StatusError{Status: result.Status, Code: result.Code, Msg: msg}
	}
	return result, nil
}

func (c *Client) Get(ctx context.Context, path string, query map[string]string) (*Result, error) {
	return c.Do(ctx, resty.MethodGet, path, query, nil)
}

func (c *Client) Post(ctx context.Context, path string, query map[string]string, body any) (*Result, error) {
	return c.Do(ctx, resty.MethodPost, path, query, body)
}
