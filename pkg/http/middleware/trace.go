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

package middleware

import (
	"context"

	tracectx "github.com/go-arcade/flagforge/pkg/trace/context"
	"github.com/go-arcade/flagforge/pkg/trace/inject"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// fasthttp header 适配 propagation.TextMapCarrier
type headerCarrier struct {
	c *fiber.Ctx
}

func (h headerCarrier) Get(key string) string { return h.c.Get(key) }

func (h headerCarrier) Set(key, value string) { h.c.Request().Header.Set(key, value) }

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0)
	h.c.Request().Header.VisitAll(func(k, _ []byte) {
		keys = append(keys, string(k))
	})
	return keys
}

var _ propagation.TextMapCarrier = headerCarrier{}

// TraceMiddleware 链路追踪中间件
// 从 traceparent 继续上游链路，span 绑定到当前 goroutine，请求结束时清理
func TraceMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier{c: c})
		defer tracectx.ClearContext()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		}

		_, err := inject.HTTPServerRequest(ctx, c.Method(), route, func(ctx context.Context) (int, error) {
			c.SetUserContext(ctx)
			nextErr := c.Next()
			if nextErr != nil {
				// 先交给 ErrorHandler 渲染，span 才能拿到最终状态码
				if herr := c.App().ErrorHandler(c, nextErr); herr != nil {
					return fiber.StatusInternalServerError, herr
				}
				nextErr = nil
			}
			return c.Response().StatusCode(), nextErr
		})
		return err
	}
}
