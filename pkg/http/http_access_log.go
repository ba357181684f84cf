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
	"strings"
	"time"

	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/gofiber/fiber/v2"
)

// tips: 这里的路径是不需要记录日志的路径，url为端口后的全部路径，/* 结尾表示前缀
var excludedPaths = []string{
	"/health",
	"/metrics",
	"/version",
}

// AccessLogFormat 访问日志，需要挂在 trace 中间件之后才能带上 trace_id
func AccessLogFormat(cfg *Http) fiber.Handler {
	if cfg != nil && !cfg.AccessLog {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		if skipAccessLog(c.Path()) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		query := c.Context().QueryArgs().String()
		if query != "" {
			query = "?" + query
		}

		log.WithContext(c.UserContext()).Infow("HTTP request",
			"method", c.Method(),
			"path", c.Path(),
			"query", query,
			"status", c.Response().StatusCode(),
			"ip", c.IP(),
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"user_agent", c.Get(fiber.HeaderUserAgent),
			"latency", latency.String(),
		)
		return err
	}
}

func skipAccessLog(path string) bool {
	for _, rule := range excludedPaths {
		if prefix, ok := strings.CutSuffix(rule, "/*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		} else if path == rule {
			return true
		}
	}
	return false
}
