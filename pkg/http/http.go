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
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
)

const defaultBodyLimit = 4 * 1024 * 1024

type Http struct {
	Host            string
	Port            int
	AccessLog       bool
	ExposeMetrics   bool
	ReadTimeout     int
	WriteTimeout    int
	IdleTimeout     int
	ShutdownTimeout int
	// BodyLimit 请求体大小限制（字节）
	BodyLimit int
	// ProxyHeader 非空时从该 header 读取客户端 IP，例如 X-Forwarded-For
	ProxyHeader string
	// AllowOrigins cors 允许的来源，逗号分隔
	AllowOrigins string
	// InternalToken /internal 路由需要携带的 X-Internal-Token，空表示不校验
	InternalToken string
	TLS           TLS
}

type TLS struct {
	CertFile string
	KeyFile  string
}

func (h *Http) SetDefaults() {
	if h.Host == "" {
		h.Host = "0.0.0.0"
	}
	if h.Port == 0 {
		h.Port = 8080
	}
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 10
	}
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 10
	}
	if h.IdleTimeout <= 0 {
		h.IdleTimeout = 60
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 30
	}
	if h.BodyLimit <= 0 {
		h.BodyLimit = defaultBodyLimit
	}
	if h.AllowOrigins == "" {
		h.AllowOrigins = "*"
	}
}

func (h *Http) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// NewApp 创建 fiber app，JSON 编解码使用 sonic，未处理的错误统一转成 ResponseErr
func NewApp(cfg *Http, appName string) *fiber.App {
	cfg.SetDefaults()
	return fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:           time.Duration(cfg.IdleTimeout) * time.Second,
		BodyLimit:             cfg.BodyLimit,
		ProxyHeader:           cfg.ProxyHeader,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		ErrorHandler:          ErrorHandler,
	})
}

// ErrorHandler 将 fiber.Error 映射成统一错误响应
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound:
			return WithRepErr(c, NotFound.Code, fe.Message, c.Path())
		case fiber.StatusMethodNotAllowed:
			return WithRepErr(c, MethodNotAllowed.Code, fe.Message, c.Path())
		case fiber.StatusRequestEntityTooLarge:
			return WithRepErr(c, RequestEntityTooLarge.Code, fe.Message, c.Path())
		}
		if fe.Code < fiber.StatusInternalServerError {
			return WithRepErr(c, BadRequest.Code, fe.Message, c.Path())
		}
	}
	return WithRepErr(c, InternalError.Code, InternalError.Msg, c.Path())
}

// Serve 阻塞监听，直到 app 被关闭
func Serve(app *fiber.App, cfg *Http) error {
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		return app.ListenTLS(cfg.Addr(), cfg.TLS.CertFile, cfg.TLS.KeyFile)
	}
	return app.Listen(cfg.Addr())
}

// Shutdown 在 ShutdownTimeout 内优雅关闭
func Shutdown(app *fiber.App, cfg *Http) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()
	return app.ShutdownWithContext(ctx)
}
