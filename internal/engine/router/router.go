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

package router

import (
	"errors"

	"github.com/go-arcade/flagforge/internal/engine/service"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/http"
	"github.com/go-arcade/flagforge/pkg/http/middleware"
	"github.com/go-arcade/flagforge/pkg/metrics"
	"github.com/go-arcade/flagforge/pkg/shutdown"
	"github.com/go-arcade/flagforge/pkg/version"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

const AppName = "flagforge"

type Router struct {
	Http     *http.Http
	Services *service.Services
	Metrics  *metrics.Server
	Shutdown *shutdown.Manager
}

func NewRouter(httpConf *http.Http, services *service.Services, metricsServer *metrics.Server, shutdownMgr *shutdown.Manager) *Router {
	return &Router{
		Http:     httpConf,
		Services: services,
		Metrics:  metricsServer,
		Shutdown: shutdownMgr,
	}
}

func (rt *Router) Router() *fiber.App {
	app := http.NewApp(rt.Http, AppName)

	// panic recover
	app.Use(middleware.ExceptionMiddleware())

	// request id
	app.Use(middleware.RequestMiddleware())

	app.Use(middleware.CorsMiddleware(rt.Http.AllowOrigins))

	// trace 之后的日志才能带上 trace_id
	app.Use(middleware.TraceMiddleware())
	app.Use(http.AccessLogFormat(rt.Http))

	app.Use(middleware.UnifiedResponseMiddleware())

	if rt.Http.ExposeMetrics && rt.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(rt.Metrics.Handler()))
	}

	// 下线过程中返回 503，让负载均衡先摘掉实例
	app.Get("/health", func(c *fiber.Ctx) error {
		if rt.Shutdown != nil && rt.Shutdown.IsShuttingDown() {
			return c.Status(fiber.StatusServiceUnavailable).SendString("shutting down")
		}
		return c.SendString("ok")
	})

	app.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(version.GetVersion())
	})

	api := app.Group("/api/v1")
	{
		rt.evaluateRouter(api)
	}

	internal := app.Group("/internal", middleware.InternalTokenMiddleware(rt.Http.InternalToken))
	{
		rt.internalRouter(internal)
	}

	return app
}

// withRepError 把 service 层错误映射成统一错误响应
func withRepError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrOrgSlugEmpty):
		return http.WithRepErrMsg(c, http.OrgSlugIsEmpty, c.Path())
	case errors.Is(err, service.ErrFlagKeyEmpty):
		return http.WithRepErrMsg(c, http.FlagKeyIsEmpty, c.Path())
	case errors.Is(err, service.ErrInvalidEnvironment):
		return http.WithRepErrMsg(c, http.InvalidEnvironment, c.Path())
	case errors.Is(err, flag.ErrInvalidRequest):
		return http.WithRepErr(c, http.InvalidRequest.Code, err.Error(), c.Path())
	case errors.Is(err, flag.ErrNotFound):
		return http.WithRepErr(c, http.NotFound.Code, err.Error(), c.Path())
	case errors.Is(err, flag.ErrStoreUnavailable):
		return http.WithRepErrMsg(c, http.ServiceUnavailable, c.Path())
	}
	return http.WithRepErrMsg(c, http.InternalError, c.Path())
}
