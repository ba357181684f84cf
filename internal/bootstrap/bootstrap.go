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

package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-arcade/flagforge/internal/engine/conf"
	"github.com/go-arcade/flagforge/internal/engine/router"
	"github.com/go-arcade/flagforge/internal/engine/service"
	"github.com/go-arcade/flagforge/pkg/cron"
	"github.com/go-arcade/flagforge/pkg/http"
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/go-arcade/flagforge/pkg/metrics"
	"github.com/go-arcade/flagforge/pkg/pprof"
	"github.com/go-arcade/flagforge/pkg/shutdown"
	"github.com/go-arcade/flagforge/pkg/trace"
	"github.com/gofiber/fiber/v2"
	"github.com/google/wire"
	"go.uber.org/zap"
)

// jobTimeout 单次定时任务的最长执行时间
const jobTimeout = time.Minute

// ProviderSet 应用层依赖
var ProviderSet = wire.NewSet(ProvideScheduler, shutdown.NewManager, NewApp)

type App struct {
	HttpApp   *fiber.App
	Http      *http.Http
	Services  *service.Services
	Scheduler *cron.Scheduler
	Metrics   *metrics.Server
	Pprof     *pprof.Server
	Shutdown  *shutdown.Manager
	Loader    *conf.Loader
	Logger    *zap.Logger
}

// InitAppFunc init app function type
type InitAppFunc func(loader *conf.Loader, logger *zap.Logger) (*App, func(), error)

func ProvideScheduler(recorder *metrics.CronMetricsRecorder) *cron.Scheduler {
	return cron.New(
		cron.WithMetricsRecorder(recorder),
		cron.WithJobTimeout(jobTimeout),
	)
}

func NewApp(
	rt *router.Router,
	httpConf *http.Http,
	services *service.Services,
	scheduler *cron.Scheduler,
	metricsServer *metrics.Server,
	pprofServer *pprof.Server,
	shutdownMgr *shutdown.Manager,
	loader *conf.Loader,
	logger *zap.Logger,
) (*App, func(), error) {
	httpApp := rt.Router()

	// kill switch 索引对账
	if err := services.KillSwitch.RegisterJobs(scheduler); err != nil {
		return nil, nil, fmt.Errorf("register kill switch jobs: %w", err)
	}

	// TTL 与超时支持热更新
	loader.OnChange(services.Reload)

	app := &App{
		HttpApp:   httpApp,
		Http:      httpConf,
		Services:  services,
		Scheduler: scheduler,
		Metrics:   metricsServer,
		Pprof:     pprofServer,
		Shutdown:  shutdownMgr,
		Loader:    loader,
		Logger:    logger,
	}
	return app, func() {}, nil
}

// Bootstrap 加载配置、初始化日志与 trace，然后交给 wire 构建 App
func Bootstrap(configFile string, initApp InitAppFunc) (*App, func(), error) {
	loader, err := conf.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	appConf := loader.Get()

	logger, err := log.NewLog(conf.ProvideLogConfig(appConf))
	if err != nil {
		return nil, nil, err
	}

	_, shutdownTrace, err := trace.InitTracerProvider(context.Background(), conf.ProvideTraceConfig(appConf))
	if err != nil {
		return nil, nil, err
	}

	app, cleanup, err := initApp(loader, logger)
	if err != nil {
		shutdownTrace()
		return nil, nil, err
	}

	log.Infow("application bootstrapped",
		"config", loader.ConfigFile(),
		"cacheDriver", appConf.Cache.Driver,
		"storeDriver", appConf.Store.Driver,
	)
	return app, func() {
		cleanup()
		shutdownTrace()
		_ = log.Sync()
	}, nil
}

// Run start app and wait for exit signal, then gracefully shutdown
func Run(app *App, cleanup func()) {
	sugar := app.Logger.Sugar()

	// watch conf.d，变化时触发 Services.Reload
	app.Loader.Watch()

	// 独立端口的 metrics server，未配置端口时由 /metrics 路由暴露
	if err := app.Metrics.Start(); err != nil {
		sugar.Errorw("metrics server start failed", "error", err)
	}

	if err := app.Pprof.Start(); err != nil {
		sugar.Errorw("pprof server start failed", "error", err)
	}

	app.Scheduler.Start()

	// set signal listener (graceful shutdown)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// start HTTP server (async)
	go func() {
		sugar.Infow("HTTP listener started", "address", app.Http.Addr())
		if err := http.Serve(app.HttpApp, app.Http); err != nil {
			sugar.Errorw("HTTP listener failed",
				"address", app.Http.Addr(),
				"error", err,
			)
		}
	}()

	// wait for exit signal
	sig := <-quit
	sugar.Infof("Received signal: %v, shutting down gracefully...", sig)
	app.Shutdown.Shutdown()

	// close HTTP server first so no new evaluations arrive
	if err := http.Shutdown(app.HttpApp, app.Http); err != nil {
		sugar.Errorf("HTTP server shutdown error: %v", err)
	} else {
		sugar.Info("HTTP server shut down gracefully")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Scheduler.Stop(stopCtx); err != nil {
		sugar.Warnw("scheduler stop timed out", "error", err)
	}
	if err := app.Metrics.Stop(stopCtx); err != nil {
		sugar.Warnw("metrics server shutdown error", "error", err)
	}
	if err := app.Pprof.Stop(stopCtx); err != nil {
		sugar.Warnw("pprof server shutdown error", "error", err)
	}

	// close cache, database and tracer
	cleanup()

	sugar.Info("Server shutdown complete")
}
