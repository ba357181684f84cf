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

package conf

import (
	"github.com/go-arcade/flagforge/internal/engine/repo"
	"github.com/go-arcade/flagforge/pkg/cache"
	"github.com/go-arcade/flagforge/pkg/database"
	"github.com/go-arcade/flagforge/pkg/http"
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/go-arcade/flagforge/pkg/metrics"
	"github.com/go-arcade/flagforge/pkg/pprof"
	"github.com/go-arcade/flagforge/pkg/trace"
	"github.com/google/wire"
)

// ProviderSet 提供配置层相关的依赖
var ProviderSet = wire.NewSet(
	ProvideConf,
	ProvideLogConfig,
	ProvideHttpConfig,
	ProvideDatabaseConfig,
	ProvideRedisConfig,
	ProvideCacheConfig,
	ProvideStoreConfig,
	ProvideEvaluationConfig,
	ProvideKillSwitchConfig,
	ProvideMetricsConfig,
	ProvideTraceConfig,
	ProvidePprofConfig,
)

// ProvideConf 当前配置的快照，热更新通过 Loader.OnChange 传播
func ProvideConf(l *Loader) AppConfig {
	return l.Get()
}

func ProvideLogConfig(appConf AppConfig) *log.Conf {
	c := appConf.Log
	return &c
}

func ProvideHttpConfig(appConf AppConfig) *http.Http {
	return http.ProvideHttpConf(appConf.Http)
}

func ProvideDatabaseConfig(appConf AppConfig) database.Database {
	return appConf.Database
}

func ProvideRedisConfig(appConf AppConfig) cache.Redis {
	return appConf.Redis
}

func ProvideCacheConfig(appConf AppConfig) cache.Conf {
	return appConf.Cache
}

func ProvideStoreConfig(appConf AppConfig) repo.Conf {
	return appConf.Store
}

func ProvideEvaluationConfig(appConf AppConfig) Evaluation {
	return appConf.Evaluation
}

func ProvideKillSwitchConfig(appConf AppConfig) KillSwitch {
	return appConf.KillSwitch
}

func ProvideMetricsConfig(appConf AppConfig) metrics.Conf {
	return appConf.Metrics
}

func ProvideTraceConfig(appConf AppConfig) trace.Conf {
	c := appConf.Trace
	c.SetDefaults()
	return c
}

func ProvidePprofConfig(appConf AppConfig) pprof.Conf {
	return appConf.Pprof
}
