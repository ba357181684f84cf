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
	"strings"
	"time"

	"github.com/go-arcade/flagforge/internal/engine/repo"
	"github.com/go-arcade/flagforge/pkg/cache"
	pkgconf "github.com/go-arcade/flagforge/pkg/conf"
	"github.com/go-arcade/flagforge/pkg/database"
	"github.com/go-arcade/flagforge/pkg/http"
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/go-arcade/flagforge/pkg/metrics"
	"github.com/go-arcade/flagforge/pkg/pprof"
	"github.com/go-arcade/flagforge/pkg/trace"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 FLAGFORGE_HTTP_PORT=9090
const EnvPrefix = "FLAGFORGE"

type AppConfig struct {
	Log        log.Conf
	Http       http.Http
	Database   database.Database
	Redis      cache.Redis
	Cache      cache.Conf
	Store      repo.Conf
	Evaluation Evaluation
	KillSwitch KillSwitch
	Metrics    metrics.Conf
	Trace      trace.Conf
	Pprof      pprof.Conf
}

// Evaluation 评估链路参数，支持热更新
type Evaluation struct {
	// CacheTimeout 单次缓存访问的超时
	CacheTimeout time.Duration `mapstructure:"cacheTimeout"`
	// StoreTimeout 单次配置存储访问的超时
	StoreTimeout     time.Duration `mapstructure:"storeTimeout"`
	Singleflight     bool          `mapstructure:"singleflight"`
	BatchConcurrency int           `mapstructure:"batchConcurrency"`
	MaxBatchSize     int           `mapstructure:"maxBatchSize"`
	// TTL flag 类型 -> 快照缓存时间，key 不区分大小写
	TTL map[string]time.Duration `mapstructure:"ttl"`
}

// TTLFor viper 会把 map 的 key 转成小写，这里统一按大写比较
func (e Evaluation) TTLFor(flagType string) (time.Duration, bool) {
	for k, v := range e.TTL {
		if strings.EqualFold(k, flagType) {
			return v, true
		}
	}
	return 0, false
}

type KillSwitch struct {
	// IndexTTL 反向索引的过期时间，过期后从存储重建
	IndexTTL time.Duration `mapstructure:"indexTTL"`
	// ReconcileSpec cron 表达式，为空时不启动定时对账
	ReconcileSpec string        `mapstructure:"reconcileSpec"`
	RetryAttempts int           `mapstructure:"retryAttempts"`
	RetryBackoff  time.Duration `mapstructure:"retryBackoff"`
}

type Loader = pkgconf.Loader[AppConfig]

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.level", "INFO")

	v.SetDefault("cache.driver", "redis")
	v.SetDefault("cache.hybrid.localTTLRatio", 0.1)
	v.SetDefault("cache.hybrid.localMaxTTL", "30s")

	v.SetDefault("store.driver", repo.DriverDatabase)
	v.SetDefault("database.driver", database.DriverMySQL)

	v.SetDefault("evaluation.cacheTimeout", 50*time.Millisecond)
	v.SetDefault("evaluation.storeTimeout", 2*time.Second)
	v.SetDefault("evaluation.singleflight", true)
	v.SetDefault("evaluation.batchConcurrency", 8)
	v.SetDefault("evaluation.maxBatchSize", 100)
	v.SetDefault("evaluation.ttl.ab_test", time.Minute)
	v.SetDefault("evaluation.ttl.boolean", 5*time.Minute)
	v.SetDefault("evaluation.ttl.string", 5*time.Minute)
	v.SetDefault("evaluation.ttl.number", 5*time.Minute)
	v.SetDefault("evaluation.ttl.json", 10*time.Minute)
	v.SetDefault("evaluation.ttl.multivariate", 10*time.Minute)

	v.SetDefault("killSwitch.indexTTL", time.Hour)
	v.SetDefault("killSwitch.reconcileSpec", "@every 5m")
	v.SetDefault("killSwitch.retryAttempts", 3)
	v.SetDefault("killSwitch.retryBackoff", 50*time.Millisecond)

	v.SetDefault("trace.serviceName", "flagforge")
}

// Load 读取配置文件（或目录下的 config.toml）并补齐默认值
func Load(path string) (*Loader, error) {
	l, err := pkgconf.NewLoader[AppConfig](path, EnvPrefix)
	if err != nil {
		return nil, err
	}
	setDefaults(l.Viper())
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}
