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

package cache

import (
	"fmt"

	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/google/wire"
)

// ProviderSet 提供缓存依赖
var ProviderSet = wire.NewSet(ProvideCache)

// Conf 缓存选择
type Conf struct {
	// Driver redis | memory | hybrid
	Driver string            `mapstructure:"driver"`
	Local  FastCacheConfig   `mapstructure:"local"`
	Hybrid HybridCacheConfig `mapstructure:"hybrid"`
}

// ProvideCache 根据 Driver 构造 ICache，返回的 cleanup 关闭底层连接
func ProvideCache(conf Conf, redisConf Redis) (ICache, func(), error) {
	switch conf.Driver {
	case "memory":
		fc := NewFastCache(conf.Local)
		log.Infow("cache initialized", "driver", "memory")
		return fc, fc.Close, nil
	case "", "redis", "hybrid":
		client, err := NewRedis(redisConf)
		if err != nil {
			return nil, nil, err
		}
		remote := NewRedisCache(client)
		if conf.Driver != "hybrid" {
			return remote, func() { _ = client.Close() }, nil
		}
		local := NewFastCache(conf.Local)
		hc := NewHybridCache(local, remote, HybridCacheConfig{
			LocalEnabled:  true,
			LocalTTLRatio: conf.Hybrid.LocalTTLRatio,
			LocalMaxTTL:   conf.Hybrid.LocalMaxTTL,
		})
		log.Infow("cache initialized", "driver", "hybrid", "localMaxTTL", conf.Hybrid.LocalMaxTTL)
		return hc, func() {
			local.Close()
			_ = client.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache driver: %s", conf.Driver)
	}
}
