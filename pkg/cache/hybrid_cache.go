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
	"context"
	"time"

	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/redis/go-redis/v9"
)

// HybridCacheConfig holds hybrid cache configuration
type HybridCacheConfig struct {
	LocalEnabled bool `mapstructure:"localEnabled"`
	// LocalTTLRatio 本地 TTL 占远程 TTL 的比例 (0, 1]
	LocalTTLRatio float64 `mapstructure:"localTTLRatio"`
	// LocalMaxTTL 本地 TTL 上限，也用于远程命中后的回填
	LocalMaxTTL time.Duration `mapstructure:"localMaxTTL"`
}

// HybridCache 本地 FastCache（L1）+ 远程缓存（L2）
// 字符串值读 L1 后读 L2，集合操作和事务只走 L2，L1 中受影响的 key 会被删除
// 其他节点的失效不会传播到本节点的 L1，陈旧窗口由 LocalMaxTTL 限定
type HybridCache struct {
	local  *FastCache
	remote ICache
	config HybridCacheConfig
}

var _ ICache = (*HybridCache)(nil)

// NewHybridCache creates a new HybridCache instance
func NewHybridCache(local *FastCache, remote ICache, config HybridCacheConfig) *HybridCache {
	if config.LocalTTLRatio <= 0 || config.LocalTTLRatio > 1 {
		config.LocalTTLRatio = 0.5
	}
	if config.LocalMaxTTL <= 0 {
		config.LocalMaxTTL = 10 * time.Second
	}
	if local == nil {
		config.LocalEnabled = false
	}
	return &HybridCache{local: local, remote: remote, config: config}
}

func (hc *HybridCache) localTTL(remoteTTL time.Duration) time.Duration {
	if remoteTTL <= 0 {
		return hc.config.LocalMaxTTL
	}
	return min(time.Duration(float64(remoteTTL)*hc.config.LocalTTLRatio), hc.config.LocalMaxTTL)
}

func (hc *HybridCache) Get(ctx context.Context, key string) *redis.StringCmd {
	if hc.config.LocalEnabled {
		if cmd := hc.local.Get(ctx, key); cmd.Err() == nil {
			log.Debugw("hybrid cache hit (local)", "key", key)
			return cmd
		}
	}
	cmd := hc.remote.Get(ctx, key)
	if cmd.Err() == nil && hc.config.LocalEnabled {
		hc.local.Set(ctx, key, cmd.Val(), hc.config.LocalMaxTTL)
	}
	return cmd
}

func (hc *HybridCache) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	cmd := hc.remote.Set(ctx, key, value, expiration)
	if hc.config.LocalEnabled {
		if cmd.Err() == nil {
			hc.local.Set(ctx, key, value, hc.localTTL(expiration))
		} else {
			hc.local.Del(ctx, key)
		}
	}
	return cmd
}

func (hc *HybridCache) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if hc.config.LocalEnabled {
		hc.local.Del(ctx, keys...)
	}
	return hc.remote.Del(ctx, keys...)
}

func (hc *HybridCache) DelPattern(ctx context.Context, pattern string) (int64, error) {
	if hc.config.LocalEnabled {
		if _, err := hc.local.DelPattern(ctx, pattern); err != nil {
			return 0, err
		}
	}
	return hc.remote.DelPattern(ctx, pattern)
}

func (hc *HybridCache) SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd {
	return hc.remote.SAdd(ctx, key, members...)
}

func (hc *HybridCache) SRem(ctx context.Context, key string, members ...any) *redis.IntCmd {
	return hc.remote.SRem(ctx, key, members...)
}

func (hc *HybridCache) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	return hc.remote.SMembers(ctx, key)
}

func (hc *HybridCache) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return hc.remote.Expire(ctx, key, expiration)
}

func (hc *HybridCache) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	var touched []string
	err := hc.remote.Atomic(ctx, func(tx Tx) error {
		return fn(&trackingTx{Tx: tx, touched: &touched})
	})
	if hc.config.LocalEnabled && len(touched) > 0 {
		hc.local.Del(ctx, touched...)
	}
	return err
}

type trackingTx struct {
	Tx
	touched *[]string
}

func (t *trackingTx) Set(key string, value any, expiration time.Duration) {
	*t.touched = append(*t.touched, key)
	t.Tx.Set(key, value, expiration)
}

func (t *trackingTx) Del(keys ...string) {
	*t.touched = append(*t.touched, keys...)
	t.Tx.Del(keys...)
}
