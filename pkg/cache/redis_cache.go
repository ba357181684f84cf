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
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

// RedisCache Redis 缓存实现
type RedisCache struct {
	client redis.UniversalClient
}

var _ ICache = (*RedisCache)(nil)

// NewRedisCache 创建 Redis 缓存实例
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// GetClient 获取底层客户端
func (r *RedisCache) GetClient() redis.UniversalClient {
	return r.client
}

func (r *RedisCache) Get(ctx context.Context, key string) *redis.StringCmd {
	return r.client.Get(ctx, key)
}

func (r *RedisCache) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	return r.client.Set(ctx, key, value, expiration)
}

func (r *RedisCache) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	return r.client.Del(ctx, keys...)
}

func (r *RedisCache) SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd {
	return r.client.SAdd(ctx, key, members...)
}

func (r *RedisCache) SRem(ctx context.Context, key string, members ...any) *redis.IntCmd {
	return r.client.SRem(ctx, key, members...)
}

func (r *RedisCache) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	return r.client.SMembers(ctx, key)
}

func (r *RedisCache) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return r.client.Expire(ctx, key, expiration)
}

// DelPattern 使用 SCAN 遍历匹配的 key 并逐个删除，避免 KEYS 阻塞
// 集群模式下在每个 master 上分别执行
func (r *RedisCache) DelPattern(ctx context.Context, pattern string) (int64, error) {
	if cc, ok := r.client.(*redis.ClusterClient); ok {
		var total atomic.Int64
		err := cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			n, err := scanDelete(ctx, node, pattern)
			total.Add(n)
			return err
		})
		return total.Load(), err
	}
	return scanDelete(ctx, r.client, pattern)
}

func scanDelete(ctx context.Context, c redis.Cmdable, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			cmds, err := c.Pipelined(ctx, func(p redis.Pipeliner) error {
				for _, k := range keys {
					p.Del(ctx, k)
				}
				return nil
			})
			if err != nil {
				return deleted, err
			}
			for _, cmd := range cmds {
				if ic, ok := cmd.(*redis.IntCmd); ok {
					deleted += ic.Val()
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Atomic 使用 MULTI/EXEC 提交 fn 记录的命令
func (r *RedisCache) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		return fn(&pipelineTx{ctx: ctx, p: p})
	})
	return err
}

type pipelineTx struct {
	ctx context.Context
	p   redis.Pipeliner
}

func (t *pipelineTx) Set(key string, value any, expiration time.Duration) {
	t.p.Set(t.ctx, key, value, expiration)
}

func (t *pipelineTx) Del(keys ...string) {
	if len(keys) > 0 {
		t.p.Del(t.ctx, keys...)
	}
}

func (t *pipelineTx) SAdd(key string, members ...any) {
	if len(members) > 0 {
		t.p.SAdd(t.ctx, key, members...)
	}
}

func (t *pipelineTx) Expire(key string, expiration time.Duration) {
	t.p.Expire(t.ctx, key, expiration)
}
