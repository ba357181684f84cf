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

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates that the key was not found in cache
var ErrCacheMiss = redis.Nil

// ICache 定义缓存接口（抽象）
// 返回值沿用 go-redis 的 Cmd 类型，本地实现通过 SetVal/SetErr 模拟
type ICache interface {
	// Get 获取缓存值，不存在时返回 ErrCacheMiss
	Get(ctx context.Context, key string) *redis.StringCmd
	// Set 设置缓存值，expiration 为 0 表示不过期
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	// Del 删除缓存
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	// DelPattern 按 glob 模式删除，返回删除数量
	DelPattern(ctx context.Context, pattern string) (int64, error)
	// SAdd 向集合添加成员
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	// SRem 从集合移除成员
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	// SMembers 获取集合成员，集合不存在时返回空
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	// Expire 设置过期时间
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	// Atomic 在一个事务中执行 fn 记录的写操作（Redis MULTI/EXEC，本地实现持锁）
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx 记录一组写操作，由 Atomic 统一提交
type Tx interface {
	Set(key string, value any, expiration time.Duration)
	Del(keys ...string)
	SAdd(key string, members ...any)
	Expire(key string, expiration time.Duration)
}
