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
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/flagforge/pkg/log"
	"golang.org/x/sync/singleflight"
)

// QueryFunc loads the value for params from the system of record.
type QueryFunc[T any] func(ctx context.Context, params ...any) (T, error)

// KeyFunc defines a function that generates cache key from parameters
type KeyFunc func(params ...any) string

// Result 一次 Get 在缓存层的结果，用于统计
type Result string

const (
	ResultHit   Result = "hit"
	ResultMiss  Result = "miss"
	ResultError Result = "error"
)

// CachedQuery 通用 cache-aside 实现
// 缓存只是加速手段：读缓存失败或反序列化失败都会回源，写缓存失败只记录日志
// 回源返回的错误不会被缓存
type CachedQuery[T any] struct {
	cache        ICache
	keyFunc      KeyFunc
	queryFunc    QueryFunc[T]
	ttlFunc      func(T) time.Duration
	cacheTimeout func() time.Duration
	onResult     func(Result)
	logPrefix    string

	coalesce bool
	group    singleflight.Group
}

// CachedQueryOption configures CachedQuery behavior
type CachedQueryOption[T any] func(*CachedQuery[T])

// WithTTL sets a fixed cache expiration time
func WithTTL[T any](ttl time.Duration) CachedQueryOption[T] {
	return func(cq *CachedQuery[T]) {
		cq.ttlFunc = func(T) time.Duration { return ttl }
	}
}

// WithTTLFunc derives the expiration from the value being cached
func WithTTLFunc[T any](fn func(T) time.Duration) CachedQueryOption[T] {
	return func(cq *CachedQuery[T]) {
		if fn != nil {
			cq.ttlFunc = fn
		}
	}
}

// WithCacheTimeout bounds every cache round trip. fn is consulted per call so the
// timeout can be reloaded.
func WithCacheTimeout[T any](fn func() time.Duration) CachedQueryOption[T] {
	return func(cq *CachedQuery[T]) {
		if fn != nil {
			cq.cacheTimeout = fn
		}
	}
}

// WithSingleflight coalesces concurrent misses of the same key into one query
func WithSingleflight[T any](enabled bool) CachedQueryOption[T] {
	return func(cq *CachedQuery[T]) {
		cq.coalesce = enabled
	}
}

// WithResultHook is called once per Get with the cache outcome
func WithResultHook[T any](fn func(Result)) CachedQueryOption[T] {
	return func(cq *CachedQuery[T]) {
		cq.onResult = fn
	}
}

// WithLogPrefix sets the log prefix for debugging
func WithLogPrefix[T any](prefix string) CachedQueryOption[T] {
	return func(cq *CachedQuery[T]) {
		cq.logPrefix = prefix
	}
}

// NewCachedQuery creates a new CachedQuery instance
func NewCachedQuery[T any](cache ICache, keyFunc KeyFunc, queryFunc QueryFunc[T], opts ...CachedQueryOption[T]) *CachedQuery[T] {
	cq := &CachedQuery[T]{
		cache:        cache,
		keyFunc:      keyFunc,
		queryFunc:    queryFunc,
		ttlFunc:      func(T) time.Duration { return time.Hour },
		cacheTimeout: func() time.Duration { return 0 },
		logPrefix:    "[CachedQuery]",
	}
	for _, opt := range opts {
		opt(cq)
	}
	return cq
}

func (cq *CachedQuery[T]) cacheCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := cq.cacheTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (cq *CachedQuery[T]) report(r Result) {
	if cq.onResult != nil {
		cq.onResult(r)
	}
}

// Get 先读缓存，未命中时回源并写回缓存
func (cq *CachedQuery[T]) Get(ctx context.Context, params ...any) (T, error) {
	key := cq.keyFunc(params...)
	if cq.cache != nil {
		if v, ok := cq.lookup(ctx, key); ok {
			return v, nil
		}
	} else {
		cq.report(ResultMiss)
	}

	if !cq.coalesce {
		return cq.load(ctx, key, params)
	}

	// 共享的回源不受单个调用方取消的影响，各调用方各自等待
	ch := cq.group.DoChan(key, func() (any, error) {
		return cq.load(context.WithoutCancel(ctx), key, params)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (cq *CachedQuery[T]) lookup(ctx context.Context, key string) (T, bool) {
	var zero T
	cctx, cancel := cq.cacheCtx(ctx)
	defer cancel()

	data, err := cq.cache.Get(cctx, key).Result()
	switch {
	case errors.Is(err, ErrCacheMiss):
		cq.report(ResultMiss)
		return zero, false
	case err != nil:
		log.Warnw(cq.logPrefix+" cache get error", "key", key, "error", err)
		cq.report(ResultError)
		return zero, false
	}

	var result T
	if err := sonic.UnmarshalString(data, &result); err != nil {
		log.Warnw(cq.logPrefix+" failed to unmarshal cached data", "key", key, "error", err)
		cq.report(ResultError)
		return zero, false
	}
	log.Debugw(cq.logPrefix+" cache hit", "key", key)
	cq.report(ResultHit)
	return result, true
}

func (cq *CachedQuery[T]) load(ctx context.Context, key string, params []any) (T, error) {
	result, err := cq.queryFunc(ctx, params...)
	if err != nil {
		var zero T
		return zero, err
	}
	cq.store(ctx, key, result)
	return result, nil
}

func (cq *CachedQuery[T]) store(ctx context.Context, key string, value T) {
	if cq.cache == nil {
		return
	}
	data, err := sonic.MarshalString(value)
	if err != nil {
		log.Warnw(cq.logPrefix+" failed to marshal result for caching", "key", key, "error", err)
		return
	}
	cctx, cancel := cq.cacheCtx(ctx)
	defer cancel()
	if err := cq.cache.Set(cctx, key, data, cq.ttlFunc(value)).Err(); err != nil {
		log.Warnw(cq.logPrefix+" failed to cache result", "key", key, "error", err)
		return
	}
	log.Debugw(cq.logPrefix+" cached result", "key", key)
}

// Set 写穿缓存，返回写缓存的错误
func (cq *CachedQuery[T]) Set(ctx context.Context, value T, params ...any) error {
	if cq.cache == nil {
		return nil
	}
	key := cq.keyFunc(params...)
	data, err := sonic.MarshalString(value)
	if err != nil {
		return err
	}
	cctx, cancel := cq.cacheCtx(ctx)
	defer cancel()
	return cq.cache.Set(cctx, key, data, cq.ttlFunc(value)).Err()
}

// Invalidate removes the cached data
func (cq *CachedQuery[T]) Invalidate(ctx context.Context, params ...any) error {
	if cq.cache == nil {
		return nil
	}
	key := cq.keyFunc(params...)
	cctx, cancel := cq.cacheCtx(ctx)
	defer cancel()
	if err := cq.cache.Del(cctx, key).Err(); err != nil {
		log.Warnw(cq.logPrefix+" failed to invalidate cache", "key", key, "error", err)
		return err
	}
	log.Debugw(cq.logPrefix+" cache invalidated", "key", key)
	return nil
}
