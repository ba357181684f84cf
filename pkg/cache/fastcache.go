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
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/bytedance/sonic"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-arcade/flagforge/pkg/safe"
	"github.com/redis/go-redis/v9"
)

const defaultFastCacheBytes = 32 * 1024 * 1024

// fastcache.Set 会静默丢弃 4+len(k)+len(v) 超过一个 chunk 的条目，这类值改用 SetBig
const fastcacheChunkSize = 64 * 1024

// FastCacheConfig holds fastcache configuration
type FastCacheConfig struct {
	MaxBytes int `mapstructure:"maxBytes"`
	// CleanupInterval 过期 key 的清理周期，0 表示只在访问时惰性过期
	CleanupInterval time.Duration `mapstructure:"cleanupInterval"`
}

// FastCache 基于 VictoriaMetrics fastcache 的进程内缓存
// 字符串值存放在 fastcache 中，集合和过期时间由 FastCache 自己维护
// fastcache 在容量不足时会静默淘汰，因此只适合作为可丢失的缓存
type FastCache struct {
	mu    sync.RWMutex
	cache *fastcache.Cache
	keys  mapset.Set[string]
	big   mapset.Set[string] // SetBig 写入的 key，只能用 GetBig 读取
	sets  map[string]mapset.Set[string]
	ttls  map[string]time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

var _ ICache = (*FastCache)(nil)

// NewFastCache creates a new FastCache instance
func NewFastCache(conf FastCacheConfig) *FastCache {
	maxBytes := conf.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultFastCacheBytes
	}
	fc := &FastCache{
		cache: fastcache.New(maxBytes),
		keys:  mapset.NewThreadUnsafeSet[string](),
		big:   mapset.NewThreadUnsafeSet[string](),
		sets:  make(map[string]mapset.Set[string]),
		ttls:  make(map[string]time.Time),
		stop:  make(chan struct{}),
	}
	if conf.CleanupInterval > 0 {
		safe.Go(func() { fc.janitor(conf.CleanupInterval) })
	}
	return fc
}

func (fc *FastCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fc.mu.Lock()
			now := time.Now()
			for key, exp := range fc.ttls {
				if now.After(exp) {
					fc.deleteLocked(key)
				}
			}
			fc.mu.Unlock()
		case <-fc.stop:
			return
		}
	}
}

// Close 停止后台清理
func (fc *FastCache) Close() {
	fc.closeOnce.Do(func() { close(fc.stop) })
}

func (fc *FastCache) expiredLocked(key string, now time.Time) bool {
	exp, ok := fc.ttls[key]
	return ok && now.After(exp)
}

func encodeValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case fmt.Stringer:
		return []byte(v.String()), nil
	default:
		return sonic.Marshal(v)
	}
}

func (fc *FastCache) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	if !fc.keys.Contains(key) || fc.expiredLocked(key, time.Now()) {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	var value []byte
	ok := true
	if fc.big.Contains(key) {
		// 任意一个分片被淘汰时返回空
		value = fc.cache.GetBig(nil, []byte(key))
		ok = len(value) > 0
	} else {
		value, ok = fc.cache.HasGet(nil, []byte(key))
	}
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(value))
	return cmd
}

func (fc *FastCache) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	data, err := encodeValue(value)
	if err != nil {
		cmd.SetErr(err)
		return cmd
	}
	fc.mu.Lock()
	fc.setLocked(key, data, expiration)
	fc.mu.Unlock()
	cmd.SetVal("OK")
	return cmd
}

func (fc *FastCache) setLocked(key string, data []byte, expiration time.Duration) {
	delete(fc.sets, key)
	if 4+len(key)+len(data) >= fastcacheChunkSize {
		fc.cache.SetBig([]byte(key), data)
		fc.big.Add(key)
	} else {
		fc.cache.Set([]byte(key), data)
		fc.big.Remove(key)
	}
	fc.keys.Add(key)
	if expiration > 0 {
		fc.ttls[key] = time.Now().Add(expiration)
	} else {
		delete(fc.ttls, key)
	}
}

func (fc *FastCache) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var count int64
	now := time.Now()
	for _, key := range keys {
		if fc.existsLocked(key, now) {
			count++
		}
		fc.deleteLocked(key)
	}
	cmd.SetVal(count)
	return cmd
}

func (fc *FastCache) existsLocked(key string, now time.Time) bool {
	if fc.expiredLocked(key, now) {
		return false
	}
	_, isSet := fc.sets[key]
	return isSet || fc.keys.Contains(key)
}

func (fc *FastCache) deleteLocked(key string) {
	if fc.keys.Contains(key) {
		fc.cache.Del([]byte(key))
		fc.keys.Remove(key)
		fc.big.Remove(key)
	}
	delete(fc.sets, key)
	delete(fc.ttls, key)
}

// DelPattern 支持 Redis 风格的 glob（*、?、[...]）
func (fc *FastCache) DelPattern(ctx context.Context, pattern string) (int64, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()

	matched := make([]string, 0)
	collect := func(key string) {
		if ok, _ := path.Match(pattern, key); ok {
			matched = append(matched, key)
		}
	}
	fc.keys.Each(func(key string) bool {
		collect(key)
		return false
	})
	for key := range fc.sets {
		collect(key)
	}

	var count int64
	now := time.Now()
	for _, key := range matched {
		if fc.existsLocked(key, now) {
			count++
		}
		fc.deleteLocked(key)
	}
	return count, nil
}

func (fc *FastCache) SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "sadd", key)
	fc.mu.Lock()
	defer fc.mu.Unlock()
	cmd.SetVal(fc.saddLocked(key, members))
	return cmd
}

func (fc *FastCache) saddLocked(key string, members []any) int64 {
	if fc.expiredLocked(key, time.Now()) {
		fc.deleteLocked(key)
	}
	if fc.keys.Contains(key) {
		fc.cache.Del([]byte(key))
		fc.keys.Remove(key)
		fc.big.Remove(key)
	}
	set, ok := fc.sets[key]
	if !ok {
		set = mapset.NewThreadUnsafeSet[string]()
		fc.sets[key] = set
	}
	var added int64
	for _, m := range members {
		if set.Add(fmt.Sprint(m)) {
			added++
		}
	}
	return added
}

func (fc *FastCache) SRem(ctx context.Context, key string, members ...any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "srem", key)
	fc.mu.Lock()
	defer fc.mu.Unlock()
	set, ok := fc.sets[key]
	if !ok || fc.expiredLocked(key, time.Now()) {
		cmd.SetVal(0)
		return cmd
	}
	var removed int64
	for _, m := range members {
		s := fmt.Sprint(m)
		if set.Contains(s) {
			set.Remove(s)
			removed++
		}
	}
	// 与 Redis 一致：空集合即不存在
	if set.Cardinality() == 0 {
		fc.deleteLocked(key)
	}
	cmd.SetVal(removed)
	return cmd
}

func (fc *FastCache) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx, "smembers", key)
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	set, ok := fc.sets[key]
	if !ok || fc.expiredLocked(key, time.Now()) {
		cmd.SetVal([]string{})
		return cmd
	}
	cmd.SetVal(set.ToSlice())
	return cmd
}

func (fc *FastCache) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx, "expire", key)
	fc.mu.Lock()
	defer fc.mu.Unlock()
	cmd.SetVal(fc.expireLocked(key, expiration))
	return cmd
}

func (fc *FastCache) expireLocked(key string, expiration time.Duration) bool {
	if !fc.existsLocked(key, time.Now()) {
		return false
	}
	if expiration <= 0 {
		fc.deleteLocked(key)
		return true
	}
	fc.ttls[key] = time.Now().Add(expiration)
	return true
}

// Atomic 先记录操作，再在写锁内一次性应用，读方不会看到中间状态
func (fc *FastCache) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx := &localTx{}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.err != nil {
		return tx.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for _, op := range tx.ops {
		op(fc)
	}
	return nil
}

type localTx struct {
	ops []func(fc *FastCache)
	err error
}

func (t *localTx) Set(key string, value any, expiration time.Duration) {
	data, err := encodeValue(value)
	if err != nil {
		if t.err == nil {
			t.err = err
		}
		return
	}
	t.ops = append(t.ops, func(fc *FastCache) { fc.setLocked(key, data, expiration) })
}

func (t *localTx) Del(keys ...string) {
	t.ops = append(t.ops, func(fc *FastCache) {
		for _, key := range keys {
			fc.deleteLocked(key)
		}
	})
}

func (t *localTx) SAdd(key string, members ...any) {
	t.ops = append(t.ops, func(fc *FastCache) { fc.saddLocked(key, members) })
}

func (t *localTx) Expire(key string, expiration time.Duration) {
	t.ops = append(t.ops, func(fc *FastCache) { fc.expireLocked(key, expiration) })
}

// Clear removes all items from the cache
func (fc *FastCache) Clear() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.cache.Reset()
	fc.keys.Clear()
	fc.sets = make(map[string]mapset.Set[string])
	fc.ttls = make(map[string]time.Time)
}

// Stats returns cache statistics
func (fc *FastCache) Stats() fastcache.Stats {
	var stats fastcache.Stats
	fc.cache.UpdateStats(&stats)
	return stats
}
