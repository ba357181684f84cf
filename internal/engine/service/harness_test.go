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

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-arcade/flagforge/internal/engine/conf"
	"github.com/go-arcade/flagforge/internal/engine/repo"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/cache"
	"github.com/go-arcade/flagforge/pkg/database"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// countingStore 统计读次数，可以注入错误、panic 或阻塞
type countingStore struct {
	*repo.MemoryStore

	mu      sync.Mutex
	calls   map[string]int
	errs    map[string]error
	panicOn string
	block   chan struct{}
}

func newCountingStore() *countingStore {
	return &countingStore{
		MemoryStore: repo.NewMemoryStore(),
		calls:       make(map[string]int),
		errs:        make(map[string]error),
	}
}

func (s *countingStore) enter(op string) error {
	s.mu.Lock()
	s.calls[op]++
	err := s.errs[op]
	block := s.block
	panicOn := s.panicOn
	s.mu.Unlock()
	if panicOn == op {
		panic("boom: " + op)
	}
	if block != nil && op == "GetFlag" {
		<-block
	}
	return err
}

func (s *countingStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *countingStore) fail(op string, err error) {
	s.mu.Lock()
	s.errs[op] = err
	s.mu.Unlock()
}

func (s *countingStore) GetFlag(ctx context.Context, org, key string) (*flag.Flag, error) {
	if err := s.enter("GetFlag"); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetFlag(ctx, org, key)
}

func (s *countingStore) GetEnvironment(ctx context.Context, flagID string, env flag.Environment) (*flag.EnvironmentConfig, error) {
	if err := s.enter("GetEnvironment"); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetEnvironment(ctx, flagID, env)
}

func (s *countingStore) GetKillSwitchesForFlag(ctx context.Context, org, flagKey string) ([]*flag.KillSwitch, error) {
	if err := s.enter("GetKillSwitchesForFlag"); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetKillSwitchesForFlag(ctx, org, flagKey)
}

func (s *countingStore) GetKillSwitch(ctx context.Context, org, key string) (*flag.KillSwitch, error) {
	if err := s.enter("GetKillSwitch"); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetKillSwitch(ctx, org, key)
}

func (s *countingStore) ListKillSwitches(ctx context.Context) ([]*flag.KillSwitch, error) {
	if err := s.enter("ListKillSwitches"); err != nil {
		return nil, err
	}
	return s.MemoryStore.ListKillSwitches(ctx)
}

// brokenCache Get / SMembers 总是失败，Atomic 可选失败
type brokenCache struct {
	cache.ICache
	failReads  bool
	failAtomic bool
}

var errCacheDown = errors.New("cache down")

func (b *brokenCache) Get(ctx context.Context, key string) *redis.StringCmd {
	if b.failReads {
		return redis.NewStringResult("", errCacheDown)
	}
	return b.ICache.Get(ctx, key)
}

func (b *brokenCache) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	if b.failReads {
		return redis.NewStringSliceResult(nil, errCacheDown)
	}
	return b.ICache.SMembers(ctx, key)
}

func (b *brokenCache) Atomic(ctx context.Context, fn func(tx cache.Tx) error) error {
	if b.failAtomic {
		return errCacheDown
	}
	return b.ICache.Atomic(ctx, fn)
}

func newRedisCache(t *testing.T) cache.ICache {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisCache(client)
}

func newMemoryCache(t *testing.T) cache.ICache {
	t.Helper()
	fc := cache.NewFastCache(cache.FastCacheConfig{MaxBytes: 1024 * 1024})
	t.Cleanup(fc.Close)
	return fc
}

// cacheTiers 两种缓存实现共享同一组行为
func cacheTiers(t *testing.T) map[string]cache.ICache {
	return map[string]cache.ICache{
		"redis":  newRedisCache(t),
		"memory": newMemoryCache(t),
	}
}

type harness struct {
	store    *countingStore
	cache    cache.ICache
	services *Services
}

func testEvaluationConf() conf.Evaluation {
	return conf.Evaluation{
		CacheTimeout:     time.Second,
		StoreTimeout:     time.Second,
		Singleflight:     true,
		BatchConcurrency: 4,
		MaxBatchSize:     10,
	}
}

func newHarness(t *testing.T, c cache.ICache) *harness {
	t.Helper()
	store := newCountingStore()
	tiers := Tiers{Cache: c, Store: store}
	settings := NewSettings(testEvaluationConf())
	snapshots := NewSnapshotService(tiers, settings, nil)
	killSwitches := NewKillSwitchService(tiers, settings, conf.KillSwitch{RetryAttempts: 2, RetryBackoff: time.Millisecond}, nil)
	return &harness{
		store: store,
		cache: c,
		services: &Services{
			Settings:   settings,
			Snapshot:   snapshots,
			KillSwitch: killSwitches,
			Evaluation: NewEvaluationService(settings, snapshots, killSwitches, nil),
		},
	}
}

func (h *harness) saveFlag(t *testing.T, f *flag.Flag, envs ...flag.EnvironmentConfig) *flag.Flag {
	t.Helper()
	ctx := context.Background()
	saved, err := h.store.SaveFlag(ctx, f)
	require.NoError(t, err)
	for i := range envs {
		envs[i].FlagID = saved.ID
		require.NoError(t, h.store.SaveEnvironment(ctx, &envs[i]))
	}
	return saved
}

func (h *harness) createKillSwitch(t *testing.T, ks *flag.KillSwitch) {
	t.Helper()
	ctx := context.Background()
	before, err := h.store.SaveKillSwitch(ctx, ks)
	require.NoError(t, err)
	if before == nil {
		require.NoError(t, h.services.KillSwitch.OnCreate(ctx, ks))
	} else {
		require.NoError(t, h.services.KillSwitch.OnUpdate(ctx, before, ks))
	}
}

// alwaysRule 任何上下文都命中：缺失属性在 not_equals 下为 true
func alwaysRule(name string) flag.Rule {
	return flag.Rule{
		Name:      name,
		IsEnabled: true,
		Conditions: []flag.Condition{{
			AttributeName:  "plan",
			AttributeType:  flag.AttrString,
			Operator:       flag.OpNotEquals,
			ExpectedValues: []any{"blocked"},
		}},
	}
}

func checkoutFlag(now time.Time) (*flag.Flag, flag.EnvironmentConfig) {
	start, end := now.Add(-time.Hour), now.Add(time.Hour)
	return &flag.Flag{OrgSlug: "acme", Key: "checkout-v2", Type: flag.FlagTypeBoolean, IsActive: true},
		flag.EnvironmentConfig{
			Environment:  flag.EnvProd,
			Value:        true,
			DefaultValue: false,
			IsEnabled:    true,
			Rules: []flag.Rule{{
				Name:      "us-users",
				IsEnabled: true,
				Conditions: []flag.Condition{{
					AttributeName:  "country",
					AttributeType:  flag.AttrString,
					Operator:       flag.OpEquals,
					ExpectedValues: []any{"US"},
				}},
			}},
			Rollout: &flag.Rollout{
				Type:       flag.RolloutPercentage,
				Percentage: &flag.PercentageRollout{Percentage: 50, StartDate: &start, EndDate: &end},
			},
		}
}

// newSQLiteServices 存储换成 sqlite 上的 ConfigStore，用来覆盖 JSON 列解析的路径
func newSQLiteServices(t *testing.T) (*repo.ConfigStore, *Services) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	m, err := database.NewManager(database.Database{
		Driver: database.DriverSQLite,
		SQLite: database.SQLiteConfig{DSN: dsn},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, database.AutoMigrate(m.Database()))
	store := repo.NewConfigStore(m, nil)

	tiers := Tiers{Cache: newMemoryCache(t), Store: store}
	settings := NewSettings(testEvaluationConf())
	snapshots := NewSnapshotService(tiers, settings, nil)
	killSwitches := NewKillSwitchService(tiers, settings, conf.KillSwitch{RetryAttempts: 2, RetryBackoff: time.Millisecond}, nil)
	return store, &Services{
		Settings:   settings,
		Snapshot:   snapshots,
		KillSwitch: killSwitches,
		Evaluation: NewEvaluationService(settings, snapshots, killSwitches, nil),
	}
}
