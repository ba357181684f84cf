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
	"sort"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-arcade/flagforge/internal/engine/conf"
	"github.com/go-arcade/flagforge/internal/engine/consts"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/cache"
	"github.com/go-arcade/flagforge/pkg/cron"
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/go-arcade/flagforge/pkg/metrics"
	"github.com/go-arcade/flagforge/pkg/retry"
	"github.com/go-arcade/flagforge/pkg/trace"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
)

const ReconcileJobName = "killswitch-reconcile"

// cleanupTimeout 写失败后清理缓存的时间上限，与调用方的 context 无关
const cleanupTimeout = time.Second

// KillSwitchService 维护 kill switch 的缓存视图
//
// 正向记录 killswitch:record:{org}:{key} 保存开关的 JSON；
// 反向索引 killswitch:flag:{org}:{flagKey} 保存映射到该 flag 的开关 key，外加哨兵成员 "~"。
// 配置存储是唯一的数据源，缓存写失败时删除相关 key，下一次读取回源重建。
type KillSwitchService struct {
	tiers    Tiers
	settings *Settings
	conf     atomic.Pointer[conf.KillSwitch]
	metrics  *metrics.EvaluationMetrics
}

func NewKillSwitchService(tiers Tiers, settings *Settings, c conf.KillSwitch, m *metrics.EvaluationMetrics) *KillSwitchService {
	k := &KillSwitchService{tiers: tiers, settings: settings, metrics: m}
	k.UpdateConf(c)
	return k
}

func (k *KillSwitchService) UpdateConf(c conf.KillSwitch) {
	if c.IndexTTL <= 0 {
		c.IndexTTL = time.Hour
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 50 * time.Millisecond
	}
	k.conf.Store(&c)
}

func (k *KillSwitchService) cacheCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, k.settings.CacheTimeout())
}

func (k *KillSwitchService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, k.settings.StoreTimeout())
}

// IsActive 是否有激活的开关覆盖 flagKey + env
// 返回 error 时调用方应当按开关已激活处理
func (k *KillSwitchService) IsActive(ctx context.Context, org, flagKey string, env flag.Environment) (bool, error) {
	if k.tiers.Cache == nil {
		return k.activeFromStore(ctx, org, flagKey, env)
	}

	members, ok := k.readIndex(ctx, org, flagKey)
	if !ok {
		return k.activeFromStore(ctx, org, flagKey, env)
	}
	for _, key := range members {
		if key == consts.IndexSentinel {
			continue
		}
		ks, err := k.record(ctx, org, flagKey, key)
		if err != nil {
			return false, err
		}
		if ks.Affects(flagKey, env) {
			return true, nil
		}
	}
	return false, nil
}

// readIndex ok 为 false 表示索引未缓存或者读取失败
func (k *KillSwitchService) readIndex(ctx context.Context, org, flagKey string) ([]string, bool) {
	cctx, cancel := k.cacheCtx(ctx)
	defer cancel()
	members, err := k.tiers.Cache.SMembers(cctx, consts.KillSwitchIndexKey(org, flagKey)).Result()
	if err != nil {
		log.WithContext(ctx).Warnw("kill switch index read failed, fallback to store", "org", org, "flagKey", flagKey, "error", err)
		return nil, false
	}
	if len(members) == 0 {
		return nil, false
	}
	return members, true
}

// activeFromStore 从存储重建索引，回填缓存失败只记录日志
func (k *KillSwitchService) activeFromStore(ctx context.Context, org, flagKey string, env flag.Environment) (bool, error) {
	k.metrics.IndexRebuild()
	sctx, cancel := k.storeCtx(ctx)
	list, err := k.tiers.Store.GetKillSwitchesForFlag(sctx, org, flagKey)
	cancel()
	if err != nil {
		return false, err
	}

	if k.tiers.Cache != nil {
		cfg := k.conf.Load()
		cctx, cancel := k.cacheCtx(ctx)
		err := k.tiers.Cache.Atomic(cctx, func(tx cache.Tx) error {
			for _, ks := range list {
				data, err := sonic.MarshalString(ks)
				if err != nil {
					return err
				}
				tx.Set(consts.KillSwitchRecordKey(org, ks.Key), data, cfg.IndexTTL)
			}
			writeIndex(tx, consts.KillSwitchIndexKey(org, flagKey), switchKeys(list), cfg.IndexTTL)
			return nil
		})
		cancel()
		if err != nil {
			log.WithContext(ctx).Warnw("failed to repopulate kill switch index", "org", org, "flagKey", flagKey, "error", err)
		}
	}

	for _, ks := range list {
		if ks.Affects(flagKey, env) {
			return true, nil
		}
	}
	return false, nil
}

// record 读取正向记录，未缓存时回源；存储里已经不存在的开关视为未激活
func (k *KillSwitchService) record(ctx context.Context, org, flagKey, key string) (*flag.KillSwitch, error) {
	recordKey := consts.KillSwitchRecordKey(org, key)
	cctx, cancel := k.cacheCtx(ctx)
	data, err := k.tiers.Cache.Get(cctx, recordKey).Result()
	cancel()
	if err == nil {
		var ks flag.KillSwitch
		if err := sonic.UnmarshalString(data, &ks); err == nil {
			return &ks, nil
		}
		log.WithContext(ctx).Warnw("corrupted kill switch record, fallback to store", "key", recordKey)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.WithContext(ctx).Warnw("kill switch record read failed, fallback to store", "key", recordKey, "error", err)
	}

	sctx, cancel := k.storeCtx(ctx)
	ks, err := k.tiers.Store.GetKillSwitch(sctx, org, key)
	cancel()
	switch {
	case errors.Is(err, flag.ErrNotFound):
		k.dropMember(ctx, org, flagKey, key)
		return nil, nil
	case err != nil:
		return nil, err
	}

	if data, err := sonic.MarshalString(ks); err == nil {
		cctx, cancel := k.cacheCtx(ctx)
		if err := k.tiers.Cache.Set(cctx, recordKey, data, k.conf.Load().IndexTTL).Err(); err != nil {
			log.WithContext(ctx).Warnw("failed to cache kill switch record", "key", recordKey, "error", err)
		}
		cancel()
	}
	return ks, nil
}

// dropMember 开关在存储里已经不存在，从当前索引移除并删除正向记录
// 其他 flag 的索引依赖 TTL 和对账清理
func (k *KillSwitchService) dropMember(ctx context.Context, org, flagKey, key string) {
	cctx, cancel := k.cacheCtx(ctx)
	defer cancel()
	if err := k.tiers.Cache.SRem(cctx, consts.KillSwitchIndexKey(org, flagKey), key).Err(); err != nil {
		log.WithContext(ctx).Warnw("failed to drop kill switch from index", "org", org, "flagKey", flagKey, "key", key, "error", err)
	}
	if err := k.tiers.Cache.Del(cctx, consts.KillSwitchRecordKey(org, key)).Err(); err != nil {
		log.WithContext(ctx).Warnw("failed to drop kill switch record", "org", org, "key", key, "error", err)
	}
}

func switchKeys(list []*flag.KillSwitch) []string {
	keys := make([]string, 0, len(list))
	for _, ks := range list {
		keys = append(keys, ks.Key)
	}
	sort.Strings(keys)
	return keys
}

func writeIndex(tx cache.Tx, indexKey string, keys []string, ttl time.Duration) {
	members := make([]any, 0, len(keys)+1)
	members = append(members, consts.IndexSentinel)
	for _, key := range keys {
		members = append(members, key)
	}
	tx.Del(indexKey)
	tx.SAdd(indexKey, members...)
	tx.Expire(indexKey, ttl)
}

// OnCreate 开关写入存储之后调用
func (k *KillSwitchService) OnCreate(ctx context.Context, ks *flag.KillSwitch) error {
	return k.apply(ctx, nil, ks)
}

// OnUpdate before 为变更前的开关，映射的并集都会被重建
func (k *KillSwitchService) OnUpdate(ctx context.Context, before, after *flag.KillSwitch) error {
	return k.apply(ctx, before, after)
}

// OnDelete 开关从存储删除之后调用
func (k *KillSwitchService) OnDelete(ctx context.Context, ks *flag.KillSwitch) error {
	return k.apply(ctx, ks, nil)
}

// Sync 从存储重新加载一个开关并重写相关索引
func (k *KillSwitchService) Sync(ctx context.Context, org, key string) error {
	before := k.cachedRecord(ctx, org, key)

	sctx, cancel := k.storeCtx(ctx)
	after, err := k.tiers.Store.GetKillSwitch(sctx, org, key)
	cancel()
	switch {
	case errors.Is(err, flag.ErrNotFound):
		if before == nil {
			before = &flag.KillSwitch{OrgSlug: org, Key: key}
		}
		return k.apply(ctx, before, nil)
	case err != nil:
		return err
	}
	return k.apply(ctx, before, after)
}

// Reconcile 遍历存储里的所有开关并重写缓存，修复写失败后被删除的索引
func (k *KillSwitchService) Reconcile(ctx context.Context) error {
	sctx, cancel := withTimeout(ctx, k.settings.StoreTimeout())
	list, err := k.tiers.Store.ListKillSwitches(sctx)
	cancel()
	if err != nil {
		return fmt.Errorf("list kill switches: %w", err)
	}

	var errs *multierror.Error
	failed := 0
	for _, ks := range list {
		before := k.cachedRecord(ctx, ks.OrgSlug, ks.Key)
		if err := k.apply(ctx, before, ks); err != nil {
			failed++
			errs = multierror.Append(errs, fmt.Errorf("%s/%s: %w", ks.OrgSlug, ks.Key, err))
		}
	}
	log.WithContext(ctx).Infow("kill switches reconciled", "total", len(list), "failed", failed)
	return errs.ErrorOrNil()
}

// RegisterJobs 注册定时对账任务，spec 为空时不注册
func (k *KillSwitchService) RegisterJobs(s *cron.Scheduler) error {
	spec := k.conf.Load().ReconcileSpec
	if spec == "" {
		return nil
	}
	return s.AddFunc(ReconcileJobName, spec, k.Reconcile)
}

func (k *KillSwitchService) cachedRecord(ctx context.Context, org, key string) *flag.KillSwitch {
	if k.tiers.Cache == nil {
		return nil
	}
	cctx, cancel := k.cacheCtx(ctx)
	defer cancel()
	data, err := k.tiers.Cache.Get(cctx, consts.KillSwitchRecordKey(org, key)).Result()
	if err != nil {
		return nil
	}
	var ks flag.KillSwitch
	if sonic.UnmarshalString(data, &ks) != nil {
		return nil
	}
	return &ks
}

// apply 写路径：重建受影响 flag 的索引，并在同一个事务里失效受影响的快照
func (k *KillSwitchService) apply(ctx context.Context, before, after *flag.KillSwitch) error {
	// 环境名统一成大写，否则正向记录里的 prod 永远匹配不上 PROD
	after, err := after.Normalized()
	if err != nil {
		return err
	}
	if norm, err := before.Normalized(); err == nil {
		before = norm
	}

	ref := after
	if ref == nil {
		ref = before
	}
	if ref == nil {
		return nil
	}
	org, key := ref.OrgSlug, ref.Key

	ctx, span := trace.StartSpan(ctx, "killswitch.apply")
	defer span.End()
	span.SetAttributes(attribute.String("killswitch.org", org), attribute.String("killswitch.key", key))

	if k.tiers.Cache == nil {
		return nil
	}

	affected := flag.AffectedSnapshots(before, after)
	flagKeys := make([]string, 0, len(affected))
	for fk := range affected {
		flagKeys = append(flagKeys, fk)
	}
	sort.Strings(flagKeys)

	cfg := k.conf.Load()
	recordKey := consts.KillSwitchRecordKey(org, key)
	var record string
	if after != nil {
		data, err := sonic.MarshalString(after)
		if err != nil {
			return err
		}
		record = data
	}

	err = retry.Do(ctx, func(ctx context.Context) error {
		indexes := make(map[string][]string, len(flagKeys))
		sctx, cancel := k.storeCtx(ctx)
		defer cancel()
		for _, fk := range flagKeys {
			list, err := k.tiers.Store.GetKillSwitchesForFlag(sctx, org, fk)
			if err != nil {
				return err
			}
			indexes[fk] = switchKeys(list)
		}

		cctx, cancelCache := k.cacheCtx(ctx)
		defer cancelCache()
		return k.tiers.Cache.Atomic(cctx, func(tx cache.Tx) error {
			if after != nil {
				tx.Set(recordKey, record, cfg.IndexTTL)
			} else {
				tx.Del(recordKey)
			}
			for _, fk := range flagKeys {
				writeIndex(tx, consts.KillSwitchIndexKey(org, fk), indexes[fk], cfg.IndexTTL)
				for _, env := range affected[fk].ToSlice() {
					tx.Del(consts.SnapshotKey(org, env, fk))
				}
			}
			return nil
		})
	},
		retry.WithMaxAttempts(cfg.RetryAttempts),
		retry.WithBackoff(retry.Exponential(cfg.RetryBackoff, time.Second)),
		retry.WithJitter(retry.EqualJitter),
		retry.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			log.WithContext(ctx).Warnw("kill switch cache write failed, retrying",
				"org", org, "key", key, "attempt", attempt, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		trace.RecordError(span, err)
		k.purge(ctx, org, recordKey, flagKeys, affected)
		return fmt.Errorf("apply kill switch %s/%s: %w", org, key, err)
	}

	log.WithContext(ctx).Infow("kill switch applied", "org", org, "key", key, "flags", flagKeys, "deleted", after == nil)
	return nil
}

// purge 尽力删除正向记录、索引和快照，之后的读取全部回源
func (k *KillSwitchService) purge(ctx context.Context, org, recordKey string, flagKeys []string, affected map[string]mapset.Set[flag.Environment]) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	keys := []string{recordKey}
	for _, fk := range flagKeys {
		keys = append(keys, consts.KillSwitchIndexKey(org, fk))
		for _, env := range affected[fk].ToSlice() {
			keys = append(keys, consts.SnapshotKey(org, env, fk))
		}
	}
	if err := k.tiers.Cache.Del(cctx, keys...).Err(); err != nil {
		log.WithContext(ctx).Errorw("failed to purge kill switch cache, stale entries expire with TTL",
			"org", org, "keys", keys, "error", err)
	}
}
