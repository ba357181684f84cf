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
	"fmt"
	"time"

	"github.com/go-arcade/flagforge/internal/engine/consts"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/cache"
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/go-arcade/flagforge/pkg/metrics"
	"github.com/go-arcade/flagforge/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
)

// SnapshotService flag 快照的 cache-aside 读取和失效
type SnapshotService struct {
	tiers    Tiers
	settings *Settings
	query    *cache.CachedQuery[*flag.Snapshot]
	now      func() time.Time
}

func NewSnapshotService(tiers Tiers, settings *Settings, m *metrics.EvaluationMetrics) *SnapshotService {
	s := &SnapshotService{
		tiers:    tiers,
		settings: settings,
		now:      time.Now,
	}
	s.query = cache.NewCachedQuery[*flag.Snapshot](
		tiers.Cache,
		snapshotKey,
		s.load,
		cache.WithTTLFunc[*flag.Snapshot](func(snap *flag.Snapshot) time.Duration {
			return settings.TTL().For(snap.FlagType)
		}),
		cache.WithCacheTimeout[*flag.Snapshot](settings.CacheTimeout),
		cache.WithSingleflight[*flag.Snapshot](settings.Load().Singleflight),
		cache.WithResultHook[*flag.Snapshot](func(r cache.Result) {
			m.SnapshotCache(string(r))
		}),
		cache.WithLogPrefix[*flag.Snapshot]("[Snapshot]"),
	)
	return s
}

// snapshotKey params: org, env, flagKey
func snapshotKey(params ...any) string {
	return consts.SnapshotKey(params[0].(string), params[1].(flag.Environment), params[2].(string))
}

// Get 读缓存，未命中时读存储并回填；ErrNotFound 不会被缓存
func (s *SnapshotService) Get(ctx context.Context, org string, env flag.Environment, flagKey string) (*flag.Snapshot, error) {
	snap, err := s.query.Get(ctx, org, env, flagKey)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		// 缓存里是 null，直接回源
		return s.load(ctx, org, env, flagKey)
	}
	return snap, nil
}

func (s *SnapshotService) load(ctx context.Context, params ...any) (*flag.Snapshot, error) {
	org, env, flagKey := params[0].(string), params[1].(flag.Environment), params[2].(string)

	ctx, span := trace.StartSpan(ctx, "snapshot.load")
	defer span.End()
	span.SetAttributes(
		attribute.String("flag.org", org),
		attribute.String("flag.environment", string(env)),
		attribute.String("flag.key", flagKey),
	)

	sctx, cancel := withTimeout(ctx, s.settings.StoreTimeout())
	defer cancel()

	f, err := s.tiers.Store.GetFlag(sctx, org, flagKey)
	if err != nil {
		trace.RecordError(span, err)
		return nil, err
	}
	cfg, err := s.tiers.Store.GetEnvironment(sctx, f.ID, env)
	if err != nil {
		trace.RecordError(span, err)
		return nil, err
	}
	return flag.NewSnapshot(f, cfg, s.now()), nil
}

// Set 写穿缓存
func (s *SnapshotService) Set(ctx context.Context, snap *flag.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot: %w", flag.ErrInvalidRequest)
	}
	return s.query.Set(ctx, snap, snap.OrgSlug, snap.Environment, snap.FlagKey)
}

func (s *SnapshotService) Invalidate(ctx context.Context, org string, env flag.Environment, flagKey string) error {
	return s.query.Invalidate(ctx, org, env, flagKey)
}

// InvalidateAllEnvironments 删除一个 flag 在四个环境下的快照
func (s *SnapshotService) InvalidateAllEnvironments(ctx context.Context, org, flagKey string) error {
	if s.tiers.Cache == nil {
		return nil
	}
	keys := make([]string, 0, len(flag.Environments))
	for _, env := range flag.Environments {
		keys = append(keys, consts.SnapshotKey(org, env, flagKey))
	}
	if err := s.tiers.Cache.Del(ctx, keys...).Err(); err != nil {
		log.WithContext(ctx).Warnw("failed to invalidate flag snapshots", "org", org, "flagKey", flagKey, "error", err)
		return err
	}
	return nil
}

// InvalidateOrganization 按前缀删除组织下所有快照，返回删除数量
func (s *SnapshotService) InvalidateOrganization(ctx context.Context, org string) (int64, error) {
	if s.tiers.Cache == nil {
		return 0, nil
	}
	n, err := s.tiers.Cache.DelPattern(ctx, consts.OrgSnapshotPattern(org))
	if err != nil {
		log.WithContext(ctx).Warnw("failed to invalidate organization snapshots", "org", org, "error", err)
		return n, err
	}
	log.WithContext(ctx).Infow("organization snapshots invalidated", "org", org, "deleted", n)
	return n, nil
}
