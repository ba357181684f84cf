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
	"sync"
	"testing"
	"time"

	"github.com/go-arcade/flagforge/internal/engine/conf"
	"github.com/go-arcade/flagforge/internal/engine/consts"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLPolicy(t *testing.T) {
	p := NewTTLPolicy(conf.Evaluation{})
	assert.Equal(t, time.Minute, p.For(flag.FlagTypeABTest))
	assert.Equal(t, 5*time.Minute, p.For(flag.FlagTypeBoolean))
	assert.Equal(t, 5*time.Minute, p.For(flag.FlagTypeNumber))
	assert.Equal(t, 10*time.Minute, p.For(flag.FlagTypeJSON))
	assert.Equal(t, 10*time.Minute, p.For(flag.FlagTypeMultivariate))
	assert.Equal(t, fallbackTTL, p.For("UNKNOWN"))

	p.Update(conf.Evaluation{TTL: map[string]time.Duration{"ab_test": 30 * time.Second, "json": -1}})
	assert.Equal(t, 30*time.Second, p.For(flag.FlagTypeABTest))
	assert.Equal(t, 10*time.Minute, p.For(flag.FlagTypeJSON))
}

func TestSnapshotService_CacheAside(t *testing.T) {
	ctx := context.Background()
	for name, c := range cacheTiers(t) {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, c)
			f, env := checkoutFlag(time.Now())
			saved := h.saveFlag(t, f, env)

			snap, err := h.services.Snapshot.Get(ctx, "acme", flag.EnvProd, "checkout-v2")
			require.NoError(t, err)
			assert.Equal(t, saved.ID, snap.FlagID)
			assert.Equal(t, flag.FlagTypeBoolean, snap.FlagType)
			assert.Equal(t, true, snap.Value)
			require.Len(t, snap.Rules, 1)
			require.NotNil(t, snap.Rollout)

			again, err := h.services.Snapshot.Get(ctx, "acme", flag.EnvProd, "checkout-v2")
			require.NoError(t, err)
			assert.Equal(t, snap.FlagID, again.FlagID)
			assert.Equal(t, 1, h.store.count("GetFlag"), "second read must hit the cache")

			_, err = h.cache.Get(ctx, consts.SnapshotKey("acme", flag.EnvProd, "checkout-v2")).Result()
			assert.NoError(t, err)
		})
	}
}

func TestSnapshotService_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))

	for range 2 {
		_, err := h.services.Snapshot.Get(ctx, "acme", flag.EnvProd, "missing")
		assert.ErrorIs(t, err, flag.ErrNotFound)
	}
	assert.Equal(t, 2, h.store.count("GetFlag"))

	// flag 存在但环境没有配置
	f, env := checkoutFlag(time.Now())
	h.saveFlag(t, f, env)
	_, err := h.services.Snapshot.Get(ctx, "acme", flag.EnvDev, "checkout-v2")
	assert.ErrorIs(t, err, flag.ErrNotFound)
	_, err = h.cache.Get(ctx, consts.SnapshotKey("acme", flag.EnvDev, "checkout-v2")).Result()
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestSnapshotService_CacheErrorFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &brokenCache{ICache: newMemoryCache(t), failReads: true})
	f, env := checkoutFlag(time.Now())
	h.saveFlag(t, f, env)

	for range 3 {
		snap, err := h.services.Snapshot.Get(ctx, "acme", flag.EnvProd, "checkout-v2")
		require.NoError(t, err)
		assert.Equal(t, true, snap.Value)
	}
	assert.Equal(t, 3, h.store.count("GetFlag"))
}

func TestSnapshotService_StoreErrorPropagates(t *testing.T) {
	h := newHarness(t, newMemoryCache(t))
	h.store.fail("GetFlag", flag.ErrStoreUnavailable)
	_, err := h.services.Snapshot.Get(context.Background(), "acme", flag.EnvProd, "checkout-v2")
	assert.ErrorIs(t, err, flag.ErrStoreUnavailable)
}

func TestSnapshotService_Singleflight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))
	f, env := checkoutFlag(time.Now())
	h.saveFlag(t, f, env)

	release := make(chan struct{})
	h.store.block = release

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := h.services.Snapshot.Get(ctx, "acme", flag.EnvProd, "checkout-v2")
			assert.NoError(t, err)
			assert.NotNil(t, snap)
		}()
	}
	require.Eventually(t, func() bool { return h.store.count("GetFlag") >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, h.store.count("GetFlag"))
}

func TestSnapshotService_Invalidate(t *testing.T) {
	ctx := context.Background()
	for name, c := range cacheTiers(t) {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, c)
			f, prod := checkoutFlag(time.Now())
			dev := prod
			dev.Environment = flag.EnvDev
			h.saveFlag(t, f, prod, dev)
			other := h.saveFlag(t, &flag.Flag{OrgSlug: "globex", Key: "checkout-v2", Type: flag.FlagTypeBoolean, IsActive: true}, prod)
			require.NotEmpty(t, other.ID)

			warm := func() {
				for _, key := range []struct {
					org string
					env flag.Environment
				}{{"acme", flag.EnvProd}, {"acme", flag.EnvDev}, {"globex", flag.EnvProd}} {
					_, err := h.services.Snapshot.Get(ctx, key.org, key.env, "checkout-v2")
					require.NoError(t, err)
				}
			}
			cached := func(org string, env flag.Environment) bool {
				_, err := h.cache.Get(ctx, consts.SnapshotKey(org, env, "checkout-v2")).Result()
				return err == nil
			}

			warm()
			require.NoError(t, h.services.Snapshot.Invalidate(ctx, "acme", flag.EnvProd, "checkout-v2"))
			assert.False(t, cached("acme", flag.EnvProd))
			assert.True(t, cached("acme", flag.EnvDev))

			warm()
			require.NoError(t, h.services.Snapshot.InvalidateAllEnvironments(ctx, "acme", "checkout-v2"))
			assert.False(t, cached("acme", flag.EnvProd))
			assert.False(t, cached("acme", flag.EnvDev))
			assert.True(t, cached("globex", flag.EnvProd))

			warm()
			n, err := h.services.Snapshot.InvalidateOrganization(ctx, "acme")
			require.NoError(t, err)
			assert.EqualValues(t, 2, n)
			assert.False(t, cached("acme", flag.EnvProd))
			assert.True(t, cached("globex", flag.EnvProd))
		})
	}
}

func TestSnapshotService_SetWritesThrough(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))
	snap := &flag.Snapshot{OrgSlug: "acme", FlagKey: "banner", FlagType: flag.FlagTypeString, Environment: flag.EnvProd, Value: "hi"}
	require.NoError(t, h.services.Snapshot.Set(ctx, snap))

	got, err := h.services.Snapshot.Get(ctx, "acme", flag.EnvProd, "banner")
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Value)
	assert.Zero(t, h.store.count("GetFlag"))

	assert.ErrorIs(t, h.services.Snapshot.Set(ctx, nil), flag.ErrInvalidRequest)
}
