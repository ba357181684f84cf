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

package repo

import (
	"context"
	"fmt"
	"os"

	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/log"
	"sigs.k8s.io/yaml"
)

// Fixture YAML 格式的配置快照
//
//	flags:
//	  - orgSlug: acme
//	    key: checkout-v2
//	    type: BOOLEAN
//	    isActive: true
//	    environments:
//	      - environment: PROD
//	        value: true
//	        defaultValue: false
//	        isEnabled: true
//	killSwitches:
//	  - orgSlug: acme
//	    key: checkout-freeze
//	    flags: [{flagKey: checkout-v2}]
type Fixture struct {
	Flags        []FixtureFlag      `json:"flags"`
	KillSwitches []*flag.KillSwitch `json:"killSwitches"`
}

type FixtureFlag struct {
	flag.Flag
	Environments []flag.EnvironmentConfig `json:"environments"`
}

// ImportHooks 导入写库之后的缓存维护回调，可以为 nil
type ImportHooks struct {
	OnFlag       func(ctx context.Context, orgSlug, flagKey string) error
	OnKillSwitch func(ctx context.Context, before, after *flag.KillSwitch) error
}

// ImportStats 导入计数
type ImportStats struct {
	Flags        int
	Environments int
	KillSwitches int
}

func ParseFixture(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.UnmarshalStrict(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &fx, nil
}

func ReadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return ParseFixture(data)
}

// LoadFixture 读取 YAML 并构造 MemoryStore
func LoadFixture(ctx context.Context, path string) (*MemoryStore, error) {
	fx, err := ReadFixture(path)
	if err != nil {
		return nil, err
	}
	store := NewMemoryStore()
	stats, err := fx.Import(ctx, store, nil)
	if err != nil {
		return nil, err
	}
	log.Infow("fixture loaded", "path", path, "flags", stats.Flags, "environments", stats.Environments, "killSwitches", stats.KillSwitches)
	return store, nil
}

// Import 写入 w，每个对象提交之后调用 hooks
func (fx *Fixture) Import(ctx context.Context, w IConfigWriter, hooks *ImportHooks) (ImportStats, error) {
	var stats ImportStats
	for i := range fx.Flags {
		ff := &fx.Flags[i]
		if !ff.Type.Valid() {
			return stats, fmt.Errorf("flag %s/%s type %q: %w", ff.OrgSlug, ff.Key, ff.Type, flag.ErrInvalidConfiguration)
		}
		saved, err := w.SaveFlag(ctx, &ff.Flag)
		if err != nil {
			return stats, err
		}
		stats.Flags++
		for j := range ff.Environments {
			env := ff.Environments[j]
			env.FlagID = saved.ID
			if err := w.SaveEnvironment(ctx, &env); err != nil {
				return stats, fmt.Errorf("flag %s/%s: %w", ff.OrgSlug, ff.Key, err)
			}
			stats.Environments++
		}
		if hooks != nil && hooks.OnFlag != nil {
			if err := hooks.OnFlag(ctx, saved.OrgSlug, saved.Key); err != nil {
				return stats, err
			}
		}
	}

	for _, raw := range fx.KillSwitches {
		if raw == nil {
			continue
		}
		// hook 拿到的 after 必须和写入存储的一致
		ks, err := raw.Normalized()
		if err != nil {
			return stats, err
		}
		before, err := w.SaveKillSwitch(ctx, ks)
		if err != nil {
			return stats, err
		}
		stats.KillSwitches++
		if hooks != nil && hooks.OnKillSwitch != nil {
			if err := hooks.OnKillSwitch(ctx, before, ks); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}
