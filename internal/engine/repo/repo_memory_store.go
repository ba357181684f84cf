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
	"slices"
	"sync"

	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/id"
)

// MemoryStore 进程内配置存储，用于本地开发（fixture）和测试
// 返回的对象是浅拷贝，调用方不要修改其中的切片
type MemoryStore struct {
	mu       sync.RWMutex
	flags    map[string]*flag.Flag // org/key
	envs     map[string]*flag.EnvironmentConfig
	switches map[string]*flag.KillSwitch
	order    []string // switch 插入顺序
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flags:    make(map[string]*flag.Flag),
		envs:     make(map[string]*flag.EnvironmentConfig),
		switches: make(map[string]*flag.KillSwitch),
	}
}

func pair(a, b string) string {
	return a + "/" + b
}

func (s *MemoryStore) GetFlag(_ context.Context, orgSlug, flagKey string) (*flag.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flags[pair(orgSlug, flagKey)]
	if !ok {
		return nil, fmt.Errorf("flag %s/%s: %w", orgSlug, flagKey, flag.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) GetEnvironment(_ context.Context, flagID string, env flag.Environment) (*flag.EnvironmentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.envs[pair(flagID, string(env))]
	if !ok {
		return nil, fmt.Errorf("environment %s/%s: %w", flagID, env, flag.ErrNotFound)
	}
	cp := *cfg
	return &cp, nil
}

func (s *MemoryStore) GetKillSwitchesForFlag(_ context.Context, orgSlug, flagKey string) ([]*flag.KillSwitch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*flag.KillSwitch
	for _, k := range s.order {
		ks := s.switches[k]
		if ks.OrgSlug == orgSlug && ks.FlagKeys().Contains(flagKey) {
			cp := *ks
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetKillSwitch(_ context.Context, orgSlug, key string) (*flag.KillSwitch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ks, ok := s.switches[pair(orgSlug, key)]
	if !ok {
		return nil, fmt.Errorf("kill switch %s/%s: %w", orgSlug, key, flag.ErrNotFound)
	}
	cp := *ks
	return &cp, nil
}

func (s *MemoryStore) ListKillSwitches(_ context.Context) ([]*flag.KillSwitch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*flag.KillSwitch, 0, len(s.order))
	for _, k := range s.order {
		cp := *s.switches[k]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) SaveFlag(_ context.Context, f *flag.Flag) (*flag.Flag, error) {
	if !flag.ValidKey(f.OrgSlug) || !flag.ValidKey(f.Key) {
		return nil, fmt.Errorf("flag %q/%q: %w", f.OrgSlug, f.Key, flag.ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	cp.Tags = slices.Clone(f.Tags)
	if existing, ok := s.flags[pair(f.OrgSlug, f.Key)]; ok {
		cp.ID = existing.ID
	} else if cp.ID == "" {
		cp.ID = id.GetUUID()
	}
	s.flags[pair(f.OrgSlug, f.Key)] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryStore) SaveEnvironment(_ context.Context, cfg *flag.EnvironmentConfig) error {
	cfg, err := canonicalEnvironment(cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	cp.Rules = slices.Clone(cfg.Rules)
	for i := range cp.Rules {
		if cp.Rules[i].ID == "" {
			cp.Rules[i].ID = id.GetUUID()
		}
	}
	s.envs[pair(cfg.FlagID, string(cfg.Environment))] = &cp
	return nil
}

func (s *MemoryStore) SaveKillSwitch(_ context.Context, ks *flag.KillSwitch) (*flag.KillSwitch, error) {
	ks, err := ks.Normalized()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pair(ks.OrgSlug, ks.Key)
	before, ok := s.switches[k]
	if !ok {
		s.order = append(s.order, k)
	}
	s.switches[k] = ks
	return before, nil
}

func (s *MemoryStore) DeleteKillSwitch(_ context.Context, orgSlug, key string) (*flag.KillSwitch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pair(orgSlug, key)
	before, ok := s.switches[k]
	if !ok {
		return nil, fmt.Errorf("kill switch %s/%s: %w", orgSlug, key, flag.ErrNotFound)
	}
	delete(s.switches, k)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == k })
	return before, nil
}
