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

package flag

import (
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

type KillSwitch struct {
	OrgSlug  string        `json:"orgSlug"`
	Key      string        `json:"key"`
	IsActive bool          `json:"isActive"`
	Flags    []FlagMapping `json:"flags"`
}

// FlagMapping Environments 为空表示所有环境
type FlagMapping struct {
	FlagKey      string        `json:"flagKey"`
	Environments []Environment `json:"environments,omitempty"`
}

// Covers 映射是否覆盖 env
func (m FlagMapping) Covers(env Environment) bool {
	return len(m.Environments) == 0 || slices.Contains(m.Environments, env)
}

// Normalized 返回环境名统一为大写、去重后的副本
// 未知环境或非法 key 返回 ErrInvalidConfiguration，避免一个激活的开关因为写错大小写而不生效
func (k *KillSwitch) Normalized() (*KillSwitch, error) {
	if k == nil {
		return nil, nil
	}
	if !ValidKey(k.OrgSlug) || !ValidKey(k.Key) {
		return nil, fmt.Errorf("kill switch %q/%q: %w", k.OrgSlug, k.Key, ErrInvalidConfiguration)
	}
	out := *k
	out.Flags = make([]FlagMapping, 0, len(k.Flags))
	for _, m := range k.Flags {
		if !ValidKey(m.FlagKey) {
			return nil, fmt.Errorf("kill switch %s/%s maps flag key %q: %w", k.OrgSlug, k.Key, m.FlagKey, ErrInvalidConfiguration)
		}
		nm := FlagMapping{FlagKey: m.FlagKey}
		for _, raw := range m.Environments {
			env, ok := ParseEnvironment(string(raw))
			if !ok {
				return nil, fmt.Errorf("kill switch %s/%s environment %q: %w", k.OrgSlug, k.Key, raw, ErrInvalidConfiguration)
			}
			if !slices.Contains(nm.Environments, env) {
				nm.Environments = append(nm.Environments, env)
			}
		}
		out.Flags = append(out.Flags, nm)
	}
	return &out, nil
}

// ExpandedEnvironments 空列表展开成全部环境
func (m FlagMapping) ExpandedEnvironments() []Environment {
	if len(m.Environments) == 0 {
		return slices.Clone(Environments)
	}
	return slices.Clone(m.Environments)
}

// Affects 开关处于激活状态且某个映射覆盖了 flagKey + env
func (k *KillSwitch) Affects(flagKey string, env Environment) bool {
	if k == nil || !k.IsActive {
		return false
	}
	for _, m := range k.Flags {
		if m.FlagKey == flagKey && m.Covers(env) {
			return true
		}
	}
	return false
}

// FlagKeys 开关映射到的 flag key 集合
func (k *KillSwitch) FlagKeys() mapset.Set[string] {
	keys := mapset.NewThreadUnsafeSet[string]()
	if k == nil {
		return keys
	}
	for _, m := range k.Flags {
		keys.Add(m.FlagKey)
	}
	return keys
}

// AffectedSnapshots 一次变更需要失效的 flag -> 环境集合，before/after 可以为 nil
// 同一个 flag 的多条映射取并集
func AffectedSnapshots(before, after *KillSwitch) map[string]mapset.Set[Environment] {
	out := make(map[string]mapset.Set[Environment])
	for _, ks := range []*KillSwitch{before, after} {
		if ks == nil {
			continue
		}
		for _, m := range ks.Flags {
			envs, ok := out[m.FlagKey]
			if !ok {
				envs = mapset.NewThreadUnsafeSet[Environment]()
				out[m.FlagKey] = envs
			}
			envs.Append(m.ExpandedEnvironments()...)
		}
	}
	return out
}
