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

import "time"

// Snapshot flag + 一个环境 + 规则 + rollout 的只读拼装结果，缓存的基本单位
// 它不是数据源，与配置存储冲突时以存储为准
type Snapshot struct {
	OrgSlug      string      `json:"orgSlug"`
	FlagKey      string      `json:"flagKey"`
	FlagID       string      `json:"flagId"`
	FlagType     FlagType    `json:"flagType"`
	FlagActive   bool        `json:"flagActive"`
	Tags         []string    `json:"tags,omitempty"`
	Environment  Environment `json:"environment"`
	Value        any         `json:"value"`
	DefaultValue any         `json:"defaultValue"`
	EnvEnabled   bool        `json:"envEnabled"`
	Rules        []Rule      `json:"rules,omitempty"`
	Rollout      *Rollout    `json:"rollout,omitempty"`
	Malformed    string      `json:"malformed,omitempty"`
	BuiltAt      time.Time   `json:"builtAt"`
}

func NewSnapshot(f *Flag, env *EnvironmentConfig, now time.Time) *Snapshot {
	return &Snapshot{
		OrgSlug:      f.OrgSlug,
		FlagKey:      f.Key,
		FlagID:       f.ID,
		FlagType:     f.Type,
		FlagActive:   f.IsActive,
		Tags:         f.Tags,
		Environment:  env.Environment,
		Value:        env.Value,
		DefaultValue: env.DefaultValue,
		EnvEnabled:   env.IsEnabled,
		Rules:        env.Rules,
		Rollout:      env.Rollout,
		Malformed:    env.Malformed,
		BuiltAt:      now.UTC(),
	}
}
