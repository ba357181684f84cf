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

package model

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/id"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Flag struct {
	BaseModel
	FlagId   string                      `gorm:"column:flag_id;size:36;uniqueIndex" json:"flagId"`
	OrgSlug  string                      `gorm:"column:org_slug;size:128;uniqueIndex:uk_org_flag_key,priority:1" json:"orgSlug"`
	FlagKey  string                      `gorm:"column:flag_key;size:128;uniqueIndex:uk_org_flag_key,priority:2" json:"flagKey"`
	FlagType string                      `gorm:"column:flag_type;size:32" json:"flagType"`
	IsActive bool                        `gorm:"column:is_active" json:"isActive"`
	Tags     datatypes.JSONSlice[string] `gorm:"column:tags" json:"tags"`
}

func (f *Flag) TableName() string {
	return "t_flag"
}

// BeforeCreate 业务 id 使用 uuid
func (f *Flag) BeforeCreate(*gorm.DB) error {
	if f.FlagId == "" {
		f.FlagId = id.GetUUID()
	}
	return nil
}

func (f *Flag) ToDomain() *flag.Flag {
	return &flag.Flag{
		ID:       f.FlagId,
		OrgSlug:  f.OrgSlug,
		Key:      f.FlagKey,
		Type:     flag.FlagType(f.FlagType),
		IsActive: f.IsActive,
		Tags:     []string(f.Tags),
	}
}

func FlagFromDomain(f *flag.Flag) *Flag {
	return &Flag{
		FlagId:   f.ID,
		OrgSlug:  f.OrgSlug,
		FlagKey:  f.Key,
		FlagType: string(f.Type),
		IsActive: f.IsActive,
		Tags:     datatypes.JSONSlice[string](f.Tags),
	}
}

// FlagEnvironment 一个 flag 在一个环境下的值与 rollout
type FlagEnvironment struct {
	BaseModel
	FlagId       string         `gorm:"column:flag_id;size:36;uniqueIndex:uk_flag_env,priority:1" json:"flagId"`
	Environment  string         `gorm:"column:environment;size:16;uniqueIndex:uk_flag_env,priority:2" json:"environment"`
	Value        datatypes.JSON `gorm:"column:value" json:"value"`
	DefaultValue datatypes.JSON `gorm:"column:default_value" json:"defaultValue"`
	IsEnabled    bool           `gorm:"column:is_enabled" json:"isEnabled"`
	// Rollout 为空表示全量
	Rollout datatypes.JSON `gorm:"column:rollout" json:"rollout"`
	Rules   []FlagRule     `gorm:"foreignKey:EnvironmentId;constraint:OnDelete:CASCADE" json:"rules,omitempty"`
}

func (e *FlagEnvironment) TableName() string {
	return "t_flag_environment"
}

// FlagRule 按 created_at, id 排序
// Conditions 保留原始 JSON，解析放到 ToDomain，坏数据不会让整条查询失败
type FlagRule struct {
	BaseModel
	RuleId        string         `gorm:"column:rule_id;size:36;index" json:"ruleId"`
	EnvironmentId uint64         `gorm:"column:environment_id;index" json:"environmentId"`
	Name          string         `gorm:"column:name;size:128" json:"name"`
	IsEnabled     bool           `gorm:"column:is_enabled" json:"isEnabled"`
	Conditions    datatypes.JSON `gorm:"column:conditions" json:"conditions"`
}

func (r *FlagRule) TableName() string {
	return "t_flag_rule"
}

func (r *FlagRule) BeforeCreate(*gorm.DB) error {
	if r.RuleId == "" {
		r.RuleId = id.GetUUID()
	}
	return nil
}

func decodeJSON(raw datatypes.JSON) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeJSON(v any) (datatypes.JSON, error) {
	b, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// ToDomain 解析 JSON 列，rollout 只做解码，校验留给评估阶段
// 某一列无法解析时不返回错误，而是记录在 Malformed 上，评估时返回默认值
func (e *FlagEnvironment) ToDomain() *flag.EnvironmentConfig {
	cfg := &flag.EnvironmentConfig{
		FlagID:      e.FlagId,
		Environment: flag.Environment(e.Environment),
		IsEnabled:   e.IsEnabled,
	}
	var problems []string
	var err error
	if cfg.DefaultValue, err = decodeJSON(e.DefaultValue); err != nil {
		problems = append(problems, fmt.Sprintf("default value: %v", err))
	}
	if cfg.Value, err = decodeJSON(e.Value); err != nil {
		problems = append(problems, fmt.Sprintf("value: %v", err))
	}
	if len(e.Rollout) > 0 && string(e.Rollout) != "null" {
		var r flag.Rollout
		if err := sonic.Unmarshal(e.Rollout, &r); err != nil {
			problems = append(problems, fmt.Sprintf("rollout: %v", err))
		} else {
			cfg.Rollout = &r
		}
	}
	cfg.Rules = make([]flag.Rule, 0, len(e.Rules))
	for _, r := range e.Rules {
		rule := flag.Rule{ID: r.RuleId, Name: r.Name, IsEnabled: r.IsEnabled}
		if len(r.Conditions) > 0 {
			if err := sonic.Unmarshal(r.Conditions, &rule.Conditions); err != nil {
				problems = append(problems, fmt.Sprintf("rule %s conditions: %v", r.Name, err))
				continue
			}
		}
		cfg.Rules = append(cfg.Rules, rule)
	}
	if len(problems) > 0 {
		cfg.Malformed = fmt.Sprintf("%s/%s: %s", e.FlagId, e.Environment, strings.Join(problems, "; "))
	}
	return cfg
}

func EnvironmentFromDomain(cfg *flag.EnvironmentConfig) (*FlagEnvironment, error) {
	value, err := encodeJSON(cfg.Value)
	if err != nil {
		return nil, err
	}
	defaultValue, err := encodeJSON(cfg.DefaultValue)
	if err != nil {
		return nil, err
	}
	env := &FlagEnvironment{
		FlagId:       cfg.FlagID,
		Environment:  string(cfg.Environment),
		Value:        value,
		DefaultValue: defaultValue,
		IsEnabled:    cfg.IsEnabled,
	}
	if cfg.Rollout != nil {
		if env.Rollout, err = encodeJSON(cfg.Rollout); err != nil {
			return nil, err
		}
	}
	for _, r := range cfg.Rules {
		conditions := r.Conditions
		if conditions == nil {
			conditions = []flag.Condition{}
		}
		raw, err := encodeJSON(conditions)
		if err != nil {
			return nil, err
		}
		env.Rules = append(env.Rules, FlagRule{
			RuleId:     r.ID,
			Name:       r.Name,
			IsEnabled:  r.IsEnabled,
			Conditions: raw,
		})
	}
	return env, nil
}
