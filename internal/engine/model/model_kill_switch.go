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
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"gorm.io/datatypes"
)

type KillSwitch struct {
	BaseModel
	OrgSlug   string           `gorm:"column:org_slug;size:128;uniqueIndex:uk_org_switch_key,priority:1" json:"orgSlug"`
	SwitchKey string           `gorm:"column:switch_key;size:128;uniqueIndex:uk_org_switch_key,priority:2" json:"switchKey"`
	IsActive  bool             `gorm:"column:is_active" json:"isActive"`
	Flags     []KillSwitchFlag `gorm:"foreignKey:KillSwitchId;constraint:OnDelete:CASCADE" json:"flags,omitempty"`
}

func (k *KillSwitch) TableName() string {
	return "t_kill_switch"
}

// KillSwitchFlag Environments 为空表示所有环境
type KillSwitchFlag struct {
	BaseModel
	KillSwitchId uint64                      `gorm:"column:kill_switch_id;index" json:"killSwitchId"`
	FlagKey      string                      `gorm:"column:flag_key;size:128;index" json:"flagKey"`
	Environments datatypes.JSONSlice[string] `gorm:"column:environments" json:"environments"`
}

func (f *KillSwitchFlag) TableName() string {
	return "t_kill_switch_flag"
}

func (k *KillSwitch) ToDomain() *flag.KillSwitch {
	ks := &flag.KillSwitch{
		OrgSlug:  k.OrgSlug,
		Key:      k.SwitchKey,
		IsActive: k.IsActive,
		Flags:    make([]flag.FlagMapping, 0, len(k.Flags)),
	}
	for _, f := range k.Flags {
		m := flag.FlagMapping{FlagKey: f.FlagKey}
		for _, e := range f.Environments {
			// 兼容历史数据里的小写环境名
			env, _ := flag.ParseEnvironment(e)
			m.Environments = append(m.Environments, env)
		}
		ks.Flags = append(ks.Flags, m)
	}
	return ks
}

func KillSwitchFromDomain(ks *flag.KillSwitch) *KillSwitch {
	k := &KillSwitch{
		OrgSlug:   ks.OrgSlug,
		SwitchKey: ks.Key,
		IsActive:  ks.IsActive,
	}
	for _, m := range ks.Flags {
		envs := make([]string, 0, len(m.Environments))
		for _, e := range m.Environments {
			envs = append(envs, string(e))
		}
		k.Flags = append(k.Flags, KillSwitchFlag{FlagKey: m.FlagKey, Environments: envs})
	}
	return k
}
