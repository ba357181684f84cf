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

	"github.com/go-arcade/flagforge/internal/engine/model"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/database"
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/go-arcade/flagforge/pkg/metrics"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ConfigStore 基于 gorm 的配置存储
// flag / 环境读取可以走从库；开关读取走主库，保证 mutation hook 之后读到的是刚提交的数据
type ConfigStore struct {
	database.IDatabase
	metrics *metrics.EvaluationMetrics
}

var _ Store = (*ConfigStore)(nil)

func NewConfigStore(db database.IDatabase, m *metrics.EvaluationMetrics) *ConfigStore {
	if m == nil {
		log.Debugw("ConfigStore initialized without metrics")
	}
	return &ConfigStore{IDatabase: db, metrics: m}
}

// translate 统一错误语义
func translate(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(flag.ErrNotFound, format, args...)
	}
	return errors.Wrapf(flag.ErrStoreUnavailable, format+": %v", append(args, err)...)
}

func (s *ConfigStore) GetFlag(ctx context.Context, orgSlug, flagKey string) (*flag.Flag, error) {
	s.metrics.StoreRead("get_flag")
	var f model.Flag
	err := database.ReadDB(s.Database()).WithContext(ctx).
		Where("org_slug = ? AND flag_key = ?", orgSlug, flagKey).
		First(&f).Error
	if err != nil {
		return nil, translate(err, "get flag %s/%s", orgSlug, flagKey)
	}
	return f.ToDomain(), nil
}

func (s *ConfigStore) GetEnvironment(ctx context.Context, flagID string, env flag.Environment) (*flag.EnvironmentConfig, error) {
	s.metrics.StoreRead("get_environment")
	var e model.FlagEnvironment
	err := database.ReadDB(s.Database()).WithContext(ctx).
		Preload("Rules", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("flag_id = ? AND environment = ?", flagID, string(env)).
		First(&e).Error
	if err != nil {
		return nil, translate(err, "get environment %s/%s", flagID, env)
	}
	cfg := e.ToDomain()
	if cfg.Malformed != "" {
		log.WithContext(ctx).Warnw("stored environment is malformed", "flagId", flagID, "environment", env, "detail", cfg.Malformed)
	}
	return cfg, nil
}

func (s *ConfigStore) GetKillSwitchesForFlag(ctx context.Context, orgSlug, flagKey string) ([]*flag.KillSwitch, error) {
	s.metrics.StoreRead("get_killswitches_for_flag")
	db := database.WriteDB(s.Database()).WithContext(ctx)
	sub := db.Model(&model.KillSwitchFlag{}).Select("kill_switch_id").Where("flag_key = ?", flagKey)

	var list []model.KillSwitch
	err := db.Preload("Flags").
		Where("org_slug = ? AND id IN (?)", orgSlug, sub).
		Order("id ASC").
		Find(&list).Error
	if err != nil {
		return nil, translate(err, "get kill switches for %s/%s", orgSlug, flagKey)
	}
	return toDomainSwitches(list), nil
}

func (s *ConfigStore) GetKillSwitch(ctx context.Context, orgSlug, key string) (*flag.KillSwitch, error) {
	s.metrics.StoreRead("get_killswitch")
	ks, err := s.findKillSwitch(database.WriteDB(s.Database()).WithContext(ctx), orgSlug, key)
	if err != nil {
		return nil, translate(err, "get kill switch %s/%s", orgSlug, key)
	}
	return ks.ToDomain(), nil
}

func (s *ConfigStore) ListKillSwitches(ctx context.Context) ([]*flag.KillSwitch, error) {
	s.metrics.StoreRead("list_killswitches")
	var list []model.KillSwitch
	err := database.WriteDB(s.Database()).WithContext(ctx).
		Preload("Flags").
		Order("id ASC").
		Find(&list).Error
	if err != nil {
		return nil, translate(err, "list kill switches")
	}
	return toDomainSwitches(list), nil
}

func (s *ConfigStore) findKillSwitch(db *gorm.DB, orgSlug, key string) (*model.KillSwitch, error) {
	var ks model.KillSwitch
	if err := db.Preload("Flags").
		Where("org_slug = ? AND switch_key = ?", orgSlug, key).
		First(&ks).Error; err != nil {
		return nil, err
	}
	return &ks, nil
}

func toDomainSwitches(list []model.KillSwitch) []*flag.KillSwitch {
	out := make([]*flag.KillSwitch, 0, len(list))
	for i := range list {
		out = append(out, list[i].ToDomain())
	}
	return out
}

// SaveFlag 按 org + key upsert，返回带 ID 的 flag
func (s *ConfigStore) SaveFlag(ctx context.Context, f *flag.Flag) (*flag.Flag, error) {
	if !flag.ValidKey(f.OrgSlug) || !flag.ValidKey(f.Key) {
		return nil, errors.Wrapf(flag.ErrInvalidRequest, "flag %q/%q", f.OrgSlug, f.Key)
	}
	m := model.FlagFromDomain(f)
	err := s.Database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Flag
		err := tx.Where("org_slug = ? AND flag_key = ?", f.OrgSlug, f.Key).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(m).Error
		case err != nil:
			return err
		}
		m.ID = existing.ID
		m.FlagId = existing.FlagId
		m.CreatedAt = existing.CreatedAt
		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(err, "save flag %s/%s", f.OrgSlug, f.Key)
	}
	return m.ToDomain(), nil
}

// SaveEnvironment 按 flag + 环境 upsert，规则整体替换
func (s *ConfigStore) SaveEnvironment(ctx context.Context, cfg *flag.EnvironmentConfig) error {
	cfg, err := canonicalEnvironment(cfg)
	if err != nil {
		return err
	}
	m, err := model.EnvironmentFromDomain(cfg)
	if err != nil {
		return errors.Wrapf(flag.ErrInvalidConfiguration, "encode environment %s/%s: %v", cfg.FlagID, cfg.Environment, err)
	}
	rules := m.Rules
	m.Rules = nil

	err = s.Database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.FlagEnvironment
		err := tx.Where("flag_id = ? AND environment = ?", m.FlagId, m.Environment).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			m.ID = existing.ID
			m.CreatedAt = existing.CreatedAt
			if err := tx.Save(m).Error; err != nil {
				return err
			}
			if err := tx.Where("environment_id = ?", m.ID).Delete(&model.FlagRule{}).Error; err != nil {
				return err
			}
		}
		// 逐条插入，保证 created_at / id 反映规则顺序
		for i := range rules {
			rules[i].EnvironmentId = m.ID
			if err := tx.Create(&rules[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return translate(err, "save environment %s/%s", cfg.FlagID, cfg.Environment)
	}
	return nil
}

func (s *ConfigStore) SaveKillSwitch(ctx context.Context, ks *flag.KillSwitch) (*flag.KillSwitch, error) {
	ks, err := ks.Normalized()
	if err != nil {
		return nil, err
	}
	m := model.KillSwitchFromDomain(ks)
	flags := m.Flags
	m.Flags = nil

	var before *flag.KillSwitch
	err = s.Database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findKillSwitch(tx, ks.OrgSlug, ks.Key)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			before = existing.ToDomain()
			m.ID = existing.ID
			m.CreatedAt = existing.CreatedAt
			if err := tx.Save(m).Error; err != nil {
				return err
			}
			if err := tx.Where("kill_switch_id = ?", m.ID).Delete(&model.KillSwitchFlag{}).Error; err != nil {
				return err
			}
		}
		for i := range flags {
			flags[i].KillSwitchId = m.ID
		}
		if len(flags) == 0 {
			return nil
		}
		return tx.Create(&flags).Error
	})
	if err != nil {
		return nil, translate(err, "save kill switch %s/%s", ks.OrgSlug, ks.Key)
	}
	return before, nil
}

func (s *ConfigStore) DeleteKillSwitch(ctx context.Context, orgSlug, key string) (*flag.KillSwitch, error) {
	var before *flag.KillSwitch
	err := s.Database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findKillSwitch(tx, orgSlug, key)
		if err != nil {
			return err
		}
		before = existing.ToDomain()
		if err := tx.Where("kill_switch_id = ?", existing.ID).Delete(&model.KillSwitchFlag{}).Error; err != nil {
			return err
		}
		return tx.Delete(existing).Error
	})
	if err != nil {
		return nil, translate(err, "delete kill switch %s/%s", orgSlug, key)
	}
	return before, nil
}
