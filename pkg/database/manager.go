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

package database

import (
	"fmt"
	"io"

	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/go-arcade/flagforge/pkg/trace/inject"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

// Manager 管理配置库连接
type Manager interface {
	IDatabase
	io.Closer
}

type managerImpl struct {
	db      *gorm.DB
	closers []func() error
}

func (m *managerImpl) Database() *gorm.DB {
	return m.db
}

// Close 关闭全部连接，汇总所有错误
func (m *managerImpl) Close() error {
	var result *multierror.Error
	for _, c := range m.closers {
		if err := c(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// NewManager 按 Driver 打开连接，配置副本、连接池、日志和 trace 插件
func NewManager(cfg Database) (Manager, error) {
	primary, replicas, err := cfg.dialectors()
	if err != nil {
		return nil, err
	}

	level := gormlogger.Warn
	if cfg.Output {
		level = gormlogger.Info
	}
	db, err := gorm.Open(primary, &gorm.Config{
		Logger: NewGormLogger(level, cfg.slowThreshold()),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dataTablePrefix,
			SingularTable: true,
		},
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}

	m := &managerImpl{db: db}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	m.closers = append(m.closers, sqlDB.Close)

	if len(replicas) > 0 {
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas:          replicas,
			Policy:            dbresolver.RandomPolicy{},
			TraceResolverMode: cfg.Output,
		}).
			SetConnMaxIdleTime(cfg.connMaxIdleTime()).
			SetConnMaxLifetime(cfg.connMaxLifetime()).
			SetMaxIdleConns(cfg.MaxIdleConns).
			SetMaxOpenConns(cfg.MaxOpenConns)
		if err := db.Use(resolver); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("failed to register dbresolver: %w", err)
		}
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.connMaxLifetime())
	sqlDB.SetConnMaxIdleTime(cfg.connMaxIdleTime())

	if err := inject.RegisterGormPlugin(db, cfg.TraceQuery, false); err != nil {
		log.Warnw("failed to register OpenTelemetry gorm plugin", "error", err)
	}

	log.Infow("database connected", "driver", db.Dialector.Name(), "replicas", len(replicas))
	return m, nil
}
