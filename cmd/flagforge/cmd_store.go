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

package main

import (
	"context"
	"fmt"

	"github.com/go-arcade/flagforge/internal/engine/conf"
	_ "github.com/go-arcade/flagforge/internal/engine/model"
	"github.com/go-arcade/flagforge/internal/engine/repo"
	"github.com/go-arcade/flagforge/internal/engine/service"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/database"
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/spf13/cobra"
)

// Tools 离线命令使用的依赖，不启动 HTTP 与定时任务
type Tools struct {
	Store    repo.Store
	Services *service.Services
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the flag tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := loadConf()
		if err != nil {
			return err
		}
		appConf := loader.Get()

		m, err := database.NewManager(appConf.Database)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()

		if err := database.AutoMigrate(m.Database()); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		log.Infow("migration finished", "driver", appConf.Database.Driver, "models", len(database.GetRegisteredModels()))
		return nil
	},
}

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import flags and kill switches from a YAML fixture, then refresh the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		fx, err := repo.ReadFixture(importFile)
		if err != nil {
			return err
		}
		loader, err := loadConf()
		if err != nil {
			return err
		}
		if loader.Get().Store.Driver == repo.DriverFixture {
			log.Warnw("store driver is fixture, imported data only lives in this process")
		}

		tools, cleanup, err := initTools(loader)
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := fx.Import(cmd.Context(), tools.Store, importHooks(tools.Services))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d flags, %d environments, %d kill switches\n",
			stats.Flags, stats.Environments, stats.KillSwitches)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "fixture file path")
	_ = importCmd.MarkFlagRequired("file")
}

// importHooks 写库之后失效 snapshot，并按新旧状态重建 kill switch 索引
func importHooks(s *service.Services) *repo.ImportHooks {
	return &repo.ImportHooks{
		OnFlag: func(ctx context.Context, orgSlug, flagKey string) error {
			return s.Snapshot.InvalidateAllEnvironments(ctx, orgSlug, flagKey)
		},
		OnKillSwitch: func(ctx context.Context, before, after *flag.KillSwitch) error {
			if before == nil {
				return s.KillSwitch.OnCreate(ctx, after)
			}
			return s.KillSwitch.OnUpdate(ctx, before, after)
		},
	}
}

func loadConf() (*conf.Loader, error) {
	loader, err := conf.Load(configFile)
	if err != nil {
		return nil, err
	}
	appConf := loader.Get()
	if _, err := log.NewLog(conf.ProvideLogConfig(appConf)); err != nil {
		return nil, err
	}
	return loader, nil
}
