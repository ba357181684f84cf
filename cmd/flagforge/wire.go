//go:build wireinject
// +build wireinject

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
	"github.com/go-arcade/flagforge/internal/bootstrap"
	"github.com/go-arcade/flagforge/internal/engine/conf"
	"github.com/go-arcade/flagforge/internal/engine/repo"
	"github.com/go-arcade/flagforge/internal/engine/router"
	"github.com/go-arcade/flagforge/internal/engine/service"
	"github.com/go-arcade/flagforge/pkg/cache"
	"github.com/go-arcade/flagforge/pkg/metrics"
	"github.com/go-arcade/flagforge/pkg/pprof"
	"github.com/google/wire"
	"go.uber.org/zap"
)

func initApp(loader *conf.Loader, logger *zap.Logger) (*bootstrap.App, func(), error) {
	panic(wire.Build(
		// 配置层
		conf.ProviderSet,
		// 存储层
		databaseProviderSet,
		repo.ProviderSet,
		// 缓存层
		cache.ProviderSet,
		// 指标
		metrics.ProviderSet,
		pprof.ProviderSet,
		// 服务层
		service.ProviderSet,
		// 路由层
		router.ProviderSet,
		// 应用层
		bootstrap.ProviderSet,
	))
}

func initTools(loader *conf.Loader) (*Tools, func(), error) {
	panic(wire.Build(
		conf.ProviderSet,
		databaseProviderSet,
		repo.ProviderSet,
		cache.ProviderSet,
		metrics.ProviderSet,
		service.ProviderSet,
		wire.Struct(new(Tools), "*"),
	))
}
