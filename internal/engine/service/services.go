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

package service

import (
	"context"
	"time"

	"github.com/go-arcade/flagforge/internal/engine/conf"
	"github.com/go-arcade/flagforge/internal/engine/repo"
	"github.com/go-arcade/flagforge/pkg/cache"
	"github.com/go-arcade/flagforge/pkg/log"
)

// Tiers 评估引擎依赖的两层存储
// Cache 只是加速，Store 是唯一的数据源
type Tiers struct {
	Cache cache.ICache
	Store repo.IConfigStore
}

// Services 统一管理所有 service
type Services struct {
	Settings   *Settings
	Snapshot   *SnapshotService
	KillSwitch *KillSwitchService
	Evaluation *EvaluationService
}

// Reload 热更新评估参数
func (s *Services) Reload(_, next conf.AppConfig) {
	s.Settings.Update(next.Evaluation)
	s.KillSwitch.UpdateConf(next.KillSwitch)
	log.Infow("evaluation settings reloaded",
		"cacheTimeout", next.Evaluation.CacheTimeout,
		"storeTimeout", next.Evaluation.StoreTimeout,
		"batchConcurrency", next.Evaluation.BatchConcurrency,
	)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
