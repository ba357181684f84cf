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

	"github.com/go-arcade/flagforge/internal/pkg/flag"
)

// IConfigStore 配置存储的只读契约，评估引擎只依赖这一层
// 未找到返回 flag.ErrNotFound，存储故障返回 flag.ErrStoreUnavailable，两者都通过 errors.Is 判断
type IConfigStore interface {
	GetFlag(ctx context.Context, orgSlug, flagKey string) (*flag.Flag, error)
	// GetEnvironment 返回规则（按创建顺序）和 rollout
	GetEnvironment(ctx context.Context, flagID string, env flag.Environment) (*flag.EnvironmentConfig, error)
	// GetKillSwitchesForFlag 返回映射到 flagKey 的全部开关，不区分是否激活
	GetKillSwitchesForFlag(ctx context.Context, orgSlug, flagKey string) ([]*flag.KillSwitch, error)
	GetKillSwitch(ctx context.Context, orgSlug, key string) (*flag.KillSwitch, error)
	ListKillSwitches(ctx context.Context) ([]*flag.KillSwitch, error)
}

// IConfigWriter 写入接口，只给导入命令和测试使用
// SaveKillSwitch / DeleteKillSwitch 返回变更前的开关，便于调用方触发 OnUpdate / OnDelete
type IConfigWriter interface {
	SaveFlag(ctx context.Context, f *flag.Flag) (*flag.Flag, error)
	SaveEnvironment(ctx context.Context, cfg *flag.EnvironmentConfig) error
	SaveKillSwitch(ctx context.Context, ks *flag.KillSwitch) (before *flag.KillSwitch, err error)
	DeleteKillSwitch(ctx context.Context, orgSlug, key string) (before *flag.KillSwitch, err error)
}

// Store 读写都支持的存储
type Store interface {
	IConfigStore
	IConfigWriter
}

// canonicalEnvironment 写入前的统一校验：rollout 形状合法，环境名转成大写
func canonicalEnvironment(cfg *flag.EnvironmentConfig) (*flag.EnvironmentConfig, error) {
	if err := cfg.Rollout.Validate(); err != nil {
		return nil, err
	}
	env, ok := flag.ParseEnvironment(string(cfg.Environment))
	if !ok {
		return nil, fmt.Errorf("environment %q: %w", cfg.Environment, flag.ErrInvalidConfiguration)
	}
	cp := *cfg
	cp.Environment = env
	return &cp, nil
}
