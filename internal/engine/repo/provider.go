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

	"github.com/go-arcade/flagforge/pkg/database"
	"github.com/go-arcade/flagforge/pkg/metrics"
	"github.com/google/wire"
)

const (
	DriverDatabase = "database"
	DriverFixture  = "fixture"
)

// Conf 配置存储选择
type Conf struct {
	// Driver database | fixture
	Driver      string `mapstructure:"driver"`
	FixturePath string `mapstructure:"fixturePath"`
}

// ProviderSet 提供配置存储
var ProviderSet = wire.NewSet(ProvideStore, wire.Bind(new(IConfigStore), new(Store)))

// ProvideStore fixture 模式下不会连接数据库，db 允许为 nil
func ProvideStore(conf Conf, db database.IDatabase, m *metrics.EvaluationMetrics) (Store, error) {
	switch conf.Driver {
	case "", DriverDatabase:
		if db == nil {
			return nil, fmt.Errorf("store driver %q requires a database", DriverDatabase)
		}
		return NewConfigStore(db, m), nil
	case DriverFixture:
		return LoadFixture(context.Background(), conf.FixturePath)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", conf.Driver)
	}
}
