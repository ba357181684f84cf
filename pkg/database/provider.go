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
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/google/wire"
)

// ProviderSet 提供数据库相关的依赖
var ProviderSet = wire.NewSet(ProvideManager, ProvideIDatabase)

// ProvideManager 打开连接，cleanup 时关闭
func ProvideManager(conf Database) (Manager, func(), error) {
	m, err := NewManager(conf)
	if err != nil {
		return nil, nil, err
	}
	return m, func() {
		if err := m.Close(); err != nil {
			log.Errorw("failed to close database", "error", err)
		}
	}, nil
}

func ProvideIDatabase(m Manager) IDatabase {
	return m
}
