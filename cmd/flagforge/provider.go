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
	"github.com/go-arcade/flagforge/internal/engine/repo"
	"github.com/go-arcade/flagforge/pkg/database"
	"github.com/google/wire"
)

// databaseProviderSet fixture 模式不需要数据库
var databaseProviderSet = wire.NewSet(provideDatabase)

func provideDatabase(storeConf repo.Conf, dbConf database.Database) (database.IDatabase, func(), error) {
	if storeConf.Driver == repo.DriverFixture {
		return nil, func() {}, nil
	}
	m, cleanup, err := database.ProvideManager(dbConf)
	if err != nil {
		return nil, nil, err
	}
	return database.ProvideIDatabase(m), cleanup, nil
}
