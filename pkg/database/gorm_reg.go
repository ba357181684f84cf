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
	"sync"

	"gorm.io/gorm"
)

var (
	modelsMu sync.Mutex
	models   []any
)

// RegisterModels registers models for AutoMigrate, usually from a package init.
func RegisterModels(m ...any) {
	modelsMu.Lock()
	defer modelsMu.Unlock()
	models = append(models, m...)
}

// AutoMigrate migrates every registered model.
func AutoMigrate(db *gorm.DB) error {
	modelsMu.Lock()
	defer modelsMu.Unlock()
	return db.AutoMigrate(models...)
}

// GetRegisteredModels returns the registered models for Gorm.
func GetRegisteredModels() []any {
	modelsMu.Lock()
	defer modelsMu.Unlock()
	return append([]any(nil), models...)
}
