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

package flag

import "errors"

var (
	// ErrNotFound flag、环境或者组织不存在，唯一会传递给调用方的评估错误
	ErrNotFound = errors.New("not found")
	// ErrInvalidConfiguration 配置错误，评估时降级为默认值
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidRequest 缺少 flag key、org 或者环境不合法
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStoreUnavailable 配置存储不可用，本次请求失败，由调用方重试
	ErrStoreUnavailable = errors.New("configuration store unavailable")
)
