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

package shutdown

import (
	"sync"
	"sync/atomic"
)

// Manager 记录服务是否进入下线流程，/health 据此返回 503 让负载均衡摘流
type Manager struct {
	draining atomic.Bool
	once     sync.Once
	done     chan struct{}
}

func NewManager() *Manager {
	return &Manager{done: make(chan struct{})}
}

func (m *Manager) IsShuttingDown() bool {
	return m.draining.Load()
}

// Shutdown 只有第一次调用返回 true
func (m *Manager) Shutdown() bool {
	triggered := false
	m.once.Do(func() {
		m.draining.Store(true)
		close(m.done)
		triggered = true
	})
	return triggered
}

// Done 进入下线流程后关闭
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
