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
	"sync/atomic"
	"time"

	"github.com/go-arcade/flagforge/internal/engine/conf"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
)

// 各类型的默认快照 TTL，变化越频繁的类型 TTL 越短
var defaultTTL = map[flag.FlagType]time.Duration{
	flag.FlagTypeABTest:       time.Minute,
	flag.FlagTypeBoolean:      5 * time.Minute,
	flag.FlagTypeString:       5 * time.Minute,
	flag.FlagTypeNumber:       5 * time.Minute,
	flag.FlagTypeJSON:         10 * time.Minute,
	flag.FlagTypeMultivariate: 10 * time.Minute,
}

const fallbackTTL = 5 * time.Minute

// TTLPolicy flag 类型 -> 快照 TTL，同一类型总是得到同一个 TTL
type TTLPolicy struct {
	table atomic.Pointer[map[flag.FlagType]time.Duration]
}

func NewTTLPolicy(cfg conf.Evaluation) *TTLPolicy {
	p := &TTLPolicy{}
	p.Update(cfg)
	return p
}

// Update 配置里的值覆盖默认值，非正数忽略
func (p *TTLPolicy) Update(cfg conf.Evaluation) {
	table := make(map[flag.FlagType]time.Duration, len(defaultTTL))
	for t, d := range defaultTTL {
		if v, ok := cfg.TTLFor(string(t)); ok && v > 0 {
			d = v
		}
		table[t] = d
	}
	p.table.Store(&table)
}

func (p *TTLPolicy) For(t flag.FlagType) time.Duration {
	if d, ok := (*p.table.Load())[t]; ok {
		return d
	}
	return fallbackTTL
}

// Settings 评估链路的运行时参数，配置变化时整体替换
type Settings struct {
	cur atomic.Pointer[conf.Evaluation]
	ttl *TTLPolicy
}

func NewSettings(cfg conf.Evaluation) *Settings {
	s := &Settings{ttl: NewTTLPolicy(cfg)}
	s.Update(cfg)
	return s
}

func (s *Settings) Update(cfg conf.Evaluation) {
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 8
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	s.cur.Store(&cfg)
	s.ttl.Update(cfg)
}

func (s *Settings) Load() conf.Evaluation {
	return *s.cur.Load()
}

func (s *Settings) TTL() *TTLPolicy {
	return s.ttl
}

func (s *Settings) CacheTimeout() time.Duration {
	return s.cur.Load().CacheTimeout
}

func (s *Settings) StoreTimeout() time.Duration {
	return s.cur.Load().StoreTimeout
}
