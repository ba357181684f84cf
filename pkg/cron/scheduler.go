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

// Package cron 在 robfig/cron/v3 之上提供具名任务、panic 恢复和指标上报
package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/robfig/cron/v3"
)

var (
	ErrJobExists   = errors.New("cron job already exists")
	ErrJobNotFound = errors.New("cron job not found")
)

// JobFunc 定时任务，ctx 在 Stop 时取消
type JobFunc func(ctx context.Context) error

// MetricsRecorder 由 pkg/metrics 实现
type MetricsRecorder interface {
	RecordJobRun(jobName string, duration time.Duration, err error)
	UpdateNextRun(jobName string, nextRun time.Time)
	UpdateJobsCount(count int)
}

type noopRecorder struct{}

func (noopRecorder) RecordJobRun(string, time.Duration, error) {}
func (noopRecorder) UpdateNextRun(string, time.Time)           {}
func (noopRecorder) UpdateJobsCount(int)                       {}

// EntryInfo 任务快照
type EntryInfo struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type entry struct {
	id   cron.EntryID
	spec string
}

// Scheduler 具名任务调度器
type Scheduler struct {
	c        *cron.Cron
	recorder MetricsRecorder
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]entry
}

type Option func(*Scheduler, *[]cron.Option)

// WithSeconds 使用带秒字段的 6 段表达式
func WithSeconds() Option {
	return func(_ *Scheduler, opts *[]cron.Option) {
		*opts = append(*opts, cron.WithSeconds())
	}
}

func WithLocation(loc *time.Location) Option {
	return func(_ *Scheduler, opts *[]cron.Option) {
		*opts = append(*opts, cron.WithLocation(loc))
	}
}

func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(s *Scheduler, _ *[]cron.Option) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithJobTimeout 单次执行超时，0 表示不限制
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler, _ *[]cron.Option) {
		s.timeout = d
	}
}

// New 创建调度器，同一任务上一次未结束时跳过本次
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		recorder: noopRecorder{},
		entries:  make(map[string]entry),
	}
	logger := zapLogger{}
	cronOpts := []cron.Option{
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	}
	for _, opt := range opts {
		opt(s, &cronOpts)
	}
	s.c = cron.New(cronOpts...)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// AddFunc 注册具名任务
func (s *Scheduler) AddFunc(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, name)
	}
	id, err := s.c.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("invalid cron spec %q for job %s: %w", spec, name, err)
	}
	s.entries[name] = entry{id: id, spec: spec}
	s.recorder.UpdateJobsCount(len(s.entries))
	s.recorder.UpdateNextRun(name, s.c.Entry(id).Next)
	log.Infow("cron job registered", "job", name, "spec", spec)
	return nil
}

func (s *Scheduler) run(name string, fn JobFunc) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	s.recorder.RecordJobRun(name, duration, err)
	if err != nil {
		log.Errorw("cron job failed", "job", name, "duration", duration, "error", err)
	} else {
		log.Debugw("cron job finished", "job", name, "duration", duration)
	}

	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if ok {
		s.recorder.UpdateNextRun(name, s.c.Entry(e.id).Next)
	}
}

// Remove 删除具名任务
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	s.c.Remove(e.id)
	delete(s.entries, name)
	s.recorder.UpdateJobsCount(len(s.entries))
	return nil
}

// Entries 按名称排序返回任务列表
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.entries))
	for name, e := range s.entries {
		ce := s.c.Entry(e.id)
		out = append(out, EntryInfo{Name: name, Spec: e.spec, Next: ce.Next, Prev: ce.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop 取消运行中任务的 ctx 并等待其退出，最多等到 ctx 结束
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// zapLogger 将 cron 的日志接入 pkg/log
type zapLogger struct{}

func (zapLogger) Info(msg string, keysAndValues ...any) {
	log.Debugw("cron: "+msg, keysAndValues...)
}

func (zapLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
