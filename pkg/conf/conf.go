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

package conf

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/spf13/viper"
)

const (
	defaultConfigDir  = "./conf.d"
	defaultConfigName = "config"
	defaultConfigType = "toml"
)

// Listener 配置变化回调，old 是变化前的配置
type Listener[T any] func(old, new T)

// Loader 读取 toml 配置并在文件变化时重新解析
// 环境变量覆盖：前缀 + 大写 key，层级用 _ 连接，例如 FLAGFORGE_HTTP_PORT
type Loader[T any] struct {
	v *viper.Viper

	mu        sync.RWMutex
	current   T
	listeners []Listener[T]
}

// NewLoader path 可以是文件，也可以是目录（读取目录下的 config.toml），为空时读取 ./conf.d
func NewLoader[T any](path, envPrefix string) (*Loader[T], error) {
	v := viper.New()
	v.SetConfigType(defaultConfigType)
	if path == "" {
		path = defaultConfigDir
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		v.AddConfigPath(path)
		v.SetConfigName(defaultConfigName)
	} else {
		v.SetConfigFile(path)
	}
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	l := &Loader[T]{v: v}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Get 返回当前配置的副本
func (l *Loader[T]) Get() T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange 注册配置变化回调
func (l *Loader[T]) OnChange(fn Listener[T]) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Reload 重新解析配置并通知 listener，解析失败时保留旧配置
func (l *Loader[T]) Reload() error {
	var next T
	if err := l.v.Unmarshal(&next); err != nil {
		return fmt.Errorf("failed to unmarshal configuration file: %w", err)
	}

	l.mu.Lock()
	old := l.current
	l.current = next
	listeners := append([]Listener[T](nil), l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(old, next)
	}
	return nil
}

// Watch 监听配置文件变化
func (l *Loader[T]) Watch() {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		log.Infow("configuration changed, reloading", "file", e.Name, "op", e.Op.String())
		if err := l.Reload(); err != nil {
			log.Errorw("configuration reload failed, keep previous", "file", e.Name, "error", err)
		}
	})
	l.v.WatchConfig()
}

// ConfigFile 实际使用的配置文件
func (l *Loader[T]) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader[T]) Viper() *viper.Viper {
	return l.v
}
