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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConf struct {
	Http struct {
		Port int
	}
	Evaluation struct {
		CacheTimeout time.Duration `mapstructure:"cacheTimeout"`
	}
}

func writeConf(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestNewLoader_FileAndDir(t *testing.T) {
	dir := t.TempDir()
	p := writeConf(t, dir, "[http]\nport = 9000\n[evaluation]\ncacheTimeout = \"50ms\"\n")

	for _, path := range []string{p, dir} {
		l, err := NewLoader[testConf](path, "")
		require.NoError(t, err)
		c := l.Get()
		assert.Equal(t, 9000, c.Http.Port)
		assert.Equal(t, 50*time.Millisecond, c.Evaluation.CacheTimeout)
		assert.Equal(t, p, l.ConfigFile())
	}
}

func TestNewLoader_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	p := writeConf(t, dir, "[http]\nport = 9000\n")
	t.Setenv("FFTEST_HTTP_PORT", "9100")

	l, err := NewLoader[testConf](p, "FFTEST")
	require.NoError(t, err)
	assert.Equal(t, 9100, l.Get().Http.Port)
}

func TestNewLoader_MissingFile(t *testing.T) {
	_, err := NewLoader[testConf](filepath.Join(t.TempDir(), "nope.toml"), "")
	require.Error(t, err)
}

func TestLoader_ReloadNotifiesListeners(t *testing.T) {
	dir := t.TempDir()
	p := writeConf(t, dir, "[http]\nport = 9000\n")
	l, err := NewLoader[testConf](p, "")
	require.NoError(t, err)

	var got []int
	l.OnChange(func(old, new testConf) {
		got = append(got, old.Http.Port, new.Http.Port)
	})

	writeConf(t, dir, "[http]\nport = 9001\n")
	require.NoError(t, l.Viper().ReadInConfig())
	require.NoError(t, l.Reload())

	assert.Equal(t, []int{9000, 9001}, got)
	assert.Equal(t, 9001, l.Get().Http.Port)
}
