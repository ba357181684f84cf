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

func writeConf(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o644))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	l, err := Load(writeConf(t, "[http]\nport = 9090\n"))
	require.NoError(t, err)
	c := l.Get()

	assert.Equal(t, 9090, c.Http.Port)
	assert.Equal(t, "redis", c.Cache.Driver)
	assert.Equal(t, "database", c.Store.Driver)
	assert.Equal(t, 50*time.Millisecond, c.Evaluation.CacheTimeout)
	assert.Equal(t, 2*time.Second, c.Evaluation.StoreTimeout)
	assert.True(t, c.Evaluation.Singleflight)
	assert.Equal(t, 8, c.Evaluation.BatchConcurrency)
	assert.Equal(t, "@every 5m", c.KillSwitch.ReconcileSpec)

	ttl, ok := c.Evaluation.TTLFor("AB_TEST")
	require.True(t, ok)
	assert.Equal(t, time.Minute, ttl)
	ttl, ok = c.Evaluation.TTLFor("MULTIVARIATE")
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, ttl)
	_, ok = c.Evaluation.TTLFor("NOPE")
	assert.False(t, ok)
}

func TestLoad_Overrides(t *testing.T) {
	dir := writeConf(t, `
[evaluation]
cacheTimeout = "20ms"
singleflight = false

[evaluation.ttl]
AB_TEST = "30s"

[store]
driver = "fixture"
fixturePath = "flags.yaml"
`)
	t.Setenv("FLAGFORGE_KILLSWITCH_RETRYATTEMPTS", "7")

	l, err := Load(dir)
	require.NoError(t, err)
	c := l.Get()

	assert.Equal(t, 20*time.Millisecond, c.Evaluation.CacheTimeout)
	assert.False(t, c.Evaluation.Singleflight)
	ttl, _ := c.Evaluation.TTLFor("AB_TEST")
	assert.Equal(t, 30*time.Second, ttl)
	ttl, _ = c.Evaluation.TTLFor("BOOLEAN")
	assert.Equal(t, 5*time.Minute, ttl)
	assert.Equal(t, "fixture", c.Store.Driver)
	assert.Equal(t, "flags.yaml", c.Store.FixturePath)
	assert.Equal(t, 7, c.KillSwitch.RetryAttempts)
}

func TestProviders(t *testing.T) {
	l, err := Load(writeConf(t, ""))
	require.NoError(t, err)
	c := ProvideConf(l)

	h := ProvideHttpConfig(c)
	assert.Equal(t, 8080, h.Port)
	tr := ProvideTraceConfig(c)
	assert.Equal(t, "flagforge", tr.ServiceName)
	assert.Equal(t, "stdout", ProvideLogConfig(c).Output)
}
