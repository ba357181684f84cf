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

package version

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, runtime.Version(), v.GoVersion)
	assert.Equal(t, Version, v.Version)

	var decoded Info
	require.NoError(t, sonic.Unmarshal(v.Json(), &decoded))
	assert.Equal(t, *v, decoded)
}

func TestInfo_String(t *testing.T) {
	assert.Equal(t, "1.0.0", (&Info{Version: "1.0.0"}).String())
	assert.Equal(t, "1.0.0-abc", (&Info{Version: "1.0.0", GitCommit: "abc"}).String())
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	VersionCmd.SetOut(&buf)
	VersionCmd.Run(VersionCmd, nil)
	assert.Contains(t, buf.String(), `"goVersion"`)
}
