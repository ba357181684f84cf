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

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvironment(t *testing.T) {
	env, ok := ParseEnvironment(" prod ")
	assert.True(t, ok)
	assert.Equal(t, EnvProd, env)

	_, ok = ParseEnvironment("QA")
	assert.False(t, ok)
}

func TestParseFlagType(t *testing.T) {
	ft, ok := ParseFlagType("ab_test")
	assert.True(t, ok)
	assert.True(t, ft.HasVariants())
	assert.False(t, FlagTypeBoolean.HasVariants())

	_, ok = ParseFlagType("DOUBLE")
	assert.False(t, ok)
}

func TestOperator_Negative(t *testing.T) {
	for _, op := range []Operator{OpNotEquals, OpNotContains, OpIsNotOneOf, OpIsEmpty} {
		assert.True(t, op.Negative(), op)
	}
	for _, op := range []Operator{OpEquals, OpContains, OpIsOneOf, OpIsNotEmpty, OpGreaterThan} {
		assert.False(t, op.Negative(), op)
	}
}

func TestRollout_Validate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	stage := &CurrentStage{Percentage: 20}

	tests := []struct {
		name    string
		rollout *Rollout
		wantErr bool
	}{
		{"nil rollout", nil, false},
		{"percentage ok", &Rollout{Type: RolloutPercentage, Percentage: &PercentageRollout{Percentage: 50}}, false},
		{"percentage window ok", &Rollout{Type: RolloutPercentage, Percentage: &PercentageRollout{Percentage: 50, StartDate: &earlier, EndDate: &now}}, false},
		{"percentage above 100", &Rollout{Type: RolloutPercentage, Percentage: &PercentageRollout{Percentage: 101}}, true},
		{"percentage negative", &Rollout{Type: RolloutPercentage, Percentage: &PercentageRollout{Percentage: -1}}, true},
		{"end before start", &Rollout{Type: RolloutPercentage, Percentage: &PercentageRollout{Percentage: 10, StartDate: &now, EndDate: &earlier}}, true},
		{"missing payload", &Rollout{Type: RolloutPercentage}, true},
		{"wrong payload", &Rollout{Type: RolloutPercentage, Progressive: &ProgressiveRollout{CurrentStage: stage}}, true},
		{"two payloads", &Rollout{Type: RolloutPercentage, Percentage: &PercentageRollout{Percentage: 1}, Progressive: &ProgressiveRollout{CurrentStage: stage}}, true},
		{"progressive ok", &Rollout{Type: RolloutProgressive, Progressive: &ProgressiveRollout{StartPercentage: 10, Increment: 10, MaxPercentage: 100, Cadence: "DAILY", CurrentStage: stage}}, false},
		{"progressive no stage", &Rollout{Type: RolloutProgressive, Progressive: &ProgressiveRollout{MaxPercentage: 100}}, true},
		{"custom ok", &Rollout{Type: RolloutCustomProgressive, CustomProgressive: &CustomProgressiveRollout{Stages: []Stage{{Percentage: 10, ActivateAt: now}}, CurrentStage: stage}}, false},
		{"custom bad stage", &Rollout{Type: RolloutCustomProgressive, CustomProgressive: &CustomProgressiveRollout{Stages: []Stage{{Percentage: 300}}, CurrentStage: stage}}, true},
		{"custom stage out of range", &Rollout{Type: RolloutCustomProgressive, CustomProgressive: &CustomProgressiveRollout{CurrentStage: &CurrentStage{Percentage: 120}}}, true},
		{"unknown type", &Rollout{Type: "GRADUAL"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rollout.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRollout_WireForm(t *testing.T) {
	raw := `{"rolloutType":"PROGRESSIVE_ROLLOUT","progressive":{"startPercentage":5,"increment":5,"maxPercentage":50,"cadence":"DAILY","currentStage":{"percentage":15}}}`
	var r Rollout
	require.NoError(t, sonic.UnmarshalString(raw, &r))
	require.NoError(t, r.Validate())
	assert.Equal(t, RolloutProgressive, r.Type)
	require.NotNil(t, r.Progressive)
	assert.Equal(t, 15.0, r.Progressive.CurrentStage.Percentage)
	assert.Nil(t, r.Percentage)

	out, err := sonic.Marshal(&r)
	require.NoError(t, err)
	assert.NotContains(t, string(out), `"percentage":{`)
	assert.Contains(t, string(out), `"rolloutType":"PROGRESSIVE_ROLLOUT"`)
}

func TestKillSwitch_Affects(t *testing.T) {
	ks := &KillSwitch{
		OrgSlug:  "acme",
		Key:      "outage",
		IsActive: true,
		Flags: []FlagMapping{
			{FlagKey: "checkout-v2", Environments: []Environment{EnvProd}},
			{FlagKey: "search"},
		},
	}

	assert.True(t, ks.Affects("checkout-v2", EnvProd))
	assert.False(t, ks.Affects("checkout-v2", EnvDev))
	for _, env := range Environments {
		assert.True(t, ks.Affects("search", env), "empty environments means all, env %s", env)
	}
	assert.False(t, ks.Affects("other", EnvProd))

	ks.IsActive = false
	assert.False(t, ks.Affects("search", EnvProd))

	var nilKS *KillSwitch
	assert.False(t, nilKS.Affects("search", EnvProd))
}

func TestKillSwitch_Normalized(t *testing.T) {
	tests := []struct {
		name    string
		in      *KillSwitch
		want    [][]Environment
		wantErr bool
	}{
		{
			name: "upper-cases and dedups",
			in:   &KillSwitch{OrgSlug: "acme", Key: "k", Flags: []FlagMapping{{FlagKey: "a", Environments: []Environment{"prod", "Prod", " staging "}}, {FlagKey: "b"}}},
			want: [][]Environment{{EnvProd, EnvStaging}, nil},
		},
		{
			name:    "unknown environment",
			in:      &KillSwitch{OrgSlug: "acme", Key: "k", Flags: []FlagMapping{{FlagKey: "a", Environments: []Environment{"QA"}}}},
			wantErr: true,
		},
		{
			name:    "separator in flag key",
			in:      &KillSwitch{OrgSlug: "acme", Key: "k", Flags: []FlagMapping{{FlagKey: "DEV:a"}}},
			wantErr: true,
		},
		{
			name:    "separator in org",
			in:      &KillSwitch{OrgSlug: "acme:PROD", Key: "k"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalized()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.Len(t, got.Flags, len(tt.want))
			for i, envs := range tt.want {
				assert.Equal(t, envs, got.Flags[i].Environments)
			}
		})
	}

	// 原对象不变
	in := &KillSwitch{OrgSlug: "acme", Key: "k", Flags: []FlagMapping{{FlagKey: "a", Environments: []Environment{"prod"}}}}
	_, err := in.Normalized()
	require.NoError(t, err)
	assert.Equal(t, []Environment{"prod"}, in.Flags[0].Environments)

	var nilSwitch *KillSwitch
	got, err := nilSwitch.Normalized()
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("checkout-v2"))
	assert.False(t, ValidKey(""))
	assert.False(t, ValidKey("  "))
	assert.False(t, ValidKey("DEV:x"))
}

func TestAffectedSnapshots(t *testing.T) {
	before := &KillSwitch{Flags: []FlagMapping{
		{FlagKey: "a", Environments: []Environment{EnvProd}},
		{FlagKey: "b", Environments: []Environment{EnvDev}},
	}}
	after := &KillSwitch{Flags: []FlagMapping{
		{FlagKey: "a", Environments: []Environment{EnvStaging}},
		{FlagKey: "c"},
	}}

	got := AffectedSnapshots(before, after)
	require.Len(t, got, 3)
	assert.True(t, got["a"].Equal(mapset.NewSet(EnvProd, EnvStaging)))
	assert.True(t, got["b"].Equal(mapset.NewSet(EnvDev)))
	assert.Equal(t, len(Environments), got["c"].Cardinality())

	assert.Empty(t, AffectedSnapshots(nil, nil))
	assert.True(t, after.FlagKeys().Equal(mapset.NewSet("a", "c")))
}

func TestNewSnapshot(t *testing.T) {
	f := &Flag{ID: "id-1", OrgSlug: "acme", Key: "checkout-v2", Type: FlagTypeBoolean, IsActive: true, Tags: []string{"web"}}
	env := &EnvironmentConfig{
		FlagID:       "id-1",
		Environment:  EnvProd,
		Value:        true,
		DefaultValue: false,
		IsEnabled:    true,
		Rules:        []Rule{{Name: "us"}},
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	s := NewSnapshot(f, env, now)
	assert.Equal(t, "acme", s.OrgSlug)
	assert.Equal(t, "checkout-v2", s.FlagKey)
	assert.Equal(t, EnvProd, s.Environment)
	assert.Equal(t, true, s.Value)
	assert.Equal(t, false, s.DefaultValue)
	assert.Len(t, s.Rules, 1)
	assert.Equal(t, time.UTC, s.BuiltAt.Location())
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "u1", Stringify("u1"))
	assert.Equal(t, "42", Stringify(42))
	assert.Equal(t, "42", Stringify(float64(42)))
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "", Stringify(nil))
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{3, 3, true},
		{uint8(7), 7, true},
		{2.5, 2.5, true},
		{" 10 ", 10, true},
		{"1e3", 1000, true},
		{"abc", 0, false},
		{"NaN", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToFloat(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}
