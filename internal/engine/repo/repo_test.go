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

package repo

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-arcade/flagforge/internal/engine/model"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
flags:
  - orgSlug: acme
    key: checkout-v2
    type: BOOLEAN
    isActive: true
    tags: [checkout]
    environments:
      - environment: PROD
        value: true
        defaultValue: false
        isEnabled: true
        rules:
          - name: beta-users
            isEnabled: true
            conditions:
              - attributeName: plan
                attributeType: STRING
                operator: equals
                expectedValues: [beta]
          - name: staff
            isEnabled: true
            conditions:
              - attributeName: email
                attributeType: STRING
                operator: ends_with
                expectedValues: ["@acme.io"]
        rollout:
          rolloutType: PERCENTAGE
          percentage:
            percentage: 25
      - environment: DEV
        value: true
        defaultValue: false
        isEnabled: true
  - orgSlug: acme
    key: banner
    type: STRING
    isActive: true
    environments:
      - environment: PROD
        value: hello
        defaultValue: ""
        isEnabled: true
killSwitches:
  - orgSlug: acme
    key: checkout-freeze
    isActive: true
    flags:
      - flagKey: checkout-v2
        environments: [PROD]
  - orgSlug: acme
    key: global-freeze
    isActive: false
    flags:
      - flagKey: checkout-v2
      - flagKey: banner
`

func newSQLiteStore(t *testing.T) *ConfigStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	m, err := database.NewManager(database.Database{
		Driver: database.DriverSQLite,
		SQLite: database.SQLiteConfig{DSN: dsn},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, database.AutoMigrate(m.Database()))
	return NewConfigStore(m, nil)
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func seed(t *testing.T, s Store) {
	t.Helper()
	fx, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)
	stats, err := fx.Import(context.Background(), s, nil)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Flags: 2, Environments: 3, KillSwitches: 2}, stats)
}

func TestRegisteredModels(t *testing.T) {
	models := database.GetRegisteredModels()
	assert.Contains(t, models, &model.Flag{})
	assert.Contains(t, models, &model.KillSwitchFlag{})
}

func TestStore_Flags(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)

			f, err := s.GetFlag(ctx, "acme", "checkout-v2")
			require.NoError(t, err)
			assert.NotEmpty(t, f.ID)
			assert.Equal(t, flag.FlagTypeBoolean, f.Type)
			assert.True(t, f.IsActive)
			assert.Equal(t, []string{"checkout"}, f.Tags)

			env, err := s.GetEnvironment(ctx, f.ID, flag.EnvProd)
			require.NoError(t, err)
			assert.Equal(t, true, env.Value)
			assert.Equal(t, false, env.DefaultValue)
			require.Len(t, env.Rules, 2)
			assert.Equal(t, "beta-users", env.Rules[0].Name)
			assert.Equal(t, "staff", env.Rules[1].Name)
			assert.Equal(t, flag.OpEquals, env.Rules[0].Conditions[0].Operator)
			require.NotNil(t, env.Rollout)
			require.NotNil(t, env.Rollout.Percentage)
			assert.InDelta(t, 25, env.Rollout.Percentage.Percentage, 0)

			dev, err := s.GetEnvironment(ctx, f.ID, flag.EnvDev)
			require.NoError(t, err)
			assert.Nil(t, dev.Rollout)
			assert.Empty(t, dev.Rules)

			_, err = s.GetFlag(ctx, "acme", "missing")
			assert.ErrorIs(t, err, flag.ErrNotFound)
			_, err = s.GetFlag(ctx, "other-org", "checkout-v2")
			assert.ErrorIs(t, err, flag.ErrNotFound)
			_, err = s.GetEnvironment(ctx, f.ID, flag.EnvStaging)
			assert.ErrorIs(t, err, flag.ErrNotFound)
		})
	}
}

func TestStore_SaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			before, err := s.GetFlag(ctx, "acme", "banner")
			require.NoError(t, err)

			saved, err := s.SaveFlag(ctx, &flag.Flag{OrgSlug: "acme", Key: "banner", Type: flag.FlagTypeString, IsActive: false})
			require.NoError(t, err)
			assert.Equal(t, before.ID, saved.ID)

			require.NoError(t, s.SaveEnvironment(ctx, &flag.EnvironmentConfig{
				FlagID:      saved.ID,
				Environment: flag.EnvProd,
				Value:       "bye",
				IsEnabled:   true,
				Rules:       []flag.Rule{{Name: "only", IsEnabled: true}},
			}))
			env, err := s.GetEnvironment(ctx, saved.ID, flag.EnvProd)
			require.NoError(t, err)
			assert.Equal(t, "bye", env.Value)
			require.Len(t, env.Rules, 1)
			assert.Equal(t, "only", env.Rules[0].Name)

			got, err := s.GetFlag(ctx, "acme", "banner")
			require.NoError(t, err)
			assert.False(t, got.IsActive)
		})
	}
}

func TestStore_RejectsInvalidRollout(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.SaveEnvironment(ctx, &flag.EnvironmentConfig{
				FlagID:      "x",
				Environment: flag.EnvProd,
				Rollout:     &flag.Rollout{Type: flag.RolloutPercentage},
			})
			assert.ErrorIs(t, err, flag.ErrInvalidConfiguration)
		})
	}
}

func TestStore_KillSwitches(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)

			list, err := s.GetKillSwitchesForFlag(ctx, "acme", "checkout-v2")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "checkout-freeze", list[0].Key)
			assert.True(t, list[0].Affects("checkout-v2", flag.EnvProd))
			assert.False(t, list[0].Affects("checkout-v2", flag.EnvDev))
			assert.Equal(t, "global-freeze", list[1].Key)
			assert.Empty(t, list[1].Flags[0].Environments)

			list, err = s.GetKillSwitchesForFlag(ctx, "acme", "banner")
			require.NoError(t, err)
			require.Len(t, list, 1)

			list, err = s.GetKillSwitchesForFlag(ctx, "acme", "nobody")
			require.NoError(t, err)
			assert.Empty(t, list)

			// 更新映射，返回变更前的开关
			before, err := s.SaveKillSwitch(ctx, &flag.KillSwitch{
				OrgSlug:  "acme",
				Key:      "checkout-freeze",
				IsActive: true,
				Flags:    []flag.FlagMapping{{FlagKey: "banner"}},
			})
			require.NoError(t, err)
			require.NotNil(t, before)
			assert.Equal(t, "checkout-v2", before.Flags[0].FlagKey)

			list, err = s.GetKillSwitchesForFlag(ctx, "acme", "checkout-v2")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "global-freeze", list[0].Key)

			all, err := s.ListKillSwitches(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			before, err = s.DeleteKillSwitch(ctx, "acme", "global-freeze")
			require.NoError(t, err)
			assert.Equal(t, "global-freeze", before.Key)
			_, err = s.GetKillSwitch(ctx, "acme", "global-freeze")
			assert.ErrorIs(t, err, flag.ErrNotFound)
			_, err = s.DeleteKillSwitch(ctx, "acme", "global-freeze")
			assert.ErrorIs(t, err, flag.ErrNotFound)
		})
	}
}

func TestConfigStore_Unavailable(t *testing.T) {
	s := newSQLiteStore(t)
	sqlDB, err := s.Database().DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = s.GetFlag(context.Background(), "acme", "checkout-v2")
	assert.ErrorIs(t, err, flag.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, flag.ErrNotFound)
}

func TestFixture_ImportHooks(t *testing.T) {
	fx, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)

	var flagsSeen []string
	var switches []string
	_, err = fx.Import(context.Background(), NewMemoryStore(), &ImportHooks{
		OnFlag: func(_ context.Context, org, key string) error {
			flagsSeen = append(flagsSeen, org+"/"+key)
			return nil
		},
		OnKillSwitch: func(_ context.Context, before, after *flag.KillSwitch) error {
			assert.Nil(t, before)
			switches = append(switches, after.Key)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/checkout-v2", "acme/banner"}, flagsSeen)
	assert.Equal(t, []string{"checkout-freeze", "global-freeze"}, switches)
}

func TestFixture_Errors(t *testing.T) {
	_, err := ParseFixture([]byte("flags: [{orgSlug: a, key: b, bogus: 1}]"))
	assert.Error(t, err)

	fx, err := ParseFixture([]byte("flags: [{orgSlug: a, key: b, type: NOPE}]"))
	require.NoError(t, err)
	_, err = fx.Import(context.Background(), NewMemoryStore(), nil)
	assert.ErrorIs(t, err, flag.ErrInvalidConfiguration)

	_, err = ReadFixture("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}

func TestProvideStore(t *testing.T) {
	_, err := ProvideStore(Conf{Driver: DriverDatabase}, nil, nil)
	assert.Error(t, err)
	_, err = ProvideStore(Conf{Driver: "etcd"}, nil, nil)
	assert.Error(t, err)
}

func TestConfigStore_MalformedEnvironmentKeepsDefault(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seed(t, s)
	f, err := s.GetFlag(ctx, "acme", "checkout-v2")
	require.NoError(t, err)

	db := s.Database()
	require.NoError(t, db.Model(&model.FlagEnvironment{}).
		Where("flag_id = ? AND environment = ?", f.ID, "PROD").
		Update("rollout", `{"rolloutType":"PERCENTAGE","percentage":{"percentage":"fifty"}}`).Error)
	require.NoError(t, db.Model(&model.FlagRule{}).
		Where("name = ?", "staff").
		Update("conditions", `[{"attributeName":`).Error)

	env, err := s.GetEnvironment(ctx, f.ID, flag.EnvProd)
	require.NoError(t, err)
	assert.Equal(t, false, env.DefaultValue)
	assert.Equal(t, true, env.Value)
	assert.Nil(t, env.Rollout)
	require.Len(t, env.Rules, 1)
	assert.Equal(t, "beta-users", env.Rules[0].Name)
	assert.Contains(t, env.Malformed, "rollout")
	assert.Contains(t, env.Malformed, "staff")

	// 其他环境不受影响
	dev, err := s.GetEnvironment(ctx, f.ID, flag.EnvDev)
	require.NoError(t, err)
	assert.Empty(t, dev.Malformed)
}

func TestStore_CanonicalEnvironments(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			saved, err := s.SaveFlag(ctx, &flag.Flag{OrgSlug: "acme", Key: "banner", Type: flag.FlagTypeString, IsActive: true})
			require.NoError(t, err)

			require.NoError(t, s.SaveEnvironment(ctx, &flag.EnvironmentConfig{
				FlagID: saved.ID, Environment: "prod", Value: "on", DefaultValue: "off", IsEnabled: true,
			}))
			env, err := s.GetEnvironment(ctx, saved.ID, flag.EnvProd)
			require.NoError(t, err)
			assert.Equal(t, flag.EnvProd, env.Environment)

			err = s.SaveEnvironment(ctx, &flag.EnvironmentConfig{FlagID: saved.ID, Environment: "QA"})
			assert.ErrorIs(t, err, flag.ErrInvalidConfiguration)

			_, err = s.SaveKillSwitch(ctx, &flag.KillSwitch{
				OrgSlug:  "acme",
				Key:      "freeze",
				IsActive: true,
				Flags: []flag.FlagMapping{
					{FlagKey: "banner", Environments: []flag.Environment{"prod", "Prod", " staging "}},
				},
			})
			require.NoError(t, err)
			ks, err := s.GetKillSwitch(ctx, "acme", "freeze")
			require.NoError(t, err)
			assert.Equal(t, []flag.Environment{flag.EnvProd, flag.EnvStaging}, ks.Flags[0].Environments)
			assert.True(t, ks.Affects("banner", flag.EnvProd))

			_, err = s.SaveKillSwitch(ctx, &flag.KillSwitch{
				OrgSlug:  "acme",
				Key:      "typo",
				IsActive: true,
				Flags:    []flag.FlagMapping{{FlagKey: "banner", Environments: []flag.Environment{"QA"}}},
			})
			assert.ErrorIs(t, err, flag.ErrInvalidConfiguration)
			_, err = s.GetKillSwitch(ctx, "acme", "typo")
			assert.ErrorIs(t, err, flag.ErrNotFound)
		})
	}
}

func TestStore_RejectsKeySeparator(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.SaveFlag(ctx, &flag.Flag{OrgSlug: "a:PROD", Key: "x", Type: flag.FlagTypeBoolean})
			assert.ErrorIs(t, err, flag.ErrInvalidRequest)
			_, err = s.SaveFlag(ctx, &flag.Flag{OrgSlug: "a", Key: "DEV:x", Type: flag.FlagTypeBoolean})
			assert.ErrorIs(t, err, flag.ErrInvalidRequest)

			_, err = s.SaveKillSwitch(ctx, &flag.KillSwitch{OrgSlug: "a", Key: "k", Flags: []flag.FlagMapping{{FlagKey: "DEV:x"}}})
			assert.ErrorIs(t, err, flag.ErrInvalidConfiguration)
		})
	}
}

func TestFixture_NormalizesKillSwitchEnvironments(t *testing.T) {
	ctx := context.Background()
	fx, err := ParseFixture([]byte(`
killSwitches:
  - orgSlug: acme
    key: freeze
    isActive: true
    flags:
      - flagKey: banner
        environments: [prod]
`))
	require.NoError(t, err)

	store := NewMemoryStore()
	var after *flag.KillSwitch
	_, err = fx.Import(ctx, store, &ImportHooks{
		OnKillSwitch: func(_ context.Context, _, ks *flag.KillSwitch) error {
			after = ks
			return nil
		},
	})
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, []flag.Environment{flag.EnvProd}, after.Flags[0].Environments)
	assert.True(t, after.Affects("banner", flag.EnvProd))

	fx, err = ParseFixture([]byte(`
killSwitches:
  - orgSlug: acme
    key: freeze
    isActive: true
    flags:
      - flagKey: banner
        environments: [QA]
`))
	require.NoError(t, err)
	_, err = fx.Import(ctx, NewMemoryStore(), nil)
	assert.ErrorIs(t, err, flag.ErrInvalidConfiguration)
}
