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

package main

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/flagforge/internal/engine/service"
	"github.com/go-arcade/flagforge/pkg/http"
	"github.com/spf13/cobra"
)

var clientOpts struct {
	server  string
	token   string
	timeout time.Duration
	org     string
}

var evalOpts struct {
	flagKey string
	env     string
	userCtx string
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a flag through a running service",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := service.EvaluationRequest{
			OrgSlug:     clientOpts.org,
			FlagKey:     evalOpts.flagKey,
			Environment: evalOpts.env,
		}
		if evalOpts.userCtx != "" {
			if err := sonic.UnmarshalString(evalOpts.userCtx, &req.UserContext); err != nil {
				return fmt.Errorf("--context must be a JSON object: %w", err)
			}
		}

		result, err := newClient().Post(cmd.Context(), "/api/v1/evaluate", nil, req)
		if err != nil {
			return err
		}
		var out service.EvaluationResult
		if err := result.Decode(&out); err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var invalidateOpts struct {
	flagKey string
	env     string
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop cached snapshots of a flag, or of a whole org when --flag is empty",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		if invalidateOpts.flagKey == "" {
			result, err := client.Post(cmd.Context(), fmt.Sprintf("/internal/orgs/%s/invalidate", clientOpts.org), nil, nil)
			if err != nil {
				return err
			}
			var out map[string]any
			if err := result.Decode(&out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		}

		var query map[string]string
		if invalidateOpts.env != "" {
			query = map[string]string{"environment": invalidateOpts.env}
		}
		result, err := client.Post(cmd.Context(), fmt.Sprintf("/internal/flags/%s/%s/invalidate", clientOpts.org, invalidateOpts.flagKey), query, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Msg)
		return nil
	},
}

var syncKey string

var syncCmd = &cobra.Command{
	Use:   "sync-killswitch",
	Short: "Reload a kill switch from the store and rewrite its cache index",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newClient().Post(cmd.Context(), fmt.Sprintf("/internal/killswitches/%s/%s/sync", clientOpts.org, syncKey), nil, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Msg)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{evalCmd, invalidateCmd, syncCmd} {
		c.Flags().StringVar(&clientOpts.server, "server", "http://127.0.0.1:8080", "flagforge base url")
		c.Flags().StringVar(&clientOpts.token, "token", "", "internal token for /internal routes")
		c.Flags().DurationVar(&clientOpts.timeout, "timeout", 5*time.Second, "request timeout")
		c.Flags().StringVar(&clientOpts.org, "org", "", "org slug")
		_ = c.MarkFlagRequired("org")
	}

	evalCmd.Flags().StringVar(&evalOpts.env, "env", "PROD", "environment")
	evalCmd.Flags().StringVar(&evalOpts.flagKey, "flag", "", "flag key")
	evalCmd.Flags().StringVar(&evalOpts.userCtx, "context", "", `user context as JSON, e.g. '{"userId":"u1"}'`)
	_ = evalCmd.MarkFlagRequired("flag")

	invalidateCmd.Flags().StringVar(&invalidateOpts.env, "env", "", "environment, empty means all")
	invalidateCmd.Flags().StringVar(&invalidateOpts.flagKey, "flag", "", "flag key, empty invalidates the whole org")

	syncCmd.Flags().StringVar(&syncKey, "key", "", "kill switch key")
	_ = syncCmd.MarkFlagRequired("key")
}

func newClient() *http.Client {
	return http.NewClient(http.ClientConf{
		BaseURL:       clientOpts.server,
		Timeout:       clientOpts.timeout,
		RetryCount:    1,
		InternalToken: clientOpts.token,
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
