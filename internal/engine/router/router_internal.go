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

package router

import (
	"github.com/go-arcade/flagforge/internal/engine/consts"
	"github.com/go-arcade/flagforge/internal/engine/service"
	"github.com/go-arcade/flagforge/internal/pkg/flag"
	"github.com/go-arcade/flagforge/pkg/http"
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/gofiber/fiber/v2"
)

// internalRouter 管理端在 store 提交后调用的 hook
func (rt *Router) internalRouter(r fiber.Router) {
	// 失效某个 flag 的 snapshot，?environment= 为空时失效全部环境
	r.Post("/flags/:org/:flagKey/invalidate", rt.invalidateFlag)

	// 失效整个 org
	r.Post("/orgs/:org/invalidate", rt.invalidateOrganization)

	// 从 store 重新加载 kill switch 并重建索引
	r.Post("/killswitches/:org/:key/sync", rt.syncKillSwitch)
}

func (rt *Router) invalidateFlag(c *fiber.Ctx) error {
	org, flagKey := c.Params("org"), c.Params("flagKey")
	ctx := c.UserContext()

	var err error
	if raw := c.Query("environment"); raw != "" {
		env, ok := flag.ParseEnvironment(raw)
		if !ok {
			return withRepError(c, service.ErrInvalidEnvironment)
		}
		err = rt.Services.Snapshot.Invalidate(ctx, org, env, flagKey)
	} else {
		err = rt.Services.Snapshot.InvalidateAllEnvironments(ctx, org, flagKey)
	}
	if err != nil {
		log.WithContext(ctx).Errorw("invalidate flag failed", "org", org, "flagKey", flagKey, "error", err)
		return http.WithRepErrMsg(c, http.ServiceUnavailable, c.Path())
	}

	c.Locals(consts.OPERATION, true)
	return nil
}

func (rt *Router) invalidateOrganization(c *fiber.Ctx) error {
	org := c.Params("org")
	deleted, err := rt.Services.Snapshot.InvalidateOrganization(c.UserContext(), org)
	if err != nil {
		log.WithContext(c.UserContext()).Errorw("invalidate organization failed", "org", org, "error", err)
		return http.WithRepErrMsg(c, http.ServiceUnavailable, c.Path())
	}

	c.Locals(consts.DETAIL, fiber.Map{"deleted": deleted})
	return nil
}

func (rt *Router) syncKillSwitch(c *fiber.Ctx) error {
	org, key := c.Params("org"), c.Params("key")
	if err := rt.Services.KillSwitch.Sync(c.UserContext(), org, key); err != nil {
		log.WithContext(c.UserContext()).Errorw("sync kill switch failed", "org", org, "key", key, "error", err)
		return withRepError(c, err)
	}

	c.Locals(consts.OPERATION, true)
	return nil
}
