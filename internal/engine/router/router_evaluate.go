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
	"github.com/go-arcade/flagforge/pkg/http"
	"github.com/go-arcade/flagforge/pkg/log"
	"github.com/gofiber/fiber/v2"
)

func (rt *Router) evaluateRouter(r fiber.Router) {
	evaluateGroup := r.Group("/evaluate")
	{
		// 单个 flag 评估
		evaluateGroup.Post("", rt.evaluate)

		// 批量评估
		evaluateGroup.Post("/batch", rt.evaluateBatch)
	}
}

func (rt *Router) evaluate(c *fiber.Ctx) error {
	var req service.EvaluationRequest
	if err := c.BodyParser(&req); err != nil {
		log.WithContext(c.UserContext()).Warnw("parse evaluation request failed", "error", err)
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed, c.Path())
	}

	result, err := rt.Services.Evaluation.Evaluate(c.UserContext(), &req)
	if err != nil {
		log.WithContext(c.UserContext()).Debugw("evaluation failed",
			"org", req.OrgSlug, "flagKey", req.FlagKey, "environment", req.Environment, "error", err)
		return withRepError(c, err)
	}

	c.Locals(consts.DETAIL, result)
	return nil
}

func (rt *Router) evaluateBatch(c *fiber.Ctx) error {
	var req service.BatchRequest
	if err := c.BodyParser(&req); err != nil {
		log.WithContext(c.UserContext()).Warnw("parse batch request failed", "error", err)
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed, c.Path())
	}

	items, err := rt.Services.Evaluation.EvaluateBatch(c.UserContext(), &req)
	if err != nil {
		return withRepError(c, err)
	}

	c.Locals(consts.DETAIL, items)
	return nil
}
