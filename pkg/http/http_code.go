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

package http

import "github.com/gofiber/fiber/v2"

// code -> http status
var codeStatus = map[int]int{}

var (
	Failed                        = failed(500, fiber.StatusInternalServerError, "Request failed")
	RequestParameterParsingFailed = failed(5001, fiber.StatusBadRequest, "Request parameter parsing failed")

	// BadRequest 400
	BadRequest         = failed(4000, fiber.StatusBadRequest, "Bad request")
	InvalidRequest     = failed(4001, fiber.StatusBadRequest, "Invalid request")
	OrgSlugIsEmpty     = failed(4002, fiber.StatusBadRequest, "Org slug is empty")
	FlagKeyIsEmpty     = failed(4003, fiber.StatusBadRequest, "Flag key is empty")
	NotFound           = failed(4004, fiber.StatusNotFound, "Not found")
	InvalidEnvironment = failed(4006, fiber.StatusBadRequest, "Invalid environment")

	Unauthorized          = failed(4401, fiber.StatusUnauthorized, "Unauthorized")
	Forbidden             = failed(4030, fiber.StatusForbidden, "Forbidden")
	MethodNotAllowed      = failed(4050, fiber.StatusMethodNotAllowed, "Method not allowed")
	RequestEntityTooLarge = failed(4130, fiber.StatusRequestEntityTooLarge, "Request entity too large")

	InternalError      = failed(5000, fiber.StatusInternalServerError, "Internal error, please contact the administrator")
	ServiceUnavailable = failed(5030, fiber.StatusServiceUnavailable, "Service unavailable, please retry later")
)

var (
	Success = success(200, "Request Success")
)

// StatusOf 返回业务 code 对应的 http status，未登记的 code 按 500 处理
func StatusOf(code int) int {
	if code == Success.Code {
		return fiber.StatusOK
	}
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// failed 构造函数
func failed(code, status int, msg string) *Response {
	codeStatus[code] = status
	return &Response{
		Code:   code,
		Msg:    msg,
		Detail: nil,
	}
}

// success 构造函数
func success(code int, msg string) *Response {
	return &Response{
		Code:   code,
		Msg:    msg,
		Detail: nil,
	}
}
