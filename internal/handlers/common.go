// common.go
//
// Request helpers shared by the entry handlers.
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of formentries.
// formentries is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// formentries is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with formentries.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/formentries/internal/types"
	"github.com/localnerve/formentries/internal/utils"
	"github.com/rs/zerolog/log"
)

// getUserID extracts user ID from context (set by auth middleware)
func getUserID(c *fiber.Ctx) (string, error) {
	user := c.Locals("user")
	if user == nil {
		return "", fmt.Errorf("user not found in context")
	}

	userMap, ok := user.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid user data format")
	}

	userID, ok := userMap["id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found")
	}

	return userID, nil
}

// parseEnvelope decodes the request body. A body without a data key, or
// with an empty one, is refused with ec5_269.
func parseEnvelope(c *fiber.Ctx) ([]Command, *types.APIError) {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return nil, types.APIMissingData
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, types.APIBadRequest
	}
	if len(env.Data) == 0 {
		return nil, types.APIMissingData
	}
	return env.Data.Items(), nil
}

// failure answers with the ec5 payload for err, logging anything that is
// not a client error.
func failure(c *fiber.Ctx, err error, op string) error {
	apiErr := types.FromError(err)
	if apiErr.Status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("op", op).Str("url", c.OriginalURL()).Msg("request failed")
	}
	return utils.ErrorResponse(c, apiErr)
}
