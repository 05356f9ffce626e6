package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/formentries/internal/services"
	"github.com/localnerve/formentries/internal/types"
	"github.com/localnerve/formentries/internal/utils"
	"github.com/rs/zerolog/log"
)

// AuthUser validates that the request has user role authorization
func AuthUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authorize(c, []string{"user"})
	}
}

// authorize performs the authorization check and stores the user as
// map{"id": ..., "email": ...} in c.Locals("user")
func authorize(c *fiber.Ctx, roles []string) error {
	// Get session cookie
	session := c.Cookies("cookie_session")
	if session == "" {
		return utils.ErrorResponse(c, types.APIUnauthorized)
	}

	// Validate session
	user, err := services.ValidateSession(session, roles)
	if err != nil {
		log.Debug().Err(err).Str("url", c.OriginalURL()).Msg("session rejected")
		return utils.ErrorResponse(c, types.APIUnauthorized)
	}

	c.Locals("user", user)
	return c.Next()
}
