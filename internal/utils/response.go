package utils

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/formentries/internal/types"
)

// CodeResponse sends a success payload: {"data": {"code": ..., "title": ...}}
func CodeResponse(c *fiber.Ctx, code, title string) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": fiber.Map{
			"code":  code,
			"title": title,
		},
	})
}

// DeletedResponse sends a success payload carrying the number of deleted files
func DeletedResponse(c *fiber.Ctx, code, title string, deleted int64) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": fiber.Map{
			"code":    code,
			"title":   title,
			"deleted": deleted,
		},
	})
}

// ErrorResponse sends an ec5 error payload: {"errors": [{"code": ..., "title": ...}]}
func ErrorResponse(c *fiber.Ctx, apiErr *types.APIError) error {
	return c.Status(apiErr.Status).JSON(fiber.Map{
		"errors": []*types.APIError{apiErr},
	})
}

// ErrorResponseStruct defines the schema for error responses
type ErrorResponseStruct struct {
	Errors []types.APIError `json:"errors"`
}

// CodeData is the body of a success response
type CodeData struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Deleted *int64 `json:"deleted,omitempty"`
}

// CodeResponseStruct defines the schema for success responses
type CodeResponseStruct struct {
	Data CodeData `json:"data"`
}
