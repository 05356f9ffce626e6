package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/formentries/internal/types"
	"github.com/localnerve/formentries/internal/utils"
)

// BulkDeleteEntries handles POST /api/projects/:project/bulk-deletion/entries
// @Summary Delete a chunk of entries
// @Description Delete the oldest chunk of a locked project's entries with their branch entries and media. Repeat until nothing is left.
// @Tags Bulk
// @Produce json
// @Param project path string true "Project ref"
// @Success 200 {object} utils.CodeResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /projects/{project}/bulk-deletion/entries [post]
func (h *EntriesHandler) BulkDeleteEntries(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, types.APIUnauthorized)
	}
	project, err := h.project(c)
	if err != nil {
		return failure(c, err, "bulkDeleteEntries")
	}

	if _, err := h.Purge.PurgeEntriesChunk(c.UserContext(), project, userID); err != nil {
		return failure(c, err, "bulkDeleteEntries")
	}
	return utils.CodeResponse(c, types.CodeChunkEntries, types.TitleChunkEntries)
}

// BulkDeleteMedia handles POST /api/projects/:project/bulk-deletion/media
// @Summary Delete a chunk of media
// @Description Delete up to one chunk of a locked project's media files and report how many went
// @Tags Bulk
// @Produce json
// @Param project path string true "Project ref"
// @Success 200 {object} utils.CodeResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /projects/{project}/bulk-deletion/media [post]
func (h *EntriesHandler) BulkDeleteMedia(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return utils.ErrorResponse(c, types.APIUnauthorized)
	}
	project, err := h.project(c)
	if err != nil {
		return failure(c, err, "bulkDeleteMedia")
	}

	removal, err := h.Purge.PurgeMediaChunk(c.UserContext(), project, userID)
	if err != nil {
		return failure(c, err, "bulkDeleteMedia")
	}
	return utils.DeletedResponse(c, types.CodeChunkMedia, types.TitleChunkMedia, removal.Files())
}
