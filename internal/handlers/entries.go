// entries.go
//
// Entry upload, archive and delete routes.
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
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/formentries/internal/lifecycle"
	"github.com/localnerve/formentries/internal/models"
	"github.com/localnerve/formentries/internal/purge"
	"github.com/localnerve/formentries/internal/repository"
	"github.com/localnerve/formentries/internal/types"
	"github.com/localnerve/formentries/internal/utils"
	"github.com/rs/zerolog/log"
)

// EntriesHandler handles the project entry routes
type EntriesHandler struct {
	Repo   *repository.Repository
	Engine *lifecycle.Engine
	Purge  *purge.Coordinator
}

// Register mounts the entry routes on a router
func (h *EntriesHandler) Register(r fiber.Router) {
	r.Post("/:project/upload", h.Upload)
	r.Post("/:project/archive", h.Archive)
	r.Post("/:project/delete", h.Delete)
	r.Post("/:project/bulk-deletion/entries", h.BulkDeleteEntries)
	r.Post("/:project/bulk-deletion/media", h.BulkDeleteMedia)
}

func (h *EntriesHandler) project(c *fiber.Ctx) (*models.Project, error) {
	return h.Repo.FindProjectByRef(c.UserContext(), c.Params("project"))
}

// Upload handles POST /api/projects/:project/upload
// @Summary Upload entries
// @Description Create one entry or branch entry, or a batch of them
// @Tags Entries
// @Accept json
// @Produce json
// @Param project path string true "Project ref"
// @Param body body Envelope true "Entry commands"
// @Success 200 {object} utils.CodeResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /projects/{project}/upload [post]
func (h *EntriesHandler) Upload(c *fiber.Ctx) error {
	project, err := h.project(c)
	if err != nil {
		return failure(c, err, "upload")
	}
	cmds, apiErr := parseEnvelope(c)
	if apiErr != nil {
		return utils.ErrorResponse(c, apiErr)
	}
	userID, _ := getUserID(c)

	// every command is checked before anything is written
	rows := make([]any, 0, len(cmds))
	for i := range cmds {
		row, apiErr := uploadRow(&cmds[i], userID)
		if apiErr != nil {
			return utils.ErrorResponse(c, apiErr)
		}
		rows = append(rows, row)
	}

	err = h.Engine.Batch(c.UserContext(), func(eng *lifecycle.Engine) error {
		for _, row := range rows {
			var err error
			switch r := row.(type) {
			case *models.BranchEntry:
				err = eng.CreateBranch(c.UserContext(), project, r)
			case *models.Entry:
				err = eng.Create(c.UserContext(), project, r)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return failure(c, err, "upload")
	}

	return utils.CodeResponse(c, types.CodeEntryUploaded, types.TitleEntryUploaded)
}

// uploadRow turns an upload command into the row to create.
func uploadRow(cmd *Command, userID string) (any, *types.APIError) {
	switch cmd.Type {
	case "", string(lifecycle.TargetEntry), string(lifecycle.TargetBranch):
	default:
		return nil, types.APIBadRequest
	}
	if cmd.ID == "" {
		return nil, types.APIBadRequest
	}
	createdAt, err := cmd.createdAt()
	if err != nil {
		return nil, types.APIBadRequest
	}
	var data models.JSON
	if len(cmd.Attributes.Answers) > 0 {
		if data, err = models.NewJSON(cmd.Attributes.Answers); err != nil {
			return nil, types.APIBadRequest
		}
	}

	if cmd.Target() == lifecycle.TargetBranch {
		ownerUUID, inputRef := cmd.owner()
		return &models.BranchEntry{BranchFields: models.BranchFields{
			UUID:          cmd.ID,
			FormRef:       cmd.Attributes.Form.Ref,
			OwnerUUID:     ownerUUID,
			OwnerInputRef: inputRef,
			UserID:        cmd.userID(userID),
			Title:         cmd.Attributes.Title,
			EntryData:     data,
			CreatedAt:     createdAt,
		}}, nil
	}
	return &models.Entry{EntryFields: models.EntryFields{
		UUID:       cmd.ID,
		FormRef:    cmd.Attributes.Form.Ref,
		ParentUUID: cmd.parentUUID(),
		UserID:     cmd.userID(userID),
		Title:      cmd.Attributes.Title,
		EntryData:  data,
		CreatedAt:  createdAt,
	}}, nil
}

// Archive handles POST /api/projects/:project/archive
// @Summary Archive entries
// @Description Move an entry and its whole subtree, or a single branch entry, to the archive
// @Tags Entries
// @Accept json
// @Produce json
// @Param project path string true "Project ref"
// @Param body body Envelope true "Archive commands"
// @Success 200 {object} utils.CodeResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /projects/{project}/archive [post]
func (h *EntriesHandler) Archive(c *fiber.Ctx) error {
	return h.remove(c, lifecycle.ActionArchive)
}

// Delete handles POST /api/projects/:project/delete
// @Summary Delete entries
// @Description Hard delete an entry and its whole subtree with their media, or a single branch entry
// @Tags Entries
// @Accept json
// @Produce json
// @Param project path string true "Project ref"
// @Param body body Envelope true "Delete commands"
// @Success 200 {object} utils.CodeResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /projects/{project}/delete [post]
func (h *EntriesHandler) Delete(c *fiber.Ctx) error {
	return h.remove(c, lifecycle.ActionDelete)
}

func (h *EntriesHandler) remove(c *fiber.Ctx, action lifecycle.Action) error {
	op := string(action)
	project, err := h.project(c)
	if err != nil {
		return failure(c, err, op)
	}
	cmds, apiErr := parseEnvelope(c)
	if apiErr != nil {
		return utils.ErrorResponse(c, apiErr)
	}
	userID, _ := getUserID(c)

	for i := range cmds {
		if cmds[i].ID == "" || (cmds[i].Type != "" && cmds[i].Type != op) {
			return utils.ErrorResponse(c, types.APIBadRequest)
		}
	}

	results := make([]*lifecycle.Result, len(cmds))
	err = h.Engine.Batch(c.UserContext(), func(eng *lifecycle.Engine) error {
		for i := range cmds {
			var err error
			if action == lifecycle.ActionArchive {
				results[i], err = eng.Archive(c.UserContext(), project, cmds[i].ID, cmds[i].Target())
			} else {
				results[i], err = eng.Delete(c.UserContext(), project, cmds[i].ID, cmds[i].Target())
			}
			// a second delete of the same uuid is a success
			if err != nil && !(action == lifecycle.ActionDelete && errors.Is(err, types.ErrNotFound)) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return failure(c, err, op)
	}

	for i, res := range results {
		if res == nil {
			continue
		}
		log.Info().
			Str("project", project.Ref).
			Str("uuid", cmds[i].ID).
			Str("target", string(cmds[i].Target())).
			Str("user", userID).
			Int64("entries", res.EntriesRemoved).
			Int64("branches", res.BranchesRemoved).
			Int64("media", res.Media.Files()).
			Msg(op)
	}

	title := types.TitleEntryDeleted
	if action == lifecycle.ActionArchive {
		title = types.TitleEntryArchived
	}
	return utils.CodeResponse(c, types.CodeEntryChanged, title)
}
