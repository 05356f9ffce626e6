// entries_test.go
//
// Entry route tests
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
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/formentries/internal/lifecycle"
	"github.com/localnerve/formentries/internal/lock"
	"github.com/localnerve/formentries/internal/media"
	"github.com/localnerve/formentries/internal/models"
	"github.com/localnerve/formentries/internal/purge"
	"github.com/localnerve/formentries/internal/repository"
	"github.com/localnerve/formentries/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testApp struct {
	app     *fiber.App
	db      *gorm.DB
	repo    *repository.Repository
	photos  billy.Filesystem
	project *models.Project
}

// setupTestApp builds the entry routes over an in-memory database and
// in-memory media disks. A non-empty userID is placed in the request
// context the way the auth middleware does.
func setupTestApp(t *testing.T, userID string) *testApp {
	t.Helper()
	db := testutil.NewDB(t)
	repo := repository.New(db)

	buckets := []string{"photo", "audio", "video"}
	disks := map[string]media.Disk{}
	var photos billy.Filesystem
	for _, b := range buckets {
		fs := memfs.New()
		if b == "photo" {
			photos = fs
		}
		disks[b] = media.NewBillyDisk(fs)
	}
	store, err := media.NewStore(disks, buckets)
	require.NoError(t, err)

	h := &EntriesHandler{
		Repo:   repo,
		Engine: lifecycle.New(repo, store, nil),
		Purge: purge.New(repo, store, lock.NewMemoryManager(), purge.Config{
			ChunkSize: 2, ChunkSizeMedia: 10, LockTTL: time.Minute,
		}, nil),
	}

	app := fiber.New()
	if userID != "" {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("user", map[string]interface{}{"id": userID, "email": "user@example.com"})
			return c.Next()
		})
	}
	h.Register(app.Group("/api/projects"))

	return &testApp{
		app:     app,
		db:      db,
		repo:    repo,
		photos:  photos,
		project: testutil.SeedProject(t, db, "proj", "form-0", "form-1"),
	}
}

func (ta *testApp) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest("POST", path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func entryCmd(uuid, form, parent string) map[string]any {
	cmd := map[string]any{
		"type": "entry",
		"id":   uuid,
		"attributes": map[string]any{
			"form":    map[string]any{"ref": form, "type": "hierarchy"},
			"answers": map[string]any{"q1": "a1"},
		},
		"relationships": map[string]any{
			"user": map[string]any{"data": map[string]any{"id": 42}},
		},
	}
	if parent != "" {
		cmd["relationships"].(map[string]any)["parent"] = map[string]any{
			"data": map[string]any{"parent_form_ref": "form-0", "parent_entry_uuid": parent},
		}
	}
	return cmd
}

func dataCode(t *testing.T, out map[string]any) string {
	t.Helper()
	data, ok := out["data"].(map[string]any)
	require.True(t, ok, "response has no data: %v", out)
	return data["code"].(string)
}

func errorCode(t *testing.T, out map[string]any) string {
	t.Helper()
	errs, ok := out["errors"].([]any)
	require.True(t, ok, "response has no errors: %v", out)
	require.Len(t, errs, 1)
	return errs[0].(map[string]any)["code"].(string)
}

func TestUploadAndDelete(t *testing.T) {
	ta := setupTestApp(t, "user-1")

	status, out := ta.post(t, "/api/projects/proj/upload", map[string]any{
		"data": []any{entryCmd("root-1", "form-0", ""), entryCmd("child-1", "form-1", "root-1")},
	})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ec5_237", dataCode(t, out))

	root, err := ta.repo.FindByUUID(context.Background(), ta.project.ID, "root-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), root.ChildCounts)
	assert.Equal(t, "42", root.UserID)

	status, out = ta.post(t, "/api/projects/proj/delete", map[string]any{
		"data": map[string]any{"type": "delete", "id": "root-1"},
	})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ec5_236", dataCode(t, out))

	// a second delete of the same uuid still succeeds
	status, out = ta.post(t, "/api/projects/proj/delete", map[string]any{
		"data": map[string]any{"type": "delete", "id": "root-1"},
	})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ec5_236", dataCode(t, out))

	stats := testutil.Stats(t, ta.db, ta.project.ID)
	assert.Equal(t, int64(0), stats.TotalEntries)
}

func TestUploadBranch(t *testing.T) {
	ta := setupTestApp(t, "user-1")

	_, out := ta.post(t, "/api/projects/proj/upload", map[string]any{"data": entryCmd("root-1", "form-0", "")})
	require.Equal(t, "ec5_237", dataCode(t, out))

	status, out := ta.post(t, "/api/projects/proj/upload", map[string]any{
		"data": map[string]any{
			"type": "branch_entry",
			"id":   "branch-1",
			"attributes": map[string]any{
				"form": map[string]any{"ref": "form-0", "type": "hierarchy"},
			},
			"relationships": map[string]any{
				"branch": map[string]any{"data": map[string]any{"owner_input_ref": "input-9", "owner_entry_uuid": "root-1"}},
			},
		},
	})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ec5_237", dataCode(t, out))

	root, err := ta.repo.FindByUUID(context.Background(), ta.project.ID, "root-1")
	require.NoError(t, err)
	counts, err := root.Branches()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["input-9"])
}

func TestUploadErrors(t *testing.T) {
	ta := setupTestApp(t, "user-1")

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"no body", "/api/projects/proj/upload", nil, fiber.StatusBadRequest, "ec5_269"},
		{"no data key", "/api/projects/proj/upload", map[string]any{"meta": 1}, fiber.StatusBadRequest, "ec5_269"},
		{"invalid json", "/api/projects/proj/upload", "{", fiber.StatusBadRequest, "ec5_62"},
		{"unknown project", "/api/projects/nope/upload", map[string]any{"data": entryCmd("a", "form-0", "")}, fiber.StatusNotFound, "ec5_11"},
		{"child without parent", "/api/projects/proj/upload", map[string]any{"data": entryCmd("a", "form-1", "")}, fiber.StatusBadRequest, "ec5_84"},
		{"unknown form", "/api/projects/proj/upload", map[string]any{"data": entryCmd("a", "form-9", "")}, fiber.StatusBadRequest, "ec5_84"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := ta.post(t, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, errorCode(t, out))
		})
	}
}

func TestUploadDuplicate(t *testing.T) {
	ta := setupTestApp(t, "user-1")

	_, out := ta.post(t, "/api/projects/proj/upload", map[string]any{"data": entryCmd("root-1", "form-0", "")})
	require.Equal(t, "ec5_237", dataCode(t, out))

	status, out := ta.post(t, "/api/projects/proj/upload", map[string]any{"data": entryCmd("root-1", "form-0", "")})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "ec5_59", errorCode(t, out))
}

func TestArchive(t *testing.T) {
	ta := setupTestApp(t, "user-1")

	_, out := ta.post(t, "/api/projects/proj/upload", map[string]any{
		"data": []any{entryCmd("root-1", "form-0", ""), entryCmd("child-1", "form-1", "root-1")},
	})
	require.Equal(t, "ec5_237", dataCode(t, out))

	status, out := ta.post(t, "/api/projects/proj/archive", map[string]any{
		"data": map[string]any{"type": "archive", "id": "root-1"},
	})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ec5_236", dataCode(t, out))

	_, err := ta.repo.FindArchivedByUUID(context.Background(), ta.project.ID, "child-1")
	assert.NoError(t, err)

	// archive of something that never existed
	status, out = ta.post(t, "/api/projects/proj/archive", map[string]any{
		"data": map[string]any{"type": "archive", "id": "missing"},
	})
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "ec5_239", errorCode(t, out))

	// command type must match the route
	status, out = ta.post(t, "/api/projects/proj/archive", map[string]any{
		"data": map[string]any{"type": "delete", "id": "root-1"},
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "ec5_62", errorCode(t, out))
}

func TestBulkDeletion(t *testing.T) {
	ta := setupTestApp(t, "user-1")

	_, out := ta.post(t, "/api/projects/proj/upload", map[string]any{
		"data": []any{entryCmd("root-1", "form-0", ""), entryCmd("root-2", "form-0", ""), entryCmd("root-3", "form-0", "")},
	})
	require.Equal(t, "ec5_237", dataCode(t, out))
	require.NoError(t, util.WriteFile(ta.photos, "proj/root-1_a.jpg", []byte("jpg"), 0o644))

	status, out := ta.post(t, "/api/projects/proj/bulk-deletion/entries", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "ec5_91", errorCode(t, out))

	require.NoError(t, ta.repo.SetProjectStatus(context.Background(), ta.project.ID, models.ProjectLocked))

	for i := 0; i < 2; i++ {
		status, out = ta.post(t, "/api/projects/proj/bulk-deletion/entries", nil)
		assert.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "ec5_400", dataCode(t, out))
	}
	n, err := ta.repo.CountEntries(context.Background(), ta.project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, util.WriteFile(ta.photos, "proj/orphan_b.jpg", []byte("jpg"), 0o644))
	status, out = ta.post(t, "/api/projects/proj/bulk-deletion/media", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ec5_407", dataCode(t, out))
	assert.Equal(t, float64(1), out["data"].(map[string]any)["deleted"])
}

func TestBulkDeletionNeedsUser(t *testing.T) {
	ta := setupTestApp(t, "")

	status, out := ta.post(t, "/api/projects/proj/bulk-deletion/media", nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "ec5_77", errorCode(t, out))
}

func TestUploadBatchIsAtomic(t *testing.T) {
	ta := setupTestApp(t, "user-1")

	// the second command names a parent that does not exist
	status, out := ta.post(t, "/api/projects/proj/upload", map[string]any{
		"data": []any{entryCmd("root-1", "form-0", ""), entryCmd("child-1", "form-1", "missing")},
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "ec5_84", errorCode(t, out))

	_, err := ta.repo.FindByUUID(context.Background(), ta.project.ID, "root-1")
	assert.Error(t, err, "nothing of a failed batch is kept")
	assert.Equal(t, int64(0), testutil.Stats(t, ta.db, ta.project.ID).TotalEntries)

	// a bad command anywhere in the batch is refused before any write
	status, out = ta.post(t, "/api/projects/proj/upload", map[string]any{
		"data": []any{entryCmd("root-1", "form-0", ""), map[string]any{"type": "entry"}},
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "ec5_62", errorCode(t, out))

	// the corrected retry is not a duplicate
	status, out = ta.post(t, "/api/projects/proj/upload", map[string]any{
		"data": []any{entryCmd("root-1", "form-0", ""), entryCmd("child-1", "form-1", "root-1")},
	})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ec5_237", dataCode(t, out))
	assert.Equal(t, int64(2), testutil.Stats(t, ta.db, ta.project.ID).TotalEntries)
}

func TestArchiveBatchIsAtomic(t *testing.T) {
	ta := setupTestApp(t, "user-1")

	_, out := ta.post(t, "/api/projects/proj/upload", map[string]any{
		"data": []any{entryCmd("root-1", "form-0", ""), entryCmd("root-2", "form-0", "")},
	})
	require.Equal(t, "ec5_237", dataCode(t, out))

	status, out := ta.post(t, "/api/projects/proj/archive", map[string]any{
		"data": []any{
			map[string]any{"type": "archive", "id": "root-1"},
			map[string]any{"type": "archive", "id": "missing"},
		},
	})
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "ec5_239", errorCode(t, out))

	_, err := ta.repo.FindByUUID(context.Background(), ta.project.ID, "root-1")
	assert.NoError(t, err, "root-1 stays live when the batch fails")
	assert.Equal(t, int64(2), testutil.Stats(t, ta.db, ta.project.ID).TotalEntries)

	// deleting the same uuid twice in one batch succeeds
	status, out = ta.post(t, "/api/projects/proj/delete", map[string]any{
		"data": []any{
			map[string]any{"type": "delete", "id": "root-1"},
			map[string]any{"type": "delete", "id": "root-1"},
		},
	})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ec5_236", dataCode(t, out))
	assert.Equal(t, int64(1), testutil.Stats(t, ta.db, ta.project.ID).TotalEntries)
}
