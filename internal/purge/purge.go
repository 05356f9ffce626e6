// purge.go
//
// Chunked bulk purge of locked projects
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

// Package purge deletes all entries or all media of a locked project, one
// bounded chunk per call, under a per-user lock.
package purge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localnerve/formentries/internal/ledger"
	"github.com/localnerve/formentries/internal/lifecycle"
	"github.com/localnerve/formentries/internal/lock"
	"github.com/localnerve/formentries/internal/media"
	"github.com/localnerve/formentries/internal/metrics"
	"github.com/localnerve/formentries/internal/models"
	"github.com/localnerve/formentries/internal/repository"
	"github.com/localnerve/formentries/internal/types"
	"github.com/rs/zerolog/log"
)

// Config holds the chunk sizes and lock hold time.
type Config struct {
	ChunkSize      int
	ChunkSizeMedia int
	LockTTL        time.Duration
}

// EntriesResult describes one entries chunk.
type EntriesResult struct {
	EntriesDeleted  int64
	BranchesDeleted int64
	Media           media.Removal
}

// Coordinator runs bulk purge chunks.
type Coordinator struct {
	repo    *repository.Repository
	media   media.Gateway
	locks   lock.Manager
	cfg     Config
	metrics *metrics.Metrics
}

// New returns a coordinator. m may be nil.
func New(repo *repository.Repository, gateway media.Gateway, locks lock.Manager, cfg Config, m *metrics.Metrics) *Coordinator {
	return &Coordinator{repo: repo, media: gateway, locks: locks, cfg: cfg, metrics: m}
}

// PurgeEntriesChunk deletes up to ChunkSize entries of the project, oldest
// first, with their branch entries and media, and reconciles ProjectStats
// from the rows actually removed. Callers repeat until the project has no
// entries left.
func (c *Coordinator) PurgeEntriesChunk(ctx context.Context, project *models.Project, requestorID string) (*EntriesResult, error) {
	started := time.Now()
	res := &EntriesResult{}
	err := c.locked(ctx, project, requestorID, func() error {
		return c.repo.Transaction(ctx, func(tx *repository.Repository) error {
			return c.entriesChunk(ctx, tx, project, res)
		})
	})

	c.metrics.PurgeChunk("entries", started, err)
	if err != nil {
		return nil, err
	}
	c.metrics.Removed("purge", res.EntriesDeleted, res.BranchesDeleted)
	c.metrics.MediaRemoved(res.Media)

	log.Info().
		Str("project", project.Ref).
		Str("user", requestorID).
		Int64("entries", res.EntriesDeleted).
		Int64("branches", res.BranchesDeleted).
		Int64("files", res.Media.Files()).
		Dur("elapsed", time.Since(started)).
		Msg("bulk purge entries chunk")

	return res, nil
}

func (c *Coordinator) entriesChunk(ctx context.Context, tx *repository.Repository, project *models.Project, res *EntriesResult) error {
	row, err := tx.LockStats(ctx, project.ID)
	if err != nil {
		return err
	}
	stats, err := row.Ledger()
	if err != nil {
		return err
	}

	entries, err := tx.DeleteChunk(ctx, project.ID, c.cfg.ChunkSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	uuids := make([]string, len(entries))
	deleted := make(map[string]struct{}, len(entries))
	removedByForm := map[string][]time.Time{}
	for i, e := range entries {
		uuids[i] = e.UUID
		deleted[e.UUID] = struct{}{}
		removedByForm[e.FormRef] = append(removedByForm[e.FormRef], e.CreatedAt)
	}

	branches, err := tx.DeleteBranchesForOwners(ctx, project.ID, uuids)
	if err != nil {
		return err
	}

	// Parents outside this chunk lose the children that went with it.
	lost := map[string]int64{}
	for _, e := range entries {
		if e.IsRoot() {
			continue
		}
		if _, gone := deleted[e.ParentUUID]; !gone {
			lost[e.ParentUUID]++
		}
	}
	for parent, n := range lost {
		err := tx.IncrementChildCounts(ctx, project.ID, parent, -n)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return err
		}
	}

	if err := ledger.ApplyTotalDelta(stats, -int64(len(entries))); err != nil {
		return err
	}
	if err := lifecycle.ApplyFormRemovals(ctx, tx, project.ID, stats, removedByForm); err != nil {
		return err
	}

	for _, uuid := range uuids {
		if err := c.deleteMedia(ctx, project, uuid, &res.Media); err != nil {
			return err
		}
	}
	for _, b := range branches {
		if err := c.deleteMedia(ctx, project, b.UUID, &res.Media); err != nil {
			return err
		}
	}
	res.Media.ApplyTo(stats)

	if err := row.Apply(stats); err != nil {
		return err
	}
	if err := tx.SaveStats(ctx, row); err != nil {
		return err
	}

	res.EntriesDeleted = int64(len(entries))
	res.BranchesDeleted = int64(len(branches))
	return nil
}

func (c *Coordinator) deleteMedia(ctx context.Context, project *models.Project, uuid string, into *media.Removal) error {
	r, err := c.media.DeleteAllForOwner(ctx, project.Ref, uuid)
	if err != nil {
		return fmt.Errorf("delete media of %s: %w", uuid, err)
	}
	into.Merge(r)
	return nil
}

// PurgeMediaChunk deletes up to ChunkSizeMedia media files of the project,
// draining buckets in their configured order. Entry rows are untouched.
func (c *Coordinator) PurgeMediaChunk(ctx context.Context, project *models.Project, requestorID string) (media.Removal, error) {
	started := time.Now()
	var removal media.Removal
	err := c.locked(ctx, project, requestorID, func() error {
		return c.repo.Transaction(ctx, func(tx *repository.Repository) error {
			row, err := tx.LockStats(ctx, project.ID)
			if err != nil {
				return err
			}
			stats, err := row.Ledger()
			if err != nil {
				return err
			}

			removal, err = c.media.DeleteMediaChunk(ctx, project.Ref, c.cfg.ChunkSizeMedia)
			if err != nil {
				return err
			}
			removal.ApplyTo(stats)
			if err := row.Apply(stats); err != nil {
				return err
			}
			return tx.SaveStats(ctx, row)
		})
	})

	c.metrics.PurgeChunk("media", started, err)
	if err != nil {
		return media.Removal{}, err
	}
	c.metrics.MediaRemoved(removal)

	log.Info().
		Str("project", project.Ref).
		Str("user", requestorID).
		Int64("files", removal.Files()).
		Dur("elapsed", time.Since(started)).
		Msg("bulk purge media chunk")

	return removal, nil
}

// locked runs fn while holding the requestor's bulk purge lock. Nothing is
// touched when the project is not locked or the lock is held elsewhere.
func (c *Coordinator) locked(ctx context.Context, project *models.Project, requestorID string, fn func() error) error {
	if project.Status != models.ProjectLocked {
		return fmt.Errorf("project %s: %w", project.Ref, types.ErrProjectNotLocked)
	}

	key := lock.BulkPurgeKey(requestorID)
	l, ok, err := c.locks.Acquire(ctx, key, c.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		c.metrics.Contention()
		log.Warn().Str("key", key).Str("project", project.Ref).Msg("bulk purge already running")
		return fmt.Errorf("%s: %w", key, types.ErrLockContention)
	}
	defer func() {
		// a cancelled request still releases
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to release bulk purge lock")
		}
	}()

	return fn()
}
