// engine.go
//
// Create, archive and delete of entries and their subtrees.
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

// Package lifecycle keeps entry rows and their counters consistent through
// create, archive and delete. Each operation is one repository transaction:
// ProjectStats is locked first, rows are changed, and the counter deltas
// are applied before commit.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/localnerve/formentries/internal/ledger"
	"github.com/localnerve/formentries/internal/media"
	"github.com/localnerve/formentries/internal/metrics"
	"github.com/localnerve/formentries/internal/models"
	"github.com/localnerve/formentries/internal/repository"
	"github.com/localnerve/formentries/internal/types"
	"github.com/rs/zerolog/log"
)

// Target selects the table an operation addresses.
type Target string

const (
	TargetEntry  Target = "entry"
	TargetBranch Target = "branch_entry"
)

// Action is the terminal step applied to every removed row.
type Action string

const (
	ActionArchive Action = "archive"
	ActionDelete  Action = "delete"
)

// Result describes what an archive or delete removed.
type Result struct {
	EntriesRemoved  int64
	BranchesRemoved int64
	Media           media.Removal
	// AlreadyArchived is set when archive found the target in the archive
	// store and changed nothing.
	AlreadyArchived bool
}

// Engine runs lifecycle operations.
type Engine struct {
	repo    *repository.Repository
	media   media.Gateway
	metrics *metrics.Metrics
	now     func() time.Time
}

// New returns an engine. m may be nil.
func New(repo *repository.Repository, gateway media.Gateway, m *metrics.Metrics) *Engine {
	return &Engine{repo: repo, media: gateway, metrics: m, now: time.Now}
}

// Batch runs fn with an engine bound to one transaction, so every
// operation fn performs commits or rolls back together. Each operation
// still runs in its own savepoint.
func (e *Engine) Batch(ctx context.Context, fn func(*Engine) error) error {
	return e.repo.Transaction(ctx, func(tx *repository.Repository) error {
		bound := *e
		bound.repo = tx
		return fn(&bound)
	})
}

// Archive moves the target, and for entries its whole subtree, to the
// archive tables. Media is left in place.
func (e *Engine) Archive(ctx context.Context, project *models.Project, uuid string, target Target) (*Result, error) {
	return e.remove(ctx, project, uuid, target, ActionArchive)
}

// Delete hard deletes the target, and for entries its whole subtree,
// together with every media file the removed rows own.
func (e *Engine) Delete(ctx context.Context, project *models.Project, uuid string, target Target) (*Result, error) {
	return e.remove(ctx, project, uuid, target, ActionDelete)
}

func (e *Engine) remove(ctx context.Context, project *models.Project, uuid string, target Target, action Action) (*Result, error) {
	var res *Result
	err := e.repo.Transaction(ctx, func(tx *repository.Repository) error {
		op := &removal{tx: tx, media: e.media, project: project, action: action, res: &Result{}}

		row, err := tx.LockStats(ctx, project.ID)
		if err != nil {
			return err
		}
		stats, err := row.Ledger()
		if err != nil {
			return err
		}

		switch target {
		case TargetBranch:
			err = op.branch(ctx, uuid)
		case TargetEntry:
			err = op.subtree(ctx, uuid, stats)
		default:
			err = fmt.Errorf("unknown target %q", target)
		}
		if err != nil {
			return err
		}
		if op.res.AlreadyArchived {
			res = op.res
			return nil
		}

		op.res.Media.ApplyTo(stats)
		if err := row.Apply(stats); err != nil {
			return err
		}
		if err := tx.SaveStats(ctx, row); err != nil {
			return err
		}
		res = op.res
		return nil
	})

	e.metrics.Lifecycle(string(action), string(target), err)
	if err != nil {
		return nil, err
	}
	e.metrics.Removed(string(action), res.EntriesRemoved, res.BranchesRemoved)
	e.metrics.MediaRemoved(res.Media)

	log.Debug().
		Str("action", string(action)).
		Str("target", string(target)).
		Str("uuid", uuid).
		Str("project", project.Ref).
		Int64("entries", res.EntriesRemoved).
		Int64("branches", res.BranchesRemoved).
		Int64("files", res.Media.Files()).
		Msg("lifecycle operation committed")

	return res, nil
}

// removal is the state of one archive or delete transaction.
type removal struct {
	tx      *repository.Repository
	media   media.Gateway
	project *models.Project
	action  Action
	res     *Result
}

// branch removes a single branch entry and decrements its owner's count.
func (op *removal) branch(ctx context.Context, uuid string) error {
	branch, err := op.tx.FindBranchByUUID(ctx, op.project.ID, uuid)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) && op.action == ActionArchive {
			if _, aerr := op.tx.FindArchivedBranchByUUID(ctx, op.project.ID, uuid); aerr == nil {
				op.res.AlreadyArchived = true
				return nil
			}
		}
		return err
	}

	if err := op.terminalBranch(ctx, branch.UUID); err != nil {
		return err
	}

	_, err = op.tx.AddBranchCount(ctx, op.project.ID, branch.OwnerUUID, branch.OwnerInputRef, -1)
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("%w: owner of branch %s: %v", types.ErrInvariantViolation, uuid, err)
	}
	return err
}

// subtree removes an entry with all descendant entries and every branch
// entry they own. Nodes are collected breadth first and finalized in
// reverse, so every child and branch is gone before its parent.
func (op *removal) subtree(ctx context.Context, uuid string, stats *ledger.Stats) error {
	root, err := op.tx.FindByUUID(ctx, op.project.ID, uuid)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) && op.action == ActionArchive {
			if _, aerr := op.tx.FindArchivedByUUID(ctx, op.project.ID, uuid); aerr == nil {
				op.res.AlreadyArchived = true
				return nil
			}
		}
		return err
	}

	nodes, err := op.collect(ctx, root)
	if err != nil {
		return err
	}

	removedByForm := map[string][]time.Time{}
	for i := len(nodes) - 1; i >= 0; i-- {
		node := nodes[i]

		branches, err := op.tx.FindBranches(ctx, op.project.ID, node.UUID, "")
		if err != nil {
			return err
		}
		for _, b := range branches {
			if err := op.terminalBranch(ctx, b.UUID); err != nil {
				return err
			}
		}
		if err := op.terminalEntry(ctx, node.UUID); err != nil {
			return err
		}
		removedByForm[node.FormRef] = append(removedByForm[node.FormRef], node.CreatedAt)
	}

	if err := ledger.ApplyTotalDelta(stats, -int64(len(nodes))); err != nil {
		return err
	}
	if err := ApplyFormRemovals(ctx, op.tx, op.project.ID, stats, removedByForm); err != nil {
		return err
	}

	// Only the target's own parent survives the subtree; it loses one child.
	if !root.IsRoot() {
		if err := op.tx.IncrementChildCounts(ctx, op.project.ID, root.ParentUUID, -1); err != nil {
			return err
		}
	}
	return nil
}

// collect returns root followed by every live descendant, breadth first.
func (op *removal) collect(ctx context.Context, root *models.Entry) ([]models.Entry, error) {
	nodes := []models.Entry{*root}
	seen := map[string]struct{}{root.UUID: {}}
	for i := 0; i < len(nodes); i++ {
		children, err := op.tx.FindChildren(ctx, op.project.ID, nodes[i].UUID)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if _, dup := seen[c.UUID]; dup {
				continue
			}
			seen[c.UUID] = struct{}{}
			nodes = append(nodes, c)
		}
	}
	return nodes, nil
}

func (op *removal) terminalEntry(ctx context.Context, uuid string) error {
	switch op.action {
	case ActionArchive:
		if _, err := op.tx.MoveToArchive(ctx, op.project.ID, uuid); err != nil {
			return err
		}
	case ActionDelete:
		if _, err := op.tx.DeleteByUUID(ctx, op.project.ID, uuid); err != nil {
			return err
		}
		if err := op.deleteMedia(ctx, uuid); err != nil {
			return err
		}
	}
	op.res.EntriesRemoved++
	return nil
}

func (op *removal) terminalBranch(ctx context.Context, uuid string) error {
	switch op.action {
	case ActionArchive:
		if _, err := op.tx.MoveBranchToArchive(ctx, op.project.ID, uuid); err != nil {
			return err
		}
	case ActionDelete:
		if _, err := op.tx.DeleteBranchByUUID(ctx, op.project.ID, uuid); err != nil {
			return err
		}
		if err := op.deleteMedia(ctx, uuid); err != nil {
			return err
		}
	}
	op.res.BranchesRemoved++
	return nil
}

func (op *removal) deleteMedia(ctx context.Context, uuid string) error {
	if op.media == nil {
		return nil
	}
	r, err := op.media.DeleteAllForOwner(ctx, op.project.Ref, uuid)
	if err != nil {
		return fmt.Errorf("delete media of %s: %w", uuid, err)
	}
	op.res.Media.Merge(r)
	return nil
}

// ApplyFormRemovals applies one removal delta per form, given the
// created_at of every removed entry, and refetches the boundaries of forms
// that lost their oldest or newest entry. tx must already reflect the
// removal.
func ApplyFormRemovals(ctx context.Context, tx *repository.Repository, projectID uint64, stats *ledger.Stats, removedByForm map[string][]time.Time) error {
	forms := make([]string, 0, len(removedByForm))
	for form := range removedByForm {
		forms = append(forms, form)
	}
	sort.Strings(forms)

	for _, form := range forms {
		needsRecompute, err := ledger.ApplyFormRemoval(stats.FormCounts, form, removedByForm[form])
		if err != nil {
			return err
		}
		if !needsRecompute {
			continue
		}
		first, last, ok, err := tx.FormBoundaries(ctx, projectID, form)
		if err != nil {
			return err
		}
		if ok {
			ledger.SetFormBoundaries(stats.FormCounts, form, first, last)
		}
	}
	return nil
}
