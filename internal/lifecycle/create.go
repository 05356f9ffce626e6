package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/localnerve/formentries/internal/ledger"
	"github.com/localnerve/formentries/internal/models"
	"github.com/localnerve/formentries/internal/repository"
	"github.com/localnerve/formentries/internal/types"
)

// Create inserts an uploaded entry. A root-form entry has no parent; any
// other entry's parent must be live in the same project and belong to the
// form immediately before the entry's form.
func (e *Engine) Create(ctx context.Context, project *models.Project, entry *models.Entry) error {
	entry.ProjectID = project.ID
	now := e.now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.CreatedAt = ledger.Normalize(entry.CreatedAt)
	entry.UploadedAt = ledger.Normalize(now)
	entry.ChildCounts = 0
	if err := entry.SetBranches(ledger.BranchCounts{}); err != nil {
		return err
	}

	preceding, known, err := project.PrecedingForm(entry.FormRef)
	if err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("%w: form %q is not part of project %s", types.ErrInvalidHierarchy, entry.FormRef, project.Ref)
	}

	err = e.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := checkParent(ctx, tx, project, entry, preceding); err != nil {
			return err
		}

		row, err := tx.LockStats(ctx, project.ID)
		if err != nil {
			return err
		}
		stats, err := row.Ledger()
		if err != nil {
			return err
		}

		if err := tx.Create(ctx, entry); err != nil {
			return err
		}
		if !entry.IsRoot() {
			if err := tx.IncrementChildCounts(ctx, project.ID, entry.ParentUUID, 1); err != nil {
				return err
			}
		}

		if err := ledger.ApplyTotalDelta(stats, 1); err != nil {
			return err
		}
		if _, err := ledger.ApplyFormDelta(stats.FormCounts, entry.FormRef, 1, entry.CreatedAt, false); err != nil {
			return err
		}
		if err := row.Apply(stats); err != nil {
			return err
		}
		return tx.SaveStats(ctx, row)
	})

	e.metrics.Lifecycle("create", string(TargetEntry), err)
	if err == nil {
		e.metrics.Created(string(TargetEntry))
	}
	return err
}

func checkParent(ctx context.Context, tx *repository.Repository, project *models.Project, entry *models.Entry, preceding string) error {
	if preceding == "" {
		if !entry.IsRoot() {
			return fmt.Errorf("%w: entry of root form %q cannot have a parent", types.ErrInvalidHierarchy, entry.FormRef)
		}
		entry.ParentFormRef = ""
		return nil
	}
	if entry.IsRoot() {
		return fmt.Errorf("%w: entry of form %q needs a parent of form %q", types.ErrInvalidHierarchy, entry.FormRef, preceding)
	}

	parent, err := tx.FindByUUID(ctx, project.ID, entry.ParentUUID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("%w: parent %s is not a live entry of project %s", types.ErrInvalidHierarchy, entry.ParentUUID, project.Ref)
		}
		return err
	}
	if parent.FormRef != preceding {
		return fmt.Errorf("%w: parent %s belongs to form %q, expected %q", types.ErrInvalidHierarchy, parent.UUID, parent.FormRef, preceding)
	}
	entry.ParentFormRef = preceding
	return nil
}

// CreateBranch inserts an uploaded branch entry and counts it on its owner.
func (e *Engine) CreateBranch(ctx context.Context, project *models.Project, branch *models.BranchEntry) error {
	branch.ProjectID = project.ID
	now := e.now().UTC()
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = now
	}
	branch.CreatedAt = ledger.Normalize(branch.CreatedAt)
	branch.UploadedAt = ledger.Normalize(now)

	if branch.OwnerInputRef == "" {
		return fmt.Errorf("%w: branch entry %s has no owner input", types.ErrInvalidHierarchy, branch.UUID)
	}

	err := e.repo.Transaction(ctx, func(tx *repository.Repository) error {
		owner, err := tx.FindByUUID(ctx, project.ID, branch.OwnerUUID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return fmt.Errorf("%w: owner %s is not a live entry of project %s", types.ErrInvalidHierarchy, branch.OwnerUUID, project.Ref)
			}
			return err
		}
		if branch.FormRef == "" {
			branch.FormRef = owner.FormRef
		}
		if branch.FormRef != owner.FormRef {
			return fmt.Errorf("%w: branch form %q does not match owner form %q", types.ErrInvalidHierarchy, branch.FormRef, owner.FormRef)
		}
		branch.OwnerEntryID = owner.ID

		if err := tx.CreateBranch(ctx, branch); err != nil {
			return err
		}
		_, err = tx.AddBranchCount(ctx, project.ID, owner.UUID, branch.OwnerInputRef, 1)
		return err
	})

	e.metrics.Lifecycle("create", string(TargetBranch), err)
	if err == nil {
		e.metrics.Created(string(TargetBranch))
	}
	return err
}
