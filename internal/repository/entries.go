package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/localnerve/formentries/internal/ledger"
	"github.com/localnerve/formentries/internal/models"
	"github.com/localnerve/formentries/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/hints"
)

// maxInParams bounds the size of IN (...) lists sent in one statement.
const maxInParams = 500

// FindByUUID returns the live entry uuid of a project.
func (r *Repository) FindByUUID(ctx context.Context, projectID uint64, uuid string) (*models.Entry, error) {
	var entry models.Entry
	err := r.quiet(ctx).
		Where("project_id = ? AND uuid = ?", projectID, uuid).
		First(&entry).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("entry %s: %w", uuid, types.ErrNotFound)
		}
		return nil, err
	}
	return &entry, nil
}

// findForUpdate is FindByUUID holding a row lock until the transaction ends.
func (r *Repository) findForUpdate(ctx context.Context, projectID uint64, uuid string) (*models.Entry, error) {
	var entry models.Entry
	err := r.quiet(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("project_id = ? AND uuid = ?", projectID, uuid).
		First(&entry).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("entry %s: %w", uuid, types.ErrNotFound)
		}
		return nil, err
	}
	return &entry, nil
}

// FindArchivedByUUID returns the archived entry uuid of a project.
func (r *Repository) FindArchivedByUUID(ctx context.Context, projectID uint64, uuid string) (*models.EntryArchive, error) {
	var entry models.EntryArchive
	err := r.quiet(ctx).
		Where("project_id = ? AND uuid = ?", projectID, uuid).
		First(&entry).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("archived entry %s: %w", uuid, types.ErrNotFound)
		}
		return nil, err
	}
	return &entry, nil
}

// FindChildren returns the live direct children of parentUUID.
func (r *Repository) FindChildren(ctx context.Context, projectID uint64, parentUUID string) ([]models.Entry, error) {
	var children []models.Entry
	err := r.quiet(ctx).
		Where("project_id = ? AND parent_uuid = ?", projectID, parentUUID).
		Order("id").
		Find(&children).Error
	return children, err
}

// CountChildren counts the live direct children of parentUUID.
func (r *Repository) CountChildren(ctx context.Context, projectID uint64, parentUUID string) (int64, error) {
	var count int64
	err := r.conn(ctx).Model(&models.Entry{}).
		Where("project_id = ? AND parent_uuid = ?", projectID, parentUUID).
		Count(&count).Error
	return count, err
}

// CountEntries counts the live entries of a project.
func (r *Repository) CountEntries(ctx context.Context, projectID uint64) (int64, error) {
	var count int64
	err := r.conn(ctx).Model(&models.Entry{}).
		Where("project_id = ?", projectID).
		Count(&count).Error
	return count, err
}

// CountArchived counts the archived entries of a project.
func (r *Repository) CountArchived(ctx context.Context, projectID uint64) (int64, error) {
	var count int64
	err := r.conn(ctx).Model(&models.EntryArchive{}).
		Where("project_id = ?", projectID).
		Count(&count).Error
	return count, err
}

// UUIDExists reports whether uuid is taken by any live or archived entry or
// branch entry.
func (r *Repository) UUIDExists(ctx context.Context, uuid string) (bool, error) {
	for _, model := range []any{
		&models.Entry{},
		&models.EntryArchive{},
		&models.BranchEntry{},
		&models.BranchEntryArchive{},
	} {
		var count int64
		if err := r.conn(ctx).Model(model).Where("uuid = ?", uuid).Count(&count).Error; err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Create inserts a live entry. uuid must not exist live or archived.
func (r *Repository) Create(ctx context.Context, entry *models.Entry) error {
	exists, err := r.UUIDExists(ctx, entry.UUID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("entry %s: %w", entry.UUID, types.ErrDuplicateUUID)
	}
	if len(entry.BranchCounts.JSON) == 0 {
		if err := entry.SetBranches(ledger.BranchCounts{}); err != nil {
			return err
		}
	}
	return r.conn(ctx).Create(entry).Error
}

// IncrementChildCounts moves the parent's child_counts by delta in one
// statement. A result below zero is refused.
func (r *Repository) IncrementChildCounts(ctx context.Context, projectID uint64, parentUUID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	result := r.conn(ctx).Model(&models.Entry{}).
		Where("project_id = ? AND uuid = ? AND child_counts + ? >= 0", projectID, parentUUID, delta).
		Update("child_counts", gorm.Expr("child_counts + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	if _, err := r.FindByUUID(ctx, projectID, parentUUID); err != nil {
		return err
	}
	return fmt.Errorf("%w: child_counts of %s would go below zero", types.ErrInvariantViolation, parentUUID)
}

// SetBranchCount sets branch_counts[inputRef] of the owner entry.
func (r *Repository) SetBranchCount(ctx context.Context, projectID uint64, ownerUUID, inputRef string, value int64) error {
	owner, err := r.findForUpdate(ctx, projectID, ownerUUID)
	if err != nil {
		return err
	}
	bc, err := owner.Branches()
	if err != nil {
		return err
	}
	bc[inputRef] = value
	if err := owner.SetBranches(bc); err != nil {
		return err
	}
	return r.conn(ctx).Model(&models.Entry{}).
		Where("id = ?", owner.ID).
		Update("branch_counts", owner.BranchCounts).Error
}

// AddBranchCount moves branch_counts[inputRef] of the owner entry by delta,
// clamped at zero, under a row lock, and returns the new value.
func (r *Repository) AddBranchCount(ctx context.Context, projectID uint64, ownerUUID, inputRef string, delta int64) (int64, error) {
	owner, err := r.findForUpdate(ctx, projectID, ownerUUID)
	if err != nil {
		return 0, err
	}
	bc, err := owner.Branches()
	if err != nil {
		return 0, err
	}
	next := ledger.ApplyBranchDelta(bc, inputRef, delta)
	if err := owner.SetBranches(bc); err != nil {
		return 0, err
	}
	err = r.conn(ctx).Model(&models.Entry{}).
		Where("id = ?", owner.ID).
		Update("branch_counts", owner.BranchCounts).Error
	return next, err
}

// MoveToArchive relocates one live entry to entries_archive and returns the
// row as it was.
func (r *Repository) MoveToArchive(ctx context.Context, projectID uint64, uuid string) (*models.Entry, error) {
	entry, err := r.findForUpdate(ctx, projectID, uuid)
	if err != nil {
		return nil, err
	}
	if err := r.conn(ctx).Create(entry.Archived()).Error; err != nil {
		return nil, err
	}
	if err := r.conn(ctx).Delete(&models.Entry{}, entry.ID).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteByUUID hard deletes a live entry. Deleting an absent uuid is not an
// error; the returned count tells the two apart.
func (r *Repository) DeleteByUUID(ctx context.Context, projectID uint64, uuid string) (int64, error) {
	result := r.conn(ctx).
		Where("project_id = ? AND uuid = ?", projectID, uuid).
		Delete(&models.Entry{})
	return result.RowsAffected, result.Error
}

// DeleteChunk deletes up to limit live entries of a project, oldest first,
// and returns the deleted rows.
func (r *Repository) DeleteChunk(ctx context.Context, projectID uint64, limit int) ([]models.Entry, error) {
	var entries []models.Entry
	err := r.quiet(ctx).
		Clauses(hints.Comment("select", "bulk_purge_chunk")).
		Where("project_id = ?", projectID).
		Order("created_at, id").
		Limit(limit).
		Find(&entries).Error
	if err != nil || len(entries) == 0 {
		return nil, err
	}

	ids := make([]uint64, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}
	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))
		if err := r.conn(ctx).Where("id IN ?", ids[start:end]).Delete(&models.Entry{}).Error; err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// FormBoundaries returns the oldest and newest created_at among the live
// entries of a form. ok is false when the form has no live entries.
func (r *Repository) FormBoundaries(ctx context.Context, projectID uint64, formRef string) (first, last time.Time, ok bool, err error) {
	var oldest, newest models.Entry
	base := func() *gorm.DB {
		return r.quiet(ctx).Select("id", "created_at").Where("project_id = ? AND form_ref = ?", projectID, formRef)
	}
	if err = base().Order("created_at ASC, id ASC").Take(&oldest).Error; err != nil {
		if isNotFound(err) {
			return time.Time{}, time.Time{}, false, nil
		}
		return
	}
	if err = base().Order("created_at DESC, id DESC").Take(&newest).Error; err != nil {
		return
	}
	return oldest.CreatedAt, newest.CreatedAt, true, nil
}
