package repository

import (
	"context"
	"fmt"

	"github.com/localnerve/formentries/internal/models"
	"github.com/localnerve/formentries/internal/types"
	"gorm.io/gorm/clause"
)

// FindBranchByUUID returns the live branch entry uuid of a project.
func (r *Repository) FindBranchByUUID(ctx context.Context, projectID uint64, uuid string) (*models.BranchEntry, error) {
	var branch models.BranchEntry
	err := r.quiet(ctx).
		Where("project_id = ? AND uuid = ?", projectID, uuid).
		First(&branch).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("branch entry %s: %w", uuid, types.ErrNotFound)
		}
		return nil, err
	}
	return &branch, nil
}

// FindArchivedBranchByUUID returns the archived branch entry uuid of a project.
func (r *Repository) FindArchivedBranchByUUID(ctx context.Context, projectID uint64, uuid string) (*models.BranchEntryArchive, error) {
	var branch models.BranchEntryArchive
	err := r.quiet(ctx).
		Where("project_id = ? AND uuid = ?", projectID, uuid).
		First(&branch).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("archived branch entry %s: %w", uuid, types.ErrNotFound)
		}
		return nil, err
	}
	return &branch, nil
}

// FindBranches returns the live branch entries of an owner, optionally
// restricted to one branch input.
func (r *Repository) FindBranches(ctx context.Context, projectID uint64, ownerUUID, inputRef string) ([]models.BranchEntry, error) {
	query := r.quiet(ctx).Where("project_id = ? AND owner_uuid = ?", projectID, ownerUUID)
	if inputRef != "" {
		query = query.Where("owner_input_ref = ?", inputRef)
	}

	var branches []models.BranchEntry
	err := query.Order("id").Find(&branches).Error
	return branches, err
}

// CountBranches counts the live branch entries of an owner for one input.
func (r *Repository) CountBranches(ctx context.Context, projectID uint64, ownerUUID, inputRef string) (int64, error) {
	var count int64
	err := r.conn(ctx).Model(&models.BranchEntry{}).
		Where("project_id = ? AND owner_uuid = ? AND owner_input_ref = ?", projectID, ownerUUID, inputRef).
		Count(&count).Error
	return count, err
}

// CreateBranch inserts a live branch entry. uuid must not exist live or
// archived.
func (r *Repository) CreateBranch(ctx context.Context, branch *models.BranchEntry) error {
	exists, err := r.UUIDExists(ctx, branch.UUID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("branch entry %s: %w", branch.UUID, types.ErrDuplicateUUID)
	}
	return r.conn(ctx).Create(branch).Error
}

// MoveBranchToArchive relocates one live branch entry to
// branch_entries_archive and returns the row as it was.
func (r *Repository) MoveBranchToArchive(ctx context.Context, projectID uint64, uuid string) (*models.BranchEntry, error) {
	var branch models.BranchEntry
	err := r.quiet(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("project_id = ? AND uuid = ?", projectID, uuid).
		First(&branch).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("branch entry %s: %w", uuid, types.ErrNotFound)
		}
		return nil, err
	}

	if err := r.conn(ctx).Create(branch.Archived()).Error; err != nil {
		return nil, err
	}
	if err := r.conn(ctx).Delete(&models.BranchEntry{}, branch.ID).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

// DeleteBranchByUUID hard deletes a live branch entry. Deleting an absent
// uuid is not an error.
func (r *Repository) DeleteBranchByUUID(ctx context.Context, projectID uint64, uuid string) (int64, error) {
	result := r.conn(ctx).
		Where("project_id = ? AND uuid = ?", projectID, uuid).
		Delete(&models.BranchEntry{})
	return result.RowsAffected, result.Error
}

// DeleteBranchesForOwners deletes every live branch entry owned by one of
// ownerUUIDs and returns the deleted rows.
func (r *Repository) DeleteBranchesForOwners(ctx context.Context, projectID uint64, ownerUUIDs []string) ([]models.BranchEntry, error) {
	var deleted []models.BranchEntry
	for start := 0; start < len(ownerUUIDs); start += maxInParams {
		end := min(start+maxInParams, len(ownerUUIDs))
		batch := ownerUUIDs[start:end]

		var branches []models.BranchEntry
		if err := r.quiet(ctx).
			Where("project_id = ? AND owner_uuid IN ?", projectID, batch).
			Find(&branches).Error; err != nil {
			return nil, err
		}
		if len(branches) == 0 {
			continue
		}
		if err := r.conn(ctx).
			Where("project_id = ? AND owner_uuid IN ?", projectID, batch).
			Delete(&models.BranchEntry{}).Error; err != nil {
			return nil, err
		}
		deleted = append(deleted, branches...)
	}
	return deleted, nil
}
