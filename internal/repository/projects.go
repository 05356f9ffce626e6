package repository

import (
	"context"
	"fmt"

	"github.com/localnerve/formentries/internal/ledger"
	"github.com/localnerve/formentries/internal/models"
	"github.com/localnerve/formentries/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateProject inserts a project together with its empty stats row.
func (r *Repository) CreateProject(ctx context.Context, project *models.Project) error {
	if project.Status == "" {
		project.Status = models.ProjectActive
	}
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		stats, err := newStatsRow(project.ID)
		if err != nil {
			return err
		}
		return tx.Create(stats).Error
	})
}

// FindProject returns a project by id.
func (r *Repository) FindProject(ctx context.Context, id uint64) (*models.Project, error) {
	var project models.Project
	if err := r.quiet(ctx).First(&project, id).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("project %d: %w", id, types.ErrProjectNotFound)
		}
		return nil, err
	}
	return &project, nil
}

// FindProjectByRef returns a project by its ref slug.
func (r *Repository) FindProjectByRef(ctx context.Context, ref string) (*models.Project, error) {
	var project models.Project
	if err := r.quiet(ctx).Where("ref = ?", ref).First(&project).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("project %s: %w", ref, types.ErrProjectNotFound)
		}
		return nil, err
	}
	return &project, nil
}

// SetProjectStatus changes the status of a project.
func (r *Repository) SetProjectStatus(ctx context.Context, id uint64, status string) error {
	result := r.conn(ctx).Model(&models.Project{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindProject(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// LockStats reads the stats row of a project with a row lock held until
// the surrounding transaction ends. A missing row is created empty.
func (r *Repository) LockStats(ctx context.Context, projectID uint64) (*models.ProjectStats, error) {
	var stats models.ProjectStats
	err := r.quiet(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("project_id = ?", projectID).
		First(&stats).Error
	if err == nil {
		return &stats, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	row, err := newStatsRow(projectID)
	if err != nil {
		return nil, err
	}
	if err := r.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, err
	}
	if err := r.quiet(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("project_id = ?", projectID).
		First(&stats).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// FindStats reads the stats row of a project without locking.
func (r *Repository) FindStats(ctx context.Context, projectID uint64) (*models.ProjectStats, error) {
	var stats models.ProjectStats
	if err := r.quiet(ctx).Where("project_id = ?", projectID).First(&stats).Error; err != nil {
		if isNotFound(err) {
			return newStatsRow(projectID)
		}
		return nil, err
	}
	return &stats, nil
}

// SaveStats writes every column of the stats row.
func (r *Repository) SaveStats(ctx context.Context, stats *models.ProjectStats) error {
	return r.conn(ctx).Save(stats).Error
}

func newStatsRow(projectID uint64) (*models.ProjectStats, error) {
	row := &models.ProjectStats{ProjectID: projectID}
	if err := row.Apply(ledger.NewStats()); err != nil {
		return nil, err
	}
	return row, nil
}
