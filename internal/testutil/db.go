// Package testutil holds database helpers shared by package tests and the
// local development container launcher.
package testutil

import (
	"testing"
	"time"

	"github.com/localnerve/formentries/internal/database"
	"github.com/localnerve/formentries/internal/ledger"
	"github.com/localnerve/formentries/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB creates a migrated in-memory SQLite database. The pool is pinned to
// one connection so every query sees the same in-memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get underlying SQL DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// SeedProject inserts a project with the given form order and an empty
// stats row.
func SeedProject(t testing.TB, db *gorm.DB, ref string, forms ...string) *models.Project {
	t.Helper()

	formsJSON, err := models.NewJSON(forms)
	if err != nil {
		t.Fatalf("Failed to encode forms: %v", err)
	}
	project := &models.Project{Ref: ref, Name: ref, Status: models.ProjectActive, Forms: formsJSON}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	stats := &models.ProjectStats{ProjectID: project.ID}
	if err := stats.Apply(ledger.NewStats()); err != nil {
		t.Fatalf("Failed to encode stats: %v", err)
	}
	if err := db.Create(stats).Error; err != nil {
		t.Fatalf("Failed to create stats: %v", err)
	}
	return project
}

// Stats decodes the current stats row of a project.
func Stats(t testing.TB, db *gorm.DB, projectID uint64) *ledger.Stats {
	t.Helper()

	var row models.ProjectStats
	if err := db.Where("project_id = ?", projectID).First(&row).Error; err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}
	stats, err := row.Ledger()
	if err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	return stats
}

// Clock hands out strictly increasing timestamps, one second apart.
type Clock struct {
	now time.Time
}

// NewClock starts a clock at a fixed UTC instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

// Next advances the clock and returns the new time.
func (c *Clock) Next() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}
