package models

import (
	"time"

	"github.com/localnerve/formentries/internal/ledger"
)

// EntryFields are the columns shared by the live and archive entry tables.
type EntryFields struct {
	UUID          string `gorm:"column:uuid;size:36;not null;uniqueIndex"`
	ProjectID     uint64 `gorm:"not null;index"`
	FormRef       string `gorm:"size:100;not null;index"`
	ParentUUID    string `gorm:"column:parent_uuid;size:36;index"`
	ParentFormRef string `gorm:"size:100"`
	UserID        string `gorm:"size:36"`
	Title         string `gorm:"size:255"`
	EntryData     JSON
	ChildCounts   int64 `gorm:"not null;default:0"`
	BranchCounts  JSON
	CreatedAt     time.Time `gorm:"index"`
	UploadedAt    time.Time
}

// Entry is a live entry of a top-level or nested form.
type Entry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`
	EntryFields
}

// EntryArchive holds entries moved out of the live table. Rows keep the
// id they had while live.
type EntryArchive struct {
	ID uint64 `gorm:"primaryKey;autoIncrement:false"`
	EntryFields
}

// TableName overrides the table name for Entry
func (Entry) TableName() string {
	return "entries"
}

// TableName overrides the table name for EntryArchive
func (EntryArchive) TableName() string {
	return "entries_archive"
}

// IsRoot reports whether the entry belongs to a top-level form.
func (e *Entry) IsRoot() bool {
	return e.ParentUUID == ""
}

// Branches decodes branch_counts.
func (e *Entry) Branches() (ledger.BranchCounts, error) {
	bc := ledger.BranchCounts{}
	if err := e.BranchCounts.Decode(&bc); err != nil {
		return nil, err
	}
	return bc, nil
}

// SetBranches encodes branch_counts.
func (e *Entry) SetBranches(bc ledger.BranchCounts) error {
	j, err := NewJSON(bc)
	if err != nil {
		return err
	}
	e.BranchCounts = j
	return nil
}

// Archived returns the archive row for e.
func (e *Entry) Archived() *EntryArchive {
	return &EntryArchive{ID: e.ID, EntryFields: e.EntryFields}
}
