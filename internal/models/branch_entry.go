package models

import "time"

// BranchFields are the columns shared by the live and archive branch tables.
type BranchFields struct {
	UUID          string `gorm:"column:uuid;size:36;not null;uniqueIndex"`
	ProjectID     uint64 `gorm:"not null;index"`
	FormRef       string `gorm:"size:100;not null"`
	OwnerEntryID  uint64 `gorm:"not null;index"`
	OwnerUUID     string `gorm:"column:owner_uuid;size:36;not null;index"`
	OwnerInputRef string `gorm:"size:100;not null"`
	UserID        string `gorm:"size:36"`
	Title         string `gorm:"size:255"`
	EntryData     JSON
	CreatedAt     time.Time
	UploadedAt    time.Time
}

// BranchEntry answers one branch question of its owner entry.
type BranchEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`
	BranchFields
}

// BranchEntryArchive holds branch entries moved out of the live table.
type BranchEntryArchive struct {
	ID uint64 `gorm:"primaryKey;autoIncrement:false"`
	BranchFields
}

// TableName overrides the table name for BranchEntry
func (BranchEntry) TableName() string {
	return "branch_entries"
}

// TableName overrides the table name for BranchEntryArchive
func (BranchEntryArchive) TableName() string {
	return "branch_entries_archive"
}

// Archived returns the archive row for b.
func (b *BranchEntry) Archived() *BranchEntryArchive {
	return &BranchEntryArchive{ID: b.ID, BranchFields: b.BranchFields}
}
