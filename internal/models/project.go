package models

import (
	"slices"
	"time"

	"github.com/localnerve/formentries/internal/ledger"
)

// Project statuses.
const (
	ProjectActive  = "active"
	ProjectTrashed = "trashed"
	ProjectLocked  = "locked"
)

// Project is the owner of entries and of the <ref>/ media prefix.
type Project struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Ref       string `gorm:"size:100;not null;uniqueIndex"`
	Name      string `gorm:"size:255;not null"`
	Status    string `gorm:"size:20;not null;default:active"`
	Forms     JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name for Project
func (Project) TableName() string {
	return "projects"
}

// FormOrder decodes the ordered list of form refs.
func (p *Project) FormOrder() ([]string, error) {
	var forms []string
	if err := p.Forms.Decode(&forms); err != nil {
		return nil, err
	}
	return forms, nil
}

// PrecedingForm returns the form immediately before formRef and whether
// formRef is part of the project at all. Root forms have no preceding form.
func (p *Project) PrecedingForm(formRef string) (string, bool, error) {
	forms, err := p.FormOrder()
	if err != nil {
		return "", false, err
	}
	i := slices.Index(forms, formRef)
	if i < 0 {
		return "", false, nil
	}
	if i == 0 {
		return "", true, nil
	}
	return forms[i-1], true, nil
}

// ProjectStats is the materialized aggregate row of a project.
type ProjectStats struct {
	ProjectID    uint64 `gorm:"primaryKey;autoIncrement:false"`
	TotalEntries int64  `gorm:"not null;default:0"`
	FormCounts   JSON
	PhotoFiles   int64 `gorm:"not null;default:0"`
	PhotoBytes   int64 `gorm:"not null;default:0"`
	AudioFiles   int64 `gorm:"not null;default:0"`
	AudioBytes   int64 `gorm:"not null;default:0"`
	VideoFiles   int64 `gorm:"not null;default:0"`
	VideoBytes   int64 `gorm:"not null;default:0"`
	TotalFiles   int64 `gorm:"not null;default:0"`
	TotalBytes   int64 `gorm:"not null;default:0"`
	UpdatedAt    time.Time
}

// TableName overrides the table name for ProjectStats
func (ProjectStats) TableName() string {
	return "project_stats"
}

// Ledger decodes the row into its in-memory form.
func (ps *ProjectStats) Ledger() (*ledger.Stats, error) {
	s := ledger.NewStats()
	if err := ps.FormCounts.Decode(&s.FormCounts); err != nil {
		return nil, err
	}
	if s.FormCounts == nil {
		s.FormCounts = ledger.FormCounts{}
	}
	s.TotalEntries = ps.TotalEntries
	s.Media[ledger.MediaPhoto] = ledger.MediaCount{Files: ps.PhotoFiles, Bytes: ps.PhotoBytes}
	s.Media[ledger.MediaAudio] = ledger.MediaCount{Files: ps.AudioFiles, Bytes: ps.AudioBytes}
	s.Media[ledger.MediaVideo] = ledger.MediaCount{Files: ps.VideoFiles, Bytes: ps.VideoBytes}
	s.TotalFiles = ps.TotalFiles
	s.TotalBytes = ps.TotalBytes
	return s, nil
}

// Apply encodes s back into the row.
func (ps *ProjectStats) Apply(s *ledger.Stats) error {
	fc, err := NewJSON(s.FormCounts)
	if err != nil {
		return err
	}
	ps.FormCounts = fc
	ps.TotalEntries = s.TotalEntries
	ps.PhotoFiles, ps.PhotoBytes = s.Media[ledger.MediaPhoto].Files, s.Media[ledger.MediaPhoto].Bytes
	ps.AudioFiles, ps.AudioBytes = s.Media[ledger.MediaAudio].Files, s.Media[ledger.MediaAudio].Bytes
	ps.VideoFiles, ps.VideoBytes = s.Media[ledger.MediaVideo].Files, s.Media[ledger.MediaVideo].Bytes
	ps.TotalFiles = s.TotalFiles
	ps.TotalBytes = s.TotalBytes
	return nil
}

// BulkLock is a named, expiring lock row shared by every server process.
type BulkLock struct {
	LockKey   string    `gorm:"primaryKey;size:191"`
	Owner     string    `gorm:"size:36;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName overrides the table name for BulkLock
func (BulkLock) TableName() string {
	return "bulk_locks"
}

// All lists every model for auto-migration.
func All() []any {
	return []any{
		&Project{},
		&ProjectStats{},
		&Entry{},
		&EntryArchive{},
		&BranchEntry{},
		&BranchEntryArchive{},
		&BulkLock{},
	}
}
