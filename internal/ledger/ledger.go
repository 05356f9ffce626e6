// ledger.go
//
// Project counter arithmetic
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

// Package ledger holds the pure counter arithmetic behind ProjectStats,
// Entry.child_counts and Entry.branch_counts. Nothing here touches storage;
// callers apply each delta exactly once, inside the transaction that makes
// the row change the delta describes.
package ledger

import (
	"fmt"
	"slices"
	"time"

	"github.com/localnerve/formentries/internal/types"
)

// Media types tracked in ProjectStats.
const (
	MediaPhoto = "photo"
	MediaAudio = "audio"
	MediaVideo = "video"
)

// TrackedMedia lists the media types with their own ProjectStats columns.
var TrackedMedia = []string{MediaPhoto, MediaAudio, MediaVideo}

// FormCount aggregates the live entries of one form.
type FormCount struct {
	Count             int64     `json:"count"`
	FirstEntryCreated time.Time `json:"first_entry_created"`
	LastEntryCreated  time.Time `json:"last_entry_created"`
}

// FormCounts maps form_ref to its aggregate. A form with no live entries
// has no key.
type FormCounts map[string]FormCount

// BranchCounts maps a branch input ref to the number of live branch entries.
type BranchCounts map[string]int64

// MediaCount is a files/bytes pair for one media type.
type MediaCount struct {
	Files int64 `json:"files"`
	Bytes int64 `json:"bytes"`
}

// Stats is the in-memory form of a ProjectStats row.
type Stats struct {
	TotalEntries int64
	FormCounts   FormCounts
	Media        map[string]MediaCount
	TotalFiles   int64
	TotalBytes   int64
}

// NewStats returns zeroed stats with initialized maps.
func NewStats() *Stats {
	return &Stats{
		FormCounts: FormCounts{},
		Media:      map[string]MediaCount{},
	}
}

// ApplyFormDelta moves formCounts[formRef].count by delta. A result of zero
// removes the key. Additions widen the first/last boundaries with timestamp.
// For removals, timestamp is the created_at of a removed entry and the
// return value reports whether it sat on a boundary, in which case the
// caller must fetch the new boundary from the live set and apply it with
// SetFormBoundaries.
func ApplyFormDelta(formCounts FormCounts, formRef string, delta int64, timestamp time.Time, isRemoval bool) (bool, error) {
	if formCounts == nil {
		return false, fmt.Errorf("%w: nil form counts", types.ErrInvariantViolation)
	}

	current, exists := formCounts[formRef]
	next := current.Count + delta
	if next < 0 {
		return false, fmt.Errorf("%w: form %q count would become %d", types.ErrInvariantViolation, formRef, next)
	}
	if next == 0 {
		delete(formCounts, formRef)
		return false, nil
	}

	before := current
	current.Count = next

	if !isRemoval {
		if !exists || current.FirstEntryCreated.IsZero() || timestamp.Before(current.FirstEntryCreated) {
			current.FirstEntryCreated = timestamp
		}
		if !exists || timestamp.After(current.LastEntryCreated) {
			current.LastEntryCreated = timestamp
		}
		formCounts[formRef] = current
		return false, nil
	}

	formCounts[formRef] = current
	return onBoundary(before, timestamp), nil
}

// ApplyFormRemoval applies one removal delta for a group of entries of the
// same form, given their created_at values.
func ApplyFormRemoval(formCounts FormCounts, formRef string, removedCreatedAt []time.Time) (bool, error) {
	if len(removedCreatedAt) == 0 {
		return false, nil
	}

	before := formCounts[formRef]
	needsRecompute, err := ApplyFormDelta(formCounts, formRef, -int64(len(removedCreatedAt)), removedCreatedAt[0], true)
	if err != nil {
		return false, err
	}
	if _, still := formCounts[formRef]; !still {
		return false, nil
	}

	for _, ts := range removedCreatedAt[1:] {
		if needsRecompute {
			break
		}
		needsRecompute = onBoundary(before, ts)
	}
	return needsRecompute, nil
}

// SetFormBoundaries replaces the first/last timestamps of a present form.
func SetFormBoundaries(formCounts FormCounts, formRef string, first, last time.Time) {
	current, ok := formCounts[formRef]
	if !ok {
		return
	}
	current.FirstEntryCreated = first
	current.LastEntryCreated = last
	formCounts[formRef] = current
}

// ApplyTotalDelta adds delta to total_entries. total_entries is never
// clamped: going negative means the caller lost track of a row.
func ApplyTotalDelta(stats *Stats, delta int64) error {
	next := stats.TotalEntries + delta
	if next < 0 {
		return fmt.Errorf("%w: total_entries would become %d", types.ErrInvariantViolation, next)
	}
	stats.TotalEntries = next
	return nil
}

// ApplyBranchDelta moves branchCounts[inputRef] by delta, clamped at 0, and
// returns the new value. branchCounts must be non-nil.
func ApplyBranchDelta(branchCounts BranchCounts, inputRef string, delta int64) int64 {
	next := branchCounts[inputRef] + delta
	if next < 0 {
		next = 0
	}
	branchCounts[inputRef] = next
	return next
}

// ApplyMediaDelta moves the media aggregates for bucket. Buckets without
// their own columns (thumbnails) only move the totals. Every value is
// clamped at 0.
func ApplyMediaDelta(stats *Stats, bucket string, files, bytes int64) {
	if stats.Media == nil {
		stats.Media = map[string]MediaCount{}
	}
	if slices.Contains(TrackedMedia, bucket) {
		m := stats.Media[bucket]
		m.Files = clamp(m.Files + files)
		m.Bytes = clamp(m.Bytes + bytes)
		stats.Media[bucket] = m
	}
	stats.TotalFiles = clamp(stats.TotalFiles + files)
	stats.TotalBytes = clamp(stats.TotalBytes + bytes)
}

// StorePrecision is the coarsest created_at precision of the supported
// databases (MySQL DATETIME(3)). Postgres keeps microseconds and SQLite
// nanoseconds.
const StorePrecision = time.Millisecond

// Normalize truncates ts to StorePrecision in UTC, the value every
// database returns for it.
func Normalize(ts time.Time) time.Time {
	return ts.UTC().Truncate(StorePrecision)
}

// onBoundary compares at store precision: ts may come back from a row
// with fewer digits than the boundary recorded at insert time.
func onBoundary(fc FormCount, ts time.Time) bool {
	ts = Normalize(ts)
	return !ts.After(Normalize(fc.FirstEntryCreated)) || !ts.Before(Normalize(fc.LastEntryCreated))
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
