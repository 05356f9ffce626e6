// Package media deletes entry media from named storage buckets. Files are
// stored as <bucket>/<project_ref>/<owner_uuid>_<timestamp>.<ext>.
package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/localnerve/formentries/internal/ledger"
)

// File is one stored media file.
type File struct {
	Name string
	Size int64
}

// Disk is the storage behind one logical bucket.
type Disk interface {
	// List returns up to limit files in dir whose name starts with prefix,
	// ordered by name. limit <= 0 lists everything. A missing dir is empty.
	List(ctx context.Context, dir, prefix string, limit int) ([]File, error)
	// Delete removes names from dir. Missing files are not an error.
	Delete(ctx context.Context, dir string, names []string) error
}

// Gateway is what the lifecycle engine and purge coordinator need from
// media storage.
type Gateway interface {
	DeleteAllForOwner(ctx context.Context, projectRef, ownerUUID string) (Removal, error)
	ListFiles(ctx context.Context, projectRef, bucket string) ([]string, error)
	DeleteFiles(ctx context.Context, projectRef, bucket string, names []string) (Removal, error)
	DeleteMediaChunk(ctx context.Context, projectRef string, limit int) (Removal, error)
}

// Removal tallies deleted files and bytes per bucket.
type Removal struct {
	Buckets map[string]ledger.MediaCount
}

// Files is the number of files removed across buckets.
func (r Removal) Files() int64 {
	var n int64
	for _, c := range r.Buckets {
		n += c.Files
	}
	return n
}

// Add records files removed from bucket.
func (r *Removal) Add(bucket string, files, bytes int64) {
	if files == 0 && bytes == 0 {
		return
	}
	if r.Buckets == nil {
		r.Buckets = map[string]ledger.MediaCount{}
	}
	c := r.Buckets[bucket]
	c.Files += files
	c.Bytes += bytes
	r.Buckets[bucket] = c
}

// Merge adds other into r.
func (r *Removal) Merge(other Removal) {
	for bucket, c := range other.Buckets {
		r.Add(bucket, c.Files, c.Bytes)
	}
}

// ApplyTo subtracts the removal from the media aggregates of stats.
func (r Removal) ApplyTo(stats *ledger.Stats) {
	for bucket, c := range r.Buckets {
		ledger.ApplyMediaDelta(stats, bucket, -c.Files, -c.Bytes)
	}
}

// Store is the Gateway over one Disk per bucket. Deletable buckets are
// visited in the configured order.
type Store struct {
	disks     map[string]Disk
	deletable []string
}

var _ Gateway = (*Store)(nil)

// NewStore binds disks to bucket names. Every deletable bucket needs a disk.
func NewStore(disks map[string]Disk, deletable []string) (*Store, error) {
	for _, bucket := range deletable {
		if _, ok := disks[bucket]; !ok {
			return nil, fmt.Errorf("no disk configured for bucket %q", bucket)
		}
	}
	return &Store{disks: disks, deletable: deletable}, nil
}

// Deletable returns the bucket order used for owner and chunk deletion.
func (s *Store) Deletable() []string {
	return append([]string(nil), s.deletable...)
}

func (s *Store) disk(bucket string) (Disk, error) {
	d, ok := s.disks[bucket]
	if !ok {
		return nil, fmt.Errorf("unknown media bucket %q", bucket)
	}
	return d, nil
}

// DeleteAllForOwner deletes every file named <ownerUUID>_* in every
// deletable bucket of the project.
func (s *Store) DeleteAllForOwner(ctx context.Context, projectRef, ownerUUID string) (Removal, error) {
	var removal Removal
	if ownerUUID == "" {
		return removal, nil
	}
	for _, bucket := range s.deletable {
		files, err := s.disks[bucket].List(ctx, projectRef, ownerUUID+"_", 0)
		if err != nil {
			return removal, fmt.Errorf("list %s/%s: %w", bucket, projectRef, err)
		}
		if err := s.remove(ctx, bucket, projectRef, files, &removal); err != nil {
			return removal, err
		}
	}
	return removal, nil
}

// ListFiles returns the file names of a project in one bucket.
func (s *Store) ListFiles(ctx context.Context, projectRef, bucket string) ([]string, error) {
	d, err := s.disk(bucket)
	if err != nil {
		return nil, err
	}
	files, err := d.List(ctx, projectRef, "", 0)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names, nil
}

// DeleteFiles deletes the named files of a project in one bucket. Names
// that do not exist are skipped and not counted.
func (s *Store) DeleteFiles(ctx context.Context, projectRef, bucket string, names []string) (Removal, error) {
	var removal Removal
	d, err := s.disk(bucket)
	if err != nil {
		return removal, err
	}
	files, err := d.List(ctx, projectRef, "", 0)
	if err != nil {
		return removal, err
	}

	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	present := files[:0]
	for _, f := range files {
		if _, ok := wanted[f.Name]; ok {
			present = append(present, f)
		}
	}
	err = s.remove(ctx, bucket, projectRef, present, &removal)
	return removal, err
}

// DeleteMediaChunk deletes up to limit files of a project. Buckets are
// drained in order; quota left over by an exhausted bucket carries to the
// next one.
func (s *Store) DeleteMediaChunk(ctx context.Context, projectRef string, limit int) (Removal, error) {
	var removal Removal
	remaining := limit
	for _, bucket := range s.deletable {
		if remaining <= 0 {
			break
		}
		files, err := s.disks[bucket].List(ctx, projectRef, "", remaining)
		if err != nil {
			return removal, fmt.Errorf("list %s/%s: %w", bucket, projectRef, err)
		}
		if err := s.remove(ctx, bucket, projectRef, files, &removal); err != nil {
			return removal, err
		}
		remaining -= len(files)
	}
	return removal, nil
}

func (s *Store) remove(ctx context.Context, bucket, projectRef string, files []File, removal *Removal) error {
	if len(files) == 0 {
		return nil
	}
	names := make([]string, len(files))
	var bytes int64
	for i, f := range files {
		names[i] = f.Name
		bytes += f.Size
	}
	if err := s.disks[bucket].Delete(ctx, projectRef, names); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, projectRef, err)
	}
	removal.Add(bucket, int64(len(files)), bytes)
	return nil
}

// cleanDir rejects project refs that would escape the bucket root.
func cleanDir(dir string) (string, error) {
	dir = strings.Trim(dir, "/")
	if dir == "" || dir == "." || strings.Contains(dir, "..") {
		return "", fmt.Errorf("invalid media directory %q", dir)
	}
	return dir, nil
}
