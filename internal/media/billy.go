package media

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// BillyDisk stores one bucket in a billy filesystem rooted at the bucket.
type BillyDisk struct {
	fs billy.Filesystem
}

var _ Disk = (*BillyDisk)(nil)

// NewBillyDisk wraps fs.
func NewBillyDisk(fs billy.Filesystem) *BillyDisk {
	return &BillyDisk{fs: fs}
}

// NewLocalDisks returns one local disk per bucket under root/<bucket>.
func NewLocalDisks(root string, buckets []string) (map[string]Disk, error) {
	disks := make(map[string]Disk, len(buckets))
	base := osfs.New(root)
	for _, bucket := range buckets {
		fs, err := base.Chroot(bucket)
		if err != nil {
			return nil, err
		}
		disks[bucket] = NewBillyDisk(fs)
	}
	return disks, nil
}

// List implements Disk.
func (d *BillyDisk) List(ctx context.Context, dir, prefix string, limit int) ([]File, error) {
	dir, err := cleanDir(dir)
	if err != nil {
		return nil, err
	}
	infos, err := d.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	var files []File
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if info.IsDir() || !strings.HasPrefix(info.Name(), prefix) {
			continue
		}
		files = append(files, File{Name: info.Name(), Size: info.Size()})
		if limit > 0 && len(files) == limit {
			break
		}
	}
	return files, nil
}

// Delete implements Disk.
func (d *BillyDisk) Delete(ctx context.Context, dir string, names []string) error {
	dir, err := cleanDir(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.fs.Remove(d.fs.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
