package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/localnerve/formentries/internal/ledger"
	"github.com/localnerve/formentries/internal/media"
	"github.com/localnerve/formentries/internal/models"
	"github.com/localnerve/formentries/internal/repository"
	"github.com/localnerve/formentries/internal/testutil"
	"github.com/localnerve/formentries/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var forms = []string{"form-0", "form-1", "form-2", "form-3", "form-4"}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	db      *gorm.DB
	repo    *repository.Repository
	engine  *Engine
	project *models.Project
	fs      map[string]billy.Filesystem
	clock   *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	repo := repository.New(db)

	buckets := []string{"photo", "audio", "video"}
	fs := map[string]billy.Filesystem{}
	disks := map[string]media.Disk{}
	for _, b := range buckets {
		fs[b] = memfs.New()
		disks[b] = media.NewBillyDisk(fs[b])
	}
	store, err := media.NewStore(disks, buckets)
	require.NoError(t, err)

	clock := testutil.NewClock()
	engine := New(repo, store, nil)
	engine.now = clock.Next

	return &fixture{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		repo:    repo,
		engine:  engine,
		project: testutil.SeedProject(t, db, "proj", forms...),
		fs:      fs,
		clock:   clock,
	}
}

func (f *fixture) entry(uuid string, level int, parent string) *models.Entry {
	f.t.Helper()
	e := &models.Entry{EntryFields: models.EntryFields{
		UUID:       uuid,
		FormRef:    forms[level],
		ParentUUID: parent,
		UserID:     "user-1",
	}}
	require.NoError(f.t, f.engine.Create(f.ctx, f.project, e))
	return e
}

func (f *fixture) branch(owner *models.Entry, uuid, inputRef string) *models.BranchEntry {
	f.t.Helper()
	b := &models.BranchEntry{BranchFields: models.BranchFields{
		UUID:          uuid,
		OwnerUUID:     owner.UUID,
		OwnerInputRef: inputRef,
		UserID:        "user-1",
	}}
	require.NoError(f.t, f.engine.CreateBranch(f.ctx, f.project, b))
	return b
}

func (f *fixture) media(bucket, owner string, n int) {
	f.t.Helper()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s/%s_%d.bin", f.project.Ref, owner, 1700000000+i)
		require.NoError(f.t, util.WriteFile(f.fs[bucket], name, []byte("media"), 0o644))
	}
}

func (f *fixture) files(bucket string) int {
	f.t.Helper()
	infos, err := f.fs[bucket].ReadDir(f.project.Ref)
	if err != nil {
		return 0
	}
	return len(infos)
}

func (f *fixture) live(uuid string) *models.Entry {
	f.t.Helper()
	e, err := f.repo.FindByUUID(f.ctx, f.project.ID, uuid)
	require.NoError(f.t, err)
	return e
}

func (f *fixture) stats() *ledger.Stats {
	return testutil.Stats(f.t, f.db, f.project.ID)
}

// assertInvariants checks every counter against the live rows.
func (f *fixture) assertInvariants() {
	f.t.Helper()
	var entries []models.Entry
	require.NoError(f.t, f.db.Where("project_id = ?", f.project.ID).Find(&entries).Error)

	stats := f.stats()
	assert.EqualValues(f.t, len(entries), stats.TotalEntries, "total_entries")

	perForm := map[string]int64{}
	for _, e := range entries {
		perForm[e.FormRef]++

		children, err := f.repo.CountChildren(f.ctx, f.project.ID, e.UUID)
		require.NoError(f.t, err)
		assert.Equal(f.t, children, e.ChildCounts, "child_counts of %s", e.UUID)

		bc, err := e.Branches()
		require.NoError(f.t, err)
		for ref, n := range bc {
			live, err := f.repo.CountBranches(f.ctx, f.project.ID, e.UUID, ref)
			require.NoError(f.t, err)
			assert.Equal(f.t, live, n, "branch_counts[%s] of %s", ref, e.UUID)
		}
	}

	assert.Len(f.t, stats.FormCounts, len(perForm))
	for form, fc := range stats.FormCounts {
		assert.NotZero(f.t, fc.Count, "zero count kept for %s", form)
		assert.Equal(f.t, perForm[form], fc.Count, "form_counts[%s]", form)
	}
}

func TestCreateMaintainsCounters(t *testing.T) {
	f := newFixture(t)
	root := f.entry("e1", 0, "")
	f.entry("e2", 1, "e1")
	f.entry("e3", 1, "e1")
	f.branch(root, "b1", "q1")
	f.branch(root, "b2", "q1")
	f.branch(root, "b3", "q2")

	e1 := f.live("e1")
	assert.EqualValues(t, 2, e1.ChildCounts)
	bc, err := e1.Branches()
	require.NoError(t, err)
	assert.Equal(t, ledger.BranchCounts{"q1": 2, "q2": 1}, bc)

	stats := f.stats()
	assert.EqualValues(t, 3, stats.TotalEntries)
	assert.EqualValues(t, 1, stats.FormCounts["form-0"].Count)
	assert.EqualValues(t, 2, stats.FormCounts["form-1"].Count)
	f.assertInvariants()
}

func TestCreateValidatesHierarchy(t *testing.T) {
	f := newFixture(t)
	f.entry("e1", 0, "")
	f.entry("e2", 1, "e1")

	tests := []struct {
		name  string
		entry models.EntryFields
		want  error
	}{
		{"unknown form", models.EntryFields{UUID: "x1", FormRef: "nope"}, types.ErrInvalidHierarchy},
		{"root with parent", models.EntryFields{UUID: "x2", FormRef: "form-0", ParentUUID: "e1"}, types.ErrInvalidHierarchy},
		{"child without parent", models.EntryFields{UUID: "x3", FormRef: "form-1"}, types.ErrInvalidHierarchy},
		{"missing parent", models.EntryFields{UUID: "x4", FormRef: "form-1", ParentUUID: "ghost"}, types.ErrInvalidHierarchy},
		{"parent not on preceding form", models.EntryFields{UUID: "x5", FormRef: "form-2", ParentUUID: "e1"}, types.ErrInvalidHierarchy},
		{"duplicate uuid", models.EntryFields{UUID: "e2", FormRef: "form-1", ParentUUID: "e1"}, types.ErrDuplicateUUID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.Create(f.ctx, f.project, &models.Entry{EntryFields: tt.entry})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// failed creates leave no trace
	f.assertInvariants()
	assert.EqualValues(t, 1, f.live("e1").ChildCounts)
}

func TestCreateBranchValidatesOwner(t *testing.T) {
	f := newFixture(t)
	root := f.entry("e1", 0, "")

	err := f.engine.CreateBranch(f.ctx, f.project, &models.BranchEntry{BranchFields: models.BranchFields{
		UUID: "b1", OwnerUUID: "ghost", OwnerInputRef: "q1",
	}})
	assert.ErrorIs(t, err, types.ErrInvalidHierarchy)

	err = f.engine.CreateBranch(f.ctx, f.project, &models.BranchEntry{BranchFields: models.BranchFields{
		UUID: "b1", OwnerUUID: root.UUID,
	}})
	assert.ErrorIs(t, err, types.ErrInvalidHierarchy)

	err = f.engine.CreateBranch(f.ctx, f.project, &models.BranchEntry{BranchFields: models.BranchFields{
		UUID: "b1", OwnerUUID: root.UUID, OwnerInputRef: "q1", FormRef: "form-3",
	}})
	assert.ErrorIs(t, err, types.ErrInvalidHierarchy)
}

func TestDeleteChildEntry(t *testing.T) {
	f := newFixture(t)
	f.entry("e1", 0, "")
	f.entry("e2", 1, "e1")
	f.media("photo", "e2", 1)
	f.media("audio", "e2", 1)
	f.media("video", "e2", 1)
	f.media("photo", "e1", 2)

	res, err := f.engine.Delete(f.ctx, f.project, "e2", TargetEntry)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.EntriesRemoved)
	assert.EqualValues(t, 3, res.Media.Files())

	e1 := f.live("e1")
	assert.Zero(t, e1.ChildCounts)

	// only e2's three files are gone
	assert.Equal(t, 2, f.files("photo"))
	assert.Zero(t, f.files("audio"))
	assert.Zero(t, f.files("video"))

	stats := f.stats()
	assert.EqualValues(t, 1, stats.TotalEntries)
	assert.NotContains(t, stats.FormCounts, "form-1")
	assert.EqualValues(t, 1, stats.FormCounts["form-0"].Count)
	f.assertInvariants()
}

func TestDeleteWholeChain(t *testing.T) {
	f := newFixture(t)
	parent := ""
	for level := 0; level < 5; level++ {
		uuid := fmt.Sprintf("e%d", level)
		f.entry(uuid, level, parent)
		f.media("photo", uuid, 1)
		parent = uuid
	}
	assert.EqualValues(t, 5, f.stats().TotalEntries)

	res, err := f.engine.Delete(f.ctx, f.project, "e0", TargetEntry)
	require.NoError(t, err)
	assert.EqualValues(t, 5, res.EntriesRemoved)

	count, err := f.repo.CountEntries(f.ctx, f.project.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	stats := f.stats()
	assert.Zero(t, stats.TotalEntries)
	assert.Empty(t, stats.FormCounts)
	assert.Zero(t, f.files("photo"))
}

func TestDeleteBranchEntry(t *testing.T) {
	f := newFixture(t)
	root := f.entry("e1", 0, "")
	const n = 4
	for i := 0; i < n; i++ {
		f.branch(root, fmt.Sprintf("b%d", i), "B")
	}
	f.branch(root, "other", "C")
	f.media("photo", "b0", 2)

	res, err := f.engine.Delete(f.ctx, f.project, "b0", TargetBranch)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.BranchesRemoved)
	assert.Zero(t, res.EntriesRemoved)
	assert.EqualValues(t, 2, res.Media.Files())

	remaining, err := f.repo.FindBranches(f.ctx, f.project.ID, "e1", "B")
	require.NoError(t, err)
	assert.Len(t, remaining, n-1)

	bc, err := f.live("e1").Branches()
	require.NoError(t, err)
	assert.EqualValues(t, n-1, bc["B"])
	assert.EqualValues(t, 1, bc["C"])

	assert.EqualValues(t, 1, testutil.Stats(t, f.db, f.project.ID).TotalEntries)
	f.assertInvariants()
}

func TestDeleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.entry("e1", 0, "")
	f.entry("e2", 1, "e1")

	_, err := f.engine.Delete(f.ctx, f.project, "e2", TargetEntry)
	require.NoError(t, err)
	before := f.stats()

	_, err = f.engine.Delete(f.ctx, f.project, "e2", TargetEntry)
	assert.ErrorIs(t, err, types.ErrNotFound)

	assert.Equal(t, before.TotalEntries, f.stats().TotalEntries)
	assert.Zero(t, f.live("e1").ChildCounts, "no double decrement")
	f.assertInvariants()
}

func TestArchiveSubtreeConservation(t *testing.T) {
	f := newFixture(t)
	root := f.entry("r", 0, "")
	f.entry("c1", 1, "r")
	f.entry("c2", 1, "r")
	f.entry("g1", 2, "c1")
	f.entry("g2", 2, "c1")
	f.entry("g3", 2, "c2")
	f.entry("other", 0, "")
	f.branch(root, "rb", "q")
	f.branch(f.live("g1"), "gb", "q")
	f.media("photo", "g1", 1)

	res, err := f.engine.Archive(f.ctx, f.project, "c1", TargetEntry)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.EntriesRemoved, "c1 and its two children")
	assert.EqualValues(t, 1, res.BranchesRemoved)
	assert.Zero(t, res.Media.Files(), "archive keeps media")
	assert.Equal(t, 1, f.files("photo"))

	// the top ancestor loses exactly its one direct child
	assert.EqualValues(t, 1, f.live("r").ChildCounts)

	archived, err := f.repo.CountArchived(f.ctx, f.project.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, archived)
	_, err = f.repo.FindArchivedBranchByUUID(f.ctx, f.project.ID, "gb")
	require.NoError(t, err)

	stats := f.stats()
	assert.EqualValues(t, 4, stats.TotalEntries)
	assert.EqualValues(t, 1, stats.FormCounts["form-1"].Count)
	assert.EqualValues(t, 1, stats.FormCounts["form-2"].Count)
	f.assertInvariants()

	// archiving again is a no-op
	res, err = f.engine.Archive(f.ctx, f.project, "c1", TargetEntry)
	require.NoError(t, err)
	assert.True(t, res.AlreadyArchived)
	assert.EqualValues(t, 4, f.stats().TotalEntries)

	_, err = f.engine.Archive(f.ctx, f.project, "ghost", TargetEntry)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestArchiveBranch(t *testing.T) {
	f := newFixture(t)
	root := f.entry("e1", 0, "")
	f.branch(root, "b1", "q")
	f.branch(root, "b2", "q")

	_, err := f.engine.Archive(f.ctx, f.project, "b1", TargetBranch)
	require.NoError(t, err)
	bc, err := f.live("e1").Branches()
	require.NoError(t, err)
	assert.EqualValues(t, 1, bc["q"])

	res, err := f.engine.Archive(f.ctx, f.project, "b1", TargetBranch)
	require.NoError(t, err)
	assert.True(t, res.AlreadyArchived)

	_, err = f.engine.Delete(f.ctx, f.project, "b1", TargetBranch)
	assert.ErrorIs(t, err, types.ErrNotFound)
	f.assertInvariants()
}

func TestFormBoundariesFollowRemovals(t *testing.T) {
	f := newFixture(t)
	a := f.entry("a", 0, "")
	b := f.entry("b", 0, "")
	c := f.entry("c", 0, "")

	fc := f.stats().FormCounts["form-0"]
	assert.True(t, fc.FirstEntryCreated.Equal(a.CreatedAt))
	assert.True(t, fc.LastEntryCreated.Equal(c.CreatedAt))

	_, err := f.engine.Delete(f.ctx, f.project, "a", TargetEntry)
	require.NoError(t, err)
	fc = f.stats().FormCounts["form-0"]
	assert.EqualValues(t, 2, fc.Count)
	assert.True(t, fc.FirstEntryCreated.Equal(b.CreatedAt))
	assert.True(t, fc.LastEntryCreated.Equal(c.CreatedAt))

	_, err = f.engine.Delete(f.ctx, f.project, "c", TargetEntry)
	require.NoError(t, err)
	fc = f.stats().FormCounts["form-0"]
	assert.True(t, fc.FirstEntryCreated.Equal(b.CreatedAt))
	assert.True(t, fc.LastEntryCreated.Equal(b.CreatedAt))
}

func TestFormBoundariesAtStorePrecision(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	create := func(uuid string, createdAt time.Time) *models.Entry {
		e := &models.Entry{EntryFields: models.EntryFields{UUID: uuid, FormRef: forms[0], CreatedAt: createdAt}}
		require.NoError(t, f.engine.Create(f.ctx, f.project, e))
		return e
	}
	older := create("older", base.Add(123456789))
	newest := create("newest", base.Add(time.Second+987654321))

	assert.Equal(t, 123000000, older.CreatedAt.Nanosecond())
	fc := f.stats().FormCounts[forms[0]]
	assert.True(t, fc.LastEntryCreated.Equal(newest.CreatedAt))

	// boundaries written before timestamps were normalized carry more
	// digits than the row hands back
	row, err := f.repo.FindStats(f.ctx, f.project.ID)
	require.NoError(t, err)
	stats, err := row.Ledger()
	require.NoError(t, err)
	ledger.SetFormBoundaries(stats.FormCounts, forms[0], older.CreatedAt.Add(456789), newest.CreatedAt.Add(654321))
	require.NoError(t, row.Apply(stats))
	require.NoError(t, f.repo.SaveStats(f.ctx, row))

	_, err = f.engine.Delete(f.ctx, f.project, "newest", TargetEntry)
	require.NoError(t, err)

	fc = f.stats().FormCounts[forms[0]]
	assert.EqualValues(t, 1, fc.Count)
	assert.True(t, fc.LastEntryCreated.Equal(older.CreatedAt), "last boundary moved back to %s, got %s", older.CreatedAt, fc.LastEntryCreated)
}

// failingGateway fails every owner deletion.
type failingGateway struct{ media.Gateway }

func (failingGateway) DeleteAllForOwner(context.Context, string, string) (media.Removal, error) {
	return media.Removal{}, fmt.Errorf("storage offline")
}

func TestDeleteRollsBackOnMediaFailure(t *testing.T) {
	f := newFixture(t)
	f.entry("e1", 0, "")
	f.entry("e2", 1, "e1")

	broken := New(f.repo, failingGateway{}, nil)
	_, err := broken.Delete(f.ctx, f.project, "e1", TargetEntry)
	require.Error(t, err)

	f.live("e1")
	f.live("e2")
	assert.EqualValues(t, 2, f.stats().TotalEntries)
	f.assertInvariants()
}

func TestDeleteUpdatesMediaStats(t *testing.T) {
	f := newFixture(t)
	f.entry("e1", 0, "")
	f.media("photo", "e1", 2)

	row, err := f.repo.FindStats(f.ctx, f.project.ID)
	require.NoError(t, err)
	stats, err := row.Ledger()
	require.NoError(t, err)
	ledger.ApplyMediaDelta(stats, "photo", 2, 10)
	require.NoError(t, row.Apply(stats))
	require.NoError(t, f.repo.SaveStats(f.ctx, row))

	_, err = f.engine.Delete(f.ctx, f.project, "e1", TargetEntry)
	require.NoError(t, err)

	after := f.stats()
	assert.Equal(t, ledger.MediaCount{}, after.Media["photo"])
	assert.Zero(t, after.TotalFiles)
	assert.Zero(t, after.TotalBytes)
}

func TestBatchRollsBackTogether(t *testing.T) {
	f := newFixture(t)
	f.entry("keep", 0, "")

	err := f.engine.Batch(f.ctx, func(eng *Engine) error {
		e := &models.Entry{EntryFields: models.EntryFields{UUID: "new", FormRef: forms[0], UserID: "user-1"}}
		if err := eng.Create(f.ctx, f.project, e); err != nil {
			return err
		}
		if _, err := eng.Delete(f.ctx, f.project, "keep", TargetEntry); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	f.live("keep")
	_, err = f.repo.FindByUUID(f.ctx, f.project.ID, "new")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.EqualValues(t, 1, testutil.Stats(t, f.db, f.project.ID).TotalEntries)
}
