package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

func TestTable_InsertGetUpdateDelete(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	jobs := mustTable(t, b, types.JobsTable)

	created := time.Date(2025, 1, 17, 10, 30, 0, 0, time.Local)
	job := newJob("WHL250117001", 7, created)
	job.Location = "Bay 2"

	id, err := jobs.Insert(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, id, job.JobID, "ID written back into the record")

	rec, err := jobs.Get(ctx, id)
	require.NoError(t, err)
	got := rec.(*types.Job)
	assert.Equal(t, "WHL250117001", got.JobNumber)
	assert.Equal(t, "Bay 2", got.Location)
	assert.Equal(t, int64(7), got.TechnicianID)
	assert.Equal(t, types.StatusUploaded, got.Status)
	assert.True(t, created.Equal(got.CreatedAt))

	require.NoError(t, jobs.Update(ctx, id, map[string]any{
		"status":     types.StatusPublished,
		"updated_at": created.Add(time.Hour),
	}))
	rec, err = jobs.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPublished, rec.(*types.Job).Status)
	assert.True(t, created.Add(time.Hour).Equal(rec.(*types.Job).UpdatedAt))

	require.NoError(t, jobs.Delete(ctx, id))
	_, err = jobs.Get(ctx, id)
	assert.Equal(t, types.ErrNotFound, err)
	assert.Equal(t, types.ErrNotFound, jobs.Delete(ctx, id))
}

func TestTable_InsertRejectsWrongType(t *testing.T) {
	b := setupBackend(t)
	_, err := mustTable(t, b, types.JobsTable).Insert(context.Background(), &types.Photo{})
	assert.ErrorIs(t, err, types.ErrInvalidData)
}

func TestTable_SurrogateIDsAreMonotonic(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	users := mustTable(t, b, types.UsersTable)

	first, err := users.Insert(ctx, &types.User{Email: "a@example.com"})
	require.NoError(t, err)
	require.NoError(t, users.Delete(ctx, first))
	second, err := users.Insert(ctx, &types.User{Email: "b@example.com"})
	require.NoError(t, err)

	assert.Greater(t, second, first, "AUTOINCREMENT never reuses IDs")
}

func TestTable_UniqueEmail(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	users := mustTable(t, b, types.UsersTable)

	_, err := users.Insert(ctx, &types.User{Email: "tech@example.com"})
	require.NoError(t, err)
	_, err = users.Insert(ctx, &types.User{Email: "tech@example.com"})
	assert.ErrorIs(t, err, types.ErrConstraint)
}

func TestTable_UpdateUnknownColumn(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	jobs := mustTable(t, b, types.JobsTable)
	id, err := jobs.Insert(ctx, newJob("WHL250117001", 1, time.Now()))
	require.NoError(t, err)

	err = jobs.Update(ctx, id, map[string]any{"color": "red"})
	assert.ErrorIs(t, err, types.ErrInvalidData)
	assert.Equal(t, types.ErrNotFound, jobs.Update(ctx, 999, map[string]any{"status": "published"}))
}

func TestTable_BulkInsertAndBulkGet(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	jobs := mustTable(t, b, types.JobsTable)
	photos := mustTable(t, b, types.PhotosTable)

	jobID, err := jobs.Insert(ctx, newJob("WHL250117001", 1, time.Now()))
	require.NoError(t, err)

	recs := []any{
		&types.Photo{JobID: jobID, Category: types.CategoryBeforeCar, Sequence: 0, ImageData: []byte{1, 2, 3}},
		&types.Photo{JobID: jobID, Category: types.CategoryAfterCar, Sequence: 0},
	}
	ids, err := photos.BulkInsert(ctx, recs)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	got, err := photos.BulkGet(ctx, []int64{ids[1], 999, ids[0]})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, types.CategoryAfterCar, got[0].(*types.Photo).Category)
	assert.Nil(t, got[1], "missing IDs yield nil")
	assert.Equal(t, []byte{1, 2, 3}, got[2].(*types.Photo).ImageData)
}

func TestTable_BulkInsertIsAllOrNothing(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	users := mustTable(t, b, types.UsersTable)

	_, err := users.BulkInsert(ctx, []any{
		&types.User{Email: "a@example.com"},
		&types.User{Email: "a@example.com"},
	})
	assert.ErrorIs(t, err, types.ErrConstraint)

	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTable_QueryFilters(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	jobs := mustTable(t, b, types.JobsTable)

	day := time.Date(2025, 1, 17, 0, 0, 0, 0, time.Local)
	inputs := []*types.Job{
		newJob("WHL250116001", 1, day.Add(-time.Hour)),
		newJob("WHL250117001", 1, day.Add(time.Hour)),
		newJob("WHL250117002", 2, day.Add(2*time.Hour)),
		newJob("WHL250118001", 1, day.Add(25*time.Hour)),
	}
	inputs[2].Status = types.StatusPublished
	for _, j := range inputs {
		_, err := jobs.Insert(ctx, j)
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		query types.Query
		want  []string
	}{
		{
			name:  "all in id order",
			query: types.Query{},
			want:  []string{"WHL250116001", "WHL250117001", "WHL250117002", "WHL250118001"},
		},
		{
			name:  "between is half-open",
			query: types.Query{Filters: []types.Filter{types.Between("created_at", day, day.AddDate(0, 0, 1))}},
			want:  []string{"WHL250117001", "WHL250117002"},
		},
		{
			name: "compound equality",
			query: types.Query{Filters: []types.Filter{
				types.Eq("work_date", "2025-01-17"), types.Eq("status", types.StatusPublished),
			}},
			want: []string{"WHL250117002"},
		},
		{
			name:  "in",
			query: types.Query{Filters: []types.Filter{types.In("technician_id", int64(2), int64(3))}},
			want:  []string{"WHL250117002"},
		},
		{
			name:  "empty in matches nothing",
			query: types.Query{Filters: []types.Filter{types.In("technician_id")}},
			want:  nil,
		},
		{
			name:  "below",
			query: types.Query{Filters: []types.Filter{types.Below("created_at", day)}},
			want:  []string{"WHL250116001"},
		},
		{
			name:  "at least",
			query: types.Query{Filters: []types.Filter{types.AtLeast("work_date", "2025-01-18")}},
			want:  []string{"WHL250118001"},
		},
		{
			name:  "ordered descending with limit",
			query: types.Query{OrderBy: "created_at", Descending: true, Limit: 2},
			want:  []string{"WHL250118001", "WHL250117002"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := jobs.Query(ctx, tt.query)
			require.NoError(t, err)
			var got []string
			for _, r := range recs {
				got = append(got, r.(*types.Job).JobNumber)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTable_QueryRejectsUnknownField(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	_, err := mustTable(t, b, types.JobsTable).Query(ctx, types.Query{Filters: []types.Filter{types.Eq("color", "red")}})
	assert.ErrorIs(t, err, types.ErrInvalidFilter)

	_, err = mustTable(t, b, types.PhotosTable).Query(ctx, types.Query{OrderBy: "image_data"})
	assert.ErrorIs(t, err, types.ErrInvalidFilter)
}

func TestTable_CountAndDeleteWhere(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	staged := mustTable(t, b, types.StagedPhotosTable)

	now := time.Now()
	for i, sess := range []string{"s1", "s1", "s2"} {
		_, err := staged.Insert(ctx, &types.StagedPhoto{
			SessionID: sess, Category: types.CategoryDuring, Sequence: i, CreatedAt: now,
			ImageData: []byte("img"),
		})
		require.NoError(t, err)
	}

	n, err := staged.Count(ctx, types.Eq("session_id", "s1"), types.Eq("category", types.CategoryDuring))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = staged.DeleteWhere(ctx)
	assert.ErrorIs(t, err, types.ErrInvalidFilter, "unscoped delete is refused")

	removed, err := staged.DeleteWhere(ctx, types.Eq("session_id", "s1"))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err = staged.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, staged.Clear(ctx))
	n, err = staged.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTable_PhotosCascadeWithJob(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	jobs := mustTable(t, b, types.JobsTable)
	photos := mustTable(t, b, types.PhotosTable)

	jobID, err := jobs.Insert(ctx, newJob("WHL250117001", 1, time.Now()))
	require.NoError(t, err)
	_, err = photos.Insert(ctx, &types.Photo{JobID: jobID, Category: types.CategoryDuring})
	require.NoError(t, err)

	require.NoError(t, jobs.Delete(ctx, jobID))

	n, err := photos.Count(ctx, types.Eq("job_id", jobID))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTable_PhotoNeedsExistingJob(t *testing.T) {
	b := setupBackend(t)
	_, err := mustTable(t, b, types.PhotosTable).Insert(context.Background(),
		&types.Photo{JobID: 42, Category: types.CategoryDuring})
	assert.ErrorIs(t, err, types.ErrConstraint)
}
