package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

func TestUsers_Create(t *testing.T) {
	api, _ := setupAPI(t)
	ctx := context.Background()

	u := mustUser(t, api, "  Tech@Example.COM ")
	assert.Equal(t, "tech@example.com", u.Email)
	assert.Positive(t, u.UserID)

	dup := api.Users.Create(ctx, "tech@example.com", "Again")
	require.NotNil(t, dup.Err)
	assert.True(t, IsConflict(dup.Err))
	assert.False(t, dup.Err.Retryable)
	assert.Equal(t, "A user with that email already exists.", dup.Err.UserMessage)

	bad := api.Users.Create(ctx, "not-an-email", "")
	require.NotNil(t, bad.Err)
	assert.Equal(t, "email", bad.Err.Field)
}

func TestUsers_Lookup(t *testing.T) {
	api, _ := setupAPI(t)
	ctx := context.Background()
	a := mustUser(t, api, "a@example.com")
	mustUser(t, api, "b@example.com")

	got := api.Users.GetByEmail(ctx, "A@example.com")
	require.Nil(t, got.Err)
	require.NotNil(t, got.Data)
	assert.Equal(t, a.UserID, got.Data.UserID)

	none := api.Users.GetByEmail(ctx, "c@example.com")
	require.Nil(t, none.Err)
	assert.Nil(t, none.Data)

	byID := api.Users.Get(ctx, a.UserID)
	require.Nil(t, byID.Err)
	assert.Equal(t, "a@example.com", byID.Data.Email)

	all := api.Users.GetAll(ctx)
	require.Nil(t, all.Err)
	assert.Len(t, all.Data, 2)
}

func TestSettings(t *testing.T) {
	api, _ := setupAPI(t)
	ctx := context.Background()

	_, ok, err := api.Settings.Get(ctx, "theme")
	require.Nil(t, err)
	assert.False(t, ok)

	require.Nil(t, api.Settings.Set(ctx, "theme", "dark"))
	require.Nil(t, api.Settings.Set(ctx, "theme", "light"))
	v, ok, err := api.Settings.Get(ctx, "theme")
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, "light", v)

	require.Nil(t, api.Settings.Delete(ctx, "theme"))
	require.Nil(t, api.Settings.Delete(ctx, "theme"))
	_, ok, _ = api.Settings.Get(ctx, "theme")
	assert.False(t, ok)

	assert.Equal(t, types.KindValidation, api.Settings.Set(ctx, "", "x").Kind)
}

func TestPhotos_InsertAndSelect(t *testing.T) {
	api, _ := setupAPI(t)
	ctx := context.Background()
	tech := mustUser(t, api, "tech@example.com")
	job := mustJob(t, api, "WHL250117001", tech.UserID)

	ins := api.Photos.Insert(ctx, photoInputs(job.JobID, 7)...)
	require.Nil(t, ins.Err)
	require.Len(t, ins.Data, 7)
	for _, p := range ins.Data {
		assert.Positive(t, p.PhotoID)
		assert.NotEmpty(t, p.ImageData)
	}

	sel := api.Photos.SelectByJob(ctx, job.JobID)
	require.Nil(t, sel.Err)
	require.Len(t, sel.Data, 7)
	assert.Equal(t, types.CategoryBeforeCar, sel.Data[0].Category)
	assert.Equal(t, 1, sel.Data[6].Sequence)

	del := api.Photos.Delete(ctx, sel.Data[0].PhotoID)
	require.Nil(t, del.Err)
	assert.True(t, IsNotFound(api.Photos.Delete(ctx, sel.Data[0].PhotoID).Err))

	empty := api.Photos.Insert(ctx)
	require.Nil(t, empty.Err)
	assert.Empty(t, empty.Data)
}

func TestPhotos_InsertRejectsBadInput(t *testing.T) {
	api, _ := setupAPI(t)
	ctx := context.Background()
	tech := mustUser(t, api, "tech@example.com")
	job := mustJob(t, api, "WHL250117001", tech.UserID)

	res := api.Photos.Insert(ctx,
		types.PhotoInput{JobID: job.JobID, Category: types.CategoryDuring},
		types.PhotoInput{JobID: job.JobID, Category: "sideways"},
	)
	require.NotNil(t, res.Err)
	assert.Equal(t, "category", res.Err.Field)

	sel := api.Photos.SelectByJob(ctx, job.JobID)
	require.Nil(t, sel.Err)
	assert.Empty(t, sel.Data)

	orphan := api.Photos.Insert(ctx, types.PhotoInput{JobID: 4242, Category: types.CategoryDuring})
	require.NotNil(t, orphan.Err)
	assert.Equal(t, types.KindDatabase, orphan.Err.Kind)
}
