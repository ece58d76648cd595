package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/photofactory/internal/kvstore"
	"github.com/mesh-intelligence/photofactory/internal/sqlite"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// clock is a settable test clock.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// flakyKV is an in-memory blob whose Set can be made to fail.
type flakyKV struct {
	*kvstore.Memory
	mu      sync.Mutex
	failSet func(value string) error
}

func (f *flakyKV) Set(key, value string) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail != nil {
		if err := fail(value); err != nil {
			return err
		}
	}
	return f.Memory.Set(key, value)
}

func (f *flakyKV) setFailure(fn func(value string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet = fn
}

var errDiskFull = errors.New("disk full")

func alwaysFail(string) error { return errDiskFull }

func quotaAlways(string) error {
	return fmt.Errorf("%w: test", types.ErrQuotaExceeded)
}

// quotaWithPhotos rejects any value that still lists photo metadata.
func quotaWithPhotos(v string) error {
	if strings.Contains(v, `"fileName"`) {
		return fmt.Errorf("%w: test", types.ErrQuotaExceeded)
	}
	return nil
}

type fakeAuth struct {
	user *types.User
	err  error
}

func (a *fakeAuth) CurrentUser(context.Context) (*types.User, error) { return a.user, a.err }

type env struct {
	store *sqlite.Backend
	blob  *flakyKV
	clock *clock
	auth  *fakeAuth
}

func (e *env) options() Options {
	return Options{
		Store: e.store,
		Blob:  e.blob,
		Clock: e.clock.now,
		Auth:  e.auth,
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })
	return &env{
		store: b,
		blob:  &flakyKV{Memory: kvstore.NewMemory(0)},
		clock: &clock{t: time.Date(2025, 1, 17, 9, 0, 0, 0, time.Local)},
		auth:  &fakeAuth{},
	}
}

func setupManager(t *testing.T) (*Manager, *env) {
	t.Helper()
	e := newEnv(t)
	m, err := Open(context.Background(), e.options())
	require.NoError(t, err)
	return m, e
}

func payload(name string) types.PhotoPayload {
	data := []byte("jpeg-bytes-" + name)
	return types.PhotoPayload{
		ImageData:     data,
		ThumbnailData: []byte("thumb-" + name),
		FileName:      name,
		FileSize:      int64(len(data)),
		ContentType:   "image/jpeg",
	}
}

func stagedCount(t *testing.T, e *env, sessionID string) int {
	t.Helper()
	tbl, err := e.store.Table(types.StagedPhotosTable)
	require.NoError(t, err)
	n, err := tbl.Count(context.Background(), types.Eq("session_id", sessionID))
	require.NoError(t, err)
	return n
}

func sequences(metas []types.PhotoMeta) []int {
	out := make([]int, len(metas))
	for i, m := range metas {
		out[i] = m.Sequence
	}
	return out
}

func TestOpen_FreshSession(t *testing.T) {
	m, e := setupManager(t)

	id := m.SessionID()
	assert.True(t, strings.HasPrefix(id, fmt.Sprintf("session_%d_", e.clock.now().UnixMilli())), id)
	assert.Equal(t, 0, m.PhotoCount())
	assert.False(t, m.Dirty())

	raw, ok, err := e.blob.Get(DefaultKey)
	require.NoError(t, err)
	require.True(t, ok, "fresh session should be persisted")
	assert.Contains(t, raw, id)
}

func TestOpen_RejectsMissingDependencies(t *testing.T) {
	e := newEnv(t)
	_, err := Open(context.Background(), Options{Blob: e.blob})
	assert.Error(t, err)
	_, err = Open(context.Background(), Options{Store: e.store})
	assert.Error(t, err)
}

func TestOpen_RestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	m, e := setupManager(t)
	model := "Genesis G80"
	require.NoError(t, m.Update(ctx, types.SessionPatch{VehicleModel: &model}))
	id, err := m.AddPhoto(ctx, types.CategoryDuring, payload("a.jpg"))
	require.NoError(t, err)

	again, err := Open(ctx, e.options())
	require.NoError(t, err)
	assert.Equal(t, m.SessionID(), again.SessionID())
	st := again.State()
	assert.Equal(t, "Genesis G80", st.VehicleModel)
	require.Len(t, st.Photos[types.CategoryDuring], 1)
	assert.Equal(t, id, st.Photos[types.CategoryDuring][0].ID)
}

func TestOpen_DiscardsBadBlob(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{{"},
		{"missing session id", `{"photos":{},"createdAt":"2025-01-17T09:00:00Z","updatedAt":"2025-01-17T09:00:00Z"}`},
		{"unknown category", `{"sessionId":"session_1_x","photos":{"roof":[]},"createdAt":"2025-01-17T09:00:00Z","updatedAt":"2025-01-17T09:00:00Z"}`},
		{"negative sequence", `{"sessionId":"session_1_x","photos":{"during":[{"id":1,"fileName":"a","fileSize":1,"sequence":-1}]},"createdAt":"2025-01-17T09:00:00Z","updatedAt":"2025-01-17T09:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			require.NoError(t, e.blob.Set(DefaultKey, tt.raw))

			m, err := Open(context.Background(), e.options())
			require.NoError(t, err)
			assert.NotEqual(t, "session_1_x", m.SessionID())
			assert.Equal(t, 0, m.PhotoCount())
		})
	}
}

func TestOpen_ResetsExpiredSession(t *testing.T) {
	ctx := context.Background()
	m, e := setupManager(t)
	old := m.SessionID()
	_, err := m.AddPhoto(ctx, types.CategoryBeforeCar, payload("a.jpg"))
	require.NoError(t, err)

	e.clock.advance(31 * time.Minute)
	again, err := Open(ctx, e.options())
	require.NoError(t, err)
	assert.NotEqual(t, old, again.SessionID())
	assert.Equal(t, 0, again.PhotoCount())
	assert.Equal(t, 0, stagedCount(t, e, old), "expired session's staged photos must be deleted")
}

func TestAddPhoto_SequencesFollowCallOrder(t *testing.T) {
	ctx := context.Background()
	m, e := setupManager(t)

	for i := 0; i < 3; i++ {
		_, err := m.AddPhoto(ctx, types.CategoryBeforeWheel, payload(fmt.Sprintf("p%d.jpg", i)))
		require.NoError(t, err)
	}
	assert.Equal(t, []int{0, 1, 2}, sequences(m.CategoryPhotos(types.CategoryBeforeWheel)))
	assert.Equal(t, 3, stagedCount(t, e, m.SessionID()))

	_, err := m.AddPhoto(ctx, types.CategoryBeforeWheel, payload("p3.jpg"))
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	_, err = m.AddPhoto(ctx, types.CategoryAfterCar, payload("q.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, sequences(m.CategoryPhotos(types.CategoryAfterCar)))
}

func TestAddPhoto_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	m, _ := setupManager(t)

	_, err := m.AddPhoto(ctx, "roof", payload("a.jpg"))
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	_, err = m.AddPhoto(ctx, types.CategoryDuring, types.PhotoPayload{FileName: "empty.jpg"})
	assert.Equal(t, types.KindValidation, types.KindOf(err))
	assert.Equal(t, 0, m.PhotoCount())
}

func TestRemovePhoto_DoesNotRenumber(t *testing.T) {
	ctx := context.Background()
	m, e := setupManager(t)
	for i := 0; i < 3; i++ {
		_, err := m.AddPhoto(ctx, types.CategoryDuring, payload(fmt.Sprintf("p%d.jpg", i)))
		require.NoError(t, err)
	}

	require.NoError(t, m.RemovePhoto(ctx, types.CategoryDuring, 0))
	metas := m.CategoryPhotos(types.CategoryDuring)
	assert.Equal(t, []int{1, 2}, sequences(metas))
	assert.Equal(t, "p1.jpg", metas[0].FileName)
	assert.Equal(t, 2, stagedCount(t, e, m.SessionID()))

	require.NoError(t, m.RemovePhoto(ctx, types.CategoryDuring, 1))
	assert.Equal(t, []int{1}, sequences(m.CategoryPhotos(types.CategoryDuring)))

	err := m.RemovePhoto(ctx, types.CategoryDuring, 5)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestAddPhoto_PersistFailureRollsBack(t *testing.T) {
	tests := []struct {
		name string
		fail func(string) error
		kind types.Kind
	}{
		{"write error", alwaysFail, types.KindDatabase},
		{"quota even without photos", quotaAlways, types.KindQuota},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, e := setupManager(t)
			_, err := m.AddPhoto(ctx, types.CategoryBeforeCar, payload("kept.jpg"))
			require.NoError(t, err)
			before := m.State()
			countsBefore, err := m.CountsByCategory(ctx)
			require.NoError(t, err)

			e.blob.setFailure(tt.fail)
			_, err = m.AddPhoto(ctx, types.CategoryBeforeCar, payload("lost.jpg"))
			require.Error(t, err)
			assert.Equal(t, tt.kind, types.KindOf(err))

			assert.Equal(t, before, m.State(), "session must be restored")
			assert.False(t, m.Dirty())
			countsAfter, err := m.CountsByCategory(ctx)
			require.NoError(t, err)
			assert.Equal(t, countsBefore, countsAfter, "no orphaned staged photo may remain")
			assert.Equal(t, 1, stagedCount(t, e, m.SessionID()))
		})
	}
}

func TestAddPhoto_QuotaDropsPhotoListAndRecovers(t *testing.T) {
	ctx := context.Background()
	m, e := setupManager(t)
	e.blob.setFailure(quotaWithPhotos)

	id, err := m.AddPhoto(ctx, types.CategoryAfterWheel, payload("big.jpg"))
	require.NoError(t, err)
	assert.False(t, m.Dirty())
	assert.Len(t, m.CategoryPhotos(types.CategoryAfterWheel), 1, "memory keeps the metadata")

	raw, _, err := e.blob.Get(DefaultKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"photosOmitted":true`)
	assert.NotContains(t, raw, "big.jpg")

	again, err := Open(ctx, e.options())
	require.NoError(t, err)
	metas := again.CategoryPhotos(types.CategoryAfterWheel)
	require.Len(t, metas, 1, "metadata is rebuilt from staged rows")
	assert.Equal(t, id, metas[0].ID)
	assert.Equal(t, "big.jpg", metas[0].FileName)
}

func TestRemovePhoto_PersistFailureKeepsRow(t *testing.T) {
	ctx := context.Background()
	m, e := setupManager(t)
	id, err := m.AddPhoto(ctx, types.CategoryDuring, payload("a.jpg"))
	require.NoError(t, err)
	before := m.State()

	e.blob.setFailure(alwaysFail)
	err = m.RemovePhoto(ctx, types.CategoryDuring, 0)
	require.Error(t, err)

	assert.Equal(t, before, m.State())
	tbl, err := e.store.Table(types.StagedPhotosTable)
	require.NoError(t, err)
	_, err = tbl.Get(ctx, id)
	assert.NoError(t, err, "staged row must survive with its id")
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	m, e := setupManager(t)

	model, loc := "G70", "Bay 3"
	e.clock.advance(time.Minute)
	require.NoError(t, m.Update(ctx, types.SessionPatch{VehicleModel: &model, Location: &loc}))
	st := m.State()
	assert.Equal(t, "G70", st.VehicleModel)
	assert.Equal(t, "Bay 3", st.Location)
	assert.Equal(t, e.clock.now(), st.UpdatedAt)

	long := strings.Repeat("x", types.MaxVehicleModelLen+1)
	err := m.Update(ctx, types.SessionPatch{VehicleModel: &long})
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	e.blob.setFailure(alwaysFail)
	other := "G90"
	require.NoError(t, m.Update(ctx, types.SessionPatch{VehicleModel: &other}))
	assert.True(t, m.Dirty())
	assert.Equal(t, "G90", m.State().VehicleModel)

	e.blob.setFailure(nil)
	require.NoError(t, m.Flush(ctx))
	assert.False(t, m.Dirty())
	raw, _, _ := e.blob.Get(DefaultKey)
	assert.Contains(t, raw, "G90")
}

func TestIsExpired(t *testing.T) {
	tests := []struct {
		name       string
		sinceStart time.Duration
		sinceEdit  time.Duration
		want       bool
	}{
		{"fresh", 0, 0, false},
		{"active for hours", 7 * time.Hour, 10 * time.Minute, false},
		{"absolute ceiling with recent edit", 8*time.Hour + time.Second, time.Minute, true},
		{"idle ceiling on young session", 40 * time.Minute, 31 * time.Minute, true},
		{"exactly at idle ceiling", 30 * time.Minute, 30 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, e := setupManager(t)

			e.clock.advance(tt.sinceStart - tt.sinceEdit)
			note := "edit"
			require.NoError(t, m.Update(ctx, types.SessionPatch{Location: &note}))
			e.clock.advance(tt.sinceEdit)

			assert.Equal(t, tt.want, m.IsExpired())
		})
	}
}

func TestExpireIfNeeded(t *testing.T) {
	ctx := context.Background()
	m, e := setupManager(t)
	old := m.SessionID()
	_, err := m.AddPhoto(ctx, types.CategoryDuring, payload("a.jpg"))
	require.NoError(t, err)

	expired, err := m.ExpireIfNeeded(ctx)
	require.NoError(t, err)
	assert.False(t, expired)

	e.clock.advance(time.Hour)
	expired, err = m.ExpireIfNeeded(ctx)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.NotEqual(t, old, m.SessionID())
	assert.Equal(t, 0, stagedCount(t, e, old))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m, e := setupManager(t)
	old := m.SessionID()
	for _, c := range []types.Category{types.CategoryBeforeCar, types.CategoryAfterCar} {
		_, err := m.AddPhoto(ctx, c, payload(string(c)+".jpg"))
		require.NoError(t, err)
	}

	require.NoError(t, m.Reset(ctx))
	assert.NotEqual(t, old, m.SessionID())
	assert.Equal(t, 0, m.PhotoCount())
	assert.Equal(t, 0, stagedCount(t, e, old))
	_, ok, _ := e.blob.Get(DefaultKey)
	assert.False(t, ok)

	require.NoError(t, m.Clear(ctx), "reset of a never-persisted session")
}

func TestPhotosWithData(t *testing.T) {
	ctx := context.Background()
	m, _ := setupManager(t)
	_, err := m.AddPhoto(ctx, types.CategoryDuring, payload("d0.jpg"))
	require.NoError(t, err)
	_, err = m.AddPhoto(ctx, types.CategoryDuring, payload("d1.jpg"))
	require.NoError(t, err)
	_, err = m.AddPhoto(ctx, types.CategoryAfterCar, payload("a0.jpg"))
	require.NoError(t, err)

	got, err := m.PhotosWithData(ctx)
	require.NoError(t, err)
	require.Len(t, got[types.CategoryDuring], 2)
	assert.Equal(t, "d0.jpg", got[types.CategoryDuring][0].FileName)
	assert.Equal(t, []byte("jpeg-bytes-d1.jpg"), got[types.CategoryDuring][1].ImageData)
	assert.Len(t, got[types.CategoryAfterCar], 1)
	assert.Empty(t, got[types.CategoryBeforeCar])

	counts, err := m.CountsByCategory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[types.CategoryDuring])
	assert.Equal(t, 0, counts[types.CategoryBeforeWheel])
}

func TestPreviewNumber(t *testing.T) {
	m, _ := setupManager(t)
	n := m.PreviewNumber(context.Background())
	assert.Equal(t, "WHL250117001", n)
	assert.Nil(t, m.State().JobNumber, "the session is numbered only at save")
	assert.False(t, m.Dirty())
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	m, e := setupManager(t)
	_, err := m.AddPhoto(ctx, types.CategoryDuring, payload("old.jpg"))
	require.NoError(t, err)

	n, err := Sweep(ctx, e.store, e.clock.now().Add(23*time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = Sweep(ctx, e.store, e.clock.now().Add(25*time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, stagedCount(t, e, m.SessionID()))
}
