package access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/photofactory/internal/sqlite"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

var errInjected = errors.New("injected failure")

// probe counts table calls and can fail the nth Delete on a table.
type probe struct {
	mu        sync.Mutex
	queries   map[string]int
	deletes   map[string]int
	failTable string
	failAt    int
}

func newProbe() *probe {
	return &probe{queries: map[string]int{}, deletes: map[string]int{}}
}

func (p *probe) queryCount(table string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries[table]
}

// probeStore wraps a Store so every table it hands out, including those
// inside transactions, reports to the same probe.
type probeStore struct {
	types.Store
	p *probe
}

func (s *probeStore) Table(name string) (types.Table, error) {
	t, err := s.Store.Table(name)
	if err != nil {
		return nil, err
	}
	return &probeTable{Table: t, name: name, p: s.p}, nil
}

func (s *probeStore) Transaction(ctx context.Context, tables []string, fn func(tx types.Store) error) error {
	return s.Store.Transaction(ctx, tables, func(tx types.Store) error {
		return fn(&probeStore{Store: tx, p: s.p})
	})
}

type probeTable struct {
	types.Table
	name string
	p    *probe
}

func (t *probeTable) Query(ctx context.Context, q types.Query) ([]any, error) {
	t.p.mu.Lock()
	t.p.queries[t.name]++
	t.p.mu.Unlock()
	return t.Table.Query(ctx, q)
}

func (t *probeTable) Delete(ctx context.Context, id int64) error {
	t.p.mu.Lock()
	t.p.deletes[t.name]++
	n := t.p.deletes[t.name]
	fail := t.p.failTable == t.name && t.p.failAt == n
	t.p.mu.Unlock()
	if fail {
		return errInjected
	}
	return t.Table.Delete(ctx, id)
}

// fixedClock returns a clock frozen at the given local time.
func fixedClock(tm time.Time) func() time.Time {
	return func() time.Time { return tm }
}

// setupBackend attaches a sqlite backend in a temp dir and detaches it on
// cleanup.
func setupBackend(t *testing.T) *sqlite.Backend {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func setupAPI(t *testing.T) (*API, *probe) {
	t.Helper()
	p := newProbe()
	store := &probeStore{Store: setupBackend(t), p: p}
	now := time.Date(2025, 1, 17, 10, 0, 0, 0, time.Local)
	return New(store, WithClock(fixedClock(now))), p
}

func mustUser(t *testing.T, api *API, email string) *types.User {
	t.Helper()
	res := api.Users.Create(context.Background(), email, "Tech")
	require.Nil(t, res.Err)
	return res.Data
}

func mustJob(t *testing.T, api *API, number string, tech int64) *types.Job {
	t.Helper()
	res := api.Jobs.Insert(context.Background(), types.JobInput{
		JobNumber:    number,
		VehicleModel: "Hyundai Genesis G80",
		TechnicianID: tech,
	})
	require.Nil(t, res.Err)
	return res.Data
}

func photoInputs(jobID int64, n int) []types.PhotoInput {
	ins := make([]types.PhotoInput, 0, n)
	for i := 0; i < n; i++ {
		cat := types.Categories[i%len(types.Categories)]
		ins = append(ins, types.PhotoInput{
			JobID:     jobID,
			Category:  cat,
			Sequence:  i / len(types.Categories),
			ImageData: []byte(fmt.Sprintf("img-%d", i)),
			FileName:  fmt.Sprintf("p%d.jpg", i),
			FileSize:  int64(len(fmt.Sprintf("img-%d", i))),
		})
	}
	return ins
}

func TestDBError(t *testing.T) {
	b := New(nil).Jobs.base

	nf := b.dbError("getting job", fmt.Errorf("wrap: %w", types.ErrNotFound))
	assert.Equal(t, types.KindValidation, nf.Kind)
	assert.True(t, IsNotFound(nf))
	assert.False(t, nf.Retryable)

	ae := types.ValidationError("vehicle_model", "required")
	assert.Same(t, ae, b.dbError("op", ae))

	db := b.dbError("inserting", types.ErrConstraint)
	assert.Equal(t, types.KindDatabase, db.Kind)
	assert.True(t, db.Retryable)
	assert.True(t, IsConflict(db))

	assert.False(t, IsNotFound(nil))
	assert.False(t, IsConflict(nil))
}
