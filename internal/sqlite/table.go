package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Compile-time interface check: table must implement Table.
var _ types.Table = (*table)(nil)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// entityDef describes how one entity type maps onto its SQLite table.
type entityDef struct {
	name string
	// columns excludes the id column, in insert order.
	columns []string
	// unfilterable columns (blobs) cannot appear in filters or ordering.
	unfilterable map[string]bool
	// values returns the column values of record in columns order.
	values func(record any) ([]any, error)
	// setID writes the assigned surrogate ID back into record.
	setID func(record any, id int64)
	// hydrate scans id followed by columns into a new record.
	hydrate func(row rowScanner) (any, error)
}

func (d *entityDef) hasColumn(name string) bool {
	if name == "id" {
		return true
	}
	for _, c := range d.columns {
		if c == name {
			return true
		}
	}
	return false
}

func (d *entityDef) filterable(name string) bool {
	return d.hasColumn(name) && !d.unfilterable[name]
}

func (d *entityDef) selectList() string {
	return "id, " + strings.Join(d.columns, ", ")
}

// entityDefs lists every table the backend serves.
var entityDefs = []*entityDef{jobsDef, photosDef, stagedPhotosDef, usersDef, settingsDef}

var defsByName = func() map[string]*entityDef {
	m := make(map[string]*entityDef, len(entityDefs))
	for _, d := range entityDefs {
		m[d.name] = d
	}
	return m
}()

// table implements types.Table for a single entity type. Inside a
// transaction q is the *sql.Tx; otherwise q is nil and each call locks the
// backend and uses its *sql.DB.
type table struct {
	backend *Backend
	def     *entityDef
	q       querier
}

// acquire returns the querier to use and a release func.
func (t *table) acquire() (querier, func(), error) {
	if t.q != nil {
		return t.q, func() {}, nil
	}
	t.backend.mu.RLock()
	if !t.backend.attached {
		t.backend.mu.RUnlock()
		return nil, nil, types.ErrStoreDetached
	}
	return t.backend.db, t.backend.mu.RUnlock, nil
}

// Insert stores record and writes the assigned ID back into it.
func (t *table) Insert(ctx context.Context, record any) (int64, error) {
	q, release, err := t.acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	return t.insert(ctx, q, record)
}

func (t *table) insert(ctx context.Context, q querier, record any) (int64, error) {
	vals, err := t.def.values(record)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.def.name, strings.Join(t.def.columns, ", "), placeholders(len(t.def.columns)))
	res, err := q.ExecContext(ctx, query, vals...)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", t.def.name, mapError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading %s id: %w", t.def.name, err)
	}
	t.def.setID(record, id)
	return id, nil
}

// BulkInsert stores all records in one transaction.
func (t *table) BulkInsert(ctx context.Context, records []any) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}
	q, release, err := t.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	run := func(q querier) ([]int64, error) {
		ids := make([]int64, 0, len(records))
		for i, rec := range records {
			id, err := t.insert(ctx, q, rec)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	db, ok := q.(*sql.DB)
	if !ok {
		return run(q)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ids, err := run(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing bulk insert: %w", err)
	}
	return ids, nil
}

// Get retrieves a record by ID.
func (t *table) Get(ctx context.Context, id int64) (any, error) {
	if id <= 0 {
		return nil, types.ErrInvalidID
	}
	q, release, err := t.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	row := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", t.def.selectList(), t.def.name), id)
	rec, err := t.def.hydrate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting %s %d: %w", t.def.name, id, err)
	}
	return rec, nil
}

// BulkGet returns records in ids order with nil for missing IDs.
func (t *table) BulkGet(ctx context.Context, ids []int64) ([]any, error) {
	out := make([]any, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	recs, err := t.Query(ctx, types.Query{Filters: []types.Filter{types.In("id", args...)}})
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]any, len(recs))
	for _, rec := range recs {
		byID[recordID(rec)] = rec
	}
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out, nil
}

// Query returns records matching q.
func (t *table) Query(ctx context.Context, query types.Query) ([]any, error) {
	where, args, err := t.where(query.Filters)
	if err != nil {
		return nil, err
	}

	order := "id"
	if query.OrderBy != "" {
		if !t.def.filterable(query.OrderBy) {
			return nil, fmt.Errorf("%w: cannot order %s by %q", types.ErrInvalidFilter, t.def.name, query.OrderBy)
		}
		order = query.OrderBy
	}
	dir := "ASC"
	if query.Descending {
		dir = "DESC"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s%s ORDER BY %s %s, id %s", t.def.selectList(), t.def.name, where, order, dir, dir)
	if query.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, query.Limit)
	}

	q, release, err := t.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.def.name, err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		rec, err := t.def.hydrate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", t.def.name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", t.def.name, err)
	}
	return out, nil
}

// Count returns the number of records matching filters.
func (t *table) Count(ctx context.Context, filters ...types.Filter) (int, error) {
	where, args, err := t.where(filters)
	if err != nil {
		return 0, err
	}
	q, release, err := t.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	var n int
	if err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.def.name, where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", t.def.name, err)
	}
	return n, nil
}

// Update applies changes to the record with id.
func (t *table) Update(ctx context.Context, id int64, changes map[string]any) error {
	if id <= 0 {
		return types.ErrInvalidID
	}
	if len(changes) == 0 {
		return nil
	}
	sets := make([]string, 0, len(changes))
	args := make([]any, 0, len(changes)+1)
	for _, col := range t.def.columns {
		v, ok := changes[col]
		if !ok {
			continue
		}
		sets = append(sets, col+" = ?")
		args = append(args, sqlValue(v))
	}
	if len(sets) != len(changes) {
		return fmt.Errorf("%w: unknown column in update of %s", types.ErrInvalidData, t.def.name)
	}
	args = append(args, id)

	q, release, err := t.acquire()
	if err != nil {
		return err
	}
	defer release()

	res, err := q.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t.def.name, strings.Join(sets, ", ")), args...)
	if err != nil {
		return fmt.Errorf("updating %s %d: %w", t.def.name, id, mapError(err))
	}
	return requireAffected(res)
}

// Delete removes the record with id.
func (t *table) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return types.ErrInvalidID
	}
	q, release, err := t.acquire()
	if err != nil {
		return err
	}
	defer release()

	res, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.def.name), id)
	if err != nil {
		return fmt.Errorf("deleting %s %d: %w", t.def.name, id, mapError(err))
	}
	return requireAffected(res)
}

// DeleteWhere removes every record matching filters.
func (t *table) DeleteWhere(ctx context.Context, filters ...types.Filter) (int, error) {
	if len(filters) == 0 {
		return 0, fmt.Errorf("%w: DeleteWhere needs at least one filter", types.ErrInvalidFilter)
	}
	where, args, err := t.where(filters)
	if err != nil {
		return 0, err
	}
	q, release, err := t.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	res, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", t.def.name, where), args...)
	if err != nil {
		return 0, fmt.Errorf("deleting from %s: %w", t.def.name, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return int(n), nil
}

// Clear removes every record in the table.
func (t *table) Clear(ctx context.Context) error {
	q, release, err := t.acquire()
	if err != nil {
		return err
	}
	defer release()

	if _, err := q.ExecContext(ctx, "DELETE FROM "+t.def.name); err != nil {
		return fmt.Errorf("clearing %s: %w", t.def.name, mapError(err))
	}
	return nil
}

// where renders filters as a WHERE clause with a leading space.
func (t *table) where(filters []types.Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return "", nil, err
		}
		if !t.def.filterable(f.Field) {
			return "", nil, fmt.Errorf("%w: %s has no field %q", types.ErrInvalidFilter, t.def.name, f.Field)
		}
		switch f.Op {
		case types.OpEq:
			conds = append(conds, f.Field+" = ?")
			args = append(args, sqlValue(f.Value))
		case types.OpBelow:
			conds = append(conds, f.Field+" < ?")
			args = append(args, sqlValue(f.Value))
		case types.OpAtLeast:
			conds = append(conds, f.Field+" >= ?")
			args = append(args, sqlValue(f.Value))
		case types.OpBetween:
			conds = append(conds, f.Field+" >= ? AND "+f.Field+" < ?")
			args = append(args, sqlValue(f.Value), sqlValue(f.Upper))
		case types.OpIn:
			values := f.Value.([]any)
			if len(values) == 0 {
				conds = append(conds, "0")
				continue
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", f.Field, placeholders(len(values))))
			for _, v := range values {
				args = append(args, sqlValue(v))
			}
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// mapError wraps SQLite constraint failures with types.ErrConstraint.
func mapError(err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %v", types.ErrConstraint, err)
	}
	return err
}

// sqlValue converts domain values into driver values.
func sqlValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return toMillis(x)
	case types.Category:
		return string(x)
	case types.JobStatus:
		return string(x)
	default:
		return v
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// recordID returns the surrogate ID of a hydrated record.
func recordID(rec any) int64 {
	switch r := rec.(type) {
	case *types.Job:
		return r.JobID
	case *types.Photo:
		return r.PhotoID
	case *types.StagedPhoto:
		return r.StagedPhotoID
	case *types.User:
		return r.UserID
	case *types.Setting:
		return r.SettingID
	default:
		return 0
	}
}
