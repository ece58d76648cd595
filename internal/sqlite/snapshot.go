package sqlite

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/qri-io/jsonschema"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

//go:embed snapshot_schema.json
var snapshotSchemaJSON []byte

// Snapshot errors.
var (
	ErrSnapshotVersion = errors.New("unsupported snapshot version")
	ErrSnapshotInvalid = errors.New("snapshot does not match schema")
)

// exportTables are the tables carried by a Snapshot, parents first.
var exportTables = []string{types.JobsTable, types.PhotosTable, types.UsersTable, types.SettingsTable}

// Export reads jobs, photos, users and settings in one transaction.
func (b *Backend) Export(ctx context.Context) (*types.Snapshot, error) {
	snap := &types.Snapshot{Version: types.SnapshotVersion, ExportedAt: b.now()}
	err := b.Transaction(ctx, exportTables, func(tx types.Store) error {
		var err error
		if snap.Jobs, err = queryAll[types.Job](ctx, tx, types.JobsTable); err != nil {
			return err
		}
		if snap.Photos, err = queryAll[types.Photo](ctx, tx, types.PhotosTable); err != nil {
			return err
		}
		if snap.Users, err = queryAll[types.User](ctx, tx, types.UsersTable); err != nil {
			return err
		}
		snap.Settings, err = queryAll[types.Setting](ctx, tx, types.SettingsTable)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("exporting: %w", err)
	}
	return snap, nil
}

func queryAll[T any](ctx context.Context, s types.Store, name string) ([]*T, error) {
	tbl, err := s.Table(name)
	if err != nil {
		return nil, err
	}
	recs, err := tbl.Query(ctx, types.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.(*T))
	}
	return out, nil
}

// Import replaces jobs, photos, users and settings with the snapshot's
// records, keeping their IDs. Staged photos are untouched. Either every
// record is imported or the store is left as it was.
func (b *Backend) Import(ctx context.Context, snap *types.Snapshot) error {
	if snap == nil {
		return types.ErrInvalidData
	}
	if snap.Version != types.SnapshotVersion {
		return fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Children first so the foreign key from photos to jobs holds.
	for _, name := range []string{types.PhotosTable, types.JobsTable, types.UsersTable, types.SettingsTable} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+name); err != nil {
			return fmt.Errorf("clearing %s: %w", name, err)
		}
	}

	for _, j := range snap.Jobs {
		if err := insertWithID(ctx, tx, jobsDef, j.JobID, j); err != nil {
			return err
		}
	}
	for _, p := range snap.Photos {
		if err := insertWithID(ctx, tx, photosDef, p.PhotoID, p); err != nil {
			return err
		}
	}
	for _, u := range snap.Users {
		if err := insertWithID(ctx, tx, usersDef, u.UserID, u); err != nil {
			return err
		}
	}
	for _, s := range snap.Settings {
		if err := insertWithID(ctx, tx, settingsDef, s.SettingID, s); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	b.logger.Info("snapshot imported",
		"jobs", len(snap.Jobs), "photos", len(snap.Photos), "users", len(snap.Users), "settings", len(snap.Settings))
	return nil
}

func insertWithID(ctx context.Context, q querier, def *entityDef, id int64, rec any) error {
	if id <= 0 {
		return fmt.Errorf("importing %s: %w", def.name, types.ErrInvalidID)
	}
	vals, err := def.values(rec)
	if err != nil {
		return fmt.Errorf("importing %s %d: %w", def.name, id, err)
	}
	query := fmt.Sprintf("INSERT INTO %s (id, %s) VALUES (?, %s)",
		def.name, strings.Join(def.columns, ", "), placeholders(len(def.columns)))
	if _, err := q.ExecContext(ctx, query, append([]any{id}, vals...)...); err != nil {
		return fmt.Errorf("importing %s %d: %w", def.name, id, mapError(err))
	}
	return nil
}

// WriteSnapshot exports the store as one JSON document.
func (b *Backend) WriteSnapshot(ctx context.Context, w io.Writer) error {
	snap, err := b.Export(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// ReadSnapshot validates a JSON export against the snapshot schema and
// imports it.
func (b *Backend) ReadSnapshot(ctx context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if err := validateSnapshot(ctx, data); err != nil {
		return err
	}
	var snap types.Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&snap); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	return b.Import(ctx, &snap)
}

func validateSnapshot(ctx context.Context, data []byte) error {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(snapshotSchemaJSON, rs); err != nil {
		return fmt.Errorf("loading snapshot schema: %w", err)
	}
	keyErrs, err := rs.ValidateBytes(ctx, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	if len(keyErrs) > 0 {
		msgs := make([]string, 0, len(keyErrs))
		for _, ke := range keyErrs {
			msgs = append(msgs, ke.Error())
		}
		return fmt.Errorf("%w: %s", ErrSnapshotInvalid, strings.Join(msgs, "; "))
	}
	return nil
}

// Stats counts rows per table and sums stored image bytes.
func (b *Backend) Stats(ctx context.Context) (types.Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.Stats{}, types.ErrStoreDetached
	}

	var s types.Stats
	counts := []struct {
		table string
		dest  *int
	}{
		{types.JobsTable, &s.Jobs},
		{types.PhotosTable, &s.Photos},
		{types.StagedPhotosTable, &s.StagedPhotos},
		{types.UsersTable, &s.Users},
		{types.SettingsTable, &s.Settings},
	}
	for _, c := range counts {
		if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return types.Stats{}, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}

	const sumBytes = `SELECT
    COALESCE((SELECT SUM(COALESCE(LENGTH(image_data), 0) + COALESCE(LENGTH(thumbnail_data), 0)) FROM photos), 0) +
    COALESCE((SELECT SUM(COALESCE(LENGTH(image_data), 0) + COALESCE(LENGTH(thumbnail_data), 0)) FROM temp_photos), 0)`
	if err := b.db.QueryRowContext(ctx, sumBytes).Scan(&s.TotalBytes); err != nil {
		return types.Stats{}, fmt.Errorf("summing image bytes: %w", err)
	}
	return s, nil
}

// ClearAll removes every row from every table.
func (b *Backend) ClearAll(ctx context.Context) error {
	return b.Transaction(ctx, types.StandardTableNames, func(tx types.Store) error {
		// Photos before jobs for the foreign key.
		for _, name := range []string{types.PhotosTable, types.JobsTable, types.StagedPhotosTable, types.UsersTable, types.SettingsTable} {
			tbl, err := tx.Table(name)
			if err != nil {
				return err
			}
			if err := tbl.Clear(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
