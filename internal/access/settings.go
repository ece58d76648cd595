package access

import (
	"context"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Settings is the accessor for key/value settings.
type Settings struct {
	base
}

// Get returns the value for key and whether it was set.
func (s *Settings) Get(ctx context.Context, key string) (string, bool, *types.AppError) {
	rec, aerr := s.find(ctx, key)
	if aerr != nil || rec == nil {
		return "", false, aerr
	}
	return rec.Value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Settings) Set(ctx context.Context, key, value string) *types.AppError {
	if key == "" {
		return types.ValidationError("key", "Setting key is required.")
	}
	rec, aerr := s.find(ctx, key)
	if aerr != nil {
		return aerr
	}
	tbl, aerr := s.table(types.SettingsTable)
	if aerr != nil {
		return aerr
	}
	if rec != nil {
		if err := tbl.Update(ctx, rec.SettingID, map[string]any{"value": value}); err != nil {
			return s.dbError("updating setting", err)
		}
		return nil
	}
	if _, err := tbl.Insert(ctx, &types.Setting{Key: key, Value: value}); err != nil {
		return s.dbError("inserting setting", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Settings) Delete(ctx context.Context, key string) *types.AppError {
	tbl, aerr := s.table(types.SettingsTable)
	if aerr != nil {
		return aerr
	}
	if _, err := tbl.DeleteWhere(ctx, types.Eq("key", key)); err != nil {
		return s.dbError("deleting setting", err)
	}
	return nil
}

func (s *Settings) find(ctx context.Context, key string) (*types.Setting, *types.AppError) {
	tbl, aerr := s.table(types.SettingsTable)
	if aerr != nil {
		return nil, aerr
	}
	recs, err := tbl.Query(ctx, types.Query{Filters: []types.Filter{types.Eq("key", key)}, Limit: 1})
	if err != nil {
		return nil, s.dbError("reading setting", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0].(*types.Setting), nil
}
