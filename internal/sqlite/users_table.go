package sqlite

import (
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

var usersDef = &entityDef{
	name:    types.UsersTable,
	columns: []string{"email", "display_name", "created_at"},
	values: func(rec any) ([]any, error) {
		u, ok := rec.(*types.User)
		if !ok || u == nil || u.Email == "" {
			return nil, types.ErrInvalidData
		}
		return []any{u.Email, u.DisplayName, toMillis(u.CreatedAt)}, nil
	},
	setID: func(rec any, id int64) { rec.(*types.User).UserID = id },
	hydrate: func(row rowScanner) (any, error) {
		var (
			u       types.User
			created int64
		)
		if err := row.Scan(&u.UserID, &u.Email, &u.DisplayName, &created); err != nil {
			return nil, err
		}
		u.CreatedAt = fromMillis(created)
		return &u, nil
	},
}

var settingsDef = &entityDef{
	name:    types.SettingsTable,
	columns: []string{"key", "value"},
	values: func(rec any) ([]any, error) {
		s, ok := rec.(*types.Setting)
		if !ok || s == nil || s.Key == "" {
			return nil, types.ErrInvalidData
		}
		return []any{s.Key, s.Value}, nil
	},
	setID: func(rec any, id int64) { rec.(*types.Setting).SettingID = id },
	hydrate: func(row rowScanner) (any, error) {
		var s types.Setting
		if err := row.Scan(&s.SettingID, &s.Key, &s.Value); err != nil {
			return nil, err
		}
		return &s, nil
	},
}
