package types

import "time"

// User is a technician known to the local store.
type User struct {
	UserID      int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Setting is a key/value pair persisted in the local store.
type Setting struct {
	SettingID int64  `json:"id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}
