package types

import "time"

// SnapshotVersion is the export format version written by Export.
const SnapshotVersion = 1

// Snapshot is a full export of the structured local store. Staged photos
// are not exported.
type Snapshot struct {
	Version    int        `json:"version"`
	ExportedAt time.Time  `json:"exported_at"`
	Jobs       []*Job     `json:"jobs"`
	Photos     []*Photo   `json:"photos"`
	Users      []*User    `json:"users"`
	Settings   []*Setting `json:"settings"`
}

// Stats summarizes the contents of the structured local store.
type Stats struct {
	Jobs         int   `json:"jobs"`
	Photos       int   `json:"photos"`
	StagedPhotos int   `json:"temp_photos"`
	Users        int   `json:"users"`
	Settings     int   `json:"settings"`
	TotalBytes   int64 `json:"total_bytes"`
}
