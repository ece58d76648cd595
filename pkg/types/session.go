package types

import "time"

// PhotoMeta is the lightweight view of a staged photo kept in session
// metadata. It never carries image bytes.
type PhotoMeta struct {
	ID       int64  `json:"id"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	Sequence int    `json:"sequence"`
}

// SessionState is the in-progress job a technician is capturing.
type SessionState struct {
	SessionID    string
	JobNumber    *string
	VehicleModel string
	Location     string
	Photos       map[Category][]PhotoMeta
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewSessionState returns an empty session with every category present.
func NewSessionState(id string, now time.Time) SessionState {
	photos := make(map[Category][]PhotoMeta, len(Categories))
	for _, c := range Categories {
		photos[c] = []PhotoMeta{}
	}
	return SessionState{
		SessionID: id,
		Photos:    photos,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the state.
func (s SessionState) Clone() SessionState {
	out := s
	if s.JobNumber != nil {
		n := *s.JobNumber
		out.JobNumber = &n
	}
	out.Photos = make(map[Category][]PhotoMeta, len(s.Photos))
	for c, metas := range s.Photos {
		cp := make([]PhotoMeta, len(metas))
		copy(cp, metas)
		out.Photos[c] = cp
	}
	return out
}

// PhotoCount returns the number of photos across all categories.
func (s SessionState) PhotoCount() int {
	n := 0
	for _, metas := range s.Photos {
		n += len(metas)
	}
	return n
}

// SessionPatch lists session fields to change. Nil fields are untouched.
type SessionPatch struct {
	VehicleModel *string
	Location     *string
}

// SaveRequest carries the final edits applied when a session is saved.
type SaveRequest struct {
	// VehicleModel overrides the session's model when non-empty.
	VehicleModel string
	Location     string
	// WorkDate defaults to the local date of the save.
	WorkDate string
}
