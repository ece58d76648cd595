package staging

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qri-io/jsonschema"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

//go:embed session_schema.json
var sessionSchemaJSON []byte

// errBlobInvalid marks a persisted session that cannot be trusted.
var errBlobInvalid = errors.New("persisted session is invalid")

// blobState is the JSON form of a session in the key-value blob. It holds
// photo metadata only, never image bytes.
type blobState struct {
	SessionID    string                               `json:"sessionId"`
	JobNumber    *string                              `json:"jobNumber"`
	VehicleModel string                               `json:"vehicleModel"`
	Location     string                               `json:"location"`
	Photos       map[types.Category][]types.PhotoMeta `json:"photos"`
	CreatedAt    time.Time                            `json:"createdAt"`
	UpdatedAt    time.Time                            `json:"updatedAt"`

	// PhotosOmitted is set when the photo list was dropped to fit the quota.
	// The staged rows are then the only record of the session's photos.
	PhotosOmitted bool `json:"photosOmitted,omitempty"`
}

func encodeState(s types.SessionState, omitPhotos bool) (string, error) {
	b := blobState{
		SessionID:     s.SessionID,
		JobNumber:     s.JobNumber,
		VehicleModel:  s.VehicleModel,
		Location:      s.Location,
		Photos:        s.Photos,
		PhotosOmitted: omitPhotos,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if omitPhotos {
		b.Photos = map[types.Category][]types.PhotoMeta{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encoding session: %w", err)
	}
	return string(data), nil
}

// decodeState validates raw against the session schema and decodes it.
// Missing categories are filled in empty.
func decodeState(ctx context.Context, raw string) (types.SessionState, bool, error) {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(sessionSchemaJSON, rs); err != nil {
		return types.SessionState{}, false, fmt.Errorf("loading session schema: %w", err)
	}
	keyErrs, err := rs.ValidateBytes(ctx, []byte(raw))
	if err != nil {
		return types.SessionState{}, false, fmt.Errorf("%w: %v", errBlobInvalid, err)
	}
	if len(keyErrs) > 0 {
		msgs := make([]string, 0, len(keyErrs))
		for _, ke := range keyErrs {
			msgs = append(msgs, ke.Error())
		}
		return types.SessionState{}, false, fmt.Errorf("%w: %s", errBlobInvalid, strings.Join(msgs, "; "))
	}

	var b blobState
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return types.SessionState{}, false, fmt.Errorf("%w: %v", errBlobInvalid, err)
	}
	s := types.NewSessionState(b.SessionID, b.CreatedAt)
	s.JobNumber = b.JobNumber
	s.VehicleModel = b.VehicleModel
	s.Location = b.Location
	s.UpdatedAt = b.UpdatedAt
	for c, metas := range b.Photos {
		s.Photos[c] = append(s.Photos[c], metas...)
	}
	return s, b.PhotosOmitted, nil
}
