// Package alert defines the message types exchanged between camera agents and
// the global tracker over the broker, together with their JSON wire schema.
package alert

import (
	"fmt"
	"time"

	"github.com/sentinel-vision/multicam/internal/reid"
)

// Type tags the variant of an Alert on the wire.
type Type string

const (
	// TypeNewThreat announces a threat freshly detected by one camera.
	TypeNewThreat Type = "NEW_THREAT"
	// TypeIDAssignment broadcasts the global id minted for a new threat.
	TypeIDAssignment Type = "GLOBAL_ID_ASSIGN"
	// TypeReidMatch reports that a camera re-identified a known target.
	TypeReidMatch Type = "REID_MATCH"
)

// UnknownGlobalID is published by an agent that matches a broadcast signature
// before it has drained the corresponding id assignment. The tracker accepts
// it rather than blocking on strict causal ordering.
const UnknownGlobalID = "unknown"

// Alert is a tagged union of the three message variants. Alerts are immutable
// once published; the broker hands each subscriber its own copy.
type Alert struct {
	Type      Type           `json:"type"`
	CameraID  string         `json:"camera_id"`
	GlobalID  string         `json:"global_id,omitempty"`
	Signature reid.Signature `json:"signature,omitempty"`
	Location  *reid.BBox     `json:"location,omitempty"`
	// Timestamp is unix seconds with fractional precision.
	Timestamp float64 `json:"timestamp"`
}

// NewThreat builds a NEW_THREAT alert.
func NewThreat(cameraID string, signature reid.Signature, ts time.Time) Alert {
	return Alert{
		Type:      TypeNewThreat,
		CameraID:  cameraID,
		Signature: signature,
		Timestamp: UnixSeconds(ts),
	}
}

// IDAssignment builds a GLOBAL_ID_ASSIGN alert carrying the signature every
// camera should watch for.
func IDAssignment(globalID, cameraID string, signature reid.Signature, timestamp float64) Alert {
	return Alert{
		Type:      TypeIDAssignment,
		CameraID:  cameraID,
		GlobalID:  globalID,
		Signature: signature,
		Timestamp: timestamp,
	}
}

// ReidMatch builds a REID_MATCH alert locating a known target in a camera's
// view.
func ReidMatch(globalID, cameraID string, location reid.BBox, ts time.Time) Alert {
	return Alert{
		Type:      TypeReidMatch,
		CameraID:  cameraID,
		GlobalID:  globalID,
		Location:  &location,
		Timestamp: UnixSeconds(ts),
	}
}

// UnixSeconds converts a time to the wire timestamp representation.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Time converts the wire timestamp back to a time.Time.
func (a Alert) Time() time.Time {
	return time.Unix(0, int64(a.Timestamp*float64(time.Second)))
}

// Validate checks that the variant carries its required fields. Consumers
// skip invalid alerts rather than terminating their drain loops.
func (a Alert) Validate() error {
	if a.CameraID == "" {
		return fmt.Errorf("alert %q missing camera_id", a.Type)
	}
	switch a.Type {
	case TypeNewThreat:
		if len(a.Signature) == 0 {
			return fmt.Errorf("alert %q missing signature", a.Type)
		}
	case TypeIDAssignment:
		if a.GlobalID == "" {
			return fmt.Errorf("alert %q missing global_id", a.Type)
		}
		if len(a.Signature) == 0 {
			return fmt.Errorf("alert %q missing signature", a.Type)
		}
	case TypeReidMatch:
		if a.GlobalID == "" {
			return fmt.Errorf("alert %q missing global_id", a.Type)
		}
		if a.Location == nil {
			return fmt.Errorf("alert %q missing location", a.Type)
		}
	default:
		return fmt.Errorf("unknown alert type %q", a.Type)
	}
	return nil
}
