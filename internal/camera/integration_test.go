package camera_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-vision/multicam/internal/alert"
	"github.com/sentinel-vision/multicam/internal/broker"
	"github.com/sentinel-vision/multicam/internal/camera"
	"github.com/sentinel-vision/multicam/internal/reid"
	"github.com/sentinel-vision/multicam/internal/timeutil"
	"github.com/sentinel-vision/multicam/internal/tracker"
)

// TestCrossCameraReidentification drives the whole fusion flow by hand:
// cam0 detects a subject and publishes a new threat, the tracker mints a
// global id and broadcasts the assignment, and cam1, seeing the same
// subject, publishes a re-identification match that lands in the target's
// trajectory.
func TestCrossCameraReidentification(t *testing.T) {
	t.Parallel()

	hub := broker.New(broker.DefaultConfig())
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	global := tracker.New(hub, clock, tracker.DefaultConfig())

	sig := reid.Signature{0.1, 0.7, 0.3, 0.9}
	bbox0 := reid.BBox{10, 10, 50, 90}
	bbox1 := reid.BBox{200, 40, 260, 150}

	newAgent := func(id string, bbox reid.BBox, sees bool) *camera.Agent {
		source := camera.SourceFunc(func() (camera.Frame, error) { return camera.Frame{1}, nil })
		detector := camera.DetectorFunc(func(camera.Frame) (*reid.Detection, error) {
			if !sees {
				return nil, nil
			}
			return &reid.Detection{BBox: bbox, Confidence: 0.9}, nil
		})
		extractor := camera.ExtractorFunc(func(camera.Frame, reid.BBox) (reid.Signature, error) {
			return sig, nil
		})
		return camera.NewAgent(id, hub, source, detector, extractor, clock, camera.DefaultConfig())
	}

	cam0 := newAgent("cam0", bbox0, true)
	cam1 := newAgent("cam1", bbox1, true)

	// cam0 sees the subject first
	require.True(t, cam0.Cycle())

	// the tracker registers the threat and broadcasts the assignment
	require.GreaterOrEqual(t, global.DrainOnce(), 1)
	require.Equal(t, uint64(1), global.Stats().Registered)

	// cam1 sees the same subject: it matches both cam0's raw threat (id not
	// yet known -> "unknown") and the id assignment (-> "T0")
	clock.Set(time.Unix(101, 0))
	require.True(t, cam1.Cycle())
	assert.Equal(t, uint64(2), cam1.Stats().Matches)

	// the tracker folds the matches in; the premature match is observable as
	// an unknown-id race, not an error
	global.DrainOnce()
	stats := global.Stats()
	assert.Equal(t, uint64(1), stats.UnknownIDMatches)

	trajectory := global.TargetTrajectory("T0")
	require.Len(t, trajectory, 2)
	assert.Equal(t, "cam0", trajectory[0].CameraID)
	assert.Nil(t, trajectory[0].Location)
	assert.Equal(t, "cam1", trajectory[1].CameraID)
	require.NotNil(t, trajectory[1].Location)
	assert.Equal(t, bbox1, *trajectory[1].Location)
	assert.Equal(t, 101.0, trajectory[1].Timestamp)

	// cam2 subscribing later never sees the old broadcasts, so it stays quiet
	cam2 := newAgent("cam2", reid.BBox{}, false)
	require.True(t, cam2.Cycle())
	assert.Equal(t, uint64(0), cam2.Stats().Matches)

	unknown := global.TargetTrajectory(alert.UnknownGlobalID)
	require.Len(t, unknown, 1)
	assert.Equal(t, "cam1", unknown[0].CameraID)
}
