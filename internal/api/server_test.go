package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-vision/multicam/internal/alert"
	"github.com/sentinel-vision/multicam/internal/alertdb"
	"github.com/sentinel-vision/multicam/internal/broker"
	"github.com/sentinel-vision/multicam/internal/reid"
	"github.com/sentinel-vision/multicam/internal/testutil"
	"github.com/sentinel-vision/multicam/internal/timeutil"
	"github.com/sentinel-vision/multicam/internal/tracker"
)

func newTestServer(t *testing.T, withDB bool) (*Server, *tracker.GlobalTracker, *broker.Broker) {
	t.Helper()
	b := broker.New(broker.DefaultConfig())
	g := tracker.New(b, timeutil.NewMockClock(time.Unix(1000, 0)), tracker.DefaultConfig())

	var db *alertdb.DB
	if withDB {
		var err error
		db, err = alertdb.NewDB(filepath.Join(t.TempDir(), "alerts.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		g.SetAlertSink(db)
	}

	return NewServer(g, b, db, nil), g, b
}

func TestHandleTargets(t *testing.T) {
	t.Parallel()

	s, g, _ := newTestServer(t, false)
	g.RegisterNewThreat("c0", testutil.Signature(8, 0), 100)

	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/targets"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var targets []tracker.TargetSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &targets))
	require.Len(t, targets, 1)
	assert.Equal(t, "T0", targets[0].GlobalID)
}

func TestHandleTargetsEmpty(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, false)
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/targets"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestHandleTrajectory(t *testing.T) {
	t.Parallel()

	s, g, _ := newTestServer(t, false)
	g.RegisterNewThreat("c0", testutil.Signature(8, 0), 100)
	g.HandleReidMatch("T0", "c1", reid.BBox{1, 2, 3, 4}, 101)

	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/targets/T0/trajectory"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var payload struct {
		GlobalID   string                 `json:"global_id"`
		Trajectory []tracker.HistoryEntry `json:"trajectory"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "T0", payload.GlobalID)
	require.Len(t, payload.Trajectory, 2)
	assert.Equal(t, "c0", payload.Trajectory[0].CameraID)
	assert.Equal(t, "c1", payload.Trajectory[1].CameraID)
}

func TestHandleTrajectoryUnknownTarget(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, false)
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/targets/T42/trajectory"))

	// unknown ids yield an empty trajectory, never an error
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), `"trajectory":[]`)
}

func TestHandleRecentAlerts(t *testing.T) {
	t.Parallel()

	s, g, b := newTestServer(t, true)
	b.Publish(alert.NewThreat("c0", testutil.Signature(8, 0), time.Unix(100, 0)))
	g.DrainOnce()

	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/alerts/recent?limit=10"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var records []alertdb.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, alert.TypeNewThreat, records[0].Type)
}

func TestHandleRecentAlertsBadLimit(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, true)
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/alerts/recent?limit=bogus"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestHandleRecentAlertsWithoutLog(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, false)
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/alerts/recent"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestHandleStats(t *testing.T) {
	t.Parallel()

	s, g, b := newTestServer(t, false)
	b.Publish(alert.NewThreat("c0", testutil.Signature(8, 0), time.Unix(100, 0)))
	g.DrainOnce()

	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/stats"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload, "broker")
	assert.Contains(t, payload, "tracker")
	assert.Contains(t, payload, "cameras")

	var trackerStats tracker.Stats
	require.NoError(t, json.Unmarshal(payload["tracker"], &trackerStats))
	assert.Equal(t, uint64(1), trackerStats.Registered)
}

func TestHandleTrajectoryChart(t *testing.T) {
	t.Parallel()

	s, g, _ := newTestServer(t, false)

	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/debug/trajectory-chart"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/debug/trajectory-chart?global_id=T9"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	g.RegisterNewThreat("c0", testutil.Signature(8, 0), 100)
	g.HandleReidMatch("T0", "c1", reid.BBox{1, 2, 3, 4}, 101)

	rec = testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/debug/trajectory-chart?global_id=T0"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Trajectory T0")
}

func TestAlertStreamDeliversPublishedAlerts(t *testing.T) {
	t.Parallel()

	s, _, b := newTestServer(t, false)
	s.streamInterval = 10 * time.Millisecond

	ts := httptest.NewServer(s.ServeMux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/alerts/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	b.Publish(alert.NewThreat("c0", testutil.Signature(8, 0), time.Unix(100, 0)))

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(5 * time.Second)
	got := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				got <- line
				return
			}
		}
	}()

	select {
	case line := <-got:
		assert.Contains(t, line, "NEW_THREAT")
		assert.Contains(t, line, `"camera_id":"c0"`)
	case <-deadline:
		t.Fatal("no alert received on SSE stream")
	}
}
