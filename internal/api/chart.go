package api

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleTrajectoryChart renders a quick scatter plot (HTML) of a target's
// camera hops over time using go-echarts. This is a debugging-only endpoint:
// X is the sighting timestamp, Y is the camera that reported it.
// Query params:
//   - global_id (required)
func (s *Server) handleTrajectoryChart(w http.ResponseWriter, r *http.Request) {
	globalID := r.URL.Query().Get("global_id")
	if globalID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing global_id")
		return
	}

	trajectory := s.tracker.TargetTrajectory(globalID)
	if len(trajectory) == 0 {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no trajectory for %q", globalID))
		return
	}

	// Stable camera → row mapping so the Y axis reads as camera lanes.
	cameraRow := make(map[string]int)
	for _, entry := range trajectory {
		if _, ok := cameraRow[entry.CameraID]; !ok {
			cameraRow[entry.CameraID] = 0
		}
	}
	cameras := make([]string, 0, len(cameraRow))
	for id := range cameraRow {
		cameras = append(cameras, id)
	}
	sort.Strings(cameras)
	for i, id := range cameras {
		cameraRow[id] = i
	}

	data := make([]opts.ScatterData, 0, len(trajectory))
	for _, entry := range trajectory {
		data = append(data, opts.ScatterData{
			Value: []interface{}{entry.Timestamp, cameraRow[entry.CameraID]},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Target Trajectory", Theme: "dark", Width: "1100px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Trajectory %s", globalID),
			Subtitle: fmt.Sprintf("sightings=%d cameras=%d", len(trajectory), len(cameras)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "timestamp (unix s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "camera lane", Min: -1, Max: len(cameras), NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries(globalID, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
