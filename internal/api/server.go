// Package api exposes the tracking system over HTTP: target summaries,
// per-target trajectories, the persisted alert log, live alert streaming via
// SSE, and a debug trajectory chart.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sentinel-vision/multicam/internal/alertdb"
	"github.com/sentinel-vision/multicam/internal/broker"
	"github.com/sentinel-vision/multicam/internal/camera"
	"github.com/sentinel-vision/multicam/internal/monitoring"
	"github.com/sentinel-vision/multicam/internal/tracker"
)

// defaultStreamInterval is the SSE drain cadence.
const defaultStreamInterval = 250 * time.Millisecond

// Server serves the HTTP API for one running pipeline.
type Server struct {
	tracker *tracker.GlobalTracker
	broker  *broker.Broker
	db      *alertdb.DB // may be nil when the alert log is disabled
	agents  []*camera.Agent

	streamInterval time.Duration
}

// NewServer creates an API server over the given pipeline components. db may
// be nil if alert persistence is disabled.
func NewServer(t *tracker.GlobalTracker, b *broker.Broker, db *alertdb.DB, agents []*camera.Agent) *Server {
	return &Server{
		tracker:        t,
		broker:         b,
		db:             db,
		agents:         agents,
		streamInterval: defaultStreamInterval,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *Server) logRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next(lrw, r)
		monitoring.Logf("%s %s %d %s", r.Method, r.URL.Path, lrw.statusCode, time.Since(start))
	}
}

// ServeMux returns the route table for this server.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/targets", s.logRequest(s.handleTargets))
	mux.HandleFunc("GET /api/targets/{id}/trajectory", s.logRequest(s.handleTrajectory))
	mux.HandleFunc("GET /api/alerts/recent", s.logRequest(s.handleRecentAlerts))
	mux.HandleFunc("GET /api/stats", s.logRequest(s.handleStats))
	mux.HandleFunc("GET /api/alerts/stream", s.handleAlertStream)
	mux.HandleFunc("GET /debug/trajectory-chart", s.logRequest(s.handleTrajectoryChart))
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("failed to encode response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	targets := s.tracker.Targets()
	if targets == nil {
		targets = []tracker.TargetSnapshot{}
	}
	s.writeJSON(w, targets)
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	globalID := r.PathValue("id")
	trajectory := s.tracker.TargetTrajectory(globalID)
	if trajectory == nil {
		trajectory = []tracker.HistoryEntry{}
	}
	s.writeJSON(w, map[string]interface{}{
		"global_id":  globalID,
		"trajectory": trajectory,
	})
}

func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "alert log disabled")
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", l))
			return
		}
		limit = v
	}
	records, err := s.db.RecentAlerts(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []alertdb.Record{}
	}
	s.writeJSON(w, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	cameras := make(map[string]camera.Stats, len(s.agents))
	for _, a := range s.agents {
		cameras[a.CameraID()] = a.Stats()
	}
	s.writeJSON(w, map[string]interface{}{
		"broker":  s.broker.Stats(),
		"tracker": s.tracker.Stats(),
		"cameras": cameras,
	})
}

// handleAlertStream issues Server-Sent Events for every alert published after
// the request arrived. The stream's subscription is drained on a fixed
// cadence and removed when the client disconnects.
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable buffering for nginx

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub.ID())

	// initial ping to establish the connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			for _, a := range s.broker.Drain(sub) {
				payload, err := json.Marshal(a)
				if err != nil {
					monitoring.Logf("failed to encode alert for stream: %v", err)
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
			}
			flusher.Flush()
		}
	}
}
