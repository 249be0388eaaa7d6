// Package tracker implements the global identity registry. A single consumer
// drains cross-camera alerts from the broker, mints global ids for new
// threats, and folds re-identification matches into per-target histories.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sentinel-vision/multicam/internal/alert"
	"github.com/sentinel-vision/multicam/internal/broker"
	"github.com/sentinel-vision/multicam/internal/monitoring"
	"github.com/sentinel-vision/multicam/internal/reid"
	"github.com/sentinel-vision/multicam/internal/timeutil"
)

// Default cadence and shutdown bounds for the consumption loop.
const (
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultShutdownGrace = 2 * time.Second
)

// Config holds tracker loop parameters.
type Config struct {
	PollInterval  time.Duration // cadence of the drain loop
	ShutdownGrace time.Duration // how long Wait blocks for the loop to exit
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:  DefaultPollInterval,
		ShutdownGrace: DefaultShutdownGrace,
	}
}

// HistoryEntry records one sighting of a target. Entries are appended in
// arrival order, which is not necessarily timestamp order.
type HistoryEntry struct {
	CameraID  string     `json:"camera_id"`
	Location  *reid.BBox `json:"location,omitempty"`
	Timestamp float64    `json:"timestamp"`
}

// TargetState is the authoritative per-target record. It is owned by the
// tracker; callers only ever see copies.
type TargetState struct {
	GlobalID      string
	CurrentCamera string
	History       []HistoryEntry
}

// TargetSnapshot is a read-only summary of one target for API consumers.
type TargetSnapshot struct {
	GlobalID      string  `json:"global_id"`
	CurrentCamera string  `json:"current_camera,omitempty"`
	Sightings     int     `json:"sightings"`
	FirstSeen     float64 `json:"first_seen"`
	LastSeen      float64 `json:"last_seen"`
}

// Stats is a snapshot of tracker counters. UnknownIDMatches counts reid
// matches that arrived for an id the registry had not seen, which makes
// assignment/match races observable instead of silently absorbed.
type Stats struct {
	Targets          int    `json:"targets"`
	Registered       uint64 `json:"registered"`
	Matches          uint64 `json:"matches"`
	UnknownIDMatches uint64 `json:"unknown_id_matches"`
	Malformed        uint64 `json:"malformed"`
}

// AlertSink receives every well-formed alert the tracker consumes, for
// after-the-fact review. A nil sink disables recording.
type AlertSink interface {
	RecordAlert(alert.Alert) error
}

// GlobalTracker fuses per-camera sightings into stable global identities.
type GlobalTracker struct {
	broker *broker.Broker
	sub    *broker.Subscription
	clock  timeutil.Clock
	config Config
	sink   AlertSink

	mu      sync.RWMutex
	targets map[string]*TargetState
	nextID  int64
	stats   Stats

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a GlobalTracker subscribed to the given broker.
func New(b *broker.Broker, clock timeutil.Clock, config Config) *GlobalTracker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = DefaultShutdownGrace
	}
	return &GlobalTracker{
		broker:  b,
		sub:     b.Subscribe(),
		clock:   clock,
		config:  config,
		targets: make(map[string]*TargetState),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// SetAlertSink installs a sink for consumed alerts. Call before Run.
func (g *GlobalTracker) SetAlertSink(sink AlertSink) {
	g.sink = sink
}

// Run drains the tracker's subscription on a fixed cadence until the context
// is cancelled or Stop is called. It is the only goroutine that mutates the
// registry.
func (g *GlobalTracker) Run(ctx context.Context) {
	defer close(g.done)
	monitoring.Logf("global tracker started (poll %s)", g.config.PollInterval)

	ticker := g.clock.NewTicker(g.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("global tracker stopped: %v", ctx.Err())
			return
		case <-g.stop:
			monitoring.Logf("global tracker stopped")
			return
		case <-ticker.C():
			g.DrainOnce()
		}
	}
}

// Stop signals the consumption loop to exit.
func (g *GlobalTracker) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// Wait blocks until the loop exits or the configured grace period elapses.
// It reports, rather than fails, a loop that did not stop in time.
func (g *GlobalTracker) Wait() bool {
	select {
	case <-g.done:
		return true
	case <-time.After(g.config.ShutdownGrace):
		monitoring.Logf("warning: global tracker did not stop within %s", g.config.ShutdownGrace)
		return false
	}
}

// DrainOnce processes every alert currently queued on the tracker's
// subscription and returns how many were consumed.
func (g *GlobalTracker) DrainOnce() int {
	alerts := g.broker.Drain(g.sub)
	for _, a := range alerts {
		g.processAlert(a)
	}
	return len(alerts)
}

func (g *GlobalTracker) processAlert(a alert.Alert) {
	if err := a.Validate(); err != nil {
		g.mu.Lock()
		g.stats.Malformed++
		g.mu.Unlock()
		monitoring.Logf("tracker skipping malformed alert: %v", err)
		return
	}

	switch a.Type {
	case alert.TypeNewThreat:
		globalID := g.RegisterNewThreat(a.CameraID, a.Signature, a.Timestamp)
		g.broker.Publish(alert.IDAssignment(globalID, a.CameraID, a.Signature, a.Timestamp))
		g.record(a)
	case alert.TypeReidMatch:
		g.HandleReidMatch(a.GlobalID, a.CameraID, *a.Location, a.Timestamp)
		g.record(a)
	case alert.TypeIDAssignment:
		// the tracker's own broadcasts fan out to its subscription too
	}
}

func (g *GlobalTracker) record(a alert.Alert) {
	if g.sink == nil {
		return
	}
	if err := g.sink.RecordAlert(a); err != nil {
		monitoring.Logf("failed to record alert: %v", err)
	}
}

// RegisterNewThreat mints the next global id for a threat first seen on
// cameraID and stores its initial state. Ids are unique and strictly
// increasing for the lifetime of the process.
func (g *GlobalTracker) RegisterNewThreat(cameraID string, signature reid.Signature, timestamp float64) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	globalID := fmt.Sprintf("T%d", g.nextID)
	g.nextID++

	g.targets[globalID] = &TargetState{
		GlobalID:      globalID,
		CurrentCamera: cameraID,
		History: []HistoryEntry{{
			CameraID:  cameraID,
			Timestamp: timestamp,
		}},
	}
	g.stats.Registered++
	return globalID
}

// HandleReidMatch folds a match into the target's history. An unknown id is
// lazily materialised rather than dropped, so a match is never lost merely
// because registration raced or was missed; the race is counted in Stats.
func (g *GlobalTracker) HandleReidMatch(globalID, cameraID string, location reid.BBox, timestamp float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.targets[globalID]
	if !ok {
		state = &TargetState{GlobalID: globalID}
		g.targets[globalID] = state
		g.stats.UnknownIDMatches++
	}
	state.CurrentCamera = cameraID
	loc := location
	state.History = append(state.History, HistoryEntry{
		CameraID:  cameraID,
		Location:  &loc,
		Timestamp: timestamp,
	})
	g.stats.Matches++
}

// TargetTrajectory returns a copy of the stored history for a global id, in
// arrival order. An unknown id yields an empty slice, never an error.
func (g *GlobalTracker) TargetTrajectory(globalID string) []HistoryEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	state, ok := g.targets[globalID]
	if !ok {
		return nil
	}
	out := make([]HistoryEntry, len(state.History))
	copy(out, state.History)
	return out
}

// Targets returns a summary snapshot of every known target.
func (g *GlobalTracker) Targets() []TargetSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]TargetSnapshot, 0, len(g.targets))
	for _, state := range g.targets {
		snap := TargetSnapshot{
			GlobalID:      state.GlobalID,
			CurrentCamera: state.CurrentCamera,
			Sightings:     len(state.History),
		}
		if n := len(state.History); n > 0 {
			snap.FirstSeen = state.History[0].Timestamp
			snap.LastSeen = state.History[n-1].Timestamp
		}
		out = append(out, snap)
	}
	return out
}

// Stats returns a snapshot of the tracker counters.
func (g *GlobalTracker) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	stats := g.stats
	stats.Targets = len(g.targets)
	return stats
}
