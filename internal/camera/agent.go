// Package camera implements the per-camera processing agent. Each agent owns
// one long-lived worker that pulls frames, runs detection and feature
// extraction, publishes new-threat alerts, and independently drains its own
// broker subscription to match incoming cross-camera alerts against what it
// currently sees.
package camera

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/sentinel-vision/multicam/internal/alert"
	"github.com/sentinel-vision/multicam/internal/broker"
	"github.com/sentinel-vision/multicam/internal/monitoring"
	"github.com/sentinel-vision/multicam/internal/reid"
	"github.com/sentinel-vision/multicam/internal/timeutil"
)

// Defaults for agent configuration.
const (
	DefaultPollInterval        = 50 * time.Millisecond
	DefaultSimilarityThreshold = 0.85
	DefaultShutdownGrace       = 2 * time.Second
)

// Config holds per-agent tuning parameters.
type Config struct {
	PollInterval        time.Duration // sleep between processing cycles
	SimilarityThreshold float64       // cosine similarity required for a reid match
	ShutdownGrace       time.Duration // how long Wait blocks for the loop to exit
}

// DefaultConfig returns the default agent configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:        DefaultPollInterval,
		SimilarityThreshold: DefaultSimilarityThreshold,
		ShutdownGrace:       DefaultShutdownGrace,
	}
}

// Stats is a snapshot of agent counters.
type Stats struct {
	Frames     uint64 `json:"frames"`
	Detections uint64 `json:"detections"`
	Matches    uint64 `json:"matches"`
	Faults     uint64 `json:"faults"`
}

// bufferedDetection pairs a detection's location with its signature for
// matching against incoming alerts. The buffer reflects only the current
// frame, never history.
type bufferedDetection struct {
	bbox      reid.BBox
	signature reid.Signature
}

// Agent processes frames from a single camera and shares threat signatures
// with the rest of the system through the broker.
type Agent struct {
	cameraID  string
	broker    *broker.Broker
	sub       *broker.Subscription
	source    FrameSource
	detector  Detector
	extractor FeatureExtractor
	clock     timeutil.Clock
	config    Config

	buffer []bufferedDetection

	statsMu sync.Mutex
	stats   Stats

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewAgent creates an agent for one camera, subscribed to the broker.
func NewAgent(cameraID string, b *broker.Broker, source FrameSource, detector Detector, extractor FeatureExtractor, clock timeutil.Clock, config Config) *Agent {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = DefaultShutdownGrace
	}
	return &Agent{
		cameraID:  cameraID,
		broker:    b,
		sub:       b.Subscribe(),
		source:    source,
		detector:  detector,
		extractor: extractor,
		clock:     clock,
		config:    config,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// CameraID returns the camera this agent serves.
func (a *Agent) CameraID() string { return a.cameraID }

// Run executes the poll/detect/match cycle until the context is cancelled,
// Stop is called, or the frame source signals stream termination. A single
// bad frame never kills the loop; only source failure does.
func (a *Agent) Run(ctx context.Context) {
	defer close(a.done)
	monitoring.Logf("camera %s: agent started (poll %s)", a.cameraID, a.config.PollInterval)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("camera %s: agent stopped: %v", a.cameraID, ctx.Err())
			return
		case <-a.stop:
			monitoring.Logf("camera %s: agent stopped", a.cameraID)
			return
		default:
		}

		if !a.Cycle() {
			monitoring.Logf("camera %s: frame stream ended, agent stopping", a.cameraID)
			return
		}

		select {
		case <-ctx.Done():
			monitoring.Logf("camera %s: agent stopped: %v", a.cameraID, ctx.Err())
			return
		case <-a.stop:
			monitoring.Logf("camera %s: agent stopped", a.cameraID)
			return
		case <-a.clock.After(a.config.PollInterval):
		}
	}
}

// Stop signals the processing loop to exit at its next cancellation check.
// Worst-case latency is one detection pass plus the poll interval.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Wait blocks until the loop exits or the configured grace period elapses.
// A loop that does not stop in time is reported, not escalated.
func (a *Agent) Wait() bool {
	select {
	case <-a.done:
		return true
	case <-time.After(a.config.ShutdownGrace):
		monitoring.Logf("warning: camera %s did not stop within %s", a.cameraID, a.config.ShutdownGrace)
		return false
	}
}

// Cycle runs one processing pass: acquire a frame, detect and publish, then
// drain and match incoming alerts. It returns false when the frame source
// signalled termination.
func (a *Agent) Cycle() bool {
	a.buffer = a.buffer[:0]

	frame, err := a.source.Next()
	if err != nil {
		monitoring.Logf("camera %s: %v", a.cameraID, errors.Wrap(err, "frame source failed"))
		return false
	}
	if frame != nil {
		if err := a.processFrame(frame); err != nil {
			a.countFault()
			monitoring.Logf("camera %s: frame processing failed: %v", a.cameraID, err)
		}
	}

	a.matchIncoming()
	return true
}

// processFrame runs detection on a frame and, on a hit, extracts the
// signature, publishes a new-threat alert, and buffers the detection for
// matching later in the same cycle.
func (a *Agent) processFrame(frame Frame) error {
	a.countFrame()

	detection, err := a.detector.Detect(frame)
	if err != nil {
		return errors.Wrap(err, "detect")
	}
	if detection == nil {
		return nil // an empty frame is a valid outcome
	}

	signature, err := a.extractor.Extract(frame, detection.BBox)
	if err != nil {
		return errors.Wrap(err, "extract features")
	}

	a.broker.Publish(alert.NewThreat(a.cameraID, signature, a.clock.Now()))
	a.buffer = append(a.buffer, bufferedDetection{
		bbox:      detection.BBox,
		signature: signature,
	})
	a.countDetection()
	return nil
}

// matchIncoming drains the agent's subscription and compares each alert's
// signature against the current frame's buffered detections. The first
// buffered detection over the similarity threshold wins; this is a deliberate
// first-over-threshold policy, not a best-of search.
func (a *Agent) matchIncoming() {
	for _, incoming := range a.broker.Drain(a.sub) {
		if len(incoming.Signature) == 0 {
			continue
		}
		if incoming.CameraID == a.cameraID {
			continue // never match against this camera's own broadcasts
		}
		for _, local := range a.buffer {
			sim := reid.CosineSimilarity(incoming.Signature, local.signature)
			if sim > a.config.SimilarityThreshold {
				globalID := incoming.GlobalID
				if globalID == "" {
					// matched before the id assignment arrived; the tracker
					// tolerates this soft inconsistency
					globalID = alert.UnknownGlobalID
				}
				a.broker.Publish(alert.ReidMatch(globalID, a.cameraID, local.bbox, a.clock.Now()))
				a.countMatch()
				break
			}
		}
	}
}

// Stats returns a snapshot of the agent counters.
func (a *Agent) Stats() Stats {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	return a.stats
}

func (a *Agent) countFrame() {
	a.statsMu.Lock()
	a.stats.Frames++
	a.statsMu.Unlock()
}

func (a *Agent) countDetection() {
	a.statsMu.Lock()
	a.stats.Detections++
	a.statsMu.Unlock()
}

func (a *Agent) countMatch() {
	a.statsMu.Lock()
	a.stats.Matches++
	a.statsMu.Unlock()
}

func (a *Agent) countFault() {
	a.statsMu.Lock()
	a.stats.Faults++
	a.statsMu.Unlock()
}
