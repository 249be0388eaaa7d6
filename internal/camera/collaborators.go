package camera

import (
	"github.com/sentinel-vision/multicam/internal/reid"
)

// Frame is an opaque image buffer. The core never inspects pixel contents;
// frames only pass through to the detector and the feature extractor.
type Frame []byte

// FrameSource supplies frames from a camera feed. Next returns (nil, nil)
// when no frame is ready yet; a non-nil error signals stream termination to
// the agent.
type FrameSource interface {
	Next() (Frame, error)
}

// Detector locates the highest-confidence candidate in a frame, or none.
// Detector failures must be catchable; the agent logs them and continues.
type Detector interface {
	Detect(frame Frame) (*reid.Detection, error)
}

// FeatureExtractor turns the detected region of a frame into an appearance
// signature. Because frames are opaque to the core, cropping is the
// extractor's responsibility.
type FeatureExtractor interface {
	Extract(frame Frame, region reid.BBox) (reid.Signature, error)
}

// SourceFunc adapts a plain function to the FrameSource interface.
type SourceFunc func() (Frame, error)

// Next calls f.
func (f SourceFunc) Next() (Frame, error) { return f() }

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(Frame) (*reid.Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(frame Frame) (*reid.Detection, error) { return f(frame) }

// ExtractorFunc adapts a plain function to the FeatureExtractor interface.
type ExtractorFunc func(Frame, reid.BBox) (reid.Signature, error)

// Extract calls f.
func (f ExtractorFunc) Extract(frame Frame, region reid.BBox) (reid.Signature, error) {
	return f(frame, region)
}
