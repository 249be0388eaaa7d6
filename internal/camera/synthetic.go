package camera

import (
	"math/rand"

	"github.com/sentinel-vision/multicam/internal/reid"
)

// This file provides collaborator implementations that need no real models:
// a null detector for wiring tests, and a synthetic source/detector/extractor
// stack that fabricates periodic detections so the whole pipeline can be
// exercised end to end without video hardware.

// NullDetector never detects anything.
type NullDetector struct{}

// Detect reports no candidate in any frame.
func (NullDetector) Detect(Frame) (*reid.Detection, error) { return nil, nil }

// SyntheticSource emits a frame carrying a synthetic subject tag once every
// `every` polls, and an empty frame otherwise. A zero tag means no subject.
type SyntheticSource struct {
	Subject byte // subject identity embedded in emitted frames
	Every   int  // emit the subject every N polls; N<=1 means every poll

	polls int
}

// Next returns the next synthetic frame. It never fails.
func (s *SyntheticSource) Next() (Frame, error) {
	s.polls++
	frame := make(Frame, 16)
	if s.Every <= 1 || s.polls%s.Every == 0 {
		frame[0] = s.Subject
	}
	return frame, nil
}

// SyntheticDetector reads the subject tag a SyntheticSource embedded in the
// frame and reports a fixed-region detection when one is present.
type SyntheticDetector struct{}

// Detect decodes the frame's subject tag.
func (SyntheticDetector) Detect(frame Frame) (*reid.Detection, error) {
	if len(frame) == 0 || frame[0] == 0 {
		return nil, nil
	}
	return &reid.Detection{
		BBox:       reid.BBox{40, 40, 200, 220},
		Confidence: 0.9,
	}, nil
}

// SyntheticExtractor derives a deterministic signature from the frame's
// subject tag: the same subject yields the same vector on every camera, so
// cross-camera matches score cosine similarity 1.0.
type SyntheticExtractor struct {
	Dim int // signature length; zero means reid.EmbeddingDim
}

// Extract produces the subject's deterministic signature.
func (e SyntheticExtractor) Extract(frame Frame, _ reid.BBox) (reid.Signature, error) {
	dim := e.Dim
	if dim <= 0 {
		dim = reid.EmbeddingDim
	}
	var subject byte
	if len(frame) > 0 {
		subject = frame[0]
	}
	rng := rand.New(rand.NewSource(int64(subject)))
	sig := make(reid.Signature, dim)
	for i := range sig {
		sig[i] = rng.Float64()
	}
	return sig, nil
}
