// Package reid holds the appearance primitives shared across the pipeline:
// bounding boxes, detections, and the fixed-length signature vectors used for
// cross-camera re-identification.
package reid

import (
	"gonum.org/v1/gonum/floats"
)

// EmbeddingDim is the length of an appearance signature vector.
const EmbeddingDim = 512

// similarityEpsilon guards the cosine denominator against zero-magnitude
// vectors.
const similarityEpsilon = 1e-10

// BBox is an axis-aligned bounding box in pixel coordinates: x1, y1, x2, y2.
type BBox [4]int

// Signature is an appearance fingerprint produced by a feature extractor. It
// is not required to be unit-normalised; similarity handles arbitrary
// non-zero magnitude.
type Signature []float64

// Detection is a single candidate located in a frame.
type Detection struct {
	BBox       BBox
	Confidence float64
}

// CosineSimilarity returns the cosine of the angle between two signatures.
// Mismatched or empty vectors score zero, so a malformed alert never matches
// a local detection.
func CosineSimilarity(a, b Signature) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	dot := floats.Dot(a, b)
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	return dot / (normA*normB + similarityEpsilon)
}
