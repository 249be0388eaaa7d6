package reid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilaritySelf(t *testing.T) {
	t.Parallel()

	sig := Signature{1, 2, 3, 4}
	got := CosineSimilarity(sig, sig)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	t.Parallel()

	a := Signature{0.5, -1.5, 2.0, 0.25}
	b := Signature{1.0, 0.75, -0.5, 3.0}
	assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a))
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	t.Parallel()

	a := Signature{1, 0}
	b := Signature{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarityOpposite(t *testing.T) {
	t.Parallel()

	a := Signature{1, 1}
	b := Signature{-1, -1}
	assert.InDelta(t, -1.0, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarityMagnitudeInvariant(t *testing.T) {
	t.Parallel()

	a := Signature{3, 4}
	scaled := Signature{30, 40}
	assert.InDelta(t, 1.0, CosineSimilarity(a, scaled), 1e-9)
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	t.Parallel()

	a := Signature{1, 2, 3}

	assert.Equal(t, 0.0, CosineSimilarity(nil, a))
	assert.Equal(t, 0.0, CosineSimilarity(a, nil))
	assert.Equal(t, 0.0, CosineSimilarity(a, Signature{1, 2}))

	// zero-magnitude vectors must not divide by zero
	zero := Signature{0, 0, 0}
	got := CosineSimilarity(zero, zero)
	assert.False(t, math.IsNaN(got))
	assert.Equal(t, 0.0, got)
}
