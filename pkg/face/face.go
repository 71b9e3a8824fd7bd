// Package face detects faces in camera frames and turns them into
// embeddings that can be compared against a registered target.
package face

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-grok-pilot/pkg/geom"
)

// Errors returned by extractors and distance helpers.
var (
	ErrEmptyFrame     = errors.New("face: empty frame")
	ErrEmptyEmbedding = errors.New("face: empty embedding")
	ErrDimMismatch    = errors.New("face: embedding dimensions differ")
)

// Observation is one detected face in a frame.
type Observation struct {
	Embedding []float64 `json:"-"`
	BBox      geom.BBox `json:"bbox"`
	Score     float64   `json:"score"`
}

// Extractor finds faces in a JPEG frame and embeds them.
type Extractor interface {
	// DetectFaces returns every face in the frame with its embedding.
	DetectFaces(ctx context.Context, frame []byte) ([]Observation, error)

	// Distance compares two embeddings. Smaller is more similar.
	Distance(a, b []float64) float64

	// Close releases model resources.
	Close() error
}

// Euclidean returns the L2 distance between two vectors of equal length.
func Euclidean(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyEmbedding
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Normalize scales v to unit length. A zero vector is returned unchanged.
func Normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	mag := math.Sqrt(sum)
	out := make([]float64, len(v))
	if mag == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / mag
	}
	return out
}

// SafeDistance wraps Euclidean for use as Extractor.Distance. Mismatched
// or empty vectors compare as infinitely far apart.
func SafeDistance(a, b []float64) float64 {
	d, err := Euclidean(a, b)
	if err != nil {
		return math.Inf(1)
	}
	return d
}

// MinDistance returns the smallest distance between query and any of refs.
// It returns +Inf when refs is empty.
func MinDistance(dist func(a, b []float64) float64, query []float64, refs [][]float64) float64 {
	best := math.Inf(1)
	for _, r := range refs {
		if d := dist(query, r); d < best {
			best = d
		}
	}
	return best
}
