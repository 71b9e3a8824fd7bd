package face

import (
	"context"
	"sync"
)

// Mock is a scripted Extractor for tests.
type Mock struct {
	mu sync.Mutex

	DetectFacesFunc func(ctx context.Context, frame []byte) ([]Observation, error)
	DistanceFunc    func(a, b []float64) float64

	calls int
}

// NewMock returns a Mock that always reports the given faces.
func NewMock(faces ...Observation) *Mock {
	return &Mock{
		DetectFacesFunc: func(ctx context.Context, frame []byte) ([]Observation, error) {
			return faces, nil
		},
	}
}

// DetectFaces calls DetectFacesFunc or returns nothing.
func (m *Mock) DetectFaces(ctx context.Context, frame []byte) ([]Observation, error) {
	m.mu.Lock()
	m.calls++
	fn := m.DetectFacesFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, frame)
	}
	return nil, nil
}

// Distance calls DistanceFunc or falls back to Euclidean distance.
func (m *Mock) Distance(a, b []float64) float64 {
	if m.DistanceFunc != nil {
		return m.DistanceFunc(a, b)
	}
	return SafeDistance(a, b)
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// CallCount returns how many times DetectFaces was called.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Extractor = (*Mock)(nil)
