package oracle

import (
	"context"
	"sync"
)

// Mock implements Oracle for testing.
type Mock struct {
	CheckClearanceFunc  func(ctx context.Context, frame []byte, m Maneuver, requiredCm int) (*ClearanceReport, error)
	VerifyIdentityFunc  func(ctx context.Context, frame []byte, target Descriptor) (*IdentityJudgment, error)
	AnalyzePanoramaFunc func(ctx context.Context, frames [][]byte) (*PanoramaAnalysis, error)

	mu    sync.Mutex
	calls map[string]int
}

// NewMockClearance returns a Mock that always reports r.
func NewMockClearance(r *ClearanceReport) *Mock {
	return &Mock{
		CheckClearanceFunc: func(ctx context.Context, frame []byte, m Maneuver, requiredCm int) (*ClearanceReport, error) {
			cp := *r
			return &cp, nil
		},
	}
}

// CheckClearance calls CheckClearanceFunc.
func (m *Mock) CheckClearance(ctx context.Context, frame []byte, mv Maneuver, requiredCm int) (*ClearanceReport, error) {
	m.record("CheckClearance")
	if m.CheckClearanceFunc != nil {
		return m.CheckClearanceFunc(ctx, frame, mv, requiredCm)
	}
	return &ClearanceReport{
		FrontCm: UnknownClearance, LeftCm: UnknownClearance, RightCm: UnknownClearance,
		AboveCm: UnknownClearance, BelowCm: UnknownClearance,
	}, nil
}

// VerifyIdentity calls VerifyIdentityFunc.
func (m *Mock) VerifyIdentity(ctx context.Context, frame []byte, target Descriptor) (*IdentityJudgment, error) {
	m.record("VerifyIdentity")
	if m.VerifyIdentityFunc != nil {
		return m.VerifyIdentityFunc(ctx, frame, target)
	}
	return &IdentityJudgment{}, nil
}

// AnalyzePanorama calls AnalyzePanoramaFunc.
func (m *Mock) AnalyzePanorama(ctx context.Context, frames [][]byte) (*PanoramaAnalysis, error) {
	m.record("AnalyzePanorama")
	if m.AnalyzePanoramaFunc != nil {
		return m.AnalyzePanoramaFunc(ctx, frames)
	}
	return &PanoramaAnalysis{}, nil
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

var _ Oracle = (*Mock)(nil)
