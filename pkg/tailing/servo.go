package tailing

import (
	"math"

	"github.com/teslashibe/go-grok-pilot/pkg/geom"
)

// Correction returns the rotation in degrees that brings the box toward
// frame center, and the pixel offset it was computed from. Positive
// offset means the target is right of center and yields a clockwise
// (positive) rotation.
func Correction(cfg Config, box geom.BBox) (degrees int, offsetPx float64) {
	offsetPx = box.CenterOffsetPx(cfg.FrameWidth)
	mag := math.Abs(offsetPx)

	switch {
	case mag < cfg.DeadZonePx:
		return 0, offsetPx
	case mag < cfg.SlowZonePx:
		degrees = cfg.SlowRotationDeg
	default:
		degrees = cfg.FastRotationDeg
	}
	if offsetPx < 0 {
		degrees = -degrees
	}
	return degrees, offsetPx
}
