// Package geom holds normalized image-space geometry shared by the
// detection, verification and tailing code.
package geom

// BBox is a bounding box in normalized image coordinates (0-1).
// X and Y are the top-left corner.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// Center returns the center point of the box.
func (b BBox) Center() (x, y float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns the normalized area of the box.
func (b BBox) Area() float64 {
	return b.W * b.H
}

// IsZero reports whether the box is empty.
func (b BBox) IsZero() bool {
	return b.W <= 0 || b.H <= 0
}

// Contains reports whether the point (x, y) lies inside the box.
func (b BBox) Contains(x, y float64) bool {
	return x >= b.X && x <= b.X+b.W && y >= b.Y && y <= b.Y+b.H
}

// CenterOffsetPx returns the horizontal pixel offset of the box center
// from the frame center for a frame of the given width. Positive means
// the box is right of center.
func (b BBox) CenterOffsetPx(frameWidth int) float64 {
	cx, _ := b.Center()
	return cx*float64(frameWidth) - float64(frameWidth)/2
}

// Clamp returns the box clipped to the unit square.
func (b BBox) Clamp() BBox {
	x0, y0 := clamp01(b.X), clamp01(b.Y)
	x1, y1 := clamp01(b.X+b.W), clamp01(b.Y+b.H)
	return BBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
