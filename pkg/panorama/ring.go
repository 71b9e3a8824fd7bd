// Package panorama captures an 8-heading sweep and repairs the oracle's
// grouping of people across it.
package panorama

import (
	"math"
	"slices"

	"github.com/teslashibe/go-grok-pilot/pkg/oracle"
)

// Frames is the ring size.
const Frames = oracle.PanoramaFrames

// Compass bands reported for an entity.
const (
	DirectionAhead  = "ahead"
	DirectionRight  = "to_my_right"
	DirectionBehind = "behind_me"
	DirectionLeft   = "to_my_left"
)

// Adjacent reports whether frames a and b (1-based) overlap on the ring.
func Adjacent(a, b int) bool {
	d := ((a-b)%Frames + Frames) % Frames
	return d == 1 || d == Frames-1
}

func inRing(n int) bool {
	return n >= 1 && n <= Frames
}

// Valid reports whether frames form one contiguous run on the ring.
// Empty and single-frame sets are valid.
func Valid(frames []int) bool {
	return len(Clusters(frames)) <= 1
}

// Clusters splits frames into ring-connected runs. Duplicates are merged.
// Each run is ordered along the ring starting after its gap, so [7 8 1]
// stays one run in that order. Runs are ordered by their first frame.
func Clusters(frames []int) [][]int {
	var present [Frames + 1]bool
	n := 0
	for _, f := range frames {
		if inRing(f) && !present[f] {
			present[f] = true
			n++
		}
	}
	if n == 0 {
		return nil
	}
	if n == Frames {
		all := make([]int, Frames)
		for i := range all {
			all[i] = i + 1
		}
		return [][]int{all}
	}

	// A run starts at a present frame whose predecessor is absent.
	var out [][]int
	for f := 1; f <= Frames; f++ {
		prev := (f+Frames-2)%Frames + 1
		if !present[f] || present[prev] {
			continue
		}
		run := []int{f}
		for next := f%Frames + 1; present[next]; next = next%Frames + 1 {
			run = append(run, next)
		}
		out = append(out, run)
	}
	slices.SortFunc(out, func(a, b []int) int { return a[0] - b[0] })
	return out
}

// Direction maps a set of frames to a compass band using the circular
// mean of their headings. A set spread evenly around the ring falls back
// to the arithmetic mean.
func Direction(frames []int) string {
	var sx, sy, sum float64
	n := 0
	for _, f := range frames {
		if !inRing(f) {
			continue
		}
		rad := float64(oracle.FrameAngle(f)) * math.Pi / 180
		sx += math.Cos(rad)
		sy += math.Sin(rad)
		sum += float64(f - 1)
		n++
	}
	if n == 0 {
		return ""
	}

	// pos is the mean heading in frame steps, 0 = frame 1.
	var pos float64
	if math.Hypot(sx, sy) < 1e-9 {
		pos = sum / float64(n)
	} else {
		deg := math.Atan2(sy, sx) * 180 / math.Pi
		if deg < 0 {
			deg += 360
		}
		pos = deg / (360 / Frames)
	}

	switch {
	case pos <= 0.5 || pos >= 6.5:
		return DirectionAhead
	case pos <= 2.5:
		return DirectionRight
	case pos <= 4.5:
		return DirectionBehind
	default:
		return DirectionLeft
	}
}
