package oracle

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/teslashibe/go-grok-pilot/pkg/geom"
)

// Maneuver names the kind of motion a clearance check is made for.
type Maneuver string

const (
	ManeuverFlip     Maneuver = "flip"
	ManeuverForward  Maneuver = "forward"
	ManeuverLateral  Maneuver = "lateral"
	ManeuverVertical Maneuver = "vertical"
	ManeuverGeneral  Maneuver = "general"
)

// Side is a direction relative to the camera.
type Side string

const (
	SideFront Side = "front"
	SideLeft  Side = "left"
	SideRight Side = "right"
	SideAbove Side = "above"
	SideBelow Side = "below"
)

// UnknownClearance marks a direction the oracle could not estimate.
const UnknownClearance = -1

// Obstacle is one object the oracle found near the flight path.
type Obstacle struct {
	Name        string `json:"name"`
	Position    string `json:"position"`
	DistanceCm  int    `json:"distance_cm"`
	DangerLevel string `json:"danger_level"`
}

// ClearanceReport is the oracle's estimate of free space around the vehicle.
type ClearanceReport struct {
	IsClear           bool       `json:"is_clear"`
	SafetyScore       int        `json:"overall_safety_score"`
	FrontCm           int        `json:"front_clearance_cm"`
	LeftCm            int        `json:"left_clearance_cm"`
	RightCm           int        `json:"right_clearance_cm"`
	AboveCm           int        `json:"above_clearance_cm"`
	BelowCm           int        `json:"below_clearance_cm"`
	Obstacles         []Obstacle `json:"obstacles"`
	SafeForFlip       bool       `json:"safe_for_flip"`
	SafeForForward    bool       `json:"safe_for_forward_movement"`
	SafeForLateral    bool       `json:"safe_for_lateral_movement"`
	SafeForVertical   bool       `json:"safe_for_vertical_movement"`
	Hazards           []string   `json:"hazards"`
	Warnings          []string   `json:"warnings"`
	RecommendedAction string     `json:"recommended_action"`
}

// ClearanceCm returns the clearance toward side, or UnknownClearance.
func (r *ClearanceReport) ClearanceCm(side Side) int {
	switch side {
	case SideFront:
		return r.FrontCm
	case SideLeft:
		return r.LeftCm
	case SideRight:
		return r.RightCm
	case SideAbove:
		return r.AboveCm
	case SideBelow:
		return r.BelowCm
	}
	return UnknownClearance
}

// SafeFor reports the oracle's verdict for a maneuver kind.
func (r *ClearanceReport) SafeFor(m Maneuver) bool {
	switch m {
	case ManeuverFlip:
		return r.SafeForFlip
	case ManeuverForward:
		return r.SafeForForward
	case ManeuverLateral:
		return r.SafeForLateral
	case ManeuverVertical:
		return r.SafeForVertical
	}
	return r.IsClear
}

// NearestObstacles returns obstacles positioned toward side, closest first.
// Obstacles without a usable position are treated as front-facing.
func (r *ClearanceReport) NearestObstacles(side Side) []Obstacle {
	var out []Obstacle
	for _, o := range r.Obstacles {
		if obstacleSide(o.Position) == side {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return distanceKey(out[i]) < distanceKey(out[j])
	})
	return out
}

func distanceKey(o Obstacle) int {
	if o.DistanceCm < 0 {
		return math.MaxInt32
	}
	return o.DistanceCm
}

func obstacleSide(position string) Side {
	p := strings.ToLower(position)
	switch {
	case strings.Contains(p, "left"):
		return SideLeft
	case strings.Contains(p, "right"):
		return SideRight
	case strings.Contains(p, "above"), strings.Contains(p, "up"), strings.Contains(p, "ceiling"):
		return SideAbove
	case strings.Contains(p, "below"), strings.Contains(p, "down"), strings.Contains(p, "floor"):
		return SideBelow
	}
	return SideFront
}

// UnmarshalJSON accepts float distances and treats missing clearances as unknown.
func (r *ClearanceReport) UnmarshalJSON(data []byte) error {
	var raw struct {
		IsClear           bool          `json:"is_clear"`
		SafetyScore       *float64      `json:"overall_safety_score"`
		FrontCm           *float64      `json:"front_clearance_cm"`
		LeftCm            *float64      `json:"left_clearance_cm"`
		RightCm           *float64      `json:"right_clearance_cm"`
		AboveCm           *float64      `json:"above_clearance_cm"`
		BelowCm           *float64      `json:"below_clearance_cm"`
		Obstacles         []rawObstacle `json:"obstacles"`
		SafeForFlip       bool          `json:"safe_for_flip"`
		SafeForForward    bool          `json:"safe_for_forward_movement"`
		SafeForLateral    bool          `json:"safe_for_lateral_movement"`
		SafeForVertical   bool          `json:"safe_for_vertical_movement"`
		Hazards           []string      `json:"hazards"`
		Warnings          []string      `json:"warnings"`
		RecommendedAction string        `json:"recommended_action"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = ClearanceReport{
		IsClear:           raw.IsClear,
		SafetyScore:       cmOr(raw.SafetyScore, 0),
		FrontCm:           cmOr(raw.FrontCm, UnknownClearance),
		LeftCm:            cmOr(raw.LeftCm, UnknownClearance),
		RightCm:           cmOr(raw.RightCm, UnknownClearance),
		AboveCm:           cmOr(raw.AboveCm, UnknownClearance),
		BelowCm:           cmOr(raw.BelowCm, UnknownClearance),
		SafeForFlip:       raw.SafeForFlip,
		SafeForForward:    raw.SafeForForward,
		SafeForLateral:    raw.SafeForLateral,
		SafeForVertical:   raw.SafeForVertical,
		Hazards:           raw.Hazards,
		Warnings:          raw.Warnings,
		RecommendedAction: raw.RecommendedAction,
	}
	for _, o := range raw.Obstacles {
		r.Obstacles = append(r.Obstacles, Obstacle{
			Name:        o.Name,
			Position:    o.Position,
			DistanceCm:  cmOr(o.DistanceCm, UnknownClearance),
			DangerLevel: o.DangerLevel,
		})
	}
	return nil
}

type rawObstacle struct {
	Name        string   `json:"name"`
	Position    string   `json:"position"`
	DistanceCm  *float64 `json:"distance_cm"`
	DangerLevel string   `json:"danger_level"`
}

func cmOr(v *float64, fallback int) int {
	if v == nil || math.IsNaN(*v) || *v < 0 {
		return fallback
	}
	return int(math.Round(*v))
}

// Descriptor identifies the person an identity check looks for.
type Descriptor struct {
	Name        string
	Description string
}

// IdentityJudgment is the oracle's answer to "is this the target?".
type IdentityJudgment struct {
	PersonVisible bool    `json:"person_visible"`
	IsTarget      bool    `json:"is_target"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
	Description   string  `json:"person_description"`
}

// Summary returns what the oracle saw, falling back to its reasoning.
func (j *IdentityJudgment) Summary() string {
	if j.Description != "" {
		return j.Description
	}
	return j.Reasoning
}

// FrameBox is a bounding box in one panorama frame.
type FrameBox struct {
	Frame int `json:"frame_number"`
	geom.BBox
}

// PanoramaEntity is one person the oracle believes is unique in a sweep.
type PanoramaEntity struct {
	ID          string     `json:"person_id"`
	Description string     `json:"description"`
	Clothing    string     `json:"clothing,omitempty"`
	Frames      []int      `json:"frames_visible_in"`
	BBoxes      []FrameBox `json:"bounding_boxes"`
	BestFrame   int        `json:"best_frame"`
	Direction   string     `json:"primary_direction"`
}

// PanoramaObject is a notable non-person object in a sweep.
type PanoramaObject struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Frames      []int  `json:"frames_visible_in"`
	Direction   string `json:"primary_direction"`
}

// PanoramaAnalysis is the oracle's grouping of an 8-frame sweep.
type PanoramaAnalysis struct {
	SceneType    string           `json:"scene_type"`
	Summary      string           `json:"summary"`
	People       []PanoramaEntity `json:"unique_people"`
	Objects      []PanoramaObject `json:"unique_objects"`
	PeopleCount  int              `json:"total_people_count"`
	ObjectsCount int              `json:"total_objects_count"`
}
