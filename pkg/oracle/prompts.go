package oracle

import (
	"fmt"
	"strings"
)

// PanoramaFrames is the number of headings in a 360° sweep.
const PanoramaFrames = 8

// FrameAngle returns the heading in degrees of panorama frame n (1-based).
func FrameAngle(n int) int {
	return (n - 1) * 360 / PanoramaFrames
}

var frameLabels = [PanoramaFrames]string{
	"AHEAD (North)",
	"FRONT-RIGHT (NE)",
	"RIGHT (East)",
	"BACK-RIGHT (SE)",
	"BEHIND (South)",
	"BACK-LEFT (SW)",
	"LEFT (West)",
	"FRONT-LEFT (NW)",
}

func clearanceSystemPrompt(m Maneuver, requiredCm int) string {
	return fmt.Sprintf(`You are the obstacle-avoidance system of a small indoor quadcopter.
The vehicle is about to perform: %s. It needs %dcm of free space.

Estimate, from the single forward-facing camera image, the free distance in
centimeters in each direction. Use -1 for any direction you cannot see.
List every obstacle that could be hit with its position (front, left, right,
above, below), its estimated distance in centimeters and a danger level
(low, medium, high, critical). Be conservative: when unsure, report less
clearance, never more.

Respond with a single JSON object and nothing else:
{
  "is_clear": bool,
  "overall_safety_score": 0-100,
  "front_clearance_cm": int,
  "left_clearance_cm": int,
  "right_clearance_cm": int,
  "above_clearance_cm": int,
  "below_clearance_cm": int,
  "obstacles": [{"name": str, "position": str, "distance_cm": int, "danger_level": str}],
  "safe_for_flip": bool,
  "safe_for_forward_movement": bool,
  "safe_for_lateral_movement": bool,
  "safe_for_vertical_movement": bool,
  "hazards": [str],
  "warnings": [str],
  "recommended_action": str
}`, m, requiredCm)
}

func clearanceUserPrompt(m Maneuver, requiredCm int) string {
	return fmt.Sprintf("Analyze this drone camera image for obstacle clearance. "+
		"Planned maneuver: %s. Required clearance: %dcm. "+
		"Carefully estimate distances to all obstacles and decide whether the maneuver is safe.", m, requiredCm)
}

func identityPrompt(d Descriptor) string {
	desc := d.Description
	if desc == "" {
		desc = "No description provided"
	}
	return fmt.Sprintf(`Analyze this image for facial recognition verification.

TARGET PERSON: %s
DESCRIPTION: %s

Decide whether the target person %q is visible in this image.

Respond with a single JSON object:
{
  "person_visible": bool,
  "is_target": bool,
  "confidence": 0.0-1.0,
  "reasoning": "brief explanation",
  "person_description": "what you see"
}

Look at facial features, not just clothing. Only answer is_target true when
you are confident, and let confidence reflect how certain you are.`, d.Name, desc, d.Name)
}

const panoramaSystemPrompt = `You are a search and rescue drone analyzing a complete 360° panorama.
You will receive 8 frames taken 45° apart while rotating clockwise.

A person can only appear twice in ADJACENT frames because neighbouring
headings overlap: 1-2, 2-3, 3-4, 4-5, 5-6, 6-7, 7-8 and 8-1.
People in non-adjacent frames are DIFFERENT people even if they look alike.
Merge two sightings only when the frames are adjacent AND clothing, posture
and position (right edge in one frame, left edge in the next) agree.
When in doubt, count them separately.

Respond with a single JSON object:
{
  "scene_type": str,
  "summary": str,
  "unique_people": [{
    "person_id": "person_1",
    "description": str,
    "clothing": str,
    "frames_visible_in": [int],
    "bounding_boxes": [{"frame_number": int, "x": 0-1, "y": 0-1, "width": 0-1, "height": 0-1}],
    "best_frame": int,
    "primary_direction": "ahead" | "to_my_right" | "behind_me" | "to_my_left"
  }],
  "unique_objects": [{"name": str, "description": str, "frames_visible_in": [int], "primary_direction": str}],
  "total_people_count": int,
  "total_objects_count": int
}
total_people_count must equal the length of unique_people.`

func panoramaUserPrompt() string {
	var b strings.Builder
	b.WriteString("Analyze this 360° panorama. The images follow in frame order:\n")
	for i, label := range frameLabels {
		n := i + 1
		prev := (n+PanoramaFrames-2)%PanoramaFrames + 1
		next := n%PanoramaFrames + 1
		fmt.Fprintf(&b, "FRAME %d of %d | %d° | %s | adjacent to frames %d and %d\n",
			n, PanoramaFrames, FrameAngle(n), label, prev, next)
	}
	b.WriteString("List the people in each frame, check for duplicates only between adjacent frames, then output the unique people.")
	return b.String()
}
