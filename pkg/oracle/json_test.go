package oracle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"trailing text", `{"a":1} hope this helps`, `{"a":1}`},
		{"leading text", `Here you go: {"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"brace in string", `{"a":"}"} extra`, `{"a":"}"}`},
		{"array", `[1,[2]] done`, `[1,[2]]`},
		{"no json", `nothing here`, `nothing here`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single quotes", `{'a': 'b'}`, `{"a": "b"}`},
		{"unquoted keys", `{a: 1, b_c: 2}`, `{"a": 1, "b_c": 2}`},
		{"trailing comma", `{"a": [1, 2,], }`, `{"a": [1, 2] }`},
		{"nan", `{"a": NaN}`, `{"a": null}`},
		{"negative infinity", `{"a": -Infinity}`, `{"a": null}`},
		{"python literals", `{"a": True, "b": False, "c": None}`, `{"a": true, "b": false, "c": null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RepairJSON(tt.in))
		})
	}
}

func TestDecodeRepairs(t *testing.T) {
	var j IdentityJudgment
	err := Decode("```json\n{person_visible: True, 'is_target': False, confidence: 0.4,}\n```", &j)
	require.NoError(t, err)
	assert.True(t, j.PersonVisible)
	assert.False(t, j.IsTarget)
	assert.InDelta(t, 0.4, j.Confidence, 1e-9)
}

func TestDecodeParseError(t *testing.T) {
	var j IdentityJudgment
	err := Decode("I cannot help with that", &j)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "I cannot help with that", pe.Raw)
}

func TestClearanceReportUnknownDirections(t *testing.T) {
	var r ClearanceReport
	require.NoError(t, Decode(`{"is_clear": false, "front_clearance_cm": 40.6, "overall_safety_score": 55,
		"obstacles": [{"name": "wall", "position": "front", "distance_cm": 41}]}`, &r))

	assert.Equal(t, 41, r.ClearanceCm(SideFront))
	assert.Equal(t, UnknownClearance, r.ClearanceCm(SideLeft))
	assert.Equal(t, UnknownClearance, r.ClearanceCm(SideAbove))
	assert.Equal(t, 55, r.SafetyScore)
	require.Len(t, r.Obstacles, 1)
	assert.Equal(t, 41, r.Obstacles[0].DistanceCm)
}

func TestNearestObstacles(t *testing.T) {
	r := &ClearanceReport{Obstacles: []Obstacle{
		{Name: "lamp", Position: "front", DistanceCm: 120},
		{Name: "chair", Position: "front-left", DistanceCm: 30},
		{Name: "wall", Position: "center", DistanceCm: 60},
		{Name: "box", Position: "front", DistanceCm: UnknownClearance},
	}}

	front := r.NearestObstacles(SideFront)
	require.Len(t, front, 3)
	assert.Equal(t, "wall", front[0].Name)
	assert.Equal(t, "lamp", front[1].Name)
	assert.Equal(t, "box", front[2].Name)

	left := r.NearestObstacles(SideLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "chair", left[0].Name)
}
