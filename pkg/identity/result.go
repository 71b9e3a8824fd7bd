// Package identity decides whether the person in a frame is a registered
// target by fusing a local face-embedding judge with the vision oracle.
package identity

import (
	"fmt"

	"github.com/teslashibe/go-grok-pilot/pkg/geom"
)

// Level is a coarse trust bucket for a fused match.
type Level string

// Confidence levels.
const (
	High   Level = "high"
	Medium Level = "medium"
	Low    Level = "low"
)

// LocalJudgment is the embedding judge's verdict.
type LocalJudgment struct {
	Matched    bool
	Confidence float64

	// Distance is the smallest distance between any detected face and
	// any reference embedding. +Inf when no face was compared.
	Distance float64
	BBox     *geom.BBox
	Note     string
}

// OracleJudgment is the vision oracle's verdict.
type OracleJudgment struct {
	Matched     bool
	Confidence  float64
	Description string

	// Raw holds the unparseable oracle text, if any.
	Raw string
}

// Result is the fused verification outcome.
type Result struct {
	IsMatch           bool       `json:"is_match"`
	Confidence        float64    `json:"confidence"`
	Level             Level      `json:"confidence_level"`
	LocalMatched      bool       `json:"local_matched"`
	LocalConfidence   float64    `json:"local_confidence"`
	OracleMatched     bool       `json:"oracle_matched"`
	OracleConfidence  float64    `json:"oracle_confidence"`
	OracleDescription string     `json:"oracle_description"`
	BBox              *geom.BBox `json:"bbox,omitempty"`
	Diagnostic        string     `json:"diagnostic,omitempty"`
}

func (r *Result) String() string {
	return fmt.Sprintf("%s match=%v confidence=%.2f (local %.2f, oracle %.2f)",
		r.Level, r.IsMatch, r.Confidence, r.LocalConfidence, r.OracleConfidence)
}

// Fuse combines the two judgments.
//
// Both match: High at the mean confidence. Only the local judge matches
// and its confidence exceeds MediumMinConfidence: Medium at the local
// confidence. Anything else is Low, not a match, at the better of the two
// confidences scaled by LowPenalty.
func Fuse(cfg *Config, local LocalJudgment, remote OracleJudgment) *Result {
	r := &Result{
		LocalMatched:      local.Matched,
		LocalConfidence:   local.Confidence,
		OracleMatched:     remote.Matched,
		OracleConfidence:  remote.Confidence,
		OracleDescription: remote.Description,
		BBox:              local.BBox,
		Diagnostic:        remote.Raw,
	}

	switch {
	case local.Matched && remote.Matched:
		r.IsMatch = true
		r.Level = High
		r.Confidence = (local.Confidence + remote.Confidence) / 2
	case local.Matched && local.Confidence > cfg.MediumMinConfidence:
		r.IsMatch = true
		r.Level = Medium
		r.Confidence = local.Confidence
	default:
		r.Level = Low
		r.Confidence = max(local.Confidence, remote.Confidence) * cfg.LowPenalty
	}
	return r
}

// localOnly builds a result from the local judge alone. Without a second opinion the best
// tier is Medium. With penalize set a Low result is scaled by LowPenalty as in
// Fuse; Quick leaves it raw so per-frame callers can rank candidates.
func localOnly(cfg *Config, local LocalJudgment, note string, penalize bool) *Result {
	r := &Result{
		LocalMatched:      local.Matched,
		LocalConfidence:   local.Confidence,
		OracleDescription: note,
		BBox:              local.BBox,
		Level:             Low,
		Confidence:        local.Confidence,
	}
	switch {
	case local.Matched && local.Confidence > cfg.MediumMinConfidence:
		r.IsMatch = true
		r.Level = Medium
	case penalize:
		r.Confidence = local.Confidence * cfg.LowPenalty
	}
	return r
}
