package clearance

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-grok-pilot/pkg/oracle"
)

// Preflight thresholds.
const (
	BatteryGood        = 50
	BatteryWarning     = 30
	AltitudeGood       = 100
	AltitudeWarning    = 50
	SafetyScoreGood    = 70
	SafetyScoreWarning = 50
)

// CheckStatus grades one preflight check.
type CheckStatus string

// Check grades.
const (
	StatusGood     CheckStatus = "good"
	StatusWarning  CheckStatus = "warning"
	StatusCritical CheckStatus = "critical"
	StatusSkipped  CheckStatus = "skipped"
)

// Check is one line of the preflight report.
type Check struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Value   int         `json:"value"`
	Message string      `json:"message"`
}

// PreflightReport summarizes whether the vehicle is fit to fly.
type PreflightReport struct {
	AllPassed        bool     `json:"all_passed"`
	Checks           []Check  `json:"checks"`
	Warnings         []string `json:"warnings"`
	CriticalFailures []string `json:"critical_failures"`
	FlipReady        bool     `json:"flip_ready"`
}

func (r *PreflightReport) add(c Check, warning, critical string) {
	r.Checks = append(r.Checks, c)
	switch c.Status {
	case StatusWarning:
		r.Warnings = append(r.Warnings, warning)
	case StatusCritical:
		r.CriticalFailures = append(r.CriticalFailures, critical)
	}
}

func grade(v, good, warning int) CheckStatus {
	switch {
	case v >= good:
		return StatusGood
	case v >= warning:
		return StatusWarning
	}
	return StatusCritical
}

// Preflight checks battery, altitude (only when airborne) and the
// oracle's overall safety score. Missing vision is a warning, not a
// failure.
func (g *Gate) Preflight(ctx context.Context) *PreflightReport {
	r := &PreflightReport{}

	battery, err := g.vehicle.Battery(ctx)
	if err != nil {
		r.add(Check{Name: "battery", Status: StatusCritical, Value: -1, Message: "read failed: " + err.Error()},
			"", "cannot read battery: "+err.Error())
	} else {
		r.add(Check{Name: "battery", Status: grade(battery, BatteryGood, BatteryWarning), Value: battery,
			Message: fmt.Sprintf("%d%%", battery)},
			fmt.Sprintf("battery at %d%%, flips disabled", battery),
			"battery critically low")
	}

	altitude := 0
	flying := g.state != nil && g.state.IsFlying()
	if flying {
		altitude, err = g.vehicle.Height(ctx)
		if err != nil {
			altitude = -1
			r.add(Check{Name: "altitude", Status: StatusWarning, Value: -1, Message: "read failed"},
				"cannot read altitude sensor", "")
		} else {
			r.add(Check{Name: "altitude", Status: grade(altitude, AltitudeGood, AltitudeWarning), Value: altitude,
				Message: fmt.Sprintf("%dcm", altitude)},
				fmt.Sprintf("altitude %dcm, need %dcm for flips", altitude, AltitudeGood),
				fmt.Sprintf("altitude critically low (%dcm)", altitude))
		}
	} else {
		r.Checks = append(r.Checks, Check{Name: "altitude", Status: StatusSkipped, Message: "grounded"})
	}

	rep, err := g.report(ctx, oracle.ManeuverGeneral, 100)
	if err != nil {
		g.logger.Warn("preflight vision check failed", "error", err)
		r.add(Check{Name: "obstacles", Status: StatusWarning, Value: -1, Message: "vision unavailable"},
			"cannot check obstacles, fly with extra caution", "")
	} else {
		st := grade(rep.SafetyScore, SafetyScoreGood, SafetyScoreWarning)
		if st == StatusGood && !rep.IsClear {
			st = StatusWarning
		}
		names := obstacleNames(rep.Obstacles)
		r.add(Check{Name: "obstacles", Status: st, Value: rep.SafetyScore,
			Message: fmt.Sprintf("safety score %d/100", rep.SafetyScore)},
			"obstacles detected: "+names,
			"dangerous obstacles: "+names)
		if st == StatusWarning {
			for _, h := range rep.Hazards[:min(2, len(rep.Hazards))] {
				r.Warnings = append(r.Warnings, "hazard: "+h)
			}
		}
		if st == StatusCritical && rep.RecommendedAction != "" {
			r.Warnings = append(r.Warnings, "recommendation: "+rep.RecommendedAction)
		}
	}

	r.AllPassed = len(r.CriticalFailures) == 0
	r.FlipReady = r.AllPassed && battery >= BatteryGood && altitude >= AltitudeGood
	g.logger.Info("preflight complete", "all_passed", r.AllPassed,
		"warnings", len(r.Warnings), "critical", len(r.CriticalFailures))
	return r
}

func obstacleNames(obs []oracle.Obstacle) string {
	if len(obs) == 0 {
		return "obstacles nearby"
	}
	names := ""
	for i, o := range obs[:min(2, len(obs))] {
		if i > 0 {
			names += ", "
		}
		names += o.Name
	}
	return names
}
