package tailing

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-grok-pilot/internal/log"
)

// MinRotationFloor is the shortest gap New allows between rotation commands.
const MinRotationFloor = 500 * time.Millisecond

// Config holds all tunable parameters for target following
type Config struct {
	// Frame geometry
	FrameWidth int // Pixel width of the camera frame

	// Rotation law
	DeadZonePx      float64 // No correction while |offset| is below this
	SlowZonePx      float64 // Slow correction while |offset| is below this
	SlowRotationDeg int     // Degrees per correction inside the slow zone
	FastRotationDeg int     // Degrees per correction beyond the slow zone

	// Timing
	DetectionInterval   time.Duration // How often Run grabs and checks a frame
	MinRotationInterval time.Duration // Minimum time between rotation commands
	LostTimeout         time.Duration // Start recovery spins after this long unseen
	GiveUpTimeout       time.Duration // Stop the session after this long unseen
	RotationTimeout     time.Duration // Upper bound on one background rotation

	Logger *slog.Logger
	Clock  func() time.Time
}

// DefaultConfig returns the standard following behaviour
func DefaultConfig() Config {
	return Config{
		FrameWidth: 960,

		DeadZonePx:      100,
		SlowZonePx:      200,
		SlowRotationDeg: 10,
		FastRotationDeg: 20,

		DetectionInterval:   200 * time.Millisecond,
		MinRotationInterval: 500 * time.Millisecond,
		LostTimeout:         3 * time.Second,
		GiveUpTimeout:       10 * time.Second,
		RotationTimeout:     5 * time.Second,

		Logger: log.L(),
		Clock:  time.Now,
	}
}

// SlowConfig returns a configuration for gentler, less frequent corrections
func SlowConfig() Config {
	cfg := DefaultConfig()
	cfg.DetectionInterval = 400 * time.Millisecond
	cfg.MinRotationInterval = time.Second
	cfg.DeadZonePx = 140
	cfg.FastRotationDeg = 15
	return cfg
}

// AggressiveConfig returns a configuration for fast-moving targets
func AggressiveConfig() Config {
	cfg := DefaultConfig()
	cfg.DetectionInterval = 100 * time.Millisecond
	cfg.MinRotationInterval = MinRotationFloor
	cfg.DeadZonePx = 80
	cfg.SlowRotationDeg = 15
	cfg.FastRotationDeg = 30
	cfg.LostTimeout = 2 * time.Second
	return cfg
}

// Preset returns a named configuration: "default", "slow" or "aggressive".
func Preset(name string) (Config, bool) {
	switch name {
	case "", "default":
		return DefaultConfig(), true
	case "slow":
		return SlowConfig(), true
	case "aggressive":
		return AggressiveConfig(), true
	}
	return Config{}, false
}
