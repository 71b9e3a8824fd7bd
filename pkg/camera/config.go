// Package camera supplies frames from the vehicle's forward camera.
// Frames are decoded from the video stream with OpenCV and kept as the
// latest JPEG so that every consumer sees the same image.
package camera

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-grok-pilot/internal/log"
)

// Stream limits.
const (
	MaxWidth   = 1920
	MaxHeight  = 1080
	MaxQuality = 100
)

// Config holds capture parameters.
type Config struct {
	URL       string        `json:"url"`       // Capture source, e.g. udp://0.0.0.0:11111
	Width     int           `json:"width"`     // Frame width in pixels
	Height    int           `json:"height"`    // Frame height in pixels
	Framerate int           `json:"framerate"` // Publish rate cap
	Quality   int           `json:"quality"`   // JPEG quality 1-100
	MaxAge    time.Duration `json:"max_age"`   // Older frames are reported stale

	Logger *slog.Logger `json:"-"`
}

// DefaultConfig matches the Tello stream: 960x720 at 30fps.
func DefaultConfig() Config {
	return Config{
		URL:       "udp://0.0.0.0:11111",
		Width:     960,
		Height:    720,
		Framerate: 30,
		Quality:   85,
		MaxAge:    2 * time.Second,
		Logger:    log.L(),
	}
}

// Validate checks the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string
	if c.URL == "" {
		errs = append(errs, "url is required")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errs = append(errs, "width must be between 160 and 1920")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errs = append(errs, "height must be between 120 and 1080")
	}
	if c.Framerate < 1 || c.Framerate > 60 {
		errs = append(errs, "framerate must be between 1 and 60")
	}
	if c.Quality < 1 || c.Quality > MaxQuality {
		errs = append(errs, "quality must be between 1 and 100")
	}
	if c.MaxAge < 0 {
		errs = append(errs, "max_age must not be negative")
	}
	return errs
}

// interval is the minimum time between published frames.
func (c *Config) interval() time.Duration {
	if c.Framerate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Framerate)
}
