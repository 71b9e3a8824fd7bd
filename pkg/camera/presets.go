package camera

// Preset names for common configurations.
const (
	PresetDefault = "default"
	PresetLow     = "low"
	PresetVision  = "vision"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLow:     LowBandwidthConfig(),
		PresetVision:  VisionConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetDefault, PresetLow, PresetVision}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LowBandwidthConfig halves the resolution for a weak video link.
func LowBandwidthConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 480
	cfg.Height = 360
	cfg.Framerate = 15
	cfg.Quality = 70
	return cfg
}

// VisionConfig keeps full resolution at a higher JPEG quality for
// oracle calls, where compression artifacts hurt face matching.
func VisionConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 10
	cfg.Quality = 95
	return cfg
}
