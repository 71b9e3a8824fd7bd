// Package config loads process settings for the pilot commands.
//
// Values come from, in order of precedence: environment variables, an
// optional config file (TOML, YAML or JSON) and built-in defaults. A .env
// file in the working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Defaults for the Tello SDK and the xAI endpoint.
const (
	DefaultAPIBase     = "https://api.x.ai/v1"
	DefaultVisionModel = "grok-2-vision-1212"
	DefaultHTTPAddr    = ":8080"
	DefaultTelloAddr   = "192.168.10.1:8889"
	DefaultVideoURL    = "udp://0.0.0.0:11111"
	DefaultFrameWidth  = 960
	DefaultFrameHeight = 720
)

// ErrNoAPIKey is returned by Validate when the oracle key is missing.
var ErrNoAPIKey = errors.New("config: XAI_API_KEY is not set")

// Settings holds everything a pilot process needs at startup.
type Settings struct {
	APIKey          string
	APIBase         string
	VisionModel     string
	FallbackModel   string
	OracleTimeout   time.Duration
	HTTPAddr        string
	TelloAddr       string
	VideoURL        string
	FrameWidth      int
	FrameHeight     int
	CameraPreset    string
	TailingPreset   string
	DetectorModel   string
	RecognizerModel string
	TargetsPath     string
	LogLevel        string
	LogFormat       string
	MockVehicle     bool
	MockFrame       string
}

// Load reads settings. path may be empty, in which case only the
// environment and defaults are consulted.
func Load(path string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("xai_api_key", "")
	v.SetDefault("xai_api_base", DefaultAPIBase)
	v.SetDefault("xai_vision_model", DefaultVisionModel)
	v.SetDefault("xai_fallback_model", "")
	v.SetDefault("oracle_timeout", 30*time.Second)
	v.SetDefault("http_addr", DefaultHTTPAddr)
	v.SetDefault("tello_addr", DefaultTelloAddr)
	v.SetDefault("video_url", DefaultVideoURL)
	v.SetDefault("frame_width", DefaultFrameWidth)
	v.SetDefault("frame_height", DefaultFrameHeight)
	v.SetDefault("camera_preset", "default")
	v.SetDefault("tailing_preset", "default")
	v.SetDefault("face_detector_model", "models/face_detection_yunet_2023mar.onnx")
	v.SetDefault("face_recognizer_model", "models/face_recognition_sface_2021dec.onnx")
	v.SetDefault("targets_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("mock_vehicle", false)
	v.SetDefault("mock_frame", "")
}

func fromViper(v *viper.Viper) *Settings {
	return &Settings{
		APIKey:          v.GetString("xai_api_key"),
		APIBase:         v.GetString("xai_api_base"),
		VisionModel:     v.GetString("xai_vision_model"),
		FallbackModel:   v.GetString("xai_fallback_model"),
		OracleTimeout:   v.GetDuration("oracle_timeout"),
		HTTPAddr:        v.GetString("http_addr"),
		TelloAddr:       v.GetString("tello_addr"),
		VideoURL:        v.GetString("video_url"),
		FrameWidth:      v.GetInt("frame_width"),
		FrameHeight:     v.GetInt("frame_height"),
		CameraPreset:    v.GetString("camera_preset"),
		TailingPreset:   v.GetString("tailing_preset"),
		DetectorModel:   v.GetString("face_detector_model"),
		RecognizerModel: v.GetString("face_recognizer_model"),
		TargetsPath:     v.GetString("targets_path"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		MockVehicle:     v.GetBool("mock_vehicle"),
		MockFrame:       v.GetString("mock_frame"),
	}
}

// Validate checks that required settings are present. The mock vehicle
// may run without an oracle key.
func (s *Settings) Validate() error {
	if s.APIKey == "" && !s.MockVehicle {
		return ErrNoAPIKey
	}
	if s.FrameWidth <= 0 || s.FrameHeight <= 0 {
		return fmt.Errorf("config: invalid frame size %dx%d", s.FrameWidth, s.FrameHeight)
	}
	return nil
}

// String hides the API key.
func (s *Settings) String() string {
	key := "NOT SET"
	if s.APIKey != "" {
		key = "********"
	}
	return fmt.Sprintf("Settings{api_key=%s base=%s model=%s http=%s tello=%s mock=%v}",
		key, s.APIBase, s.VisionModel, s.HTTPAddr, s.TelloAddr, s.MockVehicle)
}
