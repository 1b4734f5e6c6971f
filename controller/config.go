package controller

import (
	"image"
	"strings"

	"github.com/nvr-ai/colortrack/emitter"
	"github.com/nvr-ai/colortrack/images"
	"github.com/nvr-ai/colortrack/motion"
	"github.com/pkg/errors"
)

const (
	// DefaultMinArea is the smallest blob area, in square pixels, that is tracked.
	DefaultMinArea = 200
	// DefaultMaxAreaFraction is the largest tracked blob area as a share of the frame.
	DefaultMaxAreaFraction = 0.25
	// DefaultSampleRadius is the calibration sample radius in pixels.
	DefaultSampleRadius = 12
	// DefaultFPS is the target frame rate.
	DefaultFPS = 30
)

// Config holds every runtime-tunable value of a Tracker.
type Config struct {
	Tolerance images.Tolerance `json:"tolerance" yaml:"tolerance"`
	// MinArea and MaxArea bound the accepted blob area, both exclusive.
	MinArea      float64 `json:"min_area" yaml:"min_area"`
	MaxArea      float64 `json:"max_area" yaml:"max_area"`
	SingleBlob   bool    `json:"single_blob" yaml:"single_blob"`
	Smoothing    bool    `json:"smoothing" yaml:"smoothing"`
	SampleRadius int     `json:"sample_radius" yaml:"sample_radius"`
	TargetFPS    float64 `json:"target_fps" yaml:"target_fps"`

	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
	Address string `json:"address" yaml:"address"`

	// HistoryCapacity is fixed when the Tracker is created.
	HistoryCapacity int `json:"history_capacity" yaml:"history_capacity"`
}

// DefaultConfig returns the defaults for a camera of the given frame size.
//
// Arguments:
//   - frame: Camera resolution; the default max area is a quarter of it.
//
// Returns:
//   - Config: The default configuration.
func DefaultConfig(frame image.Point) Config {
	return Config{
		Tolerance:       images.DefaultTolerance(),
		MinArea:         DefaultMinArea,
		MaxArea:         DefaultMaxAreaFraction * float64(frame.X) * float64(frame.Y),
		SingleBlob:      true,
		Smoothing:       true,
		SampleRadius:    DefaultSampleRadius,
		TargetFPS:       DefaultFPS,
		Host:            emitter.DefaultHost,
		Port:            emitter.DefaultPort,
		Address:         emitter.DefaultAddress,
		HistoryCapacity: motion.DefaultHistoryCapacity,
	}
}

// Validate checks every field range and names the first offending field.
func (c Config) Validate() error {
	switch {
	case c.Tolerance.H < 0 || c.Tolerance.S < 0 || c.Tolerance.V < 0:
		return errors.Errorf("tolerance must be non-negative, got %+v", c.Tolerance)
	case c.MinArea < 0:
		return errors.Errorf("min_area must be non-negative, got %v", c.MinArea)
	case c.MinArea >= c.MaxArea:
		return errors.Errorf("min_area %v must be below max_area %v", c.MinArea, c.MaxArea)
	case c.SampleRadius < 1:
		return errors.Errorf("sample_radius must be at least 1, got %d", c.SampleRadius)
	case c.TargetFPS < 0:
		return errors.Errorf("target_fps must be non-negative, got %v", c.TargetFPS)
	case c.Host == "":
		return errors.New("host must not be empty")
	case c.Port < 1 || c.Port > 65535:
		return errors.Errorf("port must be in 1..65535, got %d", c.Port)
	case !strings.HasPrefix(c.Address, "/"):
		return errors.Errorf("address must start with '/', got %q", c.Address)
	case c.HistoryCapacity < motion.MinHistoryCapacity:
		return errors.Errorf("history_capacity must be at least %d, got %d", motion.MinHistoryCapacity, c.HistoryCapacity)
	}
	return nil
}
