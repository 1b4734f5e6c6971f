// Package config - Loads the YAML configuration file and turns it into the runtime
// configuration of the tracker.
package config

import (
	"bytes"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/colortrack/controller"
	"github.com/nvr-ai/colortrack/images"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// maxFileSize bounds the size of a configuration file.
const maxFileSize = 1 << 20

// DefaultFrameSize is the requested camera size, and the size assumed for
// validation when the camera keeps its own default.
var DefaultFrameSize = image.Pt(640, 480)

// Frame sources.
const (
	SourceCamera    = "camera"
	SourceSynthetic = "synthetic"
	SourceFrames    = "frames"
)

// Camera selects and sizes the capture device.
type Camera struct {
	// Source is one of camera, synthetic or frames.
	Source string `yaml:"source"`
	Device int    `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	// Resolution names a preset such as "VGA" or "720p" and overrides Width and Height.
	Resolution string `yaml:"resolution,omitempty"`
	// Probe is how many device ids are listed at startup.
	Probe      int `yaml:"probe"`
	MaxRetries int `yaml:"max_retries"`
	// FramesDir holds frame-<n> images played back by the frames source.
	FramesDir string `yaml:"frames_dir,omitempty"`
	Loop      bool   `yaml:"loop"`
}

// Size returns the requested frame size.
func (c Camera) Size() image.Point {
	if r, ok := images.LookupResolution(c.Resolution); ok {
		return r.Pixels.Point()
	}
	return image.Pt(c.Width, c.Height)
}

// NominalSize is Size, or DefaultFrameSize when a zero dimension leaves the
// choice to the device. The real size is only known after the first frame.
func (c Camera) NominalSize() image.Point {
	if size := c.Size(); size.X > 0 && size.Y > 0 {
		return size
	}
	return DefaultFrameSize
}

// Tracking holds the pipeline parameters.
type Tracking struct {
	Tolerance images.Tolerance `yaml:"tolerance"`
	MinArea   float64          `yaml:"min_area"`
	// MaxArea of 0 means a quarter of the frame.
	MaxArea      float64 `yaml:"max_area"`
	SingleBlob   bool    `yaml:"single_blob"`
	Smoothing    bool    `yaml:"smoothing"`
	SampleRadius int     `yaml:"sample_radius"`
	History      int     `yaml:"history"`
	// Calibration restores raw bounds at startup when set.
	Calibration *images.HSVBounds `yaml:"calibration,omitempty"`
}

// OSC is the outbound message endpoint.
type OSC struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// Display controls the window and the overlays shown at startup.
type Display struct {
	FPS          float64 `yaml:"fps"`
	Headless     bool    `yaml:"headless"`
	ShowCamera   bool    `yaml:"show_camera"`
	ShowContours bool    `yaml:"show_contours"`
	ShowTrail    bool    `yaml:"show_trail"`
	ShowHelp     bool    `yaml:"show_help"`
}

// Feed is the websocket status feed. An empty Listen disables it.
type Feed struct {
	Listen         string `yaml:"listen"`
	ThumbnailWidth int    `yaml:"thumbnail_width"`
	// Every sends one frame per Every processed frames.
	Every int `yaml:"every"`
}

// File is the configuration document.
type File struct {
	Camera   Camera   `yaml:"camera"`
	Tracking Tracking `yaml:"tracking"`
	OSC      OSC      `yaml:"osc"`
	Display  Display  `yaml:"display"`
	Feed     Feed     `yaml:"feed"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	tc := controller.DefaultConfig(DefaultFrameSize)
	return File{
		Camera: Camera{
			Source:     SourceCamera,
			Device:     0,
			Width:      DefaultFrameSize.X,
			Height:     DefaultFrameSize.Y,
			Probe:      4,
			MaxRetries: 3,
			Loop:       true,
		},
		Tracking: Tracking{
			Tolerance:    tc.Tolerance,
			MinArea:      tc.MinArea,
			SingleBlob:   tc.SingleBlob,
			Smoothing:    tc.Smoothing,
			SampleRadius: tc.SampleRadius,
			History:      tc.HistoryCapacity,
		},
		OSC: OSC{Host: tc.Host, Port: tc.Port, Address: tc.Address},
		Display: Display{
			FPS:          tc.TargetFPS,
			ShowCamera:   true,
			ShowContours: false,
			ShowTrail:    true,
			ShowHelp:     false,
		},
		Feed: Feed{ThumbnailWidth: 160, Every: 3},
	}
}

// Load reads a YAML file and overlays it onto Default. Keys missing from the
// file keep their default values.
//
// Arguments:
//   - path: Path of a .yaml or .yml file.
//
// Returns:
//   - File: The merged configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func Load(path string) (File, error) {
	clean := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(clean)); ext != ".yaml" && ext != ".yml" {
		return File{}, errors.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(clean)
	if err != nil {
		return File{}, errors.Wrap(err, "stat config file")
	}
	if info.Size() > maxFileSize {
		return File{}, errors.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return File{}, errors.Wrap(err, "read config file")
	}
	return Parse(data)
}

// Parse decodes a YAML document onto Default and validates the result.
func Parse(data []byte) (File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, errors.Wrap(err, "parse config yaml")
	}
	if err := f.Validate(); err != nil {
		return File{}, errors.Wrap(err, "invalid configuration")
	}
	return f, nil
}

// Validate checks every section.
func (f File) Validate() error {
	switch {
	case f.Camera.Source != SourceCamera && f.Camera.Source != SourceSynthetic && f.Camera.Source != SourceFrames:
		return errors.Errorf("camera.source must be camera, synthetic or frames, got %q", f.Camera.Source)
	case f.Camera.Source == SourceFrames && f.Camera.FramesDir == "":
		return errors.New("camera.frames_dir is required for the frames source")
	case f.Camera.Resolution != "" && !knownResolution(f.Camera.Resolution):
		return errors.Errorf("camera.resolution %q is not a known preset (%s)",
			f.Camera.Resolution, strings.Join(images.ResolutionNames(), ", "))
	case f.Camera.Device < 0:
		return errors.Errorf("camera.device must be non-negative, got %d", f.Camera.Device)
	case f.Camera.Width < 0 || f.Camera.Height < 0:
		return errors.Errorf("camera size must be non-negative, got %dx%d", f.Camera.Width, f.Camera.Height)
	case f.Camera.Probe < 0:
		return errors.Errorf("camera.probe must be non-negative, got %d", f.Camera.Probe)
	case f.Camera.MaxRetries < 0:
		return errors.Errorf("camera.max_retries must be non-negative, got %d", f.Camera.MaxRetries)
	case f.Feed.ThumbnailWidth < 0:
		return errors.Errorf("feed.thumbnail_width must be non-negative, got %d", f.Feed.ThumbnailWidth)
	case f.Feed.Every < 0:
		return errors.Errorf("feed.every must be non-negative, got %d", f.Feed.Every)
	}
	return f.ToTracker(f.Camera.NominalSize()).Validate()
}

func knownResolution(name string) bool {
	_, ok := images.LookupResolution(name)
	return ok
}

// ToTracker builds the tracker configuration for a camera of the given frame size.
func (f File) ToTracker(frame image.Point) controller.Config {
	cfg := controller.DefaultConfig(frame)
	cfg.Tolerance = f.Tracking.Tolerance
	cfg.MinArea = f.Tracking.MinArea
	if f.Tracking.MaxArea > 0 {
		cfg.MaxArea = f.Tracking.MaxArea
	}
	cfg.SingleBlob = f.Tracking.SingleBlob
	cfg.Smoothing = f.Tracking.Smoothing
	cfg.SampleRadius = f.Tracking.SampleRadius
	cfg.HistoryCapacity = f.Tracking.History
	cfg.TargetFPS = f.Display.FPS
	cfg.Host = f.OSC.Host
	cfg.Port = f.OSC.Port
	cfg.Address = f.OSC.Address
	return cfg
}

// Marshal encodes f as YAML.
func (f File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, errors.Wrap(err, "encode config yaml")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encode config yaml")
	}
	return buf.Bytes(), nil
}
