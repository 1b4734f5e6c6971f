package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvr-ai/colortrack/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	f := Default()
	require.NoError(t, f.Validate())

	tc := f.ToTracker(f.Camera.Size())
	assert.Equal(t, images.Tolerance{H: 2, S: 15, V: 40}, tc.Tolerance)
	assert.Equal(t, 0.25*640*480, tc.MaxArea)
	assert.Equal(t, "localhost", tc.Host)
	assert.Equal(t, 6448, tc.Port)
	assert.Equal(t, "/wek/inputs", tc.Address)
	assert.Equal(t, 30.0, tc.TargetFPS)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeFile(t, "colortrack.yaml", `
camera:
  device: 1
tracking:
  tolerance: {h: 4, s: 20, v: 30}
  max_area: 5000
  calibration: {h_min: 10, h_max: 20, s_min: 100, s_max: 200, v_min: 50, v_max: 250}
osc:
  port: 9000
`)

	f, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Camera.Device = 1
	want.Tracking.Tolerance = images.Tolerance{H: 4, S: 20, V: 30}
	want.Tracking.MaxArea = 5000
	want.Tracking.Calibration = &images.HSVBounds{HMin: 10, HMax: 20, SMin: 100, SMax: 200, VMin: 50, VMax: 250}
	want.OSC.Port = 9000
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	tc := f.ToTracker(image.Pt(640, 480))
	assert.Equal(t, 5000.0, tc.MaxArea)
	assert.Equal(t, 9000, tc.Port)
}

func TestLoad_EmptyFile(t *testing.T) {
	f, err := Load(writeFile(t, "empty.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), f)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{name: "wrong extension", file: "c.json", body: "{}", want: "extension"},
		{name: "unknown key", file: "c.yaml", body: "tracking:\n  colour: red\n", want: "parse"},
		{name: "bad port", file: "c.yaml", body: "osc:\n  port: 70000\n", want: "port"},
		{name: "bad address", file: "c.yaml", body: "osc:\n  address: wek\n", want: "address"},
		{name: "min above max", file: "c.yaml", body: "tracking:\n  min_area: 900\n  max_area: 100\n", want: "min_area"},
		{name: "zero radius", file: "c.yaml", body: "tracking:\n  sample_radius: 0\n", want: "sample_radius"},
		{name: "negative device", file: "c.yaml", body: "camera:\n  device: -1\n", want: "camera.device"},
		{name: "unknown source", file: "c.yaml", body: "camera:\n  source: rtsp\n", want: "camera.source"},
		{name: "frames without dir", file: "c.yaml", body: "camera:\n  source: frames\n", want: "camera.frames_dir"},
		{name: "unknown resolution", file: "c.yaml", body: "camera:\n  resolution: 8K\n", want: "camera.resolution"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshal_RoundTrip(t *testing.T) {
	f := Default()
	f.OSC.Host = "192.168.1.20"
	f.Tracking.Calibration = &images.HSVBounds{HMax: 3, SMax: 4, VMax: 5}

	data, err := f.Marshal()
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)
	if diff := cmp.Diff(f, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCamera_Size(t *testing.T) {
	c := Default().Camera
	assert.Equal(t, image.Pt(640, 480), c.Size())

	c.Resolution = "720p"
	assert.Equal(t, image.Pt(1280, 720), c.Size())

	c.Resolution = "QVGA"
	assert.Equal(t, image.Pt(320, 240), c.Size())
}

func TestLoad_ResolutionSizesTracker(t *testing.T) {
	f, err := Parse([]byte("camera:\n  resolution: qvga\n  source: synthetic\n"))
	require.NoError(t, err)
	assert.Equal(t, SourceSynthetic, f.Camera.Source)

	tc := f.ToTracker(f.Camera.Size())
	assert.Equal(t, 0.25*320*240, tc.MaxArea)
}

func TestParse_ZeroCameraSizeKeepsDeviceDefault(t *testing.T) {
	f, err := Parse([]byte("camera:\n  width: 0\n  height: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, image.Point{}, f.Camera.Size())
	assert.Equal(t, DefaultFrameSize, f.Camera.NominalSize())

	// The tracker is sized from the first real frame.
	tc := f.ToTracker(image.Pt(1280, 720))
	assert.Equal(t, 0.25*1280*720, tc.MaxArea)
	require.NoError(t, tc.Validate())
}

func TestParse_ZeroCameraSizeStillChecksExplicitAreas(t *testing.T) {
	_, err := Parse([]byte("camera:\n  width: 0\n  height: 0\ntracking:\n  min_area: 900\n  max_area: 100\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_area")
}
