// Package capture - Owns the camera device: opening with retry, reading frames and
// switching between devices.
package capture

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	// ErrNotOpen is returned when reading from a device without an open source.
	ErrNotOpen = errors.New("capture device not open")
	// ErrReadFailed is returned when the source yields no frame.
	ErrReadFailed = errors.New("capture read failed")
)

// Source is an open camera stream. *gocv.VideoCapture satisfies it.
type Source interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Opener opens the camera with the given id.
type Opener func(id int) (Source, error)

// CameraOpener returns an Opener backed by gocv that requests the given frame size.
//
// Arguments:
//   - size: Requested resolution; a zero size keeps the device default.
//
// Returns:
//   - Opener: The opener.
func CameraOpener(size image.Point) Opener {
	return func(id int) (Source, error) {
		vc, err := gocv.OpenVideoCapture(id)
		if err != nil {
			return nil, errors.Wrapf(err, "open camera %d", id)
		}
		if !vc.IsOpened() {
			vc.Close()
			return nil, errors.Errorf("camera %d did not open", id)
		}
		if size.X > 0 && size.Y > 0 {
			vc.Set(gocv.VideoCaptureFrameWidth, float64(size.X))
			vc.Set(gocv.VideoCaptureFrameHeight, float64(size.Y))
		}
		return vc, nil
	}
}

// Options configures a Device.
type Options struct {
	// Size is the requested frame size, used by the default opener.
	Size image.Point
	// MaxRetries bounds the reopen attempts after the first failure.
	MaxRetries uint64
	// RetryInterval is the first backoff interval.
	RetryInterval time.Duration
	// Open replaces CameraOpener.
	Open   Opener
	Logger *zap.Logger
}

// Device is the single owned handle to the active camera.
type Device struct {
	mu     sync.Mutex
	id     int
	src    Source
	opts   Options
	logger *zap.Logger
}

// NewDevice creates a Device without opening anything.
func NewDevice(opts Options) *Device {
	if opts.Open == nil {
		opts.Open = CameraOpener(opts.Size)
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Device{
		id:     -1,
		opts:   opts,
		logger: opts.Logger.Named("capture"),
	}
}

// Open opens camera id, retrying with exponential backoff. Any source that is
// already open is released first.
//
// Arguments:
//   - ctx: Cancels the retries.
//   - id: The camera id.
//
// Returns:
//   - error: An error if the camera could not be opened; the device is then closed.
func (d *Device) Open(ctx context.Context, id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release()
	return d.open(ctx, id)
}

// Reconfigure switches to camera id. The old source is released before the new one
// is opened, so when opening fails the device is left without a source.
func (d *Device) Reconfigure(ctx context.Context, id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info("switching camera", zap.Int("from", d.id), zap.Int("to", id))
	d.release()
	return d.open(ctx, id)
}

func (d *Device) open(ctx context.Context, id int) error {
	newBackoff := func() backoff.BackOff {
		ebo := backoff.NewExponentialBackOff()
		ebo.InitialInterval = d.opts.RetryInterval
		ebo.Reset()
		return backoff.WithContext(backoff.WithMaxRetries(ebo, d.opts.MaxRetries), ctx)
	}

	attempt := 0
	var src Source
	op := func() error {
		attempt++
		s, err := d.opts.Open(id)
		if err != nil {
			d.logger.Warn("camera open failed", zap.Int("id", id), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		src = s
		return nil
	}

	if err := backoff.Retry(op, newBackoff()); err != nil {
		return errors.Wrapf(err, "camera %d unavailable after %d attempts", id, attempt)
	}

	d.id, d.src = id, src
	d.logger.Info("camera open", zap.Int("id", id), zap.Int("attempts", attempt))
	return nil
}

// release closes the current source. The caller holds mu.
func (d *Device) release() {
	if d.src == nil {
		return
	}
	if err := d.src.Close(); err != nil {
		d.logger.Warn("camera close failed", zap.Int("id", d.id), zap.Error(err))
	}
	d.src = nil
}

// Read reads the next frame into m.
func (d *Device) Read(m *gocv.Mat) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src == nil {
		return ErrNotOpen
	}
	if !d.src.Read(m) {
		return errors.Wrapf(ErrReadFailed, "camera %d", d.id)
	}
	return nil
}

// ID returns the id of the active camera, or -1 before the first successful Open.
func (d *Device) ID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// IsOpen reports whether the device holds an open source.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.src != nil
}

// Close releases the source.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release()
	return nil
}

// DeviceInfo describes one probed camera id.
type DeviceInfo struct {
	ID        int    `json:"id"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// ListDevices probes camera ids 0..count-1 once each and closes whatever opens.
//
// Arguments:
//   - open: The opener to probe with.
//   - count: Number of ids to probe.
//   - logger: Receives one line per id; may be nil.
//
// Returns:
//   - []DeviceInfo: One entry per id, in order.
func ListDevices(open Opener, count int, logger *zap.Logger) []DeviceInfo {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]DeviceInfo, 0, count)
	for id := 0; id < count; id++ {
		info := DeviceInfo{ID: id}
		src, err := open(id)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Available = true
			src.Close()
		}
		logger.Info("camera device", zap.Int("id", id), zap.Bool("available", info.Available))
		out = append(out, info)
	}
	return out
}

// FrameSize returns the size of m.
func FrameSize(m gocv.Mat) image.Point {
	return image.Pt(m.Cols(), m.Rows())
}
