// Package controller - Runs the frame-to-motion pipeline: segmentation, blob detection,
// the validity gate, motion estimation and emission, once per camera frame.
package controller

import (
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/colortrack/detector"
	"github.com/nvr-ai/colortrack/emitter"
	"github.com/nvr-ai/colortrack/images"
	"github.com/nvr-ai/colortrack/motion"
	"github.com/nvr-ai/colortrack/profiler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Options carries the collaborators of a Tracker. Every field is optional.
type Options struct {
	Logger *zap.Logger
	// Viewport is the display the motion state is normalized against. It defaults
	// to the camera frame size.
	Viewport motion.Viewport
	// Dial replaces the UDP transport of the emitter.
	Dial emitter.Dialer
	// FrameRate replaces the measured frame rate used for the derivative time step.
	FrameRate func() float64
	// Timer receives per-stage durations.
	Timer *profiler.StageTimer
}

// Snapshot is a consistent copy of the tracker state after one frame.
type Snapshot struct {
	Session  string           `json:"session"`
	Frame    uint64           `json:"frame"`
	State    motion.State     `json:"state"`
	Usable   bool             `json:"usable"`
	Sent     bool             `json:"sent"`
	Raw      images.HSVBounds `json:"raw"`
	Expanded images.HSVBounds `json:"expanded"`
	// Detection holds the contours of this frame in frame-buffer pixels.
	Detection detector.Result `json:"detection"`
	// Offset is where the frame sits in the display.
	Offset     image.Point         `json:"offset"`
	Trail      []motion.TrailPoint `json:"trail"`
	Pointer    image.Point         `json:"pointer"`
	HasPointer bool                `json:"has_pointer"`
	FPS        float64             `json:"fps"`
	// Jitter is the standard deviation of the measured frame interval.
	Jitter time.Duration `json:"jitter"`
	// SendFailures counts messages the transport rejected.
	SendFailures uint64 `json:"send_failures"`
	Config       Config `json:"config"`
}

// Tracker owns one pipeline instance: frame buffers, calibration, history and the
// outbound transport. All exported methods serialize on one mutex, so a frame is
// processed, calibrated against or read as a whole.
type Tracker struct {
	mu sync.Mutex

	id        string
	logger    *zap.Logger
	cfg       Config
	segmenter *images.ColorSegmenter
	history   *motion.History
	estimator *motion.Estimator
	emitter   *emitter.Emitter
	meter     *profiler.RateMeter
	frameRate func() float64
	timer     *profiler.StageTimer
	viewport  motion.Viewport

	raw        images.HSVBounds
	expanded   images.HSVBounds
	result     detector.Result
	usable     bool
	frame      uint64
	pointer    image.Point
	hasPointer bool
}

// frameViewport normalizes against the camera frame itself.
type frameViewport struct {
	seg *images.ColorSegmenter
}

func (f frameViewport) Size() image.Point {
	return f.seg.Size()
}

// New creates a Tracker.
//
// Arguments:
//   - cfg: The initial configuration.
//   - opts: Optional collaborators.
//
// Returns:
//   - *Tracker: The tracker; Close releases its native buffers.
//   - error: An error if cfg is invalid.
func New(cfg Config, opts Options) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid tracker config")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timer == nil {
		opts.Timer = profiler.NewStageTimer(0, opts.Logger)
	}

	id := uuid.NewString()
	logger := opts.Logger.Named("tracker").With(zap.String("session", id))

	t := &Tracker{
		id:        id,
		logger:    logger,
		cfg:       cfg,
		segmenter: images.NewColorSegmenter(),
		history:   motion.NewHistory(cfg.HistoryCapacity),
		meter:     profiler.NewRateMeter(0),
		timer:     opts.Timer,
		viewport:  opts.Viewport,
	}
	t.estimator = motion.NewEstimator(t.history, cfg.Smoothing)
	t.emitter = emitter.New(emitter.Options{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Address: cfg.Address,
		Dial:    opts.Dial,
		Logger:  logger,
	})
	t.frameRate = opts.FrameRate
	if t.frameRate == nil {
		t.frameRate = t.meter.FPS
	}
	if t.viewport == nil {
		t.viewport = frameViewport{seg: t.segmenter}
	}
	t.expanded = images.ExpandBounds(t.raw, cfg.Tolerance)
	t.result = detector.Analyze(nil)

	logger.Info("tracker created",
		zap.Int("history", t.history.Capacity()),
		zap.Bool("smoothing", cfg.Smoothing),
		zap.Bool("single_blob", cfg.SingleBlob),
	)
	return t, nil
}

// ID returns the session id of the tracker.
func (t *Tracker) ID() string {
	return t.id
}

// ProcessFrame runs the whole pipeline on one camera frame.
//
// Arguments:
//   - frame: A BGR camera frame.
//
// Returns:
//   - Snapshot: The state after this frame.
//   - error: An error if the frame is empty or mask cleanup fails.
func (t *Tracker) ProcessFrame(frame gocv.Mat) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if frame.Empty() {
		return t.snapshot(), errors.New("empty frame")
	}
	t.meter.Tick()

	done := t.timer.Start("segment")
	mask, err := t.segmenter.Segment(frame, t.expanded)
	done()
	if err != nil {
		return t.snapshot(), errors.Wrap(err, "segment frame")
	}

	done = t.timer.Start("detect")
	result := detector.Detect(mask)
	done()

	return t.process(result), nil
}

// ProcessResult runs the stages after blob detection on an already analyzed mask.
func (t *Tracker) ProcessResult(result detector.Result) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.process(result)
}

func (t *Tracker) process(result detector.Result) Snapshot {
	defer t.timer.Start("track")()

	t.frame++
	t.result = result
	t.history.Advance()

	t.usable = t.cfg.SingleBlob && result.Accepts(t.cfg.MinArea, t.cfg.MaxArea)
	if t.usable {
		v := t.normalize(result)
		if v.IsSentinel() {
			t.usable = false
		} else {
			dt := motion.DeltaT(float32(t.frameRate()), float32(t.cfg.TargetFPS))
			t.estimator.Update(v, dt)
		}
	}
	if !t.usable {
		t.estimator.Lose()
	}

	t.emitter.Emit(t.estimator.State())
	return t.snapshot()
}

// normalize converts the largest blob into normalized display space.
func (t *Tracker) normalize(result detector.Result) motion.Vec3 {
	blob, ok := result.Largest()
	if !ok || !blob.HasCentroid {
		return motion.Sentinel
	}
	size := t.viewport.Size()
	off := t.offset()
	w := motion.Vec3{
		X: float32(blob.Centroid.X) + float32(off.X),
		Y: float32(blob.Centroid.Y) + float32(off.Y),
		Z: float32(blob.Area()),
	}
	return motion.WindowToNorm(w, size)
}

// offset is the position of the camera frame in the display, zero before the
// first frame.
func (t *Tracker) offset() image.Point {
	frame := t.segmenter.Size()
	if frame == (image.Point{}) {
		return image.Point{}
	}
	return images.DisplayOffset(t.viewport.Size(), frame)
}

// Calibrate samples the color around a display-space point of the latest frame
// and replaces the calibration with it.
//
// Arguments:
//   - p: The pointer position in display pixels.
//
// Returns:
//   - images.HSVBounds: The new expanded bounds.
func (t *Tracker) Calibrate(p image.Point) images.HSVBounds {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pointer, t.hasPointer = p, true
	t.raw = images.SampleBounds(t.segmenter, p.Sub(t.offset()), t.cfg.SampleRadius)
	t.expanded = images.ExpandBounds(t.raw, t.cfg.Tolerance)

	t.logger.Info("calibrated",
		zap.Int("x", p.X),
		zap.Int("y", p.Y),
		zap.Int("radius", t.cfg.SampleRadius),
		zap.Int("h_min", t.raw.HMin),
		zap.Int("h_max", t.raw.HMax),
		zap.Int("s_min", t.raw.SMin),
		zap.Int("s_max", t.raw.SMax),
		zap.Int("v_min", t.raw.VMin),
		zap.Int("v_max", t.raw.VMax),
	)
	return t.expanded
}

// SetCalibration replaces the raw bounds directly, e.g. from a config file.
func (t *Tracker) SetCalibration(raw images.HSVBounds) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.raw = raw
	t.expanded = images.ExpandBounds(raw, t.cfg.Tolerance)
}

// MovePointer records the pointer position drawn by the presentation layer.
func (t *Tracker) MovePointer(p image.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pointer, t.hasPointer = p, true
}

// UpdateConfig applies cfg immediately. The expanded bounds are recomputed and the
// transport is re-established only when host or port changed. The history capacity
// is fixed at construction and a different value is ignored.
//
// Arguments:
//   - cfg: The new configuration.
//
// Returns:
//   - error: An error if cfg is invalid; the previous configuration stays active.
func (t *Tracker) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid tracker config")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if cfg.HistoryCapacity != t.history.Capacity() {
		t.logger.Warn("history capacity is fixed, ignoring change",
			zap.Int("current", t.history.Capacity()),
			zap.Int("requested", cfg.HistoryCapacity),
		)
		cfg.HistoryCapacity = t.history.Capacity()
	}

	t.cfg = cfg
	t.expanded = images.ExpandBounds(t.raw, cfg.Tolerance)
	t.estimator.SetSmoothing(cfg.Smoothing)
	if t.emitter.Reconfigure(cfg.Host, cfg.Port, cfg.Address) {
		t.logger.Info("osc transport re-established", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
	}
	return nil
}

// Config returns the active configuration.
func (t *Tracker) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// Snapshot returns a copy of the state after the last frame.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *Tracker) snapshot() Snapshot {
	return Snapshot{
		Session:    t.id,
		Frame:      t.frame,
		State:      t.estimator.State(),
		Usable:     t.usable,
		Sent:       t.emitter.Sent(),
		Raw:        t.raw,
		Expanded:   t.expanded,
		Detection:  t.result,
		Offset:     t.offset(),
		Trail:      t.history.Trail(),
		Pointer:    t.pointer,
		HasPointer: t.hasPointer,
		FPS:          t.frameRate(),
		Jitter:       t.meter.Jitter(),
		SendFailures: t.emitter.Failures(),
		Config:       t.cfg,
	}
}

// View exposes the mirrored frame and the binary mask of the last frame to fn.
// The Mats are only valid inside fn.
func (t *Tracker) View(fn func(frame, mask gocv.Mat)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.segmenter.Mirrored, t.segmenter.Mask)
}

// ResetMotion clears the history, e.g. after a camera switch.
func (t *Tracker) ResetMotion() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history.Reset()
	t.estimator.Lose()
	t.meter.Reset()
}

// Timer returns the stage timer.
func (t *Tracker) Timer() *profiler.StageTimer {
	return t.timer
}

// Close releases the frame buffers and the transport.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.segmenter.Close()
	return t.emitter.Close()
}
