package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvr-ai/colortrack/capture"
	"github.com/nvr-ai/colortrack/config"
	"github.com/nvr-ai/colortrack/controller"
	"github.com/nvr-ai/colortrack/images"
	"github.com/nvr-ai/colortrack/overlay"
	"github.com/nvr-ai/colortrack/statusfeed"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	// windowName is the title of the display window.
	windowName = "colortrack"
	// keyEscape is the key code of Esc.
	keyEscape = 27
	// reportInterval is how often stage timings are logged in debug mode.
	reportInterval = 5 * time.Second
)

// HighGUI mouse event codes (cv::MouseEventTypes).
const (
	mouseMove     = 0
	mouseLeftDown = 1
)

// options are the command-line flags. Zero values leave the config file untouched.
type options struct {
	configPath string
	source     string
	frames     string
	resolution string
	device     int
	host       string
	port       int
	address    string
	fps        float64
	feed       string
	debug      bool
	headless   bool
	dumpConfig bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("colortrack", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Path to a YAML config file")
	fs.StringVar(&o.source, "source", "", "Frame source: camera, synthetic or frames")
	fs.StringVar(&o.frames, "frames", "", "Directory of frame-<n> images to play back; implies -source frames")
	fs.StringVar(&o.resolution, "resolution", "", "Capture resolution preset, e.g. VGA or 720p")
	fs.IntVar(&o.device, "device", -1, "Camera device id")
	fs.StringVar(&o.host, "host", "", "OSC destination host")
	fs.IntVar(&o.port, "port", 0, "OSC destination port")
	fs.StringVar(&o.address, "address", "", "OSC address pattern")
	fs.Float64Var(&o.fps, "fps", 0, "Target frame rate")
	fs.StringVar(&o.feed, "feed", "", "Listen address of the websocket status feed, e.g. :8080")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&o.headless, "headless", false, "Run without a window")
	fs.BoolVar(&o.dumpConfig, "dump-config", false, "Print the effective configuration as YAML and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

// loadConfig reads the config file, if any, and applies the flag overrides.
func loadConfig(o options) (config.File, error) {
	f := config.Default()
	if o.configPath != "" {
		var err error
		if f, err = config.Load(o.configPath); err != nil {
			return f, err
		}
	}
	if o.frames != "" {
		f.Camera.Source = config.SourceFrames
		f.Camera.FramesDir = o.frames
	}
	if o.source != "" {
		f.Camera.Source = o.source
	}
	if o.resolution != "" {
		f.Camera.Resolution = o.resolution
	}
	if o.device >= 0 {
		f.Camera.Device = o.device
	}
	if o.host != "" {
		f.OSC.Host = o.host
	}
	if o.port != 0 {
		f.OSC.Port = o.port
	}
	if o.address != "" {
		f.OSC.Address = o.address
	}
	if o.fps > 0 {
		f.Display.FPS = o.fps
	}
	if o.feed != "" {
		f.Feed.Listen = o.feed
	}
	if o.headless {
		f.Display.Headless = true
	}
	return f, errors.Wrap(f.Validate(), "invalid configuration")
}

// newOpener picks the frame source named by the camera section.
func newOpener(cam config.Camera) capture.Opener {
	switch cam.Source {
	case config.SourceSynthetic:
		return capture.SyntheticOpener(cam.NominalSize())
	case config.SourceFrames:
		return capture.SequenceOpener(cam.FramesDir, cam.Loop)
	default:
		return capture.CameraOpener(cam.Size())
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	logger, err := newLogger(o.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if o.dumpConfig {
		if err := dumpConfig(o, os.Stdout); err != nil {
			logger.Error("dump config", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	if err := run(o, logger); err != nil {
		logger.Error("colortrack stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(o options, logger *zap.Logger) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opener := newOpener(cfg.Camera)
	if cfg.Camera.Source == config.SourceCamera {
		capture.ListDevices(opener, cfg.Camera.Probe, logger)
	}

	device := capture.NewDevice(capture.Options{
		Open:       opener,
		MaxRetries: uint64(cfg.Camera.MaxRetries),
		Logger:     logger,
	})
	defer device.Close()
	if err := device.Open(ctx, cfg.Camera.Device); err != nil {
		return err
	}

	frame := gocv.NewMat()
	defer frame.Close()
	if err := device.Read(&frame); err != nil {
		return errors.Wrap(err, "read first frame")
	}
	frameSize := capture.FrameSize(frame)
	if cfg.Camera.Source == config.SourceCamera {
		logDeliveredSize(logger, cfg.Camera.Size(), frameSize)
	}

	tracker, err := controller.New(cfg.ToTracker(frameSize), controller.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer tracker.Close()
	if cfg.Tracking.Calibration != nil {
		tracker.SetCalibration(*cfg.Tracking.Calibration)
	}

	a := &app{
		logger:  logger.Named("app"),
		tracker: tracker,
		device:  device,
		devices: max(cfg.Camera.Probe, 1),
		renderer: overlay.NewRenderer(overlay.Options{
			ShowCamera:   cfg.Display.ShowCamera,
			ShowContours: cfg.Display.ShowContours,
			ShowTrail:    cfg.Display.ShowTrail,
			ShowHelp:     cfg.Display.ShowHelp,
		}),
		masks:     &statusfeed.MaskPublisher{Width: cfg.Feed.ThumbnailWidth},
		feedEvery: uint64(max(cfg.Feed.Every, 1)),
		finite:    cfg.Camera.Source == config.SourceFrames && !cfg.Camera.Loop,
	}
	defer a.renderer.Close()

	if cfg.Feed.Listen != "" {
		a.hub = statusfeed.NewHub(logger, 32)
		defer a.hub.Close()
		srv := startFeed(cfg.Feed.Listen, a.hub, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var window *gocv.Window
	if !cfg.Display.Headless {
		window = gocv.NewWindow(windowName)
		defer window.Close()
		window.SetMouseHandler(a.handleMouse, nil)
	}

	logger.Info("tracking started",
		zap.String("session", tracker.ID()),
		zap.String("source", cfg.Camera.Source),
		zap.Int("device", device.ID()),
		zap.Int("width", frameSize.X),
		zap.Int("height", frameSize.Y),
		zap.String("osc", fmt.Sprintf("%s:%d%s", cfg.OSC.Host, cfg.OSC.Port, cfg.OSC.Address)),
	)

	lastReport := time.Now()
	for !a.quit {
		select {
		case <-ctx.Done():
			logger.Info("interrupted")
			return nil
		default:
		}

		start := time.Now()
		if err := a.tick(ctx, &frame, window); err != nil {
			return err
		}

		if o.debug && time.Since(lastReport) >= reportInterval {
			tracker.Timer().Report()
			if a.hub != nil {
				logger.Debug("status feed", zap.Int("clients", a.hub.Clients()))
			}
			lastReport = time.Now()
		}

		if fps := tracker.Config().TargetFPS; fps > 0 {
			if rest := time.Duration(float64(time.Second)/fps) - time.Since(start); rest > 0 {
				time.Sleep(rest)
			}
		}
	}
	return nil
}

// dumpConfig writes the configuration run would use, flags applied, as YAML.
func dumpConfig(o options, w io.Writer) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return errors.Wrap(err, "write config")
}

// logDeliveredSize warns when the camera ignored the requested frame size and
// names the largest preset that fits what it delivers.
func logDeliveredSize(logger *zap.Logger, requested, delivered image.Point) {
	if requested.X <= 0 || requested.Y <= 0 || requested == delivered {
		return
	}
	fields := []zap.Field{
		zap.Stringer("requested", requested),
		zap.Stringer("delivered", delivered),
	}
	if r, ok := images.GetHighestResolutionUnderDimensions(delivered.X, delivered.Y); ok {
		fields = append(fields, zap.Stringer("nearest_preset", r))
	}
	logger.Warn("camera delivered a different frame size", fields...)
}

func startFeed(addr string, hub *statusfeed.Hub, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status feed stopped", zap.Error(err))
		}
	}()
	logger.Info("status feed listening", zap.String("addr", addr))
	return srv
}

// app is the presentation layer around one tracker.
type app struct {
	logger    *zap.Logger
	tracker   *controller.Tracker
	device    *capture.Device
	renderer  *overlay.Renderer
	hub       *statusfeed.Hub
	masks     *statusfeed.MaskPublisher
	feedEvery uint64
	devices   int
	// finite is set when the source ends, as a recording played once does.
	finite bool
	quit   bool
}

// tick runs one frame: pending commands, capture, pipeline, feed and display.
func (a *app) tick(ctx context.Context, frame *gocv.Mat, window *gocv.Window) error {
	if a.hub != nil {
		a.hub.Drain(a.applyCommand)
	}

	if err := a.device.Read(frame); err != nil {
		if a.finite && errors.Is(err, capture.ErrReadFailed) {
			a.logger.Info("playback finished")
			a.quit = true
			return nil
		}
		return err
	}
	if frame.Empty() {
		return nil
	}

	snap, err := a.tracker.ProcessFrame(*frame)
	if err != nil {
		a.logger.Warn("frame dropped", zap.Error(err))
		return nil
	}

	if a.hub != nil && snap.Frame%a.feedEvery == 0 {
		a.publish(snap)
	}

	if window == nil {
		return nil
	}
	a.tracker.View(func(mirrored, _ gocv.Mat) {
		window.IMShow(a.renderer.Draw(image.Point{}, mirrored, snap))
	})
	if key := window.WaitKey(1); key >= 0 {
		return a.handleKey(ctx, key)
	}
	return nil
}

func (a *app) publish(snap controller.Snapshot) {
	f := statusfeed.NewFrame(snap)
	a.tracker.View(func(_, mask gocv.Mat) {
		if _, err := a.masks.Attach(&f, mask); err != nil {
			a.logger.Debug("mask thumbnail failed", zap.Error(err))
		}
	})
	if err := a.hub.Broadcast(f); err != nil {
		a.logger.Warn("broadcast failed", zap.Error(err))
	}
}

// handleMouse is the window mouse callback. HighGUI runs it inside WaitKey, on
// the frame thread. A left click calibrates; any move places the pointer.
func (a *app) handleMouse(event, x, y, _ int, _ interface{}) {
	p := image.Pt(x, y)
	switch event {
	case mouseMove:
		a.tracker.MovePointer(p)
	case mouseLeftDown:
		a.tracker.Calibrate(p)
	}
}

// applyCommand runs a status feed command on the frame thread.
func (a *app) applyCommand(cmd statusfeed.Command) {
	switch cmd.Type {
	case statusfeed.CommandCalibrate:
		a.tracker.Calibrate(cmd.Point())
	case statusfeed.CommandPointer:
		a.tracker.MovePointer(cmd.Point())
	case statusfeed.CommandConfig:
		cfg, err := cmd.ApplyConfig(a.tracker.Config())
		if err == nil {
			err = a.tracker.UpdateConfig(cfg)
		}
		if err != nil {
			a.logger.Warn("config command rejected", zap.Error(err))
		}
	}
}

// handleKey applies a key press. Only a failed camera switch is an error.
func (a *app) handleKey(ctx context.Context, key int) error {
	switch key {
	case '1':
		a.renderer.ShowCamera = !a.renderer.ShowCamera
	case '2':
		a.renderer.ShowContours = !a.renderer.ShowContours
	case '3':
		a.renderer.ShowTrail = !a.renderer.ShowTrail
	case 's':
		a.renderer.ShowHelp = !a.renderer.ShowHelp
	case 'l':
		a.toggle(func(c *controller.Config) { c.Smoothing = !c.Smoothing })
	case 'b':
		a.toggle(func(c *controller.Config) { c.SingleBlob = !c.SingleBlob })
	case 'c':
		a.calibrateCenter()
	case 'n':
		next := (a.device.ID() + 1) % a.devices
		if err := a.device.Reconfigure(ctx, next); err != nil {
			return errors.Wrap(err, "switch camera")
		}
		a.tracker.ResetMotion()
	case 'q', keyEscape:
		a.quit = true
	}
	return nil
}

func (a *app) toggle(change func(*controller.Config)) {
	cfg := a.tracker.Config()
	change(&cfg)
	if err := a.tracker.UpdateConfig(cfg); err != nil {
		a.logger.Warn("config change rejected", zap.Error(err))
	}
}

// calibrateCenter calibrates on the middle of the displayed frame.
func (a *app) calibrateCenter() {
	var center image.Point
	a.tracker.View(func(mirrored, _ gocv.Mat) {
		center = image.Pt(mirrored.Cols()/2, mirrored.Rows()/2)
	})
	a.tracker.Calibrate(center.Add(a.tracker.Snapshot().Offset))
}
