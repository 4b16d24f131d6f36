// Package app runs the squat workout: capture, pose detection, counting,
// coaching and event fan-out.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/squatcoach/internal/capture"
	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/exercise"
	"github.com/ayusman/squatcoach/internal/hook"
	"github.com/ayusman/squatcoach/internal/hud"
	"github.com/ayusman/squatcoach/internal/metrics"
	"github.com/ayusman/squatcoach/internal/voice"
)

// Pipeline timing defaults.
const (
	// IdleFPS is the frame rate when no motion is detected.
	IdleFPS = 5
	// ActiveFPS is the frame rate while someone is moving.
	ActiveFPS = 15
	// IdleTimeout is how long after the last motion the pipeline stays active.
	IdleTimeout = 3 * time.Second
	// DefaultMotionThreshold is the percentage of changed pixels that counts as motion.
	DefaultMotionThreshold = 1.0
	// DefaultTargetReps is the daily goal.
	DefaultTargetReps = 20
)

var (
	// ErrNoDetector is returned by New when no pose detector is supplied.
	ErrNoDetector = errors.New("app: pose detector is required")
	// ErrWorkoutCompleted is returned by BeginWorkout after the goal was met
	// until the workout is reset.
	ErrWorkoutCompleted = errors.New("workout already completed, reset to start again")
)

// Config holds configuration options for the application.
type Config struct {
	Camera  capture.Config
	Counter exercise.Config
	// Profile names the stored profile the counter config came from.
	Profile string
	// TargetReps ends the workout when reached; 0 counts forever.
	TargetReps      int
	IdleFPS         int
	ActiveFPS       int
	IdleTimeout     time.Duration
	MotionThreshold float64
	// AutoBegin skips the start screen and counts right away.
	AutoBegin bool
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		Camera:          capture.DefaultConfig(),
		Counter:         exercise.DefaultConfig(),
		TargetReps:      DefaultTargetReps,
		IdleFPS:         IdleFPS,
		ActiveFPS:       ActiveFPS,
		IdleTimeout:     IdleTimeout,
		MotionThreshold: DefaultMotionThreshold,
	}
}

func (c *Config) applyDefaults() {
	if c.IdleFPS <= 0 {
		c.IdleFPS = IdleFPS
	}
	if c.ActiveFPS <= 0 {
		c.ActiveFPS = ActiveFPS
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = IdleTimeout
	}
	if c.MotionThreshold <= 0 {
		c.MotionThreshold = DefaultMotionThreshold
	}
	if c.TargetReps < 0 {
		c.TargetReps = 0
	}
}

// Publisher receives session messages, e.g. for a WebSocket hub.
type Publisher interface {
	Publish(msg Message)
}

// Publishers fans a message out to several publishers in order.
type Publishers []Publisher

// Publish implements Publisher.
func (ps Publishers) Publish(msg Message) {
	for _, p := range ps {
		if p != nil {
			p.Publish(msg)
		}
	}
}

// Deps are the collaborators of an App. Only Detector is required.
type Deps struct {
	Camera    capture.Camera
	Detector  detector.Detector
	Announcer *voice.Announcer
	Hooks     *hook.Dispatcher
	Publisher Publisher
	Metrics   *metrics.Metrics
	Overlay   *hud.Overlay
	Logger    *zap.Logger
}

// App orchestrates the workout pipeline.
type App struct {
	config    Config
	camera    capture.Camera
	motion    *capture.MotionDetector
	activity  *capture.Activity
	detector  detector.Detector
	announcer *voice.Announcer
	hooks     *hook.Dispatcher
	publisher Publisher
	metrics   *metrics.Metrics
	overlay   *hud.Overlay
	frames    *FrameBuffer
	logger    *zap.Logger

	// wake asks the pipeline to switch to the active frame rate.
	wake atomic.Bool

	mu          sync.Mutex
	counter     *exercise.Counter
	state       SessionState
	paused      bool
	lastEvent   exercise.Event
	bodyVisible bool
	startedAt   time.Time

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// New creates an App. The counter configuration is validated here.
func New(config Config, deps Deps) (*App, error) {
	config.applyDefaults()

	if deps.Detector == nil {
		return nil, ErrNoDetector
	}
	counter, err := exercise.New(config.Counter)
	if err != nil {
		return nil, err
	}

	if deps.Camera == nil {
		deps.Camera = capture.NewCamera(config.Camera)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Overlay == nil {
		deps.Overlay = hud.New(hud.DefaultPalette)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	a := &App{
		config:    config,
		camera:    deps.Camera,
		motion:    capture.NewMotionDetector(config.MotionThreshold),
		activity:  capture.NewActivity(config.IdleTimeout),
		detector:  deps.Detector,
		announcer: deps.Announcer,
		hooks:     deps.Hooks,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		overlay:   deps.Overlay,
		frames:    NewFrameBuffer(),
		logger:    deps.Logger.Named("app"),
		counter:   counter,
		state:     StateWaiting,
		lastEvent: exercise.Event{Angle: nan(), State: counter.State(), Phase: counter.Phase()},
	}
	if config.AutoBegin {
		a.state = StateRunning
		a.startedAt = time.Now()
	}
	return a, nil
}

// Start opens the camera and begins the capture pipeline. Starting a
// running App is a no-op.
func (a *App) Start() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.cancel != nil {
		if a.running.Load() {
			return nil
		}
		// The previous run ended on its own, e.g. at the end of a video file.
		a.stopLocked()
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(a.config.IdleFPS)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running.Store(true)
	go a.runPipeline(ctx, a.done)

	a.logger.Info("pipeline started",
		zap.String("source", a.config.Camera.Source),
		zap.String("side", a.config.Counter.Side),
		zap.Float64("down", a.config.Counter.DownAngle),
		zap.Float64("up", a.config.Counter.UpAngle),
	)

	if a.State() == StateWaiting {
		a.say((*voice.Announcer).Intro)
	}
	return nil
}

// Stop halts the pipeline and closes the camera. Stopping a stopped App is
// a no-op.
func (a *App) Stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.cancel == nil {
		return
	}
	a.stopLocked()
	a.logger.Info("pipeline stopped")
}

func (a *App) stopLocked() {
	a.cancel()
	<-a.done
	a.cancel = nil
	a.done = nil

	if err := a.camera.Close(); err != nil {
		a.logger.Warn("error closing camera", zap.Error(err))
	}
}

// Close stops the pipeline and releases the motion and pose detectors.
func (a *App) Close() error {
	a.Stop()
	a.motion.Close()
	return a.detector.Close()
}

// AddPublisher subscribes p to session messages. It must be called before
// Start.
func (a *App) AddPublisher(p Publisher) {
	if a.publisher == nil {
		a.publisher = p
		return
	}
	a.publisher = Publishers{a.publisher, p}
}

// Running reports whether the capture pipeline is running.
func (a *App) Running() bool {
	return a.running.Load()
}

// Frames returns the buffer holding the latest annotated JPEG.
func (a *App) Frames() *FrameBuffer {
	return a.frames
}

// Metrics returns the metrics the App records into.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Config returns the configuration the App was built with.
func (a *App) Config() Config {
	return a.config
}

// say runs an announcer line when audio is configured.
func (a *App) say(line func(*voice.Announcer) bool) {
	if a.announcer == nil {
		return
	}
	if line(a.announcer) {
		a.metrics.Announcements.Add(1)
	}
}

func (a *App) publish(msg Message) {
	if a.publisher == nil {
		return
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	a.publisher.Publish(msg)
}

func (a *App) dispatch(ev hook.Event, count int, angle float64) {
	if a.hooks == nil {
		return
	}
	req := hook.Request{
		Event:      ev,
		RepCount:   count,
		TargetReps: a.config.TargetReps,
		Profile:    a.config.Profile,
	}
	if !isNaN(angle) {
		req.Angle = &angle
	}
	a.hooks.Dispatch(req)
}
