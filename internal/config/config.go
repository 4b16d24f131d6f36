// Package config loads SquatCoach settings from the environment, an
// optional .env file and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ayusman/squatcoach/internal/exercise"
	"github.com/ayusman/squatcoach/internal/logging"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SQUATCOACH_"

// Config is the complete application configuration.
type Config struct {
	Camera   CameraConfig
	Detector DetectorConfig
	Counter  CounterConfig
	Audio    AudioConfig
	Server   ServerConfig
	Hooks    HookConfig
	Logging  logging.Config

	// DataDir holds the database and, by default, the hooks directory.
	DataDir string
	// NoTray runs headless and waits for a signal instead of showing a tray icon.
	NoTray bool
	// AutoBegin skips the start screen.
	AutoBegin bool
}

type CameraConfig struct {
	Source string
	Width  int
	Height int
	Mirror bool
}

type DetectorConfig struct {
	Model         string
	Device        string
	MinConfidence float64
	Script        string
	// Mock replaces pose inference with a detector that never finds anyone.
	Mock bool
}

// CounterConfig overrides the active profile. Zero values keep the
// profile's setting.
type CounterConfig struct {
	Profile     string
	Side        string
	DownAngle   float64
	UpAngle     float64
	MinMovement float64
	Strategy    string
	TargetReps  int
}

type AudioConfig struct {
	Enabled bool
	// Command is the speech program; empty picks the first one installed.
	Command string
	MinGap  time.Duration
}

type ServerConfig struct {
	Addr      string
	StaticDir string
}

type HookConfig struct {
	Dir     string
	Timeout time.Duration
}

// DBPath is the location of the SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "squatcoach.db")
}

// Apply returns base with every set override applied.
func (c CounterConfig) Apply(base exercise.Config) exercise.Config {
	if c.Side != "" {
		base.Side = c.Side
	}
	if c.DownAngle != 0 {
		base.DownAngle = c.DownAngle
	}
	if c.UpAngle != 0 {
		base.UpAngle = c.UpAngle
	}
	if c.MinMovement != 0 {
		base.MinMovement = c.MinMovement
	}
	if c.Strategy != "" {
		base.Strategy = c.Strategy
	}
	return base
}

// Target returns the rep goal, falling back to the profile's.
func (c CounterConfig) Target(profileTarget int) int {
	if c.TargetReps != 0 {
		return c.TargetReps
	}
	return profileTarget
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	dataDir := ".squatcoach"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".squatcoach")
	}

	return &Config{
		Camera: CameraConfig{Source: "0", Width: 1280, Height: 720, Mirror: true},
		Detector: DetectorConfig{
			Model:         "yolo11n-pose.pt",
			MinConfidence: 0.25,
		},
		Audio: AudioConfig{
			Enabled: true,
			MinGap:  700 * time.Millisecond,
		},
		Server:  ServerConfig{Addr: "127.0.0.1:8080"},
		Hooks:   HookConfig{Timeout: 5 * time.Second},
		Logging: logging.DefaultConfig(),
		DataDir: dataDir,
	}
}

// Load reads .env (when present), the environment and args. args excludes
// the program name.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse(args, io.Discard)
}

func parse(args []string, usage io.Writer) (*Config, error) {
	cfg := fromEnv(Default())

	fs := flag.NewFlagSet("squatcoach", flag.ContinueOnError)
	fs.SetOutput(usage)

	fs.StringVar(&cfg.Camera.Source, "camera", cfg.Camera.Source, "Camera index or path to a video file")
	fs.IntVar(&cfg.Camera.Width, "width", cfg.Camera.Width, "Capture width in pixels")
	fs.IntVar(&cfg.Camera.Height, "height", cfg.Camera.Height, "Capture height in pixels")
	fs.BoolVar(&cfg.Camera.Mirror, "mirror", cfg.Camera.Mirror, "Flip frames horizontally")

	fs.StringVar(&cfg.Detector.Model, "model", cfg.Detector.Model, "YOLO pose weights")
	fs.StringVar(&cfg.Detector.Device, "device", cfg.Detector.Device, "Inference device, e.g. cpu or cuda:0")
	fs.Float64Var(&cfg.Detector.MinConfidence, "min-confidence", cfg.Detector.MinConfidence, "Keypoint confidence threshold (0-1)")
	fs.StringVar(&cfg.Detector.Script, "pose-service", cfg.Detector.Script, "Path to pose_service.py")
	fs.BoolVar(&cfg.Detector.Mock, "mock-detector", cfg.Detector.Mock, "Run without pose inference")

	fs.StringVar(&cfg.Counter.Profile, "profile", cfg.Counter.Profile, "Stored profile to use instead of the active one")
	fs.StringVar(&cfg.Counter.Side, "side", cfg.Counter.Side, "Body side to track: left or right")
	fs.Float64Var(&cfg.Counter.DownAngle, "down", cfg.Counter.DownAngle, "Knee angle (degrees) counted as the bottom of a squat")
	fs.Float64Var(&cfg.Counter.UpAngle, "up", cfg.Counter.UpAngle, "Knee angle (degrees) counted as standing")
	fs.Float64Var(&cfg.Counter.MinMovement, "min-movement", cfg.Counter.MinMovement, "Ignore angle changes smaller than this (degrees)")
	fs.StringVar(&cfg.Counter.Strategy, "strategy", cfg.Counter.Strategy, "Counting strategy: three-phase or two-phase")
	fs.IntVar(&cfg.Counter.TargetReps, "target", cfg.Counter.TargetReps, "Repetitions per workout")

	noAudio := fs.Bool("no-audio", !cfg.Audio.Enabled, "Disable spoken feedback")
	fs.StringVar(&cfg.Audio.Command, "voice", cfg.Audio.Command, "Speech program, e.g. say or espeak")

	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Server.StaticDir, "static", cfg.Server.StaticDir, "Directory with the dashboard files")
	fs.StringVar(&cfg.Hooks.Dir, "hooks", cfg.Hooks.Dir, "Directory with workout hooks")
	fs.DurationVar(&cfg.Hooks.Timeout, "hook-timeout", cfg.Hooks.Timeout, "Maximum run time of one hook")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Data directory")

	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "Log format (console, json)")
	fs.StringVar(&cfg.Logging.File, "log-file", cfg.Logging.File, "Also write JSON logs to this rotated file")

	fs.BoolVar(&cfg.NoTray, "no-tray", cfg.NoTray, "Run without the system tray icon")
	fs.BoolVar(&cfg.AutoBegin, "auto-begin", cfg.AutoBegin, "Start counting without the start screen")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	cfg.Audio.Enabled = !*noAudio

	if cfg.Hooks.Dir == "" {
		cfg.Hooks.Dir = filepath.Join(cfg.DataDir, "hooks")
	}
	return cfg, nil
}

func fromEnv(cfg *Config) *Config {
	cfg.Camera.Source = getEnv("CAMERA", cfg.Camera.Source)
	cfg.Camera.Width = getEnvAsInt("WIDTH", cfg.Camera.Width)
	cfg.Camera.Height = getEnvAsInt("HEIGHT", cfg.Camera.Height)
	cfg.Camera.Mirror = getEnvAsBool("MIRROR", cfg.Camera.Mirror)

	cfg.Detector.Model = getEnv("MODEL", cfg.Detector.Model)
	cfg.Detector.Device = getEnv("DEVICE", cfg.Detector.Device)
	cfg.Detector.MinConfidence = getEnvAsFloat("MIN_CONFIDENCE", cfg.Detector.MinConfidence)
	cfg.Detector.Script = getEnv("POSE_SERVICE", cfg.Detector.Script)
	cfg.Detector.Mock = getEnvAsBool("MOCK_DETECTOR", cfg.Detector.Mock)

	cfg.Counter.Profile = getEnv("PROFILE", cfg.Counter.Profile)
	cfg.Counter.Side = getEnv("SIDE", cfg.Counter.Side)
	cfg.Counter.DownAngle = getEnvAsFloat("DOWN_ANGLE", cfg.Counter.DownAngle)
	cfg.Counter.UpAngle = getEnvAsFloat("UP_ANGLE", cfg.Counter.UpAngle)
	cfg.Counter.MinMovement = getEnvAsFloat("MIN_MOVEMENT", cfg.Counter.MinMovement)
	cfg.Counter.Strategy = getEnv("STRATEGY", cfg.Counter.Strategy)
	cfg.Counter.TargetReps = getEnvAsInt("TARGET_REPS", cfg.Counter.TargetReps)

	cfg.Audio.Enabled = getEnvAsBool("AUDIO", cfg.Audio.Enabled)
	cfg.Audio.Command = getEnv("VOICE", cfg.Audio.Command)
	cfg.Audio.MinGap = getEnvAsDuration("VOICE_MIN_GAP", cfg.Audio.MinGap)

	cfg.Server.Addr = getEnv("ADDR", cfg.Server.Addr)
	cfg.Server.StaticDir = getEnv("STATIC_DIR", cfg.Server.StaticDir)
	cfg.Hooks.Dir = getEnv("HOOKS_DIR", cfg.Hooks.Dir)
	cfg.Hooks.Timeout = getEnvAsDuration("HOOK_TIMEOUT", cfg.Hooks.Timeout)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.File = getEnv("LOG_FILE", cfg.Logging.File)
	cfg.Logging.MaxSizeMB = getEnvAsInt("LOG_MAX_SIZE", cfg.Logging.MaxSizeMB)
	cfg.Logging.MaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", cfg.Logging.MaxBackups)
	cfg.Logging.MaxAgeDays = getEnvAsInt("LOG_MAX_AGE", cfg.Logging.MaxAgeDays)

	cfg.NoTray = getEnvAsBool("NO_TRAY", cfg.NoTray)
	cfg.AutoBegin = getEnvAsBool("AUTO_BEGIN", cfg.AutoBegin)
	return cfg
}

// Validate checks the configuration and reports every problem at once.
// Counter thresholds are checked again against the resolved profile when
// the counter is built.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Camera.Source) == "" {
		problems = append(problems, "camera source is required")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		problems = append(problems, "capture size must be positive")
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		problems = append(problems, "min confidence must be between 0 and 1")
	}
	if c.Counter.Side != "" && c.Counter.Side != "left" && c.Counter.Side != "right" {
		problems = append(problems, fmt.Sprintf("side must be left or right, got %q", c.Counter.Side))
	}
	for name, deg := range map[string]float64{"down": c.Counter.DownAngle, "up": c.Counter.UpAngle} {
		if deg < 0 || deg > 180 {
			problems = append(problems, fmt.Sprintf("%s angle must be between 0 and 180", name))
		}
	}
	if c.Counter.DownAngle != 0 && c.Counter.UpAngle != 0 && c.Counter.DownAngle >= c.Counter.UpAngle {
		problems = append(problems, "down angle must be below up angle")
	}
	if c.Counter.MinMovement < 0 {
		problems = append(problems, "min movement must not be negative")
	}
	if c.Counter.Strategy != "" {
		if _, err := exercise.StrategyByName(c.Counter.Strategy); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.Counter.TargetReps < 0 {
		problems = append(problems, "target reps must not be negative")
	}
	if c.Server.Addr == "" {
		problems = append(problems, "listen address is required")
	}
	if c.Hooks.Timeout <= 0 {
		problems = append(problems, "hook timeout must be positive")
	}
	if c.DataDir == "" {
		problems = append(problems, "data directory is required")
	}
	if err := c.Logging.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, ", "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
