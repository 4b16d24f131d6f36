package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/squatcoach/internal/app"
	"github.com/ayusman/squatcoach/internal/capture"
	"github.com/ayusman/squatcoach/internal/config"
	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/hook"
	"github.com/ayusman/squatcoach/internal/logging"
	"github.com/ayusman/squatcoach/internal/metrics"
	"github.com/ayusman/squatcoach/internal/server"
	"github.com/ayusman/squatcoach/internal/store"
	"github.com/ayusman/squatcoach/internal/tray"
	"github.com/ayusman/squatcoach/internal/voice"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "squatcoach: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "squatcoach: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "squatcoach: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("squatcoach failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if n, err := st.Profiles().SeedPresets(app.DefaultTargetReps); err != nil {
		return fmt.Errorf("seed profiles: %w", err)
	} else if n > 0 {
		logger.Info("created preset profiles", zap.Int("count", n))
	}

	profile, err := resolveProfile(st, cfg.Counter.Profile)
	if err != nil {
		return err
	}

	appCfg := app.DefaultConfig()
	appCfg.Camera = capture.Config{
		Source: cfg.Camera.Source,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FPS:    app.IdleFPS,
		Mirror: cfg.Camera.Mirror,
	}
	appCfg.Counter = cfg.Counter.Apply(profile.CounterConfig())
	appCfg.Profile = profile.Name
	appCfg.TargetReps = cfg.Counter.Target(profile.TargetReps)
	appCfg.AutoBegin = cfg.AutoBegin

	m := metrics.New()

	det := newDetector(cfg.Detector, logger)

	audio := cfg.Audio.Enabled && st.Settings().GetBool(store.SettingAudioEnabled, true)
	announcer := voice.New(voice.Config{
		Enabled:    audio,
		MinGap:     cfg.Audio.MinGap,
		TargetReps: appCfg.TargetReps,
	}, newSpeaker(cfg.Audio, logger), logger)
	defer announcer.Close()

	hooks := hook.NewManager(cfg.Hooks.Dir)
	if err := hooks.Discover(); err != nil {
		logger.Warn("hook discovery failed", zap.String("dir", cfg.Hooks.Dir), zap.Error(err))
	}
	logger.Info("hooks loaded", zap.String("dir", hooks.Dir()), zap.Int("count", len(hooks.List())))
	dispatcher := hook.NewDispatcher(hooks, hook.NewExecutor(cfg.Hooks.Timeout), logger, func(error) {
		m.HookErrors.Add(1)
	})
	defer dispatcher.Close()

	hub := server.NewHub(logger, m)

	application, err := app.New(appCfg, app.Deps{
		Detector:  det,
		Announcer: announcer,
		Hooks:     dispatcher,
		Publisher: hub,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		det.Close()
		return fmt.Errorf("invalid counter configuration for profile %q: %w", profile.Name, err)
	}
	defer application.Close()

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir(cfg.DataDir)
	}
	if staticDir != "" {
		logger.Info("serving dashboard", zap.String("dir", staticDir))
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		Store:     st,
		Session:   application,
		Frames:    application.Frames(),
		Hub:       hub,
		Metrics:   m,
		Logger:    logger,
	})

	var ui *tray.Tray
	if !cfg.NoTray {
		ui = tray.New(application, dashboardURL(cfg.Server.Addr), logger)
		application.AddPublisher(ui)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe(cfg.Server.Addr)
	}()

	if err := application.Start(); err != nil {
		shutdown(srv, logger)
		return fmt.Errorf("start camera %q: %w", cfg.Camera.Source, err)
	}
	logger.Info("squatcoach ready",
		zap.String("profile", profile.Name),
		zap.Int("target_reps", appCfg.TargetReps),
		zap.String("dashboard", dashboardURL(cfg.Server.Addr)),
	)

	err = wait(ui, serverErr, logger)
	application.Stop()
	shutdown(srv, logger)
	return err
}

// wait blocks until a signal, a tray quit or a server failure.
func wait(ui *tray.Tray, serverErr <-chan error, logger *zap.Logger) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if ui == nil {
		select {
		case sig := <-sigChan:
			logger.Info("shutting down", zap.String("signal", sig.String()))
			return nil
		case err := <-serverErr:
			return err
		}
	}

	failed := make(chan error, 1)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("shutting down", zap.String("signal", sig.String()))
		case err := <-serverErr:
			failed <- err
		}
		ui.Quit()
	}()
	ui.OnQuit(func() { logger.Info("quit from tray") })
	ui.Run()

	select {
	case err := <-failed:
		return err
	default:
		return nil
	}
}

func shutdown(srv *server.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}

// resolveProfile returns the named profile, else the active one, else the
// first stored profile.
func resolveProfile(st *store.Store, name string) (*store.Profile, error) {
	profiles := st.Profiles()
	if name != "" {
		p, err := profiles.GetByName(name)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		return p, nil
	}

	if id, err := st.Settings().Get(store.SettingActiveProfile); err == nil {
		if p, err := profiles.GetByID(id); err == nil {
			return p, nil
		}
	}

	all, err := profiles.List()
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no profiles: %w", store.ErrNotFound)
	}
	return all[0], nil
}

func newDetector(cfg config.DetectorConfig, logger *zap.Logger) detector.Detector {
	if cfg.Mock {
		logger.Warn("pose inference disabled, nobody will be detected")
		return detector.NewMockDetector()
	}

	det, err := detector.NewYOLODetector(detector.Config{
		Model:         cfg.Model,
		Device:        cfg.Device,
		MinConfidence: cfg.MinConfidence,
		IdleTimeout:   detector.DefaultConfig().IdleTimeout,
		Script:        cfg.Script,
	}, logger)
	if err != nil {
		logger.Warn("pose detector unavailable, running without inference", zap.Error(err))
		return detector.NewMockDetector()
	}
	return det
}

func newSpeaker(cfg config.AudioConfig, logger *zap.Logger) voice.Speaker {
	command := cfg.Command
	if command == "" {
		found, err := voice.DetectCommand()
		if err != nil {
			logger.Info("no speech engine found, coaching lines go to the log")
			return voice.NewLogSpeaker(logger)
		}
		command = found
	}
	return voice.NewCommandSpeaker(command, 10*time.Second)
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr + "/"
}

// findWebDir searches for the dashboard directory in common locations.
// It checks: "web", "../web", "../../web", and dataDir/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}
