// Package tray provides the system tray menu for SquatCoach.
package tray

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"github.com/ayusman/squatcoach/internal/app"
)

// Session is the part of the workout the tray controls.
type Session interface {
	Status() app.Status
	BeginWorkout() error
	ResetWorkout()
	SetPaused(paused bool)
}

// Tray represents the system tray application.
type Tray struct {
	session      Session
	dashboardURL string
	logger       *zap.Logger
	onQuit       func()
	mu           sync.RWMutex

	// Menu items stored for later updates
	menuStart  *systray.MenuItem
	menuPause  *systray.MenuItem
	menuReps   *systray.MenuItem
	menuReset  *systray.MenuItem
	lastStatus app.Status
}

// New creates a Tray controlling session. dashboardURL is opened by the
// dashboard menu item.
func New(session Session, dashboardURL string, logger *zap.Logger) *Tray {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tray{
		session:      session,
		dashboardURL: dashboardURL,
		logger:       logger.Named("tray"),
		lastStatus:   session.Status(),
	}
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("SquatCoach")
	systray.SetTooltip("SquatCoach squat counter")

	t.mu.Lock()
	t.menuStart = systray.AddMenuItem("Start workout", "Begin counting squats")
	t.menuPause = systray.AddMenuItem(pauseLabel(false), "Pause or resume counting")
	systray.AddSeparator()

	t.menuReps = systray.AddMenuItem(repsLabel(t.lastStatus), "Repetitions this workout")
	t.menuReps.Disable()
	t.menuReset = systray.AddMenuItem("Reset workout", "Set the rep count back to zero")
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit SquatCoach")
	t.refreshLocked()
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.menuStart.ClickedCh:
				t.handleStart()
			case <-t.menuPause.ClickedCh:
				t.handlePause()
			case <-t.menuReset.ClickedCh:
				t.session.ResetWorkout()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleStart() {
	if err := t.session.BeginWorkout(); err != nil {
		t.logger.Info("workout not started", zap.Error(err))
	}
}

func (t *Tray) handlePause() {
	t.session.SetPaused(!t.session.Status().Paused)
}

func (t *Tray) handleDashboard() {
	if err := OpenBrowser(t.dashboardURL); err != nil {
		t.logger.Warn("failed to open dashboard", zap.String("url", t.dashboardURL), zap.Error(err))
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	// Call the callback before leaving the run loop so shutdown can finish.
	if callback != nil {
		callback()
	}
	systray.Quit()
}

// Publish updates the menu from session messages. It satisfies
// app.Publisher.
func (t *Tray) Publish(msg app.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case msg.Status != nil:
		t.lastStatus = *msg.Status
	case msg.Event != nil:
		t.lastStatus.RepCount = msg.Event.RepCount
	default:
		return
	}
	t.refreshLocked()
}

func (t *Tray) refreshLocked() {
	if t.menuReps == nil {
		return
	}
	t.menuReps.SetTitle(repsLabel(t.lastStatus))
	t.menuPause.SetTitle(pauseLabel(t.lastStatus.Paused))
	if t.lastStatus.State == app.StateWaiting {
		t.menuStart.Enable()
	} else {
		t.menuStart.Disable()
	}
}

// Status returns the last status the tray has seen.
func (t *Tray) Status() app.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastStatus
}

func repsLabel(s app.Status) string {
	label := fmt.Sprintf("Reps: %d", s.RepCount)
	if s.TargetReps > 0 {
		label = fmt.Sprintf("Reps: %d/%d", s.RepCount, s.TargetReps)
	}
	if s.State == app.StateCompleted {
		label += " (done)"
	}
	return label
}

func pauseLabel(paused bool) string {
	if paused {
		return "○ Paused"
	}
	return "● Counting"
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
