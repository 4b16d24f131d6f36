package app

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/exercise"
	"github.com/ayusman/squatcoach/internal/hook"
	"github.com/ayusman/squatcoach/internal/hud"
	"github.com/ayusman/squatcoach/internal/voice"
)

// SessionState is the workout lifecycle stage.
type SessionState string

const (
	// StateWaiting shows the start screen; nothing is counted.
	StateWaiting SessionState = "waiting"
	// StateRunning counts repetitions.
	StateRunning SessionState = "running"
	// StateCompleted means the target was reached; counting stops until reset.
	StateCompleted SessionState = "completed"
)

// Message types published to subscribers.
const (
	MessageUpdate = "update"
	MessageRep    = "rep"
	MessageStatus = "status"
)

// Message is one published session notification.
type Message struct {
	Type   string          `json:"type"`
	Event  *exercise.Event `json:"event,omitempty"`
	Status *Status         `json:"status,omitempty"`
	Time   time.Time       `json:"time"`
}

// Status is a snapshot of the session.
type Status struct {
	State        SessionState   `json:"state"`
	Paused       bool           `json:"paused"`
	Running      bool           `json:"pipeline_running"`
	RepCount     int            `json:"rep_count"`
	TargetReps   int            `json:"target_reps"`
	CounterState exercise.State `json:"counter_state"`
	Phase        exercise.Phase `json:"phase"`
	Angle        *float64       `json:"angle"`
	BodyVisible  bool           `json:"body_visible"`
	Profile      string         `json:"profile,omitempty"`
	Side         string         `json:"side"`
	DownAngle    float64        `json:"down_angle"`
	UpAngle      float64        `json:"up_angle"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
}

// FrameResult is the outcome of handling one detection.
type FrameResult struct {
	Event exercise.Event
	// Updated is false when the counter was not consulted: paused, not
	// running, or nobody in the picture.
	Updated     bool
	BodyVisible bool
}

func nan() float64 { return math.NaN() }

func isNaN(f float64) bool { return math.IsNaN(f) }

// State returns the current session state.
func (a *App) State() SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Status returns a snapshot of the session.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusLocked()
}

func (a *App) statusLocked() Status {
	cfg := a.counter.Config()
	s := Status{
		State:        a.state,
		Paused:       a.paused,
		Running:      a.running.Load(),
		RepCount:     a.counter.RepCount(),
		TargetReps:   a.config.TargetReps,
		CounterState: a.counter.State(),
		Phase:        a.counter.Phase(),
		BodyVisible:  a.bodyVisible,
		Profile:      a.config.Profile,
		Side:         cfg.Side,
		DownAngle:    cfg.DownAngle,
		UpAngle:      cfg.UpAngle,
	}
	if angle, ok := a.counter.LastAngle(); ok {
		s.Angle = &angle
	}
	if !a.startedAt.IsZero() {
		t := a.startedAt
		s.StartedAt = &t
	}
	return s
}

// LastEvent returns the most recent counter event.
func (a *App) LastEvent() exercise.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastEvent
}

// BeginWorkout leaves the start screen and starts counting.
func (a *App) BeginWorkout() error {
	a.mu.Lock()
	switch a.state {
	case StateRunning:
		a.mu.Unlock()
		return nil
	case StateCompleted:
		a.mu.Unlock()
		return ErrWorkoutCompleted
	}
	a.state = StateRunning
	a.paused = false
	a.startedAt = time.Now()
	status := a.statusLocked()
	a.mu.Unlock()

	a.wake.Store(true)
	a.logger.Info("workout started", zap.Int("target_reps", a.config.TargetReps))
	a.say((*voice.Announcer).Start)
	a.dispatch(hook.EventWorkoutStarted, 0, nan())
	a.publish(Message{Type: MessageStatus, Status: &status})
	return nil
}

// ResetWorkout clears the rep count and returns a completed workout to
// running. The counter is never reset implicitly.
func (a *App) ResetWorkout() {
	a.mu.Lock()
	a.counter.Reset()
	a.lastEvent = exercise.Event{Angle: nan(), State: a.counter.State(), Phase: a.counter.Phase()}
	if a.state == StateCompleted {
		a.state = StateRunning
		a.startedAt = time.Now()
	}
	status := a.statusLocked()
	a.mu.Unlock()

	a.logger.Info("workout reset")
	a.dispatch(hook.EventWorkoutReset, 0, nan())
	a.publish(Message{Type: MessageStatus, Status: &status})
}

// SetPaused suspends or resumes counting without touching the count.
func (a *App) SetPaused(paused bool) {
	a.mu.Lock()
	if a.paused == paused {
		a.mu.Unlock()
		return
	}
	a.paused = paused
	status := a.statusLocked()
	a.mu.Unlock()

	if !paused {
		a.wake.Store(true)
	}
	a.logger.Info("counting paused", zap.Bool("paused", paused))
	a.publish(Message{Type: MessageStatus, Status: &status})
}

// Paused reports whether counting is paused.
func (a *App) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

// counting reports whether detections are fed to the counter.
func (a *App) counting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StateRunning && !a.paused
}

// HandleDetection feeds one detection from a width x height frame to the
// counter and fires the resulting announcements, hooks and messages.
// Frames without a person are omitted; they never reach the counter.
func (a *App) HandleDetection(d detector.Detection, width, height int) FrameResult {
	visible := d.Found && d.Frame.InsideBounds(float64(width), float64(height), hud.VisibilityMargin)

	a.mu.Lock()
	a.bodyVisible = visible
	if a.state != StateRunning || a.paused || !d.Found {
		res := FrameResult{Event: a.lastEvent, BodyVisible: visible}
		a.mu.Unlock()
		if !d.Found {
			a.metrics.FramesNoBody.Add(1)
		}
		return res
	}

	ev := a.counter.Update(d.Frame)
	a.lastEvent = ev

	goalReached := false
	if ev.RepCompleted && a.config.TargetReps > 0 && ev.RepCount >= a.config.TargetReps {
		a.state = StateCompleted
		goalReached = true
	}
	var status Status
	if goalReached {
		status = a.statusLocked()
	}
	a.mu.Unlock()

	a.metrics.ObserveEvent(ev)
	a.publish(Message{Type: MessageUpdate, Event: &ev})

	if ev.RepCompleted {
		a.logger.Info("rep completed", zap.Int("count", ev.RepCount), zap.Float64("angle", ev.Angle))
		a.publish(Message{Type: MessageRep, Event: &ev})
		a.dispatch(hook.EventRepCompleted, ev.RepCount, ev.Angle)

		if goalReached {
			a.logger.Info("goal reached", zap.Int("target_reps", a.config.TargetReps))
			a.say((*voice.Announcer).Finish)
			a.dispatch(hook.EventGoalReached, ev.RepCount, ev.Angle)
			a.publish(Message{Type: MessageStatus, Status: &status})
		} else {
			count := ev.RepCount
			a.say(func(an *voice.Announcer) bool { return an.AnnounceRep(count) })
		}
	}

	return FrameResult{Event: ev, Updated: true, BodyVisible: visible}
}
