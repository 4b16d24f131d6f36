// Package hook runs external executables in response to workout events.
package hook

import (
	"encoding/json"
	"time"
)

// Event names a workout event hooks can subscribe to.
type Event string

const (
	EventWorkoutStarted Event = "workout_started"
	EventRepCompleted   Event = "rep_completed"
	EventGoalReached    Event = "goal_reached"
	EventWorkoutReset   Event = "workout_reset"
)

// Manifest describes a hook's metadata and subscriptions. It is read from
// hook.json in the hook's directory.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []Event         `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Subscribes reports whether the manifest lists ev. An empty list subscribes
// to every event.
func (m Manifest) Subscribes(ev Event) bool {
	if len(m.Events) == 0 {
		return true
	}
	for _, e := range m.Events {
		if e == ev {
			return true
		}
	}
	return false
}

// Request is written to a hook's stdin as JSON.
type Request struct {
	Event      Event           `json:"event"`
	RepCount   int             `json:"rep_count"`
	TargetReps int             `json:"target_reps"`
	Angle      *float64        `json:"angle,omitempty"`
	Profile    string          `json:"profile,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// Response is read from a hook's stdout as JSON.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}
