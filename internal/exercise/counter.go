package exercise

import (
	"encoding/json"
	"math"

	"github.com/ayusman/squatcoach/internal/pose"
)

// Status explains how an update was handled.
type Status string

const (
	// StatusAccepted means the sample passed every gate and was applied.
	StatusAccepted Status = "accepted"
	// StatusNoLandmarks means a required joint was missing from the frame.
	StatusNoLandmarks Status = "no_landmarks"
	// StatusDegenerate means the joints were present but coincident.
	StatusDegenerate Status = "degenerate"
	// StatusOutOfRange means an angle outside [0, 180] was supplied.
	StatusOutOfRange Status = "out_of_range"
	// StatusNoiseRejected means the angle moved less than the minimum movement.
	StatusNoiseRejected Status = "noise_rejected"
)

// Event is the outcome of one Counter.Update call.
type Event struct {
	// Angle is NaN when no angle could be computed.
	Angle        float64
	State        State
	Phase        Phase
	RepCompleted bool
	RepCount     int
	Status       Status
}

// HasAngle reports whether the event carries a defined angle.
func (e Event) HasAngle() bool {
	return !math.IsNaN(e.Angle)
}

type eventJSON struct {
	Angle        *float64 `json:"angle"`
	State        State    `json:"state"`
	Phase        Phase    `json:"phase"`
	RepCompleted bool     `json:"rep_completed"`
	RepCount     int      `json:"rep_count"`
	Status       Status   `json:"status"`
}

// MarshalJSON encodes an undefined angle as null.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		State:        e.State,
		Phase:        e.Phase,
		RepCompleted: e.RepCompleted,
		RepCount:     e.RepCount,
		Status:       e.Status,
	}
	if e.HasAngle() {
		angle := e.Angle
		out.Angle = &angle
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an event, mapping a null angle to NaN.
func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Event{
		Angle:        math.NaN(),
		State:        in.State,
		Phase:        in.Phase,
		RepCompleted: in.RepCompleted,
		RepCount:     in.RepCount,
		Status:       in.Status,
	}
	if in.Angle != nil {
		e.Angle = *in.Angle
	}
	return nil
}

// Counter counts repetitions from a stream of landmark frames.
//
// A Counter is not safe for concurrent use; updates must be serialized by
// the caller, typically one per captured frame.
type Counter struct {
	config     Config
	side       pose.Side
	strategy   Strategy
	thresholds Thresholds

	repCount  int
	phase     Phase
	lastAngle float64
	hasLast   bool
}

// New creates a Counter. Invalid configuration is reported as a *ConfigError.
func New(cfg Config) (*Counter, error) {
	if cfg.Movement.Name == "" {
		cfg.Movement = Squat
	}
	side, strategy, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	cfg.Side = string(side)
	cfg.Strategy = strategy.Name()

	c := &Counter{
		config:     cfg,
		side:       side,
		strategy:   strategy,
		thresholds: Thresholds{Down: cfg.DownAngle, Up: cfg.UpAngle},
	}
	c.Reset()
	return c, nil
}

// Update consumes one frame of landmarks and returns what happened.
// Missing joints, degenerate geometry and sub-threshold movement never
// change the count or state.
func (c *Counter) Update(frame pose.Frame) Event {
	m := c.config.Movement
	a, okA := frame.Lookup(c.side, m.Proximal)
	b, okB := frame.Lookup(c.side, m.Vertex)
	d, okD := frame.Lookup(c.side, m.Distal)
	if !okA || !okB || !okD {
		return c.event(math.NaN(), false, StatusNoLandmarks)
	}

	angle := Angle(a, b, d)
	if math.IsNaN(angle) {
		return c.event(math.NaN(), false, StatusDegenerate)
	}

	return c.UpdateAngle(angle)
}

// UpdateAngle applies an already computed angle, skipping landmark
// resolution. NaN is treated like degenerate geometry; any other value
// outside [0, 180] leaves the counter untouched.
func (c *Counter) UpdateAngle(angle float64) Event {
	if math.IsNaN(angle) {
		return c.event(math.NaN(), false, StatusDegenerate)
	}
	if !inRange(angle) {
		return c.event(math.NaN(), false, StatusOutOfRange)
	}

	if c.hasLast && math.Abs(angle-c.lastAngle) < c.config.MinMovement {
		return c.event(angle, false, StatusNoiseRejected)
	}

	c.lastAngle = angle
	c.hasLast = true

	next, completed := c.strategy.Next(c.phase, angle, c.thresholds)
	c.phase = next
	if completed {
		c.repCount++
	}

	return c.event(angle, completed, StatusAccepted)
}

func (c *Counter) event(angle float64, completed bool, status Status) Event {
	return Event{
		Angle:        angle,
		State:        c.phase.State(),
		Phase:        c.phase,
		RepCompleted: completed,
		RepCount:     c.repCount,
		Status:       status,
	}
}

// Reset clears the count, returns to the initial phase and forgets the last angle.
func (c *Counter) Reset() {
	c.repCount = 0
	c.phase = c.strategy.Initial()
	c.lastAngle = math.NaN()
	c.hasLast = false
}

// RepCount returns the number of completed repetitions.
func (c *Counter) RepCount() int {
	return c.repCount
}

// State returns the reported UP/DOWN state.
func (c *Counter) State() State {
	return c.phase.State()
}

// Phase returns the strategy's internal phase.
func (c *Counter) Phase() Phase {
	return c.phase
}

// LastAngle returns the most recent accepted angle, if any.
func (c *Counter) LastAngle() (float64, bool) {
	return c.lastAngle, c.hasLast
}

// Side returns the body side the counter reads.
func (c *Counter) Side() pose.Side {
	return c.side
}

// Config returns the normalized configuration the counter was built with.
func (c *Counter) Config() Config {
	return c.config
}
