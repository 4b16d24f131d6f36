package exercise

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/squatcoach/internal/pose"
)

// Configuration errors reported by New.
var (
	ErrThresholdOrder  = errors.New("up angle must be strictly greater than down angle")
	ErrMinMovement     = errors.New("min movement must be a non-negative number")
	ErrThresholdRange  = errors.New("thresholds must lie within [0, 180] degrees")
	ErrUnknownStrategy = errors.New("unknown counting strategy")
)

// ConfigError describes an invalid counter configuration.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid counter config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Movement names the joint triple whose vertex angle is tracked.
type Movement struct {
	Name     string
	Proximal pose.Joint
	Vertex   pose.Joint
	Distal   pose.Joint
}

// Squat tracks the knee angle between hip and ankle.
var Squat = Movement{
	Name:     "squat",
	Proximal: pose.Hip,
	Vertex:   pose.Knee,
	Distal:   pose.Ankle,
}

// Default counter settings.
const (
	DefaultDownAngle   = 70.0
	DefaultUpAngle     = 160.0
	DefaultMinMovement = 5.0
)

// Config holds the immutable settings of a Counter.
type Config struct {
	// Side is "left" or "right"; it only affects landmark name resolution.
	Side string
	// DownAngle is the angle at or below which the joint is fully flexed.
	DownAngle float64
	// UpAngle is the angle at or above which the joint is fully extended.
	UpAngle float64
	// MinMovement is the smallest change from the last accepted angle that is
	// processed at all.
	MinMovement float64
	// Strategy is the name of the state machine; empty means three-phase.
	Strategy string
	// Movement defaults to Squat when its Name is empty.
	Movement Movement
}

// DefaultConfig returns the standard squat configuration.
func DefaultConfig() Config {
	return Config{
		Side:        string(pose.Left),
		DownAngle:   DefaultDownAngle,
		UpAngle:     DefaultUpAngle,
		MinMovement: DefaultMinMovement,
		Strategy:    StrategyThreePhase,
		Movement:    Squat,
	}
}

// Presets are named threshold families for common squat styles.
var Presets = map[string]Config{
	"deep": DefaultConfig(),
	"parallel": {
		Side: string(pose.Left), DownAngle: 90, UpAngle: 150,
		MinMovement: DefaultMinMovement, Strategy: StrategyThreePhase, Movement: Squat,
	},
	"strict-lockout": {
		Side: string(pose.Left), DownAngle: 90, UpAngle: 170,
		MinMovement: DefaultMinMovement, Strategy: StrategyThreePhase, Movement: Squat,
	},
}

// validate checks the configuration and resolves the side and strategy.
func (c Config) validate() (pose.Side, Strategy, error) {
	side, err := pose.ParseSide(c.Side)
	if err != nil {
		return "", nil, &ConfigError{Field: "side", Err: err}
	}
	if !inRange(c.DownAngle) || !inRange(c.UpAngle) {
		return "", nil, &ConfigError{Field: "thresholds", Err: ErrThresholdRange}
	}
	if c.UpAngle <= c.DownAngle {
		return "", nil, &ConfigError{
			Field: "thresholds",
			Err:   fmt.Errorf("%w (down=%.1f, up=%.1f)", ErrThresholdOrder, c.DownAngle, c.UpAngle),
		}
	}
	if math.IsNaN(c.MinMovement) || c.MinMovement < 0 {
		return "", nil, &ConfigError{Field: "min_movement", Err: ErrMinMovement}
	}
	strategy, err := StrategyByName(c.Strategy)
	if err != nil {
		return "", nil, &ConfigError{Field: "strategy", Err: err}
	}
	return side, strategy, nil
}

func inRange(deg float64) bool {
	return !math.IsNaN(deg) && deg >= 0 && deg <= 180
}
