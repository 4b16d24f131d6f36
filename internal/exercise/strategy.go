package exercise

import "fmt"

// State is the coarse rep state reported to consumers.
type State string

const (
	StateUp   State = "up"
	StateDown State = "down"
)

// Label returns the capitalized form used on screen ("Up", "Down").
func (s State) Label() string {
	switch s {
	case StateDown:
		return "Down"
	default:
		return "Up"
	}
}

// Phase is the internal position of a strategy's state machine.
type Phase string

const (
	// PhaseReady is the unarmed starting phase of the three-phase strategy.
	// No descent is tracked until a full extension has been observed.
	PhaseReady Phase = "ready"
	// PhaseExtended is the resting, fully extended phase.
	PhaseExtended Phase = "extended"
	// PhaseDescending is reached from PhaseExtended once the angle drops below
	// the up threshold without yet reaching the down threshold.
	PhaseDescending Phase = "descending"
	// PhaseFlexed is the bottom of the rep.
	PhaseFlexed Phase = "flexed"
)

// State maps a phase to the reported UP/DOWN state.
func (p Phase) State() State {
	if p == PhaseFlexed {
		return StateDown
	}
	return StateUp
}

// Thresholds are the angle boundaries of a rep. Up must be strictly greater
// than Down so that the interval between them forms a dead zone.
type Thresholds struct {
	Down float64
	Up   float64
}

// Strategy is a rep-counting state machine over accepted angle samples.
type Strategy interface {
	// Name identifies the strategy in configuration.
	Name() string
	// Initial returns the phase a fresh or reset counter starts in.
	Initial() Phase
	// Next returns the phase after observing angle in phase, and whether a
	// repetition completed on this sample.
	Next(phase Phase, angle float64, th Thresholds) (Phase, bool)
}

// Strategy names accepted by StrategyByName.
const (
	StrategyTwoPhase   = "two-phase"
	StrategyThreePhase = "three-phase"
)

// StrategyByName returns the strategy registered under name. An empty name
// selects the three-phase strategy.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", StrategyThreePhase:
		return ThreePhase{}, nil
	case StrategyTwoPhase:
		return TwoPhase{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// TwoPhase flips between extended and flexed and counts on each return to
// the top.
type TwoPhase struct{}

func (TwoPhase) Name() string { return StrategyTwoPhase }

func (TwoPhase) Initial() Phase { return PhaseExtended }

func (TwoPhase) Next(phase Phase, angle float64, th Thresholds) (Phase, bool) {
	switch phase {
	case PhaseFlexed:
		if angle >= th.Up {
			return PhaseExtended, true
		}
	default:
		if angle <= th.Down {
			return PhaseFlexed, false
		}
	}
	return phase, false
}

// ThreePhase only honors the bottom of a rep when it was reached from an
// observed full extension, and tracks the partial descent in between.
type ThreePhase struct{}

func (ThreePhase) Name() string { return StrategyThreePhase }

func (ThreePhase) Initial() Phase { return PhaseReady }

func (ThreePhase) Next(phase Phase, angle float64, th Thresholds) (Phase, bool) {
	switch phase {
	case PhaseReady:
		if angle >= th.Up {
			return PhaseExtended, false
		}
	case PhaseExtended:
		if angle <= th.Down {
			return PhaseFlexed, false
		}
		if angle < th.Up {
			return PhaseDescending, false
		}
	case PhaseDescending:
		if angle <= th.Down {
			return PhaseFlexed, false
		}
		if angle >= th.Up {
			// Came back up without reaching depth.
			return PhaseExtended, false
		}
	case PhaseFlexed:
		if angle >= th.Up {
			return PhaseExtended, true
		}
	}
	return phase, false
}
