// Package voice speaks short coaching lines without blocking the frame loop.
package voice

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fixed coaching lines.
const (
	IntroLine  = "Welcome to the Squat Form Coach. Stand sideways to the camera, feet hip width apart. When you're ready, press S to start."
	StartLine  = "Starting squat tracking. Let's go."
	FinishLine = "Target reached. Amazing work. Workout complete."
)

// Praise is picked at random for every completed rep.
var Praise = []string{
	"Well done.",
	"That's it.",
	"There you go.",
	"Looks good.",
	"Nice depth.",
	"Form's looking good.",
}

// Config controls an Announcer.
type Config struct {
	Enabled bool
	// MinGap is the shortest time between two spoken lines. Lines arriving
	// sooner are dropped.
	MinGap     time.Duration
	TargetReps int
}

// DefaultConfig returns the standard coaching settings.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		MinGap:     700 * time.Millisecond,
		TargetReps: 20,
	}
}

// Option configures an Announcer.
type Option func(*Announcer)

// WithClock overrides the time source used for rate limiting.
func WithClock(now func() time.Time) Option {
	return func(a *Announcer) { a.now = now }
}

// WithRand overrides the random source used for praise selection.
func WithRand(r *rand.Rand) Option {
	return func(a *Announcer) { a.rng = r }
}

// Announcer rate-limits and dispatches speech asynchronously.
// It is safe for concurrent use.
type Announcer struct {
	cfg     Config
	speaker Speaker
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	last   time.Time
	spoken bool
	rng    *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Announcer. A nil speaker disables speech.
func New(cfg Config, speaker Speaker, logger *zap.Logger, opts ...Option) *Announcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Announcer{
		cfg:     cfg,
		speaker: speaker,
		logger:  logger,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enabled reports whether lines are spoken at all.
func (a *Announcer) Enabled() bool {
	return a.cfg.Enabled && a.speaker != nil
}

// Announce speaks text in the background. It returns false when the line was
// dropped because speech is disabled or the previous line was too recent.
func (a *Announcer) Announce(text string) bool {
	if !a.Enabled() || text == "" {
		return false
	}
	if !a.reserve() {
		a.logger.Debug("announcement dropped", zap.String("text", text))
		return false
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.speaker.Speak(a.ctx, text); err != nil && a.ctx.Err() == nil {
			a.logger.Warn("speech failed", zap.String("text", text), zap.Error(err))
		}
	}()
	return true
}

// reserve performs the gap check and records the slot in one step.
func (a *Announcer) reserve() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.spoken && now.Sub(a.last) < a.cfg.MinGap {
		return false
	}
	a.last = now
	a.spoken = true
	return true
}

// RepLine builds the line spoken after the given rep count.
func (a *Announcer) RepLine(count int) string {
	a.mu.Lock()
	praise := Praise[a.rng.Intn(len(Praise))]
	a.mu.Unlock()

	parts := []string{praise}
	switch count {
	case 5, 10, 15:
		parts = append(parts, fmt.Sprintf("That's %d reps.", count))
	}
	if a.cfg.TargetReps > 0 {
		switch left := a.cfg.TargetReps - count; left {
		case 10, 5:
			parts = append(parts, fmt.Sprintf("%d squats left.", left))
		}
	}
	return strings.Join(parts, " ")
}

// AnnounceRep cheers for a completed rep.
func (a *Announcer) AnnounceRep(count int) bool {
	return a.Announce(a.RepLine(count))
}

// Intro speaks the onboarding line.
func (a *Announcer) Intro() bool { return a.Announce(IntroLine) }

// Start speaks the line that opens a workout.
func (a *Announcer) Start() bool { return a.Announce(StartLine) }

// Finish speaks the goal line.
func (a *Announcer) Finish() bool { return a.Announce(FinishLine) }

// Wait blocks until every dispatched line has finished.
func (a *Announcer) Wait() {
	a.wg.Wait()
}

// Close cancels in-flight speech and waits for it to stop.
func (a *Announcer) Close() {
	a.cancel()
	a.wg.Wait()
}
