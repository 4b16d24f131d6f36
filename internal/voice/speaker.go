package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// ErrNoSpeechEngine is returned by DetectCommand when no known TTS binary is installed.
var ErrNoSpeechEngine = errors.New("no speech engine found")

// Speaker turns a line of text into audio. Speak blocks until the line has
// been spoken or ctx is done.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// knownEngines are probed in order by DetectCommand.
var knownEngines = []string{"say", "espeak-ng", "espeak", "spd-say"}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// DetectCommand returns the first text-to-speech binary found on PATH.
func DetectCommand() (string, error) {
	for _, name := range knownEngines {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrNoSpeechEngine
}

// CommandSpeaker speaks by running an external program with the text as its
// final argument, e.g. `say "Well done."`.
type CommandSpeaker struct {
	command string
	args    []string
	timeout time.Duration
}

// NewCommandSpeaker creates a CommandSpeaker. A zero timeout disables the
// per-line deadline.
func NewCommandSpeaker(command string, timeout time.Duration, args ...string) *CommandSpeaker {
	return &CommandSpeaker{
		command: command,
		args:    args,
		timeout: timeout,
	}
}

// Speak runs the speech command and waits for it to exit.
func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), s.args...), text)
	cmd := exec.CommandContext(ctx, s.command, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("speech timeout after %s", s.timeout)
	}
	if err != nil {
		if msg := stderr.String(); msg != "" {
			return fmt.Errorf("speech command failed: %w, stderr: %s", err, msg)
		}
		return fmt.Errorf("speech command failed: %w", err)
	}
	return nil
}

// LogSpeaker writes lines to the logger instead of speaking them. It is used
// when no speech engine is installed so feedback is still visible.
type LogSpeaker struct {
	logger *zap.Logger
}

// NewLogSpeaker creates a LogSpeaker.
func NewLogSpeaker(logger *zap.Logger) *LogSpeaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSpeaker{logger: logger}
}

func (s *LogSpeaker) Speak(_ context.Context, text string) error {
	s.logger.Info("coach", zap.String("say", text))
	return nil
}
