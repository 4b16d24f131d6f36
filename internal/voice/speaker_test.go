package voice

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDetectCommand(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })

	lookPath = func(name string) (string, error) {
		if name == "espeak" {
			return "/usr/bin/espeak", nil
		}
		return "", exec.ErrNotFound
	}
	path, err := DetectCommand()
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/espeak", path)

	lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	_, err = DetectCommand()
	assert.ErrorIs(t, err, ErrNoSpeechEngine)
}

func TestCommandSpeaker(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell utilities")
	}

	t.Run("success", func(t *testing.T) {
		s := NewCommandSpeaker("true", time.Second)
		assert.NoError(t, s.Speak(context.Background(), "hello"))
	})

	t.Run("failure", func(t *testing.T) {
		s := NewCommandSpeaker("false", time.Second)
		err := s.Speak(context.Background(), "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "speech command failed")
	})

	t.Run("timeout", func(t *testing.T) {
		s := NewCommandSpeaker("sleep", 50*time.Millisecond)
		err := s.Speak(context.Background(), "5")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})

	t.Run("missing binary", func(t *testing.T) {
		s := NewCommandSpeaker("/nonexistent/tts-binary", time.Second)
		err := s.Speak(context.Background(), "hello")
		assert.Error(t, err)
	})
}

func TestLogSpeaker(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewLogSpeaker(zap.New(core))

	require.NoError(t, s.Speak(context.Background(), "Nice depth."))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Nice depth.", entries[0].ContextMap()["say"])
}
