package metrics

import (
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/squatcoach/internal/exercise"
)

func TestObserveEvent(t *testing.T) {
	m := New()

	m.ObserveEvent(exercise.Event{Angle: 88, Status: exercise.StatusAccepted})
	m.ObserveEvent(exercise.Event{Angle: 165, Status: exercise.StatusAccepted, RepCompleted: true, RepCount: 1})
	m.ObserveEvent(exercise.Event{Angle: math.NaN(), Status: exercise.StatusNoLandmarks})
	m.ObserveEvent(exercise.Event{Angle: 163, Status: exercise.StatusNoiseRejected})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.updates.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("no_landmarks")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("noise_rejected")))
	assert.Equal(t, 165.0, testutil.ToFloat64(m.lastAngle))
	assert.Equal(t, uint64(1), m.Reps.Load())
}

func TestHandler(t *testing.T) {
	m := New()
	m.FramesRead.Add(3)
	m.SetActive(true)
	m.ObserveDetect(30 * time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "squatcoach_frames_read_total 3")
	assert.Contains(t, text, "squatcoach_pipeline_active 1")
	assert.True(t, strings.Contains(text, "squatcoach_detect_duration_seconds_count 1"))
}
