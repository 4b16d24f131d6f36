package detector

import (
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/pose"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results. Queued detections are
// returned in order; once the queue is empty the fixed detection is repeated.
type MockDetector struct {
	mu        sync.Mutex
	detection Detection
	queue     []Detection
	err       error
	calls     int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFrame makes Detect report frame as a found person.
func (m *MockDetector) SetFrame(frame pose.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detection = Detection{Frame: frame, Score: 0.9, Found: !frame.Empty()}
}

// Queue appends frames to be returned by successive Detect calls.
func (m *MockDetector) Queue(frames ...pose.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range frames {
		m.queue = append(m.queue, Detection{Frame: f, Score: 0.9, Found: !f.Empty()})
	}
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the next queued detection, the fixed detection, or the error.
func (m *MockDetector) Detect(frame *gocv.Mat) (Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return Detection{}, m.err
	}
	if len(m.queue) > 0 {
		d := m.queue[0]
		m.queue = m.queue[1:]
		return d, nil
	}
	return m.detection, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Fixture geometry in pixels for a 640x480 frame.
const (
	fixtureThigh = 110.0
	fixtureShin  = 110.0
)

var fixtureAnkle = pose.Point{X: 320, Y: 440}

// PoseWithKneeAngle returns a left-side pose whose hip-knee-ankle angle is deg.
func PoseWithKneeAngle(deg float64) pose.Frame {
	// The shin stays vertical; the thigh swings back as the knee bends.
	rad := (180 - deg) * math.Pi / 180
	ankle := fixtureAnkle
	knee := pose.Point{X: ankle.X, Y: ankle.Y - fixtureShin}
	hip := pose.Point{
		X: knee.X + fixtureThigh*math.Sin(rad),
		Y: knee.Y - fixtureThigh*math.Cos(rad),
	}
	shoulder := pose.Point{X: hip.X - 10, Y: hip.Y - 130}

	return pose.MustFrame(map[string]pose.Point{
		"nose":           {X: shoulder.X - 5, Y: shoulder.Y - 55},
		"left_eye":       {X: shoulder.X - 12, Y: shoulder.Y - 62},
		"left_ear":       {X: shoulder.X, Y: shoulder.Y - 58},
		"left_shoulder":  shoulder,
		"left_elbow":     {X: shoulder.X - 40, Y: shoulder.Y + 25},
		"left_wrist":     {X: shoulder.X - 80, Y: shoulder.Y + 30},
		"left_hip":       hip,
		"left_knee":      knee,
		"left_ankle":     ankle,
		"right_shoulder": {X: shoulder.X + 6, Y: shoulder.Y + 2},
		"right_hip":      {X: hip.X + 6, Y: hip.Y + 2},
	})
}

// StandingPose returns a pose with the knee fully extended.
func StandingPose() pose.Frame {
	return PoseWithKneeAngle(178)
}

// SquatBottomPose returns a pose at the bottom of a deep squat.
func SquatBottomPose() pose.Frame {
	return PoseWithKneeAngle(60)
}
