package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame differencing parameters.
const (
	blurKernel    = 21
	diffThreshold = 25
)

// MotionDetector measures how much of the picture changed since the
// previous frame.
type MotionDetector struct {
	threshold   float64
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionDetector creates a MotionDetector. threshold is the percentage of
// pixels (0-100) that must change for a frame to count as moving.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Detect compares frame with the previous one. It returns whether motion
// was seen and the percentage of pixels that changed. The first frame after
// construction or Reset only primes the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}
	gocv.GaussianBlur(gray, &gray, image.Pt(blurKernel, blurKernel), 0, 0, gocv.BorderDefault)

	if !m.initialized || m.prevGray.Rows() != gray.Rows() || m.prevGray.Cols() != gray.Cols() {
		gray.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, m.prevGray, &diff)
	gocv.Threshold(diff, &diff, diffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(diff)) / float64(diff.Rows()*diff.Cols()) * 100
	gray.CopyTo(&m.prevGray)

	return changed > m.threshold, changed
}

// Reset drops the baseline frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases resources used by the motion detector.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}

// SetThreshold changes the motion threshold. Values <= 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// Activity keeps the pipeline in active mode for a cooldown after the last
// motion so a paused lifter at the bottom of a squat is still tracked.
type Activity struct {
	cooldown   time.Duration
	now        func() time.Time
	lastMotion time.Time
	active     bool
}

// NewActivity creates an Activity with the given cooldown.
func NewActivity(cooldown time.Duration) *Activity {
	return &Activity{cooldown: cooldown, now: time.Now}
}

// Observe records whether the latest frame moved and returns whether the
// pipeline should run at the active frame rate.
func (a *Activity) Observe(moving bool) bool {
	now := a.now()
	if moving {
		a.lastMotion = now
		a.active = true
		return true
	}
	if a.active && now.Sub(a.lastMotion) >= a.cooldown {
		a.active = false
	}
	return a.active
}

// Active reports the current mode without observing a frame.
func (a *Activity) Active() bool {
	return a.active
}

// Force switches to active mode immediately, e.g. when a workout starts.
func (a *Activity) Force() {
	a.lastMotion = a.now()
	a.active = true
}
