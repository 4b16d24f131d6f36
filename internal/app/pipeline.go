package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/capture"
	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/hud"
)

// runPipeline is the capture loop.
//
// Pipeline logic:
//  1. Start in idle mode (IdleFPS)
//  2. On motion or a session change, switch to active mode (ActiveFPS)
//  3. While counting and active, run pose detection and update the counter
//  4. Draw the start screen or the HUD, encode the frame as JPEG
//  5. After IdleTimeout without motion, switch back to idle mode
func (a *App) runPipeline(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer a.running.Store(false)

	activeMode := false
	ticker := time.NewTicker(time.Second / time.Duration(a.config.IdleFPS))
	defer ticker.Stop()

	setMode := func(active bool) {
		if active == activeMode {
			return
		}
		activeMode = active
		fps := a.config.IdleFPS
		if active {
			fps = a.config.ActiveFPS
		}
		a.camera.SetFPS(fps)
		ticker.Reset(time.Second / time.Duration(fps))
		a.metrics.SetActive(active)
		a.logger.Debug("frame rate changed", zap.Bool("active", active), zap.Int("fps", fps))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrEndOfStream) {
				a.logger.Info("video source ended")
				return
			}
			a.metrics.ReadErrors.Add(1)
			a.logger.Debug("error reading frame", zap.Error(err))
			continue
		}
		a.metrics.FramesRead.Add(1)

		moving, _ := a.motion.Detect(frame)
		if a.wake.Swap(false) {
			a.activity.Force()
		}
		setMode(a.activity.Observe(moving))

		a.processFrame(frame, activeMode)
		frame.Close()
	}
}

// processFrame runs detection when appropriate, draws the overlay and
// publishes the encoded frame.
func (a *App) processFrame(frame *gocv.Mat, active bool) {
	var (
		det      detector.Detection
		res      FrameResult
		detected bool
	)
	if active && a.counting() {
		start := time.Now()
		d, err := a.detector.Detect(frame)
		a.metrics.ObserveDetect(time.Since(start))
		if err != nil {
			a.metrics.DetectErrors.Add(1)
			a.logger.Debug("pose detection failed", zap.Error(err))
		} else {
			a.metrics.FramesProcessed.Add(1)
			det, detected = d, true
			res = a.HandleDetection(det, frame.Cols(), frame.Rows())
		}
	}
	if !detected {
		res = FrameResult{Event: a.LastEvent(), BodyVisible: true}
	}

	a.draw(frame, det, res)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		a.logger.Debug("jpeg encode failed", zap.Error(err))
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()
	a.frames.Set(data)
}

func (a *App) draw(frame *gocv.Mat, det detector.Detection, res FrameResult) {
	status := a.Status()

	if status.State == StateWaiting {
		a.overlay.DrawStartScreen(frame)
		return
	}

	if det.Found {
		a.overlay.DrawSkeleton(frame, det.Frame)
		a.overlay.DrawLandmarks(frame, det.Frame)
		if knee, ok := det.Frame.Lookup(a.counter.Side(), a.counter.Config().Movement.Vertex); ok {
			a.overlay.DrawJoint(frame, knee, res.Event.Angle)
		}
	}

	hs := hud.StatusFromEvent(res.Event, a.config.TargetReps, res.BodyVisible)
	hs.RepCount = status.RepCount
	a.overlay.DrawHUD(frame, hs)
}
