// Package detector estimates body landmarks from video frames.
package detector

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/pose"
)

// Detector defines the interface for pose estimation implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the most confident person.
	// A Detection with Found == false means nobody was seen.
	Detect(frame *gocv.Mat) (Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Detection is the best person candidate found in one frame.
type Detection struct {
	Frame pose.Frame
	// Score is the mean keypoint confidence of the chosen person.
	Score float64
	Found bool
}

// Config holds configuration options for pose detection.
type Config struct {
	// Model is the YOLO pose weights file passed to the service.
	Model string

	// Device is an optional inference device such as "cpu" or "cuda:0".
	Device string

	// MinConfidence is the keypoint confidence below which a joint is dropped (0.0-1.0).
	MinConfidence float64

	// IdleTimeout stops the inference process after this long without frames.
	IdleTimeout time.Duration

	// Script overrides the location of the inference service.
	Script string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Model:         "yolo11n-pose.pt",
		MinConfidence: 0.25,
		IdleTimeout:   30 * time.Second,
	}
}
