// Package testdata builds synthetic camera frames for pipeline tests.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Frame geometry matching the detector fixtures.
const (
	Width  = 640
	Height = 480
)

// Frame returns a solid gray frame. The caller must Close it.
func Frame(shade float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(shade, shade, shade, 0), Height, Width, gocv.MatTypeCV8UC3)
}

// PersonFrame returns a dark frame with a bright figure-sized block at x,
// which is enough for the motion detector to see a change between
// positions.
func PersonFrame(x int) gocv.Mat {
	frame := Frame(30)
	gocv.Rectangle(&frame, image.Rect(x, 60, x+120, Height-20), color.RGBA{R: 220, G: 220, B: 220, A: 255}, -1)
	return frame
}

// Sequence returns n frames with the figure alternating between two
// positions, as from someone moving in front of the camera.
func Sequence(n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		x := 200
		if i%2 == 1 {
			x = 320
		}
		frame := PersonFrame(x)
		frames = append(frames, &frame)
	}
	return frames
}

// CloseAll releases frames.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
