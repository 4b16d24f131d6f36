// Package hud paints the workout overlay onto video frames.
package hud

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/exercise"
	"github.com/ayusman/squatcoach/internal/pose"
)

// Status is everything the top bar shows for one frame.
type Status struct {
	RepCount     int
	Goal         int
	Angle        float64
	State        exercise.State
	RepCompleted bool
	BodyVisible  bool
}

// StatusFromEvent fills a Status from a counter event.
func StatusFromEvent(ev exercise.Event, goal int, bodyVisible bool) Status {
	return Status{
		RepCount:     ev.RepCount,
		Goal:         goal,
		Angle:        ev.Angle,
		State:        ev.State,
		RepCompleted: ev.RepCompleted,
		BodyVisible:  bodyVisible,
	}
}

// Palette holds the overlay colors.
type Palette struct {
	Background color.RGBA
	Text       color.RGBA
	Accent     color.RGBA
	Alert      color.RGBA
	Joint      color.RGBA
}

// DefaultPalette is white text on black with a green accent.
var DefaultPalette = Palette{
	Background: color.RGBA{0, 0, 0, 0},
	Text:       color.RGBA{255, 255, 255, 0},
	Accent:     color.RGBA{0, 255, 0, 0},
	Alert:      color.RGBA{255, 128, 0, 0},
	Joint:      color.RGBA{255, 255, 0, 0},
}

const (
	barHeight   = 110
	rightMargin = 40
	font        = gocv.FontHersheySimplex
	thickness   = 2
)

// VisibilityMargin is how far from the frame edges landmarks must stay for
// the body to count as fully visible.
const VisibilityMargin = 25

// StartLines is the onboarding text shown before a workout begins.
var StartLines = []string{
	"Hi, you seem ready for your daily workout,",
	"should we just get started?",
	"Make sure that your whole figure is visible within the frame,",
	"and turn your side towards the camera with your feet hip width apart.",
	"Once you are ready I'll start counting your reps and",
	"let you know once you've hit the daily goal.",
	"Press Start in the tray or the dashboard to begin.",
}

// BodyWarning is shown when landmarks are close to the frame edges.
const BodyWarning = "Keep your whole body inside the frame."

// Overlay draws the HUD. The zero value is not usable; use New.
type Overlay struct {
	palette Palette
}

// New creates an Overlay with the given palette.
func New(p Palette) *Overlay {
	return &Overlay{palette: p}
}

// FormatAngle renders an angle for the HUD, "--" when undefined.
// Hershey fonts are ASCII only, so the unit is spelled out.
func FormatAngle(angle float64) string {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return "--"
	}
	return fmt.Sprintf("%.1f deg", angle)
}

// RepsText renders the rep counter, including the goal when one is set.
func RepsText(count, goal int) string {
	if goal > 0 {
		return fmt.Sprintf("Reps: %d/%d", count, goal)
	}
	return fmt.Sprintf("Reps: %d", count)
}

// GoalText renders the goal line, or "" when no goal is set.
func GoalText(count, goal int) string {
	switch {
	case goal <= 0:
		return ""
	case count >= goal:
		return "Daily goal reached!"
	default:
		return fmt.Sprintf("Goal: %d reps", goal)
	}
}

// DrawHUD paints the top status bar.
func (o *Overlay) DrawHUD(frame *gocv.Mat, s Status) {
	width := frame.Cols()
	gocv.Rectangle(frame, image.Rect(0, 0, width, barHeight), o.palette.Background, -1)

	o.text(frame, RepsText(s.RepCount, s.Goal), image.Pt(20, 30), 0.9, o.palette.Text)
	o.text(frame, "Angle: "+FormatAngle(s.Angle), image.Pt(20, 60), 0.7, o.palette.Text)

	stateColor := o.palette.Accent
	if s.RepCompleted {
		stateColor = o.palette.Alert
	}
	o.rightText(frame, "State: "+s.State.Label(), 30, 0.8, stateColor)

	if goal := GoalText(s.RepCount, s.Goal); goal != "" {
		o.rightText(frame, goal, 60, 0.6, o.palette.Accent)
	}

	if !s.BodyVisible {
		o.text(frame, BodyWarning, image.Pt(20, 90), 0.6, o.palette.Alert)
	}
}

// DrawStartScreen dims the frame and prints the onboarding instructions.
func (o *Overlay) DrawStartScreen(frame *gocv.Mat) {
	shade := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), frame.Rows(), frame.Cols(), frame.Type())
	defer shade.Close()
	gocv.AddWeighted(shade, 0.65, *frame, 0.35, 0, frame)

	y := frame.Rows()/2 - 120
	for _, line := range StartLines {
		o.text(frame, line, image.Pt(40, y), 0.6, o.palette.Text)
		y += 35
	}
}

// DrawLandmarks marks every landmark with a dot.
func (o *Overlay) DrawLandmarks(frame *gocv.Mat, f pose.Frame) {
	for _, p := range f.Points() {
		gocv.Circle(frame, toPixel(p), 4, o.palette.Accent, -1)
	}
}

// DrawSkeleton connects the landmark pairs in pose.SkeletonEdges. Edges with a
// missing endpoint are skipped.
func (o *Overlay) DrawSkeleton(frame *gocv.Mat, f pose.Frame) {
	for _, edge := range pose.SkeletonEdges {
		a, okA := f.Get(edge[0])
		b, okB := f.Get(edge[1])
		if !okA || !okB {
			continue
		}
		gocv.Line(frame, toPixel(a), toPixel(b), o.palette.Accent, 2)
	}
}

// DrawJoint highlights the tracked vertex and prints its angle next to it.
func (o *Overlay) DrawJoint(frame *gocv.Mat, p pose.Point, angle float64) {
	pt := toPixel(p)
	gocv.Circle(frame, pt, 8, o.palette.Joint, -1)
	if !math.IsNaN(angle) {
		o.text(frame, fmt.Sprintf("%.0f", angle), pt.Add(image.Pt(12, -12)), 0.7, o.palette.Joint)
	}
}

func (o *Overlay) text(frame *gocv.Mat, s string, at image.Point, scale float64, c color.RGBA) {
	gocv.PutTextWithParams(frame, s, at, font, scale, c, thickness, gocv.LineAA, false)
}

// rightText right-aligns s against the frame edge at baseline y.
func (o *Overlay) rightText(frame *gocv.Mat, s string, y int, scale float64, c color.RGBA) {
	size := gocv.GetTextSize(s, font, scale, thickness)
	x := frame.Cols() - rightMargin - size.X
	if x < 0 {
		x = 0
	}
	o.text(frame, s, image.Pt(x, y), scale, c)
}

func toPixel(p pose.Point) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// BodyVisible reports whether every landmark in f keeps VisibilityMargin
// pixels away from the edges of frame.
func BodyVisible(frame *gocv.Mat, f pose.Frame) bool {
	return f.InsideBounds(float64(frame.Cols()), float64(frame.Rows()), VisibilityMargin)
}
