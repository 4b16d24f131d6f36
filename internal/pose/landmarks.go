// Package pose defines the body landmark vocabulary shared by the detector,
// the repetition counter and the HUD.
package pose

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidSide is returned when a side other than "left" or "right" is requested.
	ErrInvalidSide = errors.New("side must be 'left' or 'right'")

	// ErrUnknownLandmark is returned when a frame contains a key outside the joint vocabulary.
	ErrUnknownLandmark = errors.New("unknown landmark name")

	// ErrInvalidCoordinate is returned when a landmark has a NaN or infinite coordinate.
	ErrInvalidCoordinate = errors.New("landmark coordinate is not finite")
)

// Side selects which half of the body a landmark belongs to.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// ParseSide converts a user-supplied string into a Side.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Left:
		return Left, nil
	case Right:
		return Right, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

// Joint is a body joint name without its side prefix.
type Joint string

// Joints tracked by COCO-style pose models.
const (
	Nose     Joint = "nose"
	Eye      Joint = "eye"
	Ear      Joint = "ear"
	Shoulder Joint = "shoulder"
	Elbow    Joint = "elbow"
	Wrist    Joint = "wrist"
	Hip      Joint = "hip"
	Knee     Joint = "knee"
	Ankle    Joint = "ankle"
)

// sidedJoints are the joints that exist once per side of the body.
var sidedJoints = map[Joint]bool{
	Eye: true, Ear: true, Shoulder: true, Elbow: true,
	Wrist: true, Hip: true, Knee: true, Ankle: true,
}

// Name returns the side-qualified landmark key, e.g. "left_knee".
// Nose has no side and is returned as-is.
func Name(side Side, joint Joint) string {
	if !sidedJoints[joint] {
		return string(joint)
	}
	return string(side) + "_" + string(joint)
}

// KeypointNames lists landmark keys in the 17-point COCO order used by YOLO pose models.
var KeypointNames = [NumKeypoints]string{
	"nose",
	"left_eye",
	"right_eye",
	"left_ear",
	"right_ear",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
}

// NumKeypoints is the number of keypoints in the COCO skeleton.
const NumKeypoints = 17

// SkeletonEdges are the landmark pairs connected when drawing a skeleton.
var SkeletonEdges = [][2]string{
	{"left_shoulder", "right_shoulder"},
	{"left_hip", "right_hip"},
	{"left_shoulder", "left_elbow"},
	{"left_elbow", "left_wrist"},
	{"right_shoulder", "right_elbow"},
	{"right_elbow", "right_wrist"},
	{"left_shoulder", "left_hip"},
	{"right_shoulder", "right_hip"},
	{"left_hip", "left_knee"},
	{"left_knee", "left_ankle"},
	{"right_hip", "right_knee"},
	{"right_knee", "right_ankle"},
}

// validKey reports whether key is a side-qualified joint, a bare joint name or "nose".
func validKey(key string) bool {
	if key == string(Nose) {
		return true
	}
	if sidedJoints[Joint(key)] {
		return true
	}
	side, joint, ok := strings.Cut(key, "_")
	if !ok {
		return false
	}
	return (Side(side) == Left || Side(side) == Right) && sidedJoints[Joint(joint)]
}

// Point is a 2D landmark position in pixel or normalized image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dot returns the dot product of p and q treated as vectors.
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y
}

// Scale returns p with both coordinates multiplied by k.
func (p Point) Scale(k float64) Point {
	return Point{X: p.X * k, Y: p.Y * k}
}

// Norm returns the Euclidean length of p treated as a vector.
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Frame is the set of landmarks detected for one person in one video frame.
// The zero value is an empty frame, which is how "no body detected" is represented.
// A Frame is never mutated after construction.
type Frame struct {
	points map[string]Point
}

// NewFrame validates landmark names and coordinates and returns an immutable Frame.
func NewFrame(points map[string]Point) (Frame, error) {
	copied := make(map[string]Point, len(points))
	for key, p := range points {
		if !validKey(key) {
			return Frame{}, fmt.Errorf("%w: %q", ErrUnknownLandmark, key)
		}
		if !p.finite() {
			return Frame{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, key)
		}
		copied[key] = p
	}
	return Frame{points: copied}, nil
}

// MustFrame is like NewFrame but panics on invalid input. Intended for fixtures.
func MustFrame(points map[string]Point) Frame {
	f, err := NewFrame(points)
	if err != nil {
		panic(err)
	}
	return f
}

// FromKeypoints builds a Frame from COCO-ordered keypoints.
// Keypoints whose confidence is below minConf are omitted so that occluded
// joints make the frame partial instead of wrong. A nil confidences slice
// treats every keypoint as confident.
func FromKeypoints(points []Point, confidences []float64, minConf float64) Frame {
	m := make(map[string]Point, NumKeypoints)
	for i := 0; i < NumKeypoints && i < len(points); i++ {
		if confidences != nil && (i >= len(confidences) || confidences[i] < minConf) {
			continue
		}
		if !points[i].finite() {
			continue
		}
		m[KeypointNames[i]] = points[i]
	}
	return Frame{points: m}
}

// Lookup resolves a joint for the given side. The side-qualified key is tried
// first, then the bare joint name.
func (f Frame) Lookup(side Side, joint Joint) (Point, bool) {
	if p, ok := f.points[Name(side, joint)]; ok {
		return p, true
	}
	p, ok := f.points[string(joint)]
	return p, ok
}

// Get returns the landmark stored under an exact key.
func (f Frame) Get(key string) (Point, bool) {
	p, ok := f.points[key]
	return p, ok
}

// Len returns the number of landmarks in the frame.
func (f Frame) Len() int {
	return len(f.points)
}

// Empty reports whether the frame carries no landmarks.
func (f Frame) Empty() bool {
	return len(f.points) == 0
}

// Points returns a copy of the landmark map.
func (f Frame) Points() map[string]Point {
	out := make(map[string]Point, len(f.points))
	for k, v := range f.points {
		out[k] = v
	}
	return out
}

// InsideBounds reports whether every landmark sits at least margin away from
// the edges of a width x height image. An empty frame is never inside bounds.
func (f Frame) InsideBounds(width, height, margin float64) bool {
	if f.Empty() {
		return false
	}
	for _, p := range f.points {
		if p.X < margin || p.Y < margin || p.X > width-margin || p.Y > height-margin {
			return false
		}
	}
	return true
}
