package detector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/ayusman/squatcoach/internal/exercise"
	"github.com/ayusman/squatcoach/internal/pose"
)

func kneeAngle(t *testing.T, f pose.Frame) float64 {
	t.Helper()
	hip, ok1 := f.Lookup(pose.Left, pose.Hip)
	knee, ok2 := f.Lookup(pose.Left, pose.Knee)
	ankle, ok3 := f.Lookup(pose.Left, pose.Ankle)
	if !ok1 || !ok2 || !ok3 {
		t.Fatal("fixture is missing leg landmarks")
	}
	return exercise.Angle(hip, knee, ankle)
}

func TestPoseWithKneeAngle(t *testing.T) {
	for _, deg := range []float64{60, 70, 90, 120, 160, 178} {
		got := kneeAngle(t, PoseWithKneeAngle(deg))
		if math.Abs(got-deg) > 1e-6 {
			t.Errorf("PoseWithKneeAngle(%v) has knee angle %v", deg, got)
		}
	}
}

func TestFixturesInsideFrame(t *testing.T) {
	fixtures := map[string]pose.Frame{
		"standing": StandingPose(),
		"bottom":   SquatBottomPose(),
	}
	for name, f := range fixtures {
		if !f.InsideBounds(640, 480, 25) {
			t.Errorf("%s fixture leaves the 640x480 frame", name)
		}
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("returns nothing by default", func(t *testing.T) {
		mock := NewMockDetector()

		det, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if det.Found {
			t.Error("expected no person by default")
		}
	})

	t.Run("returns configured frame", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetFrame(StandingPose())

		for i := 0; i < 3; i++ {
			det, err := mock.Detect(nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !det.Found {
				t.Fatal("expected a person")
			}
		}
		if mock.Calls() != 3 {
			t.Errorf("expected 3 calls, got %d", mock.Calls())
		}
	})

	t.Run("queued frames come first", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetFrame(StandingPose())
		mock.Queue(SquatBottomPose(), pose.Frame{})

		first, _ := mock.Detect(nil)
		second, _ := mock.Detect(nil)
		third, _ := mock.Detect(nil)

		if a := kneeAngle(t, first.Frame); math.Abs(a-60) > 1e-6 {
			t.Errorf("expected squat bottom first, got angle %v", a)
		}
		if second.Found {
			t.Error("expected the empty frame to report no person")
		}
		if a := kneeAngle(t, third.Frame); math.Abs(a-178) > 1e-6 {
			t.Errorf("expected standing pose after queue, got angle %v", a)
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		det, err := mock.Detect(nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if det.Found {
			t.Error("expected no person when error is set")
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*YOLODetector)(nil)
	})
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	data := []byte{0xff, 0xd8, 0x01, 0x02}

	if err := writeFrame(&buf, data); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	out := buf.Bytes()
	if got := binary.BigEndian.Uint32(out[:4]); got != uint32(len(data)) {
		t.Errorf("expected length prefix %d, got %d", len(data), got)
	}
	if !bytes.Equal(out[4:], data) {
		t.Errorf("payload mismatch: %v", out[4:])
	}
}

func keypointsJSON(offset float64) string {
	parts := make([]string, pose.NumKeypoints)
	for i := range parts {
		parts[i] = fmt.Sprintf("[%g,100]", offset+float64(i))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func confidencesJSON(value float64, lowIndex int) string {
	parts := make([]string, pose.NumKeypoints)
	for i := range parts {
		if i == lowIndex {
			parts[i] = "0.1"
		} else if value >= 0.9 {
			parts[i] = "0.9"
		} else {
			parts[i] = "0.5"
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestReadDetection(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantFound bool
		wantScore float64
		wantErr   bool
		check     func(t *testing.T, det Detection)
	}{
		{
			name:      "no people",
			line:      `{"people":[]}`,
			wantFound: false,
		},
		{
			name:      "picks the most confident person",
			line:      `{"people":[{"keypoints":` + keypointsJSON(100) + `,"confidences":` + confidencesJSON(0.5, -1) + `},{"keypoints":` + keypointsJSON(200) + `,"confidences":` + confidencesJSON(0.9, -1) + `}]}`,
			wantFound: true,
			wantScore: 0.9,
			check: func(t *testing.T, det Detection) {
				nose, ok := det.Frame.Get("nose")
				if !ok || nose.X != 200 {
					t.Errorf("expected second person's nose at x=200, got %v (ok=%v)", nose, ok)
				}
			},
		},
		{
			name:      "drops low confidence keypoints",
			line:      `{"people":[{"keypoints":` + keypointsJSON(100) + `,"confidences":` + confidencesJSON(0.9, 13) + `}]}`,
			wantFound: true,
			check: func(t *testing.T, det Detection) {
				if _, ok := det.Frame.Get("left_knee"); ok {
					t.Error("expected low confidence left_knee to be omitted")
				}
				if det.Frame.Len() != pose.NumKeypoints-1 {
					t.Errorf("expected %d landmarks, got %d", pose.NumKeypoints-1, det.Frame.Len())
				}
			},
		},
		{
			name:      "missing confidences are trusted",
			line:      `{"people":[{"keypoints":` + keypointsJSON(100) + `}]}`,
			wantFound: true,
			wantScore: 1,
		},
		{
			name:    "service error",
			line:    `{"people":[],"error":"model not loaded"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			line:    `{"people":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.line + "\n"))

			det, err := readDetection(r, 0.25)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if det.Found != tt.wantFound {
				t.Errorf("expected Found=%v, got %v", tt.wantFound, det.Found)
			}
			if tt.wantScore != 0 && math.Abs(det.Score-tt.wantScore) > 1e-9 {
				t.Errorf("expected score %v, got %v", tt.wantScore, det.Score)
			}
			if tt.check != nil {
				tt.check(t, det)
			}
		})
	}
}

func TestReadDetection_EOF(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(""))
	if _, err := readDetection(r, 0.25); err == nil {
		t.Error("expected an error when the service closed its output")
	}
}

func TestNewYOLODetector_MissingScript(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, err := NewYOLODetector(DefaultConfig(), nil)
	if !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("expected ErrServiceNotFound, got %v", err)
	}
}
