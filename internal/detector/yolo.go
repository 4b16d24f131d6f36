package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/pose"
)

// ErrServiceNotFound is returned when the pose service script cannot be located.
var ErrServiceNotFound = errors.New("pose_service.py not found")

const serviceScript = "pose_service.py"

// YOLODetector implements Detector using a Python Ultralytics subprocess.
//
// Frames are written to the process as a 4-byte big-endian length followed
// by JPEG bytes; the process answers with one JSON line per frame.
type YOLODetector struct {
	config    Config
	script    string
	logger    *zap.Logger
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	stderr    *zapio.Writer
	mu        sync.Mutex
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer
}

// NewYOLODetector creates a new YOLO pose detector.
// The Python process is started lazily on first detection.
func NewYOLODetector(config Config, logger *zap.Logger) (*YOLODetector, error) {
	script := config.Script
	if script == "" {
		script = findServiceScript()
	}
	if script == "" {
		return nil, ErrServiceNotFound
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &YOLODetector{
		config: config,
		script: script,
		logger: logger.Named("detector"),
	}, nil
}

// Detect analyzes a frame and returns the most confident person.
func (d *YOLODetector) Detect(frame *gocv.Mat) (Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return Detection{}, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return Detection{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	if err := writeFrame(d.stdin, buf.GetBytes()); err != nil {
		d.abort()
		return Detection{}, err
	}

	det, err := readDetection(d.stdout, d.config.MinConfidence)
	if err != nil {
		d.abort()
		return Detection{}, err
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return det, nil
}

// Close shuts down the Python process.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *YOLODetector) ensureStarted() error {
	if d.started {
		return nil
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	args := []string{d.script, "--model", d.config.Model, "--conf", fmt.Sprintf("%g", d.config.MinConfidence)}
	if d.config.Device != "" {
		args = append(args, "--device", d.config.Device)
	}
	d.cmd = exec.Command(pythonPath, args...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.stderr = &zapio.Writer{Log: d.logger, Level: zap.WarnLevel}
	d.cmd.Stderr = d.stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	d.logger.Info("pose service started",
		zap.String("script", d.script),
		zap.String("model", d.config.Model),
		zap.Int("pid", d.cmd.Process.Pid))

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

// abort kills a process whose stream is out of sync so the next call restarts it.
func (d *YOLODetector) abort() {
	if d.started && d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.shutdown()
}

func (d *YOLODetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	if d.stderr != nil {
		d.stderr.Close()
	}
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.stderr = nil

	d.logger.Info("pose service stopped")
	return err
}

func (d *YOLODetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if time.Since(d.lastUsed) < d.config.IdleTimeout {
			return
		}
		if err := d.shutdown(); err != nil {
			d.logger.Debug("idle shutdown", zap.Error(err))
		}
	})
}

// writeFrame sends one length-prefixed frame.
func writeFrame(w io.Writer, data []byte) error {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// jsonPerson is one pose instance reported by the service.
type jsonPerson struct {
	Keypoints   [][2]float64 `json:"keypoints"`
	Confidences []float64    `json:"confidences"`
}

type jsonResponse struct {
	People []jsonPerson `json:"people"`
	Error  string       `json:"error,omitempty"`
}

// readDetection reads one JSON response line and selects the best person.
func readDetection(r *bufio.Reader, minConf float64) (Detection, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return Detection{}, fmt.Errorf("read response: %w", err)
	}

	var response jsonResponse
	if err := json.Unmarshal(line, &response); err != nil {
		return Detection{}, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return Detection{}, fmt.Errorf("pose service: %s", response.Error)
	}

	return bestPerson(response.People, minConf), nil
}

// bestPerson picks the person with the highest mean keypoint confidence.
// Ties keep the earlier person.
func bestPerson(people []jsonPerson, minConf float64) Detection {
	best := -1
	bestScore := 0.0
	for i, p := range people {
		if len(p.Keypoints) == 0 {
			continue
		}
		score := p.meanConfidence()
		if best < 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return Detection{}
	}
	return Detection{
		Frame: people[best].toFrame(minConf),
		Score: bestScore,
		Found: true,
	}
}

// meanConfidence treats a missing confidence list as fully confident.
func (p jsonPerson) meanConfidence() float64 {
	if len(p.Confidences) == 0 {
		return 1
	}
	sum := 0.0
	for _, c := range p.Confidences {
		sum += c
	}
	return sum / float64(len(p.Confidences))
}

func (p jsonPerson) toFrame(minConf float64) pose.Frame {
	points := make([]pose.Point, len(p.Keypoints))
	for i, kp := range p.Keypoints {
		points[i] = pose.Point{X: kp[0], Y: kp[1]}
	}
	var conf []float64
	if len(p.Confidences) > 0 {
		conf = p.Confidences
	}
	return pose.FromKeypoints(points, conf, minConf)
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".squatcoach", "scripts", serviceScript),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment
// next to the working directory, the executable or the user's data dir.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".squatcoach/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
