// Package main provides a desktop notification hook.
// It posts notifications via osascript on macOS and notify-send elsewhere.
//
// Build it next to its manifest:
//
//	go build -o ~/.squatcoach/hooks/desktop-notify/desktop-notify ./hooks/desktop-notify
//	cp hooks/desktop-notify/hook.json ~/.squatcoach/hooks/desktop-notify/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/ayusman/squatcoach/internal/hook"
)

// Config is read from the manifest's config block.
type Config struct {
	Title string `json:"title"`
	// Every notifies on every n-th rep; 0 disables rep notifications.
	Every int `json:"every"`
}

func main() {
	var req hook.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(false, fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	cfg := Config{Title: "SquatCoach", Every: 5}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeResponse(false, fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	message, ok := messageFor(req, cfg)
	if !ok {
		writeResponse(true, "")
		return
	}

	if err := notify(cfg.Title, message); err != nil {
		writeResponse(false, fmt.Sprintf("notification failed: %v", err))
		return
	}
	writeResponse(true, "")
}

// messageFor returns the notification text for req, or false when the event
// should stay silent.
func messageFor(req hook.Request, cfg Config) (string, bool) {
	switch req.Event {
	case hook.EventWorkoutStarted:
		if req.TargetReps > 0 {
			return "Workout started. Goal: " + strconv.Itoa(req.TargetReps) + " squats.", true
		}
		return "Workout started.", true
	case hook.EventGoalReached:
		return fmt.Sprintf("Goal reached: %d squats. Well done!", req.RepCount), true
	case hook.EventRepCompleted:
		if cfg.Every <= 0 || req.RepCount%cfg.Every != 0 {
			return "", false
		}
		if req.TargetReps > 0 && req.RepCount >= req.TargetReps {
			// goal_reached covers the last rep.
			return "", false
		}
		if req.TargetReps > 0 {
			return fmt.Sprintf("%d of %d squats.", req.RepCount, req.TargetReps), true
		}
		return fmt.Sprintf("%d squats.", req.RepCount), true
	}
	return "", false
}

func notify(title, message string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		script := fmt.Sprintf("display notification %s with title %s", strconv.Quote(message), strconv.Quote(title))
		cmd = exec.Command("osascript", "-e", script)
	} else {
		cmd = exec.Command("notify-send", title, message)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeResponse writes the hook response to stdout.
func writeResponse(success bool, errMsg string) {
	json.NewEncoder(os.Stdout).Encode(hook.Response{
		Success: success,
		Error:   errMsg,
	})
}
