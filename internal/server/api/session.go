package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/squatcoach/internal/app"
)

// Session is the workout control surface exposed over HTTP.
type Session interface {
	Status() app.Status
	BeginWorkout() error
	ResetWorkout()
	SetPaused(paused bool)
}

// SessionHandler serves GET /api/session and POST /api/session/{action}.
type SessionHandler struct {
	session Session
}

// NewSessionHandler creates a SessionHandler for s.
func NewSessionHandler(s Session) *SessionHandler {
	return &SessionHandler{session: s}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/session"), "/")

	if action == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.session.Status())
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "start":
		if err := h.session.BeginWorkout(); err != nil {
			if errors.Is(err, app.ErrWorkoutCompleted) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to start workout")
			return
		}
	case "reset":
		h.session.ResetWorkout()
	case "pause":
		h.session.SetPaused(true)
	case "resume":
		h.session.SetPaused(false)
	default:
		writeError(w, http.StatusNotFound, "Unknown session action")
		return
	}

	writeJSON(w, http.StatusOK, h.session.Status())
}
