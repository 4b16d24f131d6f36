// Package api provides HTTP API handlers for SquatCoach.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/squatcoach/internal/exercise"
	"github.com/ayusman/squatcoach/internal/store"
)

// ProfileHandler handles HTTP requests for counter profiles.
type ProfileHandler struct {
	store *store.Store
}

// NewProfileHandler creates a new ProfileHandler with the given store.
func NewProfileHandler(s *store.Store) *ProfileHandler {
	return &ProfileHandler{store: s}
}

// ServeHTTP routes /api/profiles, /api/profiles/{id} and
// /api/profiles/{id}/activate.
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/profiles")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if id, ok := strings.CutSuffix(path, "/activate"); ok {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.activate(w, r, id)
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type createProfileRequest struct {
	Name        string   `json:"name"`
	Side        string   `json:"side"`
	DownAngle   *float64 `json:"down_angle"`
	UpAngle     *float64 `json:"up_angle"`
	MinMovement *float64 `json:"min_movement"`
	Strategy    string   `json:"strategy"`
	TargetReps  *int     `json:"target_reps"`
}

// updateProfileRequest leaves fields that are absent unchanged.
type updateProfileRequest = createProfileRequest

type profileResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Side        string  `json:"side"`
	DownAngle   float64 `json:"down_angle"`
	UpAngle     float64 `json:"up_angle"`
	MinMovement float64 `json:"min_movement"`
	Strategy    string  `json:"strategy"`
	TargetReps  int     `json:"target_reps"`
	Active      bool    `json:"active"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type listProfilesResponse struct {
	Profiles []profileResponse `json:"profiles"`
}

func toResponse(p *store.Profile, activeID string) profileResponse {
	return profileResponse{
		ID:          p.ID,
		Name:        p.Name,
		Side:        p.Side,
		DownAngle:   p.DownAngle,
		UpAngle:     p.UpAngle,
		MinMovement: p.MinMovement,
		Strategy:    p.Strategy,
		TargetReps:  p.TargetReps,
		Active:      p.ID == activeID,
		CreatedAt:   p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   p.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// apply copies the fields present in req onto p.
func (req *createProfileRequest) apply(p *store.Profile) {
	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Side != "" {
		p.Side = req.Side
	}
	if req.DownAngle != nil {
		p.DownAngle = *req.DownAngle
	}
	if req.UpAngle != nil {
		p.UpAngle = *req.UpAngle
	}
	if req.MinMovement != nil {
		p.MinMovement = *req.MinMovement
	}
	if req.Strategy != "" {
		p.Strategy = req.Strategy
	}
	if req.TargetReps != nil {
		p.TargetReps = *req.TargetReps
	}
}

func (h *ProfileHandler) activeID() string {
	id, err := h.store.Settings().Get(store.SettingActiveProfile)
	if err != nil {
		return ""
	}
	return id
}

// list handles GET /api/profiles.
func (h *ProfileHandler) list(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.Profiles().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}

	active := h.activeID()
	response := listProfilesResponse{
		Profiles: make([]profileResponse, 0, len(profiles)),
	}
	for _, p := range profiles {
		response.Profiles = append(response.Profiles, toResponse(p, active))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/profiles/{id}.
func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	profile, err := h.store.Profiles().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get profile")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(profile, h.activeID()))
}

// create handles POST /api/profiles. Omitted fields take the counter defaults.
func (h *ProfileHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	def := exercise.DefaultConfig()
	profile := &store.Profile{
		ID:          uuid.New().String(),
		Side:        def.Side,
		DownAngle:   def.DownAngle,
		UpAngle:     def.UpAngle,
		MinMovement: def.MinMovement,
		Strategy:    def.Strategy,
		TargetReps:  20,
	}
	req.apply(profile)

	if err := profile.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Profiles().Create(profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Profile name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create profile")
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(profile, h.activeID()))
}

// update handles PUT /api/profiles/{id}.
func (h *ProfileHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	profile, err := h.store.Profiles().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get profile")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.apply(profile)

	if err := profile.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Profiles().Update(profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Profile name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(profile, h.activeID()))
}

// delete handles DELETE /api/profiles/{id}. The active profile cannot be
// deleted.
func (h *ProfileHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if id == h.activeID() {
		writeError(w, http.StatusConflict, "Cannot delete the active profile")
		return
	}

	err := h.store.Profiles().Delete(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete profile")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// activate handles POST /api/profiles/{id}/activate. The counter picks the
// profile up on the next start.
func (h *ProfileHandler) activate(w http.ResponseWriter, r *http.Request, id string) {
	profile, err := h.store.Profiles().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get profile")
		return
	}

	if err := h.store.Settings().Set(store.SettingActiveProfile, profile.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to activate profile")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(profile, profile.ID))
}
