package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/squatcoach/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func seedProfile(t *testing.T, s *store.Store, id, name string) *store.Profile {
	t.Helper()
	p := &store.Profile{
		ID:          id,
		Name:        name,
		Side:        "left",
		DownAngle:   70,
		UpAngle:     160,
		MinMovement: 5,
		Strategy:    "three-phase",
		TargetReps:  20,
	}
	if err := s.Profiles().Create(p); err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}
	return p
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case string:
		req = httptest.NewRequest(method, path, bytes.NewBufferString(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProfileHandler_List(t *testing.T) {
	s := newTestStore(t)
	handler := NewProfileHandler(s)
	seedProfile(t, s, "p1", "deep")
	seedProfile(t, s, "p2", "parallel")
	s.Settings().Set(store.SettingActiveProfile, "p2")

	rec := do(t, handler, http.MethodGet, "/api/profiles", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response listProfilesResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(response.Profiles))
	}
	if response.Profiles[0].Name != "deep" || response.Profiles[0].Active {
		t.Errorf("unexpected first profile: %+v", response.Profiles[0])
	}
	if !response.Profiles[1].Active {
		t.Error("expected parallel to be marked active")
	}
}

func TestProfileHandler_Create(t *testing.T) {
	s := newTestStore(t)
	handler := NewProfileHandler(s)

	down, up := 90.0, 150.0
	rec := do(t, handler, http.MethodPost, "/api/profiles", createProfileRequest{
		Name:      "parallel",
		Side:      "right",
		DownAngle: &down,
		UpAngle:   &up,
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var response profileResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.ID == "" {
		t.Error("expected non-empty ID in response")
	}
	if response.Side != "right" || response.DownAngle != 90 || response.UpAngle != 150 {
		t.Errorf("unexpected profile: %+v", response)
	}
	if response.MinMovement != 5 || response.Strategy != "three-phase" || response.TargetReps != 20 {
		t.Errorf("expected defaults for omitted fields, got %+v", response)
	}

	created, err := s.Profiles().GetByID(response.ID)
	if err != nil {
		t.Fatalf("failed to get created profile: %v", err)
	}
	if created.Name != "parallel" {
		t.Errorf("stored profile name mismatch: got %q", created.Name)
	}
}

func TestProfileHandler_Create_Invalid(t *testing.T) {
	s := newTestStore(t)
	handler := NewProfileHandler(s)
	seedProfile(t, s, "p1", "deep")

	down := 170.0
	tests := []struct {
		name string
		body any
		want int
	}{
		{"invalid json", "invalid json", http.StatusBadRequest},
		{"missing name", createProfileRequest{Side: "left"}, http.StatusBadRequest},
		{"bad side", createProfileRequest{Name: "x", Side: "middle"}, http.StatusBadRequest},
		{"inverted thresholds", createProfileRequest{Name: "x", DownAngle: &down}, http.StatusBadRequest},
		{"unknown strategy", createProfileRequest{Name: "x", Strategy: "bounce"}, http.StatusBadRequest},
		{"duplicate name", createProfileRequest{Name: "deep"}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, handler, http.MethodPost, "/api/profiles", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestProfileHandler_Get(t *testing.T) {
	s := newTestStore(t)
	handler := NewProfileHandler(s)
	seedProfile(t, s, "p1", "deep")

	rec := do(t, handler, http.MethodGet, "/api/profiles/p1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response profileResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Name != "deep" {
		t.Errorf("expected name 'deep', got %q", response.Name)
	}

	if rec := do(t, handler, http.MethodGet, "/api/profiles/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestProfileHandler_Update(t *testing.T) {
	s := newTestStore(t)
	handler := NewProfileHandler(s)
	seedProfile(t, s, "p1", "deep")

	target := 30
	rec := do(t, handler, http.MethodPut, "/api/profiles/p1", updateProfileRequest{
		Strategy:   "two-phase",
		TargetReps: &target,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	updated, _ := s.Profiles().GetByID("p1")
	if updated.Strategy != "two-phase" || updated.TargetReps != 30 {
		t.Errorf("update not persisted: %+v", updated)
	}
	if updated.Name != "deep" || updated.UpAngle != 160 {
		t.Errorf("absent fields should be unchanged: %+v", updated)
	}

	up := 50.0
	if rec := do(t, handler, http.MethodPut, "/api/profiles/p1", updateProfileRequest{UpAngle: &up}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for inverted thresholds, got %d", http.StatusBadRequest, rec.Code)
	}
	if rec := do(t, handler, http.MethodPut, "/api/profiles/missing", updateProfileRequest{}); rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestProfileHandler_DeleteAndActivate(t *testing.T) {
	s := newTestStore(t)
	handler := NewProfileHandler(s)
	seedProfile(t, s, "p1", "deep")
	seedProfile(t, s, "p2", "parallel")

	rec := do(t, handler, http.MethodPost, "/api/profiles/p1/activate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if id, _ := s.Settings().Get(store.SettingActiveProfile); id != "p1" {
		t.Errorf("active profile = %q, want p1", id)
	}

	if rec := do(t, handler, http.MethodDelete, "/api/profiles/p1", nil); rec.Code != http.StatusConflict {
		t.Errorf("expected status %d deleting the active profile, got %d", http.StatusConflict, rec.Code)
	}

	if rec := do(t, handler, http.MethodDelete, "/api/profiles/p2", nil); rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if rec := do(t, handler, http.MethodGet, "/api/profiles/p2", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d after delete, got %d", http.StatusNotFound, rec.Code)
	}
	if rec := do(t, handler, http.MethodDelete, "/api/profiles/p2", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if rec := do(t, handler, http.MethodPost, "/api/profiles/missing/activate", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestProfileHandler_MethodNotAllowed(t *testing.T) {
	s := newTestStore(t)
	handler := NewProfileHandler(s)

	tests := []struct {
		method, path string
	}{
		{http.MethodPatch, "/api/profiles"},
		{http.MethodPost, "/api/profiles/p1"},
		{http.MethodGet, "/api/profiles/p1/activate"},
	}
	for _, tt := range tests {
		if rec := do(t, handler, tt.method, tt.path, nil); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, http.StatusMethodNotAllowed, rec.Code)
		}
	}
}
