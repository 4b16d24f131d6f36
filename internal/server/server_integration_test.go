package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/squatcoach/internal/app"
	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/exercise"
	"github.com/ayusman/squatcoach/internal/store"
)

func TestAPI_ProfileWorkflow(t *testing.T) {
	// Setup
	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	srv := New(Config{Store: s})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Create a profile
	createBody := `{"name": "deep", "side": "right", "down_angle": 80, "up_angle": 165}`
	resp, err := client.Post(ts.URL+"/api/profiles", "application/json", bytes.NewBufferString(createBody))
	if err != nil {
		t.Fatalf("POST /api/profiles error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID         string  `json:"id"`
		Name       string  `json:"name"`
		DownAngle  float64 `json:"down_angle"`
		TargetReps int     `json:"target_reps"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.Name != "deep" || created.DownAngle != 80 {
		t.Errorf("created = %+v", created)
	}
	if created.TargetReps != app.DefaultTargetReps {
		t.Errorf("target_reps = %d, want default %d", created.TargetReps, app.DefaultTargetReps)
	}

	// 2. A threshold pair out of order is rejected
	resp, _ = client.Post(ts.URL+"/api/profiles", "application/json",
		bytes.NewBufferString(`{"name": "broken", "down_angle": 170, "up_angle": 90}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST invalid status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	resp.Body.Close()

	// 3. Activate it
	resp, _ = client.Post(ts.URL+"/api/profiles/"+created.ID+"/activate", "application/json", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// 4. List profiles
	resp, _ = client.Get(ts.URL + "/api/profiles")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/profiles status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var listed struct {
		Profiles []struct {
			ID     string `json:"id"`
			Active bool   `json:"active"`
		} `json:"profiles"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Profiles) != 1 {
		t.Fatalf("len(profiles) = %d, want 1", len(listed.Profiles))
	}
	if !listed.Profiles[0].Active {
		t.Error("expected the profile to be active")
	}

	// 5. The active profile cannot be deleted
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/profiles/"+created.ID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("DELETE active status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	resp.Body.Close()

	// 6. Delete once another profile is active
	resp, _ = client.Post(ts.URL+"/api/profiles", "application/json", bytes.NewBufferString(`{"name": "shallow"}`))
	var other struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&other)
	resp.Body.Close()

	resp, _ = client.Post(ts.URL+"/api/profiles/"+other.ID+"/activate", "application/json", nil)
	resp.Body.Close()

	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	// 7. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/profiles/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}

func dialEvents(t *testing.T, ts *httptest.Server, hub *Hub) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the hub to register the client")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) app.Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg app.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil, nil)
	ts := httptest.NewServer(New(Config{Hub: hub}))
	defer ts.Close()

	conn := dialEvents(t, ts, hub)

	ev := exercise.Event{RepCount: 4, Angle: 171, State: exercise.StateUp, Phase: exercise.PhaseExtended, RepCompleted: true}
	hub.Publish(app.Message{Type: app.MessageRep, Event: &ev, Time: time.Now()})

	msg := readMessage(t, conn)
	if msg.Type != app.MessageRep {
		t.Errorf("Type = %q, want %q", msg.Type, app.MessageRep)
	}
	if msg.Event == nil || msg.Event.RepCount != 4 {
		t.Errorf("unexpected event: %+v", msg.Event)
	}

	hub.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close with the hub")
	}
	if hub.Clients() != 0 {
		t.Errorf("Clients() = %d after Close, want 0", hub.Clients())
	}
}

func TestServer_ShutdownClosesEventClients(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := New(Config{Hub: hub})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialEvents(t, ts, hub)

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the event client to be disconnected on shutdown")
	}
	if hub.Clients() != 0 {
		t.Errorf("Clients() = %d after Shutdown, want 0", hub.Clients())
	}
}

func TestAPI_SessionEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	hub := NewHub(nil, nil)
	a, err := app.New(app.DefaultConfig(), app.Deps{Detector: detector.NewMockDetector(), Publisher: hub})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	defer a.Close()

	ts := httptest.NewServer(New(Config{Session: a, Hub: hub}))
	defer ts.Close()

	conn := dialEvents(t, ts, hub)

	resp, err := ts.Client().Post(ts.URL+"/api/session/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/session/start error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	msg := readMessage(t, conn)
	if msg.Type != app.MessageStatus || msg.Status == nil {
		t.Fatalf("expected a status message, got %+v", msg)
	}
	if msg.Status.State != app.StateRunning {
		t.Errorf("State = %q, want %q", msg.Status.State, app.StateRunning)
	}

	resp, _ = ts.Client().Get(ts.URL + "/api/health")
	var health struct {
		Session string `json:"session"`
	}
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health.Session != string(app.StateRunning) {
		t.Errorf("health session = %q, want running", health.Session)
	}
}
