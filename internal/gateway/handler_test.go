package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/vaultdrive/client-go/clients/driveapi"
	"github.com/vaultdrive/client-go/internal/guest"
	"github.com/vaultdrive/client-go/internal/identity"
	"github.com/vaultdrive/client-go/internal/snapshot"
)

// stubAPI is a scriptable drive API for gateway tests.
type stubAPI struct {
	mu    sync.Mutex
	token string

	create    *driveapi.AuthResponse
	createErr error
	extend    *driveapi.ExtendResponse
	extendErr error
}

func (s *stubAPI) GuestStatus(ctx context.Context) (*driveapi.GuestStatusResponse, error) {
	return &driveapi.GuestStatusResponse{}, nil
}

func (s *stubAPI) ExtendGuestSession(ctx context.Context) (*driveapi.ExtendResponse, error) {
	return s.extend, s.extendErr
}

func (s *stubAPI) ResumeGuestSession(ctx context.Context, sessionID string) (*driveapi.AuthResponse, error) {
	return nil, &driveapi.APIError{Status: 404, Code: driveapi.CodeGuestSessionNotFound, Message: "not found"}
}

func (s *stubAPI) CreateGuestSession(ctx context.Context, priorSessionID string) (*driveapi.AuthResponse, error) {
	return s.create, s.createErr
}

func (s *stubAPI) ConvertGuestToUser(ctx context.Context, req driveapi.ConvertRequest) (*driveapi.ConvertResponse, error) {
	return &driveapi.ConvertResponse{Token: "full-token", User: driveapi.User{ID: "u-1", IsGuest: false}}, nil
}

func (s *stubAPI) Logout(ctx context.Context) error { return nil }

func (s *stubAPI) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func newTestGateway(t *testing.T, api *stubAPI) (*httptest.Server, *guest.Controller, *ConnectionManager) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctrl := guest.NewController(api, snapshot.NewMemStore(), identity.NewBus(), guest.Config{}, guest.WithClock(clock))
	t.Cleanup(ctrl.Close)

	cm := NewConnectionManager(DefaultConnectionConfig())
	mux := http.NewServeMux()
	NewHandler(ctrl, cm).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, ctrl, cm
}

func guestAuth(now time.Time) *driveapi.AuthResponse {
	return &driveapi.AuthResponse{
		Token: "guest-token",
		User:  driveapi.User{ID: "u-guest", Name: "Guest", IsGuest: true},
		Session: &driveapi.GuestSession{
			SessionID:     "sess-1",
			CreatedAt:     now,
			ExpiresAt:     now.Add(20 * time.Minute),
			MaxExtensions: 2,
			RemainingMs:   (20 * time.Minute).Milliseconds(),
			IsValid:       true,
		},
	}
}

func TestStateEndpointInactive(t *testing.T) {
	srv, _, _ := newTestGateway(t, &stubAPI{})

	resp, err := http.Get(srv.URL + "/guest/state")
	if err != nil {
		t.Fatalf("GET /guest/state: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var ev guest.Event
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != guest.EventState {
		t.Fatalf("type = %q, want %q", ev.Type, guest.EventState)
	}
}

func TestStartCreatesGuestSession(t *testing.T) {
	api := &stubAPI{}
	srv, ctrl, _ := newTestGateway(t, api)
	api.create = guestAuth(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	resp, err := http.Post(srv.URL+"/guest/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /guest/start: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ctrl.State().Phase != guest.PhaseActive {
		t.Fatalf("phase = %v, want active", ctrl.State().Phase)
	}

	var body struct {
		User struct {
			IsGuest bool `json:"isGuest"`
		} `json:"user"`
		State guest.Event `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.User.IsGuest {
		t.Fatal("started user not marked guest")
	}
	if body.State.SessionID != "sess-1" {
		t.Fatalf("state sessionId = %q, want sess-1", body.State.SessionID)
	}
}

func TestExtendWithoutSessionIsConflict(t *testing.T) {
	srv, _, _ := newTestGateway(t, &stubAPI{})

	resp, err := http.Post(srv.URL+"/guest/extend", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /guest/extend: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestResumeWithoutSnapshotIsNotFound(t *testing.T) {
	srv, _, _ := newTestGateway(t, &stubAPI{})

	resp, err := http.Post(srv.URL+"/guest/resume", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /guest/resume: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestConvertRequiresCredentials(t *testing.T) {
	srv, _, _ := newTestGateway(t, &stubAPI{})

	resp, err := http.Post(srv.URL+"/guest/convert", "application/json",
		bytes.NewReader([]byte(`{"name":"Ada"}`)))
	if err != nil {
		t.Fatalf("POST /guest/convert: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func dialSocket(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) guest.Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev guest.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestSocketSendsInitialStateSync(t *testing.T) {
	srv, _, cm := newTestGateway(t, &stubAPI{})
	ws := dialSocket(t, srv)

	ev := readEvent(t, ws)
	if ev.Type != guest.EventState {
		t.Fatalf("first message type = %q, want %q", ev.Type, guest.EventState)
	}

	for i := 0; i < 50 && cm.ConnectionCount() == 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if cm.ConnectionCount() != 1 {
		t.Fatalf("connection count = %d, want 1", cm.ConnectionCount())
	}
}

func TestBroadcastReachesAllSockets(t *testing.T) {
	srv, _, cm := newTestGateway(t, &stubAPI{})
	a := dialSocket(t, srv)
	b := dialSocket(t, srv)
	readEvent(t, a) // drain initial syncs
	readEvent(t, b)

	cm.Broadcast(guest.Event{Type: guest.EventTick, SessionID: "sess-1", RemainingMs: 5_000})

	for _, ws := range []*websocket.Conn{a, b} {
		ev := readEvent(t, ws)
		if ev.Type != guest.EventTick || ev.RemainingMs != 5_000 {
			t.Fatalf("broadcast event = %+v", ev)
		}
	}
}

func TestDisconnectedSocketIsUnregistered(t *testing.T) {
	srv, _, cm := newTestGateway(t, &stubAPI{})
	ws := dialSocket(t, srv)
	readEvent(t, ws)
	_ = ws.Close()

	for i := 0; i < 100 && cm.ConnectionCount() > 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if cm.ConnectionCount() != 0 {
		t.Fatalf("connection count = %d after close, want 0", cm.ConnectionCount())
	}
}
