package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/npc-town/server/internal/store"
	"github.com/npc-town/server/internal/world"
)

const testSecret = "test-secret"

type fixedOracle struct {
	decision world.Decision
}

func (o fixedOracle) Decide(ctx context.Context, dc world.DecisionContext) world.Decision {
	return o.decision
}

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	for _, a := range world.BaselineAgents() {
		if err := st.InsertAgent(context.Background(), a); err != nil {
			t.Fatal(err)
		}
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := world.NewEngine(20, world.NewLedger(nil))
	reset := world.NewResetController(st, log)
	oracle := fixedOracle{decision: world.Decision{Action: world.ActionRest, Description: "rests"}}
	clock := world.NewClock(st, oracle, engine, reset, world.ClockConfig{Workers: 2, Seed: 1}, log)

	srv := NewServer(st, st, clock, engine, Config{
		JWTSecret:          testSecret,
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}, log)
	return srv, st
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// TestGetWorld tests the world state endpoint.
func TestGetWorld(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/api/world", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("success = false: %s", resp.Error)
	}
	data := resp.Data.(map[string]any)
	if data["time_of_day"].(float64) != 8 {
		t.Errorf("time_of_day = %v, want 8", data["time_of_day"])
	}
}

// TestTriggerTick tests a tick through the HTTP surface.
func TestTriggerTick(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/world/tick", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	ws, _ := st.WorldState(context.Background())
	if ws.TimeOfDay != 9 {
		t.Errorf("time of day = %d, want 9", ws.TimeOfDay)
	}
}

// TestListAgents tests the agent roster endpoint.
func TestListAgents(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/api/agents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	resp := decodeResponse(t, rec)
	agents := resp.Data.([]any)
	if len(agents) != 3 {
		t.Errorf("agents = %d, want 3", len(agents))
	}
}

// TestGetAgent tests single-agent lookup and its error paths.
func TestGetAgent(t *testing.T) {
	srv, st := newTestServer(t)
	alice, err := st.GetAgentByName(context.Background(), "Alice")
	if err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, srv, "GET", "/api/agents/"+alice.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, srv, "GET", "/api/agents/no-such-agent", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown agent status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, srv, "GET", "/api/agents/bad%20id%21", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed ID status = %d, want 400", rec.Code)
	}
}

// TestSpawnAgent tests citizen creation.
func TestSpawnAgent(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/agents", map[string]any{
		"name": "Dave",
		"x":    100,
		"y":    -3,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	dave, err := st.GetAgentByName(context.Background(), "Dave")
	if err != nil {
		t.Fatalf("spawned agent not stored: %v", err)
	}
	if dave.ID == "" {
		t.Error("expected a server-assigned ID")
	}
	if dave.X != 19 || dave.Y != 0 {
		t.Errorf("position = (%d,%d), want coordinates clamped to (19,0)", dave.X, dave.Y)
	}
	if dave.Needs != (world.NeedsVector{Health: 100, Energy: 100, Hunger: 0, Social: 50}) {
		t.Errorf("needs = %+v, want the starting vector", dave.Needs)
	}
}

// TestSpawnAgentRejects tests spawn validation.
func TestSpawnAgentRejects(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/agents", map[string]any{"name": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty name status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, "POST", "/api/agents", map[string]any{"name": "Alice"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate name status = %d, want 409", rec.Code)
	}
}

// TestVisitorDecision tests the visitor override endpoint.
func TestVisitorDecision(t *testing.T) {
	srv, st := newTestServer(t)
	alice, _ := st.GetAgentByName(context.Background(), "Alice")

	rec := doJSON(t, srv, "POST", "/api/agents/"+alice.ID+"/decision", world.Decision{
		Action:      world.ActionMove,
		Target:      "east",
		Description: "wanders toward the market",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	updated, _ := st.GetAgent(context.Background(), alice.ID)
	if updated.X != alice.X+1 {
		t.Errorf("x = %d, want %d", updated.X, alice.X+1)
	}
	if len(updated.Memory) != 1 || !updated.Memory[0].VisitorGuided {
		t.Error("expected a visitor-guided memory entry")
	}

	events, _ := st.AgentEvents(context.Background(), alice.ID, 10)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if guided, _ := events[0].Metadata["visitor_guided"].(bool); !guided {
		t.Error("expected visitor_guided event metadata")
	}
}

// TestVisitorDecisionUnknownAction tests that a nonsense action still wastes
// the turn gracefully instead of erroring.
func TestVisitorDecisionUnknownAction(t *testing.T) {
	srv, st := newTestServer(t)
	alice, _ := st.GetAgentByName(context.Background(), "Alice")

	rec := doJSON(t, srv, "POST", "/api/agents/"+alice.ID+"/decision", world.Decision{
		Action:      "levitate",
		Description: "attempts the impossible",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: unknown actions degrade, not fail", rec.Code)
	}

	updated, _ := st.GetAgent(context.Background(), alice.ID)
	if updated.X != alice.X || updated.Y != alice.Y {
		t.Error("unknown action should not move the agent")
	}
}

// TestVisitorDecisionRejects tests the endpoint's validation.
func TestVisitorDecisionRejects(t *testing.T) {
	srv, st := newTestServer(t)
	alice, _ := st.GetAgentByName(context.Background(), "Alice")

	rec := doJSON(t, srv, "POST", "/api/agents/"+alice.ID+"/decision", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing action status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, "POST", "/api/agents/no-such-agent/decision", world.Decision{
		Action:      world.ActionRest,
		Description: "rests",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown agent status = %d, want 404", rec.Code)
	}
}

// TestListEvents tests event listing and its filters.
func TestListEvents(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	alice, _ := st.GetAgentByName(ctx, "Alice")
	bob, _ := st.GetAgentByName(ctx, "Bob")
	for i := 0; i < 3; i++ {
		st.InsertEvent(ctx, world.Event{AgentID: alice.ID, Type: world.EventAction, Description: "alice acts"})
	}
	st.InsertEvent(ctx, world.Event{AgentID: bob.ID, Type: world.EventAction, Description: "bob acts"})

	rec := doJSON(t, srv, "GET", "/api/events", nil)
	resp := decodeResponse(t, rec)
	if got := len(resp.Data.([]any)); got != 4 {
		t.Errorf("all events = %d, want 4", got)
	}

	rec = doJSON(t, srv, "GET", "/api/events?agent="+alice.ID, nil)
	resp = decodeResponse(t, rec)
	if got := len(resp.Data.([]any)); got != 3 {
		t.Errorf("alice events = %d, want 3", got)
	}

	rec = doJSON(t, srv, "GET", "/api/events?limit=2", nil)
	resp = decodeResponse(t, rec)
	if got := len(resp.Data.([]any)); got != 2 {
		t.Errorf("limited events = %d, want 2", got)
	}

	rec = doJSON(t, srv, "GET", "/api/events?limit=9999", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized limit status = %d, want 400", rec.Code)
	}
}

// TestAdminResetRequiresToken tests the auth gate on the reset endpoint.
func TestAdminResetRequiresToken(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/admin/reset", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a token", rec.Code)
	}

	requested, _ := st.ResetRequested(context.Background())
	if requested {
		t.Error("reset flag must not be set by an unauthorized request")
	}
}

// TestAdminReset tests that an authorized reset request sets the flag and the
// next tick performs the reset.
func TestAdminReset(t *testing.T) {
	srv, st := newTestServer(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/api/admin/reset", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	requested, _ := st.ResetRequested(context.Background())
	if !requested {
		t.Fatal("expected the reset flag set")
	}

	rec = doJSON(t, srv, "POST", "/api/world/tick", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tick status = %d, want 200", rec.Code)
	}

	ws, _ := st.WorldState(context.Background())
	if ws.TimeOfDay != 8 || ws.DayCount != 1 {
		t.Errorf("world after reset tick = %+v, want hour 8, day 1", ws)
	}
}

// TestListLocations tests the static location endpoint.
func TestListLocations(t *testing.T) {
	srv, st := newTestServer(t)
	st.SetLocations([]world.Location{
		{ID: "l1", Name: "Market", Type: "shop", X: 10, Y: 5},
	})

	rec := doJSON(t, srv, "GET", "/api/locations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if got := len(resp.Data.([]any)); got != 1 {
		t.Errorf("locations = %d, want 1", got)
	}
}
