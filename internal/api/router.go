package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	mw "github.com/npc-town/server/internal/middleware"
	"github.com/npc-town/server/internal/store"
	"github.com/npc-town/server/internal/validation"
	"github.com/npc-town/server/internal/world"
)

// Subscriber provides a feed of store change notifications.
type Subscriber interface {
	Subscribe() (<-chan store.Change, func())
}

// Config tunes the HTTP layer.
type Config struct {
	JWTSecret          string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Server handles HTTP requests.
type Server struct {
	router      chi.Router
	store       world.Store
	changes     Subscriber
	clock       *world.Clock
	engine      *world.Engine
	rateLimiter *mw.RateLimiter
	upgrader    websocket.Upgrader
	log         *slog.Logger
}

// NewServer creates a new API server.
func NewServer(st world.Store, changes Subscriber, clock *world.Clock, engine *world.Engine, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		router:      chi.NewRouter(),
		store:       st,
		changes:     changes,
		clock:       clock,
		engine:      engine,
		rateLimiter: mw.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}

	s.setupRoutes(cfg.JWTSecret)
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(jwtSecret string) {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(mw.SecurityHeadersMiddleware)
	s.router.Use(mw.MaxBodySizeMiddleware(1024 * 1024)) // 1MB max

	s.router.Post("/api/world/tick", s.triggerTick)
	s.router.Get("/api/world", s.getWorld)
	s.router.Get("/api/agents", s.listAgents)
	s.router.Post("/api/agents", s.spawnAgent)
	s.router.Get("/api/agents/{id}", s.getAgent)
	s.router.Post("/api/agents/{id}/decision", s.applyVisitorDecision)
	s.router.Get("/api/events", s.listEvents)
	s.router.Get("/api/locations", s.listLocations)
	s.router.Get("/api/ws", s.streamChanges)

	// Admin endpoints (auth required).
	s.router.Group(func(r chi.Router) {
		r.Use(mw.NewAuthMiddleware(jwtSecret))
		r.Post("/api/admin/reset", s.scheduleReset)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response wraps API responses.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response (sanitized).
func writeError(w http.ResponseWriter, status int, message string) {
	if status >= 500 {
		message = "Internal server error"
	}
	writeJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}

// triggerTick advances the world by one tick. A trigger that arrives while a
// tick is still running gets a 409 and changes nothing.
func (s *Server) triggerTick(w http.ResponseWriter, r *http.Request) {
	result, err := s.clock.Tick(r.Context())
	if err != nil {
		if errors.Is(err, world.ErrTickInProgress) {
			writeError(w, http.StatusConflict, "Tick already in progress")
			return
		}
		s.log.Error("tick failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Tick failed")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// getWorld returns the current world state.
func (s *Server) getWorld(w http.ResponseWriter, r *http.Request) {
	ws, err := s.store.WorldState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load world state")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    ws,
	})
}

// listAgents returns every agent.
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list agents")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    agents,
	})
}

// getAgent returns one agent by ID.
func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	if err := validation.ValidateAgentID(agentID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid agent ID")
		return
	}

	agent, err := s.store.GetAgent(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, world.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load agent")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    agent,
	})
}

// spawnAgent creates a new citizen at the given position.
func (s *Server) spawnAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string            `json:"name"`
		X           int               `json:"x"`
		Y           int               `json:"y"`
		Symbol      string            `json:"symbol"`
		Personality world.Personality `json:"personality"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validation.ValidateAgentName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.GetAgentByName(r.Context(), req.Name); err == nil {
		writeError(w, http.StatusConflict, "An agent with that name already exists")
		return
	}

	agent := world.Agent{
		ID:          uuid.New().String(),
		Name:        req.Name,
		X:           clampCoord(req.X, s.engine.WorldSize),
		Y:           clampCoord(req.Y, s.engine.WorldSize),
		Symbol:      req.Symbol,
		Personality: req.Personality,
		Needs:       world.NeedsVector{Health: 100, Energy: 100, Hunger: 0, Social: 50},
	}
	world.CoerceAgent(&agent)

	if err := s.store.InsertAgent(r.Context(), agent); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create agent")
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    agent,
	})
}

// applyVisitorDecision applies a human-supplied decision to one agent through
// the normal transition rules. Malformed actions degrade to a wasted turn, so
// this endpoint only rejects bodies that fail to parse or validate.
func (s *Server) applyVisitorDecision(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	if err := validation.ValidateAgentID(agentID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid agent ID")
		return
	}

	var decision world.Decision
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if decision.Action == "" {
		writeError(w, http.StatusBadRequest, "Missing action")
		return
	}
	for _, text := range []string{decision.Description, decision.Dialogue, decision.Thought} {
		if err := validation.ValidateDescription(text); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	agent, err := s.store.GetAgent(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, world.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load agent")
		return
	}
	world.CoerceAgent(&agent)

	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list agents")
		return
	}

	event := s.engine.ApplyVisitor(&agent, decision, world.SnapshotResolver(agents))

	if err := s.store.UpdateAgent(r.Context(), agent); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update agent")
		return
	}
	event, err = s.store.InsertEvent(r.Context(), event)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record event")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]any{
			"agent": agent,
			"event": event,
		},
	})
}

// listEvents returns recent events, optionally filtered to one agent.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		if err := validation.ValidateLimit(n); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		limit = n
	}

	var (
		events []world.Event
		err    error
	)
	if agentID := r.URL.Query().Get("agent"); agentID != "" {
		if err := validation.ValidateAgentID(agentID); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid agent ID")
			return
		}
		events, err = s.store.AgentEvents(r.Context(), agentID, limit)
	} else {
		events, err = s.store.ListEvents(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    events,
	})
}

// listLocations returns the static town locations.
func (s *Server) listLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.store.ListLocations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list locations")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    locations,
	})
}

// scheduleReset sets the stored reset flag. The reset itself runs at the next
// tick so it goes through the same single-flight gate as everything else.
func (s *Server) scheduleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SetResetFlag(r.Context(), true); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to schedule reset")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    "World reset scheduled for next tick",
	})
}

// streamChanges upgrades to a websocket and forwards store change
// notifications until the client goes away.
func (s *Server) streamChanges(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	changes, cancel := s.changes.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := conn.WriteJSON(change); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func clampCoord(v, size int) int {
	if v < 0 {
		return 0
	}
	if v >= size {
		return size - 1
	}
	return v
}
