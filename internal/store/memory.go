package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/npc-town/server/internal/world"
)

// Memory is an in-memory world.Store used by tests and local experiments.
// It mirrors the SQLite store's behavior, including change notifications.
type Memory struct {
	mu        sync.RWMutex
	worldSt   world.WorldState
	agents    map[string]world.Agent
	locations []world.Location
	events    []world.Event
	resetFlag bool
	notifier  *notifier
}

// NewMemory creates an in-memory store seeded with a default world state.
func NewMemory() *Memory {
	return &Memory{
		worldSt: world.WorldState{
			ID:           uuid.New().String(),
			TimeOfDay:    8,
			DayCount:     1,
			Weather:      world.WeatherClear,
			GlobalEvents: []string{},
		},
		agents:   make(map[string]world.Agent),
		notifier: newNotifier(),
	}
}

// Subscribe registers a change notification subscriber.
func (m *Memory) Subscribe() (<-chan Change, func()) {
	return m.notifier.Subscribe()
}

// SetLocations replaces the static location set.
func (m *Memory) SetLocations(locations []world.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations = locations
}

// WorldState returns the singleton world record.
func (m *Memory) WorldState(ctx context.Context) (world.WorldState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.worldSt, nil
}

// UpdateWorldState writes the singleton world record.
func (m *Memory) UpdateWorldState(ctx context.Context, ws world.WorldState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws.ID == "" {
		ws.ID = m.worldSt.ID
	}
	m.worldSt = ws
	m.notifier.publish(Change{Table: "world_state", Op: "update", ID: ws.ID})
	return nil
}

// ListAgents returns every agent.
func (m *Memory) ListAgents(ctx context.Context) ([]world.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agents := make([]world.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

// GetAgent returns one agent by id.
func (m *Memory) GetAgent(ctx context.Context, id string) (world.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return world.Agent{}, world.ErrNotFound
	}
	return a, nil
}

// GetAgentByName returns one agent by display name.
func (m *Memory) GetAgentByName(ctx context.Context, name string) (world.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.agents {
		if strings.EqualFold(a.Name, name) {
			return a, nil
		}
	}
	return world.Agent{}, world.ErrNotFound
}

// InsertAgent inserts a new agent, assigning an id when missing.
func (m *Memory) InsertAgent(ctx context.Context, a world.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.agents[a.ID] = a
	m.notifier.publish(Change{Table: "agents", Op: "insert", ID: a.ID})
	return nil
}

// UpdateAgent writes an agent's mutable state.
func (m *Memory) UpdateAgent(ctx context.Context, a world.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.ID]; !ok {
		return world.ErrNotFound
	}
	m.agents[a.ID] = a
	m.notifier.publish(Change{Table: "agents", Op: "update", ID: a.ID})
	return nil
}

// DeleteAgentsExcept removes every agent whose name is not in keep.
func (m *Memory) DeleteAgentsExcept(ctx context.Context, keep []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make(map[string]bool, len(keep))
	for _, name := range keep {
		kept[strings.ToLower(name)] = true
	}
	deleted := 0
	for id, a := range m.agents {
		if !kept[strings.ToLower(a.Name)] {
			delete(m.agents, id)
			deleted++
		}
	}
	if deleted > 0 {
		m.notifier.publish(Change{Table: "agents", Op: "delete"})
	}
	return deleted, nil
}

// ListLocations returns the static town locations.
func (m *Memory) ListLocations(ctx context.Context) ([]world.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]world.Location(nil), m.locations...), nil
}

// InsertEvent appends one event.
func (m *Memory) InsertEvent(ctx context.Context, e world.Event) (world.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.events = append(m.events, e)
	m.notifier.publish(Change{Table: "events", Op: "insert", ID: e.ID})
	return e, nil
}

// ListEvents returns the most recent events, newest first.
func (m *Memory) ListEvents(ctx context.Context, limit int) ([]world.Event, error) {
	return m.filterEvents("", limit), nil
}

// AgentEvents returns the most recent events for one agent, newest first.
func (m *Memory) AgentEvents(ctx context.Context, agentID string, limit int) ([]world.Event, error) {
	return m.filterEvents(agentID, limit), nil
}

func (m *Memory) filterEvents(agentID string, limit int) []world.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var out []world.Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// DeleteAllEvents clears the event history.
func (m *Memory) DeleteAllEvents(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.events)
	m.events = nil
	if n > 0 {
		m.notifier.publish(Change{Table: "events", Op: "delete"})
	}
	return n, nil
}

// ResetRequested reads the stored reset flag.
func (m *Memory) ResetRequested(ctx context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resetFlag, nil
}

// SetResetFlag writes the stored reset flag.
func (m *Memory) SetResetFlag(ctx context.Context, requested bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetFlag = requested
	m.notifier.publish(Change{Table: "admin_controls", Op: "update", ID: "reset_game"})
	return nil
}
