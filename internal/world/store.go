package world

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store is the keyed record store the simulation core runs against.
// The engine depends only on these verbs, never on a storage technology.
type Store interface {
	// World state (exactly one record).
	WorldState(ctx context.Context) (WorldState, error)
	UpdateWorldState(ctx context.Context, ws WorldState) error

	// Agents.
	ListAgents(ctx context.Context) ([]Agent, error)
	GetAgent(ctx context.Context, id string) (Agent, error)
	GetAgentByName(ctx context.Context, name string) (Agent, error)
	InsertAgent(ctx context.Context, a Agent) error
	UpdateAgent(ctx context.Context, a Agent) error
	DeleteAgentsExcept(ctx context.Context, names []string) (int, error)

	// Locations are read-only to the engine.
	ListLocations(ctx context.Context) ([]Location, error)

	// Event history (append-only outside of reset).
	InsertEvent(ctx context.Context, e Event) (Event, error)
	ListEvents(ctx context.Context, limit int) ([]Event, error)
	AgentEvents(ctx context.Context, agentID string, limit int) ([]Event, error)
	DeleteAllEvents(ctx context.Context) (int, error)

	// Administrative reset flag, owned by the store so the trigger can
	// arrive from outside the process.
	ResetRequested(ctx context.Context) (bool, error)
	SetResetFlag(ctx context.Context, requested bool) error
}
