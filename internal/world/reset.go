package world

import (
	"context"
	"fmt"
	"log/slog"
)

// Baseline world state after a reset.
const (
	baselineHour = 8
	baselineDay  = 1
)

// BaselineAgents are the citizens that survive a reset, restored to their
// starting position and needs.
func BaselineAgents() []Agent {
	needs := NeedsVector{Health: 100, Energy: 100, Hunger: 0, Social: 50}
	return []Agent{
		{Name: "Alice", X: 5, Y: 5, Symbol: "A", Needs: needs,
			Personality: Personality{
				Traits:   []string{"curious", "friendly"},
				Likes:    []string{"gardening", "conversation"},
				Dislikes: []string{"storms"},
			}},
		{Name: "Bob", X: 10, Y: 10, Symbol: "B", Needs: needs,
			Personality: Personality{
				Traits:   []string{"practical", "reserved"},
				Likes:    []string{"carpentry", "quiet mornings"},
				Dislikes: []string{"crowds"},
			}},
		{Name: "Carol", X: 15, Y: 15, Symbol: "C", Needs: needs,
			Personality: Personality{
				Traits:   []string{"energetic", "talkative"},
				Likes:    []string{"markets", "gossip"},
				Dislikes: []string{"being alone"},
			}},
	}
}

// ResetController restores the world to its canonical baseline.
type ResetController struct {
	store Store
	log   *slog.Logger
}

// NewResetController creates a reset controller.
func NewResetController(store Store, log *slog.Logger) *ResetController {
	if log == nil {
		log = slog.Default()
	}
	return &ResetController{store: store, log: log}
}

// Reset restores the baseline agent set, clears all events, and resets the
// world state. Deletions run before baseline writes so an interruption never
// leaves old events attached to restored agents. Safe to call repeatedly.
func (rc *ResetController) Reset(ctx context.Context) error {
	deleted, err := rc.store.DeleteAllEvents(ctx)
	if err != nil {
		return fmt.Errorf("reset: clear events: %w", err)
	}
	rc.log.Info("reset cleared events", "count", deleted)

	baseline := BaselineAgents()
	names := make([]string, len(baseline))
	for i, a := range baseline {
		names[i] = a.Name
	}
	if _, err := rc.store.DeleteAgentsExcept(ctx, names); err != nil {
		return fmt.Errorf("reset: remove spawned agents: %w", err)
	}

	for _, want := range baseline {
		existing, err := rc.store.GetAgentByName(ctx, want.Name)
		switch {
		case err == nil:
			existing.X = want.X
			existing.Y = want.Y
			existing.Needs = want.Needs
			existing.Memory = []MemoryEntry{}
			existing.Relationships = map[string]Relationship{}
			existing.CurrentAction = ""
			if err := rc.store.UpdateAgent(ctx, existing); err != nil {
				return fmt.Errorf("reset: restore %s: %w", want.Name, err)
			}
		case err == ErrNotFound:
			want.Memory = []MemoryEntry{}
			want.Relationships = map[string]Relationship{}
			if err := rc.store.InsertAgent(ctx, want); err != nil {
				return fmt.Errorf("reset: recreate %s: %w", want.Name, err)
			}
		default:
			return fmt.Errorf("reset: look up %s: %w", want.Name, err)
		}
	}

	ws, err := rc.store.WorldState(ctx)
	if err != nil {
		return fmt.Errorf("reset: fetch world state: %w", err)
	}
	ws.TimeOfDay = baselineHour
	ws.DayCount = baselineDay
	ws.Weather = WeatherClear
	ws.GlobalEvents = []string{}
	if err := rc.store.UpdateWorldState(ctx, ws); err != nil {
		return fmt.Errorf("reset: update world state: %w", err)
	}
	return nil
}
