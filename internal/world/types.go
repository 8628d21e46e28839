package world

import (
	"encoding/json"
	"time"
)

// Weather values for the world state.
const (
	WeatherClear = "clear"
	WeatherRain  = "rain"
	WeatherFog   = "fog"
	WeatherStorm = "storm"
)

// Weathers lists every valid weather value.
var Weathers = []string{WeatherClear, WeatherRain, WeatherFog, WeatherStorm}

// Decision actions.
const (
	ActionMove     = "move"
	ActionInteract = "interact"
	ActionEnter    = "enter"
	ActionRest     = "rest"
	ActionSpeak    = "speak"
	ActionObserve  = "observe"
)

// Event types.
const (
	EventMovement    = "movement"
	EventInteraction = "interaction"
	EventDialogue    = "dialogue"
	EventAction      = "action"
	EventSystem      = "system"
)

// Bounds for agent state.
const (
	MemoryCapacity = 10
	NotesCapacity  = 5
)

// NeedsVector holds an agent's needs, each clamped to 0-100.
type NeedsVector struct {
	Health int `json:"health"`
	Energy int `json:"energy"`
	Hunger int `json:"hunger"`
	Social int `json:"social"`
}

// Clamp forces every component back into 0-100.
func (n *NeedsVector) Clamp() {
	n.Health = clamp(n.Health, 0, 100)
	n.Energy = clamp(n.Energy, 0, 100)
	n.Hunger = clamp(n.Hunger, 0, 100)
	n.Social = clamp(n.Social, 0, 100)
}

// Personality is fixed at agent creation and never mutated.
type Personality struct {
	Traits   []string `json:"traits"`
	Likes    []string `json:"likes"`
	Dislikes []string `json:"dislikes"`
}

// MemoryEntry is one remembered personal event.
type MemoryEntry struct {
	Event         string    `json:"event"`
	Thought       string    `json:"thought,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Importance    int       `json:"importance"`
	RelatedNPCs   []string  `json:"related_npcs,omitempty"`
	VisitorGuided bool      `json:"visitor_guided,omitempty"`
}

// Relationship is one agent's one-directional impression of another.
// Records are created lazily on first interaction and never deleted.
type Relationship struct {
	AgentID          string    `json:"npc_id"`
	AgentName        string    `json:"npc_name"`
	Familiarity      int       `json:"familiarity"`
	Affinity         int       `json:"affinity"`
	InteractionCount int       `json:"interaction_count"`
	LastInteraction  time.Time `json:"last_interaction"`
	Notes            []string  `json:"notes"`
}

// Agent is a simulated citizen. Mutated only through the application engine.
type Agent struct {
	ID            string                  `json:"id"`
	Name          string                  `json:"name"`
	X             int                     `json:"x"`
	Y             int                     `json:"y"`
	Symbol        string                  `json:"symbol,omitempty"`
	Personality   Personality             `json:"personality"`
	Needs         NeedsVector             `json:"stats"`
	Memory        []MemoryEntry           `json:"memory"`
	Relationships map[string]Relationship `json:"relationships"`
	CurrentAction string                  `json:"current_action,omitempty"`
	CreatedAt     time.Time               `json:"created_at,omitempty"`
	UpdatedAt     time.Time               `json:"updated_at,omitempty"`
}

// Relationship returns the agent's record of another agent, if any.
func (a *Agent) Relationship(otherID string) (Relationship, bool) {
	rel, ok := a.Relationships[otherID]
	return rel, ok
}

// WorldState is the singleton world record.
type WorldState struct {
	ID           string   `json:"id"`
	TimeOfDay    int      `json:"time_of_day"`
	DayCount     int      `json:"day_count"`
	Weather      string   `json:"weather"`
	GlobalEvents []string `json:"global_events"`
}

// Location is a static, externally authored place on the grid.
type Location struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Symbol string `json:"symbol,omitempty"`
}

// Point is a grid coordinate pair attached to events.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Event is one append-only entry in the world's history.
type Event struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"npc_id,omitempty"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Location    *Point         `json:"location,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Decision is a structured action directive from the oracle or a visitor.
// It is never persisted on its own, only embedded in event metadata.
type Decision struct {
	Action      string `json:"action"`
	Target      string `json:"target,omitempty"`
	Description string `json:"description"`
	Dialogue    string `json:"dialogue,omitempty"`
	Thought     string `json:"thought,omitempty"`
}

// Metadata returns the decision as an event metadata payload.
func (d Decision) Metadata() map[string]any {
	var m map[string]any
	raw, err := json.Marshal(d)
	if err != nil {
		return map[string]any{"action": d.Action}
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"action": d.Action}
	}
	return m
}

// CoerceAgent repairs an agent record loaded from a loosely-typed payload.
// Needs are clamped, nil collections are allocated, and over-capacity logs
// are trimmed so malformed storage never reaches the transition engine.
func CoerceAgent(a *Agent) {
	a.Needs.Clamp()
	if a.Memory == nil {
		a.Memory = []MemoryEntry{}
	}
	if len(a.Memory) > MemoryCapacity {
		a.Memory = a.Memory[len(a.Memory)-MemoryCapacity:]
	}
	if a.Relationships == nil {
		a.Relationships = map[string]Relationship{}
	}
	for id, rel := range a.Relationships {
		rel.Familiarity = clamp(rel.Familiarity, 0, 100)
		rel.Affinity = clamp(rel.Affinity, -100, 100)
		if len(rel.Notes) > NotesCapacity {
			rel.Notes = rel.Notes[len(rel.Notes)-NotesCapacity:]
		}
		a.Relationships[id] = rel
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
