package world

import (
	"fmt"
	"testing"
	"time"
)

func testEngine() *Engine {
	e := NewEngine(20, NewLedger(nil))
	e.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func testAgent() Agent {
	return Agent{
		ID:            "a1",
		Name:          "Alice",
		X:             5,
		Y:             5,
		Needs:         NeedsVector{Health: 80, Energy: 50, Hunger: 20, Social: 50},
		Memory:        []MemoryEntry{},
		Relationships: map[string]Relationship{},
	}
}

// TestApplyMove tests grid movement in each direction.
func TestApplyMove(t *testing.T) {
	cases := []struct {
		direction string
		wantX     int
		wantY     int
	}{
		{"north", 5, 4},
		{"south", 5, 6},
		{"east", 6, 5},
		{"west", 4, 5},
		{"northeast", 6, 4},
		{"southwest", 4, 6},
	}

	for _, tc := range cases {
		engine := testEngine()
		agent := testAgent()
		event := engine.Apply(&agent, Decision{Action: ActionMove, Target: tc.direction, Description: "walks"}, nil)

		if agent.X != tc.wantX || agent.Y != tc.wantY {
			t.Errorf("move %s: got (%d,%d), want (%d,%d)", tc.direction, agent.X, agent.Y, tc.wantX, tc.wantY)
		}
		if event.Type != EventMovement {
			t.Errorf("move %s: event type %q, want %q", tc.direction, event.Type, EventMovement)
		}
	}
}

// TestApplyMoveClampsToGrid tests that movement never leaves the grid.
func TestApplyMoveClampsToGrid(t *testing.T) {
	engine := testEngine()
	agent := testAgent()
	agent.X, agent.Y = 19, 19

	engine.Apply(&agent, Decision{Action: ActionMove, Target: "southeast", Description: "walks"}, nil)

	if agent.X != 19 || agent.Y != 19 {
		t.Errorf("expected corner agent to stay at (19,19), got (%d,%d)", agent.X, agent.Y)
	}

	agent.X, agent.Y = 0, 0
	engine.Apply(&agent, Decision{Action: ActionMove, Target: "northwest", Description: "walks"}, nil)

	if agent.X != 0 || agent.Y != 0 {
		t.Errorf("expected corner agent to stay at (0,0), got (%d,%d)", agent.X, agent.Y)
	}
}

// TestApplyMoveUnknownDirection tests that a bad target wastes the turn
// instead of failing.
func TestApplyMoveUnknownDirection(t *testing.T) {
	engine := testEngine()
	agent := testAgent()

	event := engine.Apply(&agent, Decision{Action: ActionMove, Target: "up and away", Description: "flails"}, nil)

	if agent.X != 5 || agent.Y != 5 {
		t.Errorf("expected no movement, got (%d,%d)", agent.X, agent.Y)
	}
	if event.Type != EventMovement {
		t.Errorf("event type %q, want %q", event.Type, EventMovement)
	}
	if agent.Needs.Energy != 45 {
		t.Errorf("expected energy cost even for a wasted move, got %d", agent.Needs.Energy)
	}
}

// TestApplyRest tests the rest needs transition.
func TestApplyRest(t *testing.T) {
	engine := testEngine()
	agent := testAgent()

	engine.Apply(&agent, Decision{Action: ActionRest, Description: "naps"}, nil)

	if agent.Needs.Energy != 65 {
		t.Errorf("energy = %d, want 65", agent.Needs.Energy)
	}
	if agent.Needs.Hunger != 22 {
		t.Errorf("hunger = %d, want 22", agent.Needs.Hunger)
	}
	if agent.Needs.Social != 49 {
		t.Errorf("social = %d, want 49", agent.Needs.Social)
	}
	if agent.Needs.Health != 81 {
		t.Errorf("health = %d, want 81", agent.Needs.Health)
	}
	if agent.CurrentAction != ActionRest {
		t.Errorf("current action = %q, want %q", agent.CurrentAction, ActionRest)
	}
}

// TestApplyNeedsClamped tests that needs never leave 0-100.
func TestApplyNeedsClamped(t *testing.T) {
	engine := testEngine()
	agent := testAgent()
	agent.Needs = NeedsVector{Health: 100, Energy: 100, Hunger: 99, Social: 0}

	engine.Apply(&agent, Decision{Action: ActionRest, Description: "naps"}, nil)

	if agent.Needs.Energy != 100 {
		t.Errorf("energy = %d, want clamp at 100", agent.Needs.Energy)
	}
	if agent.Needs.Hunger != 100 {
		t.Errorf("hunger = %d, want clamp at 100", agent.Needs.Hunger)
	}
	if agent.Needs.Social != 0 {
		t.Errorf("social = %d, want clamp at 0", agent.Needs.Social)
	}
}

// TestApplyExhaustionUsesPreTransitionNeeds tests that the health penalty
// reads energy and hunger before the transition mutates them.
func TestApplyExhaustionUsesPreTransitionNeeds(t *testing.T) {
	engine := testEngine()
	agent := testAgent()
	agent.Needs.Energy = 0

	// Rest raises energy to 15, but the agent entered the hour exhausted.
	engine.Apply(&agent, Decision{Action: ActionRest, Description: "collapses"}, nil)

	if agent.Needs.Health != 75 {
		t.Errorf("health = %d, want 75 (exhaustion penalty)", agent.Needs.Health)
	}
	if agent.Needs.Energy != 15 {
		t.Errorf("energy = %d, want 15", agent.Needs.Energy)
	}
}

// TestApplyStarvationPenalty tests the hunger branch of the health rule.
func TestApplyStarvationPenalty(t *testing.T) {
	engine := testEngine()
	agent := testAgent()
	agent.Needs.Hunger = 90

	engine.Apply(&agent, Decision{Action: ActionObserve, Description: "stares"}, nil)

	if agent.Needs.Health != 75 {
		t.Errorf("health = %d, want 75 (starvation penalty)", agent.Needs.Health)
	}
}

// TestApplySpeak tests dialogue event formatting and the social reward.
func TestApplySpeak(t *testing.T) {
	engine := testEngine()
	agent := testAgent()

	event := engine.Apply(&agent, Decision{
		Action:      ActionSpeak,
		Description: "Alice greets the morning crowd",
		Dialogue:    "Good morning, everyone!",
	}, nil)

	if event.Type != EventDialogue {
		t.Fatalf("event type %q, want %q", event.Type, EventDialogue)
	}
	want := `Alice: "Good morning, everyone!"`
	if event.Description != want {
		t.Errorf("description %q, want %q", event.Description, want)
	}
	if agent.Needs.Social != 60 {
		t.Errorf("social = %d, want 60", agent.Needs.Social)
	}
}

// TestApplySpeakWithoutDialogue tests that a speak decision with no dialogue
// falls back to a plain action event.
func TestApplySpeakWithoutDialogue(t *testing.T) {
	engine := testEngine()
	agent := testAgent()

	event := engine.Apply(&agent, Decision{Action: ActionSpeak, Description: "mutters to herself"}, nil)

	if event.Type != EventAction {
		t.Errorf("event type %q, want %q", event.Type, EventAction)
	}
	if event.Description != "mutters to herself" {
		t.Errorf("description %q, want decision description", event.Description)
	}
}

// TestApplyInteractUpdatesLedger tests that interacting with a resolvable
// target records a relationship.
func TestApplyInteractUpdatesLedger(t *testing.T) {
	engine := testEngine()
	agent := testAgent()
	bob := Agent{ID: "b1", Name: "Bob"}
	resolve := SnapshotResolver([]Agent{bob})

	event := engine.Apply(&agent, Decision{
		Action:      ActionInteract,
		Target:      "Bob",
		Description: "chats with Bob",
		Thought:     "I enjoy talking with Bob",
	}, resolve)

	if event.Type != EventInteraction {
		t.Fatalf("event type %q, want %q", event.Type, EventInteraction)
	}
	rel, ok := agent.Relationship("b1")
	if !ok {
		t.Fatal("expected a relationship record for Bob")
	}
	if rel.Familiarity != 5 {
		t.Errorf("familiarity = %d, want 5", rel.Familiarity)
	}
	if rel.Affinity != 5 {
		t.Errorf("affinity = %d, want 5 for a positive thought", rel.Affinity)
	}
	if rel.InteractionCount != 1 {
		t.Errorf("interaction count = %d, want 1", rel.InteractionCount)
	}
}

// TestApplyInteractUnresolvableTarget tests that an unknown target degrades
// to a no-op interaction.
func TestApplyInteractUnresolvableTarget(t *testing.T) {
	engine := testEngine()
	agent := testAgent()
	resolve := SnapshotResolver(nil)

	engine.Apply(&agent, Decision{Action: ActionInteract, Target: "Nobody", Description: "waves"}, resolve)

	if len(agent.Relationships) != 0 {
		t.Errorf("expected no relationship records, got %d", len(agent.Relationships))
	}
}

// TestApplyInteractSelfTarget tests that an agent cannot build a relationship
// with itself.
func TestApplyInteractSelfTarget(t *testing.T) {
	engine := testEngine()
	agent := testAgent()
	resolve := SnapshotResolver([]Agent{{ID: "a1", Name: "Alice"}})

	engine.Apply(&agent, Decision{Action: ActionInteract, Target: "Alice", Description: "talks to herself"}, resolve)

	if len(agent.Relationships) != 0 {
		t.Errorf("expected no self-relationship, got %d records", len(agent.Relationships))
	}
}

// TestMemoryTrim tests that the memory log keeps only the newest entries.
func TestMemoryTrim(t *testing.T) {
	engine := testEngine()
	agent := testAgent()

	for i := 1; i <= MemoryCapacity+1; i++ {
		engine.Apply(&agent, Decision{Action: ActionObserve, Description: fmt.Sprintf("observation %d", i)}, nil)
	}

	if len(agent.Memory) != MemoryCapacity {
		t.Fatalf("memory length = %d, want %d", len(agent.Memory), MemoryCapacity)
	}
	if agent.Memory[0].Event != "observation 2" {
		t.Errorf("oldest memory = %q, want the first entry dropped", agent.Memory[0].Event)
	}
	if agent.Memory[MemoryCapacity-1].Event != fmt.Sprintf("observation %d", MemoryCapacity+1) {
		t.Errorf("newest memory = %q, want the last applied decision", agent.Memory[MemoryCapacity-1].Event)
	}
}

// TestMemoryImportance tests the per-action importance scores.
func TestMemoryImportance(t *testing.T) {
	cases := []struct {
		action string
		want   int
	}{
		{ActionInteract, 8},
		{ActionSpeak, 7},
		{ActionMove, 5},
		{ActionRest, 5},
	}

	for _, tc := range cases {
		engine := testEngine()
		agent := testAgent()
		engine.Apply(&agent, Decision{Action: tc.action, Description: "does something"}, nil)
		if got := agent.Memory[0].Importance; got != tc.want {
			t.Errorf("%s: importance = %d, want %d", tc.action, got, tc.want)
		}
	}
}

// TestApplyVisitor tests that visitor-guided decisions are tagged in both
// the memory entry and the event metadata.
func TestApplyVisitor(t *testing.T) {
	engine := testEngine()
	agent := testAgent()

	event := engine.ApplyVisitor(&agent, Decision{Action: ActionMove, Target: "east", Description: "wanders east"}, nil)

	if agent.X != 6 {
		t.Errorf("x = %d, want 6: visitor decisions use the normal transition rules", agent.X)
	}
	if guided, _ := event.Metadata["visitor_guided"].(bool); !guided {
		t.Error("expected visitor_guided in event metadata")
	}

	mem := agent.Memory[0]
	if !mem.VisitorGuided {
		t.Error("expected visitor-guided memory entry")
	}
	if mem.Importance != 9 {
		t.Errorf("visitor memory importance = %d, want 9", mem.Importance)
	}
	if mem.Event != "A mysterious force guided my actions" {
		t.Errorf("visitor memory event = %q", mem.Event)
	}
}

// TestApplyEventEmbedsDecision tests that the emitted event carries the
// decision in its metadata.
func TestApplyEventEmbedsDecision(t *testing.T) {
	engine := testEngine()
	agent := testAgent()

	event := engine.Apply(&agent, Decision{Action: ActionObserve, Description: "watches the fog roll in"}, nil)

	if event.AgentID != "a1" {
		t.Errorf("event agent ID = %q, want a1", event.AgentID)
	}
	if event.Metadata["action"] != ActionObserve {
		t.Errorf("metadata action = %v, want %q", event.Metadata["action"], ActionObserve)
	}
	if event.Location == nil || event.Location.X != 5 || event.Location.Y != 5 {
		t.Errorf("event location = %+v, want (5,5)", event.Location)
	}
}
