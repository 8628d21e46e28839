package world

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// moveVectors maps direction tokens to grid deltas. Unknown tokens resolve
// to (0,0): a bad movement target is a wasted turn, never an error.
var moveVectors = map[string][2]int{
	"north":     {0, -1},
	"south":     {0, 1},
	"east":      {1, 0},
	"west":      {-1, 0},
	"northeast": {1, -1},
	"northwest": {-1, -1},
	"southeast": {1, 1},
	"southwest": {-1, 1},
}

// TargetResolver looks up another agent by display name. Reads may be
// slightly stale; the ledger only needs identity, not live state.
type TargetResolver func(name string) (Agent, bool)

// Engine is the deterministic decision application core. Given an agent and
// a decision it computes the next agent state and the event to emit. The
// only external read is the lazy relationship target lookup.
type Engine struct {
	WorldSize int
	Ledger    *Ledger
	Now       func() time.Time
}

// NewEngine creates an application engine for a square grid of the given size.
func NewEngine(worldSize int, ledger *Ledger) *Engine {
	return &Engine{
		WorldSize: worldSize,
		Ledger:    ledger,
		Now:       time.Now,
	}
}

// Apply mutates the agent according to the decision and returns the single
// event to append. It never fails: malformed decisions degrade to no-ops.
func (e *Engine) Apply(agent *Agent, d Decision, resolve TargetResolver) Event {
	return e.apply(agent, d, resolve, false)
}

// ApplyVisitor applies a human-supplied decision through the same transition
// rules, tagging the event and memory as visitor-guided.
func (e *Engine) ApplyVisitor(agent *Agent, d Decision, resolve TargetResolver) Event {
	return e.apply(agent, d, resolve, true)
}

func (e *Engine) apply(agent *Agent, d Decision, resolve TargetResolver, visitor bool) Event {
	now := e.Now()
	eventType := EventAction
	description := d.Description

	switch d.Action {
	case ActionMove:
		vec := moveVectors[strings.ToLower(strings.TrimSpace(d.Target))]
		agent.X = clamp(agent.X+vec[0], 0, e.WorldSize-1)
		agent.Y = clamp(agent.Y+vec[1], 0, e.WorldSize-1)
		eventType = EventMovement
	case ActionSpeak:
		if d.Dialogue != "" {
			eventType = EventDialogue
			description = fmt.Sprintf("%s: %q", agent.Name, d.Dialogue)
		}
	case ActionInteract:
		eventType = EventInteraction
		if d.Target != "" && resolve != nil {
			if target, ok := resolve(d.Target); ok && target.ID != agent.ID {
				e.Ledger.Upsert(agent, target.ID, target.Name, d, now)
			}
		}
	}

	applyNeeds(&agent.Needs, d.Action)
	agent.CurrentAction = d.Action
	appendMemory(agent, d, now, visitor)
	agent.UpdatedAt = now

	ev := Event{
		ID:          uuid.New().String(),
		AgentID:     agent.ID,
		Type:        eventType,
		Description: description,
		Location:    &Point{X: agent.X, Y: agent.Y},
		Metadata:    d.Metadata(),
		CreatedAt:   now,
	}
	if visitor {
		ev.Metadata["visitor_guided"] = true
	}
	return ev
}

// applyNeeds runs the unconditional needs transition. The health rule reads
// the pre-transition energy and hunger values.
func applyNeeds(n *NeedsVector, action string) {
	exhausted := n.Energy <= 0 || n.Hunger >= 90

	if action == ActionRest {
		n.Energy += 15
	} else {
		n.Energy -= 5
	}
	n.Hunger += 2
	if action == ActionInteract || action == ActionSpeak {
		n.Social += 10
	} else {
		n.Social--
	}
	if exhausted {
		n.Health -= 5
	} else {
		n.Health++
	}
	n.Clamp()
}

func appendMemory(agent *Agent, d Decision, now time.Time, visitor bool) {
	entry := MemoryEntry{
		Event:         d.Description,
		Thought:       d.Thought,
		Timestamp:     now,
		Importance:    memoryImportance(d.Action),
		VisitorGuided: visitor,
	}
	if visitor {
		entry.Event = "A mysterious force guided my actions"
		entry.Thought = "That was strange... I felt compelled to do that"
		entry.Importance = 9
	}
	if d.Action == ActionInteract && d.Target != "" {
		entry.RelatedNPCs = []string{d.Target}
	}

	agent.Memory = append(agent.Memory, entry)
	if len(agent.Memory) > MemoryCapacity {
		agent.Memory = agent.Memory[len(agent.Memory)-MemoryCapacity:]
	}
}

func memoryImportance(action string) int {
	switch action {
	case ActionInteract:
		return 8
	case ActionSpeak:
		return 7
	default:
		return 5
	}
}
