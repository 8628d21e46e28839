package world

// Proximity cutoffs for the decision context, in Chebyshev distance.
const (
	agentSightRange    = 3
	locationSightRange = 5
	contextMemoryDepth = 3
)

// NearbyAgent is another citizen within sight of the deciding agent.
type NearbyAgent struct {
	Name            string `json:"name"`
	Steps           int    `json:"steps"`
	Tired           bool   `json:"tired"`
	FamiliarityBand string `json:"familiarity_band"`
	AffinityBand    string `json:"affinity_band"`
}

// NearbyLocation is a location within sight of the deciding agent.
type NearbyLocation struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Steps int    `json:"steps"`
}

// RelationSummary is a relationship annotated with qualitative bands.
type RelationSummary struct {
	Name             string `json:"name"`
	Familiarity      int    `json:"familiarity"`
	Affinity         int    `json:"affinity"`
	InteractionCount int    `json:"interaction_count"`
	FamiliarityBand  string `json:"familiarity_band"`
	AffinityBand     string `json:"affinity_band"`
}

// DecisionContext is everything the oracle sees about one agent's turn.
type DecisionContext struct {
	Agent      Agent
	World      WorldState
	Population int
	Nearby     []NearbyAgent
	Locations  []NearbyLocation
	Memories   []MemoryEntry
	Relations  []RelationSummary
}

// BuildContext assembles the decision context for one agent. Pure function
// of its inputs: no store reads, no clock, no randomness.
func BuildContext(agent Agent, others []Agent, locations []Location, ws WorldState, history []MemoryEntry) DecisionContext {
	dc := DecisionContext{
		Agent:      agent,
		World:      ws,
		Population: len(others) + 1,
	}

	for _, other := range others {
		if other.ID == agent.ID {
			continue
		}
		if chebyshev(agent.X, agent.Y, other.X, other.Y) > agentSightRange {
			continue
		}
		na := NearbyAgent{
			Name:            other.Name,
			Steps:           manhattan(agent.X, agent.Y, other.X, other.Y),
			Tired:           other.Needs.Energy < 30,
			FamiliarityBand: "stranger",
			AffinityBand:    "neutral",
		}
		if rel, ok := agent.Relationship(other.ID); ok {
			na.FamiliarityBand = FamiliarityBand(rel.Familiarity)
			na.AffinityBand = AffinityBand(rel.Affinity)
		}
		dc.Nearby = append(dc.Nearby, na)
	}

	for _, loc := range locations {
		if chebyshev(agent.X, agent.Y, loc.X, loc.Y) > locationSightRange {
			continue
		}
		dc.Locations = append(dc.Locations, NearbyLocation{
			Name:  loc.Name,
			Type:  loc.Type,
			Steps: manhattan(agent.X, agent.Y, loc.X, loc.Y),
		})
	}

	if len(history) > contextMemoryDepth {
		history = history[:contextMemoryDepth]
	}
	dc.Memories = history

	for _, rel := range agent.Relationships {
		dc.Relations = append(dc.Relations, RelationSummary{
			Name:             rel.AgentName,
			Familiarity:      rel.Familiarity,
			Affinity:         rel.Affinity,
			InteractionCount: rel.InteractionCount,
			FamiliarityBand:  FamiliarityBand(rel.Familiarity),
			AffinityBand:     AffinityBand(rel.Affinity),
		})
	}

	return dc
}

// FamiliarityBand maps a familiarity score to a qualitative label.
func FamiliarityBand(familiarity int) string {
	switch {
	case familiarity > 50:
		return "close"
	case familiarity >= 20:
		return "acquaintance"
	default:
		return "stranger"
	}
}

// AffinityBand maps an affinity score to a qualitative label.
func AffinityBand(affinity int) string {
	switch {
	case affinity > 50:
		return "warm"
	case affinity > 0:
		return "positive"
	case affinity < -50:
		return "hostile"
	case affinity < 0:
		return "negative"
	default:
		return "neutral"
	}
}

func chebyshev(x1, y1, x2, y2 int) int {
	dx := abs(x1 - x2)
	dy := abs(y1 - y2)
	if dx > dy {
		return dx
	}
	return dy
}

func manhattan(x1, y1, x2, y2 int) int {
	return abs(x1-x2) + abs(y1-y2)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
