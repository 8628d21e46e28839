package oracle

import (
	"fmt"
	"strings"

	"github.com/npc-town/server/internal/world"
)

// BuildPrompt renders the instruction contract for one agent's turn. The
// action vocabulary and response shape are fixed; everything else is the
// agent's current situation.
func BuildPrompt(dc world.DecisionContext) string {
	a := dc.Agent
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a citizen of NPC Town with a rich inner life and unique personality.\n\n", a.Name)

	fmt.Fprintf(&b, "TOWN POPULATION: %d %s %s\n\n", dc.Population, plural(dc.Population, "citizen"), populationGloss(dc.Population))

	b.WriteString("PERSONALITY PROFILE:\n")
	fmt.Fprintf(&b, "- Traits: %s\n", listOr(a.Personality.Traits, "no specific traits"))
	fmt.Fprintf(&b, "- Enjoys: %s\n", listOr(a.Personality.Likes, "nothing in particular"))
	fmt.Fprintf(&b, "- Dislikes: %s\n\n", listOr(a.Personality.Dislikes, "nothing in particular"))

	b.WriteString("CURRENT STATE:\n")
	fmt.Fprintf(&b, "- Health: %d/100 %s\n", a.Needs.Health, healthGloss(a.Needs.Health))
	fmt.Fprintf(&b, "- Energy: %d/100 %s\n", a.Needs.Energy, energyGloss(a.Needs.Energy))
	fmt.Fprintf(&b, "- Hunger: %d/100 %s\n", a.Needs.Hunger, hungerGloss(a.Needs.Hunger))
	fmt.Fprintf(&b, "- Social: %d/100 %s\n\n", a.Needs.Social, socialGloss(a.Needs.Social))

	b.WriteString("RELATIONSHIPS:\n")
	if len(dc.Relations) == 0 {
		b.WriteString("You haven't formed any close relationships yet.\n")
	}
	for _, rel := range dc.Relations {
		fmt.Fprintf(&b, "- %s: Familiarity %d/100 (%s), Affinity %+d/100 (%s), %d interactions\n",
			rel.Name, rel.Familiarity, rel.FamiliarityBand, rel.Affinity, rel.AffinityBand, rel.InteractionCount)
	}
	b.WriteString("\n")

	b.WriteString("CONTEXT:\n")
	fmt.Fprintf(&b, "- Location: (%d, %d)\n", a.X, a.Y)
	fmt.Fprintf(&b, "- Time: %d:00 (%s), Day %d\n", dc.World.TimeOfDay, timeGloss(dc.World.TimeOfDay), dc.World.DayCount)
	fmt.Fprintf(&b, "- Weather: %s %s\n\n", dc.World.Weather, weatherGloss(dc.World.Weather))

	b.WriteString("SURROUNDINGS:\n")
	if len(dc.Nearby) == 0 {
		if dc.Population == 1 {
			b.WriteString("You are completely alone in this town.\n")
		} else {
			b.WriteString("You are alone in this area.\n")
		}
	}
	for _, n := range dc.Nearby {
		look := "energetic"
		if n.Tired {
			look = "tired"
		}
		fmt.Fprintf(&b, "- %s is %d steps away (%s, %s) - they look %s\n",
			n.Name, n.Steps, n.FamiliarityBand, n.AffinityBand, look)
	}
	if len(dc.Locations) > 0 {
		b.WriteString("Nearby locations:\n")
		for _, loc := range dc.Locations {
			fmt.Fprintf(&b, "- The %s (%s) is %d steps away\n", loc.Name, loc.Type, loc.Steps)
		}
	}
	b.WriteString("\n")

	b.WriteString("RECENT EXPERIENCES:\n")
	if len(dc.Memories) == 0 {
		b.WriteString("Nothing notable has happened recently.\n")
	}
	for _, m := range dc.Memories {
		fmt.Fprintf(&b, "- %s\n", m.Event)
	}
	b.WriteString("\n")

	b.WriteString(`INSTRUCTIONS:
Based on your personality, current needs, and surroundings, decide what to do next.

IMPORTANT NEEDS TO CONSIDER:
- If energy < 20: You MUST rest immediately, you're about to collapse!
- If energy < 40: Strongly consider resting soon
- If hunger > 80: Urgently seek food at the Market or Farm
- If social < 20: You're feeling very lonely, seek companionship

Actions you can take:
1. Move (specify direction: north, south, east, west, northeast, northwest, southeast, southwest)
2. Interact with another NPC (use their exact name)
3. Enter/use a building (use the building's exact name)
4. Rest or reflect (RESTORES ENERGY - do this when tired!)
5. Speak (express thoughts aloud)
6. Observe your surroundings

Respond with a valid JSON object (do not include any markdown formatting or code blocks):
{
  "action": "move|interact|enter|rest|speak|observe",
  "target": "For move: use exact direction. For interact: NPC name. For enter: building name",
  "description": "A rich, personality-driven description of what you're doing, thinking, and feeling (2-3 sentences)",
  "dialogue": "What you say out loud (if speaking)",
  "thought": "Your internal thoughts/feelings that others can't hear"
}`)

	return b.String()
}

func listOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func populationGloss(n int) string {
	switch {
	case n == 1:
		return "(you are the only one here!)"
	case n <= 3:
		return "(a small, intimate community)"
	case n <= 10:
		return "(a growing village)"
	default:
		return "(a bustling town)"
	}
}

func healthGloss(v int) string {
	switch {
	case v < 50:
		return "(feeling unwell)"
	case v > 80:
		return "(feeling great!)"
	default:
		return "(feeling okay)"
	}
}

func energyGloss(v int) string {
	switch {
	case v < 30:
		return "(exhausted)"
	case v > 80:
		return "(full of energy!)"
	default:
		return "(somewhat tired)"
	}
}

func hungerGloss(v int) string {
	switch {
	case v > 70:
		return "(very hungry!)"
	case v < 30:
		return "(well-fed)"
	default:
		return "(getting peckish)"
	}
}

func socialGloss(v int) string {
	switch {
	case v < 30:
		return "(lonely)"
	case v > 80:
		return "(socially fulfilled)"
	default:
		return "(could use some company)"
	}
}

func timeGloss(hour int) string {
	switch {
	case hour < 6:
		return "late night"
	case hour < 12:
		return "morning"
	case hour < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

func weatherGloss(weather string) string {
	switch weather {
	case world.WeatherRain:
		return "(the rain patters softly)"
	case world.WeatherFog:
		return "(visibility is limited)"
	case world.WeatherStorm:
		return "(thunder rumbles overhead)"
	default:
		return "(the weather is pleasant)"
	}
}
