package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/npc-town/server/internal/world"
)

// decisionSchema is the wire contract for oracle replies.
const decisionSchema = `{
	"type": "object",
	"required": ["action", "description"],
	"properties": {
		"action": {
			"type": "string",
			"enum": ["move", "interact", "enter", "rest", "speak", "observe"]
		},
		"target": {"type": ["string", "null"]},
		"description": {"type": "string", "minLength": 1},
		"dialogue": {"type": ["string", "null"]},
		"thought": {"type": ["string", "null"]}
	}
}`

var compiledDecisionSchema = jsonschema.MustCompileString("decision.json", decisionSchema)

// Adapter converts decision contexts into decisions via the external chat
// service. Decide is total: transport failures, timeouts, and malformed
// replies all fold into the deterministic fallback decision.
type Adapter struct {
	client  *Client
	model   string
	timeout time.Duration
	log     *slog.Logger
}

// NewAdapter creates a decision oracle adapter.
func NewAdapter(client *Client, model string, timeout time.Duration, log *slog.Logger) *Adapter {
	if model == "" {
		model = "openai/gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{client: client, model: model, timeout: timeout, log: log}
}

// Decide asks the oracle for the agent's next decision. Never returns an
// error and never panics; the application engine always receives a
// well-formed decision.
func (a *Adapter) Decide(ctx context.Context, dc world.DecisionContext) world.Decision {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.CreateCompletion(ctx, &CompletionRequest{
		Model: a.model,
		Messages: []Message{
			{Role: "user", Content: BuildPrompt(dc)},
		},
	})
	if err != nil {
		a.log.Warn("oracle call failed, using fallback", "agent", dc.Agent.Name, "error", err)
		return Fallback(dc.Agent)
	}

	decision, err := ParseDecision(resp.Choices[0].Message.Content)
	if err != nil {
		a.log.Warn("oracle reply unparsable, using fallback", "agent", dc.Agent.Name, "error", err)
		return Fallback(dc.Agent)
	}
	return decision
}

// ParseDecision validates and decodes a raw oracle reply. Markdown code
// fences around the JSON object are tolerated.
func ParseDecision(raw string) (world.Decision, error) {
	raw = stripFences(raw)

	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return world.Decision{}, fmt.Errorf("decode reply: %w", err)
	}
	if err := compiledDecisionSchema.Validate(payload); err != nil {
		return world.Decision{}, fmt.Errorf("invalid decision shape: %w", err)
	}

	var d world.Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return world.Decision{}, fmt.Errorf("decode decision: %w", err)
	}
	return d, nil
}

// Fallback is the deterministic safe default when the oracle fails. The
// description references the agent's most pressing need.
func Fallback(agent world.Agent) world.Decision {
	description := fmt.Sprintf("%s takes a moment to rest, letting the day settle.", agent.Name)
	thought := "What should I do next?"
	switch {
	case agent.Needs.Hunger > 70:
		description = fmt.Sprintf("%s rests quietly, stomach rumbling with hunger.", agent.Name)
		thought = "I'm so hungry..."
	case agent.Needs.Energy < 30:
		description = fmt.Sprintf("%s rests, worn down by tiredness.", agent.Name)
		thought = "I need to rest..."
	}
	return world.Decision{
		Action:      world.ActionRest,
		Description: description,
		Thought:     thought,
	}
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}
