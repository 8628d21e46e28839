package world

import (
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// SentimentClassifier decides whether a decision's free-text thought reads
// as positive. The exact rule is replaceable policy; the ledger's bound and
// trim guarantees never depend on it.
type SentimentClassifier interface {
	Positive(thought string) bool
}

// DefaultSentimentExpr is the boolean expr-lang rule used when no custom
// expression is configured.
const DefaultSentimentExpr = `containsAny(thought, ["enjoy", "like", "love", "happy", "glad", "wonderful"])`

// ExprClassifier evaluates a configurable expr-lang expression over the
// thought text. The expression sees `thought` (lowercased) and a
// `containsAny(text, words)` helper.
type ExprClassifier struct {
	program *vm.Program
}

// NewExprClassifier compiles the expression. An empty expression compiles
// the default rule.
func NewExprClassifier(expression string) (*ExprClassifier, error) {
	if expression == "" {
		expression = DefaultSentimentExpr
	}
	program, err := expr.Compile(expression, expr.Env(sentimentEnv("")), expr.AsBool())
	if err != nil {
		return nil, err
	}
	return &ExprClassifier{program: program}, nil
}

// Positive reports whether the thought matches the positive rule. Evaluation
// errors count as not positive.
func (c *ExprClassifier) Positive(thought string) bool {
	out, err := expr.Run(c.program, sentimentEnv(strings.ToLower(thought)))
	if err != nil {
		return false
	}
	positive, _ := out.(bool)
	return positive
}

func sentimentEnv(thought string) map[string]any {
	return map[string]any{
		"thought": thought,
		"containsAny": func(text string, words []any) bool {
			for _, w := range words {
				s, ok := w.(string)
				if ok && strings.Contains(text, s) {
					return true
				}
			}
			return false
		},
	}
}

// wordClassifier is the fallback when an expr rule cannot be compiled.
type wordClassifier struct{}

func (wordClassifier) Positive(thought string) bool {
	thought = strings.ToLower(thought)
	for _, w := range []string{"enjoy", "like", "love", "happy", "glad", "wonderful"} {
		if strings.Contains(thought, w) {
			return true
		}
	}
	return false
}

// Ledger maintains per-agent relationship records. Relationships are not
// symmetric: each upsert touches only the acting agent's own record, so two
// agents interacting in the same tick never write to shared state.
type Ledger struct {
	sentiment SentimentClassifier
}

// NewLedger creates a ledger with the given classifier; nil selects the
// built-in word matcher.
func NewLedger(sentiment SentimentClassifier) *Ledger {
	if sentiment == nil {
		sentiment = wordClassifier{}
	}
	return &Ledger{sentiment: sentiment}
}

// Upsert records one interaction from the acting agent's perspective and
// returns the updated record. Familiarity is monotone non-decreasing and
// capped at 100; affinity stays within [-100, 100]; notes keep the last 5.
func (l *Ledger) Upsert(actor *Agent, targetID, targetName string, d Decision, now time.Time) Relationship {
	if actor.Relationships == nil {
		actor.Relationships = map[string]Relationship{}
	}

	positive := l.sentiment.Positive(d.Thought)
	note := d.Thought
	if note == "" {
		note = d.Description
	}

	rel, ok := actor.Relationships[targetID]
	if !ok {
		rel = Relationship{
			AgentID:     targetID,
			AgentName:   targetName,
			Familiarity: 5,
		}
		if positive {
			rel.Affinity = 5
		}
	} else {
		rel.Familiarity = clamp(rel.Familiarity+5, 0, 100)
		if positive {
			rel.Affinity = clamp(rel.Affinity+3, -100, 100)
		} else {
			rel.Affinity = clamp(rel.Affinity-1, -100, 100)
		}
	}

	rel.InteractionCount++
	rel.LastInteraction = now
	if note != "" {
		rel.Notes = append(rel.Notes, note)
		if len(rel.Notes) > NotesCapacity {
			rel.Notes = rel.Notes[len(rel.Notes)-NotesCapacity:]
		}
	}

	actor.Relationships[targetID] = rel
	return rel
}
