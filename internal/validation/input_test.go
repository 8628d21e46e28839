package validation

import (
	"strings"
	"testing"
)

// TestValidateAgentID tests ID format checks.
func TestValidateAgentID(t *testing.T) {
	valid := []string{"a", "agent-1", "b2c3d4", "A_B-c", strings.Repeat("x", 64)}
	for _, id := range valid {
		if err := ValidateAgentID(id); err != nil {
			t.Errorf("ValidateAgentID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "has space", "semi;colon", "slash/", strings.Repeat("x", 65), "quote'"}
	for _, id := range invalid {
		if err := ValidateAgentID(id); err == nil {
			t.Errorf("ValidateAgentID(%q) = nil, want error", id)
		}
	}
}

// TestValidateAgentName tests display name checks.
func TestValidateAgentName(t *testing.T) {
	valid := []string{"Alice", "Mary Anne", "O'Brien", "Bob-2", "X"}
	for _, name := range valid {
		if err := ValidateAgentName(name); err != nil {
			t.Errorf("ValidateAgentName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "1stPlace", " leading", strings.Repeat("a", 33), "semi;colon"}
	for _, name := range invalid {
		if err := ValidateAgentName(name); err == nil {
			t.Errorf("ValidateAgentName(%q) = nil, want error", name)
		}
	}
}

// TestValidateDescription tests the free-text length bound.
func TestValidateDescription(t *testing.T) {
	if err := ValidateDescription(""); err != nil {
		t.Errorf("empty description should be allowed: %v", err)
	}
	if err := ValidateDescription(strings.Repeat("a", 1000)); err != nil {
		t.Errorf("1000-rune description should be allowed: %v", err)
	}
	if err := ValidateDescription(strings.Repeat("a", 1001)); err == nil {
		t.Error("expected an error for an oversized description")
	}
}

// TestValidateLimit tests the query limit bound.
func TestValidateLimit(t *testing.T) {
	for _, n := range []int{0, 1, 500} {
		if err := ValidateLimit(n); err != nil {
			t.Errorf("ValidateLimit(%d) = %v, want nil", n, err)
		}
	}
	for _, n := range []int{-1, 501} {
		if err := ValidateLimit(n); err == nil {
			t.Errorf("ValidateLimit(%d) = nil, want error", n)
		}
	}
}
