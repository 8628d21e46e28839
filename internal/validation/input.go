package validation

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9 '_-]*$`)

// ValidateAgentID validates an agent ID path parameter.
func ValidateAgentID(id string) error {
	if len(id) == 0 || len(id) > 64 {
		return fmt.Errorf("agent ID must be 1-64 characters")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("agent ID can only contain alphanumeric characters, hyphens, and underscores")
	}
	return nil
}

// ValidateAgentName validates a display name for a spawned citizen.
func ValidateAgentName(name string) error {
	if utf8.RuneCountInString(name) == 0 || utf8.RuneCountInString(name) > 32 {
		return fmt.Errorf("name must be 1-32 characters")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must start with a letter and contain only letters, digits, spaces, apostrophes, hyphens, and underscores")
	}
	return nil
}

// ValidateDescription bounds free-text decision fields.
func ValidateDescription(text string) error {
	if utf8.RuneCountInString(text) > 1000 {
		return fmt.Errorf("text must be at most 1000 characters")
	}
	return nil
}

// ValidateLimit bounds a list query limit.
func ValidateLimit(limit int) error {
	if limit < 0 || limit > 500 {
		return fmt.Errorf("limit must be between 0 and 500")
	}
	return nil
}
