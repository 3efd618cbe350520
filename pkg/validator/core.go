package validator

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single failed check on a named field.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors aggregates every failed check of one Apply call.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(ve))
	for _, err := range ve {
		parts = append(parts, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (ve ValidationErrors) Has(field string) bool {
	for _, err := range ve {
		if err.Field == field {
			return true
		}
	}
	return false
}

func (ve ValidationErrors) Get(field string) []string {
	var messages []string
	for _, err := range ve {
		if err.Field == field {
			messages = append(messages, err.Message)
		}
	}
	return messages
}

func (ve ValidationErrors) Fields() []string {
	var fields []string
	seen := make(map[string]bool)
	for _, err := range ve {
		if !seen[err.Field] {
			fields = append(fields, err.Field)
			seen[err.Field] = true
		}
	}
	return fields
}

// Rule represents a single validation rule.
type Rule struct {
	Check func() bool
	Error ValidationError
}

// Apply executes the rules in order and returns the aggregated failures,
// or nil when every rule passes.
func Apply(rules ...Rule) error {
	var failed ValidationErrors
	for _, rule := range rules {
		if !rule.Check() {
			failed = append(failed, rule.Error)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return failed
}

// Extract returns the ValidationErrors wrapped in err, or nil.
func Extract(err error) ValidationErrors {
	if err == nil {
		return nil
	}
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	return nil
}
