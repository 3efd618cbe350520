package validator

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Required fails when the trimmed value is empty.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "is required"},
	}
}

// Email fails when the value is not a parseable address.
func Email(field, value string) Rule {
	return Rule{
		Check: func() bool {
			addr, err := mail.ParseAddress(value)
			return err == nil && addr.Address == value
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address"},
	}
}

// MinLen fails when the value is shorter than min runes.
func MinLen(field, value string, min int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) >= min },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d characters", min)},
	}
}

// MaxLen fails when the value is longer than max runes.
func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)},
	}
}

// Matches fails when the value does not match the pattern. Empty values
// pass so optional fields compose with Required explicitly.
func Matches(field, value string, pattern *regexp.Regexp, message string) Rule {
	return Rule{
		Check: func() bool { return value == "" || pattern.MatchString(value) },
		Error: ValidationError{Field: field, Message: message},
	}
}

// InList fails when the value is not one of the allowed values.
func InList[T comparable](field string, value T, allowed []T) Rule {
	return Rule{
		Check: func() bool {
			for _, a := range allowed {
				if value == a {
					return true
				}
			}
			return false
		},
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be one of: %v", allowed)},
	}
}

// Min fails when the value is below min.
func Min(field string, value, min int64) Rule {
	return Rule{
		Check: func() bool { return value >= min },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d", min)},
	}
}

// Positive fails when the value is zero or negative.
func Positive(field string, value int64) Rule {
	return Rule{
		Check: func() bool { return value > 0 },
		Error: ValidationError{Field: field, Message: "must be positive"},
	}
}
