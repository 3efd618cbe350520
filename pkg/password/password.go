package password

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/crewplane/pkg/validator"
)

var (
	ErrMismatch   = errors.New("password: does not match")
	ErrHashFailed = errors.New("password: failed to hash")
)

// Policy describes the strength requirements enforced on user-chosen
// passwords. MinCharClasses counts lower, upper, digit and symbol.
type Policy struct {
	MinLength      int  `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	MaxLength      int  `env:"PASSWORD_MAX_LENGTH" envDefault:"128"`
	MinCharClasses int  `env:"PASSWORD_MIN_CHAR_CLASSES" envDefault:"2"`
	BcryptCost     int  `env:"PASSWORD_BCRYPT_COST" envDefault:"10"`
	ForbidCommon   bool `env:"PASSWORD_FORBID_COMMON" envDefault:"true"`
}

// DefaultPolicy mirrors the envDefault values for callers without config.
func DefaultPolicy() Policy {
	return Policy{MinLength: 8, MaxLength: 128, MinCharClasses: 2, BcryptCost: bcrypt.DefaultCost, ForbidCommon: true}
}

// Hash returns the bcrypt hash of the password under the policy's cost.
func Hash(p Policy, password string) (string, error) {
	cost := p.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.Join(ErrHashFailed, err)
	}
	return string(hash), nil
}

// Verify compares a stored hash against a candidate password.
func Verify(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrMismatch
	}
	return nil
}

// Validate checks the password against the policy. The returned error is a
// validator.ValidationErrors so API handlers render it as field details.
func Validate(p Policy, password string) error {
	return validator.Apply(
		validator.MinLen("password", password, p.MinLength),
		validator.MaxLen("password", password, p.MaxLength),
		strengthRule("password", password, p.MinCharClasses),
		commonRule("password", password, p.ForbidCommon),
	)
}

func strengthRule(field, value string, minClasses int) validator.Rule {
	return validator.Rule{
		Check: func() bool { return charClasses(value) >= minClasses },
		Error: validator.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must contain at least %d of: lowercase, uppercase, digits, symbols", minClasses),
		},
	}
}

func commonRule(field, value string, enabled bool) validator.Rule {
	return validator.Rule{
		Check: func() bool { return !enabled || !commonPasswords[value] },
		Error: validator.ValidationError{Field: field, Message: "is too common"},
	}
}

func charClasses(s string) int {
	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	n := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			n++
		}
	}
	return n
}

// commonPasswords is a small deny-list of the passwords seen most in breach
// corpora. Enough to stop the worst choices without shipping a dictionary.
var commonPasswords = map[string]bool{
	"password": true, "password1": true, "123456": true, "12345678": true,
	"123456789": true, "qwerty": true, "qwerty123": true, "abc123": true,
	"letmein": true, "admin": true, "welcome": true, "monkey": true,
	"iloveyou": true, "dragon": true, "sunshine": true, "princess": true,
	"password123": true, "1234567890": true, "trustno1": true, "111111": true,
}
