package password

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy holds the strength rules applied to new passwords.
type Policy struct {
	MinLength        int
	MaxLength        int
	RequireUpper     bool
	RequireLower     bool
	RequireDigit     bool
	RequireSymbol    bool
	ForbidEmailMatch bool
}

// DefaultPolicy requires 8 to 128 characters with upper, lower, digit and
// symbol classes.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:        8,
		MaxLength:        128,
		RequireUpper:     true,
		RequireLower:     true,
		RequireDigit:     true,
		RequireSymbol:    true,
		ForbidEmailMatch: true,
	}
}

// Validate reports the first invalid field.
func (p Policy) Validate() error {
	if p.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if p.MaxLength < p.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	return nil
}

// PolicyError lists every rule a candidate password failed.
type PolicyError struct {
	Reasons []string
}

func (e *PolicyError) Error() string {
	return "password does not meet policy: " + strings.Join(e.Reasons, "; ")
}

// Check returns a *PolicyError when candidate violates p. email, when
// non-empty, is compared case-insensitively against the candidate.
func (p Policy) Check(candidate, email string) error {
	var reasons []string

	n := utf8.RuneCountInString(candidate)
	if n < p.MinLength {
		reasons = append(reasons, "must be at least "+strconv.Itoa(p.MinLength)+" characters")
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		reasons = append(reasons, "must be at most "+strconv.Itoa(p.MaxLength)+" characters")
	}

	var upper, lower, digit, symbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if p.RequireUpper && !upper {
		reasons = append(reasons, "must contain an uppercase letter")
	}
	if p.RequireLower && !lower {
		reasons = append(reasons, "must contain a lowercase letter")
	}
	if p.RequireDigit && !digit {
		reasons = append(reasons, "must contain a digit")
	}
	if p.RequireSymbol && !symbol {
		reasons = append(reasons, "must contain a symbol")
	}
	if p.ForbidEmailMatch && email != "" && strings.EqualFold(candidate, email) {
		reasons = append(reasons, "must not match the email address")
	}

	if len(reasons) > 0 {
		return &PolicyError{Reasons: reasons}
	}
	return nil
}
