// Package password holds the password strength policy and the bcrypt hasher.
package password

import "unicode"

// Policy lists the rules a new password must satisfy.
type Policy struct {
	MinLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool
}

// DefaultPolicy requires 8 characters with an uppercase letter, a lowercase letter and a digit.
func DefaultPolicy() Policy {
	return Policy{MinLength: 8, RequireUpper: true, RequireLower: true, RequireDigit: true}
}

// IsStrong reports whether password satisfies p. Length counts runes.
func (p Policy) IsStrong(password string) bool {
	var n int
	var upper, lower, digit bool
	for _, r := range password {
		n++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return n >= p.MinLength &&
		(upper || !p.RequireUpper) &&
		(lower || !p.RequireLower) &&
		(digit || !p.RequireDigit)
}

// IsStrong checks password against DefaultPolicy.
func IsStrong(password string) bool {
	return DefaultPolicy().IsStrong(password)
}
