package domain

import (
	"strings"

	dErrors "verigate/pkg/domain-errors"
)

// VerificationType tags a category of external check ("pan", "company",
// "aadhaar", ...). Orders are eligible for one or more types and callers ask
// for quota by type.
//
// Invariant: lowercase, 1-64 chars of [a-z0-9_-]. Construct via
// ParseVerificationType at trust boundaries.
type VerificationType string

const maxVerificationTypeLen = 64

// ParseVerificationType normalizes and validates a type tag.
//
// Errors: CodeInvalidInput when the value is empty, too long, or contains
// characters outside [a-z0-9_-] after lowercasing.
func ParseVerificationType(s string) (VerificationType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "verification type cannot be empty")
	}
	if len(v) > maxVerificationTypeLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "verification type too long")
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid verification type")
		}
	}
	return VerificationType(v), nil
}

// ParseVerificationTypes parses an ordered list, dropping duplicates while
// keeping the first occurrence so caller priority survives.
func ParseVerificationTypes(values []string) ([]VerificationType, error) {
	result := make([]VerificationType, 0, len(values))
	seen := make(map[VerificationType]struct{}, len(values))
	for _, raw := range values {
		t, err := ParseVerificationType(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		result = append(result, t)
	}
	return result, nil
}

func (t VerificationType) String() string {
	return string(t)
}
