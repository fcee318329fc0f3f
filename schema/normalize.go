package schema

import (
	"strings"
	"unicode"
)

// ValidateUserID ensures a user id matches [a-z0-9._-] with no normalization.
func ValidateUserID(userID UserID) error {
	raw := string(userID)
	if raw == "" {
		return ErrInvalidUser
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidUser
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidUser
	}
	return nil
}

// NormalizeLabID validates and normalizes a lab identifier.
// Allowed characters: letters, digits, '.', '_', '-'. Output is lower case.
func NormalizeLabID(lab string) (LabID, error) {
	trimmed := strings.ToLower(strings.TrimSpace(lab))
	if trimmed == "" || len(trimmed) > 64 {
		return "", ErrInvalidLab
	}
	for _, r := range trimmed {
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return "", ErrInvalidLab
	}
	return LabID(trimmed), nil
}
