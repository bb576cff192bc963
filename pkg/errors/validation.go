package errors

import (
	"strings"
	"unicode"
)

// ValidateModuleName validates a module name for safety and correctness.
// Module names flow into store keys and subprocess arguments, so names
// that could be used for key or argument injection are rejected.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters or null bytes
//   - No whitespace
//   - Maximum length of 256 characters
//
// Grammar-level validation (the ver/auth/api identity form) is done by the
// identity parser, not here.
func ValidateModuleName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidModule, "module name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidModule, "module name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidModule, "module name contains invalid characters")
		}
	}

	if strings.Contains(name, "\x00") {
		return New(ErrCodeInvalidModule, "module name contains null byte")
	}

	return nil
}
