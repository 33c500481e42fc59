// Package security checks user-supplied text before it is stored.
package security

import (
	"errors"
	"fmt"
	"unicode"
)

var (
	ErrInputTooLarge     = errors.New("input exceeds maximum size")
	ErrNullByteDetected  = errors.New("null byte detected in input")
	ErrControlCharacter  = errors.New("control character in input")
	ErrRepetitiveContent = errors.New("excessive repetition detected")
)

// Limits for the free-text fields the tracker stores.
const (
	MaxNameLen    = 100
	MaxDosageLen  = 50
	MaxNotesLen   = 1000
	MaxMessageLen = 500
)

type InputValidator struct {
	MaxSize       int
	MaxRepetition int
	AllowNewlines bool
}

func NewInputValidator(maxSize int) *InputValidator {
	return &InputValidator{
		MaxSize:       maxSize,
		MaxRepetition: 50,
	}
}

func (v *InputValidator) Validate(input string) error {
	if v.MaxSize > 0 && len(input) > v.MaxSize {
		return ErrInputTooLarge
	}

	for _, r := range input {
		if r == 0 {
			return ErrNullByteDetected
		}
		if unicode.IsControl(r) {
			if v.AllowNewlines && (r == '\n' || r == '\r' || r == '\t') {
				continue
			}
			return ErrControlCharacter
		}
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}

	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	runes := []rune(input)
	consecutiveCount := 1

	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			consecutiveCount++
			if consecutiveCount > maxLen {
				return true
			}
		} else {
			consecutiveCount = 1
		}
	}

	return false
}

// ValidateField checks one named field. Multiline fields may contain
// newlines and tabs.
func ValidateField(field, value string, maxSize int, multiline bool) error {
	v := NewInputValidator(maxSize)
	v.AllowNewlines = multiline
	if err := v.Validate(value); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
