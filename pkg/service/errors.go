package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Error taxonomy shared by every service. Handlers map these to HTTP status
// codes with errors.Is; services wrap them with fmt.Errorf("...: %w", ...).
var (
	ErrValidation       = errors.New("validation error")
	ErrInsufficientData = errors.New("insufficient data")
	ErrExtractionFailed = errors.New("issue extraction failed")
	ErrGenerationFailed = errors.New("generation failed")
	ErrConflict         = errors.New("conflict")
	ErrBusy             = errors.New("operation already in flight")
	ErrForbidden        = errors.New("forbidden")
	ErrAlreadySigned    = errors.New("already signed")
	ErrNameMismatch     = errors.New("signature name mismatch")
	ErrNotFound         = errors.New("not found")
	ErrTokenExpired     = errors.New("invitation token expired")
)

// isUniqueViolation reports whether err is a unique-constraint failure.
// gorm translates some driver errors to ErrDuplicatedKey; the SQLite driver
// surfaces others as plain constraint messages.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") && strings.Contains(msg, "unique")
}
