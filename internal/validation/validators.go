package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pmorelli/braindump/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	// These should never fail in normal operation, but log if they do
	if err := Validate.RegisterValidation("priority", validatePriority); err != nil {
		panic(fmt.Sprintf("failed to register priority validator: %v", err))
	}
	if err := Validate.RegisterValidation("process_status", validateProcessStatus); err != nil {
		panic(fmt.Sprintf("failed to register process_status validator: %v", err))
	}
}

// validatePriority validates that a string is a valid Priority enum value
func validatePriority(fl validator.FieldLevel) bool {
	return models.Priority(fl.Field().String()).Valid()
}

// validateProcessStatus validates that a string is a valid ProcessStatus enum value
func validateProcessStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	switch models.ProcessStatus(value) {
	case models.ProcessStatusIncomplete, models.ProcessStatusProcessing,
		models.ProcessStatusProcessed, models.ProcessStatusAccepted, models.ProcessStatusError:
		return true
	default:
		return false
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidatePriority validates a Priority string value
func ValidatePriority(value string) error {
	if !models.Priority(value).Valid() {
		return fmt.Errorf("invalid priority: %s (must be 'p1', 'p2', 'p3', or 'p4')", value)
	}
	return nil
}

// ValidateProcessStatus validates a ProcessStatus string value
func ValidateProcessStatus(value string) error {
	status := models.ProcessStatus(value)
	switch status {
	case models.ProcessStatusIncomplete, models.ProcessStatusProcessing,
		models.ProcessStatusProcessed, models.ProcessStatusAccepted, models.ProcessStatusError:
		return nil
	default:
		return fmt.Errorf("invalid status: %s (must be 'incomplete', 'processing', 'processed', 'accepted', or 'error')", value)
	}
}
