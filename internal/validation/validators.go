package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/benvon/todo-digest/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("notblank", validateNotBlank); err != nil {
		panic(fmt.Sprintf("failed to register notblank validator: %v", err))
	}
	if err := Validate.RegisterValidation("source_type", validateSourceType); err != nil {
		panic(fmt.Sprintf("failed to register source_type validator: %v", err))
	}
}

// validateNotBlank rejects strings that are empty after trimming whitespace
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateSourceType validates that a string is a known SourceType
func validateSourceType(fl validator.FieldLevel) bool {
	switch models.SourceType(fl.Field().String()) {
	case models.SourceTypeSlack, models.SourceTypeEmail, models.SourceTypeNotion:
		return true
	default:
		return false
	}
}

// ValidateCandidate checks a generated candidate's own fields. Sources are checked separately
// by ValidSources so that one bad reference does not discard the whole candidate.
func ValidateCandidate(c models.TodoCandidate) error {
	if err := Validate.StructExcept(c, "Sources"); err != nil {
		return fmt.Errorf("invalid candidate: %w", err)
	}
	return nil
}

// ValidSources returns the sources that carry both an id and a link
func ValidSources(sources []models.TodoSource) []models.TodoSource {
	valid := make([]models.TodoSource, 0, len(sources))
	for _, s := range sources {
		if Validate.Struct(s) == nil {
			valid = append(valid, s)
		}
	}
	return valid
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
