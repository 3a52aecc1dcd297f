// Package validation checks client records before they reach the store.
//
// Validators return every failure they find. Callers that show a single
// message, like the intake form, use Detail to pick the first.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error renders the failure as "<field> <message>".
func (e ValidationError) Error() string {
	return e.Field + " " + e.Message
}

// Errors is a set of failures usable as an error. Its message is Detail.
type Errors []ValidationError

func (e Errors) Error() string {
	return Detail(e)
}

// Detail summarises errs by its first failure, the way a form shows one message at a time.
func Detail(errs []ValidationError) string {
	if len(errs) == 0 {
		return "Invalid input"
	}
	return errs[0].Error()
}

// Collector accumulates failures for one record. Field names passed to Add
// are reported under the collector's prefix, so "guardians[1]." turns
// "email" into "guardians[1].email".
type Collector struct {
	prefix string
	errors []ValidationError
}

// NewCollector returns a collector reporting fields under prefix.
func NewCollector(prefix string) *Collector {
	return &Collector{prefix: prefix}
}

// Add records err if it is non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err == nil {
		return
	}
	err.Field = c.prefix + err.Field
	c.errors = append(c.errors, *err)
}

// Errors returns the failures in the order they were added.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

func fail(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateText rejects free text that is not UTF-8, carries NUL bytes, or is
// longer than max runes. Empty text passes.
func ValidateText(field, value string, max int) *ValidationError {
	switch {
	case !utf8.ValidString(value):
		return fail(field, "must be valid UTF-8")
	case strings.ContainsRune(value, 0):
		return fail(field, "must not contain null bytes")
	case utf8.RuneCountInString(value) > max:
		return fail(field, "exceeds maximum length of %d characters", max)
	}
	return nil
}

// ValidateRequired rejects a value that is empty or only whitespace.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return fail(field, "is required")
	}
	return nil
}

// ValidateID rejects anything that is not a record ID as issued by the store.
func ValidateID(field, value string) *ValidationError {
	if _, err := ulid.ParseStrict(value); err != nil {
		return fail(field, "must be a valid ID")
	}
	return nil
}

// ValidateOneOf rejects a value outside allowed. Empty is accepted; the
// store applies the default for the field.
func ValidateOneOf[T ~string](field string, value T, allowed []T) *ValidationError {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return fail(field, "must be one of: %s", strings.Join(names, ", "))
}

// ValidateRange rejects a value outside [min, max].
func ValidateRange(field string, value, min, max float64) *ValidationError {
	if value < min || value > max {
		return fail(field, "must be between %g and %g", min, max)
	}
	return nil
}
