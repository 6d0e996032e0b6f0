// Package validation wraps go-playground/validator for request DTOs and
// configuration values, translating failures into validation AppErrors.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"esign-sync/internal/common/errors"
)

// HostKeyPattern matches host record keys such as "PROJ-123".
var HostKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]+-\d+$`)

// CentralizedValidator provides unified validation using go-playground/validator
type CentralizedValidator struct {
	validator *validator.Validate
}

// FieldError is a single validation failure with its location.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// NewCentralizedValidator creates a new centralized validator instance
func NewCentralizedValidator() *CentralizedValidator {
	v := validator.New()
	registerValidators(v)

	// Report json names so messages match the request body.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &CentralizedValidator{validator: v}
}

// ValidateStruct validates a struct using struct tags
func (cv *CentralizedValidator) ValidateStruct(s interface{}) error {
	if err := cv.validator.Struct(s); err != nil {
		return cv.formatValidationErrors(err)
	}
	return nil
}

// ValidateVar validates a single variable with validation rules
func (cv *CentralizedValidator) ValidateVar(field interface{}, tag string) error {
	if err := cv.validator.Var(field, tag); err != nil {
		return cv.formatValidationErrors(err)
	}
	return nil
}

// FieldErrors returns the individual failures for s, or nil when valid.
func (cv *CentralizedValidator) FieldErrors(s interface{}) []FieldError {
	err := cv.validator.Struct(s)
	if err == nil {
		return nil
	}
	return cv.extractFieldErrors(err)
}

func (cv *CentralizedValidator) extractFieldErrors(err error) []FieldError {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "unknown", Tag: "error", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		field := fieldPath(fe)
		out = append(out, FieldError{
			Field:   field,
			Tag:     fe.Tag(),
			Message: formatFieldError(field, fe),
			Param:   fe.Param(),
		})
	}
	return out
}

func (cv *CentralizedValidator) formatValidationErrors(err error) error {
	fieldErrors := cv.extractFieldErrors(err)
	if len(fieldErrors) == 1 {
		return errors.ValidationError(fieldErrors[0].Message).WithContext("field", fieldErrors[0].Field)
	}

	messages := make([]string, len(fieldErrors))
	for i, e := range fieldErrors {
		messages[i] = e.Message
	}
	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

// fieldPath drops the root struct name from the namespace so nested
// failures read like "signers[1].positions[0].page".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	if ns == "" {
		return fe.Field()
	}
	return ns
}

func formatFieldError(field string, err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", field)
	case "required_with":
		return fmt.Sprintf("field '%s' is required when %s is set", field, err.Param())
	case "email":
		return fmt.Sprintf("field '%s' must be a valid email address", field)
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", field)
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", field, err.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", field, err.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, err.Param())
	case "host_key":
		return fmt.Sprintf("field '%s' must be a host key like ABC-123", field)
	case "cron_schedule":
		return fmt.Sprintf("field '%s' must be a valid cron schedule", field)
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", field, err.Tag())
	}
}

func registerValidators(v *validator.Validate) {
	_ = v.RegisterValidation("host_key", func(fl validator.FieldLevel) bool {
		return HostKeyPattern.MatchString(fl.Field().String())
	})

	_ = v.RegisterValidation("cron_schedule", func(fl validator.FieldLevel) bool {
		return ValidCronSchedule(fl.Field().String())
	})
}

// ValidCronSchedule reports whether expr parses as a five-field cron spec or
// a descriptor such as "@every 5m".
func ValidCronSchedule(expr string) bool {
	_, err := cron.ParseStandard(expr)
	return err == nil
}

var globalValidator = NewCentralizedValidator()

// ValidateStruct validates a struct using the global validator instance
func ValidateStruct(s interface{}) error {
	return globalValidator.ValidateStruct(s)
}

// ValidateVar validates a variable using the global validator instance
func ValidateVar(field interface{}, tag string) error {
	return globalValidator.ValidateVar(field, tag)
}

// IsHostKey reports whether key looks like a host record key.
func IsHostKey(key string) bool {
	return HostKeyPattern.MatchString(key)
}
