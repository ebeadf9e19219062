// Package validation checks resource names and port numbers before they are
// registered in the application model.
//
// It uses go-playground/validator for the field rules and registers two
// custom tags. "volumename" follows Docker's volume naming rule.
// "resourcename" enforces the naming rules shared by resources and
// endpoints:
//   - starts with an ASCII letter
//   - contains only ASCII letters, digits and hyphens
//   - no consecutive hyphens and no trailing hyphen
//   - at most 64 characters
//
// # Usage Example
//
//	v := validation.New()
//	if err := v.ResourceName("memgraph"); err != nil {
//	    // handle invalid name
//	}
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	resourceNamePattern = regexp.MustCompile(`^[a-zA-Z](?:[a-zA-Z0-9]|-[a-zA-Z0-9])*$`)

	// Docker's own rule for named volumes.
	volumeNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]+$`)
)

// Validator validates application model inputs.
type Validator struct {
	structValidator *validator.Validate
}

// ValidationError represents a single validation error with field-level details.
type ValidationError struct {
	// Field is the name of the field that failed validation
	Field string `json:"field"`

	// Message describes why the validation failed
	Message string `json:"message"`

	// Value is the invalid value that caused the error (optional)
	Value interface{} `json:"value,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// New creates a Validator with the custom rules registered.
func New() *Validator {
	v := validator.New()
	// The pattern is static, registration can only fail on an empty tag.
	_ = v.RegisterValidation("resourcename", func(fl validator.FieldLevel) bool {
		return resourceNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("volumename", func(fl validator.FieldLevel) bool {
		return volumeNamePattern.MatchString(fl.Field().String())
	})
	return &Validator{structValidator: v}
}

// ResourceName validates a resource or endpoint name.
func (v *Validator) ResourceName(name string) error {
	return v.check("name", name, "required,max=64,resourcename")
}

// VolumeName validates a Docker named volume.
func (v *Validator) VolumeName(name string) error {
	return v.check("volume", name, "required,volumename")
}

// HostPort validates a requested host port. Zero means "assign one".
func (v *Validator) HostPort(port int) error {
	return v.check("port", port, "min=0,max=65535")
}

// TargetPort validates a container-side port, which must always be set.
func (v *Validator) TargetPort(port int) error {
	return v.check("targetPort", port, "min=1,max=65535")
}

func (v *Validator) check(field string, value interface{}, tag string) error {
	err := v.structValidator.Var(value, tag)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate %s: %w", field, err)
	}

	return &ValidationError{
		Field:   field,
		Message: describe(fieldErrs[0]),
		Value:   value,
	}
}

// describe converts a validator tag failure into a readable message.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "volumename":
		return "must start with a letter or digit and contain only letters, digits, '_', '.' and '-'"
	case "resourcename":
		return "must start with a letter and contain only letters, digits and single hyphens, without a trailing hyphen"
	default:
		return strings.TrimSpace(fmt.Sprintf("failed %s validation", fe.Tag()))
	}
}
