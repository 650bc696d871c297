// Package validator checks configuration and specification structs against their `validate` tags.
//
// Failed fields are reported by their `json` names, so that a failure points at the key that
// was written in the configuration file rather than at the Go field.
//
//nolint:gochecknoglobals
package validator

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Validator wraps a shared go-playground validate instance.
type Validator struct {
	validate *validator.Validate
}

var (
	validatorInstance *Validator
	once              sync.Once
)

// NewValidator returns the process wide Validator.
func NewValidator() *Validator {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonFieldName)
		validatorInstance = &Validator{validate: v}
	})

	return validatorInstance
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}

	return name
}

// FieldError describes one failed constraint.
type FieldError struct {
	// FailedField is the dotted path of the field, e.g. "DatabaseSpecification.runAsUser.userName".
	FailedField string `json:"failedField"`
	Tag         string `json:"tag"`
	Value       string `json:"value,omitempty"`
}

func (f *FieldError) String() string {
	if f.Value != "" {
		return fmt.Sprintf("%s failed '%s=%s'", f.FailedField, f.Tag, f.Value)
	}

	return fmt.Sprintf("%s failed '%s'", f.FailedField, f.Tag)
}

// ValidationError lists every failed constraint of a struct.
type ValidationError struct {
	errors []*FieldError
}

func (v *ValidationError) Error() string {
	parts := make([]string, len(v.errors))
	for i, e := range v.errors {
		parts[i] = e.String()
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// GetErrorsDetails returns the failed constraints in field order.
func (v *ValidationError) GetErrorsDetails() []*FieldError {
	return v.errors
}

// MarshalJSON renders the failed constraints as a JSON array.
func (v *ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.errors)
}

// Validate checks str and returns a *ValidationError, or nil when str is valid. Anything that
// is not a struct is reported as a plain error.
func (v *Validator) Validate(str interface{}) error {
	err := v.validate.Struct(str)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.Wrap(err, "cannot validate value")
	}

	details := make([]*FieldError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		details = append(details, &FieldError{FailedField: fe.Namespace(), Tag: fe.Tag(), Value: fe.Param()})
	}

	return &ValidationError{errors: details}
}
