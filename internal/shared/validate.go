package shared

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidateStruct runs validate against v and collects field failures into a
// ValidationError keyed by struct field name. The result is never nil.
func ValidateStruct(validate *validator.Validate, v any) *ValidationError {
	verr := NewValidationError(nil)
	err := validate.Struct(v)
	if err == nil {
		return verr
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("general", err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), FieldMessage(fe))
	}
	return verr
}

// FieldMessage renders a human readable message for a validator failure.
func FieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Enter a valid email address"
	case "min", "gte":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("Must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "max", "lte":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("Must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("Must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	case "url":
		return "Enter a valid URL"
	}
	return "Invalid value"
}
