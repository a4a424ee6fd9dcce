// Package validator wraps go-playground/validator with the tags used by
// request payloads: "ruetid" for student ids and "category" for item kinds.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/pkg/identity"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// Validator validates structs and reports failures as apperr.ErrValidation.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator with the custom tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("ruetid", func(fl validator.FieldLevel) bool {
		return identity.ValidateStudentID(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return models.Category(fl.Field().String()).Valid()
	})

	return &Validator{v: v}
}

// Struct validates s. Field failures are flattened into one message.
func (v *Validator) Struct(s interface{}) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", apperr.ErrValidation, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_without":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "url":
		return field + " must be a valid URL"
	case "ruetid":
		if err := identity.ValidateStudentID(fmt.Sprint(fe.Value())); err != nil {
			return field + ": " + err.Error()
		}
		return field + " is not a valid student id"
	case "category":
		return fmt.Sprintf("%s must be one of %v", field, models.Categories)
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}
