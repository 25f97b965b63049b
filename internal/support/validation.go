package support

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so errors match the payload.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize trims surrounding whitespace from every field and applies the
// default urgency.
func (s Submission) Normalize() Submission {
	out := Submission{
		Name:    strings.TrimSpace(s.Name),
		Email:   strings.TrimSpace(s.Email),
		Topic:   strings.TrimSpace(s.Topic),
		Message: strings.TrimSpace(s.Message),
		Urgency: strings.ToLower(strings.TrimSpace(s.Urgency)),
	}
	if out.Urgency == "" {
		out.Urgency = string(UrgencyNormal)
	}
	return out
}

// Validate normalizes s and checks it against the field constraints. It
// returns the normalized submission, or a *ValidationError naming each
// invalid field with the first rule that field violated.
func Validate(s Submission) (Submission, error) {
	s = s.Normalize()

	err := validate.Struct(s)
	if err == nil {
		return s, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return s, fmt.Errorf("validating submission: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = fieldMessage(fe)
	}
	return s, &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "email":
		return "email must be a valid email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fe.Field() + " is invalid"
	}
}
