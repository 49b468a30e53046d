package common

import (
	"errors"
	"strings"

	"github.com/go-playground/validator"
)

var validate = validator.New()

// ValidateFilm checks the required fields of a film after trimming.
func ValidateFilm(f Film) error {
	f.Title = strings.TrimSpace(f.Title)
	f.Genre = strings.TrimSpace(f.Genre)
	f.Description = strings.TrimSpace(f.Description)
	return toValidationError(validate.Struct(f))
}

// ValidatePatch rejects empty patches and blank required fields.
func ValidatePatch(p FilmPatch) error {
	fields := p.Fields()
	if len(fields) == 0 {
		return NewValidationError("patch", "no fields to update")
	}
	for _, name := range []string{FieldTitle, FieldGenre, FieldDescription} {
		if v, ok := fields[name]; ok && v.(string) == "" {
			return NewValidationError(name, "must not be blank")
		}
	}
	return toValidationError(validate.Struct(p))
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[jsonName(fe.Field())] = fe.Tag()
	}
	return out
}

func jsonName(field string) string {
	switch field {
	case "Runtime":
		return FieldRuntime
	case "Revenue":
		return FieldRevenue
	}
	return strings.ToLower(field)
}
