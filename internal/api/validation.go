package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/BenyBen1/EstienCapital-sub000/internal/domain"
	"github.com/go-playground/validator/v10"
)

const (
	defaultBodyLimit = 1 << 20
	kycBodyLimit     = 32 << 20
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body of at most limit bytes into dst and runs
// the struct's validate tags. Failures come back as *domain.ValidationError.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return domain.NewValidationError("body", fmt.Sprintf("must not exceed %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return domain.NewValidationError("body", "is required")
		default:
			return domain.NewValidationError("body", "must be valid JSON")
		}
	}
	return validateStruct(dst)
}

func validateStruct(dst interface{}) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.NewValidationError("body", "is invalid")
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fieldPath(fe)] = fieldMessage(fe)
	}
	return &domain.ValidationError{Fields: fields}
}

// fieldPath drops the top-level struct name: "KYCSubmitRequest.personalDetails.full_name"
// becomes "personalDetails.full_name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "e164":
		return "must be a phone number in international format"
	case "numeric":
		return "must contain only digits"
	case "alpha":
		return "must contain only letters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "min":
		if fe.Kind() == reflect.Map || fe.Kind() == reflect.Slice {
			return "must contain at least " + fe.Param() + " entries"
		}
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "datetime":
		return "must be a date in the form " + fe.Param()
	default:
		return "is invalid"
	}
}
