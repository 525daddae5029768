package httpserver

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError reports a request field that failed validation. It is
// always produced before any store call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validateStruct runs struct tag validation and converts the first failure
// into a *ValidationError.
func validateStruct(v interface{}) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	return translateFieldError(fieldErrs[0])
}

func translateFieldError(fe validator.FieldError) *ValidationError {
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "min", "max":
		if fe.Kind() == reflect.String {
			msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
			if fe.Tag() == "min" {
				msg = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
			}
			break
		}
		msg = fmt.Sprintf("%s must be between %d and %d", field, minRating, maxRating)
	default:
		msg = fmt.Sprintf("%s is invalid", field)
	}
	return &ValidationError{Field: field, Message: msg}
}

func parseMovieID(raw string) (int64, error) {
	if raw == "" {
		return 0, &ValidationError{Field: "id", Message: "missing id parameter"}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Field: "id", Message: "id must be a positive integer"}
	}
	return id, nil
}
