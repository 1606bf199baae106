package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// validatorInstance returns the shared validator with yaml field names and
// the custom tags used by the feed schema.
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()

		v.RegisterValidation("datelayout", isDateLayout)
		v.RegisterValidation("glob", isGlobPattern)

		// Report yaml keys rather than Go field names
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate = v
	})
	return validate
}

// validateStruct runs tag validation and flattens the result into one error.
func validateStruct(v interface{}) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "datelayout":
		return fmt.Sprintf("%s is not a usable date layout", field)
	default:
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
}

// isDateLayout accepts Go reference layouts that round-trip a known date.
func isDateLayout(fl validator.FieldLevel) bool {
	layout := fl.Field().String()
	if layout == "" {
		return false
	}
	ref := time.Date(2021, time.March, 4, 0, 0, 0, 0, time.UTC)
	parsed, err := time.Parse(layout, ref.Format(layout))
	if err != nil {
		return false
	}
	return parsed.Year() == 2021 && parsed.Month() == time.March && parsed.Day() == 4
}

func isGlobPattern(fl validator.FieldLevel) bool {
	pattern := fl.Field().String()
	if pattern == "" || strings.ContainsAny(pattern, `/\`) {
		return false
	}
	_, err := matchPattern(pattern, "probe")
	return err == nil
}
